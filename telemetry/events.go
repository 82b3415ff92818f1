// Package telemetry provides lab progress tracking, milestones, and snapshots.
package telemetry

import (
	"fmt"
	"strings"

	"github.com/pthm-cable/protolab/lab"
)

// EventType identifies telemetry events.
type EventType uint8

const (
	EventStageAdvanced EventType = iota
	EventEnvironmentChanged
	EventScenarioApplied
	EventFault
)

var eventNames = [...]string{
	EventStageAdvanced:      "stage_advanced",
	EventEnvironmentChanged: "environment_changed",
	EventScenarioApplied:    "scenario_applied",
	EventFault:              "fault",
}

func (t EventType) String() string {
	if int(t) < len(eventNames) {
		return eventNames[t]
	}
	return "unknown"
}

// Event represents a single telemetry event.
type Event struct {
	Type    EventType
	Tick    int64
	SimTime float64
	Stage   lab.Stage

	// Optional free-form detail (changed inputs, fault message)
	Detail string
}

// NewStageAdvancedEvent creates an event for reaching stage.
func NewStageAdvancedEvent(tick int64, simTime float64, stage lab.Stage) Event {
	return Event{
		Type:    EventStageAdvanced,
		Tick:    tick,
		SimTime: simTime,
		Stage:   stage,
	}
}

// NewEnvironmentChangedEvent creates an event for an environment merge
// that changed the named inputs.
func NewEnvironmentChangedEvent(tick int64, simTime float64, stage lab.Stage, changed []string) Event {
	return Event{
		Type:    EventEnvironmentChanged,
		Tick:    tick,
		SimTime: simTime,
		Stage:   stage,
		Detail:  strings.Join(changed, ","),
	}
}

// NewScenarioEvent creates an event for a scripted environment step.
func NewScenarioEvent(tick int64, simTime float64, stage lab.Stage, at float64) Event {
	return Event{
		Type:    EventScenarioApplied,
		Tick:    tick,
		SimTime: simTime,
		Stage:   stage,
		Detail:  fmt.Sprintf("at=%g", at),
	}
}

// NewFaultEvent creates an event for an invariant violation.
func NewFaultEvent(tick int64, simTime float64, stage lab.Stage, err error) Event {
	return Event{
		Type:    EventFault,
		Tick:    tick,
		SimTime: simTime,
		Stage:   stage,
		Detail:  err.Error(),
	}
}
