package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pthm-cable/protolab/lab"
	"github.com/pthm-cable/protolab/metrics"
	"github.com/pthm-cable/protolab/sim"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func fastEnv() lab.Environment {
	return lab.Environment{
		UV:                30,
		Lightning:         40,
		Hydrothermal:      80,
		DryWetCycling:     85,
		ChemistryRichness: 90,
		WaterActivity:     80,
		Temperature:       298,
		MineralCatalysis:  true,
		TimeScale:         1,
	}
}

type fixture struct {
	sim      *sim.Simulation
	reporter *metrics.Reporter
	server   *Server
	clock    *clock.Mock
}

func setup(t *testing.T, opts sim.Options) *fixture {
	t.Helper()
	mock := clock.NewMock()
	if opts.Clock == nil {
		opts.Clock = mock
	}
	if opts.Environment == (lab.Environment{}) {
		opts.Environment = fastEnv()
	}
	s, err := sim.New(opts)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	reporter := metrics.NewReporter(s)
	srv := New(s, reporter, Options{SnapshotInterval: time.Second, Clock: mock})
	return &fixture{sim: s, reporter: reporter, server: srv, clock: mock}
}

func (f *fixture) do(t *testing.T, method, path string, body []byte) *httptest.ResponseRecorder {
	t.Helper()
	req, err := http.NewRequest(method, path, bytes.NewReader(body))
	require.NoError(t, err)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	f.server.Handler().ServeHTTP(w, req)
	return w
}

func TestHealth(t *testing.T) {
	f := setup(t, sim.Options{RunID: "run-1"})

	w := f.do(t, http.MethodGet, "/healthz", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resp map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "ok", resp["status"])
	assert.Equal(t, "run-1", resp["run_id"])
}

func TestSnapshotReflectsSteps(t *testing.T) {
	f := setup(t, sim.Options{})
	for i := 0; i < 10; i++ {
		f.sim.Step()
	}

	w := f.do(t, http.MethodGet, "/snapshot", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resp SnapshotResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, int64(10), resp.Tick)
	assert.False(t, resp.Running)
	assert.InDelta(t, 1.0, resp.State.SimTime, 1e-9)
	assert.Equal(t, fastEnv(), resp.Environment)
	assert.GreaterOrEqual(t, resp.Ceiling, resp.State.LifePotential)
}

func TestSnapshotIsConsistentWhileStepping(t *testing.T) {
	f := setup(t, sim.Options{})

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 1000; i++ {
			f.sim.Step()
		}
	}()

	for stepping := true; stepping; {
		select {
		case <-done:
			stepping = false
		default:
		}
		w := f.do(t, http.MethodGet, "/snapshot", nil)
		require.Equal(t, http.StatusOK, w.Code)

		var resp SnapshotResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		require.InDelta(t, float64(resp.Tick)*lab.BaseDT, resp.State.SimTime, 1e-6,
			"tick %d paired with another tick's state", resp.Tick)
	}
}

func TestPatchEnvironmentClamps(t *testing.T) {
	f := setup(t, sim.Options{})

	w := f.do(t, http.MethodPatch, "/environment", []byte(`{"uv": 250, "temperature": 350}`))
	require.Equal(t, http.StatusOK, w.Code)

	var env lab.Environment
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	assert.Equal(t, lab.MaxLevel, env.UV)
	assert.Equal(t, 350.0, env.Temperature)
	assert.Equal(t, fastEnv().Lightning, env.Lightning, "unset fields keep their value")
	assert.Equal(t, env, f.sim.Environment())

	w = f.do(t, http.MethodGet, "/environment", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"uv":100`)
}

func TestPatchEnvironmentRejectsBadJSON(t *testing.T) {
	f := setup(t, sim.Options{})
	before := f.sim.Environment()

	w := f.do(t, http.MethodPatch, "/environment", []byte(`{"uv": "high"}`))
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, before, f.sim.Environment())
}

func TestLifecycleEndpoints(t *testing.T) {
	f := setup(t, sim.Options{})

	w := f.do(t, http.MethodPost, "/start", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var status StatusResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &status))
	assert.True(t, status.Running)

	w = f.do(t, http.MethodPost, "/pause", nil)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &status))
	assert.False(t, status.Running)

	f.sim.Step()
	f.sim.Step()
	w = f.do(t, http.MethodPost, "/reset", nil)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &status))
	assert.Equal(t, int64(0), status.Tick)
	assert.Equal(t, lab.StageSimpleMolecules, status.Stage)
	assert.Equal(t, "simple_molecules", status.Name)
}

func TestDiagnoseTimelineMilestones(t *testing.T) {
	f := setup(t, sim.Options{})
	for i := 0; i < 5000; i++ {
		f.sim.Step()
	}

	w := f.do(t, http.MethodGet, "/diagnose", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var report lab.GateReport
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &report))
	assert.True(t, report.Complete)

	w = f.do(t, http.MethodGet, "/timeline", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var timeline []map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &timeline))
	assert.Len(t, timeline, lab.NumStages)

	w = f.do(t, http.MethodGet, "/milestones", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "stage_reached")
}

func TestSaveSnapshotEndpoint(t *testing.T) {
	f := setup(t, sim.Options{})
	w := f.do(t, http.MethodPost, "/snapshot", nil)
	assert.Equal(t, http.StatusConflict, w.Code)

	dir := t.TempDir()
	g := setup(t, sim.Options{SnapshotDir: dir})
	w = g.do(t, http.MethodPost, "/snapshot", nil)
	require.Equal(t, http.StatusCreated, w.Code)
	var resp map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, strings.HasPrefix(resp["path"], dir))
}

func TestMetricsEndpointAndRequestDuration(t *testing.T) {
	f := setup(t, sim.Options{})
	f.do(t, http.MethodGet, "/healthz", nil)
	f.do(t, http.MethodGet, "/no-such-route", nil)

	w := f.do(t, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, w.Code)
	body := w.Body.String()
	assert.Contains(t, body, "protolab_stage 0")
	assert.Contains(t, body, `route="/healthz"`)
	assert.Contains(t, body, `route="unmatched"`)

	n, err := testutil.GatherAndCount(f.reporter.Registry(), "protolab_http_request_duration_seconds")
	require.NoError(t, err)
	assert.GreaterOrEqual(t, n, 2)
}

func dialStream(t *testing.T, f *fixture) *websocket.Conn {
	t.Helper()
	ts := httptest.NewServer(f.server.Handler())
	t.Cleanup(ts.Close)

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readMessage(t *testing.T, conn *websocket.Conn) StreamMessage {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var msg StreamMessage
	require.NoError(t, conn.ReadJSON(&msg))
	return msg
}

func TestStreamSessionAndStageEvents(t *testing.T) {
	f := setup(t, sim.Options{RunID: "run-ws"})
	conn := dialStream(t, f)

	hello := readMessage(t, conn)
	require.Equal(t, MessageSession, hello.Type)
	assert.NotEmpty(t, hello.SessionID)
	assert.Equal(t, "run-ws", hello.RunID)

	for i := 0; i < 5000 && f.sim.Snapshot().Stage < lab.StageAminoAcids; i++ {
		f.sim.Step()
	}
	require.Equal(t, lab.StageAminoAcids, f.sim.Snapshot().Stage)

	msg := readMessage(t, conn)
	require.Equal(t, MessageStageAdvance, msg.Type)
	require.NotNil(t, msg.Event)
	assert.Equal(t, lab.StageAminoAcids, msg.Event.Stage)
	assert.Equal(t, lab.StageAminoAcids, msg.Event.State.Stage)
}

func TestStreamPeriodicSnapshot(t *testing.T) {
	f := setup(t, sim.Options{})
	conn := dialStream(t, f)
	require.Equal(t, MessageSession, readMessage(t, conn).Type)

	f.sim.Step()
	f.clock.Add(time.Second)

	msg := readMessage(t, conn)
	require.Equal(t, MessageSnapshot, msg.Type)
	require.NotNil(t, msg.Snapshot)
	assert.Equal(t, int64(1), msg.Snapshot.Tick)
}

func TestRunShutsDownOnCancel(t *testing.T) {
	f := setup(t, sim.Options{})

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	ln.Close()

	srv := New(f.sim, nil, Options{Addr: addr, ShutdownTimeout: time.Second})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Run(ctx) }()

	require.Eventually(t, func() bool {
		resp, err := http.Get("http://" + addr + "/healthz")
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
