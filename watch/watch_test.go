package watch

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pthm-cable/protolab/lab"
)

type recordingTarget struct {
	mu      sync.Mutex
	env     lab.Environment
	patches []lab.EnvironmentPatch
}

func (r *recordingTarget) SetEnvironment(p lab.EnvironmentPatch) lab.Environment {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.patches = append(r.patches, p)
	r.env = r.env.Apply(p)
	return r.env
}

func (r *recordingTarget) snapshot() (lab.Environment, int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.env, len(r.patches)
}

func writeFile(t *testing.T, path, data string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(data), 0644))
}

func startWatcher(t *testing.T, path string, target Target) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- New(path, target, 20*time.Millisecond).Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		select {
		case err := <-done:
			assert.NoError(t, err)
		case <-time.After(2 * time.Second):
			t.Error("watcher did not stop")
		}
	})
}

func TestReadPatch(t *testing.T) {
	dir := t.TempDir()

	path := filepath.Join(dir, "env.yaml")
	writeFile(t, path, "uv: 12\nmineral_catalysis: true\n")
	patch, err := ReadPatch(path)
	require.NoError(t, err)
	require.NotNil(t, patch.UV)
	assert.Equal(t, 12.0, *patch.UV)
	require.NotNil(t, patch.MineralCatalysis)
	assert.True(t, *patch.MineralCatalysis)
	assert.Nil(t, patch.Lightning)

	empty := filepath.Join(dir, "empty.yaml")
	writeFile(t, empty, "")
	patch, err = ReadPatch(empty)
	require.NoError(t, err)
	assert.True(t, patch.IsEmpty())

	typo := filepath.Join(dir, "typo.yaml")
	writeFile(t, typo, "ultraviolet: 10\n")
	_, err = ReadPatch(typo)
	assert.Error(t, err)

	_, err = ReadPatch(filepath.Join(dir, "missing.yaml"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestInitialLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "env.yaml")
	writeFile(t, path, "lightning: 55\n")

	target := &recordingTarget{env: lab.DefaultEnvironment()}
	startWatcher(t, path, target)

	require.Eventually(t, func() bool {
		env, _ := target.snapshot()
		return env.Lightning == 55
	}, 2*time.Second, 5*time.Millisecond)
}

func TestReloadOnChange(t *testing.T) {
	path := filepath.Join(t.TempDir(), "env.yaml")
	target := &recordingTarget{env: lab.DefaultEnvironment()}
	startWatcher(t, path, target)

	// Give the watcher time to register the directory.
	time.Sleep(50 * time.Millisecond)
	writeFile(t, path, "uv: 150\n")

	require.Eventually(t, func() bool {
		env, _ := target.snapshot()
		return env.UV == lab.MaxLevel
	}, 2*time.Second, 5*time.Millisecond, "patch values are clamped by the target")
}

func TestMalformedFileIsSkipped(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "env.yaml")
	target := &recordingTarget{env: lab.DefaultEnvironment()}
	startWatcher(t, path, target)

	time.Sleep(50 * time.Millisecond)
	writeFile(t, path, "uv: [not a number\n")
	writeFile(t, filepath.Join(dir, "other.yaml"), "uv: 1\n")
	time.Sleep(150 * time.Millisecond)

	env, n := target.snapshot()
	assert.Zero(t, n)
	assert.Equal(t, lab.DefaultEnvironment(), env)

	writeFile(t, path, "uv: 5\n")
	require.Eventually(t, func() bool {
		env, _ := target.snapshot()
		return env.UV == 5
	}, 2*time.Second, 5*time.Millisecond)
}

func TestMissingDirectory(t *testing.T) {
	w := New(filepath.Join(t.TempDir(), "nope", "env.yaml"), &recordingTarget{}, 0)
	err := w.Run(context.Background())
	assert.Error(t, err)
}
