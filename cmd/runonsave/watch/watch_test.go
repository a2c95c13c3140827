package watch

import (
	"context"
	"os"
	"path/filepath"
	"runonsave/internal/config"
	"runonsave/internal/store"
	"runonsave/pkg/testutil"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		Shell:   "sh",
		Folders: []string{t.TempDir()},
		Watch:   config.WatchConfig{Enabled: true, Debounce: 20 * time.Millisecond},
		API:     config.APIConfig{Enabled: false},
		Output:  config.OutputConfig{File: filepath.Join(t.TempDir(), "output.log")},
		Store:   config.StoreConfig{Driver: store.DriverMemory},
	}
}

func TestApp_RunsCommandForSavedFile(t *testing.T) {
	cfg := testConfig(t)
	app, err := NewApp(cfg)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- app.Run(ctx) }()

	time.Sleep(150 * time.Millisecond)
	testutil.CreateTestFile(t, cfg.Folders[0], "saved.txt", "hello")

	readLog := func() string {
		data, _ := os.ReadFile(cfg.Output.File)
		return string(data)
	}
	require.Eventually(t, func() bool {
		out := readLog()
		return strings.Contains(out, "saved.txt'") && strings.Contains(out, "] done")
	}, 5*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("app did not stop")
	}
	require.NoError(t, app.Close())

	out := readLog()
	assert.Contains(t, out, "Run On Save enabled.")
	assert.Contains(t, out, "=== rsc rsync ended:")
}

func TestApp_IgnoresItsOwnFilesInWorkspace(t *testing.T) {
	cfg := testConfig(t)
	folder := cfg.Folders[0]
	cfg.Output.File = filepath.Join(folder, "runonsave.log")
	cfg.Store = config.StoreConfig{Driver: store.DriverFile, Path: filepath.Join(folder, "state.yaml")}

	app, err := NewApp(cfg)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- app.Run(ctx) }()

	time.Sleep(150 * time.Millisecond)
	require.NoError(t, app.settings.SetEnabled(ctx, true))
	testutil.CreateTestFile(t, folder, "saved.txt", "hello")

	readLog := func() string {
		data, _ := os.ReadFile(cfg.Output.File)
		return string(data)
	}
	require.Eventually(t, func() bool {
		return strings.Contains(readLog(), "] done")
	}, 5*time.Second, 20*time.Millisecond)

	// Give any write to the log or state file time to come back as a save
	time.Sleep(10 * cfg.Watch.Debounce)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("app did not stop")
	}
	require.NoError(t, app.Close())

	out := readLog()
	assert.Equal(t, 1, strings.Count(out, "cmd start"), out)
	assert.Contains(t, out, "saved.txt'")
	assert.NotContains(t, out, "runonsave.log'")
	assert.NotContains(t, out, "state.yaml'")
}

func TestApp_RequiresAnEventSource(t *testing.T) {
	cfg := testConfig(t)
	cfg.Watch.Enabled = false

	app, err := NewApp(cfg)
	require.NoError(t, err)
	defer app.Close()

	assert.Error(t, app.Run(context.Background()))
}
