package watcher

import (
	"context"
	"os"
	"path/filepath"
	"runonsave/internal/workspace"
	"runonsave/pkg/testutil"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingHandler struct {
	mu   sync.Mutex
	docs []workspace.Document
}

func (h *recordingHandler) HandleSave(_ context.Context, doc workspace.Document) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.docs = append(h.docs, doc)
}

func (h *recordingHandler) saved() []workspace.Document {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]workspace.Document, len(h.docs))
	copy(out, h.docs)
	return out
}

func startWatcher(t *testing.T, root string, debounce time.Duration, ignore ...string) *recordingHandler {
	t.Helper()

	ws, err := workspace.New(root)
	require.NoError(t, err)
	handler := &recordingHandler{}
	w := New(ws, handler, debounce, nil)
	w.Ignore(ignore...)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Error("watcher did not stop")
		}
	})

	// Give fsnotify a moment to register the watches
	time.Sleep(100 * time.Millisecond)
	return handler
}

func TestWatcher_CoalescesWritesIntoOneSave(t *testing.T) {
	root := t.TempDir()
	path := testutil.CreateTestFile(t, root, "a.txt", "v0")
	handler := startWatcher(t, root, 150*time.Millisecond)

	for i := 0; i < 3; i++ {
		require.NoError(t, os.WriteFile(path, []byte("v1"), 0644))
	}

	require.Eventually(t, func() bool { return len(handler.saved()) == 1 }, 3*time.Second, 10*time.Millisecond)
	time.Sleep(300 * time.Millisecond)

	saved := handler.saved()
	require.Len(t, saved, 1)
	resolved, err := filepath.EvalSymlinks(root)
	require.NoError(t, err)
	assert.Contains(t, []string{root, resolved}, saved[0].Folder)
	assert.Equal(t, workspace.KeyFor(saved[0].Path), saved[0].Key)
	assert.Equal(t, "a.txt", filepath.Base(saved[0].Path))
}

func TestWatcher_WatchesNewDirectories(t *testing.T) {
	root := t.TempDir()
	handler := startWatcher(t, root, 50*time.Millisecond)

	require.NoError(t, os.MkdirAll(filepath.Join(root, "pkg"), 0755))
	time.Sleep(200 * time.Millisecond)
	testutil.CreateTestFile(t, root, filepath.Join("pkg", "b.go"), "package pkg")

	require.Eventually(t, func() bool {
		for _, doc := range handler.saved() {
			if filepath.Base(doc.Path) == "b.go" {
				return true
			}
		}
		return false
	}, 3*time.Second, 10*time.Millisecond)
}

func TestWatcher_SkipsHiddenDirectories(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, ".git"), 0755))
	handler := startWatcher(t, root, 20*time.Millisecond)

	testutil.CreateTestFile(t, root, filepath.Join(".git", "index"), "x")
	testutil.CreateTestFile(t, root, "visible.txt", "x")

	require.Eventually(t, func() bool { return len(handler.saved()) >= 1 }, 3*time.Second, 10*time.Millisecond)
	time.Sleep(200 * time.Millisecond)

	for _, doc := range handler.saved() {
		assert.NotEqual(t, "index", filepath.Base(doc.Path))
	}
}

func TestWatcher_IgnoresOwnFiles(t *testing.T) {
	root := t.TempDir()
	logPath := filepath.Join(root, "runonsave.log")
	handler := startWatcher(t, root, 20*time.Millisecond, logPath)

	testutil.CreateTestFile(t, root, "runonsave.log", "[1001] cmd start")
	testutil.CreateTestFile(t, root, "runonsave.log.123.tmp", "x")
	testutil.CreateTestFile(t, root, "runonsave.log-journal", "x")
	testutil.CreateTestFile(t, root, "user.txt", "x")

	require.Eventually(t, func() bool { return len(handler.saved()) >= 1 }, 3*time.Second, 10*time.Millisecond)
	time.Sleep(200 * time.Millisecond)

	saved := handler.saved()
	require.Len(t, saved, 1)
	assert.Equal(t, "user.txt", filepath.Base(saved[0].Path))
}

func TestIgnore_ResolvesRelativePaths(t *testing.T) {
	ws, err := workspace.New()
	require.NoError(t, err)
	w := New(ws, &recordingHandler{}, 0, nil)
	w.Ignore("", "state.db")

	wd, err := os.Getwd()
	require.NoError(t, err)
	assert.True(t, w.isIgnored(filepath.Join(wd, "state.db")))
	assert.True(t, w.isIgnored(filepath.Join(wd, "state.db-wal")))
	assert.False(t, w.isIgnored(filepath.Join(wd, "state.dbx")))
	assert.False(t, w.isIgnored(filepath.Join(wd, "other.db")))
}

func TestFire_SkipsReplacedTimer(t *testing.T) {
	root := t.TempDir()
	path := testutil.CreateTestFile(t, root, "a.txt", "x")
	ws, err := workspace.New(root)
	require.NoError(t, err)
	handler := &recordingHandler{}
	w := New(ws, handler, time.Hour, nil)

	w.schedule(context.Background(), path)
	w.mu.Lock()
	stale := w.pending[path]
	w.mu.Unlock()
	stale.timer.Stop()

	// The stale callback lost the race with a newer burst of writes
	w.mu.Lock()
	current := &pendingSave{timer: time.NewTimer(time.Hour)}
	w.pending[path] = current
	w.mu.Unlock()
	defer current.timer.Stop()

	w.fire(context.Background(), path, stale)
	assert.Empty(t, handler.saved())

	w.fire(context.Background(), path, current)
	require.Len(t, handler.saved(), 1)
	assert.Equal(t, path, handler.saved()[0].Path)

	w.fire(context.Background(), path, current)
	assert.Len(t, handler.saved(), 1)
}

func TestWatcher_RequiresFolders(t *testing.T) {
	ws, err := workspace.New()
	require.NoError(t, err)

	err = New(ws, &recordingHandler{}, 0, nil).Run(context.Background())
	assert.Error(t, err)
}

func TestSkipDir(t *testing.T) {
	assert.True(t, skipDir(".git"))
	assert.True(t, skipDir(".idea"))
	assert.True(t, skipDir("node_modules"))
	assert.False(t, skipDir("src"))
}
