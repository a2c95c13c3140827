package saverun_test

import (
	"bytes"
	"context"
	"errors"
	"runonsave/internal/notification"
	"runonsave/internal/saverun"
	"runonsave/internal/status"
	"runonsave/internal/store"
	"runonsave/internal/workspace"
	apperrors "runonsave/pkg/errors"
	"runonsave/pkg/logger"
	"runonsave/pkg/testutil"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	runner   *saverun.SaveRunner
	spawner  *testutil.FakeSpawner
	settings *saverun.Settings
	bar      *status.Bar
	out      *bytes.Buffer
}

func newFixture(t *testing.T, opts ...saverun.OptFunc) *fixture {
	t.Helper()

	out := &bytes.Buffer{}
	channel := logger.NewOutputChannel("test", out)
	spawner := testutil.NewFakeSpawner()
	settings := saverun.NewSettings(store.NewMemoryStore(), channel, nil)
	bar := status.NewBar()

	base := []saverun.OptFunc{
		saverun.WithSpawner(spawner),
		saverun.WithSettings(settings),
		saverun.WithOutput(channel),
		saverun.WithStatusBar(bar),
	}
	r, err := saverun.New(append(base, opts...)...)
	require.NoError(t, err)

	return &fixture{runner: r, spawner: spawner, settings: settings, bar: bar, out: out}
}

func doc(name string) workspace.Document {
	return workspace.Document{Key: "file:///" + name, Path: name}
}

func TestNew_RequiresCollaborators(t *testing.T) {
	_, err := saverun.New()
	assert.ErrorIs(t, err, apperrors.ErrInvalidConfig)

	_, err = saverun.New(saverun.WithSpawner(testutil.NewFakeSpawner()))
	assert.ErrorIs(t, err, apperrors.ErrInvalidConfig)
}

func TestHandleSave_StartsAndRegistersRun(t *testing.T) {
	f := newFixture(t)
	a := doc("a.txt")

	f.runner.HandleSave(context.Background(), a)

	assert.Contains(t, f.out.String(), "[1001] cmd start: echo 'a.txt'\n")
	assert.Contains(t, f.out.String(), "rsync file:///a.txt\n")
	assert.Equal(t, 1, f.runner.Registry().Len())

	run, ok := f.runner.Registry().Get(a.Key)
	require.True(t, ok)
	assert.Equal(t, 1001, run.PID())
	assert.Equal(t, "echo 'a.txt'", run.Command)
	assert.NotEmpty(t, run.ID)

	spawned := f.spawner.Spawned()
	require.Len(t, spawned, 1)
	assert.Equal(t, "bash", spawned[0].Options.Shell)
	assert.Equal(t, "", spawned[0].Options.Dir)

	assert.Equal(t, []string{"rsync file:///a.txt"}, f.bar.Messages())
}

func TestHandleSave_SupersedesPreviousRun(t *testing.T) {
	f := newFixture(t)
	a := doc("a.txt")

	f.runner.HandleSave(context.Background(), a)
	first := f.spawner.Last()
	f.runner.HandleSave(context.Background(), a)
	second := f.spawner.Last()

	assert.Equal(t, 1, first.Kills())
	assert.Equal(t, 0, second.Kills())
	assert.Equal(t, []string{"spawn:1001", "kill:1001", "spawn:1002"}, f.spawner.Events())
	assert.Contains(t, f.out.String(), "[1001] interrupting previous sync\n")

	assert.Equal(t, 1, f.runner.Registry().Len())
	run, ok := f.runner.Registry().Get(a.Key)
	require.True(t, ok)
	assert.Equal(t, 1002, run.PID())
}

func TestHandleSave_StaleCompletionKeepsNewerEntry(t *testing.T) {
	f := newFixture(t)
	a := doc("a.txt")

	f.runner.HandleSave(context.Background(), a)
	first := f.spawner.Last()
	f.runner.HandleSave(context.Background(), a)
	second := f.spawner.Last()

	first.Exit(143)

	assert.Contains(t, f.out.String(), "[1001] done\n")
	run, ok := f.runner.Registry().Get(a.Key)
	require.True(t, ok)
	assert.Equal(t, 1002, run.PID())
	assert.Equal(t, []string{"rsync file:///a.txt"}, f.bar.Messages())

	second.Exit(0)

	assert.Contains(t, f.out.String(), "[1002] done\n")
	assert.Equal(t, 0, f.runner.Registry().Len())
	assert.Empty(t, f.bar.Messages())
}

func TestHandleSave_NaturalExit(t *testing.T) {
	f := newFixture(t)
	a := doc("a.txt")

	f.runner.HandleSave(context.Background(), a)
	f.spawner.Last().Exit(0)

	assert.Contains(t, f.out.String(), "[1001] done\n")
	_, ok := f.runner.Registry().Get(a.Key)
	assert.False(t, ok)
	assert.Empty(t, f.bar.Messages())
}

func TestHandleSave_LaunchFailure(t *testing.T) {
	f := newFixture(t)
	f.spawner.FailLaunch = true
	a := doc("a.txt")

	f.runner.HandleSave(context.Background(), a)
	proc := f.spawner.Last()
	proc.Fail(errors.New("spawn bash ENOENT"))
	proc.Exit(-1)

	assert.Contains(t, f.out.String(), "spawn bash ENOENT\n")
	assert.Equal(t, 0, f.runner.Registry().Len())
}

func TestHandleSave_DocumentsAreIndependent(t *testing.T) {
	f := newFixture(t)
	a, b := doc("a.txt"), doc("b.txt")

	f.runner.HandleSave(context.Background(), a)
	procA := f.spawner.Last()
	f.runner.HandleSave(context.Background(), b)
	procB := f.spawner.Last()

	assert.Equal(t, 0, procA.Kills())
	assert.Equal(t, 2, f.runner.Registry().Len())

	procA.Exit(0)

	_, okA := f.runner.Registry().Get(a.Key)
	runB, okB := f.runner.Registry().Get(b.Key)
	assert.False(t, okA)
	require.True(t, okB)
	assert.Equal(t, procB.PID(), runB.PID())
	assert.Equal(t, 0, procB.Kills())
}

func TestHandleSave_RelaysOutputVerbatim(t *testing.T) {
	f := newFixture(t)

	f.runner.HandleSave(context.Background(), doc("a.txt"))
	proc := f.spawner.Last()
	proc.Stdout("a.t")
	proc.Stderr("xt\nwarn")
	proc.Stdout("ing\n")

	assert.Contains(t, f.out.String(), "a.txt\nwarning\n")
}

func TestHandleSave_StaleOutput(t *testing.T) {
	tests := []struct {
		name      string
		dropStale bool
		expectOld bool
	}{
		{name: "kept by default", dropStale: false, expectOld: true},
		{name: "dropped when enabled", dropStale: true, expectOld: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, saverun.WithDropStaleOutput(tt.dropStale))
			a := doc("a.txt")

			f.runner.HandleSave(context.Background(), a)
			first := f.spawner.Last()
			first.Stdout("early-old|")
			f.runner.HandleSave(context.Background(), a)
			second := f.spawner.Last()

			first.Stdout("late-old|")
			second.Stdout("new|")

			out := f.out.String()
			assert.Contains(t, out, "early-old|")
			assert.Contains(t, out, "new|")
			assert.Equal(t, tt.expectOld, bytes.Contains(f.out.Bytes(), []byte("late-old|")))
		})
	}
}

func TestHandleSave_DisabledSkipsExecution(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.settings.SetEnabled(ctx, false))
	f.runner.HandleSave(ctx, doc("a.txt"))

	assert.Empty(t, f.spawner.Spawned())
	assert.Equal(t, 0, f.runner.Registry().Len())
	assert.Contains(t, f.out.String(), "Run On Save disabled.\n")

	require.NoError(t, f.settings.SetEnabled(ctx, true))
	f.runner.HandleSave(ctx, doc("a.txt"))
	assert.Len(t, f.spawner.Spawned(), 1)
}

func TestHandleSave_ExecutionContext(t *testing.T) {
	root := t.TempDir()
	other := t.TempDir()
	ws, err := workspace.New(root, other)
	require.NoError(t, err)

	f := newFixture(t, saverun.WithWorkspace(ws), saverun.WithShell("zsh"))

	f.runner.HandleSave(context.Background(), workspace.Document{Key: "file:///x", Path: "/x", Folder: other})
	f.runner.HandleSave(context.Background(), workspace.Document{Key: "file:///y", Path: "/y"})

	spawned := f.spawner.Spawned()
	require.Len(t, spawned, 2)
	assert.Equal(t, other, spawned[0].Options.Dir)
	assert.Equal(t, root, spawned[1].Options.Dir)
	assert.Equal(t, "zsh", spawned[0].Options.Shell)
	assert.Equal(t, []string{
		"RUNONSAVE_DOCUMENT=/x",
		"RUNONSAVE_KEY=file:///x",
		"RUNONSAVE_FOLDER=" + other,
	}, spawned[0].Options.Env)
}

type MockNotifier struct {
	mock.Mock
	sent chan notification.Message
}

func (m *MockNotifier) Send(msg notification.Message) error {
	args := m.Called(msg)
	m.sent <- msg
	return args.Error(0)
}

func TestHandleSave_NotifiesOnFailure(t *testing.T) {
	notifier := &MockNotifier{sent: make(chan notification.Message, 4)}
	notifier.On("Send", mock.AnythingOfType("notification.Message")).Return(nil)

	f := newFixture(t, saverun.WithNotifier(notifier))
	a := doc("a.txt")

	// Superseded runs are not reported
	f.runner.HandleSave(context.Background(), a)
	first := f.spawner.Last()
	f.runner.HandleSave(context.Background(), a)
	first.Exit(143)

	f.spawner.Last().Exit(2)

	select {
	case msg := <-notifier.sent:
		assert.Equal(t, "error", msg.Severity)
		assert.Equal(t, "2", msg.Fields["exit_code"])
		assert.Equal(t, a.Key, msg.Fields["document"])
	case <-time.After(2 * time.Second):
		t.Fatal("expected a failure notification")
	}

	select {
	case msg := <-notifier.sent:
		t.Fatalf("unexpected notification: %+v", msg)
	case <-time.After(50 * time.Millisecond):
	}
	notifier.AssertNumberOfCalls(t, "Send", 1)
}

func TestShutdown_KillsRunsAndWaits(t *testing.T) {
	f := newFixture(t)

	f.runner.HandleSave(context.Background(), doc("a.txt"))
	procA := f.spawner.Last()
	f.runner.HandleSave(context.Background(), doc("b.txt"))
	procB := f.spawner.Last()

	done := make(chan error, 1)
	go func() {
		done <- f.runner.Shutdown(context.Background())
	}()

	require.Eventually(t, func() bool {
		return procA.Kills() == 1 && procB.Kills() == 1
	}, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, 0, f.runner.Registry().Len())

	procA.Exit(-1)
	procB.Exit(-1)

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("shutdown did not return")
	}

	f.runner.HandleSave(context.Background(), doc("c.txt"))
	assert.Len(t, f.spawner.Spawned(), 2)
}

func TestShutdown_TimesOut(t *testing.T) {
	f := newFixture(t)
	f.runner.HandleSave(context.Background(), doc("a.txt"))

	ctx, cancel := testutil.WithTimeout(t, 20*time.Millisecond)
	defer cancel()

	err := f.runner.Shutdown(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	f.spawner.Last().Exit(0)
}

func TestSnapshot(t *testing.T) {
	f := newFixture(t)
	f.runner.HandleSave(context.Background(), doc("b.txt"))
	f.runner.HandleSave(context.Background(), doc("a.txt"))

	snap := f.runner.Snapshot()
	require.Len(t, snap, 2)
	assert.Equal(t, "file:///a.txt", snap[0].Key)
	assert.Equal(t, 1002, snap[0].PID)
	assert.Equal(t, "echo 'b.txt'", snap[1].Command)
}
