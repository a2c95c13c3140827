// Package saverun runs a shell command every time a document is saved,
// interrupting the command still running for the same document.
package saverun

import (
	"context"
	"errors"
	"fmt"
	"runonsave/internal/notification"
	"runonsave/internal/status"
	"runonsave/internal/workspace"
	apperrors "runonsave/pkg/errors"
	"runonsave/pkg/logger"
	"runonsave/pkg/runner"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// StatusBar shows transient messages
type StatusBar interface {
	Set(msg string) status.Disposable
}

type SaveRunnerOpts struct {
	spawner         runner.Spawner
	settings        *Settings
	workspace       *workspace.Workspace
	output          OutputSink
	statusBar       StatusBar
	notifier        notification.Notifier
	logger          *logger.Logger
	shell           string
	dropStaleOutput bool
}

type OptFunc func(*SaveRunnerOpts)

// SaveRunner owns the registry of in-flight runs, one per document
type SaveRunner struct {
	SaveRunnerOpts

	// mu serialises the kill/spawn/register sequence of HandleSave with the
	// registry updates made by exit handlers
	mu       sync.Mutex
	registry *Registry
	inFlight sync.WaitGroup
	closed   bool
}

func WithSpawner(spawner runner.Spawner) OptFunc {
	return func(o *SaveRunnerOpts) {
		o.spawner = spawner
	}
}

func WithSettings(settings *Settings) OptFunc {
	return func(o *SaveRunnerOpts) {
		o.settings = settings
	}
}

func WithWorkspace(ws *workspace.Workspace) OptFunc {
	return func(o *SaveRunnerOpts) {
		o.workspace = ws
	}
}

func WithOutput(output OutputSink) OptFunc {
	return func(o *SaveRunnerOpts) {
		o.output = output
	}
}

func WithStatusBar(bar StatusBar) OptFunc {
	return func(o *SaveRunnerOpts) {
		o.statusBar = bar
	}
}

func WithNotifier(n notification.Notifier) OptFunc {
	return func(o *SaveRunnerOpts) {
		o.notifier = n
	}
}

func WithLogger(l *logger.Logger) OptFunc {
	return func(o *SaveRunnerOpts) {
		o.logger = l
	}
}

func WithShell(shell string) OptFunc {
	return func(o *SaveRunnerOpts) {
		o.shell = shell
	}
}

// WithDropStaleOutput discards stdout/stderr from runs that have been
// superseded, so the output only ever shows the latest run of a document.
func WithDropStaleOutput(drop bool) OptFunc {
	return func(o *SaveRunnerOpts) {
		o.dropStaleOutput = drop
	}
}

// New creates a SaveRunner. Spawner, settings and output are required.
func New(opts ...OptFunc) (*SaveRunner, error) {
	o := SaveRunnerOpts{
		shell: runner.DefaultShell,
	}
	for _, opt := range opts {
		opt(&o)
	}

	if o.spawner == nil {
		return nil, apperrors.NewConfigError("spawner", nil, "a process spawner is required")
	}
	if o.settings == nil {
		return nil, apperrors.NewConfigError("settings", nil, "settings are required")
	}
	if o.output == nil {
		return nil, apperrors.NewConfigError("output", nil, "an output sink is required")
	}
	if o.workspace == nil {
		ws, err := workspace.New()
		if err != nil {
			return nil, err
		}
		o.workspace = ws
	}
	if o.statusBar == nil {
		o.statusBar = status.NewBar()
	}
	if o.logger == nil {
		o.logger = logger.NewDiscardLogger()
	}
	if o.shell == "" {
		o.shell = runner.DefaultShell
	}

	return &SaveRunner{
		SaveRunnerOpts: o,
		registry:       NewRegistry(),
	}, nil
}

// Registry exposes the run registry for inspection
func (s *SaveRunner) Registry() *Registry {
	return s.registry
}

// Snapshot lists the runs currently registered
func (s *SaveRunner) Snapshot() []RunInfo {
	return s.registry.Snapshot()
}

// CommandFor is the command run when doc is saved
func CommandFor(doc workspace.Document) string {
	return fmt.Sprintf("echo '%s'", doc.Path)
}

// Environment variables describing the saved document to the command
const (
	EnvDocument = "RUNONSAVE_DOCUMENT"
	EnvKey      = "RUNONSAVE_KEY"
	EnvFolder   = "RUNONSAVE_FOLDER"
)

// EnvFor is appended to the command's inherited environment
func EnvFor(doc workspace.Document) []string {
	return []string{
		EnvDocument + "=" + doc.Path,
		EnvKey + "=" + doc.Key,
		EnvFolder + "=" + doc.Folder,
	}
}

// HandleSave supersedes any run of doc's previous save and starts a new one.
// It does not wait for either process; all outcomes go to the output.
func (s *SaveRunner) HandleSave(ctx context.Context, doc workspace.Document) {
	entry := s.logger.WithDocument(doc.Key, doc.Path)
	if !s.settings.Enabled(ctx) {
		entry.Debug("Run on save disabled, ignoring save")
		return
	}

	cmd := CommandFor(doc)
	opts := runner.ExecOptions{
		Shell: s.shell,
		Dir:   s.workspace.ExecDir(doc),
		Env:   EnvFor(doc),
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		entry.Debug("Save runner shut down, ignoring save")
		return
	}

	if prev, ok := s.registry.Get(doc.Key); ok {
		if err := prev.Kill(); err != nil {
			entry.WithError(err).Warn("Failed to signal previous run")
		}
		s.output.AppendLine(fmt.Sprintf("[%d] interrupting previous sync", prev.PID()))
	}

	statusMsg := fmt.Sprintf("rsync %s", doc.Key)
	s.output.AppendLine(statusMsg)
	disposable := s.statusBar.Set(statusMsg)

	run := &Run{
		ID:         uuid.New().String(),
		Key:        doc.Key,
		Command:    cmd,
		Generation: s.registry.NextGeneration(doc.Key),
		StartedAt:  time.Now(),
	}

	s.inFlight.Add(1)
	run.proc = s.spawner.Spawn(cmd, opts, s.handlersFor(run, disposable))
	s.output.AppendLine(fmt.Sprintf("[%d] cmd start: %s", run.PID(), cmd))

	entry.WithFields(logrus.Fields{
		"run_id":     run.ID,
		"pid":        run.PID(),
		"generation": run.Generation,
		"dir":        opts.Dir,
	}).Info("Command started")

	s.registry.Supersede(doc.Key, run)
}

func (s *SaveRunner) handlersFor(run *Run, disposable status.Disposable) runner.Handlers {
	relay := func(p []byte) {
		if s.dropStaleOutput && s.registry.Generation(run.Key) != run.Generation {
			return
		}
		s.output.Append(p)
	}

	var launchErr error
	var errMu sync.Mutex

	return runner.Handlers{
		Stdout: relay,
		Stderr: relay,
		Error: func(err error) {
			errMu.Lock()
			launchErr = err
			errMu.Unlock()
			s.output.AppendLine(err.Error())
		},
		Exit: func(code int) {
			defer s.inFlight.Done()

			s.mu.Lock()
			s.output.AppendLine(fmt.Sprintf("[%d] done", run.PID()))
			current := s.registry.RemoveIfCurrent(run.Key, run)
			s.mu.Unlock()

			disposable.Dispose()

			entry := s.logger.WithRun(run.ID, run.PID()).WithField("exit_code", code)
			if !current {
				entry.Debug("Stale completion, registry left unchanged")
				return
			}
			entry.Info("Command finished")

			errMu.Lock()
			err := launchErr
			errMu.Unlock()
			if code != 0 || err != nil {
				s.notifyFailure(run, code, err)
			}
		},
	}
}

func (s *SaveRunner) notifyFailure(run *Run, code int, runErr error) {
	if s.notifier == nil {
		return
	}

	fields := map[string]string{
		"document":  run.Key,
		"command":   run.Command,
		"exit_code": strconv.Itoa(code),
		"run_id":    run.ID,
	}
	description := fmt.Sprintf("`%s` exited with code %d", run.Command, code)
	if runErr != nil {
		description = runErr.Error()
	}

	msg := notification.Message{
		Title:       "Run on save failed",
		Description: description,
		Severity:    "error",
		Fields:      fields,
	}

	go func() {
		err := s.notifier.Send(msg)
		switch {
		case err == nil:
		case errors.Is(err, apperrors.ErrNotificationRateLimited):
			s.logger.WithFields(logger.Fields{"document": run.Key}).Debug("Failure notification dropped by rate limit")
		default:
			s.logger.WithError(err).Warn("Failed to send failure notification")
		}
	}()
}

// Shutdown signals every registered run and waits, until ctx is done, for
// all spawned processes to report their exit.
func (s *SaveRunner) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.closed = true
	runs := s.registry.Drain()
	s.mu.Unlock()

	for _, run := range runs {
		if err := run.Kill(); err != nil {
			s.logger.WithRun(run.ID, run.PID()).WithError(err).Warn("Failed to signal run during shutdown")
		}
	}

	done := make(chan struct{})
	go func() {
		s.inFlight.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("waiting for runs to exit: %w", ctx.Err())
	}
}
