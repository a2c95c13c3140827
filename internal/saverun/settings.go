package saverun

import (
	"context"
	"fmt"
	"runonsave/internal/store"
	"runonsave/pkg/logger"
)

// EnabledKey is the store key of the enabled flag
const EnabledKey = "isEnabled"

// OutputSink is the append-only, user-visible log
type OutputSink interface {
	Append(p []byte)
	AppendLine(line string)
}

// Settings is the persisted enabled flag
type Settings struct {
	store  store.Store
	output OutputSink
	logger *logger.Logger
}

func NewSettings(st store.Store, output OutputSink, log *logger.Logger) *Settings {
	if log == nil {
		log = logger.NewDiscardLogger()
	}
	return &Settings{store: st, output: output, logger: log}
}

// Enabled returns the last value set, or true. A store failure is logged and
// reads as the default.
func (s *Settings) Enabled(ctx context.Context) bool {
	v, err := store.GetBool(ctx, s.store, EnabledKey, true)
	if err != nil {
		s.logger.WithError(err).Warn("Failed to read enabled flag, assuming enabled")
		return true
	}
	return v
}

// SetEnabled persists v and writes the new state to the output
func (s *Settings) SetEnabled(ctx context.Context, v bool) error {
	if err := store.SetBool(ctx, s.store, EnabledKey, v); err != nil {
		return fmt.Errorf("failed to persist enabled flag: %w", err)
	}
	s.Announce(ctx)
	return nil
}

// Announce writes the current state line
func (s *Settings) Announce(ctx context.Context) {
	s.output.AppendLine(StateLine(s.Enabled(ctx)))
}

// StateLine renders the enabled flag the way it is shown to the user
func StateLine(enabled bool) string {
	if enabled {
		return "Run On Save enabled."
	}
	return "Run On Save disabled."
}
