package settings

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"runonsave/internal/config"
	"runonsave/internal/handlers"
	"runonsave/internal/saverun"
	"runonsave/internal/store"
	"runonsave/pkg/logger"
	"time"

	"github.com/spf13/cobra"
)

const apiTimeout = 2 * time.Second

// errNoDaemon means no control API answered at the configured address
var errNoDaemon = errors.New("no running daemon")

// NewEnableCommand creates the enable command
func NewEnableCommand(global *config.GlobalFlags) *cobra.Command {
	return newToggleCommand(global, "enable", "Enable running the command on save", true)
}

// NewDisableCommand creates the disable command
func NewDisableCommand(global *config.GlobalFlags) *cobra.Command {
	return newToggleCommand(global, "disable", "Disable running the command on save", false)
}

func newToggleCommand(global *config.GlobalFlags, use, short string, enabled bool) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Long: short + `.
A running daemon is updated through its control API. Otherwise the
settings store is written directly, and a daemon without the API sees the
change on its next save.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadForFlags(global)
			if err != nil {
				return err
			}

			if cfg.API.Enabled {
				got, err := postToggle(cmd.Context(), cfg.API.Addr, use)
				if err == nil {
					fmt.Fprintln(cmd.OutOrStdout(), saverun.StateLine(got))
					return nil
				}
				if !errors.Is(err, errNoDaemon) {
					return err
				}
				logger.Default().WithError(err).Debug("Falling back to the settings store")
			}

			return withSettings(cfg, cmd, func(s *saverun.Settings) error {
				return s.SetEnabled(cmd.Context(), enabled)
			})
		},
	}
}

// NewStatusCommand creates the status command
func NewStatusCommand(global *config.GlobalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show whether running the command on save is enabled",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadForFlags(global)
			if err != nil {
				return err
			}

			if cfg.API.Enabled {
				st, err := getStatus(cmd.Context(), cfg.API.Addr)
				if err == nil {
					printStatus(cmd, st)
					return nil
				}
				if !errors.Is(err, errNoDaemon) {
					return err
				}
			}

			return withSettings(cfg, cmd, func(s *saverun.Settings) error {
				s.Announce(cmd.Context())
				return nil
			})
		},
	}
}

// withSettings opens the configured store and writes state lines to the
// command's stdout
func withSettings(cfg *config.Config, cmd *cobra.Command, fn func(*saverun.Settings) error) error {
	st, err := store.Open(cfg.StoreOptions())
	if err != nil {
		return fmt.Errorf("failed to open settings store: %w", err)
	}
	defer st.Close()

	output := logger.NewOutputChannel("runonsave", cmd.OutOrStdout())
	return fn(saverun.NewSettings(st, output, logger.Default()))
}

func printStatus(cmd *cobra.Command, st handlers.StatusResponse) {
	out := cmd.OutOrStdout()
	fmt.Fprintln(out, saverun.StateLine(st.Enabled))
	for _, run := range st.Runs {
		fmt.Fprintf(out, "[%d] %s (%s, since %s)\n", run.PID, run.Key, run.Command, run.StartedAt.Format(time.RFC3339))
	}
}

func postToggle(ctx context.Context, addr, action string) (bool, error) {
	var resp handlers.SettingsResponse
	if err := callAPI(ctx, http.MethodPost, addr, "/api/commands/"+action, &resp); err != nil {
		return false, err
	}
	return resp.Enabled, nil
}

func getStatus(ctx context.Context, addr string) (handlers.StatusResponse, error) {
	var resp handlers.StatusResponse
	err := callAPI(ctx, http.MethodGet, addr, "/api/status", &resp)
	return resp, err
}

func callAPI(ctx context.Context, method, addr, path string, out interface{}) error {
	ctx, cancel := context.WithTimeout(ctx, apiTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, method, "http://"+addr+path, nil)
	if err != nil {
		return err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", errNoDaemon, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var apiErr handlers.ErrorResponse
		if json.NewDecoder(resp.Body).Decode(&apiErr) == nil && apiErr.Error != "" {
			return fmt.Errorf("daemon returned %d: %s", resp.StatusCode, apiErr.Error)
		}
		return fmt.Errorf("daemon returned %d", resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
