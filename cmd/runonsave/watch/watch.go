package watch

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"runonsave/api/routes"
	"runonsave/internal/config"
	"runonsave/internal/handlers"
	"runonsave/internal/notification"
	"runonsave/internal/saverun"
	"runonsave/internal/status"
	"runonsave/internal/store"
	"runonsave/internal/watcher"
	"runonsave/internal/workspace"
	"runonsave/pkg/logger"
	"runonsave/pkg/runner"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
)

const (
	outputChannelName = "rsc rsync"
	shutdownTimeout   = 10 * time.Second
)

// App wires the save runner to its event sources
type App struct {
	config        *config.Config
	logger        *logger.Logger
	output        *logger.OutputChannel
	store         store.Store
	discordClient *notification.NotificationClient
	workspace     *workspace.Workspace
	statusBar     *status.Bar
	settings      *saverun.Settings
	runner        *saverun.SaveRunner
}

// NewApp creates a new application instance
func NewApp(cfg *config.Config) (*App, error) {
	appLogger := logger.NewLogger(logger.LevelFor(cfg.Verbose))

	ws, err := workspace.New(cfg.Folders...)
	if err != nil {
		return nil, err
	}

	output, err := logger.OpenOutputChannel(outputChannelName, cfg.Output.File)
	if err != nil {
		return nil, err
	}

	st, err := store.Open(cfg.StoreOptions())
	if err != nil {
		output.Close()
		return nil, fmt.Errorf("failed to open settings store: %w", err)
	}

	app := &App{
		config:    cfg,
		logger:    appLogger,
		output:    output,
		store:     st,
		workspace: ws,
		statusBar: status.NewBar(),
	}

	if os.Getenv("DISCORD_TOKEN") != "" {
		client, err := notification.NewNotificationClient()
		if err != nil {
			appLogger.WithError(err).Warn("Failed to initialize Discord client")
		} else {
			app.discordClient = client
			appLogger.Info("Discord notifications enabled")
		}
	} else {
		appLogger.Debug("DISCORD_TOKEN not set - Discord notifications disabled")
	}

	app.settings = saverun.NewSettings(st, output, appLogger)

	opts := []saverun.OptFunc{
		saverun.WithSpawner(runner.NewShellSpawner(appLogger)),
		saverun.WithSettings(app.settings),
		saverun.WithWorkspace(ws),
		saverun.WithOutput(output),
		saverun.WithStatusBar(app.statusBar),
		saverun.WithLogger(appLogger),
		saverun.WithShell(cfg.Shell),
		saverun.WithDropStaleOutput(cfg.DropStaleOutput),
	}
	if app.discordClient != nil {
		opts = append(opts, saverun.WithNotifier(app.discordClient))
	}

	app.runner, err = saverun.New(opts...)
	if err != nil {
		app.Close()
		return nil, fmt.Errorf("failed to create save runner: %w", err)
	}

	return app, nil
}

// Close cleans up application resources
func (a *App) Close() error {
	var errs []error
	if a.discordClient != nil {
		if err := a.discordClient.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if err := a.store.Close(); err != nil {
		errs = append(errs, err)
	}
	if err := a.output.Close(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// Run serves save events until ctx is cancelled
func (a *App) Run(ctx context.Context) error {
	watchFiles := a.config.Watch.Enabled && len(a.workspace.Folders()) > 0
	if !watchFiles && !a.config.API.Enabled {
		return fmt.Errorf("nothing to do: enable the file watcher with a folder, or the API")
	}

	a.settings.Announce(ctx)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	errChan := make(chan error, 2)
	running := 0

	if watchFiles {
		w := watcher.New(a.workspace, a.runner, a.config.Watch.Debounce, a.logger)
		w.Ignore(a.ownFiles()...)
		running++
		go func() {
			errChan <- w.Run(ctx)
		}()
	}

	var server *http.Server
	if a.config.API.Enabled {
		server = &http.Server{
			Addr:              a.config.API.Addr,
			Handler:           a.router(),
			ReadHeaderTimeout: 5 * time.Second,
		}
		running++
		go func() {
			a.logger.WithFields(logger.Fields{"addr": server.Addr}).Info("Control API listening")
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errChan <- fmt.Errorf("control API: %w", err)
				return
			}
			errChan <- nil
		}()
	}

	var runErr error
	select {
	case runErr = <-errChan:
		running--
		if runErr != nil {
			a.logger.WithError(runErr).Error("Event source failed")
		}
	case <-ctx.Done():
		a.logger.Info("Application context cancelled, shutting down...")
	}
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	if server != nil {
		if err := server.Shutdown(shutdownCtx); err != nil {
			a.logger.WithError(err).Warn("Control API shutdown failed")
		}
	}
	for ; running > 0; running-- {
		if err := <-errChan; err != nil && runErr == nil {
			runErr = err
		}
	}

	if err := a.runner.Shutdown(shutdownCtx); err != nil {
		a.logger.WithError(err).Warn("Commands still running at shutdown")
	}

	return runErr
}

// ownFiles lists the files the daemon writes, which must not count as saves
func (a *App) ownFiles() []string {
	files := []string{a.config.Output.File}
	switch a.config.Store.Driver {
	case store.DriverFile, store.DriverSQLite:
		files = append(files, a.config.Store.Path)
	}
	return files
}

func (a *App) router() http.Handler {
	if !a.config.Verbose {
		gin.SetMode(gin.ReleaseMode)
	}
	return routes.InitRouter(
		handlers.NewSaveHandler(a.runner, a.workspace, a.settings, a.statusBar, a.logger),
		handlers.NewSettingsHandler(a.settings, a.logger),
	)
}

// NewWatchCommand creates the watch command
func NewWatchCommand(global *config.GlobalFlags) *cobra.Command {
	var (
		addr    string
		noAPI   bool
		noWatch bool
	)

	watchCmd := &cobra.Command{
		Use:   "watch [folders...]",
		Short: "Run the command for every file saved under the given folders",
		Long: `Watch the workspace folders and run the command for every saved file.
Editor plugins can also report saves through the control API.
With no folders given, the configured folders or the current directory are used.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceUsage = true

			cfg, err := config.LoadForFlags(global)
			if err != nil {
				return err
			}
			cfg.Folders = append(cfg.Folders, args...)
			if len(cfg.Folders) == 0 {
				wd, err := os.Getwd()
				if err != nil {
					return fmt.Errorf("failed to determine working directory: %w", err)
				}
				cfg.Folders = []string{wd}
			}
			if cmd.Flags().Changed("addr") {
				cfg.API.Addr = addr
			}
			if noAPI {
				cfg.API.Enabled = false
			}
			if noWatch {
				cfg.Watch.Enabled = false
			}

			app, err := NewApp(cfg)
			if err != nil {
				return fmt.Errorf("failed to initialize application: %w", err)
			}
			defer func() {
				if closeErr := app.Close(); closeErr != nil {
					app.logger.WithError(closeErr).Error("Error closing application")
				}
			}()

			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()

			sigChan := make(chan os.Signal, 1)
			signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
			defer signal.Stop(sigChan)
			go func() {
				select {
				case sig := <-sigChan:
					app.logger.WithFields(logger.Fields{
						"signal": sig.String(),
					}).Info("Received shutdown signal")
					cancel()
				case <-ctx.Done():
				}
			}()

			return app.Run(ctx)
		},
	}

	watchCmd.Flags().StringVar(&addr, "addr", config.DefaultAPIAddr, "Control API listen address")
	watchCmd.Flags().BoolVar(&noAPI, "no-api", false, "Disable the control API")
	watchCmd.Flags().BoolVar(&noWatch, "no-watch", false, "Disable the file watcher; saves come only from the API")

	return watchCmd
}
