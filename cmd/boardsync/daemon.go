package main

import (
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/teamboard/boardsync/internal/config"
	"github.com/teamboard/boardsync/internal/daemon"
	"github.com/teamboard/boardsync/internal/logx"
	"github.com/teamboard/boardsync/internal/mirror"
	"github.com/teamboard/boardsync/internal/realtime"
	"github.com/teamboard/boardsync/internal/ui"
)

var daemonCmd = &cobra.Command{
	Use:     "daemon",
	GroupID: "advanced",
	Short:   "Run the background sync daemon",
	Long: `Run the sync daemon in the foreground. It keeps stale cache entries
revalidated, folds realtime events into the cache, mirrors board state into
the local SQLite file when mirror_path is set, and hot-reloads the config
file when it changes. Stop it with Ctrl-C.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		logger := logx.New("[daemon] ")
		if cfg.LogFile != "" {
			rotating, closer := logx.NewRotating("[daemon] ", cfg.LogFile)
			defer closer.Close()
			logger = rotating
		}

		client, err := newGateway(cfg)
		if err != nil {
			return err
		}
		if err := ensureSession(cmd, cfg, client); err != nil {
			return err
		}

		store := newBoundStore(client)
		defer store.Close()
		reconciler := realtime.NewReconciler(store, logger)

		socket, err := realtime.Dial(cmd.Context(), realtime.DialConfig{
			URL:        cfg.SocketURL,
			Reconciler: reconciler,
			Logger:     logger,
			OnDisconnect: func(err error) {
				if err != nil {
					logger.Printf("realtime connection lost: %v", err)
				}
			},
		})
		if err != nil {
			return err
		}

		var m *mirror.Mirror
		if cfg.MirrorPath != "" {
			m, err = mirror.Open(cfg.MirrorPath, logger)
			if err != nil {
				socket.Close()
				return err
			}
			defer m.Close()
		}

		if projectID, _ := cmd.Flags().GetString("project"); projectID != "" {
			if err := socket.JoinRoom(cmd.Context(), projectID); err != nil {
				socket.Close()
				return err
			}
		}

		options := daemon.DefaultOptions()
		options.RefreshInterval = cfg.RefreshInterval
		options.ConfigPath = daemonConfigPath()
		options.Logger = logger

		d, err := daemon.New(store, client, socket, m, options)
		if err != nil {
			socket.Close()
			return err
		}
		d.OnReload(func(updated *config.Config) {
			logger.Printf("config reloaded: refresh every %s", updated.RefreshInterval)
		})

		stop := make(chan os.Signal, 1)
		signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
		defer signal.Stop(stop)

		errs := make(chan error, 1)
		go func() { errs <- d.Start(cmd.Context()) }()

		fmt.Printf("%s daemon running, Ctrl-C to stop\n", ui.RenderPass("✓"))
		select {
		case <-stop:
			return d.Stop()
		case err := <-errs:
			return err
		}
	},
}

// daemonConfigPath resolves the file the daemon watches for hot reload.
func daemonConfigPath() string {
	if flagConfig != "" {
		return flagConfig
	}
	return filepath.Join(config.DefaultDir(), "config.yaml")
}

func init() {
	daemonCmd.Flags().String("project", "", "Join this project's room on startup")
	rootCmd.AddCommand(daemonCmd)
}
