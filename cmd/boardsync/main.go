// boardsync is the task-board sync client: a local cache, an optimistic
// mutation engine, and a realtime chat/board channel in front of the
// teamboard backend.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/teamboard/boardsync/internal/cache"
	"github.com/teamboard/boardsync/internal/config"
	"github.com/teamboard/boardsync/internal/gateway"
	"github.com/teamboard/boardsync/internal/logx"
	"github.com/teamboard/boardsync/internal/ui"
)

var (
	flagConfig  string
	flagNoColor bool
	flagOutput  string
)

var rootCmd = &cobra.Command{
	Use:   "boardsync",
	Short: "Task board sync client",
	Long: `boardsync keeps a local copy of your team's task boards in sync with
the server: cached reads, optimistic writes with rollback, realtime chat,
and an offline SQLite mirror for when the network is gone.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if flagNoColor {
			ui.DisableColor()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagConfig, "config", "", "Config file (default: config.yaml in the user config dir)")
	rootCmd.PersistentFlags().BoolVar(&flagNoColor, "no-color", false, "Disable styled output")
	rootCmd.PersistentFlags().StringVarP(&flagOutput, "output", "o", "text", "Output format: text, json, or yaml")

	rootCmd.AddGroup(
		&cobra.Group{ID: "session", Title: "Session Commands:"},
		&cobra.Group{ID: "board", Title: "Board Commands:"},
		&cobra.Group{ID: "chat", Title: "Chat Commands:"},
		&cobra.Group{ID: "advanced", Title: "Advanced Commands:"},
	)
}

// loadConfig reads the effective configuration, honoring --config and the
// --no-color flag.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(flagConfig)
	if err != nil {
		return nil, err
	}
	if cfg.NoColor {
		ui.DisableColor()
	}
	return cfg, nil
}

// newGateway builds a client against the configured backend. The logout hook
// just reports; the session cookies live server-side.
func newGateway(cfg *config.Config) (*gateway.Client, error) {
	return gateway.New(gateway.Config{
		BaseURL: cfg.ServerURL,
		Timeout: cfg.RequestTimeout,
		OnLogout: func() {
			fmt.Fprintf(os.Stderr, "%s Session expired, please log in again\n", ui.RenderWarn("⚠"))
		},
		Logger: logx.New("[gateway] "),
	})
}

// ensureSession logs in with configured credentials. Cookies live in the
// process, so every command opens its own session.
func ensureSession(cmd *cobra.Command, cfg *config.Config, client *gateway.Client) error {
	if cfg.Email == "" || cfg.Password == "" {
		return fmt.Errorf("no credentials configured; set email/password in the config file or BOARDSYNC_EMAIL / BOARDSYNC_PASSWORD")
	}
	if err := client.Login(cmd.Context(), cfg.Email, cfg.Password); err != nil {
		return fmt.Errorf("login failed: %w", err)
	}
	return nil
}

// newBoundStore builds a cache store with the gateway registered as its
// fetchers.
func newBoundStore(client *gateway.Client) *cache.Store {
	store := cache.New(logx.New("[cache] "))
	client.BindStore(store)
	return store
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "%s %v\n", ui.RenderFail("✗"), err)
		os.Exit(1)
	}
}
