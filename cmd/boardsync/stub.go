package main

import (
	"crypto/rand"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/teamboard/boardsync/internal/logx"
	"github.com/teamboard/boardsync/internal/stubserver"
	"github.com/teamboard/boardsync/internal/ui"
)

var stubCmd = &cobra.Command{
	Use:     "stub",
	GroupID: "advanced",
	Short:   "Run a local in-memory backend",
	Long: `Run the in-memory backend on a local port. Any email logs in with any
password; --seed creates a demo project owned by that email so the board and
chat commands have something to work with. Data is lost on exit.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		addr, _ := cmd.Flags().GetString("addr")
		seedEmail, _ := cmd.Flags().GetString("seed")

		secret := make([]byte, 32)
		if _, err := rand.Read(secret); err != nil {
			return fmt.Errorf("failed to generate session secret: %w", err)
		}

		server, err := stubserver.New(stubserver.Config{
			Secret: secret,
			Logger: logx.New("[stub] "),
		})
		if err != nil {
			return err
		}
		defer server.Close()

		if seedEmail != "" {
			project, sprint, columns := server.Seed(seedEmail, "Demo Project")
			fmt.Printf("%s seeded project %s\n", ui.RenderPass("✓"), ui.RenderAccent(project.ID))
			fmt.Printf("  sprint  %s\n", sprint.ID)
			for _, col := range columns {
				fmt.Printf("  column  %-14s %s\n", col.Title, ui.RenderDim(col.ID))
			}
		}

		httpServer := &http.Server{
			Addr:              addr,
			Handler:           server.Handler(),
			ReadHeaderTimeout: 5 * time.Second,
		}

		errs := make(chan error, 1)
		go func() { errs <- httpServer.ListenAndServe() }()

		fmt.Printf("%s backend listening on %s\n", ui.RenderPass("✓"), ui.RenderAccent(addr))

		stop := make(chan os.Signal, 1)
		signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
		defer signal.Stop(stop)

		select {
		case <-stop:
			return httpServer.Close()
		case err := <-errs:
			return err
		}
	},
}

func init() {
	stubCmd.Flags().String("addr", "127.0.0.1:5000", "Listen address")
	stubCmd.Flags().String("seed", "", "Seed a demo project owned by this email")
	rootCmd.AddCommand(stubCmd)
}
