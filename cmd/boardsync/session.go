package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/teamboard/boardsync/internal/ui"
)

var loginCmd = &cobra.Command{
	Use:     "login [email]",
	GroupID: "session",
	Short:   "Open a session with the backend",
	Args:    cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		client, err := newGateway(cfg)
		if err != nil {
			return err
		}

		var email string
		if len(args) == 1 {
			email = args[0]
		}
		password, _ := cmd.Flags().GetString("password")

		if email == "" || password == "" {
			if !term.IsTerminal(int(os.Stdin.Fd())) {
				return fmt.Errorf("email and --password are required in non-interactive mode")
			}
			form := huh.NewForm(huh.NewGroup(
				huh.NewInput().
					Title("Email").
					Value(&email).
					Validate(func(s string) error {
						if !strings.Contains(s, "@") {
							return fmt.Errorf("not an email address")
						}
						return nil
					}),
				huh.NewInput().
					Title("Password").
					EchoMode(huh.EchoModePassword).
					Value(&password),
			))
			if err := form.Run(); err != nil {
				return err
			}
		}

		if err := client.Login(cmd.Context(), email, password); err != nil {
			return fmt.Errorf("login failed: %w", err)
		}
		if err := client.CheckServerVersion(cmd.Context()); err != nil {
			fmt.Printf("%s %v\n", ui.RenderWarn("⚠"), err)
		}
		fmt.Printf("%s Logged in as %s\n", ui.RenderPass("✓"), email)
		return nil
	},
}

var logoutCmd = &cobra.Command{
	Use:     "logout",
	GroupID: "session",
	Short:   "Close the current session",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		client, err := newGateway(cfg)
		if err != nil {
			return err
		}
		if err := client.Logout(cmd.Context()); err != nil {
			return fmt.Errorf("logout failed: %w", err)
		}
		fmt.Printf("%s Logged out\n", ui.RenderPass("✓"))
		return nil
	},
}

func init() {
	loginCmd.Flags().String("password", "", "Password (prompted when omitted)")
	rootCmd.AddCommand(loginCmd)
	rootCmd.AddCommand(logoutCmd)
}
