package main

import (
	"fmt"
	"path/filepath"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"github.com/teamboard/boardsync/internal/config"
	"github.com/teamboard/boardsync/internal/recent"
	"github.com/teamboard/boardsync/internal/ui"
)

var projectCmd = &cobra.Command{
	Use:     "project",
	GroupID: "board",
	Short:   "Inspect and manage projects",
}

var projectListCmd = &cobra.Command{
	Use:   "list",
	Short: "List your projects",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		client, err := newGateway(cfg)
		if err != nil {
			return err
		}
		if err := ensureSession(cmd, cfg, client); err != nil {
			return err
		}

		projects, err := client.ListProjects(cmd.Context())
		if err != nil {
			return err
		}
		if structured() {
			return printOut(projects)
		}
		if len(projects) == 0 {
			fmt.Println(ui.RenderDim("(no projects)"))
			return nil
		}
		for _, p := range projects {
			fmt.Printf("%s  %s %s\n", p.ID, ui.RenderBold(p.Name), ui.RenderDim(p.Description))
		}
		return nil
	},
}

var projectShowCmd = &cobra.Command{
	Use:   "show <project-id>",
	Short: "Show a project and its members",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		client, err := newGateway(cfg)
		if err != nil {
			return err
		}
		if err := ensureSession(cmd, cfg, client); err != nil {
			return err
		}

		project, err := client.GetProject(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		if structured() {
			return printOut(project)
		}

		fmt.Printf("%s %s\n", ui.RenderBold(project.Name), ui.RenderDim(project.ID))
		if project.Description != "" {
			fmt.Println(project.Description)
		}
		fmt.Println()
		for _, m := range project.Members {
			marker := ui.RenderPass("●")
			if m.Status != "active" {
				marker = ui.RenderDim("○")
			}
			fmt.Printf("  %s %s %s\n", marker, m.Email, ui.RenderDim(string(m.Role)))
		}

		sprints, err := client.ListSprints(cmd.Context(), project.ID)
		if err != nil {
			return err
		}
		if len(sprints) > 0 {
			fmt.Println()
			for _, s := range sprints {
				fmt.Printf("  %s  %s %s\n", s.ID, s.Name, ui.RenderDim(string(s.Status)))
			}
		}
		return nil
	},
}

var projectInviteCmd = &cobra.Command{
	Use:   "invite <project-id> [email]",
	Short: "Invite a member by email",
	Long: `Invite a member to a project.

Without an email argument an interactive prompt opens, suggesting recently
invited addresses.`,
	Args: cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		client, err := newGateway(cfg)
		if err != nil {
			return err
		}
		if err := ensureSession(cmd, cfg, client); err != nil {
			return err
		}

		emails, err := recent.Load(recentEmailsPath(cfg))
		if err != nil {
			return err
		}

		var email string
		if len(args) == 2 {
			email = args[1]
		} else {
			input := huh.NewInput().
				Title("Invite email").
				Suggestions(emails.All()).
				Value(&email)
			if err := huh.NewForm(huh.NewGroup(input)).Run(); err != nil {
				return err
			}
		}
		if email == "" {
			return fmt.Errorf("an email address is required")
		}

		if err := client.Invite(cmd.Context(), args[0], email); err != nil {
			return err
		}
		emails.Add(email)
		if err := emails.Save(); err != nil {
			fmt.Printf("%s could not save recent emails: %v\n", ui.RenderWarn("⚠"), err)
		}
		fmt.Printf("%s Invitation sent to %s\n", ui.RenderPass("✓"), email)
		return nil
	},
}

var projectAcceptCmd = &cobra.Command{
	Use:   "accept <token>",
	Short: "Accept a project invitation",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		client, err := newGateway(cfg)
		if err != nil {
			return err
		}
		if err := ensureSession(cmd, cfg, client); err != nil {
			return err
		}
		if err := client.AcceptInvitation(cmd.Context(), args[0]); err != nil {
			return err
		}
		fmt.Printf("%s Invitation accepted\n", ui.RenderPass("✓"))
		return nil
	},
}

func recentEmailsPath(cfg *config.Config) string {
	if cfg.RecentEmailsPath != "" {
		return cfg.RecentEmailsPath
	}
	return filepath.Join(config.DefaultDir(), "recent-emails.json")
}

func init() {
	projectCmd.AddCommand(projectListCmd)
	projectCmd.AddCommand(projectShowCmd)
	projectCmd.AddCommand(projectInviteCmd)
	projectCmd.AddCommand(projectAcceptCmd)
	rootCmd.AddCommand(projectCmd)
}
