package main

import (
	"context"
	"fmt"
	"time"

	"github.com/charmbracelet/huh"
	"github.com/olebedev/when"
	"github.com/olebedev/when/rules/common"
	"github.com/olebedev/when/rules/en"
	"github.com/spf13/cobra"

	"github.com/teamboard/boardsync/internal/board"
	"github.com/teamboard/boardsync/internal/cache"
	"github.com/teamboard/boardsync/internal/config"
	"github.com/teamboard/boardsync/internal/gateway"
	"github.com/teamboard/boardsync/internal/logx"
	"github.com/teamboard/boardsync/internal/mirror"
	"github.com/teamboard/boardsync/internal/optimistic"
	"github.com/teamboard/boardsync/internal/schema"
	"github.com/teamboard/boardsync/internal/ui"
)

var boardCmd = &cobra.Command{
	Use:     "board",
	GroupID: "board",
	Short:   "Show sprint boards",
}

var boardShowCmd = &cobra.Command{
	Use:   "show <sprint-id>",
	Short: "Render a sprint's board",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		sprintID := args[0]

		offline, _ := cmd.Flags().GetBool("offline")
		if offline {
			return showOfflineBoard(cmd.Context(), cfg, sprintID)
		}

		client, err := newGateway(cfg)
		if err != nil {
			return err
		}
		if err := ensureSession(cmd, cfg, client); err != nil {
			return err
		}

		columns, err := client.ListColumns(cmd.Context(), sprintID)
		if err != nil {
			return err
		}
		tasks, err := client.ListTasks(cmd.Context(), sprintID)
		if err != nil {
			return err
		}

		if structured() {
			return printOut(map[string]any{"columns": columns, "tasks": tasks})
		}
		fmt.Println(ui.RenderBoard(columns, tasks))
		return nil
	},
}

// showOfflineBoard renders the last mirrored board without touching the
// network.
func showOfflineBoard(ctx context.Context, cfg *config.Config, sprintID string) error {
	if cfg.MirrorPath == "" {
		return fmt.Errorf("offline mode needs mirror_path configured")
	}
	m, err := mirror.Open(cfg.MirrorPath, logx.New("[mirror] "))
	if err != nil {
		return err
	}
	defer m.Close()

	columns, err := m.ColumnsForSprint(ctx, sprintID)
	if err != nil {
		return err
	}
	tasks, err := m.TasksForSprint(ctx, sprintID)
	if err != nil {
		return err
	}
	if structured() {
		return printOut(map[string]any{"columns": columns, "tasks": tasks})
	}
	fmt.Printf("%s offline copy\n\n", ui.RenderWarn("⚠"))
	fmt.Println(ui.RenderBoard(columns, tasks))
	return nil
}

var taskCmd = &cobra.Command{
	Use:     "task",
	GroupID: "board",
	Short:   "Create and move tasks",
}

// cliNotifier reports mutation outcomes on the terminal.
type cliNotifier struct{}

func (cliNotifier) Success(msg string) { fmt.Printf("%s %s\n", ui.RenderPass("✓"), msg) }
func (cliNotifier) Error(msg string)   { fmt.Printf("%s %s\n", ui.RenderFail("✗"), msg) }

// boardContext is everything a board mutation command needs: a session, a
// warm cache for the sprint, and the permission-checked service.
type boardContext struct {
	cfg     *config.Config
	client  *gateway.Client
	store   *cache.Store
	service *board.Service
}

func newBoardContext(cmd *cobra.Command, sprintID string) (*boardContext, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	client, err := newGateway(cfg)
	if err != nil {
		return nil, err
	}
	if err := ensureSession(cmd, cfg, client); err != nil {
		return nil, err
	}

	ctx := cmd.Context()
	project, err := findProjectForSprint(ctx, client, sprintID)
	if err != nil {
		return nil, err
	}
	member := memberByEmail(project, cfg.Email)
	if member == nil {
		return nil, fmt.Errorf("you are not a member of %s", project.Name)
	}

	store := newBoundStore(client)

	// Warm the board so optimistic patches have a base to work from.
	columns, err := client.ListColumns(ctx, sprintID)
	if err != nil {
		store.Close()
		return nil, err
	}
	tasks, err := client.ListTasks(ctx, sprintID)
	if err != nil {
		store.Close()
		return nil, err
	}
	store.Write(cache.ColumnsKey(sprintID), columns)
	store.Write(cache.TasksKey(sprintID), tasks)

	coord := optimistic.New(store, cliNotifier{}, logx.New("[mutate] "))
	svc := board.NewService(coord, client, project, member.UserID, logx.New("[board] "))
	return &boardContext{cfg: cfg, client: client, store: store, service: svc}, nil
}

func (b *boardContext) close() { b.store.Close() }

func findProjectForSprint(ctx context.Context, client *gateway.Client, sprintID string) (*schema.Project, error) {
	projects, err := client.ListProjects(ctx)
	if err != nil {
		return nil, err
	}
	for i := range projects {
		sprints, err := client.ListSprints(ctx, projects[i].ID)
		if err != nil {
			return nil, err
		}
		for _, s := range sprints {
			if s.ID == sprintID {
				return client.GetProject(ctx, projects[i].ID)
			}
		}
	}
	return nil, fmt.Errorf("sprint %s not found in any of your projects", sprintID)
}

func memberByEmail(project *schema.Project, email string) *schema.Member {
	for i := range project.Members {
		if project.Members[i].Email == email {
			return &project.Members[i]
		}
	}
	return nil
}

// parseDueDate accepts natural language like "next friday" or "in 2 weeks".
func parseDueDate(text string) (*time.Time, error) {
	if text == "" {
		return nil, nil
	}
	w := when.New(nil)
	w.Add(en.All...)
	w.Add(common.All...)

	result, err := w.Parse(text, time.Now())
	if err != nil {
		return nil, fmt.Errorf("failed to parse due date: %w", err)
	}
	if result == nil {
		return nil, fmt.Errorf("could not understand due date %q", text)
	}
	return &result.Time, nil
}

var taskCreateCmd = &cobra.Command{
	Use:   "create <sprint-id>",
	Short: "Create a task on a sprint's board",
	Long: `Create a task. With --title the task is created directly; without it an
interactive form opens. The due date accepts natural language, e.g.
"tomorrow" or "next friday".`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		bc, err := newBoardContext(cmd, args[0])
		if err != nil {
			return err
		}
		defer bc.close()

		title, _ := cmd.Flags().GetString("title")
		description, _ := cmd.Flags().GetString("description")
		priority, _ := cmd.Flags().GetString("priority")
		due, _ := cmd.Flags().GetString("due")
		points, _ := cmd.Flags().GetInt("points")
		columnID, _ := cmd.Flags().GetString("column")

		if title == "" {
			form := huh.NewForm(huh.NewGroup(
				huh.NewInput().Title("Title").Value(&title).Validate(func(s string) error {
					if s == "" {
						return fmt.Errorf("a title is required")
					}
					return nil
				}),
				huh.NewText().Title("Description").Value(&description),
				huh.NewSelect[string]().
					Title("Priority").
					Options(
						huh.NewOption("Low", string(schema.PriorityLow)),
						huh.NewOption("Medium", string(schema.PriorityMedium)),
						huh.NewOption("High", string(schema.PriorityHigh)),
						huh.NewOption("Critical", string(schema.PriorityCritical)),
					).
					Value(&priority),
				huh.NewInput().Title("Due (e.g. \"next friday\", empty for none)").Value(&due),
			))
			if err := form.Run(); err != nil {
				return err
			}
		}

		dueAt, err := parseDueDate(due)
		if err != nil {
			return err
		}

		draft := gateway.TaskDraft{
			SprintID:      args[0],
			BoardColumnID: columnID,
			Title:         title,
			Description:   description,
			Priority:      schema.Priority(priority),
			StoryPoints:   points,
		}
		if dueAt != nil {
			draft.DueDate = dueAt.Format(time.RFC3339)
		}
		return bc.service.CreateTask(cmd.Context(), draft)
	},
}

var taskMoveCmd = &cobra.Command{
	Use:   "move <sprint-id> <task-id> <column-id>",
	Short: "Move a task to another column",
	Long: `Move a task to another column. The change shows up immediately and is
rolled back if the server rejects it. Moving a task onto the column it is
already in does nothing.`,
	Args: cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		bc, err := newBoardContext(cmd, args[0])
		if err != nil {
			return err
		}
		defer bc.close()
		return bc.service.MoveTask(cmd.Context(), args[0], args[1], args[2])
	},
}

var taskEditCmd = &cobra.Command{
	Use:   "edit <sprint-id> <task-id>",
	Short: "Update task fields",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		bc, err := newBoardContext(cmd, args[0])
		if err != nil {
			return err
		}
		defer bc.close()

		patch := make(map[string]any)
		if cmd.Flags().Changed("title") {
			v, _ := cmd.Flags().GetString("title")
			patch["title"] = v
		}
		if cmd.Flags().Changed("description") {
			v, _ := cmd.Flags().GetString("description")
			patch["description"] = v
		}
		if cmd.Flags().Changed("priority") {
			v, _ := cmd.Flags().GetString("priority")
			patch["priority"] = v
		}
		if cmd.Flags().Changed("points") {
			v, _ := cmd.Flags().GetInt("points")
			patch["storyPoints"] = v
		}
		if cmd.Flags().Changed("due") {
			v, _ := cmd.Flags().GetString("due")
			dueAt, err := parseDueDate(v)
			if err != nil {
				return err
			}
			if dueAt != nil {
				patch["dueDate"] = dueAt.Format(time.RFC3339)
			}
		}
		if len(patch) == 0 {
			return fmt.Errorf("nothing to change; pass --title, --priority, --points, --due or --description")
		}
		return bc.service.UpdateTask(cmd.Context(), args[0], args[1], patch)
	},
}

var taskDeleteCmd = &cobra.Command{
	Use:   "delete <sprint-id> <task-id>",
	Short: "Delete a task",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		bc, err := newBoardContext(cmd, args[0])
		if err != nil {
			return err
		}
		defer bc.close()
		return bc.service.DeleteTask(cmd.Context(), args[0], args[1])
	},
}

func init() {
	boardShowCmd.Flags().Bool("offline", false, "Read from the local mirror instead of the server")
	boardCmd.AddCommand(boardShowCmd)
	rootCmd.AddCommand(boardCmd)

	taskCreateCmd.Flags().String("title", "", "Task title (interactive form when omitted)")
	taskCreateCmd.Flags().String("description", "", "Task description")
	taskCreateCmd.Flags().String("priority", string(schema.PriorityMedium), "Priority: low, medium, high, critical")
	taskCreateCmd.Flags().String("due", "", "Due date, natural language allowed")
	taskCreateCmd.Flags().Int("points", 0, "Story points")
	taskCreateCmd.Flags().String("column", "", "Target column (default: first column)")

	taskEditCmd.Flags().String("title", "", "New title")
	taskEditCmd.Flags().String("description", "", "New description")
	taskEditCmd.Flags().String("priority", "", "New priority")
	taskEditCmd.Flags().Int("points", 0, "New story points")
	taskEditCmd.Flags().String("due", "", "New due date, natural language allowed")

	taskCmd.AddCommand(taskCreateCmd)
	taskCmd.AddCommand(taskMoveCmd)
	taskCmd.AddCommand(taskEditCmd)
	taskCmd.AddCommand(taskDeleteCmd)
	rootCmd.AddCommand(taskCmd)
}
