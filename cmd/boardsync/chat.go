package main

import (
	"fmt"
	"net/url"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/teamboard/boardsync/internal/cache"
	"github.com/teamboard/boardsync/internal/config"
	"github.com/teamboard/boardsync/internal/gateway"
	"github.com/teamboard/boardsync/internal/logx"
	"github.com/teamboard/boardsync/internal/realtime"
	"github.com/teamboard/boardsync/internal/schema"
	"github.com/teamboard/boardsync/internal/ui"
)

var chatCmd = &cobra.Command{
	Use:     "chat",
	GroupID: "chat",
	Short:   "Project chat rooms",
}

var chatHistoryCmd = &cobra.Command{
	Use:   "history <project-id>",
	Short: "Print a room's message history",
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

		messages, err := client.ChatHistory(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		if structured() {
			return printOut(messages)
		}
		for _, m := range messages {
			fmt.Println(formatMessage(m))
		}
		return nil
	},
}

var chatSendCmd = &cobra.Command{
	Use:   "send <project-id> <text...>",
	Short: "Send a message to a room",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		projectID := args[0]
		text := strings.Join(args[1:], " ")

		socket, _, cleanup, err := dialRoom(cmd, projectID)
		if err != nil {
			return err
		}
		defer cleanup()

		if err := socket.SendMessage(cmd.Context(), projectID, text); err != nil {
			return err
		}
		// Give the server a beat to persist before the connection drops.
		time.Sleep(200 * time.Millisecond)
		fmt.Printf("%s sent\n", ui.RenderPass("✓"))
		return nil
	},
}

var chatWatchCmd = &cobra.Command{
	Use:   "watch <project-id>",
	Short: "Tail a room live",
	Long: `Join a room and print messages as they arrive, including your own echoes
and typing indicators. Ctrl-C leaves the room and exits.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		projectID := args[0]

		_, room, cleanup, err := dialRoom(cmd, projectID)
		if err != nil {
			return err
		}
		defer cleanup()

		// Seed history so the watcher starts with full context and the
		// reconciler has a base list to append to.
		history, err := room.client.ChatHistory(cmd.Context(), projectID)
		if err != nil {
			return err
		}
		room.store.Write(cache.MessagesKey(projectID), history)
		for _, m := range history {
			fmt.Println(formatMessage(m))
		}
		printed := len(history)

		events, unsubscribe := room.store.Subscribe()
		defer unsubscribe()

		stop := make(chan os.Signal, 1)
		signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
		defer signal.Stop(stop)

		ticker := time.NewTicker(time.Second)
		defer ticker.Stop()
		lastTyping := ""

		key := cache.MessagesKey(projectID)
		for {
			select {
			case <-stop:
				fmt.Println()
				return nil
			case <-cmd.Context().Done():
				return nil
			case ev, open := <-events:
				if !open {
					return nil
				}
				if ev.Key != key || ev.State != cache.StateFresh {
					continue
				}
				messages, _ := cache.ReadAs[[]schema.Message](room.store, key)
				for ; printed < len(messages); printed++ {
					fmt.Println(formatMessage(messages[printed]))
				}
			case <-ticker.C:
				line := typingLine(room.reconciler.TypingUsers(projectID))
				if line != lastTyping {
					if line != "" {
						fmt.Println(ui.RenderDim(line))
					}
					lastTyping = line
				}
			}
		}
	},
}

// chatRoom bundles the session pieces a connected room needs.
type chatRoom struct {
	client     *gateway.Client
	store      *cache.Store
	reconciler *realtime.Reconciler
}

// dialRoom logs in, connects the socket with the member's identity, and
// joins the project's room. The returned cleanup leaves the room and tears
// everything down.
func dialRoom(cmd *cobra.Command, projectID string) (*realtime.Client, *chatRoom, func(), error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, nil, err
	}
	client, err := newGateway(cfg)
	if err != nil {
		return nil, nil, nil, err
	}
	if err := ensureSession(cmd, cfg, client); err != nil {
		return nil, nil, nil, err
	}

	project, err := client.GetProject(cmd.Context(), projectID)
	if err != nil {
		return nil, nil, nil, err
	}
	member := memberByEmail(project, cfg.Email)
	if member == nil {
		return nil, nil, nil, fmt.Errorf("you are not a member of %s", project.Name)
	}

	store := newBoundStore(client)
	reconciler := realtime.NewReconciler(store, logx.New("[realtime] "))

	socket, err := realtime.Dial(cmd.Context(), realtime.DialConfig{
		URL:        socketURLFor(cfg, member),
		Reconciler: reconciler,
		Logger:     logx.New("[realtime] "),
		OnDisconnect: func(err error) {
			if err != nil {
				fmt.Printf("%s connection lost: %v\n", ui.RenderWarn("⚠"), err)
			}
		},
	})
	if err != nil {
		store.Close()
		return nil, nil, nil, err
	}
	if err := socket.JoinRoom(cmd.Context(), projectID); err != nil {
		socket.Close()
		store.Close()
		return nil, nil, nil, err
	}

	cleanup := func() {
		_ = socket.LeaveRoom(cmd.Context())
		socket.Close()
		store.Close()
	}
	return socket, &chatRoom{client: client, store: store, reconciler: reconciler}, cleanup, nil
}

// socketURLFor attaches the member's identity to the realtime endpoint.
func socketURLFor(cfg *config.Config, member *schema.Member) string {
	q := url.Values{}
	q.Set("user", member.UserID)
	q.Set("name", displayName(member.Email))
	sep := "?"
	if strings.Contains(cfg.SocketURL, "?") {
		sep = "&"
	}
	return cfg.SocketURL + sep + q.Encode()
}

func displayName(email string) string {
	local, _, _ := strings.Cut(email, "@")
	if local == "" {
		return email
	}
	return local
}

func formatMessage(m schema.Message) string {
	stamp := m.CreatedAt.Local().Format("15:04")
	if m.IsDeleted {
		return fmt.Sprintf("%s %s %s", ui.RenderDim(stamp), ui.RenderBold(m.SenderName), ui.RenderDim(m.Content))
	}
	return fmt.Sprintf("%s %s %s", ui.RenderDim(stamp), ui.RenderBold(m.SenderName), m.Content)
}

func typingLine(typing map[string]string) string {
	if len(typing) == 0 {
		return ""
	}
	names := make([]string, 0, len(typing))
	for _, name := range typing {
		names = append(names, name)
	}
	sort.Strings(names)
	if len(names) == 1 {
		return names[0] + " is typing…"
	}
	return strings.Join(names, ", ") + " are typing…"
}

func init() {
	chatCmd.AddCommand(chatHistoryCmd)
	chatCmd.AddCommand(chatSendCmd)
	chatCmd.AddCommand(chatWatchCmd)
	rootCmd.AddCommand(chatCmd)
}
