package main

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/teamboard/boardsync/internal/logx"
	"github.com/teamboard/boardsync/internal/mirror"
	"github.com/teamboard/boardsync/internal/ui"
)

var statusCmd = &cobra.Command{
	Use:     "status",
	GroupID: "session",
	Short:   "Show connection and mirror health",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		out := map[string]any{
			"server_url": cfg.ServerURL,
			"socket_url": cfg.SocketURL,
		}

		client, err := newGateway(cfg)
		if err != nil {
			return err
		}
		if err := client.CheckServerVersion(cmd.Context()); err != nil {
			out["server"] = fmt.Sprintf("unreachable: %v", err)
		} else {
			out["server"] = "ok"
		}

		if cfg.MirrorPath != "" {
			m, err := mirror.Open(cfg.MirrorPath, logx.New("[mirror] "))
			if err != nil {
				out["mirror"] = fmt.Sprintf("unavailable: %v", err)
			} else {
				counts, err := m.Counts(cmd.Context())
				m.Close()
				if err != nil {
					out["mirror"] = fmt.Sprintf("unreadable: %v", err)
				} else {
					out["mirror"] = counts
				}
			}
		}

		if structured() {
			return printOut(out)
		}

		fmt.Printf("%s %s\n", ui.RenderBold("Server:"), ui.RenderAccent(cfg.ServerURL))
		fmt.Printf("%s %s\n", ui.RenderBold("Socket:"), ui.RenderAccent(cfg.SocketURL))
		if out["server"] == "ok" {
			fmt.Printf("%s server reachable\n", ui.RenderPass("✓"))
		} else {
			fmt.Printf("%s %v\n", ui.RenderFail("✗"), out["server"])
		}
		if cfg.MirrorPath == "" {
			fmt.Println(ui.RenderDim("mirror disabled (set mirror_path to enable offline boards)"))
			return nil
		}
		switch mv := out["mirror"].(type) {
		case map[string]int:
			tables := make([]string, 0, len(mv))
			for t := range mv {
				tables = append(tables, t)
			}
			sort.Strings(tables)
			fmt.Printf("%s mirror at %s\n", ui.RenderPass("✓"), cfg.MirrorPath)
			for _, t := range tables {
				fmt.Printf("  %-10s %d\n", t, mv[t])
			}
		default:
			fmt.Printf("%s %v\n", ui.RenderWarn("⚠"), mv)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
}
