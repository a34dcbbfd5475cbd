package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/teamboard/boardsync/internal/schema"
)

const columnWidth = 28

var (
	columnStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			Padding(0, 1).
			Width(columnWidth)

	columnTitleStyle = lipgloss.NewStyle().Bold(true)

	priorityMarks = map[schema.Priority]string{
		schema.PriorityLow:      "·",
		schema.PriorityMedium:   "-",
		schema.PriorityHigh:     "!",
		schema.PriorityCritical: "!!",
	}
)

// RenderBoard lays out the sprint's columns side by side with their tasks.
// Columns must already be sorted by position.
func RenderBoard(columns []schema.BoardColumn, tasks []schema.Task) string {
	byID := make(map[string]schema.Task, len(tasks))
	for _, t := range tasks {
		byID[t.ID] = t
	}

	rendered := make([]string, 0, len(columns))
	for _, col := range columns {
		var b strings.Builder
		b.WriteString(columnTitleStyle.Render(fmt.Sprintf("%s (%d)", col.Title, len(col.TaskIDs))))
		for _, taskID := range col.TaskIDs {
			task, ok := byID[taskID]
			if !ok {
				continue
			}
			b.WriteString("\n")
			b.WriteString(renderTaskLine(task))
		}
		rendered = append(rendered, columnStyle.Render(b.String()))
	}
	if len(rendered) == 0 {
		return RenderDim("(no columns)")
	}
	return lipgloss.JoinHorizontal(lipgloss.Top, rendered...)
}

func renderTaskLine(task schema.Task) string {
	mark := priorityMarks[task.Priority]
	title := task.Title
	if lipgloss.Width(title) > columnWidth-6 {
		title = title[:columnWidth-7] + "…"
	}
	line := fmt.Sprintf("%s %s", mark, title)
	if task.Priority == schema.PriorityCritical || task.Priority == schema.PriorityHigh {
		return RenderWarn(line)
	}
	return line
}
