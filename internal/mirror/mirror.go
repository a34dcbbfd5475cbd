// Package mirror persists board state to a local SQLite database so the CLI
// can show the last known board while the backend is unreachable.
//
// The mirror is write-behind: it subscribes to cache store events and copies
// every fresh value into SQLite. Optimistic entries with temporary IDs are
// skipped so the mirror only ever holds server-confirmed rows.
//
// The database runs embedded with WAL mode for concurrent reads.
package mirror

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"

	"github.com/teamboard/boardsync/internal/cache"
	"github.com/teamboard/boardsync/internal/optimistic"
	"github.com/teamboard/boardsync/internal/schema"
)

// Mirror wraps the SQLite connection holding the offline board copy.
type Mirror struct {
	conn   *sql.DB
	path   string
	logger *log.Logger
}

// Open creates or opens the mirror database at path. The parent directory
// is created if needed. The caller must Close when done.
func Open(path string, logger *log.Logger) (*Mirror, error) {
	if logger == nil {
		logger = log.New(os.Stderr, "[mirror] ", log.LstdFlags)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create mirror directory: %w", err)
	}

	conn, err := sql.Open("sqlite3", fmt.Sprintf("file:%s", path))
	if err != nil {
		return nil, fmt.Errorf("failed to open mirror database: %w", err)
	}
	if err := conn.Ping(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to ping mirror database: %w", err)
	}

	conn.SetMaxOpenConns(10)
	conn.SetMaxIdleConns(2)
	conn.SetConnMaxLifetime(5 * time.Minute)

	m := &Mirror{conn: conn, path: path, logger: logger}

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := m.conn.Exec(pragma); err != nil {
			_ = m.Close()
			return nil, fmt.Errorf("failed to apply %q: %w", pragma, err)
		}
	}

	if err := m.initSchema(context.Background()); err != nil {
		_ = m.Close()
		return nil, err
	}
	return m, nil
}

// Close checkpoints the WAL and closes the connection.
func (m *Mirror) Close() error {
	if m.conn == nil {
		return nil
	}
	if _, err := m.conn.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		m.logger.Printf("warning: failed to checkpoint WAL: %v", err)
	}
	if err := m.conn.Close(); err != nil {
		return fmt.Errorf("failed to close mirror database: %w", err)
	}
	m.conn = nil
	return nil
}

func (m *Mirror) initSchema(ctx context.Context) error {
	ddl := `
	CREATE TABLE IF NOT EXISTS projects (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		description TEXT,
		owner_id TEXT,
		updated_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS sprints (
		id TEXT PRIMARY KEY,
		project_id TEXT NOT NULL,
		name TEXT NOT NULL,
		status TEXT NOT NULL,
		start_date TEXT,
		end_date TEXT
	);

	CREATE TABLE IF NOT EXISTS columns (
		id TEXT PRIMARY KEY,
		sprint_id TEXT NOT NULL,
		title TEXT NOT NULL,
		position INTEGER NOT NULL,
		task_ids TEXT  -- JSON array, board order
	);

	CREATE TABLE IF NOT EXISTS tasks (
		id TEXT PRIMARY KEY,
		sprint_id TEXT NOT NULL,
		column_id TEXT NOT NULL,
		title TEXT NOT NULL,
		description TEXT,
		priority TEXT NOT NULL,
		story_points INTEGER NOT NULL DEFAULT 0,
		due_at TEXT,
		labels TEXT,  -- JSON array
		updated_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS messages (
		id TEXT PRIMARY KEY,
		project_id TEXT NOT NULL,
		sender_id TEXT NOT NULL,
		sender_name TEXT,
		content TEXT NOT NULL,
		is_deleted INTEGER NOT NULL DEFAULT 0,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_sprints_project ON sprints(project_id);
	CREATE INDEX IF NOT EXISTS idx_columns_sprint ON columns(sprint_id, position);
	CREATE INDEX IF NOT EXISTS idx_tasks_sprint ON tasks(sprint_id);
	CREATE INDEX IF NOT EXISTS idx_tasks_column ON tasks(column_id);
	CREATE INDEX IF NOT EXISTS idx_messages_project ON messages(project_id, created_at);
	`
	if _, err := m.conn.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("failed to initialize mirror schema: %w", err)
	}
	return nil
}

// Apply copies one fresh cache value into the mirror. Unknown kinds and
// unexpected value types are ignored.
func (m *Mirror) Apply(ctx context.Context, key cache.Key, value any) error {
	switch key.Kind {
	case cache.KindProjects:
		if projects, ok := value.([]schema.Project); ok {
			return m.replaceProjects(ctx, projects)
		}
	case cache.KindProject:
		if project, ok := value.(*schema.Project); ok {
			return m.upsertProject(ctx, project)
		}
	case cache.KindSprints:
		if sprints, ok := value.([]schema.Sprint); ok {
			return m.replaceSprints(ctx, key.Scope, sprints)
		}
	case cache.KindColumns:
		if columns, ok := value.([]schema.BoardColumn); ok {
			return m.replaceColumns(ctx, key.Scope, columns)
		}
	case cache.KindTasks:
		if tasks, ok := value.([]schema.Task); ok {
			return m.replaceTasks(ctx, key.Scope, tasks)
		}
	case cache.KindMessages:
		if messages, ok := value.([]schema.Message); ok {
			return m.replaceMessages(ctx, key.Scope, messages)
		}
	}
	return nil
}

// Follow subscribes to the store and mirrors every fresh value until ctx is
// cancelled. It blocks; run it in a goroutine.
func (m *Mirror) Follow(ctx context.Context, store *cache.Store) {
	events, cancel := store.Subscribe()
	defer cancel()

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			if ev.State != cache.StateFresh {
				continue
			}
			value, _ := store.Read(ev.Key)
			if err := m.Apply(ctx, ev.Key, value); err != nil {
				m.logger.Printf("mirror write for %s failed: %v", ev.Key, err)
			}
		}
	}
}

func (m *Mirror) replaceProjects(ctx context.Context, projects []schema.Project) error {
	tx, err := m.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM projects"); err != nil {
		return fmt.Errorf("failed to clear projects: %w", err)
	}
	for i := range projects {
		if err := upsertProjectTx(ctx, tx, &projects[i]); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (m *Mirror) upsertProject(ctx context.Context, project *schema.Project) error {
	tx, err := m.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := upsertProjectTx(ctx, tx, project); err != nil {
		return err
	}
	return tx.Commit()
}

func upsertProjectTx(ctx context.Context, tx *sql.Tx, project *schema.Project) error {
	query := `
	INSERT INTO projects (id, name, description, owner_id, updated_at)
	VALUES (?, ?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
		name = excluded.name,
		description = excluded.description,
		owner_id = excluded.owner_id,
		updated_at = excluded.updated_at
	`
	_, err := tx.ExecContext(ctx, query,
		project.ID, project.Name, project.Description, project.OwnerID,
		project.UpdatedAt.Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert project %s: %w", project.ID, err)
	}
	return nil
}

func (m *Mirror) replaceSprints(ctx context.Context, projectID string, sprints []schema.Sprint) error {
	tx, err := m.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM sprints WHERE project_id = ?", projectID); err != nil {
		return fmt.Errorf("failed to clear sprints: %w", err)
	}
	for _, s := range sprints {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO sprints (id, project_id, name, status, start_date, end_date)
			VALUES (?, ?, ?, ?, ?, ?)`,
			s.ID, s.ProjectID, s.Name, string(s.Status),
			timeToNullString(s.StartDate), timeToNullString(s.EndDate),
		)
		if err != nil {
			return fmt.Errorf("failed to insert sprint %s: %w", s.ID, err)
		}
	}
	return tx.Commit()
}

func (m *Mirror) replaceColumns(ctx context.Context, sprintID string, columns []schema.BoardColumn) error {
	tx, err := m.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM columns WHERE sprint_id = ?", sprintID); err != nil {
		return fmt.Errorf("failed to clear columns: %w", err)
	}
	for _, col := range columns {
		taskIDs := make([]string, 0, len(col.TaskIDs))
		for _, id := range col.TaskIDs {
			if optimistic.IsTempID(id) {
				continue
			}
			taskIDs = append(taskIDs, id)
		}
		idsJSON, err := json.Marshal(taskIDs)
		if err != nil {
			return fmt.Errorf("failed to marshal task ids: %w", err)
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO columns (id, sprint_id, title, position, task_ids)
			VALUES (?, ?, ?, ?, ?)`,
			col.ID, col.SprintID, col.Title, col.Position, string(idsJSON),
		)
		if err != nil {
			return fmt.Errorf("failed to insert column %s: %w", col.ID, err)
		}
	}
	return tx.Commit()
}

func (m *Mirror) replaceTasks(ctx context.Context, sprintID string, tasks []schema.Task) error {
	tx, err := m.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM tasks WHERE sprint_id = ?", sprintID); err != nil {
		return fmt.Errorf("failed to clear tasks: %w", err)
	}
	for _, task := range tasks {
		if optimistic.IsTempID(task.ID) {
			continue
		}
		labelsJSON, err := json.Marshal(task.Labels)
		if err != nil {
			return fmt.Errorf("failed to marshal labels: %w", err)
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO tasks (
				id, sprint_id, column_id, title, description,
				priority, story_points, due_at, labels, updated_at
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			task.ID, task.SprintID, task.BoardColumnID, task.Title, task.Description,
			string(task.Priority), task.StoryPoints, timeToNullString(task.DueDate),
			string(labelsJSON), task.UpdatedAt.Format(time.RFC3339),
		)
		if err != nil {
			return fmt.Errorf("failed to insert task %s: %w", task.ID, err)
		}
	}
	return tx.Commit()
}

func (m *Mirror) replaceMessages(ctx context.Context, projectID string, messages []schema.Message) error {
	tx, err := m.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM messages WHERE project_id = ?", projectID); err != nil {
		return fmt.Errorf("failed to clear messages: %w", err)
	}
	for _, msg := range messages {
		if optimistic.IsTempID(msg.ID) {
			continue
		}
		deleted := 0
		if msg.IsDeleted {
			deleted = 1
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO messages (
				id, project_id, sender_id, sender_name, content, is_deleted, created_at
			) VALUES (?, ?, ?, ?, ?, ?, ?)`,
			msg.ID, msg.ProjectID, msg.SenderID, msg.SenderName, msg.Content,
			deleted, msg.CreatedAt.Format(time.RFC3339),
		)
		if err != nil {
			return fmt.Errorf("failed to insert message %s: %w", msg.ID, err)
		}
	}
	return tx.Commit()
}

// TasksForSprint reads the mirrored tasks for a sprint, priority order is
// not applied; rows come back in board column then title order.
func (m *Mirror) TasksForSprint(ctx context.Context, sprintID string) ([]schema.Task, error) {
	rows, err := m.conn.QueryContext(ctx, `
		SELECT id, sprint_id, column_id, title, description,
		       priority, story_points, due_at, labels, updated_at
		FROM tasks
		WHERE sprint_id = ?
		ORDER BY column_id, title`, sprintID)
	if err != nil {
		return nil, fmt.Errorf("failed to query mirrored tasks: %w", err)
	}
	defer rows.Close()

	var tasks []schema.Task
	for rows.Next() {
		var task schema.Task
		var priority, labelsJSON, updatedAt string
		var dueAt sql.NullString
		err := rows.Scan(
			&task.ID, &task.SprintID, &task.BoardColumnID, &task.Title, &task.Description,
			&priority, &task.StoryPoints, &dueAt, &labelsJSON, &updatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan mirrored task: %w", err)
		}
		task.Priority = schema.Priority(priority)
		if t, err := time.Parse(time.RFC3339, updatedAt); err == nil {
			task.UpdatedAt = t
		}
		task.DueDate = nullStringToTime(dueAt)
		if labelsJSON != "" && labelsJSON != "null" {
			if err := json.Unmarshal([]byte(labelsJSON), &task.Labels); err != nil {
				return nil, fmt.Errorf("failed to unmarshal labels: %w", err)
			}
		}
		tasks = append(tasks, task)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating mirrored tasks: %w", err)
	}
	return tasks, nil
}

// ColumnsForSprint reads the mirrored columns for a sprint in board order.
func (m *Mirror) ColumnsForSprint(ctx context.Context, sprintID string) ([]schema.BoardColumn, error) {
	rows, err := m.conn.QueryContext(ctx, `
		SELECT id, sprint_id, title, position, task_ids
		FROM columns
		WHERE sprint_id = ?
		ORDER BY position, id`, sprintID)
	if err != nil {
		return nil, fmt.Errorf("failed to query mirrored columns: %w", err)
	}
	defer rows.Close()

	var columns []schema.BoardColumn
	for rows.Next() {
		var col schema.BoardColumn
		var idsJSON string
		if err := rows.Scan(&col.ID, &col.SprintID, &col.Title, &col.Position, &idsJSON); err != nil {
			return nil, fmt.Errorf("failed to scan mirrored column: %w", err)
		}
		if idsJSON != "" && idsJSON != "null" {
			if err := json.Unmarshal([]byte(idsJSON), &col.TaskIDs); err != nil {
				return nil, fmt.Errorf("failed to unmarshal task ids: %w", err)
			}
		}
		columns = append(columns, col)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating mirrored columns: %w", err)
	}
	return columns, nil
}

// MessagesForProject reads mirrored chat history oldest first.
func (m *Mirror) MessagesForProject(ctx context.Context, projectID string) ([]schema.Message, error) {
	rows, err := m.conn.QueryContext(ctx, `
		SELECT id, project_id, sender_id, sender_name, content, is_deleted, created_at
		FROM messages
		WHERE project_id = ?
		ORDER BY created_at, id`, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to query mirrored messages: %w", err)
	}
	defer rows.Close()

	var messages []schema.Message
	for rows.Next() {
		var msg schema.Message
		var deleted int
		var createdAt string
		err := rows.Scan(&msg.ID, &msg.ProjectID, &msg.SenderID, &msg.SenderName,
			&msg.Content, &deleted, &createdAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan mirrored message: %w", err)
		}
		msg.IsDeleted = deleted != 0
		if t, err := time.Parse(time.RFC3339, createdAt); err == nil {
			msg.CreatedAt = t
		}
		messages = append(messages, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating mirrored messages: %w", err)
	}
	return messages, nil
}

// Counts reports row counts per table for the status command.
func (m *Mirror) Counts(ctx context.Context) (map[string]int, error) {
	counts := make(map[string]int)
	for _, table := range []string{"projects", "sprints", "columns", "tasks", "messages"} {
		var n int
		if err := m.conn.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+table).Scan(&n); err != nil {
			return nil, fmt.Errorf("failed to count %s: %w", table, err)
		}
		counts[table] = n
	}
	return counts, nil
}

func timeToNullString(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: t.Format(time.RFC3339), Valid: true}
}

func nullStringToTime(ns sql.NullString) *time.Time {
	if !ns.Valid {
		return nil
	}
	t, err := time.Parse(time.RFC3339, ns.String)
	if err != nil {
		return nil
	}
	return &t
}
