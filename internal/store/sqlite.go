package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/kmordal/taskloom/pkg/models"
)

// SQLiteStore is a TaskStore backed by a SQLite database. WAL mode is
// enabled for concurrent reads.
type SQLiteStore struct {
	conn *sql.DB
	path string
	mu   sync.RWMutex
}

// OpenSQLite opens (or creates) a SQLite task store at the given path,
// creating parent directories and applying pending migrations.
func OpenSQLite(path string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("enable WAL mode: %w", err)
	}
	if _, err := conn.Exec("PRAGMA foreign_keys=ON"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}

	s := &SQLiteStore{conn: conn, path: path}
	if err := s.migrate(); err != nil {
		conn.Close()
		return nil, err
	}
	return s, nil
}

// Path returns the path to the database file.
func (s *SQLiteStore) Path() string {
	return s.path
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn.Close()
}

func (s *SQLiteStore) migrate() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.conn.Exec(`
		CREATE TABLE IF NOT EXISTS schema_version (
			version INTEGER PRIMARY KEY,
			applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return fmt.Errorf("create schema_version table: %w", err)
	}

	var current int
	row := s.conn.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_version")
	if err := row.Scan(&current); err != nil {
		return fmt.Errorf("get schema version: %w", err)
	}

	migrations := []struct {
		version int
		sql     string
	}{
		{1, migrationV1Tasks},
	}

	for _, m := range migrations {
		if m.version <= current {
			continue
		}
		tx, err := s.conn.Begin()
		if err != nil {
			return fmt.Errorf("begin transaction: %w", err)
		}
		if _, err := tx.Exec(m.sql); err != nil {
			tx.Rollback()
			return fmt.Errorf("apply migration v%d: %w", m.version, err)
		}
		if _, err := tx.Exec("INSERT INTO schema_version (version) VALUES (?)", m.version); err != nil {
			tx.Rollback()
			return fmt.Errorf("record migration v%d: %w", m.version, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration v%d: %w", m.version, err)
		}
	}
	return nil
}

const migrationV1Tasks = `
CREATE TABLE IF NOT EXISTS tasks (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	tree_id INTEGER NOT NULL DEFAULT 0,
	parent_id INTEGER,
	subtask_ids TEXT NOT NULL DEFAULT '[]',
	dependencies TEXT NOT NULL DEFAULT '[]',
	instruction TEXT NOT NULL,
	priority INTEGER NOT NULL DEFAULT 0,
	assigned_agent TEXT NOT NULL DEFAULT '',
	assigned_process TEXT NOT NULL DEFAULT 'neutral',
	state TEXT NOT NULL DEFAULT 'created',
	created_at TEXT NOT NULL,
	started_at TEXT,
	completed_at TEXT,
	additional_context TEXT NOT NULL DEFAULT '[]',
	additional_tools TEXT NOT NULL DEFAULT '[]',
	result TEXT,
	error TEXT NOT NULL DEFAULT '',
	conversation TEXT NOT NULL DEFAULT '[]',
	tool_calls TEXT NOT NULL DEFAULT '[]',
	framework TEXT,
	detached INTEGER NOT NULL DEFAULT 0,
	skipped INTEGER NOT NULL DEFAULT 0,
	aborted INTEGER NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_tasks_tree_id ON tasks(tree_id);
CREATE INDEX IF NOT EXISTS idx_tasks_parent_id ON tasks(parent_id);
CREATE INDEX IF NOT EXISTS idx_tasks_state ON tasks(state);
`

// Create inserts the task, assigns its ID from the row ID, and fixes up the
// tree ID for roots, all in one transaction.
func (s *SQLiteStore) Create(task *models.Task) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	row, err := encodeTask(task)
	if err != nil {
		return 0, err
	}

	tx, err := s.conn.Begin()
	if err != nil {
		return 0, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.Exec(`
		INSERT INTO tasks (
			tree_id, parent_id, subtask_ids, dependencies, instruction,
			priority, assigned_agent, assigned_process, state, created_at,
			started_at, completed_at, additional_context, additional_tools,
			result, error, conversation, tool_calls, framework,
			detached, skipped, aborted
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		row.treeID, row.parentID, row.subtaskIDs, row.dependencies, task.Instruction,
		task.Priority, task.AssignedAgent, task.AssignedProcess, string(task.State), row.createdAt,
		row.startedAt, row.completedAt, row.context, row.tools,
		row.result, task.Error, row.conversation, row.toolCalls, row.framework,
		boolInt(task.Detached), boolInt(task.Skipped), boolInt(task.Aborted),
	)
	if err != nil {
		return 0, fmt.Errorf("insert task: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("last insert id: %w", err)
	}
	task.ID = id
	if task.TreeID == 0 {
		task.TreeID = id
		if _, err := tx.Exec("UPDATE tasks SET tree_id = ? WHERE id = ?", id, id); err != nil {
			return 0, fmt.Errorf("set root tree id: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit transaction: %w", err)
	}
	return id, nil
}

// Update overwrites the stored task.
func (s *SQLiteStore) Update(task *models.Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	row, err := encodeTask(task)
	if err != nil {
		return err
	}

	res, err := s.conn.Exec(`
		UPDATE tasks SET
			tree_id = ?, parent_id = ?, subtask_ids = ?, dependencies = ?,
			instruction = ?, priority = ?, assigned_agent = ?, assigned_process = ?,
			state = ?, created_at = ?, started_at = ?, completed_at = ?,
			additional_context = ?, additional_tools = ?, result = ?, error = ?,
			conversation = ?, tool_calls = ?, framework = ?,
			detached = ?, skipped = ?, aborted = ?
		WHERE id = ?
	`,
		row.treeID, row.parentID, row.subtaskIDs, row.dependencies,
		task.Instruction, task.Priority, task.AssignedAgent, task.AssignedProcess,
		string(task.State), row.createdAt, row.startedAt, row.completedAt,
		row.context, row.tools, row.result, task.Error,
		row.conversation, row.toolCalls, row.framework,
		boolInt(task.Detached), boolInt(task.Skipped), boolInt(task.Aborted),
		task.ID,
	)
	if err != nil {
		return fmt.Errorf("update task: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// Get returns the task with the given ID.
func (s *SQLiteStore) Get(id int64) (*models.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.conn.QueryRow(selectColumns+" FROM tasks WHERE id = ?", id)
	task, err := scanTask(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	return task, err
}

// ListByTree returns every task in the tree, ordered by ID.
func (s *SQLiteStore) ListByTree(treeID int64) ([]*models.Task, error) {
	return s.query(selectColumns+" FROM tasks WHERE tree_id = ? ORDER BY id", treeID)
}

// ListByParent returns the direct children of the given task, ordered by ID.
func (s *SQLiteStore) ListByParent(parentID int64) ([]*models.Task, error) {
	return s.query(selectColumns+" FROM tasks WHERE parent_id = ? ORDER BY id", parentID)
}

// ListByState returns every task in the given state, highest priority first.
func (s *SQLiteStore) ListByState(state models.TaskState) ([]*models.Task, error) {
	return s.query(selectColumns+" FROM tasks WHERE state = ? ORDER BY priority DESC, id", string(state))
}

// ListAll returns every stored task, ordered by ID.
func (s *SQLiteStore) ListAll() ([]*models.Task, error) {
	return s.query(selectColumns + " FROM tasks ORDER BY id")
}

func (s *SQLiteStore) query(q string, args ...any) ([]*models.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.conn.Query(q, args...)
	if err != nil {
		return nil, fmt.Errorf("query tasks: %w", err)
	}
	defer rows.Close()

	var out []*models.Task
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, task)
	}
	return out, rows.Err()
}

const selectColumns = `SELECT
	id, tree_id, parent_id, subtask_ids, dependencies, instruction,
	priority, assigned_agent, assigned_process, state, created_at,
	started_at, completed_at, additional_context, additional_tools,
	result, error, conversation, tool_calls, framework,
	detached, skipped, aborted`

// encodedRow holds the serialized column values for one task.
type encodedRow struct {
	treeID       int64
	parentID     sql.NullInt64
	subtaskIDs   string
	dependencies string
	createdAt    string
	startedAt    sql.NullString
	completedAt  sql.NullString
	context      string
	tools        string
	result       sql.NullString
	conversation string
	toolCalls    string
	framework    sql.NullString
}

func encodeTask(task *models.Task) (*encodedRow, error) {
	row := &encodedRow{
		treeID:    task.TreeID,
		createdAt: formatTime(task.CreatedAt),
	}
	if task.ParentID != nil {
		row.parentID = sql.NullInt64{Int64: *task.ParentID, Valid: true}
	}
	if task.StartedAt != nil {
		row.startedAt = sql.NullString{String: formatTime(*task.StartedAt), Valid: true}
	}
	if task.CompletedAt != nil {
		row.completedAt = sql.NullString{String: formatTime(*task.CompletedAt), Valid: true}
	}

	var err error
	if row.subtaskIDs, err = marshalJSON(task.SubtaskIDs); err != nil {
		return nil, err
	}
	if row.dependencies, err = marshalJSON(task.Dependencies); err != nil {
		return nil, err
	}
	if row.context, err = marshalJSON(task.AdditionalContext); err != nil {
		return nil, err
	}
	if row.tools, err = marshalJSON(task.AdditionalTools); err != nil {
		return nil, err
	}
	if row.conversation, err = marshalJSON(task.Conversation); err != nil {
		return nil, err
	}
	if row.toolCalls, err = marshalJSON(task.ToolCalls); err != nil {
		return nil, err
	}
	if task.Result != nil {
		encoded, err := marshalJSON(task.Result)
		if err != nil {
			return nil, err
		}
		row.result = sql.NullString{String: encoded, Valid: true}
	}
	if task.Framework != nil {
		encoded, err := marshalJSON(task.Framework)
		if err != nil {
			return nil, err
		}
		row.framework = sql.NullString{String: encoded, Valid: true}
	}
	return row, nil
}

// rowScanner is satisfied by both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanTask(r rowScanner) (*models.Task, error) {
	var (
		task         models.Task
		state        string
		parentID     sql.NullInt64
		subtaskIDs   string
		dependencies string
		createdAt    string
		startedAt    sql.NullString
		completedAt  sql.NullString
		contextDocs  string
		tools        string
		result       sql.NullString
		conversation string
		toolCalls    string
		framework    sql.NullString
		detached     int
		skipped      int
		aborted      int
	)

	err := r.Scan(
		&task.ID, &task.TreeID, &parentID, &subtaskIDs, &dependencies, &task.Instruction,
		&task.Priority, &task.AssignedAgent, &task.AssignedProcess, &state, &createdAt,
		&startedAt, &completedAt, &contextDocs, &tools,
		&result, &task.Error, &conversation, &toolCalls, &framework,
		&detached, &skipped, &aborted,
	)
	if err != nil {
		return nil, err
	}

	task.State = models.TaskState(state)
	task.Detached = detached != 0
	task.Skipped = skipped != 0
	task.Aborted = aborted != 0
	if parentID.Valid {
		pid := parentID.Int64
		task.ParentID = &pid
	}
	if task.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if startedAt.Valid {
		ts, err := parseTime(startedAt.String)
		if err != nil {
			return nil, err
		}
		task.StartedAt = &ts
	}
	if completedAt.Valid {
		ts, err := parseTime(completedAt.String)
		if err != nil {
			return nil, err
		}
		task.CompletedAt = &ts
	}

	if err := unmarshalJSON(subtaskIDs, &task.SubtaskIDs); err != nil {
		return nil, err
	}
	if err := unmarshalJSON(dependencies, &task.Dependencies); err != nil {
		return nil, err
	}
	if err := unmarshalJSON(contextDocs, &task.AdditionalContext); err != nil {
		return nil, err
	}
	if err := unmarshalJSON(tools, &task.AdditionalTools); err != nil {
		return nil, err
	}
	if err := unmarshalJSON(conversation, &task.Conversation); err != nil {
		return nil, err
	}
	if err := unmarshalJSON(toolCalls, &task.ToolCalls); err != nil {
		return nil, err
	}
	if result.Valid {
		if err := unmarshalJSON(result.String, &task.Result); err != nil {
			return nil, err
		}
	}
	if framework.Valid {
		task.Framework = &models.Framework{}
		if err := unmarshalJSON(framework.String, task.Framework); err != nil {
			return nil, err
		}
	}
	return &task, nil
}

func marshalJSON(v any) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("marshal task field: %w", err)
	}
	return string(b), nil
}

func unmarshalJSON(s string, v any) error {
	if s == "" {
		return nil
	}
	if err := json.Unmarshal([]byte(s), v); err != nil {
		return fmt.Errorf("unmarshal task field: %w", err)
	}
	return nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse stored time: %w", err)
	}
	return t, nil
}
