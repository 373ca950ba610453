package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	sq "github.com/Masterminds/squirrel"
	_ "modernc.org/sqlite"

	"ACRScanner/internal/domain"
	"ACRScanner/internal/ports"
)

// SQLiteFile is the ledger database name inside a run directory.
const SQLiteFile = "acr-ledger.db"

const schema = `
CREATE TABLE IF NOT EXISTS stage_runs (
	stage      TEXT PRIMARY KEY,
	created_at DATETIME NOT NULL
);
CREATE TABLE IF NOT EXISTS issue_records (
	stage      TEXT NOT NULL,
	id         TEXT NOT NULL,
	payload    TEXT NOT NULL,
	created_at DATETIME NOT NULL,
	PRIMARY KEY (stage, id)
);
CREATE TABLE IF NOT EXISTS judgments (
	criterion_id      TEXT PRIMARY KEY,
	conformance_level TEXT NOT NULL,
	remarks           TEXT NOT NULL,
	issue_count       INTEGER NOT NULL
);`

// SQLiteRepository persists stage outputs into an embedded SQLite ledger.
// Rows keep insertion order through the implicit rowid.
type SQLiteRepository struct {
	db  *sql.DB
	sb  sq.StatementBuilderType
	now func() time.Time
}

var _ ports.RecordStore = (*SQLiteRepository)(nil)

// OpenSQLite opens (or creates) the ledger in dir. Pass ":memory:" for tests.
func OpenSQLite(dir string) (*SQLiteRepository, error) {
	dsn := ":memory:"
	if dir != ":memory:" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating results directory: %w", err)
		}
		dsn = filepath.Join(dir, SQLiteFile)
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	return &SQLiteRepository{
		db:  db,
		sb:  sq.StatementBuilder.PlaceholderFormat(sq.Question).RunWith(db),
		now: time.Now,
	}, nil
}

// Close closes the underlying database connection.
func (r *SQLiteRepository) Close() error {
	return r.db.Close()
}

// LoadLatest returns the stage's records in insertion order.
func (r *SQLiteRepository) LoadLatest(ctx context.Context, stage domain.Stage) ([]domain.Issue, error) {
	var marker string
	err := r.sb.Select("stage").From("stage_runs").Where(sq.Eq{"stage": string(stage)}).
		QueryRowContext(ctx).Scan(&marker)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("stage %s: %w", stage, ports.ErrMissingInput)
	}
	if err != nil {
		return nil, fmt.Errorf("query stage marker: %w", err)
	}

	rows, err := r.sb.Select("payload").From("issue_records").
		Where(sq.Eq{"stage": string(stage)}).OrderBy("rowid").QueryContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("query records: %w", err)
	}

	var issues []domain.Issue
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			_ = rows.Close()
			return nil, fmt.Errorf("scan payload: %w", err)
		}
		var issue domain.Issue
		if err := json.Unmarshal([]byte(payload), &issue); err != nil {
			_ = rows.Close()
			return nil, fmt.Errorf("decode payload: %w", err)
		}
		issues = append(issues, issue)
	}

	if rowsErr := rows.Err(); rowsErr != nil {
		_ = rows.Close()
		return nil, fmt.Errorf("rows iteration: %w", rowsErr)
	}
	if closeErr := rows.Close(); closeErr != nil {
		return nil, fmt.Errorf("close rows: %w", closeErr)
	}

	return issues, nil
}

// Append inserts issues; an id already recorded for the stage is left untouched.
func (r *SQLiteRepository) Append(ctx context.Context, stage domain.Stage, issues ...domain.Issue) error {
	now := r.now().UTC()
	_, err := r.sb.Insert("stage_runs").Columns("stage", "created_at").
		Values(string(stage), now).Suffix("ON CONFLICT(stage) DO NOTHING").ExecContext(ctx)
	if err != nil {
		return fmt.Errorf("mark stage %s: %w", stage, err)
	}

	for _, issue := range issues {
		payload, err := json.Marshal(issue)
		if err != nil {
			return fmt.Errorf("encode issue %s: %w", issue.ID, err)
		}
		_, err = r.sb.Insert("issue_records").Columns("stage", "id", "payload", "created_at").
			Values(string(stage), issue.ID, string(payload), now).
			Suffix("ON CONFLICT(stage, id) DO NOTHING").ExecContext(ctx)
		if err != nil {
			return fmt.Errorf("insert issue %s: %w", issue.ID, err)
		}
	}
	return nil
}

// LoadJudgments returns consolidated judgments in insertion order.
func (r *SQLiteRepository) LoadJudgments(ctx context.Context) ([]domain.Judgment, error) {
	rows, err := r.sb.Select("criterion_id", "conformance_level", "remarks", "issue_count").
		From("judgments").OrderBy("rowid").QueryContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("query judgments: %w", err)
	}
	defer rows.Close()

	var judgments []domain.Judgment
	for rows.Next() {
		var j domain.Judgment
		var level string
		if err := rows.Scan(&j.CriterionID, &level, &j.Remarks, &j.IssueCount); err != nil {
			return nil, fmt.Errorf("scan judgment: %w", err)
		}
		j.Level = domain.ConformanceLevel(level)
		judgments = append(judgments, j)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration: %w", err)
	}
	if len(judgments) == 0 {
		return nil, fmt.Errorf("consolidated judgments: %w", ports.ErrMissingInput)
	}
	return judgments, nil
}

// AppendJudgment upserts one consolidated criterion.
func (r *SQLiteRepository) AppendJudgment(ctx context.Context, j domain.Judgment) error {
	_, err := r.sb.Insert("judgments").
		Columns("criterion_id", "conformance_level", "remarks", "issue_count").
		Values(j.CriterionID, string(j.Level), j.Remarks, j.IssueCount).
		Suffix(`ON CONFLICT(criterion_id) DO UPDATE SET
			conformance_level = excluded.conformance_level,
			remarks = excluded.remarks,
			issue_count = excluded.issue_count`).
		ExecContext(ctx)
	if err != nil {
		return fmt.Errorf("upsert judgment %s: %w", j.CriterionID, err)
	}
	return nil
}
