package labeler

import (
	"context"
	"database/sql"
	"time"

	"github.com/dhung0811/CI-CD-Pipeline-Failure-Prediction/internal/model"
	jsoniter "github.com/json-iterator/go"
	"github.com/maxbolgarin/errm"

	_ "modernc.org/sqlite"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const checkpointSchema = `
CREATE TABLE IF NOT EXISTS labels (
    commit_hash TEXT PRIMARY KEY,
    project_id  TEXT NOT NULL,
    result      TEXT NOT NULL,
    labeled_at  DATETIME NOT NULL
);`

// Checkpoint stores finished label results so an interrupted run can resume
type Checkpoint struct {
	db *sql.DB
}

// OpenCheckpoint opens or creates a checkpoint database at path
func OpenCheckpoint(ctx context.Context, path string) (*Checkpoint, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, errm.Wrap(err, "failed to open sqlite")
	}
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
	}
	for _, p := range pragmas {
		if _, err := db.ExecContext(ctx, p); err != nil {
			db.Close()
			return nil, errm.Wrap(err, "failed to set pragma")
		}
	}

	if _, err := db.ExecContext(ctx, checkpointSchema); err != nil {
		db.Close()
		return nil, errm.Wrap(err, "failed to create schema")
	}

	return &Checkpoint{db: db}, nil
}

// Load returns all stored results keyed by commit hash
func (c *Checkpoint) Load(ctx context.Context) (map[string]model.LabelResult, error) {
	rows, err := c.db.QueryContext(ctx, `SELECT commit_hash, result FROM labels`)
	if err != nil {
		return nil, errm.Wrap(err, "failed to query labels")
	}
	defer rows.Close()

	out := make(map[string]model.LabelResult)
	for rows.Next() {
		var (
			hash string
			raw  []byte
		)
		if err := rows.Scan(&hash, &raw); err != nil {
			return nil, errm.Wrap(err, "failed to scan label")
		}
		var res model.LabelResult
		if err := json.Unmarshal(raw, &res); err != nil {
			return nil, errm.Wrap(err, "failed to decode label of "+hash)
		}
		out[hash] = res
	}
	if err := rows.Err(); err != nil {
		return nil, errm.Wrap(err, "failed to read labels")
	}

	return out, nil
}

// Save stores res, replacing a previous result of the same commit
func (c *Checkpoint) Save(ctx context.Context, res model.LabelResult) error {
	raw, err := json.Marshal(res)
	if err != nil {
		return errm.Wrap(err, "failed to encode label")
	}
	_, err = c.db.ExecContext(ctx, `
INSERT INTO labels (commit_hash, project_id, result, labeled_at) VALUES (?, ?, ?, ?)
ON CONFLICT (commit_hash) DO UPDATE SET project_id = excluded.project_id, result = excluded.result, labeled_at = excluded.labeled_at`,
		res.CommitHash, res.ProjectID, string(raw), time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return errm.Wrap(err, "failed to save label")
	}
	return nil
}

func (c *Checkpoint) Close() error {
	return c.db.Close()
}
