package sqlite

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/seanmckee-pacmet/contract-review-2/internal/storage/models"
	"github.com/seanmckee-pacmet/contract-review-2/pkg/logger"
)

// Client stores review job history in a local SQLite database.
type Client struct {
	db *sql.DB
}

func NewClient(dbPath string) (*Client, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	c := &Client{db: db}
	if err := c.initSchema(); err != nil {
		return nil, err
	}

	logger.Info("SQLite storage initialized", zap.String("path", dbPath))
	return c, nil
}

func (c *Client) Close() error {
	return c.db.Close()
}

func (c *Client) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS review_jobs (
		id TEXT PRIMARY KEY,
		company_name TEXT NOT NULL,
		started_at DATETIME NOT NULL,
		finished_at DATETIME NOT NULL,
		document_count INTEGER NOT NULL,
		document_types TEXT,
		po_analysis TEXT,
		invoked_clauses TEXT,
		failures TEXT
	);
	CREATE INDEX IF NOT EXISTS idx_review_jobs_company ON review_jobs(company_name);
	CREATE INDEX IF NOT EXISTS idx_review_jobs_started ON review_jobs(started_at);
	`
	if _, err := c.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}
	return nil
}

func (c *Client) InsertJob(job *models.ReviewJob) error {
	docTypes, err := json.Marshal(job.DocumentTypes)
	if err != nil {
		return fmt.Errorf("failed to marshal document types: %w", err)
	}
	invoked, err := json.Marshal(job.InvokedClauses)
	if err != nil {
		return fmt.Errorf("failed to marshal invoked clauses: %w", err)
	}

	_, err = c.db.Exec(`
		INSERT INTO review_jobs
			(id, company_name, started_at, finished_at, document_count,
			 document_types, po_analysis, invoked_clauses, failures)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		job.ID,
		job.CompanyName,
		job.StartedAt.UTC(),
		job.FinishedAt.UTC(),
		job.DocumentCount,
		string(docTypes),
		nullableJSON(job.POAnalysis),
		string(invoked),
		nullableJSON(job.Failures),
	)
	if err != nil {
		return fmt.Errorf("failed to insert review job: %w", err)
	}
	return nil
}

// ListJobs returns the most recent jobs, newest first. A limit of zero or
// less defaults to 50.
func (c *Client) ListJobs(limit int) ([]*models.ReviewJob, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := c.db.Query(`
		SELECT id, company_name, started_at, finished_at, document_count,
		       document_types, po_analysis, invoked_clauses, failures
		FROM review_jobs
		ORDER BY started_at DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query review jobs: %w", err)
	}
	defer rows.Close()

	var jobs []*models.ReviewJob
	for rows.Next() {
		var (
			job       models.ReviewJob
			startedAt time.Time
			finished  time.Time
			docTypes  string
			po        sql.NullString
			invoked   string
			failures  sql.NullString
		)
		if err := rows.Scan(&job.ID, &job.CompanyName, &startedAt, &finished,
			&job.DocumentCount, &docTypes, &po, &invoked, &failures); err != nil {
			return nil, fmt.Errorf("failed to scan review job: %w", err)
		}
		job.StartedAt = startedAt
		job.FinishedAt = finished
		if err := json.Unmarshal([]byte(docTypes), &job.DocumentTypes); err != nil {
			logger.Warn("Corrupt document_types column", zap.String("job_id", job.ID), zap.Error(err))
		}
		if err := json.Unmarshal([]byte(invoked), &job.InvokedClauses); err != nil {
			logger.Warn("Corrupt invoked_clauses column", zap.String("job_id", job.ID), zap.Error(err))
		}
		if po.Valid {
			job.POAnalysis = json.RawMessage(po.String)
		}
		if failures.Valid {
			job.Failures = json.RawMessage(failures.String)
		}
		jobs = append(jobs, &job)
	}
	return jobs, rows.Err()
}

func nullableJSON(raw json.RawMessage) any {
	if len(raw) == 0 {
		return nil
	}
	return string(raw)
}
