package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/wildlife-grad/backend/internal/storage/models"
	"github.com/wildlife-grad/backend/pkg/logger"
	"github.com/wildlife-grad/backend/pkg/retry"
)

type Client struct {
	db *sql.DB
}

func NewClient(dbPath string) (*Client, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	_, err = db.Exec("PRAGMA foreign_keys = ON")
	if err != nil {
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	_, err = db.Exec("PRAGMA journal_mode = WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	logger.Info("SQLite client initialized", zap.String("path", dbPath))

	return &Client{db: db}, nil
}

func (c *Client) Close() error {
	return c.db.Close()
}

func (c *Client) InitSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS postings (
		position_key TEXT PRIMARY KEY,
		title TEXT NOT NULL,
		organization TEXT,
		location TEXT,
		url TEXT,
		tags TEXT,
		description TEXT,
		requirements TEXT,
		project_details TEXT,
		published_date TEXT,
		discipline_final TEXT,
		is_graduate_position INTEGER DEFAULT 0,
		grad_confidence REAL DEFAULT 0,
		position_type TEXT,
		model_suggested TEXT,
		model_secondary TEXT,
		model_confidence REAL DEFAULT 0,
		model_margin REAL DEFAULT 0,
		model_version TEXT,
		scraped_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_postings_discipline ON postings(discipline_final);
	CREATE INDEX IF NOT EXISTS idx_postings_graduate ON postings(is_graduate_position);

	CREATE TABLE IF NOT EXISTS classification_runs (
		id TEXT PRIMARY KEY,
		model_version TEXT,
		postings INTEGER NOT NULL,
		classified INTEGER NOT NULL,
		queue_size INTEGER NOT NULL,
		started_at INTEGER NOT NULL,
		finished_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_runs_started ON classification_runs(started_at);

	CREATE TABLE IF NOT EXISTS review_audit (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		batch_id TEXT NOT NULL,
		position_key TEXT NOT NULL,
		action TEXT NOT NULL,
		label TEXT NOT NULL,
		reviewer TEXT,
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_audit_batch ON review_audit(batch_id);
	CREATE INDEX IF NOT EXISTS idx_audit_position ON review_audit(position_key);
	`

	_, err := c.db.Exec(schema)
	if err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}

	logger.Info("SQLite schema initialized")
	return nil
}

// UpsertPostings writes scraped postings in one transaction. Pipeline labels
// already on a row (discipline_final, graduate fields) are preserved; only
// the scraped fields refresh. Transient lock contention is retried.
func (c *Client) UpsertPostings(ctx context.Context, list []models.JobPosting) error {
	query := `
		INSERT INTO postings (position_key, title, organization, location, url, tags,
			description, requirements, project_details, published_date,
			discipline_final, is_graduate_position, grad_confidence, position_type,
			scraped_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(position_key) DO UPDATE SET
			title = excluded.title,
			organization = excluded.organization,
			location = excluded.location,
			url = excluded.url,
			tags = excluded.tags,
			description = excluded.description,
			requirements = excluded.requirements,
			project_details = excluded.project_details,
			published_date = excluded.published_date,
			discipline_final = CASE
				WHEN postings.discipline_final IS NULL OR postings.discipline_final = ''
				THEN excluded.discipline_final ELSE postings.discipline_final END,
			updated_at = excluded.updated_at
	`

	return retry.Do(ctx, retry.DefaultConfig(), func() error {
		tx, err := c.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("failed to begin transaction: %w", err)
		}
		defer tx.Rollback()

		stmt, err := tx.Prepare(query)
		if err != nil {
			return fmt.Errorf("failed to prepare upsert: %w", err)
		}
		defer stmt.Close()

		now := time.Now().Unix()
		for _, p := range list {
			isGrad := 0
			if p.IsGraduatePosition {
				isGrad = 1
			}
			_, err := stmt.Exec(
				p.PositionKey,
				p.Title,
				p.Organization,
				p.Location,
				p.URL,
				p.Tags,
				p.Description,
				p.Requirements,
				p.ProjectDetails,
				p.PublishedDate,
				p.DisciplineFinal,
				isGrad,
				p.GradConfidence,
				p.PositionType,
				p.ScrapedAt.Unix(),
				now,
			)
			if err != nil {
				return fmt.Errorf("failed to upsert posting %s: %w", p.PositionKey, err)
			}
		}

		return tx.Commit()
	})
}

func (c *Client) ListPostings() ([]models.JobPosting, error) {
	query := `
		SELECT position_key, title, organization, location, url, tags,
			description, requirements, project_details, published_date,
			discipline_final, is_graduate_position, grad_confidence, position_type,
			COALESCE(model_suggested, ''), COALESCE(model_secondary, ''),
			model_confidence, model_margin, COALESCE(model_version, ''),
			scraped_at, updated_at
		FROM postings
		ORDER BY position_key
	`

	rows, err := c.db.Query(query)
	if err != nil {
		return nil, fmt.Errorf("failed to list postings: %w", err)
	}
	defer rows.Close()

	var out []models.JobPosting
	for rows.Next() {
		var p models.JobPosting
		var isGrad int
		var scrapedAt, updatedAt int64

		err := rows.Scan(
			&p.PositionKey,
			&p.Title,
			&p.Organization,
			&p.Location,
			&p.URL,
			&p.Tags,
			&p.Description,
			&p.Requirements,
			&p.ProjectDetails,
			&p.PublishedDate,
			&p.DisciplineFinal,
			&isGrad,
			&p.GradConfidence,
			&p.PositionType,
			&p.ModelSuggested,
			&p.ModelSecondary,
			&p.ModelConfidence,
			&p.ModelMargin,
			&p.ModelVersion,
			&scrapedAt,
			&updatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan posting row: %w", err)
		}

		p.IsGraduatePosition = isGrad == 1
		p.ScrapedAt = time.Unix(scrapedAt, 0)
		p.UpdatedAt = time.Unix(updatedAt, 0)
		out = append(out, p)
	}

	return out, rows.Err()
}

// SaveClassification writes one posting's fresh classification result and
// graduate detection. discipline_final is only assigned when still blank;
// existing pipeline labels change through review import, not here.
func (c *Client) SaveClassification(ctx context.Context, key string, result models.ClassificationResult, isGraduate bool, gradConfidence float64, positionType string) error {
	query := `
		UPDATE postings SET
			model_suggested = ?,
			model_secondary = ?,
			model_confidence = ?,
			model_margin = ?,
			model_version = ?,
			is_graduate_position = ?,
			grad_confidence = ?,
			position_type = ?,
			discipline_final = CASE
				WHEN discipline_final IS NULL OR discipline_final = ''
				THEN ? ELSE discipline_final END,
			updated_at = ?
		WHERE position_key = ?
	`

	isGrad := 0
	if isGraduate {
		isGrad = 1
	}

	return retry.Do(ctx, retry.DefaultConfig(), func() error {
		_, err := c.db.Exec(
			query,
			result.PredictedLabel,
			result.Secondary,
			result.Confidence,
			result.Margin,
			result.ModelVersion,
			isGrad,
			gradConfidence,
			positionType,
			result.PredictedLabel,
			time.Now().Unix(),
			key,
		)
		if err != nil {
			return fmt.Errorf("failed to save classification for %s: %w", key, err)
		}
		return nil
	})
}

// SetDisciplineFinal applies an imported review decision to the posting row.
func (c *Client) SetDisciplineFinal(key, discipline string) error {
	_, err := c.db.Exec(
		`UPDATE postings SET discipline_final = ?, updated_at = ? WHERE position_key = ?`,
		discipline, time.Now().Unix(), key,
	)
	if err != nil {
		return fmt.Errorf("failed to update discipline for %s: %w", key, err)
	}
	return nil
}

func (c *Client) RecordRun(run models.ClassificationRun) error {
	query := `
		INSERT INTO classification_runs (id, model_version, postings, classified, queue_size, started_at, finished_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`

	_, err := c.db.Exec(
		query,
		run.ID,
		run.ModelVersion,
		run.Postings,
		run.Classified,
		run.QueueSize,
		run.StartedAt.Unix(),
		run.FinishedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to record run: %w", err)
	}

	logger.Info("Run recorded",
		zap.String("run_id", run.ID),
		zap.Int("postings", run.Postings),
		zap.Int("queue_size", run.QueueSize),
	)
	return nil
}

func (c *Client) ListRuns(limit int) ([]models.ClassificationRun, error) {
	query := `
		SELECT id, model_version, postings, classified, queue_size, started_at, finished_at
		FROM classification_runs
		ORDER BY started_at DESC
		LIMIT ?
	`

	rows, err := c.db.Query(query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var out []models.ClassificationRun
	for rows.Next() {
		var r models.ClassificationRun
		var startedAt, finishedAt int64

		err := rows.Scan(&r.ID, &r.ModelVersion, &r.Postings, &r.Classified, &r.QueueSize, &startedAt, &finishedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run row: %w", err)
		}

		r.StartedAt = time.Unix(startedAt, 0)
		r.FinishedAt = time.Unix(finishedAt, 0)
		out = append(out, r)
	}

	return out, rows.Err()
}

func (c *Client) RecordReviewAudit(audit models.ReviewAudit) error {
	query := `
		INSERT INTO review_audit (batch_id, position_key, action, label, reviewer, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`

	_, err := c.db.Exec(
		query,
		audit.BatchID,
		audit.PositionKey,
		audit.Action,
		audit.Label,
		audit.Reviewer,
		audit.CreatedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to record review audit: %w", err)
	}
	return nil
}
