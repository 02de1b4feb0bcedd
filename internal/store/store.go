// Package store persists report runs in Postgres.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/sirupsen/logrus"

	"noshow-risk-audit/internal/report"
)

const defaultTimeout = 30 * time.Second

type Config struct {
	URL    string
	Schema string
	Tag    string
}

var schemaPattern = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

type Store struct {
	db     *sql.DB
	schema string
	tag    string
	log    logrus.FieldLogger
}

// Open connects, pings and ensures the schema exists.
func Open(ctx context.Context, cfg Config, log logrus.FieldLogger) (*Store, error) {
	schema, err := sanitizeSchema(cfg.Schema)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(cfg.URL) == "" {
		return nil, errors.New("database URL missing; set NOSHOW_DB_URL or DATABASE_URL")
	}

	db, err := sql.Open("pgx", cfg.URL)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, err
	}
	if err := ensureSchema(ctx, db, schema); err != nil {
		db.Close()
		return nil, err
	}
	return &Store{db: db, schema: schema, tag: cfg.Tag, log: log}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// SaveRun stores a report with its cluster ranking and full queue.
func (s *Store) SaveRun(ctx context.Context, r *report.Report) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()
	return s.saveTx(ctx, r)
}

// SeedRun stores r only when the schema holds no runs yet. It returns an
// empty id when it skipped.
func (s *Store) SeedRun(ctx context.Context, r *report.Report) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	var count int
	if err := s.db.QueryRowContext(ctx, fmt.Sprintf(`SELECT COUNT(*) FROM %s.report_runs`, s.schema)).Scan(&count); err != nil {
		return "", err
	}
	if count > 0 {
		s.log.WithField("runs", count).Info("report runs already present; skipping seed")
		return "", nil
	}
	return s.saveTx(ctx, r)
}

func (s *Store) saveTx(ctx context.Context, r *report.Report) (id string, err error) {
	runID := uuid.New()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	summary := r.Overview.Summary
	var auc sql.NullFloat64
	if r.Predict.ModelStatus == report.StatusOK {
		auc = sql.NullFloat64{Float64: r.Predict.AUC, Valid: true}
	}
	_, err = tx.ExecContext(ctx, fmt.Sprintf(`
		INSERT INTO %s.report_runs (
			id, generated_at, source, total_rows, invalid_rows,
			scheduled, attended, no_shows, no_show_rate, estimated_loss,
			model_status, auc, moderate_threshold, high_threshold,
			high_count, moderate_count, low_count, manual_count, run_tag
		) VALUES (
			$1,$2,$3,$4,$5,
			$6,$7,$8,$9,$10,
			$11,$12,$13,$14,
			$15,$16,$17,$18,$19
		)`, s.schema),
		runID,
		r.GeneratedAt,
		nullString(r.Source),
		r.TotalRows,
		r.InvalidRows,
		summary.Scheduled,
		summary.Attended,
		summary.NoShows,
		summary.NoShowRate,
		r.Overview.Loss.NoShowLoss,
		r.Predict.ModelStatus,
		auc,
		r.Act.Thresholds.Moderate,
		r.Act.Thresholds.High,
		r.Act.Summary.High,
		r.Act.Summary.Moderate,
		r.Act.Summary.Low,
		r.Act.Summary.Manual,
		nullString(s.tag),
	)
	if err != nil {
		return "", err
	}

	insertClusterSQL := fmt.Sprintf(`
		INSERT INTO %s.report_clusters (
			id, run_id, rank, area, channel, scheduled, no_shows,
			no_show_rate, mean_lead_time_days, estimated_loss, priority_score
		) VALUES (
			$1,$2,$3,$4,$5,$6,$7,
			$8,$9,$10,$11
		)`, s.schema)

	for i, cluster := range r.Reveal.Clusters {
		_, err = tx.ExecContext(ctx, insertClusterSQL,
			uuid.New(),
			runID,
			i+1,
			cluster.Area,
			string(cluster.Channel),
			cluster.Scheduled,
			cluster.NoShows,
			cluster.NoShowRate,
			cluster.MeanLeadTimeDays,
			cluster.EstimatedLoss,
			cluster.PriorityScore,
		)
		if err != nil {
			return "", err
		}
	}

	insertQueueSQL := fmt.Sprintf(`
		INSERT INTO %s.report_queue (
			id, run_id, position, appointment_id, age, channel, area,
			lead_time_days, risk, tier, action, execution
		) VALUES (
			$1,$2,$3,$4,$5,$6,$7,
			$8,$9,$10,$11,$12
		)`, s.schema)

	for i, item := range r.Queue {
		_, err = tx.ExecContext(ctx, insertQueueSQL,
			uuid.New(),
			runID,
			i+1,
			item.ID,
			item.Age,
			item.Channel,
			nullString(item.Area),
			item.LeadTimeDays,
			item.Risk,
			string(item.Tier),
			item.Action,
			string(item.Execution),
		)
		if err != nil {
			return "", err
		}
	}

	if err = tx.Commit(); err != nil {
		return "", err
	}
	s.log.WithFields(logrus.Fields{
		"run_id":   runID.String(),
		"clusters": len(r.Reveal.Clusters),
		"queue":    len(r.Queue),
	}).Info("report run stored")
	return runID.String(), nil
}

func sanitizeSchema(value string) (string, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return "", errors.New("db schema is required")
	}
	if !schemaPattern.MatchString(value) {
		return "", fmt.Errorf("invalid schema name: %s", value)
	}
	return value, nil
}

func nullString(value string) sql.NullString {
	if strings.TrimSpace(value) == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: value, Valid: true}
}
