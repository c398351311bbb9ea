// Package db is the pgx/v5-backed implementation of store.Store.
//
// Grounded on the teacher's internal/db/postgres.go (pgxpool connection
// lifecycle, schema.sql loading, transactional ON CONFLICT upserts); the
// group_id -> hazard_events mapping replaces the original system's
// evidence-JSON substring search with a unique column (see schema.sql).
package db

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/oceanguard/hazard-fusion/internal/apperr"
	"github.com/oceanguard/hazard-fusion/internal/store"
	"github.com/oceanguard/hazard-fusion/pkg/models"
)

// PostgresStore is the pgx/v5 implementation of store.Store.
type PostgresStore struct {
	pool *pgxpool.Pool
}

var _ store.Store = (*PostgresStore)(nil)

// Connect initializes the connection pool to PostgreSQL using pgx.
func Connect(connStr string) (*PostgresStore, error) {
	pool, err := pgxpool.New(context.Background(), connStr)
	if err != nil {
		return nil, fmt.Errorf("unable to connect to database: %v", err)
	}

	if err := pool.Ping(context.Background()); err != nil {
		return nil, fmt.Errorf("ping failed: %v", err)
	}

	log.Println("Successfully connected to PostgreSQL for Hazard Fusion Engine")
	return &PostgresStore{pool: pool}, nil
}

// Close gracefully closes the connection pool.
func (s *PostgresStore) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// InitSchema loads and executes the schema.sql file.
func (s *PostgresStore) InitSchema() error {
	schemaBytes, err := os.ReadFile("internal/db/schema.sql")
	if err != nil {
		return fmt.Errorf("failed to read schema file: %v", err)
	}

	_, err = s.pool.Exec(context.Background(), string(schemaBytes))
	if err != nil {
		return fmt.Errorf("failed to execute schema migrations: %v", err)
	}

	log.Println("Hazard fusion schema initialized")
	return nil
}

// GetPool exposes the connection pool for subsystems that need it directly
// (the broadcaster's keepalive loop does not; kept for parity with the
// teacher's exposer pattern and any future admin tooling).
func (s *PostgresStore) GetPool() *pgxpool.Pool {
	return s.pool
}

func (s *PostgresStore) SaveReport(ctx context.Context, r *models.Report) (int64, error) {
	const q = `
		INSERT INTO reports (source, text, lat, lon, ts, media_paths, has_media, media_verified, gps_accuracy_m, user_id, user_name)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING id
	`
	var id int64
	err := s.pool.QueryRow(ctx, q,
		string(r.Source), r.Text, r.Lat, r.Lon, r.Ts, r.MediaPaths, r.HasMedia, r.MediaVerified, r.GPSAccuracyM, r.UserID, r.UserName,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("save report: %w", err)
	}
	return id, nil
}

func (s *PostgresStore) GetReport(ctx context.Context, id int64) (*models.Report, error) {
	const q = `
		SELECT id, source, text, lat, lon, ts, media_paths, has_media, media_verified, gps_accuracy_m,
		       user_id, user_name, nlp_kind, nlp_conf, credibility, group_id, processed, severity_boost, keywords
		FROM reports WHERE id = $1
	`
	row := s.pool.QueryRow(ctx, q, id)
	r, err := scanReport(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("report %d: %w", id, apperr.ErrNotFound)
	}
	return r, err
}

func (s *PostgresStore) ListReports(ctx context.Context, limit, offset int) ([]models.Report, error) {
	const q = `
		SELECT id, source, text, lat, lon, ts, media_paths, has_media, media_verified, gps_accuracy_m,
		       user_id, user_name, nlp_kind, nlp_conf, credibility, group_id, processed, severity_boost, keywords
		FROM reports ORDER BY id DESC LIMIT $1 OFFSET $2
	`
	rows, err := s.pool.Query(ctx, q, normalizeLimit(limit), offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanReports(rows)
}

func (s *PostgresStore) UnprocessedReports(ctx context.Context, limit int) ([]models.Report, error) {
	const q = `
		SELECT id, source, text, lat, lon, ts, media_paths, has_media, media_verified, gps_accuracy_m,
		       user_id, user_name, nlp_kind, nlp_conf, credibility, group_id, processed, severity_boost, keywords
		FROM reports WHERE processed = false ORDER BY id ASC LIMIT $1
	`
	rows, err := s.pool.Query(ctx, q, normalizeLimit(limit))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanReports(rows)
}

func (s *PostgresStore) ReportsForDedup(ctx context.Context, excludeID int64) ([]models.Report, error) {
	const q = `
		SELECT id, source, text, lat, lon, ts, media_paths, has_media, media_verified, gps_accuracy_m,
		       user_id, user_name, nlp_kind, nlp_conf, credibility, group_id, processed, severity_boost, keywords
		FROM reports WHERE processed = true AND id != $1
	`
	rows, err := s.pool.Query(ctx, q, excludeID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanReports(rows)
}

func (s *PostgresStore) ReportsInGroup(ctx context.Context, groupID int64) ([]models.Report, error) {
	const q = `
		SELECT id, source, text, lat, lon, ts, media_paths, has_media, media_verified, gps_accuracy_m,
		       user_id, user_name, nlp_kind, nlp_conf, credibility, group_id, processed, severity_boost, keywords
		FROM reports WHERE group_id = $1 AND processed = true
	`
	rows, err := s.pool.Query(ctx, q, groupID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanReports(rows)
}

func (s *PostgresStore) MarkProcessed(ctx context.Context, r *models.Report) error {
	const q = `
		UPDATE reports
		SET nlp_kind = $2, nlp_conf = $3, credibility = $4, group_id = $5, processed = true,
		    severity_boost = $6, keywords = $7
		WHERE id = $1
	`
	_, err := s.pool.Exec(ctx, q, r.ID, string(r.NLPKind), r.NLPConf, r.Credibility, r.GroupID, r.SeverityBoost, r.Keywords)
	if err != nil {
		return fmt.Errorf("mark processed: %w", err)
	}
	return nil
}

func (s *PostgresStore) UpsertHazardEvent(ctx context.Context, e *models.HazardEvent) (int64, error) {
	evidenceJSON := []byte(e.Evidence)
	if len(evidenceJSON) == 0 {
		evidenceJSON = []byte("{}")
	}

	const q = `
		INSERT INTO hazard_events (group_id, hazard_kind, confidence, severity, status, centroid_lat, centroid_lon, evidence, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, now())
		ON CONFLICT (group_id) DO UPDATE SET
			hazard_kind  = CASE WHEN hazard_events.validated_at IS NULL THEN EXCLUDED.hazard_kind ELSE hazard_events.hazard_kind END,
			confidence   = CASE WHEN hazard_events.validated_at IS NULL THEN EXCLUDED.confidence ELSE hazard_events.confidence END,
			status       = CASE WHEN hazard_events.validated_at IS NULL THEN EXCLUDED.status ELSE hazard_events.status END,
			severity     = CASE WHEN hazard_events.validated_at IS NULL THEN EXCLUDED.severity ELSE hazard_events.severity END,
			centroid_lat = EXCLUDED.centroid_lat,
			centroid_lon = EXCLUDED.centroid_lon,
			evidence     = EXCLUDED.evidence,
			updated_at   = now()
		RETURNING id
	`
	var id int64
	err := s.pool.QueryRow(ctx, q, e.GroupID, string(e.Kind), e.Confidence, e.Severity, string(e.Status), e.CentroidLat, e.CentroidLon, evidenceJSON).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("upsert hazard event: %w", err)
	}
	return id, nil
}

func (s *PostgresStore) GetHazardEvent(ctx context.Context, id int64) (*models.HazardEvent, error) {
	const q = hazardEventSelect + ` WHERE id = $1`
	row := s.pool.QueryRow(ctx, q, id)
	e, err := scanHazardEvent(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("hazard event %d: %w", id, apperr.ErrNotFound)
	}
	return e, err
}

func (s *PostgresStore) GetHazardEventByGroup(ctx context.Context, groupID int64) (*models.HazardEvent, error) {
	const q = hazardEventSelect + ` WHERE group_id = $1`
	row := s.pool.QueryRow(ctx, q, groupID)
	e, err := scanHazardEvent(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return e, err
}

func (s *PostgresStore) ListHazardEvents(ctx context.Context, filter store.HazardFilter) ([]models.HazardEvent, error) {
	q := hazardEventSelect + ` WHERE 1=1`
	var args []any

	if filter.Status != "" {
		args = append(args, string(filter.Status))
		q += fmt.Sprintf(" AND status = $%d", len(args))
	}
	if !filter.Since.IsZero() {
		args = append(args, filter.Since)
		q += fmt.Sprintf(" AND updated_at >= $%d", len(args))
	}
	q += " ORDER BY id DESC"

	args = append(args, normalizeLimit(filter.Limit))
	q += fmt.Sprintf(" LIMIT $%d", len(args))

	args = append(args, filter.Offset)
	q += fmt.Sprintf(" OFFSET $%d", len(args))

	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []models.HazardEvent
	for rows.Next() {
		e, err := scanHazardEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, *e)
	}
	return events, nil
}

func (s *PostgresStore) ValidateHazardEvent(ctx context.Context, id int64, status models.EventStatus) error {
	const q = `
		UPDATE hazard_events SET
			status       = $2,
			confidence   = CASE
				WHEN $2 = 'approved' THEN LEAST(confidence + $3, 1.0)
				WHEN $2 = 'rejected' THEN GREATEST(confidence - $4, 0.0)
				ELSE confidence
			END,
			validated_at = now(),
			updated_at   = now()
		WHERE id = $1
	`
	tag, err := s.pool.Exec(ctx, q, id, string(status), store.ValidationApproveBoost, store.ValidationRejectPenalty)
	if err != nil {
		return fmt.Errorf("validate hazard event: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("hazard event %d: %w", id, apperr.ErrNotFound)
	}
	return nil
}

func (s *PostgresStore) ListBulletins(ctx context.Context, limit int) ([]models.Bulletin, error) {
	const q = `SELECT id, issued_at, hazard_kind, severity, description FROM bulletins ORDER BY issued_at DESC LIMIT $1`
	rows, err := s.pool.Query(ctx, q, normalizeLimit(limit))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var bulletins []models.Bulletin
	for rows.Next() {
		var b models.Bulletin
		var kind string
		if err := rows.Scan(&b.ID, &b.IssuedAt, &kind, &b.Severity, &b.Description); err != nil {
			return nil, err
		}
		b.Kind = models.HazardKind(kind)
		bulletins = append(bulletins, b)
	}
	return bulletins, nil
}

func (s *PostgresStore) Stats(ctx context.Context) (store.ProcessingStats, error) {
	var stats store.ProcessingStats
	err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM reports`).Scan(&stats.TotalReports)
	if err != nil {
		return stats, err
	}
	err = s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM reports WHERE processed = true`).Scan(&stats.ProcessedReports)
	if err != nil {
		return stats, err
	}
	stats.UnprocessedReports = stats.TotalReports - stats.ProcessedReports

	err = s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM hazard_events`).Scan(&stats.TotalEvents)
	if err != nil {
		return stats, err
	}
	err = s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM hazard_events WHERE status = 'emergency'`).Scan(&stats.EmergencyEvents)
	if err != nil {
		return stats, err
	}
	return stats, nil
}

const hazardEventSelect = `
	SELECT id, group_id, hazard_kind, confidence, severity, status, centroid_lat, centroid_lon, evidence,
	       created_at, updated_at, validated_at
	FROM hazard_events
`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanHazardEvent(row rowScanner) (*models.HazardEvent, error) {
	var e models.HazardEvent
	var kind, status string
	var evidenceBytes []byte
	var validatedAt *time.Time

	if err := row.Scan(&e.ID, &e.GroupID, &kind, &e.Confidence, &e.Severity, &status,
		&e.CentroidLat, &e.CentroidLon, &evidenceBytes, &e.CreatedAt, &e.UpdatedAt, &validatedAt); err != nil {
		return nil, err
	}
	e.Kind = models.HazardKind(kind)
	e.Status = models.EventStatus(status)
	e.Evidence = string(evidenceBytes)
	if validatedAt != nil {
		e.ValidatedAt = *validatedAt
	}
	return &e, nil
}

func scanReport(row rowScanner) (*models.Report, error) {
	var r models.Report
	var source, nlpKind string

	if err := row.Scan(&r.ID, &source, &r.Text, &r.Lat, &r.Lon, &r.Ts, &r.MediaPaths, &r.HasMedia, &r.MediaVerified,
		&r.GPSAccuracyM, &r.UserID, &r.UserName, &nlpKind, &r.NLPConf, &r.Credibility, &r.GroupID, &r.Processed,
		&r.SeverityBoost, &r.Keywords); err != nil {
		return nil, err
	}
	r.Source = models.SourceKind(source)
	r.NLPKind = models.HazardKind(nlpKind)
	return &r, nil
}

func scanReports(rows pgx.Rows) ([]models.Report, error) {
	var reports []models.Report
	for rows.Next() {
		r, err := scanReport(rows)
		if err != nil {
			return nil, err
		}
		reports = append(reports, *r)
	}
	return reports, rows.Err()
}

func normalizeLimit(limit int) int {
	if limit <= 0 || limit > 500 {
		return 50
	}
	return limit
}
