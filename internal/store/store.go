// Package store defines the persistence contract the pipeline, API, and
// broadcaster depend on. internal/db provides the pgx/v5-backed
// implementation; tests can substitute a fake that implements Store.
package store

import (
	"context"
	"time"

	"github.com/oceanguard/hazard-fusion/pkg/models"
)

// HazardFilter narrows a hazard-event read by status and recency; a zero
// value matches everything.
type HazardFilter struct {
	Status EventStatusFilter
	Since  time.Time
	Limit  int
	Offset int
}

// EventStatusFilter optionally restricts a query to one status; empty
// means no restriction.
type EventStatusFilter string

// Confidence adjustments an administrator's validate decision applies on
// top of the event's current (fused) confidence, per §4.4/§6.
const (
	ValidationApproveBoost  = 0.20
	ValidationRejectPenalty = 0.30
)

// Store is the persistence contract for the hazard fusion engine.
type Store interface {
	// SaveReport inserts a new raw report and returns its assigned ID.
	SaveReport(ctx context.Context, r *models.Report) (int64, error)

	// GetReport fetches a single report by ID.
	GetReport(ctx context.Context, id int64) (*models.Report, error)

	// ListReports returns reports, most recent first, paginated.
	ListReports(ctx context.Context, limit, offset int) ([]models.Report, error)

	// UnprocessedReports returns reports with processed=false, oldest first,
	// capped at limit — used by the sweep retry loop.
	UnprocessedReports(ctx context.Context, limit int) ([]models.Report, error)

	// ReportsForDedup returns already-processed reports available as
	// clustering candidates (excluding excludeID).
	ReportsForDedup(ctx context.Context, excludeID int64) ([]models.Report, error)

	// ReportsInGroup returns every processed report sharing groupID.
	ReportsInGroup(ctx context.Context, groupID int64) ([]models.Report, error)

	// MarkProcessed atomically stamps a report's derived classification,
	// credibility, and group assignment, and flips processed=true.
	MarkProcessed(ctx context.Context, r *models.Report) error

	// UpsertHazardEvent writes the fused result for groupID, creating a new
	// event row or updating the existing one keyed by groupID. It returns
	// the event's ID. If the existing event is pinned (ValidatedAt set),
	// the store keeps its Kind/Confidence/Severity/Status and updates only
	// the centroid and evidence — pinning is enforced here, not by the
	// caller.
	UpsertHazardEvent(ctx context.Context, e *models.HazardEvent) (int64, error)

	// GetHazardEvent fetches a single event by ID.
	GetHazardEvent(ctx context.Context, id int64) (*models.HazardEvent, error)

	// GetHazardEventByGroup fetches the event fused from a given groupID.
	// Returns (nil, nil) — not an error — when no event exists yet for
	// that group.
	GetHazardEventByGroup(ctx context.Context, groupID int64) (*models.HazardEvent, error)

	// ListHazardEvents returns events matching filter, most recent first.
	ListHazardEvents(ctx context.Context, filter HazardFilter) ([]models.HazardEvent, error)

	// ValidateHazardEvent applies an administrator's terminal decision,
	// setting Status and ValidatedAt so subsequent fusion treats the event
	// as pinned. Approving boosts confidence by ValidationApproveBoost
	// (capped at 1.0); rejecting cuts it by ValidationRejectPenalty
	// (floored at 0.0); any other status leaves confidence untouched.
	ValidateHazardEvent(ctx context.Context, id int64, status models.EventStatus) error

	// ListBulletins returns official bulletins, most recent first.
	ListBulletins(ctx context.Context, limit int) ([]models.Bulletin, error)

	// Stats returns the counters behind GET /api/v1/stats.
	Stats(ctx context.Context) (ProcessingStats, error)
}

// ProcessingStats mirrors the original system's get_processing_stats.
type ProcessingStats struct {
	TotalReports       int `json:"totalReports"`
	ProcessedReports   int `json:"processedReports"`
	UnprocessedReports int `json:"unprocessedReports"`
	TotalEvents        int `json:"totalEvents"`
	EmergencyEvents    int `json:"emergencyEvents"`
}
