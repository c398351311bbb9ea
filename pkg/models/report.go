// Package models holds the wire/storage types shared by every layer of the
// hazard fusion engine: reports, hazard events, bulletins, and the closed
// enums that tag them.
package models

import "time"

// SourceKind identifies where a Report originated. Closed set; unknown
// strings parse to SourceUnknown rather than failing, since an
// unrecognized source still carries a report worth scoring at the lowest
// trust tier.
type SourceKind string

const (
	SourceINCOIS  SourceKind = "incois"
	SourceLoRa    SourceKind = "lora"
	SourceCitizen SourceKind = "citizen"
	SourceSocial  SourceKind = "social"
	SourceUnknown SourceKind = "unknown"
)

// ParseSourceKind translates an external string into a SourceKind at the
// ingress boundary. Never fails — unrecognized sources become SourceUnknown.
func ParseSourceKind(s string) SourceKind {
	switch SourceKind(s) {
	case SourceINCOIS, SourceLoRa, SourceCitizen, SourceSocial:
		return SourceKind(s)
	default:
		return SourceUnknown
	}
}

// HazardKind is the closed set of hazard classifications the classifier and
// fusion engine can produce.
type HazardKind string

const (
	HazardFlood      HazardKind = "flood"
	HazardTsunami    HazardKind = "tsunami"
	HazardTides      HazardKind = "tides"
	HazardEarthquake HazardKind = "earthquake"
	HazardLandslide  HazardKind = "landslide"
	HazardEmergency  HazardKind = "emergency"
	HazardUnknown    HazardKind = "unknown"
)

// EventStatus is the hazard-event lifecycle state machine, §4.4.
type EventStatus string

const (
	StatusReview    EventStatus = "review"
	StatusPending   EventStatus = "pending"
	StatusConfirmed EventStatus = "confirmed"
	StatusEmergency EventStatus = "emergency"
	StatusApproved  EventStatus = "approved"
	StatusRejected  EventStatus = "rejected"
)

// Report is a single geolocated observation from one source. Fields below
// "Derived" are written exactly once, by the pipeline, and must not change
// after Processed flips true.
type Report struct {
	ID     int64      `json:"id"`
	Source SourceKind `json:"source"`
	Text   string     `json:"text"`
	Lat    float64    `json:"lat"`
	Lon    float64    `json:"lon"`
	Ts     time.Time  `json:"timestamp"`

	MediaPaths    []string `json:"mediaPaths,omitempty"`
	HasMedia      bool     `json:"hasMedia"`
	MediaVerified bool     `json:"mediaVerified"`
	GPSAccuracyM  *float64 `json:"gpsAccuracyM,omitempty"`

	UserID   *int64 `json:"userId,omitempty"`
	UserName string `json:"userName,omitempty"`

	// Derived — written once by the pipeline.
	NLPKind     HazardKind `json:"nlpKind"`
	NLPConf     float64    `json:"nlpConf"`
	Credibility float64    `json:"credibility"`
	GroupID     int64      `json:"groupId"`
	Processed   bool       `json:"processed"`

	SeverityBoost int      `json:"severityBoost"`
	Keywords      []string `json:"keywords,omitempty"`
}

// HazardEvent is the fused, user-visible snapshot of a group of reports.
// Rewritten on every re-fuse of its group; terminal transitions
// (approved/rejected) are applied by the admin-validation hook and pinned
// against subsequent automatic re-fuses (§9 decision (a)).
type HazardEvent struct {
	ID          int64       `json:"id"`
	GroupID     int64       `json:"groupId"`
	Kind        HazardKind  `json:"hazardKind"`
	Confidence  float64     `json:"confidence"`
	Severity    int         `json:"severity"`
	Status      EventStatus `json:"status"`
	CentroidLat float64     `json:"centroidLat"`
	CentroidLon float64     `json:"centroidLon"`
	Evidence    string      `json:"evidence"` // JSON blob, opaque to callers
	CreatedAt   time.Time   `json:"createdAt"`
	UpdatedAt   time.Time   `json:"updatedAt"`

	// ValidatedAt is non-zero once an administrator has set a status through
	// the validate hook (approved, rejected, pending or review); fusion after
	// that point still runs (to
	// keep the evidence blob current) but must not overwrite Status or
	// Confidence.
	ValidatedAt time.Time `json:"validatedAt,omitempty"`
}

// Pinned reports whether this event's Status/Confidence are frozen against
// automatic re-fusion, per §9 decision (a).
func (e *HazardEvent) Pinned() bool {
	return !e.ValidatedAt.IsZero()
}

// Bulletin is a read-only official feed record used only for read-side
// correlation; it never feeds back into fusion directly. A bulletin is
// ingested as an INCOIS-sourced Report when it should influence fusion.
type Bulletin struct {
	ID          int64      `json:"id"`
	IssuedAt    time.Time  `json:"issuedAt"`
	Kind        HazardKind `json:"hazardKind"`
	Severity    int        `json:"severity"`
	Description string     `json:"description"`
}

// EvidenceBlob is the structured form of HazardEvent.Evidence; marshaled to
// JSON for storage and unmarshaled back for inspection. Key order in the
// emitted JSON is not a contract — callers must compare by value, not text.
type EvidenceBlob struct {
	ReportCount         int            `json:"reportCount"`
	SourceCounts        map[string]int `json:"sourceCounts"`
	NLPConfidences      []float64      `json:"nlpConfidences"`
	CredibilityScores   []float64      `json:"credibilityScores"`
	ReportIDs           []int64        `json:"reportIds"`
	EarliestTimestamp   time.Time      `json:"earliestTimestamp"`
	LatestTimestamp     time.Time      `json:"latestTimestamp"`
	UniqueDescriptions  []string       `json:"uniqueDescriptions"`
	Keywords            []string       `json:"keywords"`
}
