package models

import "time"

// Status is the lifecycle state of a conversion record.
// Transitions are strictly queued -> processing -> {completed | failed};
// terminal states are never left.
type Status string

const (
	StatusQueued     Status = "queued"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// Terminal reports whether no further transition is allowed.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Tier is the caller's service level. It determines the file size ceiling,
// the monthly conversion quota and queue priority.
type Tier string

const (
	TierFree         Tier = "free"
	TierStarter      Tier = "starter"
	TierProfessional Tier = "professional"
	TierEnterprise   Tier = "enterprise"
)

// ParseTier maps a raw tier string to a known tier, defaulting to free.
func ParseTier(s string) Tier {
	switch Tier(s) {
	case TierStarter, TierProfessional, TierEnterprise:
		return Tier(s)
	default:
		return TierFree
	}
}

// MaxFileSize returns the inclusive byte ceiling for uploads on this tier.
// Enterprise shows as "unlimited" in marketing copy but carries a 10GB
// practical limit.
func (t Tier) MaxFileSize() int64 {
	switch t {
	case TierStarter:
		return 500 * 1024 * 1024
	case TierProfessional:
		return 2 * 1024 * 1024 * 1024
	case TierEnterprise:
		return 10 * 1024 * 1024 * 1024
	default:
		return 100 * 1024 * 1024
	}
}

// MonthlyQuota returns the number of conversions allowed per calendar month
// for authenticated callers. Zero means unbounded.
func (t Tier) MonthlyQuota() int {
	switch t {
	case TierStarter:
		return 1000
	case TierProfessional:
		return 10000
	case TierEnterprise:
		return 0
	default:
		return 200
	}
}

// RejectionKind classifies why the admission gate turned a request away.
type RejectionKind string

const (
	RejectUnsupportedPair RejectionKind = "unsupported_pair"
	RejectSizeExceeded    RejectionKind = "size_exceeded"
	RejectQuotaExceeded   RejectionKind = "quota_exceeded"
	RejectContentMismatch RejectionKind = "content_mismatch"
)

// ConversionRecord is the durable entity tracking one conversion. It is
// created only after admission passes and is owned by the orchestration
// engine; clients poll it for status.
type ConversionRecord struct {
	ID           string    `json:"id"`
	OwnerID      string    `json:"ownerId,omitempty"`
	SourceFormat string    `json:"sourceFormat"`
	TargetFormat string    `json:"targetFormat"`
	Status       Status    `json:"status"`
	InputKey     string    `json:"-"`
	OutputURL    string    `json:"outputUrl,omitempty"`
	ErrorDetail  string    `json:"error,omitempty"`
	FileSize     int64     `json:"fileSize"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// ConversionOptions are passed through to the external converter.
type ConversionOptions struct {
	Quality     int  `json:"quality,omitempty"`
	Compression bool `json:"compression,omitempty"`
}

// Queue priorities. Authenticated requests outrank anonymous ones; this is
// a scheduling hint, not a strict ordering guarantee.
const (
	PriorityAnonymous     = 0
	PriorityAuthenticated = 1
)

// Job is the queue's unit of work. It references a ConversionRecord and
// carries everything a worker needs so the hot path never re-reads the
// record before converting.
type Job struct {
	RecordID     string            `json:"recordId"`
	OwnerID      string            `json:"ownerId,omitempty"`
	SourceFormat string            `json:"sourceFormat"`
	TargetFormat string            `json:"targetFormat"`
	InputKey     string            `json:"inputKey"`
	OutputKey    string            `json:"outputKey"`
	FileSize     int64             `json:"fileSize"`
	Tier         Tier              `json:"tier"`
	Options      ConversionOptions `json:"options"`
	Attempts     int               `json:"attempts"`
	MaxAttempts  int               `json:"maxAttempts"`
	Stalls       int               `json:"stalls"`
	Priority     int               `json:"priority"`
	EnqueuedAt   time.Time         `json:"enqueuedAt"`
}

// Authenticated reports whether the job belongs to a signed-in owner.
func (j *Job) Authenticated() bool {
	return j.OwnerID != ""
}
