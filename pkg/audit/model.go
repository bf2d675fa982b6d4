// Package audit implements the append-only, privacy-preserving audit trail.
// Request and response logging accept metadata only; the method signatures
// make it impossible to hand over prompt or completion text.
package audit

import (
	"time"
)

// EventType is the closed enumeration of auditable event categories.
type EventType string

const (
	EventKeyAccess          EventType = "key_access"
	EventKeyCreation        EventType = "key_creation"
	EventKeyRotation        EventType = "key_rotation"
	EventKeyDeletion        EventType = "key_deletion"
	EventRequest            EventType = "request"
	EventResponse           EventType = "response"
	EventProviderError      EventType = "provider_error"
	EventConfigChange       EventType = "config_change"
	EventAccessDenied       EventType = "access_denied"
	EventQuotaExceeded      EventType = "quota_exceeded"
	EventSuspiciousActivity EventType = "suspicious_activity"
)

// Severity orders event importance: info < notice < warning < error < critical.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityNotice   Severity = "notice"
	SeverityWarning  Severity = "warning"
	SeverityError    Severity = "error"
	SeverityCritical Severity = "critical"
)

// Rank returns the ordering position of a severity; unknown values rank
// below info so they never satisfy an "error or above" test by accident.
func (s Severity) Rank() int {
	switch s {
	case SeverityInfo:
		return 1
	case SeverityNotice:
		return 2
	case SeverityWarning:
		return 3
	case SeverityError:
		return 4
	case SeverityCritical:
		return 5
	default:
		return 0
	}
}

// Event is one immutable audit record, mirroring the audit_events table.
// Only the anonymization routine ever mutates a stored event, and then only
// to clear the actor-identifying columns.
type Event struct {
	ID            uint      `gorm:"primaryKey"`
	EventType     EventType `gorm:"column:event_type;index"`
	Severity      Severity  `gorm:"index"`
	Message       string
	ActorID       string `gorm:"column:actor_id;index"`
	ActorName     string `gorm:"column:actor_name"`
	SourceAddress string `gorm:"column:source_address"`
	UserAgent     string `gorm:"column:user_agent"`
	DetailJSON    string `gorm:"column:detail_json"`
	CreatedAt     time.Time `gorm:"index"`
	Anonymized    bool      `gorm:"index"`
}

// TableName pins the table name expected by the host schema.
func (Event) TableName() string { return "audit_events" }

// RequestMeta is the only payload the request logger accepts. Token counts,
// lengths and identifiers — never content.
type RequestMeta struct {
	Provider     string
	Model        string
	PromptTokens int
	PromptLength int
}

// ResponseMeta is the metadata-only payload for inbound responses.
type ResponseMeta struct {
	Provider         string
	Model            string
	CompletionTokens int
	ContentLength    int
	Duration         time.Duration
	Status           string
}

// Filter narrows a Query call. Zero fields are ignored.
type Filter struct {
	EventType EventType
	Severity  Severity
	ActorID   string
	Since     time.Time
	Until     time.Time
	Limit     int
	Offset    int
}
