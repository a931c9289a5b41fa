package model

import "time"

// AuditKind distinguishes render attempts from delivery attempts.
type AuditKind string

const (
	AuditRender   AuditKind = "render"
	AuditDelivery AuditKind = "delivery"
)

// AuditStatus is the outcome of an audited attempt.
type AuditStatus string

const (
	AuditSuccess AuditStatus = "success"
	AuditFailed  AuditStatus = "failed"
)

// AuditEntry is an append-only record of one render or delivery attempt.
type AuditEntry struct {
	ID        string      `json:"id"`
	Kind      AuditKind   `json:"kind"`
	AdvisorID string      `json:"advisor_id"`
	Period    string      `json:"period"`
	Channel   string      `json:"channel,omitempty"`
	Recipient string      `json:"recipient,omitempty"`
	Subject   string      `json:"subject,omitempty"`
	Template  string      `json:"template,omitempty"`
	Artifact  string      `json:"artifact,omitempty"`
	Status    AuditStatus `json:"status"`
	Error     string      `json:"error,omitempty"`
	CreatedAt time.Time   `json:"created_at"`
}
