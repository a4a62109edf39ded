package models

import "time"

// Audit actions
const (
	AuditActionBlockIP         = "block_ip"
	AuditActionUnblockIP       = "unblock_ip"
	AuditActionAutoBlockIP     = "auto_block_ip"
	AuditActionWhitelistAdd    = "whitelist_add"
	AuditActionWhitelistRemove = "whitelist_remove"
	AuditActionAnomalySafe     = "anomaly_mark_safe"
	AuditActionAnomalyBlock    = "anomaly_block"
)

// Audit subject types
const (
	AuditSubjectIP      = "ip_address"
	AuditSubjectAnomaly = "anomaly"
)

// AuditEvent is one row in the operator-facing audit trail:
// (action, subject_type, subject_id, detail, actor_id)
type AuditEvent struct {
	ID          string    `db:"id"`
	Action      string    `db:"action"`
	SubjectType string    `db:"subject_type"`
	SubjectID   string    `db:"subject_id"`
	Detail      string    `db:"detail"`
	ActorID     string    `db:"actor_id"` // "system" for automated actions
	CreatedAt   time.Time `db:"created_at"`
}
