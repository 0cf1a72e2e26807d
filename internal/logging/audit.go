package logging

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// AuditEventType identifies the kind of audited orchestration event.
type AuditEventType string

const (
	AuditJobCreated        AuditEventType = "job_created"
	AuditJobStarted        AuditEventType = "job_started"
	AuditJobCompleted      AuditEventType = "job_completed"
	AuditJobFailed         AuditEventType = "job_failed"
	AuditJobCancelled      AuditEventType = "job_cancelled"
	AuditSubtaskDispatched AuditEventType = "subtask_dispatched"
	AuditSubtaskCompleted  AuditEventType = "subtask_completed"
	AuditSubtaskFailed     AuditEventType = "subtask_failed"
	AuditSubtaskRetried    AuditEventType = "subtask_retried"
	AuditReviewRequested   AuditEventType = "review_requested"
	AuditReviewApproved    AuditEventType = "review_approved"
	AuditReviewRejected    AuditEventType = "review_rejected"
	AuditReservationGrant  AuditEventType = "reservation_granted"
	AuditReservationDeny   AuditEventType = "reservation_denied"
	AuditReservationExpire AuditEventType = "reservation_expired"
)

// AuditEvent is a single structured audit record.
type AuditEvent struct {
	Timestamp time.Time              `json:"timestamp"`
	Type      AuditEventType         `json:"type"`
	JobID     string                 `json:"job_id,omitempty"`
	SubtaskID string                 `json:"subtask_id,omitempty"`
	Actor     string                 `json:"actor,omitempty"`
	Detail    string                 `json:"detail,omitempty"`
	Fields    map[string]interface{} `json:"fields,omitempty"`
}

// AuditLogger appends structured audit events to a dedicated JSONL file.
type AuditLogger struct {
	mu   sync.Mutex
	file *os.File
	enc  *json.Encoder
}

var (
	auditLogger   *AuditLogger
	auditLoggerMu sync.Mutex
)

// InitAudit opens (or creates) the audit log file under .swarm/logs.
// A no-op AuditLogger is returned when debug mode is off.
func InitAudit() (*AuditLogger, error) {
	auditLoggerMu.Lock()
	defer auditLoggerMu.Unlock()

	if auditLogger != nil {
		return auditLogger, nil
	}

	if !IsDebugMode() {
		auditLogger = &AuditLogger{}
		return auditLogger, nil
	}

	if logsDir == "" {
		auditLogger = &AuditLogger{}
		return auditLogger, nil
	}

	if err := os.MkdirAll(logsDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create logs directory: %w", err)
	}

	path := filepath.Join(logsDir, "audit.jsonl")
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open audit log: %w", err)
	}

	auditLogger = &AuditLogger{file: f, enc: json.NewEncoder(f)}
	return auditLogger, nil
}

// Audit returns the process-wide audit logger, initializing a no-op one
// if InitAudit has not yet been called.
func Audit() *AuditLogger {
	auditLoggerMu.Lock()
	defer auditLoggerMu.Unlock()
	if auditLogger == nil {
		auditLogger = &AuditLogger{}
	}
	return auditLogger
}

// Record appends an audit event. Safe to call on a nil-backed (no-op) logger.
func (a *AuditLogger) Record(evt AuditEvent) {
	if a == nil || a.enc == nil {
		return
	}
	evt.Timestamp = time.Now().UTC()

	a.mu.Lock()
	defer a.mu.Unlock()
	if err := a.enc.Encode(evt); err != nil {
		Get(CategoryBoot).Warn("audit encode failed: %v", err)
	}
}

// Job records a job-lifecycle audit event.
func (a *AuditLogger) Job(evtType AuditEventType, jobID, detail string) {
	a.Record(AuditEvent{Type: evtType, JobID: jobID, Detail: detail})
}

// Subtask records a subtask-lifecycle audit event.
func (a *AuditLogger) Subtask(evtType AuditEventType, jobID, subtaskID, actor, detail string) {
	a.Record(AuditEvent{Type: evtType, JobID: jobID, SubtaskID: subtaskID, Actor: actor, Detail: detail})
}

// Review records a review-gate decision.
func (a *AuditLogger) Review(evtType AuditEventType, jobID, subtaskID, actor, detail string) {
	a.Record(AuditEvent{Type: evtType, JobID: jobID, SubtaskID: subtaskID, Actor: actor, Detail: detail})
}

// Reservation records a reservation registry decision.
func (a *AuditLogger) Reservation(evtType AuditEventType, actor, detail string, fields map[string]interface{}) {
	a.Record(AuditEvent{Type: evtType, Actor: actor, Detail: detail, Fields: fields})
}

// Close flushes and closes the underlying audit file, if any.
func (a *AuditLogger) Close() error {
	if a == nil || a.file == nil {
		return nil
	}
	return a.file.Close()
}
