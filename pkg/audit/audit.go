// Package audit records security-relevant events: authentication
// outcomes, role and grant mutations, and denied access checks. The
// log is append-only and queried through filters.
package audit

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// Action constants
const (
	ActionRoleCreate      = "role.create"
	ActionRoleUpdate      = "role.update"
	ActionRoleDelete      = "role.delete"
	ActionRoleAssign      = "role.assign"
	ActionRoleRevoke      = "role.revoke"
	ActionPermissionGrant = "permission.grant"
	ActionTokenCreate     = "token.create"
	ActionTokenRevoke     = "token.revoke"
	ActionUserRegister    = "user.register"
	ActionAccessCheck     = "access.check"
	ActionAuthFailure     = "auth.failure"
)

// Status constants
const (
	StatusSuccess = "success"
	StatusFailure = "failure"
	StatusDenied  = "denied"
)

// Entry is one audit log record
type Entry struct {
	ID           int64     `json:"id"`
	ActorID      *int64    `json:"actor_id,omitempty"`
	Action       string    `json:"action"`
	ResourceType string    `json:"resource_type"`
	ResourceID   string    `json:"resource_id,omitempty"`
	Status       string    `json:"status"`
	ErrorMessage string    `json:"error_message,omitempty"`
	IPAddress    string    `json:"ip_address,omitempty"`
	UserAgent    string    `json:"user_agent,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

// Filters narrows a Query. Zero values mean "any".
type Filters struct {
	ActorID      *int64
	Action       string
	ResourceType string
	Status       string
	Since        *time.Time
	Until        *time.Time
	Limit        int
}

// Recorder writes and queries the audit log
type Recorder struct {
	db *sql.DB
}

// NewRecorder creates a recorder on the given database
func NewRecorder(db *sql.DB) *Recorder {
	return &Recorder{db: db}
}

// Record appends one entry to the log
func (r *Recorder) Record(ctx context.Context, entry *Entry) error {
	if entry.Action == "" {
		return fmt.Errorf("action is required")
	}
	if entry.ResourceType == "" {
		return fmt.Errorf("resource_type is required")
	}
	if entry.Status == "" {
		return fmt.Errorf("status is required")
	}

	entry.CreatedAt = time.Now().UTC()

	err := r.db.QueryRowContext(ctx, `
		INSERT INTO audit_logs (actor_id, action, resource_type, resource_id, status, error_message, ip_address, user_agent, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id`,
		entry.ActorID, entry.Action, entry.ResourceType, entry.ResourceID,
		entry.Status, entry.ErrorMessage, entry.IPAddress, entry.UserAgent, entry.CreatedAt,
	).Scan(&entry.ID)
	if err != nil {
		return fmt.Errorf("failed to record audit entry: %w", err)
	}
	return nil
}

// RecordRequest appends an entry enriched with the request's client
// address and user agent.
func (r *Recorder) RecordRequest(req *http.Request, actorID *int64, action, resourceType, resourceID, status string, cause error) error {
	entry := &Entry{
		ActorID:      actorID,
		Action:       action,
		ResourceType: resourceType,
		ResourceID:   resourceID,
		Status:       status,
		IPAddress:    clientIP(req),
		UserAgent:    req.UserAgent(),
	}
	if cause != nil {
		entry.ErrorMessage = cause.Error()
	}
	return r.Record(req.Context(), entry)
}

// Query returns entries matching the filters, newest first
func (r *Recorder) Query(ctx context.Context, filters Filters) ([]*Entry, error) {
	var (
		conditions []string
		args       []interface{}
	)

	addCondition := func(clause string, value interface{}) {
		args = append(args, value)
		conditions = append(conditions, fmt.Sprintf(clause, len(args)))
	}

	if filters.ActorID != nil {
		addCondition("actor_id = $%d", *filters.ActorID)
	}
	if filters.Action != "" {
		addCondition("action = $%d", filters.Action)
	}
	if filters.ResourceType != "" {
		addCondition("resource_type = $%d", filters.ResourceType)
	}
	if filters.Status != "" {
		addCondition("status = $%d", filters.Status)
	}
	if filters.Since != nil {
		addCondition("created_at >= $%d", *filters.Since)
	}
	if filters.Until != nil {
		addCondition("created_at <= $%d", *filters.Until)
	}

	query := `
		SELECT id, actor_id, action, resource_type, resource_id, status, error_message, ip_address, user_agent, created_at
		FROM audit_logs`
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY created_at DESC, id DESC"

	limit := filters.Limit
	if limit <= 0 {
		limit = 100
	}
	query += " LIMIT " + strconv.Itoa(limit)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit log: %w", err)
	}
	defer rows.Close()

	var entries []*Entry
	for rows.Next() {
		var entry Entry
		err := rows.Scan(
			&entry.ID,
			&entry.ActorID,
			&entry.Action,
			&entry.ResourceType,
			&entry.ResourceID,
			&entry.Status,
			&entry.ErrorMessage,
			&entry.IPAddress,
			&entry.UserAgent,
			&entry.CreatedAt,
		)
		if err != nil {
			return nil, err
		}
		entries = append(entries, &entry)
	}
	return entries, rows.Err()
}

func clientIP(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		// First hop is the original client.
		if idx := strings.IndexByte(forwarded, ','); idx >= 0 {
			return strings.TrimSpace(forwarded[:idx])
		}
		return forwarded
	}
	if realIP := r.Header.Get("X-Real-IP"); realIP != "" {
		return realIP
	}
	return r.RemoteAddr
}
