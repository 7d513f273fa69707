// Package audit provides security audit logging for SIEM consumption.
// It logs security-relevant events in structured JSON format for easy parsing
// and integration with security information and event management systems.
package audit

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// SecurityEventType categorizes security-relevant events for filtering and alerting.
type SecurityEventType string

const (
	// EventSubmissionFlagged is logged when intake screening finds
	// injection-shaped content in a public submission.
	EventSubmissionFlagged SecurityEventType = "submission_flagged"
	// EventLoginFailed is logged when operator credential verification fails.
	EventLoginFailed SecurityEventType = "login_failed"
	// EventLoginSucceeded is logged on successful operator login.
	EventLoginSucceeded SecurityEventType = "login_succeeded"
)

// SecurityEvent represents an auditable security event with all relevant context
// for SIEM ingestion and analysis.
type SecurityEvent struct {
	Timestamp time.Time         `json:"timestamp"`
	EventType SecurityEventType `json:"event_type"`
	DraftID   uuid.UUID         `json:"draft_id,omitempty"`
	Actor     string            `json:"actor,omitempty"`
	ClientIP  string            `json:"client_ip,omitempty"`
	Details   any               `json:"details"`
	Severity  string            `json:"severity"` // info, warning, critical
}

// FlaggedSubmissionDetails contains specifics of a screening hit on a draft.
type FlaggedSubmissionDetails struct {
	Fields []string `json:"fields"`
	Reason string   `json:"reason"`
	Source string   `json:"source"`
}

type contextKey string

// clientIPKey carries the remote address set by the request logging middleware.
const clientIPKey contextKey = "client_ip"

// WithClientIP stores the request's remote address in the context.
func WithClientIP(ctx context.Context, ip string) context.Context {
	return context.WithValue(ctx, clientIPKey, ip)
}

// ClientIPFromContext returns the remote address stored by the middleware,
// or empty when the call did not come through HTTP.
func ClientIPFromContext(ctx context.Context) string {
	ip, _ := ctx.Value(clientIPKey).(string)
	return ip
}

// SecurityAuditor logs security events for SIEM consumption.
// Events are logged in structured JSON format with appropriate severity levels.
type SecurityAuditor struct {
	logger *zap.Logger
}

// NewSecurityAuditor creates a new security auditor with a dedicated logger namespace.
// The logger is automatically configured with "security_audit" namespace for easy
// filtering in SIEM systems.
func NewSecurityAuditor(logger *zap.Logger) *SecurityAuditor {
	securityLogger := logger.Named("security_audit")
	return &SecurityAuditor{logger: securityLogger}
}

// LogSubmissionFlagged records a submission that screening flagged for review.
// Logged at WARN: flagged drafts still flow through review, they are never
// rejected outright.
func (a *SecurityAuditor) LogSubmissionFlagged(ctx context.Context, draftID uuid.UUID, details FlaggedSubmissionDetails) {
	clientIP := ClientIPFromContext(ctx)

	event := SecurityEvent{
		Timestamp: time.Now().UTC(),
		EventType: EventSubmissionFlagged,
		DraftID:   draftID,
		ClientIP:  clientIP,
		Details:   details,
		Severity:  "warning",
	}

	// Serialize event to JSON for SIEM ingestion
	// Ignoring error as marshaling known types should never fail
	eventJSON, _ := json.Marshal(event)

	a.logger.Warn("Submission flagged by intake screening",
		zap.String("event_json", string(eventJSON)),
		zap.String("draft_id", draftID.String()),
		zap.Strings("fields", details.Fields),
		zap.String("client_ip", clientIP),
		zap.String("severity", "warning"),
	)
}

// LogLoginAttempt records the outcome of an operator credential check.
// Failures are logged at WARN for alerting on credential stuffing.
func (a *SecurityAuditor) LogLoginAttempt(ctx context.Context, email string, succeeded bool) {
	clientIP := ClientIPFromContext(ctx)

	eventType := EventLoginSucceeded
	severity := "info"
	if !succeeded {
		eventType = EventLoginFailed
		severity = "warning"
	}

	event := SecurityEvent{
		Timestamp: time.Now().UTC(),
		EventType: eventType,
		Actor:     email,
		ClientIP:  clientIP,
		Severity:  severity,
	}

	eventJSON, _ := json.Marshal(event)

	if succeeded {
		a.logger.Info("Operator login succeeded",
			zap.String("event_json", string(eventJSON)),
			zap.String("actor", email),
			zap.String("client_ip", clientIP),
			zap.String("severity", severity),
		)
		return
	}
	a.logger.Warn("Operator login failed",
		zap.String("event_json", string(eventJSON)),
		zap.String("actor", email),
		zap.String("client_ip", clientIP),
		zap.String("severity", severity),
	)
}
