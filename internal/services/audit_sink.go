package services

import (
	"context"
	"strings"

	"github.com/mwhitfield/ledgerline/internal/auditctx"
)

// FlagAuditSink adapts the audit service to the flag administration's sink
// interface, attaching actor context from the request when present.
type FlagAuditSink struct {
	audit *AuditService
}

// NewFlagAuditSink wraps an audit service. A nil audit service yields a
// sink that drops events.
func NewFlagAuditSink(audit *AuditService) *FlagAuditSink {
	return &FlagAuditSink{audit: audit}
}

// LogEvent records one flag administration event.
func (s *FlagAuditSink) LogEvent(ctx context.Context, action, resource, result string, metadata map[string]any) {
	if s == nil || s.audit == nil {
		return
	}

	entry := AuditEntry{
		Action:   action,
		Resource: "feature_flag",
		EntityID: strings.TrimPrefix(resource, "feature:"),
		Result:   result,
		Metadata: metadata,
	}

	if actor, ok := auditctx.FromContext(ctx); ok {
		if actor.UserID != "" {
			id := actor.UserID
			entry.UserID = &id
		}
		entry.Username = actor.Username
		entry.IPAddress = actor.IPAddress
		entry.UserAgent = actor.UserAgent
	}

	recordAudit(s.audit, ctx, entry)
}
