package services

import "context"

// recordAudit writes the entry, dropping it when the audit service is absent
// or failing. Domain operations never fail on audit problems.
func recordAudit(audit *AuditService, ctx context.Context, entry AuditEntry) {
	if audit == nil {
		return
	}
	_ = audit.Log(ctx, entry)
}
