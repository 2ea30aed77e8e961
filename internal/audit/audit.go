package audit

import (
	"context"

	"github.com/mihastele/social-space-harry/pkg/log"
)

// Audit actions for the chat relay.
const (
	ActionAuth        = "chat.auth"
	ActionAuthFailed  = "chat.auth_failed"
	ActionSendMessage = "chat.send_message"
	ActionSendFailed  = "chat.send_failed"
	ActionDisconnect  = "chat.disconnect"
)

// Field constants for audit entries.
const (
	FieldAction   = "action"
	FieldTargetID = "target_id"
	FieldDetail   = "detail"
)

// Log emits a structured audit log entry via the context logger.
func Log(ctx context.Context, action string, userID string, msg string) {
	l := log.Ctx(ctx)
	l.Info().
		Str(log.FieldLogType, log.LogTypeAudit).
		Str(FieldAction, action).
		Str(log.FieldUserID, userID).
		Msg(msg)
}

// LogTarget emits an audit entry about an action aimed at another user.
func LogTarget(ctx context.Context, action string, userID, targetID, detail string, msg string) {
	l := log.Ctx(ctx)
	evt := l.Info().
		Str(log.FieldLogType, log.LogTypeAudit).
		Str(FieldAction, action).
		Str(log.FieldUserID, userID).
		Str(FieldTargetID, targetID)
	if detail != "" {
		evt = evt.Str(FieldDetail, detail)
	}
	evt.Msg(msg)
}
