package log

const (
	// Request
	FieldRequestID = "request_id"
	FieldMethod    = "method"
	FieldPath      = "path"
	FieldStatus    = "status"
	FieldLatency   = "latency_ms"
	FieldClientIP  = "client_ip"

	// Actor (matches pkg/middleware/auth.go keys)
	FieldUserID = "user_id"

	// Relay
	FieldClientID   = "client_id"
	FieldReceiverID = "receiver_id"
	FieldMessageID  = "message_id"
	FieldFrameType  = "frame_type"
	FieldHandles    = "handles"

	// Service
	FieldService = "service"

	// Log type (for audit log)
	FieldLogType = "log_type"
	LogTypeAudit = "audit"
)
