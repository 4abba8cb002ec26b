package log

const (
	// Request
	FieldRequestID = "request_id"
	FieldMethod    = "method"
	FieldPath      = "path"
	FieldStatus    = "status"
	FieldLatency   = "latency_ms"
	FieldClientIP  = "client_ip"

	// Actor
	FieldUserID   = "user_id"
	FieldUsername = "username"

	// Relay
	FieldRoom      = "room"
	FieldSessionID = "session_id"
	FieldMessageID = "message_id"
	FieldKind      = "message_type"
	FieldState     = "state"

	// Service
	FieldService = "service"
	FieldBackend = "backend"
)
