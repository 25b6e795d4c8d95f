package pkg

// DefaultSessionID is used when a chat request does not name a session,
// which is the case for single-user front ends.
const DefaultSessionID = "default_session"

// ChatRequest is the body of POST /chat.
type ChatRequest struct {
	Message   string `json:"message"`
	SessionID string `json:"session_id,omitempty"`
}

// ChatResponse is the success body of POST /chat.
type ChatResponse struct {
	Reply string `json:"reply"`
}

// StatusResponse is returned by GET /.
type StatusResponse struct {
	Status string `json:"status"`
}

// ErrorResponse carries a user-facing error message.  It never contains
// internal detail.
type ErrorResponse struct {
	Detail string `json:"detail"`
}
