// Package relay forwards messages from chat platforms to the chatbot's HTTP
// API and relays the replies back.
package relay

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"

	"medassist-chatbot/pkg"
)

// Replies sent to users when the API cannot answer.
const (
	MsgAPIError    = "Sorry, my brain is not working right now."
	MsgUnreachable = "I'm having trouble connecting to my knowledge base."
	MsgNoReply     = "No reply found."
)

// DefaultTimeout bounds one call to the chat API.
const DefaultTimeout = 120 * time.Second

// APIClient calls POST /chat on a running API server.
type APIClient struct {
	url    string
	client *resty.Client
	logger *slog.Logger
}

// NewAPIClient returns a client for the /chat endpoint at url.
func NewAPIClient(url string, timeout time.Duration, logger *slog.Logger) *APIClient {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	client := resty.New()
	client.SetTimeout(timeout)
	client.SetHeader("Content-Type", "application/json")
	return &APIClient{url: url, client: client, logger: logger}
}

// chatReply leaves Reply nil when the field is absent.
type chatReply struct {
	Reply *string `json:"reply"`
}

// Reply returns the API's answer to text for sessionID.  Failures never
// surface as errors; they are logged and mapped to a fixed apology.
func (c *APIClient) Reply(ctx context.Context, sessionID, text string) string {
	var out chatReply
	resp, err := c.client.R().
		SetContext(ctx).
		SetBody(pkg.ChatRequest{Message: text, SessionID: sessionID}).
		SetResult(&out).
		Post(c.url)
	if err != nil {
		c.logger.Error("could not reach chat API", "url", c.url, "error", err)
		return MsgUnreachable
	}
	if resp.StatusCode() != http.StatusOK {
		c.logger.Error("chat API returned an error", "status", resp.StatusCode(), "body", resp.String())
		return MsgAPIError
	}
	if out.Reply == nil {
		return MsgNoReply
	}
	return *out.Reply
}
