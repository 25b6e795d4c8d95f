package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingClient struct {
	calls    atomic.Int32
	inFlight atomic.Int32
	peak     atomic.Int32
	delay    time.Duration
}

func (c *countingClient) Model() string { return "counting" }

func (c *countingClient) Chat(ctx context.Context, _ []Message) (string, error) {
	c.calls.Add(1)
	n := c.inFlight.Add(1)
	defer c.inFlight.Add(-1)
	for {
		p := c.peak.Load()
		if n <= p || c.peak.CompareAndSwap(p, n) {
			break
		}
	}
	time.Sleep(c.delay)
	return "ok", nil
}

func TestRateLimitedClient_PassThroughWithZeroConfig(t *testing.T) {
	inner := &countingClient{}
	c := NewRateLimitedClient(inner, LimitConfig{})
	got, err := c.Chat(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, "ok", got)
	assert.Equal(t, "counting", c.Model())
	assert.EqualValues(t, 1, inner.calls.Load())
}

func TestRateLimitedClient_BoundsConcurrency(t *testing.T) {
	inner := &countingClient{delay: 20 * time.Millisecond}
	c := NewRateLimitedClient(inner, LimitConfig{MaxConcurrent: 2})

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = c.Chat(context.Background(), nil)
		}()
	}
	wg.Wait()
	assert.EqualValues(t, 8, inner.calls.Load())
	assert.LessOrEqual(t, inner.peak.Load(), int32(2))
}

func TestRateLimitedClient_CancelledWaitSkipsCall(t *testing.T) {
	inner := &countingClient{}
	// One request per minute: the first call drains the burst.
	c := NewRateLimitedClient(inner, LimitConfig{RequestsPerMinute: 1})
	_, err := c.Chat(context.Background(), nil)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err = c.Chat(ctx, nil)
	assert.Error(t, err)
	assert.EqualValues(t, 1, inner.calls.Load())
}

func TestNewOpenAIClient_RequiresKey(t *testing.T) {
	_, err := NewOpenAIClient("", "", "", 0.2)
	assert.Error(t, err)

	c, err := NewOpenAIClient("sk-test", "", "", 0.2)
	require.NoError(t, err)
	assert.Equal(t, DefaultOpenAIModel, c.Model())
}

func TestOpenAIClient_Chat(t *testing.T) {
	var got struct {
		Model    string `json:"model"`
		Messages []struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"messages"`
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&got)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"x","object":"chat.completion","choices":[{"index":0,"message":{"role":"assistant","content":"Stay hydrated."},"finish_reason":"stop"}]}`))
	}))
	defer srv.Close()

	c, err := NewOpenAIClient("sk-test", srv.URL, "gpt-test", 0.4)
	require.NoError(t, err)
	reply, err := c.Chat(context.Background(), []Message{
		{Role: RoleSystem, Content: "be safe"},
		{Role: "tool", Content: "coerced"},
	})
	require.NoError(t, err)
	assert.Equal(t, "Stay hydrated.", reply)
	assert.Equal(t, "gpt-test", got.Model)
	require.Len(t, got.Messages, 2)
	assert.Equal(t, "system", got.Messages[0].Role)
	assert.Equal(t, "user", got.Messages[1].Role)
}

func TestOpenAIClient_EmptyChoicesIsAnError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"x","object":"chat.completion","choices":[]}`))
	}))
	defer srv.Close()

	c, err := NewOpenAIClient("sk-test", srv.URL, "gpt-test", 0.4)
	require.NoError(t, err)
	_, err = c.Chat(context.Background(), []Message{{Role: RoleUser, Content: "hi"}})
	assert.ErrorIs(t, err, ErrEmptyCompletion)
}

func TestConvertMessages(t *testing.T) {
	contents, system := convertMessages([]Message{
		{Role: RoleSystem, Content: "rules"},
		{Role: RoleUser, Content: "hello"},
		{Role: RoleAssistant, Content: "hi"},
	})
	assert.Equal(t, "rules", system)
	require.Len(t, contents, 2)
	assert.Equal(t, "user", contents[0].Role)
	assert.Equal(t, "model", contents[1].Role)
	assert.Equal(t, "hi", contents[1].Parts[0].Text)
}
