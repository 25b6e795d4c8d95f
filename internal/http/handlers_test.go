package http

import (
	"bytes"
	"context"
	"encoding/json"
	"encoding/xml"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"medassist-chatbot/internal/core"
	"medassist-chatbot/internal/index"
	"medassist-chatbot/internal/llm"
	"medassist-chatbot/internal/memory"
	"medassist-chatbot/pkg"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type call struct {
	query     string
	sessionID string
}

type mockAnswerer struct {
	mu     sync.Mutex
	calls  []call
	answer string
	err    error
}

func (m *mockAnswerer) GetAnswer(_ context.Context, query, sessionID string) (*core.AnswerResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, call{query, sessionID})
	if m.err != nil {
		return nil, m.err
	}
	return &core.AnswerResult{Answer: m.answer}, nil
}

func newTestServer(a Answerer) *Server {
	return NewServer(a, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func postJSON(t *testing.T, h http.Handler, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	b, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(b))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func postForm(h http.Handler, path string, form url.Values) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestRoot(t *testing.T) {
	srv := newTestServer(&mockAnswerer{})
	w := httptest.NewRecorder()
	srv.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	var resp pkg.StatusResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "Medical Chatbot API is running", resp.Status)
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))
}

func TestRequestIDIsPropagated(t *testing.T) {
	srv := newTestServer(&mockAnswerer{})
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("X-Request-ID", "abc-123")
	w := httptest.NewRecorder()
	srv.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "abc-123", w.Header().Get("X-Request-ID"))
}

func TestMetricsEndpoint(t *testing.T) {
	srv := newTestServer(&mockAnswerer{})
	srv.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

	w := httptest.NewRecorder()
	srv.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "medbot_http_requests_total")
}

func TestChat(t *testing.T) {
	tests := []struct {
		name        string
		body        any
		answerer    *mockAnswerer
		wantCode    int
		wantReply   string
		wantDetail  string
		wantSession string
	}{
		{
			name:        "ok",
			body:        pkg.ChatRequest{Message: "hello", SessionID: "s1"},
			answerer:    &mockAnswerer{answer: "Hi, how can I help?"},
			wantCode:    http.StatusOK,
			wantReply:   "Hi, how can I help?",
			wantSession: "s1",
		},
		{
			name:        "default session",
			body:        map[string]string{"message": "hello"},
			answerer:    &mockAnswerer{answer: "Hi"},
			wantCode:    http.StatusOK,
			wantReply:   "Hi",
			wantSession: pkg.DefaultSessionID,
		},
		{
			name:        "empty answer",
			body:        pkg.ChatRequest{Message: "hello", SessionID: "s1"},
			answerer:    &mockAnswerer{},
			wantCode:    http.StatusOK,
			wantReply:   "Sorry, I encountered an error.",
			wantSession: "s1",
		},
		{
			name:       "empty message",
			body:       pkg.ChatRequest{Message: "", SessionID: "s1"},
			answerer:   &mockAnswerer{answer: "x"},
			wantCode:   http.StatusBadRequest,
			wantDetail: "No message provided",
		},
		{
			name:       "blank message",
			body:       pkg.ChatRequest{Message: "  \n", SessionID: "s1"},
			answerer:   &mockAnswerer{answer: "x"},
			wantCode:   http.StatusBadRequest,
			wantDetail: "No message provided",
		},
		{
			name:       "missing message",
			body:       map[string]string{"session_id": "s1"},
			answerer:   &mockAnswerer{answer: "x"},
			wantCode:   http.StatusBadRequest,
			wantDetail: "No message provided",
		},
		{
			name:       "pipeline failure",
			body:       pkg.ChatRequest{Message: "hello", SessionID: "s1"},
			answerer:   &mockAnswerer{err: &core.ProcessingError{Stage: core.StageGenerate, Err: errors.New("secret upstream detail")}},
			wantCode:   http.StatusInternalServerError,
			wantDetail: "Failed to process the request",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := postJSON(t, newTestServer(tt.answerer), "/chat", tt.body)
			assert.Equal(t, tt.wantCode, w.Code)
			assert.NotContains(t, w.Body.String(), "secret")
			if tt.wantCode == http.StatusOK {
				var resp pkg.ChatResponse
				require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
				assert.Equal(t, tt.wantReply, resp.Reply)
				require.Len(t, tt.answerer.calls, 1)
				assert.Equal(t, tt.wantSession, tt.answerer.calls[0].sessionID)
				return
			}
			var resp pkg.ErrorResponse
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
			assert.Equal(t, tt.wantDetail, resp.Detail)
			if tt.wantCode == http.StatusBadRequest {
				assert.Empty(t, tt.answerer.calls, "pipeline must not run for bad input")
			}
		})
	}
}

func TestChat_MalformedJSON(t *testing.T) {
	a := &mockAnswerer{answer: "x"}
	req := httptest.NewRequest(http.MethodPost, "/chat", strings.NewReader("{not json"))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	newTestServer(a).ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Empty(t, a.calls)
}

func TestTwilioWebhook(t *testing.T) {
	a := &mockAnswerer{answer: "Drink fluids & rest <3"}
	w := postForm(newTestServer(a), "/twilio-webhook", url.Values{"Body": {"fever"}, "From": {"+15551234567"}})

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Type"), "application/xml")
	var doc struct {
		XMLName xml.Name `xml:"Response"`
		Message string   `xml:"Message"`
	}
	require.NoError(t, xml.Unmarshal(w.Body.Bytes(), &doc))
	assert.Equal(t, "Drink fluids & rest <3", doc.Message)
	require.Len(t, a.calls, 1)
	assert.Equal(t, call{"fever", "+15551234567"}, a.calls[0])
}

func TestTwilioWebhook_DefaultSender(t *testing.T) {
	a := &mockAnswerer{answer: "ok"}
	w := postForm(newTestServer(a), "/twilio-webhook", url.Values{"Body": {"fever"}})
	assert.Equal(t, http.StatusOK, w.Code)
	require.Len(t, a.calls, 1)
	assert.Equal(t, "unknown_twilio_user", a.calls[0].sessionID)
}

func TestTwilioWebhook_EmptyBody(t *testing.T) {
	tests := []struct {
		name string
		form url.Values
	}{
		{name: "missing body", form: url.Values{"From": {"+15551234567"}}},
		{name: "blank body", form: url.Values{"Body": {"   "}, "From": {"+15551234567"}}},
		{name: "newline body", form: url.Values{"Body": {"\n\t"}, "From": {"+15551234567"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := &mockAnswerer{answer: "ok"}
			w := postForm(newTestServer(a), "/twilio-webhook", tt.form)
			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.Equal(t, "No message body found", w.Body.String())
			assert.Empty(t, a.calls)
		})
	}
}

func TestTwilioWebhook_Failure(t *testing.T) {
	a := &mockAnswerer{err: errors.New("model down")}
	w := postForm(newTestServer(a), "/twilio-webhook", url.Values{"Body": {"fever"}, "From": {"+15551234567"}})

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, w.Header().Get("Content-Type"), "application/xml")
	var doc struct {
		Message string `xml:"Message"`
	}
	require.NoError(t, xml.Unmarshal(w.Body.Bytes(), &doc))
	assert.Equal(t, "We're sorry, but an internal error occurred.", doc.Message)
	assert.NotContains(t, w.Body.String(), "model down")
}

// The remaining tests drive the real pipeline through the API.

type stubEmbedder struct{}

func (stubEmbedder) Embed(context.Context, string) ([]float32, error) { return []float32{1, 0}, nil }

func (stubEmbedder) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{1, 0}
	}
	return out, nil
}

type stubIndex struct{}

func (stubIndex) Search(context.Context, []float32, int) ([]index.Chunk, error) {
	return []index.Chunk{{ID: "1", Text: "Fever guidance.", Metadata: map[string]any{"source": "fever.md"}}}, nil
}

type recordingLLM struct {
	mu      sync.Mutex
	prompts []string
}

func (r *recordingLLM) Chat(_ context.Context, msgs []llm.Message) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.prompts = append(r.prompts, msgs[0].Content)
	return "noted", nil
}

func (r *recordingLLM) Model() string { return "recording" }

func TestChat_SecondTurnSeesFirst(t *testing.T) {
	model := &recordingLLM{}
	store := memory.NewStore(memory.Options{})
	p, err := core.NewPipeline(core.Deps{
		Embedder: stubEmbedder{},
		Index:    stubIndex{},
		LLM:      model,
		Memory:   store,
		Logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	}, core.Options{})
	require.NoError(t, err)
	srv := newTestServer(p)

	w := postJSON(t, srv, "/chat", pkg.ChatRequest{Message: "hello", SessionID: "s1"})
	require.Equal(t, http.StatusOK, w.Code)
	w = postJSON(t, srv, "/chat", pkg.ChatRequest{Message: "what did I just say?", SessionID: "s1"})
	require.Equal(t, http.StatusOK, w.Code)

	require.Len(t, model.prompts, 2)
	assert.Contains(t, model.prompts[1], "Human: hello")

	w = postJSON(t, srv, "/chat", pkg.ChatRequest{Message: "", SessionID: "s1"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, 2, store.GetOrCreate("s1").Len())
}
