// Package http exposes the chatbot over HTTP: a JSON chat API used by web
// and bot front ends and a Twilio messaging webhook.
package http

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"medassist-chatbot/internal/core"
	"medassist-chatbot/internal/metrics"
)

// Answerer is the part of the pipeline the handlers need.
type Answerer interface {
	GetAnswer(ctx context.Context, query, sessionID string) (*core.AnswerResult, error)
}

// Server bundles together the dependencies required by HTTP handlers.  It
// implements http.Handler so it can be passed to an http.Server.
type Server struct {
	Chat   Answerer
	Logger *slog.Logger

	engine *gin.Engine
}

// NewServer constructs a Server and registers its routes.
func NewServer(chat Answerer, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{Chat: chat, Logger: logger}

	r := gin.New()
	r.Use(gin.Recovery(), requestID(), accessLog(logger))
	r.GET("/", s.handleRoot)
	r.GET("/healthz", s.handleHealth)
	r.GET("/metrics", gin.WrapH(metrics.Handler()))
	r.POST("/chat", s.handleChat)
	r.POST("/twilio-webhook", s.handleTwilio)
	s.engine = r
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.engine.ServeHTTP(w, r)
}
