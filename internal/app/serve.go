package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"golang.org/x/sync/errgroup"

	"medassist-chatbot/internal/config"
	httpserver "medassist-chatbot/internal/http"
)

// Serve builds the chatbot and runs the HTTP API until ctx is cancelled,
// then drains in-flight requests.
func Serve(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	bot, err := BuildChatbot(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer bot.Close()

	gin.SetMode(gin.ReleaseMode)
	srv := &http.Server{
		Addr:         ":" + strconv.Itoa(cfg.Server.Port),
		Handler:      httpserver.NewServer(bot.Pipeline, logger),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		logger.Info("shutting down")
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
