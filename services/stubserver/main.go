package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/chatclient/internal/config"
	"github.com/chatclient/internal/logger"
	"github.com/chatclient/internal/model"
	"github.com/chatclient/internal/stub"
)

func main() {
	logger.SetPrefix("stub")
	logger.Info("starting stub content API + relay")
	cfg := config.Load()

	s := stub.New()
	seed(s)

	srv := &http.Server{
		Addr:         cfg.StubAddr,
		Handler:      s.Router(cfg.CORSAllowedOrigins),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Infof("stub listening on %s", cfg.StubAddr)
		errCh <- srv.ListenAndServe()
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-quit:
		logger.Info("shutdown signal received")
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			logger.Errorf("stub server: %v", err)
			os.Exit(1)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Errorf("stub shutdown: %v", err)
	}
	s.Hub().Close()
	logger.Info("stub stopped")
}

// seed loads a small fixture so two clients have something to talk about.
func seed(s *stub.Server) {
	s.AddUser(model.User{ID: 1, Username: "alice", Email: "alice@example.com"})
	s.AddUser(model.User{ID: 2, Username: "bob", Email: "bob@example.com"})
	s.AddUser(model.User{ID: 3, Username: "carol", Email: "carol@example.com"})
	roomID := s.SeedRoom("hi bob", 1, 2)
	s.SeedMessage(roomID, 1, "hi bob", time.Now().UTC().Add(-time.Minute))
}
