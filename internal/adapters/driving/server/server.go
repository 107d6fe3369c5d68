// Package server exposes the HTTP surface used by "prdmachine serve":
// GitHub webhook intake, a JSON trigger endpoint, health and metrics.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/custodia-labs/prdmachine/internal/connectors/github"
	"github.com/custodia-labs/prdmachine/internal/core/domain"
	"github.com/custodia-labs/prdmachine/internal/core/ports/driving"
	"github.com/custodia-labs/prdmachine/internal/logger"
	"github.com/custodia-labs/prdmachine/internal/metrics"
)

const (
	readHeaderTimeout = 10 * time.Second
	shutdownTimeout   = 15 * time.Second
	maxBodyBytes      = 5 << 20
)

// Config configures the server.
type Config struct {
	// Addr is the listen address.
	Addr string

	// WebhookSecret validates GitHub signatures. Empty accepts unsigned deliveries.
	WebhookSecret string

	// Debug enables gin debug mode and request logging.
	Debug bool
}

// Server routes HTTP requests to the trigger dispatcher.
type Server struct {
	cfg        Config
	dispatcher driving.TriggerDispatcher
	router     *gin.Engine
}

// New creates a server that submits triggers to dispatcher.
func New(cfg Config, dispatcher driving.TriggerDispatcher) *Server {
	if cfg.Debug {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	if cfg.Debug {
		router.Use(gin.Logger())
	}

	s := &Server{cfg: cfg, dispatcher: dispatcher, router: router}
	router.GET("/healthz", s.handleHealth)
	router.GET("/metrics", gin.WrapH(metrics.Handler()))
	router.POST("/webhooks/github", s.handleGitHubWebhook)
	router.POST("/triggers", s.handleTrigger)
	return s
}

// Handler returns the router.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run serves until ctx ends, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.router,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening on %s", s.cfg.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("serve %s: %w", s.cfg.Addr, err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

type statusResponse struct {
	Status string `json:"status"`
	Event  string `json:"event,omitempty"`
	Repo   string `json:"repo,omitempty"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, statusResponse{Status: "ok"})
}

func (s *Server) handleGitHubWebhook(c *gin.Context) {
	eventName := c.GetHeader("X-GitHub-Event")
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBodyBytes)

	trigger, err := github.ParseWebhook(c.Request, s.cfg.WebhookSecret)
	if err != nil {
		status := http.StatusBadRequest
		if errors.Is(err, github.ErrInvalidSignature) {
			status = http.StatusUnauthorized
		}
		logger.Warn("webhook %s rejected: %v", eventName, err)
		s.respond(c, eventName, status, errorResponse{Error: err.Error()})
		return
	}

	if trigger == nil {
		s.respond(c, eventName, http.StatusOK, statusResponse{Status: "ignored", Event: eventName})
		return
	}
	s.submit(c, eventName, *trigger)
}

type triggerRequest struct {
	Type    string         `json:"type" binding:"required"`
	Repo    string         `json:"repo" binding:"required"`
	Path    string         `json:"path"`
	Payload map[string]any `json:"payload"`
}

func (s *Server) handleTrigger(c *gin.Context) {
	var req triggerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.respond(c, "trigger", http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}
	eventType, err := domain.ParseEventType(req.Type)
	if err != nil {
		s.respond(c, "trigger", http.StatusBadRequest, errorResponse{Error: fmt.Sprintf("unknown trigger type %q", req.Type)})
		return
	}

	s.submit(c, "trigger", driving.Trigger{
		Type:    eventType,
		Repo:    req.Repo,
		Path:    req.Path,
		Payload: req.Payload,
	})
}

func (s *Server) submit(c *gin.Context, eventName string, trigger driving.Trigger) {
	resp := statusResponse{Status: "accepted", Event: string(trigger.Type), Repo: trigger.Repo}
	status := http.StatusAccepted
	if !s.dispatcher.Submit(trigger) {
		resp.Status = "duplicate"
		status = http.StatusOK
	}
	s.respond(c, eventName, status, resp)
}

func (s *Server) respond(c *gin.Context, eventName string, status int, body any) {
	metrics.ObserveWebhook(eventName, status)
	c.JSON(status, body)
}
