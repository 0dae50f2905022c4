// Package api exposes the admin JSON API for reminders.
package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/cpike5/discordbot-sub015/internal/reminder"
)

// Server serves reminder CRUD over HTTP. Delivery is owned by the scheduler;
// this surface only creates, inspects, and cancels reminders.
type Server struct {
	svc    *reminder.Service
	logger *zap.Logger
	engine *gin.Engine
}

// NewServer builds the router. Call Run to serve.
func NewServer(svc *reminder.Service, logger *zap.Logger) *Server {
	s := &Server{
		svc:    svc,
		logger: logger.Named("api"),
	}

	engine := gin.New()
	engine.Use(gin.Recovery())
	s.engine = engine
	s.setupRoutes()
	return s
}

// Handler returns the underlying HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.engine
}

func (s *Server) setupRoutes() {
	s.engine.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := s.engine.Group("/api")
	api.POST("/reminders", s.createReminder)
	api.GET("/reminders", s.listReminders)
	api.GET("/reminders/:id", s.getReminder)
	api.DELETE("/reminders/:id", s.cancelReminder)
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:    addr,
		Handler: s.engine,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("listening", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

type createReminderRequest struct {
	GuildID   string    `json:"guild_id"`
	ChannelID string    `json:"channel_id"`
	UserID    string    `json:"user_id" binding:"required"`
	Message   string    `json:"message" binding:"required"`
	TriggerAt time.Time `json:"trigger_at" binding:"required"`
}

func (s *Server) createReminder(c *gin.Context) {
	var req createReminderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	r, err := s.svc.Create(c.Request.Context(), reminder.CreateRequest{
		GuildID:   req.GuildID,
		ChannelID: req.ChannelID,
		UserID:    req.UserID,
		Message:   req.Message,
		TriggerAt: req.TriggerAt,
	})
	if err != nil {
		switch {
		case errors.Is(err, reminder.ErrValidation):
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		case errors.Is(err, reminder.ErrQuotaExceeded):
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		default:
			s.logger.Error("create failed", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		}
		return
	}

	c.JSON(http.StatusCreated, r)
}

func (s *Server) listReminders(c *gin.Context) {
	userID := c.Query("user_id")
	if userID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "user_id query parameter is required"})
		return
	}

	reminders, err := s.svc.ListByUser(c.Request.Context(), userID)
	if err != nil {
		s.logger.Error("list failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	if reminders == nil {
		reminders = []reminder.Reminder{}
	}

	c.JSON(http.StatusOK, gin.H{"reminders": reminders})
}

func (s *Server) getReminder(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid reminder id"})
		return
	}

	r, err := s.svc.Get(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, reminder.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "reminder not found"})
			return
		}
		s.logger.Error("get failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}

	c.JSON(http.StatusOK, r)
}

func (s *Server) cancelReminder(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid reminder id"})
		return
	}

	if err := s.svc.Cancel(c.Request.Context(), id); err != nil {
		switch {
		case errors.Is(err, reminder.ErrNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "reminder not found"})
		case errors.Is(err, reminder.ErrNotPending):
			c.JSON(http.StatusConflict, gin.H{"error": "reminder is not pending"})
		default:
			s.logger.Error("cancel failed", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		}
		return
	}

	c.Status(http.StatusNoContent)
}
