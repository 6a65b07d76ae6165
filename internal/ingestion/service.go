// Package ingestion exposes the HTTP surface of the engine: event emission,
// progress and history reads, rule validation and queue observability.
package ingestion

import (
	"github.com/gin-gonic/gin"

	"github.com/matheusfrade/alfa-loyalty-api-sub000/internal/core/storage"
	"github.com/matheusfrade/alfa-loyalty-api-sub000/internal/dispatcher"
	"github.com/matheusfrade/alfa-loyalty-api-sub000/internal/engine"
)

type Service struct {
	engine           *engine.Engine
	dispatcher       *dispatcher.Dispatcher
	store            storage.EventStore
	maxBodySizeBytes int
}

// NewService wires the HTTP layer over the engine, dispatcher and event
// store.
func NewService(eng *engine.Engine, disp *dispatcher.Dispatcher, store storage.EventStore, maxBodySizeMB int) *Service {
	if eng == nil {
		panic("ingestion: engine must not be nil")
	}
	if disp == nil {
		panic("ingestion: dispatcher must not be nil")
	}
	if store == nil {
		panic("ingestion: store must not be nil")
	}
	if maxBodySizeMB <= 0 {
		maxBodySizeMB = 1 // default to 1MB
	}
	return &Service{
		engine:           eng,
		dispatcher:       disp,
		store:            store,
		maxBodySizeBytes: maxBodySizeMB * 1024 * 1024,
	}
}

// RegisterRoutes registers the service routes.
func (s *Service) RegisterRoutes(r gin.IRouter) {
	r.POST("/v1/events", s.EmitHandler)
	r.GET("/v1/events/:user_id", s.HistoryHandler)
	r.GET("/v1/missions/:mission_id/progress/:user_id", s.ProgressHandler)
	r.GET("/v1/missions/:mission_id/completion/:user_id", s.CompletionHandler)
	r.DELETE("/v1/missions/:mission_id/progress/:user_id", s.ResetHandler)
	r.POST("/v1/rules/validate", s.ValidateRuleHandler)
	r.GET("/v1/queue/status", s.QueueStatusHandler)
}
