package ingestion

import (
	"bytes"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	v1 "github.com/matheusfrade/alfa-loyalty-api-sub000/internal/api/v1"
	httperr "github.com/matheusfrade/alfa-loyalty-api-sub000/internal/core/errors"
	"github.com/matheusfrade/alfa-loyalty-api-sub000/internal/core/mission"
	"github.com/matheusfrade/alfa-loyalty-api-sub000/internal/core/storage"
)

const (
	msgReadBodyFailed  = "Failed to read request body"
	msgInvalidJSON     = "Invalid JSON body"
	msgPersistFailed   = "Failed to persist event"
	msgDuplicateEvent  = "Event already exists"
	msgQueueFull       = "Event queue is full"
	defaultHistorySize = 50
	maxHistorySize     = 500
)

// EmitHandler accepts one event: validate, persist, enqueue.
func (s *Service) EmitHandler(c *gin.Context) {
	body, ok := s.readBody(c)
	if !ok {
		return
	}

	var evt v1.Event
	if err := c.ShouldBindJSON(&evt); err != nil {
		slog.Warn("Invalid JSON body received", "error", err, "payload_size", len(body))
		writeError(c, http.StatusBadRequest, httperr.HttpInvalidJsonError, msgInvalidJSON, nil)
		return
	}
	if evt.ID == "" {
		evt.ID = uuid.NewString()
	}
	evt.IngestedAt = time.Now().UTC()

	if err := evt.Validate(); err != nil {
		slog.Warn("Event envelope validation failed", "error", err, "event_id", evt.ID)
		writeError(c, http.StatusBadRequest, httperr.HttpInvalidJsonError, err.Error(), nil)
		return
	}

	slog.Info("Received Event",
		"event_id", evt.ID,
		"user_id", evt.UserID,
		"event_type", evt.Type,
		"payload_size", len(body))

	if err := s.store.SaveEvent(c.Request.Context(), &evt); err != nil {
		if errors.Is(err, storage.ErrDuplicate) {
			slog.Info("Duplicate event rejected", "event_id", evt.ID, "user_id", evt.UserID)
			writeError(c, http.StatusConflict, httperr.HttpDuplicateEventError, msgDuplicateEvent, nil)
			return
		}
		slog.Error("Failed to persist event", "event_id", evt.ID, "error", err)
		writeError(c, http.StatusInternalServerError, httperr.HttpInternalError, msgPersistFailed, nil)
		return
	}

	if err := s.dispatcher.Emit(&evt); err != nil {
		// Persisted but not enqueued; the operator replays from the log.
		slog.Error("Failed to enqueue event", "event_id", evt.ID, "error", err)
		writeError(c, http.StatusServiceUnavailable, httperr.HttpQueueFullError, msgQueueFull, nil)
		return
	}

	c.JSON(http.StatusAccepted, gin.H{"status": "accepted", "event_id": evt.ID})
}

// HistoryHandler serves the bounded recent-history read for one user.
func (s *Service) HistoryHandler(c *gin.Context) {
	userID := c.Param("user_id")
	limit := defaultHistorySize
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 || n > maxHistorySize {
			writeError(c, http.StatusBadRequest, httperr.HttpValidationError,
				"limit must be an integer between 1 and "+strconv.Itoa(maxHistorySize), nil)
			return
		}
		limit = n
	}

	events, err := s.engine.GetEventHistory(c.Request.Context(), userID, limit)
	if err != nil {
		slog.Error("Failed to read event history", "user_id", userID, "error", err)
		writeError(c, http.StatusInternalServerError, httperr.HttpInternalError, "Failed to read history", nil)
		return
	}
	if events == nil {
		events = []*v1.Event{}
	}
	c.JSON(http.StatusOK, gin.H{"user_id": userID, "events": events})
}

// ProgressHandler returns the stored progress for a (mission, user) pair.
func (s *Service) ProgressHandler(c *gin.Context) {
	missionID := c.Param("mission_id")
	userID := c.Param("user_id")

	p, err := s.engine.GetMissionProgress(c.Request.Context(), missionID, userID)
	if err != nil {
		slog.Error("Failed to read progress", "mission_id", missionID, "user_id", userID, "error", err)
		writeError(c, http.StatusInternalServerError, httperr.HttpInternalError, "Failed to read progress", nil)
		return
	}
	if p == nil {
		writeError(c, http.StatusNotFound, httperr.HttpNotFoundError, "No progress for this mission and user", nil)
		return
	}
	c.JSON(http.StatusOK, p)
}

// CompletionHandler reports whether the user has completed the mission.
func (s *Service) CompletionHandler(c *gin.Context) {
	missionID := c.Param("mission_id")
	userID := c.Param("user_id")

	done, err := s.engine.CheckMissionCompletion(c.Request.Context(), missionID, userID)
	if err != nil {
		slog.Error("Failed to check completion", "mission_id", missionID, "user_id", userID, "error", err)
		writeError(c, http.StatusInternalServerError, httperr.HttpInternalError, "Failed to check completion", nil)
		return
	}
	c.JSON(http.StatusOK, gin.H{"mission_id": missionID, "user_id": userID, "completed": done})
}

// ResetHandler fully deletes a progress record, returning the mission to
// NOT_STARTED for the user. The only way out of LOCKED.
func (s *Service) ResetHandler(c *gin.Context) {
	missionID := c.Param("mission_id")
	userID := c.Param("user_id")

	if err := s.engine.ResetMissionProgress(c.Request.Context(), missionID, userID); err != nil {
		slog.Error("Failed to reset progress", "mission_id", missionID, "user_id", userID, "error", err)
		writeError(c, http.StatusInternalServerError, httperr.HttpInternalError, "Failed to reset progress", nil)
		return
	}
	slog.Info("Mission progress reset", "mission_id", missionID, "user_id", userID)
	c.Status(http.StatusNoContent)
}

// ValidateRuleHandler runs static validation on a submitted rule and
// returns errors, warnings and the complexity classification.
func (s *Service) ValidateRuleHandler(c *gin.Context) {
	var rule mission.Rule
	if err := c.ShouldBindJSON(&rule); err != nil {
		writeError(c, http.StatusBadRequest, httperr.HttpInvalidJsonError, msgInvalidJSON, nil)
		return
	}
	res := s.engine.ValidateRule(&rule)
	status := http.StatusOK
	if !res.IsValid {
		status = http.StatusUnprocessableEntity
	}
	c.JSON(status, res)
}

// QueueStatusHandler exposes dispatcher observability.
func (s *Service) QueueStatusHandler(c *gin.Context) {
	c.JSON(http.StatusOK, s.dispatcher.QueueStatus())
}

// readBody enforces the maximum body size and rewinds the request body
// for JSON binding.
func (s *Service) readBody(c *gin.Context) ([]byte, bool) {
	maxBytes := int64(s.maxBodySizeBytes)
	limitedBody := io.LimitReader(c.Request.Body, maxBytes+1) // +1 to detect oversized requests

	bodyBytes, err := io.ReadAll(limitedBody)
	if err != nil {
		slog.Error("Failed to read request body", "error", err)
		writeError(c, http.StatusInternalServerError, httperr.HttpInternalError, msgReadBodyFailed, nil)
		return nil, false
	}
	if int64(len(bodyBytes)) > maxBytes {
		slog.Warn("Request body exceeds maximum size", "size", len(bodyBytes), "max", maxBytes)
		writeError(c, http.StatusRequestEntityTooLarge, httperr.HttpInvalidJsonError,
			"Request body exceeds maximum allowed size",
			map[string]interface{}{"max_size_mb": maxBytes / (1024 * 1024)})
		return nil, false
	}

	c.Request.Body = io.NopCloser(bytes.NewReader(bodyBytes))
	return bodyBytes, true
}

func writeError(c *gin.Context, status int, errorType, message string, details interface{}) {
	c.JSON(status, httperr.ErrorResponse{
		ErrorType: errorType,
		Message:   message,
		Details:   details,
	})
}
