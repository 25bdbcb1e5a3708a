package api

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/BTreeMap/HealthPipe/internal/models"
	"github.com/BTreeMap/HealthPipe/internal/scheduler"
)

// healthHandler reports liveness along with session and reminder counts.
func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	healthData := map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}
	if s.sessions != nil {
		healthData["active_sessions"] = s.sessions.Len()
	}
	if s.reminders != nil {
		healthData["armed_reminders"] = len(s.reminders.List())
	}
	writeJSONResponse(w, http.StatusOK, healthData)
}

// listRemindersHandler returns every armed reminder, optionally filtered by ?user=.
func (s *Server) listRemindersHandler(w http.ResponseWriter, r *http.Request) {
	infos := s.reminders.List()
	if user := r.URL.Query().Get("user"); user != "" {
		canonical, err := s.msgService.ValidateAndCanonicalizeRecipient(user)
		if err != nil {
			writeJSONResponse(w, http.StatusBadRequest, models.Error(err.Error()))
			return
		}
		filtered := make([]models.ReminderInfo, 0, len(infos))
		for _, info := range infos {
			if info.UserID == canonical {
				filtered = append(filtered, info)
			}
		}
		infos = filtered
	}
	slog.Debug("Server.listRemindersHandler: listing reminders", "count", len(infos))
	writeJSONResponse(w, http.StatusOK, models.Success(infos))
}

// cancelReminderHandler disarms one reminder by id.
func (s *Server) cancelReminderHandler(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := s.reminders.Cancel(id); err != nil {
		if errors.Is(err, scheduler.ErrReminderNotFound) {
			writeJSONResponse(w, http.StatusNotFound, models.Error("Reminder not found"))
			return
		}
		slog.Error("Server.cancelReminderHandler: cancel failed", "error", err, "id", id)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to cancel reminder"))
		return
	}
	slog.Info("Server.cancelReminderHandler: reminder cancelled", "id", id)
	writeJSONResponse(w, http.StatusOK, models.Success(map[string]interface{}{"id": id, "canceled": true}))
}
