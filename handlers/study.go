package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/studyowl/studyowl-api/middleware"
	"github.com/studyowl/studyowl-api/report"
	"github.com/studyowl/studyowl-api/srs"
	"github.com/studyowl/studyowl-api/store"
	"github.com/studyowl/studyowl-api/study"
)

// StudyHandler serves the review flow: due-card selection, per-card
// schedule updates and the end-of-session report.
type StudyHandler struct {
	Store    *store.Store
	Tracker  *study.Tracker
	Reporter report.Generator // nil when report generation is not configured
	Params   srs.Params
	Log      *zap.Logger

	validate *validator.Validate
	now      func() time.Time
}

func NewStudyHandler(s *store.Store, tracker *study.Tracker, reporter report.Generator, params srs.Params, log *zap.Logger) *StudyHandler {
	return &StudyHandler{
		Store:    s,
		Tracker:  tracker,
		Reporter: reporter,
		Params:   params,
		Log:      log,
		validate: validator.New(),
		now:      time.Now,
	}
}

// GetDueCards returns the shuffled union of due cards across the requested
// sets and opens a study session over them.
//
// POST /api/study/due
func (h *StudyHandler) GetDueCards(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.UserFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	var req struct {
		SetIDs []string `json:"setIds" validate:"required"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		respondError(w, http.StatusBadRequest, "setIds is required")
		return
	}

	now := h.now()
	dueCards, setTitles, err := h.Store.DueCards(req.SetIDs, user.ID, now)
	if err != nil {
		h.Log.Error("failed to select due cards", zap.Uint("user_id", user.ID), zap.Error(err))
		respondError(w, http.StatusInternalServerError, "Failed to fetch due cards")
		return
	}

	response := map[string]interface{}{
		"success":   true,
		"dueCards":  dueCards,
		"setTitles": setTitles,
	}

	// A session only makes sense when there is something to review; "nothing
	// due" is a successful, empty outcome.
	if len(dueCards) > 0 {
		session, err := h.Tracker.Start(setTitles, len(dueCards), now)
		if err != nil {
			h.Log.Error("failed to start session", zap.Uint("user_id", user.ID), zap.Error(err))
			respondError(w, http.StatusInternalServerError, "Failed to start study session")
			return
		}
		response["sessionId"] = session.ID

		if err := h.Store.TouchLastStudied(req.SetIDs, user.ID, now); err != nil {
			h.Log.Warn("failed to stamp last_studied", zap.Error(err))
		}
	}

	respondJSON(w, http.StatusOK, response)
}

// ReviewCard applies one quality rating to one card: read the current
// state, advance it, persist the complete new state, then record the event
// in the session tracker. The tracker never gates the schedule update.
//
// POST /api/study/cards/{cardID}/review
func (h *StudyHandler) ReviewCard(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.UserFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	cardID := r.PathValue("cardID")
	if cardID == "" {
		respondError(w, http.StatusBadRequest, "Card ID is required")
		return
	}

	var req struct {
		Quality   *int   `json:"quality" validate:"required,gte=0,lte=3"`
		SessionID string `json:"sessionId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	// Validated before any state is touched.
	if err := h.validate.Struct(req); err != nil {
		respondError(w, http.StatusBadRequest, srs.ErrInvalidQuality.Error())
		return
	}
	quality := srs.Quality(*req.Quality)

	card, err := h.Store.GetCard(cardID, user.ID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			respondError(w, http.StatusNotFound, "Card not found")
			return
		}
		h.Log.Error("failed to load card", zap.String("card_id", cardID), zap.Error(err))
		respondError(w, http.StatusInternalServerError, "Failed to load card")
		return
	}

	now := h.now()
	next, err := h.Params.Advance(store.StateOf(card), quality, now)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.Store.UpdateState(cardID, user.ID, next); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			respondError(w, http.StatusNotFound, "Card not found")
			return
		}
		h.Log.Error("failed to persist schedule", zap.String("card_id", cardID), zap.Error(err))
		respondError(w, http.StatusInternalServerError, "Failed to save review")
		return
	}

	// The schedule update above is committed; a stale or missing session is
	// a soft condition.
	sessionComplete := false
	if req.SessionID != "" {
		complete, err := h.Tracker.Record(req.SessionID, cardID, card.Question, quality)
		if err != nil {
			h.Log.Warn("review recorded against unknown session",
				zap.String("session_id", req.SessionID),
				zap.String("card_id", cardID))
		} else {
			sessionComplete = complete
		}
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"success":         true,
		"sessionComplete": sessionComplete,
	})
}

// SessionReport closes a completed (or abandoned) session and asks the
// narrative generator for a summary. Generation is best-effort: every
// schedule update has already been committed card by card, so a failure
// here only costs the prose.
//
// POST /api/study/sessions/{sessionID}/report
func (h *StudyHandler) SessionReport(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.UserFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	sessionID := r.PathValue("sessionID")
	session, found := h.Tracker.End(sessionID)
	if !found {
		respondError(w, http.StatusNotFound, "Session not found")
		return
	}

	var req struct {
		UserGradeLevel string `json:"userGradeLevel"`
	}
	if r.Body != nil {
		_ = json.NewDecoder(r.Body).Decode(&req)
	}
	gradeLevel := req.UserGradeLevel
	if gradeLevel == "" {
		gradeLevel = user.GradeLevel
	}

	if h.Reporter == nil {
		respondJSON(w, http.StatusOK, map[string]interface{}{
			"success": false,
			"error":   "session complete, no summary available",
		})
		return
	}

	titles := make([]string, 0, len(session.SetTitles))
	for _, title := range session.SetTitles {
		titles = append(titles, title)
	}
	events := session.Events()
	performance := make([]report.Performance, 0, len(events))
	for _, event := range events {
		performance = append(performance, report.Performance{
			CardID:   event.CardID,
			Question: event.Question,
			Quality:  event.Quality,
		})
	}

	narrative, err := h.Reporter.GenerateSessionReport(r.Context(), strings.Join(titles, ", "), performance, gradeLevel)
	if err != nil {
		h.Log.Warn("session report generation failed",
			zap.String("session_id", sessionID),
			zap.Error(err))
		respondJSON(w, http.StatusOK, map[string]interface{}{
			"success": false,
			"error":   "session complete, no summary available",
		})
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"report":  narrative,
	})
}
