package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	gonanoid "github.com/matoous/go-nanoid/v2"
	"go.uber.org/zap"

	"github.com/studyowl/studyowl-api/middleware"
	"github.com/studyowl/studyowl-api/models"
	"github.com/studyowl/studyowl-api/utils"
)

func (db *DBHandler) CreateFlashCard(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.UserFromContext(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	setID := r.PathValue("setID")
	var set models.FlashcardSet
	if err := db.Where("public_id = ? AND user_id = ?", setID, user.ID).First(&set).Error; err != nil {
		http.Error(w, "Set not found", http.StatusNotFound)
		return
	}

	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()

	var req struct {
		Question string `json:"question"`
		Answer   string `json:"answer"`
	}
	if err := decoder.Decode(&req); err != nil {
		http.Error(w, "Could not decode request", http.StatusBadRequest)
		return
	}
	if req.Question == "" || req.Answer == "" {
		http.Error(w, "Question and answer are required", http.StatusBadRequest)
		return
	}

	publicID, err := gonanoid.New()
	if err != nil {
		http.Error(w, "Failed to generate ID", http.StatusInternalServerError)
		return
	}

	// A new card starts unscheduled: due immediately, never reviewed.
	state := db.Params.NewState(time.Now())
	flashcard := models.Flashcard{
		Question:     req.Question,
		Answer:       req.Answer,
		PublicID:     publicID,
		SetID:        set.ID,
		EaseFactor:   state.EaseFactor,
		IntervalDays: state.IntervalDays,
		Repetitions:  state.Repetitions,
		DueAt:        state.DueAt,
	}

	if err := db.Create(&flashcard).Error; err != nil {
		db.Log.Error("failed to create flashcard", zap.String("set_id", setID), zap.Error(err))
		http.Error(w, "Failed to create flashcard", http.StatusInternalServerError)
		return
	}

	respondJSON(w, http.StatusCreated, flashcard)
}

func (db *DBHandler) GetFlashcardByID(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.UserFromContext(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	setID := r.PathValue("setID")
	flashcardID := r.PathValue("flashcardID")

	var set models.FlashcardSet
	if err := db.Where("public_id = ? AND user_id = ?", setID, user.ID).First(&set).Error; err != nil {
		http.Error(w, "Set not found", http.StatusNotFound)
		return
	}

	var flashcard models.Flashcard
	if err := db.Where("public_id = ? AND set_id = ?", flashcardID, set.ID).First(&flashcard).Error; err != nil {
		http.Error(w, "Flashcard not found", http.StatusNotFound)
		return
	}

	respondJSON(w, http.StatusOK, flashcard)
}

func (db *DBHandler) UpdateFlashCardByID(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.UserFromContext(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	setID := r.PathValue("setID")
	flashcardID := r.PathValue("flashcardID")

	var set models.FlashcardSet
	if err := db.Where("public_id = ? AND user_id = ?", setID, user.ID).First(&set).Error; err != nil {
		http.Error(w, "Set not found", http.StatusNotFound)
		return
	}

	var flashcard models.Flashcard
	if err := db.Where("public_id = ? AND set_id = ?", flashcardID, set.ID).First(&flashcard).Error; err != nil {
		http.Error(w, "Flashcard not found", http.StatusNotFound)
		return
	}

	// Content edits only; the scheduling columns belong to the review flow.
	var req struct {
		Question *string `json:"question,omitempty"`
		Answer   *string `json:"answer,omitempty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if req.Question != nil {
		flashcard.Question = *req.Question
	}
	if req.Answer != nil {
		flashcard.Answer = *req.Answer
	}

	if err := db.Save(&flashcard).Error; err != nil {
		db.Log.Error("failed to update flashcard", zap.String("flashcard_id", flashcardID), zap.Error(err))
		http.Error(w, "Failed to update flashcard", http.StatusInternalServerError)
		return
	}

	respondJSON(w, http.StatusOK, flashcard)
}

func (db *DBHandler) DeleteFlashCardByID(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.UserFromContext(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	setID := r.PathValue("setID")
	flashcardID := r.PathValue("flashcardID")

	var set models.FlashcardSet
	if err := db.Where("public_id = ? AND user_id = ?", setID, user.ID).First(&set).Error; err != nil {
		http.Error(w, "Set not found", http.StatusNotFound)
		return
	}

	result := db.Where("public_id = ? AND set_id = ?", flashcardID, set.ID).Delete(&models.Flashcard{})
	if result.Error != nil {
		db.Log.Error("failed to delete flashcard", zap.String("flashcard_id", flashcardID), zap.Error(result.Error))
		http.Error(w, "Failed to delete flashcard", http.StatusInternalServerError)
		return
	}
	if result.RowsAffected == 0 {
		http.Error(w, "Flashcard not found", http.StatusNotFound)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (db *DBHandler) GetFlashcardsForSet(w http.ResponseWriter, r *http.Request) {
	setID := r.PathValue("setID")

	var set models.FlashcardSet
	if err := db.Preload("User").Where("public_id = ?", setID).First(&set).Error; err != nil {
		http.Error(w, "Set not found", http.StatusNotFound)
		return
	}

	if !set.IsPublic {
		// If not public, check authentication and ownership
		auth0ID, ok := utils.GetAuth0ID(r)
		if !ok || set.User.Auth0ID != auth0ID {
			http.Error(w, "Forbidden", http.StatusForbidden)
			return
		}
	}

	var flashcards []models.Flashcard
	if err := db.Where("set_id = ?", set.ID).Find(&flashcards).Error; err != nil {
		db.Log.Error("failed to fetch flashcards", zap.String("set_id", setID), zap.Error(err))
		http.Error(w, "Failed to fetch flashcards", http.StatusInternalServerError)
		return
	}

	respondJSON(w, http.StatusOK, flashcards)
}
