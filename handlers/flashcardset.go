package handlers

import (
	"encoding/json"
	"net/http"

	gonanoid "github.com/matoous/go-nanoid/v2"
	"go.uber.org/zap"

	"github.com/studyowl/studyowl-api/middleware"
	"github.com/studyowl/studyowl-api/models"
	"github.com/studyowl/studyowl-api/utils"
)

func (db *DBHandler) GetSetByID(w http.ResponseWriter, r *http.Request) {
	setID := r.PathValue("setID")

	var set models.FlashcardSet
	// Preload the User to access Auth0ID without a separate query
	if err := db.Preload("User").Preload("Flashcards").Where("public_id = ?", setID).First(&set).Error; err != nil {
		http.Error(w, "Set not found", http.StatusNotFound)
		return
	}

	auth0ID, ok := utils.GetAuth0ID(r)
	isOwner := ok && set.User.Auth0ID == auth0ID

	if !set.IsPublic && !isOwner {
		http.Error(w, "Forbidden", http.StatusForbidden)
		return
	}

	type SetResponse struct {
		models.FlashcardSet
		IsOwner bool `json:"IsOwner"`
	}

	respondJSON(w, http.StatusOK, SetResponse{FlashcardSet: set, IsOwner: isOwner})
}

func (db *DBHandler) CreateFlashCardSet(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.UserFromContext(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	var req struct {
		Title    string `json:"title"`
		IsPublic bool   `json:"isPublic"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.Title == "" {
		http.Error(w, "Title is required", http.StatusBadRequest)
		return
	}

	publicID, err := gonanoid.New()
	if err != nil {
		db.Log.Error("failed to generate public ID", zap.Error(err))
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	set := models.FlashcardSet{
		Title:    req.Title,
		UserID:   user.ID,
		IsPublic: req.IsPublic,
		PublicID: publicID,
	}

	if err := db.Create(&set).Error; err != nil {
		db.Log.Error("failed to create set", zap.Error(err))
		http.Error(w, "Failed to create set", http.StatusInternalServerError)
		return
	}

	db.Log.Info("created flashcard set",
		zap.String("public_id", publicID),
		zap.Uint("user_id", user.ID))
	respondJSON(w, http.StatusCreated, set)
}

func (db *DBHandler) UpdateSetByID(w http.ResponseWriter, r *http.Request) {
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

	var req struct {
		Title    *string `json:"title,omitempty"`
		IsPublic *bool   `json:"isPublic,omitempty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	updated := false
	if req.Title != nil && set.Title != *req.Title {
		set.Title = *req.Title
		updated = true
	}
	if req.IsPublic != nil && set.IsPublic != *req.IsPublic {
		set.IsPublic = *req.IsPublic
		updated = true
	}

	if updated {
		if err := db.Save(&set).Error; err != nil {
			db.Log.Error("failed to update set", zap.String("set_id", setID), zap.Error(err))
			http.Error(w, "Failed to update set", http.StatusInternalServerError)
			return
		}
	}

	respondJSON(w, http.StatusOK, set)
}

func (db *DBHandler) DeleteSetByID(w http.ResponseWriter, r *http.Request) {
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

	// Remove the cards first; sqlite in tests has no FK cascade configured.
	if err := db.Where("set_id = ?", set.ID).Delete(&models.Flashcard{}).Error; err != nil {
		db.Log.Error("failed to delete flashcards for set", zap.String("set_id", setID), zap.Error(err))
		http.Error(w, "Failed to delete set", http.StatusInternalServerError)
		return
	}
	if err := db.Delete(&set).Error; err != nil {
		db.Log.Error("failed to delete set", zap.String("set_id", setID), zap.Error(err))
		http.Error(w, "Failed to delete set", http.StatusInternalServerError)
		return
	}

	db.Log.Info("deleted flashcard set", zap.String("set_id", setID))
	w.WriteHeader(http.StatusNoContent)
}

func (db *DBHandler) GetSetsForUser(w http.ResponseWriter, r *http.Request) {
	nickname := r.PathValue("nickname")
	if nickname == "" {
		http.Error(w, "Nickname is required", http.StatusBadRequest)
		return
	}

	var user models.User
	if err := db.Where("nickname = ?", nickname).First(&user).Error; err != nil {
		http.Error(w, "User not found", http.StatusNotFound)
		return
	}

	auth0ID, ok := utils.GetAuth0ID(r)

	query := db.Preload("Flashcards").Where("user_id = ?", user.ID)
	if !ok || user.Auth0ID != auth0ID {
		query = query.Where("is_public = ?", true)
	}

	var sets []models.FlashcardSet
	if err := query.Find(&sets).Error; err != nil {
		db.Log.Error("failed to fetch sets", zap.String("nickname", nickname), zap.Error(err))
		http.Error(w, "Failed to fetch sets", http.StatusInternalServerError)
		return
	}
	if len(sets) == 0 {
		sets = []models.FlashcardSet{}
	}

	respondJSON(w, http.StatusOK, sets)
}
