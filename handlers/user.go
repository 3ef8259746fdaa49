package handlers

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/studyowl/studyowl-api/auth"
	"github.com/studyowl/studyowl-api/middleware"
	"github.com/studyowl/studyowl-api/models"
)

func (db *DBHandler) GetCurrentUser(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.UserFromContext(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}
	respondJSON(w, http.StatusOK, user)
}

func (db *DBHandler) UpdateCurrentUser(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.UserFromContext(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	var req struct {
		GradeLevel *string `json:"gradeLevel,omitempty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if req.GradeLevel != nil {
		user.GradeLevel = *req.GradeLevel
		if err := db.Save(user).Error; err != nil {
			db.Log.Error("failed to update user", zap.Uint("user_id", user.ID), zap.Error(err))
			http.Error(w, "Failed to update user", http.StatusInternalServerError)
			return
		}
	}

	respondJSON(w, http.StatusOK, user)
}

// AuthHandler serves the local-development login flow; it is not registered
// in production.
type AuthHandler struct {
	DB        *gorm.DB
	Log       *zap.Logger
	SecretKey string
}

// DevLogin finds or creates a user by nickname and sets the local-dev auth
// cookie.
func (h *AuthHandler) DevLogin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Nickname string `json:"nickname"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Nickname == "" {
		http.Error(w, "Nickname is required", http.StatusBadRequest)
		return
	}

	var user models.User
	if err := h.DB.Where("nickname = ?", req.Nickname).First(&user).Error; err != nil {
		user = models.User{Nickname: req.Nickname, Auth0ID: "dev|" + req.Nickname}
		if err := h.DB.Create(&user).Error; err != nil {
			h.Log.Error("failed to create dev user", zap.String("nickname", req.Nickname), zap.Error(err))
			http.Error(w, "Failed to create user", http.StatusInternalServerError)
			return
		}
	}

	token, err := auth.CreateToken(user.Nickname, h.SecretKey)
	if err != nil {
		h.Log.Error("failed to create dev token", zap.Error(err))
		http.Error(w, "Failed to create token", http.StatusInternalServerError)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     "auth_token",
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"success":  true,
		"nickname": user.Nickname,
	})
}
