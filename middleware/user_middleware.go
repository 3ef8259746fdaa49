package middleware

import (
	"context"
	"net/http"

	jwtmiddleware "github.com/auth0/go-jwt-middleware/v2"
	"github.com/auth0/go-jwt-middleware/v2/validator"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/studyowl/studyowl-api/models"
)

type contextKey string

const userKey contextKey = "user"

// UserFromContext returns the synced user attached by SyncUser.
func UserFromContext(ctx context.Context) (*models.User, bool) {
	user, ok := ctx.Value(userKey).(*models.User)
	return user, ok
}

// WithUser attaches a user to the context. Used by the local-dev auth path,
// which bypasses Auth0 but still has to satisfy UserFromContext.
func WithUser(ctx context.Context, user *models.User) context.Context {
	return context.WithValue(ctx, userKey, user)
}

// SyncUser ensures the authenticated user exists in the DB and attaches it
// to the request context. Routes behind it always see a persisted user.
func SyncUser(db *gorm.DB, log *zap.Logger) func(next http.HandlerFunc) http.HandlerFunc {
	return func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			claims, ok := r.Context().Value(jwtmiddleware.ContextKey{}).(*validator.ValidatedClaims)
			if !ok || claims.RegisteredClaims.Subject == "" {
				http.Error(w, "No Auth0 subject found", http.StatusUnauthorized)
				return
			}

			auth0ID := claims.RegisteredClaims.Subject
			nickname := ""
			if customClaims, ok := claims.CustomClaims.(*CustomClaims); ok && customClaims != nil {
				nickname = customClaims.Nickname
			}

			var user models.User
			result := db.Where("auth0_id = ?", auth0ID).First(&user)

			if result.Error != nil {
				// User does not exist, create a new one
				user = models.User{
					Auth0ID:  auth0ID,
					Nickname: nickname,
				}
				if err := db.Create(&user).Error; err != nil {
					log.Error("failed to create user", zap.String("auth0_id", auth0ID), zap.Error(err))
					http.Error(w, "Failed to create user", http.StatusInternalServerError)
					return
				}
				log.Info("created new user", zap.String("nickname", user.Nickname))
			} else if nickname != "" && user.Nickname != nickname {
				// User exists, update nickname only if non-empty and changed
				user.Nickname = nickname
				if err := db.Save(&user).Error; err != nil {
					log.Error("failed to update user", zap.String("auth0_id", auth0ID), zap.Error(err))
					http.Error(w, "Failed to update user", http.StatusInternalServerError)
					return
				}
				log.Info("updated user nickname", zap.String("nickname", user.Nickname))
			}

			ctx := context.WithValue(r.Context(), userKey, &user)
			next.ServeHTTP(w, r.WithContext(ctx))
		}
	}
}
