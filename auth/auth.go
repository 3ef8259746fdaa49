// Package auth provides HS256 session tokens for running the API locally
// without an Auth0 tenant. Production deployments validate Auth0 tokens in
// the middleware package instead.
package auth

import (
	"fmt"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/studyowl/studyowl-api/middleware"
	"github.com/studyowl/studyowl-api/models"
)

// CreateToken issues a signed token for the given nickname, valid for a day.
func CreateToken(nickname, secretKey string) (string, error) {
	if secretKey == "" {
		return "", fmt.Errorf("JWT secret key not set")
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256,
		jwt.MapClaims{
			"nickname": nickname,
			"exp":      time.Now().Add(time.Hour * 24).Unix(),
		})

	tokenString, err := token.SignedString([]byte(secretKey))
	if err != nil {
		return "", err
	}

	return tokenString, nil
}

// VerifyToken checks the token signature and returns the nickname claim.
func VerifyToken(tokenString, secretKey string) (string, error) {
	if secretKey == "" {
		return "", fmt.Errorf("JWT secret key not set")
	}

	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(secretKey), nil
	})
	if err != nil {
		return "", err
	}
	if !token.Valid {
		return "", fmt.Errorf("invalid token")
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return "", fmt.Errorf("unexpected claims type")
	}
	nickname, _ := claims["nickname"].(string)
	if nickname == "" {
		return "", fmt.Errorf("token has no nickname claim")
	}

	return nickname, nil
}

// Middleware authenticates requests carrying the local-dev auth cookie and
// attaches the matching user to the context, mirroring what the Auth0 path
// does for production traffic.
func Middleware(db *gorm.DB, secretKey string, log *zap.Logger) func(next http.HandlerFunc) http.HandlerFunc {
	return func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			cookie, err := r.Cookie("auth_token")
			if err != nil {
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}

			nickname, err := VerifyToken(cookie.Value, secretKey)
			if err != nil {
				http.Error(w, "Invalid token", http.StatusUnauthorized)
				return
			}

			var user models.User
			if err := db.Where("nickname = ?", nickname).First(&user).Error; err != nil {
				log.Warn("dev token for unknown user", zap.String("nickname", nickname))
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}

			next.ServeHTTP(w, r.WithContext(middleware.WithUser(r.Context(), &user)))
		}
	}
}
