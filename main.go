package main

import (
	"log"
	"net/http"
	"os"

	"github.com/joho/godotenv"
	"github.com/rs/cors"
	"go.uber.org/zap"

	"github.com/studyowl/studyowl-api/auth"
	"github.com/studyowl/studyowl-api/config"
	"github.com/studyowl/studyowl-api/handlers"
	"github.com/studyowl/studyowl-api/logger"
	"github.com/studyowl/studyowl-api/middleware"
	"github.com/studyowl/studyowl-api/report"
	"github.com/studyowl/studyowl-api/store"
	"github.com/studyowl/studyowl-api/study"
)

func init() {
	// Load .env file if not in production environment
	if os.Getenv("APP_ENV") != "production" {
		if err := godotenv.Load(); err != nil {
			log.Printf("Warning: .env file not found, environment variables might not be loaded: %v", err)
		}
	}
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	zlog, err := logger.New(cfg.Env)
	if err != nil {
		log.Fatalf("failed to initialize logger: %v", err)
	}
	defer zlog.Sync()

	db, err := config.Connect(cfg.DatabaseURL)
	if err != nil {
		zlog.Fatal("failed to connect database", zap.Error(err))
	}

	var reporter report.Generator
	if cfg.OpenAIAPIKey != "" {
		client, err := report.NewOpenAIClient(cfg.OpenAIAPIKey, cfg.OpenAIModel)
		if err != nil {
			zlog.Fatal("failed to configure report generator", zap.Error(err))
		}
		reporter = client
	} else {
		zlog.Warn("OPENAI_API_KEY not set, session reports disabled")
	}

	dbHandler := &handlers.DBHandler{DB: db, Log: zlog, Params: cfg.Scheduler}
	studyHandler := handlers.NewStudyHandler(store.New(db), study.NewTracker(), reporter, cfg.Scheduler, zlog)
	syncUser := middleware.SyncUser(db, zlog)

	mux := http.NewServeMux()

	// Set
	mux.HandleFunc("GET /api/sets/{setID}", dbHandler.GetSetByID)
	mux.HandleFunc("POST /api/sets", syncUser(dbHandler.CreateFlashCardSet))
	mux.HandleFunc("PUT /api/sets/{setID}", syncUser(dbHandler.UpdateSetByID))
	mux.HandleFunc("DELETE /api/sets/{setID}", syncUser(dbHandler.DeleteSetByID))

	// User
	mux.HandleFunc("GET /api/users/{nickname}/sets", dbHandler.GetSetsForUser)
	mux.HandleFunc("GET /api/users/me", syncUser(dbHandler.GetCurrentUser))
	mux.HandleFunc("PUT /api/users/me", syncUser(dbHandler.UpdateCurrentUser))

	// Flashcard
	mux.HandleFunc("POST /api/sets/{setID}/flashcards/", syncUser(dbHandler.CreateFlashCard))
	mux.HandleFunc("GET /api/sets/{setID}/flashcards/{flashcardID}", syncUser(dbHandler.GetFlashcardByID))
	mux.HandleFunc("GET /api/sets/{setID}/flashcards", dbHandler.GetFlashcardsForSet)
	mux.HandleFunc("PUT /api/sets/{setID}/flashcards/{flashcardID}", syncUser(dbHandler.UpdateFlashCardByID))
	mux.HandleFunc("DELETE /api/sets/{setID}/flashcards/{flashcardID}", syncUser(dbHandler.DeleteFlashCardByID))

	// Study
	mux.HandleFunc("POST /api/study/due", syncUser(studyHandler.GetDueCards))
	mux.HandleFunc("POST /api/study/cards/{cardID}/review", syncUser(studyHandler.ReviewCard))
	mux.HandleFunc("POST /api/study/sessions/{sessionID}/report", syncUser(studyHandler.SessionReport))

	// Local development login, issues the auth_token cookie verified by
	// auth.Middleware. Never registered in production.
	if cfg.Env != "production" && cfg.JWTSecretKey != "" {
		authHandler := &handlers.AuthHandler{DB: db, Log: zlog, SecretKey: cfg.JWTSecretKey}
		devAuth := auth.Middleware(db, cfg.JWTSecretKey, zlog)
		mux.HandleFunc("POST /api/auth/login", authHandler.DevLogin)
		mux.HandleFunc("GET /api/auth/me", devAuth(dbHandler.GetCurrentUser))
	}

	var handler http.Handler = mux
	if cfg.Auth0Domain != "" {
		handler = middleware.EnsureValidToken(cfg.Auth0Domain, cfg.Auth0Audience)(mux)
	} else {
		zlog.Warn("AUTH0_DOMAIN not set, JWT validation disabled")
	}

	corsHandler := cors.New(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization", "X-Requested-With", "Accept", "Origin"},
		AllowCredentials: true,
		MaxAge:           86400,
	}).Handler(handler)

	serverAddr := "0.0.0.0:" + cfg.Port
	zlog.Info("starting server", zap.String("addr", serverAddr), zap.String("env", cfg.Env))
	if err := http.ListenAndServe(serverAddr, corsHandler); err != nil {
		zlog.Fatal("server stopped", zap.Error(err))
	}
}
