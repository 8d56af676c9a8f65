// Package web is the browser-facing JSON API: Google sign-in, the chat
// endpoint (which shares the conversation handler with the messaging
// transport), and read/write access to plans, recipes, and preferences.
package web

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/golang-jwt/jwt/v5"

	"cookin/internal/calendar"
	"cookin/internal/config"
	"cookin/internal/conversation"
	"cookin/internal/mealplan"
	"cookin/internal/messagelog"
	"cookin/internal/metrics"
	"cookin/internal/recipe"
	"cookin/internal/user"
)

// Server holds the API's dependencies.
type Server struct {
	handler      *conversation.Handler
	users        *user.Repository
	webUsers     *user.WebRepository
	plans        *mealplan.Repository
	recipes      *recipe.Repository
	clipper      *recipe.Clipper
	messages     *messagelog.Repository
	calendar     *calendar.Service
	metricsStore *metrics.Store
	dbPath       string
	sessions     *sessionStore
	logger       *slog.Logger

	// OnScheduleChanged runs after a schedule update so the caller can
	// reschedule the user's reminders.
	OnScheduleChanged func(u *user.User)
}

func NewServer(
	handler *conversation.Handler,
	users *user.Repository,
	webUsers *user.WebRepository,
	plans *mealplan.Repository,
	recipes *recipe.Repository,
	clipper *recipe.Clipper,
	messages *messagelog.Repository,
	cal *calendar.Service,
	metricsStore *metrics.Store,
	cfg *config.Config,
	logger *slog.Logger,
) *Server {
	return &Server{
		handler:      handler,
		users:        users,
		webUsers:     webUsers,
		plans:        plans,
		recipes:      recipes,
		clipper:      clipper,
		messages:     messages,
		calendar:     cal,
		metricsStore: metricsStore,
		dbPath:       cfg.DatabasePath,
		sessions:     newSessionStore(),
		logger:       logger,
	}
}

// RegisterHandlers mounts all API routes on the mux.
func (s *Server) RegisterHandlers(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/auth/google", s.handleGoogleAuth)
	mux.HandleFunc("POST /api/auth/logout", s.handleLogout)
	mux.HandleFunc("GET /api/auth/me", s.auth(s.handleMe))

	mux.HandleFunc("POST /api/chat", s.auth(s.handleChat))

	mux.HandleFunc("GET /api/plan", s.auth(s.handleGetPlan))
	mux.HandleFunc("PATCH /api/meals/{mealID}/rating", s.auth(s.handleMealRating))
	mux.HandleFunc("PATCH /api/meals/{mealID}/comment", s.auth(s.handleMealComment))
	mux.HandleFunc("PATCH /api/meals/{mealID}/favorite", s.auth(s.handleMealFavorite))
	mux.HandleFunc("PATCH /api/meals/{mealID}/status", s.auth(s.handleMealStatus))
	mux.HandleFunc("POST /api/meals/{mealID}/save", s.auth(s.handleMealSave))

	mux.HandleFunc("GET /api/recipes", s.auth(s.handleListRecipes))
	mux.HandleFunc("POST /api/recipes", s.auth(s.handleSaveRecipe))
	mux.HandleFunc("POST /api/recipes/import", s.auth(s.handleImportRecipe))
	mux.HandleFunc("PATCH /api/recipes/{recipeID}/favorite", s.auth(s.handleRecipeFavorite))

	mux.HandleFunc("GET /api/preferences", s.auth(s.handleGetPreferences))
	mux.HandleFunc("PUT /api/preferences", s.auth(s.handleUpdatePreferences))
	mux.HandleFunc("GET /api/schedule", s.auth(s.handleGetSchedule))
	mux.HandleFunc("PUT /api/schedule", s.auth(s.handleUpdateSchedule))

	mux.HandleFunc("GET /api/messages", s.auth(s.handleGetMessages))

	mux.HandleFunc("GET /api/calendar/status", s.auth(s.handleCalendarStatus))
	mux.HandleFunc("POST /api/calendar/connect", s.auth(s.handleCalendarConnect))
	mux.HandleFunc("POST /api/calendar/sync", s.auth(s.handleCalendarSync))

	mux.HandleFunc("GET /api/metrics", s.auth(s.handleMetrics))

	mux.HandleFunc("GET /health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})
}

// authedHandler is an http handler that has resolved the web user.
type authedHandler func(w http.ResponseWriter, r *http.Request, webUserID string)

// auth resolves the session cookie or rejects with 401.
func (s *Server) auth(next authedHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		cookie, err := r.Cookie("session")
		if err != nil {
			writeError(w, http.StatusUnauthorized, "no session token")
			return
		}
		webUserID, ok := s.sessions.Get(cookie.Value)
		if !ok {
			writeError(w, http.StatusUnauthorized, "invalid or expired session")
			return
		}
		next(w, r, webUserID)
	}
}

// identity is the key a web user's conversation data lives under.
func identity(webUserID string) string {
	return "web:" + webUserID
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func readJSON(r *http.Request, out any) error {
	defer r.Body.Close()
	if err := json.NewDecoder(r.Body).Decode(out); err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}

// googleClaims is the subset of the Google ID token payload we use.
type googleClaims struct {
	Sub     string
	Email   string
	Name    string
	Picture string
}

// decodeGoogleToken extracts the payload without verifying the
// signature. The Google sign-in button has already verified the token;
// the backend only needs the identity claims out of it.
func decodeGoogleToken(credential string) (*googleClaims, error) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(credential, claims); err != nil {
		return nil, fmt.Errorf("invalid token format: %w", err)
	}
	sub, _ := claims["sub"].(string)
	if sub == "" {
		return nil, fmt.Errorf("token has no subject")
	}
	email, _ := claims["email"].(string)
	name, _ := claims["name"].(string)
	picture, _ := claims["picture"].(string)
	return &googleClaims{Sub: sub, Email: email, Name: name, Picture: picture}, nil
}
