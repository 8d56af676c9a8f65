package web

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"cookin/internal/calendar"
	"cookin/internal/config"
	"cookin/internal/conversation"
	"cookin/internal/database"
	"cookin/internal/inventory"
	"cookin/internal/llm"
	"cookin/internal/mealplan"
	"cookin/internal/messagelog"
	"cookin/internal/metrics"
	"cookin/internal/recipe"
	"cookin/internal/user"
)

type fakeGateway struct{}

func (fakeGateway) Chat(ctx context.Context, messages []llm.Message, opts *llm.Options) (*llm.Response, error) {
	return &llm.Response{Content: `{"intent": "unknown", "reply": "ok"}`}, nil
}

type testAPI struct {
	mux      *http.ServeMux
	server   *Server
	users    *user.Repository
	plans    *mealplan.Repository
	recipes  *recipe.Repository
	messages *messagelog.Repository
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	db, err := database.New(dbPath)
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	logger := slog.New(slog.DiscardHandler)
	gw := fakeGateway{}
	users := user.NewRepository(db)
	webUsers := user.NewWebRepository(db)
	inv := inventory.NewRepository(db)
	plans := mealplan.NewRepository(db)
	recipes := recipe.NewRepository(db)
	messages := messagelog.NewRepository(db)
	clipper := recipe.NewClipper(recipes, gw)
	handler := conversation.NewHandler(users, inv, plans, recipes, messages, clipper, gw, logger)
	cfg := &config.Config{DatabasePath: dbPath}
	cal := calendar.NewService(cfg, webUsers, logger)

	server := NewServer(handler, users, webUsers, plans, recipes, clipper, messages, cal, metrics.NewStore(db), cfg, logger)
	mux := http.NewServeMux()
	server.RegisterHandlers(mux)

	return &testAPI{mux: mux, server: server, users: users, plans: plans, recipes: recipes, messages: messages}
}

// fakeCredential builds an unsigned Google ID token. The backend only
// decodes the payload, it never verifies the signature.
func fakeCredential(t *testing.T) string {
	t.Helper()
	header := base64.RawURLEncoding.EncodeToString([]byte(`{"alg":"RS256","typ":"JWT"}`))
	payload := base64.RawURLEncoding.EncodeToString([]byte(
		`{"sub":"google-123","email":"ada@example.com","name":"Ada","picture":"https://example.com/a.png"}`))
	return header + "." + payload + ".sig"
}

// signIn performs the auth handshake and returns the session cookie.
func (a *testAPI) signIn(t *testing.T) *http.Cookie {
	t.Helper()
	body := strings.NewReader(`{"credential": "` + fakeCredential(t) + `"}`)
	req := httptest.NewRequest(http.MethodPost, "/api/auth/google", body)
	rec := httptest.NewRecorder()
	a.mux.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("auth failed with status %d: %s", rec.Code, rec.Body.String())
	}
	for _, cookie := range rec.Result().Cookies() {
		if cookie.Name == "session" {
			return cookie
		}
	}
	t.Fatal("no session cookie set")
	return nil
}

func (a *testAPI) do(t *testing.T, method, path, body string, cookie *http.Cookie) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	if cookie != nil {
		req.AddCookie(cookie)
	}
	rec := httptest.NewRecorder()
	a.mux.ServeHTTP(rec, req)
	return rec
}

func TestGoogleAuthAndMe(t *testing.T) {
	api := newTestAPI(t)
	cookie := api.signIn(t)

	rec := api.do(t, http.MethodGet, "/api/auth/me", "", cookie)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp struct {
		User struct {
			Email string `json:"email"`
			Name  string `json:"name"`
		} `json:"user"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.User.Email != "ada@example.com" || resp.User.Name != "Ada" {
		t.Errorf("unexpected user: %+v", resp.User)
	}
}

func TestRequestsWithoutSessionAreRejected(t *testing.T) {
	api := newTestAPI(t)
	for _, route := range []string{"/api/plan", "/api/recipes", "/api/preferences", "/api/messages"} {
		rec := api.do(t, http.MethodGet, route, "", nil)
		if rec.Code != http.StatusUnauthorized {
			t.Errorf("%s: expected 401, got %d", route, rec.Code)
		}
	}
}

func TestLogoutInvalidatesSession(t *testing.T) {
	api := newTestAPI(t)
	cookie := api.signIn(t)

	if rec := api.do(t, http.MethodPost, "/api/auth/logout", "", cookie); rec.Code != http.StatusOK {
		t.Fatalf("logout failed: %d", rec.Code)
	}
	if rec := api.do(t, http.MethodGet, "/api/auth/me", "", cookie); rec.Code != http.StatusUnauthorized {
		t.Errorf("expected 401 after logout, got %d", rec.Code)
	}
}

func TestChatStartsOnboarding(t *testing.T) {
	api := newTestAPI(t)
	cookie := api.signIn(t)

	rec := api.do(t, http.MethodPost, "/api/chat", `{"message": "hi"}`, cookie)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp struct {
		Response string `json:"response"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if !strings.Contains(resp.Response, "Welcome to Cookin'") {
		t.Errorf("expected onboarding welcome, got %q", resp.Response)
	}
}

func TestMealRatingPatch(t *testing.T) {
	api := newTestAPI(t)
	cookie := api.signIn(t)
	ctx := context.Background()

	// the chat call creates the conversation user the plan hangs off
	api.do(t, http.MethodPost, "/api/chat", `{"message": "hi"}`, cookie)

	var me struct {
		User struct {
			ID string `json:"id"`
		} `json:"user"`
	}
	meRec := api.do(t, http.MethodGet, "/api/auth/me", "", cookie)
	if err := json.Unmarshal(meRec.Body.Bytes(), &me); err != nil {
		t.Fatalf("failed to decode me: %v", err)
	}
	key := "web:" + me.User.ID

	plan, err := api.plans.CreatePlan(ctx, key, time.Now().Format("2006-01-02"), []mealplan.PlannedMeal{
		{Day: "monday", MealType: "dinner", RecipeName: "Pad Thai"},
	})
	if err != nil {
		t.Fatalf("failed to create plan: %v", err)
	}
	mealID := plan.Meals[0].ID

	rec := api.do(t, http.MethodPatch, "/api/meals/"+mealID+"/rating", `{"rating": 4}`, cookie)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	meal, err := api.plans.GetMeal(ctx, mealID)
	if err != nil {
		t.Fatalf("failed to load meal: %v", err)
	}
	if meal.UserRating != 4 {
		t.Errorf("expected rating 4, got %d", meal.UserRating)
	}

	if rec := api.do(t, http.MethodPatch, "/api/meals/"+mealID+"/rating", `{"rating": 9}`, cookie); rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for out-of-range rating, got %d", rec.Code)
	}
}

func TestUpdateScheduleInvokesRescheduleHook(t *testing.T) {
	api := newTestAPI(t)
	cookie := api.signIn(t)

	// the user row must exist before fields can be updated
	api.do(t, http.MethodPost, "/api/chat", `{"message": "hi"}`, cookie)

	var rescheduled *user.User
	api.server.OnScheduleChanged = func(u *user.User) { rescheduled = u }

	body := `{"cook_days": ["Monday", "Thursday"], "grocery_day": "Saturday"}`
	rec := api.do(t, http.MethodPut, "/api/schedule", body, cookie)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if rescheduled == nil {
		t.Fatal("expected reschedule hook to run")
	}
	if len(rescheduled.CookDays) != 2 || rescheduled.GroceryDay != "Saturday" {
		t.Errorf("unexpected updated schedule: %+v", rescheduled)
	}
}

func TestRecipeFavoriteToggle(t *testing.T) {
	api := newTestAPI(t)
	cookie := api.signIn(t)
	ctx := context.Background()

	var me struct {
		User struct {
			ID string `json:"id"`
		} `json:"user"`
	}
	meRec := api.do(t, http.MethodGet, "/api/auth/me", "", cookie)
	if err := json.Unmarshal(meRec.Body.Bytes(), &me); err != nil {
		t.Fatalf("failed to decode me: %v", err)
	}
	key := "web:" + me.User.ID

	if _, err := api.users.GetOrCreate(ctx, key); err != nil {
		t.Fatalf("failed to create user: %v", err)
	}
	saved, err := api.recipes.Save(ctx, recipe.SavedRecipe{
		UserPhone:           key,
		Name:                "Dal Tadka",
		OriginalRecipeSteps: "1. Cook lentils.",
	})
	if err != nil {
		t.Fatalf("failed to save recipe: %v", err)
	}

	rec := api.do(t, http.MethodPatch, "/api/recipes/"+saved.ID+"/favorite", "", cookie)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp struct {
		IsFavorite bool `json:"is_favorite"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if !resp.IsFavorite {
		t.Error("expected favorite toggled on")
	}
}

func TestMetricsIncludesHealthSnapshot(t *testing.T) {
	api := newTestAPI(t)
	cookie := api.signIn(t)

	rec := api.do(t, http.MethodGet, "/api/metrics", "", cookie)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp struct {
		Health struct {
			Goroutines   int    `json:"goroutines"`
			DatabaseSize string `json:"database_size"`
		} `json:"health"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Health.Goroutines < 1 {
		t.Errorf("expected live goroutine count, got %d", resp.Health.Goroutines)
	}
	if resp.Health.DatabaseSize == "" || resp.Health.DatabaseSize == "0 B" {
		t.Errorf("expected a real database size, got %q", resp.Health.DatabaseSize)
	}
}
