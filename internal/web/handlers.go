package web

import (
	"errors"
	"net/http"
	"strconv"

	"cookin/internal/calendar"
	"cookin/internal/mealplan"
	"cookin/internal/messagelog"
	"cookin/internal/metrics"
	"cookin/internal/recipe"
	"cookin/internal/user"
)

func (s *Server) handleGoogleAuth(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Credential string `json:"credential"`
	}
	if err := readJSON(r, &body); err != nil || body.Credential == "" {
		writeError(w, http.StatusBadRequest, "missing credential")
		return
	}

	claims, err := decodeGoogleToken(body.Credential)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid credential")
		return
	}

	wu, err := s.webUsers.GetOrCreate(r.Context(), claims.Sub, claims.Email, claims.Name, claims.Picture)
	if err != nil {
		s.logger.Error("google auth failed", "error", err)
		writeError(w, http.StatusInternalServerError, "authentication failed")
		return
	}

	token := s.sessions.Create(wu.ID)
	http.SetCookie(w, &http.Cookie{
		Name:     "session",
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   int(sessionTTL.Seconds()),
	})

	writeJSON(w, http.StatusOK, map[string]any{"user": webUserView(wu)})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if cookie, err := r.Cookie("session"); err == nil {
		s.sessions.Delete(cookie.Value)
	}
	http.SetCookie(w, &http.Cookie{Name: "session", Value: "", Path: "/", MaxAge: -1})
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request, webUserID string) {
	wu, err := s.webUsers.Get(r.Context(), webUserID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to fetch user")
		return
	}
	if wu == nil {
		writeError(w, http.StatusNotFound, "user not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"user": webUserView(wu)})
}

type userView struct {
	ID      string `json:"id"`
	Email   string `json:"email"`
	Name    string `json:"name,omitempty"`
	Picture string `json:"picture,omitempty"`
}

func webUserView(wu *user.WebUser) userView {
	return userView{ID: wu.ID, Email: wu.Email, Name: wu.Name, Picture: wu.Picture}
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request, webUserID string) {
	var body struct {
		Message string `json:"message"`
	}
	if err := readJSON(r, &body); err != nil || body.Message == "" {
		writeError(w, http.StatusBadRequest, "missing or invalid message")
		return
	}

	key := identity(webUserID)
	reply := s.handler.HandleInbound(r.Context(), key, body.Message)
	if err := s.messages.Log(r.Context(), key, messagelog.DirectionOutbound, reply); err != nil {
		s.logger.Warn("failed to log outbound web message", "user", key, "error", err)
	}
	writeJSON(w, http.StatusOK, map[string]string{"response": reply})
}

func (s *Server) handleGetPlan(w http.ResponseWriter, r *http.Request, webUserID string) {
	plan, err := s.plans.GetCurrentPlan(r.Context(), identity(webUserID))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to fetch meal plan")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"mealPlan": plan})
}

func (s *Server) handleMealRating(w http.ResponseWriter, r *http.Request, webUserID string) {
	var body struct {
		Rating int `json:"rating"`
	}
	if err := readJSON(r, &body); err != nil || body.Rating < 1 || body.Rating > 5 {
		writeError(w, http.StatusBadRequest, "rating must be 1-5")
		return
	}
	if err := s.plans.SetMealRating(r.Context(), r.PathValue("mealID"), body.Rating); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to update rating")
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (s *Server) handleMealComment(w http.ResponseWriter, r *http.Request, webUserID string) {
	var body struct {
		Comment string `json:"comment"`
	}
	if err := readJSON(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}
	if err := s.plans.SetMealComment(r.Context(), r.PathValue("mealID"), body.Comment); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to update comment")
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (s *Server) handleMealFavorite(w http.ResponseWriter, r *http.Request, webUserID string) {
	ctx := r.Context()
	mealID := r.PathValue("mealID")
	meal, err := s.plans.GetMeal(ctx, mealID)
	if err != nil || meal == nil {
		writeError(w, http.StatusNotFound, "meal not found")
		return
	}
	favorite := !meal.IsFavorite
	if err := s.plans.SetMealFavorite(ctx, mealID, favorite); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to toggle favorite")
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"is_favorite": favorite})
}

func (s *Server) handleMealStatus(w http.ResponseWriter, r *http.Request, webUserID string) {
	var body struct {
		Status string `json:"status"`
		Rating int    `json:"rating"`
	}
	if err := readJSON(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}
	if body.Status != mealplan.MealCooked && body.Status != mealplan.MealSkipped {
		writeError(w, http.StatusBadRequest, "status must be cooked or skipped")
		return
	}

	ctx := r.Context()
	mealID := r.PathValue("mealID")
	if err := s.plans.SetMealStatus(ctx, mealID, body.Status); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to update status")
		return
	}
	if body.Rating >= 1 && body.Rating <= 5 {
		if err := s.plans.SetMealRating(ctx, mealID, body.Rating); err != nil {
			writeError(w, http.StatusInternalServerError, "failed to record rating")
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (s *Server) handleMealSave(w http.ResponseWriter, r *http.Request, webUserID string) {
	ctx := r.Context()
	meal, err := s.plans.GetMeal(ctx, r.PathValue("mealID"))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to fetch meal")
		return
	}
	if meal == nil {
		writeError(w, http.StatusNotFound, "meal not found")
		return
	}

	key := identity(webUserID)
	ingredients := make([]recipe.Ingredient, 0, len(meal.Ingredients))
	for _, ing := range meal.Ingredients {
		ingredients = append(ingredients, recipe.Ingredient{Name: ing.Name, Qty: ing.Qty, Unit: ing.Unit})
	}
	saved, err := s.recipes.Save(ctx, recipe.SavedRecipe{
		UserPhone:           key,
		Name:                meal.RecipeName,
		OriginalRecipeSteps: meal.RecipeSteps,
		Ingredients:         ingredients,
		CookTimeMin:         meal.CookTimeMin,
		UserRating:          meal.UserRating,
		Notes:               meal.UserComment,
	})
	if errors.Is(err, recipe.ErrDuplicateName) {
		existing, _ := s.recipes.FindByName(ctx, key, meal.RecipeName)
		resp := map[string]any{"error": "recipe already saved"}
		if existing != nil {
			resp["recipeId"] = existing.ID
		}
		writeJSON(w, http.StatusConflict, resp)
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to save recipe")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "recipeId": saved.ID})
}

func (s *Server) handleListRecipes(w http.ResponseWriter, r *http.Request, webUserID string) {
	recipes, err := s.recipes.List(r.Context(), identity(webUserID))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to fetch recipes")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"recipes": recipes})
}

func (s *Server) handleSaveRecipe(w http.ResponseWriter, r *http.Request, webUserID string) {
	var body recipe.SavedRecipe
	if err := readJSON(r, &body); err != nil || body.Name == "" {
		writeError(w, http.StatusBadRequest, "missing recipe name")
		return
	}
	body.UserPhone = identity(webUserID)

	saved, err := s.recipes.Save(r.Context(), body)
	if errors.Is(err, recipe.ErrDuplicateName) {
		writeError(w, http.StatusConflict, "recipe already exists")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to save recipe")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "recipeId": saved.ID})
}

func (s *Server) handleImportRecipe(w http.ResponseWriter, r *http.Request, webUserID string) {
	var body struct {
		URL string `json:"url"`
	}
	if err := readJSON(r, &body); err != nil || body.URL == "" {
		writeError(w, http.StatusBadRequest, "missing url")
		return
	}

	saved, err := s.clipper.ClipURL(r.Context(), identity(webUserID), body.URL)
	if errors.Is(err, recipe.ErrDuplicateName) {
		writeError(w, http.StatusConflict, "recipe already exists")
		return
	}
	if err != nil {
		s.logger.Warn("recipe import failed", "url", body.URL, "error", err)
		writeError(w, http.StatusUnprocessableEntity, "failed to import recipe")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "recipe": saved})
}

func (s *Server) handleRecipeFavorite(w http.ResponseWriter, r *http.Request, webUserID string) {
	ctx := r.Context()
	recipeID := r.PathValue("recipeID")
	rec, err := s.recipes.Get(ctx, recipeID)
	if err != nil || rec == nil {
		writeError(w, http.StatusNotFound, "recipe not found")
		return
	}
	favorite := !rec.IsFavorite
	if err := s.recipes.SetFavorite(ctx, recipeID, favorite); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to toggle favorite")
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"is_favorite": favorite})
}

func (s *Server) handleGetPreferences(w http.ResponseWriter, r *http.Request, webUserID string) {
	u, err := s.users.Get(r.Context(), identity(webUserID))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to fetch preferences")
		return
	}
	if u == nil {
		writeError(w, http.StatusNotFound, "user preferences not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"preferences": map[string]any{
			"name":                 u.Name,
			"cuisine_preferences":  u.CuisinePreferences,
			"dietary_restrictions": u.DietaryRestrictions,
			"household_size":       u.HouseholdSize,
			"skill_level":          u.SkillLevel,
			"cook_days":            u.CookDays,
			"grocery_day":          u.GroceryDay,
			"grocery_time":         u.GroceryTime,
			"cook_reminder_time":   u.CookReminderTime,
			"timezone":             u.Timezone,
			"max_messages_per_day": u.MaxMessagesPerDay,
		},
	})
}

var preferenceFields = []string{
	"name", "cuisine_preferences", "dietary_restrictions",
	"household_size", "skill_level", "timezone", "max_messages_per_day",
}

var scheduleFields = []string{
	"cook_days", "grocery_day", "grocery_time", "cook_reminder_time",
}

func (s *Server) handleUpdatePreferences(w http.ResponseWriter, r *http.Request, webUserID string) {
	s.applyFieldUpdates(w, r, webUserID, preferenceFields, false)
}

func (s *Server) handleGetSchedule(w http.ResponseWriter, r *http.Request, webUserID string) {
	u, err := s.users.Get(r.Context(), identity(webUserID))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to fetch schedule")
		return
	}
	if u == nil {
		writeError(w, http.StatusNotFound, "user not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"schedule": map[string]any{
			"cook_days":          u.CookDays,
			"grocery_day":        u.GroceryDay,
			"grocery_time":       u.GroceryTime,
			"cook_reminder_time": u.CookReminderTime,
			"timezone":           u.Timezone,
		},
	})
}

func (s *Server) handleUpdateSchedule(w http.ResponseWriter, r *http.Request, webUserID string) {
	s.applyFieldUpdates(w, r, webUserID, scheduleFields, true)
}

// applyFieldUpdates writes whichever of the allowed fields appear in
// the body, through the validated field-update path.
func (s *Server) applyFieldUpdates(w http.ResponseWriter, r *http.Request, webUserID string, allowed []string, reschedule bool) {
	var body map[string]any
	if err := readJSON(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}

	ctx := r.Context()
	key := identity(webUserID)
	updated := 0
	for _, field := range allowed {
		value, ok := body[field]
		if !ok || value == nil {
			continue
		}
		if err := s.users.UpdateField(ctx, key, field, value); err != nil {
			writeError(w, http.StatusBadRequest, field+": "+err.Error())
			return
		}
		updated++
	}
	if updated == 0 {
		writeError(w, http.StatusBadRequest, "no updatable fields provided")
		return
	}

	if reschedule && s.OnScheduleChanged != nil {
		if u, err := s.users.Get(ctx, key); err == nil && u != nil {
			s.OnScheduleChanged(u)
		}
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (s *Server) handleGetMessages(w http.ResponseWriter, r *http.Request, webUserID string) {
	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 && n <= 500 {
			limit = n
		}
	}
	entries, err := s.messages.Recent(r.Context(), identity(webUserID), limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to fetch messages")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"messages": entries})
}

func (s *Server) handleCalendarStatus(w http.ResponseWriter, r *http.Request, webUserID string) {
	wu, err := s.webUsers.Get(r.Context(), webUserID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to check calendar status")
		return
	}
	connected := wu != nil && wu.HasCalendarToken()
	writeJSON(w, http.StatusOK, map[string]any{"connected": connected, "scopes": calendar.Scopes})
}

func (s *Server) handleCalendarConnect(w http.ResponseWriter, r *http.Request, webUserID string) {
	var body struct {
		Code string `json:"code"`
	}
	if err := readJSON(r, &body); err != nil || body.Code == "" {
		writeError(w, http.StatusBadRequest, "missing authorization code")
		return
	}
	if err := s.calendar.Connect(r.Context(), webUserID, body.Code); err != nil {
		s.logger.Error("calendar connect failed", "user", webUserID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to connect google calendar")
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"connected": true})
}

func (s *Server) handleCalendarSync(w http.ResponseWriter, r *http.Request, webUserID string) {
	ctx := r.Context()
	u, err := s.users.Get(ctx, identity(webUserID))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load user")
		return
	}
	if u == nil {
		writeError(w, http.StatusNotFound, "user not found")
		return
	}

	created, err := s.calendar.Sync(ctx, webUserID, calendar.Schedule{
		CookDays:         u.CookDays,
		CookReminderTime: u.CookReminderTime,
		GroceryDay:       u.GroceryDay,
		GroceryTime:      u.GroceryTime,
		Timezone:         u.Timezone,
	})
	if err != nil {
		s.logger.Error("calendar sync failed", "user", webUserID, "error", err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "created": created})
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request, webUserID string) {
	usage, err := s.metricsStore.GetDailyUsage(r.Context(), 7)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to fetch metrics")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"usage":  usage,
		"health": metrics.Snapshot(s.dbPath),
	})
}
