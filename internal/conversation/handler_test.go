package conversation

import (
	"context"
	"errors"
	"log/slog"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"cookin/internal/database"
	"cookin/internal/inventory"
	"cookin/internal/llm"
	"cookin/internal/mealplan"
	"cookin/internal/messagelog"
	"cookin/internal/recipe"
	"cookin/internal/user"
)

const testPhone = "+1555"

// scriptedGateway returns canned responses in order and records every
// request it sees.
type scriptedGateway struct {
	responses []*llm.Response
	requests  [][]llm.Message
	err       error
}

func (g *scriptedGateway) Chat(ctx context.Context, messages []llm.Message, opts *llm.Options) (*llm.Response, error) {
	g.requests = append(g.requests, messages)
	if g.err != nil {
		return nil, g.err
	}
	if len(g.responses) == 0 {
		return &llm.Response{Content: `{"intent": "unknown", "reply": "ok"}`}, nil
	}
	resp := g.responses[0]
	g.responses = g.responses[1:]
	return resp, nil
}

type testEnv struct {
	handler *Handler
	users   *user.Repository
	inv     *inventory.Repository
	plans   *mealplan.Repository
	recipes *recipe.Repository
}

func newTestEnv(t *testing.T, gw llm.Gateway) *testEnv {
	t.Helper()
	db, err := database.New(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	logger := slog.New(slog.DiscardHandler)
	users := user.NewRepository(db)
	inv := inventory.NewRepository(db)
	plans := mealplan.NewRepository(db)
	recipes := recipe.NewRepository(db)
	messages := messagelog.NewRepository(db)
	clipper := recipe.NewClipper(recipes, gw)

	return &testEnv{
		handler: NewHandler(users, inv, plans, recipes, messages, clipper, gw, logger),
		users:   users,
		inv:     inv,
		plans:   plans,
		recipes: recipes,
	}
}

func (e *testEnv) mustUser(t *testing.T) *user.User {
	t.Helper()
	u, err := e.users.Get(context.Background(), testPhone)
	if err != nil || u == nil {
		t.Fatalf("failed to load test user: %v", err)
	}
	return u
}

func TestNewUserStartsOnboarding(t *testing.T) {
	env := newTestEnv(t, &scriptedGateway{})
	ctx := context.Background()

	reply := env.handler.HandleInbound(ctx, testPhone, "hi")

	if !strings.Contains(reply, "Welcome to Cookin'") {
		t.Errorf("expected welcome message, got %q", reply)
	}
	if !strings.Contains(reply, "cuisines") {
		t.Errorf("expected cuisine question, got %q", reply)
	}
	if got := env.mustUser(t).ConversationState; got != user.StateOnboardingCuisine {
		t.Errorf("expected state %q, got %q", user.StateOnboardingCuisine, got)
	}
}

func TestOnboardingAdvancesOneStepPerAnswer(t *testing.T) {
	gw := &scriptedGateway{responses: []*llm.Response{
		{Content: `{"intent": "answer", "reply": "", "data": {"cuisines": ["Indian", "Thai"]}}`},
		{Content: `{"intent": "answer", "reply": "", "data": {"dietary_restrictions": ["vegetarian"]}}`},
		{Content: `{"intent": "answer", "reply": "", "data": {"household_size": 2}}`},
		{Content: `{"intent": "answer", "reply": "", "data": {"skill_level": "intermediate"}}`},
		{Content: `{"intent": "answer", "reply": "", "data": {"cook_days": ["monday", "thursday"]}}`},
		{Content: `{"intent": "answer", "reply": "", "data": {"grocery_day": "saturday", "grocery_time": "10:00"}}`},
		{Content: `{"intent": "answer", "reply": "", "data": {"cook_reminder_time": "17:30", "timezone": "America/New_York"}}`},
		{Content: `{"intent": "answer", "reply": "", "data": {"items": [{"item_name": "rice", "category": "grains"}, {"item_name": "olive oil", "category": "oils"}]}}`},
		{Content: `{"intent": "answer", "reply": "", "data": {"max_messages_per_day": 3}}`},
		{Content: `{"intent": "plan_generated", "reply": "Here's your plan!", "data": {"meals": [{"day": "monday", "meal_type": "dinner", "recipe_name": "Chana Masala", "recipe_steps": "1. Simmer.", "ingredients": [{"name": "chickpeas", "qty": "2", "unit": "cans"}], "cook_time_min": 40}]}}`},
	}}
	env := newTestEnv(t, gw)
	ctx := context.Background()

	var onboarded *user.User
	env.handler.OnOnboarded = func(ctx context.Context, u *user.User) { onboarded = u }

	steps := []struct {
		message string
		want    user.State
	}{
		{"hi", user.StateOnboardingCuisine},
		{"Indian and Thai", user.StateOnboardingDietary},
		{"vegetarian", user.StateOnboardingHousehold},
		{"just the two of us", user.StateOnboardingSkill},
		{"intermediate I guess", user.StateOnboardingCookDays},
		{"Mondays and Thursdays", user.StateOnboardingGroceryDay},
		{"Saturday around 10", user.StateOnboardingReminder},
		{"5:30pm eastern", user.StateOnboardingInventory},
		{"rice and olive oil", user.StateOnboardingMaxMsgs},
		{"3 is fine", user.StateOnboardingConfirm},
	}
	for i, step := range steps {
		env.handler.HandleInbound(ctx, testPhone, step.message)
		if got := env.mustUser(t).ConversationState; got != step.want {
			t.Fatalf("step %d (%q): expected state %q, got %q", i, step.message, step.want, got)
		}
	}

	env.handler.HandleInbound(ctx, testPhone, "yes, looks good")

	u := env.mustUser(t)
	if u.ConversationState != user.StateAwaitingPlanApproval {
		t.Errorf("expected state %q after confirmation, got %q", user.StateAwaitingPlanApproval, u.ConversationState)
	}
	if onboarded == nil {
		t.Fatal("expected the onboarded hook to fire")
	}
	if len(u.CuisinePreferences) != 2 || u.HouseholdSize != 2 || u.SkillLevel != user.SkillIntermediate {
		t.Errorf("profile not persisted: %+v", u)
	}
	if len(u.CookDays) != 2 || u.GroceryDay != "saturday" || u.CookReminderTime != "17:30" {
		t.Errorf("schedule not persisted: %+v", u)
	}
	items, err := env.inv.List(ctx, testPhone)
	if err != nil {
		t.Fatalf("failed to list inventory: %v", err)
	}
	if len(items) != 2 {
		t.Errorf("expected 2 staples, got %d", len(items))
	}
	for _, item := range items {
		if !item.IsStaple {
			t.Errorf("expected %q to be a staple", item.Name)
		}
	}
}

func TestInventoryConfirmationPrunesUncheckedItems(t *testing.T) {
	gw := &scriptedGateway{responses: []*llm.Response{
		{Content: `{"intent": "inventory_update", "reply": "", "data": {"keep_indices": [0, 2]}}`},
		{Content: `{"intent": "plan_generated", "reply": "Here's your plan!", "data": {"meals": [{"day": "monday", "meal_type": "dinner", "recipe_name": "Fried Rice", "recipe_steps": "1. Fry rice.", "ingredients": [{"name": "rice", "qty": "2", "unit": "cups"}], "cook_time_min": 25}]}}`},
	}}
	env := newTestEnv(t, gw)
	ctx := context.Background()

	if _, err := env.users.GetOrCreate(ctx, testPhone); err != nil {
		t.Fatalf("failed to create user: %v", err)
	}
	for _, name := range []string{"rice", "chicken", "soy sauce"} {
		if err := env.inv.Add(ctx, testPhone, inventory.Item{Name: name}); err != nil {
			t.Fatalf("failed to add %s: %v", name, err)
		}
	}
	items, err := env.inv.List(ctx, testPhone)
	if err != nil {
		t.Fatalf("failed to list inventory: %v", err)
	}
	checklist := make([]any, 0, len(items))
	for _, item := range items {
		checklist = append(checklist, item.ID)
	}
	err = env.users.SetConversationState(ctx, testPhone, user.StateAwaitingInventory, map[string]any{
		"inventory_checklist": checklist,
	})
	if err != nil {
		t.Fatalf("failed to set state: %v", err)
	}

	reply := env.handler.HandleInbound(ctx, testPhone, "I'm out of the second one")

	if !strings.Contains(reply, "Kept 2 items, removed 1") {
		t.Errorf("unexpected reply: %q", reply)
	}

	left, err := env.inv.List(ctx, testPhone)
	if err != nil {
		t.Fatalf("failed to list inventory: %v", err)
	}
	if len(left) != 2 {
		t.Fatalf("expected 2 items kept, got %d", len(left))
	}
	wantKept := map[string]bool{items[0].Name: true, items[2].Name: true}
	for _, item := range left {
		if !wantKept[item.Name] {
			t.Errorf("unexpected surviving item %q", item.Name)
		}
	}

	// the confirmed inventory rolls straight into a draft plan
	if !strings.Contains(reply, "Here's your plan!") {
		t.Errorf("expected plan follow-up in reply, got %q", reply)
	}
	u := env.mustUser(t)
	if u.ConversationState != user.StateAwaitingPlanApproval {
		t.Errorf("expected state %q, got %q", user.StateAwaitingPlanApproval, u.ConversationState)
	}
}

func TestSwapMealKeepsNegotiationOpen(t *testing.T) {
	gw := &scriptedGateway{responses: []*llm.Response{
		{Content: `{"intent": "swap_meal", "reply": "Sure, let me find something else.", "data": {"day": "monday", "meal_type": "dinner", "reason": "wants something lighter"}}`},
		{Content: `{"intent": "plan_generated", "reply": "Here you go!", "data": {"meals": [{"day": "monday", "meal_type": "dinner", "recipe_name": "Tofu Stir Fry", "recipe_steps": "1. Fry tofu.", "ingredients": [{"name": "tofu", "qty": "400", "unit": "g"}], "cook_time_min": 20}]}}`},
	}}
	env := newTestEnv(t, gw)
	ctx := context.Background()

	if _, err := env.users.GetOrCreate(ctx, testPhone); err != nil {
		t.Fatalf("failed to create user: %v", err)
	}
	plan, err := env.plans.CreatePlan(ctx, testPhone, time.Now().Format("2006-01-02"), []mealplan.PlannedMeal{
		{Day: "monday", MealType: "dinner", RecipeName: "Butter Chicken", CookTimeMin: 45},
		{Day: "wednesday", MealType: "dinner", RecipeName: "Pad Thai", CookTimeMin: 30},
	})
	if err != nil {
		t.Fatalf("failed to create plan: %v", err)
	}
	err = env.users.SetConversationState(ctx, testPhone, user.StateAwaitingPlanApproval, map[string]any{
		"plan_id": plan.ID,
	})
	if err != nil {
		t.Fatalf("failed to set state: %v", err)
	}

	reply := env.handler.HandleInbound(ctx, testPhone, "can we swap monday's dinner?")

	if !strings.Contains(reply, "Here's the updated plan:") {
		t.Errorf("unexpected reply: %q", reply)
	}
	if !strings.Contains(reply, "Tofu Stir Fry") {
		t.Errorf("expected replacement meal in reply, got %q", reply)
	}

	updated, err := env.plans.GetCurrentPlan(ctx, testPhone)
	if err != nil {
		t.Fatalf("failed to load plan: %v", err)
	}
	names := map[string]bool{}
	for _, m := range updated.Meals {
		names[m.RecipeName] = true
	}
	if names["Butter Chicken"] {
		t.Error("swapped-out meal still on the plan")
	}
	if !names["Tofu Stir Fry"] || !names["Pad Thai"] {
		t.Errorf("unexpected plan contents: %v", names)
	}

	u := env.mustUser(t)
	if u.ConversationState != user.StateAwaitingPlanApproval {
		t.Errorf("expected negotiation to stay open, got state %q", u.ConversationState)
	}
	if _, ok := u.StateContext["pending_plan"]; !ok {
		t.Errorf("expected refreshed pending plan in context, got %v", u.StateContext)
	}
}

func TestCookFeedbackSkipMarksMealSkipped(t *testing.T) {
	gw := &scriptedGateway{responses: []*llm.Response{
		{Content: `{"intent": "cook_skipped", "reply": "No problem, next time!", "data": {}}`},
	}}
	env := newTestEnv(t, gw)
	ctx := context.Background()

	if _, err := env.users.GetOrCreate(ctx, testPhone); err != nil {
		t.Fatalf("failed to create user: %v", err)
	}
	plan, err := env.plans.CreatePlan(ctx, testPhone, time.Now().Format("2006-01-02"), []mealplan.PlannedMeal{
		{Day: "monday", MealType: "dinner", RecipeName: "Butter Chicken", CookTimeMin: 45},
	})
	if err != nil {
		t.Fatalf("failed to create plan: %v", err)
	}
	mealID := plan.Meals[0].ID
	err = env.users.SetConversationState(ctx, testPhone, user.StateAwaitingCookFeedback, map[string]any{
		"planned_meal_id": mealID,
	})
	if err != nil {
		t.Fatalf("failed to set state: %v", err)
	}

	reply := env.handler.HandleInbound(ctx, testPhone, "didn't get to it, ordered pizza")

	if reply != "No problem, next time!" {
		t.Errorf("unexpected reply: %q", reply)
	}
	meal, err := env.plans.GetMeal(ctx, mealID)
	if err != nil {
		t.Fatalf("failed to load meal: %v", err)
	}
	if meal.Status != mealplan.MealSkipped {
		t.Errorf("expected meal skipped, got status %q", meal.Status)
	}
	if got := env.mustUser(t).ConversationState; got != user.StateIdle {
		t.Errorf("expected state %q, got %q", user.StateIdle, got)
	}
}

func TestCookFeedbackSavesWellRatedMeal(t *testing.T) {
	gw := &scriptedGateway{responses: []*llm.Response{
		{Content: `{"intent": "cook_feedback", "reply": "Glad you liked it!", "data": {"rating": 5, "notes": "used extra garlic", "want_to_save": true}}`},
	}}
	env := newTestEnv(t, gw)
	ctx := context.Background()

	if _, err := env.users.GetOrCreate(ctx, testPhone); err != nil {
		t.Fatalf("failed to create user: %v", err)
	}
	plan, err := env.plans.CreatePlan(ctx, testPhone, time.Now().Format("2006-01-02"), []mealplan.PlannedMeal{
		{Day: "monday", MealType: "dinner", RecipeName: "Butter Chicken", RecipeSteps: "1. Cook.", CookTimeMin: 45},
	})
	if err != nil {
		t.Fatalf("failed to create plan: %v", err)
	}
	mealID := plan.Meals[0].ID
	err = env.users.SetConversationState(ctx, testPhone, user.StateAwaitingCookFeedback, map[string]any{
		"planned_meal_id": mealID,
	})
	if err != nil {
		t.Fatalf("failed to set state: %v", err)
	}

	env.handler.HandleInbound(ctx, testPhone, "loved it! added extra garlic. save it")

	meal, err := env.plans.GetMeal(ctx, mealID)
	if err != nil {
		t.Fatalf("failed to load meal: %v", err)
	}
	if meal.Status != mealplan.MealCooked {
		t.Errorf("expected meal cooked, got status %q", meal.Status)
	}
	if meal.UserRating != 5 {
		t.Errorf("expected rating 5, got %d", meal.UserRating)
	}

	saved, err := env.recipes.FindByName(ctx, testPhone, "Butter Chicken")
	if err != nil {
		t.Fatalf("failed to look up saved recipe: %v", err)
	}
	if saved == nil {
		t.Fatal("expected meal promoted to saved recipes")
	}
	if saved.UserRating != 5 {
		t.Errorf("expected saved recipe rated 5, got %d", saved.UserRating)
	}
}

func TestGatewayFailureDegradesToApology(t *testing.T) {
	gw := &scriptedGateway{err: errors.New("provider unavailable")}
	env := newTestEnv(t, gw)
	ctx := context.Background()

	if _, err := env.users.GetOrCreate(ctx, testPhone); err != nil {
		t.Fatalf("failed to create user: %v", err)
	}
	if err := env.users.SetConversationState(ctx, testPhone, user.StateOnboardingCuisine, nil); err != nil {
		t.Fatalf("failed to set state: %v", err)
	}

	reply := env.handler.HandleInbound(ctx, testPhone, "indian and thai")

	if reply != apologyReply {
		t.Errorf("expected apology, got %q", reply)
	}
	if got := env.mustUser(t).ConversationState; got != user.StateOnboardingCuisine {
		t.Errorf("state advanced despite failure: %q", got)
	}
}

func TestUnknownIntentPassesReplyThrough(t *testing.T) {
	gw := &scriptedGateway{responses: []*llm.Response{
		{Content: `{"intent": "question", "reply": "It keeps for about 3 days in the fridge.", "data": {}}`},
	}}
	env := newTestEnv(t, gw)
	ctx := context.Background()

	if _, err := env.users.GetOrCreate(ctx, testPhone); err != nil {
		t.Fatalf("failed to create user: %v", err)
	}
	plan, err := env.plans.CreatePlan(ctx, testPhone, time.Now().Format("2006-01-02"), []mealplan.PlannedMeal{
		{Day: "monday", MealType: "dinner", RecipeName: "Butter Chicken"},
	})
	if err != nil {
		t.Fatalf("failed to create plan: %v", err)
	}
	err = env.users.SetConversationState(ctx, testPhone, user.StateAwaitingPlanApproval, map[string]any{
		"plan_id": plan.ID,
	})
	if err != nil {
		t.Fatalf("failed to set state: %v", err)
	}

	reply := env.handler.HandleInbound(ctx, testPhone, "how long does butter chicken keep?")

	if reply != "It keeps for about 3 days in the fridge." {
		t.Errorf("expected passthrough reply, got %q", reply)
	}
	if got := env.mustUser(t).ConversationState; got != user.StateAwaitingPlanApproval {
		t.Errorf("expected negotiation to stay open, got state %q", got)
	}
}
