// Package conversation implements the per-user conversation state
// machine: onboarding, inventory confirmation, meal plan negotiation,
// cook feedback, grocery confirmation, and free-form chat.
package conversation

import (
	"context"
	"log/slog"

	"cookin/internal/inventory"
	"cookin/internal/llm"
	"cookin/internal/mealplan"
	"cookin/internal/messagelog"
	"cookin/internal/recipe"
	"cookin/internal/tools"
	"cookin/internal/user"
)

// apologyReply is the only thing a user ever sees of an internal error.
const apologyReply = "Sorry, I had a hiccup processing that. Could you try again?"

// Handler routes inbound messages to the flow matching the user's
// conversation state.
type Handler struct {
	users     *user.Repository
	inventory *inventory.Repository
	plans     *mealplan.Repository
	recipes   *recipe.Repository
	messages  *messagelog.Repository
	clipper   *recipe.Clipper
	gateway   llm.Gateway
	executor  *tools.Executor
	logger    *slog.Logger

	// OnOnboarded runs after a user finishes onboarding, so the caller
	// can register their recurring reminders.
	OnOnboarded func(ctx context.Context, u *user.User)
}

// NewHandler creates a new Handler.
func NewHandler(
	users *user.Repository,
	inv *inventory.Repository,
	plans *mealplan.Repository,
	recipes *recipe.Repository,
	messages *messagelog.Repository,
	clipper *recipe.Clipper,
	gateway llm.Gateway,
	logger *slog.Logger,
) *Handler {
	return &Handler{
		users:     users,
		inventory: inv,
		plans:     plans,
		recipes:   recipes,
		messages:  messages,
		clipper:   clipper,
		gateway:   gateway,
		executor:  tools.NewExecutor(gateway, logger),
		logger:    logger,
	}
}

// HandleInbound processes one message and returns the reply text. Any
// failure inside a flow degrades to a fixed apology; the user's state
// is not advanced on failure, so a retry lands on the same handler.
func (h *Handler) HandleInbound(ctx context.Context, from, text string) string {
	u, err := h.users.GetOrCreate(ctx, from)
	if err != nil {
		h.logger.Error("failed to load user", "from", from, "error", err)
		return apologyReply
	}

	if err := h.messages.Log(ctx, from, messagelog.DirectionInbound, text); err != nil {
		h.logger.Warn("failed to log inbound message", "from", from, "error", err)
	}

	reply, err := h.dispatch(ctx, u, text)
	if err != nil {
		h.logger.Error("flow failed", "from", from, "state", u.ConversationState, "error", err)
		return apologyReply
	}
	if reply == "" {
		return apologyReply
	}
	return reply
}

func (h *Handler) dispatch(ctx context.Context, u *user.User, text string) (string, error) {
	if u.ConversationState.IsOnboarding() {
		return h.handleOnboarding(ctx, u, text)
	}

	switch u.ConversationState {
	case user.StateAwaitingInventory:
		return h.handleInventoryConfirmation(ctx, u, text)
	case user.StateAwaitingPlanApproval:
		return h.handleMealPlanNegotiation(ctx, u, text)
	case user.StateAwaitingCookFeedback:
		return h.handleCookFeedback(ctx, u, text)
	case user.StateAwaitingGrocery:
		return h.handleGroceryConfirmation(ctx, u, text)
	default:
		return h.handleAdHoc(ctx, u, text)
	}
}

// llmParse sends one state-scoped classification request and returns
// the parsed data payload. Used by the scripted (non-tool) flows.
func (h *Handler) llmParse(ctx context.Context, u *user.User, state user.State, text string) (Parsed, error) {
	systemPrompt := buildSystemPrompt(u, state, u.StateContext, h.snapshotFor(ctx, u, state))
	resp, err := h.gateway.Chat(ctx, []llm.Message{
		{Role: llm.RoleSystem, Content: systemPrompt},
		{Role: llm.RoleUser, Content: text},
	}, nil)
	if err != nil {
		return Parsed{}, err
	}
	return ParseResponse(resp.Content), nil
}

// snapshotFor gathers the domain data the prompt builder may render for
// the given state. States that render nothing get an empty snapshot so
// no queries run for them.
func (h *Handler) snapshotFor(ctx context.Context, u *user.User, state user.State) snapshot {
	var snap snapshot
	if state == user.StateIdle || state == user.StateAwaitingPlanApproval {
		snap.Inventory, _ = h.inventory.List(ctx, u.PhoneNumber)
		snap.Recipes, _ = h.recipes.List(ctx, u.PhoneNumber)
	}
	if state == user.StateIdle || state == user.StateAwaitingCookFeedback {
		snap.Plan, _ = h.plans.GetCurrentPlan(ctx, u.PhoneNumber)
	}
	return snap
}
