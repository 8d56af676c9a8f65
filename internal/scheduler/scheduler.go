// Package scheduler runs the recurring per-user jobs: inventory
// confirmation on grocery day, cook reminders on cook days, and a
// post-cook check-in two hours later. Jobs fire in the user's own
// timezone and never interrupt a conversation already in progress.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"

	"github.com/robfig/cron/v3"

	"cookin/internal/inventory"
	"cookin/internal/mealplan"
	"cookin/internal/user"
)

// Sender delivers a proactive (assistant-initiated) message.
type Sender interface {
	SendProactive(ctx context.Context, phoneNumber, text string) error
}

// Planner generates a weekly meal plan and parks the user in the
// approval state. Implemented by the conversation handler.
type Planner interface {
	GeneratePlanFor(ctx context.Context, u *user.User) (string, error)
}

var dayNumbers = map[string]int{
	"sunday":    0,
	"monday":    1,
	"tuesday":   2,
	"wednesday": 3,
	"thursday":  4,
	"friday":    5,
	"saturday":  6,
}

// Scheduler owns the cron runner and the per-user job registry.
type Scheduler struct {
	cron      *cron.Cron
	users     *user.Repository
	inventory *inventory.Repository
	plans     *mealplan.Repository
	planner   Planner
	sender    Sender
	logger    *slog.Logger

	mu      sync.Mutex
	entries map[string][]cron.EntryID
}

// New creates a scheduler. Call Start to begin firing jobs.
func New(
	users *user.Repository,
	inv *inventory.Repository,
	plans *mealplan.Repository,
	planner Planner,
	sender Sender,
	logger *slog.Logger,
) *Scheduler {
	return &Scheduler{
		cron:      cron.New(),
		users:     users,
		inventory: inv,
		plans:     plans,
		planner:   planner,
		sender:    sender,
		logger:    logger,
		entries:   map[string][]cron.EntryID{},
	}
}

// Start begins running scheduled jobs.
func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop stops the cron runner and waits for running jobs to finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}

// Boot schedules jobs for every onboarded user. Called once at startup.
func (s *Scheduler) Boot(ctx context.Context) error {
	users, err := s.users.ListOnboarded(ctx)
	if err != nil {
		return fmt.Errorf("failed to list onboarded users: %w", err)
	}
	for _, u := range users {
		s.ScheduleUser(u)
	}
	s.logger.Info("scheduler booted", "users", len(users))
	return nil
}

// ScheduleUser replaces the user's jobs with a fresh set built from
// their current profile. Safe to call again after any schedule change.
func (s *Scheduler) ScheduleUser(u *user.User) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, id := range s.entries[u.PhoneNumber] {
		s.cron.Remove(id)
	}
	delete(s.entries, u.PhoneNumber)

	if u.GroceryDay == "" {
		s.logger.Warn("no grocery day set, skipping scheduling", "user", u.PhoneNumber)
		return
	}

	phone := u.PhoneNumber
	var ids []cron.EntryID

	add := func(spec string, job func()) {
		id, err := s.cron.AddFunc(spec, job)
		if err != nil {
			s.logger.Error("failed to schedule job", "user", phone, "spec", spec, "error", err)
			return
		}
		ids = append(ids, id)
	}

	add(cronSpec(u.GroceryDay, u.GroceryTime, u.Timezone), func() {
		if err := s.runInventoryConfirmation(context.Background(), phone); err != nil {
			s.logger.Error("inventory confirmation failed", "user", phone, "error", err)
		}
	})

	for _, day := range u.CookDays {
		cookDay := day
		add(cronSpec(cookDay, u.CookReminderTime, u.Timezone), func() {
			if err := s.runCookReminder(context.Background(), phone, cookDay); err != nil {
				s.logger.Error("cook reminder failed", "user", phone, "day", cookDay, "error", err)
			}
		})
		add(cronSpec(cookDay, addHours(u.CookReminderTime, 2), u.Timezone), func() {
			if err := s.runPostCookCheckin(context.Background(), phone); err != nil {
				s.logger.Error("post-cook check-in failed", "user", phone, "error", err)
			}
		})
	}

	s.entries[phone] = ids
	s.logger.Info("scheduled user jobs", "user", phone, "jobs", len(ids))
}

// Unschedule removes all of a user's jobs.
func (s *Scheduler) Unschedule(phoneNumber string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range s.entries[phoneNumber] {
		s.cron.Remove(id)
	}
	delete(s.entries, phoneNumber)
}

// cronSpec builds a weekly cron expression firing at time (HH:MM) on
// the named day, evaluated in the given timezone.
func cronSpec(dayName, timeOfDay, timezone string) string {
	dayNum, ok := dayNumbers[strings.ToLower(dayName)]
	if !ok {
		// unknown day falls back to Saturday 9am
		dayNum = 6
		timeOfDay = "09:00"
	}
	hours, minutes := parseTime(timeOfDay)
	spec := fmt.Sprintf("%d %d * * %d", minutes, hours, dayNum)
	if timezone != "" {
		spec = "CRON_TZ=" + timezone + " " + spec
	}
	return spec
}

// addHours shifts an HH:MM time forward, wrapping past midnight.
func addHours(timeOfDay string, hours int) string {
	h, m := parseTime(timeOfDay)
	return fmt.Sprintf("%02d:%02d", (h+hours+24)%24, m)
}

func parseTime(timeOfDay string) (hours, minutes int) {
	parts := strings.SplitN(timeOfDay, ":", 2)
	hours, _ = strconv.Atoi(parts[0])
	if len(parts) == 2 {
		minutes, _ = strconv.Atoi(parts[1])
	}
	return hours, minutes
}
