// Package calendar pushes the user's cooking schedule to Google
// Calendar as recurring weekly events, using tokens obtained through
// the web app's OAuth popup flow.
package calendar

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	gcal "google.golang.org/api/calendar/v3"
	"google.golang.org/api/option"

	"cookin/internal/config"
	"cookin/internal/user"
)

const calendarName = "Cookin'"

// Scopes requested from Google for calendar sync.
var Scopes = []string{gcal.CalendarEventsScope, gcal.CalendarScope}

var dayToRRule = map[string]string{
	"monday":    "MO",
	"tuesday":   "TU",
	"wednesday": "WE",
	"thursday":  "TH",
	"friday":    "FR",
	"saturday":  "SA",
	"sunday":    "SU",
}

// Schedule is what gets pushed to the calendar.
type Schedule struct {
	CookDays         []string
	CookReminderTime string
	GroceryDay       string
	GroceryTime      string
	Timezone         string
}

// Service exchanges OAuth codes and syncs schedules.
type Service struct {
	oauth    *oauth2.Config
	webUsers *user.WebRepository
	logger   *slog.Logger
}

func NewService(cfg *config.Config, webUsers *user.WebRepository, logger *slog.Logger) *Service {
	return &Service{
		oauth: &oauth2.Config{
			ClientID:     cfg.GoogleClientID,
			ClientSecret: cfg.GoogleClientSecret,
			// auth code flow via the sign-in popup
			RedirectURL: "postmessage",
			Scopes:      Scopes,
			Endpoint:    google.Endpoint,
		},
		webUsers: webUsers,
		logger:   logger,
	}
}

// Connect exchanges the authorization code for tokens and stores them
// on the web user.
func (s *Service) Connect(ctx context.Context, webUserID, code string) error {
	token, err := s.oauth.Exchange(ctx, code)
	if err != nil {
		return fmt.Errorf("failed to exchange authorization code: %w", err)
	}
	return s.webUsers.SaveGoogleToken(ctx, webUserID, token.AccessToken, token.RefreshToken, token.Expiry)
}

// Sync replaces the user's Cookin' calendar events with the current
// schedule. Returns the number of events created.
func (s *Service) Sync(ctx context.Context, webUserID string, schedule Schedule) (int, error) {
	wu, err := s.webUsers.Get(ctx, webUserID)
	if err != nil {
		return 0, err
	}
	if wu == nil || !wu.HasCalendarToken() {
		return 0, fmt.Errorf("google calendar not connected")
	}

	svc, err := s.calendarClient(ctx, wu)
	if err != nil {
		return 0, err
	}

	calendarID, err := s.findOrCreateCalendar(svc, schedule.Timezone)
	if err != nil {
		return 0, err
	}
	if err := s.clearEvents(svc, calendarID); err != nil {
		s.logger.Warn("failed to clear old calendar events", "user", webUserID, "error", err)
	}

	created := 0
	for _, day := range schedule.CookDays {
		event := recurringEvent(day, schedule.CookReminderTime, schedule.Timezone,
			"Cook Dinner", "Time to cook! Check Cookin' for tonight's recipe.", 30)
		if event == nil {
			continue
		}
		if _, err := svc.Events.Insert(calendarID, event).Do(); err != nil {
			return created, fmt.Errorf("failed to insert cook event for %s: %w", day, err)
		}
		created++
	}

	if schedule.GroceryDay != "" {
		groceryTime := schedule.GroceryTime
		if groceryTime == "" {
			groceryTime = "09:00"
		}
		event := recurringEvent(schedule.GroceryDay, groceryTime, schedule.Timezone,
			"Grocery Shopping", "Check Cookin' for your grocery list.", 60)
		if event != nil {
			if _, err := svc.Events.Insert(calendarID, event).Do(); err != nil {
				return created, fmt.Errorf("failed to insert grocery event: %w", err)
			}
			created++
		}
	}

	return created, nil
}

// calendarClient builds an authenticated calendar client, persisting
// any refreshed token back to the web user row.
func (s *Service) calendarClient(ctx context.Context, wu *user.WebUser) (*gcal.Service, error) {
	token := &oauth2.Token{
		AccessToken:  wu.GoogleAccessToken,
		RefreshToken: wu.GoogleRefreshToken,
	}
	if wu.GoogleTokenExpiry != "" {
		if expiry, err := time.Parse(time.RFC3339, wu.GoogleTokenExpiry); err == nil {
			token.Expiry = expiry
		}
	}

	source := &persistingTokenSource{
		inner:    s.oauth.TokenSource(ctx, token),
		last:     token,
		webUsers: s.webUsers,
		userID:   wu.ID,
		logger:   s.logger,
	}
	return gcal.NewService(ctx, option.WithTokenSource(source))
}

func (s *Service) findOrCreateCalendar(svc *gcal.Service, timezone string) (string, error) {
	list, err := svc.CalendarList.List().Do()
	if err != nil {
		return "", fmt.Errorf("failed to list calendars: %w", err)
	}
	for _, item := range list.Items {
		if item.Summary == calendarName {
			return item.Id, nil
		}
	}

	created, err := svc.Calendars.Insert(&gcal.Calendar{
		Summary:     calendarName,
		Description: "Meal planning and cooking schedule",
		TimeZone:    timezone,
	}).Do()
	if err != nil {
		return "", fmt.Errorf("failed to create calendar: %w", err)
	}
	return created.Id, nil
}

func (s *Service) clearEvents(svc *gcal.Service, calendarID string) error {
	events, err := svc.Events.List(calendarID).MaxResults(100).Do()
	if err != nil {
		return err
	}
	for _, event := range events.Items {
		if err := svc.Events.Delete(calendarID, event.Id).Do(); err != nil {
			return err
		}
	}
	return nil
}

// recurringEvent builds a weekly one-hour event on the given day. Nil
// when the day name isn't recognized.
func recurringEvent(day, timeOfDay, timezone, summary, description string, reminderMin int64) *gcal.Event {
	rrule, ok := dayToRRule[strings.ToLower(day)]
	if !ok {
		return nil
	}
	start, err := nextOccurrence(day, timeOfDay)
	if err != nil {
		return nil
	}
	end := start.Add(time.Hour)

	return &gcal.Event{
		Summary:     summary,
		Description: description,
		Start: &gcal.EventDateTime{
			DateTime: start.Format("2006-01-02T15:04:05"),
			TimeZone: timezone,
		},
		End: &gcal.EventDateTime{
			DateTime: end.Format("2006-01-02T15:04:05"),
			TimeZone: timezone,
		},
		Recurrence: []string{"RRULE:FREQ=WEEKLY;BYDAY=" + rrule},
		Reminders: &gcal.EventReminders{
			UseDefault:      false,
			ForceSendFields: []string{"UseDefault"},
			Overrides: []*gcal.EventReminder{
				{Method: "popup", Minutes: reminderMin},
			},
		},
	}
}

var weekdays = map[string]time.Weekday{
	"sunday":    time.Sunday,
	"monday":    time.Monday,
	"tuesday":   time.Tuesday,
	"wednesday": time.Wednesday,
	"thursday":  time.Thursday,
	"friday":    time.Friday,
	"saturday":  time.Saturday,
}

// nextOccurrence returns the next date the named day falls on, at the
// given HH:MM, as a wall-clock time.
func nextOccurrence(day, timeOfDay string) (time.Time, error) {
	target, ok := weekdays[strings.ToLower(day)]
	if !ok {
		return time.Time{}, fmt.Errorf("unknown day %q", day)
	}
	var hours, minutes int
	if _, err := fmt.Sscanf(timeOfDay, "%d:%d", &hours, &minutes); err != nil {
		return time.Time{}, fmt.Errorf("malformed time %q: %w", timeOfDay, err)
	}

	now := time.Now()
	daysUntil := (int(target) - int(now.Weekday()) + 7) % 7
	if daysUntil == 0 {
		daysUntil = 7
	}
	next := now.AddDate(0, 0, daysUntil)
	return time.Date(next.Year(), next.Month(), next.Day(), hours, minutes, 0, 0, time.Local), nil
}

// persistingTokenSource saves refreshed tokens so the next sync does
// not need the user to re-consent.
type persistingTokenSource struct {
	inner    oauth2.TokenSource
	last     *oauth2.Token
	webUsers *user.WebRepository
	userID   string
	logger   *slog.Logger
}

func (p *persistingTokenSource) Token() (*oauth2.Token, error) {
	token, err := p.inner.Token()
	if err != nil {
		return nil, err
	}
	if token.AccessToken != p.last.AccessToken {
		refresh := token.RefreshToken
		if refresh == "" {
			refresh = p.last.RefreshToken
		}
		err := p.webUsers.SaveGoogleToken(context.Background(), p.userID, token.AccessToken, refresh, token.Expiry)
		if err != nil {
			p.logger.Warn("failed to persist refreshed google token", "user", p.userID, "error", err)
		}
		p.last = token
	}
	return token, nil
}
