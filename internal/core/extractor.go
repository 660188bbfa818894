package core

import (
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// DefaultDueOffsets returns the per-category default due-date offsets
// (in days) applied when an email mentions no explicit date.
func DefaultDueOffsets() map[Category]int {
	return map[Category]int{
		CategoryRequiredPersonalAction: 3,
		CategoryTeamAction:             5,
		CategoryOptionalAction:         7,
		CategoryOptionalEvent:          7,
		CategoryJobListing:             14,
		CategoryWorkRelevant:           7,
	}
}

// Extractor converts an approved classification into zero or one task
// records.
type Extractor struct {
	dueOffsets map[Category]int
	// fyiTasks controls whether fyi classifications produce an
	// informational (non-actionable) task entry.
	fyiTasks bool
	logger   *zap.Logger
}

// NewExtractor creates an action-item extractor. dueOffsets missing a
// category fall back to the defaults.
func NewExtractor(dueOffsets map[Category]int, fyiTasks bool, logger *zap.Logger) *Extractor {
	merged := DefaultDueOffsets()
	for category, days := range dueOffsets {
		merged[category] = days
	}
	return &Extractor{
		dueOffsets: merged,
		fyiTasks:   fyiTasks,
		logger:     logger,
	}
}

// Extract derives a task from a classification result and its source
// email. The second return is false when the category produces no
// task (newsletter, spam, and fyi unless informational entries are
// enabled).
func (e *Extractor) Extract(result *ClassificationResult, email *Email, runID string) (*Task, bool) {
	switch result.Category {
	case CategoryNewsletter, CategorySpamToDelete:
		return nil, false
	case CategoryFYI:
		if !e.fyiTasks {
			return nil, false
		}
	}

	title := strings.TrimSpace(email.Subject)
	if title == "" {
		title = "(no subject)"
	}

	action := strings.TrimSpace(result.Explanation)
	if action == "" {
		action = "Follow up on: " + title
	}

	task := &Task{
		ID:            uuid.NewString(),
		Title:         title,
		Action:        action,
		Category:      result.Category,
		Priority:      derivePriority(result.Category, email),
		DueDate:       e.deriveDueDate(result.Category, email),
		Subject:       email.Subject,
		Sender:        email.From,
		EmailID:       email.ID,
		ThreadID:      email.ThreadID,
		RunID:         runID,
		Informational: result.Category == CategoryFYI,
	}
	newTaskDefaults(task, time.Now())

	e.logger.Debug("Task extracted",
		zap.String("task_id", task.ID),
		zap.String("email_id", email.ID),
		zap.String("category", string(task.Category)),
		zap.String("priority", string(task.Priority)))
	return task, true
}

var urgencyTerms = []string{
	"urgent", "asap", "immediately", "right away", "eod",
	"end of day", "deadline", "overdue", "time-sensitive",
}

// derivePriority maps category and urgency language to a priority.
// Required personal actions are always high; other action categories
// escalate from medium on urgency wording; informational categories
// stay low.
func derivePriority(category Category, email *Email) Priority {
	if category == CategoryRequiredPersonalAction {
		return PriorityHigh
	}

	switch category {
	case CategoryTeamAction, CategoryOptionalAction, CategoryOptionalEvent, CategoryJobListing:
		text := strings.ToLower(email.Subject + " " + email.Body)
		for _, term := range urgencyTerms {
			if strings.Contains(text, term) {
				return PriorityHigh
			}
		}
		return PriorityMedium
	default:
		return PriorityLow
	}
}

// deriveDueDate finds an explicit date mentioned in the email, falling
// back to the category's configured default offset from the received
// time. Informational entries carry no due date.
func (e *Extractor) deriveDueDate(category Category, email *Email) *time.Time {
	if category == CategoryFYI {
		return nil
	}

	received := email.ReceivedAt
	if received.IsZero() {
		received = time.Now()
	}

	if due, ok := parseExplicitDate(email.Subject+" "+email.Body, received); ok {
		return &due
	}

	days, ok := e.dueOffsets[category]
	if !ok {
		return nil
	}
	due := received.AddDate(0, 0, days)
	return &due
}

var isoDatePattern = regexp.MustCompile(`\b(\d{4})-(\d{2})-(\d{2})\b`)

var weekdayNames = []struct {
	name string
	day  time.Weekday
}{
	{"monday", time.Monday},
	{"tuesday", time.Tuesday},
	{"wednesday", time.Wednesday},
	{"thursday", time.Thursday},
	{"friday", time.Friday},
	{"saturday", time.Saturday},
	{"sunday", time.Sunday},
}

// parseExplicitDate recognizes ISO dates (2026-03-01), "today",
// "tomorrow", and weekday names, resolving relative forms against the
// email's received time. When several weekdays are mentioned the one
// appearing first in the text wins.
func parseExplicitDate(text string, received time.Time) (time.Time, bool) {
	if m := isoDatePattern.FindString(text); m != "" {
		if due, err := time.ParseInLocation("2006-01-02", m, received.Location()); err == nil {
			return due, true
		}
	}

	lower := strings.ToLower(text)
	year, month, dom := received.Date()
	day := time.Date(year, month, dom, 0, 0, 0, 0, received.Location())

	if strings.Contains(lower, "tomorrow") {
		return day.AddDate(0, 0, 1), true
	}
	if strings.Contains(lower, "today") || strings.Contains(lower, "end of day") {
		return day, true
	}

	earliest := -1
	var target time.Weekday
	for _, wd := range weekdayNames {
		idx := strings.Index(lower, wd.name)
		if idx < 0 {
			continue
		}
		if earliest < 0 || idx < earliest {
			earliest = idx
			target = wd.day
		}
	}
	if earliest >= 0 {
		// "by Friday" means the upcoming one; on a Friday itself it
		// means that same day.
		offset := (int(target) - int(received.Weekday()) + 7) % 7
		return day.AddDate(0, 0, offset), true
	}

	return time.Time{}, false
}
