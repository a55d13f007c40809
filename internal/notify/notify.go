package notify

import (
	"fmt"
	"time"

	"github.com/hochfrequenz/worksim/internal/domain"
)

// NotificationType represents the type of notification
type NotificationType int

const (
	NotifyInfo NotificationType = iota
	NotifySuccess
	NotifyWarning
	NotifyError
)

// Notification represents a notification to be sent
type Notification struct {
	Title   string
	Message string
	Type    NotificationType
	RunID   string // Optional run reference
	Persona string // Optional persona name
}

// Notifier is the interface for sending notifications
type Notifier interface {
	Send(n Notification) error
}

// MultiNotifier sends to multiple notifiers
type MultiNotifier struct {
	notifiers []Notifier
}

// NewMultiNotifier creates a notifier that sends to all provided notifiers
func NewMultiNotifier(notifiers ...Notifier) *MultiNotifier {
	return &MultiNotifier{notifiers: notifiers}
}

// Send sends the notification to all notifiers
func (m *MultiNotifier) Send(n Notification) error {
	var lastErr error
	for _, notifier := range m.notifiers {
		if err := notifier.Send(n); err != nil {
			lastErr = err
		}
	}
	return lastErr
}

// NoopNotifier does nothing (for testing or disabled notifications)
type NoopNotifier struct{}

func (NoopNotifier) Send(n Notification) error { return nil }

// RunFinished builds the notification for a completed or aborted run.
func RunFinished(persona, runID string, status domain.RunStatus, total, failed int, realDuration time.Duration) Notification {
	n := Notification{
		Title:   fmt.Sprintf("Workday %s: %s", status, persona),
		Message: fmt.Sprintf("%d actions, %d failed, %s wall clock", total, failed, realDuration.Round(time.Second)),
		RunID:   runID,
		Persona: persona,
	}
	switch {
	case status != domain.RunCompleted:
		n.Type = NotifyWarning
	case failed > 0:
		n.Type = NotifyInfo
	default:
		n.Type = NotifySuccess
	}
	return n
}
