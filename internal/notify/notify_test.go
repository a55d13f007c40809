package notify

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/hochfrequenz/worksim/internal/domain"
)

func TestSlackMessage_Build(t *testing.T) {
	msg := SlackMessage{
		Text: "Workday completed",
		Attachments: []SlackAttachment{
			{
				Color: "good",
				Title: "accountant",
				Text:  "32 actions, 0 failed",
			},
		},
	}

	payload, err := msg.ToJSON()
	if err != nil {
		t.Fatal(err)
	}

	if len(payload) == 0 {
		t.Error("Payload should not be empty")
	}
}

func TestSlackNotifier_Send(t *testing.T) {
	// Mock Slack server
	var body []byte
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != "POST" {
			t.Errorf("Expected POST, got %s", r.Method)
		}
		body, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	notifier := NewSlackNotifier(server.URL)
	err := notifier.Send(Notification{
		Title:   "Workday completed: accountant",
		Message: "32 actions",
		Type:    NotifySuccess,
		Persona: "accountant",
		RunID:   "run-1",
	})

	if err != nil {
		t.Errorf("Send failed: %v", err)
	}

	var msg SlackMessage
	if err := json.Unmarshal(body, &msg); err != nil {
		t.Fatal(err)
	}
	if len(msg.Attachments) != 1 {
		t.Fatalf("Attachments = %d, want 1", len(msg.Attachments))
	}
	if !strings.Contains(msg.Attachments[0].Title, "accountant") {
		t.Errorf("attachment title = %q, want persona included", msg.Attachments[0].Title)
	}
}

func TestSlackNotifier_DisabledWithoutWebhook(t *testing.T) {
	notifier := NewSlackNotifier("")
	if err := notifier.Send(Notification{Title: "x"}); err != nil {
		t.Errorf("disabled notifier should not error: %v", err)
	}
}

func TestNotificationTypeColors(t *testing.T) {
	tests := []struct {
		typ  NotificationType
		want string
	}{
		{NotifySuccess, "good"},
		{NotifyWarning, "warning"},
		{NotifyError, "danger"},
		{NotifyInfo, "#439FE0"},
	}

	for _, tt := range tests {
		got := SlackColor(tt.typ)
		if got != tt.want {
			t.Errorf("SlackColor(%v) = %s, want %s", tt.typ, got, tt.want)
		}
	}
}

func TestIconForType(t *testing.T) {
	tests := []struct {
		typ  NotificationType
		want string
	}{
		{NotifySuccess, "dialog-positive"},
		{NotifyWarning, "dialog-warning"},
		{NotifyError, "dialog-error"},
		{NotifyInfo, "dialog-information"},
	}

	for _, tt := range tests {
		got := IconForType(tt.typ)
		if got != tt.want {
			t.Errorf("IconForType(%v) = %s, want %s", tt.typ, got, tt.want)
		}
	}
}

func TestMultiNotifier(t *testing.T) {
	var called []string

	mock1 := &mockNotifier{name: "mock1", calls: &called}
	mock2 := &mockNotifier{name: "mock2", calls: &called}

	multi := NewMultiNotifier(mock1, mock2)
	multi.Send(Notification{Title: "Test"})

	if len(called) != 2 {
		t.Errorf("Expected 2 calls, got %d", len(called))
	}
}

func TestRunFinished(t *testing.T) {
	n := RunFinished("accountant", "run-1", domain.RunCompleted, 32, 0, 61*time.Second)
	if n.Type != NotifySuccess {
		t.Errorf("Type = %v, want success for a clean run", n.Type)
	}
	if !strings.Contains(n.Message, "32 actions") {
		t.Errorf("Message = %q, want action count", n.Message)
	}

	n = RunFinished("accountant", "run-2", domain.RunAborted, 5, 1, time.Minute)
	if n.Type != NotifyWarning {
		t.Errorf("Type = %v, want warning for an aborted run", n.Type)
	}

	n = RunFinished("accountant", "run-3", domain.RunCompleted, 30, 3, time.Minute)
	if n.Type != NotifyInfo {
		t.Errorf("Type = %v, want info for a run with failures", n.Type)
	}
}

type mockNotifier struct {
	name  string
	calls *[]string
}

func (m *mockNotifier) Send(n Notification) error {
	*m.calls = append(*m.calls, m.name)
	return nil
}
