package history

import (
	"testing"
	"time"

	"github.com/hochfrequenz/worksim/internal/domain"
)

func entryAt(kind domain.ActionKind, simTime time.Time) domain.HistoryEntry {
	req := domain.NewActionRequest(kind, "target", 5, "test", domain.SourceFallback, simTime)
	return domain.HistoryEntry{
		Request: req,
		Result:  domain.ActionResult{RequestID: req.ID, Success: true},
		SimTime: simTime,
	}
}

func TestAppend_MonotonicOrder(t *testing.T) {
	l := New()
	base := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

	if err := l.Append(entryAt(domain.KindEmailCheck, base)); err != nil {
		t.Fatalf("Append: %v", err)
	}
	// Equal timestamps are fine (non-decreasing)
	if err := l.Append(entryAt(domain.KindBrowse, base)); err != nil {
		t.Fatalf("Append equal timestamp: %v", err)
	}
	if err := l.Append(entryAt(domain.KindIdle, base.Add(-time.Minute))); err == nil {
		t.Error("Append accepted out-of-order timestamp, want error")
	}
	if l.Len() != 2 {
		t.Errorf("Len = %d, want 2", l.Len())
	}
}

func TestRecent_BoundedView(t *testing.T) {
	l := New()
	base := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	kinds := []domain.ActionKind{
		domain.KindEmailCheck, domain.KindBrowse, domain.KindCreateDoc,
		domain.KindFileOp, domain.KindIdle,
	}
	for i, k := range kinds {
		if err := l.Append(entryAt(k, base.Add(time.Duration(i)*time.Minute))); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}

	recent := l.Recent(3)
	if len(recent) != 3 {
		t.Fatalf("Recent(3) len = %d, want 3", len(recent))
	}
	if recent[0].Request.Kind != domain.KindCreateDoc {
		t.Errorf("Recent(3)[0] = %s, want create_document (oldest of window)", recent[0].Request.Kind)
	}
	if recent[2].Request.Kind != domain.KindIdle {
		t.Errorf("Recent(3)[2] = %s, want idle (newest)", recent[2].Request.Kind)
	}

	if got := l.Recent(100); len(got) != 5 {
		t.Errorf("Recent(100) len = %d, want 5", len(got))
	}
	if got := l.Recent(0); got != nil {
		t.Errorf("Recent(0) = %v, want nil", got)
	}
}

func TestCountRecent(t *testing.T) {
	l := New()
	base := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	seq := []domain.ActionKind{
		domain.KindBrowse, domain.KindBrowse, domain.KindEmailCheck,
		domain.KindBrowse, domain.KindIdle,
	}
	for i, k := range seq {
		l.Append(entryAt(k, base.Add(time.Duration(i)*time.Minute)))
	}

	if got := l.CountRecent(domain.KindBrowse, 3); got != 1 {
		t.Errorf("CountRecent(browse, 3) = %d, want 1", got)
	}
	if got := l.CountRecent(domain.KindBrowse, 5); got != 3 {
		t.Errorf("CountRecent(browse, 5) = %d, want 3", got)
	}
}
