package scanner

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"librarium/internal/notify"
	"librarium/pkg/domain"
	"librarium/pkg/store"
)

const bookKey = "9780000000001"

type fixture struct {
	scanner  *Scanner
	store    *store.MemoryStore
	recorder *notify.Recorder
	now      time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	st := store.NewMemoryStore()
	recorder := notify.NewRecorder()
	f := &fixture{
		store:    st,
		recorder: recorder,
		now:      time.Date(2024, time.June, 1, 9, 0, 0, 0, time.UTC),
	}
	sc, err := New(Config{
		Store:    st,
		Notifier: recorder,
		Now:      func() time.Time { return f.now },
		Logger:   slog.Default(),
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	f.scanner = sc

	ctx := context.Background()
	err = st.AddItem(ctx, domain.Item{
		Key: bookKey, Type: domain.ItemBook, Title: "A Rare First Edition",
		TotalCopies: 10, AvailableCopies: 10,
	})
	if err != nil {
		t.Fatalf("AddItem: %v", err)
	}
	err = st.AddMember(ctx, domain.Member{
		Username:  "alice",
		Email:     "alice@example.com",
		Role:      domain.RoleVerified,
		ExpiresAt: f.now.AddDate(0, 0, 30),
	})
	if err != nil {
		t.Fatalf("AddMember: %v", err)
	}
	return f
}

func (f *fixture) issue(t *testing.T, id, username string, due time.Time) {
	t.Helper()
	_, err := f.store.IssueLoan(context.Background(), domain.Loan{
		ID:       id,
		Username: username,
		ItemType: domain.ItemBook,
		ItemKey:  bookKey,
		DueDate:  due,
		Status:   domain.LoanActive,
	})
	if err != nil {
		t.Fatalf("IssueLoan %s: %v", id, err)
	}
}

func TestScanSoonDue(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	today := domain.DateOnly(f.now)

	f.issue(t, "loan-in-3", "alice", today.AddDate(0, 0, 3))

	sent, err := f.scanner.ScanSoonDue(ctx)
	if err != nil {
		t.Fatalf("ScanSoonDue: %v", err)
	}
	if sent != 1 {
		t.Fatalf("sent = %d, want 1", sent)
	}
	events := f.recorder.Events()
	if len(events) != 1 {
		t.Fatalf("events = %d, want 1", len(events))
	}
	ev := events[0]
	if ev.Contact != "alice@example.com" || ev.Kind != domain.TemplateReminder {
		t.Fatalf("event = %+v", ev)
	}
	if ev.Fields["title"] != "A Rare First Edition" {
		t.Fatalf("title field = %q", ev.Fields["title"])
	}
	if ev.Fields["dueDate"] != today.AddDate(0, 0, 3).Format(time.DateOnly) {
		t.Fatalf("dueDate field = %q", ev.Fields["dueDate"])
	}
	audit := f.store.Notifications()
	if len(audit) != 1 || audit[0].Template != domain.TemplateReminder {
		t.Fatalf("audit = %+v, want one reminder", audit)
	}
}

func TestScanSoonDueMatchesExactDateOnly(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	today := domain.DateOnly(f.now)

	f.issue(t, "loan-in-2", "alice", today.AddDate(0, 0, 2))

	sent, err := f.scanner.ScanSoonDue(ctx)
	if err != nil {
		t.Fatalf("ScanSoonDue: %v", err)
	}
	if sent != 0 {
		t.Fatalf("sent = %d, want 0 for a loan due in 2 days", sent)
	}
}

func TestScanOverdue(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	today := domain.DateOnly(f.now)

	f.issue(t, "loan-late", "alice", today.AddDate(0, 0, -2))

	sent, err := f.scanner.ScanOverdue(ctx)
	if err != nil {
		t.Fatalf("ScanOverdue: %v", err)
	}
	if sent != 1 {
		t.Fatalf("sent = %d, want 1", sent)
	}
	ev := f.recorder.Events()[0]
	if ev.Kind != domain.TemplateOverdue {
		t.Fatalf("kind = %s, want overdue", ev.Kind)
	}
	// Two days late at 3 per day; the scan preview applies no grace.
	if ev.Fields["fine"] != "6" {
		t.Fatalf("fine field = %q, want 6", ev.Fields["fine"])
	}
	if ev.Fields["membershipExpires"] == "" {
		t.Fatal("membershipExpires field missing")
	}
}

func TestScanOverdueIncludesDueToday(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	today := domain.DateOnly(f.now)

	f.issue(t, "loan-today", "alice", today)

	sent, err := f.scanner.ScanOverdue(ctx)
	if err != nil {
		t.Fatalf("ScanOverdue: %v", err)
	}
	if sent != 1 {
		t.Fatalf("sent = %d, want 1", sent)
	}
	if f.recorder.Events()[0].Fields["fine"] != "0" {
		t.Fatalf("fine field = %q, want 0 on the due date", f.recorder.Events()[0].Fields["fine"])
	}
}

func TestScanSkipsLoansWithMissingMembers(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	today := domain.DateOnly(f.now)

	f.issue(t, "loan-orphan", "ghost", today.AddDate(0, 0, -1))
	f.issue(t, "loan-ok", "alice", today.AddDate(0, 0, -1))

	sent, err := f.scanner.ScanOverdue(ctx)
	if err != nil {
		t.Fatalf("ScanOverdue: %v", err)
	}
	if sent != 1 {
		t.Fatalf("sent = %d, want 1 (orphan skipped)", sent)
	}
	if f.recorder.Events()[0].Contact != "alice@example.com" {
		t.Fatalf("contact = %s", f.recorder.Events()[0].Contact)
	}
}

func TestScanSoonDueConfigurableWindow(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	today := domain.DateOnly(f.now)

	sc, err := New(Config{
		Store:       f.store,
		Notifier:    f.recorder,
		Now:         func() time.Time { return f.now },
		SoonDueDays: 7,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	f.issue(t, "loan-in-7", "alice", today.AddDate(0, 0, 7))

	sent, err := sc.ScanSoonDue(ctx)
	if err != nil {
		t.Fatalf("ScanSoonDue: %v", err)
	}
	if sent != 1 {
		t.Fatalf("sent = %d, want 1 with a 7-day window", sent)
	}
}
