// Package scanner walks the circulation ledger on a schedule and emits
// reminder and overdue notifications. It is wired into a daily job, not
// a request path.
package scanner

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/google/uuid"
	"librarium/internal/notify"
	"librarium/pkg/domain"
	"librarium/pkg/store"
)

// DefaultSoonDueDays is how far ahead the reminder pass looks unless
// configured otherwise.
const DefaultSoonDueDays = 3

// Scanner emits notifications for loans that are about to fall due or
// already have.
type Scanner struct {
	store       store.Store
	notifier    notify.Notifier
	now         func() time.Time
	logger      *slog.Logger
	soonDueDays int
}

// Config holds the scanner's dependencies.
type Config struct {
	Store       store.Store
	Notifier    notify.Notifier
	Now         func() time.Time
	Logger      *slog.Logger
	SoonDueDays int
}

// New constructs a scanner.
func New(cfg Config) (*Scanner, error) {
	if cfg.Store == nil {
		return nil, fmt.Errorf("store required")
	}
	if cfg.Notifier == nil {
		return nil, fmt.Errorf("notifier required")
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	soonDueDays := cfg.SoonDueDays
	if soonDueDays <= 0 {
		soonDueDays = DefaultSoonDueDays
	}
	return &Scanner{
		store:       cfg.Store,
		notifier:    cfg.Notifier,
		now:         now,
		logger:      logger,
		soonDueDays: soonDueDays,
	}, nil
}

// ScanSoonDue notifies members whose loans fall due exactly the
// configured number of days from now. Returns how many notifications
// went out. A loan whose member or contact cannot be resolved is
// logged and skipped; one bad row never aborts the batch.
func (s *Scanner) ScanSoonDue(ctx context.Context) (int, error) {
	date := domain.DateOnly(s.now()).AddDate(0, 0, s.soonDueDays)
	loans, err := s.store.LoansDueOn(ctx, date)
	if err != nil {
		return 0, fmt.Errorf("list loans due on %s: %w", date.Format(time.DateOnly), err)
	}

	sent := 0
	for _, loan := range loans {
		fields := map[string]string{
			"title":    s.itemTitle(ctx, loan),
			"itemType": string(loan.ItemType),
			"dueDate":  loan.DueDate.Format(time.DateOnly),
		}
		if s.emit(ctx, loan, domain.TemplateReminder, fields) {
			sent++
		}
	}
	return sent, nil
}

// ScanOverdue notifies members whose loans are due today or earlier.
// The fine shown is the amount that would accrue as of the scan date.
// Returns how many notifications went out.
func (s *Scanner) ScanOverdue(ctx context.Context) (int, error) {
	today := domain.DateOnly(s.now())
	loans, err := s.store.LoansDueBy(ctx, today)
	if err != nil {
		return 0, fmt.Errorf("list loans due by %s: %w", today.Format(time.DateOnly), err)
	}

	sent := 0
	for _, loan := range loans {
		fields := map[string]string{
			"title":    s.itemTitle(ctx, loan),
			"itemType": string(loan.ItemType),
			"dueDate":  loan.DueDate.Format(time.DateOnly),
			"fine":     strconv.Itoa(domain.OverdueFinePreview(loan.DueDate, today)),
		}
		if s.emit(ctx, loan, domain.TemplateOverdue, fields) {
			sent++
		}
	}
	return sent, nil
}

// emit resolves the member's contact, publishes the event, and records
// it in the audit trail. Failures are logged per loan and skipped.
func (s *Scanner) emit(ctx context.Context, loan domain.Loan, kind domain.TemplateKind, fields map[string]string) bool {
	member, ok, err := s.store.GetMember(ctx, loan.Username)
	if err != nil {
		s.logger.Error("resolve member failed", "loan", loan.ID, "username", loan.Username, "error", err)
		return false
	}
	if !ok {
		s.logger.Warn("loan references missing member", "loan", loan.ID, "username", loan.Username)
		return false
	}
	fields["username"] = member.Username
	fields["membershipExpires"] = member.ExpiresAt.Format(time.DateOnly)

	if err := s.notifier.Publish(ctx, member.Email, kind, fields); err != nil {
		s.logger.Error("publish notification failed", "loan", loan.ID, "contact", member.Email, "error", err)
		return false
	}
	if err := s.store.RecordNotification(ctx, domain.Notification{
		ID:       uuid.NewString(),
		Contact:  member.Email,
		Template: kind,
		Fields:   fields,
		SentAt:   s.now().UTC(),
	}); err != nil {
		s.logger.Error("record notification failed", "loan", loan.ID, "contact", member.Email, "error", err)
	}
	return true
}

func (s *Scanner) itemTitle(ctx context.Context, loan domain.Loan) string {
	item, ok, err := s.store.GetItem(ctx, loan.ItemType, loan.ItemKey)
	if err != nil || !ok {
		if err != nil {
			s.logger.Error("resolve item failed", "loan", loan.ID, "key", loan.ItemKey, "error", err)
		}
		return loan.ItemKey
	}
	return item.Title
}
