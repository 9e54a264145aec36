// Package app is the circulation engine: borrow, return, holdings, and
// the membership and catalog operations around them. Every mutating
// action passes the authorization gate first; the store keeps each
// borrow/return unit atomic.
package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"librarium/internal/authz"
	"librarium/internal/identity"
	"librarium/pkg/domain"
	"librarium/pkg/store"
)

// DefaultLoanDays is the loan duration applied when the caller does not
// choose one.
const DefaultLoanDays = 15

// Config holds the engine's dependencies.
type Config struct {
	Store      store.Store
	Authorizer *authz.Authorizer
	Verifier   *identity.Verifier
	Now        func() time.Time
}

// App wires the circulation engine together.
type App struct {
	store    store.Store
	authz    *authz.Authorizer
	verifier *identity.Verifier
	now      func() time.Time
}

// New constructs the engine.
func New(cfg Config) (*App, error) {
	if cfg.Store == nil {
		return nil, errors.New("store required")
	}
	authorizer := cfg.Authorizer
	if authorizer == nil {
		authorizer = authz.New(cfg.Store, nil)
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &App{store: cfg.Store, authz: authorizer, verifier: cfg.Verifier, now: now}, nil
}

// Actor is the authenticated caller, taken from verified token claims
// rather than request input.
type Actor struct {
	Email string
	Role  string
}

// Staff reports whether the actor acts on behalf of other members.
// Members always act on themselves.
func (a Actor) Staff() bool {
	return a.Role == domain.RoleLibrarian || a.Role == domain.RoleAdmin
}

// Authenticate turns a bearer token into an Actor. Identity comes from
// the token's verified claims only.
func (a *App) Authenticate(token string) (Actor, error) {
	if a.verifier == nil {
		return Actor{}, fmt.Errorf("no token verifier configured: %w", domain.ErrInternal)
	}
	claims, err := a.verifier.Verify(token)
	if err != nil {
		return Actor{}, fmt.Errorf("authenticate: %w", domain.ErrForbidden)
	}
	return Actor{Email: claims.Email, Role: claims.Role}, nil
}

// Borrow issues an item to a member for the given number of days.
//
// Checks run in order: item exists, member exists, no duplicate active
// loan, stock available. The loan insert and the stock decrement commit
// together or not at all.
func (a *App) Borrow(ctx context.Context, actor Actor, targetUsername string, itemType domain.ItemType, key string, days int) (domain.Loan, error) {
	if err := a.authz.Require(ctx, actor.Role, domain.PermVerified); err != nil {
		return domain.Loan{}, err
	}
	if err := validateKey(itemType, key); err != nil {
		return domain.Loan{}, err
	}
	username, err := a.resolveTarget(ctx, actor, targetUsername)
	if err != nil {
		return domain.Loan{}, err
	}
	if days <= 0 {
		days = DefaultLoanDays
	}

	if _, ok, err := a.store.GetItem(ctx, itemType, key); err != nil {
		return domain.Loan{}, fmt.Errorf("fetch %s: %w", itemType, err)
	} else if !ok {
		return domain.Loan{}, fmt.Errorf("no %s with key %s: %w", itemType, key, domain.ErrNotFound)
	}
	if _, ok, err := a.store.GetMember(ctx, username); err != nil {
		return domain.Loan{}, fmt.Errorf("fetch member: %w", err)
	} else if !ok {
		return domain.Loan{}, fmt.Errorf("no member with username %s: %w", username, domain.ErrNotFound)
	}

	issued := domain.DateOnly(a.now())
	loan, err := a.store.IssueLoan(ctx, domain.Loan{
		ID:         uuid.NewString(),
		Username:   username,
		ItemType:   itemType,
		ItemKey:    key,
		IssuedDate: issued,
		DueDate:    issued.AddDate(0, 0, days),
		Status:     domain.LoanActive,
	})
	if err != nil {
		return domain.Loan{}, err
	}
	return loan, nil
}

// Return takes an item back from a member and reports the fine owed,
// zero when the loan came back within the grace window. The loan state
// flip, the stock restore, and the fine settlement commit together.
func (a *App) Return(ctx context.Context, actor Actor, targetUsername string, itemType domain.ItemType, key string) (int, error) {
	if err := a.authz.Require(ctx, actor.Role, domain.PermVerified); err != nil {
		return 0, err
	}
	if err := validateKey(itemType, key); err != nil {
		return 0, err
	}
	username, err := a.resolveTarget(ctx, actor, targetUsername)
	if err != nil {
		return 0, err
	}
	if _, ok, err := a.store.GetMember(ctx, username); err != nil {
		return 0, fmt.Errorf("fetch member: %w", err)
	} else if !ok {
		return 0, fmt.Errorf("no member with username %s: %w", username, domain.ErrNotFound)
	}

	_, fine, err := a.store.CloseLoan(ctx, username, itemType, key, domain.DateOnly(a.now()))
	if err != nil {
		return 0, err
	}
	return fine, nil
}

// ActiveHoldings lists the titles a member currently has out. Members
// see their own holdings; staff name the member.
func (a *App) ActiveHoldings(ctx context.Context, actor Actor, targetUsername string) (domain.Holdings, error) {
	if err := a.authz.Require(ctx, actor.Role, domain.PermVerified); err != nil {
		return domain.Holdings{}, err
	}
	username, err := a.resolveTarget(ctx, actor, targetUsername)
	if err != nil {
		return domain.Holdings{}, err
	}
	loans, err := a.store.ActiveLoans(ctx, username)
	if err != nil {
		return domain.Holdings{}, fmt.Errorf("list active loans: %w", err)
	}

	var holdings domain.Holdings
	for _, loan := range loans {
		item, ok, err := a.store.GetItem(ctx, loan.ItemType, loan.ItemKey)
		if err != nil {
			return domain.Holdings{}, fmt.Errorf("fetch %s %s: %w", loan.ItemType, loan.ItemKey, err)
		}
		title := loan.ItemKey
		if ok {
			title = item.Title
		}
		switch loan.ItemType {
		case domain.ItemMagazine:
			holdings.Magazines = append(holdings.Magazines, title)
		default:
			holdings.Books = append(holdings.Books, title)
		}
	}
	return holdings, nil
}

// AddMember registers a member. Anyone may register themselves with the
// default unverified role; assigning any other role needs admin rights.
func (a *App) AddMember(ctx context.Context, actor Actor, member domain.Member) (domain.Member, error) {
	member.Username = strings.TrimSpace(member.Username)
	member.Email = strings.TrimSpace(strings.ToLower(member.Email))
	if member.Username == "" || member.Email == "" {
		return domain.Member{}, fmt.Errorf("username and email required: %w", domain.ErrBadRequest)
	}

	isAdmin, err := a.authz.Has(ctx, actor.Role, domain.PermAdminAll)
	if err != nil {
		return domain.Member{}, err
	}
	if !isAdmin || member.Role == "" {
		member.Role = domain.RoleUnverified
	}

	now := a.now().UTC()
	member.Fine = 0
	member.CreatedAt = now
	member.ExpiresAt = now.AddDate(0, 0, domain.MembershipDays)
	if err := a.store.AddMember(ctx, member); err != nil {
		return domain.Member{}, err
	}
	return member, nil
}

// GetMember returns a member's record.
func (a *App) GetMember(ctx context.Context, actor Actor, username string) (domain.Member, error) {
	if err := a.authz.Require(ctx, actor.Role, domain.PermVerified); err != nil {
		return domain.Member{}, err
	}
	member, ok, err := a.store.GetMember(ctx, username)
	if err != nil {
		return domain.Member{}, fmt.Errorf("fetch member: %w", err)
	}
	if !ok {
		return domain.Member{}, fmt.Errorf("no member with username %s: %w", username, domain.ErrNotFound)
	}
	return member, nil
}

// ListMembers returns all members (admin use only).
func (a *App) ListMembers(ctx context.Context, actor Actor) ([]domain.Member, error) {
	if err := a.authz.Require(ctx, actor.Role, domain.PermAdminAll); err != nil {
		return nil, err
	}
	return a.store.ListMembers(ctx)
}

// VerifyMember promotes the calling member to the verified role after
// their token identity matched the stored account email.
func (a *App) VerifyMember(ctx context.Context, actor Actor) (domain.Member, error) {
	verified, err := a.authz.Has(ctx, actor.Role, domain.PermVerified)
	if err != nil {
		return domain.Member{}, err
	}
	if verified {
		return domain.Member{}, fmt.Errorf("account is already verified: %w", domain.ErrBadRequest)
	}
	member, ok, err := a.store.GetMemberByEmail(ctx, actor.Email)
	if err != nil {
		return domain.Member{}, fmt.Errorf("fetch member: %w", err)
	}
	if !ok {
		return domain.Member{}, fmt.Errorf("no member with email %s: %w", actor.Email, domain.ErrNotFound)
	}
	if err := a.store.SetMemberRole(ctx, member.Username, domain.RoleVerified); err != nil {
		return domain.Member{}, err
	}
	member.Role = domain.RoleVerified
	return member, nil
}

// SetRolePermissions rewrites a role's permission set and drops the
// authorization cache entry so the edit takes effect immediately.
func (a *App) SetRolePermissions(ctx context.Context, actor Actor, role string, permissions []string) error {
	if err := a.authz.Require(ctx, actor.Role, domain.PermAdminAll); err != nil {
		return err
	}
	if err := a.store.ReplaceRolePermissions(ctx, role, permissions); err != nil {
		return err
	}
	return a.authz.Invalidate(ctx, role)
}

// resolveTarget decides whose account an operation touches. Staff must
// name the member; a member acts on the account bound to their own
// token claims, never on a client-supplied username.
func (a *App) resolveTarget(ctx context.Context, actor Actor, targetUsername string) (string, error) {
	if actor.Staff() {
		if strings.TrimSpace(targetUsername) == "" {
			return "", fmt.Errorf("staff-initiated actions require a target username: %w", domain.ErrBadRequest)
		}
		return strings.TrimSpace(targetUsername), nil
	}
	member, ok, err := a.store.GetMemberByEmail(ctx, actor.Email)
	if err != nil {
		return "", fmt.Errorf("resolve member by email: %w", err)
	}
	if !ok {
		return "", fmt.Errorf("no member with email %s: %w", actor.Email, domain.ErrNotFound)
	}
	return member.Username, nil
}

func validateKey(itemType domain.ItemType, key string) error {
	switch itemType {
	case domain.ItemBook:
		if len(key) != domain.ISBNLength {
			return fmt.Errorf("the ISBN number must be %d characters: %w", domain.ISBNLength, domain.ErrBadRequest)
		}
	case domain.ItemMagazine:
		if len(key) != domain.ISSNLength {
			return fmt.Errorf("the ISSN number must be %d characters: %w", domain.ISSNLength, domain.ErrBadRequest)
		}
	default:
		return fmt.Errorf("unknown item type %q: %w", itemType, domain.ErrBadRequest)
	}
	return nil
}
