package store

import (
	"context"
	"time"

	"librarium/pkg/domain"
)

// Store defines persistence operations for the catalog, membership,
// and the circulation ledger.
//
// IssueLoan and CloseLoan are the two atomic circulation units: each
// runs its checks and mutations as one transaction, so a failed check
// leaves no partial state behind. Active holdings are derived from
// active loan rows; there is no separate association table to keep in
// lockstep.
type Store interface {
	// catalog
	AddItem(ctx context.Context, item domain.Item) error
	GetItem(ctx context.Context, itemType domain.ItemType, key string) (domain.Item, bool, error)
	ListItems(ctx context.Context, itemType domain.ItemType, page, limit int) ([]domain.Item, error)
	AddPublisher(ctx context.Context, p domain.Publisher) (domain.Publisher, error)
	GetPublisher(ctx context.Context, id int64) (domain.Publisher, bool, error)
	ListPublishers(ctx context.Context) ([]domain.Publisher, error)
	AddGenre(ctx context.Context, g domain.Genre) (domain.Genre, error)
	GetGenre(ctx context.Context, id int64) (domain.Genre, bool, error)
	ListGenres(ctx context.Context) ([]domain.Genre, error)

	// members
	AddMember(ctx context.Context, m domain.Member) error
	GetMember(ctx context.Context, username string) (domain.Member, bool, error)
	GetMemberByEmail(ctx context.Context, email string) (domain.Member, bool, error)
	ListMembers(ctx context.Context) ([]domain.Member, error)
	SetMemberRole(ctx context.Context, username, role string) error

	// circulation ledger
	IssueLoan(ctx context.Context, loan domain.Loan) (domain.Loan, error)
	CloseLoan(ctx context.Context, username string, itemType domain.ItemType, key string, returnedAt time.Time) (domain.Loan, int, error)
	ActiveLoans(ctx context.Context, username string) ([]domain.Loan, error)
	LoansDueOn(ctx context.Context, date time.Time) ([]domain.Loan, error)
	LoansDueBy(ctx context.Context, date time.Time) ([]domain.Loan, error)

	// roles and permissions
	RolePermissions(ctx context.Context, role string) ([]string, error)
	ReplaceRolePermissions(ctx context.Context, role string, permissions []string) error

	// notification audit
	RecordNotification(ctx context.Context, n domain.Notification) error
}

// DefaultRolePermissions is the reference-data seed applied to an empty
// role table.
var DefaultRolePermissions = map[string][]string{
	domain.RoleUnverified: {domain.PermUnverified},
	domain.RoleVerified:   {domain.PermUnverified, domain.PermVerified},
	domain.RoleLibrarian:  {domain.PermVerified, domain.PermCirculate},
	domain.RoleAdmin:      {domain.PermVerified, domain.PermCirculate, domain.PermAdminAll},
}
