package store

import (
	"context"
	"fmt"
	"sync"
	"time"

	"librarium/pkg/domain"
)

type itemRef struct {
	itemType domain.ItemType
	key      string
}

// MemoryStore keeps all state in-process. It honors the same atomicity
// and invariants as the Postgres store and is used by tests and local
// runs without a database.
type MemoryStore struct {
	mu            sync.Mutex
	items         map[itemRef]domain.Item
	members       map[string]domain.Member
	email         map[string]string // email -> username
	publishers    map[int64]domain.Publisher
	genres        map[int64]domain.Genre
	loans         map[string]domain.Loan
	loanOrder     []string
	rolePerms     map[string][]string
	notifications []domain.Notification
	nextID        int64
}

// NewMemoryStore initializes an empty in-memory store with the default
// role reference data.
func NewMemoryStore() *MemoryStore {
	rolePerms := make(map[string][]string, len(DefaultRolePermissions))
	for role, perms := range DefaultRolePermissions {
		rolePerms[role] = append([]string(nil), perms...)
	}
	return &MemoryStore{
		items:      make(map[itemRef]domain.Item),
		members:    make(map[string]domain.Member),
		email:      make(map[string]string),
		publishers: make(map[int64]domain.Publisher),
		genres:     make(map[int64]domain.Genre),
		loans:      make(map[string]domain.Loan),
		rolePerms:  rolePerms,
	}
}

// AddItem inserts a catalog item.
func (m *MemoryStore) AddItem(_ context.Context, item domain.Item) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	ref := itemRef{item.Type, item.Key}
	if _, exists := m.items[ref]; exists {
		return fmt.Errorf("%s with key %s: %w", item.Type, item.Key, domain.ErrDuplicate)
	}
	m.items[ref] = item
	return nil
}

// GetItem retrieves a catalog item by type and key.
func (m *MemoryStore) GetItem(_ context.Context, itemType domain.ItemType, key string) (domain.Item, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	item, ok := m.items[itemRef{itemType, key}]
	return item, ok, nil
}

// ListItems returns one page of catalog items of the given type.
func (m *MemoryStore) ListItems(_ context.Context, itemType domain.ItemType, page, limit int) ([]domain.Item, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var items []domain.Item
	for ref, item := range m.items {
		if ref.itemType == itemType {
			items = append(items, item)
		}
	}
	sortByKey(items)
	if limit <= 0 {
		return items, nil
	}
	if page < 1 {
		page = 1
	}
	start := (page - 1) * limit
	if start >= len(items) {
		return nil, nil
	}
	end := start + limit
	if end > len(items) {
		end = len(items)
	}
	return items[start:end], nil
}

func sortByKey(items []domain.Item) {
	for i := 1; i < len(items); i++ {
		for j := i; j > 0 && items[j].Key < items[j-1].Key; j-- {
			items[j], items[j-1] = items[j-1], items[j]
		}
	}
}

// AddPublisher inserts a publisher.
func (m *MemoryStore) AddPublisher(_ context.Context, p domain.Publisher) (domain.Publisher, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.publishers {
		if existing.Name == p.Name {
			return domain.Publisher{}, fmt.Errorf("publisher named %s: %w", p.Name, domain.ErrDuplicate)
		}
	}
	m.nextID++
	p.ID = m.nextID
	m.publishers[p.ID] = p
	return p, nil
}

// GetPublisher returns a publisher by ID.
func (m *MemoryStore) GetPublisher(_ context.Context, id int64) (domain.Publisher, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.publishers[id]
	return p, ok, nil
}

// ListPublishers returns all publishers.
func (m *MemoryStore) ListPublishers(_ context.Context) ([]domain.Publisher, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.Publisher, 0, len(m.publishers))
	for _, p := range m.publishers {
		out = append(out, p)
	}
	return out, nil
}

// AddGenre inserts a genre.
func (m *MemoryStore) AddGenre(_ context.Context, g domain.Genre) (domain.Genre, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.genres {
		if existing.Name == g.Name {
			return domain.Genre{}, fmt.Errorf("genre named %s: %w", g.Name, domain.ErrDuplicate)
		}
	}
	m.nextID++
	g.ID = m.nextID
	m.genres[g.ID] = g
	return g, nil
}

// GetGenre returns a genre by ID.
func (m *MemoryStore) GetGenre(_ context.Context, id int64) (domain.Genre, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	g, ok := m.genres[id]
	return g, ok, nil
}

// ListGenres returns all genres.
func (m *MemoryStore) ListGenres(_ context.Context) ([]domain.Genre, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.Genre, 0, len(m.genres))
	for _, g := range m.genres {
		out = append(out, g)
	}
	return out, nil
}

// AddMember registers a member.
func (m *MemoryStore) AddMember(_ context.Context, member domain.Member) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.members[member.Username]; exists {
		return fmt.Errorf("member with username %s: %w", member.Username, domain.ErrDuplicate)
	}
	if _, exists := m.email[member.Email]; exists {
		return fmt.Errorf("member with email %s: %w", member.Email, domain.ErrDuplicate)
	}
	m.members[member.Username] = member
	m.email[member.Email] = member.Username
	return nil
}

// GetMember looks up a member by username.
func (m *MemoryStore) GetMember(_ context.Context, username string) (domain.Member, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	member, ok := m.members[username]
	return member, ok, nil
}

// GetMemberByEmail looks up a member by email.
func (m *MemoryStore) GetMemberByEmail(_ context.Context, email string) (domain.Member, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	username, ok := m.email[email]
	if !ok {
		return domain.Member{}, false, nil
	}
	member, ok := m.members[username]
	return member, ok, nil
}

// ListMembers returns all members.
func (m *MemoryStore) ListMembers(_ context.Context) ([]domain.Member, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.Member, 0, len(m.members))
	for _, member := range m.members {
		out = append(out, member)
	}
	return out, nil
}

// SetMemberRole updates a member's role.
func (m *MemoryStore) SetMemberRole(_ context.Context, username, role string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	member, ok := m.members[username]
	if !ok {
		return fmt.Errorf("no member with username %s: %w", username, domain.ErrNotFound)
	}
	member.Role = role
	m.members[username] = member
	return nil
}

// IssueLoan creates an active loan and decrements available copies as
// one unit under the store lock.
func (m *MemoryStore) IssueLoan(_ context.Context, loan domain.Loan) (domain.Loan, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	ref := itemRef{loan.ItemType, loan.ItemKey}
	item, ok := m.items[ref]
	if !ok {
		return domain.Loan{}, fmt.Errorf("no %s with key %s: %w", loan.ItemType, loan.ItemKey, domain.ErrNotFound)
	}
	for _, id := range m.loanOrder {
		existing := m.loans[id]
		if existing.Username == loan.Username &&
			existing.ItemType == loan.ItemType &&
			existing.ItemKey == loan.ItemKey &&
			existing.Status == domain.LoanActive {
			return domain.Loan{}, fmt.Errorf("%s already holds %s %s: %w", loan.Username, loan.ItemType, loan.ItemKey, domain.ErrAlreadyBorrowed)
		}
	}
	if item.AvailableCopies <= 0 {
		return domain.Loan{}, fmt.Errorf("%s %s: %w", loan.ItemType, loan.ItemKey, domain.ErrOutOfStock)
	}

	item.AvailableCopies--
	m.items[ref] = item

	loan.GenreID = item.GenreID
	loan.Status = domain.LoanActive
	m.loans[loan.ID] = loan
	m.loanOrder = append(m.loanOrder, loan.ID)
	return loan, nil
}

// CloseLoan marks the active loan returned, restores one copy, and
// settles the fine, as one unit under the store lock.
func (m *MemoryStore) CloseLoan(_ context.Context, username string, itemType domain.ItemType, key string, returnedAt time.Time) (domain.Loan, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	ref := itemRef{itemType, key}
	item, ok := m.items[ref]
	if !ok {
		return domain.Loan{}, 0, fmt.Errorf("no %s with key %s: %w", itemType, key, domain.ErrNotFound)
	}

	var loanID string
	for _, id := range m.loanOrder {
		loan := m.loans[id]
		if loan.Username == username && loan.ItemType == itemType && loan.ItemKey == key && loan.Status == domain.LoanActive {
			loanID = id
			break
		}
	}
	if loanID == "" {
		return domain.Loan{}, 0, fmt.Errorf("%s has not borrowed %q: %w", username, item.Title, domain.ErrNotFound)
	}

	loan := m.loans[loanID]
	fine := domain.OverdueFine(loan.DueDate, returnedAt)

	if item.AvailableCopies >= item.TotalCopies {
		return domain.Loan{}, 0, fmt.Errorf("stock for %s %s already at %d of %d: %w",
			itemType, key, item.AvailableCopies, item.TotalCopies, domain.ErrInternal)
	}

	loan.Status = domain.LoanReturned
	loan.ReturnedDate = returnedAt
	m.loans[loanID] = loan

	item.AvailableCopies++
	m.items[ref] = item

	if fine > 0 {
		member := m.members[username]
		member.Fine += fine
		m.members[username] = member
	}
	return loan, fine, nil
}

// ActiveLoans returns the member's active loans in issue order.
func (m *MemoryStore) ActiveLoans(_ context.Context, username string) ([]domain.Loan, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Loan
	for _, id := range m.loanOrder {
		loan := m.loans[id]
		if loan.Username == username && loan.Status == domain.LoanActive {
			out = append(out, loan)
		}
	}
	return out, nil
}

// LoansDueOn returns active loans due exactly on the given date.
func (m *MemoryStore) LoansDueOn(_ context.Context, date time.Time) ([]domain.Loan, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	date = domain.DateOnly(date)
	var out []domain.Loan
	for _, id := range m.loanOrder {
		loan := m.loans[id]
		if loan.Status == domain.LoanActive && domain.DateOnly(loan.DueDate).Equal(date) {
			out = append(out, loan)
		}
	}
	return out, nil
}

// LoansDueBy returns active loans due on or before the given date.
func (m *MemoryStore) LoansDueBy(_ context.Context, date time.Time) ([]domain.Loan, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	date = domain.DateOnly(date)
	var out []domain.Loan
	for _, id := range m.loanOrder {
		loan := m.loans[id]
		if loan.Status == domain.LoanActive && !domain.DateOnly(loan.DueDate).After(date) {
			out = append(out, loan)
		}
	}
	return out, nil
}

// RolePermissions returns the permission names granted to a role.
func (m *MemoryStore) RolePermissions(_ context.Context, role string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.rolePerms[role]...), nil
}

// ReplaceRolePermissions rewrites a role's permission set.
func (m *MemoryStore) ReplaceRolePermissions(_ context.Context, role string, permissions []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.rolePerms[role]; !ok {
		return fmt.Errorf("no role named %s: %w", role, domain.ErrNotFound)
	}
	m.rolePerms[role] = append([]string(nil), permissions...)
	return nil
}

// RecordNotification appends one emitted notification to the audit log.
func (m *MemoryStore) RecordNotification(_ context.Context, n domain.Notification) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.notifications = append(m.notifications, n)
	return nil
}

// Notifications returns the recorded notification log.
func (m *MemoryStore) Notifications() []domain.Notification {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.Notification(nil), m.notifications...)
}
