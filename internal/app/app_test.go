package app

import (
	"context"
	"errors"
	"testing"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
	"librarium/internal/identity"
	"librarium/pkg/domain"
	"librarium/pkg/store"
)

var (
	adminActor    = Actor{Email: "root@example.com", Role: domain.RoleAdmin}
	aliceActor    = Actor{Email: "alice@example.com", Role: domain.RoleVerified}
	bobActor      = Actor{Email: "bob@example.com", Role: domain.RoleVerified}
	newcomerActor = Actor{Email: "carol@example.com", Role: domain.RoleUnverified}
)

type fixture struct {
	app   *App
	store *store.MemoryStore
	now   time.Time
}

// newFixture builds an engine over the in-memory store with a frozen
// clock, one book with a single copy, and verified members alice and
// bob.
func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	st := store.NewMemoryStore()
	f := &fixture{
		store: st,
		now:   time.Date(2024, time.June, 1, 12, 0, 0, 0, time.UTC),
	}
	a, err := New(Config{Store: st, Now: func() time.Time { return f.now }})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	f.app = a

	genre, err := a.AddGenre(ctx, adminActor, domain.Genre{Name: "fiction"})
	if err != nil {
		t.Fatalf("AddGenre: %v", err)
	}
	publisher, err := a.AddPublisher(ctx, adminActor, domain.Publisher{Name: "Acme Press"})
	if err != nil {
		t.Fatalf("AddPublisher: %v", err)
	}
	_, err = a.AddItem(ctx, adminActor, domain.Item{
		Key:         "9780000000001",
		Type:        domain.ItemBook,
		Title:       "A Rare First Edition",
		Creator:     "Author",
		GenreID:     genre.ID,
		PublisherID: publisher.ID,
		TotalCopies: 1,
	})
	if err != nil {
		t.Fatalf("AddItem: %v", err)
	}
	for _, actor := range []Actor{aliceActor, bobActor} {
		username := actor.Email[:len(actor.Email)-len("@example.com")]
		_, err := a.AddMember(ctx, adminActor, domain.Member{
			Username: username,
			Email:    actor.Email,
			Role:     domain.RoleVerified,
		})
		if err != nil {
			t.Fatalf("AddMember %s: %v", username, err)
		}
	}
	return f
}

func TestBorrowContention(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	loan, err := f.app.Borrow(ctx, aliceActor, "", domain.ItemBook, "9780000000001", 0)
	if err != nil {
		t.Fatalf("alice Borrow: %v", err)
	}
	if loan.Username != "alice" {
		t.Fatalf("loan username = %s, want alice", loan.Username)
	}
	wantDue := time.Date(2024, time.June, 16, 0, 0, 0, 0, time.UTC)
	if !loan.DueDate.Equal(wantDue) {
		t.Fatalf("due date = %s, want %s", loan.DueDate, wantDue)
	}

	if _, err := f.app.Borrow(ctx, bobActor, "", domain.ItemBook, "9780000000001", 0); !errors.Is(err, domain.ErrOutOfStock) {
		t.Fatalf("bob Borrow err = %v, want ErrOutOfStock", err)
	}

	// alice returns 20 days after borrowing, 5 days past due: the grace
	// window is blown, so all 5 days are charged.
	f.now = f.now.AddDate(0, 0, 20)
	fine, err := f.app.Return(ctx, aliceActor, "", domain.ItemBook, "9780000000001")
	if err != nil {
		t.Fatalf("alice Return: %v", err)
	}
	if fine != 15 {
		t.Fatalf("fine = %d, want 15", fine)
	}

	item, err := f.app.GetItem(ctx, domain.ItemBook, "9780000000001")
	if err != nil {
		t.Fatalf("GetItem: %v", err)
	}
	if item.AvailableCopies != 1 {
		t.Fatalf("available = %d after return, want 1", item.AvailableCopies)
	}

	if _, err := f.app.Borrow(ctx, bobActor, "", domain.ItemBook, "9780000000001", 10); err != nil {
		t.Fatalf("bob Borrow after return: %v", err)
	}
}

func TestBorrowRejectsDuplicateActiveLoan(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	if _, err := f.app.Borrow(ctx, aliceActor, "", domain.ItemBook, "9780000000001", 0); err != nil {
		t.Fatalf("first Borrow: %v", err)
	}
	if _, err := f.app.Borrow(ctx, aliceActor, "", domain.ItemBook, "9780000000001", 0); !errors.Is(err, domain.ErrAlreadyBorrowed) {
		t.Fatalf("second Borrow err = %v, want ErrAlreadyBorrowed", err)
	}
}

func TestBorrowAuthorization(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	if _, err := f.app.Borrow(ctx, newcomerActor, "", domain.ItemBook, "9780000000001", 0); !errors.Is(err, domain.ErrForbidden) {
		t.Fatalf("unverified Borrow err = %v, want ErrForbidden", err)
	}
}

func TestBorrowValidatesKey(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	if _, err := f.app.Borrow(ctx, aliceActor, "", domain.ItemBook, "123", 0); !errors.Is(err, domain.ErrBadRequest) {
		t.Fatalf("short ISBN err = %v, want ErrBadRequest", err)
	}
	if _, err := f.app.Borrow(ctx, aliceActor, "", domain.ItemBook, "9789999999999", 0); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("unknown key err = %v, want ErrNotFound", err)
	}
}

func TestMembersActOnTheirOwnAccount(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// The target username is ignored for members; the token identity wins.
	loan, err := f.app.Borrow(ctx, aliceActor, "bob", domain.ItemBook, "9780000000001", 0)
	if err != nil {
		t.Fatalf("Borrow: %v", err)
	}
	if loan.Username != "alice" {
		t.Fatalf("loan username = %s, want alice", loan.Username)
	}
}

func TestStaffMustNameTheTarget(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	librarian := Actor{Email: "desk@example.com", Role: domain.RoleLibrarian}

	if _, err := f.app.Borrow(ctx, librarian, "", domain.ItemBook, "9780000000001", 0); !errors.Is(err, domain.ErrBadRequest) {
		t.Fatalf("staff Borrow without target err = %v, want ErrBadRequest", err)
	}
	loan, err := f.app.Borrow(ctx, librarian, "bob", domain.ItemBook, "9780000000001", 0)
	if err != nil {
		t.Fatalf("staff Borrow with target: %v", err)
	}
	if loan.Username != "bob" {
		t.Fatalf("loan username = %s, want bob", loan.Username)
	}
}

func TestActiveHoldings(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	holdings, err := f.app.ActiveHoldings(ctx, aliceActor, "")
	if err != nil {
		t.Fatalf("ActiveHoldings: %v", err)
	}
	if len(holdings.Books) != 0 || len(holdings.Magazines) != 0 {
		t.Fatalf("holdings = %+v, want empty", holdings)
	}

	if _, err := f.app.Borrow(ctx, aliceActor, "", domain.ItemBook, "9780000000001", 0); err != nil {
		t.Fatalf("Borrow: %v", err)
	}
	holdings, err = f.app.ActiveHoldings(ctx, aliceActor, "")
	if err != nil {
		t.Fatalf("ActiveHoldings: %v", err)
	}
	if len(holdings.Books) != 1 || holdings.Books[0] != "A Rare First Edition" {
		t.Fatalf("holdings = %+v, want the borrowed title", holdings)
	}

	if _, err := f.app.Return(ctx, aliceActor, "", domain.ItemBook, "9780000000001"); err != nil {
		t.Fatalf("Return: %v", err)
	}
	holdings, err = f.app.ActiveHoldings(ctx, aliceActor, "")
	if err != nil {
		t.Fatalf("ActiveHoldings: %v", err)
	}
	if len(holdings.Books) != 0 {
		t.Fatalf("holdings = %+v after return, want empty", holdings)
	}
}

func TestAddMemberRoleAssignment(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// Self-registration cannot pick an elevated role.
	member, err := f.app.AddMember(ctx, newcomerActor, domain.Member{
		Username: "carol",
		Email:    "carol@example.com",
		Role:     domain.RoleAdmin,
	})
	if err != nil {
		t.Fatalf("AddMember: %v", err)
	}
	if member.Role != domain.RoleUnverified {
		t.Fatalf("role = %s, want unverified", member.Role)
	}
	wantExpiry := time.Date(2024, time.July, 31, 12, 0, 0, 0, time.UTC)
	if !member.ExpiresAt.Equal(wantExpiry) {
		t.Fatalf("expires = %s, want %s", member.ExpiresAt, wantExpiry)
	}

	// Admins may assign any role.
	member, err = f.app.AddMember(ctx, adminActor, domain.Member{
		Username: "dave",
		Email:    "dave@example.com",
		Role:     domain.RoleLibrarian,
	})
	if err != nil {
		t.Fatalf("AddMember: %v", err)
	}
	if member.Role != domain.RoleLibrarian {
		t.Fatalf("role = %s, want librarian", member.Role)
	}
}

func TestVerifyMember(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if _, err := f.app.AddMember(ctx, newcomerActor, domain.Member{
		Username: "carol",
		Email:    "carol@example.com",
	}); err != nil {
		t.Fatalf("AddMember: %v", err)
	}

	member, err := f.app.VerifyMember(ctx, newcomerActor)
	if err != nil {
		t.Fatalf("VerifyMember: %v", err)
	}
	if member.Role != domain.RoleVerified {
		t.Fatalf("role = %s, want verified", member.Role)
	}
	stored, err := f.app.GetMember(ctx, adminActor, "carol")
	if err != nil {
		t.Fatalf("GetMember: %v", err)
	}
	if stored.Role != domain.RoleVerified {
		t.Fatalf("stored role = %s, want verified", stored.Role)
	}

	if _, err := f.app.VerifyMember(ctx, aliceActor); !errors.Is(err, domain.ErrBadRequest) {
		t.Fatalf("already verified err = %v, want ErrBadRequest", err)
	}
}

func TestSetRolePermissionsTakesEffectImmediately(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if _, err := f.app.Borrow(ctx, aliceActor, "", domain.ItemBook, "9780000000001", 0); err != nil {
		t.Fatalf("Borrow before edit: %v", err)
	}
	if _, err := f.app.Return(ctx, aliceActor, "", domain.ItemBook, "9780000000001"); err != nil {
		t.Fatalf("Return: %v", err)
	}

	err := f.app.SetRolePermissions(ctx, adminActor, domain.RoleVerified, []string{domain.PermUnverified})
	if err != nil {
		t.Fatalf("SetRolePermissions: %v", err)
	}
	if _, err := f.app.Borrow(ctx, aliceActor, "", domain.ItemBook, "9780000000001", 0); !errors.Is(err, domain.ErrForbidden) {
		t.Fatalf("Borrow after revoke err = %v, want ErrForbidden", err)
	}

	if err := f.app.SetRolePermissions(ctx, aliceActor, domain.RoleVerified, nil); !errors.Is(err, domain.ErrForbidden) {
		t.Fatalf("non-admin SetRolePermissions err = %v, want ErrForbidden", err)
	}
}

func TestAddItemValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if _, err := f.app.AddItem(ctx, aliceActor, domain.Item{Key: "9780000000002", Type: domain.ItemBook, Title: "x", GenreID: 1, PublisherID: 2, TotalCopies: 1}); !errors.Is(err, domain.ErrForbidden) {
		t.Fatalf("non-admin AddItem err = %v, want ErrForbidden", err)
	}
	if _, err := f.app.AddItem(ctx, adminActor, domain.Item{Key: "123", Type: domain.ItemBook, Title: "x", GenreID: 1, PublisherID: 2, TotalCopies: 1}); !errors.Is(err, domain.ErrBadRequest) {
		t.Fatalf("bad ISBN err = %v, want ErrBadRequest", err)
	}
	if _, err := f.app.AddItem(ctx, adminActor, domain.Item{Key: "9780000000002", Type: domain.ItemBook, Title: "x", GenreID: 99, PublisherID: 2, TotalCopies: 1}); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("unknown genre err = %v, want ErrNotFound", err)
	}
	if _, err := f.app.AddItem(ctx, adminActor, domain.Item{Key: "9780000000001", Type: domain.ItemBook, Title: "x", GenreID: 1, PublisherID: 2, TotalCopies: 1}); !errors.Is(err, domain.ErrDuplicate) {
		t.Fatalf("duplicate key err = %v, want ErrDuplicate", err)
	}

	item, err := f.app.AddItem(ctx, adminActor, domain.Item{
		Key: "12345678", Type: domain.ItemMagazine, Title: "Weekly", GenreID: 1, PublisherID: 2, TotalCopies: 4,
	})
	if err != nil {
		t.Fatalf("AddItem magazine: %v", err)
	}
	if item.AvailableCopies != 4 {
		t.Fatalf("available = %d, want total copies", item.AvailableCopies)
	}
}

func TestAuthenticate(t *testing.T) {
	f := newFixture(t)

	verifier, err := identity.NewVerifier(identity.Config{Secret: "test-secret"})
	if err != nil {
		t.Fatalf("NewVerifier: %v", err)
	}
	a, err := New(Config{Store: f.store, Verifier: verifier})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	claims := jwt.MapClaims{
		"sub":  "alice@example.com",
		"role": domain.RoleVerified,
		"iss":  "librarium-auth",
		"aud":  "librarium-api",
		"iat":  time.Now().Unix(),
		"exp":  time.Now().Add(time.Hour).Unix(),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-secret"))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}

	actor, err := a.Authenticate(token)
	if err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	if actor.Email != "alice@example.com" || actor.Role != domain.RoleVerified {
		t.Fatalf("actor = %+v", actor)
	}

	if _, err := a.Authenticate(token + "x"); !errors.Is(err, domain.ErrForbidden) {
		t.Fatalf("tampered token err = %v, want ErrForbidden", err)
	}
}
