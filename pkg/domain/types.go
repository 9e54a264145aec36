package domain

import "time"

// ItemType tags a catalog item as a book or a magazine.
type ItemType string

const (
	ItemBook     ItemType = "book"
	ItemMagazine ItemType = "magazine"
)

// Catalog key lengths. Books are keyed by ISBN, magazines by ISSN.
const (
	ISBNLength = 13
	ISSNLength = 8
)

// Role names assigned to members and staff.
const (
	RoleUnverified = "unverified"
	RoleVerified   = "verified"
	RoleLibrarian  = "librarian"
	RoleAdmin      = "admin"
)

// Permission names checked by the authorization gate.
const (
	PermUnverified = "user:unverified"
	PermVerified   = "user:verified"
	PermCirculate  = "library:circulate"
	PermAdminAll   = "admin:all"
)

// MembershipDays is how long a new member account is valid.
const MembershipDays = 60

// Item is a lendable catalog entry. Key is the ISBN for books and the
// ISSN for magazines. AvailableCopies never drops below zero and never
// exceeds TotalCopies, the provisioned stock.
type Item struct {
	Key             string   `json:"key"`
	Type            ItemType `json:"type"`
	Title           string   `json:"title"`
	Creator         string   `json:"creator"` // author for books, editor for magazines
	Price           int      `json:"price"`
	GenreID         int64    `json:"genreId"`
	PublisherID     int64    `json:"publisherId"`
	TotalCopies     int      `json:"totalCopies"`
	AvailableCopies int      `json:"availableCopies"`
}

// Member is a library member account.
type Member struct {
	Username  string    `json:"username"`
	Email     string    `json:"email"`
	Address   string    `json:"address"`
	Phone     string    `json:"phone"`
	Role      string    `json:"role"`
	Fine      int       `json:"fine"`
	CreatedAt time.Time `json:"createdAt"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// Publisher is catalog reference data.
type Publisher struct {
	ID      int64  `json:"id"`
	Name    string `json:"name"`
	Address string `json:"address"`
	Phone   string `json:"phone"`
}

// Genre is catalog reference data.
type Genre struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// LoanStatus is the loan state machine. A loan is created active and
// transitions to returned exactly once; rows are never deleted.
type LoanStatus string

const (
	LoanActive   LoanStatus = "active"
	LoanReturned LoanStatus = "returned"
)

// Loan records one item held by one member, active or historical.
// It references the member and item by key so both survive independently.
type Loan struct {
	ID           string     `json:"id"`
	Username     string     `json:"username"`
	ItemKey      string     `json:"itemKey"`
	ItemType     ItemType   `json:"itemType"`
	GenreID      int64      `json:"genreId"`
	IssuedDate   time.Time  `json:"issuedDate"`
	DueDate      time.Time  `json:"dueDate"`
	Status       LoanStatus `json:"status"`
	ReturnedDate time.Time  `json:"returnedDate,omitzero"`
}

// Holdings lists the titles a member currently has out, derived from
// active loans.
type Holdings struct {
	Books     []string `json:"books"`
	Magazines []string `json:"magazines"`
}

// TemplateKind selects the notification template rendered downstream.
type TemplateKind string

const (
	TemplateReminder TemplateKind = "reminder"
	TemplateOverdue  TemplateKind = "overdue"
)

// Notification is one emitted circulation event, recorded for audit.
type Notification struct {
	ID       string            `json:"id"`
	Contact  string            `json:"contact"`
	Template TemplateKind      `json:"template"`
	Fields   map[string]string `json:"fields"`
	SentAt   time.Time         `json:"sentAt"`
}
