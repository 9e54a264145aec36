package store

import (
	"time"

	"gorm.io/datatypes"
)

// GORM models used for persistence.
type ItemModel struct {
	Type            string `gorm:"primaryKey;size:16"`
	Key             string `gorm:"primaryKey;size:13"`
	Title           string `gorm:"not null"`
	Creator         string `gorm:"not null"`
	Price           int    `gorm:"not null"`
	GenreID         int64
	PublisherID     int64
	TotalCopies     int `gorm:"not null"`
	AvailableCopies int `gorm:"not null"`
}

func (ItemModel) TableName() string { return "items" }

type MemberModel struct {
	Username  string `gorm:"primaryKey;size:50"`
	Email     string `gorm:"uniqueIndex;not null"`
	Address   string
	Phone     string
	Role      string    `gorm:"not null"`
	Fine      int       `gorm:"not null"`
	CreatedAt time.Time `gorm:"not null"`
	ExpiresAt time.Time `gorm:"not null"`
}

func (MemberModel) TableName() string { return "members" }

type PublisherModel struct {
	ID      int64  `gorm:"primaryKey"`
	Name    string `gorm:"uniqueIndex;not null"`
	Address string
	Phone   string
}

func (PublisherModel) TableName() string { return "publishers" }

type GenreModel struct {
	ID   int64  `gorm:"primaryKey"`
	Name string `gorm:"uniqueIndex;not null"`
}

func (GenreModel) TableName() string { return "genres" }

type LoanModel struct {
	ID           string `gorm:"primaryKey"`
	Username     string `gorm:"not null;index"`
	ItemType     string `gorm:"not null"`
	ItemKey      string `gorm:"not null;index"`
	GenreID      int64
	IssuedDate   time.Time `gorm:"not null"`
	DueDate      time.Time `gorm:"not null;index"`
	Status       string    `gorm:"not null;index"`
	ReturnedDate *time.Time
}

func (LoanModel) TableName() string { return "loans" }

type RoleModel struct {
	ID   uint   `gorm:"primaryKey"`
	Name string `gorm:"uniqueIndex;not null"`
}

func (RoleModel) TableName() string { return "roles" }

type PermissionModel struct {
	ID   uint   `gorm:"primaryKey"`
	Name string `gorm:"uniqueIndex;not null"`
}

func (PermissionModel) TableName() string { return "permissions" }

type RolePermissionModel struct {
	RoleID       uint `gorm:"primaryKey"`
	PermissionID uint `gorm:"primaryKey"`
}

func (RolePermissionModel) TableName() string { return "role_permissions" }

type NotificationModel struct {
	ID       string `gorm:"primaryKey"`
	Contact  string `gorm:"not null;index"`
	Template string `gorm:"not null"`
	Fields   datatypes.JSON
	SentAt   time.Time `gorm:"not null;index"`
}

func (NotificationModel) TableName() string { return "notifications" }
