package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"gorm.io/datatypes"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"librarium/pkg/domain"
)

// GormStore implements Store using GORM + Postgres.
type GormStore struct {
	db *gorm.DB
}

// NewGormStore opens the DB, runs auto-migrations, and seeds the role
// reference tables when they are empty.
func NewGormStore(dsn string) (*GormStore, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{TranslateError: true})
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if err := db.AutoMigrate(
		&ItemModel{}, &MemberModel{}, &PublisherModel{}, &GenreModel{},
		&LoanModel{}, &RoleModel{}, &PermissionModel{}, &RolePermissionModel{},
		&NotificationModel{},
	); err != nil {
		return nil, fmt.Errorf("auto migrate: %w", err)
	}
	s := &GormStore{db: db}
	if err := s.seedRoles(); err != nil {
		return nil, fmt.Errorf("seed roles: %w", err)
	}
	return s, nil
}

func (s *GormStore) seedRoles() error {
	var count int64
	if err := s.db.Model(&RoleModel{}).Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return nil
	}
	for role, perms := range DefaultRolePermissions {
		if err := s.db.Create(&RoleModel{Name: role}).Error; err != nil {
			return err
		}
		if err := s.ReplaceRolePermissions(context.Background(), role, perms); err != nil {
			return err
		}
	}
	return nil
}

// AddItem inserts a catalog item.
func (s *GormStore) AddItem(ctx context.Context, item domain.Item) error {
	model := itemToModel(item)
	if err := s.db.WithContext(ctx).Create(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return fmt.Errorf("%s with key %s: %w", item.Type, item.Key, domain.ErrDuplicate)
		}
		return err
	}
	return nil
}

// GetItem retrieves a catalog item by type and key.
func (s *GormStore) GetItem(ctx context.Context, itemType domain.ItemType, key string) (domain.Item, bool, error) {
	var model ItemModel
	err := s.db.WithContext(ctx).
		Where("type = ? AND key = ?", string(itemType), key).
		First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.Item{}, false, nil
		}
		return domain.Item{}, false, err
	}
	return itemFromModel(model), true, nil
}

// ListItems returns one page of catalog items of the given type,
// ordered by key. Page numbering starts at 1; limit <= 0 disables
// pagination.
func (s *GormStore) ListItems(ctx context.Context, itemType domain.ItemType, page, limit int) ([]domain.Item, error) {
	tx := s.db.WithContext(ctx).
		Where("type = ?", string(itemType)).
		Order("key ASC")
	if limit > 0 {
		if page < 1 {
			page = 1
		}
		tx = tx.Offset((page - 1) * limit).Limit(limit)
	}
	var models []ItemModel
	if err := tx.Find(&models).Error; err != nil {
		return nil, err
	}
	items := make([]domain.Item, 0, len(models))
	for _, m := range models {
		items = append(items, itemFromModel(m))
	}
	return items, nil
}

// AddPublisher inserts a publisher and returns it with its assigned ID.
func (s *GormStore) AddPublisher(ctx context.Context, p domain.Publisher) (domain.Publisher, error) {
	model := PublisherModel{Name: p.Name, Address: p.Address, Phone: p.Phone}
	if err := s.db.WithContext(ctx).Create(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return domain.Publisher{}, fmt.Errorf("publisher named %s: %w", p.Name, domain.ErrDuplicate)
		}
		return domain.Publisher{}, err
	}
	p.ID = model.ID
	return p, nil
}

// GetPublisher returns a publisher by ID.
func (s *GormStore) GetPublisher(ctx context.Context, id int64) (domain.Publisher, bool, error) {
	var model PublisherModel
	if err := s.db.WithContext(ctx).First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.Publisher{}, false, nil
		}
		return domain.Publisher{}, false, err
	}
	return domain.Publisher{ID: model.ID, Name: model.Name, Address: model.Address, Phone: model.Phone}, true, nil
}

// ListPublishers returns all publishers ordered by name.
func (s *GormStore) ListPublishers(ctx context.Context) ([]domain.Publisher, error) {
	var models []PublisherModel
	if err := s.db.WithContext(ctx).Order("name ASC").Find(&models).Error; err != nil {
		return nil, err
	}
	out := make([]domain.Publisher, 0, len(models))
	for _, m := range models {
		out = append(out, domain.Publisher{ID: m.ID, Name: m.Name, Address: m.Address, Phone: m.Phone})
	}
	return out, nil
}

// AddGenre inserts a genre and returns it with its assigned ID.
func (s *GormStore) AddGenre(ctx context.Context, g domain.Genre) (domain.Genre, error) {
	model := GenreModel{Name: g.Name}
	if err := s.db.WithContext(ctx).Create(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return domain.Genre{}, fmt.Errorf("genre named %s: %w", g.Name, domain.ErrDuplicate)
		}
		return domain.Genre{}, err
	}
	g.ID = model.ID
	return g, nil
}

// GetGenre returns a genre by ID.
func (s *GormStore) GetGenre(ctx context.Context, id int64) (domain.Genre, bool, error) {
	var model GenreModel
	if err := s.db.WithContext(ctx).First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.Genre{}, false, nil
		}
		return domain.Genre{}, false, err
	}
	return domain.Genre{ID: model.ID, Name: model.Name}, true, nil
}

// ListGenres returns all genres ordered by name.
func (s *GormStore) ListGenres(ctx context.Context) ([]domain.Genre, error) {
	var models []GenreModel
	if err := s.db.WithContext(ctx).Order("name ASC").Find(&models).Error; err != nil {
		return nil, err
	}
	out := make([]domain.Genre, 0, len(models))
	for _, m := range models {
		out = append(out, domain.Genre{ID: m.ID, Name: m.Name})
	}
	return out, nil
}

// AddMember registers a member.
func (s *GormStore) AddMember(ctx context.Context, m domain.Member) error {
	model := memberToModel(m)
	if err := s.db.WithContext(ctx).Create(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return fmt.Errorf("member with username %s: %w", m.Username, domain.ErrDuplicate)
		}
		return err
	}
	return nil
}

// GetMember looks up a member by username.
func (s *GormStore) GetMember(ctx context.Context, username string) (domain.Member, bool, error) {
	var model MemberModel
	if err := s.db.WithContext(ctx).First(&model, "username = ?", username).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.Member{}, false, nil
		}
		return domain.Member{}, false, err
	}
	return memberFromModel(model), true, nil
}

// GetMemberByEmail looks up a member by email.
func (s *GormStore) GetMemberByEmail(ctx context.Context, email string) (domain.Member, bool, error) {
	var model MemberModel
	if err := s.db.WithContext(ctx).First(&model, "email = ?", email).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.Member{}, false, nil
		}
		return domain.Member{}, false, err
	}
	return memberFromModel(model), true, nil
}

// ListMembers returns all members ordered by creation date.
func (s *GormStore) ListMembers(ctx context.Context) ([]domain.Member, error) {
	var models []MemberModel
	if err := s.db.WithContext(ctx).Order("created_at ASC").Find(&models).Error; err != nil {
		return nil, err
	}
	out := make([]domain.Member, 0, len(models))
	for _, m := range models {
		out = append(out, memberFromModel(m))
	}
	return out, nil
}

// SetMemberRole updates a member's role.
func (s *GormStore) SetMemberRole(ctx context.Context, username, role string) error {
	res := s.db.WithContext(ctx).Model(&MemberModel{}).
		Where("username = ?", username).
		Update("role", role)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("no member with username %s: %w", username, domain.ErrNotFound)
	}
	return nil
}

// IssueLoan creates an active loan and decrements the item's available
// copies in one transaction. The item row is locked for the duration so
// concurrent borrows of the same item serialize.
func (s *GormStore) IssueLoan(ctx context.Context, loan domain.Loan) (domain.Loan, error) {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var item ItemModel
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("type = ? AND key = ?", string(loan.ItemType), loan.ItemKey).
			First(&item).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("no %s with key %s: %w", loan.ItemType, loan.ItemKey, domain.ErrNotFound)
			}
			return err
		}

		var active int64
		err = tx.Model(&LoanModel{}).
			Where("username = ? AND item_type = ? AND item_key = ? AND status = ?",
				loan.Username, string(loan.ItemType), loan.ItemKey, string(domain.LoanActive)).
			Count(&active).Error
		if err != nil {
			return err
		}
		if active > 0 {
			return fmt.Errorf("%s already holds %s %s: %w", loan.Username, loan.ItemType, loan.ItemKey, domain.ErrAlreadyBorrowed)
		}
		if item.AvailableCopies <= 0 {
			return fmt.Errorf("%s %s: %w", loan.ItemType, loan.ItemKey, domain.ErrOutOfStock)
		}

		err = tx.Model(&ItemModel{}).
			Where("type = ? AND key = ?", string(loan.ItemType), loan.ItemKey).
			UpdateColumn("available_copies", gorm.Expr("available_copies - 1")).Error
		if err != nil {
			return err
		}

		loan.GenreID = item.GenreID
		loan.Status = domain.LoanActive
		model := loanToModel(loan)
		return tx.Create(&model).Error
	})
	if err != nil {
		return domain.Loan{}, err
	}
	return loan, nil
}

// CloseLoan marks the member's active loan on the item returned,
// restores one available copy, and settles the computed fine on the
// member's balance, all in one transaction. Restoring a copy never
// pushes availability past the provisioned stock.
func (s *GormStore) CloseLoan(ctx context.Context, username string, itemType domain.ItemType, key string, returnedAt time.Time) (domain.Loan, int, error) {
	var (
		closed domain.Loan
		fine   int
	)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var item ItemModel
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("type = ? AND key = ?", string(itemType), key).
			First(&item).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("no %s with key %s: %w", itemType, key, domain.ErrNotFound)
			}
			return err
		}

		var model LoanModel
		err = tx.Where("username = ? AND item_type = ? AND item_key = ? AND status = ?",
			username, string(itemType), key, string(domain.LoanActive)).
			First(&model).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("%s has not borrowed %q: %w", username, item.Title, domain.ErrNotFound)
			}
			return err
		}

		fine = domain.OverdueFine(model.DueDate, returnedAt)

		if item.AvailableCopies >= item.TotalCopies {
			return fmt.Errorf("stock for %s %s already at %d of %d: %w",
				itemType, key, item.AvailableCopies, item.TotalCopies, domain.ErrInternal)
		}

		err = tx.Model(&LoanModel{}).
			Where("id = ?", model.ID).
			Updates(map[string]any{
				"status":        string(domain.LoanReturned),
				"returned_date": returnedAt,
			}).Error
		if err != nil {
			return err
		}
		err = tx.Model(&ItemModel{}).
			Where("type = ? AND key = ?", string(itemType), key).
			UpdateColumn("available_copies", gorm.Expr("available_copies + 1")).Error
		if err != nil {
			return err
		}
		if fine > 0 {
			err = tx.Model(&MemberModel{}).
				Where("username = ?", username).
				UpdateColumn("fine", gorm.Expr("fine + ?", fine)).Error
			if err != nil {
				return err
			}
		}

		model.Status = string(domain.LoanReturned)
		model.ReturnedDate = &returnedAt
		closed = loanFromModel(model)
		return nil
	})
	if err != nil {
		return domain.Loan{}, 0, err
	}
	return closed, fine, nil
}

// ActiveLoans returns the member's active loans ordered by issue date.
func (s *GormStore) ActiveLoans(ctx context.Context, username string) ([]domain.Loan, error) {
	return s.listLoans(ctx, "username = ? AND status = ?", username, string(domain.LoanActive))
}

// LoansDueOn returns active loans due exactly on the given date.
func (s *GormStore) LoansDueOn(ctx context.Context, date time.Time) ([]domain.Loan, error) {
	return s.listLoans(ctx, "due_date = ? AND status = ?", date, string(domain.LoanActive))
}

// LoansDueBy returns active loans due on or before the given date.
func (s *GormStore) LoansDueBy(ctx context.Context, date time.Time) ([]domain.Loan, error) {
	return s.listLoans(ctx, "due_date <= ? AND status = ?", date, string(domain.LoanActive))
}

func (s *GormStore) listLoans(ctx context.Context, cond string, args ...any) ([]domain.Loan, error) {
	var models []LoanModel
	err := s.db.WithContext(ctx).
		Where(cond, args...).
		Order("issued_date ASC").
		Find(&models).Error
	if err != nil {
		return nil, err
	}
	loans := make([]domain.Loan, 0, len(models))
	for _, m := range models {
		loans = append(loans, loanFromModel(m))
	}
	return loans, nil
}

// RolePermissions returns the permission names granted to a role.
func (s *GormStore) RolePermissions(ctx context.Context, role string) ([]string, error) {
	var names []string
	err := s.db.WithContext(ctx).Model(&PermissionModel{}).
		Joins("JOIN role_permissions rp ON rp.permission_id = permissions.id").
		Joins("JOIN roles r ON r.id = rp.role_id").
		Where("r.name = ?", role).
		Order("permissions.name ASC").
		Pluck("permissions.name", &names).Error
	if err != nil {
		return nil, err
	}
	return names, nil
}

// ReplaceRolePermissions rewrites a role's permission set.
func (s *GormStore) ReplaceRolePermissions(ctx context.Context, role string, permissions []string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var roleModel RoleModel
		if err := tx.First(&roleModel, "name = ?", role).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("no role named %s: %w", role, domain.ErrNotFound)
			}
			return err
		}
		if err := tx.Delete(&RolePermissionModel{}, "role_id = ?", roleModel.ID).Error; err != nil {
			return err
		}
		for _, name := range permissions {
			var perm PermissionModel
			err := tx.Where(PermissionModel{Name: name}).FirstOrCreate(&perm).Error
			if err != nil {
				return err
			}
			err = tx.Clauses(clause.OnConflict{DoNothing: true}).
				Create(&RolePermissionModel{RoleID: roleModel.ID, PermissionID: perm.ID}).Error
			if err != nil {
				return err
			}
		}
		return nil
	})
}

// RecordNotification appends one emitted notification to the audit log.
func (s *GormStore) RecordNotification(ctx context.Context, n domain.Notification) error {
	fields, err := json.Marshal(n.Fields)
	if err != nil {
		return fmt.Errorf("encode fields: %w", err)
	}
	model := NotificationModel{
		ID:       n.ID,
		Contact:  n.Contact,
		Template: string(n.Template),
		Fields:   datatypes.JSON(fields),
		SentAt:   n.SentAt,
	}
	return s.db.WithContext(ctx).Create(&model).Error
}

func itemToModel(item domain.Item) ItemModel {
	return ItemModel{
		Type:            string(item.Type),
		Key:             item.Key,
		Title:           item.Title,
		Creator:         item.Creator,
		Price:           item.Price,
		GenreID:         item.GenreID,
		PublisherID:     item.PublisherID,
		TotalCopies:     item.TotalCopies,
		AvailableCopies: item.AvailableCopies,
	}
}

func itemFromModel(m ItemModel) domain.Item {
	return domain.Item{
		Type:            domain.ItemType(m.Type),
		Key:             m.Key,
		Title:           m.Title,
		Creator:         m.Creator,
		Price:           m.Price,
		GenreID:         m.GenreID,
		PublisherID:     m.PublisherID,
		TotalCopies:     m.TotalCopies,
		AvailableCopies: m.AvailableCopies,
	}
}

func memberToModel(m domain.Member) MemberModel {
	return MemberModel{
		Username:  m.Username,
		Email:     m.Email,
		Address:   m.Address,
		Phone:     m.Phone,
		Role:      m.Role,
		Fine:      m.Fine,
		CreatedAt: m.CreatedAt,
		ExpiresAt: m.ExpiresAt,
	}
}

func memberFromModel(m MemberModel) domain.Member {
	return domain.Member{
		Username:  m.Username,
		Email:     m.Email,
		Address:   m.Address,
		Phone:     m.Phone,
		Role:      m.Role,
		Fine:      m.Fine,
		CreatedAt: m.CreatedAt,
		ExpiresAt: m.ExpiresAt,
	}
}

func loanToModel(l domain.Loan) LoanModel {
	model := LoanModel{
		ID:         l.ID,
		Username:   l.Username,
		ItemType:   string(l.ItemType),
		ItemKey:    l.ItemKey,
		GenreID:    l.GenreID,
		IssuedDate: l.IssuedDate,
		DueDate:    l.DueDate,
		Status:     string(l.Status),
	}
	if !l.ReturnedDate.IsZero() {
		returned := l.ReturnedDate
		model.ReturnedDate = &returned
	}
	return model
}

func loanFromModel(m LoanModel) domain.Loan {
	loan := domain.Loan{
		ID:         m.ID,
		Username:   m.Username,
		ItemType:   domain.ItemType(m.ItemType),
		ItemKey:    m.ItemKey,
		GenreID:    m.GenreID,
		IssuedDate: m.IssuedDate,
		DueDate:    m.DueDate,
		Status:     domain.LoanStatus(m.Status),
	}
	if m.ReturnedDate != nil {
		loan.ReturnedDate = *m.ReturnedDate
	}
	return loan
}
