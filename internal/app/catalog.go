package app

import (
	"context"
	"fmt"
	"strings"

	"librarium/pkg/domain"
)

// AddItem registers a book or magazine in the catalog. Its genre and
// publisher must already exist.
func (a *App) AddItem(ctx context.Context, actor Actor, item domain.Item) (domain.Item, error) {
	if err := a.authz.Require(ctx, actor.Role, domain.PermAdminAll); err != nil {
		return domain.Item{}, err
	}
	if err := validateKey(item.Type, item.Key); err != nil {
		return domain.Item{}, err
	}
	item.Title = strings.TrimSpace(item.Title)
	if item.Title == "" {
		return domain.Item{}, fmt.Errorf("title required: %w", domain.ErrBadRequest)
	}
	if item.TotalCopies < 0 || item.AvailableCopies < 0 {
		return domain.Item{}, fmt.Errorf("copy counts must not be negative: %w", domain.ErrBadRequest)
	}
	if item.AvailableCopies == 0 {
		item.AvailableCopies = item.TotalCopies
	}
	if item.AvailableCopies > item.TotalCopies {
		return domain.Item{}, fmt.Errorf("available copies exceed total copies: %w", domain.ErrBadRequest)
	}

	if _, ok, err := a.store.GetGenre(ctx, item.GenreID); err != nil {
		return domain.Item{}, fmt.Errorf("fetch genre: %w", err)
	} else if !ok {
		return domain.Item{}, fmt.Errorf("no genre with id %d: %w", item.GenreID, domain.ErrNotFound)
	}
	if _, ok, err := a.store.GetPublisher(ctx, item.PublisherID); err != nil {
		return domain.Item{}, fmt.Errorf("fetch publisher: %w", err)
	} else if !ok {
		return domain.Item{}, fmt.Errorf("no publisher with id %d: %w", item.PublisherID, domain.ErrNotFound)
	}

	if err := a.store.AddItem(ctx, item); err != nil {
		return domain.Item{}, err
	}
	return item, nil
}

// GetItem looks up a catalog entry. Browsing needs no authorization.
func (a *App) GetItem(ctx context.Context, itemType domain.ItemType, key string) (domain.Item, error) {
	if err := validateKey(itemType, key); err != nil {
		return domain.Item{}, err
	}
	item, ok, err := a.store.GetItem(ctx, itemType, key)
	if err != nil {
		return domain.Item{}, fmt.Errorf("fetch %s: %w", itemType, err)
	}
	if !ok {
		return domain.Item{}, fmt.Errorf("no %s with key %s: %w", itemType, key, domain.ErrNotFound)
	}
	return item, nil
}

// ListItems pages through catalog entries of one type.
func (a *App) ListItems(ctx context.Context, itemType domain.ItemType, page, limit int) ([]domain.Item, error) {
	if itemType != domain.ItemBook && itemType != domain.ItemMagazine {
		return nil, fmt.Errorf("unknown item type %q: %w", itemType, domain.ErrBadRequest)
	}
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 100 {
		limit = 20
	}
	return a.store.ListItems(ctx, itemType, page, limit)
}

// AddPublisher registers a publisher.
func (a *App) AddPublisher(ctx context.Context, actor Actor, publisher domain.Publisher) (domain.Publisher, error) {
	if err := a.authz.Require(ctx, actor.Role, domain.PermAdminAll); err != nil {
		return domain.Publisher{}, err
	}
	publisher.Name = strings.TrimSpace(publisher.Name)
	if publisher.Name == "" {
		return domain.Publisher{}, fmt.Errorf("publisher name required: %w", domain.ErrBadRequest)
	}
	return a.store.AddPublisher(ctx, publisher)
}

// ListPublishers returns all publishers.
func (a *App) ListPublishers(ctx context.Context) ([]domain.Publisher, error) {
	return a.store.ListPublishers(ctx)
}

// AddGenre registers a genre.
func (a *App) AddGenre(ctx context.Context, actor Actor, genre domain.Genre) (domain.Genre, error) {
	if err := a.authz.Require(ctx, actor.Role, domain.PermAdminAll); err != nil {
		return domain.Genre{}, err
	}
	genre.Name = strings.TrimSpace(genre.Name)
	if genre.Name == "" {
		return domain.Genre{}, fmt.Errorf("genre name required: %w", domain.ErrBadRequest)
	}
	return a.store.AddGenre(ctx, genre)
}

// ListGenres returns all genres.
func (a *App) ListGenres(ctx context.Context) ([]domain.Genre, error) {
	return a.store.ListGenres(ctx)
}
