package store

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"budgetbuddy/internal/core"
	"budgetbuddy/internal/log"
	"budgetbuddy/internal/ports"
	"budgetbuddy/internal/remote"
)

var (
	ErrDefaultCategory   = errors.New("default categories cannot be removed")
	ErrDuplicateCategory = errors.New("category already exists")
)

// ListCategories returns the defaults for t followed by the user's custom
// categories of that type, ordered by name. Without a user only defaults are returned.
func (s *PeriodStore) ListCategories(ctx context.Context, t core.CategoryType) ([]core.Category, error) {
	out := core.DefaultCategories(t)
	uid, ok := s.userID(ctx)
	if !ok {
		return out, nil
	}
	custom, err := s.customCategories(ctx, uid)
	if err != nil {
		return out, err
	}
	for _, c := range custom {
		if c.Type == t {
			out = append(out, c)
		}
	}
	return out, nil
}

func (s *PeriodStore) customCategories(ctx context.Context, uid string) ([]core.Category, error) {
	children, err := s.remote.Query(ctx, remote.Join(CategoriesPath, uid), ports.Query{OrderBy: fieldName})
	if err != nil {
		return nil, fmt.Errorf("query categories: %w", err)
	}
	out := make([]core.Category, 0, len(children))
	for _, c := range children {
		cat, err := DecodeCategory(c.Value)
		if err != nil {
			continue
		}
		out = append(out, cat)
	}
	return out, nil
}

// AddCategory stores a custom category. Names are unique per type, ignoring case.
func (s *PeriodStore) AddCategory(ctx context.Context, c core.Category) (core.Category, error) {
	uid, ok := s.userID(ctx)
	if !ok {
		return core.Category{}, ports.ErrNotAuthenticated
	}
	c.Name = strings.TrimSpace(c.Name)
	if err := c.Validate(); err != nil {
		return core.Category{}, err
	}

	existing, err := s.ListCategories(ctx, c.Type)
	if err != nil {
		return core.Category{}, err
	}
	for _, e := range existing {
		if strings.EqualFold(e.Name, c.Name) {
			return core.Category{}, ErrDuplicateCategory
		}
	}

	c.ID = core.NewID()
	if err := s.remote.Set(ctx, remote.Join(CategoriesPath, uid, c.ID), EncodeCategory(c)); err != nil {
		return core.Category{}, fmt.Errorf("save category: %w", err)
	}
	s.logger.InfoContext(ctx, "Category added", log.FieldUserID, uid, log.FieldCategory, c.Name, "type", string(c.Type))
	return c, nil
}

// RemoveCategory deletes a custom category. Removing an unknown id is not an error.
func (s *PeriodStore) RemoveCategory(ctx context.Context, id string) error {
	if core.IsDefaultCategoryID(id) {
		return ErrDefaultCategory
	}
	uid, ok := s.userID(ctx)
	if !ok {
		return ports.ErrNotAuthenticated
	}
	if err := s.remote.Delete(ctx, remote.Join(CategoriesPath, uid, id)); err != nil {
		return fmt.Errorf("delete category: %w", err)
	}
	return nil
}
