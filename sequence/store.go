package sequence

import (
	"context"
	"fmt"
	"sort"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Store is the persistence the allocator reads from. Implementations must see
// the writes of the transaction they were built on.
type Store interface {
	// FindMaxCode returns the highest code in scope, soft-deleted rows included.
	FindMaxCode(ctx context.Context, scope Scope) (string, bool, error)
	// ExistsCode checks code against every row of the format's table, across scopes.
	ExistsCode(ctx context.Context, format Format, code string) (bool, error)
}

// GormStore reads codes with table queries so neither soft-delete nor the
// owner guard narrows them.
type GormStore struct {
	db *gorm.DB
}

func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

func (s *GormStore) FindMaxCode(ctx context.Context, scope Scope) (string, bool, error) {
	f := scope.Format
	q := s.db.WithContext(ctx).Table(f.Table)
	for _, col := range sortedKeys(scope.Filter) {
		q = q.Where(clause.Eq{Column: clause.Column{Name: col}, Value: scope.Filter[col]})
	}
	var codes []string
	err := q.Where(clause.Neq{Column: clause.Column{Name: f.Column}, Value: ""}).
		Order(s.suffixOrder(f)).
		Limit(1).
		Pluck(f.Column, &codes).Error
	if err != nil {
		return "", false, fmt.Errorf("find max %s code in %s: %w", f.Name, scope.Key, err)
	}
	if len(codes) == 0 {
		return "", false, nil
	}
	return codes[0], true, nil
}

func (s *GormStore) ExistsCode(ctx context.Context, format Format, code string) (bool, error) {
	var count int64
	err := s.db.WithContext(ctx).Table(format.Table).
		Where(clause.Eq{Column: clause.Column{Name: format.Column}, Value: code}).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("check %s code %s: %w", format.Name, code, err)
	}
	return count > 0, nil
}

// suffixOrder sorts by the fixed-width sequence first, then the whole code, so a
// product backdated to an earlier month still counts as the newest.
func (s *GormStore) suffixOrder(f Format) string {
	suffix := fmt.Sprintf("SUBSTR(%s, -%d)", f.Column, f.Width)
	if s.db.Dialector != nil && s.db.Dialector.Name() == "postgres" {
		suffix = fmt.Sprintf("RIGHT(%s, %d)", f.Column, f.Width)
	}
	return fmt.Sprintf("%s DESC, %s DESC", suffix, f.Column)
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
