package utils

import (
	"context"
	"errors"

	"bitbucket.org/mmdatafocus/brewery_backend/config"
	"gorm.io/gorm"
)

/* DB fetching */

// fetch model from db without an owner filter
// (may return RecordNotFound)
func FetchSingleModel[T any](ctx context.Context, id int, associations ...string) (*T, error) {

	db := config.GetDB()
	dbCtx := db.WithContext(ctx).Where("id = ?", id)
	for _, field := range associations {
		dbCtx = dbCtx.Preload(field)
	}
	var result T
	if err := dbCtx.First(&result).Error; err != nil {
		return nil, notFoundOr(err)
	}
	return &result, nil
}

// fetch model from db
// (creator_id is used in query's WHERE, may return RecordNotFound)
func FetchModel[T any](ctx context.Context, creatorId int, id int, associations ...string) (*T, error) {

	db := config.GetDB()
	dbCtx := db.WithContext(ctx).Where("creator_id = ? AND id = ?", creatorId, id)
	for _, field := range associations {
		dbCtx = dbCtx.Preload(field)
	}
	var result T
	if err := dbCtx.First(&result).Error; err != nil {
		return nil, notFoundOr(err)
	}
	return &result, nil
}

// fetch all models of the creator, newest first
func FetchAllModels[T any](ctx context.Context, creatorId int, associations ...string) ([]*T, error) {

	db := config.GetDB()
	dbCtx := db.WithContext(ctx).Where("creator_id = ?", creatorId)
	for _, field := range associations {
		dbCtx = dbCtx.Preload(field)
	}
	var results []*T
	if err := dbCtx.Order("id DESC").Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func notFoundOr(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrorRecordNotFound
	}
	return err
}
