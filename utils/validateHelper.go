package utils

import (
	"context"
	"errors"
	"reflect"
	"sync"

	"bitbucket.org/mmdatafocus/brewery_backend/config"
	"github.com/go-playground/validator/v10"
)

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

func getValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New()
	})
	return validate
}

// ValidateStruct runs `validate:"..."` tags on input and returns a *ValidationError
// keyed by field name.
func ValidateStruct(input any) error {
	err := getValidator().Struct(input)
	if err == nil {
		return nil
	}
	var ve validator.ValidationErrors
	if errors.As(err, &ve) {
		return &ValidationError{Fields: ProcessValidationErrors(err)}
	}
	return err
}

// check if id exists for the creator, return RecordNotFound Error
func ValidateResourceId[T any](ctx context.Context, creatorId int, id interface{}) error {

	count, err := ResourceCountWhere[T](ctx, creatorId, "id = ?", id)
	if err != nil {
		return err
	}
	if count <= 0 {
		return ErrorRecordNotFound
	}

	return nil
}

// check if ALL ids exist, return RecordNotFound Error
func ValidateResourcesId[M any, ID comparable](ctx context.Context, creatorId int, ids []ID) error {
	unqIds := UniqueSlice(ids)
	if len(unqIds) == 0 {
		return nil
	}

	count, err := ResourceCountWhere[M](ctx, creatorId, "id IN ?", unqIds)
	if err != nil {
		return err
	}
	if count != int64(len(unqIds)) {
		return ErrorRecordNotFound
	}

	return nil
}

func ValidateUnique[T any](ctx context.Context, creatorId int, column string, value interface{}, exceptId interface{}) error {
	var count int64
	var err error
	if reflect.ValueOf(exceptId).IsZero() {
		count, err = ResourceCountWhere[T](ctx, creatorId, column+" = ?", value)
	} else {
		count, err = ResourceCountWhere[T](ctx, creatorId, column+" = ? AND NOT id = ?", value, exceptId)
	}

	if err != nil {
		return err
	}
	if count > 0 {
		return NewValidationError(column, "unique")
	}
	return nil
}

// count records, using WHERE creator_id = ? AND $condition
// creatorId 0 skips the owner filter (models without an owner column)
func ResourceCountWhere[T any](ctx context.Context, creatorId int, condition string, value ...interface{}) (int64, error) {
	var model T

	db := config.GetDB()
	dbCtx := db.WithContext(ctx).Model(&model)
	var count int64
	if creatorId > 0 {
		dbCtx = dbCtx.Where("creator_id = ?", creatorId)
	}
	dbCtx = dbCtx.Where(condition, value...)
	if err := dbCtx.Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}
