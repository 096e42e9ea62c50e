package models_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"bitbucket.org/mmdatafocus/brewery_backend/config"
	"bitbucket.org/mmdatafocus/brewery_backend/models"
	"bitbucket.org/mmdatafocus/brewery_backend/sequence"
	"bitbucket.org/mmdatafocus/brewery_backend/utils"
)

// setupTestDB installs a fresh sqlite database as the global connection.
func setupTestDB(t *testing.T) {
	t.Helper()
	db, err := config.OpenDatabase(config.DriverSQLite, filepath.Join(t.TempDir(), "brewery.db"))
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)

	prev := config.GetDB()
	config.UseDB(db)
	sequence.SetDefault(sequence.New(sequence.WithRetryLimit(1000)))
	t.Cleanup(func() {
		config.UseDB(prev)
		_ = sqlDB.Close()
	})

	models.MigrateTable()
}

func userCtx(userId int) context.Context {
	return utils.SetUserIdInContext(context.Background(), userId)
}

func day(year int, month time.Month, d int) models.MyDate {
	return models.NewMyDate(time.Date(year, month, d, 0, 0, 0, 0, time.UTC))
}

func ptr[T any](v T) *T {
	return &v
}

func mustCreateBatch(t *testing.T, ctx context.Context, input *models.NewBatch) *models.Batch {
	t.Helper()
	batch, err := models.CreateBatch(ctx, input)
	if err != nil {
		t.Fatalf("CreateBatch: %v", err)
	}
	return batch
}

func simpleBatch(start models.MyDate) *models.NewBatch {
	return &models.NewBatch{
		StartDate:    start,
		StartGravity: 1.050,
	}
}
