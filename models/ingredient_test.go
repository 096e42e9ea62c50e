package models_test

import (
	"context"
	"testing"
	"time"

	"bitbucket.org/mmdatafocus/brewery_backend/config"
	"bitbucket.org/mmdatafocus/brewery_backend/models"
	"bitbucket.org/mmdatafocus/brewery_backend/utils"
	"gorm.io/gorm"
)

func TestSeedIngredientsIsIdempotent(t *testing.T) {
	setupTestDB(t)
	ctx := context.Background()
	seed := []models.NewIngredient{{Name: "Honey"}, {Name: " Water "}, {Name: ""}}

	created, err := models.SeedIngredients(ctx, seed)
	if err != nil {
		t.Fatalf("SeedIngredients: %v", err)
	}
	if created != 2 {
		t.Fatalf("expected 2 created, got %d", created)
	}
	created, err = models.SeedIngredients(ctx, seed)
	if err != nil {
		t.Fatalf("SeedIngredients: %v", err)
	}
	if created != 0 {
		t.Fatalf("expected rerun to create nothing, got %d", created)
	}
}

func TestCreateIngredientRejectsDuplicates(t *testing.T) {
	setupTestDB(t)
	ctx := userCtx(7)

	if _, err := models.CreateIngredient(ctx, &models.NewIngredient{Name: "Honey"}); err != nil {
		t.Fatalf("CreateIngredient: %v", err)
	}
	if _, err := models.CreateIngredient(ctx, &models.NewIngredient{Name: "  Honey "}); !utils.IsValidationError(err) {
		t.Fatalf("expected unique validation error, got %v", err)
	}
	if _, err := models.CreateIngredient(context.Background(), &models.NewIngredient{Name: "Yeast"}); err == nil {
		t.Fatalf("expected anonymous create to fail")
	}
}

// Another writer inserts the same name between the uniqueness check and the
// insert; the unique index rejects ours and that must still read as a
// validation error.
func TestCreateIngredientLosingRaceIsValidationError(t *testing.T) {
	setupTestDB(t)
	ctx := userCtx(7)

	raced := false
	err := config.GetDB().Callback().Create().Before("gorm:create").Register("test:ingredient_race", func(tx *gorm.DB) {
		ingredient, ok := tx.Statement.Dest.(*models.Ingredient)
		if !ok || raced {
			return
		}
		raced = true
		now := time.Now()
		tx.Session(&gorm.Session{NewDB: true}).
			Exec("INSERT INTO ingredients (name, description, created_at, updated_at) VALUES (?, ?, ?, ?)", ingredient.Name, "", now, now)
	})
	if err != nil {
		t.Fatalf("register callback: %v", err)
	}

	_, err = models.CreateIngredient(ctx, &models.NewIngredient{Name: "Honey"})
	if !raced {
		t.Fatalf("expected the competing insert to run")
	}
	if !utils.IsValidationError(err) {
		t.Fatalf("expected unique validation error, got %v", err)
	}
}
