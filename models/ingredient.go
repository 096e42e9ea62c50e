package models

import (
	"context"
	"strings"
	"time"

	"bitbucket.org/mmdatafocus/brewery_backend/config"
	"bitbucket.org/mmdatafocus/brewery_backend/sequence"
	"bitbucket.org/mmdatafocus/brewery_backend/utils"
	"gorm.io/gorm"
)

// Ingredient is shared by every user.
type Ingredient struct {
	ID          int       `gorm:"primary_key" json:"id"`
	Name        string    `gorm:"size:100;uniqueIndex;not null" json:"name"`
	Description string    `gorm:"type:text" json:"description"`
	CreatedAt   time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewIngredient struct {
	Name        string `json:"name" validate:"required,max=100"`
	Description string `json:"description"`
}

func (input *NewIngredient) validate(ctx context.Context, id int) error {
	input.Name = strings.TrimSpace(input.Name)
	if err := utils.ValidateStruct(input); err != nil {
		return err
	}
	return utils.ValidateUnique[Ingredient](ctx, 0, "name", input.Name, id)
}

func CreateIngredient(ctx context.Context, input *NewIngredient) (*Ingredient, error) {
	if _, err := utils.RequireUserId(ctx); err != nil {
		return nil, err
	}
	if err := input.validate(ctx, 0); err != nil {
		return nil, err
	}

	db := config.GetDB()
	ingredient := Ingredient{
		Name:        input.Name,
		Description: input.Description,
	}
	if err := db.WithContext(ctx).Create(&ingredient).Error; err != nil {
		// a concurrent create of the same name won the unique index
		if sequence.IsUniqueViolation(err) {
			return nil, utils.NewValidationError("name", "unique")
		}
		return nil, err
	}
	return &ingredient, nil
}

func ListIngredients(ctx context.Context) ([]*Ingredient, error) {
	db := config.GetDB()
	var results []*Ingredient
	if err := db.WithContext(ctx).Order("name").Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

// resolve an ingredient line to an id, creating the ingredient by name if needed
func resolveIngredient(tx *gorm.DB, line *NewBatchIngredient) (int, error) {
	if line.IngredientId > 0 {
		var count int64
		if err := tx.Model(&Ingredient{}).Where("id = ?", line.IngredientId).Count(&count).Error; err != nil {
			return 0, err
		}
		if count == 0 {
			return 0, utils.NewValidationError("IngredientId", "exists")
		}
		return line.IngredientId, nil
	}
	ingredient := Ingredient{Name: strings.TrimSpace(line.NewIngredient)}
	if err := tx.Where(Ingredient{Name: ingredient.Name}).FirstOrCreate(&ingredient).Error; err != nil {
		return 0, err
	}
	return ingredient.ID, nil
}

// SeedIngredients creates the named ingredients that don't exist yet and
// returns how many were created.
func SeedIngredients(ctx context.Context, inputs []NewIngredient) (int, error) {
	db := config.GetDB()
	created := 0
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, in := range inputs {
			name := strings.TrimSpace(in.Name)
			if name == "" {
				continue
			}
			ingredient := Ingredient{Name: name}
			result := tx.Where(Ingredient{Name: name}).
				Attrs(Ingredient{Description: in.Description}).
				FirstOrCreate(&ingredient)
			if result.Error != nil {
				return result.Error
			}
			created += int(result.RowsAffected)
		}
		return nil
	})
	if err != nil {
		config.LogError(config.GetLogger(), "Ingredient", "SeedIngredients", "seed ingredients", nil, err)
		return 0, err
	}
	return created, nil
}
