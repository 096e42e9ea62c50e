package models

import (
	"context"
	"strings"
	"time"

	"bitbucket.org/mmdatafocus/brewery_backend/config"
	"bitbucket.org/mmdatafocus/brewery_backend/sequence"
	"bitbucket.org/mmdatafocus/brewery_backend/utils"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type Batch struct {
	ID             int               `gorm:"primary_key" json:"id"`
	CreatorId      int               `gorm:"not null;index" json:"creator_id"`
	BatchNumber    string            `gorm:"size:50;uniqueIndex;not null" json:"batch_number"`
	StartDate      MyDate            `gorm:"type:date;not null" json:"start_date"`
	StartGravity   float64           `gorm:"not null" json:"start_gravity"`
	MiddleGravity  *float64          `json:"middle_gravity"`
	FinalGravity   *float64          `json:"final_gravity"`
	IsFinished     bool              `gorm:"not null;default:false" json:"is_finished"`
	Ingredients    []BatchIngredient `gorm:"foreignKey:BatchId" json:"ingredients"`
	ProcessEntries []ProcessEntry    `gorm:"foreignKey:BatchId" json:"process_entries"`
	CurrentAbv     *decimal.Decimal  `gorm:"-" json:"abv"`
	CreatedAt      time.Time         `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time         `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt      gorm.DeletedAt    `gorm:"index" json:"-"`
}

func (b *Batch) AfterFind(tx *gorm.DB) error {
	b.CurrentAbv = b.Abv()
	return nil
}

type BatchIngredient struct {
	ID           int            `gorm:"primary_key" json:"id"`
	BatchId      int            `gorm:"not null;index" json:"batch_id"`
	IngredientId int            `gorm:"not null;index" json:"ingredient_id"`
	Ingredient   *Ingredient    `json:"ingredient,omitempty"`
	Amount       float64        `gorm:"not null" json:"amount"`
	Unit         IngredientUnit `gorm:"size:10;not null" json:"unit"`
	CreatedAt    time.Time      `gorm:"autoCreateTime" json:"created_at"`
}

type NewBatchIngredient struct {
	IngredientId  int            `json:"ingredient_id"`
	NewIngredient string         `json:"new_ingredient" validate:"max=100"`
	Amount        float64        `json:"amount" validate:"gt=0"`
	Unit          IngredientUnit `json:"unit" validate:"required,oneof=kg g l ml"`
}

func (line *NewBatchIngredient) validate() error {
	if err := utils.ValidateStruct(line); err != nil {
		return err
	}
	if line.IngredientId <= 0 && strings.TrimSpace(line.NewIngredient) == "" {
		return utils.NewValidationError("IngredientId", "required_without")
	}
	return nil
}

type NewBatch struct {
	StartDate     MyDate               `json:"start_date"`
	StartGravity  float64              `json:"start_gravity" validate:"gt=0"`
	MiddleGravity *float64             `json:"middle_gravity" validate:"omitempty,gt=0"`
	FinalGravity  *float64             `json:"final_gravity" validate:"omitempty,gt=0"`
	Ingredients   []NewBatchIngredient `json:"ingredients"`
	ProcessEntry  *NewProcessEntry     `json:"process_entry" validate:"-"`
}

func (input *NewBatch) validate() error {
	if err := utils.ValidateStruct(input); err != nil {
		return err
	}
	if input.StartDate.IsZero() {
		return utils.NewValidationError("StartDate", "required")
	}
	for i := range input.Ingredients {
		if err := input.Ingredients[i].validate(); err != nil {
			return err
		}
	}
	if input.ProcessEntry != nil && strings.TrimSpace(input.ProcessEntry.Description) != "" {
		if err := input.ProcessEntry.validate(); err != nil {
			return err
		}
	}
	return nil
}

// BatchUpdate changes a batch in place. Nil fields stay as they are.
type BatchUpdate struct {
	StartDate             *MyDate              `json:"start_date"`
	StartGravity          *float64             `json:"start_gravity" validate:"omitempty,gt=0"`
	MiddleGravity         *float64             `json:"middle_gravity" validate:"omitempty,gt=0"`
	FinalGravity          *float64             `json:"final_gravity" validate:"omitempty,gt=0"`
	AddIngredients        []NewBatchIngredient `json:"add_ingredients"`
	AddProcessEntries     []NewProcessEntry    `json:"add_process_entries"`
	DeleteIngredientIds   []int                `json:"delete_ingredient_ids"`
	DeleteProcessEntryIds []int                `json:"delete_process_entry_ids"`
}

func (input *BatchUpdate) validate() error {
	if err := utils.ValidateStruct(input); err != nil {
		return err
	}
	if input.StartDate != nil && input.StartDate.IsZero() {
		return utils.NewValidationError("StartDate", "required")
	}
	for i := range input.AddIngredients {
		if err := input.AddIngredients[i].validate(); err != nil {
			return err
		}
	}
	for i := range input.AddProcessEntries {
		if err := input.AddProcessEntries[i].validate(); err != nil {
			return err
		}
	}
	return nil
}

func CreateBatch(ctx context.Context, input *NewBatch) (*Batch, error) {
	creatorId, err := utils.RequireUserId(ctx)
	if err != nil {
		return nil, err
	}
	if err := input.validate(); err != nil {
		return nil, err
	}

	db := config.GetDB()
	var batch Batch
	err = sequence.Default().Transaction(ctx, db, func(tx *gorm.DB, codes *sequence.Codes) error {
		scope, err := sequence.BatchScope(creatorId)
		if err != nil {
			return err
		}
		batchNumber, err := codes.Next(ctx, scope)
		if err != nil {
			return err
		}

		batch = Batch{
			CreatorId:     creatorId,
			BatchNumber:   batchNumber,
			StartDate:     input.StartDate,
			StartGravity:  input.StartGravity,
			MiddleGravity: input.MiddleGravity,
			FinalGravity:  input.FinalGravity,
		}
		if err := tx.Create(&batch).Error; err != nil {
			return err
		}
		if err := addIngredientLines(tx, batch.ID, input.Ingredients); err != nil {
			return err
		}
		if input.ProcessEntry != nil && strings.TrimSpace(input.ProcessEntry.Description) != "" {
			entry := ProcessEntry{
				BatchId:     batch.ID,
				Date:        input.ProcessEntry.Date,
				Description: strings.TrimSpace(input.ProcessEntry.Description),
			}
			if err := tx.Create(&entry).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		config.LogError(config.GetLogger(), "Batch", "CreateBatch", "create batch", map[string]any{"creator_id": creatorId}, err)
		return nil, err
	}

	return GetBatch(ctx, batch.ID)
}

func addIngredientLines(tx *gorm.DB, batchId int, lines []NewBatchIngredient) error {
	for i := range lines {
		ingredientId, err := resolveIngredient(tx, &lines[i])
		if err != nil {
			return err
		}
		line := BatchIngredient{
			BatchId:      batchId,
			IngredientId: ingredientId,
			Amount:       lines[i].Amount,
			Unit:         lines[i].Unit,
		}
		if err := tx.Create(&line).Error; err != nil {
			return err
		}
	}
	return nil
}

// UpdateBatch never touches batch_number.
func UpdateBatch(ctx context.Context, id int, input *BatchUpdate) (*Batch, error) {
	creatorId, err := utils.RequireUserId(ctx)
	if err != nil {
		return nil, err
	}
	if err := input.validate(); err != nil {
		return nil, err
	}

	db := config.GetDB()
	batch, err := utils.FetchModel[Batch](ctx, creatorId, id)
	if err != nil {
		return nil, err
	}

	updates := map[string]interface{}{}
	if input.StartDate != nil {
		updates["StartDate"] = *input.StartDate
	}
	if input.StartGravity != nil {
		updates["StartGravity"] = *input.StartGravity
	}
	if input.MiddleGravity != nil {
		updates["MiddleGravity"] = *input.MiddleGravity
	}
	if input.FinalGravity != nil {
		updates["FinalGravity"] = *input.FinalGravity
	}

	err = db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if len(updates) > 0 {
			if err := tx.Model(batch).Updates(updates).Error; err != nil {
				return err
			}
		}
		if len(input.DeleteIngredientIds) > 0 {
			if err := tx.Where("batch_id = ? AND id IN ?", batch.ID, utils.UniqueSlice(input.DeleteIngredientIds)).
				Delete(&BatchIngredient{}).Error; err != nil {
				return err
			}
		}
		if len(input.DeleteProcessEntryIds) > 0 {
			if err := tx.Where("batch_id = ? AND id IN ?", batch.ID, utils.UniqueSlice(input.DeleteProcessEntryIds)).
				Delete(&ProcessEntry{}).Error; err != nil {
				return err
			}
		}
		if err := addIngredientLines(tx, batch.ID, input.AddIngredients); err != nil {
			return err
		}
		for _, e := range input.AddProcessEntries {
			entry := ProcessEntry{
				BatchId:     batch.ID,
				Date:        e.Date,
				Description: strings.TrimSpace(e.Description),
			}
			if err := tx.Create(&entry).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		config.LogError(config.GetLogger(), "Batch", "UpdateBatch", "update batch", map[string]any{"batch_id": id}, err)
		return nil, err
	}

	return GetBatch(ctx, id)
}

// DeleteBatch soft-deletes the batch. Its number stays taken.
func DeleteBatch(ctx context.Context, id int) (*Batch, error) {
	creatorId, err := utils.RequireUserId(ctx)
	if err != nil {
		return nil, err
	}

	db := config.GetDB()
	batch, err := utils.FetchModel[Batch](ctx, creatorId, id)
	if err != nil {
		return nil, err
	}
	if err := db.WithContext(ctx).Delete(batch).Error; err != nil {
		return nil, err
	}
	return batch, nil
}

func GetBatch(ctx context.Context, id int) (*Batch, error) {
	creatorId, err := utils.RequireUserId(ctx)
	if err != nil {
		return nil, err
	}
	return utils.FetchModel[Batch](ctx, creatorId, id, "Ingredients.Ingredient", "ProcessEntries")
}

func ListBatches(ctx context.Context) ([]*Batch, error) {
	creatorId, err := utils.RequireUserId(ctx)
	if err != nil {
		return nil, err
	}
	return utils.FetchAllModels[Batch](ctx, creatorId, "Ingredients.Ingredient", "ProcessEntries")
}
