package models

import (
	"context"
	"errors"
	"time"

	"bitbucket.org/mmdatafocus/brewery_backend/config"
	"bitbucket.org/mmdatafocus/brewery_backend/sequence"
	"bitbucket.org/mmdatafocus/brewery_backend/utils"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

var ErrBatchAlreadyFinished = errors.New("batch is already finished")

type FinishedProduct struct {
	ID           int             `gorm:"primary_key" json:"id"`
	BatchId      int             `gorm:"not null;uniqueIndex" json:"batch_id"`
	Batch        *Batch          `json:"batch,omitempty"`
	CreatorId    int             `gorm:"not null;index" json:"creator_id"`
	ProductType  string          `gorm:"size:4;not null" json:"product_type"`
	SerialNumber string          `gorm:"size:50;uniqueIndex;not null" json:"serial_number"`
	StartDate    MyDate          `gorm:"type:date;not null" json:"start_date"`
	FinishDate   MyDate          `gorm:"type:date;not null" json:"finish_date"`
	Description  string          `gorm:"type:text" json:"description"`
	Abv          decimal.Decimal `gorm:"type:decimal(5,2);not null;default:0" json:"abv"`
	Bottles      []Bottle        `gorm:"foreignKey:FinishedProductId" json:"bottles,omitempty"`
	CreatedAt    time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt    time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt    gorm.DeletedAt  `gorm:"index" json:"-"`
}

type NewFinishedProduct struct {
	ProductType string           `json:"product_type" validate:"required,oneof=WINE MEAD"`
	StartDate   *MyDate          `json:"start_date"`
	FinishDate  *MyDate          `json:"finish_date"`
	Description string           `json:"description"`
	Abv         *decimal.Decimal `json:"abv"`
}

func (input *NewFinishedProduct) validate() error {
	input.ProductType = sequence.NormalizeProductType(input.ProductType)
	if err := utils.ValidateStruct(input); err != nil {
		return err
	}
	if input.Abv != nil && input.Abv.IsNegative() {
		return utils.NewValidationError("Abv", "gte")
	}
	return nil
}

// FinishBatch turns the batch into a serialized finished product and marks it
// finished, both or neither.
func FinishBatch(ctx context.Context, batchId int, input *NewFinishedProduct) (*FinishedProduct, error) {
	creatorId, err := utils.RequireUserId(ctx)
	if err != nil {
		return nil, err
	}
	if err := input.validate(); err != nil {
		return nil, err
	}
	if err := utils.ValidateResourceId[Batch](ctx, creatorId, batchId); err != nil {
		return nil, err
	}

	db := config.GetDB()
	var product FinishedProduct
	err = sequence.Default().Transaction(ctx, db, func(tx *gorm.DB, codes *sequence.Codes) error {
		var batch Batch
		err := tx.Where("creator_id = ? AND id = ?", creatorId, batchId).
			Preload("ProcessEntries", func(db *gorm.DB) *gorm.DB {
				return db.Order("date, id")
			}).
			First(&batch).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return utils.ErrorRecordNotFound
		} else if err != nil {
			return err
		}
		if batch.IsFinished {
			return ErrBatchAlreadyFinished
		}

		startDate := batch.StartDate
		if input.StartDate != nil && !input.StartDate.IsZero() {
			startDate = *input.StartDate
		}
		finishDate := NewMyDate(utils.Today())
		if input.FinishDate != nil && !input.FinishDate.IsZero() {
			finishDate = *input.FinishDate
		}

		scope, err := sequence.ProductScope(creatorId, input.ProductType, startDate.Time())
		if err != nil {
			return err
		}
		serial, err := codes.Next(ctx, scope)
		if err != nil {
			return err
		}

		product = FinishedProduct{
			BatchId:      batch.ID,
			CreatorId:    creatorId,
			ProductType:  input.ProductType,
			SerialNumber: serial,
			StartDate:    startDate,
			FinishDate:   finishDate,
			Description:  input.Description + "\n\nProcess:\n" + processSummary(batch.ProcessEntries),
			Abv:          productAbv(&batch, input.Abv),
		}
		if err := tx.Create(&product).Error; err != nil {
			return err
		}
		return tx.Model(&Batch{}).Where("id = ?", batch.ID).Update("is_finished", true).Error
	})
	if err != nil {
		if !errors.Is(err, ErrBatchAlreadyFinished) {
			config.LogError(config.GetLogger(), "FinishedProduct", "FinishBatch", "finish batch", map[string]any{"batch_id": batchId}, err)
		}
		return nil, err
	}
	return &product, nil
}

// batch ABV wins; a zero or unknown batch ABV falls back to the given one
func productAbv(batch *Batch, fallback *decimal.Decimal) decimal.Decimal {
	if abv := batch.Abv(); abv != nil && !abv.IsZero() {
		return *abv
	}
	if fallback != nil {
		return fallback.Round(2)
	}
	return decimal.Zero
}

func GetFinishedProduct(ctx context.Context, id int) (*FinishedProduct, error) {
	creatorId, err := utils.RequireUserId(ctx)
	if err != nil {
		return nil, err
	}
	return utils.FetchModel[FinishedProduct](ctx, creatorId, id, "Bottles")
}

func ListFinishedProducts(ctx context.Context) ([]*FinishedProduct, error) {
	creatorId, err := utils.RequireUserId(ctx)
	if err != nil {
		return nil, err
	}
	return utils.FetchAllModels[FinishedProduct](ctx, creatorId)
}
