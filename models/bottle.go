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

type Bottle struct {
	ID                int            `gorm:"primary_key" json:"id"`
	FinishedProductId int            `gorm:"not null;index" json:"finished_product_id"`
	BottleNumber      string         `gorm:"size:50;uniqueIndex;not null" json:"bottle_number"`
	Volume            float64        `gorm:"not null" json:"volume"`
	DateBottled       MyDate         `gorm:"type:date;not null" json:"date_bottled"`
	CreatedAt         time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt         time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt         gorm.DeletedAt `gorm:"index" json:"-"`
}

type NewBottle struct {
	// liters
	Volume      float64 `json:"volume" validate:"gt=0"`
	DateBottled *MyDate `json:"date_bottled"`
}

func validateNewBottles(input []NewBottle) error {
	if len(input) == 0 {
		return utils.NewValidationError("Bottles", "min")
	}
	for i := range input {
		if err := utils.ValidateStruct(&input[i]); err != nil {
			return err
		}
	}
	return nil
}

// CreateBottles numbers the bottles consecutively in input order.
func CreateBottles(ctx context.Context, productId int, input []NewBottle) ([]*Bottle, error) {
	creatorId, err := utils.RequireUserId(ctx)
	if err != nil {
		return nil, err
	}
	if err := validateNewBottles(input); err != nil {
		return nil, err
	}

	db := config.GetDB()
	var bottles []*Bottle
	err = sequence.Default().Transaction(ctx, db, func(tx *gorm.DB, codes *sequence.Codes) error {
		bottles = make([]*Bottle, 0, len(input))

		var product FinishedProduct
		err := tx.Where("creator_id = ? AND id = ?", creatorId, productId).First(&product).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return utils.ErrorRecordNotFound
		} else if err != nil {
			return err
		}

		scope, err := sequence.BottleScope(product.ID, product.SerialNumber)
		if err != nil {
			return err
		}
		today := NewMyDate(utils.Today())
		for _, in := range input {
			number, err := codes.Next(ctx, scope)
			if err != nil {
				return err
			}
			bottle := Bottle{
				FinishedProductId: product.ID,
				BottleNumber:      number,
				Volume:            in.Volume,
				DateBottled:       today,
			}
			if in.DateBottled != nil && !in.DateBottled.IsZero() {
				bottle.DateBottled = *in.DateBottled
			}
			if err := tx.Create(&bottle).Error; err != nil {
				return err
			}
			bottles = append(bottles, &bottle)
		}
		return nil
	})
	if err != nil {
		config.LogError(config.GetLogger(), "Bottle", "CreateBottles", "create bottles", map[string]any{"product_id": productId, "count": len(input)}, err)
		return nil, err
	}
	return bottles, nil
}

func GetBottle(ctx context.Context, productId int, bottleId int) (*Bottle, error) {
	creatorId, err := utils.RequireUserId(ctx)
	if err != nil {
		return nil, err
	}
	if err := utils.ValidateResourceId[FinishedProduct](ctx, creatorId, productId); err != nil {
		return nil, err
	}
	return fetchBottle(ctx, productId, bottleId)
}

// PublicBottle is what anyone holding the bottle's link may see.
type PublicBottle struct {
	BottleNumber string          `json:"bottle_number"`
	Volume       float64         `json:"volume"`
	DateBottled  MyDate          `json:"date_bottled"`
	SerialNumber string          `json:"serial_number"`
	ProductType  string          `json:"product_type"`
	StartDate    MyDate          `json:"start_date"`
	FinishDate   MyDate          `json:"finish_date"`
	Description  string          `json:"description"`
	Abv          decimal.Decimal `json:"abv"`
	Batch        *PublicBatch    `json:"batch,omitempty"`
}

// PublicBatch is the brewing summary shown next to a public bottle.
type PublicBatch struct {
	BatchNumber   string             `json:"batch_number"`
	StartDate     MyDate             `json:"start_date"`
	StartGravity  float64            `json:"start_gravity"`
	MiddleGravity *float64           `json:"middle_gravity"`
	FinalGravity  *float64           `json:"final_gravity"`
	Ingredients   []PublicIngredient `json:"ingredients"`
}

type PublicIngredient struct {
	Name   string         `json:"name"`
	Amount float64        `json:"amount"`
	Unit   IngredientUnit `json:"unit"`
}

func newPublicBatch(batch *Batch) *PublicBatch {
	if batch == nil {
		return nil
	}
	summary := &PublicBatch{
		BatchNumber:   batch.BatchNumber,
		StartDate:     batch.StartDate,
		StartGravity:  batch.StartGravity,
		MiddleGravity: batch.MiddleGravity,
		FinalGravity:  batch.FinalGravity,
		Ingredients:   make([]PublicIngredient, 0, len(batch.Ingredients)),
	}
	for _, line := range batch.Ingredients {
		item := PublicIngredient{Amount: line.Amount, Unit: line.Unit}
		if line.Ingredient != nil {
			item.Name = line.Ingredient.Name
		}
		summary.Ingredients = append(summary.Ingredients, item)
	}
	return summary
}

// GetPublicBottle needs no user and ignores ownership.
func GetPublicBottle(ctx context.Context, productId int, bottleId int) (*PublicBottle, error) {
	ctx = utils.SetSkipOwnerScopeInContext(ctx, true)

	product, err := utils.FetchSingleModel[FinishedProduct](ctx, productId, "Batch.Ingredients.Ingredient")
	if err != nil {
		return nil, err
	}
	bottle, err := fetchBottle(ctx, productId, bottleId)
	if err != nil {
		return nil, err
	}
	return &PublicBottle{
		BottleNumber: bottle.BottleNumber,
		Volume:       bottle.Volume,
		DateBottled:  bottle.DateBottled,
		SerialNumber: product.SerialNumber,
		ProductType:  product.ProductType,
		StartDate:    product.StartDate,
		FinishDate:   product.FinishDate,
		Description:  product.Description,
		Abv:          product.Abv,
		Batch:        newPublicBatch(product.Batch),
	}, nil
}

func fetchBottle(ctx context.Context, productId int, bottleId int) (*Bottle, error) {
	db := config.GetDB()
	var bottle Bottle
	err := db.WithContext(ctx).Where("finished_product_id = ? AND id = ?", productId, bottleId).First(&bottle).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, utils.ErrorRecordNotFound
	} else if err != nil {
		return nil, err
	}
	return &bottle, nil
}
