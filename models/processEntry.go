package models

import (
	"context"
	"strings"
	"time"

	"bitbucket.org/mmdatafocus/brewery_backend/config"
	"bitbucket.org/mmdatafocus/brewery_backend/utils"
)

type ProcessEntry struct {
	ID          int       `gorm:"primary_key" json:"id"`
	BatchId     int       `gorm:"not null;index" json:"batch_id"`
	Date        MyDate    `gorm:"type:date;not null" json:"date"`
	Description string    `gorm:"type:text;not null" json:"description"`
	CreatedAt   time.Time `gorm:"autoCreateTime" json:"created_at"`
}

type NewProcessEntry struct {
	Date        MyDate `json:"date"`
	Description string `json:"description" validate:"required"`
}

func (input *NewProcessEntry) validate() error {
	input.Description = strings.TrimSpace(input.Description)
	if err := utils.ValidateStruct(input); err != nil {
		return err
	}
	if input.Date.IsZero() {
		return utils.NewValidationError("Date", "required")
	}
	return nil
}

func AddProcessEntry(ctx context.Context, batchId int, input *NewProcessEntry) (*ProcessEntry, error) {
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
	entry := ProcessEntry{
		BatchId:     batchId,
		Date:        input.Date,
		Description: input.Description,
	}
	if err := db.WithContext(ctx).Create(&entry).Error; err != nil {
		return nil, err
	}
	return &entry, nil
}

// processSummary renders entries as "YYYY-MM-DD: text" lines.
func processSummary(entries []ProcessEntry) string {
	lines := make([]string, 0, len(entries))
	for _, e := range entries {
		lines = append(lines, e.Date.String()+": "+e.Description)
	}
	return strings.Join(lines, "\n")
}
