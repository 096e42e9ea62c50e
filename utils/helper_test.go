package utils

import (
	"context"
	"errors"
	"testing"
	"time"
)

type sampleInput struct {
	Name   string  `validate:"required"`
	Volume float64 `validate:"gt=0"`
}

func TestValidateStruct(t *testing.T) {
	err := ValidateStruct(&sampleInput{Volume: 0})
	if err == nil {
		t.Fatalf("expected validation error")
	}
	var ve *ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("expected *ValidationError, got %T", err)
	}
	if ve.Fields["Name"] != "required" || ve.Fields["Volume"] != "gt" {
		t.Fatalf("unexpected fields: %v", ve.Fields)
	}
	if !IsValidationError(err) {
		t.Fatalf("IsValidationError should match")
	}
	if err := ValidateStruct(&sampleInput{Name: "x", Volume: 0.75}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestProcessValidationErrorsIgnoresOtherErrors(t *testing.T) {
	if got := ProcessValidationErrors(errors.New("boom")); len(got) != 0 {
		t.Fatalf("expected empty map, got %v", got)
	}
}

func TestRequireUserId(t *testing.T) {
	if _, err := RequireUserId(context.Background()); !errors.Is(err, ErrorUserIdRequired) {
		t.Fatalf("expected ErrorUserIdRequired, got %v", err)
	}
	ctx := SetUserIdInContext(context.Background(), 7)
	id, err := RequireUserId(ctx)
	if err != nil || id != 7 {
		t.Fatalf("expected 7, got %d (%v)", id, err)
	}
}

func TestDateOnly(t *testing.T) {
	in := time.Date(2024, 1, 31, 23, 30, 0, 0, time.FixedZone("X", -2*3600))
	got := DateOnly(in)
	want := time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Fatalf("expected %s, got %s", want, got)
	}
}

func TestUniqueSlice(t *testing.T) {
	got := UniqueSlice([]int{3, 1, 3, 2, 1})
	if len(got) != 3 || got[0] != 3 || got[1] != 1 || got[2] != 2 {
		t.Fatalf("unexpected %v", got)
	}
}
