package utils

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

var (
	ErrorRecordNotFound = errors.New("record not found")
	ErrorUserIdRequired = errors.New("user id is required")
)

// ValidationError carries field -> failed rule pairs for a rejected input.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s: %s", k, e.Fields[k]))
	}
	return "validation failed: " + strings.Join(parts, ", ")
}

func NewValidationError(field string, tag string) *ValidationError {
	return &ValidationError{Fields: map[string]string{field: tag}}
}

func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
