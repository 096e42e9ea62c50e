package sequence

import (
	"fmt"
	"strconv"
	"strings"
)

// Format describes how codes of one entity are stored and encoded: a prefix
// followed by a zero-padded sequence of Width digits.
type Format struct {
	Name   string
	Table  string
	Column string
	Width  int
}

var (
	BatchFormat   = Format{Name: "batch", Table: "batches", Column: "batch_number", Width: 4}
	ProductFormat = Format{Name: "finished_product", Table: "finished_products", Column: "serial_number", Width: 4}
	BottleFormat  = Format{Name: "bottle", Table: "bottles", Column: "bottle_number", Width: 2}
)

// Max is the largest sequence value the format can hold.
func (f Format) Max() int {
	m := 1
	for i := 0; i < f.Width; i++ {
		m *= 10
	}
	return m - 1
}

// Encode renders prefix + seq padded to Width. Values that need more digits
// than Width fail with ErrSequenceOverflow.
func (f Format) Encode(prefix string, seq int) (string, error) {
	if seq < 1 {
		return "", fmt.Errorf("%w: %s sequence must be positive, got %d", ErrInvalidScope, f.Name, seq)
	}
	if seq > f.Max() {
		return "", fmt.Errorf("%w: %s sequence %d does not fit %d digits", ErrSequenceOverflow, f.Name, seq, f.Width)
	}
	return fmt.Sprintf("%s%0*d", prefix, f.Width, seq), nil
}

// Parse reads the sequence from the last Width characters of code.
func (f Format) Parse(code string) (int, error) {
	_, seq, err := f.Split(code)
	return seq, err
}

// Split separates code into its prefix and sequence value.
func (f Format) Split(code string) (string, int, error) {
	if len(code) < f.Width {
		return "", 0, fmt.Errorf("%w: %s code %q shorter than %d", ErrMalformedCode, f.Name, code, f.Width)
	}
	cut := len(code) - f.Width
	suffix := code[cut:]
	if strings.TrimLeft(suffix, "0123456789") != "" {
		return "", 0, fmt.Errorf("%w: %s code %q has non-digit suffix", ErrMalformedCode, f.Name, code)
	}
	seq, err := strconv.Atoi(suffix)
	if err != nil {
		return "", 0, fmt.Errorf("%w: %s code %q: %v", ErrMalformedCode, f.Name, code, err)
	}
	return code[:cut], seq, nil
}
