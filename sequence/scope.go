package sequence

import (
	"fmt"
	"strings"
	"time"
)

const (
	ProductTypeWine = "WINE"
	ProductTypeMead = "MEAD"
)

var ProductTypes = []string{ProductTypeWine, ProductTypeMead}

// Scope is the set of existing rows a new code is numbered against.
type Scope struct {
	Format Format
	// Prefix is prepended to the zero-padded sequence.
	Prefix string
	// Filter selects the scope's rows in Format.Table (column -> value).
	Filter map[string]any
	// Key identifies the scope for locking and logging.
	Key string
}

func (s Scope) String() string {
	return s.Key
}

func BatchScope(creatorId int) (Scope, error) {
	if creatorId <= 0 {
		return Scope{}, fmt.Errorf("%w: batch needs a creator", ErrMissingParentReference)
	}
	return Scope{
		Format: BatchFormat,
		Prefix: fmt.Sprintf("%d-", creatorId),
		Filter: map[string]any{"creator_id": creatorId},
		Key:    fmt.Sprintf("%s:%d", BatchFormat.Name, creatorId),
	}, nil
}

// ProductScope numbers finished products per (creator, product type). The month
// of startDate only feeds the prefix; the sequence carries on across months.
func ProductScope(creatorId int, productType string, startDate time.Time) (Scope, error) {
	if creatorId <= 0 {
		return Scope{}, fmt.Errorf("%w: finished product needs a creator", ErrMissingParentReference)
	}
	if startDate.IsZero() {
		return Scope{}, fmt.Errorf("%w: finished product needs a start date", ErrMissingParentReference)
	}
	productType = NormalizeProductType(productType)
	if !ValidProductType(productType) {
		return Scope{}, fmt.Errorf("%w: unknown product type %q", ErrInvalidScope, productType)
	}
	return Scope{
		Format: ProductFormat,
		Prefix: startDate.Format("200601") + productType,
		Filter: map[string]any{"creator_id": creatorId, "product_type": productType},
		Key:    fmt.Sprintf("%s:%d:%s", ProductFormat.Name, creatorId, productType),
	}, nil
}

func BottleScope(productId int, parentSerial string) (Scope, error) {
	if productId <= 0 || strings.TrimSpace(parentSerial) == "" {
		return Scope{}, fmt.Errorf("%w: bottle needs a finished product", ErrMissingParentReference)
	}
	return Scope{
		Format: BottleFormat,
		Prefix: parentSerial,
		Filter: map[string]any{"finished_product_id": productId},
		Key:    fmt.Sprintf("%s:%d", BottleFormat.Name, productId),
	}, nil
}

func NormalizeProductType(productType string) string {
	return strings.ToUpper(strings.TrimSpace(productType))
}

func ValidProductType(productType string) bool {
	for _, t := range ProductTypes {
		if t == productType {
			return true
		}
	}
	return false
}
