package models

import (
	"database/sql/driver"
	"errors"
	"fmt"
	"strings"
	"time"

	"bitbucket.org/mmdatafocus/brewery_backend/sequence"
)

const dateLayout = "2006-01-02"

// MyDate is a calendar day carried as "YYYY-MM-DD" in JSON.
type MyDate time.Time

func NewMyDate(t time.Time) MyDate {
	t = t.UTC()
	return MyDate(time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC))
}

func (d MyDate) Time() time.Time {
	return time.Time(d)
}

func (d MyDate) IsZero() bool {
	return time.Time(d).IsZero()
}

func (d MyDate) String() string {
	return time.Time(d).Format(dateLayout)
}

func (d MyDate) MarshalJSON() ([]byte, error) {
	if d.IsZero() {
		return []byte("null"), nil
	}
	return []byte(`"` + d.String() + `"`), nil
}

func (d *MyDate) UnmarshalJSON(b []byte) error {
	str := strings.Trim(string(b), `"`)
	if str == "" || str == "null" {
		*d = MyDate{}
		return nil
	}
	t, err := time.Parse(dateLayout, str)
	if err == nil {
		*d = NewMyDate(t)
		return nil
	}
	// accept full timestamps too, keeping the calendar day of their own offset
	t, err = time.Parse(time.RFC3339, str)
	if err != nil {
		return errors.New("date must be YYYY-MM-DD")
	}
	*d = MyDate(time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC))
	return nil
}

func (d MyDate) Value() (driver.Value, error) {
	return time.Time(d), nil
}

func (d *MyDate) Scan(value interface{}) error {
	switch v := value.(type) {
	case nil:
		*d = MyDate{}
	case time.Time:
		*d = NewMyDate(v)
	case string:
		return d.UnmarshalJSON([]byte(v))
	case []byte:
		return d.UnmarshalJSON(v)
	default:
		return fmt.Errorf("cannot scan %T into MyDate", value)
	}
	return nil
}

type IngredientUnit string

const (
	IngredientUnitKilogram   IngredientUnit = "kg"
	IngredientUnitGram       IngredientUnit = "g"
	IngredientUnitLiter      IngredientUnit = "l"
	IngredientUnitMilliliter IngredientUnit = "ml"
)

func (u IngredientUnit) IsValid() bool {
	switch u {
	case IngredientUnitKilogram, IngredientUnitGram, IngredientUnitLiter, IngredientUnitMilliliter:
		return true
	}
	return false
}

const (
	ProductTypeWine = sequence.ProductTypeWine
	ProductTypeMead = sequence.ProductTypeMead
)
