package sequence

import (
	"errors"
	"strings"

	mysqlDriver "github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

var (
	// ErrMissingParentReference means the entity has no parent to derive a scope from.
	// It is a caller bug and is never retried.
	ErrMissingParentReference = errors.New("sequence: missing parent reference")

	ErrInvalidScope = errors.New("sequence: invalid scope")

	// ErrUniqueConstraintViolation is absorbed by Allocator.Transaction.
	ErrUniqueConstraintViolation = errors.New("sequence: unique constraint violation")

	ErrAllocationExhausted = errors.New("sequence: allocation exhausted")
	ErrSequenceOverflow    = errors.New("sequence: value exceeds format width")
	ErrMalformedCode       = errors.New("sequence: malformed code")
)

const (
	mysqlDuplicateEntry     = 1062
	mysqlDeadlock           = 1213
	postgresUniqueViolation = "23505"
	postgresSerialization   = "40001"
	postgresDeadlock        = "40P01"
)

// IsUniqueViolation reports whether err came from a unique index rejecting a row,
// whichever driver produced it.
func IsUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrUniqueConstraintViolation) || errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var me *mysqlDriver.MySQLError
	if errors.As(err, &me) && me.Number == mysqlDuplicateEntry {
		return true
	}
	var pe *pgconn.PgError
	if errors.As(err, &pe) && pe.Code == postgresUniqueViolation {
		return true
	}
	// sqlite without error translation
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// IsRetryable reports errors after which replaying the whole transaction can
// succeed: unique violations plus deadlocks and serialization failures.
func IsRetryable(err error) bool {
	if IsUniqueViolation(err) {
		return true
	}
	var me *mysqlDriver.MySQLError
	if errors.As(err, &me) && me.Number == mysqlDeadlock {
		return true
	}
	var pe *pgconn.PgError
	if errors.As(err, &pe) && (pe.Code == postgresSerialization || pe.Code == postgresDeadlock) {
		return true
	}
	return false
}
