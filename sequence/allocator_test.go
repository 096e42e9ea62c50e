package sequence

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"sync"
	"testing"
	"time"

	"bitbucket.org/mmdatafocus/brewery_backend/config"
	"gorm.io/gorm"
)

type testBatch struct {
	ID          int
	CreatorId   int
	BatchNumber string `gorm:"size:50;uniqueIndex"`
	DeletedAt   gorm.DeletedAt
}

func (testBatch) TableName() string { return "batches" }

type testProduct struct {
	ID           int
	CreatorId    int
	ProductType  string `gorm:"size:4"`
	SerialNumber string `gorm:"size:50;uniqueIndex"`
}

func (testProduct) TableName() string { return "finished_products" }

type testBottle struct {
	ID                int
	FinishedProductId int
	BottleNumber      string `gorm:"size:50;uniqueIndex"`
}

func (testBottle) TableName() string { return "bottles" }

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := config.OpenDatabase(config.DriverSQLite, filepath.Join(t.TempDir(), "sequence.db"))
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	// one connection: concurrent transactions queue instead of hitting SQLITE_BUSY
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	if err := db.AutoMigrate(&testBatch{}, &testProduct{}, &testBottle{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

func createBatch(ctx context.Context, a *Allocator, db *gorm.DB, creatorId int) (string, error) {
	var number string
	err := a.Transaction(ctx, db, func(tx *gorm.DB, codes *Codes) error {
		scope, err := BatchScope(creatorId)
		if err != nil {
			return err
		}
		code, err := codes.Next(ctx, scope)
		if err != nil {
			return err
		}
		if err := tx.Create(&testBatch{CreatorId: creatorId, BatchNumber: code}).Error; err != nil {
			return err
		}
		number = code
		return nil
	})
	return number, err
}

func createProduct(ctx context.Context, a *Allocator, db *gorm.DB, creatorId int, productType string, start time.Time) (string, error) {
	var serial string
	err := a.Transaction(ctx, db, func(tx *gorm.DB, codes *Codes) error {
		scope, err := ProductScope(creatorId, productType, start)
		if err != nil {
			return err
		}
		code, err := codes.Next(ctx, scope)
		if err != nil {
			return err
		}
		if err := tx.Create(&testProduct{CreatorId: creatorId, ProductType: productType, SerialNumber: code}).Error; err != nil {
			return err
		}
		serial = code
		return nil
	})
	return serial, err
}

func month(year int, m time.Month) time.Time {
	return time.Date(year, m, 10, 0, 0, 0, 0, time.UTC)
}

func TestBatchNumbersAreSequentialPerCreator(t *testing.T) {
	db := openTestDB(t)
	a := New(WithRetryLimit(1000))
	ctx := context.Background()

	for i := 1; i <= 3; i++ {
		got, err := createBatch(ctx, a, db, 7)
		if err != nil {
			t.Fatalf("create batch %d: %v", i, err)
		}
		want := fmt.Sprintf("7-%04d", i)
		if got != want {
			t.Fatalf("expected %s, got %s", want, got)
		}
	}

	got, err := createBatch(ctx, a, db, 8)
	if err != nil {
		t.Fatalf("create batch for creator 8: %v", err)
	}
	if got != "8-0001" {
		t.Fatalf("expected 8-0001, got %s", got)
	}
}

func TestDeletedBatchStillCounts(t *testing.T) {
	db := openTestDB(t)
	a := New()
	ctx := context.Background()

	first, err := createBatch(ctx, a, db, 7)
	if err != nil || first != "7-0001" {
		t.Fatalf("expected 7-0001, got %s (%v)", first, err)
	}
	if err := db.Where("batch_number = ?", first).Delete(&testBatch{}).Error; err != nil {
		t.Fatalf("soft delete: %v", err)
	}

	second, err := createBatch(ctx, a, db, 7)
	if err != nil {
		t.Fatalf("create second batch: %v", err)
	}
	if second != "7-0002" {
		t.Fatalf("expected 7-0002 after deleting the first batch, got %s", second)
	}
}

func TestFailedTransactionConsumesNothing(t *testing.T) {
	db := openTestDB(t)
	a := New()
	ctx := context.Background()
	errInvalid := errors.New("start gravity must be positive")

	err := a.Transaction(ctx, db, func(tx *gorm.DB, codes *Codes) error {
		scope, _ := BatchScope(7)
		code, err := codes.Next(ctx, scope)
		if err != nil {
			return err
		}
		if err := tx.Create(&testBatch{CreatorId: 7, BatchNumber: code}).Error; err != nil {
			return err
		}
		return errInvalid
	})
	if !errors.Is(err, errInvalid) {
		t.Fatalf("expected the workflow error back, got %v", err)
	}

	got, err := createBatch(ctx, a, db, 7)
	if err != nil || got != "7-0001" {
		t.Fatalf("expected 7-0001 after rollback, got %s (%v)", got, err)
	}
}

func TestProductSerialSkipsCodeTakenByAnotherCreator(t *testing.T) {
	db := openTestDB(t)
	a := New()
	ctx := context.Background()

	if err := db.Create(&testProduct{CreatorId: 1, ProductType: "WINE", SerialNumber: "202401WINE0001"}).Error; err != nil {
		t.Fatalf("seed: %v", err)
	}

	got, err := createProduct(ctx, a, db, 2, "WINE", month(2024, time.January))
	if err != nil {
		t.Fatalf("create product: %v", err)
	}
	if got != "202401WINE0002" {
		t.Fatalf("expected 202401WINE0002, got %s", got)
	}
}

func TestProductSequenceCarriesAcrossMonths(t *testing.T) {
	db := openTestDB(t)
	a := New()
	ctx := context.Background()

	steps := []struct {
		start time.Time
		want  string
	}{
		{month(2024, time.January), "202401WINE0001"},
		{month(2024, time.February), "202402WINE0002"},
		// backdated product keeps counting up
		{month(2023, time.December), "202312WINE0003"},
		{month(2024, time.March), "202403WINE0004"},
	}
	for _, s := range steps {
		got, err := createProduct(ctx, a, db, 7, "WINE", s.start)
		if err != nil {
			t.Fatalf("create product: %v", err)
		}
		if got != s.want {
			t.Fatalf("expected %s, got %s", s.want, got)
		}
	}

	// MEAD is its own scope
	got, err := createProduct(ctx, a, db, 7, "MEAD", month(2024, time.March))
	if err != nil || got != "202403MEAD0001" {
		t.Fatalf("expected 202403MEAD0001, got %s (%v)", got, err)
	}
}

func TestBottleNumbersInOneTransaction(t *testing.T) {
	db := openTestDB(t)
	a := New()
	ctx := context.Background()

	var numbers []string
	err := a.Transaction(ctx, db, func(tx *gorm.DB, codes *Codes) error {
		numbers = nil
		scope, err := BottleScope(12, "202401WINE0001")
		if err != nil {
			return err
		}
		// allocate everything first, insert afterwards
		for i := 0; i < 11; i++ {
			code, err := codes.Next(ctx, scope)
			if err != nil {
				return err
			}
			numbers = append(numbers, code)
		}
		for _, n := range numbers {
			if err := tx.Create(&testBottle{FinishedProductId: 12, BottleNumber: n}).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("bottle transaction: %v", err)
	}
	if numbers[0] != "202401WINE000101" {
		t.Fatalf("expected first bottle 202401WINE000101, got %s", numbers[0])
	}
	if numbers[10] != "202401WINE000111" {
		t.Fatalf("expected eleventh bottle 202401WINE000111, got %s", numbers[10])
	}
}

func TestBottleOverflowIsExhaustion(t *testing.T) {
	db := openTestDB(t)
	a := New()
	ctx := context.Background()

	if err := db.Create(&testBottle{FinishedProductId: 12, BottleNumber: "202401WINE000199"}).Error; err != nil {
		t.Fatalf("seed: %v", err)
	}
	err := a.Transaction(ctx, db, func(tx *gorm.DB, codes *Codes) error {
		scope, _ := BottleScope(12, "202401WINE0001")
		_, err := codes.Next(ctx, scope)
		return err
	})
	if !errors.Is(err, ErrAllocationExhausted) {
		t.Fatalf("expected ErrAllocationExhausted, got %v", err)
	}
	if !errors.Is(err, ErrSequenceOverflow) {
		t.Fatalf("expected ErrSequenceOverflow in chain, got %v", err)
	}
}

func TestMissingScopeIsRejected(t *testing.T) {
	db := openTestDB(t)
	a := New()
	ctx := context.Background()

	err := a.Transaction(ctx, db, func(tx *gorm.DB, codes *Codes) error {
		_, err := codes.Next(ctx, Scope{Format: BatchFormat})
		return err
	})
	if !errors.Is(err, ErrMissingParentReference) {
		t.Fatalf("expected ErrMissingParentReference, got %v", err)
	}
}

// takenStore reports every candidate as taken.
type takenStore struct{}

func (takenStore) FindMaxCode(context.Context, Scope) (string, bool, error) {
	return "", false, nil
}

func (takenStore) ExistsCode(context.Context, Format, string) (bool, error) {
	return true, nil
}

func TestExhaustionWhenEveryCandidateIsTaken(t *testing.T) {
	db := openTestDB(t)
	a := New(WithRetryLimit(5), WithStore(func(*gorm.DB) Store { return takenStore{} }))
	ctx := context.Background()

	_, err := createBatch(ctx, a, db, 7)
	if !errors.Is(err, ErrAllocationExhausted) {
		t.Fatalf("expected ErrAllocationExhausted, got %v", err)
	}
	var count int64
	db.Table("batches").Count(&count)
	if count != 0 {
		t.Fatalf("expected nothing persisted, found %d rows", count)
	}
}

// staleStore misses the scope's rows on its first lookup, the way a
// concurrent writer that committed after our snapshot would.
type staleStore struct {
	*GormStore
	stale *bool
}

func (s staleStore) FindMaxCode(ctx context.Context, scope Scope) (string, bool, error) {
	if *s.stale {
		*s.stale = false
		return "", false, nil
	}
	return s.GormStore.FindMaxCode(ctx, scope)
}

func (s staleStore) ExistsCode(ctx context.Context, format Format, code string) (bool, error) {
	if code == "7-0001" && format.Name == BatchFormat.Name {
		// pretend the other writer's row is not visible yet
		return false, nil
	}
	return s.GormStore.ExistsCode(ctx, format, code)
}

func TestTransactionReplaysOnUniqueViolation(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	if err := db.Create(&testBatch{CreatorId: 7, BatchNumber: "7-0001"}).Error; err != nil {
		t.Fatalf("seed: %v", err)
	}

	stale := true
	a := New(WithStore(func(tx *gorm.DB) Store {
		return staleStore{GormStore: NewGormStore(tx), stale: &stale}
	}))

	attempts := 0
	var number string
	err := a.Transaction(ctx, db, func(tx *gorm.DB, codes *Codes) error {
		attempts++
		scope, _ := BatchScope(7)
		code, err := codes.Next(ctx, scope)
		if err != nil {
			return err
		}
		if err := tx.Create(&testBatch{CreatorId: 7, BatchNumber: code}).Error; err != nil {
			return err
		}
		number = code
		return nil
	})
	if err != nil {
		t.Fatalf("expected replay to succeed, got %v", err)
	}
	if attempts != 2 {
		t.Fatalf("expected 2 attempts, got %d", attempts)
	}
	if number != "7-0002" {
		t.Fatalf("expected 7-0002, got %s", number)
	}
}

func TestUniqueViolationReplayIsBounded(t *testing.T) {
	db := openTestDB(t)
	a := New(WithRetryLimit(3))
	ctx := context.Background()

	attempts := 0
	err := a.Transaction(ctx, db, func(tx *gorm.DB, codes *Codes) error {
		attempts++
		return gorm.ErrDuplicatedKey
	})
	if !errors.Is(err, ErrAllocationExhausted) || !errors.Is(err, ErrUniqueConstraintViolation) {
		t.Fatalf("expected exhausted unique violation, got %v", err)
	}
	if attempts != 4 {
		t.Fatalf("expected first run plus 3 replays, got %d", attempts)
	}
}

func TestOtherErrorsAreNotReplayed(t *testing.T) {
	db := openTestDB(t)
	a := New()
	ctx := context.Background()

	boom := errors.New("boom")
	attempts := 0
	err := a.Transaction(ctx, db, func(tx *gorm.DB, codes *Codes) error {
		attempts++
		return boom
	})
	if !errors.Is(err, boom) || attempts != 1 {
		t.Fatalf("expected boom after one attempt, got %v after %d", err, attempts)
	}
}

func TestCancelledContextPersistsNothing(t *testing.T) {
	db := openTestDB(t)
	a := New()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := createBatch(ctx, a, db, 7); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	var count int64
	db.Table("batches").Count(&count)
	if count != 0 {
		t.Fatalf("expected nothing persisted, found %d rows", count)
	}
}

// The sqlite pool holds one connection, so these goroutines commit one after
// another. This checks that no allocator state leaks between calls and the
// numbers stay distinct and contiguous. It does not exercise two transactions
// racing for the same code; TestTransactionReplaysOnUniqueViolation and the
// MySQL run in integration_test.go cover that path.
func TestConcurrentBatchCreationYieldsDistinctContiguousNumbers(t *testing.T) {
	db := openTestDB(t)
	a := New()
	ctx := context.Background()

	const prev = 3
	for i := 0; i < prev; i++ {
		if _, err := createBatch(ctx, a, db, 7); err != nil {
			t.Fatalf("seed batch: %v", err)
		}
	}

	const k = 20
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		numbers []string
		errs    []error
	)
	for i := 0; i < k; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			n, err := createBatch(ctx, a, db, 7)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				errs = append(errs, err)
				return
			}
			numbers = append(numbers, n)
		}()
	}
	wg.Wait()

	if len(errs) > 0 {
		t.Fatalf("unexpected errors: %v", errs)
	}
	sort.Strings(numbers)
	for i, n := range numbers {
		want := fmt.Sprintf("7-%04d", prev+i+1)
		if n != want {
			t.Fatalf("expected %s at position %d, got %s (all: %v)", want, i, n, numbers)
		}
	}
}

type countingLocker struct {
	mu       sync.Mutex
	locks    map[string]int
	releases int
}

func (l *countingLocker) Lock(_ context.Context, _ *gorm.DB, key string) (func(context.Context), error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.locks == nil {
		l.locks = map[string]int{}
	}
	l.locks[key]++
	return func(context.Context) {
		l.mu.Lock()
		l.releases++
		l.mu.Unlock()
	}, nil
}

func TestScopeLockTakenOncePerTransaction(t *testing.T) {
	db := openTestDB(t)
	l := &countingLocker{}
	a := New(WithLocker(l))
	ctx := context.Background()

	err := a.Transaction(ctx, db, func(tx *gorm.DB, codes *Codes) error {
		scope, _ := BottleScope(12, "202401WINE0001")
		for i := 0; i < 3; i++ {
			if _, err := codes.Next(ctx, scope); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("transaction: %v", err)
	}
	if l.locks["bottle:12"] != 1 {
		t.Fatalf("expected one lock on bottle:12, got %d", l.locks["bottle:12"])
	}
	if l.releases != 1 {
		t.Fatalf("expected lock released once, got %d", l.releases)
	}
}
