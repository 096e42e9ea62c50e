package sequence

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"bitbucket.org/mmdatafocus/brewery_backend/config"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	otelcodes "go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"
)

const moduleName = "Sequence"

// Allocator hands out codes inside a transaction and replays the transaction
// when a unique index rejects one. It keeps no counters between calls.
type Allocator struct {
	retryLimit int
	locker     Locker
	logger     *logrus.Logger
	tracer     trace.Tracer
	storeFor   func(tx *gorm.DB) Store
}

type Option func(*Allocator)

// WithRetryLimit caps probes plus transaction replays for one Transaction call.
func WithRetryLimit(n int) Option {
	return func(a *Allocator) {
		if n > 0 {
			a.retryLimit = n
		}
	}
}

func WithLocker(l Locker) Option {
	return func(a *Allocator) {
		if l != nil {
			a.locker = l
		}
	}
}

func WithLogger(l *logrus.Logger) Option {
	return func(a *Allocator) {
		if l != nil {
			a.logger = l
		}
	}
}

// WithStore swaps the store built for each transaction attempt.
func WithStore(fn func(tx *gorm.DB) Store) Option {
	return func(a *Allocator) {
		if fn != nil {
			a.storeFor = fn
		}
	}
}

func New(opts ...Option) *Allocator {
	a := &Allocator{
		retryLimit: config.SequenceRetryLimit(),
		locker:     NoLock,
		logger:     config.GetLogger(),
		tracer:     otel.Tracer("brewery_backend/sequence"),
		storeFor:   func(tx *gorm.DB) Store { return NewGormStore(tx) },
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// NewFromConfig builds an allocator from SEQUENCE_* settings. The redis locker
// needs config.ConnectRedisWithRetry to have run first.
func NewFromConfig() (*Allocator, error) {
	mode := config.SequenceLockMode()
	if err := config.ValidateSequenceLockMode(mode, config.DatabaseDriver()); err != nil {
		return nil, err
	}
	opts := []Option{WithRetryLimit(config.SequenceRetryLimit())}
	switch mode {
	case config.SequenceLockRedis:
		if config.GetRedisLock() == nil {
			return nil, errors.New("SEQUENCE_LOCK=redis but redis is not connected")
		}
		opts = append(opts, WithLocker(NewRedisLocker(config.GetRedisLock(), config.SequenceLockTTL())))
	case config.SequenceLockAdvisory:
		opts = append(opts, WithLocker(AdvisoryLocker{}))
	}
	return New(opts...), nil
}

var (
	defaultMu        sync.RWMutex
	defaultAllocator *Allocator
)

// Default returns the process-wide allocator, creating a plain one on first use.
func Default() *Allocator {
	defaultMu.RLock()
	a := defaultAllocator
	defaultMu.RUnlock()
	if a != nil {
		return a
	}
	defaultMu.Lock()
	defer defaultMu.Unlock()
	if defaultAllocator == nil {
		defaultAllocator = New()
	}
	return defaultAllocator
}

func SetDefault(a *Allocator) {
	defaultMu.Lock()
	defaultAllocator = a
	defaultMu.Unlock()
}

func (a *Allocator) RetryLimit() int {
	return a.retryLimit
}

// Transaction runs fn in a database transaction. If anything in fn hits a
// unique violation (or a deadlock) the transaction is rolled back and fn runs
// again from scratch, so fn must not keep state between calls. Other errors
// roll back and are returned as is.
func (a *Allocator) Transaction(ctx context.Context, db *gorm.DB, fn func(tx *gorm.DB, codes *Codes) error) error {
	ctx, span := a.tracer.Start(ctx, "sequence.Transaction")
	defer span.End()

	b := &budget{limit: a.retryLimit}
	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		c := &Codes{
			a:      a,
			budget: b,
			held:   map[string]func(context.Context){},
			issued: map[string]int{},
		}
		err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			c.tx = tx
			c.store = a.storeFor(tx)
			return fn(tx, c)
		})
		c.release(context.WithoutCancel(ctx))

		if err == nil {
			span.SetAttributes(attribute.Int("sequence.attempts", attempt))
			return nil
		}
		if !IsRetryable(err) {
			span.RecordError(err)
			span.SetStatus(otelcodes.Error, err.Error())
			return err
		}

		a.logger.WithFields(logrus.Fields{
			"module":  moduleName,
			"attempt": attempt,
			"error":   err.Error(),
		}).Debug("conflicting write; replaying allocation")

		if !b.take() {
			cause := ErrUniqueConstraintViolation
			if !IsUniqueViolation(err) {
				cause = err
			}
			exhausted := fmt.Errorf("%w: gave up after %d attempts: %w", ErrAllocationExhausted, attempt, cause)
			config.LogError(a.logger, moduleName, "Transaction", "allocation exhausted", map[string]any{
				"attempts": attempt,
				"limit":    a.retryLimit,
			}, exhausted)
			span.RecordError(exhausted)
			span.SetStatus(otelcodes.Error, exhausted.Error())
			return exhausted
		}
	}
}

// Codes allocates within one transaction attempt.
type Codes struct {
	a      *Allocator
	tx     *gorm.DB
	store  Store
	budget *budget
	held   map[string]func(context.Context)
	// last sequence handed out per scope in this attempt, so callers may
	// allocate several codes before inserting any of them
	issued map[string]int
}

// Next returns the next free code in scope: one past the highest existing
// code, skipping candidates already taken anywhere in the table.
func (c *Codes) Next(ctx context.Context, scope Scope) (string, error) {
	ctx, span := c.a.tracer.Start(ctx, "sequence.Next", trace.WithAttributes(
		attribute.String("sequence.format", scope.Format.Name),
		attribute.String("sequence.scope", scope.Key),
	))
	defer span.End()

	if scope.Key == "" {
		return "", ErrMissingParentReference
	}
	if err := c.lock(ctx, scope.Key); err != nil {
		return "", err
	}

	next := 1
	maxCode, found, err := c.store.FindMaxCode(ctx, scope)
	if err != nil {
		return "", err
	}
	if found {
		seq, err := scope.Format.Parse(maxCode)
		if err != nil {
			return "", fmt.Errorf("highest code in %s: %w", scope.Key, err)
		}
		next = seq + 1
	}
	if last, ok := c.issued[scope.Key]; ok && last >= next {
		next = last + 1
	}

	for probes := 1; ; probes++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		if !c.budget.take() {
			return "", c.exhausted(span, scope, probes-1, nil)
		}
		code, err := scope.Format.Encode(scope.Prefix, next)
		if err != nil {
			if errors.Is(err, ErrSequenceOverflow) {
				return "", c.exhausted(span, scope, probes, err)
			}
			return "", err
		}
		exists, err := c.store.ExistsCode(ctx, scope.Format, code)
		if err != nil {
			return "", err
		}
		if !exists {
			c.issued[scope.Key] = next
			span.SetAttributes(attribute.Int("sequence.probes", probes))
			return code, nil
		}
		c.a.logger.WithFields(logrus.Fields{
			"module": moduleName,
			"scope":  scope.Key,
			"code":   code,
		}).Debug("code already taken; probing next")
		next++
	}
}

func (c *Codes) exhausted(span trace.Span, scope Scope, probes int, cause error) error {
	var err error
	if cause != nil {
		err = fmt.Errorf("%w: %s: %w", ErrAllocationExhausted, scope.Key, cause)
	} else {
		err = fmt.Errorf("%w: %s after %d probes", ErrAllocationExhausted, scope.Key, probes)
	}
	config.LogError(c.a.logger, moduleName, "Next", "allocation exhausted", map[string]any{
		"scope":  scope.Key,
		"format": scope.Format.Name,
		"probes": probes,
		"limit":  c.a.retryLimit,
	}, err)
	span.RecordError(err)
	span.SetStatus(otelcodes.Error, err.Error())
	return err
}

func (c *Codes) lock(ctx context.Context, key string) error {
	if _, ok := c.held[key]; ok {
		return nil
	}
	release, err := c.a.locker.Lock(ctx, c.tx, key)
	if err != nil {
		return err
	}
	c.held[key] = release
	return nil
}

func (c *Codes) release(ctx context.Context) {
	for key, release := range c.held {
		release(ctx)
		delete(c.held, key)
	}
}

// budget is shared by probes and replays of one Transaction call.
type budget struct {
	limit int
	used  int
}

func (b *budget) take() bool {
	if b.used >= b.limit {
		return false
	}
	b.used++
	return true
}
