// Package ledger is the expense-ledger consistency engine.
//
// It keeps group membership, topic membership, expense participation and the
// recurrence history mutually consistent. Every operation goes through an
// explicitly passed storage.Store; multi-record mutations run inside
// Store.WithinTx so a failure never leaves a half-applied invariant behind.
//
// Errors belong to a small taxonomy: ErrConflict, ErrNotFound, ErrForbidden,
// *ValidationError (matches ErrValidation) and ErrTransient.
package ledger

import (
	"context"
	"errors"
	"log/slog"
	"time"

	gonanoid "github.com/matoous/go-nanoid/v2"

	"github.com/mmynk/splitledger/internal/storage"
)

// DefaultTimeout bounds every operation when Options.Timeout is zero.
const DefaultTimeout = 5 * time.Second

// Recorder receives operation outcomes. internal/metrics implements it.
type Recorder interface {
	MembershipMutation(op, result string)
	AllocationBatch(result string)
	Rollover(result string)
}

type nopRecorder struct{}

func (nopRecorder) MembershipMutation(string, string) {}
func (nopRecorder) AllocationBatch(string)            {}
func (nopRecorder) Rollover(string)                   {}

// Options configures the engine. The zero value is usable.
type Options struct {
	// Timeout applies to each operation. Expiry surfaces as ErrTransient.
	Timeout time.Duration

	Logger  *slog.Logger
	Metrics Recorder

	// Now returns the current time. Defaults to time.Now.
	Now func() time.Time

	// InviteCode generates group invite codes. Defaults to a 21 character nanoid.
	InviteCode func() (string, error)
}

func (o Options) withDefaults() Options {
	if o.Timeout <= 0 {
		o.Timeout = DefaultTimeout
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	if o.Metrics == nil {
		o.Metrics = nopRecorder{}
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	if o.InviteCode == nil {
		o.InviteCode = func() (string, error) { return gonanoid.New() }
	}
	return o
}

// Ledger bundles the engine services around one store.
type Ledger struct {
	Membership *MembershipService
	Topics     *TopicService
	Allocation *AllocationService
	Expenses   *ExpenseService
	Query      *QueryService
	Users      *UserService
}

// New builds every service over store.
func New(store storage.Store, hasher PasswordHasher, opts Options) *Ledger {
	b := &base{store: store, opts: opts.withDefaults()}
	return &Ledger{
		Membership: &MembershipService{base: b},
		Topics:     &TopicService{base: b},
		Allocation: &AllocationService{base: b},
		Expenses:   &ExpenseService{base: b},
		Query:      &QueryService{base: b},
		Users:      &UserService{base: b, hasher: hasher},
	}
}

// base holds what every service shares.
type base struct {
	store storage.Store
	opts  Options
}

func (b *base) bound(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, b.opts.Timeout)
}

func (b *base) tx(ctx context.Context, fn func(ctx context.Context, tx storage.Store) error) error {
	return b.store.WithinTx(ctx, fn)
}

func (b *base) now() time.Time {
	return b.opts.Now().UTC()
}

func (b *base) log() *slog.Logger {
	return b.opts.Logger
}

func result(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrConflict):
		return "conflict"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrForbidden):
		return "forbidden"
	case errors.Is(err, ErrValidation):
		return "invalid"
	case errors.Is(err, ErrTransient):
		return "transient"
	}
	return "error"
}
