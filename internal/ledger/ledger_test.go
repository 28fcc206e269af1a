package ledger_test

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/mmynk/splitledger/internal/ledger"
	"github.com/mmynk/splitledger/internal/models"
	"github.com/mmynk/splitledger/internal/storage"
	"github.com/mmynk/splitledger/internal/storage/sqlite"
)

// plainHasher keeps tests fast; bcrypt is covered in internal/auth.
type plainHasher struct{}

func (plainHasher) Hash(password string) (string, error) { return "plain:" + password, nil }

func (plainHasher) Verify(hash, password string) error {
	if hash != "plain:"+password {
		return fmt.Errorf("mismatch")
	}
	return nil
}

// countingRecorder records outcomes reported by the engine.
type countingRecorder struct {
	membership atomic.Int64
	batches    atomic.Int64
	rolled     atomic.Int64
	skipped    atomic.Int64
}

func (r *countingRecorder) MembershipMutation(string, string) { r.membership.Add(1) }
func (r *countingRecorder) AllocationBatch(string)            { r.batches.Add(1) }
func (r *countingRecorder) Rollover(result string) {
	switch result {
	case "rolled":
		r.rolled.Add(1)
	case "skipped":
		r.skipped.Add(1)
	}
}

type fixture struct {
	*ledger.Ledger
	store   storage.Store
	metrics *countingRecorder
	codes   atomic.Int64
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	store, err := sqlite.New(filepath.Join(t.TempDir(), "ledger.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	f := &fixture{store: store, metrics: &countingRecorder{}}
	f.Ledger = ledger.New(store, plainHasher{}, ledger.Options{
		Timeout: 10 * time.Second,
		Logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
		Metrics: f.metrics,
		InviteCode: func() (string, error) {
			return fmt.Sprintf("code-%d", f.codes.Add(1)), nil
		},
	})
	return f
}

func (f *fixture) user(t *testing.T, name string) *models.User {
	t.Helper()
	u, err := f.Users.Register(context.Background(), name, name+"@example.com", "secret123")
	require.NoError(t, err)
	return u
}

func (f *fixture) group(t *testing.T, creator *models.User, name string) *models.Group {
	t.Helper()
	g, err := f.Membership.CreateGroup(context.Background(), creator.ID, name)
	require.NoError(t, err)
	return g
}

func (f *fixture) join(t *testing.T, u *models.User, g *models.Group) {
	t.Helper()
	_, err := f.Membership.RedeemInvite(context.Background(), u.ID, g.InviteCode)
	require.NoError(t, err)
}

func amount(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}
