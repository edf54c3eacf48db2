package storage_test

import (
	"context"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/voantyh/tapioca-bar-audit/internal/adapters/storage"
	"github.com/voantyh/tapioca-bar-audit/internal/domain"
)

var (
	alice = common.HexToAddress("0xA11CE00000000000000000000000000000000001")
	bob   = common.HexToAddress("0xB0B0000000000000000000000000000000000002")
)

func newDB(t *testing.T) *storage.SQLiteStorage {
	t.Helper()
	db, err := storage.NewSQLiteStorage(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func makeEvent(typ domain.EventType, at time.Time, amount uint64) domain.Event {
	return domain.Event{
		ID:       string(typ) + "-" + at.Format(time.RFC3339Nano),
		Type:     typ,
		At:       at,
		Caller:   alice,
		Account:  bob,
		Pool:     3,
		Position: -1,
		Amount:   *uint256.NewInt(amount),
	}
}

func TestSQLiteStorage_LoadSnapshot_Empty(t *testing.T) {
	db := newDB(t)

	_, ok, err := db.LoadSnapshot(context.Background())
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSQLiteStorage_SnapshotRoundTrip(t *testing.T) {
	db := newDB(t)
	ctx := context.Background()

	snap := domain.Snapshot{
		Version: domain.SnapshotVersion,
		Meta: domain.MetaSnapshot{
			ActivationDelayNs: int64(10 * time.Minute),
			MinBidAmount:      "200",
			DefaultBidAmount:  "1000",
			PoolMinimums:      map[int]string{4: "500"},
			FeeBps:            50,
			PremiumStepBps:    100,
			Market:            bob.Hex(),
			MarketName:        "tETH",
		},
		Pools: []domain.PoolSnapshot{{
			Pool:     2,
			NextPull: 1,
			Pending:  []domain.PendingSnapshot{{Bidder: alice.Hex(), Amount: "300", TimestampNs: 42}},
			Entries: []domain.EntrySnapshot{
				{Bidder: bob.Hex(), Amount: "0", Initial: "250", TimestampNs: 7},
				{Bidder: alice.Hex(), Amount: "120", Initial: "400", TimestampNs: 9},
			},
			UserEntries: map[string][]int{alice.Hex(): {1}},
		}},
		BalancesDue: map[string]string{bob.Hex(): "252"},
	}
	require.NoError(t, db.SaveSnapshot(ctx, snap))

	got, ok, err := db.LoadSnapshot(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, snap, got)
}

func TestSQLiteStorage_SaveSnapshot_Overwrites(t *testing.T) {
	db := newDB(t)
	ctx := context.Background()

	first := domain.Snapshot{Version: domain.SnapshotVersion, Meta: domain.MetaSnapshot{MarketName: "first"}}
	second := domain.Snapshot{Version: domain.SnapshotVersion, Meta: domain.MetaSnapshot{MarketName: "second"}}
	require.NoError(t, db.SaveSnapshot(ctx, first))
	require.NoError(t, db.SaveSnapshot(ctx, second))

	got, ok, err := db.LoadSnapshot(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "second", got.Meta.MarketName)
}

func TestSQLiteStorage_PublishAndGetEvents(t *testing.T) {
	db := newDB(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Microsecond)

	ev1 := makeEvent(domain.EventBidPlaced, now, 500)
	ev2 := makeEvent(domain.EventBidExecuted, now.Add(time.Second), 495)
	ev2.Extra = *uint256.NewInt(5)
	ev2.Detail = "bid 500 liquidated 505"
	ev2.Position = 0
	require.NoError(t, db.Publish(ctx, []domain.Event{ev1, ev2}))

	events, err := db.GetEvents(ctx, now.Add(-time.Minute), now.Add(time.Minute))
	require.NoError(t, err)
	require.Len(t, events, 2)

	// Orden de inserción
	assert.Equal(t, domain.EventBidPlaced, events[0].Type)
	assert.Equal(t, domain.EventBidExecuted, events[1].Type)
	assert.Equal(t, uint64(495), events[1].Amount.Uint64())
	assert.Equal(t, uint64(5), events[1].Extra.Uint64())
	assert.Equal(t, "bid 500 liquidated 505", events[1].Detail)
	assert.Equal(t, bob, events[1].Account)
	assert.Equal(t, 3, events[1].Pool)
	assert.Equal(t, 0, events[1].Position)
	assert.True(t, ev2.At.Equal(events[1].At))
}

func TestSQLiteStorage_PublishEmptySlice(t *testing.T) {
	db := newDB(t)
	assert.NoError(t, db.Publish(context.Background(), nil))
}

func TestSQLiteStorage_Publish_DuplicateIDRollsBack(t *testing.T) {
	db := newDB(t)
	ctx := context.Background()
	now := time.Now().UTC()

	ev := makeEvent(domain.EventBidPlaced, now, 1)
	err := db.Publish(ctx, []domain.Event{ev, ev})
	require.Error(t, err)

	events, err := db.GetEvents(ctx, now.Add(-time.Minute), now.Add(time.Minute))
	require.NoError(t, err)
	assert.Empty(t, events, "la transacción no debe dejar eventos a medias")
}

func TestSQLiteStorage_GetEvents_Range(t *testing.T) {
	db := newDB(t)
	ctx := context.Background()
	base := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, db.Publish(ctx, []domain.Event{
		makeEvent(domain.EventBidPlaced, base, 1),
		makeEvent(domain.EventBidActivated, base.Add(time.Hour), 1),
		makeEvent(domain.EventRedeemed, base.Add(2*time.Hour), 1),
	}))

	events, err := db.GetEvents(ctx, base.Add(30*time.Minute), base.Add(90*time.Minute))
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, domain.EventBidActivated, events[0].Type)
}

func TestSQLiteStorage_PruneEvents(t *testing.T) {
	db := newDB(t)
	ctx := context.Background()
	base := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, db.Publish(ctx, []domain.Event{
		makeEvent(domain.EventBidPlaced, base, 1),
		makeEvent(domain.EventBidActivated, base.Add(time.Hour), 1),
	}))

	n, err := db.PruneEvents(ctx, base.Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	events, err := db.GetEvents(ctx, base.Add(-time.Hour), base.Add(2*time.Hour))
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, domain.EventBidActivated, events[0].Type)
}

func TestSQLiteStorage_Custody_CreditDebit(t *testing.T) {
	db := newDB(t)
	ctx := context.Background()

	require.NoError(t, db.Credit(ctx, alice, 1, uint256.NewInt(1_000)))
	require.NoError(t, db.Credit(ctx, alice, 1, uint256.NewInt(500)))
	require.NoError(t, db.Debit(ctx, alice, 1, uint256.NewInt(300)))

	bal, err := db.BalanceOf(ctx, alice, 1)
	require.NoError(t, err)
	assert.Equal(t, uint64(1_200), bal.Uint64())

	// Otro activo, otra cuenta: independientes
	other, err := db.BalanceOf(ctx, alice, 2)
	require.NoError(t, err)
	assert.True(t, other.IsZero())
	other, err = db.BalanceOf(ctx, bob, 1)
	require.NoError(t, err)
	assert.True(t, other.IsZero())
}

func TestSQLiteStorage_Custody_DebitInsufficient(t *testing.T) {
	db := newDB(t)
	ctx := context.Background()

	require.NoError(t, db.Credit(ctx, alice, 1, uint256.NewInt(100)))
	err := db.Debit(ctx, alice, 1, uint256.NewInt(101))
	require.ErrorIs(t, err, domain.ErrInsufficientBalance)

	bal, err := db.BalanceOf(ctx, alice, 1)
	require.NoError(t, err)
	assert.Equal(t, uint64(100), bal.Uint64(), "un debit fallido no toca el saldo")
}

func TestSQLiteStorage_Custody_LargeAmounts(t *testing.T) {
	db := newDB(t)
	ctx := context.Background()

	big, err := uint256.FromDecimal("1000000000000000000000000000000") // 1e30
	require.NoError(t, err)
	require.NoError(t, db.Credit(ctx, alice, 1, big))

	bal, err := db.BalanceOf(ctx, alice, 1)
	require.NoError(t, err)
	assert.True(t, bal.Eq(big))

	max := new(uint256.Int).SetAllOne()
	err = db.Credit(ctx, alice, 1, max)
	assert.ErrorIs(t, err, domain.ErrAmountOverflow)
}

func TestSQLiteStorage_Custody_Approve(t *testing.T) {
	db := newDB(t)
	ctx := context.Background()

	ok, err := db.Allowed(ctx, alice, bob)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, db.Approve(ctx, alice, bob, true))
	require.NoError(t, db.Approve(ctx, alice, bob, true)) // idempotente
	ok, err = db.Allowed(ctx, alice, bob)
	require.NoError(t, err)
	assert.True(t, ok)

	// La aprobación no es simétrica
	ok, err = db.Allowed(ctx, bob, alice)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, db.Approve(ctx, alice, bob, false))
	ok, err = db.Allowed(ctx, alice, bob)
	require.NoError(t, err)
	assert.False(t, ok)
}
