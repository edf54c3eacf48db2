package queue_test

import (
	"context"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/voantyh/tapioca-bar-audit/internal/adapters/custody"
	"github.com/voantyh/tapioca-bar-audit/internal/adapters/swapper"
	"github.com/voantyh/tapioca-bar-audit/internal/application/queue"
	"github.com/voantyh/tapioca-bar-audit/internal/domain"
)

var (
	ammAcct = common.HexToAddress("0x3000000000000000000000000000000000000001")
	lp      = common.HexToAddress("0x3000000000000000000000000000000000000002")
)

// newStableEnv monta un pool usdc/bid asset 50k/50k sin fee como BidSwapper.
func newStableEnv(t *testing.T) (*env, *swapper.Pool) {
	t.Helper()
	e := newUninitialized(t)
	ctx := context.Background()
	require.NoError(t, e.ledger.Credit(ctx, lp, bidAsset, u(50_000)))
	require.NoError(t, e.ledger.Credit(ctx, lp, usdc, u(50_000)))
	pool := swapper.NewPool(ammAcct, usdc, bidAsset, 0)
	require.NoError(t, pool.AddLiquidity(ctx, e.ledger, lp, u(50_000), u(50_000)))

	require.NoError(t, e.q.Init(ctx, queue.Meta{
		QueueMeta:  baseMeta(),
		BidSwapper: swapper.NewSingleHop(e.ledger, queueAcct, pool),
	}))
	return e, pool
}

func TestPlaceBidWithStable(t *testing.T) {
	e, pool := newStableEnv(t)
	ctx := context.Background()

	expected, err := pool.AmountOut(usdc, u(1_000))
	require.NoError(t, err)
	require.Equal(t, uint64(980), expected.Uint64())

	out, err := e.q.PlaceBidWithStable(ctx, alice, alice, 1, usdc, u(1_000), nil)
	require.NoError(t, err)
	assert.Equal(t, uint64(980), out.Uint64())

	assert.Equal(t, uint64(9_000), e.balance(t, alice, usdc))
	assert.Equal(t, uint64(10_000), e.balance(t, alice, bidAsset), "el bid asset va directo al escrow")
	assert.Equal(t, uint64(980), e.balance(t, queueAcct, bidAsset))

	bid := e.q.PendingBid(1, alice)
	assert.Equal(t, uint64(980), bid.Amount.Uint64())

	ev := e.sink.events[len(e.sink.events)-1]
	assert.Equal(t, domain.EventBidPlaced, ev.Type)
	assert.Equal(t, uint64(980), ev.Amount.Uint64())
	assert.Equal(t, uint64(1_000), ev.Extra.Uint64())
}

func TestPlaceBidWithStable_MergesWithPending(t *testing.T) {
	e, _ := newStableEnv(t)
	ctx := context.Background()

	require.NoError(t, e.q.PlaceBid(ctx, alice, alice, 1, u(300)))
	out, err := e.q.PlaceBidWithStable(ctx, alice, alice, 1, usdc, u(1_000), nil)
	require.NoError(t, err)

	bid := e.q.PendingBid(1, alice)
	assert.Equal(t, 300+out.Uint64(), bid.Amount.Uint64())
}

func TestPlaceBidWithStable_QuoteBelowMinimum(t *testing.T) {
	e, _ := newStableEnv(t)

	_, err := e.q.PlaceBidWithStable(context.Background(), alice, alice, 1, usdc, u(150), nil)
	assert.ErrorIs(t, err, domain.ErrBidTooLow)
	assert.Equal(t, uint64(10_000), e.balance(t, alice, usdc))
	assert.Empty(t, e.q.PendingBids())
}

func TestPlaceBidWithStable_RouteMinOut(t *testing.T) {
	e, _ := newStableEnv(t)

	data, err := swapper.EncodeRoute(swapper.Route{Path: []domain.AssetID{usdc, bidAsset}, MinOut: "990"})
	require.NoError(t, err)

	_, err = e.q.PlaceBidWithStable(context.Background(), alice, alice, 1, usdc, u(1_000), data)
	assert.ErrorIs(t, err, domain.ErrInsufficientSwapOutput)
	assert.Equal(t, uint64(10_000), e.balance(t, alice, usdc))
	assert.Equal(t, uint64(0), e.balance(t, queueAcct, bidAsset))
	assert.Empty(t, e.q.PendingBids())
}

func TestPlaceBidWithStable_Unsupported(t *testing.T) {
	e, _ := newStableEnv(t)

	_, err := e.q.PlaceBidWithStable(context.Background(), alice, alice, 1, liqAsset, u(1_000), nil)
	assert.ErrorIs(t, err, domain.ErrUnsupportedRoute)
}

func TestPlaceBidWithStable_NoSwapper(t *testing.T) {
	e := newEnv(t, nil)

	_, err := e.q.PlaceBidWithStable(context.Background(), alice, alice, 1, usdc, u(1_000), nil)
	assert.ErrorIs(t, err, domain.ErrSwapperNotSet)
}

func TestPlaceBidWithStable_OnBehalf(t *testing.T) {
	e, _ := newStableEnv(t)
	ctx := context.Background()

	_, err := e.q.PlaceBidWithStable(ctx, bob, alice, 1, usdc, u(1_000), nil)
	assert.ErrorIs(t, err, domain.ErrUnauthorized)

	e.ledger.Approve(alice, bob, true)
	_, err = e.q.PlaceBidWithStable(ctx, bob, alice, 1, usdc, u(1_000), nil)
	require.NoError(t, err)
	assert.Equal(t, uint64(9_000), e.balance(t, alice, usdc))
	assert.Equal(t, uint64(10_000), e.balance(t, bob, usdc))
}

func TestPlaceBidWithStable_SwapFailureKeepsFunds(t *testing.T) {
	ctx := context.Background()
	ledger := custody.NewLedger()
	fund(t, ledger)
	require.NoError(t, ledger.Credit(ctx, lp, bidAsset, u(50_000)))
	require.NoError(t, ledger.Credit(ctx, lp, usdc, u(50_000)))
	pool := swapper.NewPool(ammAcct, usdc, bidAsset, 0)
	require.NoError(t, pool.AddLiquidity(ctx, ledger, lp, u(50_000), u(50_000)))

	flaky := &flakyCustody{Ledger: ledger}
	clock := &fakeClock{t: time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)}
	q := queue.New(flaky, nil, clock.Now)
	require.NoError(t, q.Init(ctx, queue.Meta{
		QueueMeta:  baseMeta(),
		BidSwapper: swapper.NewSingleHop(flaky, queueAcct, pool),
	}))
	totalBid, totalUSDC := ledger.Total(bidAsset), ledger.Total(usdc)

	flaky.failCredit = func(account common.Address, asset domain.AssetID) bool {
		return account == queueAcct && asset == bidAsset
	}
	_, err := q.PlaceBidWithStable(ctx, alice, alice, 1, usdc, u(1_000), nil)
	require.Error(t, err)

	bal, _ := ledger.BalanceOf(ctx, alice, usdc)
	assert.Equal(t, uint64(10_000), bal.Uint64())
	gotBid, gotUSDC := ledger.Total(bidAsset), ledger.Total(usdc)
	assert.True(t, gotBid.Eq(&totalBid), "bid asset total %s", gotBid.Dec())
	assert.True(t, gotUSDC.Eq(&totalUSDC), "usdc total %s", gotUSDC.Dec())
	ra, rb := pool.Reserves()
	assert.Equal(t, uint64(50_000), ra.Uint64())
	assert.Equal(t, uint64(50_000), rb.Uint64())
	assert.Empty(t, q.PendingBids())

	flaky.failCredit = nil
	out, err := q.PlaceBidWithStable(ctx, alice, alice, 1, usdc, u(1_000), nil)
	require.NoError(t, err)
	assert.Equal(t, uint64(980), out.Uint64())
}
