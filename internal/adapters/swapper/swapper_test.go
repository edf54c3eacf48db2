package swapper

import (
	"context"
	"errors"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/voantyh/tapioca-bar-audit/internal/adapters/custody"
	"github.com/voantyh/tapioca-bar-audit/internal/domain"
	"github.com/voantyh/tapioca-bar-audit/internal/ports"
)

const (
	usdc domain.AssetID = 1
	weth domain.AssetID = 2
	dai  domain.AssetID = 3
)

var (
	queueAcct = common.HexToAddress("0x1000000000000000000000000000000000000001")
	router    = common.HexToAddress("0x1000000000000000000000000000000000000002")
	poolAB    = common.HexToAddress("0x3000000000000000000000000000000000000001")
	poolBC    = common.HexToAddress("0x3000000000000000000000000000000000000002")
	lp        = common.HexToAddress("0x4000000000000000000000000000000000000001")
	alice     = common.HexToAddress("0x2000000000000000000000000000000000000001")
)

func u(v uint64) *uint256.Int { return uint256.NewInt(v) }

// flakyCustody falla los Credit que coincidan con failCredit.
type flakyCustody struct {
	*custody.Ledger
	failCredit func(account common.Address, asset domain.AssetID) bool
}

func (f *flakyCustody) Credit(ctx context.Context, account common.Address, asset domain.AssetID, amount *uint256.Int) error {
	if f.failCredit != nil && f.failCredit(account, asset) {
		return errors.New("ledger offline")
	}
	return f.Ledger.Credit(ctx, account, asset, amount)
}

func assertReserves(t *testing.T, p *Pool, a, b uint64) {
	t.Helper()
	ra, rb := p.Reserves()
	assert.Equal(t, a, ra.Uint64())
	assert.Equal(t, b, rb.Uint64())
}

func balance(t *testing.T, l *custody.Ledger, account common.Address, asset domain.AssetID) uint64 {
	t.Helper()
	v, err := l.BalanceOf(context.Background(), account, asset)
	require.NoError(t, err)
	return v.Uint64()
}

// newPool crea un pool a/b con reservas ra/rb aportadas por lp.
func newPool(t *testing.T, l *custody.Ledger, account common.Address, a, b domain.AssetID, ra, rb, feeBps uint64) *Pool {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, l.Credit(ctx, lp, a, u(ra)))
	require.NoError(t, l.Credit(ctx, lp, b, u(rb)))
	p := NewPool(account, a, b, feeBps)
	require.NoError(t, p.AddLiquidity(ctx, l, lp, u(ra), u(rb)))
	return p
}

func TestPool_AmountOut(t *testing.T) {
	l := custody.NewLedger()
	p := newPool(t, l, poolAB, usdc, weth, 50_000, 50_000, 0)

	out, err := p.AmountOut(usdc, u(1_000))
	require.NoError(t, err)
	assert.Equal(t, uint64(980), out.Uint64()) // 1000·50000 / 51000

	fee := newPool(t, l, poolBC, weth, dai, 10_000, 10_000, 30)
	out, err = fee.AmountOut(dai, u(1_000))
	require.NoError(t, err)
	assert.Equal(t, uint64(906), out.Uint64()) // 997·10000 / 10997

	_, err = p.AmountOut(dai, u(1))
	assert.ErrorIs(t, err, domain.ErrUnsupportedRoute)
}

func TestPool_EmptyReserves(t *testing.T) {
	p := NewPool(poolAB, usdc, weth, 0)
	_, err := p.AmountOut(usdc, u(1))
	assert.ErrorIs(t, err, domain.ErrUnsupportedRoute)
}

func TestPool_SyncReserves(t *testing.T) {
	l := custody.NewLedger()
	ctx := context.Background()
	require.NoError(t, l.Credit(ctx, poolAB, usdc, u(700)))
	require.NoError(t, l.Credit(ctx, poolAB, weth, u(300)))

	p := NewPool(poolAB, usdc, weth, 0)
	require.NoError(t, p.SyncReserves(ctx, l))
	a, b := p.Reserves()
	assert.Equal(t, uint64(700), a.Uint64())
	assert.Equal(t, uint64(300), b.Uint64())
}

func TestRoute_Codec(t *testing.T) {
	data, err := EncodeRoute(Route{Path: []domain.AssetID{usdc, weth, dai}, MinOut: "42"})
	require.NoError(t, err)

	r, err := DecodeRoute(data)
	require.NoError(t, err)
	assert.Equal(t, []domain.AssetID{usdc, weth, dai}, r.Path)

	floor := u(10)
	got, err := r.minOut(floor)
	require.NoError(t, err)
	assert.Equal(t, uint64(42), got.Uint64(), "gana el mínimo más alto")

	got, err = r.minOut(u(100))
	require.NoError(t, err)
	assert.Equal(t, uint64(100), got.Uint64())

	empty, err := DecodeRoute(nil)
	require.NoError(t, err)
	path, err := empty.pathFor(usdc, dai)
	require.NoError(t, err)
	assert.Equal(t, []domain.AssetID{usdc, dai}, path)

	_, err = r.pathFor(weth, dai)
	assert.ErrorIs(t, err, domain.ErrUnsupportedRoute)

	_, err = DecodeRoute([]byte{0xff, 0x00})
	assert.Error(t, err)
}

func TestPassThrough(t *testing.T) {
	l := custody.NewLedger()
	ctx := context.Background()
	require.NoError(t, l.Credit(ctx, alice, usdc, u(500)))
	s := NewPassThrough(l, queueAcct)

	_, err := s.Quote(ctx, usdc, weth, u(1), nil)
	assert.ErrorIs(t, err, domain.ErrUnsupportedRoute)

	req := ports.SwapRequest{Caller: queueAcct, Owner: alice, Recipient: queueAcct, FromAsset: usdc, ToAsset: usdc, Amount: *u(300)}
	out, err := s.Swap(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, uint64(300), out.Uint64())
	assert.Equal(t, uint64(200), balance(t, l, alice, usdc))
	assert.Equal(t, uint64(300), balance(t, l, queueAcct, usdc))

	req.Caller = alice
	_, err = s.Swap(ctx, req)
	assert.ErrorIs(t, err, domain.ErrOnlyQueue)

	req.Caller = queueAcct
	req.MinOut = *u(301)
	_, err = s.Swap(ctx, req)
	assert.ErrorIs(t, err, domain.ErrInsufficientSwapOutput)
	assert.Equal(t, uint64(200), balance(t, l, alice, usdc))
}

func TestSingleHop_Swap(t *testing.T) {
	l := custody.NewLedger()
	ctx := context.Background()
	p := newPool(t, l, poolAB, usdc, weth, 50_000, 50_000, 0)
	require.NoError(t, l.Credit(ctx, alice, usdc, u(1_000)))
	s := NewSingleHop(l, queueAcct, p)

	req := ports.SwapRequest{Caller: queueAcct, Owner: alice, Recipient: queueAcct, FromAsset: usdc, ToAsset: weth, Amount: *u(1_000)}
	out, err := s.Swap(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, uint64(980), out.Uint64())
	assert.Equal(t, uint64(0), balance(t, l, alice, usdc))
	assert.Equal(t, uint64(980), balance(t, l, queueAcct, weth))
	assert.Equal(t, uint64(51_000), balance(t, l, poolAB, usdc))
	assert.Equal(t, uint64(49_020), balance(t, l, poolAB, weth))

	a, b := p.Reserves()
	assert.Equal(t, uint64(51_000), a.Uint64())
	assert.Equal(t, uint64(49_020), b.Uint64())
}

func TestSingleHop_Rejects(t *testing.T) {
	l := custody.NewLedger()
	ctx := context.Background()
	p := newPool(t, l, poolAB, usdc, weth, 50_000, 50_000, 0)
	require.NoError(t, l.Credit(ctx, alice, usdc, u(1_000)))
	s := NewSingleHop(l, queueAcct, p)

	req := ports.SwapRequest{Caller: alice, Owner: alice, Recipient: alice, FromAsset: usdc, ToAsset: weth, Amount: *u(1_000)}
	_, err := s.Swap(ctx, req)
	assert.ErrorIs(t, err, domain.ErrOnlyQueue)

	req.Caller = queueAcct
	req.ToAsset = dai
	_, err = s.Swap(ctx, req)
	assert.ErrorIs(t, err, domain.ErrUnsupportedRoute)

	req.ToAsset = weth
	req.MinOut = *u(981)
	_, err = s.Swap(ctx, req)
	assert.ErrorIs(t, err, domain.ErrInsufficientSwapOutput)

	req.MinOut.Clear()
	req.Amount = *u(2_000)
	_, err = s.Swap(ctx, req)
	assert.ErrorIs(t, err, domain.ErrInsufficientBalance)

	assert.Equal(t, uint64(1_000), balance(t, l, alice, usdc), "ningún rechazo mueve fondos")
	a, _ := p.Reserves()
	assert.Equal(t, uint64(50_000), a.Uint64())
}

func TestMultiHop_Swap(t *testing.T) {
	l := custody.NewLedger()
	ctx := context.Background()
	ab := newPool(t, l, poolAB, usdc, weth, 50_000, 50_000, 0)
	bc := newPool(t, l, poolBC, weth, dai, 50_000, 50_000, 0)
	require.NoError(t, l.Credit(ctx, alice, usdc, u(1_000)))
	s := NewMultiHop(l, queueAcct, router, ab, bc)

	data, err := EncodeRoute(Route{Path: []domain.AssetID{usdc, weth, dai}})
	require.NoError(t, err)

	quoted, err := s.Quote(ctx, usdc, dai, u(1_000), data)
	require.NoError(t, err)
	assert.Equal(t, uint64(961), quoted.Uint64()) // 1000 → 980 → 961

	out, err := s.Swap(ctx, ports.SwapRequest{
		Caller: queueAcct, Owner: alice, Recipient: queueAcct,
		FromAsset: usdc, ToAsset: dai, Amount: *u(1_000), Data: data,
	})
	require.NoError(t, err)
	assert.True(t, out.Eq(&quoted))
	assert.Equal(t, uint64(961), balance(t, l, queueAcct, dai))
	assert.Equal(t, uint64(0), balance(t, l, router, weth), "el router no retiene intermedios")
}

func TestMultiHop_RouteErrors(t *testing.T) {
	l := custody.NewLedger()
	ctx := context.Background()
	ab := newPool(t, l, poolAB, usdc, weth, 50_000, 50_000, 0)
	s := NewMultiHop(l, queueAcct, router, ab)

	// Sin pool weth/dai
	data, err := EncodeRoute(Route{Path: []domain.AssetID{usdc, weth, dai}})
	require.NoError(t, err)
	_, err = s.Quote(ctx, usdc, dai, u(100), data)
	assert.ErrorIs(t, err, domain.ErrUnsupportedRoute)

	// La ruta no empieza en el activo pedido
	_, err = s.Quote(ctx, weth, dai, u(100), data)
	assert.ErrorIs(t, err, domain.ErrUnsupportedRoute)

	// MinOut de la ruta por encima de lo que da el pool
	require.NoError(t, l.Credit(ctx, alice, usdc, u(1_000)))
	data, err = EncodeRoute(Route{MinOut: "1000"})
	require.NoError(t, err)
	_, err = s.Swap(ctx, ports.SwapRequest{
		Caller: queueAcct, Owner: alice, Recipient: queueAcct,
		FromAsset: usdc, ToAsset: weth, Amount: *u(1_000), Data: data,
	})
	assert.ErrorIs(t, err, domain.ErrInsufficientSwapOutput)
	assert.Equal(t, uint64(1_000), balance(t, l, alice, usdc))
}

func TestPool_AddLiquidityRollsBack(t *testing.T) {
	l := custody.NewLedger()
	ctx := context.Background()
	require.NoError(t, l.Credit(ctx, lp, usdc, u(1_000)))
	require.NoError(t, l.Credit(ctx, lp, weth, u(1_000)))
	flaky := &flakyCustody{Ledger: l, failCredit: func(account common.Address, asset domain.AssetID) bool {
		return account == poolAB && asset == weth
	}}

	p := NewPool(poolAB, usdc, weth, 0)
	err := p.AddLiquidity(ctx, flaky, lp, u(1_000), u(1_000))
	require.Error(t, err)

	assert.Equal(t, uint64(1_000), balance(t, l, lp, usdc))
	assert.Equal(t, uint64(1_000), balance(t, l, lp, weth))
	assert.Equal(t, uint64(0), balance(t, l, poolAB, usdc))
	assertReserves(t, p, 0, 0)
}

func TestSingleHop_UndoesLegsWhenCreditFails(t *testing.T) {
	l := custody.NewLedger()
	ctx := context.Background()
	p := newPool(t, l, poolAB, usdc, weth, 50_000, 50_000, 0)
	require.NoError(t, l.Credit(ctx, alice, usdc, u(1_000)))
	totalUSDC, totalWETH := l.Total(usdc), l.Total(weth)

	flaky := &flakyCustody{Ledger: l, failCredit: func(account common.Address, asset domain.AssetID) bool {
		return account == queueAcct && asset == weth
	}}
	s := NewSingleHop(flaky, queueAcct, p)

	_, err := s.Swap(ctx, ports.SwapRequest{Caller: queueAcct, Owner: alice, Recipient: queueAcct, FromAsset: usdc, ToAsset: weth, Amount: *u(1_000)})
	require.Error(t, err)

	assert.Equal(t, uint64(1_000), balance(t, l, alice, usdc))
	assert.Equal(t, uint64(50_000), balance(t, l, poolAB, usdc))
	assert.Equal(t, uint64(50_000), balance(t, l, poolAB, weth))
	assertReserves(t, p, 50_000, 50_000)
	gotUSDC, gotWETH := l.Total(usdc), l.Total(weth)
	assert.True(t, gotUSDC.Eq(&totalUSDC), "usdc total %s", gotUSDC.Dec())
	assert.True(t, gotWETH.Eq(&totalWETH), "weth total %s", gotWETH.Dec())

	flaky.failCredit = nil
	out, err := s.Swap(ctx, ports.SwapRequest{Caller: queueAcct, Owner: alice, Recipient: queueAcct, FromAsset: usdc, ToAsset: weth, Amount: *u(1_000)})
	require.NoError(t, err)
	assert.Equal(t, uint64(980), out.Uint64())
}

func TestMultiHop_UnwindsCompletedHops(t *testing.T) {
	l := custody.NewLedger()
	ctx := context.Background()
	ab := newPool(t, l, poolAB, usdc, weth, 50_000, 50_000, 0)
	bc := newPool(t, l, poolBC, weth, dai, 50_000, 50_000, 0)
	require.NoError(t, l.Credit(ctx, alice, usdc, u(1_000)))

	// Falla el último salto, cuando el primero ya movió fondos
	flaky := &flakyCustody{Ledger: l, failCredit: func(account common.Address, asset domain.AssetID) bool {
		return account == queueAcct && asset == dai
	}}
	s := NewMultiHop(flaky, queueAcct, router, ab, bc)
	data, err := EncodeRoute(Route{Path: []domain.AssetID{usdc, weth, dai}})
	require.NoError(t, err)

	_, err = s.Swap(ctx, ports.SwapRequest{
		Caller: queueAcct, Owner: alice, Recipient: queueAcct,
		FromAsset: usdc, ToAsset: dai, Amount: *u(1_000), Data: data,
	})
	require.Error(t, err)

	assert.Equal(t, uint64(1_000), balance(t, l, alice, usdc))
	assert.Equal(t, uint64(0), balance(t, l, router, weth), "el router no retiene intermedios")
	assert.Equal(t, uint64(0), balance(t, l, queueAcct, dai))
	assert.Equal(t, uint64(50_000), balance(t, l, poolAB, usdc))
	assert.Equal(t, uint64(50_000), balance(t, l, poolAB, weth))
	assert.Equal(t, uint64(50_000), balance(t, l, poolBC, weth))
	assertReserves(t, ab, 50_000, 50_000)
	assertReserves(t, bc, 50_000, 50_000)
}
