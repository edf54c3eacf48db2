package swapper

import (
	"context"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/voantyh/tapioca-bar-audit/internal/domain"
	"github.com/voantyh/tapioca-bar-audit/internal/ports"
)

// Pool es un pool de producto constante (x·y = k) entre dos activos. Sus
// reservas viven en custody bajo la cuenta del pool.
type Pool struct {
	mu       sync.Mutex
	account  common.Address
	assetA   domain.AssetID
	assetB   domain.AssetID
	reserveA uint256.Int
	reserveB uint256.Int
	feeBps   uint64
}

// NewPool crea un pool vacío. Hay que añadir liquidez antes de usarlo.
func NewPool(account common.Address, assetA, assetB domain.AssetID, feeBps uint64) *Pool {
	return &Pool{account: account, assetA: assetA, assetB: assetB, feeBps: feeBps}
}

// Pair devuelve los dos activos del pool.
func (p *Pool) Pair() (domain.AssetID, domain.AssetID) {
	return p.assetA, p.assetB
}

// Reserves devuelve las reservas actuales.
func (p *Pool) Reserves() (uint256.Int, uint256.Int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.reserveA, p.reserveB
}

// AddLiquidity mueve amountA y amountB del provider a la cuenta del pool.
func (p *Pool) AddLiquidity(ctx context.Context, custody ports.Custody, provider common.Address, amountA, amountB *uint256.Int) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	l := newLegs(custody)
	for _, step := range []func() error{
		func() error { return l.debit(ctx, provider, p.assetA, amountA) },
		func() error { return l.debit(ctx, provider, p.assetB, amountB) },
		func() error { return l.credit(ctx, p.account, p.assetA, amountA) },
		func() error { return l.credit(ctx, p.account, p.assetB, amountB) },
	} {
		if err := step(); err != nil {
			l.undo(ctx)
			return fmt.Errorf("swapper.Pool.AddLiquidity: %w", err)
		}
	}
	p.reserveA.Add(&p.reserveA, amountA)
	p.reserveB.Add(&p.reserveB, amountB)
	return nil
}

// SyncReserves lee las reservas desde los saldos de la cuenta del pool.
// La CLI lo usa al arrancar: el pool no persiste nada por su cuenta.
func (p *Pool) SyncReserves(ctx context.Context, custody ports.Custody) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	a, err := custody.BalanceOf(ctx, p.account, p.assetA)
	if err != nil {
		return fmt.Errorf("swapper.Pool.SyncReserves: %w", err)
	}
	b, err := custody.BalanceOf(ctx, p.account, p.assetB)
	if err != nil {
		return fmt.Errorf("swapper.Pool.SyncReserves: %w", err)
	}
	p.reserveA, p.reserveB = a, b
	return nil
}

// AmountOut calcula la salida de un swap de in unidades de from:
// in·(1-fee)·rOut / (rIn + in·(1-fee)).
func (p *Pool) AmountOut(from domain.AssetID, in *uint256.Int) (uint256.Int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.amountOutLocked(from, in)
}

func (p *Pool) amountOutLocked(from domain.AssetID, in *uint256.Int) (uint256.Int, error) {
	rIn, rOut, err := p.reservesFor(from)
	if err != nil {
		return uint256.Int{}, err
	}
	if rIn.IsZero() || rOut.IsZero() {
		return uint256.Int{}, fmt.Errorf("pool %d/%d has no liquidity: %w", p.assetA, p.assetB, domain.ErrUnsupportedRoute)
	}

	inWithFee, overflow := new(uint256.Int).MulOverflow(in, uint256.NewInt(domain.BpsDenominator-p.feeBps))
	if overflow {
		return uint256.Int{}, domain.ErrAmountOverflow
	}
	den, overflow := new(uint256.Int).MulOverflow(rIn, uint256.NewInt(domain.BpsDenominator))
	if overflow {
		return uint256.Int{}, domain.ErrAmountOverflow
	}
	if _, overflow := den.AddOverflow(den, inWithFee); overflow {
		return uint256.Int{}, domain.ErrAmountOverflow
	}
	out, overflow := new(uint256.Int).MulDivOverflow(inWithFee, rOut, den)
	if overflow {
		return uint256.Int{}, domain.ErrAmountOverflow
	}
	return *out, nil
}

// swap ejecuta un salto: in de from sale de owner, la salida llega a recipient.
// Si un movimiento falla, los anteriores se deshacen y las reservas no cambian.
func (p *Pool) swap(ctx context.Context, custody ports.Custody, owner, recipient common.Address, from domain.AssetID, in *uint256.Int) (uint256.Int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	out, err := p.amountOutLocked(from, in)
	if err != nil {
		return uint256.Int{}, err
	}
	to := p.other(from)

	l := newLegs(custody)
	if err := l.debit(ctx, owner, from, in); err != nil {
		return uint256.Int{}, fmt.Errorf("debit owner: %w", err)
	}
	if err := l.credit(ctx, p.account, from, in); err != nil {
		l.undo(ctx)
		return uint256.Int{}, fmt.Errorf("credit pool: %w", err)
	}
	if err := l.debit(ctx, p.account, to, &out); err != nil {
		l.undo(ctx)
		return uint256.Int{}, fmt.Errorf("debit pool: %w", err)
	}
	if err := l.credit(ctx, recipient, to, &out); err != nil {
		l.undo(ctx)
		return uint256.Int{}, fmt.Errorf("credit recipient: %w", err)
	}

	p.move(from, in, &out)
	return out, nil
}

// unswap deshace un swap ya completado: out vuelve del recipient al pool e
// in del pool al owner. Las reservas quedan como antes del swap.
func (p *Pool) unswap(ctx context.Context, custody ports.Custody, owner, recipient common.Address, from domain.AssetID, in, out *uint256.Int) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	to := p.other(from)
	l := newLegs(custody)
	for _, step := range []func() error{
		func() error { return l.debit(ctx, recipient, to, out) },
		func() error { return l.credit(ctx, p.account, to, out) },
		func() error { return l.debit(ctx, p.account, from, in) },
		func() error { return l.credit(ctx, owner, from, in) },
	} {
		if err := step(); err != nil {
			l.undo(ctx)
			return err
		}
	}
	p.move(to, out, in)
	return nil
}

// move aplica a las reservas la entrada de in en from y la salida de out.
func (p *Pool) move(from domain.AssetID, in, out *uint256.Int) {
	if from == p.assetA {
		p.reserveA.Add(&p.reserveA, in)
		p.reserveB.Sub(&p.reserveB, out)
	} else {
		p.reserveB.Add(&p.reserveB, in)
		p.reserveA.Sub(&p.reserveA, out)
	}
}

func (p *Pool) reservesFor(from domain.AssetID) (*uint256.Int, *uint256.Int, error) {
	switch from {
	case p.assetA:
		return &p.reserveA, &p.reserveB, nil
	case p.assetB:
		return &p.reserveB, &p.reserveA, nil
	}
	return nil, nil, fmt.Errorf("asset %d not in pool %d/%d: %w", from, p.assetA, p.assetB, domain.ErrUnsupportedRoute)
}

func (p *Pool) other(asset domain.AssetID) domain.AssetID {
	if asset == p.assetA {
		return p.assetB
	}
	return p.assetA
}

func (p *Pool) connects(from, to domain.AssetID) bool {
	return (from == p.assetA && to == p.assetB) || (from == p.assetB && to == p.assetA)
}
