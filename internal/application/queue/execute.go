package queue

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/voantyh/tapioca-bar-audit/internal/domain"
	"github.com/voantyh/tapioca-bar-audit/internal/ports"
)

// poolCursor es el estado final planificado de un pool tras la ejecución.
type poolCursor struct {
	pool     int
	nextPull int
	// partial es la entrada que queda a medio consumir (-1 si ninguna).
	partial       int
	partialRemain uint256.Int
}

// executionPlan es el resultado de recorrer los books sin modificarlos.
type executionPlan struct {
	result  domain.ExecutionResult
	cursors []poolCursor
	dues    map[common.Address]uint256.Int // saldo final de cada cuenta afectada
}

// ExecuteBids consume order books pool a pool (premium ascendente) y, dentro
// de cada pool, en orden FIFO desde NextPull, hasta cubrir amount de
// liquidated asset. Solo el market puede llamarlo. Si no hay liquidez
// suficiente devuelve lo cubierto y el faltante; no es un error.
func (q *Queue) ExecuteBids(ctx context.Context, caller common.Address, amount *uint256.Int) (domain.ExecutionResult, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if err := q.requireInit(); err != nil {
		return domain.ExecutionResult{}, fmt.Errorf("queue.ExecuteBids: %w", err)
	}
	if caller != q.meta.Market {
		return domain.ExecutionResult{}, fmt.Errorf("queue.ExecuteBids: caller %s: %w", caller.Hex(), domain.ErrUnauthorized)
	}

	plan, err := q.plan(amount)
	if err != nil {
		return domain.ExecutionResult{}, fmt.Errorf("queue.ExecuteBids: plan: %w", err)
	}
	res := plan.result
	if res.Satisfied.IsZero() {
		slog.Info("queue: nothing to execute", "requested", amount.Dec(), "shortfall", res.Shortfall.Dec())
		return res, nil
	}

	if err := q.settle(ctx, &res); err != nil {
		return domain.ExecutionResult{}, fmt.Errorf("queue.ExecuteBids: %w", err)
	}
	q.apply(plan)

	slog.Info("queue: bids executed",
		"requested", res.Requested.Dec(),
		"satisfied", res.Satisfied.Dec(),
		"shortfall", res.Shortfall.Dec(),
		"bid_asset_used", res.BidAssetUsed.Dec(),
		"fees", res.Fees.Dec(),
		"fills", len(res.Fills),
	)

	events := make([]domain.Event, 0, len(res.Fills))
	for _, f := range res.Fills {
		ev := q.event(domain.EventBidExecuted, caller, f.Bidder, f.Pool, f.Position, &f.BidderCredit)
		ev.Extra = f.Fee
		ev.Detail = fmt.Sprintf("bid %s liquidated %s", f.BidAmount.Dec(), f.Liquidated.Dec())
		if f.Partial {
			ev.Detail += " partial"
		}
		events = append(events, ev)
	}
	q.emit(ctx, events...)
	return res, nil
}

// plan recorre los books sin modificarlos y calcula fills, cursores y
// saldos finales. Cualquier overflow se detecta aquí, antes de mover fondos.
func (q *Queue) plan(amount *uint256.Int) (*executionPlan, error) {
	plan := &executionPlan{dues: make(map[common.Address]uint256.Int)}
	res := &plan.result
	res.Requested = *amount

	remaining := *amount
	for id := 0; id <= domain.MaxPool && !remaining.IsZero(); id++ {
		p := q.pools[id]
		premium := q.meta.PremiumBps(id)
		cur := poolCursor{pool: id, nextPull: p.nextPull, partial: -1}

		for cur.nextPull < len(p.entries) && !remaining.IsZero() {
			pos := cur.nextPull
			e := p.entries[pos]
			if !e.Live() {
				cur.nextPull++
				continue
			}

			capacity, err := domain.FillCapacity(&e.BidInfo.Amount, premium)
			if err != nil {
				return nil, fmt.Errorf("pool %d position %d: %w", id, pos, err)
			}

			fill := domain.Fill{Pool: id, Position: pos, Bidder: e.Bidder}
			if !capacity.Gt(&remaining) {
				fill.BidAmount = e.BidInfo.Amount
				fill.Liquidated = *capacity
				cur.nextPull++
			} else {
				bid, err := domain.BidForOutput(&remaining, premium)
				if err != nil {
					return nil, fmt.Errorf("pool %d position %d: %w", id, pos, err)
				}
				if bid.Gt(&e.BidInfo.Amount) {
					bid.Set(&e.BidInfo.Amount)
				}
				fill.BidAmount = *bid
				fill.Liquidated = remaining
				left := new(uint256.Int).Sub(&e.BidInfo.Amount, bid)
				if left.IsZero() {
					cur.nextPull++
				} else {
					fill.Partial = true
					cur.partial = pos
					cur.partialRemain = *left
				}
			}

			fill.Fee = *domain.FeeOf(&fill.Liquidated, q.meta.FeeBps)
			fill.BidderCredit.Sub(&fill.Liquidated, &fill.Fee)
			remaining.Sub(&remaining, &fill.Liquidated)

			if err := plan.credit(q, fill.Bidder, &fill.BidderCredit); err != nil {
				return nil, err
			}
			if err := plan.credit(q, q.meta.FeeCollector, &fill.Fee); err != nil {
				return nil, err
			}
			res.BidAssetUsed.Add(&res.BidAssetUsed, &fill.BidAmount)
			res.Fees.Add(&res.Fees, &fill.Fee)
			res.Fills = append(res.Fills, fill)
		}

		if cur.nextPull != p.nextPull || cur.partial >= 0 {
			plan.cursors = append(plan.cursors, cur)
		}
	}

	res.Shortfall = remaining
	res.Satisfied.Sub(amount, &remaining)
	return plan, nil
}

// credit acumula amount sobre el saldo (planificado o actual) de la cuenta.
func (pl *executionPlan) credit(q *Queue, account common.Address, amount *uint256.Int) error {
	if amount.IsZero() {
		return nil
	}
	due, ok := pl.dues[account]
	if !ok {
		due = q.balancesDue[account]
	}
	sum, err := domain.CheckedAdd(&due, amount)
	if err != nil {
		return fmt.Errorf("balance due of %s: %w", account.Hex(), err)
	}
	pl.dues[account] = *sum
	return nil
}

// settle mueve los fondos en custody: liquidated asset del market al escrow
// y bid asset del escrow al market (convertido a market asset si hace falta).
// Si algo falla, deshace lo ya movido.
func (q *Queue) settle(ctx context.Context, res *domain.ExecutionResult) error {
	needsSwap := q.meta.BidAssetID != q.meta.MarketAssetID
	if needsSwap && q.meta.ExecutionSwapper == nil {
		return fmt.Errorf("convert bid asset: %w", domain.ErrSwapperNotSet)
	}

	j := newJournal(q.custody)
	if err := j.transfer(ctx, q.meta.Market, q.meta.Queue, q.meta.LiquidatedAssetID, &res.Satisfied); err != nil {
		return fmt.Errorf("collect liquidated asset: %w", err)
	}

	if !needsSwap {
		if err := j.transfer(ctx, q.meta.Queue, q.meta.Market, q.meta.BidAssetID, &res.BidAssetUsed); err != nil {
			j.rollback(ctx)
			return fmt.Errorf("pay market: %w", err)
		}
		return nil
	}

	// El swap va el último: si falla no deja movimientos y basta con deshacer
	// el journal. El market cobra al menos lo que el swapper cotiza ahora.
	swapper := q.meta.ExecutionSwapper
	minOut, err := swapper.Quote(ctx, q.meta.BidAssetID, q.meta.MarketAssetID, &res.BidAssetUsed, nil)
	if err != nil {
		j.rollback(ctx)
		return fmt.Errorf("quote market asset via %s: %w", swapper.Name(), err)
	}
	if _, err := swapper.Swap(ctx, ports.SwapRequest{
		Caller:    q.meta.Queue,
		Owner:     q.meta.Queue,
		Recipient: q.meta.Market,
		FromAsset: q.meta.BidAssetID,
		ToAsset:   q.meta.MarketAssetID,
		Amount:    res.BidAssetUsed,
		MinOut:    minOut,
	}); err != nil {
		j.rollback(ctx)
		return fmt.Errorf("pay market via %s: %w", swapper.Name(), err)
	}
	return nil
}

// apply escribe el plan en los pools y en balancesDue.
func (q *Queue) apply(plan *executionPlan) {
	for _, f := range plan.result.Fills {
		if f.Partial {
			continue
		}
		p := q.pools[f.Pool]
		p.entries[f.Position].BidInfo.Amount.Clear()
		p.dropUserPosition(f.Bidder, f.Position)
	}
	for _, cur := range plan.cursors {
		p := q.pools[cur.pool]
		p.nextPull = cur.nextPull
		if cur.partial >= 0 {
			p.entries[cur.partial].BidInfo.Amount = cur.partialRemain
		}
	}
	for account, due := range plan.dues {
		q.balancesDue[account] = due
	}
}
