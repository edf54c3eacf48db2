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

// PlaceBid deposita amount de bid asset en escrow como bid pendiente del
// bidder en el pool. Un bid previo pendiente en el mismo pool se suma y su
// timestamp se reinicia.
func (q *Queue) PlaceBid(ctx context.Context, caller, bidder common.Address, poolID int, amount *uint256.Int) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if err := q.checkPlace(ctx, caller, bidder, poolID, amount); err != nil {
		return fmt.Errorf("queue.PlaceBid: %w", err)
	}

	p := q.pools[poolID]
	existing := p.pending[bidder]
	merged, err := domain.CheckedAdd(&existing.Amount, amount)
	if err != nil {
		return fmt.Errorf("queue.PlaceBid: merge pending bid: %w", err)
	}

	j := newJournal(q.custody)
	if err := j.transfer(ctx, bidder, q.meta.Queue, q.meta.BidAssetID, amount); err != nil {
		return fmt.Errorf("queue.PlaceBid: escrow: %w", err)
	}

	now := q.now()
	p.pending[bidder] = domain.BidInfo{Amount: *merged, Timestamp: now}

	slog.Debug("queue: bid placed",
		"pool", poolID, "bidder", bidder.Hex(), "amount", amount.Dec(), "pending", merged.Dec())
	q.emit(ctx, q.event(domain.EventBidPlaced, caller, bidder, poolID, -1, amount))
	return nil
}

// PlaceBidWithStable convierte amount de fromAsset al bid asset con el
// BidSwapper configurado y registra la salida como bid pendiente.
// El mínimo del pool se comprueba contra la cantidad convertida.
func (q *Queue) PlaceBidWithStable(
	ctx context.Context,
	caller, bidder common.Address,
	poolID int,
	fromAsset domain.AssetID,
	amount *uint256.Int,
	swapData []byte,
) (uint256.Int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if err := q.requireInit(); err != nil {
		return uint256.Int{}, fmt.Errorf("queue.PlaceBidWithStable: %w", err)
	}
	if err := q.requirePool(poolID); err != nil {
		return uint256.Int{}, fmt.Errorf("queue.PlaceBidWithStable: %w", err)
	}
	if err := q.authorize(ctx, caller, bidder); err != nil {
		return uint256.Int{}, fmt.Errorf("queue.PlaceBidWithStable: %w", err)
	}
	swapper := q.meta.BidSwapper
	if swapper == nil {
		return uint256.Int{}, fmt.Errorf("queue.PlaceBidWithStable: %w", domain.ErrSwapperNotSet)
	}
	if amount.IsZero() {
		return uint256.Int{}, fmt.Errorf("queue.PlaceBidWithStable: zero amount: %w", domain.ErrBidTooLow)
	}

	minimum := q.minimumFor(poolID)
	quoted, err := swapper.Quote(ctx, fromAsset, q.meta.BidAssetID, amount, swapData)
	if err != nil {
		return uint256.Int{}, fmt.Errorf("queue.PlaceBidWithStable: quote: %w", err)
	}
	if quoted.Lt(&minimum) {
		return uint256.Int{}, fmt.Errorf("queue.PlaceBidWithStable: quoted %s < minimum %s: %w",
			quoted.Dec(), minimum.Dec(), domain.ErrBidTooLow)
	}

	out, err := swapper.Swap(ctx, ports.SwapRequest{
		Caller:    q.meta.Queue,
		Owner:     bidder,
		Recipient: q.meta.Queue,
		FromAsset: fromAsset,
		ToAsset:   q.meta.BidAssetID,
		Amount:    *amount,
		MinOut:    minimum,
		Data:      swapData,
	})
	if err != nil {
		return uint256.Int{}, fmt.Errorf("queue.PlaceBidWithStable: swap via %s: %w", swapper.Name(), err)
	}

	p := q.pools[poolID]
	existing := p.pending[bidder]
	merged, mergeErr := domain.CheckedAdd(&existing.Amount, &out)
	if out.Lt(&minimum) || mergeErr != nil {
		// El swap ya se hizo: devolver lo convertido al bidder.
		if err := newJournal(q.custody).transfer(ctx, q.meta.Queue, bidder, q.meta.BidAssetID, &out); err != nil {
			slog.Error("queue: could not refund swap output", "bidder", bidder.Hex(), "amount", out.Dec(), "err", err)
		}
		if mergeErr != nil {
			return uint256.Int{}, fmt.Errorf("queue.PlaceBidWithStable: merge pending bid: %w", mergeErr)
		}
		return uint256.Int{}, fmt.Errorf("queue.PlaceBidWithStable: swap returned %s < %s: %w",
			out.Dec(), minimum.Dec(), domain.ErrInsufficientSwapOutput)
	}

	p.pending[bidder] = domain.BidInfo{Amount: *merged, Timestamp: q.now()}

	slog.Debug("queue: stable bid placed",
		"pool", poolID, "bidder", bidder.Hex(), "from_asset", fromAsset,
		"amount_in", amount.Dec(), "amount_out", out.Dec(), "swapper", swapper.Name())

	ev := q.event(domain.EventBidPlaced, caller, bidder, poolID, -1, &out)
	ev.Extra = *amount
	ev.Detail = fmt.Sprintf("swapped from asset %d via %s", fromAsset, swapper.Name())
	q.emit(ctx, ev)
	return out, nil
}

// ActivateBid mueve el bid pendiente del bidder al order book del pool,
// una vez transcurrido el activation delay. Devuelve la posición asignada.
func (q *Queue) ActivateBid(ctx context.Context, caller, bidder common.Address, poolID int) (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if err := q.requireInit(); err != nil {
		return 0, fmt.Errorf("queue.ActivateBid: %w", err)
	}
	if err := q.requirePool(poolID); err != nil {
		return 0, fmt.Errorf("queue.ActivateBid: %w", err)
	}

	p := q.pools[poolID]
	bid, ok := p.pending[bidder]
	if !ok || bid.Amount.IsZero() {
		return 0, fmt.Errorf("queue.ActivateBid: pool %d bidder %s: %w", poolID, bidder.Hex(), domain.ErrBidNotFound)
	}

	now := q.now()
	if elapsed := now.Sub(bid.Timestamp); elapsed < q.meta.ActivationDelay {
		return 0, fmt.Errorf("queue.ActivateBid: %s of %s elapsed: %w",
			elapsed, q.meta.ActivationDelay, domain.ErrTooSoon)
	}

	delete(p.pending, bidder)
	pos := p.push(bidder, domain.BidInfo{Amount: bid.Amount, Timestamp: now})

	slog.Debug("queue: bid activated",
		"pool", poolID, "bidder", bidder.Hex(), "amount", bid.Amount.Dec(), "position", pos)
	q.emit(ctx, q.event(domain.EventBidActivated, caller, bidder, poolID, pos, &bid.Amount))
	return pos, nil
}

// RemoveInactivatedBid cancela el bid pendiente y devuelve el escrow al bidder.
func (q *Queue) RemoveInactivatedBid(ctx context.Context, caller, bidder common.Address, poolID int) (uint256.Int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if err := q.requireInit(); err != nil {
		return uint256.Int{}, fmt.Errorf("queue.RemoveInactivatedBid: %w", err)
	}
	if err := q.requirePool(poolID); err != nil {
		return uint256.Int{}, fmt.Errorf("queue.RemoveInactivatedBid: %w", err)
	}
	if err := q.authorize(ctx, caller, bidder); err != nil {
		return uint256.Int{}, fmt.Errorf("queue.RemoveInactivatedBid: %w", err)
	}

	p := q.pools[poolID]
	bid, ok := p.pending[bidder]
	if !ok || bid.Amount.IsZero() {
		return uint256.Int{}, fmt.Errorf("queue.RemoveInactivatedBid: pool %d bidder %s: %w",
			poolID, bidder.Hex(), domain.ErrBidNotFound)
	}

	j := newJournal(q.custody)
	if err := j.transfer(ctx, q.meta.Queue, bidder, q.meta.BidAssetID, &bid.Amount); err != nil {
		return uint256.Int{}, fmt.Errorf("queue.RemoveInactivatedBid: refund: %w", err)
	}
	delete(p.pending, bidder)

	slog.Debug("queue: pending bid cancelled", "pool", poolID, "bidder", bidder.Hex(), "amount", bid.Amount.Dec())
	q.emit(ctx, q.event(domain.EventBidCancelled, caller, bidder, poolID, -1, &bid.Amount))
	return bid.Amount, nil
}

// RemoveBid retira una entrada activada del bidder, identificada por su
// ordinal local (índice dentro de sus entradas abiertas en el pool).
// Solo se pueden retirar entradas que ninguna ejecución ha tocado.
func (q *Queue) RemoveBid(ctx context.Context, caller, bidder common.Address, poolID, userLocalIndex int) (uint256.Int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if err := q.requireInit(); err != nil {
		return uint256.Int{}, fmt.Errorf("queue.RemoveBid: %w", err)
	}
	if err := q.requirePool(poolID); err != nil {
		return uint256.Int{}, fmt.Errorf("queue.RemoveBid: %w", err)
	}
	if err := q.authorize(ctx, caller, bidder); err != nil {
		return uint256.Int{}, fmt.Errorf("queue.RemoveBid: %w", err)
	}

	p := q.pools[poolID]
	pos, ok := p.userPosition(bidder, userLocalIndex)
	if !ok {
		return uint256.Int{}, fmt.Errorf("queue.RemoveBid: pool %d bidder %s index %d: %w",
			poolID, bidder.Hex(), userLocalIndex, domain.ErrBidNotFound)
	}
	entry := p.entries[pos]
	if !entry.Live() {
		return uint256.Int{}, fmt.Errorf("queue.RemoveBid: position %d: %w", pos, domain.ErrBidNotFound)
	}
	if !entry.Intact() {
		return uint256.Int{}, fmt.Errorf("queue.RemoveBid: position %d: %w", pos, domain.ErrBidAlreadyFilled)
	}

	amount := entry.BidInfo.Amount
	j := newJournal(q.custody)
	if err := j.transfer(ctx, q.meta.Queue, bidder, q.meta.BidAssetID, &amount); err != nil {
		return uint256.Int{}, fmt.Errorf("queue.RemoveBid: refund: %w", err)
	}
	p.void(pos)
	p.dropUserPosition(bidder, pos)

	slog.Debug("queue: activated bid removed", "pool", poolID, "bidder", bidder.Hex(), "position", pos, "amount", amount.Dec())
	q.emit(ctx, q.event(domain.EventBidRemoved, caller, bidder, poolID, pos, &amount))
	return amount, nil
}

// checkPlace agrupa las precondiciones comunes de PlaceBid.
func (q *Queue) checkPlace(ctx context.Context, caller, bidder common.Address, poolID int, amount *uint256.Int) error {
	if err := q.requireInit(); err != nil {
		return err
	}
	if err := q.requirePool(poolID); err != nil {
		return err
	}
	minimum := q.minimumFor(poolID)
	if amount.IsZero() || amount.Lt(&minimum) {
		return fmt.Errorf("amount %s < minimum %s: %w", amount.Dec(), minimum.Dec(), domain.ErrBidTooLow)
	}
	return q.authorize(ctx, caller, bidder)
}

// minimumFor devuelve el mínimo efectivo del pool (al menos 1).
func (q *Queue) minimumFor(poolID int) uint256.Int {
	minimum := q.meta.PoolMinimum(poolID)
	if minimum.IsZero() {
		minimum.SetOne()
	}
	return minimum
}
