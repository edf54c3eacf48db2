package queue

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/voantyh/tapioca-bar-audit/internal/domain"
)

// Redeem transfiere al beneficiario todo el liquidated asset que se le debe
// y deja su saldo a cero. No hay redenciones parciales.
func (q *Queue) Redeem(ctx context.Context, caller, beneficiary common.Address) (uint256.Int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if err := q.requireInit(); err != nil {
		return uint256.Int{}, fmt.Errorf("queue.Redeem: %w", err)
	}
	if err := q.authorize(ctx, caller, beneficiary); err != nil {
		return uint256.Int{}, fmt.Errorf("queue.Redeem: %w", err)
	}

	due := q.balancesDue[beneficiary]
	if due.IsZero() {
		return uint256.Int{}, fmt.Errorf("queue.Redeem: %s: %w", beneficiary.Hex(), domain.ErrNoBalanceDue)
	}

	j := newJournal(q.custody)
	if err := j.transfer(ctx, q.meta.Queue, beneficiary, q.meta.LiquidatedAssetID, &due); err != nil {
		return uint256.Int{}, fmt.Errorf("queue.Redeem: transfer: %w", err)
	}
	delete(q.balancesDue, beneficiary)

	slog.Info("queue: redeemed", "beneficiary", beneficiary.Hex(), "amount", due.Dec())
	q.emit(ctx, q.event(domain.EventRedeemed, caller, beneficiary, -1, -1, &due))
	return due, nil
}
