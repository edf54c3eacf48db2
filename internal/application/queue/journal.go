package queue

import (
	"context"
	"log/slog"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/voantyh/tapioca-bar-audit/internal/domain"
	"github.com/voantyh/tapioca-bar-audit/internal/ports"
)

// transferOp es un movimiento ya aplicado en custody.
type transferOp struct {
	from   common.Address
	to     common.Address
	asset  domain.AssetID
	amount uint256.Int
}

// journal registra los movimientos de custody de una operación para poder
// deshacerlos si un paso posterior falla. Los swaps no son reversibles,
// así que siempre se ejecutan después del último transfer.
type journal struct {
	custody ports.Custody
	ops     []transferOp
}

func newJournal(custody ports.Custody) *journal {
	return &journal{custody: custody}
}

// transfer mueve amount de from a to. Si el credit falla, revierte el debit
// antes de devolver el error.
func (j *journal) transfer(ctx context.Context, from, to common.Address, asset domain.AssetID, amount *uint256.Int) error {
	if amount.IsZero() {
		return nil
	}
	if err := j.custody.Debit(ctx, from, asset, amount); err != nil {
		return err
	}
	if err := j.custody.Credit(ctx, to, asset, amount); err != nil {
		if rerr := j.custody.Credit(ctx, from, asset, amount); rerr != nil {
			slog.Error("queue: journal could not restore debit",
				"account", from.Hex(), "asset", asset, "amount", amount.Dec(), "err", rerr)
		}
		return err
	}
	j.ops = append(j.ops, transferOp{from: from, to: to, asset: asset, amount: *amount})
	return nil
}

// rollback deshace los movimientos en orden inverso.
func (j *journal) rollback(ctx context.Context) {
	for i := len(j.ops) - 1; i >= 0; i-- {
		op := j.ops[i]
		if err := j.custody.Debit(ctx, op.to, op.asset, &op.amount); err != nil {
			slog.Error("queue: rollback debit failed",
				"account", op.to.Hex(), "asset", op.asset, "amount", op.amount.Dec(), "err", err)
			continue
		}
		if err := j.custody.Credit(ctx, op.from, op.asset, &op.amount); err != nil {
			slog.Error("queue: rollback credit failed",
				"account", op.from.Hex(), "asset", op.asset, "amount", op.amount.Dec(), "err", err)
		}
	}
	j.ops = nil
}
