package swapper

import (
	"context"
	"log/slog"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/voantyh/tapioca-bar-audit/internal/domain"
	"github.com/voantyh/tapioca-bar-audit/internal/ports"
)

// leg es un Debit o Credit ya aplicado en custody.
type leg struct {
	account common.Address
	asset   domain.AssetID
	amount  uint256.Int
	credit  bool
}

// legs registra los movimientos de un swap para poder deshacerlos en orden
// inverso si un paso posterior falla.
type legs struct {
	custody ports.Custody
	done    []leg
}

func newLegs(custody ports.Custody) *legs {
	return &legs{custody: custody}
}

func (l *legs) debit(ctx context.Context, account common.Address, asset domain.AssetID, amount *uint256.Int) error {
	if err := l.custody.Debit(ctx, account, asset, amount); err != nil {
		return err
	}
	l.done = append(l.done, leg{account: account, asset: asset, amount: *amount})
	return nil
}

func (l *legs) credit(ctx context.Context, account common.Address, asset domain.AssetID, amount *uint256.Int) error {
	if err := l.custody.Credit(ctx, account, asset, amount); err != nil {
		return err
	}
	l.done = append(l.done, leg{account: account, asset: asset, amount: *amount, credit: true})
	return nil
}

// undo revierte los movimientos registrados, del último al primero.
func (l *legs) undo(ctx context.Context) {
	for i := len(l.done) - 1; i >= 0; i-- {
		lg := l.done[i]
		var err error
		if lg.credit {
			err = l.custody.Debit(ctx, lg.account, lg.asset, &lg.amount)
		} else {
			err = l.custody.Credit(ctx, lg.account, lg.asset, &lg.amount)
		}
		if err != nil {
			slog.Error("swapper: could not undo custody leg",
				"account", lg.account.Hex(), "asset", lg.asset, "amount", lg.amount.Dec(),
				"credit", lg.credit, "err", err)
		}
	}
	l.done = nil
}
