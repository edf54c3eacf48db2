package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/voantyh/tapioca-bar-audit/internal/domain"
)

const custodySchema = `
CREATE TABLE IF NOT EXISTS custody_balances (
    account TEXT    NOT NULL,
    asset   INTEGER NOT NULL,
    amount  TEXT    NOT NULL,
    PRIMARY KEY (account, asset)
);

CREATE TABLE IF NOT EXISTS custody_allowances (
    owner    TEXT NOT NULL,
    operator TEXT NOT NULL,
    PRIMARY KEY (owner, operator)
);
`

// Debit resta amount del saldo de la cuenta.
func (s *SQLiteStorage) Debit(ctx context.Context, account common.Address, asset domain.AssetID, amount *uint256.Int) error {
	return s.adjust(ctx, "storage.Debit", account, asset, func(bal *uint256.Int) error {
		if bal.Lt(amount) {
			return fmt.Errorf("%s asset %d has %s, needs %s: %w",
				account.Hex(), asset, bal.Dec(), amount.Dec(), domain.ErrInsufficientBalance)
		}
		bal.Sub(bal, amount)
		return nil
	})
}

// Credit suma amount al saldo de la cuenta.
func (s *SQLiteStorage) Credit(ctx context.Context, account common.Address, asset domain.AssetID, amount *uint256.Int) error {
	return s.adjust(ctx, "storage.Credit", account, asset, func(bal *uint256.Int) error {
		if _, overflow := bal.AddOverflow(bal, amount); overflow {
			return domain.ErrAmountOverflow
		}
		return nil
	})
}

// BalanceOf devuelve el saldo (cero si la fila no existe).
func (s *SQLiteStorage) BalanceOf(ctx context.Context, account common.Address, asset domain.AssetID) (uint256.Int, error) {
	bal, err := readBalance(ctx, s.db, account, asset)
	if err != nil {
		return uint256.Int{}, fmt.Errorf("storage.BalanceOf: %w", err)
	}
	return bal, nil
}

// Allowed indica si operator está aprobado por owner.
func (s *SQLiteStorage) Allowed(ctx context.Context, owner, operator common.Address) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM custody_allowances WHERE owner = ? AND operator = ?`,
		owner.Hex(), operator.Hex(),
	).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("storage.Allowed: %w", err)
	}
	return n > 0, nil
}

// Approve concede o revoca a operator el permiso de actuar por owner.
func (s *SQLiteStorage) Approve(ctx context.Context, owner, operator common.Address, approved bool) error {
	var err error
	if approved {
		_, err = s.db.ExecContext(ctx,
			`INSERT OR IGNORE INTO custody_allowances (owner, operator) VALUES (?, ?)`,
			owner.Hex(), operator.Hex())
	} else {
		_, err = s.db.ExecContext(ctx,
			`DELETE FROM custody_allowances WHERE owner = ? AND operator = ?`,
			owner.Hex(), operator.Hex())
	}
	if err != nil {
		return fmt.Errorf("storage.Approve: %w", err)
	}
	return nil
}

// adjust lee el saldo, aplica fn y lo escribe dentro de una transacción.
func (s *SQLiteStorage) adjust(ctx context.Context, op string, account common.Address, asset domain.AssetID, fn func(*uint256.Int) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%s: begin tx: %w", op, err)
	}
	defer tx.Rollback()

	bal, err := readBalance(ctx, tx, account, asset)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if err := fn(&bal); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	if bal.IsZero() {
		_, err = tx.ExecContext(ctx,
			`DELETE FROM custody_balances WHERE account = ? AND asset = ?`,
			account.Hex(), int64(asset))
	} else {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO custody_balances (account, asset, amount) VALUES (?, ?, ?)
			ON CONFLICT(account, asset) DO UPDATE SET amount = excluded.amount`,
			account.Hex(), int64(asset), bal.Dec())
	}
	if err != nil {
		return fmt.Errorf("%s: write: %w", op, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%s: commit: %w", op, err)
	}
	return nil
}

type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func readBalance(ctx context.Context, q queryer, account common.Address, asset domain.AssetID) (uint256.Int, error) {
	var s string
	err := q.QueryRowContext(ctx,
		`SELECT amount FROM custody_balances WHERE account = ? AND asset = ?`,
		account.Hex(), int64(asset),
	).Scan(&s)
	if errors.Is(err, sql.ErrNoRows) {
		return uint256.Int{}, nil
	}
	if err != nil {
		return uint256.Int{}, fmt.Errorf("read balance: %w", err)
	}
	return domain.ParseAmount(s)
}
