package ports

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/voantyh/tapioca-bar-audit/internal/domain"
)

// Custody es el ledger que guarda los fondos depositados. El queue nunca
// mueve tokens directamente: solo debita y acredita cuentas aquí.
type Custody interface {
	// Debit resta amount de la cuenta. Falla con domain.ErrInsufficientBalance
	// si el saldo no alcanza.
	Debit(ctx context.Context, account common.Address, asset domain.AssetID, amount *uint256.Int) error

	// Credit suma amount a la cuenta.
	Credit(ctx context.Context, account common.Address, asset domain.AssetID, amount *uint256.Int) error

	// BalanceOf devuelve el saldo de la cuenta en el activo.
	BalanceOf(ctx context.Context, account common.Address, asset domain.AssetID) (uint256.Int, error)

	// Allowed indica si operator puede actuar en nombre de owner.
	Allowed(ctx context.Context, owner, operator common.Address) (bool, error)
}
