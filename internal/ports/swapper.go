package ports

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/voantyh/tapioca-bar-audit/internal/domain"
)

// SwapRequest describe una conversión pedida por el queue.
type SwapRequest struct {
	Caller    common.Address // quien invoca; los adapters solo aceptan al queue
	Owner     common.Address // cuenta de la que sale FromAsset
	Recipient common.Address // cuenta que recibe ToAsset
	FromAsset domain.AssetID
	ToAsset   domain.AssetID
	Amount    uint256.Int
	MinOut    uint256.Int
	Data      []byte // ruta opaca, codificada por el adapter
}

// BidSwapper convierte un activo estable cualquiera al activo del bid.
type BidSwapper interface {
	Name() string

	// Quote devuelve la salida esperada sin mover fondos.
	Quote(ctx context.Context, from, to domain.AssetID, amount *uint256.Int, data []byte) (uint256.Int, error)

	// Swap ejecuta la conversión sobre el custody ledger. Devuelve
	// domain.ErrOnlyQueue si Caller no es el queue y
	// domain.ErrInsufficientSwapOutput si la salida queda por debajo de MinOut.
	Swap(ctx context.Context, req SwapRequest) (uint256.Int, error)
}
