package swapper

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/voantyh/tapioca-bar-audit/internal/domain"
	"github.com/voantyh/tapioca-bar-audit/internal/ports"
)

// onlyQueue rechaza swaps que no vienen del queue configurado.
func onlyQueue(queue common.Address, req ports.SwapRequest) error {
	if req.Caller != queue {
		return fmt.Errorf("caller %s: %w", req.Caller.Hex(), domain.ErrOnlyQueue)
	}
	return nil
}

// checkOut compara la salida con el mínimo exigido.
func checkOut(out, minOut *uint256.Int) error {
	if out.Lt(minOut) {
		return fmt.Errorf("out %s < min %s: %w", out.Dec(), minOut.Dec(), domain.ErrInsufficientSwapOutput)
	}
	return nil
}
