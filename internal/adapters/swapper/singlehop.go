package swapper

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/voantyh/tapioca-bar-audit/internal/domain"
	"github.com/voantyh/tapioca-bar-audit/internal/ports"
)

// SingleHop convierte a través de un único Pool.
type SingleHop struct {
	custody ports.Custody
	queue   common.Address
	pool    *Pool
}

// NewSingleHop crea el adapter sobre pool.
func NewSingleHop(custody ports.Custody, queue common.Address, pool *Pool) *SingleHop {
	return &SingleHop{custody: custody, queue: queue, pool: pool}
}

func (s *SingleHop) Name() string {
	a, b := s.pool.Pair()
	return fmt.Sprintf("single-hop %d/%d", a, b)
}

func (s *SingleHop) Quote(_ context.Context, from, to domain.AssetID, amount *uint256.Int, _ []byte) (uint256.Int, error) {
	if !s.pool.connects(from, to) {
		return uint256.Int{}, fmt.Errorf("swapper.SingleHop.Quote: %d -> %d: %w", from, to, domain.ErrUnsupportedRoute)
	}
	out, err := s.pool.AmountOut(from, amount)
	if err != nil {
		return uint256.Int{}, fmt.Errorf("swapper.SingleHop.Quote: %w", err)
	}
	return out, nil
}

func (s *SingleHop) Swap(ctx context.Context, req ports.SwapRequest) (uint256.Int, error) {
	if err := onlyQueue(s.queue, req); err != nil {
		return uint256.Int{}, fmt.Errorf("swapper.SingleHop.Swap: %w", err)
	}
	if !s.pool.connects(req.FromAsset, req.ToAsset) {
		return uint256.Int{}, fmt.Errorf("swapper.SingleHop.Swap: %d -> %d: %w", req.FromAsset, req.ToAsset, domain.ErrUnsupportedRoute)
	}
	route, err := DecodeRoute(req.Data)
	if err != nil {
		return uint256.Int{}, fmt.Errorf("swapper.SingleHop.Swap: %w", err)
	}
	minOut, err := route.minOut(&req.MinOut)
	if err != nil {
		return uint256.Int{}, fmt.Errorf("swapper.SingleHop.Swap: %w", err)
	}

	quoted, err := s.pool.AmountOut(req.FromAsset, &req.Amount)
	if err != nil {
		return uint256.Int{}, fmt.Errorf("swapper.SingleHop.Swap: %w", err)
	}
	if err := checkOut(&quoted, &minOut); err != nil {
		return uint256.Int{}, fmt.Errorf("swapper.SingleHop.Swap: %w", err)
	}

	out, err := s.pool.swap(ctx, s.custody, req.Owner, req.Recipient, req.FromAsset, &req.Amount)
	if err != nil {
		return uint256.Int{}, fmt.Errorf("swapper.SingleHop.Swap: %w", err)
	}
	if err := checkOut(&out, &minOut); err != nil {
		if uerr := s.pool.unswap(ctx, s.custody, req.Owner, req.Recipient, req.FromAsset, &req.Amount, &out); uerr != nil {
			slog.Error("swapper: could not unwind single hop", "err", uerr)
		}
		return uint256.Int{}, fmt.Errorf("swapper.SingleHop.Swap: %w", err)
	}
	return out, nil
}
