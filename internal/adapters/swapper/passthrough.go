package swapper

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/voantyh/tapioca-bar-audit/internal/domain"
	"github.com/voantyh/tapioca-bar-audit/internal/ports"
)

// PassThrough mueve el activo sin convertirlo. Solo acepta from == to.
type PassThrough struct {
	custody ports.Custody
	queue   common.Address
}

// NewPassThrough crea el adapter directo.
func NewPassThrough(custody ports.Custody, queue common.Address) *PassThrough {
	return &PassThrough{custody: custody, queue: queue}
}

func (s *PassThrough) Name() string { return "pass-through" }

// Quote devuelve amount si el par es el mismo activo.
func (s *PassThrough) Quote(_ context.Context, from, to domain.AssetID, amount *uint256.Int, _ []byte) (uint256.Int, error) {
	if from != to {
		return uint256.Int{}, fmt.Errorf("swapper.PassThrough.Quote: %d -> %d: %w", from, to, domain.ErrUnsupportedRoute)
	}
	return *amount, nil
}

// Swap transfiere amount de Owner a Recipient.
func (s *PassThrough) Swap(ctx context.Context, req ports.SwapRequest) (uint256.Int, error) {
	if err := onlyQueue(s.queue, req); err != nil {
		return uint256.Int{}, fmt.Errorf("swapper.PassThrough.Swap: %w", err)
	}
	out, err := s.Quote(ctx, req.FromAsset, req.ToAsset, &req.Amount, req.Data)
	if err != nil {
		return uint256.Int{}, err
	}
	route, err := DecodeRoute(req.Data)
	if err != nil {
		return uint256.Int{}, fmt.Errorf("swapper.PassThrough.Swap: %w", err)
	}
	minOut, err := route.minOut(&req.MinOut)
	if err != nil {
		return uint256.Int{}, fmt.Errorf("swapper.PassThrough.Swap: %w", err)
	}
	if err := checkOut(&out, &minOut); err != nil {
		return uint256.Int{}, fmt.Errorf("swapper.PassThrough.Swap: %w", err)
	}

	if err := s.custody.Debit(ctx, req.Owner, req.FromAsset, &out); err != nil {
		return uint256.Int{}, fmt.Errorf("swapper.PassThrough.Swap: debit owner: %w", err)
	}
	if err := s.custody.Credit(ctx, req.Recipient, req.ToAsset, &out); err != nil {
		_ = s.custody.Credit(ctx, req.Owner, req.FromAsset, &out)
		return uint256.Int{}, fmt.Errorf("swapper.PassThrough.Swap: credit recipient: %w", err)
	}
	return out, nil
}
