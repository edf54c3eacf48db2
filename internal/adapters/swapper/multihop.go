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

// MultiHop encadena varios Pool siguiendo la ruta codificada en swapData.
// Los activos intermedios pasan por la cuenta del router.
type MultiHop struct {
	custody ports.Custody
	queue   common.Address
	account common.Address
	pools   []*Pool
}

// NewMultiHop crea un router sobre los pools dados.
func NewMultiHop(custody ports.Custody, queue, account common.Address, pools ...*Pool) *MultiHop {
	return &MultiHop{custody: custody, queue: queue, account: account, pools: pools}
}

func (s *MultiHop) Name() string {
	return fmt.Sprintf("multi-hop (%d pools)", len(s.pools))
}

// Quote encadena AmountOut de cada salto.
func (s *MultiHop) Quote(_ context.Context, from, to domain.AssetID, amount *uint256.Int, data []byte) (uint256.Int, error) {
	hops, err := s.resolve(from, to, data)
	if err != nil {
		return uint256.Int{}, fmt.Errorf("swapper.MultiHop.Quote: %w", err)
	}
	out, err := quoteHops(hops, amount)
	if err != nil {
		return uint256.Int{}, fmt.Errorf("swapper.MultiHop.Quote: %w", err)
	}
	return out, nil
}

// Swap comprueba la cotización completa contra el mínimo antes de mover
// fondos y luego ejecuta los saltos en orden. Si un salto falla, los ya
// ejecutados se deshacen.
func (s *MultiHop) Swap(ctx context.Context, req ports.SwapRequest) (uint256.Int, error) {
	if err := onlyQueue(s.queue, req); err != nil {
		return uint256.Int{}, fmt.Errorf("swapper.MultiHop.Swap: %w", err)
	}
	route, err := DecodeRoute(req.Data)
	if err != nil {
		return uint256.Int{}, fmt.Errorf("swapper.MultiHop.Swap: %w", err)
	}
	minOut, err := route.minOut(&req.MinOut)
	if err != nil {
		return uint256.Int{}, fmt.Errorf("swapper.MultiHop.Swap: %w", err)
	}
	hops, err := s.resolve(req.FromAsset, req.ToAsset, req.Data)
	if err != nil {
		return uint256.Int{}, fmt.Errorf("swapper.MultiHop.Swap: %w", err)
	}
	quoted, err := quoteHops(hops, &req.Amount)
	if err != nil {
		return uint256.Int{}, fmt.Errorf("swapper.MultiHop.Swap: %w", err)
	}
	if err := checkOut(&quoted, &minOut); err != nil {
		return uint256.Int{}, fmt.Errorf("swapper.MultiHop.Swap: %w", err)
	}

	var done []completedHop
	amount := req.Amount
	owner := req.Owner
	for i, h := range hops {
		recipient := s.account
		if i == len(hops)-1 {
			recipient = req.Recipient
		}
		in := amount
		out, err := h.pool.swap(ctx, s.custody, owner, recipient, h.from, &in)
		if err != nil {
			s.unwind(ctx, done)
			return uint256.Int{}, fmt.Errorf("swapper.MultiHop.Swap: hop %d: %w", i, err)
		}
		done = append(done, completedHop{hop: h, owner: owner, recipient: recipient, in: in, out: out})
		amount = out
		owner = s.account
	}
	if err := checkOut(&amount, &minOut); err != nil {
		s.unwind(ctx, done)
		return uint256.Int{}, fmt.Errorf("swapper.MultiHop.Swap: %w", err)
	}
	return amount, nil
}

// completedHop guarda lo necesario para deshacer un salto ya ejecutado.
type completedHop struct {
	hop
	owner     common.Address
	recipient common.Address
	in        uint256.Int
	out       uint256.Int
}

// unwind deshace los saltos completados en orden inverso, de modo que el
// router no retiene activos intermedios y el owner recupera su entrada.
func (s *MultiHop) unwind(ctx context.Context, done []completedHop) {
	for i := len(done) - 1; i >= 0; i-- {
		d := done[i]
		if err := d.pool.unswap(ctx, s.custody, d.owner, d.recipient, d.from, &d.in, &d.out); err != nil {
			slog.Error("swapper: could not unwind hop", "hop", i, "from_asset", d.from, "err", err)
			return
		}
	}
}

type hop struct {
	pool *Pool
	from domain.AssetID
}

func (s *MultiHop) resolve(from, to domain.AssetID, data []byte) ([]hop, error) {
	route, err := DecodeRoute(data)
	if err != nil {
		return nil, err
	}
	path, err := route.pathFor(from, to)
	if err != nil {
		return nil, err
	}
	hops := make([]hop, 0, len(path)-1)
	for i := 0; i+1 < len(path); i++ {
		p := s.poolFor(path[i], path[i+1])
		if p == nil {
			return nil, fmt.Errorf("no pool for %d -> %d: %w", path[i], path[i+1], domain.ErrUnsupportedRoute)
		}
		hops = append(hops, hop{pool: p, from: path[i]})
	}
	return hops, nil
}

func (s *MultiHop) poolFor(from, to domain.AssetID) *Pool {
	for _, p := range s.pools {
		if p.connects(from, to) {
			return p
		}
	}
	return nil
}

func quoteHops(hops []hop, amount *uint256.Int) (uint256.Int, error) {
	out := *amount
	for _, h := range hops {
		next, err := h.pool.AmountOut(h.from, &out)
		if err != nil {
			return uint256.Int{}, err
		}
		out = next
	}
	return out, nil
}
