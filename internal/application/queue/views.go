package queue

import (
	"bytes"
	"fmt"
	"sort"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/voantyh/tapioca-bar-audit/internal/domain"
)

// PendingBid es un bid todavía sin activar, para listados.
type PendingBid struct {
	Pool   int
	Bidder common.Address
	Bid    domain.BidInfo
}

// PendingBid devuelve el bid pendiente del bidder en el pool (amount cero si no hay).
func (q *Queue) PendingBid(poolID int, bidder common.Address) domain.BidInfo {
	q.mu.Lock()
	defer q.mu.Unlock()
	if !domain.ValidPool(poolID) {
		return domain.BidInfo{}
	}
	return q.pools[poolID].pending[bidder]
}

// PendingBids lista todos los bids pendientes ordenados por pool y bidder.
func (q *Queue) PendingBids() []PendingBid {
	q.mu.Lock()
	defer q.mu.Unlock()

	var out []PendingBid
	for _, p := range q.pools {
		for bidder, bid := range p.pending {
			out = append(out, PendingBid{Pool: p.id, Bidder: bidder, Bid: bid})
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Pool != out[j].Pool {
			return out[i].Pool < out[j].Pool
		}
		return bytes.Compare(out[i].Bidder[:], out[j].Bidder[:]) < 0
	})
	return out
}

// OrderBook devuelve una copia del order book del pool.
func (q *Queue) OrderBook(poolID int) (domain.PoolInfo, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if !domain.ValidPool(poolID) {
		return domain.PoolInfo{}, fmt.Errorf("queue.OrderBook: pool %d: %w", poolID, domain.ErrPremiumTooHigh)
	}
	return q.pools[poolID].info(q.meta.PremiumBps(poolID)), nil
}

// UserEntries devuelve las posiciones abiertas del bidder en el pool. El
// índice de cada posición en el slice es el ordinal que acepta RemoveBid.
func (q *Queue) UserEntries(poolID int, bidder common.Address) []int {
	q.mu.Lock()
	defer q.mu.Unlock()
	if !domain.ValidPool(poolID) {
		return nil
	}
	positions := q.pools[poolID].userEntries[bidder]
	out := make([]int, len(positions))
	copy(out, positions)
	return out
}

// BalanceDue devuelve lo que el queue debe a la cuenta.
func (q *Queue) BalanceDue(account common.Address) uint256.Int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.balancesDue[account]
}

// QuoteFill devuelve el liquidated asset neto de fee que recibiría un bid
// de bidAmount ejecutado completo en el pool.
func (q *Queue) QuoteFill(poolID int, bidAmount *uint256.Int) (uint256.Int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if err := q.requireInit(); err != nil {
		return uint256.Int{}, fmt.Errorf("queue.QuoteFill: %w", err)
	}
	if err := q.requirePool(poolID); err != nil {
		return uint256.Int{}, fmt.Errorf("queue.QuoteFill: %w", err)
	}
	gross, err := domain.FillCapacity(bidAmount, q.meta.PremiumBps(poolID))
	if err != nil {
		return uint256.Int{}, fmt.Errorf("queue.QuoteFill: %w", err)
	}
	fee := domain.FeeOf(gross, q.meta.FeeBps)
	return *new(uint256.Int).Sub(gross, fee), nil
}

// NextAvailableBidPool devuelve el pool de menor premium cuya liquidez
// abierta alcanza DefaultBidAmount.
func (q *Queue) NextAvailableBidPool() (int, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	threshold := q.meta.DefaultBidAmount
	for _, p := range q.pools {
		liq := p.liquidity()
		if liq.IsZero() {
			continue
		}
		if !liq.Lt(&threshold) {
			return p.id, true
		}
	}
	return 0, false
}

// TotalLiquidity suma el bid asset abierto en todos los order books.
func (q *Queue) TotalLiquidity() uint256.Int {
	q.mu.Lock()
	defer q.mu.Unlock()

	var total uint256.Int
	for _, p := range q.pools {
		liq := p.liquidity()
		total.Add(&total, &liq)
	}
	return total
}

// LiquidatableCapacity devuelve cuánto liquidated asset podría absorber
// ExecuteBids ahora mismo, con los premiums de cada pool.
func (q *Queue) LiquidatableCapacity() (uint256.Int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	var total uint256.Int
	for _, p := range q.pools {
		premium := q.meta.PremiumBps(p.id)
		for i := p.nextPull; i < len(p.entries); i++ {
			e := p.entries[i]
			if !e.Live() {
				continue
			}
			c, err := domain.FillCapacity(&e.BidInfo.Amount, premium)
			if err != nil {
				return uint256.Int{}, fmt.Errorf("queue.LiquidatableCapacity: %w", err)
			}
			sum, err := domain.CheckedAdd(&total, c)
			if err != nil {
				return uint256.Int{}, fmt.Errorf("queue.LiquidatableCapacity: %w", err)
			}
			total = *sum
		}
	}
	return total, nil
}

// BalancesDue devuelve una copia de todos los saldos pendientes de redimir.
func (q *Queue) BalancesDue() map[common.Address]uint256.Int {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make(map[common.Address]uint256.Int, len(q.balancesDue))
	for k, v := range q.balancesDue {
		out[k] = v
	}
	return out
}
