package queue

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/voantyh/tapioca-bar-audit/internal/domain"
)

// pool es el estado de un tier de premium: bids pendientes, el order book
// append-only con su cursor de lectura y el índice de entradas abiertas
// de cada bidder.
type pool struct {
	id          int
	pending     map[common.Address]domain.BidInfo
	entries     []domain.OrderBookEntry
	nextPull    int
	userEntries map[common.Address][]int // posiciones abiertas, ascendentes
}

func newPool(id int) *pool {
	return &pool{
		id:          id,
		pending:     make(map[common.Address]domain.BidInfo),
		userEntries: make(map[common.Address][]int),
	}
}

// nextPush es la posición que ocupará la próxima activación.
func (p *pool) nextPush() int {
	return len(p.entries)
}

// push añade una entrada al final del book y la registra para el bidder.
func (p *pool) push(bidder common.Address, info domain.BidInfo) int {
	pos := p.nextPush()
	p.entries = append(p.entries, domain.OrderBookEntry{
		Bidder:  bidder,
		BidInfo: info,
		Initial: info.Amount,
	})
	p.userEntries[bidder] = append(p.userEntries[bidder], pos)
	return pos
}

// userPosition resuelve el ordinal local del bidder a una posición global.
func (p *pool) userPosition(bidder common.Address, local int) (int, bool) {
	positions := p.userEntries[bidder]
	if local < 0 || local >= len(positions) {
		return 0, false
	}
	return positions[local], true
}

// dropUserPosition quita pos del índice del bidder manteniendo el orden.
func (p *pool) dropUserPosition(bidder common.Address, pos int) {
	positions := p.userEntries[bidder]
	for i, v := range positions {
		if v != pos {
			continue
		}
		positions = append(positions[:i], positions[i+1:]...)
		break
	}
	if len(positions) == 0 {
		delete(p.userEntries, bidder)
		return
	}
	p.userEntries[bidder] = positions
}

// void anula una entrada intacta; el cursor la salta sin pagar.
func (p *pool) void(pos int) {
	e := &p.entries[pos]
	e.Voided = true
	e.BidInfo.Amount.Clear()
}

// liquidity suma el bid asset de las entradas vivas desde el cursor.
func (p *pool) liquidity() uint256.Int {
	var total uint256.Int
	for i := p.nextPull; i < len(p.entries); i++ {
		if p.entries[i].Live() {
			total.Add(&total, &p.entries[i].BidInfo.Amount)
		}
	}
	return total
}

func (p *pool) info(premiumBps uint64) domain.PoolInfo {
	entries := make([]domain.OrderBookEntry, len(p.entries))
	copy(entries, p.entries)
	return domain.PoolInfo{
		Pool:       p.id,
		PremiumBps: premiumBps,
		NextPush:   p.nextPush(),
		NextPull:   p.nextPull,
		Entries:    entries,
		Liquidity:  p.liquidity(),
	}
}
