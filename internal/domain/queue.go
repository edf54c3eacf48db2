package domain

import (
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

const (
	// MaxPool es el índice de pool más alto aceptado (pools 0..MaxPool).
	MaxPool = 10

	// BpsDenominator es la base de los porcentajes en basis points.
	BpsDenominator = 10_000

	DefaultPremiumStepBps = 100 // pool p → p%
	DefaultFeeBps         = 50  // 0.5% de cada fill
)

// AssetID identifica un activo en el custody ledger.
type AssetID uint64

// QueueMeta es la configuración del queue. Se fija una sola vez en Init;
// después solo cambian los swappers (vía SetBidSwapper).
type QueueMeta struct {
	ActivationDelay  time.Duration
	MinBidAmount     uint256.Int
	DefaultBidAmount uint256.Int
	PoolMinimums     map[int]uint256.Int // override opcional por pool
	FeeBps           uint64
	PremiumStepBps   uint64

	FeeCollector common.Address
	Queue        common.Address // cuenta de escrow del queue en el custody ledger
	Market       common.Address
	MarketName   string
	Admin        common.Address

	BidAssetID        AssetID
	MarketAssetID     AssetID
	LiquidatedAssetID AssetID
}

// Validate comprueba que la meta es utilizable.
func (m QueueMeta) Validate() error {
	if m.Market == (common.Address{}) {
		return fmt.Errorf("%w: market address is zero", ErrInvalidMeta)
	}
	if m.Queue == (common.Address{}) {
		return fmt.Errorf("%w: queue address is zero", ErrInvalidMeta)
	}
	if m.Queue == m.Market {
		return fmt.Errorf("%w: queue and market share an address", ErrInvalidMeta)
	}
	if m.FeeCollector == (common.Address{}) {
		return fmt.Errorf("%w: fee collector is zero", ErrInvalidMeta)
	}
	if m.FeeBps >= BpsDenominator {
		return fmt.Errorf("%w: fee %d bps must be below %d", ErrInvalidMeta, m.FeeBps, BpsDenominator)
	}
	if m.PremiumStepBps >= BpsDenominator/MaxPool {
		return fmt.Errorf("%w: premium step %d bps too large for %d pools", ErrInvalidMeta, m.PremiumStepBps, MaxPool)
	}
	if m.ActivationDelay < 0 {
		return fmt.Errorf("%w: negative activation delay", ErrInvalidMeta)
	}
	for pool := range m.PoolMinimums {
		if pool < 0 || pool > MaxPool {
			return fmt.Errorf("%w: minimum set for pool %d", ErrInvalidMeta, pool)
		}
	}
	return nil
}

// PoolMinimum devuelve el bid mínimo aceptado en el pool.
func (m QueueMeta) PoolMinimum(pool int) uint256.Int {
	if v, ok := m.PoolMinimums[pool]; ok {
		return v
	}
	return m.MinBidAmount
}

// PremiumBps devuelve el descuento del pool en basis points.
func (m QueueMeta) PremiumBps(pool int) uint64 {
	return uint64(pool) * m.PremiumStepBps
}

// ValidPool indica si el índice está dentro de [0, MaxPool].
func ValidPool(pool int) bool {
	return pool >= 0 && pool <= MaxPool
}

// BidInfo es un bid pendiente (o el contenido de una entrada activada).
type BidInfo struct {
	Amount    uint256.Int
	Timestamp time.Time
}

// OrderBookEntry es un bid activado, elegible para ejecución.
type OrderBookEntry struct {
	Bidder  common.Address
	BidInfo BidInfo
	Initial uint256.Int // amount en el momento de la activación
	Voided  bool        // retirado por el bidder antes de consumirse
}

// Live indica si la entrada todavía puede consumirse.
func (e OrderBookEntry) Live() bool {
	return !e.Voided && !e.BidInfo.Amount.IsZero()
}

// Intact indica si la entrada no ha sido tocada por ninguna ejecución.
func (e OrderBookEntry) Intact() bool {
	return e.Live() && e.BidInfo.Amount.Eq(&e.Initial)
}

// PoolInfo es la vista del order book de un pool.
type PoolInfo struct {
	Pool       int
	PremiumBps uint64
	NextPush   int
	NextPull   int
	Entries    []OrderBookEntry
	Liquidity  uint256.Int // suma de entradas vivas desde NextPull
}

// Fill es el consumo (total o parcial) de una entrada durante executeBids.
type Fill struct {
	Pool         int
	Position     int
	Bidder       common.Address
	BidAmount    uint256.Int // bid asset tomado del escrow
	Liquidated   uint256.Int // liquidated asset bruto asignado
	Fee          uint256.Int
	BidderCredit uint256.Int // Liquidated - Fee
	Partial      bool
}

// ExecutionResult resume una llamada a executeBids.
// Satisfied + Shortfall == Requested siempre.
type ExecutionResult struct {
	Requested    uint256.Int
	Satisfied    uint256.Int
	Shortfall    uint256.Int
	BidAssetUsed uint256.Int
	Fees         uint256.Int
	Fills        []Fill
}
