package domain

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// EventType identifica una transición del queue.
type EventType string

const (
	EventInitialized       EventType = "INITIALIZED"
	EventBidPlaced         EventType = "BID_PLACED"
	EventBidActivated      EventType = "BID_ACTIVATED"
	EventBidCancelled      EventType = "BID_CANCELLED" // bid pendiente retirado
	EventBidRemoved        EventType = "BID_REMOVED"   // entrada activada retirada
	EventBidExecuted       EventType = "BID_EXECUTED"
	EventRedeemed          EventType = "REDEEMED"
	EventBidSwapperChanged EventType = "BID_SWAPPER_CHANGED"
)

// Event es el registro de una operación ya confirmada.
type Event struct {
	ID       string // UUID
	Type     EventType
	At       time.Time
	Caller   common.Address
	Account  common.Address // bidder o beneficiario
	Pool     int            // -1 si no aplica
	Position int            // posición en el order book, -1 si no aplica
	Amount   uint256.Int
	Extra    uint256.Int // fee en BID_EXECUTED, amount del activo origen en BID_PLACED con stable
	Detail   string
}
