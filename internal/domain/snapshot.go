package domain

// Snapshot es el estado completo del queue en forma serializable.
// Los amounts viajan como strings decimales y las direcciones en hex.
type Snapshot struct {
	Version     int               `cbor:"1,keyasint"`
	Meta        MetaSnapshot      `cbor:"2,keyasint"`
	Pools       []PoolSnapshot    `cbor:"3,keyasint"`
	BalancesDue map[string]string `cbor:"4,keyasint"`
}

// SnapshotVersion es la versión actual del formato.
const SnapshotVersion = 1

// MetaSnapshot es QueueMeta sin referencias a swappers.
type MetaSnapshot struct {
	ActivationDelayNs int64          `cbor:"1,keyasint"`
	MinBidAmount      string         `cbor:"2,keyasint"`
	DefaultBidAmount  string         `cbor:"3,keyasint"`
	PoolMinimums      map[int]string `cbor:"4,keyasint,omitempty"`
	FeeBps            uint64         `cbor:"5,keyasint"`
	PremiumStepBps    uint64         `cbor:"6,keyasint"`
	FeeCollector      string         `cbor:"7,keyasint"`
	Queue             string         `cbor:"8,keyasint"`
	Market            string         `cbor:"9,keyasint"`
	MarketName        string         `cbor:"10,keyasint"`
	Admin             string         `cbor:"11,keyasint"`
	BidAssetID        uint64         `cbor:"12,keyasint"`
	MarketAssetID     uint64         `cbor:"13,keyasint"`
	LiquidatedAssetID uint64         `cbor:"14,keyasint"`
}

// PoolSnapshot es el estado de un pool.
type PoolSnapshot struct {
	Pool        int               `cbor:"1,keyasint"`
	NextPull    int               `cbor:"2,keyasint"`
	Pending     []PendingSnapshot `cbor:"3,keyasint"`
	Entries     []EntrySnapshot   `cbor:"4,keyasint"`
	UserEntries map[string][]int  `cbor:"5,keyasint"`
}

type PendingSnapshot struct {
	Bidder      string `cbor:"1,keyasint"`
	Amount      string `cbor:"2,keyasint"`
	TimestampNs int64  `cbor:"3,keyasint"`
}

type EntrySnapshot struct {
	Bidder      string `cbor:"1,keyasint"`
	Amount      string `cbor:"2,keyasint"`
	TimestampNs int64  `cbor:"3,keyasint"`
	Initial     string `cbor:"4,keyasint"`
	Voided      bool   `cbor:"5,keyasint"`
}
