package queue

import (
	"fmt"
	"sort"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/voantyh/tapioca-bar-audit/internal/domain"
	"github.com/voantyh/tapioca-bar-audit/internal/ports"
)

// Snapshot exporta el estado completo del queue. Los swappers no forman
// parte del snapshot; se vuelven a inyectar en Restore.
func (q *Queue) Snapshot() (domain.Snapshot, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if err := q.requireInit(); err != nil {
		return domain.Snapshot{}, fmt.Errorf("queue.Snapshot: %w", err)
	}

	m := q.meta.QueueMeta
	snap := domain.Snapshot{
		Version: domain.SnapshotVersion,
		Meta: domain.MetaSnapshot{
			ActivationDelayNs: int64(m.ActivationDelay),
			MinBidAmount:      m.MinBidAmount.Dec(),
			DefaultBidAmount:  m.DefaultBidAmount.Dec(),
			FeeBps:            m.FeeBps,
			PremiumStepBps:    m.PremiumStepBps,
			FeeCollector:      m.FeeCollector.Hex(),
			Queue:             m.Queue.Hex(),
			Market:            m.Market.Hex(),
			MarketName:        m.MarketName,
			Admin:             m.Admin.Hex(),
			BidAssetID:        uint64(m.BidAssetID),
			MarketAssetID:     uint64(m.MarketAssetID),
			LiquidatedAssetID: uint64(m.LiquidatedAssetID),
		},
		BalancesDue: make(map[string]string, len(q.balancesDue)),
	}
	if len(m.PoolMinimums) > 0 {
		snap.Meta.PoolMinimums = make(map[int]string, len(m.PoolMinimums))
		for pool, v := range m.PoolMinimums {
			snap.Meta.PoolMinimums[pool] = v.Dec()
		}
	}
	for account, due := range q.balancesDue {
		snap.BalancesDue[account.Hex()] = due.Dec()
	}

	for _, p := range q.pools {
		if len(p.pending) == 0 && len(p.entries) == 0 {
			continue
		}
		ps := domain.PoolSnapshot{
			Pool:        p.id,
			NextPull:    p.nextPull,
			UserEntries: make(map[string][]int, len(p.userEntries)),
		}
		for bidder, bid := range p.pending {
			ps.Pending = append(ps.Pending, domain.PendingSnapshot{
				Bidder:      bidder.Hex(),
				Amount:      bid.Amount.Dec(),
				TimestampNs: bid.Timestamp.UnixNano(),
			})
		}
		sort.Slice(ps.Pending, func(i, j int) bool { return ps.Pending[i].Bidder < ps.Pending[j].Bidder })
		for _, e := range p.entries {
			ps.Entries = append(ps.Entries, domain.EntrySnapshot{
				Bidder:      e.Bidder.Hex(),
				Amount:      e.BidInfo.Amount.Dec(),
				TimestampNs: e.BidInfo.Timestamp.UnixNano(),
				Initial:     e.Initial.Dec(),
				Voided:      e.Voided,
			})
		}
		for bidder, positions := range p.userEntries {
			ps.UserEntries[bidder.Hex()] = append([]int(nil), positions...)
		}
		snap.Pools = append(snap.Pools, ps)
	}
	return snap, nil
}

// Restore carga un snapshot en un queue sin inicializar.
func (q *Queue) Restore(snap domain.Snapshot, bidSwapper, executionSwapper ports.BidSwapper) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.initialized {
		return fmt.Errorf("queue.Restore: %w", domain.ErrAlreadyInitialized)
	}
	if snap.Version != domain.SnapshotVersion {
		return fmt.Errorf("queue.Restore: unsupported snapshot version %d", snap.Version)
	}

	meta, err := metaFromSnapshot(snap.Meta)
	if err != nil {
		return fmt.Errorf("queue.Restore: %w", err)
	}
	if err := meta.Validate(); err != nil {
		return fmt.Errorf("queue.Restore: %w", err)
	}
	if meta.BidAssetID != meta.MarketAssetID && executionSwapper == nil {
		return fmt.Errorf("queue.Restore: bid asset %d differs from market asset %d: %w",
			meta.BidAssetID, meta.MarketAssetID, domain.ErrSwapperNotSet)
	}

	var pools [domain.MaxPool + 1]*pool
	for i := range pools {
		pools[i] = newPool(i)
	}
	for _, ps := range snap.Pools {
		if !domain.ValidPool(ps.Pool) {
			return fmt.Errorf("queue.Restore: pool %d: %w", ps.Pool, domain.ErrPremiumTooHigh)
		}
		p, err := poolFromSnapshot(ps)
		if err != nil {
			return fmt.Errorf("queue.Restore: pool %d: %w", ps.Pool, err)
		}
		pools[ps.Pool] = p
	}

	dues := make(map[common.Address]uint256.Int, len(snap.BalancesDue))
	for account, s := range snap.BalancesDue {
		v, err := domain.ParseAmount(s)
		if err != nil {
			return fmt.Errorf("queue.Restore: balance of %s: %w", account, err)
		}
		dues[common.HexToAddress(account)] = v
	}

	q.meta = Meta{QueueMeta: meta, BidSwapper: bidSwapper, ExecutionSwapper: executionSwapper}
	q.pools = pools
	q.balancesDue = dues
	q.initialized = true
	return nil
}

func metaFromSnapshot(ms domain.MetaSnapshot) (domain.QueueMeta, error) {
	minBid, err := domain.ParseAmount(ms.MinBidAmount)
	if err != nil {
		return domain.QueueMeta{}, err
	}
	defBid, err := domain.ParseAmount(ms.DefaultBidAmount)
	if err != nil {
		return domain.QueueMeta{}, err
	}
	m := domain.QueueMeta{
		ActivationDelay:   time.Duration(ms.ActivationDelayNs),
		MinBidAmount:      minBid,
		DefaultBidAmount:  defBid,
		FeeBps:            ms.FeeBps,
		PremiumStepBps:    ms.PremiumStepBps,
		FeeCollector:      common.HexToAddress(ms.FeeCollector),
		Queue:             common.HexToAddress(ms.Queue),
		Market:            common.HexToAddress(ms.Market),
		MarketName:        ms.MarketName,
		Admin:             common.HexToAddress(ms.Admin),
		BidAssetID:        domain.AssetID(ms.BidAssetID),
		MarketAssetID:     domain.AssetID(ms.MarketAssetID),
		LiquidatedAssetID: domain.AssetID(ms.LiquidatedAssetID),
	}
	if len(ms.PoolMinimums) > 0 {
		m.PoolMinimums = make(map[int]uint256.Int, len(ms.PoolMinimums))
		for pool, s := range ms.PoolMinimums {
			v, err := domain.ParseAmount(s)
			if err != nil {
				return domain.QueueMeta{}, err
			}
			m.PoolMinimums[pool] = v
		}
	}
	return m, nil
}

func poolFromSnapshot(ps domain.PoolSnapshot) (*pool, error) {
	p := newPool(ps.Pool)
	for _, pb := range ps.Pending {
		amount, err := domain.ParseAmount(pb.Amount)
		if err != nil {
			return nil, err
		}
		p.pending[common.HexToAddress(pb.Bidder)] = domain.BidInfo{
			Amount:    amount,
			Timestamp: time.Unix(0, pb.TimestampNs).UTC(),
		}
	}
	for _, es := range ps.Entries {
		amount, err := domain.ParseAmount(es.Amount)
		if err != nil {
			return nil, err
		}
		initial, err := domain.ParseAmount(es.Initial)
		if err != nil {
			return nil, err
		}
		p.entries = append(p.entries, domain.OrderBookEntry{
			Bidder:  common.HexToAddress(es.Bidder),
			BidInfo: domain.BidInfo{Amount: amount, Timestamp: time.Unix(0, es.TimestampNs).UTC()},
			Initial: initial,
			Voided:  es.Voided,
		})
	}
	if ps.NextPull < 0 || ps.NextPull > len(p.entries) {
		return nil, fmt.Errorf("next pull %d outside book of %d entries", ps.NextPull, len(p.entries))
	}
	p.nextPull = ps.NextPull
	for bidder, positions := range ps.UserEntries {
		for _, pos := range positions {
			if pos < 0 || pos >= len(p.entries) {
				return nil, fmt.Errorf("user position %d outside book", pos)
			}
		}
		p.userEntries[common.HexToAddress(bidder)] = append([]int(nil), positions...)
	}
	return p, nil
}
