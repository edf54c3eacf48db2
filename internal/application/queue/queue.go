package queue

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/holiman/uint256"
	"github.com/voantyh/tapioca-bar-audit/internal/domain"
	"github.com/voantyh/tapioca-bar-audit/internal/ports"
)

// Clock devuelve el instante de la invocación. Inyectable para tests.
type Clock func() time.Time

// Meta es la configuración completa: la parte serializable más los swappers.
type Meta struct {
	domain.QueueMeta

	// BidSwapper convierte stables a bid asset en PlaceBidWithStable.
	BidSwapper ports.BidSwapper
	// ExecutionSwapper convierte bid asset a market asset en ExecuteBids.
	// Solo hace falta si BidAssetID != MarketAssetID.
	ExecutionSwapper ports.BidSwapper
}

// Queue es el liquidation queue: bids pendientes, order books por pool,
// ejecución y saldos a redimir. Todas las operaciones están serializadas
// por un único mutex; ninguna deja estado parcial si falla.
type Queue struct {
	mu          sync.Mutex
	custody     ports.Custody
	sink        ports.EventSink
	now         Clock
	meta        Meta
	initialized bool
	pools       [domain.MaxPool + 1]*pool
	balancesDue map[common.Address]uint256.Int
}

// New crea un queue sin inicializar. sink puede ser nil; clock nil usa time.Now.
func New(custody ports.Custody, sink ports.EventSink, clock Clock) *Queue {
	if clock == nil {
		clock = time.Now
	}
	q := &Queue{
		custody:     custody,
		sink:        sink,
		now:         clock,
		balancesDue: make(map[common.Address]uint256.Int),
	}
	for i := range q.pools {
		q.pools[i] = newPool(i)
	}
	return q
}

// Init fija la meta del queue. Solo puede llamarse una vez.
func (q *Queue) Init(ctx context.Context, meta Meta) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.initialized {
		return fmt.Errorf("queue.Init: %w", domain.ErrAlreadyInitialized)
	}
	if err := meta.Validate(); err != nil {
		return fmt.Errorf("queue.Init: %w", err)
	}
	if meta.BidAssetID != meta.MarketAssetID && meta.ExecutionSwapper == nil {
		return fmt.Errorf("queue.Init: bid asset %d differs from market asset %d: %w",
			meta.BidAssetID, meta.MarketAssetID, domain.ErrSwapperNotSet)
	}

	meta.PoolMinimums = clonePoolMinimums(meta.PoolMinimums)
	q.meta = meta
	q.initialized = true

	slog.Info("queue: initialized",
		"market", meta.Market.Hex(),
		"market_name", meta.MarketName,
		"activation_delay", meta.ActivationDelay,
		"min_bid", meta.MinBidAmount.Dec(),
		"fee_bps", meta.FeeBps,
	)
	q.emit(ctx, q.event(domain.EventInitialized, meta.Admin, meta.Market, -1, -1, nil))
	return nil
}

// SetBidSwapper reemplaza el adapter de PlaceBidWithStable. Solo el admin
// (o el market) puede hacerlo.
func (q *Queue) SetBidSwapper(ctx context.Context, caller common.Address, swapper ports.BidSwapper) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if err := q.requireInit(); err != nil {
		return fmt.Errorf("queue.SetBidSwapper: %w", err)
	}
	if caller != q.meta.Admin && caller != q.meta.Market {
		return fmt.Errorf("queue.SetBidSwapper: caller %s: %w", caller.Hex(), domain.ErrUnauthorized)
	}

	q.meta.BidSwapper = swapper
	name := "none"
	if swapper != nil {
		name = swapper.Name()
	}
	slog.Info("queue: bid swapper changed", "swapper", name)

	ev := q.event(domain.EventBidSwapperChanged, caller, caller, -1, -1, nil)
	ev.Detail = name
	q.emit(ctx, ev)
	return nil
}

// Initialized indica si Init (o Restore) ya se ejecutó.
func (q *Queue) Initialized() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.initialized
}

// Meta devuelve una copia de la meta.
func (q *Queue) Meta() Meta {
	q.mu.Lock()
	defer q.mu.Unlock()
	m := q.meta
	m.PoolMinimums = clonePoolMinimums(m.PoolMinimums)
	return m
}

// Name devuelve el nombre para mostrar, derivado del market.
func (q *Queue) Name() string {
	q.mu.Lock()
	defer q.mu.Unlock()
	return "LQ " + q.meta.MarketName
}

func (q *Queue) requireInit() error {
	if !q.initialized {
		return domain.ErrNotInitialized
	}
	return nil
}

func (q *Queue) requirePool(pool int) error {
	if !domain.ValidPool(pool) {
		return fmt.Errorf("pool %d > %d: %w", pool, domain.MaxPool, domain.ErrPremiumTooHigh)
	}
	return nil
}

// authorize acepta al propio owner o a un operador aprobado en custody.
func (q *Queue) authorize(ctx context.Context, caller, owner common.Address) error {
	if caller == owner {
		return nil
	}
	ok, err := q.custody.Allowed(ctx, owner, caller)
	if err != nil {
		return fmt.Errorf("check allowance: %w", err)
	}
	if !ok {
		return fmt.Errorf("%s not approved by %s: %w", caller.Hex(), owner.Hex(), domain.ErrUnauthorized)
	}
	return nil
}

func (q *Queue) event(typ domain.EventType, caller, account common.Address, pool, position int, amount *uint256.Int) domain.Event {
	ev := domain.Event{
		ID:       uuid.New().String(),
		Type:     typ,
		At:       q.now().UTC(),
		Caller:   caller,
		Account:  account,
		Pool:     pool,
		Position: position,
	}
	if amount != nil {
		ev.Amount = *amount
	}
	return ev
}

// emit publica eventos de una operación ya confirmada. Un fallo del sink
// no deshace la operación; solo se registra.
func (q *Queue) emit(ctx context.Context, events ...domain.Event) {
	if q.sink == nil || len(events) == 0 {
		return
	}
	if err := q.sink.Publish(ctx, events); err != nil {
		slog.Warn("queue: event sink failed", "err", err, "events", len(events))
	}
}

func clonePoolMinimums(in map[int]uint256.Int) map[int]uint256.Int {
	if in == nil {
		return nil
	}
	out := make(map[int]uint256.Int, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
