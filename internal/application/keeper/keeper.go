package keeper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/time/rate"

	"github.com/voantyh/tapioca-bar-audit/internal/application/queue"
	"github.com/voantyh/tapioca-bar-audit/internal/domain"
)

// Activator es la parte del queue que usa el keeper.
type Activator interface {
	PendingBids() []queue.PendingBid
	Meta() queue.Meta
	ActivateBid(ctx context.Context, caller, bidder common.Address, poolID int) (int, error)
}

// Config controla el keeper.
type Config struct {
	Interval   time.Duration  // entre ciclos
	RatePerSec float64        // activaciones por segundo (0 = sin límite)
	Burst      int
	Caller     common.Address // quien firma las activaciones
	Once       bool           // un solo ciclo y salir
}

// Keeper activa bids pendientes cuyo delay ya pasó. No cambia la semántica
// del queue: solo llama a ActivateBid, igual que haría cualquier cuenta.
type Keeper struct {
	cfg     Config
	queue   Activator
	limiter *rate.Limiter
	now     func() time.Time

	// AfterCycle se llama tras cada ciclo con activaciones (p. ej. persistir).
	AfterCycle func(ctx context.Context, activated int) error
}

// New crea un keeper. clock nil usa time.Now.
func New(cfg Config, q Activator, clock func() time.Time) *Keeper {
	if cfg.Interval <= 0 {
		cfg.Interval = 30 * time.Second
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 1
	}
	limit := rate.Inf
	if cfg.RatePerSec > 0 {
		limit = rate.Limit(cfg.RatePerSec)
	}
	if clock == nil {
		clock = time.Now
	}
	return &Keeper{
		cfg:     cfg,
		queue:   q,
		limiter: rate.NewLimiter(limit, cfg.Burst),
		now:     clock,
	}
}

// Run ejecuta ciclos hasta que el contexto se cancele (o uno solo si Once).
func (k *Keeper) Run(ctx context.Context) error {
	slog.Info("keeper starting",
		"interval", k.cfg.Interval,
		"rate_per_sec", k.cfg.RatePerSec,
		"once", k.cfg.Once,
	)

	if _, err := k.runCycle(ctx); err != nil {
		slog.Error("keeper cycle failed", "err", err)
		if k.cfg.Once {
			return err
		}
	}
	if k.cfg.Once {
		return nil
	}

	ticker := time.NewTicker(k.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("keeper stopped")
			return nil
		case <-ticker.C:
			if _, err := k.runCycle(ctx); err != nil {
				slog.Error("keeper cycle failed", "err", err)
			}
		}
	}
}

// RunOnce ejecuta un ciclo y devuelve cuántos bids activó.
func (k *Keeper) RunOnce(ctx context.Context) (int, error) {
	return k.runCycle(ctx)
}

func (k *Keeper) runCycle(ctx context.Context) (int, error) {
	start := time.Now()
	delay := k.queue.Meta().ActivationDelay
	now := k.now()

	var activated, skipped int
	for _, pb := range k.queue.PendingBids() {
		if now.Sub(pb.Bid.Timestamp) < delay {
			skipped++
			continue
		}
		if err := k.limiter.Wait(ctx); err != nil {
			return activated, fmt.Errorf("keeper.runCycle: %w", err)
		}

		pos, err := k.queue.ActivateBid(ctx, k.cfg.Caller, pb.Bidder, pb.Pool)
		switch {
		case err == nil:
			activated++
			slog.Debug("keeper: activated", "pool", pb.Pool, "bidder", pb.Bidder.Hex(), "position", pos)
		case errors.Is(err, domain.ErrTooSoon), errors.Is(err, domain.ErrBidNotFound):
			// Otro actor lo movió (o lo re-ofertó) entre el listado y la llamada.
			skipped++
		default:
			slog.Warn("keeper: activation failed", "pool", pb.Pool, "bidder", pb.Bidder.Hex(), "err", err)
		}
	}

	if activated > 0 && k.AfterCycle != nil {
		if err := k.AfterCycle(ctx, activated); err != nil {
			return activated, fmt.Errorf("keeper.runCycle: after cycle: %w", err)
		}
	}

	slog.Info("keeper cycle complete",
		"activated", activated,
		"waiting", skipped,
		"duration", time.Since(start).Round(time.Millisecond),
	)
	return activated, nil
}
