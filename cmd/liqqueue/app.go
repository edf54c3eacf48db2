package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/voantyh/tapioca-bar-audit/config"
	"github.com/voantyh/tapioca-bar-audit/internal/adapters/notify"
	"github.com/voantyh/tapioca-bar-audit/internal/adapters/storage"
	"github.com/voantyh/tapioca-bar-audit/internal/adapters/swapper"
	"github.com/voantyh/tapioca-bar-audit/internal/application/queue"
	"github.com/voantyh/tapioca-bar-audit/internal/domain"
	"github.com/voantyh/tapioca-bar-audit/internal/ports"
)

// app agrupa las dependencias de una invocación de la CLI. El queue vive en
// memoria; se restaura del snapshot al abrir y se guarda tras cada cambio.
type app struct {
	cfg     *config.Config
	meta    domain.QueueMeta
	store   *storage.SQLiteStorage
	queue   *queue.Queue
	console *notify.Console
	pools   []*swapper.Pool
	out     io.Writer

	bidSwapper       ports.BidSwapper
	executionSwapper ports.BidSwapper
}

func openApp(ctx context.Context, cfg *config.Config, out io.Writer) (*app, error) {
	meta, err := cfg.QueueMeta()
	if err != nil {
		return nil, err
	}

	store, err := storage.NewSQLiteStorage(cfg.Storage.DSN)
	if err != nil {
		return nil, err
	}

	a := &app{
		cfg:     cfg,
		meta:    meta,
		store:   store,
		console: notify.NewConsole(out, cfg.Queue.Decimals.Bid, cfg.Queue.Decimals.Liquidated),
		out:     out,
	}
	if err := a.buildSwappers(ctx); err != nil {
		store.Close()
		return nil, err
	}

	a.queue = queue.New(store, fanout{store, a.console}, nil)

	snap, ok, err := store.LoadSnapshot(ctx)
	if err != nil {
		store.Close()
		return nil, err
	}
	if ok {
		if err := a.queue.Restore(snap, a.bidSwapper, a.executionSwapper); err != nil {
			store.Close()
			return nil, err
		}
		a.meta = a.queue.Meta().QueueMeta
		slog.Debug("queue restored", "pools", len(snap.Pools), "balances_due", len(snap.BalancesDue))
	}
	return a, nil
}

// buildSwappers crea los pools configurados y elige el adapter: pass-through
// sin pools, single-hop con uno, multi-hop con varios.
func (a *app) buildSwappers(ctx context.Context) error {
	for i, pc := range a.cfg.Swapper.Pools {
		account, err := a.cfg.Resolve(pc.Account)
		if err != nil {
			return fmt.Errorf("swapper.pools[%d]: %w", i, err)
		}
		p := swapper.NewPool(account, domain.AssetID(pc.AssetA), domain.AssetID(pc.AssetB), pc.FeeBps)
		if err := p.SyncReserves(ctx, a.store); err != nil {
			return err
		}
		a.pools = append(a.pools, p)
	}

	switch len(a.pools) {
	case 0:
		a.bidSwapper = swapper.NewPassThrough(a.store, a.meta.Queue)
	case 1:
		a.bidSwapper = swapper.NewSingleHop(a.store, a.meta.Queue, a.pools[0])
	default:
		router, err := a.cfg.Resolve(a.cfg.Swapper.Router)
		if err != nil {
			return fmt.Errorf("swapper.router: %w", err)
		}
		a.bidSwapper = swapper.NewMultiHop(a.store, a.meta.Queue, router, a.pools...)
	}
	if a.meta.BidAssetID != a.meta.MarketAssetID {
		a.executionSwapper = a.bidSwapper
	}
	return nil
}

// save persiste el snapshot y poda eventos viejos si hay retención.
func (a *app) save(ctx context.Context) error {
	snap, err := a.queue.Snapshot()
	if err != nil {
		return err
	}
	if err := a.store.SaveSnapshot(ctx, snap); err != nil {
		return err
	}
	if retention := a.cfg.EventRetention(); retention > 0 {
		n, err := a.store.PruneEvents(ctx, time.Now().Add(-retention))
		if err != nil {
			slog.Warn("event prune failed", "err", err)
		} else if n > 0 {
			slog.Debug("events pruned", "count", n)
		}
	}
	return nil
}

func (a *app) close() {
	if err := a.store.Close(); err != nil {
		slog.Warn("storage close failed", "err", err)
	}
}

// addr resuelve un alias de config o una dirección hex.
func (a *app) addr(s string) (common.Address, error) {
	if s == "" {
		return common.Address{}, errors.New("missing account")
	}
	return a.cfg.Resolve(s)
}

// decimals devuelve los decimales de presentación de un activo.
func (a *app) decimals(asset domain.AssetID) int32 {
	switch asset {
	case a.meta.BidAssetID:
		return a.cfg.Queue.Decimals.Bid
	case a.meta.LiquidatedAssetID:
		return a.cfg.Queue.Decimals.Liquidated
	}
	return 0
}

// amount parsea una cantidad en unidades humanas del activo.
func (a *app) amount(s string, asset domain.AssetID) (uint256.Int, error) {
	if s == "" {
		return uint256.Int{}, errors.New("missing amount")
	}
	return domain.ParseUnits(s, a.decimals(asset))
}

func (a *app) format(v *uint256.Int, asset domain.AssetID) string {
	return domain.FormatUnits(v, a.decimals(asset))
}

// parsePath convierte "3,1" en una ruta de activos.
func parsePath(s string) ([]domain.AssetID, error) {
	if s == "" {
		return nil, nil
	}
	parts := strings.Split(s, ",")
	path := make([]domain.AssetID, 0, len(parts))
	for _, p := range parts {
		id, err := strconv.ParseUint(strings.TrimSpace(p), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("path %q: %w", s, err)
		}
		path = append(path, domain.AssetID(id))
	}
	return path, nil
}

// fanout publica cada lote en todos los sinks (SQLite y consola).
type fanout []ports.EventSink

func (f fanout) Publish(ctx context.Context, events []domain.Event) error {
	var errs []error
	for _, s := range f {
		if err := s.Publish(ctx, events); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
