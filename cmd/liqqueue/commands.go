package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/voantyh/tapioca-bar-audit/internal/adapters/notify"
	"github.com/voantyh/tapioca-bar-audit/internal/adapters/swapper"
	"github.com/voantyh/tapioca-bar-audit/internal/application/keeper"
	"github.com/voantyh/tapioca-bar-audit/internal/application/queue"
	"github.com/voantyh/tapioca-bar-audit/internal/domain"
)

type command func(ctx context.Context, a *app, args []string) error

var commands = map[string]command{
	"init":       cmdInit,
	"deposit":    cmdDeposit,
	"approve":    cmdApprove,
	"liquidity":  cmdLiquidity,
	"bid":        cmdBid,
	"bid-stable": cmdBidStable,
	"activate":   cmdActivate,
	"cancel":     cmdCancel,
	"remove":     cmdRemove,
	"execute":    cmdExecute,
	"redeem":     cmdRedeem,
	"book":       cmdBook,
	"status":     cmdStatus,
	"events":     cmdEvents,
	"keeper":     cmdKeeper,
}

func newFlags(name string, out io.Writer) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(out)
	return fs
}

// actor agrupa -as (quien firma) y -for (la cuenta afectada, por defecto -as).
type actor struct {
	as, on *string
}

func actorFlags(fs *flag.FlagSet) actor {
	return actor{
		as: fs.String("as", "", "caller account (label or hex)"),
		on: fs.String("for", "", "account acted upon (default: -as)"),
	}
}

func (ac actor) resolve(a *app) (caller, owner common.Address, err error) {
	caller, err = a.addr(*ac.as)
	if err != nil {
		return caller, owner, fmt.Errorf("-as: %w", err)
	}
	if *ac.on == "" {
		return caller, caller, nil
	}
	owner, err = a.addr(*ac.on)
	if err != nil {
		return caller, owner, fmt.Errorf("-for: %w", err)
	}
	return caller, owner, nil
}

func cmdInit(ctx context.Context, a *app, args []string) error {
	if err := newFlags("init", a.out).Parse(args); err != nil {
		return err
	}
	if err := a.queue.Init(ctx, queue.Meta{
		QueueMeta:        a.meta,
		BidSwapper:       a.bidSwapper,
		ExecutionSwapper: a.executionSwapper,
	}); err != nil {
		return err
	}
	fmt.Fprintf(a.out, "%s initialized (activation delay %s, fee %s, premium step %s)\n",
		a.queue.Name(), a.meta.ActivationDelay, domain.FormatBps(a.meta.FeeBps),
		domain.FormatBps(a.queue.Meta().PremiumStepBps))
	return a.save(ctx)
}

func cmdDeposit(ctx context.Context, a *app, args []string) error {
	fs := newFlags("deposit", a.out)
	to := fs.String("to", "", "account to credit")
	asset := fs.Uint64("asset", 0, "asset id")
	amountStr := fs.String("amount", "", "amount in asset units")
	if err := fs.Parse(args); err != nil {
		return err
	}

	account, err := a.addr(*to)
	if err != nil {
		return err
	}
	id := domain.AssetID(*asset)
	amount, err := a.amount(*amountStr, id)
	if err != nil {
		return err
	}
	if err := a.store.Credit(ctx, account, id, &amount); err != nil {
		return err
	}
	bal, err := a.store.BalanceOf(ctx, account, id)
	if err != nil {
		return err
	}
	slog.Info("deposit", "account", account.Hex(), "asset", id, "amount", amount.Dec())
	fmt.Fprintf(a.out, "%s asset %d balance: %s\n", account.Hex(), id, a.format(&bal, id))
	return nil
}

func cmdApprove(ctx context.Context, a *app, args []string) error {
	fs := newFlags("approve", a.out)
	ownerStr := fs.String("owner", "", "account granting the approval")
	operatorStr := fs.String("operator", "", "account allowed to act for owner")
	revoke := fs.Bool("revoke", false, "revoke instead of grant")
	if err := fs.Parse(args); err != nil {
		return err
	}

	owner, err := a.addr(*ownerStr)
	if err != nil {
		return err
	}
	operator, err := a.addr(*operatorStr)
	if err != nil {
		return err
	}
	return a.store.Approve(ctx, owner, operator, !*revoke)
}

func cmdLiquidity(ctx context.Context, a *app, args []string) error {
	fs := newFlags("liquidity", a.out)
	idx := fs.Int("pool", 0, "swap pool index in config")
	providerStr := fs.String("provider", "", "account funding the pool")
	amountA := fs.String("a", "", "amount of asset_a")
	amountB := fs.String("b", "", "amount of asset_b")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *idx < 0 || *idx >= len(a.pools) {
		return fmt.Errorf("swap pool %d not configured (%d pools)", *idx, len(a.pools))
	}

	p := a.pools[*idx]
	provider, err := a.addr(*providerStr)
	if err != nil {
		return err
	}
	assetA, assetB := p.Pair()
	amtA, err := a.amount(*amountA, assetA)
	if err != nil {
		return err
	}
	amtB, err := a.amount(*amountB, assetB)
	if err != nil {
		return err
	}
	if err := p.AddLiquidity(ctx, a.store, provider, &amtA, &amtB); err != nil {
		return err
	}
	rA, rB := p.Reserves()
	fmt.Fprintf(a.out, "pool %d/%d reserves: %s / %s\n", assetA, assetB, a.format(&rA, assetA), a.format(&rB, assetB))
	return nil
}

func cmdBid(ctx context.Context, a *app, args []string) error {
	fs := newFlags("bid", a.out)
	ac := actorFlags(fs)
	pool := fs.Int("pool", 0, "premium pool (0..10)")
	amountStr := fs.String("amount", "", "bid asset amount")
	if err := fs.Parse(args); err != nil {
		return err
	}

	caller, bidder, err := ac.resolve(a)
	if err != nil {
		return err
	}
	amount, err := a.amount(*amountStr, a.meta.BidAssetID)
	if err != nil {
		return err
	}
	if err := a.queue.PlaceBid(ctx, caller, bidder, *pool, &amount); err != nil {
		return err
	}
	return a.save(ctx)
}

func cmdBidStable(ctx context.Context, a *app, args []string) error {
	fs := newFlags("bid-stable", a.out)
	ac := actorFlags(fs)
	pool := fs.Int("pool", 0, "premium pool (0..10)")
	from := fs.Uint64("from", 0, "asset paid in")
	amountStr := fs.String("amount", "", "amount of the paid asset")
	pathStr := fs.String("path", "", "swap route as asset ids, e.g. 3,1")
	minOutStr := fs.String("min-out", "", "minimum bid asset out (slippage guard)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	caller, bidder, err := ac.resolve(a)
	if err != nil {
		return err
	}
	fromAsset := domain.AssetID(*from)
	amount, err := a.amount(*amountStr, fromAsset)
	if err != nil {
		return err
	}

	var data []byte
	if *pathStr != "" || *minOutStr != "" {
		path, err := parsePath(*pathStr)
		if err != nil {
			return err
		}
		route := swapper.Route{Path: path}
		if *minOutStr != "" {
			minOut, err := a.amount(*minOutStr, a.meta.BidAssetID)
			if err != nil {
				return err
			}
			route.MinOut = minOut.Dec()
		}
		if data, err = swapper.EncodeRoute(route); err != nil {
			return err
		}
	}

	out, err := a.queue.PlaceBidWithStable(ctx, caller, bidder, *pool, fromAsset, &amount, data)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "swapped into %s of bid asset\n", a.format(&out, a.meta.BidAssetID))
	return a.save(ctx)
}

func cmdActivate(ctx context.Context, a *app, args []string) error {
	fs := newFlags("activate", a.out)
	ac := actorFlags(fs)
	pool := fs.Int("pool", 0, "premium pool (0..10)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	caller, bidder, err := ac.resolve(a)
	if err != nil {
		return err
	}
	pos, err := a.queue.ActivateBid(ctx, caller, bidder, *pool)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "activated at position %d of pool %d\n", pos, *pool)
	return a.save(ctx)
}

func cmdCancel(ctx context.Context, a *app, args []string) error {
	fs := newFlags("cancel", a.out)
	ac := actorFlags(fs)
	pool := fs.Int("pool", 0, "premium pool (0..10)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	caller, bidder, err := ac.resolve(a)
	if err != nil {
		return err
	}
	refund, err := a.queue.RemoveInactivatedBid(ctx, caller, bidder, *pool)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "refunded %s\n", a.format(&refund, a.meta.BidAssetID))
	return a.save(ctx)
}

func cmdRemove(ctx context.Context, a *app, args []string) error {
	fs := newFlags("remove", a.out)
	ac := actorFlags(fs)
	pool := fs.Int("pool", 0, "premium pool (0..10)")
	index := fs.Int("index", 0, "ordinal among the bidder's open entries in the pool")
	if err := fs.Parse(args); err != nil {
		return err
	}

	caller, bidder, err := ac.resolve(a)
	if err != nil {
		return err
	}
	refund, err := a.queue.RemoveBid(ctx, caller, bidder, *pool, *index)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "refunded %s\n", a.format(&refund, a.meta.BidAssetID))
	return a.save(ctx)
}

func cmdExecute(ctx context.Context, a *app, args []string) error {
	fs := newFlags("execute", a.out)
	as := fs.String("as", "", "caller (default: configured market)")
	amountStr := fs.String("amount", "", "liquidated asset amount to cover")
	if err := fs.Parse(args); err != nil {
		return err
	}

	caller := a.meta.Market
	if *as != "" {
		var err error
		if caller, err = a.addr(*as); err != nil {
			return err
		}
	}
	amount, err := a.amount(*amountStr, a.meta.LiquidatedAssetID)
	if err != nil {
		return err
	}
	res, err := a.queue.ExecuteBids(ctx, caller, &amount)
	if err != nil {
		return err
	}
	a.console.PrintExecution(res)
	return a.save(ctx)
}

func cmdRedeem(ctx context.Context, a *app, args []string) error {
	fs := newFlags("redeem", a.out)
	ac := actorFlags(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}

	caller, beneficiary, err := ac.resolve(a)
	if err != nil {
		return err
	}
	amount, err := a.queue.Redeem(ctx, caller, beneficiary)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "redeemed %s\n", a.format(&amount, a.meta.LiquidatedAssetID))
	return a.save(ctx)
}

func cmdBook(_ context.Context, a *app, args []string) error {
	fs := newFlags("book", a.out)
	pool := fs.Int("pool", -1, "pool to print (-1: every pool with entries)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if *pool >= 0 {
		info, err := a.queue.OrderBook(*pool)
		if err != nil {
			return err
		}
		a.console.PrintBook(info)
		return nil
	}

	printed := 0
	for p := 0; p <= domain.MaxPool; p++ {
		info, err := a.queue.OrderBook(p)
		if err != nil {
			return err
		}
		if len(info.Entries) == 0 {
			continue
		}
		a.console.PrintBook(info)
		printed++
	}
	if printed == 0 {
		fmt.Fprintln(a.out, "all order books are empty")
	}
	return nil
}

func cmdStatus(_ context.Context, a *app, args []string) error {
	if err := newFlags("status", a.out).Parse(args); err != nil {
		return err
	}
	if !a.queue.Initialized() {
		fmt.Fprintln(a.out, "queue not initialized (run: liqqueue init)")
		return nil
	}

	m := a.queue.Meta()
	fmt.Fprintf(a.out, "%s\n", a.queue.Name())
	fmt.Fprintf(a.out, "  market %s | admin %s | fee collector %s\n", m.Market.Hex(), m.Admin.Hex(), m.FeeCollector.Hex())
	fmt.Fprintf(a.out, "  activation delay %s | min bid %s | fee %s | premium step %s\n",
		m.ActivationDelay, a.format(&m.MinBidAmount, m.BidAssetID),
		domain.FormatBps(m.FeeBps), domain.FormatBps(m.PremiumStepBps))
	bidSwapper := "none"
	if m.BidSwapper != nil {
		bidSwapper = m.BidSwapper.Name()
	}
	fmt.Fprintf(a.out, "  assets bid=%d market=%d liquidated=%d | bid swapper %s\n",
		m.BidAssetID, m.MarketAssetID, m.LiquidatedAssetID, bidSwapper)

	liquidity := a.queue.TotalLiquidity()
	capacity, err := a.queue.LiquidatableCapacity()
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "  open liquidity %s | can absorb %s\n",
		a.format(&liquidity, m.BidAssetID), a.format(&capacity, m.LiquidatedAssetID))
	if p, ok := a.queue.NextAvailableBidPool(); ok {
		fmt.Fprintf(a.out, "  next available pool: %d (%s)\n", p, domain.FormatBps(m.PremiumBps(p)))
	}

	pending := a.queue.PendingBids()
	rows := make([]notify.PendingRow, 0, len(pending))
	for _, pb := range pending {
		rows = append(rows, notify.PendingRow{Pool: pb.Pool, Bidder: pb.Bidder, Bid: pb.Bid})
	}
	a.console.PrintPending(rows, m.ActivationDelay, time.Now())
	a.console.PrintBalances(a.queue.BalancesDue())
	return nil
}

func cmdEvents(ctx context.Context, a *app, args []string) error {
	fs := newFlags("events", a.out)
	since := fs.Duration("since", 24*time.Hour, "how far back to look")
	if err := fs.Parse(args); err != nil {
		return err
	}

	now := time.Now()
	events, err := a.store.GetEvents(ctx, now.Add(-*since), now)
	if err != nil {
		return err
	}
	a.console.PrintEvents(events)
	return nil
}

func cmdKeeper(ctx context.Context, a *app, args []string) error {
	fs := newFlags("keeper", a.out)
	once := fs.Bool("once", false, "run one activation cycle and exit")
	if err := fs.Parse(args); err != nil {
		return err
	}

	caller, err := a.addr(a.cfg.Keeper.Caller)
	if err != nil {
		return fmt.Errorf("keeper.caller: %w", err)
	}
	k := keeper.New(keeper.Config{
		Interval:   a.cfg.KeeperInterval(),
		RatePerSec: a.cfg.Keeper.RatePerSec,
		Burst:      a.cfg.Keeper.Burst,
		Caller:     caller,
		Once:       *once,
	}, a.queue, nil)
	k.AfterCycle = func(ctx context.Context, _ int) error { return a.save(ctx) }
	return k.Run(ctx)
}
