package notify

import (
	"context"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/olekukonko/tablewriter"
	"github.com/voantyh/tapioca-bar-audit/internal/domain"
)

// Console presenta el estado del queue en la terminal. También implementa
// ports.EventSink imprimiendo una línea por evento.
type Console struct {
	out         io.Writer
	bidDecimals int32
	liqDecimals int32
}

// NewConsole crea un notificador que escribe a w (stdout si es nil). Los
// decimales son los del bid asset y del liquidated asset, solo para presentación.
func NewConsole(w io.Writer, bidDecimals, liqDecimals int32) *Console {
	if w == nil {
		w = os.Stdout
	}
	return &Console{out: w, bidDecimals: bidDecimals, liqDecimals: liqDecimals}
}

// NewConsoleWriter crea un notificador para tests (sin decimales).
func NewConsoleWriter(w io.Writer) *Console {
	return &Console{out: w}
}

// Publish imprime cada evento en una línea compacta.
func (c *Console) Publish(_ context.Context, events []domain.Event) error {
	for _, ev := range events {
		fmt.Fprintln(c.out, c.eventLine(ev))
	}
	return nil
}

// PrintBook imprime el order book de un pool.
func (c *Console) PrintBook(info domain.PoolInfo) {
	fmt.Fprintf(c.out, "\nPool %d | premium %s | next pull %d | next push %d | liquidity %s\n",
		info.Pool, domain.FormatBps(info.PremiumBps), info.NextPull, info.NextPush,
		c.bid(&info.Liquidity))

	if len(info.Entries) == 0 {
		fmt.Fprintln(c.out, "  (empty)")
		return
	}

	table := tablewriter.NewWriter(c.out)
	table.Header("#", "Bidder", "Amount", "Initial", "Activated", "State")
	for i, e := range info.Entries {
		table.Append(
			fmt.Sprintf("%d", i),
			shortAddr(e.Bidder),
			c.bid(&e.BidInfo.Amount),
			c.bid(&e.Initial),
			e.BidInfo.Timestamp.UTC().Format(time.DateTime),
			entryState(e, i, info.NextPull),
		)
	}
	table.Render()
}

// PrintPending imprime los bids pendientes de activación.
func (c *Console) PrintPending(rows []PendingRow, delay time.Duration, now time.Time) {
	fmt.Fprintf(c.out, "\nPending bids (activation delay %s)\n", delay)
	if len(rows) == 0 {
		fmt.Fprintln(c.out, "  (none)")
		return
	}

	table := tablewriter.NewWriter(c.out)
	table.Header("Pool", "Bidder", "Amount", "Placed", "Activable in")
	for _, r := range rows {
		wait := r.Bid.Timestamp.Add(delay).Sub(now)
		label := "now"
		if wait > 0 {
			label = wait.Truncate(time.Second).String()
		}
		table.Append(
			fmt.Sprintf("%d", r.Pool),
			shortAddr(r.Bidder),
			c.bid(&r.Bid.Amount),
			r.Bid.Timestamp.UTC().Format(time.DateTime),
			label,
		)
	}
	table.Render()
}

// PendingRow es un bid pendiente para PrintPending.
type PendingRow struct {
	Pool   int
	Bidder common.Address
	Bid    domain.BidInfo
}

// PrintExecution imprime el resultado de un executeBids.
func (c *Console) PrintExecution(res domain.ExecutionResult) {
	fmt.Fprintf(c.out, "\nExecution: requested %s | satisfied %s | shortfall %s\n",
		c.liq(&res.Requested), c.liq(&res.Satisfied), c.liq(&res.Shortfall))
	fmt.Fprintf(c.out, "  bid asset to market %s | fees %s | fills %d\n",
		c.bid(&res.BidAssetUsed), c.liq(&res.Fees), len(res.Fills))

	if len(res.Fills) == 0 {
		return
	}

	table := tablewriter.NewWriter(c.out)
	table.Header("Pool", "Pos", "Bidder", "Bid used", "Liquidated", "Fee", "Credited", "Partial")
	for _, f := range res.Fills {
		partial := ""
		if f.Partial {
			partial = "yes"
		}
		table.Append(
			fmt.Sprintf("%d", f.Pool),
			fmt.Sprintf("%d", f.Position),
			shortAddr(f.Bidder),
			c.bid(&f.BidAmount),
			c.liq(&f.Liquidated),
			c.liq(&f.Fee),
			c.liq(&f.BidderCredit),
			partial,
		)
	}
	table.Render()

	if !res.Shortfall.IsZero() {
		fmt.Fprintf(c.out, "  WARNING: queue liquidity exhausted, %s left for the market to cover.\n",
			c.liq(&res.Shortfall))
	}
}

// PrintBalances imprime los saldos pendientes de redimir, mayor primero.
func (c *Console) PrintBalances(balances map[common.Address]uint256.Int) {
	fmt.Fprintln(c.out, "\nBalances due")
	if len(balances) == 0 {
		fmt.Fprintln(c.out, "  (none)")
		return
	}

	accounts := make([]common.Address, 0, len(balances))
	for a := range balances {
		accounts = append(accounts, a)
	}
	sort.Slice(accounts, func(i, j int) bool {
		bi, bj := balances[accounts[i]], balances[accounts[j]]
		if !bi.Eq(&bj) {
			return bi.Gt(&bj)
		}
		return accounts[i].Hex() < accounts[j].Hex()
	})

	table := tablewriter.NewWriter(c.out)
	table.Header("Account", "Due")
	for _, a := range accounts {
		due := balances[a]
		table.Append(a.Hex(), c.liq(&due))
	}
	table.Render()
}

// PrintEvents imprime un listado de eventos.
func (c *Console) PrintEvents(events []domain.Event) {
	if len(events) == 0 {
		fmt.Fprintf(c.out, "[%s] no events\n", time.Now().Format("15:04:05"))
		return
	}
	for _, ev := range events {
		fmt.Fprintln(c.out, c.eventLine(ev))
	}
}

func (c *Console) eventLine(ev domain.Event) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "[%s] %-19s %s", ev.At.Local().Format("15:04:05"), ev.Type, shortAddr(ev.Account))
	if ev.Pool >= 0 {
		fmt.Fprintf(&sb, " pool=%d", ev.Pool)
	}
	if ev.Position >= 0 {
		fmt.Fprintf(&sb, " pos=%d", ev.Position)
	}
	switch ev.Type {
	case domain.EventBidExecuted, domain.EventRedeemed:
		fmt.Fprintf(&sb, " amount=%s", c.liq(&ev.Amount))
	case domain.EventInitialized, domain.EventBidSwapperChanged:
	default:
		fmt.Fprintf(&sb, " amount=%s", c.bid(&ev.Amount))
	}
	if ev.Type == domain.EventBidExecuted && !ev.Extra.IsZero() {
		fmt.Fprintf(&sb, " fee=%s", c.liq(&ev.Extra))
	}
	if ev.Detail != "" {
		fmt.Fprintf(&sb, " (%s)", ev.Detail)
	}
	return sb.String()
}

func (c *Console) bid(a *uint256.Int) string { return domain.FormatUnits(a, c.bidDecimals) }
func (c *Console) liq(a *uint256.Int) string { return domain.FormatUnits(a, c.liqDecimals) }

func entryState(e domain.OrderBookEntry, pos, nextPull int) string {
	switch {
	case e.Voided:
		return "removed"
	case e.BidInfo.Amount.IsZero():
		return "filled"
	case !e.Intact():
		return "partial"
	case pos == nextPull:
		return "next"
	}
	return "open"
}

// shortAddr abrevia una dirección: 0x1234…abcd.
func shortAddr(a common.Address) string {
	h := a.Hex()
	return h[:6] + "…" + h[len(h)-4:]
}
