package notify_test

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/voantyh/tapioca-bar-audit/internal/adapters/notify"
	"github.com/voantyh/tapioca-bar-audit/internal/domain"
)

var (
	alice = common.HexToAddress("0xA11CE00000000000000000000000000000000001")
	bob   = common.HexToAddress("0xB0B0000000000000000000000000000000000002")
)

func u(v uint64) uint256.Int { return *uint256.NewInt(v) }

func TestConsole_PrintBook(t *testing.T) {
	var buf bytes.Buffer
	n := notify.NewConsoleWriter(&buf)

	at := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	n.PrintBook(domain.PoolInfo{
		Pool:       2,
		PremiumBps: 200,
		NextPush:   3,
		NextPull:   1,
		Liquidity:  u(700),
		Entries: []domain.OrderBookEntry{
			{Bidder: alice, BidInfo: domain.BidInfo{Timestamp: at}, Initial: u(300)},
			{Bidder: bob, BidInfo: domain.BidInfo{Amount: u(200), Timestamp: at}, Initial: u(400)},
			{Bidder: alice, BidInfo: domain.BidInfo{Amount: u(500), Timestamp: at}, Initial: u(500)},
		},
	})

	out := buf.String()
	assert.Contains(t, out, "Pool 2")
	assert.Contains(t, out, "2%")
	assert.Contains(t, out, "700")
	assert.Contains(t, out, "filled")
	assert.Contains(t, out, "partial")
	assert.Contains(t, out, "open")
	assert.Contains(t, out, "2026-03-01 10:00:00")
}

func TestConsole_PrintBook_Empty(t *testing.T) {
	var buf bytes.Buffer
	n := notify.NewConsoleWriter(&buf)

	n.PrintBook(domain.PoolInfo{Pool: 0})
	assert.Contains(t, buf.String(), "(empty)")
}

func TestConsole_PrintExecution_Shortfall(t *testing.T) {
	var buf bytes.Buffer
	n := notify.NewConsoleWriter(&buf)

	n.PrintExecution(domain.ExecutionResult{
		Requested:    u(1_000),
		Satisfied:    u(600),
		Shortfall:    u(400),
		BidAssetUsed: u(594),
		Fees:         u(3),
		Fills: []domain.Fill{
			{Pool: 1, Position: 0, Bidder: alice, BidAmount: u(594), Liquidated: u(600), Fee: u(3), BidderCredit: u(597)},
		},
	})

	out := buf.String()
	assert.Contains(t, out, "requested 1000")
	assert.Contains(t, out, "shortfall 400")
	assert.Contains(t, out, "597")
	assert.Contains(t, out, "WARNING")
}

func TestConsole_PrintExecution_NoShortfallNoWarning(t *testing.T) {
	var buf bytes.Buffer
	n := notify.NewConsoleWriter(&buf)

	n.PrintExecution(domain.ExecutionResult{Requested: u(10), Satisfied: u(10)})
	assert.NotContains(t, buf.String(), "WARNING")
}

func TestConsole_PrintBalances_SortedDesc(t *testing.T) {
	var buf bytes.Buffer
	n := notify.NewConsoleWriter(&buf)

	n.PrintBalances(map[common.Address]uint256.Int{
		alice: u(5),
		bob:   u(900),
	})

	out := buf.String()
	require.Contains(t, out, alice.Hex())
	require.Contains(t, out, bob.Hex())
	assert.Less(t, bytes.Index(buf.Bytes(), []byte(bob.Hex())), bytes.Index(buf.Bytes(), []byte(alice.Hex())))
}

func TestConsole_Publish(t *testing.T) {
	var buf bytes.Buffer
	n := notify.NewConsoleWriter(&buf)

	err := n.Publish(context.Background(), []domain.Event{
		{Type: domain.EventBidExecuted, At: time.Now(), Account: alice, Pool: 3, Position: 7,
			Amount: u(995), Extra: u(5), Detail: "bid 1000 liquidated 1000"},
		{Type: domain.EventInitialized, At: time.Now(), Account: bob, Pool: -1, Position: -1},
	})
	require.NoError(t, err)

	out := buf.String()
	assert.Contains(t, out, "BID_EXECUTED")
	assert.Contains(t, out, "pool=3")
	assert.Contains(t, out, "pos=7")
	assert.Contains(t, out, "amount=995")
	assert.Contains(t, out, "fee=5")
	assert.Contains(t, out, "INITIALIZED")
	assert.NotContains(t, out, "pool=-1")
}

func TestConsole_PrintPending(t *testing.T) {
	var buf bytes.Buffer
	n := notify.NewConsoleWriter(&buf)
	n.PrintPending([]notify.PendingRow{
		{Pool: 4, Bidder: alice, Bid: domain.BidInfo{Amount: u(250), Timestamp: time.Now().Add(-time.Hour)}},
	}, 10*time.Minute, time.Now())

	out := buf.String()
	assert.Contains(t, out, "250")
	assert.Contains(t, out, "now")
}
