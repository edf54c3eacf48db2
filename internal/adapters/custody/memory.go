package custody

import (
	"context"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/voantyh/tapioca-bar-audit/internal/domain"
	"github.com/voantyh/tapioca-bar-audit/internal/ports"
)

type balanceKey struct {
	account common.Address
	asset   domain.AssetID
}

// Ledger implementa ports.Custody en memoria. Lo usan los tests y la
// simulación; la CLI usa la versión SQLite.
type Ledger struct {
	mu         sync.Mutex
	balances   map[balanceKey]uint256.Int
	allowances map[common.Address]map[common.Address]bool
}

var _ ports.Custody = (*Ledger)(nil)

// NewLedger crea un ledger vacío.
func NewLedger() *Ledger {
	return &Ledger{
		balances:   make(map[balanceKey]uint256.Int),
		allowances: make(map[common.Address]map[common.Address]bool),
	}
}

// Debit resta amount del saldo de la cuenta.
func (l *Ledger) Debit(_ context.Context, account common.Address, asset domain.AssetID, amount *uint256.Int) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	k := balanceKey{account, asset}
	bal := l.balances[k]
	if bal.Lt(amount) {
		return fmt.Errorf("custody.Debit: %s asset %d has %s, needs %s: %w",
			account.Hex(), asset, bal.Dec(), amount.Dec(), domain.ErrInsufficientBalance)
	}
	bal.Sub(&bal, amount)
	if bal.IsZero() {
		delete(l.balances, k)
		return nil
	}
	l.balances[k] = bal
	return nil
}

// Credit suma amount al saldo de la cuenta.
func (l *Ledger) Credit(_ context.Context, account common.Address, asset domain.AssetID, amount *uint256.Int) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	k := balanceKey{account, asset}
	bal := l.balances[k]
	sum, err := domain.CheckedAdd(&bal, amount)
	if err != nil {
		return fmt.Errorf("custody.Credit: %s asset %d: %w", account.Hex(), asset, err)
	}
	if !sum.IsZero() {
		l.balances[k] = *sum
	}
	return nil
}

// BalanceOf devuelve el saldo (cero si la cuenta no existe).
func (l *Ledger) BalanceOf(_ context.Context, account common.Address, asset domain.AssetID) (uint256.Int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.balances[balanceKey{account, asset}], nil
}

// Allowed indica si operator está aprobado por owner.
func (l *Ledger) Allowed(_ context.Context, owner, operator common.Address) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.allowances[owner][operator], nil
}

// Approve concede o revoca a operator el permiso de actuar por owner.
func (l *Ledger) Approve(owner, operator common.Address, approved bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	ops := l.allowances[owner]
	if ops == nil {
		ops = make(map[common.Address]bool)
		l.allowances[owner] = ops
	}
	if approved {
		ops[operator] = true
		return
	}
	delete(ops, operator)
}

// Total suma todos los saldos de un activo. Útil para comprobar conservación.
func (l *Ledger) Total(asset domain.AssetID) uint256.Int {
	l.mu.Lock()
	defer l.mu.Unlock()

	var total uint256.Int
	for k, v := range l.balances {
		if k.asset == asset {
			total.Add(&total, &v)
		}
	}
	return total
}
