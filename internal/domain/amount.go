package domain

import (
	"fmt"
	"strings"

	"github.com/holiman/uint256"
	"github.com/shopspring/decimal"
)

// ParseAmount convierte un entero decimal ("1500") a uint256.
// Un string vacío devuelve cero.
func ParseAmount(s string) (uint256.Int, error) {
	s = strings.TrimSpace(strings.ReplaceAll(s, "_", ""))
	if s == "" {
		return uint256.Int{}, nil
	}
	v, err := uint256.FromDecimal(s)
	if err != nil {
		return uint256.Int{}, fmt.Errorf("domain.ParseAmount: %q: %w", s, err)
	}
	return *v, nil
}

// ParseUnits convierte una cantidad con decimales ("12.5") a unidades
// enteras del activo. Rechaza más precisión de la que admite el activo.
func ParseUnits(s string, decimals int32) (uint256.Int, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return uint256.Int{}, fmt.Errorf("domain.ParseUnits: %q: %w", s, err)
	}
	if d.IsNegative() {
		return uint256.Int{}, fmt.Errorf("domain.ParseUnits: %q is negative", s)
	}
	scaled := d.Shift(decimals)
	if !scaled.Equal(scaled.Truncate(0)) {
		return uint256.Int{}, fmt.Errorf("domain.ParseUnits: %q exceeds %d decimals", s, decimals)
	}
	v, overflow := uint256.FromBig(scaled.BigInt())
	if overflow {
		return uint256.Int{}, fmt.Errorf("domain.ParseUnits: %q: %w", s, ErrAmountOverflow)
	}
	return *v, nil
}

// FormatUnits presenta un amount entero con los decimales del activo.
func FormatUnits(a *uint256.Int, decimals int32) string {
	if decimals <= 0 {
		return a.Dec()
	}
	return decimal.NewFromBigInt(a.ToBig(), -decimals).String()
}

// FormatBps presenta basis points como porcentaje ("2.5%").
func FormatBps(bps uint64) string {
	return decimal.New(int64(bps), -2).String() + "%"
}
