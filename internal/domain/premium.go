package domain

import (
	"fmt"

	"github.com/holiman/uint256"
)

var bpsDenominator = uint256.NewInt(BpsDenominator)

// FillCapacity devuelve cuánto liquidated asset compra un bid de amount
// en un pool con el premium dado: floor(amount * 10000 / (10000 - premium)).
// Redondea a la baja: el bidder nunca recibe de más.
func FillCapacity(amount *uint256.Int, premiumBps uint64) (*uint256.Int, error) {
	if premiumBps >= BpsDenominator {
		return nil, fmt.Errorf("domain.FillCapacity: premium %d bps: %w", premiumBps, ErrPremiumTooHigh)
	}
	d := uint256.NewInt(BpsDenominator - premiumBps)
	out, overflow := new(uint256.Int).MulDivOverflow(amount, bpsDenominator, d)
	if overflow {
		return nil, fmt.Errorf("domain.FillCapacity: %w", ErrAmountOverflow)
	}
	return out, nil
}

// BidForOutput devuelve el bid asset necesario para entregar out de liquidated
// asset: ceil(out * (10000 - premium) / 10000). Redondea al alza: el market
// nunca cobra de menos en un fill parcial.
func BidForOutput(out *uint256.Int, premiumBps uint64) (*uint256.Int, error) {
	if premiumBps >= BpsDenominator {
		return nil, fmt.Errorf("domain.BidForOutput: premium %d bps: %w", premiumBps, ErrPremiumTooHigh)
	}
	n := uint256.NewInt(BpsDenominator - premiumBps)
	bid, overflow := new(uint256.Int).MulDivOverflow(out, n, bpsDenominator)
	if overflow {
		return nil, fmt.Errorf("domain.BidForOutput: %w", ErrAmountOverflow)
	}
	if !new(uint256.Int).MulMod(out, n, bpsDenominator).IsZero() {
		bid.AddUint64(bid, 1)
	}
	return bid, nil
}

// FeeOf devuelve floor(amount * feeBps / 10000).
func FeeOf(amount *uint256.Int, feeBps uint64) *uint256.Int {
	fee, _ := new(uint256.Int).MulDivOverflow(amount, uint256.NewInt(feeBps), bpsDenominator)
	return fee
}

// CheckedAdd suma devolviendo ErrAmountOverflow en vez de envolver.
func CheckedAdd(a, b *uint256.Int) (*uint256.Int, error) {
	sum, overflow := new(uint256.Int).AddOverflow(a, b)
	if overflow {
		return nil, ErrAmountOverflow
	}
	return sum, nil
}
