package clob

import (
	"fmt"
	"math/big"
	"strings"
)

const collateralTokenDecimals = 6

// Order amounts ride the 1e6 on-chain units but the CLOB API enforces
// stricter decimal rails and rejects anything finer:
// "buy orders maker amount supports a max accuracy of 2 decimals, taker
// amount a max of 4 decimals".
const (
	buyMakerMaxDecimals = 2 // collateral (USDC) spend
	buyTakerMaxDecimals = 4 // shares receive
)

var priceDecimalsByTickSize = map[string]int{
	"0.1":    1,
	"0.01":   2,
	"0.001":  3,
	"0.0001": 4,
}

func tickScaleFromTickSize(tickSize string) (*big.Int, int, error) {
	decimals, ok := priceDecimalsByTickSize[strings.TrimSpace(tickSize)]
	if !ok {
		return nil, 0, fmt.Errorf("unsupported tickSize %q", tickSize)
	}
	scale := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil)
	return scale, decimals, nil
}

func parseDecimalToUnits(s string, decimals int) (*big.Int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, fmt.Errorf("empty decimal string")
	}
	if strings.HasPrefix(s, "-") {
		return nil, fmt.Errorf("negative not supported: %q", s)
	}

	parts := strings.SplitN(s, ".", 3)
	if len(parts) > 2 {
		return nil, fmt.Errorf("invalid decimal: %q", s)
	}

	whole := parts[0]
	frac := ""
	if len(parts) == 2 {
		frac = parts[1]
	}
	if whole == "" {
		whole = "0"
	}

	if len(frac) > decimals {
		// Truncate extra precision; under-estimating is safer than
		// over-estimating.
		frac = frac[:decimals]
	}
	for len(frac) < decimals {
		frac += "0"
	}

	base := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil)
	w, ok := new(big.Int).SetString(whole, 10)
	if !ok {
		return nil, fmt.Errorf("invalid whole part: %q", s)
	}
	w.Mul(w, base)

	if frac != "" {
		f, ok := new(big.Int).SetString(frac, 10)
		if !ok {
			return nil, fmt.Errorf("invalid fractional part: %q", s)
		}
		w.Add(w, f)
	}
	return w, nil
}

func unitStep(keepDecimals int) *big.Int {
	if keepDecimals < 0 {
		keepDecimals = 0
	}
	if keepDecimals > collateralTokenDecimals {
		keepDecimals = collateralTokenDecimals
	}
	return new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(collateralTokenDecimals-keepDecimals)), nil)
}

func roundDownUnits(units *big.Int, keepDecimals int) *big.Int {
	if units == nil {
		return nil
	}
	if keepDecimals >= collateralTokenDecimals {
		return new(big.Int).Set(units)
	}
	step := unitStep(keepDecimals)
	q := new(big.Int).Div(units, step)
	return q.Mul(q, step)
}

func roundNearestUnits(units *big.Int, keepDecimals int) *big.Int {
	if units == nil {
		return nil
	}
	if keepDecimals >= collateralTokenDecimals {
		return new(big.Int).Set(units)
	}
	step := unitStep(keepDecimals)
	half := new(big.Int).Rsh(step, 1)
	q := new(big.Int).Add(units, half)
	q.Div(q, step)
	return q.Mul(q, step)
}

// computeBuyAmounts turns (shares, price) into the maker/taker unit amounts
// of a BUY order: maker = collateral spent, taker = shares received.
func computeBuyAmounts(sizeUnits, priceTicks, priceScale *big.Int) (maker, taker *big.Int, err error) {
	if sizeUnits == nil || sizeUnits.Sign() <= 0 {
		return nil, nil, fmt.Errorf("size must be > 0")
	}
	if priceTicks == nil || priceTicks.Sign() <= 0 {
		return nil, nil, fmt.Errorf("price must be > 0")
	}
	if priceScale == nil || priceScale.Sign() <= 0 {
		return nil, nil, fmt.Errorf("price scale must be > 0")
	}

	collateral := new(big.Int).Mul(sizeUnits, priceTicks)
	collateral.Div(collateral, priceScale)

	maker = roundNearestUnits(collateral, buyMakerMaxDecimals)
	if maker.Sign() <= 0 {
		return nil, nil, fmt.Errorf("maker amount rounds to 0")
	}
	taker = roundDownUnits(sizeUnits, buyTakerMaxDecimals)
	if taker.Sign() <= 0 {
		return nil, nil, fmt.Errorf("taker amount rounds to 0")
	}
	return maker, taker, nil
}
