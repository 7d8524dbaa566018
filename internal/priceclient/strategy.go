// Package priceclient implements the dynamic-price strategy evaluator
// (pure, spec.md §9 Design Note "price feed coupling") and an HTTP
// fetch+cache adapter grounded on the teacher's entsoe.APIClient
// request/timeout shape.
package priceclient

import (
	"sort"
	"time"
)

// Strategy selects which SCHEDULED-mode price rule to apply (spec.md
// §4.5).
type Strategy string

const (
	StrategyLevel      Strategy = "level"
	StrategyThreshold  Strategy = "threshold"
	StrategyPercentile Strategy = "percentile"
)

// HourlyPrice is one hour's price in a price horizon.
type HourlyPrice struct {
	Hour  time.Time
	Price float64
}

// Input is the pure, I/O-free input the strategy evaluator needs.
type Input struct {
	Now    time.Time
	Prices []HourlyPrice // the next-24h horizon, any order

	Strategy      Strategy
	AbsoluteLimit float64 // used by "level"
	Tolerance     float64 // used by "threshold"
	Percentile    float64 // used by "percentile", e.g. 0.3 for cheapest 30%
}

// ShouldCharge evaluates whether the current hour is a charge hour
// under the configured strategy, and the price effective at that
// hour. ok is false when the current hour has no price data.
func ShouldCharge(in Input) (charge bool, priceAtHour float64, ok bool) {
	current, found := priceForHour(in.Prices, in.Now)
	if !found {
		return false, 0, false
	}

	switch in.Strategy {
	case StrategyLevel:
		return current.Price <= in.AbsoluteLimit, current.Price, true

	case StrategyThreshold:
		cheapest, any := cheapestPrice(in.Prices)
		if !any {
			return false, current.Price, true
		}
		return current.Price <= cheapest*(1+in.Tolerance), current.Price, true

	case StrategyPercentile:
		return current.Price <= percentileThreshold(in.Prices, in.Percentile), current.Price, true

	default:
		return false, current.Price, true
	}
}

func priceForHour(prices []HourlyPrice, at time.Time) (HourlyPrice, bool) {
	for _, p := range prices {
		if sameHour(p.Hour, at) {
			return p, true
		}
	}
	return HourlyPrice{}, false
}

func sameHour(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd && a.Hour() == b.Hour()
}

func cheapestPrice(prices []HourlyPrice) (float64, bool) {
	if len(prices) == 0 {
		return 0, false
	}
	min := prices[0].Price
	for _, p := range prices[1:] {
		if p.Price < min {
			min = p.Price
		}
	}
	return min, true
}

// percentileThreshold returns the highest price still within the
// cheapest `pct` fraction of hours (e.g. pct=0.3 -> cheapest 30%).
func percentileThreshold(prices []HourlyPrice, pct float64) float64 {
	if len(prices) == 0 {
		return 0
	}
	sorted := make([]float64, len(prices))
	for i, p := range prices {
		sorted[i] = p.Price
	}
	sort.Float64s(sorted)

	n := int(float64(len(sorted)) * pct)
	if n < 1 {
		n = 1
	}
	if n > len(sorted) {
		n = len(sorted)
	}
	return sorted[n-1]
}

// ChargeHours expands the strategy's per-hour decision across the
// horizon into the hours that should charge, for exposure as virtual
// schedule items (spec.md §4.5: "chosen hours are expanded into
// virtual schedule items").
func ChargeHours(in Input) []time.Time {
	var hours []time.Time
	for _, p := range in.Prices {
		test := in
		test.Now = p.Hour
		if charge, _, ok := ShouldCharge(test); ok && charge {
			hours = append(hours, p.Hour)
		}
	}
	return hours
}
