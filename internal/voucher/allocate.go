package voucher

import (
	"math/bits"
	"sort"

	"github.com/noah-isme/toko-checkout/internal/pricing"
)

// Allocate splits total across weights proportionally using the largest
// remainder method. The shares always sum to total when total does not
// exceed the sum of weights, and no share exceeds its weight.
func Allocate(total pricing.Money, weights []pricing.Money) []pricing.Money {
	shares := make([]pricing.Money, len(weights))
	if total <= 0 || len(weights) == 0 {
		return shares
	}
	var sum pricing.Money
	for _, w := range weights {
		if w > 0 {
			sum += w
		}
	}
	if sum <= 0 {
		return shares
	}
	if total > sum {
		total = sum
	}
	type remainder struct {
		idx int
		rem pricing.Money
	}
	rems := make([]remainder, 0, len(weights))
	var assigned pricing.Money
	for i, w := range weights {
		if w <= 0 {
			continue
		}
		q, r := mulDiv(total, w, sum)
		shares[i] = q
		assigned += q
		rems = append(rems, remainder{idx: i, rem: r})
	}
	sort.SliceStable(rems, func(i, j int) bool { return rems[i].rem > rems[j].rem })
	left := total - assigned
	for _, r := range rems {
		if left <= 0 {
			break
		}
		if shares[r.idx] < weights[r.idx] {
			shares[r.idx]++
			left--
		}
	}
	return shares
}

// mulDiv returns a*b/d and its remainder with a 128-bit intermediate product.
// a and b must not be negative, d must be positive and the quotient must fit
// in Money; total <= sum and a percentage of at most 100% both guarantee it.
func mulDiv(a, b, d pricing.Money) (pricing.Money, pricing.Money) {
	hi, lo := bits.Mul64(uint64(a), uint64(b))
	q, r := bits.Div64(hi, lo, uint64(d))
	return pricing.Money(q), pricing.Money(r)
}
