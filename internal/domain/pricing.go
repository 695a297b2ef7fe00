package domain

import (
	"sort"
	"time"
)

// Subtotal prices the selected rooms for the stay.
func Subtotal(rooms []Room, nights int) float64 {
	if nights < 1 {
		nights = 1
	}
	var sum float64
	for _, r := range rooms {
		sum += r.PricePerNight * float64(nights)
	}
	return sum
}

// Discount returns what the voucher takes off subtotal, or zero when it does
// not apply.
func (v Voucher) Discount(subtotal float64, now time.Time) float64 {
	if !v.ExpiredDate.IsZero() && v.ExpiredDate.Before(now) {
		return 0
	}
	if subtotal < v.PriceCondition {
		return 0
	}
	discount := subtotal * v.PercentDiscount / 100
	if discount > subtotal {
		return subtotal
	}
	return discount
}

func Total(subtotal, discount float64) float64 {
	if t := subtotal - discount; t > 0 {
		return t
	}
	return 0
}

// NormalizeRoomIDs sorts and dedupes ids. ok is false when an id is not
// positive or the list is empty.
func NormalizeRoomIDs(ids []int64) ([]int64, bool) {
	if len(ids) == 0 {
		return nil, false
	}
	seen := make(map[int64]struct{}, len(ids))
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if id <= 0 {
			return nil, false
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out, true
}
