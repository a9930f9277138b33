package domain

import (
	"fmt"
	"sync/atomic"
	"time"
)

// Order number prefixes. The withdraw prefix doubles as the marker the
// provider echoes back, so inbound callbacks can be matched to the right
// record even before the row is loaded.
const (
	DepositOrderPrefix  = "P"
	WithdrawOrderPrefix = "W"
)

// OrderNoGenerator produces merchant order numbers of the form
// <prefix><siteID><unix-millis><3-digit counter>. The counter removes the
// collision risk of two requests landing in the same millisecond while
// keeping the prefix+site+digits wire shape the provider expects.
type OrderNoGenerator struct {
	siteID  string
	counter atomic.Uint64
	now     func() time.Time
}

func NewOrderNoGenerator(siteID string) *OrderNoGenerator {
	return &OrderNoGenerator{siteID: siteID, now: time.Now}
}

// Next returns a fresh order number for the given direction.
func (g *OrderNoGenerator) Next(direction Direction) string {
	prefix := DepositOrderPrefix
	if direction == DirectionWithdraw {
		prefix = WithdrawOrderPrefix
	}
	seq := g.counter.Add(1) % 1000
	return fmt.Sprintf("%s%s%d%03d", prefix, g.siteID, g.now().UnixMilli(), seq)
}

// IsWithdrawOrderNo reports whether an order number carries the withdraw
// marker. Used only as a routing hint; the stored Direction is authoritative.
func IsWithdrawOrderNo(orderNo string) bool {
	return len(orderNo) > 0 && orderNo[:1] == WithdrawOrderPrefix
}
