// Package orders is the order service: health checks, order placement, a
// simulated order store and the downstream payment call, each traced as a
// child of the request span.
package orders

import (
	"math/rand/v2"
	"strconv"

	"github.com/google/uuid"
	"github.com/zoobzio/tracectx"
)

// Order is a placed order.
type Order struct {
	ID       string `json:"orderId"`
	ItemID   string `json:"itemId"`
	Quantity int    `json:"quantity"`
	UserID   int    `json:"userId"`
	Amount   int    `json:"amount"`
}

// Attributes renders the order as span attributes.
func (o Order) Attributes() tracectx.Attributes {
	return tracectx.Attributes{
		"order.id":       o.ID,
		"order.amount":   o.Amount,
		"order.itemId":   o.ItemID,
		"order.userId":   o.UserID,
		"order.quantity": o.Quantity,
	}
}

// Rand is the randomness the service draws order details and store
// failures from. *rand.Rand from math/rand/v2 satisfies it.
type Rand interface {
	IntN(n int) int
	Float64() float64
}

// globalRand uses the package level source, which is safe for concurrent use.
type globalRand struct{}

func (globalRand) IntN(n int) int   { return rand.IntN(n) }
func (globalRand) Float64() float64 { return rand.Float64() }

// between returns a uniform int in [lo, hi].
func between(r Rand, lo, hi int) int {
	return lo + r.IntN(hi-lo+1)
}

// RandomOrder builds an order with demo values: amount, item and user in
// [10, 1000], quantity in [1, 10].
func RandomOrder(r Rand) Order {
	return Order{
		ID:       uuid.NewString(),
		ItemID:   strconv.Itoa(between(r, 10, 1000)),
		Quantity: between(r, 1, 10),
		UserID:   between(r, 10, 1000),
		Amount:   between(r, 10, 1000),
	}
}
