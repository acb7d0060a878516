package tools

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/cespare/xxhash/v2"
)

const (
	unitPriceCents = 9999
	orderIDBuckets = 10000
)

type orderRecord struct {
	OrderID     string  `json:"order_id"`
	Product     string  `json:"product"`
	Quantity    int     `json:"quantity"`
	TotalAmount float64 `json:"total_amount"`
	Status      string  `json:"status"`
	CreatedBy   string  `json:"created_by"`
	CreatedAt   string  `json:"created_at"`
}

func (r *Runner) createOrder(_ context.Context, inv Invocation) (string, error) {
	var req struct {
		Product  string `json:"product"`
		Quantity int    `json:"quantity"`
	}
	if err := decodeArgsStrict(inv.Arguments, &req); err != nil {
		return "", err
	}
	product := strings.TrimSpace(req.Product)
	if product == "" {
		return "", validationErrorf("product is required")
	}
	if req.Quantity <= 0 {
		return "", validationErrorf("quantity must be greater than 0")
	}

	order := orderRecord{
		OrderID:     orderID(inv.Principal.UserID, product),
		Product:     product,
		Quantity:    req.Quantity,
		TotalAmount: orderTotal(req.Quantity),
		Status:      "created",
		CreatedBy:   inv.Principal.Username,
		CreatedAt:   r.now().UTC().Format(time.RFC3339),
	}

	rendered, err := renderJSON(order)
	if err != nil {
		return "", err
	}
	return "✅ Order created:\n" + rendered, nil
}

// orderID is stable for a given user and product.
func orderID(userID int64, product string) string {
	return fmt.Sprintf("ORD-%d-%d", userID, xxhash.Sum64String(product)%orderIDBuckets)
}

// orderTotal computes quantity × 99.99 in cents so the result has no float drift.
func orderTotal(quantity int) float64 {
	return float64(int64(quantity)*unitPriceCents) / 100
}
