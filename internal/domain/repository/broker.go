package repository

import (
	"context"
	"time"
)

// OrderSide is the broker-side order direction.
type OrderSide string

const (
	OrderSideBuy  OrderSide = "BUY"
	OrderSideSell OrderSide = "SELL"
)

// OrderStatus is the broker-reported order state. The broker owns the order
// record; this core holds only the id plus last-known status.
type OrderStatus string

const (
	OrderStatusFilled    OrderStatus = "FILLED"
	OrderStatusCancelled OrderStatus = "CANCELLED"
	OrderStatusRejected  OrderStatus = "REJECTED"
	OrderStatusPending   OrderStatus = "PENDING"
	OrderStatusExecuting OrderStatus = "EXECUTING"
)

// IsClosed reports whether the broker will not change the order further.
func (s OrderStatus) IsClosed() bool {
	switch s {
	case OrderStatusFilled, OrderStatusCancelled, OrderStatusRejected:
		return true
	default:
		return false
	}
}

// UnderlyingPosition is an equity position as reported by the broker.
type UnderlyingPosition struct {
	Symbol   string  `json:"symbol"`
	Quantity float64 `json:"quantity"` // negative for short
	AvgPrice float64 `json:"avg_price"`
	LastPrice float64 `json:"last_price"`
	Currency string  `json:"currency"`
}

// OptionContract identifies an option series.
type OptionContract struct {
	Underlying string    `json:"underlying"`
	Expiry     time.Time `json:"expiry"`
	Multiplier float64   `json:"multiplier"`
}

// Greeks are the broker-reported per-contract sensitivities.
type Greeks struct {
	Delta float64 `json:"delta"`
	Gamma float64 `json:"gamma"`
	Vega  float64 `json:"vega"`
	Theta float64 `json:"theta"`
}

// OptionPosition is an option position as reported by the broker.
type OptionPosition struct {
	Contract        OptionContract `json:"contract"`
	Quantity        float64        `json:"quantity"` // contracts, negative for short
	Greeks          Greeks         `json:"greeks"`
	UnderlyingPrice float64        `json:"underlying_price"`
}

// PlaceOrderParams are the computed parameters for one broker submission.
type PlaceOrderParams struct {
	Symbol     string    `json:"symbol"`
	Side       OrderSide `json:"side"`
	Quantity   float64   `json:"quantity"`
	LimitPrice float64   `json:"limit_price"`
}

// PlaceOrderResult is the broker's synchronous response to a submission.
type PlaceOrderResult struct {
	Success bool        `json:"success"`
	OrderID string      `json:"order_id"`
	Status  OrderStatus `json:"status"`
	Message string      `json:"message,omitempty"`
}

// OrderStatusInfo is a polled snapshot of a submitted order.
type OrderStatusInfo struct {
	Status         OrderStatus `json:"status"`
	FilledQuantity float64     `json:"filled_quantity"`
	AvgFillPrice   float64     `json:"avg_fill_price"`
}

// BrokerClient abstracts the brokerage. Implementations: the HTTP gateway
// (live) and the simulated broker (dry-run), selected once at process start.
type BrokerClient interface {
	ListUnderlyingPositions(ctx context.Context, accountID string) ([]UnderlyingPosition, error)
	ListOptionPositions(ctx context.Context, accountID string) ([]OptionPosition, error)
	GetAccountEquity(ctx context.Context, accountID string) (float64, error)
	PlaceOrder(ctx context.Context, accountID string, params PlaceOrderParams) (*PlaceOrderResult, error)
	GetOrderStatus(ctx context.Context, accountID, orderID string) (*OrderStatusInfo, error)
}

// PriceSource supplies last-trade prices for order pricing and lot checks.
type PriceSource interface {
	LastPrice(ctx context.Context, symbol string) (float64, error)
}
