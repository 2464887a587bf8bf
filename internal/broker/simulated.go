package broker

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	drepo "TradeLoop/internal/domain/repository"
	"TradeLoop/pkg/logger"
)

// Simulated is an in-memory broker for dry-run mode. Orders fill instantly at
// the limit price and positions update accordingly, so the full loop runs
// without touching a live gateway. It also serves as a PriceSource from its
// seeded price map.
type Simulated struct {
	mu        sync.RWMutex
	equity    map[string]float64
	prices    map[string]float64
	positions map[string]map[string]*drepo.UnderlyingPosition // accountID -> symbol
	orders    map[string]*drepo.OrderStatusInfo
	logger    *logger.Logger
}

// NewSimulated creates a simulated broker. Every account starts with the
// given equity; prices seed the quote map.
func NewSimulated(accounts []string, equityUSD float64, prices map[string]float64, lg *logger.Logger) *Simulated {
	s := &Simulated{
		equity:    make(map[string]float64, len(accounts)),
		prices:    make(map[string]float64, len(prices)),
		positions: make(map[string]map[string]*drepo.UnderlyingPosition, len(accounts)),
		orders:    make(map[string]*drepo.OrderStatusInfo),
		logger:    lg,
	}
	for _, acc := range accounts {
		s.equity[acc] = equityUSD
		s.positions[acc] = make(map[string]*drepo.UnderlyingPosition)
	}
	for sym, px := range prices {
		s.prices[sym] = px
	}
	return s
}

// SetPrice updates the quote for a symbol.
func (s *Simulated) SetPrice(symbol string, price float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.prices[symbol] = price
	for _, book := range s.positions {
		if p, ok := book[symbol]; ok {
			p.LastPrice = price
		}
	}
}

// LastPrice implements PriceSource.
func (s *Simulated) LastPrice(ctx context.Context, symbol string) (float64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	px, ok := s.prices[symbol]
	if !ok {
		return 0, fmt.Errorf("no quote for %s", symbol)
	}
	return px, nil
}

func (s *Simulated) ListUnderlyingPositions(ctx context.Context, accountID string) ([]drepo.UnderlyingPosition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	book, ok := s.positions[accountID]
	if !ok {
		return nil, fmt.Errorf("unknown account %s", accountID)
	}
	out := make([]drepo.UnderlyingPosition, 0, len(book))
	for _, p := range book {
		out = append(out, *p)
	}
	return out, nil
}

func (s *Simulated) ListOptionPositions(ctx context.Context, accountID string) ([]drepo.OptionPosition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.positions[accountID]; !ok {
		return nil, fmt.Errorf("unknown account %s", accountID)
	}
	return nil, nil
}

func (s *Simulated) GetAccountEquity(ctx context.Context, accountID string) (float64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	eq, ok := s.equity[accountID]
	if !ok {
		return 0, fmt.Errorf("unknown account %s", accountID)
	}
	return eq, nil
}

func (s *Simulated) PlaceOrder(ctx context.Context, accountID string, params drepo.PlaceOrderParams) (*drepo.PlaceOrderResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	book, ok := s.positions[accountID]
	if !ok {
		return nil, fmt.Errorf("unknown account %s", accountID)
	}
	if params.Quantity <= 0 || params.LimitPrice <= 0 {
		return &drepo.PlaceOrderResult{
			Success: false,
			Status:  drepo.OrderStatusRejected,
			Message: "invalid quantity or price",
		}, nil
	}

	orderID := uuid.NewString()
	qty := params.Quantity
	if params.Side == drepo.OrderSideSell {
		qty = -qty
	}

	pos, ok := book[params.Symbol]
	if !ok {
		pos = &drepo.UnderlyingPosition{Symbol: params.Symbol, Currency: "USD"}
		book[params.Symbol] = pos
	}
	newQty := pos.Quantity + qty
	if newQty != 0 && qty > 0 {
		pos.AvgPrice = (pos.AvgPrice*pos.Quantity + params.LimitPrice*qty) / newQty
	}
	pos.Quantity = newQty
	pos.LastPrice = params.LimitPrice
	if pos.Quantity == 0 {
		delete(book, params.Symbol)
	}

	s.orders[orderID] = &drepo.OrderStatusInfo{
		Status:         drepo.OrderStatusFilled,
		FilledQuantity: params.Quantity,
		AvgFillPrice:   params.LimitPrice,
	}

	s.logger.Info("simulated fill",
		logger.String("account", accountID),
		logger.String("symbol", params.Symbol),
		logger.String("side", string(params.Side)),
		logger.String("order_id", orderID))

	return &drepo.PlaceOrderResult{
		Success: true,
		OrderID: orderID,
		Status:  drepo.OrderStatusFilled,
	}, nil
}

func (s *Simulated) GetOrderStatus(ctx context.Context, accountID, orderID string) (*drepo.OrderStatusInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	info, ok := s.orders[orderID]
	if !ok {
		return nil, fmt.Errorf("unknown order %s", orderID)
	}
	cp := *info
	return &cp, nil
}
