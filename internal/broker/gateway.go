package broker

import (
	"context"
	"fmt"
	"time"

	drepo "TradeLoop/internal/domain/repository"
	httpclient "TradeLoop/pkg/http"
	"TradeLoop/pkg/logger"
)

// Gateway talks to the brokerage gateway over HTTP. The gateway owns order
// records and position state; this client is stateless.
type Gateway struct {
	client  *httpclient.Client
	baseURL string
	apiKey  string
	metrics drepo.Metrics
	logger  *logger.Logger
}

// GatewayConfig configures the HTTP broker client.
type GatewayConfig struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

// NewGateway creates an HTTP broker client.
func NewGateway(cfg GatewayConfig, metrics drepo.Metrics, lg *logger.Logger) *Gateway {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Gateway{
		client:  httpclient.NewClient(httpclient.WithTimeout(timeout)),
		baseURL: cfg.BaseURL,
		apiKey:  cfg.APIKey,
		metrics: metrics,
		logger:  lg,
	}
}

func (g *Gateway) headers() map[string]string {
	return map[string]string{"Authorization": "Bearer " + g.apiKey}
}

func (g *Gateway) get(ctx context.Context, op, path string, dest interface{}) error {
	start := time.Now()
	err := g.client.SendAndParse(ctx, &httpclient.RequestOptions{
		Method:  httpclient.MethodGet,
		URL:     g.baseURL + path,
		Headers: g.headers(),
	}, dest)
	g.metrics.RecordBrokerLatency(op, time.Since(start).Seconds())
	return err
}

func (g *Gateway) ListUnderlyingPositions(ctx context.Context, accountID string) ([]drepo.UnderlyingPosition, error) {
	var out struct {
		Positions []drepo.UnderlyingPosition `json:"positions"`
	}
	path := fmt.Sprintf("/api/v1/accounts/%s/positions/underlying", accountID)
	if err := g.get(ctx, "list_underlying", path, &out); err != nil {
		return nil, fmt.Errorf("list underlying positions: %w", err)
	}
	return out.Positions, nil
}

func (g *Gateway) ListOptionPositions(ctx context.Context, accountID string) ([]drepo.OptionPosition, error) {
	var out struct {
		Positions []drepo.OptionPosition `json:"positions"`
	}
	path := fmt.Sprintf("/api/v1/accounts/%s/positions/options", accountID)
	if err := g.get(ctx, "list_options", path, &out); err != nil {
		return nil, fmt.Errorf("list option positions: %w", err)
	}
	return out.Positions, nil
}

func (g *Gateway) GetAccountEquity(ctx context.Context, accountID string) (float64, error) {
	var out struct {
		EquityUSD float64 `json:"equity_usd"`
	}
	path := fmt.Sprintf("/api/v1/accounts/%s/equity", accountID)
	if err := g.get(ctx, "get_equity", path, &out); err != nil {
		return 0, fmt.Errorf("get account equity: %w", err)
	}
	return out.EquityUSD, nil
}

func (g *Gateway) PlaceOrder(ctx context.Context, accountID string, params drepo.PlaceOrderParams) (*drepo.PlaceOrderResult, error) {
	start := time.Now()
	var out drepo.PlaceOrderResult
	err := g.client.SendAndParse(ctx, &httpclient.RequestOptions{
		Method:  httpclient.MethodPost,
		URL:     fmt.Sprintf("%s/api/v1/accounts/%s/orders", g.baseURL, accountID),
		Headers: g.headers(),
		Body:    params,
	}, &out)
	g.metrics.RecordBrokerLatency("place_order", time.Since(start).Seconds())
	if err != nil {
		return nil, fmt.Errorf("place order: %w", err)
	}
	return &out, nil
}

func (g *Gateway) GetOrderStatus(ctx context.Context, accountID, orderID string) (*drepo.OrderStatusInfo, error) {
	var out drepo.OrderStatusInfo
	path := fmt.Sprintf("/api/v1/accounts/%s/orders/%s", accountID, orderID)
	if err := g.get(ctx, "order_status", path, &out); err != nil {
		return nil, fmt.Errorf("get order status: %w", err)
	}
	return &out, nil
}
