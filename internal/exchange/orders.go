package exchange

import (
	"context"
	"fmt"
	"strconv"

	bybit_api "github.com/bybit-exchange/bybit.go.api"

	"autotrader/internal/errors"
	"autotrader/internal/models"
)

// OrderSide is the Bybit order side.
type OrderSide string

const (
	OrderSideBuy  OrderSide = "Buy"
	OrderSideSell OrderSide = "Sell"
)

// Order is the acknowledgement of a placed order.
type Order struct {
	OrderID     string `json:"orderId"`
	OrderLinkID string `json:"orderLinkId"`
}

// MarketOrder places a spot market order for qty units of the base coin.
// linkID is sent as orderLinkId so a retried submission is idempotent.
func (c *Client) MarketOrder(ctx context.Context, symbol string, side OrderSide, qty float64, linkID string) (*Order, error) {
	if qty <= 0 {
		return nil, errors.Wrapf(errors.ErrInvalidOrder, "quantity %v", qty)
	}

	params := map[string]interface{}{
		"category":   Category,
		"symbol":     models.ExchangeSymbol(symbol),
		"side":       string(side),
		"orderType":  "Market",
		"qty":        strconv.FormatFloat(qty, 'f', -1, 64),
		"marketUnit": "baseCoin",
	}
	if linkID != "" {
		params["orderLinkId"] = linkID
	}

	resp, err := c.call(ctx, "POST", "/v5/order/create", func(ctx context.Context) (interface{}, error) {
		return c.httpClient.NewUtaBybitServiceWithParams(params).PlaceOrder(ctx)
	})
	if err != nil {
		return nil, errors.Wrapf(err, "%s %s %v", side, symbol, qty)
	}

	var order Order
	if err := decodeResult(resp, &order); err != nil {
		return nil, err
	}
	if order.OrderID == "" {
		return nil, errors.NewBrokerError("", "order acknowledged without id", errors.ErrOrderRejected)
	}
	return &order, nil
}

// WalletBalance returns the unified-account wallet balance of coin.
func (c *Client) WalletBalance(ctx context.Context, coin string) (float64, error) {
	params := map[string]interface{}{
		"accountType": "UNIFIED",
		"coin":        coin,
	}
	resp, err := c.call(ctx, "GET", "/v5/account/wallet-balance", func(ctx context.Context) (interface{}, error) {
		return c.httpClient.NewUtaBybitServiceWithParams(params).GetAccountWallet(ctx)
	})
	if err != nil {
		return 0, errors.Wrapf(err, "wallet %s", coin)
	}
	return parseWalletBalance(resp, coin)
}

func parseWalletBalance(resp *bybit_api.ServerResponse, coin string) (float64, error) {
	var result struct {
		List []struct {
			Coin []struct {
				Coin          string `json:"coin"`
				WalletBalance string `json:"walletBalance"`
			} `json:"coin"`
		} `json:"list"`
	}
	if err := decodeResult(resp, &result); err != nil {
		return 0, err
	}
	for _, acct := range result.List {
		for _, c := range acct.Coin {
			if c.Coin == coin {
				bal, err := parseFloat(c.WalletBalance)
				if err != nil {
					return 0, errors.Permanent(fmt.Errorf("bad wallet balance %q", c.WalletBalance))
				}
				return bal, nil
			}
		}
	}
	return 0, nil
}
