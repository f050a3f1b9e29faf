package exchange

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	bybit_api "github.com/bybit-exchange/bybit.go.api"

	"autotrader/internal/errors"
)

// Bybit return codes that are worth retrying.
const (
	retCodeTimestamp   = 10002
	retCodeRateLimit   = 10006
	retCodeIPRateLimit = 10018
)

// checkResponse unwraps a ServerResponse and turns a non-zero retCode into
// a classified error.
func checkResponse(raw interface{}) (*bybit_api.ServerResponse, error) {
	resp, ok := raw.(*bybit_api.ServerResponse)
	if !ok || resp == nil {
		return nil, errors.Permanent(fmt.Errorf("unexpected response type %T", raw))
	}
	if resp.RetCode == 0 {
		return resp, nil
	}

	code := strconv.Itoa(resp.RetCode)
	switch resp.RetCode {
	case retCodeRateLimit, retCodeIPRateLimit:
		return nil, errors.NewBrokerError(code, resp.RetMsg, errors.ErrRateLimited)
	case retCodeTimestamp:
		return nil, errors.NewBrokerError(code, resp.RetMsg, errors.ErrTransient)
	default:
		return nil, errors.NewBrokerError(code, resp.RetMsg, errors.ErrPermanent)
	}
}

// classifyTransport marks network-level failures as transient unless the
// caller cancelled.
func classifyTransport(ctx context.Context, err error) error {
	if ctx.Err() == context.Canceled {
		return err
	}
	if ctx.Err() == context.DeadlineExceeded {
		return fmt.Errorf("%w: %w", errors.ErrTimeout, err)
	}
	return errors.Transient(err)
}

// decodeResult re-decodes the loosely typed Result into target.
func decodeResult(resp *bybit_api.ServerResponse, target interface{}) error {
	data, err := json.Marshal(resp.Result)
	if err != nil {
		return errors.Permanent(fmt.Errorf("failed to marshal result: %w", err))
	}
	if err := json.Unmarshal(data, target); err != nil {
		return errors.Permanent(fmt.Errorf("failed to unmarshal result: %w", err))
	}
	return nil
}

func parseFloat(s string) (float64, error) {
	if s == "" {
		return 0, nil
	}
	return strconv.ParseFloat(s, 64)
}
