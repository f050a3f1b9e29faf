package errors

import (
	"context"
	"fmt"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsTransient(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"marked transient", Transient(fmt.Errorf("boom")), true},
		{"marked permanent", Permanent(fmt.Errorf("bad symbol")), false},
		{"rate limited", Wrap(ErrRateLimited, "klines"), true},
		{"deadline", context.DeadlineExceeded, true},
		{"canceled", context.Canceled, false},
		{"net error", &net.OpError{Op: "dial", Err: fmt.Errorf("refused")}, true},
		{"plain error", fmt.Errorf("parse failure"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsTransient(tt.err))
		})
	}
}

func TestValidationErrorMatchesConfigInvalid(t *testing.T) {
	err := Wrap(NewValidationError("risk_per_trade", 0.2, "must be in (0, 0.05]"), "validating config")
	assert.True(t, Is(err, ErrConfigInvalid))

	var ve *ValidationError
	assert.True(t, As(err, &ve))
	assert.Equal(t, "risk_per_trade", ve.Field)
}

func TestRiskErrorIsKillSwitch(t *testing.T) {
	err := NewRiskError("global_drawdown", 0.09, 0.08, "equity drawdown beyond limit")
	assert.True(t, Is(err, ErrKillSwitch))
	assert.Contains(t, err.Error(), "global_drawdown")
}

func TestWrapNil(t *testing.T) {
	assert.NoError(t, Wrap(nil, "ctx"))
	assert.NoError(t, Wrapf(nil, "ctx %d", 1))
	assert.NoError(t, Transient(nil))
	assert.NoError(t, Permanent(nil))
}
