package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"tx-engine/internal/services"

	"github.com/stretchr/testify/assert"
)

func TestStatusForErrorMapping(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want int
	}{
		{
			"unconfigured chain is a client error",
			fmt.Errorf("chain 999: %w", services.ErrChainNotConfigured),
			http.StatusBadRequest,
		},
		{
			"simulation failure is unprocessable",
			&services.SimulationError{Chain: 1, Err: errors.New("execution reverted")},
			http.StatusUnprocessableEntity,
		},
		{
			"lock contention is a conflict",
			fmt.Errorf("wallet 0xabc on chain 1: %w", services.ErrLockContention),
			http.StatusConflict,
		},
		{
			"revert is unprocessable",
			fmt.Errorf("0xdeadbeef: %w", services.ErrTransactionReverted),
			http.StatusUnprocessableEntity,
		},
		{
			"all endpoints down is a bad gateway",
			&services.AllEndpointsError{Chain: "polygon", PrimaryErr: errors.New("refused"), FallbackErr: errors.New("refused")},
			http.StatusBadGateway,
		},
		{
			"anything else is internal",
			errors.New("boom"),
			http.StatusInternalServerError,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, statusFor(tc.err))
		})
	}
}
