// Package dto defines the request/response shapes of the action API.
package dto

// TransferRequest asks for a native-token transfer on behalf of a workflow
// execution. When ExecutionID is set, workflow/user/organization attribution
// is resolved from the workflow engine; the explicit fields cover manual
// test runs from the builder.
type TransferRequest struct {
	ChainID     uint64 `json:"chain_id" binding:"required"`
	To          string `json:"to" binding:"required"`
	AmountWei   string `json:"amount_wei" binding:"required"` // decimal string
	ExecutionID string `json:"execution_id"`

	OrganizationID string `json:"organization_id"`
	UserID         string `json:"user_id"`
	TriggerType    string `json:"trigger_type"` // scheduled | manual

	// Per-workflow gas knobs. Zero means unset.
	GasMultiplier float64 `json:"gas_multiplier,omitempty"`
	GasHardLimit  uint64  `json:"gas_hard_limit,omitempty"`
}

// TransferResponse reports the submission outcome. Confirmed is false both
// for reverts (which also carry an error) and for the indeterminate
// confirmation-timeout case, where the transaction may still land.
type TransferResponse struct {
	TxHash      string  `json:"tx_hash"`
	Wallet      string  `json:"wallet"`
	Nonce       uint64  `json:"nonce"`
	Confirmed   bool    `json:"confirmed"`
	BlockNumber *uint64 `json:"block_number,omitempty"`
	ExplorerURL string  `json:"explorer_url,omitempty"`
}

// BalanceResponse is a native-token balance read.
type BalanceResponse struct {
	ChainID uint64 `json:"chain_id"`
	Address string `json:"address"`
	Balance string `json:"balance"`
	Unit    string `json:"unit"` // wei | lamports
}
