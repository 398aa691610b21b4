package models

import (
	"time"
)

// ChainConfig is read-only chain/explorer display data. Owned by the
// platform configuration tooling; this service only reads it.
type ChainConfig struct {
	ChainID     uint64    `json:"chain_id" gorm:"primaryKey;autoIncrement:false"`
	Name        string    `json:"name" gorm:"not null"`
	Family      string    `json:"family" gorm:"not null;default:evm"`
	ExplorerURL string    `json:"explorer_url"`
	Enabled     bool      `json:"enabled" gorm:"default:true"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// TableName specifies the table name
func (ChainConfig) TableName() string {
	return "chain_configs"
}

// RPCSource records where a resolved RPC endpoint came from.
type RPCSource string

const (
	RPCSourceUserOverride    RPCSource = "user_override"
	RPCSourcePlatformDefault RPCSource = "platform_default"
)

// ChainEndpoint is the per-request resolved RPC configuration for a chain.
// It is immutable once resolved and re-resolved on every request so that
// configuration changes take effect without a restart. Not persisted here;
// the chain configuration service owns it.
type ChainEndpoint struct {
	ChainID     uint64    `json:"chain_id"`
	ChainName   string    `json:"chain_name"`
	PrimaryURL  string    `json:"primary_url"`
	FallbackURL string    `json:"fallback_url,omitempty"`
	Source      RPCSource `json:"source"`
}
