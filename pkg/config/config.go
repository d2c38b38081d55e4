// Package config loads the static description of the chains this indexer
// can track: their endpoints, genesis/start block, and confirmation depth.
package config

import (
	"encoding/json"
	"fmt"
	"os"
)

// ChainConfig holds configuration for a single Substrate-family chain.
type ChainConfig struct {
	Name          string   `json:"name"`
	ChainID       string   `json:"chainId"`       // genesis hash or well-known chain id string
	RPCUrls       []string `json:"rpcUrls"`       // legacy JSON-RPC endpoints (HTTP)
	WSUrls        []string `json:"wsUrls"`        // chainHead follow endpoints (WebSocket)
	BlockTime     int      `json:"blockTime"`     // seconds, informational
	Confirmations int      `json:"confirmations"` // blocks to wait before treating best as safe
	StartBlock    uint64   `json:"startBlock"`    // height to start backfill from
}

// Config holds all configured chains, keyed by name.
type Config struct {
	Chains map[string]*ChainConfig `json:"chains"`
}

// LoadConfig loads chain configuration from a JSON file.
func LoadConfig(filepath string) (*Config, error) {
	file, err := os.ReadFile(filepath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := json.Unmarshal(file, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	return &config, nil
}

// GetChain returns the configuration for a specific chain.
func (c *Config) GetChain(name string) (*ChainConfig, error) {
	chain, ok := c.Chains[name]
	if !ok {
		return nil, fmt.Errorf("chain %s not found in config", name)
	}
	return chain, nil
}

// Endpoints returns the legacy JSON-RPC endpoint list for the chain.
func (cc *ChainConfig) Endpoints() []string {
	return cc.RPCUrls
}
