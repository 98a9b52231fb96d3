// Package config holds immutable protocol configuration: which contracts a
// protocol's attribution run discovers venues from, its fee-sharing rules,
// and the address tables for known protocols. Configuration is data passed
// into the engine explicitly; nothing here is a module-level singleton.
package config

import (
	"encoding/json"
	"fmt"
	"os"

	"defi-revenue-lab/internal/domain"
)

// Contract is an on-chain contract together with the block it was deployed
// at, which bounds creation-event scans.
type Contract struct {
	Address   domain.Address `json:"address"`
	FromBlock uint64         `json:"fromBlock"`
}

// TokenTax configures a token-tax source: the contract emitting penalty
// events and the token the penalties are denominated in.
type TokenTax struct {
	Contract domain.Address `json:"contract"`
	Token    domain.Address `json:"token"`
}

// Protocol is one protocol's complete attribution configuration.
// Optional sections are nil/empty when the protocol has no venue of that
// kind; the engine only runs the pipelines whose configuration is present.
type Protocol struct {
	Name      string `json:"name"`
	Chain     string `json:"chain"`
	StartDate string `json:"startDate"`

	// ProtocolFeeShare is the treasury's cut of swap fees on ungauged venues.
	ProtocolFeeShare float64 `json:"protocolFeeShare"`

	// LegacyFactory and CLFactory emit pair/pool creation events.
	LegacyFactory *Contract `json:"legacyFactory,omitempty"`
	CLFactory     *Contract `json:"clFactory,omitempty"`

	// Voter is the gauge registry: capability probes and gauge-creation
	// events are served from it.
	Voter *Contract `json:"voter,omitempty"`

	// FeeRegistry maps vaults to their protocol rate. May be absent.
	FeeRegistry domain.Address `json:"feeRegistry,omitempty"`

	// VaultFactories emit vault deployment events; Vaults lists vaults known
	// ahead of discovery.
	VaultFactories []Contract       `json:"vaultFactories,omitempty"`
	Vaults         []domain.Address `json:"vaults,omitempty"`

	TokenTax *TokenTax `json:"tokenTax,omitempty"`
}

// Validate checks the configuration names at least one venue source.
func (p Protocol) Validate() error {
	if p.Name == "" {
		return fmt.Errorf("protocol name is required")
	}
	if p.Chain == "" {
		return fmt.Errorf("protocol %s: chain is required", p.Name)
	}
	if p.LegacyFactory == nil && p.CLFactory == nil &&
		len(p.VaultFactories) == 0 && len(p.Vaults) == 0 && p.TokenTax == nil {
		return fmt.Errorf("protocol %s: no venue source configured", p.Name)
	}
	return nil
}

// Load reads protocol configurations from a JSON file.
func Load(path string) ([]Protocol, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	var protocols []Protocol
	if err := json.Unmarshal(data, &protocols); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	for _, p := range protocols {
		if err := p.Validate(); err != nil {
			return nil, err
		}
	}
	return protocols, nil
}
