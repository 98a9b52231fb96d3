package config

import "defi-revenue-lab/internal/domain"

// Known-protocol address tables. Addresses are checksummed on chain but
// stored normalized lowercase here, matching domain.Address semantics.
var knownProtocols = []Protocol{
	{
		Name:             "shadow-legacy",
		Chain:            "sonic",
		StartDate:        "2025-01-15",
		ProtocolFeeShare: 0.05,
		LegacyFactory: &Contract{
			Address:   domain.NormalizeAddress("0x2dA25E7446A70D7be65fd4c053948BEcAA6374c8"),
			FromBlock: 4028276,
		},
		Voter: &Contract{
			Address:   domain.NormalizeAddress("0x9f59398d0a397b2eeb8a6123a6c7295cb0b0062d"),
			FromBlock: 10266222,
		},
	},
	{
		Name:             "shadow-exchange",
		Chain:            "sonic",
		StartDate:        "2025-01-15",
		ProtocolFeeShare: 0.05,
		CLFactory: &Contract{
			Address:   domain.NormalizeAddress("0xcD2d0637c94fe77C2896BbCBB174cefFb08DE6d7"),
			FromBlock: 1705781,
		},
		Voter: &Contract{
			Address:   domain.NormalizeAddress("0x9f59398d0a397b2eeb8a6123a6c7295cb0b0062d"),
			FromBlock: 10266222,
		},
		TokenTax: &TokenTax{
			Contract: domain.NormalizeAddress("0x5050bc082FF4A74Fb6B0B04385dEfdDB114b2424"),
			Token:    domain.NormalizeAddress("0x3333b97138d4b086720b5ae8a7844b1345a33333"),
		},
	},
	{
		Name:        "rocksolid-network",
		Chain:       "ethereum",
		StartDate:   "2024-11-01",
		FeeRegistry: domain.NormalizeAddress("0x6dA4D1859bA1d02D095D2246142CdAd52233e27C"),
		Vaults: []domain.Address{
			domain.NormalizeAddress("0x936facdf10c8c36294e7b9d28345255539d81bc7"),
		},
	},
}

// Known returns the built-in protocol configurations.
func Known() []Protocol {
	out := make([]Protocol, len(knownProtocols))
	copy(out, knownProtocols)
	return out
}

// Lookup finds a built-in protocol by name and chain.
func Lookup(name, chain string) (Protocol, bool) {
	for _, p := range knownProtocols {
		if p.Name == name && p.Chain == chain {
			return p, true
		}
	}
	return Protocol{}, false
}
