package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"defi-revenue-lab/internal/domain"
)

func TestLookup(t *testing.T) {
	p, ok := Lookup("shadow-legacy", "sonic")
	require.True(t, ok)
	assert.Equal(t, 0.05, p.ProtocolFeeShare)
	require.NotNil(t, p.LegacyFactory)
	assert.Equal(t, uint64(4028276), p.LegacyFactory.FromBlock)
	require.NotNil(t, p.Voter)
	assert.Equal(t, domain.NormalizeAddress("0x9f59398d0a397b2eeb8a6123a6c7295cb0b0062d"), p.Voter.Address)

	_, ok = Lookup("shadow-legacy", "ethereum")
	assert.False(t, ok)
}

func TestKnown_AllValid(t *testing.T) {
	for _, p := range Known() {
		assert.NoError(t, p.Validate(), "protocol %s", p.Name)
	}
}

func TestValidate(t *testing.T) {
	assert.Error(t, Protocol{}.Validate())
	assert.Error(t, Protocol{Name: "x"}.Validate())

	// A chain and name alone is not enough: some venue source must exist.
	assert.Error(t, Protocol{Name: "x", Chain: "sonic"}.Validate())

	ok := Protocol{
		Name:  "x",
		Chain: "sonic",
		CLFactory: &Contract{
			Address: domain.NormalizeAddress("0xcD2d0637c94fe77C2896BbCBB174cefFb08DE6d7"),
		},
	}
	assert.NoError(t, ok.Validate())
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "protocols.json")
	data := `[
		{
			"name": "custom-dex",
			"chain": "sonic",
			"protocolFeeShare": 0.05,
			"legacyFactory": {"address": "0x2da25e7446a70d7be65fd4c053948becaa6374c8", "fromBlock": 4028276}
		}
	]`
	require.NoError(t, os.WriteFile(path, []byte(data), 0o644))

	protocols, err := Load(path)
	require.NoError(t, err)
	require.Len(t, protocols, 1)
	assert.Equal(t, "custom-dex", protocols[0].Name)
	assert.Equal(t, uint64(4028276), protocols[0].LegacyFactory.FromBlock)
}

func TestLoad_InvalidConfigRejected(t *testing.T) {
	path := filepath.Join(t.TempDir(), "protocols.json")
	require.NoError(t, os.WriteFile(path, []byte(`[{"name": "x", "chain": "sonic"}]`), 0o644))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.json"))
	assert.Error(t, err)
}
