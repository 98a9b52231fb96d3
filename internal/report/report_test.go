package report

import (
	"math/big"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"defi-revenue-lab/internal/attribution"
	"defi-revenue-lab/internal/domain"
)

func testResult() *attribution.RunResult {
	bundle := attribution.NewBundle()
	token := domain.Address("0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa")
	bundle.DailyFees.Add(token, big.NewInt(3000))
	bundle.DailyFees.AddTagged(token, domain.TagPerformanceFees, big.NewInt(200))
	bundle.DailyVolume.Add(token, big.NewInt(1_000_000))

	return &attribution.RunResult{
		Bundle:           bundle,
		VenuesClassified: 2,
		SwapsFetched:     5,
	}
}

func testReport() *Report {
	window := domain.Window{FromBlock: 1000, ToBlock: 2000, FromTime: 1_700_000_000, ToTime: 1_700_086_400}
	return Build("run-1", "shadow-legacy", "sonic", window, testResult())
}

func TestBuild(t *testing.T) {
	r := testReport()

	assert.Equal(t, "run-1", r.RunID)
	assert.Equal(t, 2, r.VenuesClassified)
	require.Len(t, r.Rows, 3)
	assert.Equal(t, domain.MetricDailyFees, r.Rows[0].Metric)
}

func TestRenderMarkdown(t *testing.T) {
	md := RenderMarkdown(testReport())

	assert.Contains(t, md, "# Attribution Report: shadow-legacy (sonic)")
	assert.Contains(t, md, "| Venues Classified | 2 |")
	assert.Contains(t, md, "daily_fees")
	assert.Contains(t, md, "| 3000 |")
	// Untagged rows render a placeholder tag.
	assert.Contains(t, md, "| - | 3000 |")
	assert.NotContains(t, md, "Skipped Pipelines")
}

func TestRenderMarkdown_WithErrors(t *testing.T) {
	r := testReport()
	r.Errors = []string{"legacy venues: pair discovery: boom"}

	md := RenderMarkdown(r)
	assert.Contains(t, md, "### Skipped Pipelines")
	assert.Contains(t, md, "pair discovery")
}

func TestRenderCSV(t *testing.T) {
	csv := RenderCSV(testReport())
	lines := strings.Split(strings.TrimSpace(csv), "\n")

	require.Len(t, lines, 4)
	assert.Equal(t, "run_id,metric,token,tag,amount", lines[0])
	assert.Contains(t, lines[1], "run-1,daily_fees,0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa,,3000")
	assert.Contains(t, lines[2], "performance_fees,200")
	assert.Contains(t, lines[3], "daily_volume")
}
