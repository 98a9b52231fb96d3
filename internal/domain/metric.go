package domain

// Metric names for the output bundle. These are the keys under which
// accumulators are reported and persisted.
const (
	MetricDailyFees              = "daily_fees"
	MetricDailyRevenue           = "daily_revenue"
	MetricDailySupplySideRevenue = "daily_supply_side_revenue"
	MetricDailyProtocolRevenue   = "daily_protocol_revenue"
	MetricDailyVolume            = "daily_volume"
	MetricDailyHoldersRevenue    = "daily_holders_revenue"
	MetricDailyBribesRevenue     = "daily_bribes_revenue"
	MetricDailyTokenTaxes        = "daily_token_taxes"
)

// Metric tags separating contributions to the same token total.
// Vault attribution records its three components under distinct tags so
// downstream consumers can split raw yield from fee income.
const (
	TagAssetYields     = "assets_yields"
	TagPerformanceFees = "performance_fees"
	TagManagementFees  = "management_fees"
)
