package domain

// AttributionRun is the persisted record of one finished engine run for a
// (protocol, chain, window) triple. Runs are append-only.
type AttributionRun struct {
	RunID     string
	Protocol  string
	Chain     string
	FromBlock uint64
	ToBlock   uint64
	FromTime  int64
	ToTime    int64
	CreatedAt int64 // unix seconds
}

// MetricRow is one (metric, token, tag) total from a finished run.
// Amount is the decimal string form of the integer token-unit total; raw
// on-chain quantities exceed int64 so they are never stored as machine ints.
type MetricRow struct {
	RunID  string
	Metric string
	Token  Address
	Tag    string
	Amount string
}
