package domain

// Window is the reporting window for one attribution run, resolved to both
// block numbers and unix timestamps by the transport before the engine runs.
type Window struct {
	FromBlock uint64
	ToBlock   uint64
	FromTime  int64 // unix seconds, inclusive
	ToTime    int64 // unix seconds, exclusive
}

// Duration returns the window length in seconds.
func (w Window) Duration() int64 {
	return w.ToTime - w.FromTime
}

// Valid reports whether the window is well-formed (end after start).
func (w Window) Valid() bool {
	return w.ToTime > w.FromTime && w.ToBlock >= w.FromBlock
}
