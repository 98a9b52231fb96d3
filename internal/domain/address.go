package domain

import "strings"

// Address is a lowercase 0x-prefixed hex EVM address.
//
// All addresses entering the engine are normalized through NormalizeAddress
// so map lookups and sentinel comparisons are byte-exact.
type Address string

// ZeroAddress is the canonical "absent" sentinel. Gauge lookups that return
// it mean "no gauge exists for this venue". It must always be compared
// literally: some transports return a zero-filled hex string rather than an
// empty result, and both decode to this value.
const ZeroAddress Address = "0x0000000000000000000000000000000000000000"

// NormalizeAddress lowercases an address and ensures the 0x prefix.
func NormalizeAddress(s string) Address {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return ZeroAddress
	}
	if !strings.HasPrefix(s, "0x") {
		s = "0x" + s
	}
	return Address(s)
}

// IsZero reports whether the address is the zero-address sentinel.
func (a Address) IsZero() bool {
	return a == ZeroAddress || a == ""
}

// String returns the address as a plain string.
func (a Address) String() string {
	return string(a)
}
