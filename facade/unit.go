package facade

// Unit names the measurement unit attached to a metric description. Only the
// recognized vocabulary below travels across the bridge; anything else is
// treated as if no unit was given.
type Unit string

const (
	UnitNone           Unit = ""
	UnitCount          Unit = "count"
	UnitPercent        Unit = "percent"
	UnitSeconds        Unit = "seconds"
	UnitMilliseconds   Unit = "milliseconds"
	UnitMicroseconds   Unit = "microseconds"
	UnitNanoseconds    Unit = "nanoseconds"
	UnitBytes          Unit = "bytes"
	UnitKibibytes      Unit = "kibibytes"
	UnitMebibytes      Unit = "mebibytes"
	UnitGibibytes      Unit = "gibibytes"
	UnitTebibytes      Unit = "tebibytes"
	UnitCountPerSecond Unit = "count_per_second"
	UnitBytesPerSecond Unit = "bytes_per_second"
)

var knownUnits = map[Unit]struct{}{
	UnitCount:          {},
	UnitPercent:        {},
	UnitSeconds:        {},
	UnitMilliseconds:   {},
	UnitMicroseconds:   {},
	UnitNanoseconds:    {},
	UnitBytes:          {},
	UnitKibibytes:      {},
	UnitMebibytes:      {},
	UnitGibibytes:      {},
	UnitTebibytes:      {},
	UnitCountPerSecond: {},
	UnitBytesPerSecond: {},
}

// ParseUnit maps a unit string to its Unit value. Unrecognized strings parse
// as (UnitNone, false).
func ParseUnit(s string) (Unit, bool) {
	if _, ok := knownUnits[Unit(s)]; ok {
		return Unit(s), true
	}
	return UnitNone, false
}

// String returns the wire spelling of the unit.
func (u Unit) String() string {
	return string(u)
}
