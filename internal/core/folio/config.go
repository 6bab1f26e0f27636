// Package folio provides domain contracts for document folio numbering.
package folio

// Strategy defines the folio generation strategy.
type Strategy int

const (
	// StrategyStrict uses UPDATE ... RETURNING for every folio.
	// Guarantees sequential numbers without gaps.
	// Slower, suitable for fiscal documents.
	StrategyStrict Strategy = iota

	// StrategyCached allocates ranges of numbers in memory.
	// Much faster, but may produce gaps if application restarts.
	// Used for internal documents (counts, adjustments).
	StrategyCached
)

// Options configuration for folio generation.
type Options struct {
	// Strategy to use for folio generation
	Strategy Strategy
	// RangeSize is the number of folios to allocate at once in Cached strategy.
	// Default is 50.
	RangeSize int64
}

// DefaultOptions returns standard options (Strict).
func DefaultOptions() *Options {
	return &Options{
		Strategy: StrategyStrict,
	}
}

// CachedOptions returns options for the range-allocating strategy. Internal
// documents pass these; restarts may leave gaps in their numbering, which is
// acceptable there and not for fiscal documents.
func CachedOptions() *Options {
	return &Options{
		Strategy:  StrategyCached,
		RangeSize: 50,
	}
}

// Config holds folio configuration for one document type.
type Config struct {
	// Prefix added to all folios (e.g., "OC", "CF", "AJ")
	Prefix string

	// IncludeYear adds year to the folio
	IncludeYear bool

	// PadWidth is the minimum number width (default 5)
	PadWidth int

	// ResetPeriod is "year" or "never". Sequence rows are keyed by
	// (type, year); "never" pins the row to year zero.
	ResetPeriod string
}

// DefaultConfig returns sensible defaults.
func DefaultConfig(prefix string) Config {
	return Config{
		Prefix:      prefix,
		IncludeYear: true,
		PadWidth:    5,
		ResetPeriod: "year",
	}
}

// Document type prefixes as persisted in tenant data.
var (
	PurchaseOrderConfig  = DefaultConfig("OC")
	PhysicalCountConfig  = DefaultConfig("CF")
	BulkAdjustmentConfig = DefaultConfig("AJ")
	ReservationConfig    = DefaultConfig("RS")
)
