package device

// Table maps wire codes to domain values in both directions. Lookups never
// fail: unknown keys resolve to the table fallback.
type Table[E comparable] struct {
	entries  []TableEntry[E]
	fallback TableEntry[E]
}

type TableEntry[E comparable] struct {
	Code  int
	Value E
}

// NewTable builds a table. fallback must be one of the entry values.
func NewTable[E comparable](fallback E, entries ...TableEntry[E]) Table[E] {
	t := Table[E]{entries: entries}
	for _, e := range entries {
		if e.Value == fallback {
			t.fallback = e
			return t
		}
	}
	panic("table fallback is not a table value")
}

// Value returns the domain value of a wire code.
func (t Table[E]) Value(code int) E {
	for _, e := range t.entries {
		if e.Code == code {
			return e.Value
		}
	}
	return t.fallback.Value
}

// Code returns the wire code of a domain value.
func (t Table[E]) Code(value E) int {
	for _, e := range t.entries {
		if e.Value == value {
			return e.Code
		}
	}
	return t.fallback.Code
}

func (t Table[E]) Contains(value E) bool {
	for _, e := range t.entries {
		if e.Value == value {
			return true
		}
	}
	return false
}

// Values lists the domain values in table order.
func (t Table[E]) Values() []E {
	values := make([]E, 0, len(t.entries))
	for _, e := range t.entries {
		values = append(values, e.Value)
	}
	return values
}

// Index is the position of value in the table, or the fallback position.
func (t Table[E]) Index(value E) int {
	for i, e := range t.entries {
		if e.Value == value {
			return i
		}
	}
	return t.Index(t.fallback.Value)
}

type HvacMode string

type FanMode string

type SwingMode string

const (
	HVAC_MODE_OFF      HvacMode = "off"
	HVAC_MODE_HEAT     HvacMode = "heat"
	HVAC_MODE_COOL     HvacMode = "cool"
	HVAC_MODE_FAN_ONLY HvacMode = "fan_only"
	HVAC_MODE_DRY      HvacMode = "dry"
)

const (
	FAN_MODE_LOW    FanMode = "low"
	FAN_MODE_MEDIUM FanMode = "medium"
	FAN_MODE_HIGH   FanMode = "high"
)

const (
	SWING_MODE_OFF        SwingMode = "off"
	SWING_MODE_ON         SwingMode = "on"
	SWING_MODE_HORIZONTAL SwingMode = "horizontal"
	SWING_MODE_VERTICAL   SwingMode = "vertical"
)

var HvacModes = NewTable(HVAC_MODE_OFF,
	TableEntry[HvacMode]{0, HVAC_MODE_OFF},
	TableEntry[HvacMode]{1, HVAC_MODE_HEAT},
	TableEntry[HvacMode]{2, HVAC_MODE_COOL},
	TableEntry[HvacMode]{3, HVAC_MODE_FAN_ONLY},
	TableEntry[HvacMode]{4, HVAC_MODE_DRY},
)

var ClimateFanModes = NewTable(FAN_MODE_LOW,
	TableEntry[FanMode]{0, FAN_MODE_LOW},
	TableEntry[FanMode]{1, FAN_MODE_MEDIUM},
	TableEntry[FanMode]{2, FAN_MODE_HIGH},
)

var SwingModes = NewTable(SWING_MODE_OFF,
	TableEntry[SwingMode]{0, SWING_MODE_OFF},
	TableEntry[SwingMode]{1, SWING_MODE_ON},
	TableEntry[SwingMode]{2, SWING_MODE_HORIZONTAL},
	TableEntry[SwingMode]{3, SWING_MODE_VERTICAL},
)

var FreshAirSpeeds = NewTable(FAN_MODE_LOW,
	TableEntry[FanMode]{1, FAN_MODE_LOW},
	TableEntry[FanMode]{2, FAN_MODE_MEDIUM},
	TableEntry[FanMode]{3, FAN_MODE_HIGH},
)
