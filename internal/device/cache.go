package device

import (
	"reflect"

	"github.com/berfenger/dnake2mqtt/pkg/dnake"
)

// StateCache keeps the last raw state seen per "{devNo}_{devCh}" key. It is
// only used to log changes.
type StateCache struct {
	previous map[string]map[string]any
}

func NewStateCache() *StateCache {
	return &StateCache{
		previous: make(map[string]map[string]any),
	}
}

// Observe stores state and returns the previously stored value and whether
// it differs. The new value is stored even if nothing consumes the state.
func (c *StateCache) Observe(state dnake.DeviceState) (map[string]any, bool) {
	key := state.Key()
	old := c.previous[key]
	changed := !reflect.DeepEqual(old, state.Raw)
	c.previous[key] = state.Raw
	return old, changed
}

func (c *StateCache) Len() int {
	return len(c.previous)
}
