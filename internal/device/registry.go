package device

import (
	"github.com/berfenger/dnake2mqtt/pkg/dnake"
	"go.uber.org/zap"
)

// Registry holds the device models of one discovery, grouped by category in
// discovery order. It is built once by Classify and replaced as a whole on
// rediscovery.
type Registry struct {
	categories map[Category][]Device
	byUniqueId map[string]Device
}

// Classify builds the models of a descriptor list. Unknown type codes are
// dropped. A second descriptor with the number and channel of an already
// classified device of the same category is dropped too.
func Classify(descriptors []dnake.DeviceDescriptor, freshAirCmd dnake.Cmd, logger *zap.Logger) *Registry {
	r := &Registry{
		categories: make(map[Category][]Device),
		byUniqueId: make(map[string]Device),
	}
	for _, d := range descriptors {
		dev, ok := New(d, freshAirCmd)
		if !ok {
			logger.Debug("ignoring device of unknown type", zap.String("name", d.Name), zap.Int("type", int(d.Type)))
			continue
		}
		if _, exists := r.byUniqueId[dev.UniqueId()]; exists {
			logger.Warn("ignoring duplicated device", zap.String("name", d.Name), zap.String("id", dev.UniqueId()))
			continue
		}
		r.categories[dev.Category()] = append(r.categories[dev.Category()], dev)
		r.byUniqueId[dev.UniqueId()] = dev
	}
	for _, c := range Categories {
		logger.Info("devices found", zap.String("category", string(c)), zap.Int("count", len(r.categories[c])))
	}
	return r
}

func (r *Registry) Devices(category Category) []Device {
	return r.categories[category]
}

// All lists every device, category by category.
func (r *Registry) All() []Device {
	var all []Device
	for _, c := range Categories {
		all = append(all, r.categories[c]...)
	}
	return all
}

func (r *Registry) Len() int {
	return len(r.byUniqueId)
}

func (r *Registry) ByUniqueId(id string) (Device, bool) {
	d, ok := r.byUniqueId[id]
	return d, ok
}

// Lookup finds the device with exactly this identity.
func (r *Registry) Lookup(id dnake.Identity) (Device, bool) {
	c, ok := categoryOf(id.Type)
	if !ok {
		return nil, false
	}
	for _, d := range r.categories[c] {
		if d.Identity() == id {
			return d, true
		}
	}
	return nil, false
}

// Route applies each state to the first model whose identity matches it
// exactly. Unmatched states are ignored. Moving covers are skipped since
// their level is tracked by the fast poll. Returns the changed models.
func (r *Registry) Route(states []dnake.DeviceState) []Device {
	var changed []Device
	for _, s := range states {
		d, ok := r.Lookup(s.Identity)
		if !ok {
			continue
		}
		if c, isCover := d.(*Cover); isCover && c.Moving() {
			continue
		}
		if d.Apply(s.Payload) {
			changed = append(changed, d)
		}
	}
	return changed
}

func categoryOf(t dnake.TypeCode) (Category, bool) {
	switch t {
	case dnake.TYPE_LIGHT:
		return CATEGORY_LIGHT, true
	case dnake.TYPE_COVER:
		return CATEGORY_COVER, true
	case dnake.TYPE_AIR_CONDITION:
		return CATEGORY_CLIMATE, true
	case dnake.TYPE_FRESH_AIR:
		return CATEGORY_FAN, true
	}
	return "", false
}
