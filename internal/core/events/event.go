package events

import (
	"github.com/berfenger/dnake2mqtt/internal/core/domain"
	"github.com/berfenger/dnake2mqtt/internal/device"
)

func DeviceSnapshot(d device.Device) domain.DeviceSnapshot {
	id := d.Identity()
	return domain.DeviceSnapshot{
		UniqueId:  d.UniqueId(),
		Name:      d.Name(),
		Model:     d.Model(),
		Component: string(d.Category()),
		Number:    id.Number,
		Channel:   id.Channel,
		Type:      int(id.Type),
		State:     d.State(),
	}
}

func RegistrySnapshots(r *device.Registry) []domain.DeviceSnapshot {
	devices := r.All()
	snapshots := make([]domain.DeviceSnapshot, 0, len(devices))
	for _, d := range devices {
		snapshots = append(snapshots, DeviceSnapshot(d))
	}
	return snapshots
}

func DeviceStateUpdateEvent(d device.Device) domain.EntityStateUpdateEvent {
	return domain.EntityStateUpdateEvent{
		EntityUpdateEventMixIn: domain.EntityUpdateEventMixIn{
			Id: d.UniqueId(),
		},
		Component: string(d.Category()),
		State:     d.State(),
	}
}

func DevicesStateUpdateEvents(devices []device.Device) []any {
	var events []any
	for _, d := range devices {
		events = append(events, DeviceStateUpdateEvent(d))
	}
	return events
}

func BridgeStateUpdateEvent(online bool) domain.BridgeStateUpdateEvent {
	return domain.BridgeStateUpdateEvent{
		EntityUpdateEventMixIn: domain.EntityUpdateEventMixIn{
			Id: domain.SENSOR_ID_BRIDGE_STATE,
		},
		Value: online,
	}
}
