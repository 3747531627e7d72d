package domain

import "fmt"

type EntityUpdateEventMixIn struct {
	Id string
}

type EntityUpdateEvent interface {
	EntityUpdateEvent() string
	EntityId() string
}

func (e EntityUpdateEventMixIn) EntityUpdateEvent() string {
	return fmt.Sprintf("%T", e)
}

func (e EntityUpdateEventMixIn) EntityId() string {
	return e.Id
}

// EntityStateUpdateEvent is published whenever a device model changes.
type EntityStateUpdateEvent struct {
	EntityUpdateEventMixIn
	Component string
	State     map[string]any
}

type BridgeStateUpdateEvent struct {
	EntityUpdateEventMixIn
	Value bool
}

// RegistryRebuiltEvent is published after every (re)discovery.
type RegistryRebuiltEvent struct {
	Devices []DeviceSnapshot
}
