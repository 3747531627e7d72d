package domain

import (
	"errors"
	"fmt"
)

var ErrUnknownDevice = errors.New("unknown device")

// DevicesRequest is a request served by the devices actor.
type DevicesRequest interface {
	ActorRequest
	DevicesCommand() string
}

type DevicesRequestMixIn struct {
	ActorRequestMixIn
}

func (r DevicesRequestMixIn) DevicesCommand() string {
	return fmt.Sprintf("%T", r)
}

// DeviceSnapshot is the externally visible state of one device model.
type DeviceSnapshot struct {
	UniqueId  string         `json:"unique_id"`
	Name      string         `json:"name"`
	Model     string         `json:"model"`
	Component string         `json:"component"`
	Number    int            `json:"device_number"`
	Channel   int            `json:"channel"`
	Type      int            `json:"type"`
	State     map[string]any `json:"state"`
}

type ListDevicesRequest struct {
	DevicesRequestMixIn
}

type ListDevicesResponse struct {
	ActorResponseMixIn
	Devices []DeviceSnapshot
}

// DeviceCommandRequest carries a text command for one device, as received
// from MQTT or the HTTP API. Command is "set" or a sub command such as
// "position" or "fan_mode".
type DeviceCommandRequest struct {
	DevicesRequestMixIn
	UniqueId string
	Command  string
	Payload  string
}

type DeviceCommandResponse struct {
	ActorResponseMixIn
	Device *DeviceSnapshot
}

// RediscoverRequest rebuilds the device registry from a fresh device list.
type RediscoverRequest struct {
	DevicesRequestMixIn
}

type RediscoverResponse struct {
	ActorResponseMixIn
	Count int
}

// ensure interface compliance
var _ DevicesRequest = (*DeviceCommandRequest)(nil)
var _ DevicesRequest = (*ListDevicesRequest)(nil)
var _ DevicesRequest = (*RediscoverRequest)(nil)
