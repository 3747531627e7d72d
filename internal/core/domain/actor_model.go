package domain

import "github.com/berfenger/dnake2mqtt/pkg/dnake"

const (
	ACTOR_ID_MASTER       = "master"
	ACTOR_ID_GATEWAY      = "gateway"
	ACTOR_ID_DEVICES      = "devices"
	ACTOR_ID_MQTT         = "mqtt"
	ACTOR_ID_HA_DISCOVERY = "hadiscovery"
)

// Gateway requests

type QueryIotInfoRequest struct {
	ActorRequestMixIn
}

type QueryIotInfoResponse struct {
	ActorResponseMixIn
	Info *dnake.IotInfo
}

type QueryDeviceListRequest struct {
	ActorRequestMixIn
}

type QueryDeviceListResponse struct {
	ActorResponseMixIn
	Devices []dnake.DeviceDescriptor
}

type ReadAllDevStateRequest struct {
	ActorRequestMixIn
}

type ReadAllDevStateResponse struct {
	ActorResponseMixIn
	States []dnake.DeviceState
}

type ReadDevStateRequest struct {
	ActorRequestMixIn
	Identity dnake.Identity
}

type ReadDevStateResponse struct {
	ActorResponseMixIn
	State *dnake.DeviceState
}

type ExecuteRequest struct {
	ActorRequestMixIn
	Request dnake.Request
}

type ExecuteResponse struct {
	ActorResponseMixIn
}

// MQTT requests

type PublishMessageRequest struct {
	ActorRequestMixIn
	Topic   string
	Payload string
	Retain  bool
}

type PublishMessageResponse struct {
	ActorResponseMixIn
}

// PublishDiscoveryRequest publishes discovery configs. Removed entities and
// sensors get their configs cleared.
type PublishDiscoveryRequest struct {
	ActorRequestMixIn
	Sensors        []GenericSensor
	Entities       []GenericEntity
	Removed        []GenericEntity
	RemovedSensors []GenericSensor
}

type PublishDiscoveryResponse struct {
	ActorResponseMixIn
}

// Health

type ActorHealthRequest struct {
	ActorRequestMixIn
}

type ActorHealthResponse struct {
	ActorResponseMixIn
	Id      string
	Healthy bool
	State   string
}
