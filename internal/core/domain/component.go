package domain

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"

	"github.com/carlmjohnson/versioninfo"
)

const (
	SENSOR_ID_BRIDGE_STATE = "bridge"
	SENSOR_ID_PM25         = "pm25"
	SENSOR_ID_ERROR_CODE   = "error_code"

	SENSOR_TYPE_SENSOR = "sensor"
	SENSOR_TYPE_BINARY = "binary_sensor"

	COMPONENT_LIGHT   = "light"
	COMPONENT_COVER   = "cover"
	COMPONENT_CLIMATE = "climate"
	COMPONENT_FAN     = "fan"

	DEVICE_CLASS_CONNECTIVITY = "connectivity"
	DEVICE_CLASS_PM25         = "pm25"
	DEVICE_CLASS_SHADE        = "shade"

	STATE_CLASS_MEASUREMENT = "measurement"
	ENTITY_CLASS_DIAGNOSTIC = "diagnostic"
)

type Device struct {
	Id           string
	Name         string
	Version      string
	Model        string
	Manufacturer string
	ViaDevice    string
}

type GenericSensor struct {
	Device            Device
	Id                string
	SensorType        string
	Name              string
	UniqueId          string
	UnitOfMeasurement string
	StateClass        string // measurement, duration, total_increasing
	DeviceClass       string // connectivity, pm25
	EntityCategory    string // diagnostic, config, nil
	EnabledByDefault  *bool
	Icon              string
	// SourceEntity, when set, is the unique id of the entity whose JSON
	// state the sensor reads with ValueTemplate.
	SourceEntity    string
	SourceComponent string
	ValueTemplate   string
}

// GenericEntity is a controllable entity backed by one device model.
type GenericEntity struct {
	Device    Device
	Component string
	Id        string
	Name      string
	UniqueId  string
	Icon      string
}

func BridgeDevice(baseTopic string) Device {
	return Device{
		Id:           fmt.Sprintf("dnake_bridge_%s", md5HashShort(baseTopic)),
		Manufacturer: "ACasal",
		Model:        "Dnake2MQTT",
		Version:      versioninfo.Short(),
		Name:         fmt.Sprintf("Dnake2MQTT %s", md5HashShort(baseTopic)),
	}
}

func BridgeSensors(bridgeDevice Device) []GenericSensor {
	return []GenericSensor{{
		Device:         bridgeDevice,
		Id:             SENSOR_ID_BRIDGE_STATE,
		SensorType:     SENSOR_TYPE_BINARY,
		Name:           "Connection state",
		DeviceClass:    DEVICE_CLASS_CONNECTIVITY,
		EntityCategory: ENTITY_CLASS_DIAGNOSTIC,
		UniqueId:       uniqueId(bridgeDevice.Id, SENSOR_ID_BRIDGE_STATE),
	}}
}

// SnapshotDevice is the HA device of one gateway device, attached to the bridge.
func SnapshotDevice(bridgeDevice Device, snapshot DeviceSnapshot) Device {
	return Device{
		Id:           snapshot.UniqueId,
		Name:         snapshot.Name,
		Model:        snapshot.Model,
		Manufacturer: "Dnake",
		ViaDevice:    bridgeDevice.Id,
	}
}

func SnapshotEntity(bridgeDevice Device, snapshot DeviceSnapshot) GenericEntity {
	entity := GenericEntity{
		Device:    SnapshotDevice(bridgeDevice, snapshot),
		Component: snapshot.Component,
		Id:        snapshot.UniqueId,
		Name:      snapshot.Name,
		UniqueId:  snapshot.UniqueId,
	}
	switch snapshot.Component {
	case COMPONENT_FAN:
		entity.Icon = "mdi:air-filter"
	case COMPONENT_COVER:
		entity.Icon = "mdi:blinds"
	}
	return entity
}

// FreshAirSensors are the readings of a fresh air unit, taken from the fan
// entity state.
func FreshAirSensors(entity GenericEntity) []GenericSensor {
	return []GenericSensor{{
		Device:            IdDevice(entity.Device),
		Id:                fmt.Sprintf("%s_%s", entity.Id, SENSOR_ID_PM25),
		SensorType:        SENSOR_TYPE_SENSOR,
		Name:              "PM2.5",
		UniqueId:          uniqueId(entity.UniqueId, SENSOR_ID_PM25),
		UnitOfMeasurement: "µg/m³",
		StateClass:        STATE_CLASS_MEASUREMENT,
		DeviceClass:       DEVICE_CLASS_PM25,
		SourceEntity:      entity.Id,
		SourceComponent:   entity.Component,
		ValueTemplate:     "{{ value_json.pm25 }}",
	}, {
		Device:          IdDevice(entity.Device),
		Id:              fmt.Sprintf("%s_%s", entity.Id, SENSOR_ID_ERROR_CODE),
		SensorType:      SENSOR_TYPE_SENSOR,
		Name:            "Error code",
		UniqueId:        uniqueId(entity.UniqueId, SENSOR_ID_ERROR_CODE),
		EntityCategory:  ENTITY_CLASS_DIAGNOSTIC,
		Icon:            "mdi:alert-circle-outline",
		SourceEntity:    entity.Id,
		SourceComponent: entity.Component,
		ValueTemplate:   "{{ value_json.error_code }}",
	}}
}

func IdDevice(device Device) Device {
	return Device{
		Id:   device.Id,
		Name: device.Name,
	}
}

func uniqueId(baseId, id string) string {
	return fmt.Sprintf("uid_%s_%s", baseId, id)
}

func md5Hash(text string) string {
	hash := md5.Sum([]byte(text))
	return hex.EncodeToString(hash[:])
}

func md5HashShort(text string) string {
	hash := md5Hash(text)
	return hash[0:8]
}
