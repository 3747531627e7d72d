package mqtt

import (
	"fmt"

	"github.com/berfenger/dnake2mqtt/internal/core/domain"
	"github.com/berfenger/dnake2mqtt/internal/device"
)

type HADiscoveryConfig struct {
	Device            HADiscoveryDevice `json:"device"`
	StateTopic        string            `json:"state_topic,omitempty"`
	CommandTopic      string            `json:"command_topic,omitempty"`
	ValueTemplate     string            `json:"value_template,omitempty"`
	StateClass        string            `json:"state_class,omitempty"`
	DeviceClass       string            `json:"device_class,omitempty"`
	UnitOfMeasurement string            `json:"unit_of_measurement,omitempty"`
	AvTopic           string            `json:"availability_topic,omitempty"`
	EntityCategory    string            `json:"entity_category,omitempty"`
	Name              string            `json:"name"`
	UniqueId          string            `json:"unique_id"`
	Platform          string            `json:"platform"`
	EnabledByDefault  *bool             `json:"enabled_by_default,omitempty"`
	PayloadOn         string            `json:"payload_on,omitempty"`
	PayloadOff        string            `json:"payload_off,omitempty"`
	Icon              string            `json:"icon,omitempty"`

	// light and fan
	StateValueTemplate string `json:"state_value_template,omitempty"`

	// cover
	PayloadOpen      string `json:"payload_open,omitempty"`
	PayloadClose     string `json:"payload_close,omitempty"`
	PayloadStop      string `json:"payload_stop,omitempty"`
	StateOpen        string `json:"state_open,omitempty"`
	StateOpening     string `json:"state_opening,omitempty"`
	StateClosed      string `json:"state_closed,omitempty"`
	StateClosing     string `json:"state_closing,omitempty"`
	PositionTopic    string `json:"position_topic,omitempty"`
	PositionTemplate string `json:"position_template,omitempty"`
	SetPositionTopic string `json:"set_position_topic,omitempty"`
	PositionOpen     int    `json:"position_open,omitempty"`

	// climate
	PowerCommandTopic          string   `json:"power_command_topic,omitempty"`
	ModeCommandTopic           string   `json:"mode_command_topic,omitempty"`
	ModeStateTopic             string   `json:"mode_state_topic,omitempty"`
	ModeStateTemplate          string   `json:"mode_state_template,omitempty"`
	Modes                      []string `json:"modes,omitempty"`
	TemperatureCommandTopic    string   `json:"temperature_command_topic,omitempty"`
	TemperatureStateTopic      string   `json:"temperature_state_topic,omitempty"`
	TemperatureStateTemplate   string   `json:"temperature_state_template,omitempty"`
	CurrentTemperatureTopic    string   `json:"current_temperature_topic,omitempty"`
	CurrentTemperatureTemplate string   `json:"current_temperature_template,omitempty"`
	FanModeCommandTopic        string   `json:"fan_mode_command_topic,omitempty"`
	FanModeStateTopic          string   `json:"fan_mode_state_topic,omitempty"`
	FanModeStateTemplate       string   `json:"fan_mode_state_template,omitempty"`
	FanModes                   []string `json:"fan_modes,omitempty"`
	SwingModeCommandTopic      string   `json:"swing_mode_command_topic,omitempty"`
	SwingModeStateTopic        string   `json:"swing_mode_state_topic,omitempty"`
	SwingModeStateTemplate     string   `json:"swing_mode_state_template,omitempty"`
	SwingModes                 []string `json:"swing_modes,omitempty"`
	MinTemp                    float64  `json:"min_temp,omitempty"`
	MaxTemp                    float64  `json:"max_temp,omitempty"`
	TempStep                   float64  `json:"temp_step,omitempty"`
	TemperatureUnit            string   `json:"temperature_unit,omitempty"`

	// fan
	PercentageCommandTopic  string   `json:"percentage_command_topic,omitempty"`
	PercentageStateTopic    string   `json:"percentage_state_topic,omitempty"`
	PercentageValueTemplate string   `json:"percentage_value_template,omitempty"`
	PresetModeCommandTopic  string   `json:"preset_mode_command_topic,omitempty"`
	PresetModeStateTopic    string   `json:"preset_mode_state_topic,omitempty"`
	PresetModeValueTemplate string   `json:"preset_mode_value_template,omitempty"`
	PresetModes             []string `json:"preset_modes,omitempty"`
}

type HADiscoveryDevice struct {
	Id           []string `json:"identifiers"`
	Manufacturer string   `json:"manufacturer,omitempty"`
	Version      string   `json:"sw_version,omitempty"`
	Model        string   `json:"model,omitempty"`
	Name         string   `json:"name,omitempty"`
	ViaDevice    string   `json:"via_device,omitempty"`
}

func HADiscoverySensorTopic(client *MQTTClient, sensor domain.GenericSensor) string {
	return fmt.Sprintf("%s/%s/%s/%s/config", client.HADiscoveryPrefix(), sensor.SensorType, sensor.Device.Id, sensor.Id)
}

func HADiscoveryEntityTopic(client *MQTTClient, entity domain.GenericEntity) string {
	return fmt.Sprintf("%s/%s/%s/config", client.HADiscoveryPrefix(), entity.Component, entity.Id)
}

func GenericSensorToHADiscoveryMessage(client *MQTTClient, sensor domain.GenericSensor) HADiscoveryConfig {
	var topic string
	switch {
	case sensor.Id == domain.SENSOR_ID_BRIDGE_STATE:
		topic = client.BridgeStateTopic()
	case sensor.SourceEntity != "":
		topic = client.EntityStateTopic(sensor.SourceComponent, sensor.SourceEntity)
	default:
		topic = client.EntityStateTopic(sensor.SensorType, sensor.Id)
	}
	disConfig := HADiscoveryConfig{
		Device:            haDevice(sensor.Device),
		StateTopic:        topic,
		ValueTemplate:     sensor.ValueTemplate,
		StateClass:        sensor.StateClass,
		DeviceClass:       sensor.DeviceClass,
		UnitOfMeasurement: sensor.UnitOfMeasurement,
		AvTopic:           client.BridgeStateTopic(),
		EntityCategory:    sensor.EntityCategory,
		Name:              sensor.Name,
		UniqueId:          sensor.UniqueId,
		Icon:              sensor.Icon,
		EnabledByDefault:  sensor.EnabledByDefault,
		Platform:          "mqtt",
	}
	if sensor.Id == domain.SENSOR_ID_BRIDGE_STATE {
		disConfig.PayloadOn = MQTT_PAYLOAD_ONLINE
		disConfig.PayloadOff = MQTT_PAYLOAD_OFFLINE
		// the bridge reports its own availability
		disConfig.AvTopic = ""
	} else if sensor.SensorType == domain.SENSOR_TYPE_BINARY {
		disConfig.PayloadOn = MQTT_PAYLOAD_ON
		disConfig.PayloadOff = MQTT_PAYLOAD_OFF
	}
	return disConfig
}

// GenericEntityToHADiscoveryMessage builds the discovery config of a
// controllable entity. Every entity publishes its whole state as JSON on a
// single state topic, read back through value templates.
func GenericEntityToHADiscoveryMessage(client *MQTTClient, entity domain.GenericEntity) HADiscoveryConfig {
	stateTopic := client.EntityStateTopic(entity.Component, entity.Id)
	cmdTopic := func(command string) string {
		return client.EntityCommandTopic(entity.Component, entity.Id, command)
	}
	disConfig := HADiscoveryConfig{
		Device:   haDevice(entity.Device),
		AvTopic:  client.BridgeStateTopic(),
		Name:     entity.Name,
		UniqueId: entity.UniqueId,
		Icon:     entity.Icon,
		Platform: "mqtt",
	}

	switch entity.Component {
	case domain.COMPONENT_LIGHT:
		disConfig.StateTopic = stateTopic
		disConfig.CommandTopic = cmdTopic(COMMAND_SET)
		disConfig.StateValueTemplate = "{{ value_json.state }}"
		disConfig.PayloadOn = MQTT_PAYLOAD_ON
		disConfig.PayloadOff = MQTT_PAYLOAD_OFF
	case domain.COMPONENT_COVER:
		disConfig.DeviceClass = domain.DEVICE_CLASS_SHADE
		disConfig.StateTopic = stateTopic
		disConfig.CommandTopic = cmdTopic(COMMAND_SET)
		disConfig.ValueTemplate = "{{ value_json.state }}"
		disConfig.PayloadOpen = device.COVER_COMMAND_OPEN
		disConfig.PayloadClose = device.COVER_COMMAND_CLOSE
		disConfig.PayloadStop = device.COVER_COMMAND_STOP
		disConfig.StateOpen = device.COVER_STATE_OPEN
		disConfig.StateOpening = device.COVER_STATE_OPENING
		disConfig.StateClosed = device.COVER_STATE_CLOSED
		disConfig.StateClosing = device.COVER_STATE_CLOSING
		disConfig.PositionTopic = stateTopic
		disConfig.PositionTemplate = "{{ value_json.position }}"
		disConfig.SetPositionTopic = cmdTopic("position")
		disConfig.PositionOpen = 100
	case domain.COMPONENT_CLIMATE:
		disConfig.PowerCommandTopic = cmdTopic("power")
		disConfig.PayloadOn = MQTT_PAYLOAD_ON
		disConfig.PayloadOff = MQTT_PAYLOAD_OFF
		disConfig.ModeCommandTopic = cmdTopic("mode")
		disConfig.ModeStateTopic = stateTopic
		disConfig.ModeStateTemplate = "{{ value_json.mode }}"
		disConfig.Modes = stringValues(device.HvacModes.Values())
		disConfig.TemperatureCommandTopic = cmdTopic("temperature")
		disConfig.TemperatureStateTopic = stateTopic
		disConfig.TemperatureStateTemplate = "{{ value_json.temperature }}"
		disConfig.CurrentTemperatureTopic = stateTopic
		disConfig.CurrentTemperatureTemplate = "{{ value_json.current_temperature }}"
		disConfig.FanModeCommandTopic = cmdTopic("fan_mode")
		disConfig.FanModeStateTopic = stateTopic
		disConfig.FanModeStateTemplate = "{{ value_json.fan_mode }}"
		disConfig.FanModes = stringValues(device.ClimateFanModes.Values())
		disConfig.SwingModeCommandTopic = cmdTopic("swing_mode")
		disConfig.SwingModeStateTopic = stateTopic
		disConfig.SwingModeStateTemplate = "{{ value_json.swing_mode }}"
		disConfig.SwingModes = stringValues(device.SwingModes.Values())
		disConfig.MinTemp = device.CLIMATE_MIN_TEMP
		disConfig.MaxTemp = device.CLIMATE_MAX_TEMP
		disConfig.TempStep = device.CLIMATE_TEMP_STEP
		disConfig.TemperatureUnit = "C"
	case domain.COMPONENT_FAN:
		disConfig.StateTopic = stateTopic
		disConfig.CommandTopic = cmdTopic(COMMAND_SET)
		disConfig.StateValueTemplate = "{{ value_json.state }}"
		disConfig.PayloadOn = MQTT_PAYLOAD_ON
		disConfig.PayloadOff = MQTT_PAYLOAD_OFF
		disConfig.PercentageCommandTopic = cmdTopic("percentage")
		disConfig.PercentageStateTopic = stateTopic
		disConfig.PercentageValueTemplate = "{{ value_json.percentage }}"
		disConfig.PresetModeCommandTopic = cmdTopic("preset_mode")
		disConfig.PresetModeStateTopic = stateTopic
		disConfig.PresetModeValueTemplate = "{{ value_json.preset_mode }}"
		disConfig.PresetModes = stringValues(device.FreshAirSpeeds.Values())
	}
	return disConfig
}

func haDevice(d domain.Device) HADiscoveryDevice {
	return HADiscoveryDevice{
		Id:           []string{d.Id},
		Manufacturer: d.Manufacturer,
		Version:      d.Version,
		Model:        d.Model,
		Name:         d.Name,
		ViaDevice:    d.ViaDevice,
	}
}

func stringValues[E ~string](values []E) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		out = append(out, string(v))
	}
	return out
}
