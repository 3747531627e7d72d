package dnake

import (
	"encoding/json"
	"fmt"
)

type TypeCode int

const (
	TYPE_LIGHT         TypeCode = 256
	TYPE_COVER         TypeCode = 514
	TYPE_AIR_CONDITION TypeCode = 16640
	TYPE_FRESH_AIR     TypeCode = 16926
)

const (
	RESULT_OK = "ok"
)

// Identity addresses one device on the gateway bus.
type Identity struct {
	Number  int
	Channel int
	Type    TypeCode
}

// Key is the device number/channel key used by the gateway state list.
// It does not include the type code.
func (id Identity) Key() string {
	return fmt.Sprintf("%d_%d", id.Number, id.Channel)
}

func (id Identity) String() string {
	return fmt.Sprintf("%d_%d@%d", id.Number, id.Channel, id.Type)
}

type IotInfo struct {
	IotDeviceName string `json:"iotDeviceName"`
	GwIotName     string `json:"gwIotName"`
}

// DeviceDescriptor is a device entry of the speDev.info list. Initial state
// fields are only present for the device types that report them.
type DeviceDescriptor struct {
	Name       string   `json:"na"`
	Number     int      `json:"nm"`
	Channel    int      `json:"ch"`
	Type       TypeCode `json:"ty"`
	State      *int     `json:"state,omitempty"`
	Level      *int     `json:"level,omitempty"`
	PowerOn    *int     `json:"powerOn,omitempty"`
	Mode       *int     `json:"mode,omitempty"`
	Speed      *int     `json:"speed,omitempty"`
	Swing      *int     `json:"swing,omitempty"`
	TempIndoor *float64 `json:"tempIndoor,omitempty"`
	TempDesire *float64 `json:"tempDesire,omitempty"`
	PM25       *int     `json:"pm25,omitempty"`
	ErrorCode  *int     `json:"errorCode,omitempty"`
}

func (d DeviceDescriptor) Identity() Identity {
	return Identity{
		Number:  d.Number,
		Channel: d.Channel,
		Type:    d.Type,
	}
}

type deviceListResponse struct {
	DeviceList []DeviceDescriptor `json:"dl"`
}

// allDevStateResponse keeps the entries raw so one malformed entry does not
// fail the whole list.
type allDevStateResponse struct {
	DevList []json.RawMessage `json:"devList"`
}

type commandResponse struct {
	Result string `json:"result"`
}
