package dnake

import (
	"encoding/json"
	"fmt"
)

const (
	DEFAULT_TEMPERATURE = 16
)

// StatePayload is the type specific part of a DeviceState.
type StatePayload interface {
	DeviceType() TypeCode
}

type LightState struct {
	On bool
}

type CoverState struct {
	Level int
}

type ClimateState struct {
	On         bool
	Mode       int
	Speed      int
	Swing      int
	TempIndoor float64
	TempDesire float64
}

type FreshAirState struct {
	On        bool
	Speed     int
	PM25      int
	ErrorCode int
}

// UnknownState is the payload of states whose type code is not handled.
type UnknownState struct {
	Type TypeCode
}

func (LightState) DeviceType() TypeCode    { return TYPE_LIGHT }
func (CoverState) DeviceType() TypeCode    { return TYPE_COVER }
func (ClimateState) DeviceType() TypeCode  { return TYPE_AIR_CONDITION }
func (FreshAirState) DeviceType() TypeCode { return TYPE_FRESH_AIR }
func (s UnknownState) DeviceType() TypeCode {
	return s.Type
}

// DeviceState is a state record as returned by readAllDevState or readDev.
// Raw keeps the decoded object for change detection.
type DeviceState struct {
	Identity
	Payload StatePayload
	Raw     map[string]any
}

type stateFields struct {
	DevNo      *int     `json:"devNo"`
	DevCh      *int     `json:"devCh"`
	DevType    *int     `json:"devType"`
	State      *int     `json:"state"`
	Level      *int     `json:"level"`
	PowerOn    *int     `json:"powerOn"`
	Mode       *int     `json:"mode"`
	Speed      *int     `json:"speed"`
	Swing      *int     `json:"swing"`
	TempIndoor *float64 `json:"tempIndoor"`
	TempDesire *float64 `json:"tempDesire"`
	PM25       *int     `json:"pm25"`
	ErrorCode  *int     `json:"errorCode"`
}

func (s *DeviceState) UnmarshalJSON(data []byte) error {
	state, err := DecodeDeviceState(data, nil)
	if err != nil {
		return err
	}
	*s = *state
	return nil
}

// DecodeDeviceState decodes a state object. When the object carries no
// device identity (readDev responses), fallback is used instead. Without a
// fallback devNo and devCh are required; a missing devType leaves type 0.
func DecodeDeviceState(data []byte, fallback *Identity) (*DeviceState, error) {
	var fields stateFields
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil, err
	}
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, err
	}

	var id Identity
	if fallback != nil {
		id = *fallback
	}
	if fields.DevNo != nil {
		id.Number = *fields.DevNo
	}
	if fields.DevCh != nil {
		id.Channel = *fields.DevCh
	}
	if fields.DevType != nil {
		id.Type = TypeCode(*fields.DevType)
	}
	if fallback == nil && (fields.DevNo == nil || fields.DevCh == nil) {
		return nil, fmt.Errorf("device state without identity: %s", string(data))
	}

	return &DeviceState{
		Identity: id,
		Payload:  fields.payload(id.Type),
		Raw:      raw,
	}, nil
}

func (f stateFields) payload(t TypeCode) StatePayload {
	switch t {
	case TYPE_LIGHT:
		return LightState{
			On: intOr(f.State, 0) == 1,
		}
	case TYPE_COVER:
		return CoverState{
			Level: intOr(f.Level, 0),
		}
	case TYPE_AIR_CONDITION:
		return ClimateState{
			On:         intOr(f.PowerOn, 0) == 1,
			Mode:       intOr(f.Mode, 0),
			Speed:      intOr(f.Speed, 0),
			Swing:      intOr(f.Swing, 0),
			TempIndoor: floatOr(f.TempIndoor, DEFAULT_TEMPERATURE),
			TempDesire: floatOr(f.TempDesire, DEFAULT_TEMPERATURE),
		}
	case TYPE_FRESH_AIR:
		return FreshAirState{
			On:        intOr(f.PowerOn, 0) == 1,
			Speed:     intOr(f.Speed, 0),
			PM25:      intOr(f.PM25, 0),
			ErrorCode: intOr(f.ErrorCode, 0),
		}
	default:
		return UnknownState{Type: t}
	}
}

// InitialState builds the payload carried by a discovery descriptor.
func (d DeviceDescriptor) InitialState() StatePayload {
	return stateFields{
		State:      d.State,
		Level:      d.Level,
		PowerOn:    d.PowerOn,
		Mode:       d.Mode,
		Speed:      d.Speed,
		Swing:      d.Swing,
		TempIndoor: d.TempIndoor,
		TempDesire: d.TempDesire,
		PM25:       d.PM25,
		ErrorCode:  d.ErrorCode,
	}.payload(d.Type)
}

func intOr(v *int, def int) int {
	if v == nil {
		return def
	}
	return *v
}

func floatOr(v *float64, def float64) float64 {
	if v == nil {
		return def
	}
	return *v
}
