package dnake

type Action string

type Cmd string

type Oper string

const (
	ACTION_READ_DEV           Action = "readDev"
	ACTION_READ_ALL_DEV_STATE Action = "readAllDevState"
	ACTION_CTRL_DEV           Action = "ctrlDev"
)

const (
	CMD_ON            Cmd = "on"
	CMD_OFF           Cmd = "off"
	CMD_STOP          Cmd = "stop"
	CMD_LEVEL         Cmd = "level"
	CMD_AIR_CONDITION Cmd = "airCondition"
	CMD_AIR_FRESH     Cmd = "airFresh"
	CMD_FAN           Cmd = "fan"
)

const (
	OPER_POWER_ON  Oper = "powerOn"
	OPER_POWER_OFF Oper = "powerOff"
	OPER_SET_TEMP  Oper = "setTemp"
	OPER_SET_MODE  Oper = "setMode"
	OPER_SET_FLOW  Oper = "setFlow"
	OPER_SET_SWING Oper = "setSwing"
)

const (
	MAX_LEVEL = 254
)

// Request is the data part of a route.cgi request. UUID is set by the
// client on every post.
type Request struct {
	Action Action `json:"action"`
	UUID   string `json:"uuid,omitempty"`
	Cmd    Cmd    `json:"cmd,omitempty"`
	DevNo  *int   `json:"devNo,omitempty"`
	DevCh  *int   `json:"devCh,omitempty"`
	Oper   Oper   `json:"oper,omitempty"`
	Param  *int   `json:"param,omitempty"`
	Level  *int   `json:"level,omitempty"`
}

type envelope struct {
	FromDev string  `json:"fromDev"`
	ToDev   string  `json:"toDev"`
	Data    Request `json:"data"`
}

func ReadDev(id Identity) Request {
	return Request{
		Action: ACTION_READ_DEV,
		DevNo:  ptr(id.Number),
		DevCh:  ptr(id.Channel),
	}
}

func ReadAllDevState() Request {
	return Request{
		Action: ACTION_READ_ALL_DEV_STATE,
	}
}

func TurnTo(id Identity, on bool) Request {
	cmd := CMD_OFF
	if on {
		cmd = CMD_ON
	}
	return control(id, cmd)
}

func Stop(id Identity) Request {
	return control(id, CMD_STOP)
}

func SetLevel(id Identity, level int) Request {
	req := control(id, CMD_LEVEL)
	req.Level = ptr(level)
	return req
}

func AirCondition(id Identity, oper Oper, param *int) Request {
	return composite(id, CMD_AIR_CONDITION, oper, param)
}

func AirConditionPower(id Identity, on bool) Request {
	return AirCondition(id, powerOper(on), nil)
}

func AirConditionTemperature(id Identity, temperature int) Request {
	return AirCondition(id, OPER_SET_TEMP, ptr(temperature))
}

func AirConditionMode(id Identity, mode int) Request {
	return AirCondition(id, OPER_SET_MODE, ptr(mode))
}

func AirConditionFlow(id Identity, speed int) Request {
	return AirCondition(id, OPER_SET_FLOW, ptr(speed))
}

func AirConditionSwing(id Identity, swing int) Request {
	return AirCondition(id, OPER_SET_SWING, ptr(swing))
}

// FreshAir builds a fresh air unit command. cmd is CMD_AIR_FRESH or CMD_FAN
// depending on the unit.
func FreshAir(id Identity, cmd Cmd, oper Oper, param *int) Request {
	return composite(id, cmd, oper, param)
}

func FreshAirPower(id Identity, cmd Cmd, on bool) Request {
	return FreshAir(id, cmd, powerOper(on), nil)
}

func FreshAirFlow(id Identity, cmd Cmd, speed int) Request {
	return FreshAir(id, cmd, OPER_SET_FLOW, ptr(speed))
}

func FreshAirMode(id Identity, cmd Cmd, mode int) Request {
	return FreshAir(id, cmd, OPER_SET_MODE, ptr(mode))
}

func control(id Identity, cmd Cmd) Request {
	return Request{
		Action: ACTION_CTRL_DEV,
		Cmd:    cmd,
		DevNo:  ptr(id.Number),
		DevCh:  ptr(id.Channel),
	}
}

func composite(id Identity, cmd Cmd, oper Oper, param *int) Request {
	req := control(id, cmd)
	req.Oper = oper
	req.Param = param
	return req
}

func powerOper(on bool) Oper {
	if on {
		return OPER_POWER_ON
	}
	return OPER_POWER_OFF
}

func ptr[T any](v T) *T {
	return &v
}
