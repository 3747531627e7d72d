// Package dnaketest provides an in memory Dnake gateway served over
// httptest, for tests of the gateway client and its users.
package dnaketest

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"time"

	"github.com/berfenger/dnake2mqtt/pkg/dnake"
)

type device struct {
	descriptor dnake.DeviceDescriptor
	on         bool
	level      int
	target     int
	mode       int
	speed      int
	swing      int
	tempIndoor float64
	tempDesire float64
	pm25       int
	errorCode  int
}

// Gateway is a fake gateway. Covers move towards their target by the cover
// step on every state read of that cover, instantly by default.
type Gateway struct {
	mu        sync.Mutex
	server    *httptest.Server
	devices   []*device
	commands  []dnake.Request
	readDev   map[dnake.Identity]int
	readAll   int
	coverStep int
	reject    bool
	failReads bool
	noIotInfo bool
	listDelay time.Duration
}

func NewGateway(descriptors ...dnake.DeviceDescriptor) *Gateway {
	g := &Gateway{
		readDev:   map[dnake.Identity]int{},
		coverStep: dnake.MAX_LEVEL,
	}
	for _, d := range descriptors {
		dev := &device{
			descriptor: d,
			tempIndoor: dnake.DEFAULT_TEMPERATURE,
			tempDesire: dnake.DEFAULT_TEMPERATURE,
		}
		switch s := d.InitialState().(type) {
		case dnake.LightState:
			dev.on = s.On
		case dnake.CoverState:
			dev.level = s.Level
			dev.target = s.Level
		case dnake.ClimateState:
			dev.on = s.On
			dev.mode = s.Mode
			dev.speed = s.Speed
			dev.swing = s.Swing
			dev.tempIndoor = s.TempIndoor
			dev.tempDesire = s.TempDesire
		case dnake.FreshAirState:
			dev.on = s.On
			dev.speed = s.Speed
			dev.pm25 = s.PM25
			dev.errorCode = s.ErrorCode
		}
		g.devices = append(g.devices, dev)
	}

	mux := http.NewServeMux()
	mux.HandleFunc(dnake.PATH_IOT_INFO, g.handleIotInfo)
	mux.HandleFunc(dnake.PATH_DEVICE_LIST, g.handleDeviceList)
	mux.HandleFunc("/route.cgi", g.handleRoute)
	g.server = httptest.NewServer(mux)
	return g
}

func (g *Gateway) URL() string {
	return g.server.URL
}

func (g *Gateway) Close() {
	g.server.Close()
}

// SetCoverStep sets how many levels a cover moves per state read.
func (g *Gateway) SetCoverStep(step int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.coverStep = step
}

// RejectCommands makes every ctrlDev answer with a non ok result.
func (g *Gateway) RejectCommands(reject bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.reject = reject
}

// FailReads makes every readDev answer with a non ok result.
func (g *Gateway) FailReads(fail bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.failReads = fail
}

// SetDeviceListDelay delays every speDev.info answer by d.
func (g *Gateway) SetDeviceListDelay(d time.Duration) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.listDelay = d
}

// FailIotInfo makes iot.info answer with an empty object.
func (g *Gateway) FailIotInfo(fail bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.noIotInfo = fail
}

// Commands lists the ctrlDev requests received so far.
func (g *Gateway) Commands() []dnake.Request {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]dnake.Request(nil), g.commands...)
}

func (g *Gateway) ReadDevCount(id dnake.Identity) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.readDev[id]
}

func (g *Gateway) ReadAllCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.readAll
}

// Level is the current level of a cover.
func (g *Gateway) Level(id dnake.Identity) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	if dev := g.find(id); dev != nil {
		return dev.level
	}
	return -1
}

// SetLevel moves a cover instantly, as a wall switch would.
func (g *Gateway) SetLevel(id dnake.Identity, level int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if dev := g.find(id); dev != nil {
		dev.level = level
		dev.target = level
	}
}

// SetOn switches a device outside of the bridge.
func (g *Gateway) SetOn(id dnake.Identity, on bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if dev := g.find(id); dev != nil {
		dev.on = on
	}
}

func (g *Gateway) On(id dnake.Identity) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if dev := g.find(id); dev != nil {
		return dev.on
	}
	return false
}

func (g *Gateway) handleIotInfo(w http.ResponseWriter, r *http.Request) {
	g.mu.Lock()
	fail := g.noIotInfo
	g.mu.Unlock()
	if fail {
		writeJSON(w, map[string]any{})
		return
	}
	writeJSON(w, dnake.IotInfo{IotDeviceName: "app01", GwIotName: "gw01"})
}

func (g *Gateway) handleDeviceList(w http.ResponseWriter, r *http.Request) {
	g.mu.Lock()
	delay := g.listDelay
	g.mu.Unlock()
	time.Sleep(delay)

	g.mu.Lock()
	defer g.mu.Unlock()
	list := make([]dnake.DeviceDescriptor, 0, len(g.devices))
	for _, d := range g.devices {
		list = append(list, d.descriptor)
	}
	writeJSON(w, map[string]any{"dl": list})
}

func (g *Gateway) handleRoute(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	var env struct {
		Data dnake.Request `json:"data"`
	}
	if err := json.Unmarshal(body, &env); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	data := env.Data
	switch data.Action {
	case dnake.ACTION_READ_ALL_DEV_STATE:
		g.readAll++
		list := make([]map[string]any, 0, len(g.devices))
		for _, d := range g.devices {
			d.step(g.coverStep)
			st := d.fields()
			st["devNo"] = d.descriptor.Number
			st["devCh"] = d.descriptor.Channel
			st["devType"] = int(d.descriptor.Type)
			list = append(list, st)
		}
		writeJSON(w, map[string]any{"result": "ok", "devList": list})
	case dnake.ACTION_READ_DEV:
		dev := g.findControlled(data)
		if g.failReads || dev == nil {
			writeJSON(w, map[string]any{"result": "fail"})
			return
		}
		g.readDev[dev.descriptor.Identity()]++
		dev.step(g.coverStep)
		st := dev.fields()
		st["result"] = "ok"
		writeJSON(w, st)
	case dnake.ACTION_CTRL_DEV:
		g.commands = append(g.commands, data)
		dev := g.findControlled(data)
		if g.reject || dev == nil {
			writeJSON(w, map[string]any{"result": "fail"})
			return
		}
		dev.control(data)
		writeJSON(w, map[string]any{"result": "ok"})
	default:
		writeJSON(w, map[string]any{"result": "unsupported"})
	}
}

func (g *Gateway) find(id dnake.Identity) *device {
	for _, d := range g.devices {
		if d.descriptor.Identity() == id {
			return d
		}
	}
	return nil
}

// findControlled resolves the device addressed by number and channel,
// using the command to pick the type when several share an address.
func (g *Gateway) findControlled(data dnake.Request) *device {
	if data.DevNo == nil || data.DevCh == nil {
		return nil
	}
	var match *device
	for _, d := range g.devices {
		if d.descriptor.Number != *data.DevNo || d.descriptor.Channel != *data.DevCh {
			continue
		}
		if match == nil || d.accepts(data.Cmd) {
			match = d
		}
	}
	return match
}

func (d *device) accepts(cmd dnake.Cmd) bool {
	switch cmd {
	case dnake.CMD_LEVEL, dnake.CMD_STOP:
		return d.descriptor.Type == dnake.TYPE_COVER
	case dnake.CMD_AIR_CONDITION:
		return d.descriptor.Type == dnake.TYPE_AIR_CONDITION
	case dnake.CMD_AIR_FRESH, dnake.CMD_FAN:
		return d.descriptor.Type == dnake.TYPE_FRESH_AIR
	}
	return d.descriptor.Type == dnake.TYPE_LIGHT
}

func (d *device) control(data dnake.Request) {
	switch data.Cmd {
	case dnake.CMD_ON, dnake.CMD_OFF:
		on := data.Cmd == dnake.CMD_ON
		if d.descriptor.Type == dnake.TYPE_COVER {
			d.target = 0
			if on {
				d.target = dnake.MAX_LEVEL
			}
			return
		}
		d.on = on
	case dnake.CMD_LEVEL:
		if data.Level != nil {
			d.target = *data.Level
		}
	case dnake.CMD_STOP:
		d.target = d.level
	default:
		param := 0
		if data.Param != nil {
			param = *data.Param
		}
		switch data.Oper {
		case dnake.OPER_POWER_ON:
			d.on = true
		case dnake.OPER_POWER_OFF:
			d.on = false
		case dnake.OPER_SET_TEMP:
			d.tempDesire = float64(param)
		case dnake.OPER_SET_MODE:
			d.mode = param
		case dnake.OPER_SET_FLOW:
			d.speed = param
		case dnake.OPER_SET_SWING:
			d.swing = param
		}
	}
}

func (d *device) step(by int) {
	if d.descriptor.Type != dnake.TYPE_COVER || by <= 0 {
		return
	}
	switch {
	case d.level < d.target:
		d.level = min(d.level+by, d.target)
	case d.level > d.target:
		d.level = max(d.level-by, d.target)
	}
}

func (d *device) fields() map[string]any {
	switch d.descriptor.Type {
	case dnake.TYPE_LIGHT:
		return map[string]any{"state": boolInt(d.on)}
	case dnake.TYPE_COVER:
		return map[string]any{"level": d.level}
	case dnake.TYPE_AIR_CONDITION:
		return map[string]any{
			"powerOn":    boolInt(d.on),
			"mode":       d.mode,
			"speed":      d.speed,
			"swing":      d.swing,
			"tempIndoor": d.tempIndoor,
			"tempDesire": d.tempDesire,
		}
	case dnake.TYPE_FRESH_AIR:
		return map[string]any{
			"powerOn":   boolInt(d.on),
			"speed":     d.speed,
			"pm25":      d.pm25,
			"errorCode": d.errorCode,
		}
	}
	return map[string]any{}
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}
