package device

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/berfenger/dnake2mqtt/pkg/dnake"
)

const (
	COVER_STATE_OPEN    = "open"
	COVER_STATE_CLOSED  = "closed"
	COVER_STATE_OPENING = "opening"
	COVER_STATE_CLOSING = "closing"

	COVER_COMMAND_OPEN  = "OPEN"
	COVER_COMMAND_CLOSE = "CLOSE"
	COVER_COMMAND_STOP  = "STOP"
)

// Cover tracks the current level reported by the gateway and the target
// level of an in flight movement. Both are in 0..254.
type Cover struct {
	id           dnake.Identity
	name         string
	currentLevel int
	targetLevel  int
}

func NewCover(d dnake.DeviceDescriptor) *Cover {
	c := &Cover{
		id:   d.Identity(),
		name: d.Name,
	}
	if s, ok := d.InitialState().(dnake.CoverState); ok {
		c.currentLevel = s.Level
		c.targetLevel = s.Level
	}
	return c
}

func (c *Cover) Identity() dnake.Identity { return c.id }
func (c *Cover) Category() Category       { return CATEGORY_COVER }
func (c *Cover) UniqueId() string         { return uniqueId("cover", c.id) }
func (c *Cover) Name() string             { return c.name }
func (c *Cover) Model() string            { return "Cover control" }

func LevelToPercent(level int) int {
	return int(math.Round(float64(level) / dnake.MAX_LEVEL * 100))
}

func PercentToLevel(percent int) int {
	return int(math.Round(float64(percent) * dnake.MAX_LEVEL / 100))
}

func (c *Cover) CurrentLevel() int { return c.currentLevel }
func (c *Cover) TargetLevel() int  { return c.targetLevel }
func (c *Cover) Position() int     { return LevelToPercent(c.currentLevel) }
func (c *Cover) IsOpening() bool   { return c.targetLevel > c.currentLevel }
func (c *Cover) IsClosing() bool   { return c.targetLevel < c.currentLevel }
func (c *Cover) IsClosed() bool    { return c.currentLevel == 0 }
func (c *Cover) Moving() bool      { return c.IsOpening() || c.IsClosing() }
func (c *Cover) Settled() bool     { return c.currentLevel == c.targetLevel }

// SetPosition moves the cover to percent (0..100). On ack the target level
// is set and the cover must be fast polled until it settles.
func (c *Cover) SetPosition(percent int) *Intent {
	level := PercentToLevel(percent)
	return &Intent{
		Device:   c,
		Request:  dnake.SetLevel(c.id, level),
		FollowUp: FOLLOW_UP_FAST_POLL,
		commit:   func() { c.targetLevel = level },
	}
}

func (c *Cover) Open() *Intent {
	return c.SetPosition(100)
}

func (c *Cover) Close() *Intent {
	return c.SetPosition(0)
}

// Stop halts the cover. Levels are resynchronized by a refresh after the
// settle delay, so acking a stop commits nothing locally.
func (c *Cover) Stop() *Intent {
	return &Intent{
		Device:   c,
		Request:  dnake.Stop(c.id),
		FollowUp: FOLLOW_UP_SETTLE,
	}
}

// ApplyLevel sets the current level. With updateTarget the target follows
// and the cover is declared settled.
func (c *Cover) ApplyLevel(level int, updateTarget bool) bool {
	changed := c.currentLevel != level
	c.currentLevel = level
	if updateTarget {
		changed = changed || c.targetLevel != level
		c.targetLevel = level
	}
	return changed
}

func (c *Cover) Apply(p dnake.StatePayload) bool {
	s, ok := p.(dnake.CoverState)
	if !ok {
		return false
	}
	return c.ApplyLevel(s.Level, true)
}

func (c *Cover) Command(command string, payload string) (*Intent, error) {
	switch command {
	case "set":
		switch strings.ToUpper(payload) {
		case COVER_COMMAND_OPEN:
			return c.Open(), nil
		case COVER_COMMAND_CLOSE:
			return c.Close(), nil
		case COVER_COMMAND_STOP:
			return c.Stop(), nil
		}
		return nil, fmt.Errorf("%w: cover action %q", ErrInvalidCommand, payload)
	case "position":
		percent, err := strconv.Atoi(strings.TrimSpace(payload))
		if err != nil || percent < 0 || percent > 100 {
			return nil, fmt.Errorf("%w: cover position %q", ErrInvalidCommand, payload)
		}
		return c.SetPosition(percent), nil
	}
	return nil, fmt.Errorf("%w: cover command %q", ErrInvalidCommand, command)
}

func (c *Cover) MotionState() string {
	switch {
	case c.IsOpening():
		return COVER_STATE_OPENING
	case c.IsClosing():
		return COVER_STATE_CLOSING
	case c.IsClosed():
		return COVER_STATE_CLOSED
	}
	return COVER_STATE_OPEN
}

func (c *Cover) State() map[string]any {
	return map[string]any{
		"state":    c.MotionState(),
		"position": c.Position(),
	}
}
