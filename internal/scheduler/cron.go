// Package scheduler computes the fire times of cron expressions. Firing is
// left to the caller, usually an actor timer.
package scheduler

import (
	"errors"
	"fmt"
	"time"

	"github.com/reugn/go-quartz/quartz"
)

var ErrInvalidCron = errors.New("invalid cron expression")

// CronSchedule wraps a quartz cron trigger. Expressions have six or seven
// fields, the first one being seconds.
type CronSchedule struct {
	expression string
	trigger    *quartz.CronTrigger
}

func ParseCron(expression string) (*CronSchedule, error) {
	return ParseCronInLocation(expression, time.Local)
}

func ParseCronInLocation(expression string, loc *time.Location) (*CronSchedule, error) {
	trigger, err := quartz.NewCronTriggerWithLoc(expression, loc)
	if err != nil {
		return nil, fmt.Errorf("%w %q: %w", ErrInvalidCron, expression, err)
	}
	return &CronSchedule{
		expression: expression,
		trigger:    trigger,
	}, nil
}

func (s *CronSchedule) String() string {
	return s.expression
}

// Next is the first fire time strictly after now.
func (s *CronSchedule) Next(now time.Time) (time.Time, error) {
	next, err := s.trigger.NextFireTime(now.UnixNano())
	if err != nil {
		return time.Time{}, err
	}
	return time.Unix(0, next), nil
}

// Delay is the time left from now to the next fire time.
func (s *CronSchedule) Delay(now time.Time) (time.Duration, error) {
	next, err := s.Next(now)
	if err != nil {
		return 0, err
	}
	return next.Sub(now), nil
}
