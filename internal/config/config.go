package config

import (
	"errors"
	"regexp"
	"strings"
	"time"

	"github.com/berfenger/dnake2mqtt/internal/scheduler"
	"github.com/berfenger/dnake2mqtt/pkg/dnake"
	"go.uber.org/zap/zapcore"
)

type Config struct {
	LogLevel zapcore.Level
	Gateway  GatewayConfig `mapstructure:"gateway"`
	MQTT     MQTTConfig    `mapstructure:"mqtt"`
	Port     uint          `mapstructure:"port"`
	HttpLog  bool          `mapstructure:"http_log"`
}

type GatewayConfig struct {
	Host                     string
	Username                 string
	Password                 string
	ScanInterval             uint32 `mapstructure:"scan_interval"`
	FastPollIntervalMillis   uint32 `mapstructure:"fast_poll_interval_millis"`
	CoverSettleDelayMillis   uint32 `mapstructure:"cover_settle_delay_millis"`
	ClimateWarmupDelayMillis uint32 `mapstructure:"climate_warmup_delay_millis"`
	RequestTimeoutMillis     uint32 `mapstructure:"request_timeout_millis"`
	FreshAirCommand          string `mapstructure:"fresh_air_command"`
	RediscoveryCron          string `mapstructure:"rediscovery_cron"`
}

type MQTTConfig struct {
	Host              string
	Port              int
	Username          string
	Password          string
	BaseTopic         string `mapstructure:"base_topic"`
	HADiscoveryEnable bool   `mapstructure:"ha_discovery_enable"`
	HADiscoveryTopic  string `mapstructure:"ha_discovery_topic"`
}

func (c GatewayConfig) ScanPeriod() time.Duration {
	return time.Duration(c.ScanInterval) * time.Second
}

func (c GatewayConfig) FastPollPeriod() time.Duration {
	return time.Duration(c.FastPollIntervalMillis) * time.Millisecond
}

func (c GatewayConfig) CoverSettleDelay() time.Duration {
	return time.Duration(c.CoverSettleDelayMillis) * time.Millisecond
}

func (c GatewayConfig) ClimateWarmupDelay() time.Duration {
	return time.Duration(c.ClimateWarmupDelayMillis) * time.Millisecond
}

// RequestTimeout is the http client timeout. Zero means no timeout.
func (c GatewayConfig) RequestTimeout() time.Duration {
	return time.Duration(c.RequestTimeoutMillis) * time.Millisecond
}

func (c GatewayConfig) FreshAirCmd() dnake.Cmd {
	if c.FreshAirCommand == string(dnake.CMD_FAN) {
		return dnake.CMD_FAN
	}
	return dnake.CMD_AIR_FRESH
}

func (c GatewayConfig) Validate() error {
	if c.Host == "" {
		return errors.New("gateway host is required")
	}
	if c.Username == "" {
		return errors.New("gateway username is required")
	}
	if c.Password == "" {
		return errors.New("gateway password is required")
	}
	if c.ScanInterval == 0 {
		return errors.New("gateway scan interval must be positive")
	}
	if c.FastPollIntervalMillis == 0 {
		return errors.New("gateway fast poll interval must be positive")
	}
	if c.FreshAirCommand != string(dnake.CMD_AIR_FRESH) && c.FreshAirCommand != string(dnake.CMD_FAN) {
		return errors.New("gateway fresh air command must be airFresh or fan")
	}
	if c.RediscoveryCron != "" {
		if _, err := scheduler.ParseCron(c.RediscoveryCron); err != nil {
			return err
		}
	}
	return nil
}

func CheckMQTTTopic(baseTopic string) (string, error) {
	// check and fix base topic
	lowerBaseTopic := strings.ToLower(baseTopic)
	baseTopicRegexp := regexp.MustCompile("^[a-z0-9_]+$")
	matches := baseTopicRegexp.FindAllStringSubmatch(lowerBaseTopic, 1)
	if len(matches) <= 0 {
		return "", errors.New("invalid topic. can only contain letters, numbers and underscores")
	}
	return lowerBaseTopic, nil
}
