package util

import (
	"github.com/berfenger/dnake2mqtt/internal/config"

	"go.uber.org/zap"
)

func LoadTestConfig() config.Config {
	return config.Config{
		LogLevel: zap.DebugLevel,
		Gateway: config.GatewayConfig{
			Host:                     "-.-.-.-",
			Username:                 "admin",
			Password:                 "123456",
			ScanInterval:             10,
			FastPollIntervalMillis:   50,
			CoverSettleDelayMillis:   100,
			ClimateWarmupDelayMillis: 100,
			RequestTimeoutMillis:     2000,
			FreshAirCommand:          "airFresh",
		},
		MQTT: config.MQTTConfig{
			Host:      "localhost",
			Port:      1883,
			BaseTopic: "dnake",
		},
		Port: 8080,
	}
}
