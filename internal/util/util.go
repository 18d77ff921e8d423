package util

import (
	"sajh1mqtt/internal/config"

	"go.uber.org/zap"
)

func LoadTestConfig() config.Config {
	return config.Config{
		LogLevel: zap.DebugLevel,
		Inverter: config.InverterConfig{
			SerialNumber:        "H1S2602J2119E01121",
			EnableSerialPrefix:  false,
			EnableAccuratePower: false,
		},
		MQTT: config.MQTTConfig{
			Host:             "localhost",
			Port:             1883,
			BaseTopic:        "sajh1mqtt",
			HADiscoveryTopic: "homeassistant",
		},
		Poll: config.PollConfig{
			RealtimeIntervalMillis: 60000,
			ConfigIntervalMillis:   60000,
		},
		Port: 8080,
	}
}
