package config

import (
	"errors"
	"regexp"
	"strings"

	"go.uber.org/zap/zapcore"
)

type Config struct {
	LogLevel zapcore.Level
	Inverter InverterConfig `mapstructure:"inverter"`
	MQTT     MQTTConfig     `mapstructure:"mqtt"`
	Poll     PollConfig     `mapstructure:"poll"`

	Port    uint `mapstructure:"port"`
	HttpLog bool `mapstructure:"http_log"`
}

type InverterConfig struct {
	SerialNumber        string `mapstructure:"serial_number"`
	EnableSerialPrefix  bool   `mapstructure:"enable_serial_number_prefix"`
	EnableAccuratePower bool   `mapstructure:"enable_accurate_realtime_power"`
}

// PollConfig holds the per-block poll intervals. The realtime block is
// always polled; the other blocks are disabled when their interval is 0.
type PollConfig struct {
	RealtimeIntervalMillis          uint32 `mapstructure:"realtime_interval_millis"`
	InverterInfoIntervalMillis      uint32 `mapstructure:"inverter_info_interval_millis"`
	BatteryInfoIntervalMillis       uint32 `mapstructure:"battery_info_interval_millis"`
	BatteryControllerIntervalMillis uint32 `mapstructure:"battery_controller_interval_millis"`
	ConfigIntervalMillis            uint32 `mapstructure:"config_interval_millis"`
}

type MQTTConfig struct {
	Host              string
	Port              int
	Username          string
	Password          string
	BaseTopic         string `mapstructure:"base_topic"`
	Debug             bool   `mapstructure:"debug"`
	HADiscoveryEnable bool   `mapstructure:"ha_discovery_enable"`
	HADiscoveryTopic  string `mapstructure:"ha_discovery_topic"`
}

func CheckMQTTTopic(baseTopic string) (string, error) {
	// check and fix base topic
	lowerBaseTopic := strings.ToLower(baseTopic)
	baseTopicRegexp := regexp.MustCompile("^[a-z0-9_]+$")
	if !baseTopicRegexp.MatchString(lowerBaseTopic) {
		return "", errors.New("invalid topic. can only contain letters, numbers and underscores")
	}
	return lowerBaseTopic, nil
}

func CheckSerialNumber(serial string) (string, error) {
	serial = strings.TrimSpace(serial)
	serialRegexp := regexp.MustCompile("^[A-Za-z0-9_-]+$")
	if !serialRegexp.MatchString(serial) {
		return "", errors.New("invalid serial number. can only contain letters, numbers, underscores and dashes")
	}
	return serial, nil
}
