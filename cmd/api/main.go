package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	adactor "sajh1mqtt/internal/adapter/actor"
	"sajh1mqtt/internal/config"
	"sajh1mqtt/internal/core/actor"
	"sajh1mqtt/internal/core/domain"
	"sajh1mqtt/internal/server"
	"sajh1mqtt/internal/util"
	"sajh1mqtt/internal/util/actorutil"

	pactor "github.com/asynkron/protoactor-go/actor"
	"github.com/asynkron/protoactor-go/eventstream"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

func gracefulShutdown(apiServer *http.Server, done chan bool) {
	// Create context that listens for the interrupt signal from the OS.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Listen for the interrupt signal.
	<-ctx.Done()

	log.Println("shutting down gracefully, press Ctrl+C again to force")

	// The context is used to inform the server it has 5 seconds to finish
	// the request it is currently handling
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := apiServer.Shutdown(ctx); err != nil {
		log.Printf("Server forced to shutdown with error: %v", err)
	}

	log.Println("Server exiting")

	// Notify the main goroutine that the shutdown is complete
	done <- true
}

func main() {

	// load and print config
	cfg, err := initConfig()
	if err != nil {
		slog.Error("config errors", "error", err)
		return
	}
	safePrintConfig(*cfg)

	// zap logger
	zapCfg := zap.NewProductionConfig()
	zapCfg.Level = zap.NewAtomicLevelAt(cfg.LogLevel)

	logger := zap.Must(zapCfg.Build())

	// init actor system
	as := actorutil.NewActorSystemWithZapLogger(logger)
	ctx := as.Root

	defer logger.Sync()

	props := pactor.PropsFromProducer(func() pactor.Actor {
		return actor.NewMasterOfPuppetsActor(*cfg, bridgeActorProvider(cfg, logger), mqttActorProvider(cfg, logger), logger)
	})
	pid, err := ctx.SpawnNamed(props, domain.ACTOR_ID_MASTER)
	if err != nil {
		return
	}

	server := server.NewServer(*cfg, ctx, pid)
	// Create a done channel to signal when the shutdown is complete
	done := make(chan bool, 1)

	// Run graceful shutdown in a separate goroutine
	go gracefulShutdown(server, done)

	err = server.ListenAndServe()
	if err != nil && err != http.ErrServerClosed {
		panic(fmt.Sprintf("http server error: %s", err))
	}

	// Wait for the graceful shutdown to complete
	<-done
	log.Println("Graceful shutdown complete.")

	ctx.Stop(pid)
	as.Shutdown()
}

func initConfig() (*config.Config, error) {

	// alias PORT => SAJH1MQTT_PORT
	if port := os.Getenv("PORT"); port != "" {
		os.Setenv("SAJH1MQTT_PORT", port)
	}

	setConfigDefaults()

	viper.SetEnvPrefix("sajh1mqtt")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	// if defined, try to load config from yaml file
	if cfgFile := os.Getenv("CONFIG_FILE"); cfgFile != "" {
		if _, err := os.Stat(cfgFile); err == nil {
			slog.Info("Using config", "file", cfgFile)
			viper.SetConfigFile(cfgFile)

			err = viper.ReadInConfig()
			if err != nil {
				slog.Error("Error reading config file", "error", err)
			}
		}
	}

	var cfg config.Config

	err := viper.Unmarshal(&cfg)
	if err != nil {
		return nil, err
	}

	// parse log level
	switch viper.GetString("log_level") {
	case "trace":
		cfg.LogLevel = zap.DebugLevel
	case "debug":
		cfg.LogLevel = zap.DebugLevel
	case "info":
		cfg.LogLevel = zap.InfoLevel
	case "error":
		cfg.LogLevel = zap.ErrorLevel
	case "warn":
		cfg.LogLevel = zap.WarnLevel
	case "fatal":
		cfg.LogLevel = zap.FatalLevel
	default:
		cfg.LogLevel = zap.InfoLevel
	}

	// check serial number
	if cfg.Inverter.SerialNumber == "" {
		return nil, errors.New("config param inverter.serial_number is required")
	}
	serial, err := config.CheckSerialNumber(cfg.Inverter.SerialNumber)
	if err != nil {
		return nil, err
	}
	cfg.Inverter.SerialNumber = serial

	// check MQTT broker params
	if cfg.MQTT.Host == "" {
		return nil, errors.New("config param mqtt.host is required")
	}

	// check and fix base topic
	baseTopic, err := config.CheckMQTTTopic(cfg.MQTT.BaseTopic)
	if err != nil {
		return nil, errors.New("invalid base topic. can only contain letters, numbers and underscores")
	}
	cfg.MQTT.BaseTopic = baseTopic

	// check and fix homeassistant discovery topic
	hadBaseTopic, err := config.CheckMQTTTopic(cfg.MQTT.HADiscoveryTopic)
	if err != nil {
		return nil, errors.New("invalid homeassistant discovery topic. can only contain letters, numbers and underscores")
	}
	cfg.MQTT.HADiscoveryTopic = hadBaseTopic

	// check bounds
	if cfg.Poll.RealtimeIntervalMillis < 5000 {
		return nil, errors.New("config param poll.realtime_interval_millis should be >= 5000ms")
	}
	if err := checkOptionalInterval("poll.inverter_info_interval_millis", cfg.Poll.InverterInfoIntervalMillis); err != nil {
		return nil, err
	}
	if err := checkOptionalInterval("poll.battery_info_interval_millis", cfg.Poll.BatteryInfoIntervalMillis); err != nil {
		return nil, err
	}
	if err := checkOptionalInterval("poll.battery_controller_interval_millis", cfg.Poll.BatteryControllerIntervalMillis); err != nil {
		return nil, err
	}
	if err := checkOptionalInterval("poll.config_interval_millis", cfg.Poll.ConfigIntervalMillis); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// checkOptionalInterval validates a poll interval where 0 means disabled.
func checkOptionalInterval(param string, value uint32) error {
	if value > 0 && value < 1000 {
		return fmt.Errorf("config param %s should be 0 (disabled) or >= 1000ms", param)
	}
	return nil
}

func bridgeActorProvider(cfg *config.Config, logger *zap.Logger) actor.BridgeActorProvider {
	return func(latch *util.ReadinessLatch) *adactor.BridgeActor {
		return adactor.NewBridgeActor(cfg, adactor.MQTTDeviceLane(cfg), latch, logger)
	}
}

func mqttActorProvider(cfg *config.Config, logger *zap.Logger) actor.MQTTActorProvider {
	return func(eventStream *eventstream.EventStream) *adactor.MQTTActor {
		return adactor.NewMQTTActor(cfg, eventStream, logger)
	}
}

func setConfigDefaults() {
	viper.SetDefault("log_level", "info")
	viper.SetDefault("mqtt.port", 1883)
	viper.SetDefault("mqtt.base_topic", "sajh1mqtt")
	viper.SetDefault("mqtt.ha_discovery_enable", true)
	viper.SetDefault("mqtt.ha_discovery_topic", "homeassistant")
	viper.SetDefault("poll.realtime_interval_millis", 60000)
	viper.SetDefault("poll.inverter_info_interval_millis", 0)
	viper.SetDefault("poll.battery_info_interval_millis", 0)
	viper.SetDefault("poll.battery_controller_interval_millis", 0)
	viper.SetDefault("poll.config_interval_millis", 0)
	viper.SetDefault("port", 8080)
}

func safePrintConfig(cfg config.Config) {
	cfg.MQTT.Username = "*redacted*"
	cfg.MQTT.Password = "*redacted*"
	slog.Info("Using", "config", cfg)
}
