package port

import (
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// DeviceLane is the broker connection the register bridge drives. It has the
// same shape as the telemetry client so one implementation serves both, but
// the bridge only touches this slice of it.
type DeviceLane interface {
	Connect(continuation func(error), timeout time.Duration)
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler, continuation func(error), timeout time.Duration)
	Publish(topic string, payload any, qos byte, retain bool, continuation func(error), timeout time.Duration)
	Disconnect(timeout time.Duration)
}
