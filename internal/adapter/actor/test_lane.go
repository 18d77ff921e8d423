package actor

import (
	"sync"
	"time"

	"sajh1mqtt/internal/core/port"
	"sajh1mqtt/pkg/saj"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
)

// testLaneMessage satisfies the paho message interface for frames pushed by
// a scripted device.
type testLaneMessage struct {
	topic   string
	payload []byte
}

func (m testLaneMessage) Duplicate() bool   { return false }
func (m testLaneMessage) Qos() byte         { return 2 }
func (m testLaneMessage) Retained() bool    { return false }
func (m testLaneMessage) Topic() string     { return m.topic }
func (m testLaneMessage) MessageID() uint16 { return 0 }
func (m testLaneMessage) Payload() []byte   { return m.payload }
func (m testLaneMessage) Ack()              {}

// TestDeviceLane is a broker-free device lane. Connect and subscribe succeed
// immediately, published request frames are recorded and answered through
// the subscribed handler by the configured responder.
type TestDeviceLane struct {
	mu               sync.Mutex
	handler          pahomqtt.MessageHandler
	topic            string
	frames           [][]byte
	respond          func(frame []byte) [][]byte
	onConnectionLost func(error)
}

func NewTestDeviceLane(respond func(frame []byte) [][]byte) *TestDeviceLane {
	return &TestDeviceLane{respond: respond}
}

// Provider wires the lane into a bridge actor.
func (lane *TestDeviceLane) Provider() DeviceLaneProvider {
	return func(onConnectionLost func(error)) port.DeviceLane {
		lane.mu.Lock()
		lane.onConnectionLost = onConnectionLost
		lane.mu.Unlock()
		return lane
	}
}

func (lane *TestDeviceLane) Connect(continuation func(error), _ time.Duration) {
	continuation(nil)
}

func (lane *TestDeviceLane) Subscribe(topic string, _ byte, handler pahomqtt.MessageHandler, continuation func(error), _ time.Duration) {
	lane.mu.Lock()
	lane.handler = handler
	lane.topic = topic
	lane.mu.Unlock()
	continuation(nil)
}

func (lane *TestDeviceLane) Publish(_ string, payload any, _ byte, _ bool, continuation func(error), _ time.Duration) {
	frame := payload.([]byte)
	lane.mu.Lock()
	lane.frames = append(lane.frames, frame)
	handler := lane.handler
	topic := lane.topic
	var responses [][]byte
	if lane.respond != nil {
		responses = lane.respond(frame)
	}
	lane.mu.Unlock()
	continuation(nil)
	for _, rsp := range responses {
		handler(nil, testLaneMessage{topic: topic, payload: rsp})
	}
}

func (lane *TestDeviceLane) Disconnect(_ time.Duration) {
}

// DropConnection simulates a broken broker link.
func (lane *TestDeviceLane) DropConnection(err error) {
	lane.mu.Lock()
	notify := lane.onConnectionLost
	lane.mu.Unlock()
	notify(err)
}

// PublishedFrames returns the request frames seen so far.
func (lane *TestDeviceLane) PublishedFrames() [][]byte {
	lane.mu.Lock()
	defer lane.mu.Unlock()
	return append([][]byte(nil), lane.frames...)
}

// TestDeviceResponder answers request frames from an in-memory register
// space, like a cooperative inverter. Unset registers read as zero.
type TestDeviceResponder struct {
	mu        sync.Mutex
	codec     *saj.Codec
	registers map[uint16]uint16
}

func NewTestDeviceResponder() *TestDeviceResponder {
	return &TestDeviceResponder{
		codec:     saj.DefaultCodec(),
		registers: make(map[uint16]uint16),
	}
}

func (device *TestDeviceResponder) Set(register, value uint16) {
	device.mu.Lock()
	device.registers[register] = value
	device.mu.Unlock()
}

func (device *TestDeviceResponder) Get(register uint16) uint16 {
	device.mu.Lock()
	defer device.mu.Unlock()
	return device.registers[register]
}

// Respond decodes one request frame and produces the device answer.
func (device *TestDeviceResponder) Respond(frame []byte) [][]byte {
	if len(frame) < 6 {
		return nil
	}
	a := uint16(frame[2])<<8 | uint16(frame[3])
	b := uint16(frame[4])<<8 | uint16(frame[5])
	device.mu.Lock()
	defer device.mu.Unlock()
	switch frame[1] {
	case saj.FunctionReadRegisters:
		payload := make([]byte, 0, 2*b)
		for i := uint16(0); i < b; i++ {
			v := device.registers[a+i]
			payload = append(payload, byte(v>>8), byte(v))
		}
		return [][]byte{device.codec.EncodeReadResponse(payload)}
	case saj.FunctionWriteRegister:
		device.registers[a] = b
		return [][]byte{device.codec.EncodeWriteResponse(a, b)}
	}
	return nil
}
