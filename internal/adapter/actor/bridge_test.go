package actor

import (
	"errors"
	"testing"
	"time"

	"sajh1mqtt/internal/core/domain"
	"sajh1mqtt/internal/util"
	"sajh1mqtt/internal/util/actorutil"
	"sajh1mqtt/pkg/saj"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

// registerEchoResponder answers every read with each register's own address
// as its value, so stitching order is visible in the payload.
func registerEchoResponder(codec *saj.Codec) func([]byte) [][]byte {
	return func(frame []byte) [][]byte {
		if len(frame) < 6 || frame[1] != saj.FunctionReadRegisters {
			return nil
		}
		start := uint16(frame[2])<<8 | uint16(frame[3])
		count := uint16(frame[4])<<8 | uint16(frame[5])
		payload := make([]byte, 0, 2*count)
		for i := uint16(0); i < count; i++ {
			reg := start + i
			payload = append(payload, byte(reg>>8), byte(reg))
		}
		return [][]byte{codec.EncodeReadResponse(payload)}
	}
}

func TestBridgeActorRead(t *testing.T) {

	cfg := util.LoadTestConfig()

	logger := zap.Must(zap.NewDevelopment())

	as := actorutil.NewActorSystemWithZapLogger(logger)

	context := as.Root

	lane := NewTestDeviceLane(registerEchoResponder(saj.DefaultCodec()))
	latch := util.NewReadinessLatch()

	props := actor.PropsFromProducer(func() actor.Actor { return NewBridgeActor(&cfg, lane.Provider(), latch, logger) })
	pid := context.Spawn(props)

	time.Sleep(500 * time.Millisecond)

	assert.True(t, latch.Ready(), "latch signals once the response topic is live")

	hc, err := healthCheck(context, pid)
	if err != nil {
		t.Error(err)
		return
	}
	assert.Equal(t, "idle", hc.State, "bridge idle")

	result, err := context.RequestFuture(pid, domain.ReadRegistersRequest{Start: 0x4069, Count: 2}, 5*time.Second).Result()
	if err != nil {
		t.Error(err)
		return
	}
	resp, ok := result.(domain.ReadRegistersResponse)
	assert.True(t, ok)
	assert.False(t, resp.HasResponseError(), "read ok")
	assert.Equal(t, []byte{0x40, 0x69, 0x40, 0x6a}, resp.Data, "payload")

	context.Stop(pid)

	time.Sleep(500 * time.Millisecond)

	as.Shutdown()
}

func TestBridgeActorChunkedRead(t *testing.T) {

	cfg := util.LoadTestConfig()

	logger := zap.Must(zap.NewDevelopment())

	as := actorutil.NewActorSystemWithZapLogger(logger)

	context := as.Root

	lane := NewTestDeviceLane(registerEchoResponder(saj.DefaultCodec()))
	latch := util.NewReadinessLatch()

	props := actor.PropsFromProducer(func() actor.Actor { return NewBridgeActor(&cfg, lane.Provider(), latch, logger) })
	pid := context.Spawn(props)

	time.Sleep(500 * time.Millisecond)

	result, err := context.RequestFuture(pid, domain.ReadRegistersRequest{Start: 0x4000, Count: 0x100}, 10*time.Second).Result()
	if err != nil {
		t.Error(err)
		return
	}
	resp, ok := result.(domain.ReadRegistersResponse)
	assert.True(t, ok)
	assert.False(t, resp.HasResponseError(), "read ok")
	assert.Equal(t, 512, len(resp.Data), "stitched payload length")
	assert.Equal(t, []byte{0x40, 0x00}, resp.Data[:2], "first register")
	assert.Equal(t, []byte{0x40, 0xff}, resp.Data[510:], "last register")
	assert.Equal(t, 3, len(lane.PublishedFrames()), "one request frame per chunk")

	context.Stop(pid)

	time.Sleep(500 * time.Millisecond)

	as.Shutdown()
}

func TestBridgeActorQueuedReads(t *testing.T) {

	cfg := util.LoadTestConfig()

	logger := zap.Must(zap.NewDevelopment())

	as := actorutil.NewActorSystemWithZapLogger(logger)

	context := as.Root

	lane := NewTestDeviceLane(registerEchoResponder(saj.DefaultCodec()))
	latch := util.NewReadinessLatch()

	props := actor.PropsFromProducer(func() actor.Actor { return NewBridgeActor(&cfg, lane.Provider(), latch, logger) })
	pid := context.Spawn(props)

	time.Sleep(500 * time.Millisecond)

	first := context.RequestFuture(pid, domain.ReadRegistersRequest{Start: 0x4000, Count: 1}, 5*time.Second)
	second := context.RequestFuture(pid, domain.ReadRegistersRequest{Start: 0x8000, Count: 1}, 5*time.Second)

	r1, err := first.Result()
	if err != nil {
		t.Error(err)
		return
	}
	r2, err := second.Result()
	if err != nil {
		t.Error(err)
		return
	}
	assert.Equal(t, []byte{0x40, 0x00}, r1.(domain.ReadRegistersResponse).Data, "first read payload")
	assert.Equal(t, []byte{0x80, 0x00}, r2.(domain.ReadRegistersResponse).Data, "second read payload")

	frames := lane.PublishedFrames()
	assert.Equal(t, 2, len(frames), "two request frames")
	assert.Equal(t, byte(0x40), frames[0][2], "first request leaves first")
	assert.Equal(t, byte(0x80), frames[1][2], "second request queues behind it")

	context.Stop(pid)

	time.Sleep(500 * time.Millisecond)

	as.Shutdown()
}

func TestBridgeActorWrite(t *testing.T) {

	cfg := util.LoadTestConfig()

	logger := zap.Must(zap.NewDevelopment())

	as := actorutil.NewActorSystemWithZapLogger(logger)

	context := as.Root

	codec := saj.DefaultCodec()
	// a frame for another register arrives first, the real echo after it
	lane := NewTestDeviceLane(func(frame []byte) [][]byte {
		if len(frame) < 6 || frame[1] != saj.FunctionWriteRegister {
			return nil
		}
		register := uint16(frame[2])<<8 | uint16(frame[3])
		value := uint16(frame[4])<<8 | uint16(frame[5])
		return [][]byte{
			codec.EncodeWriteResponse(register+1, value),
			codec.EncodeWriteResponse(register, value),
		}
	})
	latch := util.NewReadinessLatch()

	props := actor.PropsFromProducer(func() actor.Actor { return NewBridgeActor(&cfg, lane.Provider(), latch, logger) })
	pid := context.Spawn(props)

	time.Sleep(500 * time.Millisecond)

	result, err := context.RequestFuture(pid, domain.WriteRegisterRequest{Register: saj.RegAppMode, Value: 1}, 5*time.Second).Result()
	if err != nil {
		t.Error(err)
		return
	}
	resp, ok := result.(domain.WriteRegisterResponse)
	assert.True(t, ok)
	assert.False(t, resp.HasResponseError(), "write ok")
	assert.Equal(t, saj.RegAppMode, resp.Register, "register echoed")
	assert.Equal(t, uint16(1), resp.Value, "value echoed")

	context.Stop(pid)

	time.Sleep(500 * time.Millisecond)

	as.Shutdown()
}

func TestBridgeActorRequestTimeout(t *testing.T) {

	cfg := util.LoadTestConfig()

	logger := zap.Must(zap.NewDevelopment())

	as := actorutil.NewActorSystemWithZapLogger(logger)

	context := as.Root

	// the device never answers
	lane := NewTestDeviceLane(nil)
	latch := util.NewReadinessLatch()

	props := actor.PropsFromProducer(func() actor.Actor {
		act := NewBridgeActor(&cfg, lane.Provider(), latch, logger)
		act.requestTimeout = 200 * time.Millisecond
		return act
	})
	pid := context.Spawn(props)

	time.Sleep(500 * time.Millisecond)

	result, err := context.RequestFuture(pid, domain.ReadRegistersRequest{Start: 0x4000, Count: 1}, 5*time.Second).Result()
	if err != nil {
		t.Error(err)
		return
	}
	resp, ok := result.(domain.ReadRegistersResponse)
	assert.True(t, ok)
	assert.True(t, errors.Is(resp.GetResponseError(), domain.ErrRequestTimeout), "deadline maps to ErrRequestTimeout")

	context.Stop(pid)

	time.Sleep(500 * time.Millisecond)

	as.Shutdown()
}

func TestBridgeActorConnectionLost(t *testing.T) {

	cfg := util.LoadTestConfig()

	logger := zap.Must(zap.NewDevelopment())

	as := actorutil.NewActorSystemWithZapLogger(logger)

	context := as.Root

	// the device never answers, then the lane drops with a read in flight
	lane := NewTestDeviceLane(nil)
	latch := util.NewReadinessLatch()

	props := actor.PropsFromProducer(func() actor.Actor { return NewBridgeActor(&cfg, lane.Provider(), latch, logger) })
	pid := context.Spawn(props)

	time.Sleep(500 * time.Millisecond)

	future := context.RequestFuture(pid, domain.ReadRegistersRequest{Start: 0x4000, Count: 1}, 5*time.Second)

	time.Sleep(300 * time.Millisecond)

	lane.DropConnection(errors.New("link down"))

	result, err := future.Result()
	if err != nil {
		t.Error(err)
		return
	}
	resp, ok := result.(domain.ReadRegistersResponse)
	assert.True(t, ok)
	assert.True(t, errors.Is(resp.GetResponseError(), domain.ErrTransportDown), "failure maps to ErrTransportDown")

	context.Stop(pid)

	time.Sleep(500 * time.Millisecond)

	as.Shutdown()
}
