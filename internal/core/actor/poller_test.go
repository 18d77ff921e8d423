package actor

import (
	"encoding/binary"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"sajh1mqtt/internal/core/domain"
	"sajh1mqtt/internal/util"
	"sajh1mqtt/internal/util/actorutil"
	"sajh1mqtt/pkg/saj"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/asynkron/protoactor-go/eventstream"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func healthCheck(context *actor.RootContext, pid *actor.PID) (*domain.ActorHealthResponse, error) {
	result, err := context.RequestFuture(pid, domain.ActorHealthRequest{}, 2*time.Second).Result()
	if err != nil {
		return nil, err
	}
	resp, ok := result.(domain.ActorHealthResponse)
	if !ok {
		return nil, errors.New("unexpected health response type")
	}
	return &resp, nil
}

func configTestBuffer() []byte {
	buf := make([]byte, 2*int(saj.RegConfigCount))
	binary.BigEndian.PutUint16(buf[0:], saj.AppModeTimeOfUse)
	binary.BigEndian.PutUint16(buf[2:], 3300)
	return buf
}

// stubBridgeProps answers register reads the way the bridge would, without a
// broker underneath.
func stubBridgeProps(respond func(msg domain.ReadRegistersRequest) domain.ReadRegistersResponse) *actor.Props {
	return actor.PropsFromFunc(func(ctx actor.Context) {
		switch msg := ctx.Message().(type) {
		case domain.ReadRegistersRequest:
			ctx.Respond(respond(msg))
		}
	})
}

func TestPollerActorLatchGate(t *testing.T) {

	cfg := util.LoadTestConfig()

	logger := zap.Must(zap.NewDevelopment())

	as := actorutil.NewActorSystemWithZapLogger(logger)

	context := as.Root

	bridge := context.Spawn(stubBridgeProps(func(msg domain.ReadRegistersRequest) domain.ReadRegistersResponse {
		return domain.ReadRegistersResponse{Start: msg.Start, Count: msg.Count, Data: configTestBuffer()}
	}))

	es := &eventstream.EventStream{}
	var mu sync.Mutex
	var captured []any
	es.Subscribe(func(value any) {
		mu.Lock()
		captured = append(captured, value)
		mu.Unlock()
	})

	latch := util.NewReadinessLatch()

	props := actor.PropsFromProducer(func() actor.Actor {
		return NewPollerActor(&cfg, saj.ConfigDataBlock, 60*time.Second, bridge, es, latch, logger)
	})
	pid := context.Spawn(props)

	time.Sleep(1500 * time.Millisecond)

	hc, err := healthCheck(context, pid)
	if err != nil {
		t.Error(err)
		return
	}
	assert.Equal(t, "not_ready", hc.State, "poller waits for the lane")

	result, err := context.RequestFuture(pid, domain.BlockSnapshotRequest{Block: saj.ConfigDataBlock.Name}, 2*time.Second).Result()
	if err != nil {
		t.Error(err)
		return
	}
	snapshot, ok := result.(domain.BlockSnapshotResponse)
	assert.True(t, ok)
	assert.False(t, snapshot.Ready, "no data before the first poll")

	result, err = context.RequestFuture(pid, domain.RefreshBlockRequest{Block: saj.ConfigDataBlock.Name}, 2*time.Second).Result()
	if err != nil {
		t.Error(err)
		return
	}
	refresh, ok := result.(domain.RefreshBlockResponse)
	assert.True(t, ok)
	assert.True(t, errors.Is(refresh.GetResponseError(), domain.ErrNotReady), "refresh rejected while not ready")

	latch.Signal()

	time.Sleep(1500 * time.Millisecond)

	hc, err = healthCheck(context, pid)
	if err != nil {
		t.Error(err)
		return
	}
	assert.Equal(t, "ready", hc.State, "poller ready after the latch")

	result, err = context.RequestFuture(pid, domain.BlockSnapshotRequest{Block: saj.ConfigDataBlock.Name}, 2*time.Second).Result()
	if err != nil {
		t.Error(err)
		return
	}
	snapshot, ok = result.(domain.BlockSnapshotResponse)
	assert.True(t, ok)
	assert.True(t, snapshot.Ready, "snapshot ready")
	assert.Equal(t, configTestBuffer(), snapshot.Data, "snapshot carries the block buffer")
	assert.False(t, snapshot.LastUpdate.IsZero(), "snapshot carries the poll time")

	mu.Lock()
	events := append([]any(nil), captured...)
	mu.Unlock()
	assert.Equal(t, len(saj.ConfigDataFields), len(events), "one control event per config field")
	var appMode string
	for _, event := range events {
		if sel, ok := event.(domain.SelectSensorUpdateEvent); ok && sel.Id == "saj_h1_app_mode" {
			appMode = sel.Value
		}
	}
	assert.Equal(t, "TIME_OF_USE", appMode, "app mode select state")

	context.Stop(pid)

	time.Sleep(500 * time.Millisecond)

	as.Shutdown()
}

func TestPollerActorPollFailureKeepsBuffer(t *testing.T) {

	cfg := util.LoadTestConfig()

	logger := zap.Must(zap.NewDevelopment())

	as := actorutil.NewActorSystemWithZapLogger(logger)

	context := as.Root

	// first poll delivers data, every later one times out
	var polls atomic.Int32
	bridge := context.Spawn(stubBridgeProps(func(msg domain.ReadRegistersRequest) domain.ReadRegistersResponse {
		if polls.Add(1) > 1 {
			return domain.ReadRegistersResponse{
				ActorResponseMixIn: domain.ActorResponseMixIn{
					ResponseError: domain.ErrRequestTimeout,
				},
				Start: msg.Start,
				Count: msg.Count,
			}
		}
		return domain.ReadRegistersResponse{Start: msg.Start, Count: msg.Count, Data: configTestBuffer()}
	}))

	es := &eventstream.EventStream{}
	latch := util.NewSignaledLatch()

	props := actor.PropsFromProducer(func() actor.Actor {
		return NewPollerActor(&cfg, saj.ConfigDataBlock, 60*time.Second, bridge, es, latch, logger)
	})
	pid := context.Spawn(props)

	time.Sleep(1500 * time.Millisecond)

	result, err := context.RequestFuture(pid, domain.RefreshBlockRequest{Block: saj.ConfigDataBlock.Name}, 2*time.Second).Result()
	if err != nil {
		t.Error(err)
		return
	}
	refresh, ok := result.(domain.RefreshBlockResponse)
	assert.True(t, ok)
	assert.False(t, refresh.HasResponseError(), "refresh acknowledged")

	time.Sleep(500 * time.Millisecond)

	assert.Equal(t, int32(2), polls.Load(), "refresh polled again")

	result, err = context.RequestFuture(pid, domain.BlockSnapshotRequest{Block: saj.ConfigDataBlock.Name}, 2*time.Second).Result()
	if err != nil {
		t.Error(err)
		return
	}
	snapshot, ok := result.(domain.BlockSnapshotResponse)
	assert.True(t, ok)
	assert.True(t, snapshot.Ready, "failed poll keeps the block ready")
	assert.Equal(t, configTestBuffer(), snapshot.Data, "failed poll keeps the last good buffer")

	context.Stop(pid)

	time.Sleep(500 * time.Millisecond)

	as.Shutdown()
}
