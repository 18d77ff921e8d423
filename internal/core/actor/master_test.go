package actor

import (
	"errors"
	"testing"
	"time"

	adactor "sajh1mqtt/internal/adapter/actor"
	"sajh1mqtt/internal/core/domain"
	"sajh1mqtt/internal/util"
	"sajh1mqtt/internal/util/actorutil"
	"sajh1mqtt/pkg/saj"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/asynkron/protoactor-go/eventstream"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func TestMasterActor(t *testing.T) {

	cfg := util.LoadTestConfig()
	cfg.MQTT.HADiscoveryEnable = true

	logger := zap.Must(zap.NewDevelopment())

	as := actorutil.NewActorSystemWithZapLogger(logger)

	context := as.Root

	device := adactor.NewTestDeviceResponder()
	device.Set(saj.RegAppMode, saj.AppModeSelfUse)
	device.Set(saj.RegGridChargePowerLimit, 3300)
	lane := adactor.NewTestDeviceLane(device.Respond)

	props := actor.PropsFromProducer(func() actor.Actor {
		return NewMasterOfPuppetsActor(cfg, func(latch *util.ReadinessLatch) *adactor.BridgeActor {
			return adactor.NewBridgeActor(&cfg, lane.Provider(), latch, logger)
		}, func(es *eventstream.EventStream) *adactor.MQTTActor {
			return adactor.NewTestMQTTActor(&cfg, es, logger)
		}, logger)
	})
	pid, err := context.SpawnNamed(props, domain.ACTOR_ID_MASTER)
	if err != nil {
		t.Error(err)
		return
	}

	// pollers probe the latch and complete their first poll
	time.Sleep(3 * time.Second)

	hc, err := healthCheck(context, pid)
	if err != nil {
		t.Error(err)
		return
	}
	assert.Equal(t, domain.ACTOR_ID_MASTER, hc.Id, "master id")
	assert.True(t, hc.Healthy, "all children healthy")

	// raw read passes through to the device
	readResult, err := context.RequestFuture(pid, domain.ReadRegistersRequest{Start: saj.RegGridChargePowerLimit, Count: 1}, 5*time.Second).Result()
	if err != nil {
		t.Error(err)
		return
	}
	readResp, ok := readResult.(domain.ReadRegistersResponse)
	assert.True(t, ok)
	assert.False(t, readResp.HasResponseError(), "read ok")
	assert.Equal(t, []byte{0x0c, 0xe4}, readResp.Data, "grid charge power limit value")

	// app mode select lands on the device register
	modeResult, err := context.RequestFuture(pid, domain.SetAppModeRequest{Mode: saj.AppModeTimeOfUse}, 15*time.Second).Result()
	if err != nil {
		t.Error(err)
		return
	}
	modeResp, ok := modeResult.(domain.SetAppModeResponse)
	assert.True(t, ok)
	assert.False(t, modeResp.HasResponseError(), "app mode write ok")
	assert.Equal(t, saj.AppModeTimeOfUse, modeResp.Mode, "mode echoed")
	assert.Equal(t, saj.AppModeTimeOfUse, device.Get(saj.RegAppMode), "app mode register written")

	// config number write
	numResult, err := context.RequestFuture(pid, domain.SetConfigNumberRequest{Key: "battery_soc_backup", Value: 25}, 15*time.Second).Result()
	if err != nil {
		t.Error(err)
		return
	}
	numResp, ok := numResult.(domain.SetConfigNumberResponse)
	assert.True(t, ok)
	assert.False(t, numResp.HasResponseError(), "config number write ok")
	assert.Equal(t, uint16(25), device.Get(saj.RegBatterySOCBackup), "backup SOC register written")

	// out-of-range value is rejected before reaching the device
	badResult, err := context.RequestFuture(pid, domain.SetConfigNumberRequest{Key: "battery_soc_backup", Value: 400}, 5*time.Second).Result()
	if err != nil {
		t.Error(err)
		return
	}
	badResp, ok := badResult.(domain.SetConfigNumberResponse)
	assert.True(t, ok)
	assert.True(t, badResp.HasResponseError(), "range violation rejected")
	assert.Equal(t, uint16(25), device.Get(saj.RegBatterySOCBackup), "register untouched")

	// snapshot routed to the config poll coordinator
	snapResult, err := context.RequestFuture(pid, domain.BlockSnapshotRequest{Block: saj.ConfigDataBlock.Name}, 5*time.Second).Result()
	if err != nil {
		t.Error(err)
		return
	}
	snapResp, ok := snapResult.(domain.BlockSnapshotResponse)
	assert.True(t, ok)
	assert.True(t, snapResp.Ready, "config block polled")
	assert.Equal(t, 2*int(saj.RegConfigCount), len(snapResp.Data), "config buffer length")

	// unknown block name
	unknownResult, err := context.RequestFuture(pid, domain.BlockSnapshotRequest{Block: "bogus"}, 5*time.Second).Result()
	if err != nil {
		t.Error(err)
		return
	}
	unknownResp, ok := unknownResult.(domain.BlockSnapshotResponse)
	assert.True(t, ok)
	assert.True(t, errors.Is(unknownResp.GetResponseError(), domain.ErrUnknownBlock), "unknown block error")

	// a block whose interval is 0 has no poll coordinator
	disabledResult, err := context.RequestFuture(pid, domain.BlockSnapshotRequest{Block: saj.InverterInfoBlock.Name}, 5*time.Second).Result()
	if err != nil {
		t.Error(err)
		return
	}
	disabledResp, ok := disabledResult.(domain.BlockSnapshotResponse)
	assert.True(t, ok)
	assert.True(t, errors.Is(disabledResp.GetResponseError(), domain.ErrUnknownBlock), "disabled block not served")

	context.Stop(pid)

	time.Sleep(500 * time.Millisecond)

	as.Shutdown()
}
