package actor

import (
	"errors"
	"fmt"
	"time"

	"sajh1mqtt/internal/config"
	"sajh1mqtt/internal/core/domain"
	"sajh1mqtt/internal/util/actorutil"
	"sajh1mqtt/pkg/saj"

	"github.com/asynkron/protoactor-go/actor"
	"go.uber.org/zap"
)

// HADiscoveryActor publishes the Home Assistant discovery records once at
// boot, then idles. Entities track the configured pollers: a disabled block
// announces nothing.
type HADiscoveryActor struct {
	config             *config.Config
	behavior           actor.Behavior
	stash              *actorutil.Stash
	bridgeActor        *actor.PID
	mqttActor          *actor.PID
	bridgeActorHealthy bool
	mqttActorHealthy   bool
	healthyRecv        int

	logger *zap.Logger
}

func NewHADiscoveryActor(config *config.Config, bridgeActor *actor.PID, mqttActor *actor.PID, logger *zap.Logger) *HADiscoveryActor {
	act := &HADiscoveryActor{
		config:      config,
		bridgeActor: bridgeActor,
		mqttActor:   mqttActor,
		behavior:    actor.NewBehavior(),
		stash:       &actorutil.Stash{},
		logger:      actorutil.ActorLogger(domain.ACTOR_ID_HA_DISCOVERY, logger),
	}
	act.behavior.Become(act.StartingReceive)
	return act
}

func (state *HADiscoveryActor) Receive(context actor.Context) {
	state.behavior.Receive(context)
}

func (state *HADiscoveryActor) StartingReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case *actor.Started:
		state.logger.Debug("hadiscovery@starting started")

		// Check bridge and MQTT actor healthy
		state.healthyRecv = 0
		state.bridgeActorHealthy = false
		state.mqttActorHealthy = false
		// Bridge Actor Request
		actorutil.PipeToSelfWithRecover(ctx, ctx.RequestFuture(state.bridgeActor, domain.ActorHealthRequest{}, 2*time.Second), func(err error) any {
			return domain.ActorHealthResponse{
				Id:      domain.ACTOR_ID_BRIDGE,
				Healthy: false,
			}
		})
		// MQTT Actor Request
		actorutil.PipeToSelfWithRecover(ctx, ctx.RequestFuture(state.mqttActor, domain.ActorHealthRequest{}, 2*time.Second), func(err error) any {
			return domain.ActorHealthResponse{
				Id:      domain.ACTOR_ID_MQTT,
				Healthy: false,
			}
		})
		state.behavior.Become(state.WaitingHealthyReceive)
	case *actor.Restarting:
	default:
		state.logger.Debug("hadiscovery@starting: stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.stash.Stash(ctx, msg)
	}
}

func (state *HADiscoveryActor) WaitingHealthyReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case domain.ActorHealthResponse:
		state.logger.Debug("hadiscovery@healthcheck ActorHealthResponse", zap.String("sender", msg.Id), zap.Bool("healthy", msg.Healthy))
		state.healthyRecv++
		if msg.Healthy {
			switch msg.Id {
			case domain.ACTOR_ID_BRIDGE:
				state.bridgeActorHealthy = true
			case domain.ACTOR_ID_MQTT:
				state.mqttActorHealthy = true
			}
		}
		if state.healthyRecv == 2 {

			if state.bridgeActorHealthy && state.mqttActorHealthy {
				state.publishDiscovery(ctx)
				state.behavior.Become(state.Done)
				state.stash.UnstashAll(ctx)
			} else {
				panic(errors.New("MQTT Actor or Bridge Actor are not healthy"))
			}
		}
	default:
		state.logger.Debug("hadiscovery@healthcheck: stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.stash.Stash(ctx, msg)
	}
}

func (state *HADiscoveryActor) Done(ctx actor.Context) {

}

func (state *HADiscoveryActor) publishDiscovery(ctx actor.Context) {
	state.logger.Debug("hadiscovery@publish building entities")

	var sensors []domain.GenericSensor
	var selects []domain.GenericSelect
	var inputNumbers []domain.GenericInputNumber

	prefix := domain.EntityPrefix(state.config.Inverter.SerialNumber, state.config.Inverter.EnableSerialPrefix)

	bridgeDevice := domain.BridgeDevice(state.config.MQTT.BaseTopic)
	bridgeSensors := domain.BridgeSensors(bridgeDevice)
	sensors = append(sensors, bridgeSensors...)

	inverterDevice := domain.InverterDevice(state.config.Inverter.SerialNumber)
	inverterDevice.ViaDevice = bridgeDevice.Id
	inverterSensors := domain.BlockSensors(inverterDevice, prefix, saj.RealtimeDataBlock, false)
	inverterSensors = append(inverterSensors, domain.RealtimeExtraSensors(inverterDevice, prefix)...)
	for i := range inverterSensors {
		if i > 0 {
			inverterSensors[i].Device = domain.IdDevice(inverterDevice)
		}
		sensors = append(sensors, inverterSensors[i])
	}

	if state.config.Poll.InverterInfoIntervalMillis > 0 {
		sensors = append(sensors, domain.BlockSensors(domain.IdDevice(inverterDevice), prefix, saj.InverterInfoBlock, true)...)
	}
	if state.config.Poll.BatteryInfoIntervalMillis > 0 {
		sensors = append(sensors, domain.BlockSensors(domain.IdDevice(inverterDevice), prefix, saj.BatteryInfoBlock, true)...)
	}
	if state.config.Poll.BatteryControllerIntervalMillis > 0 {
		sensors = append(sensors, domain.BlockSensors(domain.IdDevice(inverterDevice), prefix, saj.BatteryControllerBlock, false)...)
	}
	if state.config.Poll.ConfigIntervalMillis > 0 {
		selects = append(selects, domain.AppModeSelect(domain.IdDevice(inverterDevice), prefix))
		inputNumbers = append(inputNumbers, domain.ConfigInputNumbers(domain.IdDevice(inverterDevice), prefix)...)
	}

	ctx.Send(state.mqttActor, domain.PublishDiscoveryRequest{
		Sensors:      sensors,
		Selects:      selects,
		InputNumbers: inputNumbers,
	})
}
