package actor

import (
	"errors"
	"fmt"
	"log"
	"time"

	adactor "sajh1mqtt/internal/adapter/actor"
	"sajh1mqtt/internal/config"
	"sajh1mqtt/internal/core/domain"
	"sajh1mqtt/internal/util"
	. "sajh1mqtt/internal/util/actorutil"
	"sajh1mqtt/pkg/saj"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/asynkron/protoactor-go/eventstream"
	"go.uber.org/zap"
)

type MQTTActorProvider func(*eventstream.EventStream) *adactor.MQTTActor

type BridgeActorProvider func(*util.ReadinessLatch) *adactor.BridgeActor

const (
	writeRaw = iota
	writeAppMode
	writeConfigNumber
)

// pendingWrite tracks the register write in flight plus how to answer the
// requester once the device acknowledges. Writes serialize here so each
// success can chase a config block refresh.
type pendingWrite struct {
	replyTo  *actor.PID
	kind     int
	key      string
	register uint16
	value    uint16
}

type MasterOfPuppetsActor struct {
	config   config.Config
	behavior actor.Behavior
	stash    *Stash

	currentHealthCheck healthCheckResult
	currentWrite       pendingWrite
	eventStream        *eventstream.EventStream
	latch              *util.ReadinessLatch
	bridgeActor        *actor.PID
	mqttActor          *actor.PID
	pollerActors       map[string]*actor.PID

	bridgeActorProvider BridgeActorProvider
	mqttActorProvider   MQTTActorProvider
	prefix              string
	logger              *zap.Logger
}

type healthCheckResult struct {
	expected       int
	checksReceived int
	allHealthy     bool
	respondTo      *actor.PID
}

func NewMasterOfPuppetsActor(config config.Config, bridgeActorProvider BridgeActorProvider, mqttActorProvider MQTTActorProvider, logger *zap.Logger) *MasterOfPuppetsActor {
	act := &MasterOfPuppetsActor{
		config:              config,
		behavior:            actor.NewBehavior(),
		stash:               &Stash{},
		logger:              ActorLogger("master", logger),
		eventStream:         &eventstream.EventStream{},
		latch:               util.NewReadinessLatch(),
		bridgeActorProvider: bridgeActorProvider,
		mqttActorProvider:   mqttActorProvider,
		prefix:              domain.EntityPrefix(config.Inverter.SerialNumber, config.Inverter.EnableSerialPrefix),
	}
	act.behavior.Become(act.StartingReceive)
	return act
}

func (state *MasterOfPuppetsActor) Receive(context actor.Context) {
	state.behavior.Receive(context)
}

func (state *MasterOfPuppetsActor) StartingReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case *actor.Started:
		state.logger.Debug("master@starting started")

		state.currentHealthCheck = healthCheckResult{}

		// start bridge child
		bridgeActorPID, err := state.startBridgeActor(ctx)
		if err != nil {
			panic(err)
		}
		state.bridgeActor = bridgeActorPID

		// start MQTT child
		mqttActorPID, err := state.startMQTTActor(ctx)
		if err != nil {
			panic(err)
		}
		state.mqttActor = mqttActorPID

		// start one poller per enabled register block
		pollerActors, err := state.startPollerActors(ctx)
		if err != nil {
			panic(err)
		}
		state.pollerActors = pollerActors

		// start HA Discovery
		if state.config.MQTT.HADiscoveryEnable {
			_, err := state.startHADiscoveryActor(ctx)
			if err != nil {
				panic(err)
			}
		}

		state.behavior.Become(state.DefaultReceive)
		state.stash.UnstashAll(ctx)
	default:
		state.logger.Debug("master@starting stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.stash.Stash(ctx, msg)
	}
}

func (state *MasterOfPuppetsActor) DefaultReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case domain.ActorHealthRequest:
		state.logger.Debug("master@default ActorHealthRequest")
		state.currentHealthCheck.reset(2 + len(state.pollerActors))
		state.currentHealthCheck.respondTo = ctx.Sender()
		// Bridge Actor Request
		PipeToSelfWithRecover(ctx, ctx.RequestFuture(state.bridgeActor, domain.ActorHealthRequest{}, 500*time.Millisecond), func(err error) any {
			return domain.ActorHealthResponse{
				Id:      domain.ACTOR_ID_BRIDGE,
				Healthy: false,
			}
		})
		// MQTT Actor Request
		PipeToSelfWithRecover(ctx, ctx.RequestFuture(state.mqttActor, domain.ActorHealthRequest{}, 500*time.Millisecond), func(err error) any {
			return domain.ActorHealthResponse{
				Id:      domain.ACTOR_ID_MQTT,
				Healthy: false,
			}
		})
		// Poller Actor Requests
		for name, pid := range state.pollerActors {
			id := PollerActorId(name)
			PipeToSelfWithRecover(ctx, ctx.RequestFuture(pid, domain.ActorHealthRequest{}, 500*time.Millisecond), func(err error) any {
				return domain.ActorHealthResponse{
					Id:      id,
					Healthy: false,
				}
			})
		}

		ctx.SetReceiveTimeout(1 * time.Second)

		state.behavior.BecomeStacked(state.HealthCheckReceive)
	case adactor.ParsedCommand:
		// redirect parsedCommand to the matching control flow
		state.logger.Debug("master@default parsedCommand", zap.Any("command", msg.Command))
		if msg.Command != nil {
			cmd, err := ParsedMQTTCommandToCommand(state.prefix, *msg.Command)
			if err != nil {
				state.logger.Warn("master@default invalid command", zap.Error(err))
			} else if cmd != nil {
				switch pcmd := cmd.(type) {
				case domain.SetAppModeRequest:
					state.handleSetAppMode(ctx, pcmd)
				case domain.SetConfigNumberRequest:
					state.handleSetConfigNumber(ctx, pcmd)
				}
			}
		}
	case domain.SetAppModeRequest:
		state.handleSetAppMode(ctx, msg)
	case domain.SetConfigNumberRequest:
		state.handleSetConfigNumber(ctx, msg)
	case domain.ReadRegistersRequest:
		state.logger.Debug("master@default ReadRegistersRequest")
		ctx.RequestWithCustomSender(state.bridgeActor, msg, ctx.Sender())
	case domain.WriteRegisterRequest:
		state.logger.Debug("master@default WriteRegisterRequest")
		state.startWrite(ctx, pendingWrite{
			replyTo:  ForRequest(msg).ReplyTo(ctx),
			kind:     writeRaw,
			register: msg.Register,
			value:    msg.Value,
		})
	case domain.BlockSnapshotRequest:
		state.logger.Debug("master@default BlockSnapshotRequest", zap.String("block", msg.Block))
		if pid, ok := state.pollerActors[msg.Block]; ok {
			ctx.RequestWithCustomSender(pid, msg, ctx.Sender())
		} else {
			ForRequest(msg).Respond(ctx, domain.BlockSnapshotResponse{
				ActorResponseMixIn: domain.ActorResponseMixIn{
					ResponseError: fmt.Errorf("%w: %s", domain.ErrUnknownBlock, msg.Block),
				},
				Block: msg.Block,
			})
		}
	case domain.RefreshBlockRequest:
		state.logger.Debug("master@default RefreshBlockRequest", zap.String("block", msg.Block))
		if pid, ok := state.pollerActors[msg.Block]; ok {
			ctx.RequestWithCustomSender(pid, msg, ctx.Sender())
		} else {
			ForRequest(msg).Respond(ctx, domain.RefreshBlockResponse{
				ActorResponseMixIn: domain.ActorResponseMixIn{
					ResponseError: fmt.Errorf("%w: %s", domain.ErrUnknownBlock, msg.Block),
				},
				Block: msg.Block,
			})
		}
	case *actor.ReceiveTimeout:
		state.logger.Debug("master@default stray ReceiveTimeout")
	case *actor.Terminated:
		// if the bridge fails on boot, terminate
		if msg.Who.Id == fmt.Sprintf("%s/%s", domain.ACTOR_ID_MASTER, domain.ACTOR_ID_BRIDGE) {
			state.logger.Error("master@default bridge error")
			panic(errors.New("bridge terminated"))
		}
	default:
		state.logger.Debug("master@default stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.stash.Stash(ctx, msg)
	}
}

func (state *MasterOfPuppetsActor) HealthCheckReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case *actor.ReceiveTimeout:
		// if some actor does not respond to healthCheck, assume not healthy
		state.currentHealthCheck.respond(ctx)
		ctx.SetReceiveTimeout(0)
		state.behavior.UnbecomeStacked()
		state.stash.UnstashAll(ctx)
	case domain.ActorHealthResponse:
		state.logger.Debug("master@healthcheck ActorHealthResponse", zap.String("sender", msg.Id), zap.Bool("healthy", msg.Healthy))
		state.currentHealthCheck.record(msg.Healthy)
		if state.currentHealthCheck.allReceived() {

			state.currentHealthCheck.respond(ctx)

			ctx.SetReceiveTimeout(0)
			state.behavior.UnbecomeStacked()
			state.stash.UnstashAll(ctx)
		} else {
			ctx.SetReceiveTimeout(1 * time.Second)
		}
	default:
		state.logger.Debug("master@healthcheck stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.stash.Stash(ctx, msg)
	}
}

// WaitingWriteReceive holds new work while one register write is in flight.
func (state *MasterOfPuppetsActor) WaitingWriteReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case domain.WriteRegisterResponse:
		state.finishWrite(ctx, msg)
	default:
		state.logger.Debug("master@write stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.stash.Stash(ctx, msg)
	}
}

func (state *MasterOfPuppetsActor) handleSetAppMode(ctx actor.Context, msg domain.SetAppModeRequest) {
	state.logger.Debug("master@default SetAppModeRequest", zap.Uint16("mode", msg.Mode))
	state.startWrite(ctx, pendingWrite{
		replyTo:  ForRequest(msg).ReplyTo(ctx),
		kind:     writeAppMode,
		register: saj.RegAppMode,
		value:    msg.Mode,
	})
}

func (state *MasterOfPuppetsActor) handleSetConfigNumber(ctx actor.Context, msg domain.SetConfigNumberRequest) {
	state.logger.Debug("master@default SetConfigNumberRequest", zap.String("key", msg.Key), zap.Float64("value", msg.Value))
	replyTo := ForRequest(msg).ReplyTo(ctx)
	writable, ok := saj.WritableRegisterByKey(msg.Key)
	if !ok {
		if replyTo != nil {
			ctx.Send(replyTo, domain.SetConfigNumberResponse{
				ControlResponseMixIn: controlError(fmt.Errorf("unknown config number %s", msg.Key)),
				Key:                  msg.Key,
			})
		}
		return
	}
	if msg.Value < writable.Min || msg.Value > writable.Max {
		if replyTo != nil {
			ctx.Send(replyTo, domain.SetConfigNumberResponse{
				ControlResponseMixIn: controlError(fmt.Errorf("value %v out of range [%v, %v] for %s", msg.Value, writable.Min, writable.Max, msg.Key)),
				Key:                  msg.Key,
				Value:                msg.Value,
			})
		}
		return
	}
	state.startWrite(ctx, pendingWrite{
		replyTo:  replyTo,
		kind:     writeConfigNumber,
		key:      msg.Key,
		register: writable.Register,
		value:    uint16(msg.Value),
	})
}

func (state *MasterOfPuppetsActor) startWrite(ctx actor.Context, pw pendingWrite) {
	state.currentWrite = pw
	PipeToSelfWithRecover(ctx, ctx.RequestFuture(state.bridgeActor, domain.WriteRegisterRequest{
		Register: pw.register,
		Value:    pw.value,
	}, adactor.BridgeRequestTimeout+2*time.Second), func(err error) any {
		return domain.WriteRegisterResponse{
			ActorResponseMixIn: domain.ActorResponseMixIn{
				ResponseError: err,
			},
			Register: pw.register,
		}
	})
	state.behavior.BecomeStacked(state.WaitingWriteReceive)
}

func (state *MasterOfPuppetsActor) finishWrite(ctx actor.Context, msg domain.WriteRegisterResponse) {
	pw := state.currentWrite
	state.currentWrite = pendingWrite{}
	var resp domain.ActorResponse
	switch pw.kind {
	case writeAppMode:
		resp = domain.SetAppModeResponse{
			ControlResponseMixIn: controlError(msg.GetResponseError()),
			Mode:                 pw.value,
		}
	case writeConfigNumber:
		resp = domain.SetConfigNumberResponse{
			ControlResponseMixIn: controlError(msg.GetResponseError()),
			Key:                  pw.key,
			Value:                float64(pw.value),
		}
	default:
		resp = msg
	}
	if pw.replyTo != nil {
		ctx.Send(pw.replyTo, resp)
	}
	if msg.HasResponseError() {
		state.logger.Warn("master@write register write failed", zap.Error(msg.GetResponseError()))
	} else {
		// published config state converges through an immediate re-poll
		state.refreshConfigPoller(ctx)
	}
	state.behavior.UnbecomeStacked()
	state.stash.UnstashAll(ctx)
}

func (state *MasterOfPuppetsActor) refreshConfigPoller(ctx actor.Context) {
	if pid, ok := state.pollerActors[saj.ConfigDataBlock.Name]; ok {
		ctx.Send(pid, domain.RefreshBlockRequest{Block: saj.ConfigDataBlock.Name})
	}
}

func (state *MasterOfPuppetsActor) startBridgeActor(ctx actor.Context) (*actor.PID, error) {

	supervisor := actor.NewExponentialBackoffStrategy(10*time.Second, 1*time.Second)

	bridgeProps := actor.PropsFromProducer(func() actor.Actor {
		return state.bridgeActorProvider(state.latch)
	}, actor.WithSupervisor(supervisor))
	bridgeActorPID, err := ctx.SpawnNamed(bridgeProps, domain.ACTOR_ID_BRIDGE)
	if err != nil {
		return nil, err
	}

	return bridgeActorPID, nil
}

func (state *MasterOfPuppetsActor) startMQTTActor(ctx actor.Context) (*actor.PID, error) {

	supervisor := actor.NewExponentialBackoffStrategy(10*time.Second, 1*time.Second)

	mqttProps := actor.PropsFromProducer(func() actor.Actor {
		return state.mqttActorProvider(state.eventStream)
	}, actor.WithSupervisor(supervisor))
	mqttActorPID, err := ctx.SpawnNamed(mqttProps, domain.ACTOR_ID_MQTT)
	if err != nil {
		return nil, err
	}

	return mqttActorPID, nil
}

func (state *MasterOfPuppetsActor) startPollerActors(ctx actor.Context) (map[string]*actor.PID, error) {

	decider := func(reason interface{}) actor.Directive {
		log.Printf("handling failure for child. reason: %v", reason)
		return actor.RestartDirective
	}

	intervals := BlockIntervals(&state.config)
	pollers := make(map[string]*actor.PID)
	for _, block := range EnabledBlocks(&state.config) {
		interval := time.Duration(intervals[block.Name]) * time.Millisecond
		supervisor := actor.NewOneForOneStrategy(1, 10*time.Second, decider)
		pollerProps := actor.PropsFromProducer(func() actor.Actor {
			return NewPollerActor(&state.config, block, interval, state.bridgeActor, state.eventStream, state.latch, state.logger)
		}, actor.WithSupervisor(supervisor))
		pid, err := ctx.SpawnNamed(pollerProps, PollerActorId(block.Name))
		if err != nil {
			return nil, err
		}
		pollers[block.Name] = pid
	}

	return pollers, nil
}

func (state *MasterOfPuppetsActor) startHADiscoveryActor(ctx actor.Context) (*actor.PID, error) {

	decider := func(reason interface{}) actor.Directive {
		log.Printf("handling failure for child. reason: %v", reason)
		return actor.RestartDirective
	}
	supervisor := actor.NewOneForOneStrategy(1, 10*time.Second, decider)

	haDiscProps := actor.PropsFromProducer(func() actor.Actor {
		return NewHADiscoveryActor(&state.config, state.bridgeActor, state.mqttActor, state.logger)
	}, actor.WithSupervisor(supervisor))
	haDiscPID, err := ctx.SpawnNamed(haDiscProps, domain.ACTOR_ID_HA_DISCOVERY)
	if err != nil {
		return nil, err
	}

	return haDiscPID, nil
}

func controlError(err error) domain.ControlResponseMixIn {
	return domain.ControlResponseMixIn{
		ActorResponseMixIn: domain.ActorResponseMixIn{
			ResponseError: err,
		},
	}
}

func (state *healthCheckResult) reset(expected int) {
	state.expected = expected
	state.checksReceived = 0
	state.allHealthy = true
}

func (state *healthCheckResult) record(healthy bool) {
	state.checksReceived++
	if !healthy {
		state.allHealthy = false
	}
}

func (state *healthCheckResult) allReceived() bool {
	return state.checksReceived == state.expected
}

func (state *healthCheckResult) respond(ctx actor.Context) {
	resp := domain.ActorHealthResponse{
		Id:      domain.ACTOR_ID_MASTER,
		Healthy: state.allHealthy && state.allReceived(),
	}
	if state.respondTo != nil {
		ctx.Send(state.respondTo, resp)
	}
}
