package actor

import (
	"fmt"
	"time"

	adactor "sajh1mqtt/internal/adapter/actor"
	"sajh1mqtt/internal/config"
	"sajh1mqtt/internal/core/domain"
	"sajh1mqtt/internal/core/events"
	"sajh1mqtt/internal/util"
	. "sajh1mqtt/internal/util/actorutil"
	"sajh1mqtt/pkg/saj"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/asynkron/protoactor-go/eventstream"
	"github.com/asynkron/protoactor-go/scheduler"
	"go.uber.org/zap"
)

// A not ready poller probes the readiness latch on a short cadence so the
// first poll lands right after the device lane comes up.
const pollerProbeDelay = 1 * time.Second

// PollerActor polls one register block on a fixed interval, keeps the last
// good buffer and publishes decoded updates on the event stream. A failed
// poll keeps the previous buffer.
type PollerActor struct {
	ActorWithStates
	scheduler   *scheduler.TimerScheduler
	config      *config.Config
	block       saj.RegisterBlock
	interval    time.Duration
	bridgeActor *actor.PID
	eventStream *eventstream.EventStream
	latch       *util.ReadinessLatch
	prefix      string

	buffer     []byte
	lastUpdate time.Time
	polling    bool

	logger *zap.Logger
}

type pollerTick struct {
}

func PollerActorId(blockName string) string {
	return domain.ACTOR_ID_POLLER_PREFIX + blockName
}

// BlockIntervals maps each register block to its configured poll interval in
// milliseconds. A zero interval disables the block.
func BlockIntervals(cfg *config.Config) map[string]uint32 {
	return map[string]uint32{
		saj.RealtimeDataBlock.Name:      cfg.Poll.RealtimeIntervalMillis,
		saj.InverterInfoBlock.Name:      cfg.Poll.InverterInfoIntervalMillis,
		saj.BatteryInfoBlock.Name:       cfg.Poll.BatteryInfoIntervalMillis,
		saj.BatteryControllerBlock.Name: cfg.Poll.BatteryControllerIntervalMillis,
		saj.ConfigDataBlock.Name:        cfg.Poll.ConfigIntervalMillis,
	}
}

// EnabledBlocks lists the blocks that get a poller, in poll order.
func EnabledBlocks(cfg *config.Config) []saj.RegisterBlock {
	intervals := BlockIntervals(cfg)
	var blocks []saj.RegisterBlock
	for _, b := range saj.Blocks() {
		if intervals[b.Name] > 0 {
			blocks = append(blocks, b)
		}
	}
	return blocks
}

func NewPollerActor(config *config.Config, block saj.RegisterBlock, interval time.Duration, bridgeActor *actor.PID,
	eventStream *eventstream.EventStream, latch *util.ReadinessLatch, logger *zap.Logger) *PollerActor {
	act := &PollerActor{
		config:      config,
		block:       block,
		interval:    interval,
		bridgeActor: bridgeActor,
		eventStream: eventStream,
		latch:       latch,
		prefix:      domain.EntityPrefix(config.Inverter.SerialNumber, config.Inverter.EnableSerialPrefix),
		logger:      ActorLogger(PollerActorId(block.Name), logger),
		ActorWithStates: ActorWithStates{
			Behavior: actor.NewBehavior(),
		},
	}
	act.Become(PollerNotReadyState{
		actor: act,
	})
	return act
}

func (state *PollerActor) Receive(context actor.Context) {
	state.Behavior.Receive(context)
}

// Not ready state. Ticks do not poll until the device lane readiness latch
// reads true.

type PollerNotReadyState struct {
	ActorState
	actor *PollerActor
}

func (state PollerNotReadyState) Name() string {
	return "not_ready"
}

func (state PollerNotReadyState) Receive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case *actor.Started:
		state.actor.logger.Debug("poller@not_ready started", zap.String("block", state.actor.block.Name))
		state.actor.scheduler = scheduler.NewTimerScheduler(ctx)
		state.actor.scheduler.RequestOnce(pollerProbeDelay, ctx.Self(), pollerTick{})
	case pollerTick:
		if state.actor.latch.Ready() {
			state.actor.poll(ctx)
			state.actor.Become(PollerReadyState{
				actor: state.actor,
			})
			state.actor.scheduler.RequestOnce(state.actor.interval, ctx.Self(), pollerTick{})
		} else {
			state.actor.scheduler.RequestOnce(pollerProbeDelay, ctx.Self(), pollerTick{})
		}
	case domain.ActorHealthRequest:
		state.actor.logger.Debug("poller@not_ready ActorHealthRequest")
		ctx.Respond(domain.ActorHealthResponse{
			Id:      PollerActorId(state.actor.block.Name),
			Healthy: true,
			State:   state.Name(),
		})
	case domain.BlockSnapshotRequest:
		state.actor.snapshot(ctx, msg)
	case domain.RefreshBlockRequest:
		if replyTo := ForRequest(msg).ReplyTo(ctx); replyTo != nil {
			ctx.Send(replyTo, domain.RefreshBlockResponse{
				ActorResponseMixIn: domain.ActorResponseMixIn{
					ResponseError: domain.ErrNotReady,
				},
				Block: state.actor.block.Name,
			})
		}
	case *actor.Restarting:
	default:
		state.actor.logger.Debug("poller@not_ready default recv", zap.String("type", fmt.Sprintf("%T", msg)))
	}
}

// Ready state. Every tick polls the block through the bridge.

type PollerReadyState struct {
	ActorState
	actor *PollerActor
}

func (state PollerReadyState) Name() string {
	return "ready"
}

func (state PollerReadyState) Receive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case pollerTick:
		state.actor.poll(ctx)
		state.actor.scheduler.RequestOnce(state.actor.interval, ctx.Self(), pollerTick{})
	case domain.ReadRegistersResponse:
		state.actor.polling = false
		if msg.HasResponseError() {
			state.actor.logger.Error("poller@ready poll failed",
				zap.String("block", state.actor.block.Name), zap.Error(msg.GetResponseError()))
		} else {
			state.actor.applyPoll(msg.Data)
		}
	case domain.ActorHealthRequest:
		state.actor.logger.Debug("poller@ready ActorHealthRequest")
		ctx.Respond(domain.ActorHealthResponse{
			Id:      PollerActorId(state.actor.block.Name),
			Healthy: true,
			State:   state.Name(),
		})
	case domain.BlockSnapshotRequest:
		state.actor.snapshot(ctx, msg)
	case domain.RefreshBlockRequest:
		state.actor.logger.Debug("poller@ready refresh", zap.String("block", state.actor.block.Name))
		state.actor.poll(ctx)
		// A write-triggered refresh comes with no reply target.
		if replyTo := ForRequest(msg).ReplyTo(ctx); replyTo != nil {
			ctx.Send(replyTo, domain.RefreshBlockResponse{
				Block: state.actor.block.Name,
			})
		}
	case *actor.Restarting:
	default:
		state.actor.logger.Debug("poller@ready default recv", zap.String("type", fmt.Sprintf("%T", msg)))
	}
}

func (state *PollerActor) poll(ctx actor.Context) {
	if state.polling {
		return
	}
	state.polling = true
	chunks := len(saj.SplitRead(state.block.Start, state.block.Count))
	timeout := time.Duration(chunks)*adactor.BridgeRequestTimeout + 2*time.Second
	PipeToSelfWithRecover(ctx, ctx.RequestFuture(state.bridgeActor, domain.ReadRegistersRequest{
		Start: state.block.Start,
		Count: state.block.Count,
	}, timeout), func(err error) any {
		return domain.ReadRegistersResponse{
			ActorResponseMixIn: domain.ActorResponseMixIn{
				ResponseError: err,
			},
		}
	})
}

func (state *PollerActor) applyPoll(data []byte) {
	state.buffer = data
	state.lastUpdate = time.Now()
	for _, ev := range events.BlockUpdateEvents(state.prefix, state.block, data, state.config.Inverter.EnableAccuratePower) {
		state.eventStream.Publish(ev)
	}
}

func (state *PollerActor) snapshot(ctx actor.Context, msg domain.BlockSnapshotRequest) {
	ForRequest(msg).Respond(ctx, domain.BlockSnapshotResponse{
		Block:      state.block.Name,
		Ready:      state.buffer != nil,
		Data:       state.buffer,
		LastUpdate: state.lastUpdate,
	})
}
