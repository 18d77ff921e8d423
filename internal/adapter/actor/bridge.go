package actor

import (
	"fmt"
	"time"

	"sajh1mqtt/internal/config"
	"sajh1mqtt/internal/core/domain"
	"sajh1mqtt/internal/core/port"
	"sajh1mqtt/internal/mqtt"
	"sajh1mqtt/internal/util"
	"sajh1mqtt/internal/util/actorutil"
	"sajh1mqtt/pkg/saj"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/asynkron/protoactor-go/scheduler"
	pahomqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"
)

// BridgeRequestTimeout bounds one request/response exchange with the
// inverter, broker round trips included.
const BridgeRequestTimeout = 10 * time.Second

// DeviceLaneProvider builds the broker connection of the bridge. The
// connection lost callback must be safe to call from any goroutine.
type DeviceLaneProvider func(onConnectionLost func(error)) port.DeviceLane

// MQTTDeviceLane is the production lane: a second client on the same broker,
// no last will.
func MQTTDeviceLane(cfg *config.Config) DeviceLaneProvider {
	return func(onConnectionLost func(error)) port.DeviceLane {
		return mqtt.CreateMQTTClient(cfg, mqtt.DeviceOptsFromConfig(cfg), nil, func(_ pahomqtt.Client, err error) {
			onConnectionLost(err)
		})
	}
}

// BridgeActor serializes register reads and writes over the inverter's
// data_transmission topic pair. The protocol has no transaction ids, so only
// one frame may be in flight; everything else queues in arrival order.
type BridgeActor struct {
	config       *config.Config
	behavior     actor.Behavior
	stash        *actorutil.Stash
	laneProvider DeviceLaneProvider
	lane         port.DeviceLane
	latch        *util.ReadinessLatch
	logger       *zap.Logger
	timers       *scheduler.TimerScheduler
	codec        *saj.Codec

	requestTopic   string
	responseTopic  string
	requestTimeout time.Duration

	seq     uint64
	current *deviceJob
}

type deviceLaneConnected struct {
}

type deviceLaneSubscribed struct {
}

type deviceLaneConnectionLost struct {
	Error error
}

type deviceResponse struct {
	payload []byte
}

type devicePublishResult struct {
	seq uint64
	err error
}

type requestDeadline struct {
	seq uint64
}

type deviceJob struct {
	replyTo *actor.PID
	seq     uint64
	cancel  scheduler.CancelFunc
	read    *readJob
	write   *writeJob
}

type readJob struct {
	start   uint16
	count   uint16
	chunks  []saj.ReadChunk
	next    int
	payload []byte
}

type writeJob struct {
	register uint16
	value    uint16
}

func NewBridgeActor(config *config.Config, laneProvider DeviceLaneProvider, latch *util.ReadinessLatch, logger *zap.Logger) *BridgeActor {
	act := &BridgeActor{
		config:         config,
		behavior:       actor.NewBehavior(),
		stash:          &actorutil.Stash{},
		laneProvider:   laneProvider,
		latch:          latch,
		logger:         actorutil.ActorLogger(domain.ACTOR_ID_BRIDGE, logger),
		codec:          saj.DefaultCodec(),
		requestTopic:   mqtt.DataTransmissionTopic(config.Inverter.SerialNumber),
		responseTopic:  mqtt.DataTransmissionRspTopic(config.Inverter.SerialNumber),
		requestTimeout: BridgeRequestTimeout,
	}
	act.behavior.Become(act.StartingReceive)
	return act
}

func (state *BridgeActor) Receive(context actor.Context) {
	state.behavior.Receive(context)
}

func (state *BridgeActor) StartingReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case *actor.Started:
		state.logger.Debug("bridge@starting started")

		state.timers = scheduler.NewTimerScheduler(ctx)
		state.lane = state.laneProvider(func(err error) {
			ctx.Send(ctx.Self(), deviceLaneConnectionLost{Error: err})
		})

		state.lane.Connect(func(err error) {
			if err != nil {
				ctx.Send(ctx.Self(), deviceLaneConnectionLost{Error: err})
			} else {
				ctx.Send(ctx.Self(), deviceLaneConnected{})
			}
		}, 10*time.Second)
	case deviceLaneConnected:
		state.logger.Debug("bridge@starting connected")

		// responses need QoS 2: a redelivered frame would be taken for the
		// answer to the next request
		state.lane.Subscribe(state.responseTopic, 2, func(_ pahomqtt.Client, m pahomqtt.Message) {
			ctx.Send(ctx.Self(), deviceResponse{payload: m.Payload()})
		}, func(err error) {
			if err != nil {
				ctx.Send(ctx.Self(), deviceLaneConnectionLost{Error: err})
			} else {
				ctx.Send(ctx.Self(), deviceLaneSubscribed{})
			}
		}, 1*time.Second)
	case deviceLaneSubscribed:
		// accept work only once the response topic is live, otherwise the
		// first request could miss its answer
		state.logger.Debug("bridge@starting subscribed")
		state.latch.Signal()
		state.behavior.Become(state.IdleReceive)
		state.stash.UnstashAll(ctx)
	case deviceLaneConnectionLost:
		state.logger.Error("bridge@starting connection lost", zap.Error(msg.Error))
		panic(msg.Error)
	case *actor.Restarting:
		state.stop()
	default:
		state.logger.Debug("bridge@starting stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.stash.Stash(ctx, msg)
	}
}

func (state *BridgeActor) IdleReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case *actor.Restarting:
		state.stop()
	case *actor.Stopping:
		state.stop()
	case domain.ActorHealthRequest:
		state.logger.Debug("bridge@idle ActorHealthRequest")
		ctx.Respond(domain.ActorHealthResponse{
			Id:      domain.ACTOR_ID_BRIDGE,
			Healthy: true,
			State:   "idle",
		})
	case domain.ReadRegistersRequest:
		state.logger.Debug("bridge@idle ReadRegistersRequest",
			zap.Uint16("start", msg.Start), zap.Uint16("count", msg.Count))
		state.startRead(ctx, msg)
	case domain.WriteRegisterRequest:
		state.logger.Debug("bridge@idle WriteRegisterRequest",
			zap.Uint16("register", msg.Register), zap.Uint16("value", msg.Value))
		state.startWrite(ctx, msg)
	case deviceResponse:
		// nothing in flight, likely the answer to some other client
		state.logger.Debug("bridge@idle discard stray response", zap.String("frame", saj.HexBytes(msg.payload)))
	case deviceLaneConnectionLost:
		state.connectionLost(ctx, msg.Error)
	case requestDeadline:
	case devicePublishResult:
	default:
		state.logger.Debug("bridge@idle default recv", zap.String("type", fmt.Sprintf("%T", msg)))
	}
}

func (state *BridgeActor) BusyReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case deviceResponse:
		state.handleResponse(ctx, msg.payload)
	case requestDeadline:
		if state.current == nil || msg.seq != state.current.seq {
			return
		}
		state.failCurrent(ctx, fmt.Errorf("%s: %w", jobDesc(state.current), domain.ErrRequestTimeout))
	case devicePublishResult:
		if msg.err == nil || state.current == nil || msg.seq != state.current.seq {
			return
		}
		state.logger.Error("bridge@busy request publish failed", zap.Error(msg.err))
		state.failCurrent(ctx, fmt.Errorf("%s: %w: %s", jobDesc(state.current), domain.ErrTransportDown, msg.err))
	case domain.ActorHealthRequest:
		state.logger.Debug("bridge@busy ActorHealthRequest")
		ctx.Respond(domain.ActorHealthResponse{
			Id:      domain.ACTOR_ID_BRIDGE,
			Healthy: true,
			State:   "busy",
		})
	case deviceLaneConnectionLost:
		state.connectionLost(ctx, msg.Error)
	case *actor.Stopping:
		state.cancelCurrent(ctx)
		state.stop()
	case *actor.Restarting:
		state.stop()
	default:
		state.logger.Debug("bridge@busy stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.stash.Stash(ctx, msg)
	}
}

func (state *BridgeActor) startRead(ctx actor.Context, msg domain.ReadRegistersRequest) {
	replyTo := actorutil.ForRequest(msg).ReplyTo(ctx)
	chunks := saj.SplitRead(msg.Start, msg.Count)
	if len(chunks) == 0 {
		if replyTo != nil {
			ctx.Send(replyTo, domain.ReadRegistersResponse{
				ActorResponseMixIn: domain.ActorResponseMixIn{
					ResponseError: fmt.Errorf("read 0x%04x count 0: %w", msg.Start, saj.ErrCountOutOfRange),
				},
				Start: msg.Start,
				Count: msg.Count,
			})
		}
		return
	}
	state.current = &deviceJob{
		replyTo: replyTo,
		read: &readJob{
			start:  msg.Start,
			count:  msg.Count,
			chunks: chunks,
		},
	}
	state.behavior.BecomeStacked(state.BusyReceive)
	state.nextChunk(ctx)
}

func (state *BridgeActor) startWrite(ctx actor.Context, msg domain.WriteRegisterRequest) {
	state.current = &deviceJob{
		replyTo: actorutil.ForRequest(msg).ReplyTo(ctx),
		write: &writeJob{
			register: msg.Register,
			value:    msg.Value,
		},
	}
	state.behavior.BecomeStacked(state.BusyReceive)
	state.sendFrame(ctx, state.codec.EncodeWrite(msg.Register, msg.Value))
}

func (state *BridgeActor) nextChunk(ctx actor.Context) {
	job := state.current.read
	chunk := job.chunks[job.next]
	frame, err := state.codec.EncodeRead(chunk.Start, chunk.Count)
	if err != nil {
		state.failCurrent(ctx, err)
		return
	}
	state.sendFrame(ctx, frame)
}

func (state *BridgeActor) sendFrame(ctx actor.Context, frame []byte) {
	state.seq++
	seq := state.seq
	state.current.seq = seq
	if state.config.MQTT.Debug {
		state.logger.Debug("bridge: tx", zap.String("frame", saj.HexBytes(frame)))
	}
	state.lane.Publish(state.requestTopic, frame, 2, false, func(err error) {
		ctx.Send(ctx.Self(), devicePublishResult{seq: seq, err: err})
	}, state.requestTimeout)
	state.current.cancel = state.timers.RequestOnce(state.requestTimeout, ctx.Self(), requestDeadline{seq: seq})
}

func (state *BridgeActor) handleResponse(ctx actor.Context, payload []byte) {
	if state.config.MQTT.Debug {
		state.logger.Debug("bridge: rx", zap.String("frame", saj.HexBytes(payload)))
	}
	frame, err := state.codec.DecodeResponse(payload)
	if err != nil {
		state.logger.Debug("bridge@busy discard frame", zap.Error(err))
		return
	}
	job := state.current
	if job == nil {
		return
	}
	if job.read != nil {
		state.handleReadResponse(ctx, job, frame)
	} else {
		state.handleWriteResponse(ctx, job, frame)
	}
}

func (state *BridgeActor) handleReadResponse(ctx actor.Context, job *deviceJob, frame *saj.ResponseFrame) {
	if frame.Function != saj.FunctionReadRegisters {
		state.logger.Debug("bridge@busy discard mismatched response", zap.Uint8("function", frame.Function))
		return
	}
	chunk := job.read.chunks[job.read.next]
	if len(frame.Payload) != 2*int(chunk.Count) {
		state.failCurrent(ctx, fmt.Errorf("read 0x%04x count %d: %d payload bytes: %w",
			chunk.Start, chunk.Count, len(frame.Payload), saj.ErrUnexpectedLength))
		return
	}
	job.read.payload = append(job.read.payload, frame.Payload...)
	job.read.next++
	if job.cancel != nil {
		job.cancel()
	}
	if job.read.next < len(job.read.chunks) {
		state.nextChunk(ctx)
		return
	}
	state.finish(ctx, job, domain.ReadRegistersResponse{
		Start: job.read.start,
		Count: job.read.count,
		Data:  job.read.payload,
	})
}

func (state *BridgeActor) handleWriteResponse(ctx actor.Context, job *deviceJob, frame *saj.ResponseFrame) {
	// a write is acknowledged by echoing register and value
	if frame.Function != saj.FunctionWriteRegister || frame.Register != job.write.register {
		state.logger.Debug("bridge@busy discard mismatched response",
			zap.Uint8("function", frame.Function), zap.Uint16("register", frame.Register))
		return
	}
	state.finish(ctx, job, domain.WriteRegisterResponse{
		Register: frame.Register,
		Value:    frame.Value,
	})
}

func (state *BridgeActor) failCurrent(ctx actor.Context, err error) {
	job := state.current
	state.finish(ctx, job, failureResponse(job, err))
}

func (state *BridgeActor) finish(ctx actor.Context, job *deviceJob, response any) {
	if job.cancel != nil {
		job.cancel()
	}
	state.current = nil
	if job.replyTo != nil {
		ctx.Send(job.replyTo, response)
	}
	state.behavior.UnbecomeStacked()
	state.stash.UnstashOldest(ctx)
}

// cancelCurrent answers the in-flight request on shutdown. Queued requests
// go down with the actor.
func (state *BridgeActor) cancelCurrent(ctx actor.Context) {
	job := state.current
	if job == nil {
		return
	}
	if job.cancel != nil {
		job.cancel()
	}
	state.current = nil
	if job.replyTo != nil {
		ctx.Send(job.replyTo, failureResponse(job, fmt.Errorf("%s: %w", jobDesc(job), domain.ErrRequestCancelled)))
	}
}

// connectionLost fails the in-flight request and every queued one, then
// panics so the supervisor rebuilds the lane with backoff.
func (state *BridgeActor) connectionLost(ctx actor.Context, cause error) {
	state.logger.Error("bridge connection lost", zap.Error(cause))
	err := fmt.Errorf("%w: %s", domain.ErrTransportDown, cause)
	if job := state.current; job != nil {
		if job.cancel != nil {
			job.cancel()
		}
		state.current = nil
		if job.replyTo != nil {
			ctx.Send(job.replyTo, failureResponse(job, err))
		}
	}
	for {
		msg, sender, ok := state.stash.PopOldest()
		if !ok {
			break
		}
		state.failStashed(ctx, msg, sender, err)
	}
	panic(cause)
}

func (state *BridgeActor) failStashed(ctx actor.Context, msg any, sender *actor.PID, err error) {
	mixin := domain.ActorResponseMixIn{ResponseError: err}
	switch req := msg.(type) {
	case domain.ReadRegistersRequest:
		if replyTo := replyOf(req, sender); replyTo != nil {
			ctx.Send(replyTo, domain.ReadRegistersResponse{ActorResponseMixIn: mixin, Start: req.Start, Count: req.Count})
		}
	case domain.WriteRegisterRequest:
		if replyTo := replyOf(req, sender); replyTo != nil {
			ctx.Send(replyTo, domain.WriteRegisterResponse{ActorResponseMixIn: mixin, Register: req.Register, Value: req.Value})
		}
	}
}

func replyOf(req domain.ActorRequest, sender *actor.PID) *actor.PID {
	if ref := req.ReplyTo(); ref != nil {
		return (*actor.PID)(ref)
	}
	return sender
}

func jobDesc(job *deviceJob) string {
	if job.read != nil {
		return fmt.Sprintf("read 0x%04x count %d", job.read.start, job.read.count)
	}
	return fmt.Sprintf("write 0x%04x", job.write.register)
}

func failureResponse(job *deviceJob, err error) any {
	mixin := domain.ActorResponseMixIn{ResponseError: err}
	if job.read != nil {
		return domain.ReadRegistersResponse{ActorResponseMixIn: mixin, Start: job.read.start, Count: job.read.count}
	}
	return domain.WriteRegisterResponse{ActorResponseMixIn: mixin, Register: job.write.register, Value: job.write.value}
}

func (state *BridgeActor) stop() {
	state.logger.Debug("bridge: disconnect")
	if state.lane != nil {
		state.lane.Disconnect(500 * time.Millisecond)
	}
}
