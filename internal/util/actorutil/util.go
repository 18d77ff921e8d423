package actorutil

import (
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"sajh1mqtt/internal/core/domain"
	"sajh1mqtt/internal/mqtt"
	"sajh1mqtt/pkg/saj"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/lmittmann/tint"
	"go.uber.org/zap"
)

func PipeToSelfWithRecover(ctx actor.Context, future *actor.Future, mapFn func(error) any) {
	ctx.ReenterAfter(future, func(msg any, err error) {
		if err != nil {
			ctx.Send(ctx.Self(), mapFn(err))
			return
		}
		ctx.Send(ctx.Self(), msg)
	})
}

// func DoBackgroundTask[T any](ctx actor.Context, fn func() T) {
// 	self := ctx.Self()
// 	sender := ctx.Sender()
// 	go func() {
// 		result := fn()
// 		ctx.Send(self, backgroundTaskResult{
// 			message: result,
// 			replyTo: sender,
// 		})
// 	}()
// }

func NewActorSystemWithZapLogger(logger *zap.Logger) *actor.ActorSystem {
	stdOutLogger := zap.NewStdLog(logger)

	var slogLevel slog.Level = slog.LevelInfo

	switch logger.Level() {
	case zap.DebugLevel:
		slogLevel = slog.LevelDebug
	case zap.InfoLevel:
		slogLevel = slog.LevelInfo
	case zap.WarnLevel:
		slogLevel = slog.LevelWarn
	case zap.ErrorLevel:
		slogLevel = slog.LevelError
	case zap.PanicLevel:
		slogLevel = slog.LevelError
	}

	return actor.NewActorSystem(actor.WithLoggerFactory(func(system *actor.ActorSystem) *slog.Logger {

		// create a new logger
		return slog.New(tint.NewHandler(stdOutLogger.Writer(), &tint.Options{
			Level:      slogLevel,
			TimeFormat: time.DateTime,
		}))
	}))
}

func ActorLogger(actorName string, logger *zap.Logger) *zap.Logger {
	return logger.With(zap.String("actor", actorName))
}

// ParsedMQTTCommandToCommand maps an MQTT command topic message to a domain
// request. The entity id carries the sensor id prefix; the remainder selects
// the target register. Unknown entities map to (nil, nil) and are ignored
// upstream.
func ParsedMQTTCommandToCommand(prefix string, cmd mqtt.ParsedMQTTCommand) (domain.ActorRequest, error) {
	key := strings.TrimPrefix(cmd.DeviceId, prefix+"_")
	switch cmd.Command {
	case "select":
		if key != domain.SELECT_ID_APP_MODE {
			return nil, nil
		}
		mode, err := saj.AppModeFromString(cmd.Payload)
		if err != nil {
			return nil, err
		}
		return domain.SetAppModeRequest{
			Mode: mode,
		}, nil
	case "number":
		writable, ok := saj.WritableRegisterByKey(key)
		if !ok {
			return nil, nil
		}
		value, err := strconv.ParseFloat(cmd.Payload, 64)
		if err != nil {
			return nil, err
		}
		if value < writable.Min || value > writable.Max {
			return nil, fmt.Errorf("value %v out of range [%v, %v] for %s", value, writable.Min, writable.Max, key)
		}
		return domain.SetConfigNumberRequest{
			Key:   key,
			Value: value,
		}, nil
	}
	return nil, nil
}
