package kafka

import (
	"context"
	"fmt"
	"time"

	"BrentShift/pkg/logger"

	"github.com/segmentio/kafka-go"
)

// ConsumerHook observes message handling. BeforeHandle may replace the
// context and payload; an error from it skips the handler and counts as a
// failed attempt.
type ConsumerHook interface {
	BeforeHandle(ctx context.Context, km kafka.Message, data []byte) (context.Context, []byte, error)
	AfterHandle(ctx context.Context, km kafka.Message, err error)
}

// NoopHook does nothing.
type NoopHook struct{}

func (NoopHook) BeforeHandle(ctx context.Context, _ kafka.Message, data []byte) (context.Context, []byte, error) {
	return ctx, data, nil
}

func (NoopHook) AfterHandle(context.Context, kafka.Message, error) {}

// HookChain runs hooks in order before handling and in reverse after.
// A panicking hook is turned into an error instead of crashing the worker.
type HookChain []ConsumerHook

func (c HookChain) BeforeHandle(ctx context.Context, km kafka.Message, data []byte) (context.Context, []byte, error) {
	for _, h := range c {
		var err error
		func() {
			defer func() {
				if r := recover(); r != nil {
					err = fmt.Errorf("hook panic: %v", r)
				}
			}()
			ctx, data, err = h.BeforeHandle(ctx, km, data)
		}()
		if err != nil {
			return ctx, data, err
		}
	}
	return ctx, data, nil
}

func (c HookChain) AfterHandle(ctx context.Context, km kafka.Message, err error) {
	for i := len(c) - 1; i >= 0; i-- {
		func() {
			defer func() { _ = recover() }()
			c[i].AfterHandle(ctx, km, err)
		}()
	}
}

type ctxKey string

const (
	ctxStartTime ctxKey = "kafka_start_time"
	ctxTraceID   ctxKey = "kafka_trace_id"
)

// TraceID returns the trace id a TraceHook stored in ctx.
func TraceID(ctx context.Context) string {
	s, _ := ctx.Value(ctxTraceID).(string)
	return s
}

// TraceHook copies the trace_id header into the context.
type TraceHook struct{}

func (TraceHook) BeforeHandle(ctx context.Context, km kafka.Message, data []byte) (context.Context, []byte, error) {
	for _, h := range km.Headers {
		if h.Key == "trace_id" && len(h.Value) > 0 {
			return context.WithValue(ctx, ctxTraceID, string(h.Value)), data, nil
		}
	}
	return ctx, data, nil
}

func (TraceHook) AfterHandle(context.Context, kafka.Message, error) {}

// LogHook logs failed attempts with their partition, offset and latency.
type LogHook struct {
	Log *logger.Logger
}

func (h LogHook) BeforeHandle(ctx context.Context, _ kafka.Message, data []byte) (context.Context, []byte, error) {
	return context.WithValue(ctx, ctxStartTime, time.Now()), data, nil
}

func (h LogHook) AfterHandle(ctx context.Context, km kafka.Message, err error) {
	if err == nil || h.Log == nil {
		return
	}
	fields := []logger.Field{
		logger.String("topic", km.Topic),
		logger.Int("partition", km.Partition),
		logger.Int64("offset", km.Offset),
		logger.Error(err),
	}
	if start, ok := ctx.Value(ctxStartTime).(time.Time); ok {
		fields = append(fields, logger.Duration("elapsed_ms", time.Since(start)))
	}
	if id := TraceID(ctx); id != "" {
		fields = append(fields, logger.String("trace_id", id))
	}
	h.Log.Warn("kafka message attempt failed", fields...)
}
