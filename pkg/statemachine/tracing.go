package statemachine

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "statemachine"

// startProcessSpan 为单个事件的处理创建 span，调用方负责 End
func (m *Machine[C]) startProcessSpan(ev Event) (context.Context, trace.Span) {
	tracer := m.opts.tracer
	if tracer == nil {
		tracer = otel.Tracer(tracerName)
	}
	ctx, span := tracer.Start(m.runCtx, "statemachine.process")
	span.SetAttributes(
		attribute.String("machine", m.def.ID()),
		attribute.String("instance", m.id),
		attribute.String("event", string(ev.Type)),
		attribute.String("kind", ev.Kind.String()),
	)
	return ctx, span
}

func annotateSpan(ctx context.Context, from, to StateID) {
	trace.SpanFromContext(ctx).SetAttributes(
		attribute.String("from", string(from)),
		attribute.String("to", string(to)),
	)
}
