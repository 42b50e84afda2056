package chat

import (
	"context"
	"net"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/wtask/chatrelay/internal/chat"

// startConnectionSpan - span covering connection from accept to close.
func (s *Server) startConnectionSpan(ctx context.Context, conn net.Conn, connID string) (context.Context, trace.Span) {
	return s.tracer.Start(ctx, "chat.connection",
		trace.WithSpanKind(trace.SpanKindServer),
		trace.WithAttributes(
			attribute.String("chat.conn_id", connID),
			attribute.String("net.peer.addr", remoteAddress(conn)),
		),
	)
}

// endConnectionSpan - sets span status by connection end cause.
func endConnectionSpan(span trace.Span, err error) {
	span.SetAttributes(attribute.String("chat.disconnect_reason", classify(err)))
	if expected(err) {
		span.SetStatus(codes.Ok, "")
	} else {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
