package llm

import (
	"context"
	"net/http"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"github.com/ashita-ai/xiaoban/internal/telemetry"
)

// injectTrace propagates the caller's trace to the model server.
func injectTrace(ctx context.Context, req *http.Request) {
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(req.Header))
}

type tracedGenerator struct {
	next     Generator
	provider string
}

// Traced wraps gen so every call is recorded as a client span tagged with
// provider. Prompt text is not recorded.
func Traced(gen Generator, provider string) Generator {
	return tracedGenerator{next: gen, provider: provider}
}

func (g tracedGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	ctx, span := telemetry.Tracer("xiaoban/llm").Start(ctx, "llm.generate",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("llm.provider", g.provider),
			attribute.Int("llm.prompt_chars", len([]rune(prompt))),
		),
	)
	defer span.End()

	text, err := g.next.Generate(ctx, prompt)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", err
	}
	span.SetAttributes(attribute.Int("llm.response_chars", len([]rune(text))))
	return text, nil
}
