// Package publisher holds the pieces shared by the notification publishers.
package publisher

import (
	"context"
	"encoding/json"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
)

// ContentType is set on every message so consumers can decode the body.
const ContentType = "application/json"

// Encode marshals payload and builds the message attributes, carrying the
// caller's trace context so consumers can continue the span.
func Encode(ctx context.Context, payload any) ([]byte, map[string]string, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, nil, fmt.Errorf("marshal notification: %w", err)
	}
	attrs := map[string]string{"content_type": ContentType}
	otel.GetTextMapPropagator().Inject(ctx, propagation.MapCarrier(attrs))
	return data, attrs, nil
}
