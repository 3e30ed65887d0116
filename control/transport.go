package control

import "context"

type contextKey string

const transportKey contextKey = "control_transport"

// withTransport tags ctx with the transport a command arrived on.
func withTransport(ctx context.Context, t string) context.Context {
	return context.WithValue(ctx, transportKey, t)
}

// transportOf returns the transport tag, "direct" when unset.
func transportOf(ctx context.Context) string {
	if v, ok := ctx.Value(transportKey).(string); ok {
		return v
	}
	return "direct"
}
