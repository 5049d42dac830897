package device

import "context"

type contextKey int

const (
	idContextKey contextKey = iota
	metadataContextKey
)

// WithID returns a derived context carrying the given device ID.
func WithID(ctx context.Context, id ID) context.Context {
	return context.WithValue(ctx, idContextKey, id)
}

// GetID returns the device ID carried by the given context, if any.
// Connect requires an ID in the request context, normally placed there
// by the UseID middleware.
func GetID(ctx context.Context) (id ID, ok bool) {
	id, ok = ctx.Value(idContextKey).(ID)
	return
}

// WithMetadata returns a derived context carrying device metadata.
func WithMetadata(ctx context.Context, m Metadata) context.Context {
	return context.WithValue(ctx, metadataContextKey, m)
}

// GetMetadata returns the device metadata carried by the given context, if any.
func GetMetadata(ctx context.Context) (m Metadata, ok bool) {
	m, ok = ctx.Value(metadataContextKey).(Metadata)
	return
}
