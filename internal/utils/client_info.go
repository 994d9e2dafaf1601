package utils

import "context"

type clientInfoKey struct{}

// ClientInfo is the caller's network identity for audit entries
type ClientInfo struct {
	IPAddress string
	UserAgent string
}

// WithClientInfo returns a copy of ctx carrying info
func WithClientInfo(ctx context.Context, info ClientInfo) context.Context {
	return context.WithValue(ctx, clientInfoKey{}, info)
}

// ClientInfoFromContext returns the client info stored by WithClientInfo
func ClientInfoFromContext(ctx context.Context) (ClientInfo, bool) {
	info, ok := ctx.Value(clientInfoKey{}).(ClientInfo)
	return info, ok
}
