// Package requestctx carries per-request values through context.
package requestctx

import (
	"context"
	"strings"

	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"
)

// LocaleHeader is the gRPC metadata key clients set to pick a message locale.
const LocaleHeader = "x-locale"

// localeContextKey is the context key for the caller's preferred locale.
type localeContextKey struct{}

// WithLocale stores a locale in context.
func WithLocale(ctx context.Context, locale string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, localeContextKey{}, locale)
}

// LocaleFromContext returns the locale stored in context.
func LocaleFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	value, _ := ctx.Value(localeContextKey{}).(string)
	return value
}

// LocaleUnaryInterceptor copies the x-locale (or accept-language) metadata of
// incoming calls into the handler context.
func LocaleUnaryInterceptor() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, _ *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		if locale := localeFromMetadata(ctx); locale != "" {
			ctx = WithLocale(ctx, locale)
		}
		return handler(ctx, req)
	}
}

// OutgoingLocale attaches locale to the metadata of outgoing calls.
func OutgoingLocale(ctx context.Context, locale string) context.Context {
	if strings.TrimSpace(locale) == "" {
		return ctx
	}
	return metadata.AppendToOutgoingContext(ctx, LocaleHeader, locale)
}

func localeFromMetadata(ctx context.Context) string {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return ""
	}
	for _, key := range []string{LocaleHeader, "accept-language"} {
		if values := md.Get(key); len(values) > 0 {
			// accept-language may list several tags; the first one wins.
			first, _, _ := strings.Cut(values[0], ",")
			first, _, _ = strings.Cut(first, ";")
			if first = strings.TrimSpace(first); first != "" {
				return first
			}
		}
	}
	return ""
}
