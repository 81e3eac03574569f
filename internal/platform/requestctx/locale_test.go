package requestctx

import (
	"context"
	"testing"

	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"
)

func TestLocaleFromContextRoundTrip(t *testing.T) {
	ctx := WithLocale(context.Background(), "pt-BR")
	if got := LocaleFromContext(ctx); got != "pt-BR" {
		t.Fatalf("LocaleFromContext = %q, want %q", got, "pt-BR")
	}
}

func TestLocaleFromContextNil(t *testing.T) {
	if got := LocaleFromContext(nil); got != "" {
		t.Fatalf("expected empty string for nil context, got %q", got)
	}
	if ctx := WithLocale(nil, "en-US"); LocaleFromContext(ctx) != "en-US" {
		t.Fatal("expected locale on context built from nil")
	}
}

func TestLocaleUnaryInterceptor(t *testing.T) {
	tests := []struct {
		name string
		md   metadata.MD
		want string
	}{
		{name: "header", md: metadata.Pairs(LocaleHeader, "pt-BR"), want: "pt-BR"},
		{name: "accept language", md: metadata.Pairs("accept-language", "pt-PT;q=0.9, en;q=0.5"), want: "pt-PT"},
		{name: "none", md: metadata.MD{}, want: ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := metadata.NewIncomingContext(context.Background(), tt.md)
			var got string
			_, err := LocaleUnaryInterceptor()(ctx, nil, &grpc.UnaryServerInfo{}, func(ctx context.Context, _ any) (any, error) {
				got = LocaleFromContext(ctx)
				return nil, nil
			})
			if err != nil {
				t.Fatalf("interceptor: %v", err)
			}
			if got != tt.want {
				t.Fatalf("locale = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestOutgoingLocale(t *testing.T) {
	ctx := OutgoingLocale(context.Background(), "pt-BR")
	md, ok := metadata.FromOutgoingContext(ctx)
	if !ok || len(md.Get(LocaleHeader)) != 1 || md.Get(LocaleHeader)[0] != "pt-BR" {
		t.Fatalf("unexpected outgoing metadata %v", md)
	}
	if OutgoingLocale(context.Background(), " ") != context.Background() {
		t.Fatal("expected blank locale to leave context unchanged")
	}
}
