package requestctx

import (
	"context"
	"testing"

	"go.uber.org/zap"

	"kedaipos/backend/internal/domain"
)

func TestActorAndTenantRoundTrip(t *testing.T) {
	ctx := WithActor(context.Background(), domain.Actor{UserID: "usr-1", Role: domain.RoleCashier})
	ctx = WithTenant(ctx, "tenant-1")

	actor, ok := Actor(ctx)
	if !ok || actor.UserID != "usr-1" {
		t.Fatalf("expected actor usr-1, got %+v (ok=%v)", actor, ok)
	}
	tenantID, ok := Tenant(ctx)
	if !ok || tenantID != "tenant-1" {
		t.Fatalf("expected tenant-1, got %q (ok=%v)", tenantID, ok)
	}
}

func TestMissingValues(t *testing.T) {
	ctx := context.Background()
	if _, ok := Actor(ctx); ok {
		t.Fatalf("expected no actor on empty context")
	}
	if _, ok := Tenant(WithTenant(ctx, "")); ok {
		t.Fatalf("expected empty tenant id to be treated as missing")
	}
}

func TestLoggerFallback(t *testing.T) {
	fallback := zap.NewExample()
	if got := Logger(context.Background(), fallback); got != fallback {
		t.Fatalf("expected fallback logger")
	}
	attached := zap.NewNop()
	if got := Logger(WithLogger(context.Background(), attached), fallback); got != attached {
		t.Fatalf("expected attached logger")
	}
}
