package httpapi

import (
	"context"
	"testing"
	"time"
)

func TestJoinContextsCancelsOnShutdown(t *testing.T) {
	base, cancelBase := context.WithCancel(context.Background())
	ctx, cancel := joinContexts(base, context.Background())
	defer cancel()

	select {
	case <-ctx.Done():
		t.Fatal("joined context done prematurely")
	default:
	}

	cancelBase()
	select {
	case <-ctx.Done():
	case <-time.After(time.Second):
		t.Fatal("shutdown must cancel in-flight requests")
	}
}

func TestJoinContextsCancelsOnRequest(t *testing.T) {
	req, cancelReq := context.WithCancel(context.Background())
	ctx, cancel := joinContexts(context.Background(), req)
	defer cancel()

	cancelReq()
	select {
	case <-ctx.Done():
	case <-time.After(time.Second):
		t.Fatal("client disconnect must cancel the joined context")
	}
}

func TestJoinContextsKeepsRequestValues(t *testing.T) {
	type ridKey struct{}
	req := context.WithValue(context.Background(), ridKey{}, "rid-1")
	ctx, cancel := joinContexts(context.Background(), req)
	defer cancel()

	if got := ctx.Value(ridKey{}); got != "rid-1" {
		t.Fatalf("request-scoped values must survive the join, got %v", got)
	}
}
