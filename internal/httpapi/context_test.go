package httpapi

import (
	"context"
	"testing"
	"time"
)

type ctxKey struct{}

func TestJoinContextsBaseCancel(t *testing.T) {
	base, cancelBase := context.WithCancel(context.Background())
	req := context.WithValue(context.Background(), ctxKey{}, "rid-1")
	ctx, cancel := joinContexts(base, req)
	defer cancel()

	if ctx.Value(ctxKey{}) != "rid-1" {
		t.Fatal("request values must survive the join")
	}
	cancelBase()
	select {
	case <-ctx.Done():
	case <-time.After(time.Second):
		t.Fatal("base cancel did not propagate")
	}
}

func TestJoinContextsRequestCancel(t *testing.T) {
	req, cancelReq := context.WithCancel(context.Background())
	ctx, cancel := joinContexts(context.Background(), req)
	defer cancel()
	cancelReq()
	<-ctx.Done()
}

func TestSetBaseContextNil(t *testing.T) {
	SetBaseContext(nil)
	if serverBaseCtx != context.Background() {
		t.Fatal("nil base context should reset to Background")
	}
}
