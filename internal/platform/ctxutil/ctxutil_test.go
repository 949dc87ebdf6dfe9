package ctxutil

import (
	"context"
	"testing"
)

func TestContextValues(t *testing.T) {
	ctx := WithTraceData(context.Background(), &TraceData{TraceID: "t1", RequestID: "r1"})
	ctx = WithPrincipal(ctx, &Principal{Subject: "svc-ingest"})
	if td := GetTraceData(ctx); td == nil || td.TraceID != "t1" || td.RequestID != "r1" {
		t.Fatalf("GetTraceData: got=%+v", td)
	}
	if p := GetPrincipal(ctx); p == nil || p.Subject != "svc-ingest" {
		t.Fatalf("GetPrincipal: got=%+v", p)
	}
	if GetPrincipal(context.Background()) != nil {
		t.Fatalf("GetPrincipal on bare context should be nil")
	}
	if Default(nil) == nil {
		t.Fatalf("Default(nil) returned nil")
	}
}
