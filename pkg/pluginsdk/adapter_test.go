// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Greentic Messaging Contributors

package pluginsdk

import (
	"context"
	"testing"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

type staticProvider struct{}

func (staticProvider) Describe(context.Context) ([]byte, error) { return []byte(`{}`), nil }

func (staticProvider) Invoke(_ context.Context, req Request) ([]byte, error) {
	return []byte(req.Op), nil
}

func TestInvokeHandler_RunsInterceptor(t *testing.T) {
	var seen string
	interceptor := func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		seen = info.FullMethod
		return handler(ctx, req)
	}
	dec := func(v any) error {
		v.(*wrapperspb.BytesValue).Value = []byte(`{"op":"reply"}`)
		return nil
	}

	out, err := invokeHandler(staticProvider{}, context.Background(), dec, interceptor)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := string(out.(*wrapperspb.BytesValue).GetValue()); got != "reply" {
		t.Errorf("unexpected output %q", got)
	}
	if seen != invokeMethod {
		t.Errorf("interceptor saw %q", seen)
	}
}

func TestInvokeHandler_BadRequest(t *testing.T) {
	dec := func(v any) error {
		v.(*wrapperspb.BytesValue).Value = []byte(`not json`)
		return nil
	}

	if _, err := invokeHandler(staticProvider{}, context.Background(), dec, nil); err == nil {
		t.Error("expected decode error")
	}
}
