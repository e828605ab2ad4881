package ctxutil

import (
	"context"
	"reflect"
	"testing"
)

func TestRequestIDs(t *testing.T) {
	t.Parallel()

	if got := RequestIDsFrom(context.Background()); got != (RequestIDs{}) {
		t.Fatalf("background ctx carries %+v", got)
	}
	if got := RequestIDsFrom(context.Background()).LogFields(); len(got) != 0 {
		t.Fatalf("LogFields on zero IDs = %v", got)
	}

	ctx := WithRequestIDs(context.Background(), RequestIDs{TraceID: "t1", RequestID: "r1"})
	want := []interface{}{"trace_id", "t1", "request_id", "r1"}
	if got := RequestIDsFrom(ctx).LogFields(); !reflect.DeepEqual(got, want) {
		t.Fatalf("LogFields = %v, want %v", got, want)
	}
}
