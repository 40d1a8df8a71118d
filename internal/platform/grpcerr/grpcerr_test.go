package grpcerr

import (
	"errors"
	"fmt"
	"testing"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"incident-command-plane/internal/db"
)

func TestFromTx(t *testing.T) {
	if FromTx(nil) != nil {
		t.Fatal("nil must stay nil")
	}

	inner := status.Error(codes.PermissionDenied, "no")
	if got := FromTx(inner); !errors.Is(got, inner) {
		t.Fatalf("status error = %v, want passed through", got)
	}

	contention := fmt.Errorf("wrapped: %w", db.ErrTxContention)
	if got := FromTx(contention); status.Code(got) != codes.Aborted {
		t.Fatalf("contention = %v, want Aborted", got)
	}

	if got := FromTx(errors.New("disk on fire")); status.Code(got) != codes.Internal {
		t.Fatalf("plain error = %v, want Internal", got)
	}
}
