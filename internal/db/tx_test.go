package db

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func TestRetryable(t *testing.T) {
	serialization := &pgconn.PgError{Code: "40001"}
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{"serialization failure", serialization, true},
		{"deadlock", &pgconn.PgError{Code: "40P01"}, true},
		{"wrapped serialization failure", fmt.Errorf("load incident: %w", serialization), true},
		{"status wrap hides the driver error", status.Errorf(codes.Internal, "load incident: %v", serialization), false},
		{"unique violation", &pgconn.PgError{Code: "23505"}, false},
		{"plain error", errors.New("connection reset"), false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := retryable(tc.err); got != tc.want {
				t.Fatalf("retryable(%v) = %v, want %v", tc.err, got, tc.want)
			}
		})
	}
}

func TestIsContention(t *testing.T) {
	joined := errors.Join(ErrTxContention, &pgconn.PgError{Code: "40001"})
	if !IsContention(joined) {
		t.Fatal("joined contention error not recognized")
	}
	if IsContention(errors.New("connection reset")) {
		t.Fatal("unrelated error reported as contention")
	}
}
