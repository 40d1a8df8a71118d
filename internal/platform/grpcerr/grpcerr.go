// Package grpcerr maps transaction-layer failures onto the service error
// vocabulary (gRPC status codes).
package grpcerr

import (
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"incident-command-plane/internal/db"
)

// FromTx normalizes an error returned by a transactional service operation.
// Status errors produced inside the transaction pass through unchanged;
// exhausted-retry contention surfaces as Aborted; anything else is Internal.
// Repository failures must reach FromTx with their chain intact (%w, not a
// status wrap): the retry loop recognizes serialization conflicts by
// unwrapping to the driver error.
func FromTx(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := status.FromError(err); ok {
		return err
	}
	if db.IsContention(err) {
		return status.Error(codes.Aborted, "operation aborted by concurrent update; retry")
	}
	return status.Errorf(codes.Internal, "transaction failed: %v", err)
}
