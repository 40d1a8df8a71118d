// Package httpapi holds the typed route table contract and JSON helpers shared
// by all feature handlers. Service errors carry gRPC status codes; this package
// maps them onto HTTP.
package httpapi

import (
	"encoding/json"
	"net/http"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Route is one entry in a handler's explicit route table.
type Route struct {
	Method  string
	Pattern string
	Handler http.HandlerFunc
}

// ErrorBody is the JSON error envelope returned for every failure.
type ErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// WriteJSON writes v as JSON with the given HTTP status.
func WriteJSON(w http.ResponseWriter, statusCode int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if v != nil {
		_ = json.NewEncoder(w).Encode(v)
	}
}

// WriteError writes err as a JSON error envelope, translating its status code
// to an HTTP status.
func WriteError(w http.ResponseWriter, err error) {
	st, _ := status.FromError(err)
	WriteJSON(w, httpStatus(st.Code()), ErrorBody{
		Code:    st.Code().String(),
		Message: st.Message(),
	})
}

// DecodeJSON decodes the request body into v. A malformed body is an
// InvalidArgument, reported before any write.
func DecodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return status.Errorf(codes.InvalidArgument, "invalid request body: %v", err)
	}
	return nil
}

func httpStatus(c codes.Code) int {
	switch c {
	case codes.OK:
		return http.StatusOK
	case codes.InvalidArgument, codes.FailedPrecondition:
		return http.StatusBadRequest
	case codes.Unauthenticated:
		return http.StatusUnauthorized
	case codes.PermissionDenied:
		return http.StatusForbidden
	case codes.NotFound:
		return http.StatusNotFound
	case codes.AlreadyExists, codes.Aborted:
		return http.StatusConflict
	case codes.Unimplemented:
		return http.StatusNotImplemented
	default:
		return http.StatusInternalServerError
	}
}
