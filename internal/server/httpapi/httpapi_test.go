package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func TestWriteErrorMapsStatusCodes(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{status.Error(codes.InvalidArgument, "bad"), http.StatusBadRequest},
		{status.Error(codes.FailedPrecondition, "state"), http.StatusBadRequest},
		{status.Error(codes.Unauthenticated, "who"), http.StatusUnauthorized},
		{status.Error(codes.PermissionDenied, "no"), http.StatusForbidden},
		{status.Error(codes.NotFound, "gone"), http.StatusNotFound},
		{status.Error(codes.AlreadyExists, "dup"), http.StatusConflict},
		{status.Error(codes.Aborted, "retry"), http.StatusConflict},
		{status.Error(codes.Internal, "boom"), http.StatusInternalServerError},
		{errors.New("plain error"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		rec := httptest.NewRecorder()
		WriteError(rec, tt.err)
		if rec.Code != tt.want {
			t.Errorf("WriteError(%v) status = %d, want %d", tt.err, rec.Code, tt.want)
		}
		var body ErrorBody
		if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
			t.Fatalf("error body is not JSON: %v", err)
		}
		if body.Code == "" || body.Message == "" {
			t.Errorf("error body = %+v, want code and message", body)
		}
	}
}

func TestDecodeJSON(t *testing.T) {
	type payload struct {
		Name string `json:"name"`
	}

	r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"name":"x"}`))
	var p payload
	if err := DecodeJSON(r, &p); err != nil || p.Name != "x" {
		t.Fatalf("DecodeJSON = %v, p = %+v", err, p)
	}

	r = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"name":"x","extra":1}`))
	err := DecodeJSON(r, &payload{})
	if status.Code(err) != codes.InvalidArgument {
		t.Fatalf("unknown field = %v, want InvalidArgument", err)
	}

	r = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{`))
	if err := DecodeJSON(r, &payload{}); status.Code(err) != codes.InvalidArgument {
		t.Fatalf("malformed body = %v, want InvalidArgument", err)
	}
}

func TestWriteJSON(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteJSON(rec, http.StatusCreated, map[string]string{"id": "x"})
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Fatalf("Content-Type = %q", ct)
	}
}
