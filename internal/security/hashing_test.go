package security

import (
	"errors"
	"testing"

	"golang.org/x/crypto/bcrypt"
)

func TestHasherRoundtrip(t *testing.T) {
	h := NewHasher(bcrypt.MinCost)
	hash, err := h.Hash([]byte("hunter2"))
	if err != nil {
		t.Fatalf("Hash: %v", err)
	}
	if err := h.Compare(hash, []byte("hunter2")); err != nil {
		t.Fatalf("Compare: %v", err)
	}
	if err := h.Compare(hash, []byte("wrong")); !errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
		t.Fatalf("wrong password = %v, want ErrMismatchedHashAndPassword", err)
	}
}

func TestNewHasherClampsCost(t *testing.T) {
	cases := []struct{ in, want int }{
		{0, bcrypt.DefaultCost},
		{-3, bcrypt.DefaultCost},
		{2, bcrypt.MinCost},
		{40, bcrypt.MaxCost},
		{12, 12},
	}
	for _, tc := range cases {
		if got := NewHasher(tc.in).Cost; got != tc.want {
			t.Fatalf("NewHasher(%d).Cost = %d, want %d", tc.in, got, tc.want)
		}
	}
}
