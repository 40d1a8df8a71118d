package monitor

import "testing"

func TestDecide(t *testing.T) {
	tests := []struct {
		name     string
		standing Standing
		want     Decision
	}{
		{
			name:     "uncommanded incident is fully interactive",
			standing: Standing{Commanded: false, LicenseTier: "essentials"},
			want:     Decision{Mode: ModeFull, CanTakeCommand: true},
		},
		{
			name:     "commanding session has full control",
			standing: Standing{Commanded: true, SameUser: true, SameSession: true, LicenseTier: "essentials"},
			want:     Decision{Mode: ModeFull, IsCommander: true},
		},
		{
			name:     "essentials user commanding elsewhere is locked out",
			standing: Standing{Commanded: true, SameUser: true, LicenseTier: "essentials"},
			want:     Decision{Mode: ModeLockedOut, CanReestablish: true},
		},
		{
			name:     "professional user commanding elsewhere gets view-only",
			standing: Standing{Commanded: true, SameUser: true, LicenseTier: "professional"},
			want:     Decision{Mode: ModeViewOnly, CanReestablish: true},
		},
		{
			name:     "other user's command leaves the board open with a request option",
			standing: Standing{Commanded: true, LicenseTier: "essentials"},
			want:     Decision{Mode: ModeFull, CanRequestCommand: true},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Decide(tt.standing); got != tt.want {
				t.Fatalf("Decide(%+v) = %+v, want %+v", tt.standing, got, tt.want)
			}
		})
	}
}
