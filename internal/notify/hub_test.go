package notify

import "testing"

func TestClientWants(t *testing.T) {
	tests := []struct {
		name   string
		client client
		event  Event
		want   bool
	}{
		{
			name:   "same tenant, no incident filter",
			client: client{tenantID: "t1"},
			event:  Event{Table: "sessions", TenantID: "t1"},
			want:   true,
		},
		{
			name:   "other tenant filtered out",
			client: client{tenantID: "t1"},
			event:  Event{Table: "sessions", TenantID: "t2"},
			want:   false,
		},
		{
			name:   "incident filter matches",
			client: client{tenantID: "t1", incidentID: "inc1"},
			event:  Event{Table: "incidents", TenantID: "t1", IncidentID: "inc1"},
			want:   true,
		},
		{
			name:   "incident filter rejects other incidents",
			client: client{tenantID: "t1", incidentID: "inc1"},
			event:  Event{Table: "incidents", TenantID: "t1", IncidentID: "inc2"},
			want:   false,
		},
		{
			name:   "tenant-wide events pass an incident filter",
			client: client{tenantID: "t1", incidentID: "inc1"},
			event:  Event{Table: "sessions", TenantID: "t1"},
			want:   true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.client.wants(tt.event); got != tt.want {
				t.Fatalf("wants(%+v) = %v, want %v", tt.event, got, tt.want)
			}
		})
	}
}
