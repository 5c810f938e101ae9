package storage

import "testing"

func TestKeys(t *testing.T) {
	keys := NewKeys("relay:")

	tests := []struct {
		name string
		got  string
		want string
	}{
		{"minute", keys.RateLimitMinute("g1", "u1"), "relay:g1:ratelimit:u1:minute"},
		{"hour", keys.RateLimitHour("g1", "u1"), "relay:g1:ratelimit:u1:hour"},
		{"direct message minute", keys.RateLimitMinute("", "u1"), "relay:dm:ratelimit:u1:minute"},
		{"direct message hour", keys.RateLimitHour("", "u1"), "relay:dm:ratelimit:u1:hour"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Errorf("got %q, want %q", tt.got, tt.want)
			}
		})
	}
}
