package main

import "testing"

func TestParseOnOff(t *testing.T) {
	tests := []struct {
		in      string
		want    bool
		wantErr bool
	}{
		{"on", true, false},
		{"start", true, false},
		{"off", false, false},
		{"false", false, false},
		{"maybe", false, true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := parseOnOff(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("parseOnOff(%q) error = %v", tt.in, err)
			}
			if got != tt.want {
				t.Errorf("parseOnOff(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}
