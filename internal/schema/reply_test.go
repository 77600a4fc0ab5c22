package schema

import (
	"errors"
	"strings"
	"testing"
)

func TestReadReply(t *testing.T) {
	tests := []struct {
		name    string
		size    int
		wantErr error
	}{
		{"empty", 0, nil},
		{"small", 64, nil},
		{"at limit", MaxReplyBytes, nil},
		{"over limit", MaxReplyBytes + 1, ErrReplyTooLarge},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw, err := ReadReply(strings.NewReader(strings.Repeat("a", tt.size)))
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("ReadReply(%d bytes) error = %v, want %v", tt.size, err, tt.wantErr)
			}
			if tt.wantErr == nil && len(raw) != tt.size {
				t.Errorf("expected %d bytes, got %d", tt.size, len(raw))
			}
		})
	}
}

func TestErrorMessage(t *testing.T) {
	tests := []struct {
		name   string
		raw    string
		status int
		want   string
	}{
		{"error field", `{"error":"Insufficient credits"}`, 402, "Insufficient credits"},
		{"message field", `{"message":"forbidden"}`, 403, "forbidden"},
		{"error wins over message", `{"error":"a","message":"b"}`, 400, "a"},
		{"empty object", `{}`, 500, "Request failed (500)"},
		{"not json", `bad gateway`, 502, "Request failed (502)"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ErrorMessage([]byte(tt.raw), tt.status); got != tt.want {
				t.Errorf("ErrorMessage(%q, %d) = %q, want %q", tt.raw, tt.status, got, tt.want)
			}
		})
	}
}
