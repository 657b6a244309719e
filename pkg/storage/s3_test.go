package storage

import "testing"

func TestWhiteboardKey(t *testing.T) {
	tests := []struct {
		session string
		version int64
		want    string
	}{
		{"6f1c9d2e-0000-4000-8000-000000000001", 3, "whiteboards/6f1c9d2e-0000-4000-8000-000000000001/v3.json"},
		{"abc", 0, "whiteboards/abc/v0.json"},
		{"s", 12, "whiteboards/s/v12.json"},
	}
	for _, tc := range tests {
		if got := WhiteboardKey(tc.session, tc.version); got != tc.want {
			t.Errorf("WhiteboardKey(%q, %d) = %q, want %q", tc.session, tc.version, got, tc.want)
		}
	}
}
