package queue

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestNewJobRoundTrip(t *testing.T) {
	payload := WhiteboardArchivePayload{SessionID: uuid.New(), EndedAt: time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC), EndReason: "timeout"}
	job, err := NewJob(JobTypeWhiteboardArchive, payload)
	if err != nil {
		t.Fatalf("NewJob: %v", err)
	}
	raw, _ := json.Marshal(job)

	decoded, err := DecodeJob(string(raw))
	if err != nil {
		t.Fatalf("DecodeJob: %v", err)
	}
	if decoded.ID != job.ID || decoded.Type != JobTypeWhiteboardArchive || decoded.Attempt != 0 {
		t.Errorf("decoded = %+v", decoded)
	}
	var got WhiteboardArchivePayload
	if err := json.Unmarshal(decoded.Payload, &got); err != nil {
		t.Fatalf("payload: %v", err)
	}
	if got != payload {
		t.Errorf("payload = %+v, want %+v", got, payload)
	}
}

func TestDecodeJobRejects(t *testing.T) {
	for _, raw := range []string{"", "not json", `{"payload":{}}`, `{"id":"x"}`} {
		if _, err := DecodeJob(raw); err == nil {
			t.Errorf("DecodeJob(%q): expected error", raw)
		}
	}
}

func TestShouldRetry(t *testing.T) {
	tests := []struct {
		attempt int
		want    bool
	}{{1, true}, {2, true}, {3, false}, {4, false}}
	for _, tc := range tests {
		if got := ShouldRetry(&Job{Attempt: tc.attempt}); got != tc.want {
			t.Errorf("ShouldRetry(attempt=%d) = %v, want %v", tc.attempt, got, tc.want)
		}
	}
}

func TestQueueFor(t *testing.T) {
	if key, err := queueFor(JobTypeWhiteboardArchive); err != nil || key != QueueWhiteboardArchive {
		t.Errorf("queueFor = %q, %v", key, err)
	}
	if _, err := queueFor("email"); err == nil {
		t.Error("unknown type should fail")
	}
}
