package timer

import (
	"strconv"
	"testing"
	"time"
)

func TestParseRequest(t *testing.T) {
	cases := []struct {
		name     string
		input    string
		username string
		want     Request
	}{
		{"minutes with label", "25m read papers", "alice", Request{25 * time.Minute, "read papers"}},
		{"hours", "2h deep work", "alice", Request{2 * time.Hour, "deep work"}},
		{"seconds", "90s stretch", "alice", Request{90 * time.Second, "stretch"}},
		{"duration only", "45m", "alice", Request{45 * time.Minute, "alice's timer"}},
		{"empty input", "", "alice", Request{25 * time.Minute, "alice's timer"}},
		{"label only", "just a label", "alice", Request{25 * time.Minute, "just a label"}},
		{"bad unit", "5x foo", "alice", Request{25 * time.Minute, "5x foo"}},
		{"zero duration", "0m foo", "alice", Request{25 * time.Minute, "0m foo"}},
		{"padded", "  10m   tidy desk  ", "alice", Request{10 * time.Minute, "tidy desk"}},
		{"no username", "", "", Request{25 * time.Minute, "focus timer"}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := ParseRequest(tc.input, tc.username, 0)
			if got != tc.want {
				t.Fatalf("ParseRequest(%q) = %+v, want %+v", tc.input, got, tc.want)
			}
		})
	}
}

func TestParseRequestMinutesScale(t *testing.T) {
	for _, d := range []int64{1, 5, 25, 90, 480} {
		got := ParseRequest(strconv.FormatInt(d, 10)+"m label", "u", 0)
		if got.Duration != time.Duration(d)*time.Minute {
			t.Fatalf("%dm parsed as %s", d, got.Duration)
		}
		if got.Label != "label" {
			t.Fatalf("label = %q", got.Label)
		}
	}
}

func TestParseRequestCustomDefault(t *testing.T) {
	got := ParseRequest("", "bob", 50*time.Minute)
	if got.Duration != 50*time.Minute {
		t.Fatalf("default duration = %s, want 50m", got.Duration)
	}
}
