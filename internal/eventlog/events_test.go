package eventlog

import (
	"testing"
	"time"
)

const sampleSecurityEventsJSON = `{
  "check": "security_events",
  "collected_at": "2026-08-24T10:00:00.0000000Z",
  "computer": "WS-FINANCE-07",
  "lookback_hours": 72,
  "events": [
    {
      "event_id": 4624,
      "time_created": "2026-08-24T08:15:12.1234567Z",
      "provider": "Microsoft-Windows-Security-Auditing",
      "channel": "Security",
      "computer": "WS-FINANCE-07",
      "subject_user": "",
      "target_user": "jdoe",
      "logon_type": 10,
      "source_ip": "203.0.113.50",
      "status": "",
      "message": "An account was successfully logged on."
    },
    {
      "event_id": 1102,
      "time_created": "2026-08-24T07:59:01.0000000Z",
      "provider": "Microsoft-Windows-Eventlog",
      "channel": "Security",
      "computer": "WS-FINANCE-07",
      "subject_user": "CORP\\jdoe",
      "target_user": "",
      "logon_type": 0,
      "source_ip": "",
      "status": "",
      "message": "The audit log was cleared."
    }
  ],
  "log_info": [
    {
      "name": "Security",
      "is_enabled": true,
      "log_mode": "Circular",
      "file_size_mb": 19.52,
      "max_size_mb": 20.0,
      "fill_percent": 97.6,
      "record_count": 31842
    }
  ]
}`

func TestParseSecurityEvents(t *testing.T) {
	doc, err := ParseSecurityEvents([]byte(sampleSecurityEventsJSON))
	if err != nil {
		t.Fatalf("ParseSecurityEvents: %v", err)
	}
	if doc.Computer != "WS-FINANCE-07" {
		t.Errorf("computer = %q", doc.Computer)
	}
	if doc.LookbackHours != 72 {
		t.Errorf("lookback_hours = %d, want 72", doc.LookbackHours)
	}
	if len(doc.Events) != 2 {
		t.Fatalf("parsed %d events, want 2", len(doc.Events))
	}
	if doc.Events[0].EventID != 4624 || doc.Events[0].LogonType != 10 {
		t.Errorf("event 0 = %+v", doc.Events[0])
	}
	if doc.Events[1].SubjectUser != `CORP\jdoe` {
		t.Errorf("subject_user = %q", doc.Events[1].SubjectUser)
	}
	if len(doc.LogInfo) != 1 || doc.LogInfo[0].FillPercent != 97.6 {
		t.Errorf("log_info = %+v", doc.LogInfo)
	}

	if got := doc.Events[0].Time(); got.IsZero() {
		t.Error("event time did not parse")
	}
}

func TestParseSecurityEvents_Errors(t *testing.T) {
	if _, err := ParseSecurityEvents([]byte(`not json`)); err == nil {
		t.Error("invalid JSON accepted")
	}
	if _, err := ParseSecurityEvents([]byte(`{"check":"hotfixes","events":[]}`)); err == nil {
		t.Error("mismatched check id accepted")
	}
}

func TestFilter(t *testing.T) {
	events := []SecurityEvent{
		{EventID: 4624, TimeCreated: "2026-08-24T08:00:00Z"},
		{EventID: 4625, TimeCreated: "2026-08-22T08:00:00Z"},
		{EventID: 1102, TimeCreated: "mangled"},
		{EventID: 4624, TimeCreated: "2026-08-24T09:00:00Z"},
	}

	t.Run("id set", func(t *testing.T) {
		got := Filter(events, FilterOptions{IDs: []int{4624}})
		if len(got) != 2 {
			t.Fatalf("kept %d events, want 2", len(got))
		}
	})

	t.Run("window drops older, keeps undated", func(t *testing.T) {
		since := time.Date(2026, 8, 23, 0, 0, 0, 0, time.UTC)
		got := Filter(events, FilterOptions{Since: since})
		if len(got) != 3 {
			t.Fatalf("kept %d events, want 3", len(got))
		}
		for _, e := range got {
			if e.EventID == 4625 {
				t.Error("event outside the window survived")
			}
		}
	})

	t.Run("cap preserves order", func(t *testing.T) {
		got := Filter(events, FilterOptions{MaxEvents: 2})
		if len(got) != 2 || got[0].EventID != 4624 || got[1].EventID != 4625 {
			t.Fatalf("got %+v", got)
		}
	})

	t.Run("zero options keep everything", func(t *testing.T) {
		if got := Filter(events, FilterOptions{}); len(got) != len(events) {
			t.Fatalf("kept %d events, want %d", len(got), len(events))
		}
	})
}

func TestAnalysisWindow(t *testing.T) {
	events := []SecurityEvent{
		{TimeCreated: "2026-08-20T00:00:00Z"},
		{TimeCreated: "2026-08-24T12:00:00Z"},
		{TimeCreated: "broken"},
	}
	got := AnalysisWindow(events, 72*time.Hour)
	want := time.Date(2026, 8, 21, 12, 0, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Errorf("window start = %v, want %v", got, want)
	}

	if got := AnalysisWindow([]SecurityEvent{{TimeCreated: "broken"}}, time.Hour); !got.IsZero() {
		t.Errorf("window without parseable timestamps = %v, want zero", got)
	}
}

func TestParseTime(t *testing.T) {
	cases := []struct {
		in     string
		ok     bool
		expect time.Time
	}{
		{"2026-08-24T08:15:12.1234567Z", true, time.Date(2026, 8, 24, 8, 15, 12, 123456700, time.UTC)},
		{"2026-08-24T08:15:12Z", true, time.Date(2026, 8, 24, 8, 15, 12, 0, time.UTC)},
		{"/Date(1756022112000)/", true, time.UnixMilli(1756022112000).UTC()},
		{"", false, time.Time{}},
		{"yesterday", false, time.Time{}},
		{"/Date(notanumber)/", false, time.Time{}},
	}
	for _, tc := range cases {
		got, ok := parseTime(tc.in)
		if ok != tc.ok {
			t.Errorf("parseTime(%q) ok = %v, want %v", tc.in, ok, tc.ok)
			continue
		}
		if ok && !got.Equal(tc.expect) {
			t.Errorf("parseTime(%q) = %v, want %v", tc.in, got, tc.expect)
		}
	}
}
