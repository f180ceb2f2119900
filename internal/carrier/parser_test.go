package carrier

import (
	"testing"
	"time"

	"gigawatch/internal/mikrotik"
)

func TestParseMessageHappyPath(t *testing.T) {
	at := time.Date(2024, 8, 17, 15, 27, 2, 0, time.UTC)
	ds := ParseMessage("Dati: hai ancora a disposizione il 73% di 100,0 GIGA di traffico", at)
	if ds == nil {
		t.Fatal("expected a data status")
	}
	if ds.RemainingPercentage != 73 {
		t.Fatalf("percentage = %d, want 73", ds.RemainingPercentage)
	}
	if ds.RemainingDataMB != 74752 {
		t.Fatalf("remaining MB = %d, want 74752", ds.RemainingDataMB)
	}
	if !ds.DateTime.Equal(at) {
		t.Fatalf("date time = %v, want %v", ds.DateTime, at)
	}
}

func TestParseMessageCommaDecimal(t *testing.T) {
	ds := ParseMessage("Dati: hai ancora a disposizione il 10% di 50,5 GIGA.", time.Now())
	if ds == nil {
		t.Fatal("expected a data status")
	}
	// 50.5 GIGA -> 51712 MB total; 10% -> 5171 MB (rounded)
	if ds.RemainingDataMB != 5171 {
		t.Fatalf("remaining MB = %d, want 5171", ds.RemainingDataMB)
	}
}

func TestParseMessageMiss(t *testing.T) {
	for _, body := range []string{
		"Benvenuto in WindTre",
		"",
		"Dati: hai ancora a disposizione il cento% di 100,0 GIGA",
	} {
		if ds := ParseMessage(body, time.Now()); ds != nil {
			t.Fatalf("body %q should not decode, got %+v", body, ds)
		}
	}
}

func TestParseMessagePurity(t *testing.T) {
	at := time.Date(2024, 8, 17, 15, 27, 2, 0, time.UTC)
	body := "Dati: hai ancora a disposizione il 73% di 100,0 GIGA di traffico"
	first := ParseMessage(body, at)
	second := ParseMessage(body, at)
	if *first != *second {
		t.Fatalf("parser is not pure: %+v vs %+v", first, second)
	}
}

func TestSmsTimeCandidateOrder(t *testing.T) {
	sms := mikrotik.Sms{
		Timestamp: "2024-08-17T15:27:02Z",
		Received:  "2024-08-17T16:00:00Z",
		Time:      "aug/17/2024 17:00:00",
	}
	at, ok := SmsTime(sms)
	if !ok {
		t.Fatal("expected a timestamp")
	}
	want := time.Date(2024, 8, 17, 15, 27, 2, 0, time.UTC)
	if !at.Equal(want) {
		t.Fatalf("timestamp field should win: got %v, want %v", at, want)
	}
}

func TestSmsTimeReceivedFallback(t *testing.T) {
	sms := mikrotik.Sms{
		Timestamp: "not-a-date",
		Received:  "2024-08-17T16:00:00+02:00",
	}
	at, ok := SmsTime(sms)
	if !ok {
		t.Fatal("expected a timestamp")
	}
	want := time.Date(2024, 8, 17, 14, 0, 0, 0, time.UTC)
	if !at.Equal(want) {
		t.Fatalf("got %v, want %v", at, want)
	}
}

func TestSmsTimeRouterLocalFormat(t *testing.T) {
	for _, raw := range []string{"aug/17/2024 15:27:02", "Aug/17/2024 15:27:02", "AUG/17/2024 15:27:02"} {
		at, ok := SmsTime(mikrotik.Sms{Time: raw})
		if !ok {
			t.Fatalf("%q should parse", raw)
		}
		want := time.Date(2024, 8, 17, 15, 27, 2, 0, time.UTC)
		if !at.Equal(want) {
			t.Fatalf("%q: got %v, want %v", raw, at, want)
		}
	}
}

func TestSmsTimeUnusable(t *testing.T) {
	if _, ok := SmsTime(mikrotik.Sms{Time: "yesterday-ish"}); ok {
		t.Fatal("garbage date should not parse")
	}
	if _, ok := SmsTime(mikrotik.Sms{}); ok {
		t.Fatal("no candidates should not parse")
	}
}

func TestParseSmsRequiresTimestamp(t *testing.T) {
	sms := mikrotik.Sms{Message: "Dati: hai ancora a disposizione il 73% di 100,0 GIGA"}
	if ds := ParseSms(sms); ds != nil {
		t.Fatalf("matching body without a usable date should not decode, got %+v", ds)
	}

	sms.Timestamp = "2024-08-17T15:27:02Z"
	if ds := ParseSms(sms); ds == nil || ds.RemainingPercentage != 73 {
		t.Fatalf("expected decoded status, got %+v", ds)
	}
}
