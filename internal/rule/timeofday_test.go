package rule

import (
	"encoding/json"
	"testing"
	"time"
)

func TestParseTimeOfDay_Success(t *testing.T) {
	tod, err := ParseTimeOfDay("14:05")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if tod.Hour != 14 || tod.Minute != 5 {
		t.Errorf("expected 14:05, got %+v", tod)
	}
	if tod.String() != "14:05" {
		t.Errorf("expected string '14:05', got %q", tod.String())
	}
}

func TestParseTimeOfDay_Invalid(t *testing.T) {
	for _, s := range []string{"24:00", "12:60", "-1:30", "noon"} {
		if _, err := ParseTimeOfDay(s); err == nil {
			t.Errorf("expected error parsing %q", s)
		}
	}
}

func TestTimeOfDay_After(t *testing.T) {
	a := MustTimeOfDay("09:00")
	b := MustTimeOfDay("09:01")

	if !b.After(a) {
		t.Error("expected 09:01 after 09:00")
	}
	if a.After(b) {
		t.Error("expected 09:00 not after 09:01")
	}
	if a.After(a) {
		t.Error("expected After to be strict")
	}
}

func TestTimeOfDay_On(t *testing.T) {
	tod := MustTimeOfDay("18:30")
	day := Date(2024, time.July, 4)

	got := tod.On(day)
	want := time.Date(2024, time.July, 4, 18, 30, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Errorf("expected %v, got %v", want, got)
	}
}

func TestTimeOfDay_JSON(t *testing.T) {
	data, err := json.Marshal(MustTimeOfDay("08:15"))
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}
	if string(data) != `"08:15"` {
		t.Errorf("expected \"08:15\", got %s", data)
	}

	var tod TimeOfDay
	if err := json.Unmarshal([]byte(`"23:59"`), &tod); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	if tod.Hour != 23 || tod.Minute != 59 {
		t.Errorf("expected 23:59, got %+v", tod)
	}

	if err := json.Unmarshal([]byte(`"25:00"`), &tod); err == nil {
		t.Error("expected error for out-of-range time")
	}
}
