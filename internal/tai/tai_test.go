package tai

import "testing"

func TestParseStringRoundTrip(t *testing.T) {
	ts := Timestamp{Sec: 123, Nsec: 456}
	s := ts.String()
	if s != "123:456" {
		t.Fatalf("String() = %q, want 123:456", s)
	}
	parsed, err := Parse(s)
	if err != nil {
		t.Fatalf("Parse(%q) error: %v", s, err)
	}
	if parsed != ts {
		t.Fatalf("Parse(%q) = %+v, want %+v", s, parsed, ts)
	}
}

func TestParseMalformed(t *testing.T) {
	for _, s := range []string{"", "123", "abc:1", "1:abc"} {
		if _, err := Parse(s); err == nil {
			t.Fatalf("Parse(%q) expected error, got nil", s)
		}
	}
}

func TestCompare(t *testing.T) {
	a := Timestamp{Sec: 1, Nsec: 0}
	b := Timestamp{Sec: 1, Nsec: 1}
	c := Timestamp{Sec: 2, Nsec: 0}

	if !a.Before(b) || !b.Before(c) || !c.After(a) {
		t.Fatal("ordering not as expected")
	}
	if a.Compare(a) != 0 {
		t.Fatal("expected equal timestamps to compare 0")
	}
}

func TestAddNsecCarries(t *testing.T) {
	ts := Timestamp{Sec: 1, Nsec: 999999999}
	next := ts.AddNsec(1)
	if next.Sec != 2 || next.Nsec != 0 {
		t.Fatalf("AddNsec carry: got %+v", next)
	}
}
