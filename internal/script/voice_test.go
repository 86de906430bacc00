package script

import "testing"

func TestResolvePrecedence(t *testing.T) {
	voices := VoiceMap{{Speaker: "Alex", Voice: "v1"}, {Speaker: "alex (host)", Voice: "v2"}}
	if got := Resolve("Alex", voices); got != "v1" {
		t.Fatalf("Resolve(Alex) = %q, want v1", got)
	}
	if got := Resolve("  Alex ", voices); got != "v1" {
		t.Fatalf("Resolve trims labels, got %q", got)
	}
	if got := Resolve("ALEX (HOST)", voices); got != "v2" {
		t.Fatalf("case-insensitive match = %q, want v2", got)
	}
}

func TestResolveSubstringBothDirections(t *testing.T) {
	voices := VoiceMap{{Speaker: "Sam", Voice: "v-sam"}, {Speaker: "Jordan Lee", Voice: "v-jordan"}}
	if got := Resolve("SAM (Co-host)", voices); got != "v-sam" {
		t.Fatalf("label contains key: got %q", got)
	}
	if got := Resolve("Jordan", voices); got != "v-jordan" {
		t.Fatalf("key contains label: got %q", got)
	}
}

func TestResolveFallbacks(t *testing.T) {
	voices := VoiceMap{{Speaker: "Alex", Voice: "v1"}, {Speaker: "Sam", Voice: "v2"}}
	if got := Resolve("Narrator", voices); got != "v1" {
		t.Fatalf("unknown speaker = %q, want first entry v1", got)
	}
	if got := Resolve("Narrator", nil); got != DefaultVoice {
		t.Fatalf("empty map = %q, want %q", got, DefaultVoice)
	}
	if got := NewResolver(nil, "nova").Resolve("x"); got != "nova" {
		t.Fatalf("custom default = %q, want nova", got)
	}
	if got := Resolve("", voices); got != "v1" {
		t.Fatalf("empty label = %q, want v1", got)
	}
}

func TestResolveAlwaysReturnsKnownVoice(t *testing.T) {
	voices := VoiceMap{{Speaker: "A", Voice: "va"}, {Speaker: "B", Voice: "vb"}, {Speaker: "C", Voice: "vc"}}
	known := map[string]bool{"va": true, "vb": true, "vc": true}
	for _, label := range []string{"A", "b", "cc", "Dana", "", "  ", "[weird]", "A/B"} {
		if got := Resolve(label, voices); !known[got] {
			t.Fatalf("Resolve(%q) = %q, not in mapping", label, got)
		}
	}
}
