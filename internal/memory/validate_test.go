package memory

import (
	"errors"
	"testing"
	"time"
)

func TestAttrsValidate(t *testing.T) {
	cases := []struct {
		name  string
		attrs Attrs
		ok    bool
	}{
		{"factual ok", FactualAttrs{Subject: "s", Predicate: "p", Object: "o", Confidence: 0.9}, true},
		{"factual no subject", FactualAttrs{Predicate: "p", Object: "o"}, false},
		{"factual confidence range", FactualAttrs{Subject: "s", Predicate: "p", Object: "o", Confidence: 1.2}, false},
		{"episodic ok", EpisodicAttrs{EpisodeDate: time.Now(), EventType: "meeting"}, true},
		{"episodic no date", EpisodicAttrs{EventType: "meeting"}, false},
		{"episodic no event type", EpisodicAttrs{EpisodeDate: time.Now()}, false},
		{"semantic ok", SemanticAttrs{ConceptType: "term", Category: "infra", Definition: "a thing"}, true},
		{"semantic no definition", SemanticAttrs{ConceptType: "term", Category: "infra"}, false},
		{"procedural ok", ProceduralAttrs{Steps: []string{"one", "two"}, Domain: "ops"}, true},
		{"procedural no steps", ProceduralAttrs{Domain: "ops"}, false},
		{"procedural empty step", ProceduralAttrs{Steps: []string{"one", " "}, Domain: "ops"}, false},
		{"working ok", WorkingAttrs{TTLSeconds: 60}, true},
		{"working zero ttl", WorkingAttrs{}, false},
		{"message ok", MessageAttrs{SessionID: "s1", Role: "user"}, true},
		{"message no session", MessageAttrs{Role: "user"}, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.attrs.Validate()
			if tc.ok && err != nil {
				t.Errorf("unexpected error: %v", err)
			}
			if !tc.ok {
				if err == nil {
					t.Error("expected error")
				} else if !errors.Is(err, ErrValidation) {
					t.Errorf("error %v does not wrap ErrValidation", err)
				}
			}
		})
	}
}

func TestAttrsFromCandidate(t *testing.T) {
	attrs, err := attrsFromCandidate(KindFactual, Candidate{
		"subject": "dana", "predicate": "works_at", "object_value": "acme",
	})
	if err != nil {
		t.Fatalf("attrsFromCandidate: %v", err)
	}
	f := attrs.(FactualAttrs)
	if f.Confidence != 0.7 {
		t.Errorf("missing confidence should default to 0.7, got %v", f.Confidence)
	}

	attrs, err = attrsFromCandidate(KindFactual, Candidate{
		"subject": "dana", "predicate": "works_at", "object_value": "acme", "confidence": 0.4,
	})
	if err != nil {
		t.Fatalf("attrsFromCandidate: %v", err)
	}
	if attrs.(FactualAttrs).Confidence != 0.4 {
		t.Errorf("explicit confidence overridden: %v", attrs.(FactualAttrs).Confidence)
	}

	if _, err := attrsFromCandidate(KindFactual, Candidate{"subject": "dana"}); !errors.Is(err, ErrValidation) {
		t.Errorf("incomplete candidate = %v, want ErrValidation", err)
	}
	if _, err := attrsFromCandidate(KindWorking, Candidate{}); !errors.Is(err, ErrValidation) {
		t.Errorf("non-extractable kind = %v, want ErrValidation", err)
	}
}

func TestCandidateAccessors(t *testing.T) {
	c := Candidate{
		"s":      "  text  ",
		"n":      3.5,
		"list":   []any{"a", " b ", 7},
		"single": "alone",
		"props":  map[string]any{"k": "v", "n": 2},
	}

	if got := c.str("s"); got != "text" {
		t.Errorf("str = %q", got)
	}
	if got := c.str("missing"); got != "" {
		t.Errorf("missing str = %q", got)
	}
	if got := c.num("n"); got != 3.5 {
		t.Errorf("num = %v", got)
	}
	if got := c.strSlice("list"); len(got) != 2 || got[1] != "b" {
		t.Errorf("strSlice = %v", got)
	}
	// A bare string where a list is expected still counts.
	if got := c.strSlice("single"); len(got) != 1 || got[0] != "alone" {
		t.Errorf("single strSlice = %v", got)
	}
	props := c.strMap("props")
	if props["k"] != "v" || props["n"] != "2" {
		t.Errorf("strMap = %v", props)
	}
}

func TestParseEpisodeDate(t *testing.T) {
	for _, s := range []string{"2026-08-29", "2026-08-29T10:00:00Z", "2026-08-29 10:00:00"} {
		if parseEpisodeDate(s).IsZero() {
			t.Errorf("%q not parsed", s)
		}
	}
	if !parseEpisodeDate("next tuesday").IsZero() {
		t.Error("nonsense date parsed")
	}
}
