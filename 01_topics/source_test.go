package topics

import (
	"strings"
	"testing"
)

func TestTitleKeywords(t *testing.T) {
	got := titleKeywords("Scientists discover about their shocking discovery, again: robots!")
	for _, kw := range got {
		if len(kw) < 5 {
			t.Errorf("keyword %q too short", kw)
		}
		if fillerWords[kw] {
			t.Errorf("filler word %q kept", kw)
		}
	}
	joined := strings.Join(got, " ")
	if !strings.Contains(joined, "scientists") || !strings.Contains(joined, "robots") {
		t.Errorf("keywords = %v, missing expected words", got)
	}
	if strings.Contains(joined, "discovery ") && strings.Count(joined, "discover") > 2 {
		t.Errorf("keywords = %v, duplicates kept", got)
	}
}

func TestTitleKeywordsCap(t *testing.T) {
	got := titleKeywords("alpha1 bravo2 charlie delta3 echo45 foxtrot golf67 hotel8 india9")
	if len(got) > 6 {
		t.Fatalf("keywords = %d entries, want at most 6", len(got))
	}
}

func TestFirstSentence(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"", ""},
		{"One sentence. Another sentence.", "One sentence."},
		{"A question? Then more.", "A question?"},
		{"Line one\nline two", "Line one"},
	}
	for _, tc := range cases {
		if got := firstSentence(tc.in); got != tc.want {
			t.Errorf("firstSentence(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestFirstSentenceCapsLength(t *testing.T) {
	long := strings.Repeat("word ", 100)
	if got := firstSentence(long); len(got) > 160 {
		t.Fatalf("len = %d, want <= 160", len(got))
	}
}
