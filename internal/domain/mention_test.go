package domain

import (
	"strings"
	"testing"
)

// testDirectory returns a small directory in a fixed order.
func testDirectory() []DirectoryEntry {
	return []DirectoryEntry{
		{Handle: "alice", DisplayName: "Alice Chen"},
		{Handle: "bob", DisplayName: "Bob Kovac"},
		{Handle: "calista", DisplayName: "Calista Reyes"},
		{Handle: "dana", DisplayName: "Dana Alinsky"},
		{Handle: "ealing", DisplayName: "E. Aling"},
		{Handle: "falin", DisplayName: "F. Alin"},
		{Handle: "galiano", DisplayName: "Gus Aliano"},
	}
}

// TestFindMentionCandidatesMatchesPartial verifies case-insensitive substring
// matching on handle or display name, capped at five, in directory order.
func TestFindMentionCandidatesMatchesPartial(t *testing.T) {
	text := "ping @ali please check"
	cursor := strings.Index(text, " please")

	got := FindMentionCandidates(text, cursor, testDirectory())
	want := []string{"alice", "calista", "dana", "ealing", "falin"}
	if len(got) != len(want) {
		t.Fatalf("got %d candidates, want %d: %v", len(got), len(want), got)
	}
	for idx, handle := range want {
		if got[idx].Handle != handle {
			t.Fatalf("candidate %d: got %q, want %q", idx, got[idx].Handle, handle)
		}
	}
}

// TestFindMentionCandidatesRequiresToken verifies no candidates without an
// @token immediately preceding the cursor.
func TestFindMentionCandidatesRequiresToken(t *testing.T) {
	cases := map[string]struct {
		text   string
		cursor int
	}{
		"plain word":        {"ping alice", 10},
		"cursor after gap":  {"ping @ali ", 10},
		"cursor at start":   {"@ali", 0},
		"cursor past end":   {"@ali", 9},
		"negative cursor":   {"@ali", -1},
		"mid-word no at":    {"check bob", 9},
		"at in prior token": {"@ali done", 9},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			if got := FindMentionCandidates(tc.text, tc.cursor, testDirectory()); len(got) != 0 {
				t.Fatalf("got %v, want none", got)
			}
		})
	}
}

// TestFindMentionCandidatesBareAt verifies a bare @ proposes the directory head.
func TestFindMentionCandidatesBareAt(t *testing.T) {
	got := FindMentionCandidates("cc @", 4, testDirectory())
	if len(got) != 5 {
		t.Fatalf("got %d candidates, want 5", len(got))
	}
	if got[0].Handle != "alice" || got[4].Handle != "ealing" {
		t.Fatalf("unexpected order: %v", got)
	}
}

// TestRenderWithMentionsResolvesKnownHandles verifies only known handles become
// mention segments and unknown @tokens stay literal.
func TestRenderWithMentionsResolvesKnownHandles(t *testing.T) {
	segments := RenderWithMentions("hey @alice and @nobody, see @BOB", testDirectory())

	var mentions []string
	var rebuilt strings.Builder
	for _, segment := range segments {
		rebuilt.WriteString(segment.Text)
		if segment.Mention != nil {
			mentions = append(mentions, segment.Mention.Handle)
		}
	}
	if rebuilt.String() != "hey @alice and @nobody, see @BOB" {
		t.Fatalf("segments do not reassemble input: %q", rebuilt.String())
	}
	if len(mentions) != 2 || mentions[0] != "alice" || mentions[1] != "bob" {
		t.Fatalf("resolved mentions: got %v, want [alice bob]", mentions)
	}
}

// TestMentionedHandlesDeduplicates verifies fan-out handles are distinct and ordered.
func TestMentionedHandlesDeduplicates(t *testing.T) {
	got := MentionedHandles("@bob @alice @bob again", testDirectory())
	if len(got) != 2 || got[0] != "bob" || got[1] != "alice" {
		t.Fatalf("got %v, want [bob alice]", got)
	}
}

// TestReplaceMentionToken verifies the in-progress token is replaced at its
// start offset with a trailing space and text on both sides survives.
func TestReplaceMentionToken(t *testing.T) {
	text := "ping @ali please check"
	cursor := strings.Index(text, " please")

	out, newCursor := ReplaceMentionToken(text, cursor, "alice")
	want := "ping @alice  please check"
	if out != want {
		t.Fatalf("got %q, want %q", out, want)
	}
	if newCursor != len("ping @alice ") {
		t.Fatalf("cursor: got %d, want %d", newCursor, len("ping @alice "))
	}

	unchanged, sameCursor := ReplaceMentionToken("no token here", 8, "alice")
	if unchanged != "no token here" || sameCursor != 8 {
		t.Fatalf("expected input unchanged, got %q at %d", unchanged, sameCursor)
	}
}
