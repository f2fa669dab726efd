package domain

import (
	"regexp"
	"strings"
	"unicode"
)

// maxMentionCandidates caps completion results for the composer popup.
const maxMentionCandidates = 5

// mentionTokenPattern matches @handle tokens when rendering stored text.
var mentionTokenPattern = regexp.MustCompile(`@\w+`)

// DirectoryEntry is one user-directory row the resolver matches against.
type DirectoryEntry struct {
	Handle      string `json:"handle"`
	DisplayName string `json:"display_name"`
}

// MentionSegment is one piece of rendered text: either literal text or a
// resolved mention. Unknown @tokens stay literal.
type MentionSegment struct {
	Text    string          `json:"text"`
	Mention *DirectoryEntry `json:"mention,omitempty"`
}

// FindMentionCandidates resolves the in-progress @token immediately preceding
// the cursor against the directory. Matching is a case-insensitive substring
// test on handle or display name; results keep directory order and are capped
// at five. No token before the cursor, or an empty @, yields no candidates.
func FindMentionCandidates(text string, cursor int, directory []DirectoryEntry) []DirectoryEntry {
	partial, _, ok := mentionTokenAt(text, cursor)
	if !ok {
		return nil
	}
	needle := strings.ToLower(partial)
	out := make([]DirectoryEntry, 0, maxMentionCandidates)
	for _, entry := range directory {
		if len(out) == maxMentionCandidates {
			break
		}
		if strings.Contains(strings.ToLower(entry.Handle), needle) ||
			strings.Contains(strings.ToLower(entry.DisplayName), needle) {
			out = append(out, entry)
		}
	}
	return out
}

// RenderWithMentions splits stored text on @word tokens and resolves only
// tokens whose handle exists in the directory (case-insensitive exact match).
func RenderWithMentions(text string, directory []DirectoryEntry) []MentionSegment {
	if text == "" {
		return nil
	}
	byHandle := make(map[string]DirectoryEntry, len(directory))
	for _, entry := range directory {
		byHandle[strings.ToLower(entry.Handle)] = entry
	}

	segments := make([]MentionSegment, 0, 4)
	last := 0
	for _, loc := range mentionTokenPattern.FindAllStringIndex(text, -1) {
		start, end := loc[0], loc[1]
		handle := strings.ToLower(text[start+1 : end])
		entry, known := byHandle[handle]
		if !known {
			continue
		}
		if start > last {
			segments = append(segments, MentionSegment{Text: text[last:start]})
		}
		resolved := entry
		segments = append(segments, MentionSegment{Text: text[start:end], Mention: &resolved})
		last = end
	}
	if last < len(text) {
		segments = append(segments, MentionSegment{Text: text[last:]})
	}
	return segments
}

// MentionedHandles returns the distinct known handles referenced in text, in
// first-appearance order. Used to fan out mention notifications.
func MentionedHandles(text string, directory []DirectoryEntry) []string {
	seen := map[string]struct{}{}
	out := make([]string, 0, 2)
	for _, segment := range RenderWithMentions(text, directory) {
		if segment.Mention == nil {
			continue
		}
		handle := segment.Mention.Handle
		if _, ok := seen[handle]; ok {
			continue
		}
		seen[handle] = struct{}{}
		out = append(out, handle)
	}
	return out
}

// ReplaceMentionToken replaces the in-progress @token preceding the cursor with
// "@handle " starting at the token's start offset, preserving surrounding text.
// It returns the new text and the cursor position after the inserted space.
// Without a token at the cursor the input is returned unchanged.
func ReplaceMentionToken(text string, cursor int, handle string) (string, int) {
	_, start, ok := mentionTokenAt(text, cursor)
	if !ok {
		return text, cursor
	}
	replacement := "@" + handle + " "
	out := text[:start] + replacement + text[cursor:]
	return out, start + len(replacement)
}

// mentionTokenAt finds the whitespace-free token immediately preceding the
// cursor. It reports the partial after the @, the token's start offset, and
// whether a token was found.
func mentionTokenAt(text string, cursor int) (partial string, start int, ok bool) {
	if cursor < 0 || cursor > len(text) {
		return "", 0, false
	}
	start = cursor
	for start > 0 {
		r := rune(text[start-1])
		if unicode.IsSpace(r) {
			break
		}
		start--
	}
	token := text[start:cursor]
	if !strings.HasPrefix(token, "@") {
		return "", 0, false
	}
	return token[1:], start, true
}
