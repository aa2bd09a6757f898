package llm

import "testing"

func TestExtractJSONPlainArray(t *testing.T) {
	got := ExtractJSON(`[{"content": "a"}, {"content": "b"}]`)
	want := `[{"content": "a"}, {"content": "b"}]`
	if got != want {
		t.Errorf("got %q", got)
	}
}

func TestExtractJSONCodeFence(t *testing.T) {
	response := "```json\n[{\"content\": \"fact one\"}]\n```"
	got := ExtractJSON(response)
	if got != `[{"content": "fact one"}]` {
		t.Errorf("got %q", got)
	}
}

func TestExtractJSONSurroundingProse(t *testing.T) {
	response := `Here is what I found: {"summary": "likes [coffee]"} hope that helps`
	got := ExtractJSON(response)
	if got != `{"summary": "likes [coffee]"}` {
		t.Errorf("got %q", got)
	}
}

func TestExtractJSONBracketsInsideStrings(t *testing.T) {
	response := `[{"content": "uses {braces} and \"quotes\" freely"}]`
	got := ExtractJSON(response)
	if got != response {
		t.Errorf("got %q", got)
	}
}

func TestExtractJSONNone(t *testing.T) {
	for _, in := range []string{"", "no json here", "unbalanced [ bracket"} {
		if got := ExtractJSON(in); got != "" {
			t.Errorf("ExtractJSON(%q) = %q, want empty", in, got)
		}
	}
}
