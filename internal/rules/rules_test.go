package rules

import "testing"

func TestClassifyPriority(t *testing.T) {
	cases := []struct {
		name  string
		media Media
		body  string
		want  MediaType
	}{
		{"voice wins over video", Media{Present: true, Voice: true, Video: true}, "x", MediaVoice},
		{"video wins over photo", Media{Present: true, Video: true, Photo: true}, "", MediaVideo},
		{"photo", Media{Present: true, Photo: true}, "caption", MediaPhoto},
		{"text", Media{}, "hello", MediaText},
		{"other", Media{}, "", MediaOther},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Classify(tc.media, tc.body); got != tc.want {
				t.Fatalf("got %s, want %s", got, tc.want)
			}
		})
	}
}

func TestPassesFiltersEmptyList(t *testing.T) {
	if !PassesFilters("anything", MediaText, nil) {
		t.Fatal("empty filter list must pass")
	}
}

func TestPassesFiltersIncludeExclude(t *testing.T) {
	filters := []Filter{{IncludeText: "hello"}}
	if !PassesFilters("hello world", MediaText, filters) {
		t.Fatal("include substring present, should pass")
	}
	if PassesFilters("other text", MediaText, filters) {
		t.Fatal("include substring absent, should fail")
	}

	filters = []Filter{{ExcludeText: "spam"}}
	if PassesFilters("buy spam now", MediaText, filters) {
		t.Fatal("exclude substring present, should fail")
	}
	if !PassesFilters("clean message", MediaText, filters) {
		t.Fatal("exclude substring absent, should pass")
	}
}

func TestPassesFiltersMediaTypes(t *testing.T) {
	filters := []Filter{{MediaTypes: "photo, video"}}
	if !PassesFilters("", MediaPhoto, filters) {
		t.Fatal("photo is in the allow set")
	}
	if PassesFilters("body", MediaText, filters) {
		t.Fatal("text is not in the allow set")
	}
}

func TestPassesFiltersRegex(t *testing.T) {
	filters := []Filter{{RegexPattern: `order #\d+`}}
	if !PassesFilters("new order #42 placed", MediaText, filters) {
		t.Fatal("regex matches, should pass")
	}
	if PassesFilters("no numbers here", MediaText, filters) {
		t.Fatal("regex does not match, should fail")
	}
	// Case-sensitive by default.
	if PassesFilters("new ORDER #42", MediaText, filters) {
		t.Fatal("regex match must be case-sensitive")
	}
}

func TestPassesFiltersInvalidRegexFailsOpen(t *testing.T) {
	filters := []Filter{{RegexPattern: `([unclosed`}}
	if !PassesFilters("anything", MediaText, filters) {
		t.Fatal("invalid regex clause must not block forwarding")
	}
}

// Adding any filter can only turn a pass into a fail, never the reverse.
func TestPassesFiltersMonotonic(t *testing.T) {
	body := "hello world"
	base := []Filter{{IncludeText: "hello"}}
	extra := []Filter{
		{ExcludeText: "world"},
		{MediaTypes: "photo"},
		{RegexPattern: `\d+`},
	}
	if !PassesFilters(body, MediaText, base) {
		t.Fatal("base filter set should pass")
	}
	for _, f := range extra {
		narrowed := append(append([]Filter{}, base...), f)
		if PassesFilters(body, MediaText, narrowed) {
			t.Fatalf("filter %+v should narrow the pass to a fail", f)
		}
	}
	// The reverse never happens: a failing set stays failing when extended.
	failing := []Filter{{IncludeText: "absent"}}
	widened := append(append([]Filter{}, failing...), base...)
	if PassesFilters(body, MediaText, widened) {
		t.Fatal("adding filters must never turn a fail into a pass")
	}
}

func TestPassesFiltersAllFieldsAnded(t *testing.T) {
	filter := Filter{
		IncludeText:  "hello",
		ExcludeText:  "bye",
		MediaTypes:   "text",
		RegexPattern: `^hello`,
	}
	if !PassesFilters("hello there", MediaText, []Filter{filter}) {
		t.Fatal("all clauses hold, should pass")
	}
	if PassesFilters("hello bye", MediaText, []Filter{filter}) {
		t.Fatal("exclude clause fails, whole filter fails")
	}
}
