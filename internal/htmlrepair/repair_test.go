package htmlrepair

import (
	"strings"
	"testing"
)

func TestPreNormalizeUnwrapsTokenizedImg(t *testing.T) {
	cases := []struct {
		name  string
		input string
		want  string
	}{
		{
			name:  "wrapped local token",
			input: `before <img [[IMAGE:img-9]] style="width:100%"> after`,
			want:  "before [[IMAGE:img-9]] after",
		},
		{
			name:  "wrapped short key token",
			input: `<img src="" [[URL:3]]/>`,
			want:  "[[URL:3]]",
		},
		{
			name:  "wrapped legacy token",
			input: `<img alt="x" {{IMG:img-1}}>`,
			want:  "{{IMG:img-1}}",
		},
		{
			name:  "plain img untouched",
			input: `<img src="https://x/y.png">`,
			want:  `<img src="https://x/y.png">`,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := PreNormalize(tc.input); got != tc.want {
				t.Fatalf("PreNormalize(%q) = %q, want %q", tc.input, got, tc.want)
			}
		})
	}
}

func TestPreNormalizeStripsBracketDescriptions(t *testing.T) {
	got := PreNormalize("text [image 1024x768 PNG] more [[IMAGE:img-1]] end")
	want := "text  more [[IMAGE:img-1]] end"
	if got != want {
		t.Fatalf("PreNormalize = %q, want %q", got, want)
	}
}

func TestPreNormalizeRemovesEmptySrcImg(t *testing.T) {
	got := PreNormalize(`a <img src="" alt="broken"/> b`)
	if got != "a  b" {
		t.Fatalf("PreNormalize = %q", got)
	}
}

func TestStripTailsRemovesAttributeFragments(t *testing.T) {
	input := `<section>text</section> src="" style="margin:0" alt=""/> rest`
	got := StripTails(input)
	want := "<section>text</section> rest"
	if got != want {
		t.Fatalf("StripTails = %q, want %q", got, want)
	}
}

func TestStripTailsKeepsWellFormedTags(t *testing.T) {
	input := `<img src="https://x/y.png" style="width:100%" alt="pic">`
	if got := StripTails(input); got != input {
		t.Fatalf("StripTails modified a well-formed tag: %q", got)
	}
}

func TestStripTailsCutsTrailingTruncation(t *testing.T) {
	cases := []struct {
		input string
		want  string
	}{
		{"hello [[IMAGE:img-", "hello"},
		{"hello {{IMGURL:https://x", "hello"},
		{"hello <img src=\"htt", "hello"},
		{"hello [[URL:1]] ok [[IMA", "hello [[URL:1]] ok"},
		{"a [[x [[y", "a"},
		{"complete [[URL:1]]", "complete [[URL:1]]"},
		// Multi-byte text before the cut point must not shift it.
		{"<section>İİİİ text</section><img src=\"x", "<section>İİİİ text</section>"},
		{"日本語 <IMG src=\"trunc", "日本語"},
	}
	for _, tc := range cases {
		if got := StripTails(tc.input); got != tc.want {
			t.Fatalf("StripTails(%q) = %q, want %q", tc.input, got, tc.want)
		}
	}
}

func TestSanitizeRemovesBrokenImages(t *testing.T) {
	input := `<section><img src="about:blank"><img src="[[URL:2]]"><img src="https://x/y.png"></section>`
	got := Sanitize(input)
	if strings.Contains(got, "about:blank") || strings.Contains(got, "[[URL:2]]") {
		t.Fatalf("Sanitize kept broken images: %q", got)
	}
	if !strings.Contains(got, `src="https://x/y.png"`) {
		t.Fatalf("Sanitize dropped a healthy image: %q", got)
	}
}

func TestRepairIsIdempotent(t *testing.T) {
	inputs := []string{
		`<section>hi <img [[IMAGE:img-9]] style="x"> there</section> src="" alt=""/> [[IMAGE:tr`,
		`<section>clean document</section>`,
		`broken <img src="" /> [image 16x16 ICO] tail {{IMG`,
		"",
		"   ",
	}
	for _, input := range inputs {
		once := Repair(input)
		twice := Repair(once)
		if once != twice {
			t.Fatalf("Repair not idempotent for %q:\nonce:  %q\ntwice: %q", input, once, twice)
		}
	}
}

func TestRepairNeverPanicsOnGarbage(t *testing.T) {
	inputs := []string{
		"<<<<>>>>",
		"<img",
		"[[",
		"{{IMGURL:",
		strings.Repeat("<section>", 100),
	}
	for _, input := range inputs {
		_ = Repair(input)
	}
}
