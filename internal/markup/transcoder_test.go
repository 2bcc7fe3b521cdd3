package markup

import "testing"

func TestToWhatsApp(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want string
	}{
		{"bold", "<b>hello</b>", "*hello*"},
		{"strong", "<strong>hi</strong> there", "*hi* there"},
		{"italic", "<i>soft</i> and <em>softer</em>", "_soft_ and _softer_"},
		{"strike", "<s>no</s> <del>nope</del>", "~no~ ~nope~"},
		{"breaks", "line one<br>line two</p>line three", "line one\nline two\nline three"},
		{"strip unknown", `<span style="color:red">plain</span>`, "plain"},
		{"entities", "fish &amp; chips &lt;now&gt;", "fish & chips <now>"},
		{"collapse newlines", "a<br><br><br><br>b", "a\n\nb"},
		{"mixed", "<div><b>title</b></div><div>body &nbsp;text</div>", "*title*\nbody  text"},
		{"empty", "", ""},
		{"no html", "just text", "just text"},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if got := ToWhatsApp(c.in); got != c.want {
				t.Errorf("ToWhatsApp(%q) = %q, want %q", c.in, got, c.want)
			}
		})
	}
}

func TestToPlain(t *testing.T) {
	in := "<b>bold</b> and <i>italic</i><br><s>gone</s>"
	want := "bold and italic\ngone"
	if got := ToPlain(in); got != want {
		t.Errorf("ToPlain = %q, want %q", got, want)
	}
}

func TestTranscodeTotal(t *testing.T) {
	// malformed input must never panic and always return something
	inputs := []string{"<b>unclosed", "<<<>>>", "</p></p></p>", "<b><i>cross</b></i>"}
	for _, in := range inputs {
		_ = ToWhatsApp(in)
		_ = ToPlain(in)
	}
}
