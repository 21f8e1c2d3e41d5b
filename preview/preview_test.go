package preview

import (
	"strings"
	"testing"
)

func TestMarkdown_KeepsAnnotatedText(t *testing.T) {
	in := `<h1>Invoice</h1><p>$5 dollars is due by Friday</p>`
	out, err := Markdown(in)
	if err != nil {
		t.Fatalf("Markdown: %v", err)
	}
	if !strings.Contains(out, "$5 dollars is due by Friday") {
		t.Errorf("annotated text missing from preview: %q", out)
	}
	if !strings.Contains(out, "# Invoice") {
		t.Errorf("heading not converted: %q", out)
	}
}

func TestMarkdown_StripsScript(t *testing.T) {
	in := `<p>€3 euros owed</p><script>alert("$1")</script>`
	out, err := Markdown(in)
	if err != nil {
		t.Fatalf("Markdown: %v", err)
	}
	if strings.Contains(out, "alert") {
		t.Errorf("script survived sanitation: %q", out)
	}
	if !strings.Contains(out, "€3 euros owed") {
		t.Errorf("content lost: %q", out)
	}
}
