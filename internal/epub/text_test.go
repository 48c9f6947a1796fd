package epub

import (
	"strings"
	"testing"
)

func TestChapterText(t *testing.T) {
	htmlContent := `
	<html>
		<head><title>Test</title><style>p { color: red; }</style></head>
		<body>
			<h1>Chapter 1</h1>
			<script>alert("hi")</script>
			<p>This is the <b>first</b> paragraph.</p>
			<p>
				This is the second paragraph
				with a newline.
			</p>
			<div>Some <span>nested</span> text.</div>
		</body>
	</html>
	`

	expectedWords := []string{"Chapter", "1", "This", "is", "the", "first", "paragraph.", "This", "is", "the", "second", "paragraph", "with", "a", "newline.", "Some", "nested", "text."}

	doc, err := parseChapter([]byte(htmlContent))
	if err != nil {
		t.Fatal(err)
	}
	words := strings.Fields(nodesText(bodyNodes(doc, "")))

	if len(words) != len(expectedWords) {
		t.Errorf("Expected %d words, got %d: %v", len(expectedWords), len(words), words)
	}

	for i, word := range words {
		if i < len(expectedWords) && word != expectedWords[i] {
			t.Errorf("Word %d: expected %q, got %q", i, expectedWords[i], word)
		}
	}
}

func TestSectionNodes(t *testing.T) {
	doc, err := parseChapter([]byte(`<body><p>intro</p><h2 id="a">A</h2><p>one</p><p>two</p><h2 id="b">B</h2><p>three</p></body>`))
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		anchor string
		want   string
	}{
		{"a", "A one two"},
		{"b", "B three"},
		{"missing", "intro A one two B three"},
	}
	for _, tt := range tests {
		t.Run(tt.anchor, func(t *testing.T) {
			got := strings.Join(strings.Fields(nodesText(bodyNodes(doc, tt.anchor))), " ")
			if got != tt.want {
				t.Errorf("section %q = %q, want %q", tt.anchor, got, tt.want)
			}
		})
	}
}
