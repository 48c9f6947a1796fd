package epub

import (
	"fmt"
	"html"

	"github.com/metcalfc/epubizon/internal/document"
)

// DegradedChapters is the chapter count of the placeholder document.
const DegradedChapters = 5

// EstimatePages guesses a page count from the chapter count. Longer books are
// assumed to have shorter chapters.
func EstimatePages(chapters int) int {
	switch {
	case chapters < 50:
		return chapters * 3
	case chapters <= 100:
		return chapters * 2
	default:
		return chapters * 3 / 2
	}
}

// IsLarge reports whether a book should get a windowed chapter list.
func IsLarge(chapters, estimatedPages int) bool {
	return chapters > 50 || estimatedPages > 500
}

func degradedDocument(cause error) *document.Document {
	chapters := make([]document.Chapter, DegradedChapters)
	for i := range chapters {
		chapters[i] = document.Chapter{Title: fmt.Sprintf("Chapter %d", i+1)}
	}
	return &document.Document{
		Kind:       document.KindEPUB,
		Chapters:   chapters,
		TotalPages: EstimatePages(DegradedChapters),
		Metadata: document.Metadata{
			"title":    "Unknown Title",
			"creator":  "Unknown Author",
			"language": "en",
		},
		Mode:  document.Degraded,
		Cause: cause,
	}
}

func placeholderText(title string) string {
	return "The content of " + title + " could not be loaded from this file."
}

func placeholderChapterText(title string) string {
	return title + "\n\n" + placeholderText(title)
}

func placeholderMarkup(title string) string {
	t := html.EscapeString(title)
	return "<h1>" + t + "</h1>\n<p>" + html.EscapeString(placeholderText(title)) + "</p>"
}
