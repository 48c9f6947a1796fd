package pdf

import (
	"fmt"

	"github.com/metcalfc/epubizon/internal/document"
)

// SyntheticChapters partitions total pages into contiguous ranges of
// max(1, total/7) pages.
func SyntheticChapters(total int) []document.Chapter {
	if total < 1 {
		return nil
	}
	size := max(1, total/7)
	var chapters []document.Chapter
	for start := 1; start <= total; start += size {
		chapters = append(chapters, document.Chapter{
			PageStart: start,
			PageEnd:   min(start+size-1, total),
		})
	}
	for i := range chapters {
		chapters[i].Title = chapterTitle(i, len(chapters))
	}
	return chapters
}

func chapterTitle(i, n int) string {
	switch {
	case i == 0:
		return "Introduction"
	case i == n-1:
		return "Conclusion"
	default:
		return fmt.Sprintf("Chapter %d", i)
	}
}

// FallbackPages and the ranges below define the placeholder document shown
// when a PDF cannot be opened.
const FallbackPages = 45

var fallbackRanges = [][2]int{
	{1, 5}, {6, 12}, {13, 19}, {20, 26}, {27, 33}, {34, 40}, {41, 45},
}

func fallbackDocument(cause error) *document.Document {
	chapters := make([]document.Chapter, len(fallbackRanges))
	for i, r := range fallbackRanges {
		chapters[i] = document.Chapter{
			Title:     chapterTitle(i, len(fallbackRanges)),
			PageStart: r[0],
			PageEnd:   r[1],
		}
	}
	return &document.Document{
		Kind:       document.KindPDF,
		Chapters:   chapters,
		TotalPages: FallbackPages,
		Metadata:   defaultMetadata(nil),
		Mode:       document.Degraded,
		Cause:      cause,
	}
}

func defaultMetadata(info map[string]string) document.Metadata {
	md := document.Metadata{
		"title":   "PDF Document",
		"creator": "Unknown Author",
	}
	for k, v := range info {
		if v != "" {
			md[k] = v
		}
	}
	return md
}
