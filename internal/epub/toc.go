package epub

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"path"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/metcalfc/epubizon/internal/document"
)

// MaxSpineChapters caps chapters derived from the spine when no table of
// contents exists. Later spine items stay readable but are not listed.
const MaxSpineChapters = 200

// NCX XML structures for parsing toc.ncx
type ncx struct {
	NavMap navMap `xml:"navMap"`
}

type navMap struct {
	NavPoints []navPoint `xml:"navPoint"`
}

type navPoint struct {
	ID        string     `xml:"id,attr"`
	PlayOrder int        `xml:"playOrder,attr"`
	Label     navLabel   `xml:"navLabel"`
	Content   navContent `xml:"content"`
	Children  []navPoint `xml:"navPoint"`
}

type navLabel struct {
	Text string `xml:"text"`
}

type navContent struct {
	Src string `xml:"src,attr"`
}

// tocEntry is one flattened table-of-contents line. Href is a container path,
// optionally followed by a #fragment.
type tocEntry struct {
	Title string
	Href  string
	Level int
}

// readTOC returns the NCX table of contents, or the EPUB 3 navigation
// document when no NCX is present. It returns nil when neither yields entries.
func (c *container) readTOC() []tocEntry {
	if p, data, err := c.findNCX(); err == nil {
		var toc ncx
		if err := xml.Unmarshal(data, &toc); err == nil {
			if entries := flattenNavPoints(toc.NavMap.NavPoints, path.Dir(p), 0); len(entries) > 0 {
				return entries
			}
		}
	}
	if p, data, err := c.findNav(); err == nil {
		return parseNavDocument(data, path.Dir(p))
	}
	return nil
}

func (c *container) findNCX() (string, []byte, error) {
	var ncxPath string
	for _, item := range c.book.Manifest.Items {
		if item.MediaType == "application/x-dtbncx+xml" {
			ncxPath = c.itemPath(item.HREF)
			break
		}
	}
	if ncxPath == "" {
		for _, f := range c.zr.File {
			if strings.HasSuffix(strings.ToLower(f.Name), ".ncx") {
				ncxPath = f.Name
				break
			}
		}
	}
	if ncxPath == "" {
		return "", nil, fmt.Errorf("no NCX file found in EPUB")
	}

	data, err := c.read(ncxPath)
	if err != nil {
		return "", nil, fmt.Errorf("NCX file %s: %w", ncxPath, err)
	}
	return ncxPath, data, nil
}

func (c *container) findNav() (string, []byte, error) {
	for _, item := range c.book.Manifest.Items {
		if item.MediaType != "application/xhtml+xml" {
			continue
		}
		base := strings.ToLower(path.Base(item.HREF))
		if !strings.HasPrefix(base, "nav") && !strings.HasPrefix(base, "toc") {
			continue
		}
		p := c.itemPath(item.HREF)
		data, err := c.read(p)
		if err != nil {
			continue
		}
		return p, data, nil
	}
	return "", nil, fmt.Errorf("no navigation document found in EPUB")
}

func flattenNavPoints(points []navPoint, dir string, level int) []tocEntry {
	var entries []tocEntry

	for _, np := range points {
		entries = append(entries, tocEntry{
			Title: strings.TrimSpace(np.Label.Text),
			Href:  joinHref(dir, np.Content.Src),
			Level: level,
		})
		if len(np.Children) > 0 {
			entries = append(entries, flattenNavPoints(np.Children, dir, level+1)...)
		}
	}

	return entries
}

func parseNavDocument(data []byte, dir string) []tocEntry {
	root, err := html.Parse(bytes.NewReader(data))
	if err != nil {
		return nil
	}
	nav := findNode(root, func(n *html.Node) bool {
		return n.DataAtom == atom.Nav && isTOCNav(n)
	})
	if nav == nil {
		return nil
	}
	list := findNode(nav, func(n *html.Node) bool { return n.DataAtom == atom.Ol })
	if list == nil {
		return nil
	}
	return flattenNavList(list, dir, 0)
}

func isTOCNav(n *html.Node) bool {
	for _, a := range n.Attr {
		switch {
		case a.Key == "epub:type" || (a.Namespace == "epub" && a.Key == "type"):
			if strings.Contains(a.Val, "toc") {
				return true
			}
		case a.Key == "role" && a.Val == "doc-toc":
			return true
		case a.Key == "id" && a.Val == "toc":
			return true
		}
	}
	return false
}

func flattenNavList(list *html.Node, dir string, level int) []tocEntry {
	var entries []tocEntry
	for li := list.FirstChild; li != nil; li = li.NextSibling {
		if li.DataAtom != atom.Li {
			continue
		}
		for c := li.FirstChild; c != nil; c = c.NextSibling {
			switch c.DataAtom {
			case atom.A, atom.Span:
				entries = append(entries, tocEntry{
					Title: document.CollapseWhitespace(nodeText(c)),
					Href:  joinHref(dir, attr(c, "href")),
					Level: level,
				})
			case atom.Ol:
				entries = append(entries, flattenNavList(c, dir, level+1)...)
			}
		}
	}
	return entries
}

// chaptersFromTOC converts entries to chapters, defaulting empty titles.
func chaptersFromTOC(entries []tocEntry) []document.Chapter {
	chapters := make([]document.Chapter, 0, len(entries))
	for i, e := range entries {
		title := e.Title
		if title == "" {
			title = fmt.Sprintf("Section %d", i+1)
		}
		chapters = append(chapters, document.Chapter{
			Title: title,
			Href:  e.Href,
			Level: e.Level,
		})
	}
	return chapters
}

// spineChapters derives up to MaxSpineChapters chapters from the reading
// order, titled by each document's first heading.
func (c *container) spineChapters() []document.Chapter {
	n := min(len(c.spine), MaxSpineChapters)
	chapters := make([]document.Chapter, 0, n)
	for i := 0; i < n; i++ {
		title := c.headingTitle(c.spine[i])
		if title == "" {
			title = fmt.Sprintf("Chapter %d", i+1)
		}
		chapters = append(chapters, document.Chapter{
			Title: title,
			Href:  c.spine[i],
		})
	}
	return chapters
}

// headingTitle returns the text of the first non-empty h1, h2, h3 or title
// element in the document at p, trying them in that order.
func (c *container) headingTitle(p string) string {
	data, err := c.read(p)
	if err != nil {
		return ""
	}
	doc, err := html.Parse(bytes.NewReader(data))
	if err != nil {
		return ""
	}
	for _, a := range []atom.Atom{atom.H1, atom.H2, atom.H3, atom.Title} {
		n := findNode(doc, func(n *html.Node) bool {
			return n.DataAtom == a && document.CollapseWhitespace(nodeText(n)) != ""
		})
		if n != nil {
			return document.CollapseWhitespace(nodeText(n))
		}
	}
	return ""
}

// joinHref resolves href against dir, keeping any fragment.
func joinHref(dir, href string) string {
	file, frag := splitHref(href)
	if file == "" {
		return href
	}
	p := path.Join(dir, file)
	if frag != "" {
		p += "#" + frag
	}
	return p
}

func splitHref(href string) (file, frag string) {
	if idx := strings.Index(href, "#"); idx != -1 {
		return href[:idx], href[idx+1:]
	}
	return href, ""
}
