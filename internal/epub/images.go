package epub

import (
	"net/url"
	"path"
	"slices"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// imageDirs are searched by filename when a reference resolves nowhere else.
var imageDirs = []string{
	"images/",
	"Images/",
	"image/",
	"img/",
	"OEBPS/images/",
	"OEBPS/Images/",
	"OPS/images/",
	"Text/images/",
	"graphics/",
}

// resolveImage finds the container path for an image reference made from a
// chapter in chapterDir. It tries, in order: the path as given, the path
// relative to the chapter, a filename match in the manifest, and the
// conventional image directories.
func (c *container) resolveImage(src, chapterDir string) (string, bool) {
	src = strings.TrimPrefix(stripQuery(src), "/")
	if src == "" {
		return "", false
	}
	if p, ok := c.findImage(src, chapterDir); ok {
		return p, true
	}
	// References are URLs; archive entries hold the decoded names.
	if decoded, err := url.PathUnescape(src); err == nil && decoded != src {
		return c.findImage(decoded, chapterDir)
	}
	return "", false
}

func (c *container) findImage(src, chapterDir string) (string, bool) {
	if c.has(src) {
		return src, true
	}
	if p := path.Join(chapterDir, src); c.has(p) {
		return p, true
	}

	base := path.Base(src)
	for _, item := range c.book.Manifest.Items {
		if path.Base(item.HREF) == base {
			if p := c.itemPath(item.HREF); c.has(p) {
				return p, true
			}
		}
	}

	for _, dir := range imageDirs {
		if p := dir + base; c.has(p) {
			return p, true
		}
		if p := path.Join(c.opfDir, dir, base); c.has(p) {
			return p, true
		}
	}
	return "", false
}

func (c *container) mediaType(p string) string {
	if mt, ok := c.mediaTypes[p]; ok && mt != "" {
		return mt
	}
	switch strings.ToLower(path.Ext(p)) {
	case ".svg":
		return "image/svg+xml"
	case ".png":
		return "image/png"
	case ".gif":
		return "image/gif"
	case ".webp":
		return "image/webp"
	default:
		return "image/jpeg"
	}
}

// imageRef is an attribute holding an image reference.
type imageRef struct {
	node *html.Node
	idx  int
}

// imageRefs collects img src and svg image href attributes under nodes.
func imageRefs(nodes []*html.Node) []imageRef {
	var refs []imageRef
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch {
			case n.DataAtom == atom.Img:
				for i, a := range n.Attr {
					if a.Key == "src" {
						refs = append(refs, imageRef{n, i})
					}
				}
			case n.Data == "image":
				for i, a := range n.Attr {
					if a.Key == "href" {
						refs = append(refs, imageRef{n, i})
					}
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	for _, n := range nodes {
		walk(n)
	}
	return refs
}

// ImageHandles lists the blob handles referenced by rendered markup, in
// document order and without repeats.
func ImageHandles(markup string) []string {
	doc, err := html.Parse(strings.NewReader(markup))
	if err != nil {
		return nil
	}
	var handles []string
	for _, ref := range imageRefs([]*html.Node{doc}) {
		h := ref.node.Attr[ref.idx].Val
		if strings.HasPrefix(h, BlobScheme) && !slices.Contains(handles, h) {
			handles = append(handles, h)
		}
	}
	return handles
}

func isInline(src string) bool {
	lower := strings.ToLower(src)
	return strings.HasPrefix(lower, "data:") ||
		strings.HasPrefix(lower, "http:") ||
		strings.HasPrefix(lower, "https:") ||
		strings.HasPrefix(lower, BlobScheme)
}

func stripQuery(src string) string {
	if idx := strings.IndexAny(src, "?#"); idx != -1 {
		return src[:idx]
	}
	return src
}
