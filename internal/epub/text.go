package epub

import (
	"bytes"
	"fmt"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// parseChapter parses chapter markup and drops script and head elements.
func parseChapter(data []byte) (*html.Node, error) {
	doc, err := html.Parse(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to parse chapter: %w", err)
	}
	removeElements(doc, atom.Script, atom.Head)
	return doc, nil
}

// bodyNodes returns the nodes that make up a chapter: the body's children, or
// only the anchored section when anchor names an element in the body.
func bodyNodes(doc *html.Node, anchor string) []*html.Node {
	body := findNode(doc, func(n *html.Node) bool { return n.DataAtom == atom.Body })
	if body == nil {
		body = doc
	}
	if anchor != "" {
		if section := sectionNodes(body, anchor); len(section) > 0 {
			return section
		}
	}
	var nodes []*html.Node
	for c := body.FirstChild; c != nil; c = c.NextSibling {
		nodes = append(nodes, c)
	}
	return nodes
}

// sectionNodes returns the element with id anchor followed by its siblings,
// stopping at the next heading.
func sectionNodes(body *html.Node, anchor string) []*html.Node {
	target := findNode(body, func(n *html.Node) bool {
		return n.Type == html.ElementNode && attr(n, "id") == anchor
	})
	if target == nil {
		return nil
	}
	nodes := []*html.Node{target}
	for s := target.NextSibling; s != nil; s = s.NextSibling {
		if isHeading(s) {
			break
		}
		nodes = append(nodes, s)
	}
	return nodes
}

func renderNodes(nodes []*html.Node) (string, error) {
	var buf bytes.Buffer
	for _, n := range nodes {
		if err := html.Render(&buf, n); err != nil {
			return "", err
		}
	}
	return strings.TrimSpace(buf.String()), nil
}

func nodesText(nodes []*html.Node) string {
	var out strings.Builder
	for _, n := range nodes {
		out.WriteString(nodeText(n))
		out.WriteString(" ")
	}
	return out.String()
}

func nodeText(n *html.Node) string {
	var out strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.DataAtom == atom.Style {
			return
		}
		if n.Type == html.TextNode {
			if t := strings.TrimSpace(n.Data); t != "" {
				out.WriteString(t)
				out.WriteString(" ")
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return out.String()
}

func removeElements(n *html.Node, atoms ...atom.Atom) {
	for c := n.FirstChild; c != nil; {
		next := c.NextSibling
		if c.Type == html.ElementNode && containsAtom(atoms, c.DataAtom) {
			n.RemoveChild(c)
		} else {
			removeElements(c, atoms...)
		}
		c = next
	}
}

func containsAtom(atoms []atom.Atom, a atom.Atom) bool {
	for _, x := range atoms {
		if x == a {
			return true
		}
	}
	return false
}

func findNode(n *html.Node, match func(*html.Node) bool) *html.Node {
	if match(n) {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if found := findNode(c, match); found != nil {
			return found
		}
	}
	return nil
}

func isHeading(n *html.Node) bool {
	if n.Type != html.ElementNode {
		return false
	}
	switch n.DataAtom {
	case atom.H1, atom.H2, atom.H3, atom.H4, atom.H5, atom.H6:
		return true
	}
	return false
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}
