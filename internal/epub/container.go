package epub

import (
	"archive/zip"
	"bytes"
	"fmt"
	"io"
	"path"
	"slices"
	"strings"

	"github.com/taylorskalyo/goreader/epub"

	"github.com/metcalfc/epubizon/internal/document"
)

// container is an opened EPUB archive: goreader's parsed package document
// plus direct access to the zip entries for resources the package does not
// reach (NCX, images).
type container struct {
	zr     *zip.Reader
	book   *epub.Rootfile
	opfDir string
	files  map[string]*zip.File
	// mediaTypes maps container paths of manifest items to their media type.
	mediaTypes map[string]string
	spine      []string
}

// containerPath is the entry goreader reads to locate the package document.
const containerPath = "META-INF/container.xml"

func openContainer(data []byte) (c *container, err error) {
	// goreader dereferences missing entries, so a malformed archive panics.
	defer func() {
		if r := recover(); r != nil {
			c, err = nil, fmt.Errorf("failed to open epub: %v", r)
		}
	}()

	ra := bytes.NewReader(data)
	zr, err := zip.NewReader(ra, int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("failed to open zip: %w", err)
	}
	if !slices.ContainsFunc(zr.File, func(f *zip.File) bool { return f.Name == containerPath }) {
		return nil, fmt.Errorf("%s: not in archive", containerPath)
	}
	rc, err := epub.NewReader(ra, int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("failed to open epub: %w", err)
	}
	if len(rc.Rootfiles) == 0 {
		return nil, fmt.Errorf("no rootfiles found in epub")
	}

	book := rc.Rootfiles[0]
	c = &container{
		zr:         zr,
		book:       book,
		opfDir:     path.Dir(book.FullPath),
		files:      make(map[string]*zip.File, len(zr.File)),
		mediaTypes: make(map[string]string, len(book.Manifest.Items)),
	}
	for _, f := range zr.File {
		c.files[f.Name] = f
	}
	for _, item := range book.Manifest.Items {
		c.mediaTypes[c.itemPath(item.HREF)] = item.MediaType
	}
	for _, ref := range book.Spine.Itemrefs {
		if ref.Item == nil || ref.Item.HREF == "" {
			continue
		}
		c.spine = append(c.spine, c.itemPath(ref.Item.HREF))
	}
	return c, nil
}

// itemPath converts an OPF-relative href into a container path.
func (c *container) itemPath(href string) string {
	if c.opfDir == "." || c.opfDir == "" {
		return path.Clean(href)
	}
	return path.Join(c.opfDir, href)
}

func (c *container) read(name string) ([]byte, error) {
	f, ok := c.files[name]
	if !ok {
		return nil, fmt.Errorf("%s: not in archive", name)
	}
	r, err := f.Open()
	if err != nil {
		return nil, err
	}
	defer r.Close()
	return io.ReadAll(r)
}

func (c *container) has(name string) bool {
	_, ok := c.files[name]
	return ok
}

func (c *container) metadata() document.Metadata {
	md := c.book.Metadata
	return document.Metadata{
		"title":       orDefault(md.Title, "Unknown Title"),
		"creator":     orDefault(md.Creator, "Unknown Author"),
		"language":    orDefault(md.Language, "en"),
		"publisher":   strings.TrimSpace(md.Publisher),
		"description": strings.TrimSpace(md.Description),
	}
}

// imageCount counts manifest items with an image media type.
func (c *container) imageCount() int {
	n := 0
	for _, mt := range c.mediaTypes {
		if strings.HasPrefix(mt, "image/") {
			n++
		}
	}
	return n
}

func orDefault(s, def string) string {
	if s = strings.TrimSpace(s); s != "" {
		return s
	}
	return def
}
