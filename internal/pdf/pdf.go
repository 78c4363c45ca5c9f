// Package pdf extracts embedded page images from PDF comic files. It
// reads the document at the object level rather than rasterizing pages:
// JPEG streams are written through byte for byte, Flate streams are
// inflated and interpreted per their declared color space, and anything
// else is skipped. Rendering fidelity (transforms, masks, vector art) is
// out of scope; comics store each page as one big image and that is the
// case this package serves.
package pdf

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"time"
)

// ExtractImages writes every supported embedded page image of the
// document at path into destDir. Filenames are a 4-digit counter shared
// across pages in page-tree order; skipped images still consume their
// number so later names stay stable. A document that yields no images at
// all is an error: there is nothing a comic pipeline can do with it.
func ExtractImages(path, destDir string, logger *slog.Logger) error {
	start := time.Now()
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read pdf: %w", err)
	}
	doc, err := parseDocument(data)
	if err != nil {
		return fmt.Errorf("parse pdf %s: %w", filepath.Base(path), err)
	}
	pages, err := doc.pages()
	if err != nil {
		return fmt.Errorf("pdf %s: %w", filepath.Base(path), err)
	}

	w := &imageWriter{destDir: destDir, next: 1, logger: logger}
	for i, pg := range pages {
		if err := extractPageImages(doc, pg, i+1, w); err != nil {
			return err
		}
	}
	if w.written == 0 {
		return fmt.Errorf("%s: document contains no extractable images", filepath.Base(path))
	}

	logger.Debug("pdf images extracted",
		slog.String("file", filepath.Base(path)),
		slog.Int("pages", len(pages)),
		slog.Int("images", w.written),
		slog.Int("skipped", w.skipped),
		slog.Duration("duration", time.Since(start).Round(time.Millisecond)))
	return nil
}

// page is one leaf of the page tree with its effective resources, which
// may be inherited from an ancestor /Pages node.
type page struct {
	node      dict
	resources dict
}

// pages returns the document's pages in tree order.
func (doc *document) pages() ([]page, error) {
	catalog := doc.catalog()
	if catalog == nil {
		return nil, errors.New("no document catalog")
	}
	root := doc.resolveDict(catalog["Pages"])
	if root == nil {
		return nil, errors.New("catalog has no page tree")
	}

	var out []page
	visited := make(map[ref]bool)
	var walk func(node dict, inherited dict)
	walk = func(node dict, inherited dict) {
		res := doc.resolveDict(node["Resources"])
		if res == nil {
			res = inherited
		}
		switch node["Type"] {
		case name("Page"):
			out = append(out, page{node: node, resources: res})
		case name("Pages"):
			kids, _ := doc.resolve(node["Kids"]).(array)
			for _, kid := range kids {
				if r, ok := kid.(ref); ok {
					if visited[r] {
						continue
					}
					visited[r] = true
				}
				if kd := doc.resolveDict(kid); kd != nil {
					walk(kd, res)
				}
			}
		}
	}
	walk(root, nil)
	return out, nil
}

func (doc *document) catalog() dict {
	for _, n := range doc.sortedNums() {
		if d, ok := doc.objects[n].value.(dict); ok && d["Type"] == name("Catalog") {
			return d
		}
	}
	return nil
}

// extractPageImages walks one page's XObject entries in name order, which
// keeps numbering deterministic, and hands each image to the writer.
func extractPageImages(doc *document, pg page, pageNum int, w *imageWriter) error {
	if pg.resources == nil {
		return nil
	}
	xobjects := doc.resolveDict(pg.resources["XObject"])
	if len(xobjects) == 0 {
		return nil
	}
	names := make([]string, 0, len(xobjects))
	for k := range xobjects {
		names = append(names, string(k))
	}
	sort.Strings(names)

	for _, nm := range names {
		obj := doc.object(xobjects[name(nm)])
		if obj == nil {
			continue
		}
		d, ok := obj.value.(dict)
		if !ok || d["Subtype"] != name("Image") || obj.stream == nil {
			continue
		}
		if err := w.writeImage(doc, d, obj.stream, pageNum, nm); err != nil {
			return err
		}
	}
	return nil
}
