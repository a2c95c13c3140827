// Package workspace resolves saved file paths into documents: a stable key
// and the workspace folder the file belongs to.
package workspace

import (
	"fmt"
	"net/url"
	"path/filepath"
	"strings"
)

// Document is a saved file as seen by the save runner
type Document struct {
	// Key is the stable identity of the document (its file URI)
	Key string
	// Path is the file path the command is derived from
	Path string
	// Folder is the owning workspace folder, empty when outside all of them
	Folder string
}

// Workspace is the ordered set of folders being worked on. The first folder
// is the global root.
type Workspace struct {
	folders []string
}

// New cleans and absolutises folders. Duplicates are dropped.
func New(folders ...string) (*Workspace, error) {
	w := &Workspace{}
	seen := make(map[string]bool, len(folders))
	for _, f := range folders {
		if strings.TrimSpace(f) == "" {
			continue
		}
		abs, err := filepath.Abs(f)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve workspace folder %s: %w", f, err)
		}
		if seen[abs] {
			continue
		}
		seen[abs] = true
		w.folders = append(w.folders, abs)
	}
	return w, nil
}

// Folders returns a copy of the workspace folders
func (w *Workspace) Folders() []string {
	out := make([]string, len(w.folders))
	copy(out, w.folders)
	return out
}

// Root returns the global fallback root, or "" when no folder is open
func (w *Workspace) Root() string {
	if len(w.folders) == 0 {
		return ""
	}
	return w.folders[0]
}

// FolderFor returns the deepest workspace folder containing path, or ""
func (w *Workspace) FolderFor(path string) string {
	abs, err := filepath.Abs(path)
	if err != nil {
		return ""
	}

	best := ""
	for _, f := range w.folders {
		if !contains(f, abs) {
			continue
		}
		if len(f) > len(best) {
			best = f
		}
	}
	return best
}

// Document resolves path into a Document. Relative paths are taken relative
// to the global root when there is one.
func (w *Workspace) Document(path string) (Document, error) {
	if strings.TrimSpace(path) == "" {
		return Document{}, fmt.Errorf("document path is empty")
	}

	if !filepath.IsAbs(path) && w.Root() != "" {
		path = filepath.Join(w.Root(), path)
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return Document{}, fmt.Errorf("failed to resolve document path %s: %w", path, err)
	}

	return Document{
		Key:    KeyFor(abs),
		Path:   abs,
		Folder: w.FolderFor(abs),
	}, nil
}

// ExecDir picks the working directory for a document's command: its folder,
// then the global root, then "".
func (w *Workspace) ExecDir(doc Document) string {
	if doc.Folder != "" {
		return doc.Folder
	}
	return w.Root()
}

// KeyFor returns the file URI of an absolute path
func KeyFor(abs string) string {
	p := filepath.ToSlash(filepath.Clean(abs))
	if !strings.HasPrefix(p, "/") {
		// Windows drive paths
		p = "/" + p
	}
	u := url.URL{Scheme: "file", Path: p}
	return u.String()
}

func contains(folder, path string) bool {
	if folder == path {
		return true
	}
	rel, err := filepath.Rel(folder, path)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}
