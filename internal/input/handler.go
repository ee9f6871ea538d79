// Package input reads C sources from disk, directories and unified diffs,
// decoding legacy encodings to UTF-8.
package input

import (
	"bytes"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/gobwas/glob"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/ianaindex"
	"golang.org/x/text/encoding/simplifiedchinese"
	"golang.org/x/text/transform"

	"github.com/chris-regnier/ctrap/internal/source"
)

type Kind int

const (
	KindFile Kind = iota
	KindDiff
)

// Artifact is one decoded source file.
type Artifact struct {
	Path     string
	Content  string
	Encoding string
	Kind     Kind
}

// Handler reads artifacts. The zero value detects encodings and excludes
// nothing.
type Handler struct {
	// Encoding is "auto", "" or an IANA name that forces a decoder.
	Encoding string
	exclude  []glob.Glob
}

func NewHandler() *Handler {
	return &Handler{Encoding: "auto"}
}

// WithExcludes compiles exclude patterns. A pattern matches either the
// slash-separated path relative to the walked directory or the base name.
func (h *Handler) WithExcludes(patterns []string) (*Handler, error) {
	for _, p := range patterns {
		g, err := glob.Compile(p, '/')
		if err != nil {
			return nil, fmt.Errorf("compiling exclude pattern %q: %w", p, err)
		}
		h.exclude = append(h.exclude, g)
	}
	return h, nil
}

// Excluded reports whether rel matches any exclude pattern.
func (h *Handler) Excluded(rel string) bool {
	rel = filepath.ToSlash(rel)
	base := filepath.Base(rel)
	for _, g := range h.exclude {
		if g.Match(rel) || g.Match(base) {
			return true
		}
	}
	return false
}

// ReadFiles reads each path. Unlike ReadDirectory it does not filter by
// extension: naming a file is taken as intent to analyze it.
func (h *Handler) ReadFiles(paths []string) ([]Artifact, error) {
	var artifacts []Artifact
	for _, p := range paths {
		a, err := h.readFile(p)
		if err != nil {
			return nil, err
		}
		artifacts = append(artifacts, a)
	}
	return artifacts, nil
}

// ReadDirectory collects the C-family files under dir in lexical order,
// skipping hidden directories and excluded paths.
func (h *Handler) ReadDirectory(dir string) ([]Artifact, error) {
	var paths []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, _ := filepath.Rel(dir, path)
		if d.IsDir() {
			if path != dir && (strings.HasPrefix(d.Name(), ".") || h.Excluded(rel)) {
				return filepath.SkipDir
			}
			return nil
		}
		if !source.IsCFamily(path) || h.Excluded(rel) {
			return nil
		}
		paths = append(paths, path)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walking %s: %w", dir, err)
	}
	sort.Strings(paths)
	return h.ReadFiles(paths)
}

// ReadDiff returns the C-family files a unified diff touches, read from
// disk relative to root. Deleted files are skipped.
func (h *Handler) ReadDiff(diff, root string) ([]Artifact, error) {
	var artifacts []Artifact
	seen := map[string]bool{}
	for _, path := range ChangedFiles(diff) {
		if seen[path] || !source.IsCFamily(path) || h.Excluded(path) {
			continue
		}
		seen[path] = true
		a, err := h.readFile(filepath.Join(root, path))
		if err != nil {
			if os.IsNotExist(err) {
				slog.Info("skipping file missing from the working tree", "path", path)
				continue
			}
			return nil, err
		}
		a.Kind = KindDiff
		artifacts = append(artifacts, a)
	}
	return artifacts, nil
}

// ChangedFiles lists the new-side paths named by "+++ b/..." headers,
// falling back to the "diff --git" line. /dev/null targets are dropped.
func ChangedFiles(diff string) []string {
	var out []string
	pending := ""
	for _, line := range strings.Split(diff, "\n") {
		switch {
		case strings.HasPrefix(line, "diff --git"):
			if pending != "" {
				out = append(out, pending)
			}
			pending = ""
			parts := strings.Fields(line)
			if len(parts) >= 4 {
				pending = strings.TrimPrefix(parts[len(parts)-1], "b/")
			}
		case strings.HasPrefix(line, "+++ "):
			target := strings.TrimSpace(strings.TrimPrefix(line, "+++ "))
			if i := strings.IndexByte(target, '\t'); i >= 0 {
				target = target[:i]
			}
			if target == "/dev/null" {
				pending = ""
				continue
			}
			out = append(out, strings.TrimPrefix(target, "b/"))
			pending = ""
		}
	}
	if pending != "" {
		out = append(out, pending)
	}
	return out
}

func (h *Handler) readFile(path string) (Artifact, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Artifact{}, err
	}
	text, enc, err := Decode(data, h.Encoding)
	if err != nil {
		return Artifact{}, fmt.Errorf("decoding %s: %w", path, err)
	}
	if enc != "utf-8" {
		slog.Debug("decoded legacy encoding", "path", path, "encoding", enc)
	}
	return Artifact{Path: path, Content: text, Encoding: enc, Kind: KindFile}, nil
}

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// Decode converts data to UTF-8. With name "auto" or "" it accepts valid
// UTF-8 (dropping a BOM), then tries GB18030, then falls back to
// Windows-1252. Any other name selects that IANA encoding.
func Decode(data []byte, name string) (string, string, error) {
	if name != "" && name != "auto" {
		enc, err := ianaindex.IANA.Encoding(name)
		if err != nil || enc == nil {
			return "", "", fmt.Errorf("unknown encoding %q", name)
		}
		text, err := decodeWith(enc, data)
		if err != nil {
			return "", "", err
		}
		return text, strings.ToLower(name), nil
	}

	data = bytes.TrimPrefix(data, utf8BOM)
	if utf8.Valid(data) {
		return string(data), "utf-8", nil
	}
	if text, err := decodeWith(simplifiedchinese.GB18030, data); err == nil && !strings.ContainsRune(text, utf8.RuneError) {
		return text, "gb18030", nil
	}
	text, err := decodeWith(charmap.Windows1252, data)
	if err != nil {
		return "", "", err
	}
	return text, "windows-1252", nil
}

func decodeWith(enc encoding.Encoding, data []byte) (string, error) {
	out, _, err := transform.Bytes(enc.NewDecoder(), data)
	if err != nil {
		return "", err
	}
	return string(out), nil
}
