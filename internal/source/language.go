package source

import (
	"path/filepath"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/c"
	"github.com/smacker/go-tree-sitter/cpp"
)

type langEntry struct {
	language *sitter.Language
	name     string
}

var extToLang map[string]langEntry

func init() {
	extToLang = map[string]langEntry{
		".c":   {language: c.GetLanguage(), name: "c"},
		".h":   {language: c.GetLanguage(), name: "c"},
		".cpp": {language: cpp.GetLanguage(), name: "cpp"},
		".hpp": {language: cpp.GetLanguage(), name: "cpp"},
		".cc":  {language: cpp.GetLanguage(), name: "cpp"},
		".cxx": {language: cpp.GetLanguage(), name: "cpp"},
	}
}

// Detect returns the tree-sitter Language, language name, and whether the
// file extension was recognized.
func Detect(path string) (*sitter.Language, string, bool) {
	ext := strings.ToLower(filepath.Ext(path))
	entry, ok := extToLang[ext]
	if !ok {
		return nil, "", false
	}
	return entry.language, entry.name, true
}

// IsCFamily reports whether path has one of the C-family extensions the
// analyzer understands.
func IsCFamily(path string) bool {
	_, ok := extToLang[strings.ToLower(filepath.Ext(path))]
	return ok
}

// Extensions returns the recognized extensions in a stable order.
func Extensions() []string {
	return []string{".c", ".h", ".cpp", ".hpp", ".cc", ".cxx"}
}
