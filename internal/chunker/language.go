package chunker

import (
	"path/filepath"
	"strings"
)

// LanguageText is reported for files with no recognised extension.
const LanguageText = "text"

// extraLanguages names file types that have no structural grammar. They are
// chunked by the generic splitter but still carry a meaningful language tag.
var extraLanguages = map[string]string{
	"go":    "go",
	"cs":    "csharp",
	"kt":    "kotlin",
	"swift": "swift",
	"php":   "php",
	"scala": "scala",
	"sh":    "shell",
	"bash":  "shell",
	"sql":   "sql",
	"md":    "markdown",
	"yaml":  "yaml",
	"yml":   "yaml",
	"json":  "json",
	"toml":  "toml",
}

// DetectLanguage infers a language name from a file extension.
func (c *Chunker) DetectLanguage(path string) string {
	if lang := c.registry.LanguageFor(path); lang != "" {
		return lang
	}
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
	if lang, ok := extraLanguages[ext]; ok {
		return lang
	}
	return LanguageText
}
