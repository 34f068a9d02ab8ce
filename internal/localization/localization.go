// Package localization provides functionality for internationalization (i18n).
// It loads translation strings from JSON files and provides a simple way to get
// localized strings for different languages.
package localization

import (
	"embed"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"sync"
)

// DefaultLang is used when a language or a key is missing.
const DefaultLang = "en"

//go:embed locales/*.json
var bundled embed.FS

// Localizer manages the translations for the application.
// It holds a map of languages, each with its own map of translation keys and values.
type Localizer struct {
	translations map[string]map[string]string
	mu           sync.RWMutex
}

// NewLocalizer loads all translations from the directory at path.
// The directory should contain JSON files named with the language code (e.g., "en.json").
func NewLocalizer(path string) (*Localizer, error) {
	return NewLocalizerFS(os.DirFS(path))
}

// Bundled returns the translations compiled into the binary.
func Bundled() *Localizer {
	sub, err := fs.Sub(bundled, "locales")
	if err != nil {
		panic(err)
	}
	l, err := NewLocalizerFS(sub)
	if err != nil {
		panic(err)
	}
	return l
}

// NewLocalizerFS loads every *.json file at the root of fsys.
func NewLocalizerFS(fsys fs.FS) (*Localizer, error) {
	l := &Localizer{
		translations: make(map[string]map[string]string),
	}

	files, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return nil, fmt.Errorf("failed to read localization directory: %w", err)
	}

	for _, file := range files {
		if file.IsDir() || !strings.HasSuffix(file.Name(), ".json") {
			continue
		}

		lang := strings.TrimSuffix(file.Name(), ".json")
		data, err := fs.ReadFile(fsys, file.Name())
		if err != nil {
			return nil, fmt.Errorf("failed to read localization file %s: %w", file.Name(), err)
		}

		var translations map[string]string
		if err := json.Unmarshal(data, &translations); err != nil {
			return nil, fmt.Errorf("failed to parse localization file %s: %w", file.Name(), err)
		}

		l.translations[lang] = translations
	}

	return l, nil
}

// GetString returns the localized string for a given key and language.
// If the language or the key is not found, it returns the key itself as a fallback.
func (l *Localizer) GetString(lang, key string) string {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if langTranslations, ok := l.translations[Normalize(lang)]; ok {
		if value, ok := langTranslations[key]; ok {
			return value
		}
	}

	if enTranslations, ok := l.translations[DefaultLang]; ok {
		if value, ok := enTranslations[key]; ok {
			return value
		}
	}

	return key
}

// Languages lists the loaded language codes.
func (l *Localizer) Languages() []string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]string, 0, len(l.translations))
	for lang := range l.translations {
		out = append(out, lang)
	}
	return out
}

// Normalize reduces an Accept-Language value or a Telegram language code
// ("uk-UA", "en-US,en;q=0.9") to its primary subtag.
func Normalize(lang string) string {
	lang = strings.TrimSpace(lang)
	if i := strings.IndexAny(lang, ",;"); i >= 0 {
		lang = lang[:i]
	}
	if i := strings.IndexAny(lang, "-_"); i >= 0 {
		lang = lang[:i]
	}
	return strings.ToLower(lang)
}
