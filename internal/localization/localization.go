// Package localization resolves /retry arguments to speech recognition
// locales.
package localization

import (
	"sort"
	"strings"
)

var localeByLanguage = map[string]string{
	"de": "de-DE",
	"en": "en-US",
	"es": "es-ES",
}

// aliasToLanguage maps alternate tokens users actually type (names in German
// and English, flag emoji) onto language codes.
var aliasToLanguage = map[string]string{
	"deutsch":  "de",
	"german":   "de",
	"🇩🇪":       "de",
	"englisch": "en",
	"english":  "en",
	"🇬🇧":       "en",
	"🇺🇸":       "en",
	"spanisch": "es",
	"spanish":  "es",
	"español":  "es",
	"espanol":  "es",
	"🇪🇸":       "es",
}

// AutoDetectDefaults is the language set used when no locale was requested.
var AutoDetectDefaults = []string{"de", "en"}

// Find resolves a user-supplied query (language code, name, or flag) to a
// locale. The lookup is case-insensitive and ignores surrounding whitespace.
func Find(query string) (string, bool) {
	q := strings.ToLower(strings.TrimSpace(query))
	if locale, ok := localeByLanguage[q]; ok {
		return locale, true
	}
	if lang, ok := aliasToLanguage[q]; ok {
		return localeByLanguage[lang], true
	}
	return "", false
}

// ByLanguage returns the locale for a language code.
func ByLanguage(lang string) (string, bool) {
	locale, ok := localeByLanguage[lang]
	return locale, ok
}

// Supported lists the supported language codes, sorted.
func Supported() []string {
	langs := make([]string, 0, len(localeByLanguage))
	for lang := range localeByLanguage {
		langs = append(langs, lang)
	}
	sort.Strings(langs)
	return langs
}
