// Package langmeta is the language registry: English display names, used
// in CLI output and generative prompts, and the codes translation backends
// expect.
package langmeta

import (
	"errors"
	"fmt"
	"strings"
)

// ErrUnsupportedLanguage is returned when a language code cannot be mapped
// for a backend.
var ErrUnsupportedLanguage = errors.New("unsupported language")

// Meta describes a language.
type Meta struct {
	Name string
	// DeepL is the target code of the bulk translation API, empty when the
	// language is not offered there.
	DeepL string
}

// Registry contains canonical language metadata.
// Locale variants are resolved by Lookup via normalization and base fallback.
var Registry = map[string]Meta{
	"af":    {Name: "Afrikaans"},
	"am":    {Name: "Amharic"},
	"ar":    {Name: "Arabic", DeepL: "AR"},
	"ar-EG": {Name: "Arabic (Egypt)"},
	"az":    {Name: "Azerbaijani"},
	"be":    {Name: "Belarusian"},
	"bg":    {Name: "Bulgarian", DeepL: "BG"},
	"bn":    {Name: "Bengali"},
	"bs":    {Name: "Bosnian"},
	"ca":    {Name: "Catalan"},
	"cs":    {Name: "Czech", DeepL: "CS"},
	"cy":    {Name: "Welsh"},
	"da":    {Name: "Danish", DeepL: "DA"},
	"de":    {Name: "German", DeepL: "DE"},
	"de-AT": {Name: "German (Austria)", DeepL: "DE"},
	"de-CH": {Name: "German (Switzerland)", DeepL: "DE"},
	"el":    {Name: "Greek", DeepL: "EL"},
	"en":    {Name: "English", DeepL: "EN-US"},
	"en-AU": {Name: "English (Australia)", DeepL: "EN-GB"},
	"en-CA": {Name: "English (Canada)", DeepL: "EN-US"},
	"en-GB": {Name: "English (UK)", DeepL: "EN-GB"},
	"en-IN": {Name: "English (India)", DeepL: "EN-GB"},
	"en-US": {Name: "English (US)", DeepL: "EN-US"},
	"es":    {Name: "Spanish", DeepL: "ES"},
	"es-AR": {Name: "Spanish (Argentina)", DeepL: "ES-419"},
	"es-MX": {Name: "Spanish (Mexico)", DeepL: "ES-419"},
	"et":    {Name: "Estonian", DeepL: "ET"},
	"eu":    {Name: "Basque"},
	"fa":    {Name: "Persian"},
	"fi":    {Name: "Finnish", DeepL: "FI"},
	"fr":    {Name: "French", DeepL: "FR"},
	"fr-BE": {Name: "French (Belgium)", DeepL: "FR"},
	"fr-CA": {Name: "French (Canada)", DeepL: "FR"},
	"fr-CH": {Name: "French (Switzerland)", DeepL: "FR"},
	"ga":    {Name: "Irish"},
	"gl":    {Name: "Galician"},
	"gu":    {Name: "Gujarati"},
	"he":    {Name: "Hebrew", DeepL: "HE"},
	"hi":    {Name: "Hindi"},
	"hr":    {Name: "Croatian"},
	"hu":    {Name: "Hungarian", DeepL: "HU"},
	"hy":    {Name: "Armenian"},
	"id":    {Name: "Indonesian", DeepL: "ID"},
	"is":    {Name: "Icelandic"},
	"it":    {Name: "Italian", DeepL: "IT"},
	"ja":    {Name: "Japanese", DeepL: "JA"},
	"ka":    {Name: "Georgian"},
	"kk":    {Name: "Kazakh"},
	"km":    {Name: "Khmer"},
	"ko":    {Name: "Korean", DeepL: "KO"},
	"lo":    {Name: "Lao"},
	"lt":    {Name: "Lithuanian", DeepL: "LT"},
	"lv":    {Name: "Latvian", DeepL: "LV"},
	"mk":    {Name: "Macedonian"},
	"ml":    {Name: "Malayalam"},
	"mn":    {Name: "Mongolian"},
	"mr":    {Name: "Marathi"},
	"ms":    {Name: "Malay"},
	"mt":    {Name: "Maltese"},
	"my":    {Name: "Burmese"},
	"ne":    {Name: "Nepali"},
	"nl":    {Name: "Dutch", DeepL: "NL"},
	"nl-BE": {Name: "Dutch (Belgium)", DeepL: "NL"},
	"nb":    {Name: "Norwegian Bokmål", DeepL: "NB"},
	"nn":    {Name: "Norwegian Nynorsk"},
	"no":    {Name: "Norwegian", DeepL: "NB"},
	"pa":    {Name: "Punjabi"},
	"pl":    {Name: "Polish", DeepL: "PL"},
	"ps":    {Name: "Pashto"},
	"pt":    {Name: "Portuguese", DeepL: "PT-PT"},
	"pt-BR": {Name: "Portuguese (Brazil)", DeepL: "PT-BR"},
	"pt-PT": {Name: "Portuguese (Portugal)", DeepL: "PT-PT"},
	"ro":    {Name: "Romanian", DeepL: "RO"},
	"ru":    {Name: "Russian", DeepL: "RU"},
	"si":    {Name: "Sinhala"},
	"sk":    {Name: "Slovak", DeepL: "SK"},
	"sl":    {Name: "Slovenian", DeepL: "SL"},
	"sq":    {Name: "Albanian"},
	"sr":    {Name: "Serbian"},
	"sv":    {Name: "Swedish", DeepL: "SV"},
	"sw":    {Name: "Swahili"},
	"ta":    {Name: "Tamil"},
	"te":    {Name: "Telugu"},
	"th":    {Name: "Thai", DeepL: "TH"},
	"tr":    {Name: "Turkish", DeepL: "TR"},
	"uk":    {Name: "Ukrainian", DeepL: "UK"},
	"ur":    {Name: "Urdu"},
	"uz":    {Name: "Uzbek"},
	"vi":    {Name: "Vietnamese", DeepL: "VI"},
	"xh":    {Name: "Xhosa"},
	"yo":    {Name: "Yoruba"},
	"zh":    {Name: "Chinese", DeepL: "ZH-HANS"},
	"zh-CN": {Name: "Chinese (Simplified)", DeepL: "ZH-HANS"},
	"zh-TW": {Name: "Chinese (Traditional)", DeepL: "ZH-HANT"},
	"zu":    {Name: "Zulu"},
}

func canonicalize(lang string) string {
	normalized := strings.ReplaceAll(strings.TrimSpace(lang), "_", "-")
	if normalized == "" {
		return ""
	}
	parts := strings.Split(normalized, "-")
	parts[0] = strings.ToLower(parts[0])
	if len(parts) >= 2 {
		parts[1] = strings.ToUpper(parts[1])
	}
	return strings.Join(parts, "-")
}

// Canonical returns the registry spelling of a language code (pt_br -> pt-BR).
func Canonical(lang string) string {
	return canonicalize(lang)
}

// Lookup finds the metadata of a language code, trying the exact code, its
// canonical form and finally its base language.
func Lookup(lang string) (Meta, bool) {
	if m, ok := Registry[lang]; ok {
		return m, true
	}
	normalized := canonicalize(lang)
	if m, ok := Registry[normalized]; ok {
		return m, true
	}
	if parts := strings.SplitN(normalized, "-", 2); len(parts) == 2 {
		if m, ok := Registry[parts[0]]; ok {
			return m, true
		}
	}
	return Meta{}, false
}

// Resolve returns best-effort metadata, falling back to the code
// itself for unknown languages.
func Resolve(lang string) Meta {
	if m, ok := Lookup(lang); ok {
		return m
	}
	return Meta{Name: lang}
}

// Validate reports ErrUnsupportedLanguage for codes missing from the
// registry.
func Validate(lang string) error {
	if _, ok := Lookup(lang); !ok {
		return fmt.Errorf("%w: %q", ErrUnsupportedLanguage, lang)
	}
	return nil
}

// DeepLTarget maps a language code to the bulk API target code.
func DeepLTarget(lang string) (string, error) {
	m, ok := Lookup(lang)
	if !ok || m.DeepL == "" {
		return "", fmt.Errorf("%w: %q is not a DeepL target", ErrUnsupportedLanguage, lang)
	}
	return m.DeepL, nil
}

// DeepLSource maps a language code to the bulk API source code. Source
// codes carry no region. An empty lang yields an empty code, which lets the
// API detect the source language.
func DeepLSource(lang string) (string, error) {
	if strings.TrimSpace(lang) == "" {
		return "", nil
	}
	target, err := DeepLTarget(lang)
	if err != nil {
		return "", err
	}
	base, _, _ := strings.Cut(target, "-")
	return base, nil
}
