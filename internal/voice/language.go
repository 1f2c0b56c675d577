package voice

import "strings"

// AutoLanguage lets the capture alternate between the auto locales.
const AutoLanguage = "auto"

var locales = map[string]string{
	"ja":    "ja-JP",
	"en":    "en-US",
	"zh":    "zh-CN",
	"zh-CN": "zh-CN",
	"zh-TW": "zh-TW",
}

// autoLocales are tried in order when the language is auto.
var autoLocales = []string{"ja-JP", "en-US"}

// LocaleFor maps a language code to a recognizer locale. Unknown codes use Japanese.
func LocaleFor(language string) string {
	if l, ok := locales[language]; ok {
		return l
	}
	return locales["ja"]
}

// BaseLanguage returns the language part of a locale tag ("en-US" is "en").
func BaseLanguage(locale string) string {
	base, _, _ := strings.Cut(locale, "-")
	return base
}

func isAuto(language string) bool {
	return language == "" || language == AutoLanguage
}
