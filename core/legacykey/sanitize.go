package legacykey

import (
	"strings"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"

	"github.com/trezcool/calisma/core"
)

const turkishLetters = "ğüşıöçĞÜŞİÖÇ"

var (
	legacyNameTag  = "legacyname"
	legacyNameText = "{0} must contain letters or digits"
)

func isASCIIAlnum(r rune) bool {
	return (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9')
}

// SanitizeName keeps ASCII letters and digits, underscores, hyphens, spaces and Turkish letters.
// The result is safe to use as a file name inside the data directory.
func SanitizeName(s string) string {
	return strings.TrimSpace(strings.Map(func(r rune) rune {
		if isASCIIAlnum(r) || r == '_' || r == '-' || r == ' ' || strings.ContainsRune(turkishLetters, r) {
			return r
		}
		return -1
	}, s))
}

// SanitizeClass keeps letters and digits only.
func SanitizeClass(s string) string {
	return strings.Map(func(r rune) rune {
		if isASCIIAlnum(r) || strings.ContainsRune(turkishLetters, r) {
			return r
		}
		return -1
	}, s)
}

// InitValidators registers the `legacyname` tag: the field must keep at least one character once sanitized.
func InitValidators(validate *validator.Validate, translator ut.Translator) {
	_ = validate.RegisterValidation(legacyNameTag, func(fl validator.FieldLevel) bool {
		return SanitizeName(fl.Field().String()) != ""
	})
	core.RegisterCustomTranslation(validate, translator, legacyNameTag, legacyNameText)
}
