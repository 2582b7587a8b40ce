package fieldkey

import (
	"strings"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"

	"github.com/trezcool/academia/core"
)

var (
	dataTypeTag  = "datatype"
	dataTypeText = "must be one of: " + strings.Join(DataTypes, ", ")

	iconTag  = "icon"
	iconText = "unknown icon"

	keyTypeTag  = "keytype"
	keyTypeText = "must be one of: " + strings.Join(KeyTypes, ", ")
)

// InitValidators registers the field key validators and their translations.
func InitValidators(validate *validator.Validate, translator ut.Translator) {
	_ = validate.RegisterValidation(dataTypeTag, oneOfValidation(DataTypes))
	core.RegisterCustomTranslation(validate, translator, dataTypeTag, dataTypeText)

	_ = validate.RegisterValidation(iconTag, oneOfValidation(Icons))
	core.RegisterCustomTranslation(validate, translator, iconTag, iconText)

	_ = validate.RegisterValidation(keyTypeTag, oneOfValidation(KeyTypes))
	core.RegisterCustomTranslation(validate, translator, keyTypeTag, keyTypeText)
}

func oneOfValidation(allowed []string) validator.Func {
	return func(fl validator.FieldLevel) bool {
		value := fl.Field().String()
		for _, a := range allowed {
			if value == a {
				return true
			}
		}
		return false
	}
}
