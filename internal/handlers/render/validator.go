package render

import (
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

const maxTickerLen = 10

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	configureValidator(v)
	return v
}

func configureValidator(validate *validator.Validate) {
	_ = validate.RegisterValidation("ticker", validateTicker)
	validate.RegisterTagNameFunc(useJSONTagNames)
}

func useJSONTagNames(fld reflect.StructField) string {
	name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
	// skip if tag key says it should be ignored
	if name == "-" {
		return ""
	}
	return name
}

// Exchange ticker: latin letters, digits, dot or dash, e.g. 'AAPL' or 'BRK.B'
func validateTicker(fl validator.FieldLevel) bool {
	symbol := fl.Field().String()
	if symbol == "" || len(symbol) > maxTickerLen {
		return false
	}

	// It's ok to work with string as bytes here
	for i := range len(symbol) {
		c := symbol[i]
		switch {
		case c >= 'A' && c <= 'Z', c >= 'a' && c <= 'z', c >= '0' && c <= '9', c == '.', c == '-':
		default:
			return false
		}
	}

	return true
}
