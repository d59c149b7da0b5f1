package memo

import (
	"reflect"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/volatiletech/null/v8"

	"github.com/donhautea/SSS-CMS/core"
)

var (
	dateFmtTag  = "datefmt"
	dateFmtText = "must be a date formatted as YYYY-MM-DD"
)

func init() {
	core.Validate.RegisterCustomTypeFunc(nullStringValue, null.String{})
	_ = core.Validate.RegisterValidation(dateFmtTag, dateFmtValidation)
	core.RegisterCustomTranslation(dateFmtTag, dateFmtText)
}

// nullStringValue lets validators treat null.String as its inner string,
// with invalid values reading as empty (so "required" rejects them).
func nullStringValue(field reflect.Value) interface{} {
	if ns, ok := field.Interface().(null.String); ok && ns.Valid {
		return ns.String
	}
	return ""
}

func dateFmtValidation(fl validator.FieldLevel) bool {
	_, err := time.Parse(DateFormat, fl.Field().String())
	return err == nil
}
