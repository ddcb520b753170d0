package validator

import (
	"errors"
	"fmt"
	"reflect"
	"sort"
	"strings"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	govalidator "github.com/go-playground/validator/v10"
	en_translations "github.com/go-playground/validator/v10/translations/en"
)

var (
	once  sync.Once
	trans ut.Translator
	// standalone validates structs that do not come from a request body,
	// such as quiz definitions fetched from the platform.
	standalone *govalidator.Validate
)

func jsonTagName(fld reflect.StructField) string {
	name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
	if name == "-" {
		return ""
	}
	return name
}

// Setup registers the validator with English translations on Gin's binding engine.
// Safe to call more than once.
func Setup() {
	once.Do(func() {
		enLocale := en.New()
		uni := ut.New(enLocale, enLocale)
		trans, _ = uni.GetTranslator("en")

		standalone = govalidator.New(govalidator.WithRequiredStructEnabled())
		standalone.RegisterTagNameFunc(jsonTagName)
		_ = en_translations.RegisterDefaultTranslations(standalone, trans)

		if v, ok := binding.Validator.Engine().(*govalidator.Validate); ok {
			v.RegisterTagNameFunc(jsonTagName)
			_ = en_translations.RegisterDefaultTranslations(v, trans)
		}
	})
}

// TranslateErrors takes a binding/validation error and returns a map of
// field name to human-readable error message. If the error is not a
// validation error, it returns a single-key map with "detail".
func TranslateErrors(err error) map[string]string {
	fields := make(map[string]string)

	var ve govalidator.ValidationErrors
	if errors.As(err, &ve) {
		for _, fe := range ve {
			fields[fieldPath(fe)] = fe.Translate(trans)
		}
		return fields
	}

	fields["detail"] = err.Error()
	return fields
}

// Bind binds and validates the request body into dst.
// Returns nil on success or a translated field error map on failure.
func Bind(c *gin.Context, dst interface{}) map[string]string {
	if err := c.ShouldBindJSON(dst); err != nil {
		return TranslateErrors(err)
	}
	return nil
}

// Struct validates v using its `validate` tags. The returned error lists every
// failing field, sorted, e.g. "questions[1].options: options must contain at least 2 items".
func Struct(v interface{}) error {
	Setup()
	err := standalone.Struct(v)
	if err == nil {
		return nil
	}

	fields := TranslateErrors(err)
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s: %s", k, fields[k]))
	}
	return errors.New(strings.Join(parts, "; "))
}

// fieldPath drops the root struct name from the namespace so nested fields read
// like JSON paths.
func fieldPath(fe govalidator.FieldError) string {
	ns := fe.Namespace()
	if i := strings.IndexByte(ns, '.'); i >= 0 {
		return ns[i+1:]
	}
	return fe.Field()
}
