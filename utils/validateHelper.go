package utils

import (
	"errors"
	"reflect"
	"sort"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
)

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

func Validator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
		validate.RegisterTagNameFunc(jsonFieldName)
	})
	return validate
}

// ValidateStruct runs the struct's validate tags and reports every problem in
// one validation failure.
func ValidateStruct(v any) error {
	err := Validator().Struct(v)
	if err == nil {
		return nil
	}
	var validationErrors validator.ValidationErrors
	if !errors.As(err, &validationErrors) {
		return GenericFailure("invalid request", err)
	}
	fields := ProcessValidationErrors(validationErrors)
	problems := make([]string, 0, len(fields))
	for field, tag := range fields {
		problems = append(problems, field+" failed "+tag)
	}
	sort.Strings(problems)
	return &Failure{Kind: FailureKindValidation, Message: "invalid request: " + strings.Join(problems, ", "), Cause: err}
}

func ProcessValidationErrors(validationErrors validator.ValidationErrors) map[string]string {
	errorResponse := make(map[string]string)
	for _, ve := range validationErrors {
		errorResponse[ve.Namespace()[strings.Index(ve.Namespace(), ".")+1:]] = ve.Tag()
	}
	return errorResponse
}

func jsonFieldName(fld reflect.StructField) string {
	name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
	if name == "-" {
		return ""
	}
	if name == "" {
		return fld.Name
	}
	return name
}
