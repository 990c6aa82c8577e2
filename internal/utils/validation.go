package utils

import (
	"errors"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/mautops/shipchange-gin/internal/errs"
)

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

// Validator 返回共享的结构体校验器
func Validator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
		_ = validate.RegisterValidation("notblank", func(fl validator.FieldLevel) bool {
			return strings.TrimSpace(fl.Field().String()) != ""
		})
	})
	return validate
}

// ValidateStruct 按 validate 标签校验结构体，失败时返回 *errs.ValidationError
func ValidateStruct(v interface{}) error {
	err := Validator().Struct(v)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return err
	}

	ve := &errs.ValidationError{}
	for _, fe := range fieldErrs {
		ve.Fields = append(ve.Fields, errs.FieldError{
			Field:   fe.Field(),
			Message: describeTag(fe),
		})
	}
	return ve
}

func describeTag(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required", "notblank":
		return "is required"
	case "max":
		return "must be at most " + fe.Param() + " characters"
	case "email":
		return "must be a valid email address"
	default:
		return "failed " + fe.Tag() + " validation"
	}
}

// TrimAll 去除多个字符串字段的首尾空白
func TrimAll(fields ...*string) {
	for _, f := range fields {
		if f != nil {
			*f = strings.TrimSpace(*f)
		}
	}
}
