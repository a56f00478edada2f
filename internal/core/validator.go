package core

import (
	"errors"
	"log/slog"
	"reflect"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"

	"bugspotter/internal/types"
)

var usernamePattern = regexp.MustCompile(`^[A-Za-z0-9_.-]+$`)

// Validator wraps go-playground/validator with the domain tags used by
// request DTOs. Field names in errors follow the json tags.
type Validator struct {
	validate *validator.Validate
	logger   *slog.Logger
}

// NewValidator creates a Validator and registers the custom tags:
//
//	username  letters, digits, '_', '.', '-'
//	plantype  monthly | yearly
func NewValidator(logger *slog.Logger) *Validator {
	v := validator.New(validator.WithRequiredStructEnabled())

	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		if name == "" {
			return fld.Name
		}
		return name
	})

	if err := v.RegisterValidation("username", func(fl validator.FieldLevel) bool {
		return usernamePattern.MatchString(fl.Field().String())
	}); err != nil && logger != nil {
		logger.Error("failed to register username validation", "error", err)
	}
	if err := v.RegisterValidation("plantype", func(fl validator.FieldLevel) bool {
		switch types.PlanType(fl.Field().String()) {
		case types.PlanMonthly, types.PlanYearly:
			return true
		}
		return false
	}); err != nil && logger != nil {
		logger.Error("failed to register plantype validation", "error", err)
	}

	return &Validator{validate: v, logger: logger}
}

// ValidateStruct validates s and returns a 400 AppError naming the first
// failing field. All failing fields are listed under details.fields.
func (v *Validator) ValidateStruct(s any) error {
	err := v.validate.Struct(s)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return types.NewAppError(types.ErrCodeValidationInvalidInput, "invalid request", err)
	}

	fields := make(map[string]any, len(verrs))
	for _, fe := range verrs {
		fields[fe.Field()] = fe.Tag()
	}

	first := verrs[0]
	code := types.ErrCodeValidationInvalidInput
	msg := first.Field() + " is invalid"
	if first.Tag() == "required" {
		code = types.ErrCodeValidationMissingField
		msg = first.Field() + " is required"
	}
	return types.NewAppErrorWithDetails(code, msg, err, map[string]any{"fields": fields})
}
