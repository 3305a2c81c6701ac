package validator

import (
	"fmt"

	"github.com/go-playground/validator/v10"
)

// Validator wraps go-playground struct validation with domain rules.
type Validator struct {
	validate *validator.Validate
}

func New() *Validator {
	validate := validator.New()
	registerDomainRules(validate)
	return &Validator{validate: validate}
}

// Validate runs struct-tag validation and returns ValidationErrors on failure.
func (v *Validator) Validate(s interface{}) error {
	err := v.validate.Struct(s)
	if err == nil {
		return nil
	}
	if ve := ToValidationErrors(err); len(ve) > 0 {
		return ve
	}
	return err
}

// ValidationError describes one failed field rule.
type ValidationError struct {
	Field   string      `json:"field"`
	Message string      `json:"message"`
	Value   interface{} `json:"value,omitempty"`
	Rule    string      `json:"rule,omitempty"`
}

type ValidationErrors []ValidationError

func (ve ValidationErrors) Error() string {
	if len(ve) == 0 {
		return "validation failed"
	}
	if len(ve) == 1 {
		return fmt.Sprintf("validation failed: %s %s", ve[0].Field, ve[0].Message)
	}
	return fmt.Sprintf("validation failed: %d field errors", len(ve))
}

// ToValidationErrors converts go-playground errors into the domain shape.
func ToValidationErrors(err error) ValidationErrors {
	var result ValidationErrors
	if fieldErrors, ok := err.(validator.ValidationErrors); ok {
		for _, fe := range fieldErrors {
			result = append(result, ValidationError{
				Field:   fe.Field(),
				Message: messageForTag(fe),
				Value:   fe.Value(),
				Rule:    fe.Tag(),
			})
		}
	}
	return result
}

func messageForTag(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "min":
		return fmt.Sprintf("must be at least %s", fe.Param())
	case "max":
		return fmt.Sprintf("must be at most %s", fe.Param())
	case "oneof":
		return fmt.Sprintf("must be one of: %s", fe.Param())
	case "question_type":
		return "must be a supported question type"
	default:
		return fmt.Sprintf("failed %s validation", fe.Tag())
	}
}

func registerDomainRules(validate *validator.Validate) {
	// Closed set of gradable question types
	_ = validate.RegisterValidation("question_type", func(fl validator.FieldLevel) bool {
		switch fl.Field().String() {
		case "multiple_choice", "true_false", "fill_blank", "multi_select":
			return true
		}
		return false
	})
}
