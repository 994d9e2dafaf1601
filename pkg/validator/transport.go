package validator

import (
	"errors"
	"fmt"
	"time"

	"github.com/campusportal/transport-backend/internal/models"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
)

// DateLayout is the wire format of calendar dates (start_date and friends)
const DateLayout = "2006-01-02"

// ErrEngineUnavailable is returned when gin's binding validator is not validator/v10
var ErrEngineUnavailable = errors.New("binding validator is not go-playground/validator")

// RegisterBindingValidations adds the transport tags to gin's binding engine:
//
//	weekday    a known lowercase day name ("saturday" ... "friday")
//	plan_type  monthly or term
//	ymd_date   a YYYY-MM-DD calendar date
func RegisterBindingValidations() error {
	v, ok := binding.Validator.Engine().(*validator.Validate)
	if !ok {
		return ErrEngineUnavailable
	}
	return Register(v)
}

// Register adds the transport tags to v
func Register(v *validator.Validate) error {
	tags := map[string]validator.Func{
		"weekday":   validateWeekday,
		"plan_type": validatePlanType,
		"ymd_date":  validateDate,
	}
	for tag, fn := range tags {
		if err := v.RegisterValidation(tag, fn); err != nil {
			return fmt.Errorf("failed to register %s validation: %w", tag, err)
		}
	}
	return nil
}

func validateWeekday(fl validator.FieldLevel) bool {
	day, ok := models.ParseWeekday(fl.Field().String())
	return ok && string(day) == fl.Field().String()
}

func validatePlanType(fl validator.FieldLevel) bool {
	return models.PlanType(fl.Field().String()).IsValid()
}

func validateDate(fl validator.FieldLevel) bool {
	_, err := time.Parse(DateLayout, fl.Field().String())
	return err == nil
}

// FieldErrors flattens validation errors into field -> failed tag. The second
// return is false when err is not a validation error.
func FieldErrors(err error) (map[string]string, bool) {
	var ve validator.ValidationErrors
	if !errors.As(err, &ve) {
		return nil, false
	}

	fields := make(map[string]string, len(ve))
	for _, fieldErr := range ve {
		fields[fieldErr.Field()] = fieldErr.Tag()
	}
	return fields, true
}
