package validation

import (
	"strings"

	validatorv10 "github.com/go-playground/validator/v10"

	"meetsync/internal/availability"
)

// New returns a validator with the weekday and preference tags registered.
func New() *validatorv10.Validate {
	v := validatorv10.New()
	_ = v.RegisterValidation("weekday", validateWeekday)
	_ = v.RegisterValidation("preference", validatePreference)
	return v
}

func validateWeekday(fl validatorv10.FieldLevel) bool {
	day := strings.ToLower(strings.TrimSpace(fl.Field().String()))
	for _, d := range availability.Weekdays() {
		if string(d) == day {
			return true
		}
	}
	return false
}

func validatePreference(fl validatorv10.FieldLevel) bool {
	_, err := availability.ParsePreference(fl.Field().String())
	return err == nil
}
