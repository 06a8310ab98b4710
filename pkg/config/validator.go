package config

import (
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/ulule/limiter/v3"
)

// RegisterCustomValidators registers the gnoskos-specific validation tags.
func RegisterCustomValidators(v *validator.Validate) error {
	return v.RegisterValidation("limiter_rate", validateLimiterRate)
}

// validateLimiterRate accepts "<limit>-<S|M|H|D>" rates such as "60-M".
func validateLimiterRate(fl validator.FieldLevel) bool {
	rate, err := limiter.NewRateFromFormatted(strings.TrimSpace(fl.Field().String()))
	return err == nil && rate.Limit > 0
}
