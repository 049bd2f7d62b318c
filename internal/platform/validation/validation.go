// Package validation plugs go-playground/validator into echo and adds the
// tags used by request payloads: "phone" (libphonenumber) and "clock"
// (OPD times such as "09:30" or "9 AM").
package validation

import (
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/nyaruka/phonenumbers"
)

// ClockLayouts are the accepted spellings of a time of day.
var ClockLayouts = []string{"15:04", "3:04 PM", "3 PM", "03 PM", "3PM"}

// ParseClock parses a time of day in any of ClockLayouts and returns it
// normalised to "15:04".
func ParseClock(s string) (string, error) {
	s = strings.ToUpper(strings.TrimSpace(s))
	for _, layout := range ClockLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.Format("15:04"), nil
		}
	}
	return "", fmt.Errorf("invalid time %q, expected HH:MM or H AM/PM", s)
}

// Validator implements echo.Validator.
type Validator struct {
	v             *validator.Validate
	defaultRegion string
}

// New builds a Validator. Phone numbers without a country prefix are
// parsed against defaultRegion (ISO 3166 alpha-2, e.g. "IN").
func New(defaultRegion string) *Validator {
	v := validator.New(validator.WithRequiredStructEnabled())
	out := &Validator{v: v, defaultRegion: strings.ToUpper(defaultRegion)}
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	_ = v.RegisterValidation("phone", out.validPhone)
	_ = v.RegisterValidation("clock", func(fl validator.FieldLevel) bool {
		_, err := ParseClock(fl.Field().String())
		return err == nil
	})
	return out
}

func (cv *Validator) validPhone(fl validator.FieldLevel) bool {
	return cv.ValidPhone(fl.Field().String())
}

// ValidPhone reports whether number is a dialable phone number.
func (cv *Validator) ValidPhone(number string) bool {
	num, err := phonenumbers.Parse(number, cv.defaultRegion)
	if err != nil {
		return false
	}
	return phonenumbers.IsValidNumber(num)
}

// NormalizePhone returns number in E.164 form.
func (cv *Validator) NormalizePhone(number string) (string, error) {
	num, err := phonenumbers.Parse(number, cv.defaultRegion)
	if err != nil {
		return "", err
	}
	return phonenumbers.Format(num, phonenumbers.E164), nil
}

// Validate returns a 400 listing the failing fields.
func (cv *Validator) Validate(i interface{}) error {
	err := cv.v.Struct(i)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, describe(fe))
	}
	return echo.NewHTTPError(http.StatusBadRequest, strings.Join(msgs, "; "))
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", fe.Field())
	case "phone":
		return fmt.Sprintf("%s is not a valid phone number", fe.Field())
	case "clock":
		return fmt.Sprintf("%s must be a time such as 09:30 or 9 AM", fe.Field())
	case "email":
		return fmt.Sprintf("%s is not a valid email", fe.Field())
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", fe.Field(), fe.Param())
	case "gte", "min":
		return fmt.Sprintf("%s must be at least %s", fe.Field(), fe.Param())
	case "lte", "max":
		return fmt.Sprintf("%s must be at most %s", fe.Field(), fe.Param())
	default:
		return fmt.Sprintf("%s failed %s validation", fe.Field(), fe.Tag())
	}
}
