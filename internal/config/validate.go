package config

import (
	"errors"
	"fmt"
	"net"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	en_translations "github.com/go-playground/validator/v10/translations/en"
)

var durationType = reflect.TypeOf(time.Duration(0))

// Validate - checks value ranges, every violation is reported with its TOML key.
func (c *Config) Validate() error {
	validate, trans, err := newValidator()
	if err != nil {
		return fmt.Errorf("config.Validate: %w", err)
	}

	err = validate.Struct(c)
	if err == nil {
		return nil
	}
	var errs validator.ValidationErrors
	if !errors.As(err, &errs) {
		return fmt.Errorf("config.Validate: %w", err)
	}
	list := make([]error, 0, len(errs))
	for _, fe := range errs {
		key := strings.TrimPrefix(fe.Namespace(), "Config.")
		list = append(list, fmt.Errorf("config: %s: %s", key, fe.Translate(trans)))
	}
	return errors.Join(list...)
}

func newValidator() (*validator.Validate, ut.Translator, error) {
	validate := validator.New()
	validate.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("toml"), ",")
		if name == "-" {
			return ""
		}
		return name
	})

	en := en.New()
	uni := ut.New(en, en)
	trans, _ := uni.GetTranslator("en")
	if err := en_translations.RegisterDefaultTranslations(validate, trans); err != nil {
		return nil, nil, err
	}

	custom := []struct {
		tag     string
		fn      validator.Func
		message string
	}{
		{"listen", isListenAddress, "{0} must be host:port with port 0..65535"},
		{"min_duration", isMinDuration, "{0} must be {1} or greater"},
	}
	for _, c := range custom {
		if err := validate.RegisterValidation(c.tag, c.fn); err != nil {
			return nil, nil, err
		}
		message := c.message
		err := validate.RegisterTranslation(
			c.tag,
			trans,
			func(ut ut.Translator) error {
				return ut.Add(c.tag, message, true)
			},
			func(ut ut.Translator, fe validator.FieldError) string {
				t, _ := ut.T(fe.Tag(), fe.Field(), fe.Param())
				return t
			},
		)
		if err != nil {
			return nil, nil, err
		}
	}
	return validate, trans, nil
}

// isListenAddress - host:port where host is empty, IP (IPv6 in brackets) or hostname and port is 0..65535.
func isListenAddress(fl validator.FieldLevel) bool {
	host, port, err := net.SplitHostPort(fl.Field().String())
	if err != nil {
		return false
	}
	n, err := strconv.ParseUint(port, 10, 16)
	if err != nil || strconv.FormatUint(n, 10) != port {
		return false
	}
	if host == "" || net.ParseIP(host) != nil {
		return true
	}
	return validator.New().Var(host, "hostname_rfc1123") == nil
}

// isMinDuration - duration field is not less than the duration given as param.
func isMinDuration(fl validator.FieldLevel) bool {
	field := fl.Field()
	if field.Type() != durationType {
		return false
	}
	limit, err := time.ParseDuration(fl.Param())
	if err != nil {
		return false
	}
	return time.Duration(field.Int()) >= limit
}
