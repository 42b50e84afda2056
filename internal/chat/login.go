package chat

import (
	"errors"
	"fmt"
	"unicode"
	"unicode/utf8"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	en_translations "github.com/go-playground/validator/v10/translations/en"

	"github.com/wtask/chatrelay/internal/chat/protocol"
)

// MaxUsernameLength - username limit in runes, display name is clipped to the same length.
const MaxUsernameLength = 32

type loginForm struct {
	Username string `validate:"required,max=32,handle"`
}

// loginChecker - syntax check of login attempts with human readable refusal reasons.
type loginChecker struct {
	validate *validator.Validate
	trans    ut.Translator
}

func newLoginChecker() (*loginChecker, error) {
	validate := validator.New()
	if err := validate.RegisterValidation("handle", isHandle); err != nil {
		return nil, fmt.Errorf("chat.newLoginChecker: %w", err)
	}

	en := en.New()
	uni := ut.New(en, en)
	trans, _ := uni.GetTranslator("en")
	if err := en_translations.RegisterDefaultTranslations(validate, trans); err != nil {
		return nil, fmt.Errorf("chat.newLoginChecker: %w", err)
	}
	err := validate.RegisterTranslation("handle", trans,
		func(t ut.Translator) error {
			return t.Add("handle", "{0} must not contain spaces or control characters", true)
		},
		func(t ut.Translator, fe validator.FieldError) string {
			s, _ := t.T("handle", fe.Field())
			return s
		},
	)
	if err != nil {
		return nil, fmt.Errorf("chat.newLoginChecker: %w", err)
	}

	return &loginChecker{validate: validate, trans: trans}, nil
}

// check - returns refusal reason or empty string if attempt is acceptable.
func (c *loginChecker) check(attempt protocol.LoginAttempt) string {
	err := c.validate.Struct(loginForm{Username: attempt.Username})
	if err == nil {
		return ""
	}
	var errs validator.ValidationErrors
	if errors.As(err, &errs) && len(errs) > 0 {
		return errs[0].Translate(c.trans)
	}
	return "invalid login"
}

func isHandle(fl validator.FieldLevel) bool {
	s := fl.Field().String()
	if !utf8.ValidString(s) {
		return false
	}
	for _, r := range s {
		if unicode.IsSpace(r) || !unicode.IsPrint(r) {
			return false
		}
	}
	return true
}
