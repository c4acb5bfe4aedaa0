// Package forms turns raw form submissions into validated, typed records.
package forms

import (
	"errors"
	"fmt"
	"net/url"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/and161185/leadgate/internal/errs"
	"github.com/and161185/leadgate/internal/model"
)

// User-facing field messages.
const (
	MsgEmail         = "Please enter a valid email address."
	MsgMagnet        = "Please choose a valid resource."
	MsgConsent       = "Invalid consent value."
	MsgNewsletterAlt = "Please enter a valid email."
)

// Contact is a validated contact form submission.
type Contact struct {
	Name           string `form:"name" validate:"min=2,max=200"`
	Email          string `form:"email" validate:"required,email"`
	Company        string `form:"company" validate:"max=200"`
	Message        string `form:"message" validate:"min=20,max=10000"`
	PagePath       string `form:"pagePath" validate:"max=500"`
	Consent        bool   `form:"-"`
	TurnstileToken string `form:"-"`
}

// BookDemo is a validated demo request.
type BookDemo struct {
	Name           string `form:"name" validate:"min=2,max=200"`
	Email          string `form:"email" validate:"required,email"`
	Company        string `form:"company" validate:"max=200"`
	Message        string `form:"message" validate:"max=2000"`
	PagePath       string `form:"pagePath" validate:"max=500"`
	Consent        bool   `form:"-"`
	TurnstileToken string `form:"-"`
}

// Waitlist is a validated waitlist signup.
type Waitlist struct {
	Email          string `form:"email" validate:"required,email"`
	Name           string `form:"name" validate:"max=200"`
	Company        string `form:"company" validate:"max=200"`
	Message        string `form:"message" validate:"max=2000"`
	PagePath       string `form:"pagePath" validate:"max=500"`
	Consent        bool   `form:"-"`
	TurnstileToken string `form:"-"`
}

// Newsletter is a validated newsletter subscription.
type Newsletter struct {
	Email           string `form:"email" validate:"required,email"`
	PagePath        string `form:"pagePath" validate:"max=500"`
	SourcePlacement string `form:"sourcePlacement" validate:"max=200"`
	Consent         bool   `form:"-"`
	TurnstileToken  string `form:"-"`
}

// LeadMagnet is a validated gated-content request.
type LeadMagnet struct {
	Email          string `form:"email" validate:"required,email"`
	Magnet         string `form:"magnet" validate:"magnet"`
	PagePath       string `form:"pagePath" validate:"max=500"`
	Consent        bool   `form:"-"`
	TurnstileToken string `form:"-"`
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("form"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	_ = v.RegisterValidation("magnet", func(fl validator.FieldLevel) bool {
		_, ok := model.LookupMagnet(fl.Field().String())
		return ok
	})
	return v
}

// ParseContact validates a contact submission.
func ParseContact(v url.Values) (Contact, error) {
	f := Contact{
		Name:           text(v, "name"),
		Email:          email(v),
		Company:        text(v, "company"),
		Message:        text(v, "message"),
		PagePath:       text(v, "pagePath"),
		TurnstileToken: TurnstileToken(v),
	}
	var cerr error
	f.Consent, cerr = ParseConsent(v.Get("consent"))
	return f, check(&f, cerr, []string{"name", "email", "message"}, errs.MsgCheckEntries)
}

// ParseBookDemo validates a demo request.
func ParseBookDemo(v url.Values) (BookDemo, error) {
	f := BookDemo{
		Name:           text(v, "name"),
		Email:          email(v),
		Company:        text(v, "company"),
		Message:        text(v, "message"),
		PagePath:       text(v, "pagePath"),
		TurnstileToken: TurnstileToken(v),
	}
	var cerr error
	f.Consent, cerr = ParseConsent(v.Get("consent"))
	return f, check(&f, cerr, []string{"name", "email"}, errs.MsgCheckEntries)
}

// ParseWaitlist validates a waitlist signup.
func ParseWaitlist(v url.Values) (Waitlist, error) {
	f := Waitlist{
		Email:          email(v),
		Name:           text(v, "name"),
		Company:        text(v, "company"),
		Message:        text(v, "message"),
		PagePath:       text(v, "pagePath"),
		TurnstileToken: TurnstileToken(v),
	}
	var cerr error
	f.Consent, cerr = ParseConsent(v.Get("consent"))
	return f, check(&f, cerr, []string{"email"}, errs.MsgCheckEntries)
}

// ParseNewsletter validates a newsletter subscription.
func ParseNewsletter(v url.Values) (Newsletter, error) {
	f := Newsletter{
		Email:           email(v),
		PagePath:        text(v, "pagePath"),
		SourcePlacement: text(v, "sourcePlacement"),
		TurnstileToken:  TurnstileToken(v),
	}
	var cerr error
	f.Consent, cerr = ParseConsent(v.Get("consent"))
	return f, check(&f, cerr, []string{"email"}, MsgNewsletterAlt)
}

// ParseLeadMagnet validates a gated-content request.
func ParseLeadMagnet(v url.Values) (LeadMagnet, error) {
	f := LeadMagnet{
		Email:          email(v),
		Magnet:         text(v, "magnet"),
		PagePath:       text(v, "pagePath"),
		TurnstileToken: TurnstileToken(v),
	}
	var cerr error
	f.Consent, cerr = ParseConsent(v.Get("consent"))
	return f, check(&f, cerr, []string{"email", "magnet"}, errs.MsgCheckEntries)
}

// TurnstileToken returns the last non-empty turnstileToken value,
// falling back to the widget's default cf-turnstile-response field.
func TurnstileToken(v url.Values) string {
	if tok := lastNonEmpty(v["turnstileToken"]); tok != "" {
		return tok
	}
	return lastNonEmpty(v["cf-turnstile-response"])
}

func lastNonEmpty(vals []string) string {
	for i := len(vals) - 1; i >= 0; i-- {
		if s := strings.TrimSpace(vals[i]); s != "" {
			return s
		}
	}
	return ""
}

func text(v url.Values, key string) string {
	return strings.TrimSpace(v.Get(key))
}

func email(v url.Values) string {
	return strings.ToLower(text(v, "email"))
}

// check runs struct validation and merges the consent failure into one ordered error.
func check(s any, consentErr error, priority []string, fallback string) error {
	var fields []errs.FieldError
	if err := validate.Struct(s); err != nil {
		var ves validator.ValidationErrors
		if !errors.As(err, &ves) {
			return fmt.Errorf("validate: %w", err)
		}
		for _, fe := range ves {
			fields = append(fields, errs.FieldError{
				Field:   fe.Field(),
				Rule:    fe.Tag(),
				Message: message(fe),
			})
		}
	}
	if consentErr != nil {
		fields = append(fields, errs.FieldError{Field: "consent", Rule: "consent", Message: MsgConsent})
	}
	if len(fields) == 0 {
		return nil
	}
	ve := &errs.ValidationError{Fields: fields}
	ve.Message = pick(ve, priority, fallback)
	return ve
}

// pick chooses the user message: the first priority field that failed, else the first failure.
func pick(ve *errs.ValidationError, priority []string, fallback string) string {
	for _, name := range priority {
		if f, ok := ve.First(name); ok {
			return f.Message
		}
	}
	if len(ve.Fields) > 0 && ve.Fields[0].Message != "" {
		return ve.Fields[0].Message
	}
	return fallback
}

var labels = map[string]string{
	"name":            "Name",
	"company":         "Company",
	"message":         "Message",
	"pagePath":        "Page path",
	"sourcePlacement": "Source placement",
}

func message(fe validator.FieldError) string {
	switch fe.Field() {
	case "email":
		return MsgEmail
	case "magnet":
		return MsgMagnet
	}
	label, ok := labels[fe.Field()]
	if !ok {
		label = fe.Field()
	}
	switch fe.Tag() {
	case "min":
		return fmt.Sprintf("%s must be at least %s characters", label, fe.Param())
	case "max":
		return fmt.Sprintf("%s must be at most %s characters", label, fe.Param())
	}
	return label + " is invalid"
}
