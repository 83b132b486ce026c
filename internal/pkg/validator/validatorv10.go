package validator

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"reflect"
	"regexp"
	"strings"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	enTranslations "github.com/go-playground/validator/v10/translations/en"
	"github.com/shandysiswandi/queuetick/internal/pkg/strcase"
)

// Covers NATS subjects, Kafka/NSQ topics, AMQP queues, Redis keys and MQTT topics.
// A name may open with a wildcard token (">", "*.orders", "#", "+/orders").
var reQueueName = regexp.MustCompile(`^[A-Za-z0-9*>#+][A-Za-z0-9._:/#+*>\-]{0,247}$`)

// ErrTranslatorNotFound indicates the requested translator is unavailable.
var ErrTranslatorNotFound = errors.New("translator not found")

type rule struct {
	tag   string
	msg   string
	check func(string) bool
}

var rules = []rule{
	{
		tag:   "queuename",
		msg:   "{0} must be a valid queue name",
		check: reQueueName.MatchString,
	},
	{
		// Wildcards only make sense on the subscribing side.
		tag: "publishname",
		msg: "{0} must be a queue name without wildcards",
		check: func(s string) bool {
			return reQueueName.MatchString(s) && !strings.ContainsAny(s, "*>#+")
		},
	},
}

// V10Validator implements Validator using go-playground/validator v10.
type V10Validator struct {
	validate   *validator.Validate
	translator ut.Translator
}

// V10ValidationError maps a field (config key or snake_case name) to its message.
type V10ValidationError map[string]string

func (vs V10ValidationError) Error() string {
	if len(vs) == 0 {
		return "validation error"
	}
	b, err := json.Marshal(vs)
	if err != nil {
		return fmt.Sprintf("validation error (failed to marshal: %v)", err)
	}
	return string(b)
}

// NewV10Validator builds a validator with English messages and the queue
// name rules registered.
func NewV10Validator() (*V10Validator, error) {
	validate := validator.New(validator.WithRequiredStructEnabled())
	validate.RegisterTagNameFunc(fieldName)

	enLang := en.New()
	trans, ok := ut.New(enLang, enLang).GetTranslator("en")
	if !ok {
		return nil, ErrTranslatorNotFound
	}
	if err := enTranslations.RegisterDefaultTranslations(validate, trans); err != nil {
		return nil, err
	}
	for _, r := range rules {
		if err := register(validate, trans, r); err != nil {
			return nil, fmt.Errorf("rule %s: %w", r.tag, err)
		}
	}

	return &V10Validator{validate: validate, translator: trans}, nil
}

// Validate returns a V10ValidationError listing every failed field.
func (v *V10Validator) Validate(data any) error {
	err := v.validate.Struct(data)
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return err
	}

	out := make(V10ValidationError, len(fieldErrs))
	for _, fe := range fieldErrs {
		out[fe.Field()] = fe.Translate(v.translator)
	}
	return out
}

func fieldName(f reflect.StructField) string {
	if name, _, _ := strings.Cut(f.Tag.Get("config"), ","); name != "" && name != "-" {
		return name
	}
	return strcase.ToLowerSnake(f.Name)
}

func register(validate *validator.Validate, trans ut.Translator, r rule) error {
	err := validate.RegisterValidation(r.tag, func(fl validator.FieldLevel) bool {
		s, ok := fl.Field().Interface().(string)
		return ok && r.check(s)
	})
	if err != nil {
		return err
	}

	return validate.RegisterTranslation(r.tag, trans,
		func(t ut.Translator) error { return t.Add(r.tag, r.msg, false) },
		func(t ut.Translator, fe validator.FieldError) string {
			msg, err := t.T(fe.Tag(), fe.Field())
			if err != nil {
				slog.Warn("validator: translate failed", "tag", fe.Tag(), "error", err)
				return fe.Error()
			}
			return msg
		},
	)
}
