package stack

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/ezenkico/deploy-commander/sequencer/models"
)

var validate = validator.New()

var nameRegex = regexp.MustCompile(`^[a-z][a-z0-9_-]{0,62}$`)

func init() {
	validate.RegisterValidation("slug", func(fl validator.FieldLevel) bool {
		return nameRegex.MatchString(fl.Field().String())
	})
}

// Validate checks the structural rules of a decoded stack. Graph rules
// (cycles, conditions, port collisions) need resolved services and are
// checked by the sequencer.
func Validate(s *models.Stack) error {
	if err := validate.Struct(s); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, describe(fe))
			}
			return fmt.Errorf("validation error: %s", strings.Join(msgs, "; "))
		}
		return fmt.Errorf("validation error: %w", err)
	}

	for _, name := range s.ServiceNames() {
		svc := s.Services[name]
		for dep := range svc.DependsOn {
			if _, ok := s.Services[dep]; !ok {
				return fmt.Errorf("validation error: service %q depends on unknown service %q", name, dep)
			}
		}
	}
	return nil
}

func describe(fe validator.FieldError) string {
	field := strings.TrimPrefix(fe.Namespace(), "Stack.")
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "required_without":
		return fmt.Sprintf("%s: one of image or build is required", field)
	case "excluded_with":
		return fmt.Sprintf("%s: image and build are mutually exclusive", field)
	case "slug":
		return fmt.Sprintf("%s: %q is not a valid name (lowercase letters, digits, '-' and '_')", field, fe.Value())
	case "min":
		return fmt.Sprintf("%s must have at least %s entries", field, fe.Param())
	default:
		return fmt.Sprintf("%s failed %q", field, fe.Tag())
	}
}
