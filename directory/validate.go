package directory

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// validateRequest checks req's validate tags and reports failures as
// KindInvalidRequest.
func validateRequest(op string, req any) error {
	if err := validate.Struct(req); err != nil {
		return Errorf(KindInvalidRequest, op, nil, "%s", formatValidationError(err))
	}
	return nil
}

func formatValidationError(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	msgs := make([]string, 0, len(verrs))
	for _, e := range verrs {
		msgs = append(msgs, formatFieldError(e))
	}
	return strings.Join(msgs, "; ")
}

func formatFieldError(e validator.FieldError) string {
	field := e.Namespace()
	if i := strings.IndexByte(field, '.'); i >= 0 {
		field = field[i+1:]
	}
	switch e.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "min":
		return fmt.Sprintf("%s must have at least %s entries", field, e.Param())
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", field, e.Param())
	default:
		return fmt.Sprintf("%s is invalid", field)
	}
}

// cleanName trims name and checks its length.
func (s *Service) cleanName(op, name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", invalid(op, "name is required")
	}
	if n := len([]rune(name)); n > s.cfg.MaxNameLength {
		return "", invalid(op, "name has %d characters, at most %d allowed", n, s.cfg.MaxNameLength)
	}
	return name, nil
}

// uniqueIDs returns ids without repeats, keeping first occurrences.
func uniqueIDs(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}
