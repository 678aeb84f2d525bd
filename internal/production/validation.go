package production

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/odyssey-erp/floorflow/internal/production/floors"
)

// DefaultMaxPlannedQuantity bounds planned quantity when no limit is configured.
const DefaultMaxPlannedQuantity = 1_000_000

var articleCodePattern = regexp.MustCompile(`^[A-Z0-9]+(?:-[A-Z0-9]+)*$`)

func newValidator() *validator.Validate {
	v := validator.New()
	_ = v.RegisterValidation("articlecode", func(fl validator.FieldLevel) bool {
		return articleCodePattern.MatchString(fl.Field().String())
	})
	_ = v.RegisterValidation("routingmode", func(fl validator.FieldLevel) bool {
		return floors.RoutingMode(fl.Field().String()).Valid()
	})
	return v
}

// ValidateCreateInput checks a creation request against the article rules.
func ValidateCreateInput(v *validator.Validate, input CreateArticleInput, maxPlanned int) error {
	if maxPlanned <= 0 {
		maxPlanned = DefaultMaxPlannedQuantity
	}
	if err := v.Struct(input); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
			msgs := make([]string, 0, len(fieldErrs))
			for _, fe := range fieldErrs {
				msgs = append(msgs, fmt.Sprintf("%s failed %s", fe.Field(), fe.Tag()))
			}
			return fmt.Errorf("%w: %s", ErrInvalidInput, strings.Join(msgs, "; "))
		}
		return fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	if input.PlannedQuantity > maxPlanned {
		return &ConstraintError{
			Kind:   ErrOutOfRange,
			Field:  "plannedQuantity",
			Detail: fmt.Sprintf("%d exceeds limit %d", input.PlannedQuantity, maxPlanned),
		}
	}
	return nil
}
