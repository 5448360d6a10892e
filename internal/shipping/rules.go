package shipping

import (
	"errors"
	"fmt"

	"storefront/internal/models"
)

// ErrInvalidRule is wrapped by every rule-set validation failure
var ErrInvalidRule = errors.New("shipping: invalid rule")

// ValidateRules checks a rule set before it is stored: every rule needs a target
// with a value, a non-negative cost and a sane delivery range, and (kind, value)
// pairs must be unique after place-name normalization. Non-empty ids must be unique.
func ValidateRules(rules []models.ShippingRule) error {
	var errs []error
	seen := make(map[string]int, len(rules))
	ids := make(map[string]int, len(rules))

	for i, rule := range rules {
		if rule.ID != "" {
			if first, dup := ids[rule.ID]; dup {
				errs = append(errs, fmt.Errorf("%w: rule %d reuses id %q of rule %d", ErrInvalidRule, i, rule.ID, first))
			} else {
				ids[rule.ID] = i
			}
		}
		if rule.Target == nil {
			errs = append(errs, fmt.Errorf("%w: rule %d has no target", ErrInvalidRule, i))
			continue
		}

		value := NormalizePlace(rule.Target.Value())
		if value == "" {
			errs = append(errs, fmt.Errorf("%w: rule %d has an empty %s", ErrInvalidRule, i, rule.Target.Kind()))
		}
		if rule.Cost.IsNegative() {
			errs = append(errs, fmt.Errorf("%w: rule %d has a negative cost", ErrInvalidRule, i))
		}
		if rule.DeliveryDays.Min < 0 || rule.DeliveryDays.Max < rule.DeliveryDays.Min {
			errs = append(errs, fmt.Errorf("%w: rule %d has delivery days %d-%d",
				ErrInvalidRule, i, rule.DeliveryDays.Min, rule.DeliveryDays.Max))
		}

		if value == "" {
			continue
		}
		key := string(rule.Target.Kind()) + "|" + value
		if first, dup := seen[key]; dup {
			errs = append(errs, fmt.Errorf("%w: rule %d duplicates rule %d (%s %q)",
				ErrInvalidRule, i, first, rule.Target.Kind(), rule.Target.Value()))
			continue
		}
		seen[key] = i
	}

	return errors.Join(errs...)
}
