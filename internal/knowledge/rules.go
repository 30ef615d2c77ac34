package knowledge

import (
	"fmt"

	"github.com/cvd-expert-server/internal/domain"
)

// Rule is a declarative production: when every condition holds for a case,
// each conclusion is asserted.
type Rule struct {
	Name     string       `yaml:"name"`
	Salience int          `yaml:"salience"`
	When     []Condition  `yaml:"when"`
	Then     []Conclusion `yaml:"then"`
}

// Condition is one premise of a rule. Exactly one of Slot, Gender, Fact,
// Derived, Any or Not is set.
type Condition struct {
	Slot  string  `yaml:"slot"`
	Op    string  `yaml:"op"`
	Value float64 `yaml:"value"`

	Gender string `yaml:"gender"`
	Fact   string `yaml:"fact"`

	Derived *DerivedMatch `yaml:"derived"`
	Any     []Condition   `yaml:"any"`
	Not     *Condition    `yaml:"not"`
}

// DerivedMatch holds when a relation already has a member that is Entity,
// or whose types fall under Class.
type DerivedMatch struct {
	Relation domain.Relation `yaml:"relation"`
	Entity   string          `yaml:"entity"`
	Class    string          `yaml:"class"`
}

// Conclusion asserts Entity as a member of Relation.
type Conclusion struct {
	Relation domain.Relation `yaml:"relation"`
	Entity   string          `yaml:"entity"`
}

var comparisons = map[string]func(a, b float64) bool{
	"<":  func(a, b float64) bool { return a < b },
	"<=": func(a, b float64) bool { return a <= b },
	">":  func(a, b float64) bool { return a > b },
	">=": func(a, b float64) bool { return a >= b },
	"==": func(a, b float64) bool { return a == b },
	"!=": func(a, b float64) bool { return a != b },
}

func (r *Rule) validate(b *Base) error {
	if r.Name == "" {
		return fmt.Errorf("rule without name")
	}
	if len(r.Then) == 0 {
		return fmt.Errorf("rule %q: no conclusions", r.Name)
	}
	for i := range r.When {
		if err := r.When[i].validate(b); err != nil {
			return fmt.Errorf("rule %q: %w", r.Name, err)
		}
	}
	for _, c := range r.Then {
		if !c.Relation.Valid() {
			return fmt.Errorf("rule %q: unknown relation %q", r.Name, c.Relation)
		}
		if _, ok := b.instances[c.Entity]; !ok {
			return fmt.Errorf("rule %q: unknown entity %q", r.Name, c.Entity)
		}
	}
	return nil
}

func (c *Condition) validate(b *Base) error {
	kinds := 0
	if c.Slot != "" {
		kinds++
		if _, ok := domain.SlotByName(c.Slot); !ok {
			return fmt.Errorf("unknown slot %q", c.Slot)
		}
		if _, ok := comparisons[c.Op]; !ok && c.Op != "exists" {
			return fmt.Errorf("slot %q: unknown operator %q", c.Slot, c.Op)
		}
	}
	if c.Gender != "" {
		kinds++
		if _, ok := domain.ParseGender(c.Gender); !ok {
			return fmt.Errorf("unknown gender %q", c.Gender)
		}
	}
	if c.Fact != "" {
		kinds++
	}
	if c.Derived != nil {
		kinds++
		if !c.Derived.Relation.Valid() {
			return fmt.Errorf("unknown relation %q", c.Derived.Relation)
		}
		if c.Derived.Class != "" {
			if _, ok := b.classes[c.Derived.Class]; !ok {
				return fmt.Errorf("unknown class %q", c.Derived.Class)
			}
		}
	}
	if len(c.Any) > 0 {
		kinds++
		for i := range c.Any {
			if err := c.Any[i].validate(b); err != nil {
				return err
			}
		}
	}
	if c.Not != nil {
		kinds++
		if err := c.Not.validate(b); err != nil {
			return err
		}
	}
	if kinds != 1 {
		return fmt.Errorf("condition must have exactly one kind, got %d", kinds)
	}
	return nil
}
