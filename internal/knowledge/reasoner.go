package knowledge

import (
	"context"
	"sort"

	"github.com/sirupsen/logrus"

	"github.com/cvd-expert-server/internal/domain"
)

// maxPasses bounds forward chaining. Each rule fires at most once per case,
// so the fixpoint is always reached within len(rules)+1 passes.
const maxPasses = 64

// Reasoner is the local forward-chaining engine over the knowledge-base rules.
type Reasoner struct {
	base   *Base
	rules  []Rule
	logger *logrus.Logger
}

// NewReasoner orders the rules by salience, highest first, keeping file order on ties.
func NewReasoner(base *Base, logger *logrus.Logger) *Reasoner {
	rules := append([]Rule(nil), base.Rules()...)
	sort.SliceStable(rules, func(i, j int) bool {
		return rules[i].Salience > rules[j].Salience
	})
	return &Reasoner{base: base, rules: rules, logger: logger}
}

// Name implements domain.Engine.
func (r *Reasoner) Name() string {
	return "local-rules"
}

type assertion struct {
	ref      domain.EntityRef
	salience int
}

// session is the working memory of one inference run.
type session struct {
	c       *domain.Case
	base    *Base
	derived map[domain.Relation][]assertion
}

func (s *session) has(rel domain.Relation, id string) bool {
	for _, a := range s.derived[rel] {
		if a.ref.ID == id {
			return true
		}
	}
	return false
}

func (s *session) assert(rel domain.Relation, e *domain.Entity, salience int) bool {
	if s.has(rel, e.ID) {
		return false
	}
	s.derived[rel] = append(s.derived[rel], assertion{ref: e.Ref(), salience: salience})
	return true
}

// Infer implements domain.Engine. It runs the rules to a fixpoint.
func (r *Reasoner) Infer(ctx context.Context, c *domain.Case) (domain.Derived, error) {
	s := &session{c: c, base: r.base, derived: map[domain.Relation][]assertion{}}
	fired := make([]bool, len(r.rules))

	for pass := 0; pass < maxPasses; pass++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		changed := false
		for i := range r.rules {
			if fired[i] || !s.holdsAll(r.rules[i].When) {
				continue
			}
			fired[i] = true
			changed = true
			for _, concl := range r.rules[i].Then {
				e, _ := r.base.LookupInstance(concl.Entity)
				s.assert(concl.Relation, e, r.rules[i].Salience)
			}
			r.logger.WithFields(logrus.Fields{
				"case_id": c.ID,
				"rule":    r.rules[i].Name,
			}).Debug("Rule fired")
		}
		if !changed {
			break
		}
	}

	out := make(domain.Derived, len(s.derived))
	for rel, members := range s.derived {
		if rel.SingleValued() {
			sort.SliceStable(members, func(i, j int) bool {
				return members[i].salience > members[j].salience
			})
		}
		refs := make([]domain.EntityRef, len(members))
		for i, a := range members {
			refs[i] = a.ref
		}
		out[rel] = refs
	}
	return out, nil
}

func (s *session) holdsAll(conds []Condition) bool {
	for i := range conds {
		if !s.holds(&conds[i]) {
			return false
		}
	}
	return true
}

func (s *session) holds(c *Condition) bool {
	switch {
	case c.Slot != "":
		spec, _ := domain.SlotByName(c.Slot)
		v, ok := spec.Value(s.c)
		if !ok {
			return false
		}
		if c.Op == "exists" {
			return true
		}
		return comparisons[c.Op](v, c.Value)
	case c.Gender != "":
		want, _ := domain.ParseGender(c.Gender)
		return s.c.Demographics.Gender != nil && *s.c.Demographics.Gender == want
	case c.Fact != "":
		return s.c.HasFact(c.Fact)
	case c.Derived != nil:
		for _, a := range s.derived[c.Derived.Relation] {
			if c.Derived.Entity != "" && a.ref.ID != c.Derived.Entity {
				continue
			}
			if c.Derived.Class != "" && !s.base.IsA(a.ref.Types, c.Derived.Class) {
				continue
			}
			return true
		}
		return false
	case len(c.Any) > 0:
		for i := range c.Any {
			if s.holds(&c.Any[i]) {
				return true
			}
		}
		return false
	case c.Not != nil:
		return !s.holds(c.Not)
	}
	return false
}
