package domain

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// Relation names a derived relationship between a case and a knowledge-base entity.
type Relation string

const (
	RelHasCondition           Relation = "has-condition"
	RelRequiresMedication     Relation = "requires-medication"
	RelContraindicatedFor     Relation = "contraindicated-for"
	RelHasRiskCategory        Relation = "has-risk-category"
	RelHasSeverity            Relation = "has-severity"
	RelRequiresRecommendation Relation = "requires-recommendation"
)

// Relations is the fixed set of relations read back from the engine, in trace order.
var Relations = []Relation{
	RelHasCondition,
	RelRequiresMedication,
	RelContraindicatedFor,
	RelHasRiskCategory,
	RelHasSeverity,
	RelRequiresRecommendation,
}

// SingleValued reports whether at most one member of r is meaningful.
func (r Relation) SingleValued() bool {
	return r == RelHasRiskCategory || r == RelHasSeverity
}

// Valid reports whether r belongs to the fixed relation set.
func (r Relation) Valid() bool {
	for _, known := range Relations {
		if r == known {
			return true
		}
	}
	return false
}

// EntityRef identifies an entity derived for a case together with its
// declared types in declaration order.
type EntityRef struct {
	ID    string   `json:"id"`
	Types []string `json:"types,omitempty"`
}

// Derived maps each relation to its ordered members.
type Derived map[Relation][]EntityRef

// Values is an annotation value that may be declared as a scalar or a list.
type Values []string

// UnmarshalYAML accepts both `key: value` and `key: [a, b]`.
func (v *Values) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		*v = Values{node.Value}
		return nil
	case yaml.SequenceNode:
		var items []string
		if err := node.Decode(&items); err != nil {
			return err
		}
		*v = items
		return nil
	}
	return fmt.Errorf("annotation must be a scalar or a sequence (line %d)", node.Line)
}

// First returns the first non-empty element.
func (v Values) First() (string, bool) {
	for _, s := range v {
		if s != "" {
			return s, true
		}
	}
	return "", false
}

// Annotations holds named metadata declared on an instance or class.
type Annotations map[string]Values

// Entity is a knowledge-base individual.
type Entity struct {
	ID          string      `yaml:"id" json:"id"`
	Types       []string    `yaml:"types" json:"types"`
	Annotations Annotations `yaml:"annotations" json:"annotations,omitempty"`
}

// Ref returns the entity as a reference.
func (e *Entity) Ref() EntityRef {
	return EntityRef{ID: e.ID, Types: append([]string(nil), e.Types...)}
}

// Class is a knowledge-base class.
type Class struct {
	Name        string      `yaml:"name" json:"name"`
	Parents     []string    `yaml:"parents" json:"parents,omitempty"`
	Annotations Annotations `yaml:"annotations" json:"annotations,omitempty"`
}

// PropertyKind distinguishes literal-valued from entity-valued properties.
type PropertyKind string

const (
	DataProperty   PropertyKind = "data"
	ObjectProperty PropertyKind = "object"
)

// Property is a knowledge-base property with its human-readable label and comment.
type Property struct {
	Name    string       `yaml:"name" json:"name"`
	Kind    PropertyKind `yaml:"kind" json:"kind"`
	Label   string       `yaml:"label" json:"label,omitempty"`
	Comment string       `yaml:"comment" json:"comment,omitempty"`
}

// KnowledgeStats counts the kinds of knowledge-base elements.
type KnowledgeStats struct {
	Classes          int `json:"classes"`
	ObjectProperties int `json:"object_properties"`
	DataProperties   int `json:"data_properties"`
	Individuals      int `json:"individuals"`
	Rules            int `json:"swrl_rules"`
}
