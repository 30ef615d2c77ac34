// Package knowledge loads the cardiovascular knowledge base and provides the
// local rule-based reasoning engine that runs against it.
package knowledge

import (
	_ "embed"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/cvd-expert-server/internal/domain"
)

//go:embed data/cvd.yaml
var defaultKnowledge []byte

// DefaultNamespace is used when the knowledge file does not declare one.
const DefaultNamespace = "http://www.cvd-expert-system.org/ontology#"

type document struct {
	Namespace  string            `yaml:"namespace"`
	Classes    []domain.Class    `yaml:"classes"`
	Instances  []domain.Entity   `yaml:"instances"`
	Properties []domain.Property `yaml:"properties"`
	Rules      []Rule            `yaml:"rules"`
}

// Base is an immutable, indexed knowledge base.
type Base struct {
	namespace string

	classes    map[string]*domain.Class
	classOrder []string

	instances     map[string]*domain.Entity
	instanceOrder []string

	properties map[string]*domain.Property
	propOrder  []string

	rules []Rule
}

// Load reads the knowledge base at path, or the built-in one when path is empty.
func Load(path string) (*Base, error) {
	if path == "" {
		return Parse(defaultKnowledge)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: reading %s: %v", domain.ErrKnowledgeBaseUnavailable, path, err)
	}
	return Parse(data)
}

// Parse builds a Base from YAML and validates cross references.
func Parse(data []byte) (*Base, error) {
	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: decoding knowledge base: %v", domain.ErrKnowledgeBaseUnavailable, err)
	}

	b := &Base{
		namespace:  doc.Namespace,
		classes:    make(map[string]*domain.Class, len(doc.Classes)),
		instances:  make(map[string]*domain.Entity, len(doc.Instances)),
		properties: make(map[string]*domain.Property, len(doc.Properties)),
		rules:      doc.Rules,
	}
	if b.namespace == "" {
		b.namespace = DefaultNamespace
	}

	for i := range doc.Classes {
		c := &doc.Classes[i]
		if c.Name == "" {
			return nil, fmt.Errorf("%w: class #%d has no name", domain.ErrKnowledgeBaseUnavailable, i)
		}
		if _, dup := b.classes[c.Name]; dup {
			return nil, fmt.Errorf("%w: duplicate class %q", domain.ErrKnowledgeBaseUnavailable, c.Name)
		}
		b.classes[c.Name] = c
		b.classOrder = append(b.classOrder, c.Name)
	}
	for i := range doc.Instances {
		e := &doc.Instances[i]
		if e.ID == "" {
			return nil, fmt.Errorf("%w: instance #%d has no id", domain.ErrKnowledgeBaseUnavailable, i)
		}
		if _, dup := b.instances[e.ID]; dup {
			return nil, fmt.Errorf("%w: duplicate instance %q", domain.ErrKnowledgeBaseUnavailable, e.ID)
		}
		b.instances[e.ID] = e
		b.instanceOrder = append(b.instanceOrder, e.ID)
	}
	for i := range doc.Properties {
		p := &doc.Properties[i]
		if p.Kind == "" {
			p.Kind = domain.DataProperty
		}
		b.properties[p.Name] = p
		b.propOrder = append(b.propOrder, p.Name)
	}

	if err := b.validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrKnowledgeBaseUnavailable, err)
	}
	return b, nil
}

func (b *Base) validate() error {
	for _, name := range b.classOrder {
		for _, parent := range b.classes[name].Parents {
			if _, ok := b.classes[parent]; !ok {
				return fmt.Errorf("class %q: unknown parent %q", name, parent)
			}
		}
	}
	for _, id := range b.instanceOrder {
		for _, t := range b.instances[id].Types {
			if _, ok := b.classes[t]; !ok {
				return fmt.Errorf("instance %q: unknown type %q", id, t)
			}
		}
	}
	for i := range b.rules {
		if err := b.rules[i].validate(b); err != nil {
			return err
		}
	}
	return nil
}

// Namespace returns the IRI prefix of the knowledge base.
func (b *Base) Namespace() string {
	return b.namespace
}

// LookupInstance implements domain.KnowledgeAccessor.
func (b *Base) LookupInstance(id string) (*domain.Entity, bool) {
	e, ok := b.instances[id]
	return e, ok
}

// LookupClass implements domain.KnowledgeAccessor.
func (b *Base) LookupClass(name string) (*domain.Class, bool) {
	c, ok := b.classes[name]
	return c, ok
}

// InstancesOf returns the instances whose declared types are class or one of
// its subclasses, in declaration order.
func (b *Base) InstancesOf(class string) []*domain.Entity {
	if _, ok := b.classes[class]; !ok {
		return nil
	}
	var out []*domain.Entity
	for _, id := range b.instanceOrder {
		e := b.instances[id]
		if b.IsA(e.Types, class) {
			out = append(out, e)
		}
	}
	return out
}

// IsA reports whether any of types is class or a descendant of it.
func (b *Base) IsA(types []string, class string) bool {
	for _, t := range types {
		if b.subclassOf(t, class, map[string]bool{}) {
			return true
		}
	}
	return false
}

func (b *Base) subclassOf(name, target string, seen map[string]bool) bool {
	if name == target {
		return true
	}
	if seen[name] {
		return false
	}
	seen[name] = true
	c, ok := b.classes[name]
	if !ok {
		return false
	}
	for _, p := range c.Parents {
		if b.subclassOf(p, target, seen) {
			return true
		}
	}
	return false
}

// Property returns a property declaration by name.
func (b *Base) Property(name string) (*domain.Property, bool) {
	p, ok := b.properties[name]
	return p, ok
}

// Rules returns the declared rules.
func (b *Base) Rules() []Rule {
	return b.rules
}

// Stats counts the knowledge-base elements.
func (b *Base) Stats() domain.KnowledgeStats {
	s := domain.KnowledgeStats{
		Classes:     len(b.classes),
		Individuals: len(b.instances),
		Rules:       len(b.rules),
	}
	for _, name := range b.propOrder {
		if b.properties[name].Kind == domain.ObjectProperty {
			s.ObjectProperties++
		} else {
			s.DataProperties++
		}
	}
	return s
}
