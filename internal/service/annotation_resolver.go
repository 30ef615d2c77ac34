package service

import (
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/cvd-expert-server/internal/domain"
)

// instanceSuffix is stripped from identifiers when deriving a display name.
const instanceSuffix = "_Instance"

// annotationKeys lists, per metadata field, the knowledge-base annotations
// that can supply it, in preference order.
var annotationKeys = map[domain.MetadataField][]string{
	domain.FieldDisplayName:        {"hasDisplayName"},
	domain.FieldSeverityOrPriority: {"hasSeverityLevel", "hasPriority"},
	domain.FieldCode:               {"hasICD10Code"},
	domain.FieldDescription:        {"hasDescription"},
	domain.FieldDose:               {"hasDose"},
	domain.FieldFrequency:          {"hasFrequency"},
	domain.FieldCategory:           {"hasCategory", "hasDrugClass"},
}

// AnnotationResolver resolves display metadata for derived entities.
//
// For every field the first source carrying it wins: the instance itself,
// then each declared type in declaration order. Only the display name has a
// final fallback, derived from the identifier text.
type AnnotationResolver struct {
	kb   domain.KnowledgeAccessor
	memo *lru.Cache[string, domain.MetadataRecord]
}

// NewAnnotationResolver creates a resolver. memoSize > 0 enables an LRU of
// resolved records for entities found in the knowledge base.
func NewAnnotationResolver(kb domain.KnowledgeAccessor, memoSize int) (*AnnotationResolver, error) {
	r := &AnnotationResolver{kb: kb}
	if memoSize > 0 {
		memo, err := lru.New[string, domain.MetadataRecord](memoSize)
		if err != nil {
			return nil, err
		}
		r.memo = memo
	}
	return r, nil
}

// Resolve returns the metadata record for ref.
func (r *AnnotationResolver) Resolve(ref domain.EntityRef) domain.MetadataRecord {
	key := ref.ID + "|" + strings.Join(ref.Types, ",")
	if r.memo != nil {
		if rec, ok := r.memo.Get(key); ok {
			return rec
		}
	}

	instance, known := r.kb.LookupInstance(ref.ID)
	types := ref.Types
	if len(types) == 0 && known {
		types = instance.Types
	}

	var rec domain.MetadataRecord
	for _, field := range domain.MetadataFields {
		if v, ok := r.lookup(instance, types, field); ok {
			rec = rec.With(field, v)
		}
	}
	if _, ok := rec.Get(domain.FieldDisplayName); !ok {
		rec = rec.With(domain.FieldDisplayName, DisplayNameFromID(ref.ID))
	}

	if r.memo != nil && known {
		r.memo.Add(key, rec)
	}
	return rec
}

func (r *AnnotationResolver) lookup(instance *domain.Entity, types []string, field domain.MetadataField) (string, bool) {
	keys := annotationKeys[field]
	if instance != nil {
		if v, ok := firstAnnotation(instance.Annotations, keys); ok {
			return v, true
		}
	}
	for _, t := range types {
		class, ok := r.kb.LookupClass(t)
		if !ok {
			continue
		}
		if v, ok := firstAnnotation(class.Annotations, keys); ok {
			return v, true
		}
	}
	return "", false
}

func firstAnnotation(annotations domain.Annotations, keys []string) (string, bool) {
	for _, k := range keys {
		if v, ok := annotations[k].First(); ok {
			return v, true
		}
	}
	return "", false
}

// DisplayNameFromID turns "Gagal_Jantung_Instance" into "Gagal Jantung".
func DisplayNameFromID(id string) string {
	return strings.ReplaceAll(strings.TrimSuffix(id, instanceSuffix), "_", " ")
}
