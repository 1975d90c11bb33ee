package vectorstore

import (
	"github.com/qdrant/go-client/qdrant"

	"github.com/fyrsmithlabs/corpusd/internal/accessfilter"
	"github.com/fyrsmithlabs/corpusd/internal/tags"
)

// RenderQdrantFilter translates an access predicate into Qdrant's filter
// syntax. Conjunctions become Must clauses, disjunctions Should clauses,
// tag membership a keyword match, and the hierarchy gate a numeric range.
//
// MatchNone has no Qdrant representation; callers must short-circuit it
// before querying (see QdrantStore.Query).
func RenderQdrantFilter(pred accessfilter.Predicate) *qdrant.Filter {
	switch p := pred.(type) {
	case accessfilter.And:
		conditions := make([]*qdrant.Condition, 0, len(p.Terms))
		for _, t := range p.Terms {
			conditions = append(conditions, renderCondition(t))
		}
		return &qdrant.Filter{Must: conditions}
	case accessfilter.Or:
		conditions := make([]*qdrant.Condition, 0, len(p.Terms))
		for _, t := range p.Terms {
			conditions = append(conditions, renderCondition(t))
		}
		return &qdrant.Filter{Should: conditions}
	default:
		return &qdrant.Filter{Must: []*qdrant.Condition{renderCondition(pred)}}
	}
}

// renderCondition translates one predicate node into a Qdrant condition,
// wrapping nested boolean nodes in sub-filters.
func renderCondition(pred accessfilter.Predicate) *qdrant.Condition {
	switch p := pred.(type) {
	case accessfilter.TagIn:
		if len(p.Values) == 1 {
			return keywordCondition(p.Field.MetadataKey(), p.Values[0])
		}
		return &qdrant.Condition{
			ConditionOneOf: &qdrant.Condition_Field{
				Field: &qdrant.FieldCondition{
					Key: p.Field.MetadataKey(),
					Match: &qdrant.Match{
						MatchValue: &qdrant.Match_Keywords{
							Keywords: &qdrant.RepeatedStrings{Strings: p.Values},
						},
					},
				},
			},
		}
	case accessfilter.MaxLevel:
		return &qdrant.Condition{
			ConditionOneOf: &qdrant.Condition_Field{
				Field: &qdrant.FieldCondition{
					Key:   tags.MetaHierarchy,
					Range: &qdrant.Range{Lte: qdrant.PtrOf(float64(p.Level))},
				},
			},
		}
	default:
		// And/Or nest as sub-filters.
		return &qdrant.Condition{
			ConditionOneOf: &qdrant.Condition_Filter{
				Filter: RenderQdrantFilter(pred),
			},
		}
	}
}

// keywordCondition matches one payload key against one keyword value.
func keywordCondition(key, value string) *qdrant.Condition {
	return &qdrant.Condition{
		ConditionOneOf: &qdrant.Condition_Field{
			Field: &qdrant.FieldCondition{
				Key: key,
				Match: &qdrant.Match{
					MatchValue: &qdrant.Match_Keyword{Keyword: value},
				},
			},
		},
	}
}
