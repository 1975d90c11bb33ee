package vectorstore

import (
	"testing"

	"github.com/qdrant/go-client/qdrant"

	"github.com/fyrsmithlabs/corpusd/internal/accessfilter"
	"github.com/fyrsmithlabs/corpusd/internal/profile"
	"github.com/fyrsmithlabs/corpusd/internal/tags"
)

func TestRenderQdrantFilterShape(t *testing.T) {
	p := profile.New("u", 2, []string{"IT"}, nil, nil)
	filter := RenderQdrantFilter(accessfilter.Compile(p))

	// Top level: Must = [hierarchy range, grant disjunction].
	if len(filter.Must) != 2 {
		t.Fatalf("top-level Must has %d conditions, want 2", len(filter.Must))
	}

	rangeCond := filter.Must[0].GetField()
	if rangeCond == nil || rangeCond.Key != tags.MetaHierarchy {
		t.Fatalf("first condition is not the hierarchy gate: %v", filter.Must[0])
	}
	if rangeCond.Range == nil || rangeCond.Range.Lte == nil || *rangeCond.Range.Lte != 2 {
		t.Errorf("hierarchy gate range = %v, want lte 2", rangeCond.Range)
	}

	grants := filter.Must[1].GetFilter()
	if grants == nil {
		t.Fatalf("second condition is not a nested filter: %v", filter.Must[1])
	}
	if len(grants.Should) != 2 {
		t.Fatalf("grant disjunction has %d branches, want 2", len(grants.Should))
	}
}

func TestRenderQdrantFilterKeywordMembership(t *testing.T) {
	pred := accessfilter.TagIn{Field: accessfilter.FieldDepartment, Values: []string{"GENERAL", "IT"}}
	filter := RenderQdrantFilter(pred)

	if len(filter.Must) != 1 {
		t.Fatalf("Must has %d conditions, want 1", len(filter.Must))
	}
	field := filter.Must[0].GetField()
	if field == nil || field.Key != tags.MetaDepartment {
		t.Fatalf("condition = %v", filter.Must[0])
	}
	kw := field.Match.GetKeywords()
	if kw == nil || len(kw.Strings) != 2 {
		t.Errorf("keywords match = %v, want [GENERAL IT]", field.Match)
	}
}

func TestRenderQdrantFilterSingleValueUsesKeyword(t *testing.T) {
	pred := accessfilter.TagIn{Field: accessfilter.FieldRole, Values: []string{"GENERAL"}}
	filter := RenderQdrantFilter(pred)
	field := filter.Must[0].GetField()
	if field.Match.GetKeyword() != "GENERAL" {
		t.Errorf("single-value membership rendered as %v, want keyword match", field.Match)
	}
}

func TestRenderQdrantFilterNestedBranches(t *testing.T) {
	// A grant branch is And{dept-in, role-in}; it must nest as a sub-filter
	// with two Must conditions.
	branch := accessfilter.And{Terms: []accessfilter.Predicate{
		accessfilter.TagIn{Field: accessfilter.FieldDepartment, Values: []string{"GENERAL", "HR"}},
		accessfilter.TagIn{Field: accessfilter.FieldRole, Values: []string{"GENERAL"}},
	}}
	pred := accessfilter.Or{Terms: []accessfilter.Predicate{branch, branch}}

	filter := RenderQdrantFilter(pred)
	if len(filter.Should) != 2 {
		t.Fatalf("Should has %d conditions, want 2", len(filter.Should))
	}
	sub := filter.Should[0].GetFilter()
	if sub == nil || len(sub.Must) != 2 {
		t.Fatalf("branch did not render as nested Must pair: %v", filter.Should[0])
	}
}

// Every boolean primitive the compiler can emit has a rendering:
// conjunction, disjunction, equality, membership, numeric comparison.
func TestRenderQdrantFilterPrimitives(t *testing.T) {
	pred := accessfilter.And{Terms: []accessfilter.Predicate{
		accessfilter.MaxLevel{Level: 1},
		accessfilter.Or{Terms: []accessfilter.Predicate{
			accessfilter.TagIn{Field: accessfilter.FieldProject, Values: []string{"PROJECTALPHA"}},
			accessfilter.TagIn{Field: accessfilter.FieldProject, Values: []string{"A", "B"}},
		}},
	}}
	filter := RenderQdrantFilter(pred)
	if filter == nil || len(filter.Must) != 2 {
		t.Fatalf("filter = %v", filter)
	}
	var _ *qdrant.Filter = filter
}
