package accessfilter

import (
	"testing"

	"github.com/fyrsmithlabs/corpusd/internal/profile"
	"github.com/fyrsmithlabs/corpusd/internal/tags"
)

func chunkTags(dept, proj string, level int, role string) tags.AccessTagSet {
	return tags.AccessTagSet{Department: dept, Project: proj, HierarchyLevel: level, Role: role}
}

func TestCompileNilProfileMatchesNothing(t *testing.T) {
	pred := Compile(nil)
	if !IsNone(pred) {
		t.Fatalf("Compile(nil) = %v, want MatchNone", pred)
	}

	corpus := []tags.AccessTagSet{
		tags.Defaults(),
		chunkTags("IT", "GENERAL", 0, "GENERAL"),
		chunkTags("GENERAL", "GENERAL", 5, "GENERAL"),
	}
	for _, c := range corpus {
		if pred.Matches(c) {
			t.Errorf("nil-profile predicate matched %+v", c)
		}
	}
}

func TestCompileBaselineGrant(t *testing.T) {
	p := profile.New("u", 0, nil, nil, nil)
	pred := Compile(p)

	if !pred.Matches(tags.Defaults()) {
		t.Error("empty profile does not match all-default chunk")
	}
	if pred.Matches(chunkTags("GENERAL", "GENERAL", 1, "GENERAL")) {
		t.Error("hierarchy gate failed: level-0 profile matched level-1 chunk")
	}
	if pred.Matches(chunkTags("HR", "GENERAL", 0, "GENERAL")) {
		t.Error("empty profile matched department-restricted chunk")
	}
	if pred.Matches(chunkTags("GENERAL", "GENERAL", 0, "LEAD")) {
		t.Error("empty profile matched role-restricted chunk")
	}
}

func TestCompileDepartmentProjectIndependence(t *testing.T) {
	p := profile.New("u", 0, []string{"IT"}, nil, nil)
	pred := Compile(p)

	// Department-only chunk must not silently require project membership.
	if !pred.Matches(chunkTags("IT", "GENERAL", 0, "GENERAL")) {
		t.Error("IT member cannot see IT department chunk")
	}
	// And the reverse: project-only profile sees project chunks.
	q := Compile(profile.New("u2", 0, nil, []string{"PROJECTX"}, nil))
	if !q.Matches(chunkTags("GENERAL", "PROJECTX", 0, "GENERAL")) {
		t.Error("project member cannot see project chunk")
	}
	if q.Matches(chunkTags("IT", "GENERAL", 0, "GENERAL")) {
		t.Error("project-only profile saw a department-restricted chunk")
	}
}

func TestCompileHierarchyGateOverridesGrants(t *testing.T) {
	p := profile.New("u", 1, []string{"IT"}, []string{"PROJECTALPHA"},
		map[string][]string{"IT": {"ADMIN"}})
	pred := Compile(p)

	// Full membership and role match, but the level requirement wins.
	if pred.Matches(chunkTags("IT", "GENERAL", 2, "ADMIN")) {
		t.Error("chunk requiring level 2 visible to level-1 profile")
	}
	if !pred.Matches(chunkTags("IT", "GENERAL", 1, "ADMIN")) {
		t.Error("chunk requiring level 1 not visible to level-1 profile")
	}
}

func TestCompileEndToEndScenario(t *testing.T) {
	p := profile.New("u", 1, []string{"IT"}, nil,
		map[string][]string{"PROJECT_ALPHA": {"LEAD"}})
	pred := Compile(p)

	chunkA := chunkTags("IT", "GENERAL", 1, "GENERAL")
	chunkB := chunkTags("GENERAL", "PROJECTALPHA", 0, "LEAD")
	chunkC := chunkTags("GENERAL", "PROJECTBETA", 0, "LEAD")

	if !pred.Matches(chunkA) {
		t.Error("chunk A (IT, level 1) not visible")
	}
	if !pred.Matches(chunkB) {
		t.Error("chunk B (PROJECTALPHA, LEAD) not visible despite contextual role grant")
	}
	if pred.Matches(chunkC) {
		t.Error("chunk C (PROJECTBETA, LEAD) visible without any grant for that project")
	}
}

func TestCompileRolesAreContextual(t *testing.T) {
	// LEAD held for PROJECTALPHA must not satisfy a LEAD requirement on
	// PROJECTBETA even when the caller is a member of both projects.
	p := profile.New("u", 0, nil, []string{"PROJECTALPHA", "PROJECTBETA"},
		map[string][]string{"PROJECTALPHA": {"LEAD"}})
	pred := Compile(p)

	if !pred.Matches(chunkTags("GENERAL", "PROJECTALPHA", 0, "LEAD")) {
		t.Error("LEAD chunk in granting context not visible")
	}
	if pred.Matches(chunkTags("GENERAL", "PROJECTBETA", 0, "LEAD")) {
		t.Error("LEAD role leaked across contexts")
	}
	// Plain membership still grants GENERAL-role chunks in both projects.
	if !pred.Matches(chunkTags("GENERAL", "PROJECTBETA", 0, "GENERAL")) {
		t.Error("membership without role grant lost baseline visibility")
	}
}

func TestCompileGeneralContextRolesApplyEverywhere(t *testing.T) {
	// Roles held for the GENERAL context apply in every matching context.
	p := profile.New("u", 0, []string{"HR"}, nil,
		map[string][]string{"GENERAL": {"AUDITOR"}})
	pred := Compile(p)

	if !pred.Matches(chunkTags("HR", "GENERAL", 0, "AUDITOR")) {
		t.Error("GENERAL-context role not honored inside department context")
	}
	if !pred.Matches(chunkTags("GENERAL", "GENERAL", 0, "AUDITOR")) {
		t.Error("GENERAL-context role not honored on default chunks")
	}
}

func TestCompileProfileTagsAreCanonical(t *testing.T) {
	// Construction through profile.New canonicalizes; the predicate then
	// compares canonical values only.
	p := profile.New("u", 0, []string{"Project-Alpha 2"}, nil, nil)
	pred := Compile(p)

	if !pred.Matches(chunkTags("PROJECTALPHA2", "GENERAL", 0, "GENERAL")) {
		t.Error("canonicalized department membership did not match canonical chunk tag")
	}
}
