package profile

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestNewCanonicalizes(t *testing.T) {
	p := New("alice", 1,
		[]string{"hr", "Project-Alpha"},
		[]string{"project_beta", ""},
		map[string][]string{"it": {"team-lead", "Admin"}, "": {"dropped"}},
	)

	if p.Departments[0] != "HR" || p.Departments[1] != "PROJECTALPHA" {
		t.Errorf("Departments = %v", p.Departments)
	}
	if len(p.Projects) != 1 || p.Projects[0] != "PROJECTBETA" {
		t.Errorf("Projects = %v", p.Projects)
	}
	roles := p.RolesFor("IT")
	if len(roles) != 2 || roles[0] != "TEAMLEAD" || roles[1] != "ADMIN" {
		t.Errorf("RolesFor(IT) = %v", roles)
	}
	if _, ok := p.ContextualRoles[""]; ok {
		t.Error("empty context key was not dropped")
	}
}

func TestRolesForNormalizesLookup(t *testing.T) {
	p := New("bob", 0, nil, nil, map[string][]string{"PROJECTALPHA": {"LEAD"}})
	roles := p.RolesFor("Project-Alpha")
	if len(roles) != 1 || roles[0] != "LEAD" {
		t.Errorf("RolesFor(Project-Alpha) = %v", roles)
	}
}

func TestLoadRegistry(t *testing.T) {
	path := filepath.Join(t.TempDir(), "profiles.json")
	content := `[
		{"user_id": "alice", "hierarchy_level": 2, "departments": ["hr"], "projects": [], "contextual_roles": {"hr": ["lead"]}},
		{"user_id": "bob", "hierarchy_level": 0}
	]`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}

	reg, err := LoadRegistry(path)
	if err != nil {
		t.Fatalf("LoadRegistry: %v", err)
	}

	alice, err := reg.GetProfile(context.Background(), "alice")
	if err != nil {
		t.Fatal(err)
	}
	if alice.HierarchyLevel != 2 || alice.Departments[0] != "HR" {
		t.Errorf("alice = %+v", alice)
	}

	_, err = reg.GetProfile(context.Background(), "mallory")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("GetProfile(mallory) err = %v, want ErrNotFound", err)
	}
}

func TestLoadRegistryRejectsMissingUserID(t *testing.T) {
	path := filepath.Join(t.TempDir(), "profiles.json")
	if err := os.WriteFile(path, []byte(`[{"hierarchy_level": 1}]`), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadRegistry(path); err == nil {
		t.Error("expected error for record without user_id")
	}
}
