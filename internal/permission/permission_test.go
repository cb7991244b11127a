package permission

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleTree() []Node {
	return []Node{
		{
			ID: "projects", Label: "Projects", Checked: true,
			Children: []Node{
				{ID: "projects.view", Label: "View", Checked: true},
				{ID: "projects.edit", Label: "Edit", Checked: false},
				{
					ID: "projects.tasks", Label: "Tasks", Checked: false,
					Children: []Node{
						{ID: "projects.tasks.assign", Label: "Assign", Checked: true},
					},
				},
			},
		},
		{
			ID: "users", Label: "Users", Checked: false,
			Children: []Node{
				{ID: "users.invite", Label: "Invite", Checked: false},
			},
		},
	}
}

func TestHasPermission(t *testing.T) {
	tree := sampleTree()

	tests := []struct {
		id   string
		want bool
	}{
		{id: "projects", want: true},
		{id: "projects.view", want: true},
		{id: "projects.edit", want: false},
		{id: "projects.tasks", want: false},
		{id: "projects.tasks.assign", want: true},
		{id: "users", want: false},
		{id: "users.invite", want: false},
		{id: "missing", want: false},
		{id: "", want: false},
	}

	for _, tt := range tests {
		t.Run(tt.id, func(t *testing.T) {
			assert.Equal(t, tt.want, HasPermission(tt.id, tree))
		})
	}
}

func TestHasPermission_EmptyTree(t *testing.T) {
	assert.False(t, HasPermission("projects", nil))
	assert.False(t, HasPermission("projects", []Node{}))
	assert.False(t, HasAnyPermission([]string{"projects"}, nil))
	assert.False(t, HasAllPermissions([]string{"projects"}, nil))
	assert.Empty(t, CheckedPermissions(nil))
	assert.True(t, CheckWithAdminBypass("projects", nil, true))
	assert.False(t, CheckWithAdminBypass("projects", nil, false))
}

func TestHasPermission_DuplicateIDsAnyCheckedGrants(t *testing.T) {
	tree := []Node{
		{ID: "a", Children: []Node{{ID: "dup", Checked: false}}},
		{ID: "b", Children: []Node{{ID: "dup", Checked: true}}},
	}
	assert.True(t, HasPermission("dup", tree))

	tree[1].Children[0].Checked = false
	assert.False(t, HasPermission("dup", tree))
}

// Property: HasPermission is true iff some node with the id is checked.
func TestHasPermission_MatchesExhaustiveSearch(t *testing.T) {
	tree := sampleTree()

	var all []*Node
	for n := range walk(tree) {
		all = append(all, n)
	}
	require.Len(t, all, 7)

	for _, n := range all {
		want := false
		for _, m := range all {
			if m.ID == n.ID && m.Checked {
				want = true
			}
		}
		assert.Equal(t, want, HasPermission(n.ID, tree), n.ID)
	}
}

func TestAnyAllLaws(t *testing.T) {
	tree := sampleTree()

	assert.True(t, HasAllPermissions(nil, tree), "vacuous truth")
	assert.True(t, HasAllPermissions([]string{}, tree))
	assert.False(t, HasAnyPermission(nil, tree))
	assert.False(t, HasAnyPermission([]string{}, tree))

	sets := [][]string{
		{"projects.view"},
		{"projects.view", "projects.tasks.assign"},
		{"projects.view", "projects.edit"},
		{"users", "missing"},
	}
	for _, ids := range sets {
		every, some := true, false
		for _, id := range ids {
			every = every && HasPermission(id, tree)
			some = some || HasPermission(id, tree)
		}
		assert.Equal(t, every, HasAllPermissions(ids, tree), ids)
		assert.Equal(t, some, HasAnyPermission(ids, tree), ids)
	}
}

func TestCheckedPermissions(t *testing.T) {
	got := CheckedPermissions(sampleTree())
	assert.Equal(t, []string{"projects", "projects.view", "projects.tasks.assign"}, got)
}

func TestChecked_StopsEarly(t *testing.T) {
	var first string
	for id := range Checked(sampleTree()) {
		first = id
		break
	}
	assert.Equal(t, "projects", first)
}

func TestCheckWithAdminBypass(t *testing.T) {
	tree := sampleTree()

	assert.True(t, CheckWithAdminBypass("users.invite", tree, true))
	assert.False(t, CheckWithAdminBypass("users.invite", tree, false))
	assert.True(t, CheckWithAdminBypass("projects.view", tree, false))
}

func TestNode_JSON(t *testing.T) {
	data := `[{"id":"p","label":"P","checked":true,"children":[{"id":"p.v","label":"V","checked":false}]}]`

	var tree []Node
	require.NoError(t, json.Unmarshal([]byte(data), &tree))
	assert.True(t, HasPermission("p", tree))
	assert.False(t, HasPermission("p.v", tree))
}

type fakeDoer struct {
	path string
	role Role
	err  error
}

func (f *fakeDoer) Do(ctx context.Context, method, path string, body, out any) error {
	f.path = path
	if f.err != nil {
		return f.err
	}
	*(out.(*Role)) = f.role
	return nil
}

func TestLoadRole(t *testing.T) {
	doer := &fakeDoer{role: Role{ID: "role-user", Name: "User", Permissions: sampleTree()}}

	role, err := LoadRole(context.Background(), doer, "role-user")
	require.NoError(t, err)
	assert.Equal(t, "/api/roles/role-user", doer.path)
	assert.True(t, role.Can("projects.view"))
	assert.False(t, role.Can("users"))

	var nilRole *Role
	assert.False(t, nilRole.Can("projects"))

	_, err = LoadRole(context.Background(), doer, "")
	require.Error(t, err)

	doer.err = errors.New("boom")
	_, err = LoadRole(context.Background(), doer, "role-user")
	require.ErrorContains(t, err, "boom")
}
