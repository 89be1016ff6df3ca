package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var arenaEpoch = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

func arenaNode(id string, parent string, minute int) *KnowledgeText {
	k := &KnowledgeText{
		ID:        id,
		TenantID:  "tenant-1",
		Title:     "node " + id,
		Text:      Some("body " + id),
		Meta:      Meta{},
		CreatedAt: arenaEpoch.Add(time.Duration(minute) * time.Minute),
	}
	k.UpdatedAt = k.CreatedAt
	if parent != "" {
		k.ParentID = strPtr(parent)
	}
	return k
}

// root
// ├── a
// │   ├── a1
// │   └── a2
// └── b
// lone
func sampleArena(t *testing.T) *Arena {
	a, err := NewArena(
		arenaNode("a2", "a", 5),
		arenaNode("root", "", 0),
		arenaNode("b", "root", 2),
		arenaNode("a", "root", 1),
		arenaNode("a1", "a", 3),
		arenaNode("lone", "", 9),
	)
	require.NoError(t, err)
	return a
}

func TestArena_RejectsDuplicates(t *testing.T) {
	_, err := NewArena(arenaNode("x", "", 0), arenaNode("x", "", 1))
	assert.ErrorIs(t, err, ErrKnowledgeTextAlreadyExists)

	a, err := NewArena()
	require.NoError(t, err)
	assert.ErrorIs(t, a.Add(nil), ErrMissingID)
}

func TestArena_RootsAndChildren(t *testing.T) {
	a := sampleArena(t)
	assert.Equal(t, 6, a.Len())
	assert.Equal(t, []string{"root", "lone"}, a.Roots())
	assert.Equal(t, []string{"a", "b"}, a.Children("root"))
	assert.Equal(t, []string{"a1", "a2"}, a.Children("a"))
	assert.Empty(t, a.Children("b"))
}

func TestArena_OrphanIsRoot(t *testing.T) {
	a, err := NewArena(arenaNode("child", "missing", 0))
	require.NoError(t, err)
	assert.Equal(t, []string{"child"}, a.Roots())
}

func TestArena_AncestorsAndDescendants(t *testing.T) {
	a := sampleArena(t)

	chain, err := a.Ancestors("a2")
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "root"}, chain)

	_, err = a.Ancestors("nope")
	assert.ErrorIs(t, err, ErrKnowledgeTextNotFound)

	assert.Equal(t, []string{"a", "b", "a1", "a2"}, a.Descendants("root"))
	assert.True(t, a.IsDescendant("root", "a1"))
	assert.False(t, a.IsDescendant("a1", "root"))
	assert.False(t, a.IsDescendant("b", "a1"))
}

func TestArena_Tree(t *testing.T) {
	a := sampleArena(t)

	tree, err := a.Tree("root", -1)
	require.NoError(t, err)
	require.NoError(t, CheckChildren(tree))
	require.Len(t, tree.Children, 2)
	assert.Equal(t, "a", tree.Children[0].ID)
	assert.Len(t, tree.Children[0].Children, 2)
	assert.NotNil(t, tree.Children[1].Children)
	assert.Empty(t, tree.Children[1].Children)

	shallow, err := a.Tree("root", 1)
	require.NoError(t, err)
	require.Len(t, shallow.Children, 2)
	assert.Nil(t, shallow.Children[0].Children)

	flat, err := a.Tree("root", 0)
	require.NoError(t, err)
	assert.Nil(t, flat.Children)

	_, err = a.Tree("nope", -1)
	assert.ErrorIs(t, err, ErrKnowledgeTextNotFound)
}

func TestArena_TreeDoesNotAliasStorage(t *testing.T) {
	a := sampleArena(t)
	tree, err := a.Tree("root", -1)
	require.NoError(t, err)
	tree.Title = "changed"
	tree.Children[0].Title = "changed"

	stored, _ := a.Get("root")
	assert.Equal(t, "node root", stored.Title)
	child, _ := a.Get("a")
	assert.Equal(t, "node a", child.Title)
}

func TestArena_Forest(t *testing.T) {
	a := sampleArena(t)
	forest, err := a.Forest(-1)
	require.NoError(t, err)
	require.Len(t, forest, 2)
	assert.Equal(t, "root", forest[0].ID)
	assert.Equal(t, "lone", forest[1].ID)
	for _, tree := range forest {
		assert.NoError(t, CheckChildren(tree))
	}
}

func TestArena_Cycles(t *testing.T) {
	a, err := NewArena(
		arenaNode("x", "z", 0),
		arenaNode("y", "x", 1),
		arenaNode("z", "y", 2),
		arenaNode("self", "self", 3),
		arenaNode("tail", "x", 4),
		arenaNode("ok", "", 5),
	)
	require.NoError(t, err)

	assert.Equal(t, [][]string{{"self"}, {"x", "z", "y"}}, a.Cycles())

	_, err = a.Ancestors("tail")
	assert.ErrorIs(t, err, ErrHierarchyCycle)

	_, err = a.Forest(-1)
	assert.ErrorIs(t, err, ErrHierarchyCycle)

	_, err = a.Tree("x", -1)
	assert.ErrorIs(t, err, ErrHierarchyCycle)

	assert.Equal(t, []string{"ok"}, a.Roots())
	assert.Empty(t, sampleArena(t).Cycles())
}

func TestCheckChildren(t *testing.T) {
	parent := arenaNode("p", "", 0)
	good := arenaNode("c", "p", 1)
	parent.Children = []*KnowledgeText{good}
	assert.NoError(t, CheckChildren(parent))

	bad := arenaNode("d", "elsewhere", 2)
	parent.Children = append(parent.Children, bad)
	assert.ErrorIs(t, CheckChildren(parent), ErrChildParentMismatch)

	orphan := arenaNode("e", "", 3)
	parent.Children = []*KnowledgeText{orphan}
	assert.ErrorIs(t, CheckChildren(parent), ErrChildParentMismatch)

	assert.NoError(t, CheckChildren(nil))
}
