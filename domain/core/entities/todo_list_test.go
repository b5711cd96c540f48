package entities

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleTodos() []TodoItem {
	return []TodoItem{
		{ID: "t1", Title: "Buy milk", Level: 0},
		{ID: "t2", Title: "Whole", Level: 1},
		{ID: "t3", Title: "Call mom", Completed: true},
	}
}

func TestNewDefaultList(t *testing.T) {
	list := NewDefaultList()

	assert.Equal(t, "My Tasks", list.Name)
	assert.NotEmpty(t, list.ID)
	assert.NotNil(t, list.Todos)
	assert.Empty(t, list.Todos)
}

func TestNewEmptyTodo(t *testing.T) {
	todo := NewEmptyTodo()

	assert.NotEmpty(t, todo.ID)
	assert.Equal(t, "", todo.Title)
	assert.True(t, todo.IsEmpty)
	assert.Equal(t, 0, todo.Level)
	assert.False(t, todo.Completed)
}

func TestMergeTodo(t *testing.T) {
	todos := sampleTodos()
	done := true

	// Act
	out, ok := MergeTodo(todos, "t1", TodoPatch{Completed: &done})

	// Assert
	require.True(t, ok)
	require.Len(t, out, 3)
	assert.Equal(t, TodoItem{ID: "t1", Title: "Buy milk", Completed: true}, out[0])
	assert.Equal(t, todos[1], out[1])
	assert.Equal(t, todos[2], out[2])
	assert.False(t, todos[0].Completed, "input must not be mutated")
}

func TestMergeTodo_UnknownID(t *testing.T) {
	title := "x"
	out, ok := MergeTodo(sampleTodos(), "missing", TodoPatch{Title: &title})

	assert.False(t, ok)
	assert.Equal(t, sampleTodos(), out)
}

func TestRemoveTodo(t *testing.T) {
	out, ok := RemoveTodo(sampleTodos(), "t2")

	require.True(t, ok)
	assert.Equal(t, []string{"t1", "t3"}, ids(out))
}

func TestDuplicateTodo(t *testing.T) {
	todos := sampleTodos()

	out, dup, ok := DuplicateTodo(todos, "t1")

	require.True(t, ok)
	require.Len(t, out, len(todos)+1)
	assert.Equal(t, "Buy milk (copy)", dup.Title)
	assert.NotEqual(t, "t1", dup.ID)
	assert.Equal(t, dup, out[len(out)-1], "copy goes to the end, not next to the original")
	assert.Equal(t, "t2", out[1].ID)
}

func TestMoveTodo(t *testing.T) {
	tests := []struct {
		name  string
		id    string
		index int
		want  []string
	}{
		{"to front", "t3", 0, []string{"t3", "t1", "t2"}},
		{"to end", "t1", 2, []string{"t2", "t3", "t1"}},
		{"clamped high", "t1", 99, []string{"t2", "t3", "t1"}},
		{"clamped low", "t2", -4, []string{"t2", "t1", "t3"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, ok := MoveTodo(sampleTodos(), tt.id, tt.index)
			require.True(t, ok)
			assert.Equal(t, tt.want, ids(out))
		})
	}
}

func TestCloneLists_IsDeep(t *testing.T) {
	lists := []TodoList{{ID: "A", Name: "Work", Todos: sampleTodos()}}

	out := CloneLists(lists)
	out[0].Todos[0].Title = "changed"

	assert.Equal(t, "Buy milk", lists[0].Todos[0].Title)
}

func TestFindList(t *testing.T) {
	lists := []TodoList{{ID: "A"}, {ID: "B"}}

	assert.Equal(t, 1, FindList(lists, "B"))
	assert.Equal(t, -1, FindList(lists, "C"))
	assert.Equal(t, -1, FindList(lists, ""))
}

func ids(todos []TodoItem) []string {
	out := make([]string, len(todos))
	for i, t := range todos {
		out[i] = t.ID
	}
	return out
}
