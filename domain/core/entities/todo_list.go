package entities

import (
	"github.com/google/uuid"
)

// DefaultListName is the name given to the list synthesized on first load
const DefaultListName = "My Tasks"

// DuplicateSuffix is appended to the title of a duplicated todo
const DuplicateSuffix = " (copy)"

// TodoItem is a single task entry. Level is the indentation depth.
// IsEmpty marks an item that was just created and has no title yet.
type TodoItem struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	Completed bool   `json:"completed"`
	Level     int    `json:"level"`
	IsEmpty   bool   `json:"isEmpty"`
}

// TodoList is a named, ordered collection of todo items.
// The order of Todos is the display order and is never sorted.
type TodoList struct {
	ID    string     `json:"id"`
	Name  string     `json:"name"`
	Todos []TodoItem `json:"todos"`
}

// TodoPatch carries partial changes for a todo; nil fields are left untouched
type TodoPatch struct {
	Title     *string `json:"title,omitempty"`
	Completed *bool   `json:"completed,omitempty"`
	Level     *int    `json:"level,omitempty"`
	IsEmpty   *bool   `json:"isEmpty,omitempty"`
}

// NewID returns a fresh opaque identifier for lists and todos
func NewID() string {
	return uuid.New().String()
}

// NewList creates an empty list with a fresh id
func NewList(name string) TodoList {
	return TodoList{
		ID:    NewID(),
		Name:  name,
		Todos: []TodoItem{},
	}
}

// NewDefaultList creates the "My Tasks" list used on first load
func NewDefaultList() TodoList {
	return NewList(DefaultListName)
}

// NewEmptyTodo creates a todo with no title at indentation level 0
func NewEmptyTodo() TodoItem {
	return TodoItem{
		ID:      NewID(),
		Title:   "",
		IsEmpty: true,
		Level:   0,
	}
}

// Clone returns a deep copy of the list
func (l TodoList) Clone() TodoList {
	out := l
	out.Todos = CloneTodos(l.Todos)
	return out
}

// IndexOf returns the position of the todo with the given id, or -1
func (l TodoList) IndexOf(todoID string) int {
	for i, t := range l.Todos {
		if t.ID == todoID {
			return i
		}
	}
	return -1
}

// CloneTodos copies a todo sequence. A nil input yields an empty slice.
func CloneTodos(todos []TodoItem) []TodoItem {
	out := make([]TodoItem, len(todos))
	copy(out, todos)
	return out
}

// CloneLists deep-copies a collection of lists
func CloneLists(lists []TodoList) []TodoList {
	out := make([]TodoList, len(lists))
	for i, l := range lists {
		out[i] = l.Clone()
	}
	return out
}

// Apply returns the item with the non-nil patch fields merged in
func (p TodoPatch) Apply(item TodoItem) TodoItem {
	if p.Title != nil {
		item.Title = *p.Title
	}
	if p.Completed != nil {
		item.Completed = *p.Completed
	}
	if p.Level != nil {
		item.Level = *p.Level
	}
	if p.IsEmpty != nil {
		item.IsEmpty = *p.IsEmpty
	}
	return item
}

// AppendTodo returns a new sequence with item added at the end
func AppendTodo(todos []TodoItem, item TodoItem) []TodoItem {
	out := make([]TodoItem, 0, len(todos)+1)
	out = append(out, todos...)
	return append(out, item)
}

// MergeTodo applies patch to the todo with the given id.
// Order and all other items are preserved. The second return value
// reports whether a todo matched.
func MergeTodo(todos []TodoItem, id string, patch TodoPatch) ([]TodoItem, bool) {
	out := CloneTodos(todos)
	for i := range out {
		if out[i].ID == id {
			out[i] = patch.Apply(out[i])
			return out, true
		}
	}
	return out, false
}

// RemoveTodo drops the todo with the given id
func RemoveTodo(todos []TodoItem, id string) ([]TodoItem, bool) {
	out := make([]TodoItem, 0, len(todos))
	found := false
	for _, t := range todos {
		if t.ID == id {
			found = true
			continue
		}
		out = append(out, t)
	}
	return out, found
}

// DuplicateTodo appends a copy of the todo with the given id to the end
// of the sequence. The copy gets a new id and a " (copy)" title suffix.
func DuplicateTodo(todos []TodoItem, id string) ([]TodoItem, TodoItem, bool) {
	for _, t := range todos {
		if t.ID != id {
			continue
		}
		dup := t
		dup.ID = NewID()
		dup.Title = t.Title + DuplicateSuffix
		return AppendTodo(todos, dup), dup, true
	}
	return CloneTodos(todos), TodoItem{}, false
}

// MoveTodo moves the todo with the given id to index, clamped to the
// bounds of the sequence.
func MoveTodo(todos []TodoItem, id string, index int) ([]TodoItem, bool) {
	rest, found := RemoveTodo(todos, id)
	if !found {
		return rest, false
	}
	var moved TodoItem
	for _, t := range todos {
		if t.ID == id {
			moved = t
			break
		}
	}

	if index < 0 {
		index = 0
	}
	if index > len(rest) {
		index = len(rest)
	}

	out := make([]TodoItem, 0, len(todos))
	out = append(out, rest[:index]...)
	out = append(out, moved)
	out = append(out, rest[index:]...)
	return out, true
}

// FindList returns the index of the list with the given id, or -1
func FindList(lists []TodoList, id string) int {
	if id == "" {
		return -1
	}
	for i, l := range lists {
		if l.ID == id {
			return i
		}
	}
	return -1
}
