package ports

import (
	"context"
	"time"

	"taskable/domain/core/entities"
)

// Identity is the signed-in user as reported by the identity provider
type Identity struct {
	UserID string `json:"userId"`
	Email  string `json:"email,omitempty"`
}

// CredentialProvider supplies sign-in state and bearer tokens on demand.
// Any concrete provider (local issuer, OAuth/GoTrue client) satisfies it.
type CredentialProvider interface {
	// CurrentUser returns the signed-in identity, if any
	CurrentUser() (Identity, bool)

	// IsAuthenticated reports whether a user is signed in
	IsAuthenticated() bool

	// Token returns a bearer token for the given audience
	Token(ctx context.Context, audience string) (string, error)
}

// Credentials carries sign-in input. Providers use the fields they need.
type Credentials struct {
	Email    string `json:"email,omitempty"`
	Password string `json:"password,omitempty"`
	UserID   string `json:"userId,omitempty"`
}

// SessionProvider is a CredentialProvider that can also sign users in and out
type SessionProvider interface {
	CredentialProvider
	SignIn(ctx context.Context, creds Credentials) (Identity, error)
	SignOut(ctx context.Context) error
}

// ListRecord is the remote mirror of a TodoList. The owner and timestamps
// are used only for server-side filtering and ordering.
type ListRecord struct {
	ID        string              `json:"id"`
	UserID    string              `json:"user_id"`
	Name      string              `json:"name"`
	Todos     []entities.TodoItem `json:"todos"`
	CreatedAt time.Time           `json:"created_at"`
	UpdatedAt time.Time           `json:"updated_at"`
}

// ToList strips the remote-only fields
func (r ListRecord) ToList() entities.TodoList {
	todos := r.Todos
	if todos == nil {
		todos = []entities.TodoItem{}
	}
	return entities.TodoList{ID: r.ID, Name: r.Name, Todos: todos}
}

// ListUpdate is a partial field set for UpdateList; nil fields are not written
type ListUpdate struct {
	Name      *string              `json:"name,omitempty"`
	Todos     *[]entities.TodoItem `json:"todos,omitempty"`
	UpdatedAt time.Time            `json:"updated_at"`
}

// ListStore is the row-oriented "lists" collection of the remote store
type ListStore interface {
	// ListLists returns all lists owned by ownerID, most recently updated first
	ListLists(ctx context.Context, ownerID string) ([]ListRecord, error)

	// InsertList inserts one list
	InsertList(ctx context.Context, record ListRecord) error

	// UpdateList writes the given fields of list id
	UpdateList(ctx context.Context, id string, update ListUpdate) error

	// DeleteList removes list id
	DeleteList(ctx context.Context, id string) error
}

// Subscription is a live change subscription
type Subscription interface {
	Close() error
}

// ChangeFeed delivers a no-payload "something changed" signal for the
// lists owned by ownerID (insert, update or delete).
type ChangeFeed interface {
	Subscribe(ctx context.Context, ownerID string, onChange func()) (Subscription, error)
}

// RemoteClient is a remote store client bound to one bearer credential
type RemoteClient interface {
	ListStore
	ChangeFeed
	Close() error
}

// ClientFactory builds a RemoteClient for a bearer token. It must return
// errors.ErrNoCredential for an empty token.
type ClientFactory interface {
	NewClient(ctx context.Context, token string) (RemoteClient, error)
}

// PreferenceStore is a durable named-boolean store scoped to one profile
type PreferenceStore interface {
	Bool(name string, def bool) bool
	SetBool(name string, value bool) error
	All() map[string]bool
}
