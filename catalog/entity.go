// Package catalog declares the remote entities, the closed set of cache
// resources, the endpoint paths and the invalidation rule of every write.
// Nothing in here talks to the network; the api package binds it to the
// query and mutation engines.
package catalog

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// User is an account known to the remote API.
type User struct {
	ID    int64  `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
	Role  string `json:"role"`
}

// Project groups tasks. Its members are served separately.
type Project struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	CreatedBy   Ref[User] `json:"created_by"`
}

// Task belongs to one project and is optionally assigned to a user.
type Task struct {
	ID          int64        `json:"id"`
	Title       string       `json:"title"`
	Description string       `json:"description,omitempty"`
	DueDate     string       `json:"due_date,omitempty"`
	Priority    string       `json:"priority,omitempty"`
	Status      string       `json:"status,omitempty"`
	Project     Ref[Project] `json:"project"`
	AssignedTo  Ref[User]    `json:"assigned_to"`
}

// Notification is a message addressed to one user. Timestamp is kept as the
// server renders it.
type Notification struct {
	ID        int64     `json:"id"`
	Message   string    `json:"message"`
	Timestamp string    `json:"timestamp,omitempty"`
	Recipient Ref[User] `json:"recipient"`
}

// Ref is a reference to another entity. The API sends references either as
// a bare id or as the embedded object; both decode into a Ref. A zero ID
// means no reference.
type Ref[T any] struct {
	ID    int64
	Value *T
}

// RefTo returns a reference to id without an embedded value.
func RefTo[T any](id int64) Ref[T] { return Ref[T]{ID: id} }

// Set reports whether the reference points at an entity.
func (r Ref[T]) Set() bool { return r.ID != 0 }

// MarshalJSON writes the embedded object when present, otherwise the id,
// and null for an unset reference.
func (r Ref[T]) MarshalJSON() ([]byte, error) {
	if r.Value != nil {
		return json.Marshal(r.Value)
	}
	if r.ID == 0 {
		return []byte("null"), nil
	}
	return json.Marshal(r.ID)
}

// UnmarshalJSON accepts null, a number or an object carrying an "id".
func (r *Ref[T]) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	*r = Ref[T]{}
	switch {
	case len(data) == 0 || bytes.Equal(data, []byte("null")):
		return nil
	case data[0] == '{':
		var head struct {
			ID int64 `json:"id"`
		}
		if err := json.Unmarshal(data, &head); err != nil {
			return err
		}
		v := new(T)
		if err := json.Unmarshal(data, v); err != nil {
			return err
		}
		r.ID, r.Value = head.ID, v
		return nil
	default:
		if err := json.Unmarshal(data, &r.ID); err != nil {
			return fmt.Errorf("catalog: reference must be an id or an object: %w", err)
		}
		return nil
	}
}
