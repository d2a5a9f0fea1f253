// Package session holds the identity of the signed-in user for the lifetime
// of the process. It is the only piece of authentication state the
// synchronization layer keeps.
package session

import (
	"context"
	"sync"

	"github.com/Keksclan/rawrsync/catalog"
	"github.com/Keksclan/rawrsync/contextx"
)

// Listener is called after the current user changes. ok is false after
// Clear.
type Listener func(u catalog.User, ok bool)

// Session stores the current user. The zero value is ready to use and
// signed out.
type Session struct {
	mu        sync.Mutex
	user      catalog.User
	ok        bool
	nextID    int
	listeners map[int]Listener
}

// New returns a signed-out Session.
func New() *Session { return &Session{} }

// Current returns the signed-in user.
func (s *Session) Current() (catalog.User, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.user, s.ok
}

// UserID returns the signed-in user's id, or 0.
func (s *Session) UserID() int64 {
	u, ok := s.Current()
	if !ok {
		return 0
	}
	return u.ID
}

// Set signs u in, replacing any previous user. Listeners are only notified
// when the identity actually changes.
func (s *Session) Set(u catalog.User) {
	s.mu.Lock()
	if s.ok && s.user == u {
		s.mu.Unlock()
		return
	}
	s.user, s.ok = u, true
	ls := s.snapshotLocked()
	s.mu.Unlock()

	for _, l := range ls {
		l(u, true)
	}
}

// Clear signs the current user out.
func (s *Session) Clear() {
	s.mu.Lock()
	if !s.ok {
		s.mu.Unlock()
		return
	}
	s.user, s.ok = catalog.User{}, false
	ls := s.snapshotLocked()
	s.mu.Unlock()

	for _, l := range ls {
		l(catalog.User{}, false)
	}
}

// Subscribe registers l for identity changes. Listeners run on the
// goroutine that called Set or Clear, outside the session lock.
func (s *Session) Subscribe(l Listener) (unsubscribe func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listeners == nil {
		s.listeners = make(map[int]Listener)
	}
	id := s.nextID
	s.nextID++
	s.listeners[id] = l

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.listeners, id)
			s.mu.Unlock()
		})
	}
}

// Context returns ctx carrying the signed-in user as a contextx.Actor. ctx
// is returned unchanged when nobody is signed in.
func (s *Session) Context(ctx context.Context) context.Context {
	u, ok := s.Current()
	if !ok {
		return ctx
	}
	return contextx.WithActor(ctx, contextx.Actor{UserID: u.ID, Email: u.Email, Role: u.Role})
}

func (s *Session) snapshotLocked() []Listener {
	ls := make([]Listener, 0, len(s.listeners))
	for _, l := range s.listeners {
		ls = append(ls, l)
	}
	return ls
}
