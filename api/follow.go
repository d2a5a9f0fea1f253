package api

import (
	"context"
	"sync"

	"github.com/Keksclan/rawrsync/catalog"
	"github.com/Keksclan/rawrsync/query"
	"github.com/Keksclan/rawrsync/session"
)

// Follower observes a query parameterized by the signed-in user. When the
// user changes it closes the observer for the previous user and opens one
// for the new user; while nobody is signed in the query is disabled and the
// state is idle.
type Follower[T any] struct {
	ctx     context.Context
	engine  *query.Engine
	build   func(userID int64) query.Query[T]
	unsub   func()
	updates chan query.State[T]

	mu     sync.Mutex
	bound  bool
	closed bool
	userID int64
	obs    *query.Observer[T]
}

// Follow starts a Follower for the queries build returns.
func Follow[T any](ctx context.Context, e *query.Engine, s *session.Session, build func(userID int64) query.Query[T]) *Follower[T] {
	f := &Follower[T]{
		ctx:     context.WithoutCancel(ctx),
		engine:  e,
		build:   build,
		updates: make(chan query.State[T], 1),
	}
	f.unsub = s.Subscribe(func(u catalog.User, ok bool) {
		if !ok {
			u = catalog.User{}
		}
		f.bind(u.ID)
	})
	f.bind(s.UserID())
	return f
}

// CurrentUser follows the signed-in user's own record.
func (a *API) CurrentUser(ctx context.Context, e *query.Engine) *Follower[catalog.User] {
	return Follow(ctx, e, a.session, a.User)
}

// CurrentUserProjects follows the projects the signed-in user is a member
// of.
func (a *API) CurrentUserProjects(ctx context.Context, e *query.Engine) *Follower[[]catalog.Project] {
	return Follow(ctx, e, a.session, a.MyProjects)
}

// CurrentUserOwnedProjects follows the projects the signed-in user created.
func (a *API) CurrentUserOwnedProjects(ctx context.Context, e *query.Engine) *Follower[[]catalog.Project] {
	return Follow(ctx, e, a.session, a.OwnedProjects)
}

// CurrentUserTasks follows the tasks assigned to the signed-in user.
func (a *API) CurrentUserTasks(ctx context.Context, e *query.Engine) *Follower[[]catalog.Task] {
	return Follow(ctx, e, a.session, a.UserTasks)
}

// CurrentUserNotifications follows the signed-in user's notifications.
func (a *API) CurrentUserNotifications(ctx context.Context, e *query.Engine) *Follower[[]catalog.Notification] {
	return Follow(ctx, e, a.session, a.UserNotifications)
}

func (f *Follower[T]) bind(userID int64) {
	f.mu.Lock()
	if f.closed || (f.bound && f.userID == userID) {
		f.mu.Unlock()
		return
	}
	old := f.obs
	f.bound = true
	f.userID = userID
	obs := query.Observe(f.ctx, f.engine, f.build(userID))
	f.obs = obs
	f.sendLocked(obs.Current())
	f.mu.Unlock()

	if old != nil {
		old.Close()
	}
	go f.forward(obs)
}

// forward relays o's states until o is closed or replaced.
func (f *Follower[T]) forward(o *query.Observer[T]) {
	for s := range o.Updates() {
		f.mu.Lock()
		if f.obs == o && !f.closed {
			f.sendLocked(s)
		}
		f.mu.Unlock()
	}
}

func (f *Follower[T]) sendLocked(s query.State[T]) {
	select {
	case <-f.updates:
	default:
	}
	f.updates <- s
}

// UserID returns the user the follower is currently bound to, or 0.
func (f *Follower[T]) UserID() int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.userID
}

// Current returns the state of the query for the current user.
func (f *Follower[T]) Current() query.State[T] {
	f.mu.Lock()
	obs := f.obs
	f.mu.Unlock()
	if obs == nil {
		return query.StateOf[T](nil)
	}
	return obs.Current()
}

// Updates delivers new states, latest wins. It is closed by Close.
func (f *Follower[T]) Updates() <-chan query.State[T] { return f.updates }

// Wait blocks until the current state satisfies cond or ctx ends.
func (f *Follower[T]) Wait(ctx context.Context, cond func(query.State[T]) bool) (query.State[T], error) {
	for {
		if s := f.Current(); cond(s) {
			return s, nil
		}
		select {
		case _, ok := <-f.updates:
			if !ok {
				return f.Current(), query.ErrClosed
			}
		case <-ctx.Done():
			return f.Current(), ctx.Err()
		}
	}
}

// Refetch reloads the query for the current user.
func (f *Follower[T]) Refetch() {
	f.mu.Lock()
	obs := f.obs
	f.mu.Unlock()
	if obs != nil {
		obs.Refetch()
	}
}

// Close stops following the session and closes the current observer.
func (f *Follower[T]) Close() {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return
	}
	f.closed = true
	obs := f.obs
	close(f.updates)
	f.mu.Unlock()

	f.unsub()
	if obs != nil {
		obs.Close()
	}
}
