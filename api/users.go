package api

import (
	"context"
	"net/http"

	"github.com/Keksclan/rawrsync/cache"
	"github.com/Keksclan/rawrsync/catalog"
	"github.com/Keksclan/rawrsync/mutation"
	"github.com/Keksclan/rawrsync/query"
)

// AllUsers reads GET /users.
func (a *API) AllUsers() query.Query[[]catalog.User] {
	return read(a, catalog.AllUsersKey(), list[catalog.User](a, a.paths.Users()), false)
}

// User reads GET /users/{id}. It is disabled while id is 0.
func (a *API) User(id int64) query.Query[catalog.User] {
	return read(a, catalog.UserKey(id), get[catalog.User](a, a.paths.User(id)), id == 0)
}

// UserByEmail reads GET /users/email-{email}.
func (a *API) UserByEmail(email string) query.Query[catalog.User] {
	return read(a, catalog.UserByEmailKey(email), get[catalog.User](a, a.paths.UserByEmail(email)), email == "")
}

// Login checks credentials and, on success, signs the returned user into
// the session. A null reply is reported as ErrInvalidCredentials.
func (a *API) Login() mutation.Mutation[catalog.Login, catalog.User] {
	return mutation.Mutation[catalog.Login, catalog.User]{
		Name: string(catalog.OpLogin),
		Do: func(ctx context.Context, p catalog.Login) (catalog.User, error) {
			u, err := call[*catalog.User](ctx, a, http.MethodPost, a.paths.Login(), p)
			if err != nil {
				return catalog.User{}, err
			}
			if u == nil || u.ID == 0 {
				return catalog.User{}, ErrInvalidCredentials
			}
			a.session.Set(*u)
			return *u, nil
		},
	}
}

// Logout signs the current user out. Cached data is kept.
func (a *API) Logout() { a.session.Clear() }

// CreateUser registers a user.
func (a *API) CreateUser() mutation.Mutation[catalog.CreateUser, catalog.User] {
	return mutation.Mutation[catalog.CreateUser, catalog.User]{
		Name: string(catalog.OpCreateUser),
		Do: func(ctx context.Context, p catalog.CreateUser) (catalog.User, error) {
			return call[catalog.User](ctx, a, http.MethodPost, a.paths.Users(), p)
		},
		Invalidates: func(_ catalog.CreateUser, u catalog.User) []cache.Target {
			return catalog.UserChangedTargets(u.ID)
		},
	}
}

// UpdateUser changes a user's fields. Updating the signed-in user refreshes
// the session copy.
func (a *API) UpdateUser() mutation.Mutation[catalog.UpdateUser, catalog.User] {
	return mutation.Mutation[catalog.UpdateUser, catalog.User]{
		Name: string(catalog.OpUpdateUser),
		Do: func(ctx context.Context, p catalog.UpdateUser) (catalog.User, error) {
			u, err := call[catalog.User](ctx, a, http.MethodPut, a.paths.User(p.ID), p)
			if err == nil && u.ID != 0 && u.ID == a.session.UserID() {
				a.session.Set(u)
			}
			return u, err
		},
		Invalidates: func(p catalog.UpdateUser, _ catalog.User) []cache.Target {
			return catalog.UserChangedTargets(p.ID)
		},
	}
}

// DeleteUser deletes the user with the given id.
func (a *API) DeleteUser() mutation.Mutation[int64, struct{}] {
	return mutation.Mutation[int64, struct{}]{
		Name: string(catalog.OpDeleteUser),
		Do: func(ctx context.Context, id int64) (struct{}, error) {
			if id <= 0 {
				return struct{}{}, errInvalidID
			}
			return struct{}{}, exec(ctx, a, http.MethodDelete, a.paths.User(id))
		},
		Invalidates: func(id int64, _ struct{}) []cache.Target { return catalog.UserChangedTargets(id) },
	}
}
