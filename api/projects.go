package api

import (
	"context"
	"net/http"

	"github.com/Keksclan/rawrsync/cache"
	"github.com/Keksclan/rawrsync/catalog"
	"github.com/Keksclan/rawrsync/mutation"
	"github.com/Keksclan/rawrsync/query"
)

// AllProjects reads GET /projects.
func (a *API) AllProjects() query.Query[[]catalog.Project] {
	return read(a, catalog.AllProjectsKey(), list[catalog.Project](a, a.paths.Projects()), false)
}

// Project reads GET /projects/{id}. It is disabled while id is 0.
func (a *API) Project(id int64) query.Query[catalog.Project] {
	return read(a, catalog.ProjectKey(id), get[catalog.Project](a, a.paths.Project(id)), id == 0)
}

// MyProjects reads the projects userID is a member of.
func (a *API) MyProjects(userID int64) query.Query[[]catalog.Project] {
	return read(a, catalog.MyProjectsKey(userID), list[catalog.Project](a, a.paths.MyProjects(userID)), userID == 0)
}

// OwnedProjects reads the projects userID created.
func (a *API) OwnedProjects(userID int64) query.Query[[]catalog.Project] {
	return read(a, catalog.OwnedProjectsKey(userID), list[catalog.Project](a, a.paths.OwnedProjects(userID)), userID == 0)
}

// ProjectMembers reads the members of projectID.
func (a *API) ProjectMembers(projectID int64) query.Query[[]catalog.User] {
	return read(a, catalog.MembersKey(projectID), list[catalog.User](a, a.paths.Members(projectID)), projectID == 0)
}

// ProjectOwner reads the user who created projectID.
func (a *API) ProjectOwner(projectID int64) query.Query[catalog.User] {
	return read(a, catalog.OwnerKey(projectID), get[catalog.User](a, a.paths.Owner(projectID)), projectID == 0)
}

// CreateProject posts a new project.
func (a *API) CreateProject() mutation.Mutation[catalog.CreateProject, catalog.Project] {
	return mutation.Mutation[catalog.CreateProject, catalog.Project]{
		Name: string(catalog.OpCreateProject),
		Do: func(ctx context.Context, p catalog.CreateProject) (catalog.Project, error) {
			return call[catalog.Project](ctx, a, http.MethodPost, a.paths.Projects(), p)
		},
		Invalidates: catalog.CreateProjectTargets,
	}
}

// UpdateProject replaces a project's fields.
func (a *API) UpdateProject() mutation.Mutation[catalog.UpdateProject, catalog.Project] {
	return mutation.Mutation[catalog.UpdateProject, catalog.Project]{
		Name: string(catalog.OpUpdateProject),
		Do: func(ctx context.Context, p catalog.UpdateProject) (catalog.Project, error) {
			return call[catalog.Project](ctx, a, http.MethodPut, a.paths.Projects(), p)
		},
		Invalidates: catalog.UpdateProjectTargets,
	}
}

// DeleteProject deletes the project with the given id and evicts its
// entries from the cache.
func (a *API) DeleteProject() mutation.Mutation[int64, struct{}] {
	return mutation.Mutation[int64, struct{}]{
		Name: string(catalog.OpDeleteProject),
		Do: func(ctx context.Context, id int64) (struct{}, error) {
			if id <= 0 {
				return struct{}{}, errInvalidID
			}
			return struct{}{}, exec(ctx, a, http.MethodDelete, a.paths.Project(id))
		},
		Invalidates: func(id int64, _ struct{}) []cache.Target { return catalog.DeleteProjectTargets(id) },
	}
}

// AddMember adds a user to a project and returns the new member list.
func (a *API) AddMember() mutation.Mutation[catalog.AddMember, []catalog.User] {
	return mutation.Mutation[catalog.AddMember, []catalog.User]{
		Name: string(catalog.OpAddMember),
		Do: func(ctx context.Context, p catalog.AddMember) ([]catalog.User, error) {
			return call[[]catalog.User](ctx, a, http.MethodPost, a.paths.AddMember(p.ProjectID, p.UserID), nil)
		},
		Invalidates: func(p catalog.AddMember, _ []catalog.User) []cache.Target { return catalog.AddMemberTargets(p) },
	}
}
