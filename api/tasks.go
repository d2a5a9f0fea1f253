package api

import (
	"context"
	"net/http"
	"strings"

	"github.com/Keksclan/rawrsync/cache"
	"github.com/Keksclan/rawrsync/catalog"
	"github.com/Keksclan/rawrsync/mutation"
	"github.com/Keksclan/rawrsync/query"
	"github.com/Keksclan/rawrsync/transport"
)

// AllTasks reads GET /tasks.
func (a *API) AllTasks() query.Query[[]catalog.Task] {
	return read(a, catalog.AllTasksKey(), list[catalog.Task](a, a.paths.Tasks()), false)
}

// Task reads GET /tasks/{id}. It is disabled while id is 0.
func (a *API) Task(id int64) query.Query[catalog.Task] {
	return read(a, catalog.TaskKey(id), get[catalog.Task](a, a.paths.Task(id)), id == 0)
}

// UserTasks reads the tasks assigned to userID.
func (a *API) UserTasks(userID int64) query.Query[[]catalog.Task] {
	return read(a, catalog.UserTasksKey(userID), list[catalog.Task](a, a.paths.AssignedTasks(userID)), userID == 0)
}

// ProjectTasks reads the tasks of projectID.
func (a *API) ProjectTasks(projectID int64) query.Query[[]catalog.Task] {
	return read(a, catalog.ProjectTasksKey(projectID), list[catalog.Task](a, a.paths.ProjectTasks(projectID)), projectID == 0)
}

// FilterProjectTasks reads the tasks of projectID matching filter. It is
// disabled until both are set.
func (a *API) FilterProjectTasks(projectID int64, filter string) query.Query[[]catalog.Task] {
	return read(a, catalog.FilteredTasksKey(projectID, filter),
		list[catalog.Task](a, a.paths.FilterTasks(projectID, filter)),
		projectID == 0 || filter == "")
}

// CreateTask posts a new task.
func (a *API) CreateTask() mutation.Mutation[catalog.CreateTask, catalog.Task] {
	return mutation.Mutation[catalog.CreateTask, catalog.Task]{
		Name: string(catalog.OpCreateTask),
		Do: func(ctx context.Context, p catalog.CreateTask) (catalog.Task, error) {
			return call[catalog.Task](ctx, a, http.MethodPost, a.paths.Tasks(), p)
		},
		Invalidates: catalog.CreateTaskTargets,
	}
}

// UpdateTask replaces a task's fields.
func (a *API) UpdateTask() mutation.Mutation[catalog.UpdateTask, catalog.Task] {
	return mutation.Mutation[catalog.UpdateTask, catalog.Task]{
		Name: string(catalog.OpUpdateTask),
		Do: func(ctx context.Context, p catalog.UpdateTask) (catalog.Task, error) {
			return call[catalog.Task](ctx, a, http.MethodPut, a.paths.Tasks(), p)
		},
		Invalidates: catalog.UpdateTaskTargets,
	}
}

// SetTaskStatus moves a task to another status.
func (a *API) SetTaskStatus() mutation.Mutation[catalog.SetTaskStatus, catalog.Task] {
	return mutation.Mutation[catalog.SetTaskStatus, catalog.Task]{
		Name: string(catalog.OpSetTaskStatus),
		Do: func(ctx context.Context, p catalog.SetTaskStatus) (catalog.Task, error) {
			return call[catalog.Task](ctx, a, http.MethodPut, a.paths.TaskStatus(p.TaskID, p.Status), nil)
		},
		Invalidates: func(p catalog.SetTaskStatus, t catalog.Task) []cache.Target {
			return catalog.TaskChangedTargets(p.TaskID, t)
		},
	}
}

// SetTaskPriority changes a task's priority.
func (a *API) SetTaskPriority() mutation.Mutation[catalog.SetTaskPriority, catalog.Task] {
	return mutation.Mutation[catalog.SetTaskPriority, catalog.Task]{
		Name: string(catalog.OpSetTaskPriority),
		Do: func(ctx context.Context, p catalog.SetTaskPriority) (catalog.Task, error) {
			return call[catalog.Task](ctx, a, http.MethodPut, a.paths.TaskPriority(p.TaskID, p.Priority), nil)
		},
		Invalidates: func(p catalog.SetTaskPriority, t catalog.Task) []cache.Target {
			return catalog.TaskChangedTargets(p.TaskID, t)
		},
	}
}

// DeleteTask deletes the task with the given id.
func (a *API) DeleteTask() mutation.Mutation[int64, struct{}] {
	return mutation.Mutation[int64, struct{}]{
		Name: string(catalog.OpDeleteTask),
		Do: func(ctx context.Context, id int64) (struct{}, error) {
			if id <= 0 {
				return struct{}{}, errInvalidID
			}
			return struct{}{}, exec(ctx, a, http.MethodDelete, a.paths.Task(id))
		},
		Invalidates: func(id int64, _ struct{}) []cache.Target { return catalog.DeleteTaskTargets(id) },
	}
}

// GeneratePriority asks the server to suggest a priority for a task
// description. Description and reply are plain text; nothing is cached.
func (a *API) GeneratePriority() mutation.Mutation[string, string] {
	return mutation.Mutation[string, string]{
		Name: string(catalog.OpGeneratePriority),
		Do: func(ctx context.Context, description string) (string, error) {
			if strings.TrimSpace(description) == "" {
				return "", transport.Invalid("description", "is required")
			}
			req := &transport.Request{Method: http.MethodPost, Path: a.paths.GeneratePriority(), Body: description}
			out, err := transport.CallText(a.session.Context(ctx), a.doer, req)
			return strings.TrimSpace(out), err
		},
	}
}
