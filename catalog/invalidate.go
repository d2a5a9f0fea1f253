package catalog

import (
	"slices"

	"github.com/Keksclan/rawrsync/cache"
)

// Op names a remote write. Op values double as mutation names in logs,
// spans and metrics.
type Op string

const (
	OpCreateProject Op = "create-project"
	OpUpdateProject Op = "update-project"
	OpDeleteProject Op = "delete-project"
	OpAddMember     Op = "add-member"

	OpCreateTask       Op = "create-task"
	OpUpdateTask       Op = "update-task"
	OpSetTaskStatus    Op = "set-task-status"
	OpSetTaskPriority  Op = "set-task-priority"
	OpDeleteTask       Op = "delete-task"
	OpGeneratePriority Op = "generate-priority"

	OpLogin      Op = "login"
	OpCreateUser Op = "create-user"
	OpUpdateUser Op = "update-user"
	OpDeleteUser Op = "delete-user"

	OpCreateNotification Op = "create-notification"
	OpUpdateNotification Op = "update-notification"
	OpDeleteNotification Op = "delete-notification"
)

// Touches lists, per write, every resource its invalidation set may
// address. Writes with an empty list never invalidate. The rule functions
// below must stay within these sets; the package tests enforce it.
var Touches = map[Op][]cache.Resource{
	OpCreateProject: {AllProjects, MyProjects, OwnedProjects},
	OpUpdateProject: {ProjectByID, AllProjects, MyProjects, OwnedProjects, ProjectOwner},
	OpDeleteProject: {ProjectByID, AllProjects, MyProjects, OwnedProjects, ProjectOwner, MembersOfProject},
	OpAddMember:     {MembersOfProject, MyProjects},

	OpCreateTask:       {AllTasks, TaskByID, TasksOfProject, TasksOfUser, FilteredProjectTasks},
	OpUpdateTask:       {TaskByID, AllTasks, TasksOfUser, TasksOfProject, FilteredProjectTasks},
	OpSetTaskStatus:    {TaskByID, AllTasks, TasksOfUser, TasksOfProject, FilteredProjectTasks},
	OpSetTaskPriority:  {TaskByID, AllTasks, TasksOfUser, TasksOfProject, FilteredProjectTasks},
	OpDeleteTask:       {AllTasks, TaskByID, TasksOfProject, TasksOfUser, FilteredProjectTasks},
	OpGeneratePriority: nil,

	OpLogin:      nil,
	OpCreateUser: {AllUsers, UserByID, UserByEmail},
	OpUpdateUser: {AllUsers, UserByID, UserByEmail},
	OpDeleteUser: {AllUsers, UserByID, UserByEmail},

	OpCreateNotification: {AllNotifications, NotificationByID, NotificationsOfUser},
	OpUpdateNotification: {AllNotifications, NotificationByID, NotificationsOfUser},
	OpDeleteNotification: {AllNotifications, NotificationByID, NotificationsOfUser},
}

// Ops returns every write in name order.
func Ops() []Op {
	out := make([]Op, 0, len(Touches))
	for op := range Touches {
		out = append(out, op)
	}
	slices.Sort(out)
	return out
}

// perUser marks a per-user resource stale for id, or for every user when
// id is unknown.
func perUser(r cache.Resource, id int64) cache.Target {
	if id == 0 {
		return cache.All(r)
	}
	return cache.Exact(idKey(r, id))
}

// CreateProjectTargets: the owner's project lists gain an entry.
func CreateProjectTargets(p CreateProject, resp Project) []cache.Target {
	owner := resp.CreatedBy.ID
	if owner == 0 {
		owner = p.CreatedBy
	}
	return []cache.Target{
		cache.Exact(AllProjectsKey()),
		perUser(MyProjects, owner),
		perUser(OwnedProjects, owner),
	}
}

// UpdateProjectTargets: the project may appear in any user's lists, and its
// owner may have changed.
func UpdateProjectTargets(p UpdateProject, resp Project) []cache.Target {
	id := resp.ID
	if id == 0 {
		id = p.ID
	}
	return []cache.Target{
		cache.Exact(ProjectKey(id)),
		cache.Exact(AllProjectsKey()),
		cache.All(MyProjects),
		cache.All(OwnedProjects),
		cache.Exact(OwnerKey(id)),
	}
}

// DeleteProjectTargets evicts everything addressed by the project id and
// marks every project list stale.
func DeleteProjectTargets(projectID int64) []cache.Target {
	return []cache.Target{
		cache.Remove(ProjectKey(projectID)),
		cache.Remove(OwnerKey(projectID)),
		cache.Remove(MembersKey(projectID)),
		cache.Exact(AllProjectsKey()),
		cache.All(MyProjects),
		cache.All(OwnedProjects),
	}
}

// AddMemberTargets: the member list grows and the new member's projects
// include this one.
func AddMemberTargets(p AddMember) []cache.Target {
	return []cache.Target{
		cache.Exact(MembersKey(p.ProjectID)),
		perUser(MyProjects, p.UserID),
	}
}

// CreateTaskTargets marks the task lists the new task can appear in. Only
// the new id's task-by-id entry can be affected, so existing tasks keep
// their entries.
func CreateTaskTargets(p CreateTask, resp Task) []cache.Target {
	project := resp.Project.ID
	if project == 0 {
		project = p.Project
	}
	assignee := resp.AssignedTo.ID
	if assignee == 0 {
		assignee = p.AssignedTo
	}
	out := []cache.Target{cache.Exact(AllTasksKey())}
	if resp.ID != 0 {
		out = append(out, cache.Exact(TaskKey(resp.ID)))
	} else {
		out = append(out, cache.All(TaskByID))
	}
	out = append(out, perUser(TasksOfProject, project), cache.All(FilteredProjectTasks))
	if assignee != 0 {
		out = append(out, cache.Exact(UserTasksKey(assignee)))
	}
	return out
}

// TaskChangedTargets covers every write that modifies one existing task.
// Project and assignee come from the server's reply; lists they are absent
// from are left alone.
func TaskChangedTargets(taskID int64, resp Task) []cache.Target {
	if resp.ID != 0 {
		taskID = resp.ID
	}
	out := []cache.Target{
		cache.Exact(TaskKey(taskID)),
		cache.Exact(AllTasksKey()),
	}
	if resp.AssignedTo.Set() {
		out = append(out, cache.Exact(UserTasksKey(resp.AssignedTo.ID)))
	}
	if resp.Project.Set() {
		out = append(out, cache.Exact(ProjectTasksKey(resp.Project.ID)), cache.All(FilteredProjectTasks))
	}
	return out
}

// UpdateTaskTargets falls back to the payload when the reply omits project
// or assignee.
func UpdateTaskTargets(p UpdateTask, resp Task) []cache.Target {
	if !resp.Project.Set() && p.Project != 0 {
		resp.Project = RefTo[Project](p.Project)
	}
	if !resp.AssignedTo.Set() && p.AssignedTo != 0 {
		resp.AssignedTo = RefTo[User](p.AssignedTo)
	}
	return TaskChangedTargets(p.ID, resp)
}

// DeleteTaskTargets: the deleted task's project and assignee are unknown,
// so every per-project and per-user list is marked stale.
func DeleteTaskTargets(taskID int64) []cache.Target {
	return []cache.Target{
		cache.Exact(AllTasksKey()),
		cache.Exact(TaskKey(taskID)),
		cache.All(TasksOfProject),
		cache.All(TasksOfUser),
		cache.All(FilteredProjectTasks),
	}
}

// UserChangedTargets covers user create, update and delete. Email lookups
// are keyed by address, which may have changed, so all are marked stale.
func UserChangedTargets(userID int64) []cache.Target {
	out := []cache.Target{cache.Exact(AllUsersKey()), cache.All(UserByEmail)}
	if userID != 0 {
		out = append(out, cache.Exact(UserKey(userID)))
	}
	return out
}

// NotificationChangedTargets covers notification writes. The recipient's
// list is only marked when the recipient is known.
func NotificationChangedTargets(notificationID, recipientID int64) []cache.Target {
	out := []cache.Target{cache.Exact(AllNotificationsKey())}
	if notificationID != 0 {
		out = append(out, cache.Exact(NotificationKey(notificationID)))
	}
	if recipientID != 0 {
		out = append(out, cache.Exact(UserNotificationsKey(recipientID)))
	}
	return out
}
