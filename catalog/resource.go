package catalog

import (
	"slices"

	"github.com/Keksclan/rawrsync/cache"
)

// Resources. The set is closed: every cache key used by the api package is
// built by one of the constructors below.
const (
	AllProjects      cache.Resource = "all-projects"
	ProjectByID      cache.Resource = "project-by-id"
	MyProjects       cache.Resource = "my-projects"
	OwnedProjects    cache.Resource = "owned-projects"
	MembersOfProject cache.Resource = "members-of-project"
	ProjectOwner     cache.Resource = "project-owner"

	AllTasks             cache.Resource = "all-tasks"
	TaskByID             cache.Resource = "task-by-id"
	TasksOfUser          cache.Resource = "tasks-of-user"
	TasksOfProject       cache.Resource = "tasks-of-project"
	FilteredProjectTasks cache.Resource = "filtered-project-tasks"

	AllUsers    cache.Resource = "all-users"
	UserByID    cache.Resource = "user-by-id"
	UserByEmail cache.Resource = "user-by-email"

	AllNotifications    cache.Resource = "all-notifications"
	NotificationByID    cache.Resource = "notification-by-id"
	NotificationsOfUser cache.Resource = "notifications-of-user"
)

// Arity describes which key parameters a resource uses.
type Arity int

const (
	NoParams Arity = iota
	IDParam
	TextParam
	IDAndText
)

var arities = map[cache.Resource]Arity{
	AllProjects:      NoParams,
	ProjectByID:      IDParam,
	MyProjects:       IDParam,
	OwnedProjects:    IDParam,
	MembersOfProject: IDParam,
	ProjectOwner:     IDParam,

	AllTasks:             NoParams,
	TaskByID:             IDParam,
	TasksOfUser:          IDParam,
	TasksOfProject:       IDParam,
	FilteredProjectTasks: IDAndText,

	AllUsers:    NoParams,
	UserByID:    IDParam,
	UserByEmail: TextParam,

	AllNotifications:    NoParams,
	NotificationByID:    IDParam,
	NotificationsOfUser: IDParam,
}

// Resources returns every resource in name order.
func Resources() []cache.Resource {
	out := make([]cache.Resource, 0, len(arities))
	for r := range arities {
		out = append(out, r)
	}
	slices.Sort(out)
	return out
}

// ArityOf returns the arity of r and whether r is a known resource.
func ArityOf(r cache.Resource) (Arity, bool) {
	a, ok := arities[r]
	return a, ok
}

// Valid reports whether k belongs to a known resource and carries exactly
// the parameters that resource uses.
func Valid(k cache.Key) bool {
	a, ok := arities[k.Resource]
	if !ok {
		return false
	}
	hasID, hasText := k.ID != 0, k.Text != ""
	switch a {
	case NoParams:
		return !hasID && !hasText
	case IDParam:
		return hasID && !hasText
	case TextParam:
		return !hasID && hasText
	default:
		return hasID && hasText
	}
}

func idKey(r cache.Resource, id int64) cache.Key { return cache.Key{Resource: r, ID: id} }

func AllProjectsKey() cache.Key               { return cache.Key{Resource: AllProjects} }
func ProjectKey(id int64) cache.Key           { return idKey(ProjectByID, id) }
func MyProjectsKey(userID int64) cache.Key    { return idKey(MyProjects, userID) }
func OwnedProjectsKey(userID int64) cache.Key { return idKey(OwnedProjects, userID) }
func MembersKey(projectID int64) cache.Key    { return idKey(MembersOfProject, projectID) }
func OwnerKey(projectID int64) cache.Key      { return idKey(ProjectOwner, projectID) }

func AllTasksKey() cache.Key                    { return cache.Key{Resource: AllTasks} }
func TaskKey(id int64) cache.Key                { return idKey(TaskByID, id) }
func UserTasksKey(userID int64) cache.Key       { return idKey(TasksOfUser, userID) }
func ProjectTasksKey(projectID int64) cache.Key { return idKey(TasksOfProject, projectID) }

// FilteredTasksKey addresses the tasks of projectID matching filter.
func FilteredTasksKey(projectID int64, filter string) cache.Key {
	return cache.Key{Resource: FilteredProjectTasks, ID: projectID, Text: filter}
}

func AllUsersKey() cache.Key                { return cache.Key{Resource: AllUsers} }
func UserKey(id int64) cache.Key            { return idKey(UserByID, id) }
func UserByEmailKey(email string) cache.Key { return cache.Key{Resource: UserByEmail, Text: email} }

func AllNotificationsKey() cache.Key              { return cache.Key{Resource: AllNotifications} }
func NotificationKey(id int64) cache.Key          { return idKey(NotificationByID, id) }
func UserNotificationsKey(userID int64) cache.Key { return idKey(NotificationsOfUser, userID) }
