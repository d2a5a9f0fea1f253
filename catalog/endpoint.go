package catalog

import (
	"net/url"
	"strconv"
	"strings"
)

// DefaultPrefix roots every endpoint path.
const DefaultPrefix = "/api"

// Endpoints builds request paths below a common prefix.
type Endpoints struct {
	prefix string
}

// NewEndpoints returns Endpoints rooted at prefix. A trailing slash is
// dropped and a missing leading slash added; "" and "/" mean no prefix.
func NewEndpoints(prefix string) Endpoints {
	prefix = strings.TrimRight(strings.TrimSpace(prefix), "/")
	if prefix != "" && !strings.HasPrefix(prefix, "/") {
		prefix = "/" + prefix
	}
	return Endpoints{prefix: prefix}
}

// Prefix returns the normalized prefix.
func (e Endpoints) Prefix() string { return e.prefix }

func (e Endpoints) path(parts ...string) string {
	var b strings.Builder
	b.WriteString(e.prefix)
	for _, p := range parts {
		b.WriteByte('/')
		b.WriteString(p)
	}
	return b.String()
}

func id(v int64) string { return strconv.FormatInt(v, 10) }

func (e Endpoints) Projects() string               { return e.path("projects") }
func (e Endpoints) Project(projectID int64) string { return e.path("projects", id(projectID)) }
func (e Endpoints) MyProjects(userID int64) string { return e.path("projects", "my-projects", id(userID)) }
func (e Endpoints) OwnedProjects(userID int64) string {
	return e.path("projects", "owned-projects", id(userID))
}
func (e Endpoints) Members(projectID int64) string { return e.path("projects", "members", id(projectID)) }
func (e Endpoints) Owner(projectID int64) string   { return e.path("projects", "created-by", id(projectID)) }
func (e Endpoints) AddMember(projectID, userID int64) string {
	return e.path("projects", "add-member", id(projectID), id(userID))
}

func (e Endpoints) Tasks() string                     { return e.path("tasks") }
func (e Endpoints) Task(taskID int64) string          { return e.path("tasks", id(taskID)) }
func (e Endpoints) AssignedTasks(userID int64) string { return e.path("tasks", "assigned-to", id(userID)) }
func (e Endpoints) ProjectTasks(projectID int64) string {
	return e.path("tasks", "by-project", id(projectID))
}
func (e Endpoints) FilterTasks(projectID int64, filter string) string {
	return e.path("tasks", "filter", id(projectID), url.PathEscape(filter))
}
func (e Endpoints) TaskStatus(taskID int64, status string) string {
	return e.path("tasks", "status-update", url.PathEscape(status), id(taskID))
}
func (e Endpoints) TaskPriority(taskID int64, priority string) string {
	return e.path("tasks", "priority-update", url.PathEscape(priority), id(taskID))
}
func (e Endpoints) GeneratePriority() string { return e.path("tasks", "generate-priority") }

func (e Endpoints) Users() string            { return e.path("users") }
func (e Endpoints) User(userID int64) string { return e.path("users", id(userID)) }
func (e Endpoints) UserByEmail(email string) string {
	return e.path("users", "email-"+url.PathEscape(email))
}
func (e Endpoints) Login() string { return e.path("users", "login") }

func (e Endpoints) Notifications() string { return e.path("notifications") }
func (e Endpoints) Notification(notificationID int64) string {
	return e.path("notifications", id(notificationID))
}
func (e Endpoints) UserNotifications(userID int64) string {
	return e.path("notifications", "user", id(userID))
}
