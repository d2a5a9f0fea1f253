package catalog

import (
	"strings"

	"github.com/Keksclan/rawrsync/transport"
)

// CreateProject is the body of POST /projects.
type CreateProject struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	CreatedBy   int64  `json:"created_by"`
}

func (p CreateProject) Validate() error {
	if strings.TrimSpace(p.Name) == "" {
		return transport.Invalid("name", "is required")
	}
	if p.CreatedBy <= 0 {
		return transport.Invalid("created_by", "must reference a user")
	}
	return nil
}

// UpdateProject is the body of PUT /projects. Empty fields are left as they
// are.
type UpdateProject struct {
	ID          int64  `json:"id"`
	Name        string `json:"name,omitempty"`
	Description string `json:"description,omitempty"`
	CreatedBy   int64  `json:"created_by,omitempty"`
}

func (p UpdateProject) Validate() error {
	if p.ID <= 0 {
		return transport.Invalid("id", "is required")
	}
	return nil
}

// AddMember names the project and user of POST /projects/add-member.
type AddMember struct {
	ProjectID int64
	UserID    int64
}

func (p AddMember) Validate() error {
	if p.ProjectID <= 0 {
		return transport.Invalid("projectId", "is required")
	}
	if p.UserID <= 0 {
		return transport.Invalid("userId", "is required")
	}
	return nil
}

// CreateTask is the body of POST /tasks.
type CreateTask struct {
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	Status      string `json:"status,omitempty"`
	Priority    string `json:"priority,omitempty"`
	Project     int64  `json:"project"`
	AssignedTo  int64  `json:"assigned_to,omitempty"`
	DueDate     string `json:"due_date,omitempty"`
}

func (p CreateTask) Validate() error {
	if strings.TrimSpace(p.Title) == "" {
		return transport.Invalid("title", "is required")
	}
	if p.Project <= 0 {
		return transport.Invalid("project", "must reference a project")
	}
	return nil
}

// UpdateTask is the body of PUT /tasks.
type UpdateTask struct {
	ID          int64  `json:"id"`
	Title       string `json:"title,omitempty"`
	Description string `json:"description,omitempty"`
	Status      string `json:"status,omitempty"`
	Priority    string `json:"priority,omitempty"`
	Project     int64  `json:"project,omitempty"`
	AssignedTo  int64  `json:"assigned_to,omitempty"`
	DueDate     string `json:"due_date,omitempty"`
}

func (p UpdateTask) Validate() error {
	if p.ID <= 0 {
		return transport.Invalid("id", "is required")
	}
	return nil
}

// SetTaskStatus addresses PUT /tasks/status-update/{status}/{id}.
type SetTaskStatus struct {
	TaskID int64
	Status string
}

func (p SetTaskStatus) Validate() error {
	if p.TaskID <= 0 {
		return transport.Invalid("taskId", "is required")
	}
	if strings.TrimSpace(p.Status) == "" {
		return transport.Invalid("status", "is required")
	}
	return nil
}

// SetTaskPriority addresses PUT /tasks/priority-update/{priority}/{id}.
type SetTaskPriority struct {
	TaskID   int64
	Priority string
}

func (p SetTaskPriority) Validate() error {
	if p.TaskID <= 0 {
		return transport.Invalid("taskId", "is required")
	}
	if strings.TrimSpace(p.Priority) == "" {
		return transport.Invalid("priority", "is required")
	}
	return nil
}

// Login is the body of POST /users/login.
type Login struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (p Login) Validate() error {
	if strings.TrimSpace(p.Email) == "" {
		return transport.Invalid("email", "is required")
	}
	if p.Password == "" {
		return transport.Invalid("password", "is required")
	}
	return nil
}

// CreateUser is the body of POST /users.
type CreateUser struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
	Role     string `json:"role"`
}

func (p CreateUser) Validate() error {
	switch {
	case strings.TrimSpace(p.Name) == "":
		return transport.Invalid("name", "is required")
	case !strings.Contains(p.Email, "@"):
		return transport.Invalid("email", "must be an address")
	case p.Password == "":
		return transport.Invalid("password", "is required")
	}
	return nil
}

// UpdateUser is sent to PUT /users/{id}; the id travels in the path.
type UpdateUser struct {
	ID       int64  `json:"-"`
	Name     string `json:"name,omitempty"`
	Email    string `json:"email,omitempty"`
	Password string `json:"password,omitempty"`
	Role     string `json:"role,omitempty"`
}

func (p UpdateUser) Validate() error {
	if p.ID <= 0 {
		return transport.Invalid("id", "is required")
	}
	if p.Email != "" && !strings.Contains(p.Email, "@") {
		return transport.Invalid("email", "must be an address")
	}
	return nil
}

// CreateNotification is the body of POST /notifications.
type CreateNotification struct {
	Message     string `json:"message"`
	RecipientID int64  `json:"recipientId"`
}

func (p CreateNotification) Validate() error {
	if strings.TrimSpace(p.Message) == "" {
		return transport.Invalid("message", "is required")
	}
	if p.RecipientID <= 0 {
		return transport.Invalid("recipientId", "must reference a user")
	}
	return nil
}

// UpdateNotification is sent to PUT /notifications/{id}.
type UpdateNotification struct {
	ID          int64  `json:"-"`
	Message     string `json:"message,omitempty"`
	RecipientID int64  `json:"recipientId,omitempty"`
}

func (p UpdateNotification) Validate() error {
	if p.ID <= 0 {
		return transport.Invalid("id", "is required")
	}
	return nil
}
