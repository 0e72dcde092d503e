package apiclient

import (
	"time"

	"github.com/shnupta/porter/event"
)

// CreateTaskRequest is the body of POST /api/tasks.
type CreateTaskRequest struct {
	Title       string              `json:"title"`
	Description *string             `json:"description,omitempty"`
	Priority    *event.TaskPriority `json:"priority,omitempty"`
	Tags        []string            `json:"tags,omitempty"`
	DueDate     *time.Time          `json:"due_date,omitempty"`
}

// UpdateTaskRequest is the body of PUT /api/tasks/{id}. Nil fields are left
// unchanged by the server.
type UpdateTaskRequest struct {
	Title       *string             `json:"title,omitempty"`
	Description *string             `json:"description,omitempty"`
	Status      *event.TaskStatus   `json:"status,omitempty"`
	Priority    *event.TaskPriority `json:"priority,omitempty"`
	Tags        []string            `json:"tags,omitempty"`
	DueDate     *time.Time          `json:"due_date,omitempty"`
}

// StartSessionRequest is the body of POST /api/agents.
type StartSessionRequest struct {
	Prompt                     string  `json:"prompt"`
	Directory                  *string `json:"directory,omitempty"`
	DangerouslySkipPermissions bool    `json:"dangerously_skip_permissions"`
}

// SendMessageRequest is the body of POST /api/agents/{id}/messages.
type SendMessageRequest struct {
	Content string `json:"content"`
}
