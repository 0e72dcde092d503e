package event

import "time"

// Event kinds emitted by the porter server. The set is open: unknown kinds
// pass through dispatch untouched and are simply unmapped in the router.
const (
	KindTaskCreated        = "TaskCreated"
	KindTaskUpdated        = "TaskUpdated"
	KindTaskDeleted        = "TaskDeleted"
	KindAgentOutput        = "AgentOutput"
	KindAgentStatusChanged = "AgentStatusChanged"
	KindNotification       = "Notification"
)

// TaskStatus is the lifecycle state of a task.
type TaskStatus string

// Task statuses
const (
	TaskPending    TaskStatus = "pending"
	TaskInProgress TaskStatus = "in_progress"
	TaskCompleted  TaskStatus = "completed"
	TaskCancelled  TaskStatus = "cancelled"
)

// ParseTaskStatus validates a wire status string.
func ParseTaskStatus(s string) (TaskStatus, bool) {
	switch TaskStatus(s) {
	case TaskPending, TaskInProgress, TaskCompleted, TaskCancelled:
		return TaskStatus(s), true
	default:
		return "", false
	}
}

// TaskPriority orders tasks for display and scheduling.
type TaskPriority string

// Task priorities
const (
	PriorityLow    TaskPriority = "low"
	PriorityMedium TaskPriority = "medium"
	PriorityHigh   TaskPriority = "high"
	PriorityUrgent TaskPriority = "urgent"
)

// ParseTaskPriority validates a wire priority string.
func ParseTaskPriority(s string) (TaskPriority, bool) {
	switch TaskPriority(s) {
	case PriorityLow, PriorityMedium, PriorityHigh, PriorityUrgent:
		return TaskPriority(s), true
	default:
		return "", false
	}
}

// Task is the payload of TaskCreated and TaskUpdated events and the
// resource returned by the tasks API.
type Task struct {
	ID            string       `json:"id"`
	Title         string       `json:"title"`
	Description   *string      `json:"description,omitempty"`
	Status        TaskStatus   `json:"status"`
	Priority      TaskPriority `json:"priority"`
	Tags          []string     `json:"tags"`
	DueDate       *time.Time   `json:"due_date,omitempty"`
	IntegrationID *string      `json:"integration_id,omitempty"`
	CreatedAt     time.Time    `json:"created_at"`
	UpdatedAt     time.Time    `json:"updated_at"`
}

// AgentStatus is the lifecycle state of an agent session.
type AgentStatus string

// Agent session statuses
const (
	AgentRunning   AgentStatus = "running"
	AgentPaused    AgentStatus = "paused"
	AgentCompleted AgentStatus = "completed"
	AgentFailed    AgentStatus = "failed"
	AgentCancelled AgentStatus = "cancelled"
)

// ParseAgentStatus validates a wire status string.
func ParseAgentStatus(s string) (AgentStatus, bool) {
	switch AgentStatus(s) {
	case AgentRunning, AgentPaused, AgentCompleted, AgentFailed, AgentCancelled:
		return AgentStatus(s), true
	default:
		return "", false
	}
}

// Terminal reports whether the session has finished and its durable message
// history is authoritative.
func (s AgentStatus) Terminal() bool {
	return s == AgentCompleted || s == AgentFailed || s == AgentCancelled
}

// AgentSession is an agent run owned by the server. The realtime core only
// observes its id and status; lifecycle belongs to the server.
type AgentSession struct {
	ID               string      `json:"id"`
	Prompt           string      `json:"prompt"`
	Status           AgentStatus `json:"status"`
	Model            string      `json:"model"`
	WorkingDirectory *string     `json:"working_directory,omitempty"`
	StartedAt        time.Time   `json:"started_at"`
	CompletedAt      *time.Time  `json:"completed_at,omitempty"`
}

// AgentMessage is a durably stored message belonging to a session.
type AgentMessage struct {
	ID        string    `json:"id"`
	SessionID string    `json:"session_id"`
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// AgentOutputData is the payload of AgentOutput events: one streamed content
// fragment for a running session. ContentType is one of "text", "thinking",
// "tool_use".
type AgentOutputData struct {
	SessionID   string `json:"session_id"`
	Content     string `json:"content"`
	ContentType string `json:"content_type"`
}

// AgentStatusChangedData is the payload of AgentStatusChanged events.
type AgentStatusChangedData struct {
	SessionID string      `json:"session_id"`
	Status    AgentStatus `json:"status"`
}

// Notification is the payload of Notification events.
type Notification struct {
	ID               string    `json:"id"`
	NotificationType string    `json:"notification_type"`
	Message          string    `json:"message"`
	Read             bool      `json:"read"`
	IntegrationID    *string   `json:"integration_id,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
}

// ServerStatus is the summary resource returned by the status API.
type ServerStatus struct {
	InstanceName        string   `json:"instance_name"`
	Version             string   `json:"version"`
	UptimeSeconds       uint64   `json:"uptime_seconds"`
	ActiveIntegrations  []string `json:"active_integrations"`
	McpServers          []string `json:"mcp_servers"`
	ActiveAgentSessions int      `json:"active_agent_sessions"`
	PendingTasks        int      `json:"pending_tasks"`
}
