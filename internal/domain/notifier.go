package domain

// NotifyLevel classifies a user-visible automation signal.
type NotifyLevel string

const (
	NotifyInfo    NotifyLevel = "info"
	NotifySuccess NotifyLevel = "success"
	NotifyError   NotifyLevel = "error"
)

// Notification is one user-visible signal emitted by the orchestrator,
// e.g. "all topics complete" or "updated 3 answers".
type Notification struct {
	Level   NotifyLevel `json:"level"`
	Message string      `json:"message"`
}

// Notifier is the port the orchestrator emits signals through. The
// presentation layer (control API status, toasts) consumes them.
type Notifier interface {
	Notify(level NotifyLevel, message string)
}
