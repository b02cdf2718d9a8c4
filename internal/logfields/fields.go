// Package logfields holds the structured logging keys shared by kernel
// components so log lines can be filtered consistently.
package logfields

const (
	Component = "component"
	KernelID  = "kernel"
	TaskID    = "tid"
	TaskName  = "task"
	State     = "state"
	From      = "from"
	To        = "to"

	Run   = "run"
	Pages = "pages"
	Free  = "free"

	Status = "status"
)
