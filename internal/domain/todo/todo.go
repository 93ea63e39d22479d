// Package todo defines the todo decider: commands, events, and state.
package todo

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/Strob0t/eventweb/internal/domain"
	"github.com/Strob0t/eventweb/internal/port/eventstore"
	"github.com/Strob0t/eventweb/internal/service"
)

// Event types.
const (
	EventAdded     = "TodoAdded"
	EventCompleted = "TodoCompleted"
	EventRemoved   = "TodoRemoved"
)

// MaxTitleLength bounds the todo title.
const MaxTitleLength = 256

// Status is the lifecycle status of a todo.
type Status string

const (
	StatusMissing   Status = ""
	StatusOpen      Status = "open"
	StatusCompleted Status = "completed"
	StatusRemoved   Status = "removed"
)

// Todo is the folded state of a todo stream.
type Todo struct {
	ID          string     `json:"id"`
	Title       string     `json:"title"`
	Status      Status     `json:"status"`
	CreatedAt   time.Time  `json:"created_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// Exists reports whether the todo was added and not removed.
func (t Todo) Exists() bool {
	return t.Status == StatusOpen || t.Status == StatusCompleted
}

// Command is implemented by all todo commands.
type Command interface {
	isCommand()
}

// Add creates a new todo.
type Add struct {
	ID    string
	Title string
	Now   time.Time
}

// Complete marks a todo done.
type Complete struct {
	Now time.Time
}

// Remove deletes a todo.
type Remove struct{}

func (Add) isCommand()      {}
func (Complete) isCommand() {}
func (Remove) isCommand()   {}

type addedData struct {
	ID      string    `json:"id"`
	Title   string    `json:"title"`
	AddedAt time.Time `json:"added_at"`
}

type completedData struct {
	CompletedAt time.Time `json:"completed_at"`
}

// Decide validates cmd against state and returns the resulting events.
func Decide(cmd Command, state Todo) ([]eventstore.Event, error) {
	switch c := cmd.(type) {
	case Add:
		title := strings.TrimSpace(c.Title)
		if title == "" {
			return nil, domain.NewValidationError("title is required")
		}
		if len(title) > MaxTitleLength {
			return nil, domain.NewValidationError("title must be at most %d characters", MaxTitleLength)
		}
		if state.Status != StatusMissing {
			return nil, domain.NewIllegalStateError("todo %s already exists", c.ID)
		}
		ev, err := eventstore.NewEvent(EventAdded, addedData{ID: c.ID, Title: title, AddedAt: c.Now.UTC()})
		if err != nil {
			return nil, err
		}
		return []eventstore.Event{ev}, nil

	case Complete:
		if !state.Exists() {
			return nil, &domain.NotFoundError{Type: "todo", ID: state.ID}
		}
		if state.Status == StatusCompleted {
			return nil, domain.NewIllegalStateError("todo %s is already completed", state.ID)
		}
		ev, err := eventstore.NewEvent(EventCompleted, completedData{CompletedAt: c.Now.UTC()})
		if err != nil {
			return nil, err
		}
		return []eventstore.Event{ev}, nil

	case Remove:
		if state.Status == StatusRemoved {
			return nil, domain.NewIllegalStateError("todo %s was already removed", state.ID)
		}
		if !state.Exists() {
			return nil, &domain.NotFoundError{Type: "todo", ID: state.ID}
		}
		ev, err := eventstore.NewEvent(EventRemoved, struct{}{})
		if err != nil {
			return nil, err
		}
		return []eventstore.Event{ev}, nil
	}

	return nil, domain.NewValidationError("unknown command %T", cmd)
}

// Evolve applies a recorded event to state. Unknown events are ignored.
func Evolve(state Todo, ev eventstore.Event) Todo {
	switch ev.Type {
	case EventAdded:
		var d addedData
		if err := json.Unmarshal(ev.Data, &d); err != nil {
			return state
		}
		state.ID = d.ID
		state.Title = d.Title
		state.Status = StatusOpen
		state.CreatedAt = d.AddedAt
	case EventCompleted:
		var d completedData
		if err := json.Unmarshal(ev.Data, &d); err != nil {
			return state
		}
		state.Status = StatusCompleted
		state.CompletedAt = &d.CompletedAt
	case EventRemoved:
		state.Status = StatusRemoved
	}
	return state
}

// Decider wires Decide and Evolve for service.Handle.
var Decider = service.Decider[Todo, Command]{
	Decide:       Decide,
	Evolve:       Evolve,
	InitialState: func() Todo { return Todo{} },
}

// StreamID returns the event stream name for a todo id.
func StreamID(id string) string {
	return "todo-" + id
}
