package types

import (
	"errors"
	"fmt"
)

var (
	ErrUnknownAction = errors.New("unknown action")
	ErrNoSuchList    = errors.New("no such list")
)

type ActionType string

const (
	PushFront ActionType = "PushFront"
	PushBack  ActionType = "PushBack"
	PopFront  ActionType = "PopFront"
	PopBack   ActionType = "PopBack"
	Clear     ActionType = "Clear"
	Size      ActionType = "Size"
	Empty     ActionType = "Empty"
	Delete    ActionType = "Delete"
	Lists     ActionType = "Lists"
)

// DefaultList is used by commands that don't name a list.
const DefaultList = "default"

// Command is a single list operation sent over the command queue.
type Command struct {
	ID     string     `json:"id,omitempty"`
	List   string     `json:"list,omitempty"`
	Action ActionType `json:"action"`
	Value  int        `json:"value,omitempty"`
}

func (c *Command) ListName() string {
	if c.List == "" {
		return DefaultList
	}

	return c.List
}

func (c *Command) Validate() error {
	switch c.Action {
	case PushFront, PushBack, PopFront, PopBack, Clear, Size, Empty, Delete, Lists:
		return nil
	default:
		return fmt.Errorf("%w: %q", ErrUnknownAction, c.Action)
	}
}

// Reply reports the outcome of a command. Value is set only for successful
// pops, Lists only for the Lists action.
type Reply struct {
	ID     string     `json:"id,omitempty"`
	List   string     `json:"list"`
	Action ActionType `json:"action"`
	Value  *int       `json:"value,omitempty"`
	Size   uint64     `json:"size"`
	Empty  bool       `json:"empty"`
	Lists  []string   `json:"lists,omitempty"`
	Error  string     `json:"error,omitempty"`
}
