package memstore

import (
	"fmt"
	"maps"

	"github.com/pg-sharding/xorder/pkg/xlog"
)

// Command is one reversible store mutation.
type Command interface {
	Do() error
	Undo() error
}

func NewPutCommand[T any](m map[string]T, key string, value T) *PutCommand[T] {
	return &PutCommand[T]{m: m, key: key, value: value}
}

type PutCommand[T any] struct {
	m         map[string]T
	key       string
	value     T
	prevValue T
	present   bool
}

func (c *PutCommand[T]) Do() error {
	c.prevValue, c.present = c.m[c.key]
	c.m[c.key] = c.value
	return nil
}

func (c *PutCommand[T]) Undo() error {
	if !c.present {
		delete(c.m, c.key)
	} else {
		c.m[c.key] = c.prevValue
	}
	return nil
}

func NewDeleteCommand[T any](m map[string]T, key string) *DeleteCommand[T] {
	return &DeleteCommand[T]{m: m, key: key}
}

type DeleteCommand[T any] struct {
	m       map[string]T
	key     string
	value   T
	present bool
}

func (c *DeleteCommand[T]) Do() error {
	c.value, c.present = c.m[c.key]
	if !c.present {
		return fmt.Errorf("document %q not found", c.key)
	}
	delete(c.m, c.key)
	return nil
}

func (c *DeleteCommand[T]) Undo() error {
	if c.present {
		c.m[c.key] = c.value
	}
	return nil
}

func NewTruncateCommand[T any](m map[string]T) *TruncateCommand[T] {
	return &TruncateCommand[T]{m: m}
}

type TruncateCommand[T any] struct {
	m    map[string]T
	copy map[string]T
}

func (c *TruncateCommand[T]) Do() error {
	c.copy = maps.Clone(c.m)
	clear(c.m)
	return nil
}

func (c *TruncateCommand[T]) Undo() error {
	maps.Copy(c.m, c.copy)
	return nil
}

func NewCustomCommand(do func() error, undo func() error) *CustomCommand {
	return &CustomCommand{do: do, undo: undo}
}

type CustomCommand struct {
	do   func() error
	undo func() error
}

func (c *CustomCommand) Do() error {
	return c.do()
}

func (c *CustomCommand) Undo() error {
	return c.undo()
}

// ExecuteCommands applies commands in order and persists the result with
// saver. On any failure the applied commands are undone in reverse order.
func ExecuteCommands(saver func() error, commands ...Command) error {
	completed := len(commands)
	var err error
	for i, c := range commands {
		if err = c.Do(); err != nil {
			completed = i
			break
		}
	}
	if err == nil {
		err = saver()
	}
	if err == nil {
		return nil
	}

	xlog.Zero.Info().Err(err).Int("commands", completed).Msg("memstore: undo commands")
	for i := completed - 1; i >= 0; i-- {
		if undoErr := commands[i].Undo(); undoErr != nil {
			return fmt.Errorf("failed to undo command %s while: %s", undoErr.Error(), err.Error())
		}
	}
	return err
}
