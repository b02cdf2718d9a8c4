package scheduler

import (
	"context"
	"errors"
	"fmt"

	"github.com/samber/lo"
	"github.com/viant/kernsim/service/dao"
	"github.com/viant/kernsim/service/dao/store"
)

// Table is the fixed-capacity task table keyed by TaskID.
type Table struct {
	records  *store.MemoryStore[TaskID, ControlBlock]
	dao      dao.Service[TaskID, ControlBlock]
	capacity int
}

// NewTable creates a table holding at most capacity tasks.
func NewTable(capacity int) *Table {
	records := store.NewMemoryStore[TaskID, ControlBlock](func(c *ControlBlock) TaskID { return c.ID }, capacity)
	return &Table{records: records, dao: records, capacity: capacity}
}

// Insert stores a new control block.
func (t *Table) Insert(ctx context.Context, block *ControlBlock) error {
	if t.Full() {
		return fmt.Errorf("%w: capacity %d", ErrTaskTableFull, t.capacity)
	}
	if err := t.dao.Save(ctx, block); err != nil {
		if errors.Is(err, dao.ErrFull) {
			return fmt.Errorf("%w: capacity %d", ErrTaskTableFull, t.capacity)
		}
		return err
	}
	return nil
}

// Load returns the live control block for id.
func (t *Table) Load(ctx context.Context, id TaskID) (*ControlBlock, error) {
	block, err := t.dao.Load(ctx, id)
	if err != nil {
		if errors.Is(err, dao.ErrNotFound) {
			return nil, fmt.Errorf("%w: %v", ErrUnknownTask, id)
		}
		return nil, err
	}
	return block, nil
}

// Remove reclaims the slot of id.
func (t *Table) Remove(ctx context.Context, id TaskID) error {
	if err := t.dao.Delete(ctx, id); err != nil {
		if errors.Is(err, dao.ErrNotFound) {
			return fmt.Errorf("%w: %v", ErrUnknownTask, id)
		}
		return err
	}
	return nil
}

// List returns live blocks in id order, filtered by the "state" and "name"
// parameters when given.
func (t *Table) List(ctx context.Context, parameters ...*dao.Parameter) ([]*ControlBlock, error) {
	blocks, err := t.dao.List(ctx)
	if err != nil {
		return nil, err
	}
	state := dao.Lookup("state", parameters)
	name := dao.Lookup("name", parameters)
	return lo.Filter(blocks, func(block *ControlBlock, _ int) bool {
		if state != nil && !state.Matches(string(block.State)) {
			return false
		}
		if name != nil && !name.Matches(block.Name) {
			return false
		}
		return true
	}), nil
}

// Count returns the number of live tasks in state.
func (t *Table) Count(ctx context.Context, state State) int {
	blocks, _ := t.List(ctx, dao.NewParameter("state", string(state)))
	return len(blocks)
}

func (t *Table) Len() int {
	return t.records.Len()
}

func (t *Table) Cap() int {
	return t.capacity
}

func (t *Table) Full() bool {
	return t.records.Len() >= t.capacity
}
