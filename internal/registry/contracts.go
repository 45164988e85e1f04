package registry

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
)

// Contract declares that its holder needs the object at an Index. The
// registry keeps a ledger of open contracts so that missing factories can be
// found before anything is built. Close the contract when the holder goes
// away.
type Contract[T any] struct {
	reg    *Registry
	index  Index
	id     uint64
	closed atomic.Bool
}

// NewContract opens a contract on r for the instance name of type T.
func NewContract[T any](r *Registry, name string) *Contract[T] {
	c := &Contract[T]{reg: r, index: IndexOf[T](name)}
	r.contracts.add(c)
	return c
}

func (c *Contract[T]) Index() Index { return c.index }
func (c *Contract[T]) ID() uint64   { return c.id }

func (c *Contract[T]) setID(id uint64) { c.id = id }

// Get resolves the object, building it if needed.
func (c *Contract[T]) Get(ctx context.Context) (T, error) {
	return Get(ctx, c.reg, c)
}

// TryGet resolves the object and discards it.
func (c *Contract[T]) TryGet(ctx context.Context) error {
	_, err := c.Get(ctx)
	return err
}

// Exists reports whether the object is already built.
func (c *Contract[T]) Exists() bool {
	return Exists(c.reg, c)
}

// Close removes the contract from the ledger. Idempotent.
func (c *Contract[T]) Close() error {
	if c.closed.CompareAndSwap(false, true) {
		c.reg.contracts.remove(c.id)
	}
	return nil
}

// contractRecord is the ledger's view of a Contract of any type.
type contractRecord interface {
	Index() Index
	ID() uint64
	TryGet(ctx context.Context) error
	setID(id uint64)
}

// ContractRef identifies an open contract.
type ContractRef struct {
	ID    uint64
	Index Index
}

func (r ContractRef) String() string {
	return r.Index.String()
}

// ContractFailure is one contract that TestAllContracts could not resolve.
type ContractFailure struct {
	Ref ContractRef
	Err error
}

func (f *ContractFailure) Error() string {
	return fmt.Sprintf("contract %s: %v", f.Ref, f.Err)
}

func (f *ContractFailure) Unwrap() error { return f.Err }

type contractLedger struct {
	mu      sync.Mutex
	nextID  uint64
	records []contractRecord
}

func (l *contractLedger) add(rec contractRecord) uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.nextID++
	rec.setID(l.nextID)
	l.records = append(l.records, rec)
	return l.nextID
}

func (l *contractLedger) remove(id uint64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for i, rec := range l.records {
		if rec.ID() == id {
			l.records = append(l.records[:i], l.records[i+1:]...)
			return
		}
	}
}

func (l *contractLedger) snapshot() []contractRecord {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]contractRecord(nil), l.records...)
}

func (l *contractLedger) len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.records)
}
