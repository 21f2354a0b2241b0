package token

import (
	"errors"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

// ErrUnknownToken is returned for operations on a token id that was never
// issued or has been destroyed.
var ErrUnknownToken = errors.New("unknown token")

// ErrWrongOwner is returned when a transfer names a from address that does
// not hold the token.
var ErrWrongOwner = errors.New("wrong owner")

// Registry is the ownership-token capability this core requires from its
// token collaborator. The ledger never re-implements token transfer
// semantics; it only consumes this surface.
type Registry interface {
	Issue(owner common.Address) uint64
	Destroy(id uint64) error
	Transfer(id uint64, from, to common.Address) error
	Approve(id uint64, operator common.Address) error
	OwnerOf(id uint64) (common.Address, error)
	IsAuthorized(id uint64, actor common.Address) bool
}

// TransferHook is invoked synchronously after every successful transfer so
// dependent state (the per-owner liquidity index) stays consistent.
type TransferHook func(id uint64, from, to common.Address)

// InMemoryRegistry is a minimal in-process Registry implementation.
type InMemoryRegistry struct {
	mu        sync.Mutex
	nextID    uint64
	owners    map[uint64]common.Address
	operators map[uint64]common.Address
	hook      TransferHook
}

// NewInMemoryRegistry builds a registry. The hook may be nil.
func NewInMemoryRegistry(hook TransferHook) *InMemoryRegistry {
	return &InMemoryRegistry{
		nextID:    1,
		owners:    make(map[uint64]common.Address),
		operators: make(map[uint64]common.Address),
		hook:      hook,
	}
}

// SetTransferHook installs the transfer hook after construction, for
// wiring cycles where the ledger is built after the registry.
func (r *InMemoryRegistry) SetTransferHook(hook TransferHook) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.hook = hook
}

// Issue mints a new token to owner and returns its id.
func (r *InMemoryRegistry) Issue(owner common.Address) uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	id := r.nextID
	r.nextID++
	r.owners[id] = owner
	return id
}

// Destroy removes a token.
func (r *InMemoryRegistry) Destroy(id uint64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.owners[id]; !ok {
		return fmt.Errorf("%w: %d", ErrUnknownToken, id)
	}
	delete(r.owners, id)
	delete(r.operators, id)
	return nil
}

// Transfer moves a token between owners, drops any delegated operator,
// and fires the transfer hook synchronously.
func (r *InMemoryRegistry) Transfer(id uint64, from, to common.Address) error {
	r.mu.Lock()
	owner, ok := r.owners[id]
	if !ok {
		r.mu.Unlock()
		return fmt.Errorf("%w: %d", ErrUnknownToken, id)
	}
	if owner != from {
		r.mu.Unlock()
		return fmt.Errorf("%w: token %d held by %s", ErrWrongOwner, id, owner)
	}
	r.owners[id] = to
	delete(r.operators, id)
	hook := r.hook
	r.mu.Unlock()

	if hook != nil {
		hook(id, from, to)
	}
	return nil
}

// Approve delegates operator rights for one token.
func (r *InMemoryRegistry) Approve(id uint64, operator common.Address) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.owners[id]; !ok {
		return fmt.Errorf("%w: %d", ErrUnknownToken, id)
	}
	r.operators[id] = operator
	return nil
}

// OwnerOf returns the current holder.
func (r *InMemoryRegistry) OwnerOf(id uint64) (common.Address, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	owner, ok := r.owners[id]
	if !ok {
		return common.Address{}, fmt.Errorf("%w: %d", ErrUnknownToken, id)
	}
	return owner, nil
}

// IsAuthorized reports whether actor is the owner or delegated operator.
func (r *InMemoryRegistry) IsAuthorized(id uint64, actor common.Address) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	owner, ok := r.owners[id]
	if !ok {
		return false
	}
	if owner == actor {
		return true
	}
	return r.operators[id] == actor
}

var _ Registry = (*InMemoryRegistry)(nil)
