// Package handle provides owners for opaque, reference-counted native handles.
//
// A Ref is one logical owner of a native resource. It releases its reference exactly once, on
// Close, and only gains company through Clone, which asks the native library for another
// reference before handing out a second owner. Refs are not meant to be copied by value; pass
// the pointer.
package handle

import (
	"fmt"

	"github.com/pkg/errors"
	"go.uber.org/atomic"
)

// ErrClosed is returned when an owner is used after Close.
var ErrClosed = errors.New("handle already released")

// Kind describes the native calls managing one type of resource.
type Kind[H ~uintptr] struct {
	// Name is used in errors and logs, e.g. "image".
	Name string
	// Reference adds a native reference. Nil for kinds that cannot be shared.
	Reference func(H)
	// Release drops one native reference, or destroys the resource for unshared kinds.
	Release func(H)
}

// Ref owns one reference to a native resource.
type Ref[H ~uintptr] struct {
	kind     *Kind[H]
	h        H
	released atomic.Bool
}

// New adopts a handle returned by a native create/open/get call. The reference it carries is
// now owned by the returned Ref. A zero handle means the native call produced nothing and there
// is nothing to release.
func New[H ~uintptr](kind *Kind[H], h H) (*Ref[H], error) {
	if h == 0 {
		return nil, errors.Errorf("native %s handle is null", kind.Name)
	}
	return &Ref[H]{kind: kind, h: h}, nil
}

// Handle returns the native handle for passing back to native calls. It is zero once the Ref
// is closed.
func (r *Ref[H]) Handle() H {
	if r == nil || r.released.Load() {
		return 0
	}
	return r.h
}

// Valid reports whether the Ref still owns its reference.
func (r *Ref[H]) Valid() bool {
	return r != nil && !r.released.Load()
}

// Kind returns the name of the resource kind.
func (r *Ref[H]) Kind() string {
	return r.kind.Name
}

// Clone adds a native reference and returns a second owner of the same resource. Both owners
// must be closed.
func (r *Ref[H]) Clone() (*Ref[H], error) {
	if !r.Valid() {
		return nil, errors.Wrapf(ErrClosed, "cannot clone %s", r.kind.Name)
	}
	if r.kind.Reference == nil {
		return nil, errors.Errorf("native %s handles cannot be shared", r.kind.Name)
	}
	r.kind.Reference(r.h)
	return &Ref[H]{kind: r.kind, h: r.h}, nil
}

// Close releases the owned reference. Later calls do nothing.
func (r *Ref[H]) Close() error {
	if r == nil || !r.released.CompareAndSwap(false, true) {
		return nil
	}
	r.kind.Release(r.h)
	return nil
}

func (r *Ref[H]) String() string {
	if r == nil {
		return "<nil>"
	}
	if !r.Valid() {
		return fmt.Sprintf("%s(released)", r.kind.Name)
	}
	return fmt.Sprintf("%s(%#x)", r.kind.Name, uintptr(r.h))
}
