// Package hooks implements the plugin hook surface of a compilation session.
//
// A Registry is created with the session and passed by reference to the make pass.
// Taps may be added at any time; calls are safe from worker goroutines.
package hooks

import (
	"context"
	"fmt"
	"sync"

	"bundlegraph/internal/errors"
	"bundlegraph/internal/module"
)

// PassInfo describes the make pass that is starting
type PassInfo struct {
	SessionID     string
	Entries       int
	ModifiedFiles int
	RemovedFiles  int
	Forced        int
}

// PassStartFunc runs before any task of a pass is scheduled
type PassStartFunc func(ctx context.Context, info PassInfo) error

// ModuleFunc runs for a single module
type ModuleFunc func(ctx context.Context, m module.Module) error

// SucceedFunc runs after a module was built without error
type SucceedFunc func(ctx context.Context, m module.Module, res *module.BuildResult) error

type tap[F any] struct {
	name string
	fn   F
}

// Registry holds the taps of every hook. The zero value is not usable; call New.
// A nil *Registry is valid and calls nothing.
type Registry struct {
	mu sync.RWMutex

	passStart     []tap[PassStartFunc]
	beforeBuild   []tap[ModuleFunc]
	succeedModule []tap[SucceedFunc]
	stillValid    []tap[ModuleFunc]
}

// New creates an empty registry
func New() *Registry {
	return &Registry{}
}

// OnPassStart taps the pass start hook
func (r *Registry) OnPassStart(name string, fn PassStartFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.passStart = append(r.passStart, tap[PassStartFunc]{name, fn})
}

// OnBeforeBuild taps the hook that runs before a module build
func (r *Registry) OnBeforeBuild(name string, fn ModuleFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.beforeBuild = append(r.beforeBuild, tap[ModuleFunc]{name, fn})
}

// OnSucceedModule taps the hook that runs after a fresh successful build
func (r *Registry) OnSucceedModule(name string, fn SucceedFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.succeedModule = append(r.succeedModule, tap[SucceedFunc]{name, fn})
}

// OnStillValidModule taps the hook that runs when a cached build was revalidated
func (r *Registry) OnStillValidModule(name string, fn ModuleFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stillValid = append(r.stillValid, tap[ModuleFunc]{name, fn})
}

// PassStart calls the pass start taps in registration order and stops at the first error
func (r *Registry) PassStart(ctx context.Context, info PassInfo) error {
	if r == nil {
		return nil
	}
	r.mu.RLock()
	taps := r.passStart
	r.mu.RUnlock()

	for _, t := range taps {
		if err := t.fn(ctx, info); err != nil {
			return hookError("passStart", t.name, "", err)
		}
	}
	return nil
}

// BeforeBuild calls the before build taps
func (r *Registry) BeforeBuild(ctx context.Context, m module.Module) error {
	if r == nil {
		return nil
	}
	r.mu.RLock()
	taps := r.beforeBuild
	r.mu.RUnlock()

	for _, t := range taps {
		if err := t.fn(ctx, m); err != nil {
			return hookError("beforeBuild", t.name, m.Identifier(), err)
		}
	}
	return nil
}

// SucceedModule calls the succeed module taps
func (r *Registry) SucceedModule(ctx context.Context, m module.Module, res *module.BuildResult) error {
	if r == nil {
		return nil
	}
	r.mu.RLock()
	taps := r.succeedModule
	r.mu.RUnlock()

	for _, t := range taps {
		if err := t.fn(ctx, m, res); err != nil {
			return hookError("succeedModule", t.name, m.Identifier(), err)
		}
	}
	return nil
}

// StillValidModule calls the still valid taps
func (r *Registry) StillValidModule(ctx context.Context, m module.Module) error {
	if r == nil {
		return nil
	}
	r.mu.RLock()
	taps := r.stillValid
	r.mu.RUnlock()

	for _, t := range taps {
		if err := t.fn(ctx, m); err != nil {
			return hookError("stillValidModule", t.name, m.Identifier(), err)
		}
	}
	return nil
}

func hookError(hook, name string, id module.Identifier, err error) error {
	e := errors.Wrap(errors.HookFailed, fmt.Sprintf("%s hook %q failed", hook, name), err)
	if id != "" {
		e = e.WithModule(string(id))
	}
	return e
}
