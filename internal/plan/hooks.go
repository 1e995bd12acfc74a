package plan

import (
	"context"
	"sort"
	"sync"
	"time"

	"gitlab.com/tozd/go/errors"

	"graphclone/pkg/clone"
	"graphclone/pkg/domain"
)

// Built-in hook names.
const (
	HookAppendCopySuffix = "append_copy_suffix"
	HookStampClonedAt    = "stamp_cloned_at"
)

// CopySuffix is appended to the name of copies by append_copy_suffix.
const CopySuffix = " (copy)"

// ErrUnknownHook is returned when a plan names a hook nobody registered.
var ErrUnknownHook = errors.Base("unknown hook")

// Hooks maps hook names used in plan files to clone hooks.
type Hooks struct {
	mu    sync.RWMutex
	hooks map[string]clone.Hook
}

// NewHooks returns a registry holding the built-in hooks. now drives
// stamp_cloned_at and defaults to the UTC wall clock.
func NewHooks(now func() time.Time) *Hooks {
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	h := &Hooks{hooks: make(map[string]clone.Hook)}
	h.hooks[HookAppendCopySuffix] = appendCopySuffix
	h.hooks[HookStampClonedAt] = func(_ context.Context, copy domain.Entity) error {
		return copy.SetAttribute("cloned_at", now().Format(time.RFC3339Nano))
	}
	return h
}

// Register adds a named hook. Names are unique.
func (h *Hooks) Register(name string, hook clone.Hook) error {
	if name == "" || hook == nil {
		return errors.New("hook needs a name and a function")
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.hooks[name]; ok {
		return errors.Errorf("hook %q already registered", name)
	}
	h.hooks[name] = hook
	return nil
}

// Names lists registered hooks in lexical order.
func (h *Hooks) Names() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]string, 0, len(h.hooks))
	for name := range h.hooks {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// lookup returns nil for an empty name.
func (h *Hooks) lookup(name string) (clone.Hook, error) {
	if name == "" {
		return nil, nil
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	hook, ok := h.hooks[name]
	if !ok {
		return nil, errors.Errorf("%w: %s", ErrUnknownHook, name)
	}
	return hook, nil
}

type attributeReader interface {
	Attribute(name string) (any, bool)
}

func appendCopySuffix(_ context.Context, copy domain.Entity) error {
	r, ok := copy.(attributeReader)
	if !ok {
		return nil
	}
	name, ok := r.Attribute("name")
	if !ok {
		return nil
	}
	s, ok := name.(string)
	if !ok || s == "" {
		return nil
	}
	return copy.SetAttribute("name", s+CopySuffix)
}
