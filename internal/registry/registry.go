// Package registry holds the immutable table of actions a dispatcher may run.
package registry

import (
	"errors"
	"fmt"
	"regexp"
	"sort"

	"github.com/go-playground/validator/v10"
)

var (
	ErrDuplicateAction = errors.New("duplicate action")
	ErrInvalidAction   = errors.New("invalid action metadata")
)

var actionName = regexp.MustCompile(`^[a-z0-9][a-z0-9_-]*$`)

var validate = validator.New()

func init() {
	_ = validate.RegisterValidation("action_name", func(fl validator.FieldLevel) bool {
		return actionName.MatchString(fl.Field().String())
	})
}

// ActionMetadata describes a registered action and the plugin implementing it.
type ActionMetadata struct {
	Name        string `json:"name" validate:"required,action_name"`
	Description string `json:"description" validate:"required"`
	PluginPath  string `json:"plugin_path" validate:"required"`
}

// Registry is built once at startup and only read afterwards, so it is safe
// for concurrent use without locking.
type Registry struct {
	items map[string]ActionMetadata
}

// New validates actions and builds a registry from them.
func New(actions ...ActionMetadata) (*Registry, error) {
	items := make(map[string]ActionMetadata, len(actions))
	for _, a := range actions {
		if err := validate.Struct(a); err != nil {
			return nil, fmt.Errorf("%w %q: %v", ErrInvalidAction, a.Name, err)
		}
		if _, ok := items[a.Name]; ok {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateAction, a.Name)
		}
		items[a.Name] = a
	}
	return &Registry{items: items}, nil
}

// Lookup returns the metadata for name. An unknown name is not an error.
func (r *Registry) Lookup(name string) (ActionMetadata, bool) {
	a, ok := r.items[name]
	return a, ok
}

// List returns all actions ordered by name.
func (r *Registry) List() []ActionMetadata {
	list := make([]ActionMetadata, 0, len(r.items))
	for _, a := range r.items {
		list = append(list, a)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].Name < list[j].Name })
	return list
}

func (r *Registry) Len() int { return len(r.items) }
