package configstore

import "context"

// ConfigStore persists a configuration document.
type ConfigStore interface {
	Load(ctx context.Context, out any) error
	Save(ctx context.Context, data any) error
}
