package template

import "context"

// Repository reads template documents from wherever they are stored.
type Repository interface {
	// List returns template names (file stems), sorted.
	List(ctx context.Context) ([]string, error)
	// Get returns the raw content of one template.
	Get(ctx context.Context, name string) (string, error)
}
