package repositoryimpl

import (
	"context"
	"path"
	"sort"
	"strings"

	"github.com/orchv2/dashboard/pkg/cerr"
	"github.com/orchv2/dashboard/pkg/storage"
)

// StorageRepository reads *.md templates from a blob store. Local
// directories and S3 prefixes both work because templates are read-only
// at runtime.
type StorageRepository struct {
	storage storage.Storage
}

func NewStorageRepository(s storage.Storage) *StorageRepository {
	return &StorageRepository{storage: s}
}

func (r *StorageRepository) List(ctx context.Context) ([]string, error) {
	paths, err := r.storage.List(ctx, "")
	if err != nil {
		return nil, cerr.WrapStorageReadError("templates", err)
	}
	var names []string
	for _, p := range paths {
		base := path.Base(p)
		if !strings.HasSuffix(base, ".md") {
			continue
		}
		// Syncthing conflict copies are not templates.
		if strings.Contains(base, ".sync-conflict-") {
			continue
		}
		names = append(names, strings.TrimSuffix(base, ".md"))
	}
	sort.Strings(names)
	return names, nil
}

func (r *StorageRepository) Get(ctx context.Context, name string) (string, error) {
	data, err := r.storage.Read(ctx, name+".md")
	if err != nil {
		return "", cerr.WrapStorageReadError("template", err)
	}
	return string(data), nil
}
