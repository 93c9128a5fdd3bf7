package support

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/allegro/bigcache/v3"

	"marketplace/internal/model"
	"marketplace/internal/repository"
	"marketplace/pkg/log"
)

const adminsKey = "admins"

// AdminDirectory answers "who are the admins" from a local cache, falling
// back to the user store on a miss.
type AdminDirectory struct {
	users repository.UserRepository
	cache *bigcache.BigCache
}

// NewAdminDirectory creates a directory whose entries live for lifeWindow
func NewAdminDirectory(users repository.UserRepository, lifeWindow time.Duration) (*AdminDirectory, error) {
	if lifeWindow <= 0 {
		lifeWindow = time.Minute
	}
	cfg := bigcache.DefaultConfig(lifeWindow)
	cfg.Shards = 16
	cfg.CleanWindow = lifeWindow
	cfg.Verbose = false
	cache, err := bigcache.New(context.Background(), cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create admin cache: %w", err)
	}
	return &AdminDirectory{users: users, cache: cache}, nil
}

// AdminIDs returns the ids of active admins
func (d *AdminDirectory) AdminIDs(ctx context.Context) ([]uint64, error) {
	if data, err := d.cache.Get(adminsKey); err == nil {
		var ids []uint64
		if err := json.Unmarshal(data, &ids); err == nil {
			return ids, nil
		}
	}

	admins, err := d.users.ListByRole(ctx, model.RoleAdmin)
	if err != nil {
		return nil, err
	}
	ids := make([]uint64, 0, len(admins))
	for _, u := range admins {
		ids = append(ids, u.ID)
	}

	// an empty directory is not cached so a newly added admin is seen at once
	if len(ids) > 0 {
		data, _ := json.Marshal(ids)
		if err := d.cache.Set(adminsKey, data); err != nil {
			log.WithFields(map[string]interface{}{
				"error": err.Error(),
			}).Warn("Failed to cache admin directory")
		}
	}
	return ids, nil
}

// Invalidate drops the cached admin list
func (d *AdminDirectory) Invalidate() error {
	err := d.cache.Delete(adminsKey)
	if errors.Is(err, bigcache.ErrEntryNotFound) {
		return nil
	}
	return err
}

// Close releases the cache
func (d *AdminDirectory) Close() error {
	return d.cache.Close()
}
