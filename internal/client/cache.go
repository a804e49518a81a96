package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog/log"

	"github.com/vibemeet/vibemeet/internal/domain"
)

var ErrNoCache = errors.New("no cached state")

// Cache mirrors the last known room state to one JSON file per room so a
// reconnecting process can render immediately, and so other local consumers
// of the same room key can pick up changes.
type Cache struct {
	dir string
}

func NewCache(dir string) (*Cache, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create cache dir: %w", err)
	}
	return &Cache{dir: dir}, nil
}

func (c *Cache) path(roomID domain.RoomID) string {
	return filepath.Join(c.dir, string(roomID)+".json")
}

// Save writes atomically so watchers never observe a half-written file.
func (c *Cache) Save(state RoomState) error {
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("encode state: %w", err)
	}
	tmp := c.path(state.RoomID) + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write cache: %w", err)
	}
	return os.Rename(tmp, c.path(state.RoomID))
}

func (c *Cache) Load(roomID domain.RoomID) (RoomState, error) {
	data, err := os.ReadFile(c.path(roomID))
	if errors.Is(err, os.ErrNotExist) {
		return RoomState{}, ErrNoCache
	}
	if err != nil {
		return RoomState{}, fmt.Errorf("read cache: %w", err)
	}
	var state RoomState
	if err := json.Unmarshal(data, &state); err != nil {
		return RoomState{}, fmt.Errorf("decode cache: %w", err)
	}
	return state, nil
}

// Watch notifies onChange whenever another process rewrites the room's cache
// file. Blocks until ctx is done.
func (c *Cache) Watch(ctx context.Context, roomID domain.RoomID, onChange func(RoomState)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("cache watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(c.dir); err != nil {
		return fmt.Errorf("watch cache dir: %w", err)
	}

	target := c.path(roomID)
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if ev.Name != target {
				continue
			}
			if !ev.Op.Has(fsnotify.Create) && !ev.Op.Has(fsnotify.Write) && !ev.Op.Has(fsnotify.Rename) {
				continue
			}
			state, err := c.Load(roomID)
			if err != nil {
				log.Warn().Err(err).Str("module", "client.cache").Str("room", string(roomID)).Msg("reload after change failed")
				continue
			}
			onChange(state)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			log.Warn().Err(err).Str("module", "client.cache").Msg("watcher error")
		}
	}
}
