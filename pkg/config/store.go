package config

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"gopkg.in/yaml.v3"
)

// ConfigStore abstracts configuration persistence so callers can swap a
// file-backed store for an in-memory one in tests without touching the
// rest of the process.
type ConfigStore interface {
	// Load retrieves the current configuration.
	Load(ctx context.Context) (*Config, error)

	// Save persists the configuration.
	Save(ctx context.Context, cfg *Config) error

	// Watch returns a channel that receives config updates. The channel
	// is closed when ctx is cancelled.
	Watch(ctx context.Context) (<-chan *Config, error)

	// Close releases any resources held by the store.
	Close() error
}

// FileConfigStore implements ConfigStore over a YAML file, polling it
// every five seconds for external edits and notifying watchers of them.
type FileConfigStore struct {
	mu           sync.RWMutex
	path         string
	config       *Config
	lastModified time.Time
	subscribers  []chan *Config
	subMu        sync.Mutex
	stopWatch    chan struct{}
}

// NewFileConfigStore creates a file-backed store, loading path if it
// exists or seeding it with DefaultConfig() otherwise.
func NewFileConfigStore(path string) (*FileConfigStore, error) {
	store := &FileConfigStore{
		path:        path,
		subscribers: make([]chan *Config, 0),
		stopWatch:   make(chan struct{}),
	}

	cfg, err := store.Load(context.Background())
	if err != nil {
		if os.IsNotExist(err) {
			store.config = DefaultConfig()
		} else {
			return nil, err
		}
	} else {
		store.config = cfg
	}

	go store.watchFile()

	return store, nil
}

// Load retrieves the current configuration, reading the file only the
// first time it's called (subsequent calls return the cached copy kept
// current by watchFile).
func (s *FileConfigStore) Load(ctx context.Context) (*Config, error) {
	s.mu.RLock()
	if s.config != nil {
		cfg := *s.config
		s.mu.RUnlock()

		return &cfg, nil
	}
	s.mu.RUnlock()

	data, err := os.ReadFile(s.path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	s.mu.Lock()
	s.config = &cfg
	s.mu.Unlock()

	return &cfg, nil
}

// Save persists the configuration to the file and notifies watchers.
func (s *FileConfigStore) Save(ctx context.Context, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(s.path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	s.mu.Lock()
	s.config = cfg
	s.lastModified = time.Now()
	s.mu.Unlock()

	s.notifySubscribers(cfg)

	return nil
}

// Watch returns a channel that receives config updates.
func (s *FileConfigStore) Watch(ctx context.Context) (<-chan *Config, error) {
	ch := make(chan *Config, 1)

	s.subMu.Lock()
	s.subscribers = append(s.subscribers, ch)
	s.subMu.Unlock()

	go func() {
		<-ctx.Done()
		s.removeSubscriber(ch)
	}()

	return ch, nil
}

func (s *FileConfigStore) removeSubscriber(ch chan *Config) {
	s.subMu.Lock()
	defer s.subMu.Unlock()

	for i, sub := range s.subscribers {
		if sub == ch {
			s.subscribers = append(s.subscribers[:i], s.subscribers[i+1:]...)
			close(ch)

			return
		}
	}
}

// Close stops the file watcher and closes every subscriber channel.
func (s *FileConfigStore) Close() error {
	close(s.stopWatch)

	s.subMu.Lock()
	for _, ch := range s.subscribers {
		close(ch)
	}
	s.subscribers = nil
	s.subMu.Unlock()

	return nil
}

func (s *FileConfigStore) watchFile() {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopWatch:
			return
		case <-ticker.C:
			s.reloadIfChanged()
		}
	}
}

func (s *FileConfigStore) reloadIfChanged() {
	info, err := os.Stat(s.path)
	if err != nil {
		return
	}

	s.mu.RLock()
	lastMod := s.lastModified
	s.mu.RUnlock()

	if !info.ModTime().After(lastMod) {
		return
	}

	data, err := os.ReadFile(s.path)
	if err != nil {
		return
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return
	}

	s.mu.Lock()
	s.config = &cfg
	s.lastModified = info.ModTime()
	s.mu.Unlock()

	s.notifySubscribers(&cfg)
}

func (s *FileConfigStore) notifySubscribers(cfg *Config) {
	s.subMu.Lock()
	defer s.subMu.Unlock()

	for _, ch := range s.subscribers {
		select {
		case ch <- cfg:
		default:
		}
	}
}

// MemoryConfigStore implements ConfigStore without touching disk, for
// tests and for a standalone mode that never persists configuration.
type MemoryConfigStore struct {
	mu          sync.RWMutex
	config      *Config
	subscribers []chan *Config
	subMu       sync.Mutex
}

// NewMemoryConfigStore creates a store seeded with cfg, or DefaultConfig()
// if cfg is nil.
func NewMemoryConfigStore(cfg *Config) *MemoryConfigStore {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	return &MemoryConfigStore{config: cfg}
}

// Load retrieves the current configuration.
func (s *MemoryConfigStore) Load(ctx context.Context) (*Config, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.config == nil {
		return nil, ErrConfigNotFound
	}

	cfg := *s.config

	return &cfg, nil
}

// Save persists the configuration in memory and notifies watchers.
func (s *MemoryConfigStore) Save(ctx context.Context, cfg *Config) error {
	s.mu.Lock()
	s.config = cfg
	s.mu.Unlock()

	s.subMu.Lock()
	for _, ch := range s.subscribers {
		select {
		case ch <- cfg:
		default:
		}
	}
	s.subMu.Unlock()

	return nil
}

// Watch returns a channel that receives config updates.
func (s *MemoryConfigStore) Watch(ctx context.Context) (<-chan *Config, error) {
	ch := make(chan *Config, 1)

	s.subMu.Lock()
	s.subscribers = append(s.subscribers, ch)
	s.subMu.Unlock()

	go func() {
		<-ctx.Done()
		s.subMu.Lock()
		for i, sub := range s.subscribers {
			if sub == ch {
				s.subscribers = append(s.subscribers[:i], s.subscribers[i+1:]...)
				close(ch)

				break
			}
		}
		s.subMu.Unlock()
	}()

	return ch, nil
}

// Close closes every subscriber channel.
func (s *MemoryConfigStore) Close() error {
	s.subMu.Lock()
	for _, ch := range s.subscribers {
		close(ch)
	}
	s.subscribers = nil
	s.subMu.Unlock()

	return nil
}
