package approval

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"time"
)

// validKey matches alphanumeric, dash, underscore, and dot characters only.
var validKey = regexp.MustCompile(`^[a-zA-Z0-9._-]+$`)

// validateKey rejects keys that could cause path traversal.
func validateKey(key string) error {
	if key == "" {
		return fmt.Errorf("key must not be empty")
	}
	if strings.Contains(key, "..") {
		return fmt.Errorf("key must not contain '..'")
	}
	if !validKey.MatchString(key) {
		return fmt.Errorf("key contains invalid characters: only alphanumeric, dash, underscore, and dot are allowed")
	}
	return nil
}

// Status represents the state of a pending approval request.
type Status string

const (
	StatusPending            Status = "pending"
	StatusApproved           Status = "approved"
	StatusDenied             Status = "denied"
	StatusDeniedAndBlacklist Status = "denied_blacklist"
	StatusExpired            Status = "expired"
)

// Request is one approval request awaiting a human decision, persisted as a
// JSON file so `opsgate approve`/`deny` in another terminal can resolve it.
type Request struct {
	Key         string     `json:"key"`
	ActionType  string     `json:"action_type"`
	Description string     `json:"description"`
	Preview     string     `json:"preview,omitempty"`
	Status      Status     `json:"status"`
	CreatedAt   time.Time  `json:"created_at"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty"`
	ResolvedAt  *time.Time `json:"resolved_at,omitempty"`
}

// Store manages approval request files on disk.
type Store struct {
	dir string
	mu  sync.Mutex
}

// NewStore creates a Store backed by the given directory.
func NewStore(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("approval: create directory: %w", err)
	}
	return &Store{dir: dir}, nil
}

// Submit files a pending approval request. No-op if the key already exists.
func (s *Store) Submit(key, actionType, description, preview string, ttl time.Duration) error {
	if err := validateKey(key); err != nil {
		return fmt.Errorf("approval: invalid key: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	path := s.path(key)
	if _, err := os.Stat(path); err == nil {
		return nil // already filed
	}

	r := Request{
		Key:         key,
		ActionType:  actionType,
		Description: description,
		Preview:     preview,
		Status:      StatusPending,
		CreatedAt:   time.Now().UTC(),
	}
	if ttl > 0 {
		exp := r.CreatedAt.Add(ttl)
		r.ExpiresAt = &exp
	}

	return s.writeAtomic(path, r)
}

// Approve marks a request as approved.
func (s *Store) Approve(key string) error {
	return s.resolve(key, StatusApproved)
}

// Deny marks a request as denied.
func (s *Store) Deny(key string) error {
	return s.resolve(key, StatusDenied)
}

// DenyAndBlacklist marks a request as denied with a standing blacklist ask.
// The waiting engine side translates this into a deny-and-blacklist verdict.
func (s *Store) DenyAndBlacklist(key string) error {
	return s.resolve(key, StatusDeniedAndBlacklist)
}

func (s *Store) resolve(key string, status Status) error {
	if err := validateKey(key); err != nil {
		return fmt.Errorf("approval: invalid key: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	r, err := s.read(key)
	if err != nil {
		return fmt.Errorf("approval: request %q not found: %w", key, err)
	}
	if r.Status != StatusPending {
		return fmt.Errorf("approval: request %q already resolved (%s)", key, r.Status)
	}

	r.Status = status
	now := time.Now().UTC()
	r.ResolvedAt = &now
	return s.writeAtomic(s.path(key), *r)
}

// Check returns the current status of a request. An expired pending request
// is reported (and persisted) as expired.
func (s *Store) Check(key string) (Status, error) {
	if err := validateKey(key); err != nil {
		return "", fmt.Errorf("approval: invalid key: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	r, err := s.read(key)
	if err != nil {
		return "", fmt.Errorf("approval: request %q not found", key)
	}

	if r.Status == StatusPending && r.ExpiresAt != nil && time.Now().UTC().After(*r.ExpiresAt) {
		r.Status = StatusExpired
		s.writeAtomic(s.path(key), *r)
		return StatusExpired, nil
	}

	return r.Status, nil
}

// Remove deletes a resolved request file.
func (s *Store) Remove(key string) error {
	if err := validateKey(key); err != nil {
		return fmt.Errorf("approval: invalid key: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := os.Remove(s.path(key)); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// List returns all requests in the store, oldest first.
func (s *Store) List() ([]Request, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var requests []Request
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		key := strings.TrimSuffix(e.Name(), ".json")
		r, err := s.read(key)
		if err != nil {
			continue
		}
		requests = append(requests, *r)
	}

	sortByCreated(requests)
	return requests, nil
}

// Cleanup removes all request files in the store.
func (s *Store) Cleanup() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	var errs []error
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if err := os.Remove(filepath.Join(s.dir, e.Name())); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func sortByCreated(requests []Request) {
	for i := 1; i < len(requests); i++ {
		for j := i; j > 0 && requests[j].CreatedAt.Before(requests[j-1].CreatedAt); j-- {
			requests[j], requests[j-1] = requests[j-1], requests[j]
		}
	}
}

func (s *Store) path(key string) string {
	return filepath.Join(s.dir, key+".json")
}

func (s *Store) read(key string) (*Request, error) {
	data, err := os.ReadFile(s.path(key))
	if err != nil {
		return nil, err
	}
	var r Request
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, err
	}
	return &r, nil
}

func (s *Store) writeAtomic(path string, r Request) error {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}
