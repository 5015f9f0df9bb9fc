// Package memory is an in-process RemoteStore used for development and tests.
package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"budgetbuddy/internal/ports"
	"budgetbuddy/internal/remote"
)

type Store struct {
	mu    sync.RWMutex
	nodes map[string]ports.Record

	// FailOn, when set, is consulted before every operation. A non-nil
	// return aborts the operation with that error.
	FailOn func(op, path string) error
}

func New() *Store {
	return &Store{nodes: map[string]ports.Record{}}
}

func (s *Store) fail(op, path string) error {
	if s.FailOn == nil {
		return nil
	}
	return s.FailOn(op, path)
}

func (s *Store) Get(_ context.Context, path string) (ports.Record, error) {
	p, err := remote.CleanPath(path)
	if err != nil {
		return nil, err
	}
	if err := s.fail("get", p); err != nil {
		return nil, err
	}
	s.mu.RLock()
	v, ok := s.nodes[p]
	s.mu.RUnlock()
	if !ok {
		return nil, ports.ErrNotFound
	}
	return remote.Clone(v)
}

func (s *Store) Set(_ context.Context, path string, value ports.Record) error {
	p, err := remote.CleanPath(path)
	if err != nil {
		return err
	}
	if err := s.fail("set", p); err != nil {
		return err
	}
	v, err := remote.Clone(value)
	if err != nil {
		return fmt.Errorf("set %s: %w", p, err)
	}
	s.mu.Lock()
	s.nodes[p] = v
	s.mu.Unlock()
	return nil
}

// Delete removes the node at path and everything below it.
func (s *Store) Delete(_ context.Context, path string) error {
	p, err := remote.CleanPath(path)
	if err != nil {
		return err
	}
	if err := s.fail("delete", p); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.nodes, p)
	prefix := p + "/"
	for k := range s.nodes {
		if strings.HasPrefix(k, prefix) {
			delete(s.nodes, k)
		}
	}
	return nil
}

func (s *Store) Query(_ context.Context, path string, q ports.Query) ([]ports.Child, error) {
	p, err := remote.CleanPath(path)
	if err != nil {
		return nil, err
	}
	if err := s.fail("query", p); err != nil {
		return nil, err
	}
	s.mu.RLock()
	var out []ports.Child
	for k, v := range s.nodes {
		parent, key := remote.Split(k)
		if parent != p {
			continue
		}
		c, err := remote.Clone(v)
		if err != nil {
			s.mu.RUnlock()
			return nil, err
		}
		out = append(out, ports.Child{Key: key, Value: c})
	}
	s.mu.RUnlock()
	return remote.ApplyQuery(out, q), nil
}

func (s *Store) Keys(_ context.Context, path string) ([]string, error) {
	p, err := remote.CleanPath(path)
	if err != nil {
		return nil, err
	}
	if err := s.fail("keys", p); err != nil {
		return nil, err
	}
	prefix := p + "/"
	seen := map[string]struct{}{}
	s.mu.RLock()
	for k := range s.nodes {
		if !strings.HasPrefix(k, prefix) {
			continue
		}
		next, _, _ := strings.Cut(k[len(prefix):], "/")
		seen[next] = struct{}{}
	}
	s.mu.RUnlock()
	out := make([]string, 0, len(seen))
	for k := range seen {
		out = append(out, k)
	}
	sort.Strings(out)
	return out, nil
}
