// Package memstore keeps archives in process memory.
package memstore

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"time"

	"brewcore/internal/backup/objstore"
)

type entry struct {
	info objstore.Info
	data []byte
}

// Store implements objstore.Store in memory.
type Store struct {
	mu   sync.RWMutex
	objs map[string]entry
	now  func() time.Time
}

// New returns an empty in-memory store.
func New() *Store {
	return &Store{objs: make(map[string]entry), now: func() time.Time { return time.Now().UTC() }}
}

// Driver reports objstore.DriverMemory.
func (s *Store) Driver() objstore.Driver { return objstore.DriverMemory }

// Put stores a new object.
func (s *Store) Put(_ context.Context, key string, r io.Reader, opts objstore.PutOptions) (objstore.Info, error) {
	if strings.TrimSpace(key) == "" {
		return objstore.Info{}, fmt.Errorf("empty key")
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return objstore.Info{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.objs[key]; ok {
		return objstore.Info{}, fmt.Errorf("archive %s: %w", key, objstore.ErrExists)
	}
	info := objstore.Info{
		Key:          key,
		Size:         int64(len(data)),
		ContentType:  opts.ContentType,
		Metadata:     objstore.CloneMetadata(opts.Metadata),
		LastModified: s.now(),
	}
	s.objs[key] = entry{info: info, data: data}
	return cloneInfo(info), nil
}

// Get returns a copy of the object body.
func (s *Store) Get(_ context.Context, key string) (objstore.Info, io.ReadCloser, error) {
	s.mu.RLock()
	obj, ok := s.objs[key]
	s.mu.RUnlock()
	if !ok {
		return objstore.Info{}, nil, fmt.Errorf("archive %s: %w", key, objstore.ErrNotFound)
	}
	data := append([]byte(nil), obj.data...)
	return cloneInfo(obj.info), io.NopCloser(bytes.NewReader(data)), nil
}

// Head returns object metadata.
func (s *Store) Head(_ context.Context, key string) (objstore.Info, error) {
	s.mu.RLock()
	obj, ok := s.objs[key]
	s.mu.RUnlock()
	if !ok {
		return objstore.Info{}, fmt.Errorf("archive %s: %w", key, objstore.ErrNotFound)
	}
	return cloneInfo(obj.info), nil
}

// Delete removes key and reports whether it existed.
func (s *Store) Delete(_ context.Context, key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.objs[key]
	delete(s.objs, key)
	return ok, nil
}

// List returns objects whose key starts with prefix.
func (s *Store) List(_ context.Context, prefix string) ([]objstore.Info, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]objstore.Info, 0, len(s.objs))
	for k, v := range s.objs {
		if strings.HasPrefix(k, prefix) {
			out = append(out, cloneInfo(v.info))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

func cloneInfo(in objstore.Info) objstore.Info {
	in.Metadata = objstore.CloneMetadata(in.Metadata)
	return in
}
