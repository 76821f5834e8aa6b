// Package memory provides an in-process reference store, used when no
// durable persistence is configured and in tests.
package memory

import (
	"context"
	"sync"
)

type MemStore struct {
	mx *sync.Mutex
	db map[string][]byte
}

func NewMemStore() *MemStore {
	return &MemStore{
		mx: &sync.Mutex{},
		db: make(map[string][]byte),
	}
}

func (ms *MemStore) Get(_ context.Context, key string) ([]byte, bool, error) {
	ms.mx.Lock()
	defer ms.mx.Unlock()

	payload, ok := ms.db[key]
	if !ok {
		return nil, false, nil
	}
	cp := make([]byte, len(payload))
	copy(cp, payload)
	return cp, true, nil
}

func (ms *MemStore) Set(_ context.Context, key string, payload []byte) error {
	ms.mx.Lock()
	defer ms.mx.Unlock()

	cp := make([]byte, len(payload))
	copy(cp, payload)
	ms.db[key] = cp
	return nil
}

func (ms *MemStore) Delete(_ context.Context, key string) error {
	ms.mx.Lock()
	defer ms.mx.Unlock()

	delete(ms.db, key)
	return nil
}
