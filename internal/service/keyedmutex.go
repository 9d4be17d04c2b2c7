package service

import "sync"

// keyedMutex hands out one mutex per string key. Appends to different feeds
// proceed in parallel; appends to the same feed serialize. Mutexes are never
// reclaimed; the key space is bounded by the number of feeds.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: make(map[string]*sync.Mutex)}
}

func (k *keyedMutex) get(key string) *sync.Mutex {
	k.mu.Lock()
	defer k.mu.Unlock()

	l, ok := k.locks[key]
	if !ok {
		l = &sync.Mutex{}
		k.locks[key] = l
	}
	return l
}
