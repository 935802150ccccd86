package api

import (
	"fmt"
	"path/filepath"
	"sync"

	"github.com/mmguero-android/timelimit-android-sub001/internal/db"
)

// FamilyStorePool manages the per-family entity stores.
type FamilyStorePool struct {
	mu      sync.RWMutex
	stores  map[string]*db.DB
	dataDir string
}

// NewFamilyStorePool creates a pool that keeps family stores under dataDir.
func NewFamilyStorePool(dataDir string) *FamilyStorePool {
	return &FamilyStorePool{
		stores:  make(map[string]*db.DB),
		dataDir: dataDir,
	}
}

// Get returns the store of the family, opening or creating it lazily.
func (p *FamilyStorePool) Get(familyID string) (*db.DB, error) {
	if familyID == "" || filepath.Base(familyID) != familyID {
		return nil, fmt.Errorf("invalid family id %q", familyID)
	}

	p.mu.RLock()
	store, ok := p.stores[familyID]
	p.mu.RUnlock()
	if ok {
		return store, nil
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	// Double-check after acquiring write lock
	if store, ok := p.stores[familyID]; ok {
		return store, nil
	}

	store, err := db.Initialize(filepath.Join(p.dataDir, familyID))
	if err != nil {
		return nil, fmt.Errorf("open family store %s: %w", familyID, err)
	}
	p.stores[familyID] = store
	return store, nil
}

// CloseAll closes all open family stores.
func (p *FamilyStorePool) CloseAll() {
	p.mu.Lock()
	defer p.mu.Unlock()

	for id, store := range p.stores {
		store.Close()
		delete(p.stores, id)
	}
}
