package memory

import (
	"context"
	"sync"
	"time"

	"github.com/dropDatabas3/hellocare/internal/domain/repository"
	"github.com/dropDatabas3/hellocare/internal/store"
)

// DAL administra las "bases" en memoria de cada tenant. Además de resolver
// handles implementa el ciclo de vida que usa el provisioning.
type DAL struct {
	mu    sync.Mutex
	dbs   map[string]*tenantDB
	locks map[string]*sync.Mutex
	now   func() time.Time

	// MigrateHook permite inyectar fallas en Migrate (tests).
	MigrateHook func(tenantID string) error
}

func NewDAL() *DAL {
	return &DAL{
		dbs:   map[string]*tenantDB{},
		locks: map[string]*sync.Mutex{},
		now:   time.Now,
	}
}

// SetClock reemplaza el reloj usado para timestamps (tests).
func (d *DAL) SetClock(now func() time.Time) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.now = now
	for _, db := range d.dbs {
		db.now = now
	}
}

// ForTenant retorna ErrNoDatabase si la base no existe o no está migrada.
func (d *DAL) ForTenant(_ context.Context, tenantID string) (repository.TenantDataAccess, error) {
	d.mu.Lock()
	db, ok := d.dbs[tenantID]
	d.mu.Unlock()
	if !ok {
		return nil, repository.ErrNoDatabase
	}
	db.mu.Lock()
	migrated := db.migrated
	db.mu.Unlock()
	if !migrated {
		return nil, repository.ErrNoDatabase
	}
	return &Tenant{id: tenantID, db: db}, nil
}

// EnsureDatabase crea la base si no existe.
func (d *DAL) EnsureDatabase(_ context.Context, tenantID string) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.dbs[tenantID]; ok {
		return false, nil
	}
	d.dbs[tenantID] = &tenantDB{state: newTenantState(), now: d.now}
	return true, nil
}

// Migrate marca la base como migrada. La primera vez reporta una migración aplicada.
func (d *DAL) Migrate(_ context.Context, tenantID string) (*store.MigrationResult, error) {
	start := time.Now()
	d.mu.Lock()
	db, ok := d.dbs[tenantID]
	hook := d.MigrateHook
	d.mu.Unlock()
	if !ok {
		return nil, repository.ErrNoDatabase
	}
	if hook != nil {
		if err := hook(tenantID); err != nil {
			v := 1
			return &store.MigrationResult{Failed: &v, Duration: time.Since(start)}, err
		}
	}

	db.mu.Lock()
	defer db.mu.Unlock()
	res := &store.MigrationResult{}
	if db.migrated {
		res.Skipped = []int{1}
	} else {
		db.migrated = true
		res.Applied = []int{1}
	}
	res.Duration = time.Since(start)
	return res, nil
}

// Lock toma el lock exclusivo de provisioning del tenant.
func (d *DAL) Lock(ctx context.Context, tenantID string) (func(), error) {
	d.mu.Lock()
	l, ok := d.locks[tenantID]
	if !ok {
		l = &sync.Mutex{}
		d.locks[tenantID] = l
	}
	d.mu.Unlock()

	acquired := make(chan struct{})
	go func() {
		l.Lock()
		close(acquired)
	}()
	select {
	case <-acquired:
		return l.Unlock, nil
	case <-ctx.Done():
		// Liberar cuando finalmente se adquiera.
		go func() {
			<-acquired
			l.Unlock()
		}()
		return nil, ctx.Err()
	}
}

// Exists reporta si la base del tenant fue creada.
func (d *DAL) Exists(tenantID string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, ok := d.dbs[tenantID]
	return ok
}

// Drop elimina la base del tenant (tests y rollback manual).
func (d *DAL) Drop(tenantID string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.dbs, tenantID)
}
