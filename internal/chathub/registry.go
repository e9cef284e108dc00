package chathub

import (
	"strangerchat/backend/internal/models"
	"time"
)

// Registry holds one Connection record per live connection.
// It is not safe for concurrent use; the ManagerService goroutine owns it.
type Registry struct {
	records map[string]*models.Connection
}

func NewRegistry() *Registry {
	return &Registry{records: make(map[string]*models.Connection)}
}

// Create adds an idle record for id. If id is already registered the
// existing record is returned with created=false.
func (r *Registry) Create(id string, now time.Time) (rec *models.Connection, created bool) {
	if existing, ok := r.records[id]; ok {
		return existing, false
	}
	rec = models.NewConnection(id, now)
	r.records[id] = rec
	return rec, true
}

// Get returns the record for id, if it is still registered.
func (r *Registry) Get(id string) (*models.Connection, bool) {
	rec, ok := r.records[id]
	return rec, ok
}

// Remove forgets id. Unknown ids are ignored.
func (r *Registry) Remove(id string) {
	delete(r.records, id)
}

func (r *Registry) Len() int { return len(r.records) }

// CountByStatus returns how many records are in each status.
func (r *Registry) CountByStatus() map[models.Status]int {
	counts := map[models.Status]int{
		models.StatusIdle:      0,
		models.StatusSearching: 0,
		models.StatusConnected: 0,
	}
	for _, rec := range r.records {
		counts[rec.Status]++
	}
	return counts
}
