// Package memory provides an in-memory implementation of the repository
// interfaces. It is the reference store: writes to a lineage are serialized
// through the current-index compare-and-swap, and the branch transaction runs
// under one write lock so readers observe either the pre- or post-branch
// state, never a torn intermediate.
package memory

import (
	"context"
	"sort"
	"strconv"
	"sync"

	"chronograph-backend/internal/domain"
	"chronograph-backend/internal/repository"
)

// Store is a mutex-guarded in-memory graph store.
type Store struct {
	mu sync.RWMutex

	entities map[string]*domain.Entity
	// order preserves insertion order for stable pagination.
	order []string
	// seq assigns each entity a monotonic insertion sequence. Pagination
	// cursors carry the sequence, not the entity id, so deleting the entity a
	// cursor points at cannot reset a scan to the beginning.
	seq     map[string]uint64
	lastSeq uint64

	edges    map[string]*domain.Edge
	bySource map[string][]string

	// current maps lineage id to the id of its Current entity. The index is
	// authoritative; state labels follow it.
	current map[string]string
}

// Compile-time interface check
var _ repository.Repository = (*Store)(nil)

// NewStore creates an empty in-memory store.
func NewStore() *Store {
	return &Store{
		entities: make(map[string]*domain.Entity),
		seq:      make(map[string]uint64),
		edges:    make(map[string]*domain.Edge),
		bySource: make(map[string][]string),
		current:  make(map[string]string),
	}
}

// CreateEntity stores a new entity.
func (s *Store) CreateEntity(ctx context.Context, entity *domain.Entity) error {
	if entity == nil || entity.ID == "" {
		return repository.NewInvalidQuery("entity", "missing id")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.entities[entity.ID]; exists {
		return repository.NewRepositoryError(repository.ErrCodeConflict, "entity already exists: "+entity.ID, nil)
	}
	s.putEntityLocked(entity)
	return nil
}

// FindEntityByID retrieves an entity, or a not-found error.
func (s *Store) FindEntityByID(ctx context.Context, entityID string) (*domain.Entity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entity, ok := s.entities[entityID]
	if !ok {
		return nil, repository.NewNotFoundError("entity", entityID)
	}
	return entity.Clone(), nil
}

// FindCurrentByLineage resolves the lineage's Current entity through the
// current index.
func (s *Store) FindCurrentByLineage(ctx context.Context, lineageID string) (*domain.Entity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.current[lineageID]
	if !ok {
		return nil, repository.NewNotFoundError("lineage", lineageID)
	}
	entity, ok := s.entities[id]
	if !ok {
		return nil, repository.NewNotFoundError("entity", id)
	}
	return entity.Clone(), nil
}

// FindEntities returns all entities matching the query, sorted.
func (s *Store) FindEntities(ctx context.Context, query repository.EntityQuery) ([]*domain.Entity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*domain.Entity
	for _, id := range s.order {
		entity := s.entities[id]
		if entity == nil || !query.Matches(entity) {
			continue
		}
		out = append(out, entity.Clone())
	}
	repository.SortEntities(out, query)
	return out, nil
}

// CountEntities counts entities matching the query.
func (s *Store) CountEntities(ctx context.Context, query repository.EntityQuery) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	count := 0
	for _, entity := range s.entities {
		if query.Matches(entity) {
			count++
		}
	}
	return count, nil
}

// DeleteEntity removes an entity, its edges, and its current-pointer entry.
// This is the destructive path used by bulk maintenance, not normal lifecycle.
func (s *Store) DeleteEntity(ctx context.Context, entityID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entity, ok := s.entities[entityID]
	if !ok {
		return repository.NewNotFoundError("entity", entityID)
	}
	delete(s.entities, entityID)
	delete(s.seq, entityID)
	for i, id := range s.order {
		if id == entityID {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	s.deleteEdgesByEntityLocked(entityID)
	if s.current[entity.LineageID] == entityID {
		delete(s.current, entity.LineageID)
	}
	return nil
}

// SetState flips an entity's lineage state label.
func (s *Store) SetState(ctx context.Context, entityID string, state domain.State) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entity, ok := s.entities[entityID]
	if !ok {
		return repository.NewNotFoundError("entity", entityID)
	}
	entity.State = state
	return nil
}

// UpdateObservations replaces an entity's observation log.
func (s *Store) UpdateObservations(ctx context.Context, entityID string, log domain.ObservationLog) error {
	if err := log.Validate(); err != nil {
		return repository.NewInvalidQuery("observations", err.Error())
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	entity, ok := s.entities[entityID]
	if !ok {
		return repository.NewNotFoundError("entity", entityID)
	}
	entity.Observations = log.Clone()
	return nil
}

// GetEntitiesPage returns one page of matching entities in insertion order.
// The cursor encodes the last served insertion sequence; resumption skips
// everything at or below it, so entities deleted between pages never cause
// earlier pages to be served again.
func (s *Store) GetEntitiesPage(ctx context.Context, query repository.EntityQuery, pagination repository.Pagination) (*repository.EntityPage, error) {
	if err := pagination.Validate(); err != nil {
		return nil, err
	}
	lastKey, err := repository.DecodeCursor(pagination.Cursor)
	if err != nil {
		return nil, repository.NewInvalidQuery("Cursor", err.Error())
	}
	var afterSeq uint64
	if lastKey != "" {
		afterSeq, err = strconv.ParseUint(lastKey, 10, 64)
		if err != nil {
			return nil, repository.NewInvalidQuery("Cursor", "malformed sequence")
		}
	}
	limit := pagination.GetEffectiveLimit()

	s.mu.RLock()
	defer s.mu.RUnlock()

	page := &repository.EntityPage{}
	for _, id := range s.order {
		if s.seq[id] <= afterSeq {
			continue
		}
		entity := s.entities[id]
		if entity == nil || !query.Matches(entity) {
			continue
		}
		if len(page.Items) == limit {
			page.HasMore = true
			last := page.Items[len(page.Items)-1]
			page.NextCursor = repository.EncodeCursor(strconv.FormatUint(s.seq[last.ID], 10))
			return page, nil
		}
		page.Items = append(page.Items, entity.Clone())
	}
	return page, nil
}

// CreateEdge stores a directed edge.
func (s *Store) CreateEdge(ctx context.Context, edge *domain.Edge) error {
	if edge == nil || edge.ID == "" {
		return repository.NewInvalidQuery("edge", "missing id")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.putEdgeLocked(edge)
	return nil
}

// FindEdges returns edges matching the query.
func (s *Store) FindEdges(ctx context.Context, query repository.EdgeQuery) ([]*domain.Edge, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*domain.Edge
	appendMatch := func(edge *domain.Edge) {
		if edge == nil {
			return
		}
		if query.TargetID != "" && edge.TargetID != query.TargetID {
			return
		}
		if !query.WantsType(edge.Type) {
			return
		}
		out = append(out, edge.Clone())
	}

	if query.SourceID != "" {
		for _, edgeID := range s.bySource[query.SourceID] {
			appendMatch(s.edges[edgeID])
		}
		return out, nil
	}
	for _, edge := range s.edges {
		appendMatch(edge)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// DeleteEdge removes one edge.
func (s *Store) DeleteEdge(ctx context.Context, edgeID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	edge, ok := s.edges[edgeID]
	if !ok {
		return repository.NewNotFoundError("edge", edgeID)
	}
	delete(s.edges, edgeID)
	s.removeFromSourceLocked(edge.SourceID, edgeID)
	return nil
}

// DeleteEdgesByEntity removes every edge touching the entity.
func (s *Store) DeleteEdgesByEntity(ctx context.Context, entityID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deleteEdgesByEntityLocked(entityID)
	return nil
}

// CurrentID returns the Current entity id for a lineage.
func (s *Store) CurrentID(ctx context.Context, lineageID string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.current[lineageID]
	if !ok {
		return "", repository.NewNotFoundError("lineage", lineageID)
	}
	return id, nil
}

// CompareAndSwapCurrent atomically moves the lineage's current pointer.
func (s *Store) CompareAndSwapCurrent(ctx context.Context, lineageID, oldID, newID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.casCurrentLocked(lineageID, oldID, newID)
}

// BranchLineage applies a whole branch transaction under one write lock:
// CAS the current pointer, retire the old version, install the new one, and
// write the version edge plus migrated edges. Readers never observe a
// partially applied branch.
func (s *Store) BranchLineage(ctx context.Context, spec repository.BranchSpec) error {
	if spec.New == nil || spec.New.ID == "" {
		return repository.NewInvalidQuery("spec", "missing new entity")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.casCurrentLocked(spec.LineageID, spec.OldID, spec.New.ID); err != nil {
		return err
	}
	if spec.OldID != "" {
		if old, ok := s.entities[spec.OldID]; ok {
			old.State = domain.StateHistorical
		}
	}
	s.putEntityLocked(spec.New)
	if spec.VersionEdge != nil {
		s.putEdgeLocked(spec.VersionEdge)
	}
	for _, edge := range spec.MigratedEdges {
		s.putEdgeLocked(edge)
	}
	return nil
}

// Reset drops all stored state. Test helper.
func (s *Store) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entities = make(map[string]*domain.Entity)
	s.seq = make(map[string]uint64)
	s.lastSeq = 0
	s.order = nil
	s.edges = make(map[string]*domain.Edge)
	s.bySource = make(map[string][]string)
	s.current = make(map[string]string)
}

// internal helpers, callers hold s.mu

func (s *Store) putEntityLocked(entity *domain.Entity) {
	stored := entity.Clone()
	if _, exists := s.entities[stored.ID]; !exists {
		s.order = append(s.order, stored.ID)
		s.lastSeq++
		s.seq[stored.ID] = s.lastSeq
	}
	s.entities[stored.ID] = stored
}

func (s *Store) putEdgeLocked(edge *domain.Edge) {
	stored := edge.Clone()
	if _, exists := s.edges[stored.ID]; !exists {
		s.bySource[stored.SourceID] = append(s.bySource[stored.SourceID], stored.ID)
	}
	s.edges[stored.ID] = stored
}

func (s *Store) casCurrentLocked(lineageID, oldID, newID string) error {
	existing, ok := s.current[lineageID]
	if oldID == "" {
		if ok {
			return repository.NewConflictError(lineageID)
		}
	} else if !ok || existing != oldID {
		return repository.NewConflictError(lineageID)
	}
	s.current[lineageID] = newID
	return nil
}

func (s *Store) removeFromSourceLocked(sourceID, edgeID string) {
	ids := s.bySource[sourceID]
	for i, id := range ids {
		if id == edgeID {
			s.bySource[sourceID] = append(ids[:i], ids[i+1:]...)
			return
		}
	}
}

func (s *Store) deleteEdgesByEntityLocked(entityID string) {
	for edgeID, edge := range s.edges {
		if edge.SourceID == entityID || edge.TargetID == entityID {
			delete(s.edges, edgeID)
			s.removeFromSourceLocked(edge.SourceID, edgeID)
		}
	}
}
