package live

import (
	"context"
	"fmt"
	"time"

	"github.com/nerrad567/inventory-gateway/internal/store"
)

// Projection selects how watch events render their data.
type Projection string

// Projections.
const (
	// ProjectionFull sends the flattened document.
	ProjectionFull Projection = "full"
	// ProjectionSplit sends {"$o": {"id": key}, "$o2": <other fields>}.
	ProjectionSplit Projection = "split"
)

// CollectionSpec declares one collection-backed resource.
type CollectionSpec struct {
	Name       string
	Collection string
	// Template is the static query; "$:name" values are bound from params.
	Template store.Query
	// KeyParam defaults to DefaultKeyParam(Collection).
	KeyParam         string
	AllowSingle      bool
	AllowIndex       bool
	AllowLastUpdated bool
	Projection       Projection
}

// CollectionResource serves a store collection.
type CollectionResource struct {
	spec    CollectionSpec
	builder QueryBuilder
	store   Store
	logger  Logger
}

// NewCollectionResource creates a resource for spec backed by st.
func NewCollectionResource(spec CollectionSpec, st Store) *CollectionResource {
	if spec.Collection == "" {
		spec.Collection = spec.Name
	}
	if spec.KeyParam == "" {
		spec.KeyParam = DefaultKeyParam(spec.Collection)
	}
	if spec.Projection == "" {
		spec.Projection = ProjectionFull
	}
	return &CollectionResource{
		spec: spec,
		builder: QueryBuilder{
			Template:    spec.Template,
			KeyParam:    spec.KeyParam,
			AllowSingle: spec.AllowSingle,
			AllowIndex:  spec.AllowIndex,
		},
		store:  st,
		logger: noopLogger{},
	}
}

// SetLogger sets the logger for feed and backfill failures.
func (r *CollectionResource) SetLogger(logger Logger) {
	if logger == nil {
		logger = noopLogger{}
	}
	r.logger = logger
}

// Name returns the resource name.
func (r *CollectionResource) Name() string { return r.spec.Name }

// Spec returns the resolved declaration.
func (r *CollectionResource) Spec() CollectionSpec { return r.spec }

// Query lists records matching the frame params used as a raw filter.
func (r *CollectionResource) Query(ctx context.Context, s *Session, f Frame) error {
	return r.list(ctx, s, store.Query(f.Params))
}

// All lists every record in the collection.
func (r *CollectionResource) All(ctx context.Context, s *Session, _ Frame) error {
	return r.list(ctx, s, store.Query{})
}

func (r *CollectionResource) list(ctx context.Context, s *Session, q store.Query) error {
	records, err := r.store.Find(ctx, r.spec.Collection, q)
	if err != nil {
		return dataStoreError(err)
	}
	items := make([]any, len(records))
	for i, rec := range records {
		items[i] = rec.Document()
	}
	return s.Send(newListFrame(r.spec.Name, items))
}

// Get sends the first record matching the frame params.
func (r *CollectionResource) Get(ctx context.Context, s *Session, f Frame) error {
	rec, err := r.store.FindOne(ctx, r.spec.Collection, store.Query(f.Params))
	if err != nil {
		return dataStoreError(err)
	}
	return s.Send(newItemFrame(r.spec.Name, nil, rec.Document()))
}

// Watch subscribes the session to changes matching the bound template. With
// backfill enabled and a usable last-seen time, records updated since then
// are replayed before any live event.
func (r *CollectionResource) Watch(ctx context.Context, s *Session, f Frame) error {
	q, err := r.builder.Build(f.Params)
	if err != nil {
		return err
	}

	w := newWatcher(s, r.spec.Name)
	if r.spec.AllowLastUpdated {
		if since, ok := s.since(f); ok {
			w.backfill = r.backfill(q, since)
		}
	}

	handle, err := r.store.Observe(r.spec.Collection, q, func(c store.Change) {
		w.push(r.changeEvent(c.Kind, c.Record))
	})
	if err != nil {
		w.Dispose()
		return dataStoreError(err)
	}
	w.attach(handle)

	if !s.AddWatcher(r.watchKey(f.Params), w) {
		return ErrSessionClosed
	}
	w.start(ctx)
	return nil
}

// Stop disposes every watcher registered with the same params.
func (r *CollectionResource) Stop(_ context.Context, s *Session, f Frame) error {
	if !s.RemoveWatchers(r.watchKey(f.Params)) {
		r.logger.Debug("stop matched no watchers", "session_id", s.ID(), "resource", r.spec.Name)
	}
	return nil
}

// watchKey is the canonical parameter set a watch is grouped under.
func (r *CollectionResource) watchKey(params Params) Params {
	return Params{"resource": r.spec.Name, "params": map[string]any(params)}
}

func (r *CollectionResource) backfill(q store.Query, since time.Time) backfillFunc {
	return func(ctx context.Context) ([]event, error) {
		records, err := r.store.FindSince(ctx, r.spec.Collection, q, since)
		if err != nil {
			return nil, dataStoreError(err)
		}
		events := make([]event, 0, len(records))
		for _, rec := range records {
			kind := store.Updated
			if rec.CreatedAt.After(since) {
				kind = store.Created
			}
			events = append(events, r.changeEvent(kind, rec))
		}
		return events, nil
	}
}

// changeEvent translates a store change into its outbound frame.
func (r *CollectionResource) changeEvent(kind store.ChangeKind, rec store.Record) event {
	ev := event{key: rec.ID, updatedAt: rec.UpdatedAt, dedupe: kind != store.Destroyed}
	switch kind {
	case store.Destroyed:
		ev.frame = newRemoveFrame(r.spec.Name, rec.ID, rec.Document())
	default:
		ev.frame = newItemFrame(r.spec.Name, []any{string(kind), rec.ID}, r.project(rec))
	}
	return ev
}

func (r *CollectionResource) project(rec store.Record) any {
	if r.spec.Projection != ProjectionSplit {
		return rec.Document()
	}
	rest := rec.Document()
	delete(rest, store.FieldID)
	return map[string]any{
		"$o":  map[string]any{store.FieldID: rec.ID},
		"$o2": rest,
	}
}

func dataStoreError(err error) error {
	return fmt.Errorf("%w: %w", ErrDataStore, err)
}
