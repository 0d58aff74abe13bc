package artifactrunner

import (
	"context"
	"time"

	"github.com/aipp-workbench/engine/internal/engineerr"
	"github.com/aipp-workbench/engine/internal/store"
	"github.com/google/uuid"
)

// Catalog is the supplemented artifact collection API: a thin layer over a
// Runner letting a previously saved {kind, component_source} pair be
// replayed without re-deriving hashing decisions. It is not a
// second runner — Save/Replay/Delete all delegate materialization and
// lifecycle control to the wrapped Runner.
type Catalog struct {
	runner  *Runner
	records store.ArtifactRecordStore
}

// NewCatalog wraps runner with a persistent {kind, component_source} record
// store.
func NewCatalog(runner *Runner, records store.ArtifactRecordStore) *Catalog {
	return &Catalog{runner: runner, records: records}
}

// Save records a {kind, component_source} pair for later replay and returns
// its id.
func (c *Catalog) Save(ctx context.Context, kind Kind, componentSource string) (string, error) {
	record := &store.ArtifactRecord{
		ID:              uuid.NewString(),
		Kind:            string(kind),
		ComponentSource: componentSource,
		CreatedTime:     time.Now(),
	}
	if err := c.records.Create(ctx, record); err != nil {
		return "", engineerr.Wrap(engineerr.KindDatabase, "save artifact record", err)
	}
	return record.ID, nil
}

// List returns every saved artifact record, newest first.
func (c *Catalog) List(ctx context.Context) ([]*store.ArtifactRecord, error) {
	records, err := c.records.List(ctx)
	if err != nil {
		return nil, engineerr.Wrap(engineerr.KindDatabase, "list artifact records", err)
	}
	return records, nil
}

// Delete removes a saved artifact record. It does not close any server
// currently running for it; callers that want both call CloseArtifact
// separately.
func (c *Catalog) Delete(ctx context.Context, id string) error {
	if err := c.records.Delete(ctx, id); err != nil {
		return engineerr.Wrap(engineerr.KindDatabase, "delete artifact record", err)
	}
	return nil
}

// Replay looks up a saved record by id and runs it through the wrapped
// Runner, returning the preview URL.
func (c *Catalog) Replay(ctx context.Context, id string) (string, error) {
	records, err := c.List(ctx)
	if err != nil {
		return "", err
	}
	for _, r := range records {
		if r.ID == id {
			return c.runner.RunArtifact(ctx, Kind(r.Kind), r.ID, r.ComponentSource)
		}
	}
	return "", engineerr.New(engineerr.KindNotFound, "artifact record not found: "+id)
}
