package transform

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"caseflow/internal/logging"
	"caseflow/internal/schema"
	"caseflow/internal/services"
	"caseflow/internal/staging"
	"caseflow/internal/storage"
)

const component = "transform"

// LocalEngine derives layers in the same database as staging.
type LocalEngine struct {
	db           *storage.DB
	staging      *staging.Store
	schemas      *schema.Registry
	logger       *slog.Logger
	now          func() time.Time
	computations map[string]Computation
}

var _ Engine = (*LocalEngine)(nil)

// NewLocalEngine wires the engine with the built-in computations.
func NewLocalEngine(db *storage.DB, store *staging.Store, schemas *schema.Registry, logger *slog.Logger) *LocalEngine {
	return &LocalEngine{
		db:           db,
		staging:      store,
		schemas:      schemas,
		logger:       logging.NewComponentLogger(logger, component),
		now:          time.Now,
		computations: builtinComputations(),
	}
}

// Process derives one staged record and marks it. Derivation problems mark
// the record failed and return its status with a nil error; the error is
// non-nil only when the outcome could not be persisted.
func (e *LocalEngine) Process(ctx context.Context, rec staging.Record) (staging.Status, error) {
	logger := logging.WithContext(ctx, e.logger).With(
		logging.String(logging.FieldCaseID, rec.CaseNumber),
		logging.String(logging.FieldSourceType, string(rec.SourceType)),
		logging.String(logging.FieldRecordID, rec.ID),
	)
	entities, version, deriveErr := e.derive(rec)
	if deriveErr != nil {
		if err := e.staging.MarkProcessed(ctx, rec.SourceType, rec.ID, staging.StatusFailed, deriveErr.Error()); err != nil {
			return "", err
		}
		logging.WarnWithContext(logger, "staged record failed transformation", "transform_failed",
			logging.Error(deriveErr),
			logging.String(logging.FieldErrorHint, "inspect the payload shape, then replay the record"),
			logging.String(logging.FieldImpact, "derived layers for this case stay incomplete"),
		)
		return staging.StatusFailed, nil
	}
	if err := e.writeEntities(ctx, rec, entities); err != nil {
		return "", err
	}
	if err := e.staging.SetSchemaVersion(ctx, rec.SourceType, rec.ID, version); err != nil {
		return "", err
	}
	if err := e.staging.MarkProcessed(ctx, rec.SourceType, rec.ID, staging.StatusCompleted, ""); err != nil {
		return "", err
	}
	logger.Info("staged record transformed",
		logging.String("schema_version", version),
		logging.Int("entities", len(entities)),
		logging.String(logging.FieldEventType, "transform_completed"),
	)
	return staging.StatusCompleted, nil
}

func (e *LocalEngine) derive(rec staging.Record) ([]Entity, string, error) {
	doc, err := e.schemas.Detect(rec.SourceType, rec.Payload)
	if err != nil {
		return nil, "", err
	}
	entities, err := Derive(doc)
	if err != nil {
		return nil, doc.Version, services.Wrap(services.ErrValidation, component, "derive", string(rec.SourceType)+" "+doc.Version, err)
	}
	return entities, doc.Version, nil
}

// writeEntities replaces whatever a previous pass derived from the record.
func (e *LocalEngine) writeEntities(ctx context.Context, rec staging.Record, entities []Entity) error {
	created := storage.FormatTime(e.now())
	err := e.db.WithTx(ctx, func(tx *storage.Tx) error {
		if _, err := tx.Exec(ctx, "DELETE FROM derived_records WHERE staged_record_id = ?", rec.ID); err != nil {
			return err
		}
		seen := make(map[string]int, len(entities))
		for _, entity := range entities {
			key := entity.Type + "|" + entity.Key
			seen[key]++
			entityKey := entity.Key
			if n := seen[key]; n > 1 {
				entityKey = fmt.Sprintf("%s#%d", entity.Key, n)
			}
			payload, err := json.Marshal(entity.Payload)
			if err != nil {
				return err
			}
			if _, err := tx.Exec(ctx,
				`INSERT INTO derived_records
				 (staged_record_id, work_unit_id, source_type, layer, entity_type, entity_key, payload, created_at)
				 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
				rec.ID, rec.WorkUnitID, string(rec.SourceType), string(entity.Layer), entity.Type, entityKey, string(payload), created,
			); err != nil {
				return err
			}
		}
		return nil
	})
	return storage.Classify(component, "write derived", err)
}

// Bindings implements Engine.
func (e *LocalEngine) Bindings() []Binding {
	return append([]Binding(nil), DefaultBindings...)
}

// PropagationCount implements Engine.
func (e *LocalEngine) PropagationCount(ctx context.Context, entity string, source staging.SourceType) (int64, error) {
	var count int64
	err := e.db.ScanRow(ctx,
		"SELECT COUNT(1) FROM derived_records WHERE entity_type = ? AND source_type = ?",
		[]any{entity, string(source)}, &count)
	if err != nil {
		return 0, storage.Classify(component, "propagation count", err)
	}
	return count, nil
}

// LayerCounts implements Engine.
func (e *LocalEngine) LayerCounts(ctx context.Context, caseNumber string) (LayerCounts, error) {
	var counts LayerCounts
	var silver, gold sql.NullInt64
	err := e.db.ScanRow(ctx, `SELECT
		SUM(CASE WHEN d.layer = 'silver' THEN 1 ELSE 0 END),
		SUM(CASE WHEN d.layer = 'gold' THEN 1 ELSE 0 END)
		FROM derived_records d JOIN work_units w ON w.id = d.work_unit_id
		WHERE w.case_number = ?`,
		[]any{strings.TrimSpace(caseNumber)}, &silver, &gold)
	if err != nil {
		return LayerCounts{}, storage.Classify(component, "layer counts", err)
	}
	counts.Silver = silver.Int64
	counts.Gold = gold.Int64
	return counts, nil
}

// SampleWorkUnit implements Engine, preferring the case with the newest gold record.
func (e *LocalEngine) SampleWorkUnit(ctx context.Context) (string, bool, error) {
	var caseNumber string
	err := e.db.ScanRow(ctx, `SELECT w.case_number
		FROM derived_records d JOIN work_units w ON w.id = d.work_unit_id
		ORDER BY CASE WHEN d.layer = 'gold' THEN 0 ELSE 1 END, d.created_at DESC, d.id DESC
		LIMIT 1`, nil, &caseNumber)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, storage.Classify(component, "sample work unit", err)
	}
	return caseNumber, true, nil
}

// Computations implements Engine.
func (e *LocalEngine) Computations() []string {
	names := make([]string, 0, len(e.computations))
	for name := range e.computations {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Compute implements Engine.
func (e *LocalEngine) Compute(ctx context.Context, name, caseNumber string) (any, error) {
	fn, ok := e.computations[name]
	if !ok {
		return nil, services.Wrap(services.ErrNotFound, component, "compute", fmt.Sprintf("unknown computation %q", name), nil)
	}
	return fn(ctx, e, strings.TrimSpace(caseNumber))
}

type derivedRow struct {
	Key     string
	Source  staging.SourceType
	Payload map[string]any
}

// latestEntities returns a case's entities of one type from the newest staged
// record that produced any. An empty source matches every source.
func (e *LocalEngine) latestEntities(ctx context.Context, caseNumber, entity string, source staging.SourceType) ([]derivedRow, error) {
	query := `SELECT d.entity_key, d.source_type, d.payload
		FROM derived_records d
		JOIN work_units w ON w.id = d.work_unit_id
		WHERE w.case_number = ? AND d.entity_type = ? AND d.staged_record_id = (
			SELECT d2.staged_record_id FROM derived_records d2
			JOIN staged_records s ON s.id = d2.staged_record_id
			WHERE d2.work_unit_id = w.id AND d2.entity_type = ? AND (? = '' OR d2.source_type = ?)
			ORDER BY s.inserted_at DESC, s.id DESC LIMIT 1)
		ORDER BY d.entity_key`
	rows, err := e.db.Query(ctx, query, caseNumber, entity, entity, string(source), string(source))
	if err != nil {
		return nil, storage.Classify(component, "load derived", err)
	}
	defer rows.Close()
	var out []derivedRow
	for rows.Next() {
		var (
			row     derivedRow
			src     string
			payload string
		)
		if err := rows.Scan(&row.Key, &src, &payload); err != nil {
			return nil, storage.Classify(component, "load derived", err)
		}
		row.Source = staging.SourceType(src)
		if err := json.Unmarshal([]byte(payload), &row.Payload); err != nil {
			return nil, services.Wrap(services.ErrValidation, component, "load derived", "corrupt derived payload", err)
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, storage.Classify(component, "load derived", err)
	}
	return out, nil
}
