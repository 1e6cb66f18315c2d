package staging

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"caseflow/internal/logging"
	"caseflow/internal/services"
	"caseflow/internal/storage"
)

const component = "staging"

// ErrInvalidTransition is returned when a terminal record would flip directly
// between completed and failed.
var ErrInvalidTransition = errors.New("invalid status transition")

// Store persists work units and staged records. It is safe for concurrent use;
// concurrent inserts for different sources on one case never contend on a row.
type Store struct {
	db     *storage.DB
	logger *slog.Logger
	now    func() time.Time
}

// NewStore binds a staging store to an opened database.
func NewStore(db *storage.DB, logger *slog.Logger) *Store {
	return &Store{
		db:     db,
		logger: logging.NewComponentLogger(logger, component),
		now:    time.Now,
	}
}

// EnsureWorkUnit returns the case, creating it on first reference.
func (s *Store) EnsureWorkUnit(ctx context.Context, caseNumber, label string, origin Origin) (WorkUnit, error) {
	caseNumber = strings.TrimSpace(caseNumber)
	if caseNumber == "" {
		return WorkUnit{}, services.Wrap(services.ErrValidation, component, "ensure work unit", "case number is required", nil)
	}
	label = strings.TrimSpace(label)
	if label == "" {
		label = DefaultLabel(caseNumber)
	}
	if origin == "" {
		origin = OriginTrigger
	}
	res, err := s.db.Exec(ctx,
		`INSERT INTO work_units (case_number, label, origin, created_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT (case_number) DO NOTHING`,
		caseNumber, label, string(origin), storage.FormatTime(s.now()),
	)
	if err != nil {
		return WorkUnit{}, storage.Classify(component, "ensure work unit", err)
	}
	if n, _ := res.RowsAffected(); n > 0 {
		s.logger.Info("work unit created",
			logging.String(logging.FieldCaseID, caseNumber),
			logging.String("origin", string(origin)),
			logging.String(logging.FieldEventType, "work_unit_created"),
		)
	}
	return s.GetWorkUnit(ctx, caseNumber)
}

// RegisterWorkUnit records a case as new so the sensor picks it up on its
// next evaluation. Registering a known case returns it unchanged.
func (s *Store) RegisterWorkUnit(ctx context.Context, caseNumber, label string) (WorkUnit, error) {
	return s.EnsureWorkUnit(ctx, caseNumber, label, OriginRegistered)
}

// GetWorkUnit looks a case up by its external number.
func (s *Store) GetWorkUnit(ctx context.Context, caseNumber string) (WorkUnit, error) {
	var (
		unit       WorkUnit
		label      sql.NullString
		origin     string
		createdRaw string
	)
	err := s.db.ScanRow(ctx,
		"SELECT id, case_number, label, origin, created_at FROM work_units WHERE case_number = ?",
		[]any{strings.TrimSpace(caseNumber)},
		&unit.ID, &unit.CaseNumber, &label, &origin, &createdRaw,
	)
	if err != nil {
		return WorkUnit{}, storage.Classify(component, "get work unit", err)
	}
	unit.Label = label.String
	unit.Origin = Origin(origin)
	unit.CreatedAt, _ = storage.ParseTime(createdRaw)
	return unit, nil
}

// RegisteredSince lists cases registered for sensor pickup after the given
// instant, oldest first.
func (s *Store) RegisteredSince(ctx context.Context, after time.Time, limit int) ([]WorkUnit, error) {
	if limit <= 0 {
		limit = 500
	}
	rows, err := s.db.Query(ctx,
		`SELECT id, case_number, label, origin, created_at FROM work_units
		 WHERE origin = ? AND created_at > ? ORDER BY created_at ASC, id ASC LIMIT ?`,
		string(OriginRegistered), storage.FormatTime(after), limit,
	)
	if err != nil {
		return nil, storage.Classify(component, "list registered", err)
	}
	defer rows.Close()
	var units []WorkUnit
	for rows.Next() {
		var (
			unit       WorkUnit
			label      sql.NullString
			origin     string
			createdRaw string
		)
		if err := rows.Scan(&unit.ID, &unit.CaseNumber, &label, &origin, &createdRaw); err != nil {
			return nil, storage.Classify(component, "scan work unit", err)
		}
		unit.Label = label.String
		unit.Origin = Origin(origin)
		unit.CreatedAt, _ = storage.ParseTime(createdRaw)
		units = append(units, unit)
	}
	if err := rows.Err(); err != nil {
		return nil, storage.Classify(component, "list registered", err)
	}
	return units, nil
}

// Store appends a raw payload for a case and returns the new record id. The
// payload is never validated; only a reachable backend is required.
func (s *Store) Store(ctx context.Context, caseNumber string, source SourceType, payload json.RawMessage, prov Provenance) (string, error) {
	if source == "" {
		return "", services.Wrap(services.ErrValidation, component, "store", "source type is required", nil)
	}
	unit, err := s.EnsureWorkUnit(ctx, caseNumber, "", OriginTrigger)
	if err != nil {
		return "", err
	}
	if len(payload) == 0 {
		payload = json.RawMessage("null")
	}
	createdBy := prov.CreatedBy
	if createdBy == "" {
		createdBy = "system"
	}
	id := uuid.NewString()
	_, err = s.db.Exec(ctx,
		`INSERT INTO staged_records
		 (id, work_unit_id, source_type, payload, api_source, api_endpoint, created_by, schema_version, status, inserted_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id, unit.ID, string(source), string(payload),
		storage.NullableString(prov.APISource), storage.NullableString(prov.APIEndpoint),
		createdBy, storage.NullableString(prov.SchemaVersion),
		string(StatusPending), storage.FormatTime(s.now()),
	)
	if err != nil {
		return "", storage.Classify(component, "store", err)
	}
	s.logger.Info("staged record stored",
		logging.String(logging.FieldCaseID, unit.CaseNumber),
		logging.String(logging.FieldSourceType, string(source)),
		logging.String(logging.FieldRecordID, id),
		logging.Int("payload_bytes", len(payload)),
		logging.String(logging.FieldEventType, "staged_record_stored"),
	)
	return id, nil
}

const recordColumns = `r.id, r.work_unit_id, w.case_number, r.source_type, r.payload, r.api_source, r.api_endpoint,
	r.created_by, r.schema_version, r.status, r.error, r.inserted_at, r.processed_at`

const recordFrom = ` FROM staged_records r JOIN work_units w ON w.id = r.work_unit_id`

func scanRecord(scanner interface{ Scan(dest ...any) error }) (Record, error) {
	var (
		rec           Record
		source        string
		payload       string
		apiSource     sql.NullString
		apiEndpoint   sql.NullString
		createdBy     sql.NullString
		schemaVersion sql.NullString
		status        string
		errText       sql.NullString
		insertedRaw   string
		processedRaw  sql.NullString
	)
	if err := scanner.Scan(&rec.ID, &rec.WorkUnitID, &rec.CaseNumber, &source, &payload, &apiSource, &apiEndpoint,
		&createdBy, &schemaVersion, &status, &errText, &insertedRaw, &processedRaw); err != nil {
		return Record{}, err
	}
	rec.SourceType = SourceType(source)
	rec.Payload = json.RawMessage(payload)
	rec.APISource = apiSource.String
	rec.APIEndpoint = apiEndpoint.String
	rec.CreatedBy = createdBy.String
	rec.SchemaVersion = schemaVersion.String
	rec.Status = Status(status)
	rec.Error = errText.String
	rec.InsertedAt, _ = storage.ParseTime(insertedRaw)
	if processedRaw.Valid {
		if t, err := storage.ParseTime(processedRaw.String); err == nil {
			rec.ProcessedAt = &t
		}
	}
	return rec, nil
}

func (s *Store) queryRecords(ctx context.Context, operation, where string, args ...any) ([]Record, error) {
	rows, err := s.db.Query(ctx, "SELECT "+recordColumns+recordFrom+" "+where, args...)
	if err != nil {
		return nil, storage.Classify(component, operation, err)
	}
	defer rows.Close()
	var records []Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, storage.Classify(component, operation, err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, storage.Classify(component, operation, err)
	}
	return records, nil
}

// Get fetches a single staged record.
func (s *Store) Get(ctx context.Context, source SourceType, id string) (Record, error) {
	records, err := s.queryRecords(ctx, "get", "WHERE r.source_type = ? AND r.id = ?", string(source), id)
	if err != nil {
		return Record{}, err
	}
	if len(records) == 0 {
		return Record{}, services.Wrap(services.ErrNotFound, component, "get", fmt.Sprintf("%s record %s", source, id), nil)
	}
	return records[0], nil
}

// ListByWorkUnit returns a case's records for one source, newest first.
func (s *Store) ListByWorkUnit(ctx context.Context, source SourceType, caseNumber string, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = 50
	}
	return s.queryRecords(ctx, "list by work unit",
		"WHERE r.source_type = ? AND w.case_number = ? ORDER BY r.inserted_at DESC, r.id DESC LIMIT ?",
		string(source), strings.TrimSpace(caseNumber), limit)
}

// ListByStatus returns records in a status, newest first. An empty source
// matches every source.
func (s *Store) ListByStatus(ctx context.Context, source SourceType, status Status, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = 50
	}
	if source == "" {
		return s.queryRecords(ctx, "list by status",
			"WHERE r.status = ? ORDER BY r.inserted_at DESC, r.id DESC LIMIT ?", string(status), limit)
	}
	return s.queryRecords(ctx, "list by status",
		"WHERE r.source_type = ? AND r.status = ? ORDER BY r.inserted_at DESC, r.id DESC LIMIT ?",
		string(source), string(status), limit)
}

// NextPending returns the oldest pending records across all sources.
func (s *Store) NextPending(ctx context.Context, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = 10
	}
	return s.queryRecords(ctx, "next pending",
		"WHERE r.status = ? ORDER BY r.inserted_at ASC, r.id ASC LIMIT ?", string(StatusPending), limit)
}

// MarkProcessed records the transformation outcome. Re-marking a record with
// the status it already holds overwrites error and timestamp; flipping a
// terminal record to the other terminal status is rejected.
func (s *Store) MarkProcessed(ctx context.Context, source SourceType, id string, status Status, errMsg string) error {
	if !status.IsTerminal() {
		return services.Wrap(services.ErrValidation, component, "mark processed", fmt.Sprintf("status %q is not terminal", status), nil)
	}
	if status == StatusCompleted {
		errMsg = ""
	}
	res, err := s.db.Exec(ctx,
		`UPDATE staged_records SET status = ?, error = ?, processed_at = ?
		 WHERE source_type = ? AND id = ? AND status IN (?, ?)`,
		string(status), storage.NullableString(strings.TrimSpace(errMsg)), storage.FormatTime(s.now()),
		string(source), id, string(StatusPending), string(status),
	)
	if err != nil {
		return storage.Classify(component, "mark processed", err)
	}
	if n, _ := res.RowsAffected(); n > 0 {
		return nil
	}
	current, err := s.Get(ctx, source, id)
	if err != nil {
		return err
	}
	return services.Wrap(services.ErrValidation, component, "mark processed",
		fmt.Sprintf("record %s is %s", id, current.Status),
		fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, current.Status, status))
}

// Replay resets the selected terminal records to pending, clearing error and
// processed timestamp, and returns how many were reset.
func (s *Store) Replay(ctx context.Context, source SourceType, sel Selector) (int64, error) {
	if err := sel.Validate(); err != nil {
		return 0, err
	}
	query := `UPDATE staged_records SET status = ?, error = NULL, processed_at = NULL
		WHERE source_type = ? AND status IN (?, ?)`
	args := []any{string(StatusPending), string(source), string(StatusCompleted), string(StatusFailed)}
	switch {
	case sel.RecordID != "":
		query += " AND id = ?"
		args = append(args, sel.RecordID)
	case sel.WorkUnit != "":
		query += " AND work_unit_id = (SELECT id FROM work_units WHERE case_number = ?)"
		args = append(args, sel.WorkUnit)
	case sel.FailedOnly:
		query = `UPDATE staged_records SET status = ?, error = NULL, processed_at = NULL
			WHERE source_type = ? AND status = ?`
		args = []any{string(StatusPending), string(source), string(StatusFailed)}
	}
	res, err := s.db.Exec(ctx, query, args...)
	if err != nil {
		return 0, storage.Classify(component, "replay", err)
	}
	affected, _ := res.RowsAffected()
	s.logger.Info("staged records replayed",
		logging.String(logging.FieldSourceType, string(source)),
		logging.String("selector", sel.String()),
		logging.Int64("affected", affected),
		logging.String(logging.FieldEventType, "staging_replay"),
	)
	return affected, nil
}

// ProcessingSummary aggregates every source type present in staging.
func (s *Store) ProcessingSummary(ctx context.Context) ([]SourceSummary, error) {
	rows, err := s.db.Query(ctx, `SELECT source_type,
		COUNT(1),
		SUM(CASE WHEN status = 'completed' THEN 1 ELSE 0 END),
		SUM(CASE WHEN status = 'pending' THEN 1 ELSE 0 END),
		SUM(CASE WHEN status = 'failed' THEN 1 ELSE 0 END),
		MIN(inserted_at), MAX(inserted_at)
		FROM staged_records GROUP BY source_type ORDER BY source_type`)
	if err != nil {
		return nil, storage.Classify(component, "processing summary", err)
	}
	defer rows.Close()
	var summaries []SourceSummary
	for rows.Next() {
		var (
			summary     SourceSummary
			source      string
			first, last sql.NullString
		)
		if err := rows.Scan(&source, &summary.Total, &summary.Processed, &summary.Pending, &summary.Failed, &first, &last); err != nil {
			return nil, storage.Classify(component, "processing summary", err)
		}
		summary.SourceType = SourceType(source)
		if t, err := storage.ParseTime(first.String); err == nil {
			summary.FirstIngestion = &t
		}
		if t, err := storage.ParseTime(last.String); err == nil {
			summary.LastIngestion = &t
		}
		summaries = append(summaries, summary)
	}
	if err := rows.Err(); err != nil {
		return nil, storage.Classify(component, "processing summary", err)
	}
	return summaries, nil
}

// CountsForWorkUnit aggregates one case's staged records across sources.
func (s *Store) CountsForWorkUnit(ctx context.Context, caseNumber string) (UnitCounts, error) {
	var counts UnitCounts
	var pending, completed, failed sql.NullInt64
	err := s.db.ScanRow(ctx, `SELECT COUNT(1),
		SUM(CASE WHEN r.status = 'pending' THEN 1 ELSE 0 END),
		SUM(CASE WHEN r.status = 'completed' THEN 1 ELSE 0 END),
		SUM(CASE WHEN r.status = 'failed' THEN 1 ELSE 0 END)`+recordFrom+` WHERE w.case_number = ?`,
		[]any{strings.TrimSpace(caseNumber)},
		&counts.Total, &pending, &completed, &failed,
	)
	if err != nil {
		return UnitCounts{}, storage.Classify(component, "counts for work unit", err)
	}
	counts.Pending = pending.Int64
	counts.Completed = completed.Int64
	counts.Failed = failed.Int64
	return counts, nil
}

// SetSchemaVersion records the payload version the transformation engine
// detected for a record.
func (s *Store) SetSchemaVersion(ctx context.Context, source SourceType, id, version string) error {
	res, err := s.db.Exec(ctx,
		"UPDATE staged_records SET schema_version = ? WHERE source_type = ? AND id = ?",
		storage.NullableString(version), string(source), id,
	)
	if err != nil {
		return storage.Classify(component, "set schema version", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return services.Wrap(services.ErrNotFound, component, "set schema version", fmt.Sprintf("%s record %s", source, id), nil)
	}
	return nil
}
