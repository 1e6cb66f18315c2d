package staging

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"caseflow/internal/services"
	"caseflow/internal/storage"
)

// LoadCursor returns the persisted watermark for name. The boolean is false
// when no cursor has been saved yet.
func (s *Store) LoadCursor(ctx context.Context, name string) (time.Time, bool, error) {
	var raw string
	err := s.db.ScanRow(ctx, "SELECT cursor_value FROM sensor_cursors WHERE name = ?", []any{name}, &raw)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, storage.Classify(component, "load cursor", err)
	}
	value, err := storage.ParseTime(raw)
	if err != nil {
		return time.Time{}, false, services.Wrap(services.ErrValidation, component, "load cursor", "corrupt cursor value "+raw, err)
	}
	return value, true, nil
}

// SaveCursor persists the watermark for name. A value that does not move the
// stored cursor forward is rejected.
func (s *Store) SaveCursor(ctx context.Context, name string, value time.Time) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return services.Wrap(services.ErrValidation, component, "save cursor", "cursor name is required", nil)
	}
	encoded := storage.FormatTime(value)
	res, err := s.db.Exec(ctx,
		`INSERT INTO sensor_cursors (name, cursor_value, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT (name) DO UPDATE SET cursor_value = excluded.cursor_value, updated_at = excluded.updated_at
		 WHERE sensor_cursors.cursor_value < excluded.cursor_value`,
		name, encoded, storage.FormatTime(s.now()),
	)
	if err != nil {
		return storage.Classify(component, "save cursor", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return services.Wrap(services.ErrValidation, component, "save cursor", "cursor "+name+" would move backwards to "+encoded, nil)
	}
	return nil
}
