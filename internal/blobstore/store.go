package blobstore

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"

	"caseflow/internal/config"
	"caseflow/internal/logging"
	"caseflow/internal/services"
	"caseflow/internal/storage"
)

const component = "blobstore"

// Options configures a Store.
type Options struct {
	// SigningKey authenticates signed retrieval URLs. Signing is disabled when empty.
	SigningKey string
	// BaseURL prefixes signed URLs, e.g. http://127.0.0.1:7590.
	BaseURL    string
	HTTPClient *http.Client
	Logger     *slog.Logger
	// MaxDownloadBytes caps DownloadFromURL bodies. DefaultMaxDownloadBytes when zero.
	MaxDownloadBytes int64
}

// Store is the content-addressed attachment store.
type Store struct {
	db         *storage.DB
	bucket     Bucket
	signingKey []byte
	baseURL    string
	client     *http.Client
	maxBytes   int64
	logger     *slog.Logger
	now        func() time.Time
}

// New binds a Store to its metadata database and object bucket.
func New(db *storage.DB, bucket Bucket, opts Options) *Store {
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{}
	}
	maxBytes := opts.MaxDownloadBytes
	if maxBytes <= 0 {
		maxBytes = DefaultMaxDownloadBytes
	}
	return &Store{
		db:         db,
		bucket:     bucket,
		signingKey: []byte(opts.SigningKey),
		baseURL:    strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/"),
		client:     client,
		maxBytes:   maxBytes,
		logger:     logging.NewComponentLogger(opts.Logger, component),
		now:        time.Now,
	}
}

// NewFromConfig opens the configured file bucket and returns a Store over it.
func NewFromConfig(cfg *config.Config, db *storage.DB, logger *slog.Logger) (*Store, error) {
	if cfg == nil {
		return nil, services.Wrap(services.ErrConfiguration, component, "init", "config is nil", nil)
	}
	bucket, err := NewFileBucket(cfg.Paths.BlobDir)
	if err != nil {
		return nil, services.Wrap(services.ErrStorageUnavailable, component, "init", "open bucket", err)
	}
	return New(db, bucket, Options{
		SigningKey: cfg.Storage.BlobSigningKey,
		BaseURL:    "http://" + cfg.Paths.APIBind,
		HTTPClient:       &http.Client{Timeout: time.Duration(cfg.Sources.Retry.DownloadTimeoutSec) * time.Second},
		Logger:           logger,
		MaxDownloadBytes: int64(cfg.Storage.MaxBlobMB) << 20,
	}), nil
}

// HashContent returns the hex SHA-256 digest used as the dedup key.
func HashContent(content []byte) string {
	sum := sha256.Sum256(content)
	return hex.EncodeToString(sum[:])
}

// StoragePath derives the deterministic object path for an attachment.
func StoragePath(workUnit string, category Category, subcategory, fileName string) (string, error) {
	workUnit = strings.ReplaceAll(strings.TrimSpace(workUnit), "/", "_")
	if workUnit == "" || workUnit == "." || workUnit == ".." {
		return "", services.Wrap(services.ErrValidation, component, "path", "work unit is required", nil)
	}
	cat := ParseCategory(string(category))
	if cat == "" || strings.ContainsAny(string(cat), `/\`) || cat == "." || cat == ".." {
		return "", services.Wrap(services.ErrValidation, component, "path", fmt.Sprintf("invalid category %q", category), nil)
	}
	base := path.Base(strings.ReplaceAll(strings.TrimSpace(fileName), `\`, "/"))
	if base == "" || base == "." || base == ".." || base == "/" {
		return "", services.Wrap(services.ErrValidation, component, "path", fmt.Sprintf("invalid file name %q", fileName), nil)
	}
	parts := []string{workUnit, string(cat)}
	if sub := strings.ReplaceAll(strings.TrimSpace(subcategory), "/", "_"); sub != "" && sub != "." && sub != ".." {
		parts = append(parts, sub)
	}
	parts = append(parts, base)
	return strings.Join(parts, "/"), nil
}

// Upload stores content unless an object with the same hash already exists,
// in which case the existing object is returned with IsDuplicate set.
func (s *Store) Upload(ctx context.Context, req UploadRequest) (UploadResult, error) {
	objectPath, err := StoragePath(req.WorkUnit, req.Category, req.Subcategory, req.FileName)
	if err != nil {
		return UploadResult{}, err
	}
	hash := HashContent(req.Content)

	existing, err := s.FetchByHash(ctx, hash)
	switch {
	case err == nil:
		s.logDuplicate(existing, req)
		return UploadResult{Object: existing, IsDuplicate: true}, nil
	case !errors.Is(err, services.ErrNotFound):
		return UploadResult{}, err
	}

	fileName := path.Base(objectPath)
	objectPath, created, err := s.place(ctx, objectPath, hash, req)
	if err != nil {
		return UploadResult{}, err
	}

	mediaType := strings.TrimSpace(req.MediaType)
	if mediaType == "" {
		mediaType = http.DetectContentType(req.Content)
	}
	obj := Object{
		ID:               uuid.NewString(),
		ContentHash:      hash,
		StoragePath:      objectPath,
		WorkUnit:         strings.TrimSpace(req.WorkUnit),
		Category:         ParseCategory(string(req.Category)),
		FileName:         fileName,
		SizeBytes:        int64(len(req.Content)),
		MediaType:        mediaType,
		SourceURL:        strings.TrimSpace(req.SourceURL),
		Metadata:         req.Metadata,
		ProcessingStatus: StatusStored,
		CreatedAt:        s.now().UTC(),
	}
	var metadata any
	if len(obj.Metadata) > 0 {
		encoded, err := json.Marshal(obj.Metadata)
		if err != nil {
			return UploadResult{}, services.Wrap(services.ErrValidation, component, "upload", "encode metadata", err)
		}
		metadata = string(encoded)
	}

	res, err := s.db.Exec(ctx,
		`INSERT INTO blobs (id, content_hash, storage_path, work_unit, category, file_name, size_bytes,
		 media_type, source_url, metadata, processing_status, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (content_hash) DO NOTHING`,
		obj.ID, obj.ContentHash, obj.StoragePath, obj.WorkUnit, string(obj.Category), obj.FileName, obj.SizeBytes,
		storage.NullableString(obj.MediaType), storage.NullableString(obj.SourceURL), metadata,
		obj.ProcessingStatus, storage.FormatTime(obj.CreatedAt),
	)
	if err != nil {
		if created {
			_ = s.bucket.Remove(ctx, objectPath)
		}
		return UploadResult{}, storage.Classify(component, "upload", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		// A concurrent upload of the same bytes claimed the hash first.
		winner, err := s.FetchByHash(ctx, hash)
		if err != nil {
			return UploadResult{}, err
		}
		if created && winner.StoragePath != objectPath {
			_ = s.bucket.Remove(ctx, objectPath)
		}
		s.logDuplicate(winner, req)
		return UploadResult{Object: winner, IsDuplicate: true}, nil
	}

	s.logger.Info("blob stored",
		logging.String(logging.FieldCaseID, obj.WorkUnit),
		logging.String(logging.FieldBlobID, obj.ID),
		logging.String("storage_path", obj.StoragePath),
		logging.Int64("size_bytes", obj.SizeBytes),
		logging.String(logging.FieldEventType, "blob_stored"),
	)
	return UploadResult{Object: obj}, nil
}

// place writes content at objectPath. An existing object with the same bytes
// is reused; different bytes move the upload to a hash-suffixed path so the
// recorded object stays readable.
func (s *Store) place(ctx context.Context, objectPath, hash string, req UploadRequest) (string, bool, error) {
	err := s.bucket.Put(ctx, objectPath, req.Content)
	if err == nil {
		return objectPath, true, nil
	}
	if !errors.Is(err, ErrObjectExists) {
		return "", false, services.Wrap(services.ErrStorageUnavailable, component, "upload", "write object", err)
	}
	current, readErr := s.bucket.Get(ctx, objectPath)
	if readErr == nil && HashContent(current) == hash {
		logging.WarnWithContext(s.logger, "object path already holds this content; recording metadata only", "blob_path_exists",
			logging.String(logging.FieldCaseID, req.WorkUnit),
			logging.String("storage_path", objectPath),
			logging.String(logging.FieldImpact, "none"),
		)
		return objectPath, false, nil
	}

	alternate := suffixedPath(objectPath, hash)
	logging.WarnWithContext(s.logger, "object path holds different content; storing under a suffixed path", "blob_path_conflict",
		logging.String(logging.FieldCaseID, req.WorkUnit),
		logging.String("storage_path", objectPath),
		logging.String("alternate_path", alternate),
		logging.String(logging.FieldErrorHint, "an untracked file occupies the canonical path; inspect the bucket"),
	)
	if err := s.bucket.Put(ctx, alternate, req.Content); err != nil {
		if !errors.Is(err, ErrObjectExists) {
			return "", false, services.Wrap(services.ErrStorageUnavailable, component, "upload", "write object", err)
		}
		current, readErr := s.bucket.Get(ctx, alternate)
		if readErr != nil || HashContent(current) != hash {
			return "", false, services.Wrap(services.ErrStorageUnavailable, component, "upload",
				"paths "+objectPath+" and "+alternate+" hold other content", readErr)
		}
		return alternate, false, nil
	}
	return alternate, true, nil
}

// suffixedPath inserts a short content hash before the file extension.
func suffixedPath(objectPath, hash string) string {
	ext := path.Ext(objectPath)
	return strings.TrimSuffix(objectPath, ext) + "-" + shortHash(hash) + ext
}

func (s *Store) logDuplicate(existing Object, req UploadRequest) {
	s.logger.Info("duplicate blob detected",
		logging.String(logging.FieldCaseID, req.WorkUnit),
		logging.String(logging.FieldBlobID, existing.ID),
		logging.String("content_hash", shortHash(existing.ContentHash)),
		logging.String("file_name", req.FileName),
		logging.String(logging.FieldEventType, "blob_duplicate"),
	)
}

func shortHash(hash string) string {
	if len(hash) > 12 {
		return hash[:12]
	}
	return hash
}

const objectColumns = `id, content_hash, storage_path, work_unit, category, file_name, size_bytes, media_type,
	source_url, metadata, processing_status, parsed_record_id, created_at, linked_at`

func scanObject(scanner interface{ Scan(dest ...any) error }) (Object, error) {
	var (
		obj        Object
		category   string
		mediaType  sql.NullString
		sourceURL  sql.NullString
		metadata   sql.NullString
		parsedID   sql.NullString
		createdRaw string
		linkedRaw  sql.NullString
	)
	if err := scanner.Scan(&obj.ID, &obj.ContentHash, &obj.StoragePath, &obj.WorkUnit, &category, &obj.FileName,
		&obj.SizeBytes, &mediaType, &sourceURL, &metadata, &obj.ProcessingStatus, &parsedID, &createdRaw, &linkedRaw); err != nil {
		return Object{}, err
	}
	obj.Category = Category(category)
	obj.MediaType = mediaType.String
	obj.SourceURL = sourceURL.String
	obj.ParsedRecordID = parsedID.String
	if metadata.Valid && metadata.String != "" {
		_ = json.Unmarshal([]byte(metadata.String), &obj.Metadata)
	}
	obj.CreatedAt, _ = storage.ParseTime(createdRaw)
	if linkedRaw.Valid {
		if t, err := storage.ParseTime(linkedRaw.String); err == nil {
			obj.LinkedAt = &t
		}
	}
	return obj, nil
}

func (s *Store) fetchOne(ctx context.Context, operation, where string, arg any) (Object, error) {
	rows, err := s.db.Query(ctx, "SELECT "+objectColumns+" FROM blobs WHERE "+where, arg)
	if err != nil {
		return Object{}, storage.Classify(component, operation, err)
	}
	defer rows.Close()
	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return Object{}, storage.Classify(component, operation, err)
		}
		return Object{}, services.Wrap(services.ErrNotFound, component, operation, fmt.Sprint(arg), nil)
	}
	obj, err := scanObject(rows)
	if err != nil {
		return Object{}, storage.Classify(component, operation, err)
	}
	return obj, nil
}

// FetchByHash returns the canonical object for a content hash.
func (s *Store) FetchByHash(ctx context.Context, hash string) (Object, error) {
	return s.fetchOne(ctx, "fetch by hash", "content_hash = ?", strings.ToLower(strings.TrimSpace(hash)))
}

// Get returns object metadata by id.
func (s *Store) Get(ctx context.Context, id string) (Object, error) {
	return s.fetchOne(ctx, "get", "id = ?", strings.TrimSpace(id))
}

// Read returns the object's bytes after checking them against the recorded hash.
func (s *Store) Read(ctx context.Context, id string) ([]byte, error) {
	obj, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	data, err := s.bucket.Get(ctx, obj.StoragePath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, services.Wrap(services.ErrNotFound, component, "read", "object missing from bucket: "+obj.StoragePath, err)
		}
		return nil, services.Wrap(services.ErrStorageUnavailable, component, "read", obj.StoragePath, err)
	}
	if HashContent(data) != obj.ContentHash {
		return nil, services.Wrap(services.ErrValidation, component, "read",
			fmt.Sprintf("content at %s does not match hash %s", obj.StoragePath, shortHash(obj.ContentHash)), nil)
	}
	return data, nil
}

// ListByWorkUnit returns a case's objects, oldest first.
func (s *Store) ListByWorkUnit(ctx context.Context, workUnit string) ([]Object, error) {
	rows, err := s.db.Query(ctx,
		"SELECT "+objectColumns+" FROM blobs WHERE work_unit = ? ORDER BY created_at ASC, id ASC",
		strings.TrimSpace(workUnit))
	if err != nil {
		return nil, storage.Classify(component, "list", err)
	}
	defer rows.Close()
	var objects []Object
	for rows.Next() {
		obj, err := scanObject(rows)
		if err != nil {
			return nil, storage.Classify(component, "list", err)
		}
		objects = append(objects, obj)
	}
	if err := rows.Err(); err != nil {
		return nil, storage.Classify(component, "list", err)
	}
	return objects, nil
}

// LinkToParsedRecord annotates an object with the staged record parsed from it.
func (s *Store) LinkToParsedRecord(ctx context.Context, id, stagedRecordID string) error {
	res, err := s.db.Exec(ctx,
		"UPDATE blobs SET parsed_record_id = ?, processing_status = ?, linked_at = ? WHERE id = ?",
		strings.TrimSpace(stagedRecordID), StatusParsed, storage.FormatTime(s.now()), strings.TrimSpace(id),
	)
	if err != nil {
		return storage.Classify(component, "link", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return services.Wrap(services.ErrNotFound, component, "link", "blob "+id, nil)
	}
	s.logger.Info("blob linked to staged record",
		logging.String(logging.FieldBlobID, id),
		logging.String(logging.FieldRecordID, stagedRecordID),
		logging.String(logging.FieldEventType, "blob_linked"),
	)
	return nil
}
