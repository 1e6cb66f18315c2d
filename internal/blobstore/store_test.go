package blobstore

import (
	"context"
	"errors"
	"io/fs"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"caseflow/internal/services"
	"caseflow/internal/testsupport"
)

func newTestStore(t *testing.T) (*Store, *FileBucket) {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	db := testsupport.MustOpenDB(t, cfg)
	store, err := NewFromConfig(cfg, db, nil)
	require.NoError(t, err)
	bucket, ok := store.bucket.(*FileBucket)
	require.True(t, ok)
	return store, bucket
}

func countObjects(t *testing.T, root string) int {
	t.Helper()
	count := 0
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			count++
		}
		return nil
	})
	require.NoError(t, err)
	return count
}

func TestStoragePath(t *testing.T) {
	tests := []struct {
		name        string
		workUnit    string
		category    Category
		subcategory string
		fileName    string
		want        string
	}{
		{"plain", "1295022", "at", "", "AT 2021.pdf", "1295022/AT/AT 2021.pdf"},
		{"with year", "1295022", CategoryWI, "2022", "WI 22.pdf", "1295022/WI/2022/WI 22.pdf"},
		{"slashes sanitized", "12/95", CategoryOther, "", "../../etc/passwd", "12_95/OTHER/passwd"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := StoragePath(tt.workUnit, tt.category, tt.subcategory, tt.fileName)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := StoragePath("", CategoryAT, "", "a.pdf")
	assert.ErrorIs(t, err, services.ErrValidation)
	_, err = StoragePath("1", CategoryAT, "", "..")
	assert.ErrorIs(t, err, services.ErrValidation)
}

func TestUploadDeduplicatesIdenticalContent(t *testing.T) {
	store, bucket := newTestStore(t)
	ctx := context.Background()
	content := testsupport.FakePDF("transcript")

	first, err := store.Upload(ctx, UploadRequest{Content: content, WorkUnit: "1295022", Category: CategoryAT, FileName: "AT 2021.pdf", Subcategory: "2021"})
	require.NoError(t, err)
	assert.False(t, first.IsDuplicate)
	assert.Equal(t, "1295022/AT/2021/AT 2021.pdf", first.StoragePath)
	assert.Equal(t, "application/pdf", first.MediaType)
	assert.Equal(t, StatusStored, first.ProcessingStatus)

	second, err := store.Upload(ctx, UploadRequest{Content: content, WorkUnit: "777", Category: CategoryOther, FileName: "renamed.pdf"})
	require.NoError(t, err)
	assert.True(t, second.IsDuplicate)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, first.StoragePath, second.StoragePath)

	assert.Equal(t, 1, countObjects(t, bucket.Root()))
	objects, err := store.ListByWorkUnit(ctx, "777")
	require.NoError(t, err)
	assert.Empty(t, objects)
}

func TestConcurrentIdenticalUploadsYieldOneObject(t *testing.T) {
	store, bucket := newTestStore(t)
	ctx := context.Background()
	content := testsupport.FakePDF("race")

	const workers = 8
	results := make([]UploadResult, workers)
	errs := make([]error, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = store.Upload(ctx, UploadRequest{
				Content:  content,
				WorkUnit: "42",
				Category: CategoryAT,
				FileName: "copy-" + string(rune('a'+i)) + ".pdf",
			})
		}(i)
	}
	wg.Wait()

	fresh := 0
	for i := 0; i < workers; i++ {
		require.NoError(t, errs[i])
		if !results[i].IsDuplicate {
			fresh++
		}
		assert.Equal(t, results[0].ID, results[i].ID)
	}
	assert.Equal(t, 1, fresh)
	assert.Equal(t, 1, countObjects(t, bucket.Root()))

	objects, err := store.ListByWorkUnit(ctx, "42")
	require.NoError(t, err)
	assert.Len(t, objects, 1)
}

func TestUploadToleratesExistingPath(t *testing.T) {
	store, bucket := newTestStore(t)
	ctx := context.Background()
	same := testsupport.FakePDF("same")
	testsupport.WriteFile(t, filepath.Join(bucket.Root(), "9", "AT", "AT 2021.pdf"), same)

	result, err := store.Upload(ctx, UploadRequest{Content: same, WorkUnit: "9", Category: CategoryAT, FileName: "AT 2021.pdf"})
	require.NoError(t, err)
	assert.False(t, result.IsDuplicate)
	assert.Equal(t, "9/AT/AT 2021.pdf", result.StoragePath)
	data, err := store.Read(ctx, result.ID)
	require.NoError(t, err)
	assert.Equal(t, same, data)
}

func TestUploadMovesAsideFromForeignContent(t *testing.T) {
	store, bucket := newTestStore(t)
	ctx := context.Background()
	testsupport.WriteFile(t, filepath.Join(bucket.Root(), "9", "AT", "AT 2020.pdf"), []byte("left over"))
	content := testsupport.FakePDF("new")

	result, err := store.Upload(ctx, UploadRequest{Content: content, WorkUnit: "9", Category: CategoryAT, FileName: "AT 2020.pdf"})
	require.NoError(t, err)
	assert.False(t, result.IsDuplicate)
	want := "9/AT/AT 2020-" + shortHash(HashContent(content)) + ".pdf"
	assert.Equal(t, want, result.StoragePath)

	got, err := store.Get(ctx, result.ID)
	require.NoError(t, err)
	assert.Equal(t, want, got.StoragePath)
	data, err := store.Read(ctx, result.ID)
	require.NoError(t, err)
	assert.Equal(t, content, data)

	leftover, err := bucket.Get(ctx, "9/AT/AT 2020.pdf")
	require.NoError(t, err)
	assert.Equal(t, []byte("left over"), leftover)
}

func TestDownloadFromURLEnforcesSizeLimit(t *testing.T) {
	store, bucket := newTestStore(t)
	store.maxBytes = 16
	ctx := context.Background()

	mux := http.NewServeMux()
	mux.HandleFunc("/declared", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(strings.Repeat("x", 64)))
	})
	mux.HandleFunc("/streamed", func(w http.ResponseWriter, r *http.Request) {
		w.(http.Flusher).Flush()
		_, _ = w.Write([]byte(strings.Repeat("y", 64)))
	})
	mux.HandleFunc("/small", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("tiny"))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	for _, route := range []string{"/declared", "/streamed"} {
		_, err := store.DownloadFromURL(ctx, srv.URL+route, "77", CategoryOther, time.Second, DownloadOptions{FileName: "big.bin"})
		assert.ErrorIs(t, err, services.ErrValidation, route)
	}
	assert.Zero(t, countObjects(t, bucket.Root()))

	result, err := store.DownloadFromURL(ctx, srv.URL+"/small", "77", CategoryOther, time.Second, DownloadOptions{FileName: "small.bin"})
	require.NoError(t, err)
	assert.Equal(t, int64(4), result.SizeBytes)
}

func TestReadAndLink(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()
	content := testsupport.FakePDF("read")

	result, err := store.Upload(ctx, UploadRequest{Content: content, WorkUnit: "5", Category: CategoryTRT, FileName: "TRT 2019.pdf", Metadata: map[string]string{"form": "1040"}})
	require.NoError(t, err)

	data, err := store.Read(ctx, result.ID)
	require.NoError(t, err)
	assert.Equal(t, content, data)

	byHash, err := store.FetchByHash(ctx, strings.ToUpper(HashContent(content)))
	require.NoError(t, err)
	assert.Equal(t, result.ID, byHash.ID)
	assert.Equal(t, "1040", byHash.Metadata["form"])

	require.NoError(t, store.LinkToParsedRecord(ctx, result.ID, "staged-1"))
	linked, err := store.Get(ctx, result.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusParsed, linked.ProcessingStatus)
	assert.Equal(t, "staged-1", linked.ParsedRecordID)
	assert.NotNil(t, linked.LinkedAt)

	_, err = store.Read(ctx, "missing")
	assert.ErrorIs(t, err, services.ErrNotFound)
	assert.ErrorIs(t, store.LinkToParsedRecord(ctx, "missing", "x"), services.ErrNotFound)
	_, err = store.FetchByHash(ctx, "deadbeef")
	assert.ErrorIs(t, err, services.ErrNotFound)
}

func TestSignedURLRoundTrip(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()
	now := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return now }

	result, err := store.Upload(ctx, UploadRequest{Content: []byte("%PDF-1.4 sign"), WorkUnit: "1", Category: CategoryAT, FileName: "a.pdf"})
	require.NoError(t, err)

	raw, err := store.SignedURL(ctx, result.ID, time.Hour)
	require.NoError(t, err)
	parsed, err := url.Parse(raw)
	require.NoError(t, err)
	assert.Equal(t, "/api/blobs/"+result.ID, parsed.Path)
	expires := parsed.Query().Get("expires")
	sig := parsed.Query().Get("sig")

	require.NoError(t, store.VerifySignature(result.ID, expires, sig))
	assert.ErrorIs(t, store.VerifySignature("other-id", expires, sig), ErrInvalidSignature)

	now = now.Add(2 * time.Hour)
	err = store.VerifySignature(result.ID, expires, sig)
	assert.ErrorIs(t, err, ErrInvalidSignature)
	assert.ErrorIs(t, err, services.ErrValidation)

	_, err = store.SignedURL(ctx, "missing", time.Hour)
	assert.ErrorIs(t, err, services.ErrNotFound)
}

func TestDownloadFromURL(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()
	store.now = func() time.Time { return time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC) }

	mux := http.NewServeMux()
	mux.HandleFunc("/file", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/real", http.StatusFound)
	})
	mux.HandleFunc("/real", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/octet-stream")
		_, _ = w.Write(testsupport.FakePDF("download"))
	})
	mux.HandleFunc("/missing", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	result, err := store.DownloadFromURL(ctx, srv.URL+"/file", "1295022", "wi", 5*time.Second, DownloadOptions{})
	require.NoError(t, err)
	assert.False(t, result.IsDuplicate)
	assert.Equal(t, "1295022/WI/wi_1295022_20250102_030405.pdf", result.StoragePath)
	assert.Equal(t, srv.URL+"/file", result.SourceURL)
	assert.Equal(t, "application/octet-stream", result.Metadata["content_type"])

	again, err := store.DownloadFromURL(ctx, srv.URL+"/real", "1295022", CategoryWI, 5*time.Second, DownloadOptions{FileName: "other.pdf"})
	require.NoError(t, err)
	assert.True(t, again.IsDuplicate)

	_, err = store.DownloadFromURL(ctx, srv.URL+"/missing", "1295022", CategoryWI, 5*time.Second, DownloadOptions{})
	assert.ErrorIs(t, err, services.ErrTransientSource)
}

func TestFileBucketRefusesOverwriteAndEscape(t *testing.T) {
	bucket, err := NewFileBucket(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, bucket.Put(ctx, "a/b.pdf", []byte("one")))
	err = bucket.Put(ctx, "a/b.pdf", []byte("two"))
	assert.True(t, errors.Is(err, ErrObjectExists))

	data, err := bucket.Get(ctx, "a/b.pdf")
	require.NoError(t, err)
	assert.Equal(t, "one", string(data))

	assert.Error(t, bucket.Put(ctx, "../escape.pdf", []byte("x")))
	_, err = bucket.Get(ctx, "a/none.pdf")
	assert.ErrorIs(t, err, os.ErrNotExist)

	require.NoError(t, bucket.Remove(ctx, "a/b.pdf"))
	require.NoError(t, bucket.Remove(ctx, "a/b.pdf"))
}
