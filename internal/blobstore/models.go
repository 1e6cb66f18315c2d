package blobstore

import (
	"strings"
	"time"
)

// Category groups attachments under a case.
type Category string

const (
	CategoryAT        Category = "AT"
	CategoryWI        Category = "WI"
	CategoryTRT       Category = "TRT"
	CategoryInterview Category = "INTERVIEW"
	CategoryOther     Category = "OTHER"
)

// ParseCategory upper-cases a category name. Unknown names are kept as-is so
// new document kinds need no code change.
func ParseCategory(value string) Category {
	return Category(strings.ToUpper(strings.TrimSpace(value)))
}

// ExpectsPDF reports whether downloads in this category should be PDFs.
func (c Category) ExpectsPDF() bool {
	switch c {
	case CategoryAT, CategoryWI, CategoryTRT, CategoryInterview:
		return true
	default:
		return false
	}
}

// Processing states recorded on an object.
const (
	StatusStored = "stored"
	StatusParsed = "parsed"
)

// Object is the canonical metadata row for one unique content hash.
type Object struct {
	ID               string
	ContentHash      string
	StoragePath      string
	WorkUnit         string
	Category         Category
	FileName         string
	SizeBytes        int64
	MediaType        string
	SourceURL        string
	Metadata         map[string]string
	ProcessingStatus string
	ParsedRecordID   string
	CreatedAt        time.Time
	LinkedAt         *time.Time
}

// UploadRequest describes one attachment to store.
type UploadRequest struct {
	Content  []byte
	WorkUnit string
	Category Category
	FileName string
	// Subcategory adds a grouping directory below the category, typically a tax year.
	Subcategory string
	MediaType   string
	SourceURL   string
	Metadata    map[string]string
}

// UploadResult reports where the content lives and whether it was already known.
type UploadResult struct {
	Object
	IsDuplicate bool
}
