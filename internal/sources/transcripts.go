package sources

import (
	"regexp"
	"sort"
	"strconv"
	"strings"
)

var transcriptPattern = regexp.MustCompile(`(?i)^(WI|AT|TRT)\s+(\d{2,4})(\s+(\w+))?\.pdf$`)

var transcriptOrder = map[string]int{"AT": 0, "WI": 1, "TRT": 2}

// TranscriptFile is a document recognised as a transcript PDF, e.g. "AT 21 E.pdf".
type TranscriptFile struct {
	Kind     string
	Year     int
	Suffix   string
	Document Document
}

// FilterTranscripts keeps transcript PDFs ordered AT, WI, TRT and newest year
// first within each kind. Two-digit years are read as 20xx.
func FilterTranscripts(docs []Document) []TranscriptFile {
	var files []TranscriptFile
	for _, doc := range docs {
		match := transcriptPattern.FindStringSubmatch(strings.TrimSpace(doc.FileName))
		if match == nil {
			continue
		}
		yearText := match[2]
		if len(yearText) == 2 {
			yearText = "20" + yearText
		}
		year, err := strconv.Atoi(yearText)
		if err != nil {
			continue
		}
		files = append(files, TranscriptFile{
			Kind:     strings.ToUpper(match[1]),
			Year:     year,
			Suffix:   match[4],
			Document: doc,
		})
	}
	sort.SliceStable(files, func(i, j int) bool {
		if files[i].Kind != files[j].Kind {
			return transcriptOrder[files[i].Kind] < transcriptOrder[files[j].Kind]
		}
		return files[i].Year > files[j].Year
	})
	return files
}
