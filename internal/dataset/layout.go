package dataset

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spboyer/loadeval/internal/models"
)

var (
	// ErrCandidateMissing is returned when no candidate file exists for an item.
	ErrCandidateMissing = errors.New("candidate file does not exist")
	// ErrCandidateEmpty is returned when the candidate file has no content.
	ErrCandidateEmpty = errors.New("candidate file is empty")
)

// Layout describes where reference inputs and candidate outputs live.
type Layout struct {
	InputDir        string
	ResultsDir      string
	InputSuffix     string
	CandidateSuffix string
}

// ListInputs enumerates the files in InputDir ending in InputSuffix, in
// lexical order. Subdirectories are ignored.
func (l Layout) ListInputs() ([]models.WorkItem, error) {
	entries, err := os.ReadDir(l.InputDir)
	if err != nil {
		return nil, fmt.Errorf("listing inputs in %s: %w", l.InputDir, err)
	}

	items := make([]models.WorkItem, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), l.InputSuffix) {
			continue
		}
		items = append(items, models.WorkItem(e.Name()))
	}
	return items, nil
}

// ReferencePath returns the clean reference file for item.
func (l Layout) ReferencePath(item models.WorkItem) string {
	return filepath.Join(l.InputDir, string(item))
}

// CandidatePath returns the file the system under test produced for item:
// the item name plus the conversion suffix.
func (l Layout) CandidatePath(item models.WorkItem) string {
	return filepath.Join(l.ResultsDir, string(item)+l.CandidateSuffix)
}

// CheckCandidate reports whether the candidate at path may be scored: it
// must exist and be non-empty.
func CheckCandidate(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("%s: %w", path, ErrCandidateMissing)
		}
		return fmt.Errorf("stat %s: %w", path, err)
	}
	if info.IsDir() {
		return fmt.Errorf("%s is a directory: %w", path, ErrCandidateMissing)
	}
	if info.Size() == 0 {
		return fmt.Errorf("%s: %w", path, ErrCandidateEmpty)
	}
	return nil
}
