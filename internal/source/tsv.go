package source

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/shaiso/Recital/internal/domain"
)

// ErrSource — ошибка разбора источника.
var ErrSource = errors.New("invalid source")

// LineError — ошибка в конкретной строке TSV.
type LineError struct {
	Line int
	Err  error
}

func (e *LineError) Error() string {
	return fmt.Sprintf("line %d: %v", e.Line, e.Err)
}

func (e *LineError) Unwrap() error { return e.Err }

func (e *LineError) Is(target error) bool { return target == ErrSource }

// ReadTSV читает items из r.
func ReadTSV(r io.Reader) ([]domain.WorkItem, error) {
	cr := csv.NewReader(r)
	cr.Comma = '\t'
	cr.LazyQuotes = true
	cr.FieldsPerRecord = -1
	cr.ReuseRecord = true

	var items []domain.WorkItem
	seen := make(map[string]int)

	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			var perr *csv.ParseError
			if errors.As(err, &perr) {
				return nil, &LineError{Line: perr.Line, Err: perr.Err}
			}
			return nil, err
		}
		line, _ := cr.FieldPos(0)

		item, ok := parseRecord(rec)
		if !ok {
			continue
		}
		if err := item.Validate(); err != nil {
			return nil, &LineError{Line: line, Err: err}
		}
		if first, dup := seen[item.ID]; dup {
			return nil, &LineError{
				Line: line,
				Err:  fmt.Errorf("%w: %q (first on line %d)", domain.ErrDuplicateID, item.ID, first),
			}
		}
		seen[item.ID] = line
		items = append(items, item)
	}

	return items, nil
}

// ReadTSVFile читает items из файла.
func ReadTSVFile(path string) ([]domain.WorkItem, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open source: %w", err)
	}
	defer f.Close()

	items, err := ReadTSV(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return items, nil
}

// parseRecord превращает запись в item. Пустые записи пропускаются.
func parseRecord(rec []string) (domain.WorkItem, bool) {
	if len(rec) == 0 {
		return domain.WorkItem{}, false
	}
	id := strings.TrimSpace(strings.TrimPrefix(rec[0], "\ufeff"))
	if id == "" && (len(rec) < 2 || strings.TrimSpace(rec[1]) == "") {
		return domain.WorkItem{}, false
	}

	text := id + "."
	if len(rec) >= 2 {
		if t := strings.TrimSpace(rec[1]); t != "" {
			text = t
		}
	}
	return domain.WorkItem{ID: id, Text: text}, true
}

// WriteTSV записывает items в формате, который читает ReadTSV.
func WriteTSV(w io.Writer, items []domain.WorkItem) error {
	cw := csv.NewWriter(w)
	cw.Comma = '\t'
	for _, it := range items {
		if err := cw.Write([]string{it.ID, it.Text}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
