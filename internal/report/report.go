package report

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/shaiso/Recital/internal/domain"
)

// Format — формат вывода отчёта.
type Format string

const (
	FormatTable Format = "table"
	FormatJSON  Format = "json"
)

// ParseFormat разбирает имя формата. Пустая строка — table.
func ParseFormat(s string) (Format, error) {
	switch Format(strings.ToLower(strings.TrimSpace(s))) {
	case "", FormatTable:
		return FormatTable, nil
	case FormatJSON:
		return FormatJSON, nil
	default:
		return "", fmt.Errorf("unknown report format %q (want table or json)", s)
	}
}

// Render пишет отчёт в w в заданном формате.
func Render(w io.Writer, r domain.Report, format Format) error {
	if format == FormatJSON {
		return RenderJSON(w, r)
	}
	return RenderTable(w, r)
}

// RenderJSON пишет отчёт как JSON с отступами.
func RenderJSON(w io.Writer, r domain.Report) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(r)
}

// RenderTable пишет сводку и таблицу упавших item'ов.
//
//	Run 3f2a...  2.4s  total 3  succeeded 2  failed 1
//
//	ID  STAGE       REASON
//	--  -----       ------
//	b   synthesize  backend rejected text
func RenderTable(w io.Writer, r domain.Report) error {
	dur := r.FinishedAt.Sub(r.StartedAt).Round(time.Millisecond)
	if _, err := fmt.Fprintf(w, "Run %s  %s  total %d  succeeded %d  failed %d\n",
		r.RunID, dur, r.Summary.Total, r.Summary.Succeeded, r.Summary.Failed); err != nil {
		return err
	}

	failures := r.Failures()
	if len(failures) == 0 {
		return nil
	}

	fmt.Fprintln(w)
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tSTAGE\tREASON")
	fmt.Fprintln(tw, "--\t-----\t------")
	for _, f := range failures {
		fmt.Fprintf(tw, "%s\t%s\t%s\n", f.ID, f.Stage, oneLine(f.Reason))
	}
	return tw.Flush()
}

// WriteFile сохраняет отчёт в path как JSON.
// Файл появляется целиком или не появляется вовсе.
func WriteFile(path string, r domain.Report) error {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal report: %w", err)
	}
	data = append(data, '\n')

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create report dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create report: %w", err)
	}
	tmpName := tmp.Name()
	cleanup := func() { os.Remove(tmpName) }

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		cleanup()
		return fmt.Errorf("write report: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		cleanup()
		return fmt.Errorf("sync report: %w", err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return fmt.Errorf("close report: %w", err)
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		cleanup()
		return fmt.Errorf("chmod report: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		cleanup()
		return fmt.Errorf("rename report: %w", err)
	}
	return nil
}

// ReadFile читает отчёт, записанный WriteFile.
func ReadFile(path string) (domain.Report, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return domain.Report{}, err
	}
	var r domain.Report
	if err := json.Unmarshal(data, &r); err != nil {
		return domain.Report{}, fmt.Errorf("parse report %s: %w", path, err)
	}
	return r, nil
}

// oneLine схлопывает многострочные причины (stderr ffmpeg) в одну строку.
func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
