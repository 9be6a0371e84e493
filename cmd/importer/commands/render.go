package commands

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/JonMunkholm/recordimport/internal/core"
	"github.com/JonMunkholm/recordimport/internal/source"
)

// Output modes for the import summary.
const (
	OutputTable = "table"
	OutputJSON  = "json"
)

// fileSummary is one row of the import summary.
type fileSummary struct {
	File           string        `json:"file"`
	ID             string        `json:"id,omitempty"`
	Size           uint64        `json:"size_bytes"`
	Groups         int           `json:"groups"`
	RecordsCreated int           `json:"records_created"`
	SoftErrors     int           `json:"soft_errors"`
	Duration       time.Duration `json:"duration_ns"`
	Status         string        `json:"status"`
}

type summary struct {
	Files    []fileSummary `json:"files"`
	Elapsed  time.Duration `json:"elapsed_ns"`
	Groups   int           `json:"groups"`
	Created  int           `json:"records_created"`
	Errors   int           `json:"soft_errors"`
	TotalIn  uint64        `json:"size_bytes"`
	Complete int           `json:"files_complete"`
}

// newSummary pairs scanned paths with reports. A nil report means the file
// never started, usually because an earlier file failed.
func newSummary(paths []string, reports []*core.FileReport, elapsed time.Duration) summary {
	s := summary{Elapsed: elapsed}
	for i, path := range paths {
		row := fileSummary{File: path, Status: "skipped"}
		if info, err := os.Stat(path); err == nil {
			row.Size = uint64(info.Size())
		}
		if i < len(reports) && reports[i] != nil {
			r := reports[i]
			row.ID = r.ID
			row.Groups = r.Groups
			row.RecordsCreated = r.RecordsCreated
			row.SoftErrors = r.SoftErrors
			row.Duration = r.Duration
			row.Status = status(r.Err)
		}
		s.Files = append(s.Files, row)
		s.Groups += row.Groups
		s.Created += row.RecordsCreated
		s.Errors += row.SoftErrors
		s.TotalIn += row.Size
		if row.Status == "ok" {
			s.Complete++
		}
	}
	return s
}

func status(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, context.Canceled):
		return "cancelled"
	default:
		return "failed " + core.MapError(err).Code
	}
}

func (c *ImportCommand) render(w io.Writer, s summary) error {
	switch c.output {
	case OutputJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(s)
	case OutputTable, "":
		renderTable(w, s)
		return nil
	default:
		return fmt.Errorf("unknown output %q: use %s or %s", c.output, OutputTable, OutputJSON)
	}
}

func renderTable(w io.Writer, s summary) {
	tbl := table.NewWriter()
	tbl.SetOutputMirror(w)
	tbl.SetStyle(table.StyleLight)
	tbl.Style().Options.SeparateRows = false

	tbl.AppendHeader(table.Row{"File", "Size", "Groups", "Created", "Soft errors", "Time", "Status"})
	for _, f := range s.Files {
		tbl.AppendRow(table.Row{
			f.File,
			humanize.Bytes(f.Size),
			humanize.Comma(int64(f.Groups)),
			humanize.Comma(int64(f.RecordsCreated)),
			humanize.Comma(int64(f.SoftErrors)),
			f.Duration.Round(time.Millisecond),
			f.Status,
		})
	}
	tbl.AppendFooter(table.Row{
		fmt.Sprintf("%d/%d files", s.Complete, len(s.Files)),
		humanize.Bytes(s.TotalIn),
		humanize.Comma(int64(s.Groups)),
		humanize.Comma(int64(s.Created)),
		humanize.Comma(int64(s.Errors)),
		s.Elapsed.Round(time.Millisecond),
		throughput(s.Groups, s.Elapsed),
	})
	tbl.SetColumnConfigs([]table.ColumnConfig{
		{Number: 2, Align: text.AlignRight, AlignFooter: text.AlignRight},
		{Number: 3, Align: text.AlignRight, AlignFooter: text.AlignRight},
		{Number: 4, Align: text.AlignRight, AlignFooter: text.AlignRight},
		{Number: 5, Align: text.AlignRight, AlignFooter: text.AlignRight},
		{Number: 6, Align: text.AlignRight, AlignFooter: text.AlignRight},
	})
	tbl.Render()
}

func throughput(groups int, elapsed time.Duration) string {
	if elapsed <= 0 || groups == 0 {
		return ""
	}
	return humanize.FormatFloat("#,###.#", float64(groups)/elapsed.Seconds()) + " groups/s"
}

func renderFormats(w io.Writer) error {
	tbl := table.NewWriter()
	tbl.SetOutputMirror(w)
	tbl.SetStyle(table.StyleLight)
	tbl.AppendHeader(table.Row{"Format", "Scanned files"})
	for _, f := range source.Formats {
		tbl.AppendRow(table.Row{f, strings.Join(f.DefaultWhitelist(), " ")})
	}
	tbl.Render()
	return nil
}
