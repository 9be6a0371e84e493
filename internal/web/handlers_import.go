package web

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/JonMunkholm/recordimport/internal/config"
	"github.com/JonMunkholm/recordimport/internal/core"
	"github.com/JonMunkholm/recordimport/internal/logging"
	"github.com/JonMunkholm/recordimport/internal/source"
)

// multipartMemory is how much of an upload ParseMultipartForm keeps in
// memory before spilling to a temp file.
const multipartMemory = 32 << 20

// ImportResponse is the JSON summary of one imported file.
type ImportResponse struct {
	ID             string       `json:"id"`
	File           string       `json:"file"`
	Format         string       `json:"format"`
	ResolveKey     string       `json:"resolve_key,omitempty"`
	Groups         int          `json:"groups"`
	RecordsCreated int          `json:"records_created"`
	SoftErrors     int          `json:"soft_errors"`
	DurationMS     int64        `json:"duration_ms"`
	Errors         []GroupError `json:"errors,omitempty"`
}

// GroupError lists the soft errors of one group.
type GroupError struct {
	Group   int             `json:"group"`
	Records []core.RecordID `json:"records"`
	Errors  []string        `json:"errors"`
}

func newImportResponse(format source.Format, report *core.FileReport) *ImportResponse {
	resp := &ImportResponse{
		ID:             report.ID,
		File:           report.Name,
		Format:         string(format),
		ResolveKey:     report.ResolveKey,
		Groups:         report.Groups,
		RecordsCreated: report.RecordsCreated,
		SoftErrors:     report.SoftErrors,
		DurationMS:     report.Duration.Milliseconds(),
	}
	for i, result := range report.Results {
		if !result.HasErrors() {
			continue
		}
		resp.Errors = append(resp.Errors, GroupError{
			Group:   i + 1,
			Records: result.Records().IDs(),
			Errors:  result.Errors(),
		})
	}
	return resp
}

// handleImport imports one uploaded file.
//
// The file is the multipart field "file". Optional form or query fields:
// resolveKey, delimiter (delimited formats), sheet (xlsx) and link, a
// repeatable column=key pair naming a column written as links.
func (s *Server) handleImport(w http.ResponseWriter, r *http.Request) {
	format, err := source.ParseFormat(chi.URLParam(r, "format"))
	if err != nil {
		s.respondError(w, r, err, http.StatusBadRequest)
		return
	}

	maxSize := s.cfg.Import.MaxFileSize
	r.Body = http.MaxBytesReader(w, r.Body, maxSize+multipartMemory)

	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var maxBytes *http.MaxBytesError
		if errors.As(err, &maxBytes) {
			s.respondError(w, r, source.ErrFileTooLarge, http.StatusRequestEntityTooLarge)
			return
		}
		s.respondError(w, r, fmt.Errorf("%w: %v", errBadRequest, err), http.StatusBadRequest)
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("file")
	if err != nil {
		s.respondError(w, r, errNoFile, http.StatusBadRequest)
		return
	}
	defer file.Close()

	if header.Size == 0 {
		s.respondError(w, r, errEmptyFile, http.StatusBadRequest)
		return
	}
	if header.Size > maxSize {
		s.respondError(w, r, source.ErrFileTooLarge, http.StatusRequestEntityTooLarge)
		return
	}

	opts := source.Options{
		Format:   format,
		Sheet:    r.FormValue("sheet"),
		MaxBytes: maxSize,
	}
	delimiter := r.FormValue("delimiter")
	if delimiter == "" && format == source.FormatCSV {
		delimiter = s.cfg.Import.Delimiter
	}
	if delimiter != "" {
		if opts.Delimiter, err = config.ParseDelimiter(delimiter); err != nil {
			s.respondError(w, r, fmt.Errorf("%w: delimiter %v", errBadRequest, err), http.StatusBadRequest)
			return
		}
	}
	if opts.Links, err = source.ParseLinks(r.Form["link"]); err != nil {
		s.respondError(w, r, fmt.Errorf("%w: %v", errBadRequest, err), http.StatusBadRequest)
		return
	}
	resolveKey := strings.TrimSpace(r.FormValue("resolveKey"))

	logger := logging.WithFields(r.Context(),
		"file", header.Filename,
		"format", format,
		"resolve_key", resolveKey,
		"size", header.Size,
	)

	ctx, cancel := context.WithTimeout(r.Context(), s.cfg.Import.Timeout)
	defer cancel()

	src, err := source.NewSource(header.Filename, file, opts)
	if err != nil {
		s.metrics.FileImported(string(format), nil, err)
		s.respondError(w, r, err, statusFor(err))
		return
	}
	defer src.Close()

	logger.Info("import started")
	report, err := s.service.ImportSource(ctx, header.Filename, src, resolveKey)
	s.metrics.FileImported(string(format), report, err)

	if err != nil {
		if errors.Is(err, core.ErrTooManyImports) {
			w.Header().Set("Retry-After", "30")
		}
		var partial *ImportResponse
		if report != nil {
			partial = newImportResponse(format, report)
		}
		s.respondErrorReport(w, r, err, statusFor(err), partial)
		return
	}

	logger.Info("import finished",
		"id", report.ID,
		"groups", report.Groups,
		"records_created", report.RecordsCreated,
		"soft_errors", report.SoftErrors,
		"duration", report.Duration,
	)
	writeJSON(w, newImportResponse(format, report))
}

// handleImportStatus reports limiter occupancy.
func (s *Server) handleImportStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.limiter.Status())
}

// handleListFormats lists the accepted formats with their default scan patterns.
func (s *Server) handleListFormats(w http.ResponseWriter, r *http.Request) {
	type formatInfo struct {
		Name     string   `json:"name"`
		Patterns []string `json:"patterns"`
	}
	formats := make([]formatInfo, 0, len(source.Formats))
	for _, f := range source.Formats {
		formats = append(formats, formatInfo{Name: string(f), Patterns: f.DefaultWhitelist()})
	}
	writeJSON(w, formats)
}
