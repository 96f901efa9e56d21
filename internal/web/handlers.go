package web

import (
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/examcraft/qbank/internal/qbank"
	"github.com/examcraft/qbank/internal/store"
)

// maxUploadMemory bounds the in-memory portion of multipart parsing; the
// service enforces the real file size limit.
const maxUploadMemory = 10 << 20

// handleImport accepts a multipart upload: "file" plus optional "format"
// (inferred from the filename when absent) and "validate_only".
func (s *Server) handleImport(w http.ResponseWriter, r *http.Request) {
	caller := CallerFromContext(r.Context())

	if err := r.ParseMultipartForm(maxUploadMemory); err != nil {
		writeError(w, http.StatusBadRequest, "invalid multipart request")
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "no file provided")
		return
	}
	defer file.Close()

	buf, err := io.ReadAll(file)
	if err != nil {
		writeError(w, http.StatusBadRequest, "could not read uploaded file")
		return
	}

	formatName := r.FormValue("format")
	if formatName == "" {
		formatName = strings.TrimPrefix(filepath.Ext(header.Filename), ".")
	}

	result, err := s.service.ImportQuestions(r.Context(), caller, buf, qbank.ImportOptions{
		Format:       formatName,
		HasHeaders:   r.FormValue("has_headers") != "false",
		ValidateOnly: r.FormValue("validate_only") == "true",
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}

	status := http.StatusOK
	if !result.Success {
		status = http.StatusUnprocessableEntity
	}
	writeJSON(w, status, result)
}

// handleExport streams the generated file. Filter dimensions arrive as
// repeatable or comma-separated query parameters.
func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	caller := CallerFromContext(r.Context())
	q := r.URL.Query()

	criteria := store.Criteria{
		Subjects:     splitParam(q["subject"]),
		ExamTypes:    splitParam(q["exam_type"]),
		Difficulties: splitParam(q["difficulty"]),
		YearFrom:     intParam(q.Get("year_from")),
		YearTo:       intParam(q.Get("year_to")),
		Status:       q.Get("status"),
	}

	formatName := q.Get("format")
	if formatName == "" {
		formatName = "csv"
	}

	result, err := s.service.ExportQuestions(r.Context(), caller, criteria, formatName)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if !result.Success {
		writeJSON(w, http.StatusBadGateway, result)
		return
	}

	if q.Get("as") == "json" {
		writeJSON(w, http.StatusOK, result)
		return
	}
	writeFile(w, result.Data)
}

// handleTemplate streams a starter file in the requested format.
func (s *Server) handleTemplate(w http.ResponseWriter, r *http.Request) {
	caller := CallerFromContext(r.Context())

	formatName := r.URL.Query().Get("format")
	if formatName == "" {
		formatName = "csv"
	}

	data, err := s.service.GenerateTemplate(r.Context(), caller, formatName)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeFile(w, data)
}

// writeFile decodes the service's base64 buffer and streams it as a download.
func writeFile(w http.ResponseWriter, data *qbank.ExportData) {
	buf, err := base64.StdEncoding.DecodeString(data.Buffer)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "corrupt export buffer")
		return
	}
	w.Header().Set("Content-Type", data.MimeType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", data.Filename))
	w.Header().Set("Content-Length", strconv.Itoa(len(buf)))
	w.WriteHeader(http.StatusOK)
	w.Write(buf)
}

// writeServiceError maps core sentinels to HTTP statuses.
func writeServiceError(w http.ResponseWriter, err error) {
	var rle *qbank.RateLimitError
	switch {
	case errors.As(err, &rle):
		w.Header().Set("Retry-After", strconv.Itoa(int(rle.RetryAfter.Seconds())+1))
		writeError(w, http.StatusTooManyRequests, "too many requests, slow down")
	case errors.Is(err, qbank.ErrPermissionDenied):
		writeError(w, http.StatusForbidden, "bulk operations are not permitted for this key")
	case errors.Is(err, qbank.ErrUnsupportedFormat):
		writeError(w, http.StatusBadRequest, "unsupported file format")
	case errors.Is(err, qbank.ErrFileTooLarge):
		writeError(w, http.StatusRequestEntityTooLarge, "file exceeds the maximum allowed size")
	default:
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func splitParam(values []string) []string {
	var out []string
	for _, v := range values {
		for _, part := range strings.Split(v, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

func intParam(v string) int {
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0
	}
	return n
}
