package api

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/origin-cli/internal/model"
	"github.com/sells-group/origin-cli/internal/report"
	"github.com/sells-group/origin-cli/internal/sheet"
	"github.com/sells-group/origin-cli/internal/store"
)

// caseResponse is a case with its flagged materials.
type caseResponse struct {
	*model.AnalysisCase
	Materials []model.MaterialRecord `json:"materials"`
}

func (s *server) health(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *server) upload(w http.ResponseWriter, r *http.Request) {
	if r.ContentLength > s.maxUpload {
		respondError(w, http.StatusRequestEntityTooLarge, "file too large", nil)
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUpload)
	if err := r.ParseMultipartForm(s.maxUpload); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			respondError(w, http.StatusRequestEntityTooLarge, "file too large", err)
			return
		}
		respondError(w, http.StatusBadRequest, "invalid multipart form", err)
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		respondError(w, http.StatusBadRequest, "no file provided", err)
		return
	}
	defer file.Close() //nolint:errcheck

	name := filepath.Base(header.Filename)
	if name == "" || name == "." || name == string(filepath.Separator) {
		respondError(w, http.StatusBadRequest, "no file selected", nil)
		return
	}
	if !sheet.Allowed(name) {
		respondError(w, http.StatusBadRequest, "invalid file type; accepted: xlsx, xls, csv", nil)
		return
	}

	data, err := io.ReadAll(file)
	if err != nil {
		respondError(w, http.StatusBadRequest, "unable to read upload", err)
		return
	}
	if s.uploadDir != "" {
		if err := s.keepUpload(name, data); err != nil {
			zap.L().Warn("api: upload not kept", zap.String("filename", name), zap.Error(err))
		}
	}

	rows, err := sheet.LoadReader(r.Context(), name, bytes.NewReader(data))
	if err != nil {
		if eris.Is(err, sheet.ErrUnsupportedFormat) {
			respondError(w, http.StatusBadRequest, "unsupported file format", err)
			return
		}
		respondError(w, http.StatusBadRequest, "unable to parse file", err)
		return
	}

	c, err := s.analyzer.Analyze(r.Context(), name, rows)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "analysis failed", err)
		return
	}
	mats, err := s.store.ListMaterials(r.Context(), c.ID)
	if err != nil {
		respondStoreError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, caseResponse{AnalysisCase: c, Materials: nonNil(mats)})
}

func (s *server) keepUpload(name string, data []byte) error {
	if err := os.MkdirAll(s.uploadDir, 0o755); err != nil {
		return eris.Wrap(err, "api: create upload dir")
	}
	path := filepath.Join(s.uploadDir, uuid.New().String()+"_"+name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return eris.Wrap(err, "api: write upload")
	}
	return nil
}

func (s *server) listCases(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var filter store.CaseFilter

	if v := q.Get("result"); v != "" {
		verdict := model.Verdict(v)
		if !verdict.Valid() {
			respondError(w, http.StatusBadRequest, fmt.Sprintf("unknown result %q", v), nil)
			return
		}
		filter.Verdict = verdict
	}
	if v := q.Get("completed"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			respondError(w, http.StatusBadRequest, "completed must be true or false", err)
			return
		}
		filter.Completed = &b
	}
	for key, dst := range map[string]*int{"limit": &filter.Limit, "offset": &filter.Offset} {
		v := q.Get(key)
		if v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			respondError(w, http.StatusBadRequest, key+" must be a non-negative integer", err)
			return
		}
		*dst = n
	}

	cases, err := s.store.ListCases(r.Context(), filter)
	if err != nil {
		respondStoreError(w, err)
		return
	}
	if cases == nil {
		cases = []model.AnalysisCase{}
	}
	respondJSON(w, http.StatusOK, cases)
}

func (s *server) getCase(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	c, err := s.store.GetCase(r.Context(), id)
	if err != nil {
		respondStoreError(w, err)
		return
	}
	mats, err := s.store.ListMaterials(r.Context(), id)
	if err != nil {
		respondStoreError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, caseResponse{AnalysisCase: c, Materials: nonNil(mats)})
}

func (s *server) caseStatus(w http.ResponseWriter, r *http.Request) {
	c, err := s.store.GetCase(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondStoreError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, c.Status())
}

func (s *server) caseReport(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	c, err := s.store.GetCase(r.Context(), id)
	if err != nil {
		respondStoreError(w, err)
		return
	}
	if !c.Completed {
		respondError(w, http.StatusConflict, "analysis not completed", nil)
		return
	}
	mats, err := s.store.ListMaterials(r.Context(), id)
	if err != nil {
		respondStoreError(w, err)
		return
	}

	var buf bytes.Buffer
	if err := report.Write(&buf, c, mats); err != nil {
		respondError(w, http.StatusInternalServerError, "report generation failed", err)
		return
	}
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", report.Filename(c)))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(buf.Bytes()); err != nil {
		zap.L().Warn("api: write report", zap.String("case_id", id), zap.Error(err))
	}
}

func (s *server) deleteCase(w http.ResponseWriter, r *http.Request) {
	if err := s.store.DeleteCase(r.Context(), chi.URLParam(r, "id")); err != nil {
		respondStoreError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *server) reloadReference(w http.ResponseWriter, _ *http.Request) {
	if s.ref == nil {
		respondError(w, http.StatusNotImplemented, "reference reload unavailable", nil)
		return
	}
	s.ref.Reload()
	respondJSON(w, http.StatusOK, map[string]string{"status": "reloaded"})
}

func nonNil(m []model.MaterialRecord) []model.MaterialRecord {
	if m == nil {
		return []model.MaterialRecord{}
	}
	return m
}
