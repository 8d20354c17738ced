package web

import (
	"errors"
	"fmt"
	"net/http"
	"sort"

	"github.com/JonMunkholm/dqgen/internal/core"
	"github.com/JonMunkholm/dqgen/internal/web/templates"
	"github.com/JonMunkholm/dqgen/internal/workbook"
	"github.com/go-chi/chi/v5"
)

const (
	fieldWorkbook = templates.FieldWorkbook
	fieldRequests = templates.FieldRequests
)

var errNoFile = errors.New("no file provided")

// TenantInfo is one entry of GET /api/tenants.
type TenantInfo = templates.TenantInfo

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := templates.IndexPage(s.tenantInfo()).Render(r.Context(), w); err != nil {
		s.respondError(w, r, err, http.StatusInternalServerError)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"limiter": s.runner.LimiterStatus(),
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.runner.LimiterStatus())
}

func (s *Server) handleListTenants(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.tenantInfo())
}

func (s *Server) tenantInfo() []TenantInfo {
	tenants := s.runner.Tenants()
	out := make([]TenantInfo, 0, len(tenants.Tenants))
	for _, tn := range tenants.Tenants {
		out = append(out, TenantInfo{
			Key:     tn.Key,
			Name:    tn.Name,
			Aliases: tn.Aliases,
			Dir:     tenants.Dir(tn),
			Schema:  tn.Schema,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

// handleRunAPI runs a workflow and returns the RunResult as JSON.
func (s *Server) handleRunAPI(w http.ResponseWriter, r *http.Request) {
	res, err := s.run(w, r, "api")
	if err != nil {
		s.respondError(w, r, err, 0)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// handleRunPage runs a workflow submitted from the index form.
func (s *Server) handleRunPage(w http.ResponseWriter, r *http.Request) {
	res, err := s.run(w, r, "web")
	if err != nil {
		s.respondError(w, r, err, 0)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := templates.ResultPage(res).Render(r.Context(), w); err != nil {
		s.respondError(w, r, err, http.StatusInternalServerError)
	}
}

func (s *Server) run(w http.ResponseWriter, r *http.Request, source string) (*core.RunResult, error) {
	wf, err := core.ParseWorkflow(chi.URLParam(r, "workflow"))
	if err != nil {
		return nil, err
	}

	maxSize := s.cfg.Workflow.MaxFileSize
	r.Body = http.MaxBytesReader(w, r.Body, 2*maxSize)
	if err := r.ParseMultipartForm(maxSize); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, fmt.Errorf("file too large: limit is %d bytes", maxSize)
		}
		return nil, fmt.Errorf("%w: %v", core.ErrInvalidRequest, err)
	}
	defer r.MultipartForm.RemoveAll()

	master, err := readWorkbook(r, fieldWorkbook)
	if err != nil {
		return nil, err
	}
	requestBook, err := readWorkbook(r, fieldRequests)
	if err != nil {
		return nil, err
	}
	requests, err := requestBook.First()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", fieldRequests, err)
	}

	ctx := WithRequestMetadata(r.Context(), r, source)
	return s.runner.Run(ctx, wf, master, requests)
}

// readWorkbook opens the uploaded file in field as a .xlsx or .csv workbook.
func readWorkbook(r *http.Request, field string) (*workbook.Workbook, error) {
	file, header, err := r.FormFile(field)
	if err != nil {
		if errors.Is(err, http.ErrMissingFile) {
			return nil, fmt.Errorf("%s: %w", field, errNoFile)
		}
		return nil, fmt.Errorf("%w: %s: %v", core.ErrInvalidRequest, field, err)
	}
	defer file.Close()

	if header.Size == 0 {
		return nil, fmt.Errorf("%s: %w", field, workbook.ErrEmptyFile)
	}
	wb, err := workbook.Open(header.Filename, file)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", field, err)
	}
	return wb, nil
}
