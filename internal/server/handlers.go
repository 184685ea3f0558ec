package server

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/KaramelBytes/labdash/internal/dataset"
	"github.com/KaramelBytes/labdash/internal/export"
	"github.com/KaramelBytes/labdash/internal/render"
	"github.com/KaramelBytes/labdash/internal/views"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// errNoData is returned when a placeholder selection is asked for its table.
var errNoData = errors.New("selection produced no data")

func statusFor(err error) int {
	switch {
	case errors.Is(err, views.ErrUnknownView):
		return http.StatusNotFound
	case errors.Is(err, views.ErrUnknownInput):
		return http.StatusBadRequest
	case errors.Is(err, errNoData):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		s.log.Error("request failed", "id", RequestID(r.Context()), "path", r.URL.Path, "error", err)
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

// selectionFrom picks the view's inputs out of the query string; other
// parameters such as width and height are left alone.
func selectionFrom(spec views.Spec, q url.Values) views.Selection {
	sel := views.Selection{}
	for _, in := range spec.Inputs {
		if q.Has(in.ID) {
			sel[in.ID] = q.Get(in.ID)
		}
	}
	return sel
}

type inputView struct {
	views.Input
	Options  []string `json:"options"`
	Selected string   `json:"-"`
}

func inputsOf(ds *dataset.Dataset, spec views.Spec, sel views.Selection) []inputView {
	out := make([]inputView, len(spec.Inputs))
	for i, in := range spec.Inputs {
		var opts []string
		if ds != nil {
			opts = views.Options(ds, in)
		}
		out[i] = inputView{Input: in, Options: opts, Selected: sel[in.ID]}
		if sel[in.ID] == "" {
			continue
		}
		found := false
		for _, o := range opts {
			if o == sel[in.ID] {
				found = true
				break
			}
		}
		if !found {
			out[i].Options = append([]string{sel[in.ID]}, opts...)
		}
	}
	return out
}

type pageData struct {
	Views    []views.Spec
	View     views.Spec
	Inputs   []inputView
	ImageURL template.URL
}

func (s *Server) handlePage(id string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		v, ok := s.views.Lookup(id)
		if !ok {
			s.fail(w, r, fmt.Errorf("%w: %s", views.ErrUnknownView, id))
			return
		}
		spec := v.Spec()
		sel, err := views.Resolve(spec, selectionFrom(spec, r.URL.Query()))
		if err != nil {
			s.fail(w, r, err)
			return
		}
		q := url.Values{}
		for k, val := range sel {
			q.Set(k, val)
		}
		data := pageData{
			Views:    s.views.Specs(),
			View:     spec,
			Inputs:   inputsOf(s.store.Current(), spec, sel),
			ImageURL: template.URL("/api/views/" + url.PathEscape(id) + "/figure.svg?" + q.Encode()),
		}
		var buf bytes.Buffer
		if err := s.pages.ExecuteTemplate(&buf, "page.html", data); err != nil {
			s.fail(w, r, fmt.Errorf("render page: %w", err))
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write(buf.Bytes())
	}
}

func (s *Server) handleViews(w http.ResponseWriter, r *http.Request) {
	type viewJSON struct {
		views.Spec
		Inputs []inputView `json:"inputs"`
	}
	ds := s.store.Current()
	var out []viewJSON
	for _, spec := range s.views.Specs() {
		sel, _ := views.Resolve(spec, nil)
		out = append(out, viewJSON{Spec: spec, Inputs: inputsOf(ds, spec, sel)})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleViewFile(w http.ResponseWriter, r *http.Request) {
	id, file := chi.URLParam(r, "id"), chi.URLParam(r, "file")
	v, ok := s.views.Lookup(id)
	if !ok {
		s.fail(w, r, fmt.Errorf("%w: %s", views.ErrUnknownView, id))
		return
	}
	q := r.URL.Query()
	res, err := s.Figure(id, selectionFrom(v.Spec(), q))
	if err != nil {
		s.fail(w, r, err)
		return
	}

	switch file {
	case "figure", "figure.json":
		b, err := res.Figure.JSON()
		if err != nil {
			s.fail(w, r, err)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write(b)
	case "figure.svg", "figure.png":
		format := render.SVG
		if file == "figure.png" {
			format = render.PNG
		}
		width, _ := strconv.Atoi(q.Get("width"))
		height, _ := strconv.Atoi(q.Get("height"))
		var buf bytes.Buffer
		if err := render.Render(res.Figure, format, &buf, s.renderOptions(res.Figure, width, height)); err != nil {
			s.fail(w, r, err)
			return
		}
		w.Header().Set("Content-Type", format.ContentType())
		_, _ = w.Write(buf.Bytes())
	case "data.csv", "data.xlsx":
		if res.Shaped == nil {
			s.fail(w, r, errNoData)
			return
		}
		var buf bytes.Buffer
		if file == "data.csv" {
			err = export.WriteDelimited(&buf, res.Shaped.Table, ',')
			w.Header().Set("Content-Type", "text/csv; charset=utf-8")
		} else {
			err = export.WriteXLSX(&buf, sheetsOf(id, res.Shaped)...)
			w.Header().Set("Content-Type", xlsxContentType)
		}
		if err != nil {
			w.Header().Del("Content-Type")
			s.fail(w, r, err)
			return
		}
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", id+"-"+file))
		_, _ = w.Write(buf.Bytes())
	default:
		http.NotFound(w, r)
	}
}

// sheetsOf lists a shaped result's tables for multi-table exports.
func sheetsOf(id string, s *views.Shaped) []export.Sheet {
	sheets := []export.Sheet{{Name: id, Table: s.Table}}
	if s.Extra != nil {
		sheets = append(sheets, export.Sheet{Name: id + "_extra", Table: s.Extra})
	}
	return sheets
}

type datasetInfo struct {
	Version     string    `json:"version"`
	LoadedAt    time.Time `json:"loaded_at"`
	Labs        string    `json:"labs_source,omitempty"`
	Subjects    string    `json:"subjects_source,omitempty"`
	LabRows     int       `json:"lab_rows"`
	SubjectRows int       `json:"subject_rows"`
	Params      []string  `json:"params"`
	Arms        []string  `json:"arms"`
	SubjectIDs  int       `json:"subjects"`
}

func infoOf(ds *dataset.Dataset) datasetInfo {
	return datasetInfo{
		Version:     ds.Version,
		LoadedAt:    ds.LoadedAt,
		Labs:        ds.Sources.Labs,
		Subjects:    ds.Sources.Subjects,
		LabRows:     ds.Labs.Len(),
		SubjectRows: ds.Subjects.Len(),
		Params:      ds.ParamCodes(),
		Arms:        ds.Arms(),
		SubjectIDs:  len(ds.SubjectIDs()),
	}
}

func (s *Server) handleDataset(w http.ResponseWriter, r *http.Request) {
	ds := s.store.Current()
	if ds == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "no dataset loaded"})
		return
	}
	writeJSON(w, http.StatusOK, infoOf(ds))
}

func (s *Server) handleReload(w http.ResponseWriter, r *http.Request) {
	if err := s.store.Reload(r.Context()); err != nil {
		s.fail(w, r, fmt.Errorf("reload: %w", err))
		return
	}
	writeJSON(w, http.StatusOK, infoOf(s.store.Current()))
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.store.Current() == nil {
		http.Error(w, "no dataset loaded", http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte("ok"))
}
