package dashboard

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"tailscale.com/tsweb"

	"github.com/gpsanalyzer/telemetry.report/internal/backend"
	"github.com/gpsanalyzer/telemetry.report/internal/cache"
	"github.com/gpsanalyzer/telemetry.report/internal/charts"
	"github.com/gpsanalyzer/telemetry.report/internal/httputil"
	"github.com/gpsanalyzer/telemetry.report/internal/jobs"
	"github.com/gpsanalyzer/telemetry.report/internal/mapview"
	"github.com/gpsanalyzer/telemetry.report/internal/store"
	"github.com/gpsanalyzer/telemetry.report/internal/telemetry"
	"github.com/gpsanalyzer/telemetry.report/internal/view"
)

// maxUploadSize bounds multipart uploads accepted by the server.
const maxUploadSize = 512 << 20

// Server publishes a Session over HTTP.
type Server struct {
	session *Session
	cache   *cache.Cache
	logOut  io.Writer
}

// NewServer returns a server for session. Access logs go to logOut; nil
// disables them. c may be nil.
func NewServer(session *Session, c *cache.Cache, logOut io.Writer) *Server {
	return &Server{session: session, cache: c, logOut: logOut}
}

// Router returns the API routes.
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()

	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/status", s.showStatus).Methods(http.MethodGet)
	api.HandleFunc("/view", s.showView).Methods(http.MethodGet)
	api.HandleFunc("/upload", s.upload).Methods(http.MethodPost)
	api.HandleFunc("/open/{id}", s.open).Methods(http.MethodPost)
	api.HandleFunc("/device", s.setDevice).Methods(http.MethodPost)
	api.HandleFunc("/sort", s.setSort).Methods(http.MethodPost)
	api.HandleFunc("/search", s.setSearch).Methods(http.MethodPost)
	api.HandleFunc("/telemetry", s.showTelemetry).Methods(http.MethodGet)
	api.HandleFunc("/per_page", s.setPerPage).Methods(http.MethodPost)
	api.HandleFunc("/export.csv", s.export).Methods(http.MethodGet)
	api.HandleFunc("/history", s.listHistory).Methods(http.MethodGet)
	api.HandleFunc("/history/{id}", s.renameHistory).Methods(http.MethodPatch)
	api.HandleFunc("/history/{id}", s.deleteHistory).Methods(http.MethodDelete)

	r.HandleFunc("/charts", s.showCharts).Methods(http.MethodGet)
	r.HandleFunc("/map.png", s.showMap).Methods(http.MethodGet)
	return r
}

// Handler returns the complete handler: API routes, debug pages under
// /debug/, and access logging.
func (s *Server) Handler() (http.Handler, error) {
	r := s.Router()

	debugMux := http.NewServeMux()
	if err := s.AttachAdminRoutes(debugMux); err != nil {
		return nil, err
	}
	r.PathPrefix("/debug/").Handler(debugMux)

	if s.logOut == nil {
		return r, nil
	}
	return handlers.LoggingHandler(s.logOut, r), nil
}

// AttachAdminRoutes mounts session and cache debug pages on mux.
func (s *Server) AttachAdminRoutes(mux *http.ServeMux) error {
	debug := tsweb.Debugger(mux)
	debug.HandleFunc("session", "Dashboard session state", func(w http.ResponseWriter, r *http.Request) {
		httputil.WriteJSONOK(w, map[string]any{
			"status":      s.session.Status(),
			"analysis_id": s.session.store.AnalysisID(),
			"view_state":  s.session.store.State(),
		})
	})
	if s.cache != nil {
		if err := s.cache.AttachAdminRoutes(mux); err != nil {
			return fmt.Errorf("attach cache routes: %w", err)
		}
	}
	return nil
}

func (s *Server) showStatus(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSONOK(w, s.session.Status())
}

func (s *Server) showView(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSONOK(w, s.session.View())
}

func (s *Server) upload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadSize)
	f, hdr, err := r.FormFile("file")
	if err != nil {
		httputil.BadRequest(w, "missing file field")
		return
	}
	defer f.Close()

	v, err := s.session.Upload(r.Context(), hdr.Filename, f)
	if err != nil {
		s.writeError(w, err)
		return
	}
	httputil.WriteJSONOK(w, v)
}

func (s *Server) open(w http.ResponseWriter, r *http.Request) {
	v, err := s.session.Open(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		s.writeError(w, err)
		return
	}
	httputil.WriteJSONOK(w, v)
}

type deviceRequest struct {
	Device string `json:"device"`
}

func (s *Server) setDevice(w http.ResponseWriter, r *http.Request) {
	var req deviceRequest
	if !decodeBody(w, r, &req) {
		return
	}
	v, err := s.session.SetDevice(req.Device)
	if err != nil {
		s.writeError(w, err)
		return
	}
	httputil.WriteJSONOK(w, v)
}

type tableRequest struct {
	Table  store.Table `json:"table"`
	Column string      `json:"column,omitempty"`
	Text   string      `json:"text,omitempty"`
}

func (s *Server) setSort(w http.ResponseWriter, r *http.Request) {
	var req tableRequest
	if !decodeBody(w, r, &req) {
		return
	}
	v, err := s.session.SetSort(req.Table, req.Column)
	if err != nil {
		s.writeError(w, err)
		return
	}
	httputil.WriteJSONOK(w, v)
}

func (s *Server) setSearch(w http.ResponseWriter, r *http.Request) {
	var req tableRequest
	if !decodeBody(w, r, &req) {
		return
	}
	v, err := s.session.SetSearch(req.Table, req.Text)
	if err != nil {
		s.writeError(w, err)
		return
	}
	httputil.WriteJSONOK(w, v)
}

// showTelemetry returns the raw table. With ?page=N it first loads page N.
func (s *Server) showTelemetry(w http.ResponseWriter, r *http.Request) {
	if p := r.URL.Query().Get("page"); p != "" {
		page, err := strconv.Atoi(p)
		if err != nil || page < 1 {
			httputil.BadRequest(w, "page must be a positive integer")
			return
		}
		if err := s.session.GotoPage(r.Context(), page); err != nil {
			s.writeError(w, err)
			return
		}
	} else {
		s.session.Wait()
	}
	httputil.WriteJSONOK(w, s.session.RawPage())
}

type perPageRequest struct {
	PerPage int `json:"per_page"`
}

func (s *Server) setPerPage(w http.ResponseWriter, r *http.Request) {
	var req perPageRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.PerPage < 1 {
		httputil.BadRequest(w, "per_page must be positive")
		return
	}
	if err := s.session.SetPerPage(r.Context(), req.PerPage); err != nil {
		s.writeError(w, err)
		return
	}
	httputil.WriteJSONOK(w, s.session.RawPage())
}

func (s *Server) export(w http.ResponseWriter, r *http.Request) {
	var buf bytes.Buffer
	name, err := s.session.Export(r.Context(), &buf)
	if err != nil {
		s.writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	w.WriteHeader(http.StatusOK)
	w.Write(buf.Bytes())
}

func (s *Server) listHistory(w http.ResponseWriter, r *http.Request) {
	items, err := s.session.History(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	if items == nil {
		items = []backend.HistoryItem{}
	}
	httputil.WriteJSONOK(w, items)
}

type renameRequest struct {
	Filename string `json:"filename"`
}

func (s *Server) renameHistory(w http.ResponseWriter, r *http.Request) {
	var req renameRequest
	if !decodeBody(w, r, &req) {
		return
	}
	id := mux.Vars(r)["id"]
	items, err := s.session.History(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	var item *backend.HistoryItem
	for i := range items {
		if items[i].ID == id {
			item = &items[i]
			break
		}
	}
	if item == nil {
		httputil.NotFound(w, "unknown history entry")
		return
	}
	changed, err := s.session.Rename(r.Context(), *item, req.Filename)
	if err != nil {
		s.writeError(w, err)
		return
	}
	httputil.WriteJSONOK(w, map[string]bool{"renamed": changed})
}

func (s *Server) deleteHistory(w http.ResponseWriter, r *http.Request) {
	if err := s.session.DeleteHistory(r.Context(), mux.Vars(r)["id"]); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) showCharts(w http.ResponseWriter, r *http.Request) {
	v := s.session.View()
	if !v.Loaded {
		httputil.NotFound(w, "no analysis loaded")
		return
	}
	var buf bytes.Buffer
	if err := charts.RenderPage(&buf, v, s.session.Scores()); err != nil {
		httputil.InternalServerError(w, err.Error())
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write(buf.Bytes())
}

func (s *Server) showMap(w http.ResponseWriter, r *http.Request) {
	s.session.Wait()
	var buf bytes.Buffer
	if err := s.session.Map().WritePNG(&buf, mapview.DefaultWidth, mapview.DefaultHeight); err != nil {
		httputil.InternalServerError(w, err.Error())
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Write(buf.Bytes())
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		httputil.BadRequest(w, "invalid JSON body")
		return false
	}
	return true
}

// writeError maps session errors to HTTP statuses.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	var apiErr *backend.APIError
	var failed *jobs.FailedError
	switch {
	case errors.Is(err, backend.ErrNotJSON),
		errors.Is(err, view.ErrUnknownDevice),
		errors.Is(err, view.ErrUnknownTable):
		httputil.BadRequest(w, UserMessage(err))
	case IsNotLoaded(err):
		httputil.Conflict(w, "no analysis loaded")
	case errors.Is(err, store.ErrStalePage):
		httputil.Conflict(w, "telemetry page superseded by a newer request")
	case errors.Is(err, cache.ErrNotFound):
		httputil.NotFound(w, err.Error())
	case errors.As(err, &failed), errors.Is(err, jobs.ErrJobTimeout):
		httputil.WriteJSONError(w, http.StatusUnprocessableEntity, UserMessage(err))
	case errors.Is(err, telemetry.ErrNoData):
		httputil.NotFound(w, UserMessage(err))
	case errors.As(err, &apiErr):
		httputil.BadGateway(w, UserMessage(err))
	default:
		httputil.InternalServerError(w, UserMessage(err))
	}
}
