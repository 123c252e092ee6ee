package server

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/ironsheep/snaptext/internal/errors"
)

// Maximum accepted request body.
const maxBody = maxLine

// Handler returns the HTTP surface: the protocol actions as REST routes and
// storeChanged as server-sent events.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.requestLogger)

	r.Get("/healthz", s.action("ping", noParams))
	r.Get("/frame", s.action("captureFullFrame", frameParams))
	r.Post("/capture", s.action("captureRegion", bodyParams))

	r.Route("/records", func(r chi.Router) {
		r.Get("/", s.action("listRecords", noParams))
		r.Post("/", s.action("appendRecord", bodyParams))
		r.Delete("/", s.action("clearRecords", noParams))
		r.Get("/{id}", s.action("getRecord", idParams))
		r.Patch("/{id}", s.action("updateRecordText", idParams))
		r.Delete("/{id}", s.action("deleteRecord", idParams))
	})

	r.Route("/selection", func(r chi.Router) {
		r.Post("/start", s.action("selectionStart", noParams))
		r.Post("/pointer", s.action("selectionPointer", bodyParams))
		r.Post("/cancel", s.action("selectionCancel", noParams))
	})

	r.Get("/events", s.handleEvents)
	return r
}

// paramsFunc builds an action's params from an HTTP request.
type paramsFunc func(r *http.Request) (json.RawMessage, error)

func noParams(*http.Request) (json.RawMessage, error) { return nil, nil }

func bodyParams(r *http.Request) (json.RawMessage, error) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBody))
	if err != nil {
		return nil, errors.NewInvalidRequest(fmt.Sprintf("read body: %v", err))
	}
	return body, nil
}

// idParams merges the {id} path parameter into the JSON body, if any.
func idParams(r *http.Request) (json.RawMessage, error) {
	body, err := bodyParams(r)
	if err != nil {
		return nil, err
	}
	fields := map[string]any{}
	if len(body) > 0 {
		if err := json.Unmarshal(body, &fields); err != nil {
			return nil, errors.NewInvalidRequest(fmt.Sprintf("invalid body: %v", err))
		}
	}
	fields["id"] = chi.URLParam(r, "id")
	return json.Marshal(fields)
}

// frameParams reads optional x, y, width and height query parameters.
func frameParams(r *http.Request) (json.RawMessage, error) {
	q := r.URL.Query()
	if q.Get("width") == "" && q.Get("height") == "" {
		return nil, nil
	}
	var vals [4]int
	for i, name := range []string{"x", "y", "width", "height"} {
		raw := q.Get(name)
		if raw == "" {
			continue
		}
		v, err := strconv.Atoi(raw)
		if err != nil {
			return nil, errors.NewInvalidRequest(fmt.Sprintf("query %s: not an integer", name))
		}
		vals[i] = v
	}
	return json.Marshal(map[string]any{
		"bounds": map[string]int{"x": vals[0], "y": vals[1], "width": vals[2], "height": vals[3]},
	})
}

func (s *Server) action(name string, params paramsFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, err := params(r)
		if err != nil {
			s.writeHTTP(w, &Response{Error: errorBody(err)})
			return
		}
		result, err := s.dispatch(r.Context(), name, p)
		if err != nil {
			s.writeHTTP(w, &Response{Error: errorBody(err)})
			return
		}
		s.writeHTTP(w, &Response{Success: true, Result: result})
	}
}

func (s *Server) writeHTTP(w http.ResponseWriter, resp *Response) {
	status := http.StatusOK
	if resp.Error != nil {
		status = httpStatus(resp.Error.Code)
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		s.logger.Warn("server: failed to write response", "error", err)
	}
}

func httpStatus(code errors.ErrorCode) int {
	switch code {
	case errors.ErrInvalidRequest, errors.ErrSelectionTooSmall:
		return http.StatusBadRequest
	case errors.ErrRecordNotFound:
		return http.StatusNotFound
	case errors.ErrConflict, errors.ErrStoreWriteMismatch:
		return http.StatusConflict
	case errors.ErrCaptureUnavailable:
		return http.StatusServiceUnavailable
	case errors.ErrRecognitionFailure:
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

// handleEvents streams storeChanged as server-sent events until the client
// goes away.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}
	events, unsubscribe := s.coord.Subscribe(16)
	defer unsubscribe()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, ": connected\n\n")
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			data, err := json.Marshal(StoreChanged{Records: ev.Records, Version: ev.Version})
			if err != nil {
				s.logger.Warn("server: failed to encode event", "error", err)
				continue
			}
			if _, err := fmt.Fprintf(w, "event: storeChanged\nid: %d\ndata: %s\n\n", ev.Version, data); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.logger.Debug("server: http",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration", time.Since(start),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}
