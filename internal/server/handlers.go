package server

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"image"
	"strings"
	"time"

	"github.com/ironsheep/snaptext/internal/errors"
	"github.com/ironsheep/snaptext/internal/imaging"
	"github.com/ironsheep/snaptext/internal/record"
)

// dispatch routes an action to its handler.
//
// Each handler:
//  1. Unmarshals its params (absent params decode as zero values)
//  2. Validates required fields
//  3. Calls the coordinator
//  4. Returns a JSON-serializable result or a typed error
func (s *Server) dispatch(ctx context.Context, action string, params json.RawMessage) (any, error) {
	switch action {
	// Capture
	case "captureFullFrame":
		return s.handleCaptureFullFrame(ctx, params)
	case "captureRegion":
		return s.handleCaptureRegion(ctx, params)

	// Records
	case "appendRecord":
		return s.handleAppendRecord(ctx, params)
	case "listRecords":
		return s.listRecords(ctx)
	case "getRecord":
		return s.handleGetRecord(ctx, params)
	case "updateRecordText":
		return s.handleUpdateRecordText(ctx, params)
	case "deleteRecord":
		return s.handleDeleteRecord(ctx, params)
	case "clearRecords":
		if err := s.coord.ClearRecords(ctx); err != nil {
			return nil, err
		}
		return struct{}{}, nil

	// Selection
	case "selectionStart":
		return s.coord.SelectionStart(), nil
	case "selectionPointer":
		return s.handleSelectionPointer(ctx, params)
	case "selectionCancel":
		return map[string]bool{"cancelled": s.coord.SelectionCancel()}, nil

	case "ping":
		return struct{}{}, nil

	default:
		return nil, errors.NewInvalidRequest(fmt.Sprintf("unknown action: %s", action))
	}
}

func decodeParams(params json.RawMessage, v any) error {
	if len(params) == 0 || string(params) == "null" {
		return nil
	}
	if err := json.Unmarshal(params, v); err != nil {
		return errors.NewInvalidRequest(fmt.Sprintf("invalid params: %v", err))
	}
	return nil
}

// === Capture Handlers ===

type captureFullFrameArgs struct {
	Bounds *record.Bounds `json:"bounds"`
}

// FrameResponse is the result of captureFullFrame.
type FrameResponse struct {
	Image  string `json:"image"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
}

func (s *Server) handleCaptureFullFrame(ctx context.Context, params json.RawMessage) (any, error) {
	var a captureFullFrameArgs
	if err := decodeParams(params, &a); err != nil {
		return nil, err
	}
	res, err := s.coord.CaptureFullFrame(ctx, a.Bounds)
	if err != nil {
		return nil, err
	}
	return FrameResponse{Image: imaging.DataURL(res.PNG), Width: res.Width, Height: res.Height}, nil
}

// captureRegion accepts bounds either bare or wrapped in {"bounds": ...}.
type captureRegionArgs struct {
	record.Bounds
	Wrapped *record.Bounds `json:"bounds"`
}

func (s *Server) handleCaptureRegion(ctx context.Context, params json.RawMessage) (any, error) {
	var a captureRegionArgs
	if err := decodeParams(params, &a); err != nil {
		return nil, err
	}
	b := a.Bounds
	if a.Wrapped != nil {
		b = *a.Wrapped
	}
	return s.coord.CaptureRegion(ctx, b)
}

// === Record Handlers ===

type appendRecordArgs struct {
	ImageData  string        `json:"imageData"`
	Bounds     record.Bounds `json:"bounds"`
	SourceURL  string        `json:"sourceUrl"`
	CapturedAt time.Time     `json:"capturedAt"`
}

func (s *Server) handleAppendRecord(ctx context.Context, params json.RawMessage) (any, error) {
	var a appendRecordArgs
	if err := decodeParams(params, &a); err != nil {
		return nil, err
	}
	data, err := decodeImageData(a.ImageData)
	if err != nil {
		return nil, err
	}
	res, err := s.coord.AppendRecord(ctx, record.Record{
		ImageData:  data,
		Bounds:     a.Bounds,
		SourceURL:  a.SourceURL,
		CapturedAt: a.CapturedAt,
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

// decodeImageData accepts a data URL or bare base64.
func decodeImageData(s string) ([]byte, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, errors.NewInvalidRequest("imageData is required")
	}
	if strings.HasPrefix(s, "data:") {
		raw, err := imaging.Payload([]byte(s))
		if err != nil {
			return nil, errors.NewInvalidRequest(err.Error())
		}
		return raw, nil
	}
	raw, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, errors.NewInvalidRequest(fmt.Sprintf("imageData is not base64: %v", err))
	}
	return raw, nil
}

type idArgs struct {
	ID string `json:"id"`
}

func (a idArgs) validate() error {
	if a.ID == "" {
		return errors.NewInvalidRequest("id is required")
	}
	return nil
}

func (s *Server) listRecords(ctx context.Context) ([]record.Record, error) {
	recs, err := s.coord.ListRecords(ctx)
	if err != nil {
		return nil, err
	}
	if recs == nil {
		recs = []record.Record{}
	}
	return recs, nil
}

func (s *Server) handleGetRecord(ctx context.Context, params json.RawMessage) (any, error) {
	var a idArgs
	if err := decodeParams(params, &a); err != nil {
		return nil, err
	}
	if err := a.validate(); err != nil {
		return nil, err
	}
	return s.coord.GetRecord(ctx, a.ID)
}

func (s *Server) handleUpdateRecordText(ctx context.Context, params json.RawMessage) (any, error) {
	var u record.TextUpdate
	if err := decodeParams(params, &u); err != nil {
		return nil, err
	}
	if err := (idArgs{ID: u.ID}).validate(); err != nil {
		return nil, err
	}
	switch u.Origin {
	case "", record.OriginUser, record.OriginOCR:
	default:
		return nil, errors.NewInvalidRequest(fmt.Sprintf("unknown origin %q", u.Origin))
	}
	changed, err := s.coord.UpdateRecordText(ctx, u)
	if err != nil {
		return nil, err
	}
	return map[string]bool{"updated": changed}, nil
}

func (s *Server) handleDeleteRecord(ctx context.Context, params json.RawMessage) (any, error) {
	var a idArgs
	if err := decodeParams(params, &a); err != nil {
		return nil, err
	}
	if err := a.validate(); err != nil {
		return nil, err
	}
	deleted, err := s.coord.DeleteRecord(ctx, a.ID)
	if err != nil {
		return nil, err
	}
	return map[string]bool{"deleted": deleted}, nil
}

// === Selection Handlers ===

type selectionPointerArgs struct {
	Phase string `json:"phase"`
	X     int    `json:"x"`
	Y     int    `json:"y"`
}

func (s *Server) handleSelectionPointer(ctx context.Context, params json.RawMessage) (any, error) {
	var a selectionPointerArgs
	if err := decodeParams(params, &a); err != nil {
		return nil, err
	}
	res, err := s.coord.SelectionPointer(ctx, a.Phase, image.Pt(a.X, a.Y))
	if err != nil {
		return nil, err
	}
	return res, nil
}
