package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"go.uber.org/zap"

	"github.com/varshakam/omr-eval/internal/imaging"
	"github.com/varshakam/omr-eval/internal/layout"
	"github.com/varshakam/omr-eval/internal/omr"
	"github.com/varshakam/omr-eval/internal/omrerr"
)

// ToolCallParams represents the parameters for a tools/call MCP request.
type ToolCallParams struct {
	// Name is the tool to invoke (e.g., "omr_grade_sheet").
	Name string `json:"name"`

	// Arguments contains the tool-specific parameters as JSON.
	Arguments json.RawMessage `json:"arguments"`
}

// handleToolsCall processes a tools/call request and executes the specified tool.
//
// The response wraps the tool result in MCP's content format:
//
//	{
//	  "content": [{"type": "text", "text": "<JSON result>"}]
//	}
//
// Tool execution errors return a JSON-RPC error response with code -32000.
// Pipeline errors carry their error code and details in the error data.
func (s *Server) handleToolsCall(req *MCPRequest) *MCPResponse {
	var params ToolCallParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return s.errorResponse(req.ID, codeInvalidParams, "Invalid params", err.Error())
	}

	result, err := s.executeTool(params.Name, params.Arguments)
	if err != nil {
		s.logger.Debug("tool failed", zap.String("tool", params.Name), zap.Error(err))
		var coded *omrerr.Error
		if errors.As(err, &coded) {
			return s.errorResponse(req.ID, codeToolFailed, "Tool execution failed", coded.ToMap())
		}
		return s.errorResponse(req.ID, codeToolFailed, "Tool execution failed", err.Error())
	}

	return &MCPResponse{
		JSONRPC: "2.0",
		ID:      req.ID,
		Result: map[string]interface{}{
			"content": []map[string]interface{}{
				{
					"type": "text",
					"text": mustMarshalJSON(result),
				},
			},
		},
	}
}

// executeTool dispatches tool execution to the appropriate handler function.
func (s *Server) executeTool(name string, args json.RawMessage) (interface{}, error) {
	if len(args) == 0 {
		args = json.RawMessage("{}")
	}

	switch name {
	case "omr_list_exams":
		return s.handleListExams()
	case "omr_grade_sheet":
		return s.handleGradeSheet(args)
	case "omr_detect_answers":
		return s.handleDetectAnswers(args)
	case "omr_normalize":
		return s.handleNormalize(args)
	case "omr_layout_overlay":
		return s.handleLayoutOverlay(args)
	case "omr_crop_region":
		return s.handleCropRegion(args)
	default:
		return nil, fmt.Errorf("unknown tool: %s", name)
	}
}

// errorResponse creates a JSON-RPC error response with the given details.
func (s *Server) errorResponse(id interface{}, code int, message string, data interface{}) *MCPResponse {
	return &MCPResponse{
		JSONRPC: "2.0",
		ID:      id,
		Error: &MCPError{
			Code:    code,
			Message: message,
			Data:    data,
		},
	}
}

// mustMarshalJSON converts a value to pretty-printed JSON string.
// On marshal failure, returns an empty string.
func mustMarshalJSON(v interface{}) string {
	b, _ := json.MarshalIndent(v, "", "  ")
	return string(b)
}

func (s *Server) resolveVersion(v string) string {
	switch v {
	case "":
		return s.defaultVersion
	case autoVersion:
		// Only the grader can read the version from the sheet; every other
		// lookup rejects the empty name as an unknown version.
		return ""
	}
	return v
}

// loadRaster reads path through the image cache and normalizes it.
func (s *Server) loadRaster(path string) (*imaging.Raster, error) {
	if path == "" {
		return nil, fmt.Errorf("path is required")
	}
	img, err := s.cache.Load(path)
	if err != nil {
		return nil, err
	}
	return imaging.Normalize(img)
}

// === Registry ===

type examInfo struct {
	Version  string        `json:"version"`
	Bottom   int           `json:"bottom"`
	Subjects []subjectInfo `json:"subjects"`
}

type subjectInfo struct {
	Name      string   `json:"name"`
	Questions int      `json:"questions"`
	Key       []string `json:"key"`
}

func (s *Server) handleListExams() (interface{}, error) {
	reg := s.grader.Registry()

	var exams []examInfo
	for _, v := range reg.Versions() {
		exam, err := reg.Exam(v)
		if err != nil {
			return nil, err
		}
		info := examInfo{Version: v, Bottom: exam.Bottom()}
		for _, subj := range exam.Subjects {
			info.Subjects = append(info.Subjects, subjectInfo{
				Name:      subj.Name,
				Questions: len(subj.Layout),
				Key:       subj.Key,
			})
		}
		exams = append(exams, info)
	}

	result := map[string]interface{}{
		"default_version": s.defaultVersion,
		"reference_width": imaging.ReferenceWidth,
		"exams":           exams,
	}
	if region, ok := reg.Identification(); ok {
		result["identification_region"] = region
	}
	return result, nil
}

// === Grading ===

type gradeSheetArgs struct {
	Path    string `json:"path"`
	Version string `json:"version"`
}

func (s *Server) handleGradeSheet(args json.RawMessage) (interface{}, error) {
	var a gradeSheetArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return nil, err
	}
	if a.Path == "" {
		return nil, fmt.Errorf("path is required")
	}
	img, err := s.cache.Load(a.Path)
	if err != nil {
		return nil, err
	}
	grading, err := s.grader.Grade(img, s.resolveVersion(a.Version))
	if err != nil {
		return nil, err
	}
	return grading.Result, nil
}

type detectAnswersArgs struct {
	Path    string `json:"path"`
	Version string `json:"version"`
	Subject string `json:"subject"`
}

type detectAnswersResult struct {
	Version   string               `json:"version"`
	Subject   string               `json:"subject"`
	Score     int                  `json:"score"`
	MaxScore  int                  `json:"max_score"`
	Blank     int                  `json:"blank"`
	Answers   []omr.Answer         `json:"answers"`
	Questions []omr.QuestionReport `json:"questions"`
}

func (s *Server) handleDetectAnswers(args json.RawMessage) (interface{}, error) {
	var a detectAnswersArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return nil, err
	}
	version := s.resolveVersion(a.Version)

	reg := s.grader.Registry()
	exam, err := reg.Exam(version)
	if err != nil {
		return nil, err
	}
	subjectLayout, err := reg.LayoutFor(version, a.Subject)
	if err != nil {
		return nil, err
	}
	key, err := reg.KeyFor(version, a.Subject)
	if err != nil {
		return nil, err
	}

	raster, err := s.loadRaster(a.Path)
	if err != nil {
		return nil, err
	}
	if err := omr.CheckExtent(raster, exam); err != nil {
		return nil, err
	}

	reports := s.detector.Inspect(raster, subjectLayout)
	answers := make([]omr.Answer, len(reports))
	for i, r := range reports {
		answers[i] = r.Answer
	}
	return &detectAnswersResult{
		Version:   version,
		Subject:   a.Subject,
		Score:     omr.Score(answers, key),
		MaxScore:  len(key),
		Blank:     omr.CountBlank(answers),
		Answers:   answers,
		Questions: reports,
	}, nil
}

// === Rendering ===

type normalizeArgs struct {
	Path string `json:"path"`
}

type normalizeResult struct {
	*imaging.RasterImage
	InkPixels int `json:"ink_pixels"`
}

func (s *Server) handleNormalize(args json.RawMessage) (interface{}, error) {
	var a normalizeArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return nil, err
	}
	raster, err := s.loadRaster(a.Path)
	if err != nil {
		return nil, err
	}
	rendered, err := imaging.RenderRaster(raster)
	if err != nil {
		return nil, err
	}
	return &normalizeResult{RasterImage: rendered, InkPixels: raster.InkCount()}, nil
}

type layoutOverlayArgs struct {
	Path        string `json:"path"`
	Version     string `json:"version"`
	MarkedColor string `json:"marked_color"`
	ShowNumbers bool   `json:"show_numbers"`
}

func (s *Server) handleLayoutOverlay(args json.RawMessage) (interface{}, error) {
	var a layoutOverlayArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return nil, err
	}
	if a.MarkedColor == "" {
		a.MarkedColor = imaging.DefaultMarkedColor
	}

	exam, err := s.grader.Registry().Exam(s.resolveVersion(a.Version))
	if err != nil {
		return nil, err
	}
	raster, err := s.loadRaster(a.Path)
	if err != nil {
		return nil, err
	}

	return imaging.Overlay(raster, overlayBoxes(exam, raster, s.detector, a.ShowNumbers), len(exam.Subjects), a.MarkedColor)
}

// overlayBoxes outlines every option of exam, one group per subject, and
// marks the options the detector accepts.
func overlayBoxes(exam layout.Exam, raster *imaging.Raster, d omr.Detector, numbers bool) []imaging.OverlayBox {
	var boxes []imaging.OverlayBox
	for gi, subj := range exam.Subjects {
		answers := d.Detect(raster, subj.Layout)
		for qi, q := range subj.Layout {
			for oi, opt := range q.Options {
				box := imaging.OverlayBox{
					X:      opt.Rect.X,
					Y:      opt.Rect.Y,
					Width:  opt.Rect.Width,
					Height: opt.Rect.Height,
					Group:  gi,
					Marked: !answers[qi].IsBlank() && string(answers[qi]) == opt.Label,
				}
				if numbers && oi == 0 {
					box.Caption = strconv.Itoa(qi + 1)
				}
				boxes = append(boxes, box)
			}
		}
	}
	return boxes
}

type cropRegionArgs struct {
	Path  string  `json:"path"`
	X1    int     `json:"x1"`
	Y1    int     `json:"y1"`
	X2    int     `json:"x2"`
	Y2    int     `json:"y2"`
	Scale float64 `json:"scale"`
}

func (s *Server) handleCropRegion(args json.RawMessage) (interface{}, error) {
	var a cropRegionArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return nil, err
	}
	if a.Scale == 0 {
		a.Scale = 1.0
	}
	raster, err := s.loadRaster(a.Path)
	if err != nil {
		return nil, err
	}
	return imaging.Crop(raster, a.X1, a.Y1, a.X2, a.Y2, a.Scale)
}
