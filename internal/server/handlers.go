package server

import (
	"encoding/json"
	"fmt"
	"image"

	"github.com/ironsheep/exam-diagrams/internal/cascade"
	"github.com/ironsheep/exam-diagrams/internal/detection"
	"github.com/ironsheep/exam-diagrams/internal/imaging"
)

// ToolCallParams represents the parameters for a tools/call MCP request.
type ToolCallParams struct {
	// Name is the tool to invoke (e.g., "page_load", "page_detect_diagrams").
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
func (s *Server) handleToolsCall(req *MCPRequest) *MCPResponse {
	var params ToolCallParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return s.errorResponse(req.ID, -32602, "Invalid params", err.Error())
	}

	result, err := s.executeTool(params.Name, params.Arguments)
	if err != nil {
		return s.errorResponse(req.ID, -32000, "Tool execution failed", err.Error())
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
	switch name {
	// Page Information
	case "page_load":
		return s.handlePageLoad(args)
	case "page_crop":
		return s.handlePageCrop(args)

	// Edge Analysis
	case "page_edge_map":
		return s.handlePageEdgeMap(args)
	case "page_classify_regions":
		return s.handlePageClassifyRegions(args)

	// Diagram Detection
	case "page_detect_diagrams":
		return s.handlePageDetectDiagrams(args)
	case "page_detect_grids":
		return s.handleDetector(args, detection.GridDetector{Params: s.params.Grid})
	case "page_detect_layout":
		return s.handleDetector(args, detection.LayoutDetector{Params: s.params.Layout})
	case "page_diagram_overlay":
		return s.handlePageDiagramOverlay(args)

	// Question Cascade
	case "question_diagrams":
		return s.handleQuestionDiagrams(args)

	// OCR
	case "page_ocr":
		return s.handlePageOCR(args)

	default:
		return nil, fmt.Errorf("unknown tool: %s", name)
	}
}

// errorResponse creates a JSON-RPC error response with the given details.
func (s *Server) errorResponse(id interface{}, code int, message, data string) *MCPResponse {
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

type pathArgs struct {
	Path string `json:"path"`
	Page int    `json:"page"`
}

// loadPage decodes args into a and loads the page image it names.
func (s *Server) loadPage(args json.RawMessage, a interface{}, p *pathArgs) (*detection.Page, error) {
	if err := json.Unmarshal(args, a); err != nil {
		return nil, err
	}
	if p.Path == "" {
		return nil, fmt.Errorf("path is required")
	}
	img, err := s.cache.Load(p.Path)
	if err != nil {
		return nil, err
	}
	if p.Page <= 0 {
		p.Page = 1
	}
	return detection.NewPage(p.Page, img), nil
}

// === Page Information Handlers ===

func (s *Server) handlePageLoad(args json.RawMessage) (interface{}, error) {
	var a pathArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return nil, err
	}
	return imaging.LoadPageInfo(s.cache, a.Path)
}

type pageCropArgs struct {
	pathArgs
	X      int     `json:"x"`
	Y      int     `json:"y"`
	Width  int     `json:"width"`
	Height int     `json:"height"`
	Scale  float64 `json:"scale"`
}

func (s *Server) handlePageCrop(args json.RawMessage) (interface{}, error) {
	var a pageCropArgs
	page, err := s.loadPage(args, &a, &a.pathArgs)
	if err != nil {
		return nil, err
	}
	if a.Scale == 0 {
		a.Scale = 1.0
	}
	box := detection.BBox{X: a.X, Y: a.Y, Width: a.Width, Height: a.Height}
	return imaging.Crop(page.Image(), box.Rect(), a.Scale)
}

// === Edge Analysis Handlers ===

type pageEdgeMapArgs struct {
	pathArgs
	ThresholdLow  float64 `json:"threshold_low"`
	ThresholdHigh float64 `json:"threshold_high"`
	IncludeImage  bool    `json:"include_image"`
}

// EdgeMapResult summarizes an edge map.
type EdgeMapResult struct {
	Width       int                   `json:"width"`
	Height      int                   `json:"height"`
	EdgePixels  int                   `json:"edge_pixels"`
	EdgeDensity float64               `json:"edge_density"`
	Image       *imaging.EncodedImage `json:"image,omitempty"`
}

func (s *Server) handlePageEdgeMap(args json.RawMessage) (interface{}, error) {
	var a pageEdgeMapArgs
	page, err := s.loadPage(args, &a, &a.pathArgs)
	if err != nil {
		return nil, err
	}
	opts := s.params.Regions.EdgeMap
	if a.ThresholdLow > 0 {
		opts.Low = a.ThresholdLow
	}
	if a.ThresholdHigh > 0 {
		opts.High = a.ThresholdHigh
	}
	if opts.Low >= opts.High {
		return nil, fmt.Errorf("threshold_low %.0f must be below threshold_high %.0f", opts.Low, opts.High)
	}

	edges := imaging.BuildEdgeMapGray(page.Gray(), opts)
	count := imaging.CountNonZero(edges.Closed, edges.Closed.Rect)
	res := &EdgeMapResult{
		Width:       page.Width(),
		Height:      page.Height(),
		EdgePixels:  count,
		EdgeDensity: float64(count) / float64(page.Area()),
	}
	if a.IncludeImage {
		enc, err := imaging.Encode(edges.Closed)
		if err != nil {
			return nil, err
		}
		res.Image = enc
	}
	return res, nil
}

// RegionsResult is the classification of one page.
type RegionsResult struct {
	detection.PageRegions
	Total int `json:"total"`
}

func (s *Server) handlePageClassifyRegions(args json.RawMessage) (interface{}, error) {
	var a pathArgs
	page, err := s.loadPage(args, &a, &a)
	if err != nil {
		return nil, err
	}
	regions := detection.ClassifyRegions(page, s.params.Regions)
	return &RegionsResult{PageRegions: regions, Total: regions.Total()}, nil
}

// === Diagram Detection Handlers ===

// CandidatesResult lists detector output for one page.
type CandidatesResult struct {
	Detector   string                       `json:"detector"`
	Count      int                          `json:"count"`
	Candidates []detection.DiagramCandidate `json:"candidates"`
}

type pageDetectArgs struct {
	pathArgs
	MinConfidence float64 `json:"min_confidence"`
}

func (s *Server) handlePageDetectDiagrams(args json.RawMessage) (interface{}, error) {
	var a pageDetectArgs
	page, err := s.loadPage(args, &a, &a.pathArgs)
	if err != nil {
		return nil, err
	}
	hybrid := detection.NewHybrid(s.params)
	cands, err := detection.RunSafe(hybrid, page)
	if err != nil {
		return nil, err
	}
	kept := []detection.DiagramCandidate{}
	for _, c := range cands {
		if c.Confidence > a.MinConfidence {
			kept = append(kept, c)
		}
	}
	return &CandidatesResult{Detector: hybrid.Name(), Count: len(kept), Candidates: kept}, nil
}

func (s *Server) handleDetector(args json.RawMessage, d detection.Detector) (interface{}, error) {
	var a pathArgs
	page, err := s.loadPage(args, &a, &a)
	if err != nil {
		return nil, err
	}
	cands, err := detection.RunSafe(d, page)
	if err != nil {
		return nil, err
	}
	if cands == nil {
		cands = []detection.DiagramCandidate{}
	}
	return &CandidatesResult{Detector: d.Name(), Count: len(cands), Candidates: cands}, nil
}

type pageOverlayArgs struct {
	pathArgs
	GridSpacing int    `json:"grid_spacing"`
	Output      string `json:"output"`
}

// OverlayResult is a page with candidate outlines.
type OverlayResult struct {
	*imaging.EncodedImage
	Candidates int    `json:"candidates"`
	SavedTo    string `json:"saved_to,omitempty"`
}

func (s *Server) handlePageDiagramOverlay(args json.RawMessage) (interface{}, error) {
	var a pageOverlayArgs
	page, err := s.loadPage(args, &a, &a.pathArgs)
	if err != nil {
		return nil, err
	}
	cands, err := detection.RunSafe(detection.NewHybrid(s.params), page)
	if err != nil {
		return nil, err
	}
	layout, err := detection.RunSafe(detection.LayoutDetector{Params: s.params.Layout}, page)
	if err != nil {
		return nil, err
	}
	cands = append(cands, layout...)

	boxes := make([]imaging.OverlayBox, len(cands))
	for i, c := range cands {
		boxes[i] = imaging.OverlayBox{
			Rect:  c.BBox.Rect(),
			Label: fmt.Sprintf("%s %.0f", c.Source, c.Confidence),
			Group: string(c.Source),
		}
	}
	overlay := imaging.DrawOverlay(page.Image(), boxes, imaging.OverlayOptions{GridSpacing: a.GridSpacing})

	res := &OverlayResult{Candidates: len(cands)}
	if a.Output != "" {
		if _, err := imaging.SavePNG(overlay, a.Output); err != nil {
			return nil, err
		}
		res.SavedTo = a.Output
	}
	res.EncodedImage, err = imaging.Encode(overlay)
	if err != nil {
		return nil, err
	}
	return res, nil
}

// === Question Cascade Handlers ===

type questionDiagramsArgs struct {
	pathArgs
	Question        string   `json:"question"`
	Parts           []string `json:"parts"`
	QuestionType    string   `json:"question_type"`
	RequiresDiagram bool     `json:"requires_diagram"`
}

func (s *Server) handleQuestionDiagrams(args json.RawMessage) (interface{}, error) {
	var a questionDiagramsArgs
	page, err := s.loadPage(args, &a, &a.pathArgs)
	if err != nil {
		return nil, err
	}
	c := cascade.New(s.params, s.locator, cascade.DiskSink{Dir: s.outputDir}, s.options)
	res, err := c.Run(s.ctx, page, cascade.Question{
		Text:            a.Question,
		Parts:           a.Parts,
		QuestionType:    a.QuestionType,
		RequiresDiagram: a.RequiresDiagram,
	})
	if err != nil {
		return nil, err
	}
	if res.Records == nil {
		res.Records = []cascade.DiagramRecord{}
	}
	return res, nil
}

// === OCR Handlers ===

type pageOCRArgs struct {
	pathArgs
	X      int `json:"x"`
	Y      int `json:"y"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

func (s *Server) handlePageOCR(args json.RawMessage) (interface{}, error) {
	var a pageOCRArgs
	page, err := s.loadPage(args, &a, &a.pathArgs)
	if err != nil {
		return nil, err
	}
	var img image.Image = page.Image()
	if a.Width > 0 && a.Height > 0 {
		box := detection.BBox{X: a.X, Y: a.Y, Width: a.Width, Height: a.Height}
		img, err = imaging.CropRegion(page.Image(), box.Rect())
		if err != nil {
			return nil, err
		}
	}
	res, err := s.ocr.Read(img)
	if err != nil {
		return nil, err
	}
	// Word boxes are relative to the crop; shift them back to the page.
	offset := image.Pt(a.X, a.Y)
	if a.Width <= 0 || a.Height <= 0 {
		offset = image.Point{}
	}
	for i := range res.Words {
		res.Words[i].Bounds = res.Words[i].Bounds.Add(offset)
	}
	return res, nil
}
