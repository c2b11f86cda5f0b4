package server

// Tool represents an MCP tool definition
type Tool struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	InputSchema map[string]interface{} `json:"inputSchema"`
}

func pathProperty() map[string]interface{} {
	return map[string]interface{}{
		"type":        "string",
		"description": "Absolute path to the rendered page image",
	}
}

func intProperty(description string) map[string]interface{} {
	return map[string]interface{}{
		"type":        "integer",
		"description": description,
	}
}

func pageProperty() map[string]interface{} {
	return intProperty("Page number used in crop file names. Default 1")
}

// GetToolDefinitions returns all available tools
func GetToolDefinitions() []Tool {
	return []Tool{
		// Page Information
		{
			Name:        "page_load",
			Description: "Load a rendered exam page and return its dimensions and format.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"path": pathProperty(),
				},
				"required": []string{"path"},
			},
		},
		{
			Name:        "page_crop",
			Description: "Crop a rectangle from a page and return it as base64-encoded PNG. Use this to inspect a detected diagram.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"path":   pathProperty(),
					"x":      intProperty("Left edge X coordinate (0-based)"),
					"y":      intProperty("Top edge Y coordinate (0-based)"),
					"width":  intProperty("Width in pixels"),
					"height": intProperty("Height in pixels"),
					"scale": map[string]interface{}{
						"type":        "number",
						"description": "Optional scale factor (e.g., 0.5 to halve the size). Default 1.0",
						"default":     1.0,
					},
				},
				"required": []string{"path", "x", "y", "width", "height"},
			},
		},

		// Edge Analysis
		{
			Name:        "page_edge_map",
			Description: "Build the binary edge map of a page (blur, Canny, closing, dilation) and report its edge density. Optionally returns the map as PNG.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"path":           pathProperty(),
					"threshold_low":  intProperty("Canny low threshold. Default from configuration (50)"),
					"threshold_high": intProperty("Canny high threshold. Default from configuration (150)"),
					"include_image": map[string]interface{}{
						"type":        "boolean",
						"description": "Return the closed edge map as base64 PNG",
						"default":     false,
					},
				},
				"required": []string{"path"},
			},
		},
		{
			Name:        "page_classify_regions",
			Description: "Split a page into diagram, text and mixed regions using contour features, with a line-envelope fallback when no diagram is found.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"path": pathProperty(),
				},
				"required": []string{"path"},
			},
		},

		// Diagram Detection
		{
			Name:        "page_detect_diagrams",
			Description: "Run the contour-density, grid and blob detectors, resolve overlaps and return the candidates sorted by confidence.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"path": pathProperty(),
					"min_confidence": map[string]interface{}{
						"type":        "number",
						"description": "Drop candidates at or below this confidence (0-100). Default 0",
					},
				},
				"required": []string{"path"},
			},
		},
		{
			Name:        "page_detect_grids",
			Description: "Detect coordinate grids and dot grids from line intersections and Hough lines.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"path": pathProperty(),
				},
				"required": []string{"path"},
			},
		},
		{
			Name:        "page_detect_layout",
			Description: "Find diagram blocks from the page layout: adaptive threshold, morphological closing and content filters.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"path": pathProperty(),
				},
				"required": []string{"path"},
			},
		},
		{
			Name:        "page_diagram_overlay",
			Description: "Outline every diagram candidate on a copy of the page and return it as base64 PNG, coloured by detector.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"path":         pathProperty(),
					"grid_spacing": intProperty("Draw a reference grid every n pixels. Default 0 (off)"),
					"output": map[string]interface{}{
						"type":        "string",
						"description": "Optional path to also save the overlay PNG",
					},
				},
				"required": []string{"path"},
			},
		},

		// Question Cascade
		{
			Name:        "question_diagrams",
			Description: "Run the diagram cascade for one question: decide whether it needs a figure, then try the detectors, the layout pass, the model and finally a fixed band of the page. Crops are saved to the output directory.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"path": pathProperty(),
					"page": pageProperty(),
					"question": map[string]interface{}{
						"type":        "string",
						"description": "Question stem",
					},
					"parts": map[string]interface{}{
						"type":        "array",
						"items":       map[string]interface{}{"type": "string"},
						"description": "Texts of the question parts",
					},
					"question_type": map[string]interface{}{
						"type":        "string",
						"description": "Question type; diagram_based forces the cascade",
					},
					"requires_diagram": map[string]interface{}{
						"type":        "boolean",
						"description": "Force the cascade regardless of keywords",
					},
				},
				"required": []string{"path", "question"},
			},
		},

		// OCR
		{
			Name:        "page_ocr",
			Description: "Read page text with Tesseract after grayscale and contrast preprocessing. Optionally restrict to a region.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"path":   pathProperty(),
					"x":      intProperty("Region left edge (optional)"),
					"y":      intProperty("Region top edge (optional)"),
					"width":  intProperty("Region width (optional, 0 for the whole page)"),
					"height": intProperty("Region height (optional, 0 for the whole page)"),
				},
				"required": []string{"path"},
			},
		},
	}
}

// handleToolsList returns the list of available tools
func (s *Server) handleToolsList(req *MCPRequest) *MCPResponse {
	return &MCPResponse{
		JSONRPC: "2.0",
		ID:      req.ID,
		Result: map[string]interface{}{
			"tools": GetToolDefinitions(),
		},
	}
}
