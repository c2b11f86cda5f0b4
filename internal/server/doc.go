// Package server exposes the exam page detectors as MCP (Model Context
// Protocol) tools.
//
// It lets an MCP client inspect how a rendered exam page is read: which
// regions look like diagrams, what each detector proposes, and which crop the
// question cascade would save.
//
// # Protocol
//
// The server communicates over stdio using JSON-RPC 2.0:
//   - Input: JSON-RPC requests on stdin (one per line)
//   - Output: JSON-RPC responses on stdout
//
// Supported MCP methods:
//   - initialize: Protocol handshake
//   - tools/list: Enumerate available tools
//   - tools/call: Execute a tool with arguments
//   - ping: Health check
//
// # Available Tools
//
// Page Information:
//   - page_load: Dimensions and format of a rendered page
//   - page_crop: Extract a rectangle as PNG
//
// Edge Analysis:
//   - page_edge_map: Closed Canny edge map and its density
//   - page_classify_regions: Diagram, text and mixed regions
//
// Diagram Detection:
//   - page_detect_diagrams: Contour-density, grid and blob detectors, resolved
//   - page_detect_grids: Grid detector alone
//   - page_detect_layout: Layout detector alone
//   - page_diagram_overlay: Candidates drawn on the page
//
// Question Cascade:
//   - question_diagrams: Full cascade for one question, crops saved to disk
//
// OCR:
//   - page_ocr: Tesseract text and word boxes
//
// # Image Caching
//
// Pages are cached by path and reused across tool calls for the lifetime of
// the server process.
//
// # Error Handling
//
// Tool execution errors are returned as JSON-RPC error responses with:
//   - code: -32000 (tool execution failure) or standard JSON-RPC codes
//   - message: Human-readable error description
//   - data: The Go error string
//
// # Usage
//
//	srv := server.New(server.WithOutputDir("output"))
//	if err := srv.Run(ctx); err != nil {
//	    return err
//	}
package server
