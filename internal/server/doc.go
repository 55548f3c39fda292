// Package server implements the MCP (Model Context Protocol) server for
// answer-sheet grading tools.
//
// This package provides a JSON-RPC 2.0 server that exposes the grading
// pipeline through the MCP protocol, so an assistant can grade sheets and
// help an operator author or debug bubble layouts.
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
// Grading:
//   - omr_list_exams: Registered exam versions, subjects and keys
//   - omr_grade_sheet: Full pipeline, returns the exam result
//   - omr_detect_answers: One subject with per-option fill diagnostics
//
// Inspection (all in canonical 600px coordinates):
//   - omr_normalize: The black/white sheet the detector reads
//   - omr_layout_overlay: Layout rectangles drawn over the sheet
//   - omr_crop_region: Magnified crop with its ink count
//
// # Image Caching
//
// Decoded images are cached by path for the lifetime of the process, so
// repeated calls against one sheet skip disk I/O and decoding.
//
// # Error Handling
//
// Tool execution errors are returned as JSON-RPC error responses with
// code -32000. When the failure is a pipeline error (DECODE_ERROR,
// INVALID_IMAGE, CONFIGURATION_ERROR) the data field holds its code and
// details; otherwise data is the Go error string.
//
// # Usage
//
//	srv := server.New(grader, server.WithLogger(logger))
//	if err := srv.Run(); err != nil {
//	    log.Fatal(err)
//	}
package server
