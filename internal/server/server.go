package server

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"go.uber.org/zap"

	"github.com/varshakam/omr-eval/internal/imaging"
	"github.com/varshakam/omr-eval/internal/layout"
	"github.com/varshakam/omr-eval/internal/omr"
)

// Server handles MCP protocol communication
type Server struct {
	grader         *omr.Grader
	detector       omr.Detector
	cache          *imaging.ImageCache
	defaultVersion string
	version        string
	logger         *zap.Logger
	in             io.Reader
	out            io.Writer
}

// MCPRequest represents an incoming JSON-RPC request
type MCPRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      interface{}     `json:"id"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// MCPResponse represents an outgoing JSON-RPC response
type MCPResponse struct {
	JSONRPC string      `json:"jsonrpc"`
	ID      interface{} `json:"id"`
	Result  interface{} `json:"result,omitempty"`
	Error   *MCPError   `json:"error,omitempty"`
}

// MCPError represents a JSON-RPC error
type MCPError struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the logger. It must not write to the protocol stream.
func WithLogger(l *zap.Logger) Option {
	return func(s *Server) { s.logger = l }
}

// WithIO replaces stdin and stdout.
func WithIO(in io.Reader, out io.Writer) Option {
	return func(s *Server) { s.in, s.out = in, out }
}

// WithDefaultVersion sets the exam version used when a tool call omits one.
func WithDefaultVersion(v string) Option {
	return func(s *Server) { s.defaultVersion = v }
}

// WithServerVersion sets the version reported in serverInfo.
func WithServerVersion(v string) Option {
	return func(s *Server) { s.version = v }
}

// New creates a new MCP server instance
func New(grader *omr.Grader, opts ...Option) *Server {
	s := &Server{
		grader:         grader,
		detector:       omr.NewDetector(),
		cache:          imaging.NewImageCache(),
		defaultVersion: layout.DefaultVersion,
		version:        "dev",
		logger:         zap.NewNop(),
		in:             os.Stdin,
		out:            os.Stdout,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// JSON-RPC error codes used by the server.
const (
	codeParseError     = -32700
	codeMethodNotFound = -32601
	codeInvalidParams  = -32602
	codeToolFailed     = -32000
)

// protocolVersion is the MCP revision announced in initialize.
const protocolVersion = "2024-11-05"

// maxRequestBytes caps one request line. Sheets are passed by path, so
// requests stay small.
const maxRequestBytes = 1024 * 1024

// Run reads newline-delimited requests until the input closes. Each
// response is written as one line.
func (s *Server) Run() error {
	scanner := bufio.NewScanner(s.in)
	scanner.Buffer(make([]byte, 0, 64*1024), maxRequestBytes)
	encoder := json.NewEncoder(s.out)

	s.logger.Info("MCP server ready", zap.String("version", s.version))

	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var resp *MCPResponse
		var req MCPRequest
		if err := json.Unmarshal(line, &req); err != nil {
			s.logger.Warn("failed to parse request", zap.Error(err))
			resp = s.errorResponse(nil, codeParseError, "Parse error", err.Error())
		} else {
			s.logger.Debug("request", zap.String("method", req.Method), zap.Any("id", req.ID))
			resp = s.handleRequest(&req)
		}

		if resp == nil {
			continue
		}
		if err := encoder.Encode(resp); err != nil {
			s.logger.Error("failed to encode response", zap.Error(err))
		}
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("scanner error: %w", err)
	}
	s.logger.Info("MCP input closed")
	return nil
}

// handleRequest dispatches one request. Notifications get no response.
func (s *Server) handleRequest(req *MCPRequest) *MCPResponse {
	switch req.Method {
	case "initialize":
		return s.handleInitialize(req)
	case "notifications/initialized", "notifications/cancelled":
		return nil
	case "tools/list":
		return s.handleToolsList(req)
	case "tools/call":
		return s.handleToolsCall(req)
	case "ping":
		return s.result(req.ID, map[string]interface{}{})
	default:
		return s.errorResponse(req.ID, codeMethodNotFound, fmt.Sprintf("Method not found: %s", req.Method), nil)
	}
}

func (s *Server) result(id interface{}, v interface{}) *MCPResponse {
	return &MCPResponse{JSONRPC: "2.0", ID: id, Result: v}
}

func (s *Server) handleInitialize(req *MCPRequest) *MCPResponse {
	return s.result(req.ID, map[string]interface{}{
		"protocolVersion": protocolVersion,
		"capabilities": map[string]interface{}{
			"tools": map[string]interface{}{},
		},
		"serverInfo": map[string]interface{}{
			"name":    "omr-eval",
			"version": s.version,
		},
		"instructions": fmt.Sprintf("Grades OMR answer sheets. Exam versions: %v. Default version: %s.",
			s.grader.Registry().Versions(), s.defaultVersion),
	})
}
