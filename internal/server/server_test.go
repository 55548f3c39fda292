package server

import (
	"bufio"
	"encoding/json"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/varshakam/omr-eval/internal/layout"
	"github.com/varshakam/omr-eval/internal/omr"
)

func newTestServer(t *testing.T, opts ...Option) *Server {
	t.Helper()
	reg, err := layout.LoadDefault()
	if err != nil {
		t.Fatalf("LoadDefault failed: %v", err)
	}
	return New(omr.NewGrader(reg), opts...)
}

// createSheetFile writes a default-layout sheet to a temp PNG. Each
// filled rect is painted black.
func createSheetFile(t *testing.T, filled ...image.Rectangle) string {
	t.Helper()
	return createSizedSheetFile(t, 600, 700, filled...)
}

func createSizedSheetFile(t *testing.T, w, h int, filled ...image.Rectangle) string {
	t.Helper()

	img := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(img, img.Bounds(), image.White, image.Point{}, draw.Src)
	for _, r := range filled {
		draw.Draw(img, r, image.NewUniform(color.Black), image.Point{}, draw.Src)
	}

	path := filepath.Join(t.TempDir(), "sheet.png")
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("failed to create sheet: %v", err)
	}
	defer f.Close()
	if err := png.Encode(f, img); err != nil {
		t.Fatalf("failed to encode sheet: %v", err)
	}
	return path
}

func TestNew(t *testing.T) {
	s := newTestServer(t)
	if s.cache == nil {
		t.Fatal("New() did not initialize cache")
	}
	if s.defaultVersion != layout.DefaultVersion {
		t.Errorf("defaultVersion = %q", s.defaultVersion)
	}
}

func TestHandleRequest_Methods(t *testing.T) {
	s := newTestServer(t, WithServerVersion("1.2.3"))

	resp := s.handleRequest(&MCPRequest{JSONRPC: "2.0", ID: 1, Method: "initialize"})
	if resp == nil || resp.Error != nil {
		t.Fatalf("initialize failed: %+v", resp)
	}
	result := resp.Result.(map[string]interface{})
	if result["protocolVersion"] != "2024-11-05" {
		t.Errorf("protocolVersion = %v", result["protocolVersion"])
	}
	info := result["serverInfo"].(map[string]interface{})
	if info["name"] != "omr-eval" || info["version"] != "1.2.3" {
		t.Errorf("serverInfo = %v", info)
	}

	if resp := s.handleRequest(&MCPRequest{Method: "notifications/initialized"}); resp != nil {
		t.Errorf("notification should not get a response")
	}

	resp = s.handleRequest(&MCPRequest{JSONRPC: "2.0", ID: 2, Method: "ping"})
	if resp.Error != nil {
		t.Errorf("ping failed: %v", resp.Error)
	}

	resp = s.handleRequest(&MCPRequest{JSONRPC: "2.0", ID: 3, Method: "resources/list"})
	if resp.Error == nil || resp.Error.Code != -32601 {
		t.Errorf("expected method not found, got %+v", resp.Error)
	}
}

func TestToolsList(t *testing.T) {
	s := newTestServer(t)

	resp := s.handleRequest(&MCPRequest{JSONRPC: "2.0", ID: 1, Method: "tools/list"})
	tools := resp.Result.(map[string]interface{})["tools"].([]Tool)

	want := []string{
		"omr_list_exams",
		"omr_grade_sheet",
		"omr_detect_answers",
		"omr_normalize",
		"omr_layout_overlay",
		"omr_crop_region",
	}
	if len(tools) != len(want) {
		t.Fatalf("got %d tools, want %d", len(tools), len(want))
	}
	for i, name := range want {
		if tools[i].Name != name {
			t.Errorf("tool %d = %s, want %s", i, tools[i].Name, name)
		}
		if tools[i].InputSchema["type"] != "object" {
			t.Errorf("tool %s has no object schema", name)
		}
	}
}

func TestRun(t *testing.T) {
	input := strings.Join([]string{
		`{"jsonrpc":"2.0","id":1,"method":"initialize"}`,
		`{"jsonrpc":"2.0","method":"notifications/initialized"}`,
		``,
		`not json`,
		`{"jsonrpc":"2.0","id":"b","method":"ping"}`,
	}, "\n")

	var out strings.Builder
	s := newTestServer(t, WithIO(strings.NewReader(input), &out))
	if err := s.Run(); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	scanner := bufio.NewScanner(strings.NewReader(out.String()))
	var responses []MCPResponse
	for scanner.Scan() {
		var resp MCPResponse
		if err := json.Unmarshal(scanner.Bytes(), &resp); err != nil {
			t.Fatalf("bad output line %q: %v", scanner.Text(), err)
		}
		responses = append(responses, resp)
	}

	if len(responses) != 3 {
		t.Fatalf("got %d responses, want 3", len(responses))
	}
	if responses[0].ID != float64(1) {
		t.Errorf("first response id = %v", responses[0].ID)
	}
	if responses[1].Error == nil || responses[1].Error.Code != -32700 {
		t.Errorf("expected parse error, got %+v", responses[1])
	}
	if responses[2].ID != "b" {
		t.Errorf("last response id = %v", responses[2].ID)
	}
}
