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
		"description": "Absolute path to the answer sheet image",
	}
}

// autoVersion asks omr_grade_sheet to read the version from the sheet.
const autoVersion = "auto"

func versionProperty() map[string]interface{} {
	return map[string]interface{}{
		"type":        "string",
		"description": "Exam version (see omr_list_exams). Defaults to the server's default version. omr_grade_sheet also accepts \"auto\" when the layout has an identification region and OCR is enabled.",
	}
}

// GetToolDefinitions returns all available tools
func GetToolDefinitions() []Tool {
	return []Tool{
		{
			Name:        "omr_list_exams",
			Description: "List the registered exam versions with their subjects, question counts and answer keys.",
			InputSchema: map[string]interface{}{
				"type":       "object",
				"properties": map[string]interface{}{},
			},
		},
		{
			Name:        "omr_grade_sheet",
			Description: "Grade an answer sheet photo: normalize it, detect the marked bubble of every question and score each subject against its key.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"path":    pathProperty(),
					"version": versionProperty(),
				},
				"required": []string{"path"},
			},
		},
		{
			Name:        "omr_detect_answers",
			Description: "Detect answers for one subject and report the ink fill of every option, for diagnosing faint or ambiguous marks.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"path":    pathProperty(),
					"version": versionProperty(),
					"subject": map[string]interface{}{
						"type":        "string",
						"description": "Subject name within the exam",
					},
				},
				"required": []string{"path", "subject"},
			},
		},
		{
			Name:        "omr_normalize",
			Description: "Return the sheet as the grader sees it: resized to 600px wide and binarized to black and white, as base64 PNG.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"path": pathProperty(),
				},
				"required": []string{"path"},
			},
		},
		{
			Name:        "omr_layout_overlay",
			Description: "Draw every bubble rectangle of an exam layout over the normalized sheet, one colour per subject, with accepted marks highlighted. Use this to check a hand-written layout against a real sheet.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"path":    pathProperty(),
					"version": versionProperty(),
					"marked_color": map[string]interface{}{
						"type":        "string",
						"description": "Hex colour for accepted marks (default: #00c853)",
					},
					"show_numbers": map[string]interface{}{
						"type":        "boolean",
						"description": "Label each question with its number (default: false)",
					},
				},
				"required": []string{"path"},
			},
		},
		{
			Name:        "omr_crop_region",
			Description: "Crop a region of the normalized sheet in canonical coordinates and return it as base64 PNG with its ink pixel count.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"path": pathProperty(),
					"x1": map[string]interface{}{
						"type":        "integer",
						"description": "Left edge X coordinate (0-based)",
					},
					"y1": map[string]interface{}{
						"type":        "integer",
						"description": "Top edge Y coordinate (0-based)",
					},
					"x2": map[string]interface{}{
						"type":        "integer",
						"description": "Right edge X coordinate (exclusive)",
					},
					"y2": map[string]interface{}{
						"type":        "integer",
						"description": "Bottom edge Y coordinate (exclusive)",
					},
					"scale": map[string]interface{}{
						"type":        "number",
						"description": "Magnification factor (default: 1.0)",
					},
				},
				"required": []string{"path", "x1", "y1", "x2", "y2"},
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
