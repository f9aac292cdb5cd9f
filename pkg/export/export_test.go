package export

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/shawkym/councilpipe/pkg/council"
)

func testSession() council.ConsensusResponse {
	synthesis := council.ModelResponse{
		Model:       council.ModelRef{ID: "openai/gpt-4o"},
		Status:      council.StatusOK,
		Content:     "Combined answer.",
		Latency:     200 * time.Millisecond,
		TotalTokens: 120,
		Cost:        0.0024,
	}
	return council.ConsensusResponse{
		Rounds: []council.RoundResult{
			{
				Round: 1,
				Responses: []council.ModelResponse{
					{
						Model:       council.ModelRef{ID: "openai/gpt-4o"},
						Status:      council.StatusOK,
						Content:     "Answer from the first model.",
						Latency:     100 * time.Millisecond,
						TotalTokens: 100,
						Cost:        0.0010,
					},
					{
						Model:       council.ModelRef{ID: "anthropic/claude-3.5-sonnet"},
						Status:      council.StatusOK,
						Content:     "Answer from the second model.",
						Latency:     150 * time.Millisecond,
						TotalTokens: 200,
						Cost:        0.0020,
					},
				},
			},
		},
		Synthesis: &synthesis,
		Meta: council.SessionMetadata{
			SessionID: uuid.New(),
			StartedAt: time.Now(),
			Duration:  500 * time.Millisecond,
		},
	}
}

func TestExportJSON(t *testing.T) {
	session := testSession()

	exporter := NewExporter(Options{
		Format:         FormatJSON,
		IncludeMetrics: true,
		Title:          "Test Session",
	})

	var buf bytes.Buffer
	if err := exporter.Export(session, &buf); err != nil {
		t.Fatalf("Export failed: %v", err)
	}

	var result map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &result); err != nil {
		t.Fatalf("invalid JSON output: %v", err)
	}

	if result["title"] != "Test Session" {
		t.Errorf("expected title 'Test Session', got %v", result["title"])
	}

	rounds, ok := result["rounds"].([]interface{})
	if !ok || len(rounds) != 1 {
		t.Fatalf("expected 1 round, got %v", result["rounds"])
	}

	summary, ok := result["summary"].(map[string]interface{})
	if !ok {
		t.Fatal("summary field is missing or invalid")
	}
	if summary["total_elders"] != float64(2) {
		t.Errorf("expected 2 elders, got %v", summary["total_elders"])
	}
}

func TestExportJSON_NeverLeaksRealModelID(t *testing.T) {
	session := testSession()
	exporter := NewExporter(Options{Format: FormatJSON})

	var buf bytes.Buffer
	if err := exporter.Export(session, &buf); err != nil {
		t.Fatalf("Export failed: %v", err)
	}

	if strings.Contains(buf.String(), "openai/gpt-4o") || strings.Contains(buf.String(), "anthropic/claude-3.5-sonnet") {
		t.Error("expected real model ids to be replaced by Elder labels")
	}
	if !strings.Contains(buf.String(), "Elder 1") || !strings.Contains(buf.String(), "Elder 2") {
		t.Error("expected Elder 1 and Elder 2 labels in output")
	}
}

func TestExportMarkdown(t *testing.T) {
	session := testSession()

	exporter := NewExporter(Options{
		Format:         FormatMarkdown,
		IncludeMetrics: true,
		Title:          "Test Session",
	})

	var buf bytes.Buffer
	if err := exporter.Export(session, &buf); err != nil {
		t.Fatalf("Export failed: %v", err)
	}

	output := buf.String()

	if !strings.Contains(output, "# Test Session") {
		t.Error("expected markdown to contain title")
	}
	if !strings.Contains(output, "## Summary") {
		t.Error("expected markdown to contain summary section")
	}
	if !strings.Contains(output, "## Round 1") {
		t.Error("expected markdown to contain round heading")
	}
	if !strings.Contains(output, "### Elder 1") || !strings.Contains(output, "### Elder 2") {
		t.Error("expected markdown to contain Elder headings")
	}
	if !strings.Contains(output, "## Synthesis") {
		t.Error("expected markdown to contain synthesis section")
	}
	if !strings.Contains(output, "Tokens:") {
		t.Error("expected markdown to contain token metrics")
	}
}

func TestExportText(t *testing.T) {
	session := testSession()

	exporter := NewExporter(Options{Format: FormatText, Title: "Test Session", IncludeMetrics: true})

	var buf bytes.Buffer
	if err := exporter.Export(session, &buf); err != nil {
		t.Fatalf("Export failed: %v", err)
	}

	output := buf.String()
	if !strings.Contains(output, "Test Session") {
		t.Error("expected text output to contain title")
	}
	if !strings.Contains(output, "Round 1") {
		t.Error("expected text output to contain round label")
	}
	if !strings.Contains(output, "Synthesis") {
		t.Error("expected text output to contain synthesis section")
	}
}

func TestExportWithoutMetrics(t *testing.T) {
	session := testSession()

	exporter := NewExporter(Options{Format: FormatJSON, IncludeMetrics: false})

	var buf bytes.Buffer
	if err := exporter.Export(session, &buf); err != nil {
		t.Fatalf("Export failed: %v", err)
	}

	var result map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &result); err != nil {
		t.Fatalf("invalid JSON output: %v", err)
	}
	if _, ok := result["summary"]; ok {
		t.Error("expected no summary when IncludeMetrics is false")
	}
}

func TestExportUnsupportedFormat(t *testing.T) {
	session := testSession()

	exporter := NewExporter(Options{Format: "invalid"})

	var buf bytes.Buffer
	err := exporter.Export(session, &buf)
	if err == nil {
		t.Fatal("expected error for unsupported format")
	}
	if !strings.Contains(err.Error(), "unsupported export format") {
		t.Errorf("expected 'unsupported export format' error, got: %v", err)
	}
}

func TestExportDroppedResponseMarkedInMarkdown(t *testing.T) {
	session := council.ConsensusResponse{
		Rounds: []council.RoundResult{
			{
				Round: 1,
				Responses: []council.ModelResponse{
					{Model: council.ModelRef{ID: "a"}, Status: council.StatusOK, Content: "ok"},
					{Model: council.ModelRef{ID: "b"}, Status: council.StatusDropped},
				},
			},
		},
	}

	exporter := NewExporter(Options{Format: FormatMarkdown})
	var buf bytes.Buffer
	if err := exporter.Export(session, &buf); err != nil {
		t.Fatalf("Export failed: %v", err)
	}
	if !strings.Contains(buf.String(), "*dropped*") {
		t.Error("expected dropped response to be marked in output")
	}
}
