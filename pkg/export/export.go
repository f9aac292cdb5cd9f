// Package export renders a finished council deliberation to a portable
// format. It is the only place a ModelRef's real identity is replaced by
// its anonymized "Elder N" presentation label.
package export

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/shawkym/councilpipe/pkg/council"
)

// Format is the export output format.
type Format string

const (
	// FormatJSON exports the session as structured JSON.
	FormatJSON Format = "json"
	// FormatMarkdown exports the session as a Markdown document.
	FormatMarkdown Format = "markdown"
	// FormatText exports the session as plain text.
	FormatText Format = "text"
)

// Options controls how a ConsensusResponse is rendered.
type Options struct {
	// Format selects the output format (json, markdown, text).
	Format Format
	// IncludeMetrics includes token counts and cost in the export.
	IncludeMetrics bool
	// Title is an optional title for the export.
	Title string
}

// Exporter renders a council.ConsensusResponse to an io.Writer.
type Exporter struct {
	options Options
}

// NewExporter creates an Exporter with the given options.
func NewExporter(options Options) *Exporter {
	return &Exporter{options: options}
}

// Export writes the session to writer in the configured format. Model ids
// are replaced with their round-stable "Elder N" label; the underlying
// ModelRef.ID never appears in the output.
func (e *Exporter) Export(session council.ConsensusResponse, writer io.Writer) error {
	switch e.options.Format {
	case FormatJSON:
		return e.exportJSON(session, writer)
	case FormatMarkdown:
		return e.exportMarkdown(session, writer)
	case FormatText:
		return e.exportText(session, writer)
	default:
		return fmt.Errorf("unsupported export format: %s", e.options.Format)
	}
}

// elderLabels assigns a stable "Elder N" label to each model id seen across
// every round, in first-seen order.
func elderLabels(session council.ConsensusResponse) map[string]string {
	labels := make(map[string]string)
	n := 1
	for _, round := range session.Rounds {
		for _, resp := range round.Responses {
			if _, ok := labels[resp.Model.ID]; !ok {
				labels[resp.Model.ID] = fmt.Sprintf("Elder %d", n)
				n++
			}
		}
	}
	return labels
}

type jsonResponse struct {
	Elder       string  `json:"elder"`
	Status      string  `json:"status"`
	Content     string  `json:"content,omitempty"`
	Error       string  `json:"error,omitempty"`
	LatencyMS   int64   `json:"latency_ms"`
	TotalTokens int     `json:"total_tokens,omitempty"`
	Cost        float64 `json:"cost_usd,omitempty"`
}

type jsonRound struct {
	Round     int            `json:"round"`
	Responses []jsonResponse `json:"responses"`
}

type jsonExport struct {
	Title      string         `json:"title,omitempty"`
	ExportedAt string         `json:"exported_at"`
	SessionID  string         `json:"session_id"`
	DurationMS int64          `json:"duration_ms"`
	Rounds     []jsonRound    `json:"rounds"`
	Synthesis  *jsonResponse  `json:"synthesis,omitempty"`
	Summary    *exportSummary `json:"summary,omitempty"`
}

type exportSummary struct {
	TotalRounds int     `json:"total_rounds"`
	TotalElders int     `json:"total_elders"`
	TotalTokens int     `json:"total_tokens"`
	TotalCost   float64 `json:"total_cost"`
}

func toJSONResponse(r council.ModelResponse, labels map[string]string) jsonResponse {
	jr := jsonResponse{
		Elder:       labels[r.Model.ID],
		Status:      string(r.Status),
		Content:     r.Content,
		LatencyMS:   r.Latency.Milliseconds(),
		TotalTokens: r.TotalTokens,
		Cost:        r.Cost,
	}
	if r.Err != nil {
		jr.Error = r.Err.Error()
	}
	return jr
}

func (e *Exporter) exportJSON(session council.ConsensusResponse, writer io.Writer) error {
	labels := elderLabels(session)

	out := jsonExport{
		Title:      e.options.Title,
		ExportedAt: time.Now().Format(time.RFC3339),
		SessionID:  session.Meta.SessionID.String(),
		DurationMS: session.Meta.Duration.Milliseconds(),
	}

	for _, round := range session.Rounds {
		jr := jsonRound{Round: round.Round}
		for _, resp := range round.Responses {
			jr.Responses = append(jr.Responses, toJSONResponse(resp, labels))
		}
		out.Rounds = append(out.Rounds, jr)
	}

	if session.Synthesis != nil {
		s := toJSONResponse(*session.Synthesis, labels)
		out.Synthesis = &s
	}

	if e.options.IncludeMetrics {
		out.Summary = calculateSummary(session, labels)
	}

	encoder := json.NewEncoder(writer)
	encoder.SetIndent("", "  ")
	return encoder.Encode(out)
}

func calculateSummary(session council.ConsensusResponse, labels map[string]string) *exportSummary {
	summary := &exportSummary{TotalRounds: len(session.Rounds), TotalElders: len(labels)}
	for _, round := range session.Rounds {
		for _, resp := range round.Responses {
			summary.TotalTokens += resp.TotalTokens
			summary.TotalCost += resp.Cost
		}
	}
	if session.Synthesis != nil {
		summary.TotalTokens += session.Synthesis.TotalTokens
		summary.TotalCost += session.Synthesis.Cost
	}
	return summary
}

func (e *Exporter) exportMarkdown(session council.ConsensusResponse, writer io.Writer) error {
	labels := elderLabels(session)
	var sb strings.Builder

	if e.options.Title != "" {
		fmt.Fprintf(&sb, "# %s\n\n", e.options.Title)
	}
	fmt.Fprintf(&sb, "*Exported: %s*\n\n", time.Now().Format("2006-01-02 15:04:05"))

	if e.options.IncludeMetrics {
		summary := calculateSummary(session, labels)
		sb.WriteString("## Summary\n\n")
		fmt.Fprintf(&sb, "- **Rounds**: %d\n", summary.TotalRounds)
		fmt.Fprintf(&sb, "- **Elders**: %d\n", summary.TotalElders)
		fmt.Fprintf(&sb, "- **Total Tokens**: %d\n", summary.TotalTokens)
		fmt.Fprintf(&sb, "- **Total Cost**: $%.4f\n", summary.TotalCost)
		sb.WriteString("\n---\n\n")
	}

	for _, round := range session.Rounds {
		fmt.Fprintf(&sb, "## Round %d\n\n", round.Round)
		for _, resp := range round.Responses {
			writeMarkdownResponse(&sb, resp, labels, e.options.IncludeMetrics)
		}
	}

	if session.Synthesis != nil {
		sb.WriteString("## Synthesis\n\n")
		writeMarkdownResponse(&sb, *session.Synthesis, labels, e.options.IncludeMetrics)
	}

	_, err := writer.Write([]byte(sb.String()))
	return err
}

func writeMarkdownResponse(sb *strings.Builder, r council.ModelResponse, labels map[string]string, includeMetrics bool) {
	fmt.Fprintf(sb, "### %s\n\n", labels[r.Model.ID])

	switch r.Status {
	case council.StatusOK:
		sb.WriteString(r.Content)
		sb.WriteString("\n\n")
	case council.StatusDropped:
		sb.WriteString("*dropped*\n\n")
	default:
		fmt.Fprintf(sb, "*error: %s*\n\n", errMsg(r))
	}

	if includeMetrics && r.Status == council.StatusOK {
		fmt.Fprintf(sb, "*Latency: %v | Tokens: %d | Cost: $%.4f*\n\n", r.Latency, r.TotalTokens, r.Cost)
	}

	sb.WriteString("---\n\n")
}

func errMsg(r council.ModelResponse) string {
	if r.Err == nil {
		return "unknown error"
	}
	return r.Err.Error()
}

func (e *Exporter) exportText(session council.ConsensusResponse, writer io.Writer) error {
	labels := elderLabels(session)
	var sb strings.Builder

	if e.options.Title != "" {
		fmt.Fprintf(&sb, "%s\n%s\n\n", e.options.Title, strings.Repeat("=", len(e.options.Title)))
	}

	for _, round := range session.Rounds {
		fmt.Fprintf(&sb, "Round %d\n", round.Round)
		for _, resp := range round.Responses {
			fmt.Fprintf(&sb, "  %s [%s]\n", labels[resp.Model.ID], resp.Status)
			if resp.Status == council.StatusOK {
				for _, line := range strings.Split(resp.Content, "\n") {
					fmt.Fprintf(&sb, "    %s\n", line)
				}
			}
		}
		sb.WriteString("\n")
	}

	if session.Synthesis != nil {
		sb.WriteString("Synthesis\n")
		for _, line := range strings.Split(session.Synthesis.Content, "\n") {
			fmt.Fprintf(&sb, "  %s\n", line)
		}
	}

	if e.options.IncludeMetrics {
		summary := calculateSummary(session, labels)
		fmt.Fprintf(&sb, "\nTokens: %d  Cost: $%.4f\n", summary.TotalTokens, summary.TotalCost)
	}

	_, err := writer.Write([]byte(sb.String()))
	return err
}
