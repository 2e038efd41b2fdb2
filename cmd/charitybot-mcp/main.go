package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/use-agent/charitybot/models"
	"github.com/use-agent/charitybot/results"
)

func main() {
	apiURL := os.Getenv("CHARITYBOT_API_URL")
	if apiURL == "" {
		apiURL = "http://127.0.0.1:8080"
	}
	apiKey := os.Getenv("CHARITYBOT_API_KEY")

	c := &apiClient{
		baseURL: strings.TrimRight(apiURL, "/"),
		key:     apiKey,
		http:    &http.Client{Timeout: 30 * time.Second},
		poll:    2 * time.Second,
	}

	s := server.NewMCPServer(
		"charitybot",
		"1.0.0",
		server.WithToolCapabilities(false),
	)

	s.AddTool(mcp.NewTool("scrape_charities",
		mcp.WithDescription("Look up Australian charities on the ACNC register by ABN and return their latest Annual Information Statement: year, due and received dates, document links and reported financials."),
		mcp.WithArray("abns",
			mcp.Required(),
			mcp.Description("ABNs to look up, 11 digits each"),
		),
		mcp.WithNumber("workers",
			mcp.Description("Parallel browser sessions (default: server setting, max 64)"),
		),
	), handleScrapeCharities(c))

	s.AddTool(mcp.NewTool("get_charity",
		mcp.WithDescription("Return the most recently extracted record for one ABN without starting a new lookup."),
		mcp.WithString("abn",
			mcp.Required(),
			mcp.Description("The charity's ABN"),
		),
	), handleGetCharity(c))

	if err := server.ServeStdio(s); err != nil {
		fmt.Fprintf(os.Stderr, "server error: %v\n", err)
		os.Exit(1)
	}
}

// apiClient talks to a running charitybot API.
type apiClient struct {
	baseURL string
	key     string
	http    *http.Client
	poll    time.Duration
}

// do sends a request and decodes a 2xx JSON body into out. Error bodies are
// surfaced as "[CODE] message".
func (c *apiClient) do(ctx context.Context, method, path string, payload, out any) error {
	var body io.Reader
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.key != "" {
		req.Header.Set("X-API-Key", c.key)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("API request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode >= 300 {
		var e models.ErrorResponse
		if json.Unmarshal(data, &e) == nil && e.Error != nil {
			return fmt.Errorf("[%s] %s", e.Error.Code, e.Error.Message)
		}
		return fmt.Errorf("API returned status %d", resp.StatusCode)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("parse response: %w", err)
	}
	return nil
}

// waitForRun polls the run until it leaves "processing".
func (c *apiClient) waitForRun(ctx context.Context, id string) (*models.RunStatusResponse, error) {
	ticker := time.NewTicker(c.poll)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
			var status models.RunStatusResponse
			if err := c.do(ctx, http.MethodGet, "/api/v1/runs/"+id, nil, &status); err != nil {
				return nil, err
			}
			if status.Status != models.RunProcessing {
				return &status, nil
			}
		}
	}
}

func handleScrapeCharities(c *apiClient) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		abns, err := request.RequireStringSlice("abns")
		if err != nil {
			return mcp.NewToolResultError("abns is required and must be an array of strings"), nil
		}

		payload := models.RunRequest{
			ABNs:    abns,
			Workers: int(request.GetFloat("workers", 0)),
		}
		var started models.RunResponse
		if err := c.do(ctx, http.MethodPost, "/api/v1/runs", payload, &started); err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("run request failed: %v", err)), nil
		}

		status, err := c.waitForRun(ctx, started.ID)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("polling run %s failed: %v", started.ID, err)), nil
		}

		var sb strings.Builder
		fmt.Fprintf(&sb, "Run %s: %s (%d/%d records)\n", status.ID, status.Status, status.Completed, status.Total)
		if status.Error != nil {
			fmt.Fprintf(&sb, "Error: [%s] %s\n", status.Error.Code, status.Error.Message)
		}
		if len(status.Missing) > 0 {
			fmt.Fprintf(&sb, "No record for: %s\n", strings.Join(status.Missing, ", "))
		}
		for _, rec := range status.Records {
			sb.WriteString("\n")
			writeRecord(&sb, rec)
		}
		return mcp.NewToolResultText(sb.String()), nil
	}
}

func handleGetCharity(c *apiClient) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		abn, err := request.RequireString("abn")
		if err != nil {
			return mcp.NewToolResultError("abn is required"), nil
		}

		var resp models.RecordResponse
		if err := c.do(ctx, http.MethodGet, "/api/v1/records/"+abn, nil, &resp); err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		var sb strings.Builder
		writeRecord(&sb, resp.Record)
		fmt.Fprintf(&sb, "\n(extracted %s)", time.Unix(resp.CachedAt, 0).UTC().Format(time.RFC3339))
		return mcp.NewToolResultText(sb.String()), nil
	}
}

// writeRecord renders the non-empty columns of rec, one per line.
func writeRecord(sb *strings.Builder, rec models.CharityRecord) {
	cols := results.Columns()
	for i, v := range results.Row(rec) {
		if v == "" {
			continue
		}
		fmt.Fprintf(sb, "%s: %s\n", cols[i], v)
	}
}
