package mcp

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	mcplib "github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/hurttlocker/rescuelog/internal/observe"
	"github.com/hurttlocker/rescuelog/internal/record"
	"github.com/hurttlocker/rescuelog/internal/search"
	"github.com/hurttlocker/rescuelog/internal/store"
)

// helper: create a test store with a small extraction run
func setupTestStore(t *testing.T) store.Store {
	t.Helper()
	s, err := store.NewStore(store.StoreConfig{DBPath: ":memory:"})
	if err != nil {
		t.Fatalf("creating test store: %v", err)
	}

	recs := []record.Record{
		{ID: 1, User: "U1", StartTS: "2024-03-01T10:00:00Z", EndTS: "2024-03-01T10:00:00Z",
			Direction: record.DirectionInbound, RescueLocation: "Aldi WP",
			Items:       []record.Item{{Name: "bananas", Quantity: record.Float(5), EstimatedLbs: record.Float(75)}},
			RawMessages: []string{"Picked up from Aldi WP: 5 cases bananas"}},
		{ID: 2, User: "U2", StartTS: "2024-03-02T10:00:00Z", EndTS: "2024-03-02T10:00:00Z",
			Direction: record.DirectionOutbound, DropOffLocation: "NA4J",
			Items:       []record.Item{{Name: "milk", Quantity: record.Float(2), EstimatedLbs: record.Float(50)}},
			RawMessages: []string{"Dropped 2 crates milk at NA4J"}},
	}
	if err := s.ReplaceRecords(context.Background(), recs); err != nil {
		t.Fatalf("seeding records: %v", err)
	}
	return s
}

func TestNewServer(t *testing.T) {
	s := setupTestStore(t)
	defer s.Close()

	srv := NewServer(ServerConfig{Store: s})
	if srv == nil {
		t.Fatal("NewServer returned nil")
	}
}

// callTool invokes an MCP tool through the JSON-RPC entry point.
func callTool(t *testing.T, srv *server.MCPServer, name string, args map[string]interface{}) *mcplib.CallToolResult {
	t.Helper()

	result := srv.HandleMessage(context.Background(), mustMarshal(t, map[string]interface{}{
		"jsonrpc": "2.0",
		"id":      1,
		"method":  "tools/call",
		"params": map[string]interface{}{
			"name":      name,
			"arguments": args,
		},
	}))

	respBytes, err := json.Marshal(result)
	if err != nil {
		t.Fatalf("marshal response: %v", err)
	}

	var resp struct {
		Result struct {
			Content []struct {
				Type string `json:"type"`
				Text string `json:"text"`
			} `json:"content"`
			IsError bool `json:"isError"`
		} `json:"result"`
		Error *struct {
			Code    int    `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(respBytes, &resp); err != nil {
		t.Fatalf("unmarshal response: %v\nraw: %s", err, string(respBytes))
	}
	if resp.Error != nil {
		t.Fatalf("JSON-RPC error: %d %s", resp.Error.Code, resp.Error.Message)
	}

	callResult := &mcplib.CallToolResult{IsError: resp.Result.IsError}
	for _, c := range resp.Result.Content {
		if c.Type == "text" {
			callResult.Content = append(callResult.Content, mcplib.NewTextContent(c.Text))
		}
	}
	return callResult
}

func mustMarshal(t *testing.T, v interface{}) json.RawMessage {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return data
}

func getTextContent(t *testing.T, result *mcplib.CallToolResult) string {
	t.Helper()
	if len(result.Content) == 0 {
		t.Fatal("no content in result")
	}
	for _, c := range result.Content {
		if tc, ok := c.(mcplib.TextContent); ok {
			return tc.Text
		}
	}
	t.Fatal("no text content found")
	return ""
}

func TestExtractTool(t *testing.T) {
	srv := NewServer(ServerConfig{})

	result := callTool(t, srv, "rescue_extract", map[string]interface{}{
		"text":   "Picked up 5 cases bananas and 3 boxes lettuce from Aldi Wicker Park",
		"author": "U1",
	})
	if result.IsError {
		t.Fatalf("unexpected error: %s", getTextContent(t, result))
	}

	var rec search.Record
	if err := json.Unmarshal([]byte(getTextContent(t, result)), &rec); err != nil {
		t.Fatalf("parsing record: %v", err)
	}
	if rec.User != "U1" || rec.Direction != record.DirectionInbound {
		t.Errorf("unexpected record: %+v", rec)
	}
	if rec.RescueLocationCanonical != "Aldi Wicker Park" {
		t.Errorf("canonical = %q", rec.RescueLocationCanonical)
	}
	if len(rec.Items) != 2 {
		t.Errorf("expected 2 items, got %+v", rec.Items)
	}
}

func TestExtractToolEmptyText(t *testing.T) {
	srv := NewServer(ServerConfig{})
	result := callTool(t, srv, "rescue_extract", map[string]interface{}{"text": "   "})
	if !result.IsError {
		t.Fatal("expected error for blank text")
	}
}

func TestCanonicalizeTool(t *testing.T) {
	srv := NewServer(ServerConfig{})

	result := callTool(t, srv, "rescue_canonicalize", map[string]interface{}{"location": "marianos sl"})
	var out map[string]string
	if err := json.Unmarshal([]byte(getTextContent(t, result)), &out); err != nil {
		t.Fatalf("parsing result: %v", err)
	}
	if out["canonical"] != "Mariano's South Loop" {
		t.Errorf("canonical = %q", out["canonical"])
	}
}

func TestStoreToolsNeedStore(t *testing.T) {
	srv := NewServer(ServerConfig{})
	raw := srv.HandleMessage(context.Background(), mustMarshal(t, map[string]interface{}{
		"jsonrpc": "2.0",
		"id":      1,
		"method":  "tools/list",
	}))
	data, err := json.Marshal(raw)
	if err != nil {
		t.Fatalf("marshal response: %v", err)
	}
	var resp struct {
		Result struct {
			Tools []struct {
				Name string `json:"name"`
			} `json:"tools"`
		} `json:"result"`
	}
	if err := json.Unmarshal(data, &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	var names []string
	for _, tool := range resp.Result.Tools {
		names = append(names, tool.Name)
	}
	if len(names) != 2 {
		t.Errorf("expected only the stateless tools, got %v", names)
	}
}

func TestSearchTool(t *testing.T) {
	s := setupTestStore(t)
	defer s.Close()
	srv := NewServer(ServerConfig{Store: s})

	result := callTool(t, srv, "rescue_search", map[string]interface{}{
		"query": "milk",
		"limit": float64(500),
	})
	var resp search.SearchResponse
	if err := json.Unmarshal([]byte(getTextContent(t, result)), &resp); err != nil {
		t.Fatalf("parsing search results: %v", err)
	}
	if resp.Total != 1 || resp.Results[0].ID != 2 {
		t.Errorf("unexpected results: %+v", resp)
	}

	result = callTool(t, srv, "rescue_search", map[string]interface{}{"query": "  "})
	if !result.IsError {
		t.Error("expected error for blank query")
	}
}

func TestGetTool(t *testing.T) {
	s := setupTestStore(t)
	defer s.Close()
	srv := NewServer(ServerConfig{Store: s})

	result := callTool(t, srv, "rescue_get", map[string]interface{}{"id": float64(1)})
	var rec search.Record
	if err := json.Unmarshal([]byte(getTextContent(t, result)), &rec); err != nil {
		t.Fatalf("parsing record: %v", err)
	}
	if rec.RescueLocationCanonical != "Aldi Wicker Park" {
		t.Errorf("canonical = %q", rec.RescueLocationCanonical)
	}

	result = callTool(t, srv, "rescue_get", map[string]interface{}{"id": float64(42)})
	if !result.IsError || !strings.Contains(getTextContent(t, result), "not found") {
		t.Errorf("expected not found error")
	}
}

func TestStatsTool(t *testing.T) {
	s := setupTestStore(t)
	defer s.Close()
	srv := NewServer(ServerConfig{Store: s})

	result := callTool(t, srv, "rescue_stats", map[string]interface{}{})
	var stats observe.Summary
	if err := json.Unmarshal([]byte(getTextContent(t, result)), &stats); err != nil {
		t.Fatalf("parsing stats: %v", err)
	}
	if stats.Records != 2 || stats.TotalEstimatedLbs != 125 {
		t.Errorf("unexpected stats: %+v", stats)
	}
}

func TestStatsResource(t *testing.T) {
	s := setupTestStore(t)
	defer s.Close()
	srv := NewServer(ServerConfig{Store: s})

	raw := srv.HandleMessage(context.Background(), mustMarshal(t, map[string]interface{}{
		"jsonrpc": "2.0",
		"id":      2,
		"method":  "resources/read",
		"params":  map[string]interface{}{"uri": "rescuelog://stats"},
	}))
	data, err := json.Marshal(raw)
	if err != nil {
		t.Fatalf("marshal response: %v", err)
	}
	var resp struct {
		Result struct {
			Contents []struct {
				URI  string `json:"uri"`
				Text string `json:"text"`
			} `json:"contents"`
		} `json:"result"`
	}
	if err := json.Unmarshal(data, &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(resp.Result.Contents) != 1 || !strings.Contains(resp.Result.Contents[0].Text, `"records": 2`) {
		t.Errorf("unexpected resource contents: %s", data)
	}
}
