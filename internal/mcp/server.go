// Package mcp provides a Model Context Protocol server for rescuelog.
//
// It exposes extraction, site canonicalization, record search and run
// statistics as MCP tools, and the statistics as an MCP resource. Served
// over stdio by `rescuelog mcp`.
package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/hurttlocker/rescuelog/internal/extract"
	"github.com/hurttlocker/rescuelog/internal/observe"
	"github.com/hurttlocker/rescuelog/internal/search"
	"github.com/hurttlocker/rescuelog/internal/store"
)

// ServerConfig holds configuration for the MCP server.
type ServerConfig struct {
	Store    store.Store
	Engine   *search.Engine
	Pipeline *extract.Pipeline
	Version  string // version string for MCP server info
}

// dbMu serializes tool calls that touch the database. mcp-go dispatches
// handlers concurrently.
var dbMu sync.Mutex

// maxSearchResults caps rescue_search.
const maxSearchResults = 50

// NewServer creates a configured MCP server with all rescuelog tools and resources.
func NewServer(cfg ServerConfig) *server.MCPServer {
	ver := cfg.Version
	if ver == "" {
		ver = "dev"
	}

	s := server.NewMCPServer(
		"rescuelog",
		ver,
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(true, false),
	)

	engine := cfg.Engine
	if engine == nil {
		engine = search.NewEngine(cfg.Store, nil, nil)
	}
	pipeline := cfg.Pipeline
	if pipeline == nil {
		pipeline = extract.NewPipeline(nil)
	}

	registerExtractTool(s, pipeline, engine)
	registerCanonicalizeTool(s, engine)
	if cfg.Store != nil {
		observeEngine := observe.NewEngine(cfg.Store)
		registerSearchTool(s, engine)
		registerGetTool(s, engine)
		registerStatsTool(s, observeEngine)
		registerStatsResource(s, observeEngine)
	}

	return s
}

// --- Tools ---

func registerExtractTool(s *server.MCPServer, p *extract.Pipeline, engine *search.Engine) {
	tool := mcp.NewTool("rescue_extract",
		mcp.WithDescription("Extract a food rescue record from one chat message: direction, rescue and drop-off sites, items with quantities, units and estimated pounds."),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithString("text",
			mcp.Required(),
			mcp.Description("Message text, e.g. 'Picked up 5 cases bananas from Aldi WP'"),
		),
		mcp.WithString("author",
			mcp.Description("Message author recorded on the result"),
		),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		text, err := req.RequireString("text")
		if err != nil || strings.TrimSpace(text) == "" {
			return mcp.NewToolResultError("text is required"), nil
		}
		author := ""
		if a, err := req.RequireString("author"); err == nil {
			author = a
		}

		rec := engine.Annotate(p.ExtractText(author, text))
		data, _ := json.MarshalIndent(rec, "", "  ")
		return mcp.NewToolResultText(string(data)), nil
	})
}

func registerCanonicalizeTool(s *server.MCPServer, engine *search.Engine) {
	tool := mcp.NewTool("rescue_canonicalize",
		mcp.WithDescription("Resolve a site name or alias (e.g. 'aldi wp') to its canonical site name."),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithString("location",
			mcp.Required(),
			mcp.Description("Raw location text"),
		),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		loc, err := req.RequireString("location")
		if err != nil {
			return mcp.NewToolResultError("location is required"), nil
		}
		out := map[string]string{
			"location":  loc,
			"canonical": engine.Canonicalize(loc),
		}
		data, _ := json.MarshalIndent(out, "", "  ")
		return mcp.NewToolResultText(string(data)), nil
	})
}

func registerSearchTool(s *server.MCPServer, engine *search.Engine) {
	tool := mcp.NewTool("rescue_search",
		mcp.WithDescription("Search extracted rescue records. Every term must appear in one field (messages, locations, items or sections). Newest first."),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithString("query",
			mcp.Required(),
			mcp.Description("Search terms"),
		),
		mcp.WithNumber("limit",
			mcp.Description("Maximum number of results (default: 10, max: 50)"),
		),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		dbMu.Lock()
		defer dbMu.Unlock()

		query, err := req.RequireString("query")
		if err != nil {
			return mcp.NewToolResultError("query is required"), nil
		}

		limit := 10
		if v, err := req.RequireFloat("limit"); err == nil && v > 0 {
			limit = int(v)
		}
		if limit > maxSearchResults {
			limit = maxSearchResults
		}

		resp, err := engine.Search(ctx, query, limit)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("search error: %v", err)), nil
		}
		data, _ := json.MarshalIndent(resp, "", "  ")
		return mcp.NewToolResultText(string(data)), nil
	})
}

func registerGetTool(s *server.MCPServer, engine *search.Engine) {
	tool := mcp.NewTool("rescue_get",
		mcp.WithDescription("Fetch one extracted record by id, or its audited correction."),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithNumber("id",
			mcp.Required(),
			mcp.Description("Record id"),
		),
		mcp.WithBoolean("audited",
			mcp.Description("Return the audited correction instead (default: false)"),
		),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		dbMu.Lock()
		defer dbMu.Unlock()

		id, err := req.RequireFloat("id")
		if err != nil || id <= 0 {
			return mcp.NewToolResultError("id must be a positive number"), nil
		}
		audited, _ := req.RequireBool("audited")
		page, err := engine.Get(ctx, int(id), search.ListOptions{Audited: audited})
		if errors.Is(err, store.ErrNotFound) {
			return mcp.NewToolResultError(fmt.Sprintf("record %d not found", int(id))), nil
		}
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("get error: %v", err)), nil
		}
		data, _ := json.MarshalIndent(page.Records[0], "", "  ")
		return mcp.NewToolResultText(string(data)), nil
	})
}

func registerStatsTool(s *server.MCPServer, engine *observe.Engine) {
	tool := mcp.NewTool("rescue_stats",
		mcp.WithDescription("Summarize the stored extraction run: record count, direction mix, top sites and items, estimated pounds, audited corrections."),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithDestructiveHintAnnotation(false),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		dbMu.Lock()
		defer dbMu.Unlock()

		stats, err := engine.GetStats(ctx)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("stats error: %v", err)), nil
		}
		data, _ := json.MarshalIndent(stats, "", "  ")
		return mcp.NewToolResultText(string(data)), nil
	})
}

// --- Resources ---

func registerStatsResource(s *server.MCPServer, engine *observe.Engine) {
	resource := mcp.NewResource(
		"rescuelog://stats",
		"Rescue Statistics",
		mcp.WithResourceDescription("Summary of the stored extraction run."),
		mcp.WithMIMEType("application/json"),
	)

	s.AddResource(resource, func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		dbMu.Lock()
		defer dbMu.Unlock()

		stats, err := engine.GetStats(ctx)
		if err != nil {
			return nil, fmt.Errorf("getting stats: %w", err)
		}
		data, _ := json.MarshalIndent(stats, "", "  ")
		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      req.Params.URI,
				MIMEType: "application/json",
				Text:     string(data),
			},
		}, nil
	})
}
