package api

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/northstar-labs/northstar/internal/graph"
)

// MCPDeps holds dependencies for the MCP server.
type MCPDeps struct {
	Graph     *graph.Service
	Extractor ObjectiveExtractor
	Searcher  ObjectiveSearcher // nil disables the semantic_search tool
}

// NewMCPServer creates an MCP server exposing the objective graph as tools
// and resources.
func NewMCPServer(deps MCPDeps) *server.MCPServer {
	s := server.NewMCPServer(
		"northstar",
		"1.0.0",
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(false, true),
		server.WithInstructions("northstar — strategic objective knowledge graph built from free-form text."),
		server.WithRecovery(),
	)

	s.AddTool(
		mcp.NewTool("ingest_text",
			mcp.WithDescription("Extract objectives and relationships from text and persist them into the knowledge graph."),
			mcp.WithString("content", mcp.Description("The text to analyze"), mcp.Required()),
			mcp.WithString("title", mcp.Description("Optional title for the ingestion event")),
		),
		mcpIngestText(deps),
	)

	s.AddTool(
		mcp.NewTool("search_objectives",
			mcp.WithDescription("Search stored objectives by text content or tag."),
			mcp.WithString("query", mcp.Description("Search query; matches text case-insensitively or a tag exactly")),
			mcp.WithNumber("limit", mcp.Description("Maximum number of results (default 20)")),
		),
		mcpSearchObjectives(deps),
	)

	if deps.Searcher != nil {
		s.AddTool(
			mcp.NewTool("semantic_search",
				mcp.WithDescription("Find stored objectives by meaning using embedding similarity."),
				mcp.WithString("query", mcp.Description("Natural-language query"), mcp.Required()),
				mcp.WithNumber("limit", mcp.Description("Maximum number of results (default 10)")),
			),
			mcpSemanticSearch(deps),
		)
	}

	s.AddTool(
		mcp.NewTool("link_objectives",
			mcp.WithDescription("Create or update a typed relationship between two stored objectives."),
			mcp.WithString("source", mcp.Description("Source objective id"), mcp.Required()),
			mcp.WithString("target", mcp.Description("Target objective id"), mcp.Required()),
			mcp.WithString("type", mcp.Description("One of: supports, depends_on, relates_to, blocks, informs"), mcp.Required()),
			mcp.WithString("rationale", mcp.Description("Why this relationship holds")),
			mcp.WithNumber("weight", mcp.Description("Strength of the relationship from 0 to 1")),
		),
		mcpLinkObjectives(deps),
	)

	s.AddResource(
		mcp.NewResource(
			"graph://snapshot",
			"Objective Graph Snapshot",
			mcp.WithResourceDescription("The full current objective graph as JSON"),
			mcp.WithMIMEType("application/json"),
		),
		mcpResourceSnapshot(deps),
	)

	return s
}

func mcpIngestText(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		content, err := req.RequireString("content")
		if err != nil {
			return mcpError("content is required"), nil
		}
		title := req.GetString("title", "")

		extraction := deps.Extractor.Extract(ctx, content, title)
		result, err := deps.Graph.Ingest(content, title, extraction)
		if err != nil {
			return mcpError(fmt.Sprintf("ingest failed: %v", err)), nil
		}

		b, err := json.Marshal(result)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal result: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpSearchObjectives(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		query := req.GetString("query", "")
		limit := req.GetInt("limit", 20)
		if limit <= 0 {
			limit = 20
		}
		if limit > 100 {
			limit = 100
		}

		objectives, err := deps.Graph.ListObjectives(limit, 0, query)
		if err != nil {
			return mcpError(fmt.Sprintf("search failed: %v", err)), nil
		}

		b, err := json.Marshal(objectives)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal objectives: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpSemanticSearch(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		query, err := req.RequireString("query")
		if err != nil {
			return mcpError("query is required"), nil
		}
		limit := req.GetInt("limit", 10)
		if limit <= 0 {
			limit = 10
		}
		if limit > 50 {
			limit = 50
		}

		hits, err := deps.Searcher.Search(ctx, query, limit)
		if err != nil {
			return mcpError(fmt.Sprintf("search failed: %v", err)), nil
		}

		b, err := json.Marshal(hits)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal hits: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpLinkObjectives(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		source, err := req.RequireString("source")
		if err != nil {
			return mcpError("source is required"), nil
		}
		target, err := req.RequireString("target")
		if err != nil {
			return mcpError("target is required"), nil
		}
		relType, err := req.RequireString("type")
		if err != nil {
			return mcpError("type is required"), nil
		}
		rationale := req.GetString("rationale", "")

		var weight *float64
		if w := req.GetFloat("weight", -1); w >= 0 {
			weight = &w
		}

		rel, err := deps.Graph.CreateRelationship(source, target, relType, rationale, weight)
		if err != nil {
			return mcpError(fmt.Sprintf("link failed: %v", err)), nil
		}

		b, err := json.Marshal(rel)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal relationship: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpResourceSnapshot(deps MCPDeps) server.ResourceHandlerFunc {
	return func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		snapshot, err := deps.Graph.GraphSnapshot()
		if err != nil {
			return nil, fmt.Errorf("loading snapshot: %w", err)
		}
		b, err := json.Marshal(snapshot)
		if err != nil {
			return nil, fmt.Errorf("marshalling snapshot: %w", err)
		}
		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      req.Params.URI,
				MIMEType: "application/json",
				Text:     string(b),
			},
		}, nil
	}
}

func mcpText(text string) *mcp.CallToolResult {
	return mcp.NewToolResultText(text)
}

func mcpError(message string) *mcp.CallToolResult {
	return mcp.NewToolResultError(message)
}
