// Package mcpserver provides an MCP (Model Context Protocol) server
// that exposes autolink tools for LLM integration via stdio transport.
package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/starford/autolink/internal/apperr"
	"github.com/starford/autolink/internal/linkservice"
)

const aliasFormatURI = "autolink://alias-format"

// Server wraps the MCP server with autolink tools.
type Server struct {
	mcp *server.MCPServer
	svc *linkservice.Service
}

// New creates a new MCP server with all autolink tools registered.
func New(svc *linkservice.Service, version string) *Server {
	s := &Server{svc: svc}

	s.mcp = server.NewMCPServer(
		"autolink",
		version,
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("sync_vault",
		mcp.WithDescription("Resolve the vault and store the references found. "+
			"Returns the run summary; an unchanged vault is not resolved again unless force is set."),
		mcp.WithBoolean("force", mcp.Description("Resolve even if no note changed")),
	), s.syncVault)

	s.mcp.AddTool(mcp.NewTool("list_references",
		mcp.WithDescription("List the mentions of note titles and aliases found by the latest run."),
		mcp.WithString("source", mcp.Description("Only mentions found in this note (e.g. folder/note.md)")),
		mcp.WithString("target", mcp.Description("Only mentions of this note")),
	), s.listReferences)

	s.mcp.AddTool(mcp.NewTool("get_backlinks",
		mcp.WithDescription("Find every mention of the specified note in other notes."),
		mcp.WithString("path", mcp.Required(), mcp.Description("Path of the note to find mentions of")),
	), s.getBacklinks)

	s.mcp.AddTool(mcp.NewTool("list_failures",
		mcp.WithDescription("List notes the latest run could not parse, with the reason."),
	), s.listFailures)

	s.mcp.AddTool(mcp.NewTool("resolve_text",
		mcp.WithDescription("Find which notes a Markdown draft mentions, as if it were saved at path. "+
			"Nothing is written. Read the alias format via the get_alias_format tool or the "+
			aliasFormatURI+" resource."),
		mcp.WithString("path", mcp.Required(), mcp.Description("Vault path the draft would be saved at (must end with .md)")),
		mcp.WithString("content", mcp.Required(), mcp.Description("Markdown content of the draft")),
	), s.resolveText)

	s.mcp.AddTool(mcp.NewTool("apply_links",
		mcp.WithDescription("Insert [[wiki links]] for the mentions found in a note."),
		mcp.WithString("path", mcp.Required(), mcp.Description("Path of the note to rewrite")),
		mcp.WithBoolean("dry_run", mcp.Description("Return the new content without writing it")),
		mcp.WithArray("starts",
			mcp.Description("Start offsets of the mentions to link, as listed by list_references; all when omitted"),
			mcp.Items(map[string]any{"type": "integer"})),
	), s.applyLinks)

	s.mcp.AddTool(mcp.NewTool("get_alias_format",
		mcp.WithDescription("Returns how notes declare titles and aliases and how mentions are matched."),
	), s.getAliasFormat)

	s.mcp.AddResource(
		mcp.NewResource(aliasFormatURI, "Alias Format",
			mcp.WithResourceDescription("How notes declare titles and aliases and how mentions are matched."),
			mcp.WithMIMEType("text/markdown"),
		),
		s.readAliasFormatResource,
	)

	return s
}

// ServeStdio starts the MCP server on stdin/stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcp)
}

// MCPServer returns the underlying server for testing.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcp
}

func jsonResult(v any) *mcp.CallToolResult {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(err.Error())
	}
	return mcp.NewToolResultText(string(out))
}

func errorResult(err error) *mcp.CallToolResult {
	if errors.Is(err, apperr.ErrNotFound) {
		return mcp.NewToolResultError("not found")
	}
	return mcp.NewToolResultError(err.Error())
}

func (s *Server) syncVault(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	run, changed, err := s.svc.Sync(ctx, req.GetBool("force", false))
	if err != nil {
		return errorResult(err), nil
	}
	return jsonResult(map[string]any{"run": run, "changed": changed}), nil
}

func (s *Server) listReferences(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	refs, err := s.svc.References(ctx, req.GetString("source", ""), req.GetString("target", ""))
	if err != nil {
		return errorResult(err), nil
	}
	return jsonResult(refs), nil
}

func (s *Server) getBacklinks(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := req.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	bl, err := s.svc.Backlinks(ctx, path)
	if err != nil {
		return errorResult(err), nil
	}
	if len(bl.References) == 0 {
		return mcp.NewToolResultText("no backlinks found"), nil
	}
	lines := make([]string, len(bl.References))
	for i, r := range bl.References {
		lines[i] = fmt.Sprintf("%s:%d %q", r.Source, r.Start, r.MatchedText)
	}
	return mcp.NewToolResultText(strings.Join(lines, "\n")), nil
}

func (s *Server) listFailures(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	fs, err := s.svc.Failures(ctx)
	if err != nil {
		return errorResult(err), nil
	}
	return jsonResult(fs), nil
}

func (s *Server) resolveText(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := req.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	content, err := req.RequireString("content")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if !strings.HasSuffix(path, ".md") {
		return mcp.NewToolResultError("path must end with .md"), nil
	}
	refs, err := s.svc.ResolveDraft(ctx, path, []byte(content))
	if err != nil {
		return errorResult(err), nil
	}
	return jsonResult(refs), nil
}

func (s *Server) applyLinks(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := req.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	starts, err := intList(req.GetArguments()["starts"])
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	dryRun := req.GetBool("dry_run", false)

	var res *linkservice.ApplyResult
	if starts != nil {
		res, err = s.svc.ApplySelected(ctx, path, dryRun, starts)
	} else {
		res, err = s.svc.Apply(ctx, path, dryRun)
	}
	if err != nil {
		return errorResult(err), nil
	}
	return jsonResult(res), nil
}

// intList reads a JSON array of integers. A missing argument yields nil.
func intList(v any) ([]int, error) {
	if v == nil {
		return nil, nil
	}
	items, ok := v.([]any)
	if !ok {
		return nil, fmt.Errorf("starts must be an array of integers")
	}
	out := make([]int, 0, len(items))
	for _, it := range items {
		switch n := it.(type) {
		case float64:
			if n != float64(int(n)) {
				return nil, fmt.Errorf("starts: %v is not an integer", n)
			}
			out = append(out, int(n))
		case int:
			out = append(out, n)
		default:
			return nil, fmt.Errorf("starts: %v is not an integer", it)
		}
	}
	return out, nil
}

func (s *Server) getAliasFormat(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultText(AliasFormatContract), nil
}

func (s *Server) readAliasFormatResource(_ context.Context, _ mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      aliasFormatURI,
			MIMEType: "text/markdown",
			Text:     AliasFormatContract,
		},
	}, nil
}
