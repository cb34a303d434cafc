// Package mcpserver provides an MCP (Model Context Protocol) server
// that exposes Othala vault tools for LLM integration via stdio
// transport.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/starford/othala/internal/vaultservice"
)

// Server wraps the MCP server with Othala tools.
type Server struct {
	mcp *server.MCPServer
	svc *vaultservice.Service
}

// New creates a new MCP server with all Othala tools registered.
func New(svc *vaultservice.Service) *Server {
	s := &Server{svc: svc}

	s.mcp = server.NewMCPServer(
		"Othala",
		"1.0.0",
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("register_artifact",
		mcp.WithDescription("Register an artifact in the vault: compute its canonical checksum, "+
			"record it in the manifest, and link it into the lineage graph. "+
			"Vault ids should follow the vault://Domain/Resource/vX.Y scheme; read the "+
			"get_sidecar_contract tool or the othala://sidecar-format resource first."),
		mcp.WithString("vault_id", mcp.Required(), mcp.Description("Vault id (e.g. vault://Demo/Widget/v1.0)")),
		mcp.WithString("file_path", mcp.Required(), mcp.Description("Artifact file path relative to the vault root")),
		mcp.WithString("predecessor", mcp.Description("Vault id of the artifact this one derives from")),
	), s.registerArtifact)

	s.mcp.AddTool(mcp.NewTool("verify_artifact",
		mcp.WithDescription("Verify a registered artifact against its recorded checksum. "+
			"Returns every integrity issue found; a clean result means the file is unchanged."),
		mcp.WithString("vault_id", mcp.Required(), mcp.Description("Vault id to verify")),
	), s.verifyArtifact)

	s.mcp.AddTool(mcp.NewTool("trace_lineage",
		mcp.WithDescription("Trace the lineage chain of an artifact, backward to its root "+
			"or forward to its latest successor."),
		mcp.WithString("vault_id", mcp.Required(), mcp.Description("Vault id to trace from")),
		mcp.WithString("direction", mcp.Description("Trace direction: backward (default) or forward")),
	), s.traceLineage)

	s.mcp.AddTool(mcp.NewTool("lineage_report",
		mcp.WithDescription("Full lineage report: artifact count, root and leaf nodes, "+
			"fork points, complete chains, plus any cycles or broken links."),
	), s.lineageReport)

	s.mcp.AddTool(mcp.NewTool("check_drift",
		mcp.WithDescription("Reconcile the checksum copies of an artifact: compares the "+
			"frontmatter copy, the sidecar copy, and the freshly computed digest."),
		mcp.WithString("vault_id", mcp.Required(), mcp.Description("Vault id to check")),
	), s.checkDrift)

	s.mcp.AddTool(mcp.NewTool("get_sidecar_contract",
		mcp.WithDescription("Returns the canonical sidecar file format contract. "+
			"Call this before writing sidecar files for vault artifacts."),
	), s.getSidecarContract)

	// Resource: sidecar format contract.
	s.mcp.AddResource(
		mcp.NewResource("othala://sidecar-format", "Sidecar Format Contract",
			mcp.WithResourceDescription("Canonical sidecar file format that accompanies every vault artifact."),
			mcp.WithMIMEType("text/markdown"),
		),
		s.readSidecarFormatResource,
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

func (s *Server) registerArtifact(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	vaultID, err := req.RequireString("vault_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	filePath, err := req.RequireString("file_path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	predecessor := ""
	if p, err := req.RequireString("predecessor"); err == nil {
		predecessor = p
	}

	detail, err := s.svc.Register(ctx, vaultID, filePath, predecessor, nil)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	out, _ := json.MarshalIndent(detail, "", "  ")
	return mcp.NewToolResultText(string(out)), nil
}

func (s *Server) verifyArtifact(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	vaultID, err := req.RequireString("vault_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	res := s.svc.Verify(ctx, vaultID)
	out, _ := json.MarshalIndent(res, "", "  ")
	return mcp.NewToolResultText(string(out)), nil
}

func (s *Server) traceLineage(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	vaultID, err := req.RequireString("vault_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	direction := "backward"
	if d, err := req.RequireString("direction"); err == nil {
		direction = d
	}

	chain, err := s.svc.Trace(ctx, vaultID, direction)
	if err != nil && len(chain) == 0 {
		return mcp.NewToolResultError(err.Error()), nil
	}
	var b strings.Builder
	b.WriteString(strings.Join(chain, " -> "))
	if err != nil {
		fmt.Fprintf(&b, "\n(trace aborted: %v)", err)
	}
	return mcp.NewToolResultText(b.String()), nil
}

func (s *Server) lineageReport(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	report := s.svc.Report(ctx)
	payload := map[string]any{
		"report":       report,
		"cycles":       s.svc.DetectCycles(ctx),
		"broken_links": s.svc.DetectBrokenLinks(ctx),
	}
	out, _ := json.MarshalIndent(payload, "", "  ")
	return mcp.NewToolResultText(string(out)), nil
}

func (s *Server) checkDrift(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	vaultID, err := req.RequireString("vault_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	d, err := s.svc.CheckDrift(ctx, vaultID)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	payload := map[string]any{
		"vault_id":   vaultID,
		"embedded":   d.Embedded,
		"sidecar":    d.Sidecar,
		"calculated": d.Calculated,
		"has_drift":  d.HasDrift(),
		"is_correct": d.IsCorrect(),
	}
	out, _ := json.MarshalIndent(payload, "", "  ")
	return mcp.NewToolResultText(string(out)), nil
}

func (s *Server) getSidecarContract(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultText(SidecarFormatContract), nil
}

func (s *Server) readSidecarFormatResource(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      "othala://sidecar-format",
			MIMEType: "text/markdown",
			Text:     SidecarFormatContract,
		},
	}, nil
}
