package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/rmax-ai/meshgraph/pkg/client"
	"github.com/rmax-ai/meshgraph/pkg/model"
)

const graphURI = "meshgraph://graph"

// Server adapts meshgraph-d to the Model Context Protocol.
type Server struct {
	mcpServer *server.MCPServer
	apiClient *client.Client
}

// NewServer creates a new MCP server instance.
func NewServer(apiURL string) *Server {
	s := &Server{
		mcpServer: server.NewMCPServer(
			"meshgraph",
			"1.0.0",
		),
		apiClient: client.NewClient(apiURL),
	}
	s.registerResources()
	s.registerTools()
	s.registerPrompts()
	return s
}

// Serve starts the MCP server on stdio.
func (s *Server) Serve() error {
	return server.ServeStdio(s.mcpServer)
}

// --- Resources ---

func (s *Server) registerResources() {
	s.mcpServer.AddResource(mcp.NewResource(
		graphURI,
		"Live Service Graph",
		mcp.WithResourceDescription("Nodes, their services and the calls observed between them"),
		mcp.WithMIMEType("application/json"),
	), s.handleReadGraph)
}

// --- Tools ---

func (s *Server) registerTools() {
	s.mcpServer.AddTool(mcp.NewTool(
		"get_graph",
		mcp.WithDescription("Return the service graph. Without a window the live graph is returned; otherwise the snapshots stored for the window are merged."),
		mcp.WithNumber("from", mcp.Description("Window start, unix milliseconds")),
		mcp.WithNumber("to", mcp.Description("Window end, unix milliseconds (default now)")),
	), s.handleGetGraph)

	s.mcpServer.AddTool(mcp.NewTool(
		"get_dependencies",
		mcp.WithDescription("Return everything a node (or one service on it) depends on, directly or transitively."),
		mcp.WithString("node_id", mcp.Required(), mcp.Description("The node to start from (case-insensitive)")),
		mcp.WithString("service", mcp.Description("Restrict to calls made by this service on the node")),
		mcp.WithNumber("from", mcp.Description("Window start, unix milliseconds")),
		mcp.WithNumber("to", mcp.Description("Window end, unix milliseconds")),
	), s.handleGetDependencies)
}

// --- Prompts ---

func (s *Server) registerPrompts() {
	s.mcpServer.AddPrompt(mcp.NewPrompt(
		"meshgraph-aware",
		mcp.WithPromptDescription("Provides context about meshgraph concepts (Nodes, Components, Links)"),
	), s.handleGetPrompt)
}

// --- Handlers ---

func (s *Server) handleReadGraph(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	m, err := s.apiClient.GetGraph(ctx, client.Window{})
	if err != nil {
		return nil, fmt.Errorf("failed to fetch graph: %w", err)
	}

	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal graph: %w", err)
	}

	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      request.Params.URI,
			MIMEType: "application/json",
			Text:     string(data),
		},
	}, nil
}

func (s *Server) handleGetGraph(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	m, err := s.apiClient.GetGraph(ctx, parseWindow(request))
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("API error: %v", err)), nil
	}
	return mcp.NewToolResultText(summarize(m)), nil
}

func (s *Server) handleGetDependencies(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	nodeID := mcp.ParseString(request, "node_id", "")
	if nodeID == "" {
		return mcp.NewToolResultError("node_id is required"), nil
	}
	service := mcp.ParseString(request, "service", "")
	w := parseWindow(request)

	var (
		m   *model.Model
		err error
	)
	if service != "" {
		m, err = s.apiClient.GetServiceDependencies(ctx, nodeID, service, w)
	} else {
		m, err = s.apiClient.GetDependencies(ctx, nodeID, w)
	}
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("API error: %v", err)), nil
	}
	if m.IsEmpty() {
		return mcp.NewToolResultText(fmt.Sprintf("No dependencies found for %s", nodeID)), nil
	}
	return mcp.NewToolResultText(summarize(m)), nil
}

func (s *Server) handleGetPrompt(ctx context.Context, request mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
	name := request.Params.Name
	if name != "meshgraph-aware" {
		return nil, fmt.Errorf("prompt not found: %s", name)
	}

	promptText := `You are interacting with meshgraph, a service dependency graph built from tracing data.

Concepts:
- Node: A host or workload (e.g., 'web-1'). Node ids match case-insensitively.
- Component: A service running on a node (e.g., 'frontend').
- Link: A call from one service to another, written 'caller->callee'.
- Edge: Calls from one node to a different node. Calls inside one node are kept on the node.
- Snapshot: The graph as persisted at a point in time. Queries with a window merge snapshots.

Use 'get_dependencies' to find what a node or service relies on before reasoning about the
blast radius of a failure. Use 'get_graph' with a window to look at the topology in the past.
`

	return mcp.NewGetPromptResult(
		"meshgraph-aware",
		[]mcp.PromptMessage{
			mcp.NewPromptMessage(mcp.RoleUser, mcp.NewTextContent(promptText)),
		},
	), nil
}

func parseWindow(request mcp.CallToolRequest) client.Window {
	var w client.Window
	if from := mcp.ParseFloat64(request, "from", 0); from > 0 {
		w.From = time.UnixMilli(int64(from))
	}
	if to := mcp.ParseFloat64(request, "to", 0); to > 0 {
		w.To = time.UnixMilli(int64(to))
	}
	return w
}

// summarize renders a model as one line per node followed by one line per
// edge, in a stable order.
func summarize(m *model.Model) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%d nodes, %d edges\n", m.NodeCount(), m.EdgeCount())
	for _, n := range m.SortedNodes() {
		fmt.Fprintf(&b, "node %s", n.ID)
		if comps := n.Components.Sorted(); len(comps) > 0 {
			fmt.Fprintf(&b, " [%s]", strings.Join(comps, ", "))
		}
		b.WriteString("\n")
	}
	for _, e := range m.SortedEdges() {
		if e.Service != "" {
			fmt.Fprintf(&b, "edge %s -> %s (%s)\n", e.Source, e.Target, e.Service)
		} else {
			fmt.Fprintf(&b, "edge %s -> %s\n", e.Source, e.Target)
		}
	}
	return b.String()
}
