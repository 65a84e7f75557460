package mcp

import (
	"context"
	"fmt"
	"time"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/m-mizutani/goerr/v2"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/wiggitywhitney/commit-story-sub001/pkg/usecase/reflection"
)

// Server exposes the journal note tools over MCP so a coding agent can record
// reflections and context captures mid-session. It serves a single client
// over stdio; journaling itself stays in the post-commit hook.
type Server struct {
	server *mcp.Server
}

type serverConfig struct {
	version string
}

// ServerOption configures the MCP server
type ServerOption func(*serverConfig)

// WithVersion sets the version reported to MCP clients
func WithVersion(v string) ServerOption {
	return func(cfg *serverConfig) {
		if v != "" {
			cfg.version = v
		}
	}
}

type addReflectionParams struct {
	Text      string `json:"text"`
	Timestamp string `json:"timestamp,omitempty"`
}

type captureContextParams struct {
	Text  string `json:"text"`
	Label string `json:"label,omitempty"`
}

// Input schemas are declared by hand rather than inferred from the params
// structs so that tool listings carry stable property descriptions.
var addReflectionSchema = &jsonschema.Schema{
	Type: "object",
	Properties: map[string]*jsonschema.Schema{
		"text": {
			Type:        "string",
			Description: "The reflection text to record in today's journal",
		},
		"timestamp": {
			Type:        "string",
			Description: "Optional RFC3339 timestamp for the reflection; defaults to now",
		},
	},
	Required: []string{"text"},
}

var captureContextSchema = &jsonschema.Schema{
	Type: "object",
	Properties: map[string]*jsonschema.Schema{
		"text": {
			Type:        "string",
			Description: "The working context to capture for the next journal entry",
		},
		"label": {
			Type:        "string",
			Description: "Optional short label describing the capture",
		},
	},
	Required: []string{"text"},
}

// NewServer creates the MCP server and registers the journal tools.
func NewServer(uc *reflection.UseCase, opts ...ServerOption) *Server {
	cfg := &serverConfig{version: "dev"}
	for _, opt := range opts {
		opt(cfg)
	}

	server := mcp.NewServer(&mcp.Implementation{
		Name:    "commit-story",
		Version: cfg.version,
	}, nil)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "journal_add_reflection",
		Description: "Record a developer reflection in today's journal. The note is kept verbatim and attached to the journal entry of the next commit.",
		InputSchema: addReflectionSchema,
	}, func(ctx context.Context, req *mcp.CallToolRequest, params *addReflectionParams) (*mcp.CallToolResult, any, error) {
		if params.Text == "" {
			return nil, nil, goerr.New("text is required")
		}

		var ts time.Time
		if params.Timestamp != "" {
			parsed, err := time.Parse(time.RFC3339, params.Timestamp)
			if err != nil {
				return nil, nil, goerr.Wrap(err, "invalid timestamp, expected RFC3339",
					goerr.V("timestamp", params.Timestamp))
			}
			ts = parsed
		}

		path, err := uc.AddReflection(ctx, params.Text, ts)
		if err != nil {
			return nil, nil, err
		}
		return textResult(fmt.Sprintf("Reflection saved to %s", path)), nil, nil
	})

	mcp.AddTool(server, &mcp.Tool{
		Name:        "journal_capture_context",
		Description: "Capture the assistant's current working context (plans, findings, open threads) so the next journal entry can use it.",
		InputSchema: captureContextSchema,
	}, func(ctx context.Context, req *mcp.CallToolRequest, params *captureContextParams) (*mcp.CallToolResult, any, error) {
		if params.Text == "" {
			return nil, nil, goerr.New("text is required")
		}

		path, err := uc.AddCapture(ctx, params.Text, params.Label, time.Time{})
		if err != nil {
			return nil, nil, err
		}
		return textResult(fmt.Sprintf("Context captured to %s", path)), nil, nil
	})

	return &Server{server: server}
}

func textResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: text},
		},
	}
}

// Run serves MCP over stdio until the client disconnects or ctx ends.
func (s *Server) Run(ctx context.Context) error {
	if err := s.server.Run(ctx, &mcp.StdioTransport{}); err != nil {
		return goerr.Wrap(err, "mcp server terminated")
	}
	return nil
}

// Connect attaches the server to a transport and returns the session. Tests
// drive the server through in-memory transports.
func (s *Server) Connect(ctx context.Context, transport mcp.Transport) (*mcp.ServerSession, error) {
	session, err := s.server.Connect(ctx, transport, nil)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to connect mcp transport")
	}
	return session, nil
}
