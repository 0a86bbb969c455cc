package toolkit

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
	"sync"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/kestrelab/agentloop/internal/types"
	"github.com/kestrelab/agentloop/tools"
)

// transportBuilder is overridden in tests to stub the transport factory.
var transportBuilder = buildTransport

// MCP is a toolkit backed by a Model Context Protocol server. Each session
// opens its own connection, performs a full initial tool listing (paging
// until the cursor is exhausted) and subscribes to tool-list-changed
// notifications; on receipt the listing is re-run and the cached tool set
// replaced atomically.
type MCP[C any] struct {
	// Transport selects the server: "stdio://cmd args", an http(s) URL
	// for streamable HTTP, or "sse://host/path".
	Transport string
	// Prompt is an optional system prompt fragment contributed by this
	// toolkit.
	Prompt string
	// Logger defaults to slog.Default.
	Logger *slog.Logger
}

// CreateSession connects to the server and lists its tools. A session is
// only returned once the first full listing succeeded; on any later
// failure the connection is torn down before the error is returned.
func (m *MCP[C]) CreateSession(ctx context.Context, tc C) (Session[C], error) {
	logger := m.Logger
	if logger == nil {
		logger = slog.Default()
	}
	s := &mcpSession[C]{prompt: m.Prompt, logger: logger}

	client := mcpsdk.NewClient(&mcpsdk.Implementation{Name: "agentloop", Version: "dev"}, &mcpsdk.ClientOptions{
		ToolListChangedHandler: func(ctx context.Context, req *mcpsdk.ToolListChangedRequest) {
			s.refresh(ctx)
		},
	})

	transport, err := transportBuilder(ctx, m.Transport)
	if err != nil {
		return nil, fmt.Errorf("mcp toolkit: build transport: %w", err)
	}
	sess, err := client.Connect(ctx, transport, nil)
	if err != nil {
		return nil, fmt.Errorf("mcp toolkit: connect: %w", err)
	}
	s.sess = sess

	listed, err := s.listAll(ctx)
	if err != nil {
		s.Close(ctx)
		return nil, fmt.Errorf("mcp toolkit: initial listing: %w", err)
	}
	s.tools = listed
	logger.Debug("mcp toolkit session created", "transport", m.Transport, "num_tools", len(listed))
	return s, nil
}

type mcpSession[C any] struct {
	prompt string
	logger *slog.Logger
	sess   *mcpsdk.ClientSession

	mu      sync.Mutex
	tools   []tools.Tool[C]
	listErr error

	closeOnce sync.Once
	closeErr  error
}

func (s *mcpSession[C]) SystemPrompt() string { return s.prompt }

// Tools returns the latest cached tool set. After a failed
// notification-triggered refresh the error is raised here instead of the
// stale pre-failure listing, and keeps being raised until a refresh
// succeeds.
func (s *mcpSession[C]) Tools() ([]tools.Tool[C], error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listErr != nil {
		return nil, s.listErr
	}
	return s.tools, nil
}

func (s *mcpSession[C]) Close(ctx context.Context) error {
	s.closeOnce.Do(func() {
		if s.sess != nil {
			s.closeErr = s.sess.Close()
		}
	})
	return s.closeErr
}

// refresh re-runs the full listing and swaps the cache. Called from the
// SDK's notification goroutine.
func (s *mcpSession[C]) refresh(ctx context.Context) {
	listed, err := s.listAll(ctx)
	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		s.logger.Warn("mcp tool list refresh failed", "error", err)
		s.listErr = err
		return
	}
	s.logger.Debug("mcp tool list refreshed", "num_tools", len(listed))
	s.tools = listed
	s.listErr = nil
}

func (s *mcpSession[C]) listAll(ctx context.Context) ([]tools.Tool[C], error) {
	var out []tools.Tool[C]
	var cursor string
	for {
		res, err := s.sess.ListTools(ctx, &mcpsdk.ListToolsParams{Cursor: cursor})
		if err != nil {
			return nil, err
		}
		for _, t := range res.Tools {
			out = append(out, s.convert(t))
		}
		if res.NextCursor == "" {
			return out, nil
		}
		cursor = res.NextCursor
	}
}

// convert maps a server tool descriptor to an executable Tool whose
// Execute forwards to tools/call on this session.
func (s *mcpSession[C]) convert(t *mcpsdk.Tool) tools.Tool[C] {
	name := t.Name
	return tools.Tool[C]{
		Name:        name,
		Description: t.Description,
		Parameters:  schemaToMap(t.InputSchema),
		Execute: func(ctx context.Context, args json.RawMessage, tc C) (tools.Result, error) {
			var decoded map[string]any
			if len(args) > 0 {
				if err := json.Unmarshal(args, &decoded); err != nil {
					return tools.Errorf("invalid arguments for tool %s: %v", name, err), nil
				}
			}
			res, err := s.sess.CallTool(ctx, &mcpsdk.CallToolParams{Name: name, Arguments: decoded})
			if err != nil {
				return tools.Result{}, fmt.Errorf("mcp tool %s: %w", name, err)
			}
			return tools.Result{Content: convertContent(res.Content), IsError: res.IsError}, nil
		},
	}
}

func convertContent(content []mcpsdk.Content) []types.Part {
	parts := make([]types.Part, 0, len(content))
	for _, c := range content {
		switch c := c.(type) {
		case *mcpsdk.TextContent:
			parts = append(parts, types.NewTextPart(c.Text))
		case *mcpsdk.ImageContent:
			parts = append(parts, types.NewImagePart(c.Data, c.MIMEType))
		case *mcpsdk.AudioContent:
			parts = append(parts, types.NewAudioPart(c.Data, c.MIMEType))
		default:
			data, err := json.Marshal(c)
			if err != nil {
				continue
			}
			parts = append(parts, types.NewTextPart(string(data)))
		}
	}
	return parts
}

func schemaToMap(schema any) map[string]any {
	if schema == nil {
		return map[string]any{"type": "object"}
	}
	data, err := json.Marshal(schema)
	if err != nil {
		return map[string]any{"type": "object"}
	}
	var out map[string]any
	if err := json.Unmarshal(data, &out); err != nil {
		return map[string]any{"type": "object"}
	}
	return out
}

func buildTransport(ctx context.Context, spec string) (mcpsdk.Transport, error) {
	spec = strings.TrimSpace(spec)
	lowered := strings.ToLower(spec)
	switch {
	case spec == "":
		return nil, fmt.Errorf("transport spec is empty")
	case strings.HasPrefix(lowered, "stdio://"):
		return stdioTransport(ctx, spec[len("stdio://"):])
	case strings.HasPrefix(lowered, "sse://"):
		return &mcpsdk.SSEClientTransport{Endpoint: "https://" + spec[len("sse://"):]}, nil
	case strings.HasPrefix(lowered, "http://"), strings.HasPrefix(lowered, "https://"):
		return &mcpsdk.StreamableClientTransport{Endpoint: spec}, nil
	}
	return stdioTransport(ctx, spec)
}

func stdioTransport(ctx context.Context, cmdSpec string) (mcpsdk.Transport, error) {
	parts := strings.Fields(strings.TrimSpace(cmdSpec))
	if len(parts) == 0 {
		return nil, fmt.Errorf("stdio command is empty")
	}
	cmd := exec.CommandContext(ctx, parts[0], parts[1:]...)
	return &mcpsdk.CommandTransport{Command: cmd}, nil
}
