// Package mcp exposes one owner's memory stream as MCP tools.
package mcp

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/phrazzld/judith/pkg/model"
	"github.com/phrazzld/judith/pkg/usecase/memory"
	"github.com/phrazzld/judith/pkg/utils/logging"
)

const (
	serverName    = "judith"
	serverVersion = "0.1.0"
)

type rememberParams struct {
	Text string `json:"text" jsonschema:"Text of the memory to store"`
	Kind string `json:"kind,omitempty" jsonschema:"One of userMessage, agentMessage or agentReflection. Defaults to userMessage"`
}

type recallParams struct {
	Query string `json:"query" jsonschema:"What to recall, in natural language"`
	Limit int    `json:"limit,omitempty" jsonschema:"Maximum number of memories to return"`
}

type listParams struct{}

// toolSet binds the memory tools to a single owner
type toolSet struct {
	uc    *memory.UseCase
	owner model.OwnerID
}

// NewServer creates an MCP server whose tools read and write owner's memories
func NewServer(uc *memory.UseCase, owner model.OwnerID) (*mcp.Server, error) {
	if err := owner.Validate(); err != nil {
		return nil, err
	}
	s := &toolSet{uc: uc, owner: owner}

	server := mcp.NewServer(&mcp.Implementation{
		Name:    serverName,
		Version: serverVersion,
	}, nil)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "remember",
		Description: "Store a message in long-term memory. Significance is rated automatically. Reflections also record the memories they bring to mind.",
	}, s.remember)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "recall",
		Description: "Recall the most relevant memories for a query, ranked by similarity, significance and recency",
	}, s.recall)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "list_memories",
		Description: "List all stored memories in creation order",
	}, s.list)

	return server, nil
}

// Handler serves server over streamable HTTP
func Handler(server *mcp.Server) http.Handler {
	return mcp.NewStreamableHTTPHandler(func(r *http.Request) *mcp.Server {
		return server
	}, nil)
}

func textResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: text},
		},
	}
}

func (s *toolSet) remember(ctx context.Context, req *mcp.CallToolRequest, params *rememberParams) (*mcp.CallToolResult, any, error) {
	if strings.TrimSpace(params.Text) == "" {
		return nil, nil, goerr.New("text is required")
	}

	kind := model.MemoryKind(params.Kind)
	if kind == "" {
		kind = model.MemoryKindUserMessage
	}
	if err := kind.Validate(); err != nil {
		return nil, nil, err
	}

	var mem *model.Memory
	var err error
	if kind == model.MemoryKindAgentReflection {
		mem, _, err = s.uc.RecordReflection(ctx, s.owner, params.Text, 0)
	} else {
		mem, err = s.uc.Record(ctx, s.owner, kind, params.Text)
	}
	if err != nil {
		logging.From(ctx).Error("failed to remember", "owner", s.owner, "kind", kind, "error", err)
		return nil, nil, err
	}

	significance := "unclassified"
	if mem.Significance != nil {
		significance = fmt.Sprintf("%d", *mem.Significance)
	}
	return textResult(fmt.Sprintf("Remembered %s (significance: %s)", mem.ID, significance)), nil, nil
}

func (s *toolSet) recall(ctx context.Context, req *mcp.CallToolRequest, params *recallParams) (*mcp.CallToolResult, any, error) {
	if strings.TrimSpace(params.Query) == "" {
		return nil, nil, goerr.New("query is required")
	}
	if params.Limit < 0 {
		return nil, nil, goerr.New("limit must not be negative", goerr.V("limit", params.Limit))
	}

	out, err := s.uc.Recall(ctx, s.owner, params.Query, params.Limit)
	if err != nil {
		logging.From(ctx).Error("failed to recall", "owner", s.owner, "error", err)
		return nil, nil, err
	}

	if len(out.Memories) == 0 {
		return textResult("No memories found"), nil, nil
	}
	return textResult(memory.RenderTriggered(out.Memories)), nil, nil
}

func (s *toolSet) list(ctx context.Context, req *mcp.CallToolRequest, params *listParams) (*mcp.CallToolResult, any, error) {
	memories, err := s.uc.List(ctx, s.owner)
	if err != nil {
		return nil, nil, err
	}
	if len(memories) == 0 {
		return textResult("No memories stored"), nil, nil
	}

	lines := make([]string, 0, len(memories))
	for _, m := range memories {
		sig := "-"
		if m.Significance != nil {
			sig = fmt.Sprintf("%d", *m.Significance)
		}
		lines = append(lines, fmt.Sprintf("%s [%s] %s %s: %s",
			m.ID, sig, m.CreatedAt.Format(time.RFC3339), m.Kind, m.Text))
	}
	return textResult(strings.Join(lines, "\n")), nil, nil
}
