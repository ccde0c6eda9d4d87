package mcp

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/papercomputeco/strata/api/search"
	"github.com/papercomputeco/strata/pkg/memory"
)

var (
	memoryGetToolName    = "memory_get"
	memoryGetDescription = "Read a memory item by namespace and key. Returns the payload, its version, and whether the copy is stale (not yet confirmed durable). A missing key is reported with found=false."

	memoryPutToolName    = "memory_put"
	memoryPutDescription = "Write a memory item. The write is acknowledged once it is held in the fast tiers and is persisted to the durable store shortly after; call memory_flush to wait for durability."

	memoryFlushToolName    = "memory_flush"
	memoryFlushDescription = "Wait until the latest write to a memory item is committed to the durable store. Returns committed=false if a newer write from another instance won."

	memorySearchToolName    = "memory_search"
	memorySearchDescription = "Semantic search over committed memory items. Returns the closest items with a short preview of their current value."
)

// KeyInput addresses a memory item.
type KeyInput struct {
	Namespace string `json:"namespace" jsonschema:"the namespace (user, session or agent scope) that owns the key"`
	Key       string `json:"key" jsonschema:"the key name inside the namespace"`
}

// PutInput is the input of memory_put.
type PutInput struct {
	Namespace string `json:"namespace" jsonschema:"the namespace (user, session or agent scope) that owns the key"`
	Key       string `json:"key" jsonschema:"the key name inside the namespace"`
	Payload   string `json:"payload" jsonschema:"the value to store"`
}

// GetOutput is the structured output of memory_get.
type GetOutput struct {
	Payload  string `json:"payload"`
	Version  uint64 `json:"version"`
	Found    bool   `json:"found"`
	Stale    bool   `json:"stale"`
	TimedOut bool   `json:"timed_out"`
}

// PutOutput is the structured output of memory_put.
type PutOutput struct {
	Version uint64 `json:"version"`
}

// FlushOutput is the structured output of memory_flush.
type FlushOutput struct {
	Committed bool   `json:"committed"`
	Version   uint64 `json:"version"`
}

func errorResult(format string, args ...any) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		IsError: true,
		Content: []mcp.Content{
			&mcp.TextContent{Text: fmt.Sprintf(format, args...)},
		},
	}
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	jsonBytes, err := json.Marshal(v)
	if err != nil {
		return errorResult("Failed to serialize results: %v", err), err
	}

	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: string(jsonBytes)},
		},
	}, nil
}

func (s *Server) handleGet(ctx context.Context, _ *mcp.CallToolRequest, input KeyInput) (*mcp.CallToolResult, GetOutput, error) {
	key, err := memory.NewKey(input.Namespace, input.Key)
	if err != nil {
		return errorResult("%v", err), GetOutput{}, nil
	}

	res, err := s.config.Memory.Get(ctx, key)
	if err != nil {
		s.config.Logger.Warn("mcp memory_get failed", "key", key.String(), "error", err)
		return errorResult("Memory read failed: %v", err), GetOutput{}, nil
	}

	output := GetOutput{
		Payload:  string(res.Payload),
		Version:  res.Version,
		Found:    res.Found,
		Stale:    res.Stale,
		TimedOut: res.TimedOut,
	}

	result, err := jsonResult(output)
	if err != nil {
		return result, GetOutput{}, nil
	}
	return result, output, nil
}

func (s *Server) handlePut(ctx context.Context, _ *mcp.CallToolRequest, input PutInput) (*mcp.CallToolResult, PutOutput, error) {
	key, err := memory.NewKey(input.Namespace, input.Key)
	if err != nil {
		return errorResult("%v", err), PutOutput{}, nil
	}

	res, err := s.config.Memory.Put(ctx, key, []byte(input.Payload))
	if err != nil {
		s.config.Logger.Warn("mcp memory_put failed", "key", key.String(), "error", err)
		return errorResult("Memory write failed: %v", err), PutOutput{}, nil
	}

	output := PutOutput{Version: res.Version}
	result, err := jsonResult(output)
	if err != nil {
		return result, PutOutput{}, nil
	}
	return result, output, nil
}

func (s *Server) handleFlush(ctx context.Context, _ *mcp.CallToolRequest, input KeyInput) (*mcp.CallToolResult, FlushOutput, error) {
	key, err := memory.NewKey(input.Namespace, input.Key)
	if err != nil {
		return errorResult("%v", err), FlushOutput{}, nil
	}

	res, err := s.config.Memory.Flush(ctx, key)
	if err != nil {
		s.config.Logger.Warn("mcp memory_flush failed", "key", key.String(), "error", err)
		return errorResult("Memory flush failed: %v", err), FlushOutput{}, nil
	}

	output := FlushOutput{Committed: res.Committed, Version: res.Version}
	result, err := jsonResult(output)
	if err != nil {
		return result, FlushOutput{}, nil
	}
	return result, output, nil
}

func (s *Server) handleSearch(ctx context.Context, _ *mcp.CallToolRequest, input search.SearchInput) (*mcp.CallToolResult, search.SearchOutput, error) {
	if input.Query == "" {
		return errorResult("query is required"), search.SearchOutput{}, nil
	}

	output, err := s.config.Searcher.Search(ctx, input)
	if err != nil {
		return errorResult("Search failed: %v", err), search.SearchOutput{}, nil
	}

	result, err := jsonResult(output)
	if err != nil {
		return result, search.SearchOutput{}, nil
	}
	return result, *output, nil
}
