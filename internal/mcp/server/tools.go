// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/tombee/alou/internal/memory"
	alouerrors "github.com/tombee/alou/pkg/errors"
)

// MemoryResult is the JSON shape returned by query tools.
type MemoryResult struct {
	Memories []memory.Item `json:"memories"`
	Count    int           `json:"count"`
}

func (s *Server) handleStore(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	content, err := request.RequireString("content")
	if err != nil || strings.TrimSpace(content) == "" {
		return errorResponse("content is required"), nil
	}

	var meta memory.Metadata
	if raw, ok := request.GetArguments()["metadata"]; ok && raw != nil {
		data, err := json.Marshal(raw)
		if err != nil {
			return errorResponse(fmt.Sprintf("invalid metadata: %v", err)), nil
		}
		if err := json.Unmarshal(data, &meta); err != nil {
			return errorResponse(fmt.Sprintf("invalid metadata: %v", err)), nil
		}
	}

	id, err := s.store.Store(ctx, content, meta)
	if err != nil {
		return errorResponse(fmt.Sprintf("failed to store memory: %v", err)), nil
	}
	return jsonResponse(map[string]any{
		"success":      true,
		"id":           id,
		"content_hash": memory.HashContent(content),
	})
}

func (s *Server) handleRetrieve(_ context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query, err := request.RequireString("query")
	if err != nil {
		return errorResponse("query is required"), nil
	}
	return memoriesResponse(s.store.Retrieve(query, limitArg(request)))
}

func (s *Server) handleRecall(_ context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query, err := request.RequireString("query")
	if err != nil {
		return errorResponse("query is required"), nil
	}
	return memoriesResponse(s.store.Recall(query, limitArg(request)))
}

func (s *Server) handleSearchByTag(_ context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var tags []string
	switch v := request.GetArguments()["tags"].(type) {
	case []any:
		for _, t := range v {
			if str, ok := t.(string); ok {
				tags = append(tags, str)
			}
		}
	case string:
		tags = memory.SplitTags(v)
	}
	if len(tags) == 0 {
		return errorResponse("tags is required"), nil
	}
	return memoriesResponse(s.store.SearchByTag(tags, limitArg(request)))
}

func (s *Server) handleDelete(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	hash, err := request.RequireString("content_hash")
	if err != nil {
		return errorResponse("content_hash is required"), nil
	}
	if err := s.store.Delete(ctx, hash); err != nil {
		var nf *alouerrors.NotFoundError
		if errors.As(err, &nf) {
			return errorResponse(fmt.Sprintf("no memory with content hash %s", hash)), nil
		}
		return errorResponse(fmt.Sprintf("failed to delete memory: %v", err)), nil
	}
	return jsonResponse(map[string]any{"success": true, "content_hash": hash})
}

func (s *Server) handleHealth(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return jsonResponse(s.store.Health())
}

func (s *Server) handleStats(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return jsonResponse(s.store.Stats())
}

func limitArg(request mcp.CallToolRequest) int {
	if n := int(request.GetFloat("n_results", 0)); n > 0 {
		return n
	}
	return memory.DefaultLimit
}

func memoriesResponse(items []memory.Item) (*mcp.CallToolResult, error) {
	return jsonResponse(MemoryResult{Memories: items, Count: len(items)})
}

func jsonResponse(v any) (*mcp.CallToolResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return errorResponse(fmt.Sprintf("failed to encode result: %v", err)), nil
	}
	return textResponse(string(data)), nil
}
