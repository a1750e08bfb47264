package builtin

import (
	"context"
	"fmt"

	"github.com/codewandler/rtassist-go/tool"
)

// Document is one search hit.
type Document struct {
	ID      string `json:"id"`
	Title   string `json:"title"`
	Snippet string `json:"snippet,omitempty"`
}

// DocumentSearcher queries the document store.
type DocumentSearcher interface {
	Search(ctx context.Context, query string) ([]Document, error)
}

// DocumentSearchCapability exposes search_documents.
func DocumentSearchCapability(searcher DocumentSearcher) tool.Capability {
	return tool.Capability{
		Tool: tool.Func(
			"search_documents",
			"Search the knowledge base for documents matching a query.",
			tool.Properties{
				"query": {Type: "string", Description: "Free-text search query"},
			},
			"query",
		),
		Executor: tool.ExecutorFunc(func(ctx context.Context, args map[string]any) (map[string]any, error) {
			query, err := stringArg(args, "query")
			if err != nil {
				return nil, err
			}

			docs, err := searcher.Search(ctx, query)
			if err != nil {
				return nil, err
			}
			if docs == nil {
				docs = []Document{}
			}

			summary := fmt.Sprintf("Found %d matching document(s).", len(docs))
			if len(docs) == 0 {
				summary = "No matching documents found."
			}

			return map[string]any{
				"count":     len(docs),
				"documents": docs,
				"summary":   summary,
			}, nil
		}),
	}
}
