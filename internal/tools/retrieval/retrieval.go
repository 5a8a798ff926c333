// Package retrieval provides the search and fetch tools. Both delegate to
// narrow collaborator interfaces; Placeholder is the stand-in implementation
// shipped until a real index is wired.
package retrieval

import (
	"context"
	"encoding/json"

	"mermaid-checker-mcp/internal/tools"
)

const (
	SearchName = "search"
	FetchName  = "fetch"

	DefaultTopK = 5
	MaxTopK     = 50
)

type Item struct {
	ID      string  `json:"id"`
	Title   string  `json:"title"`
	Snippet string  `json:"snippet,omitempty"`
	Score   float64 `json:"score,omitempty"`
}

type SearchResult struct {
	Items  []Item `json:"items"`
	Total  int    `json:"total"`
	Reason string `json:"reason,omitempty"`
}

type Resource struct {
	ID    string `json:"id"`
	Title string `json:"title,omitempty"`
	URI   string `json:"uri,omitempty"`
	Text  string `json:"text"`
}

type FetchResult struct {
	Resources []Resource `json:"resources"`
	Reason    string     `json:"reason,omitempty"`
}

// Searcher looks up items matching a query.
type Searcher interface {
	Search(ctx context.Context, query string, topK int) (SearchResult, error)
}

// Fetcher resolves item ids into full resources.
type Fetcher interface {
	Fetch(ctx context.Context, ids []string) (FetchResult, error)
}

// SearchArgs represents the arguments for the search tool.
type SearchArgs struct {
	Query string `json:"query" jsonschema:"description=Free-text search query"`
	TopK  int    `json:"top_k,omitempty" jsonschema:"description=Maximum number of items to return,minimum=1,maximum=50,default=5"`
}

// FetchArgs represents the arguments for the fetch tool.
type FetchArgs struct {
	IDs []string `json:"ids" jsonschema:"description=Identifiers returned by search"`
}

// SearchTool exposes a Searcher.
type SearchTool struct {
	*tools.DefaultTool
	searcher Searcher
}

// NewSearchTool creates the search tool.
func NewSearchTool(searcher Searcher) *SearchTool {
	return &SearchTool{
		DefaultTool: tools.NewDefaultTool(SearchName, "Searches indexed documents and returns matching items", tools.ReflectInputSchema[SearchArgs]()),
		searcher:    searcher,
	}
}

// Call runs the search. top_k falls back to DefaultTopK when missing or out of range.
func (t *SearchTool) Call(ctx context.Context, args json.RawMessage) (tools.Result, error) {
	a := tools.ParseArguments(args)
	topK := a.Int("top_k", DefaultTopK)
	if topK < 1 || topK > MaxTopK {
		topK = DefaultTopK
	}

	res, err := t.searcher.Search(ctx, a.String("query"), topK)
	if err != nil {
		res = SearchResult{Reason: err.Error()}
	}
	if res.Items == nil {
		res.Items = []Item{}
	}
	return tools.JSONResult(res)
}

// FetchTool exposes a Fetcher.
type FetchTool struct {
	*tools.DefaultTool
	fetcher Fetcher
}

// NewFetchTool creates the fetch tool.
func NewFetchTool(fetcher Fetcher) *FetchTool {
	return &FetchTool{
		DefaultTool: tools.NewDefaultTool(FetchName, "Fetches full resources by the ids returned from search", tools.ReflectInputSchema[FetchArgs]()),
		fetcher:     fetcher,
	}
}

// Call fetches the requested ids. A missing or non-array ids field fetches nothing.
func (t *FetchTool) Call(ctx context.Context, args json.RawMessage) (tools.Result, error) {
	ids := tools.ParseArguments(args).Strings("ids")

	res, err := t.fetcher.Fetch(ctx, ids)
	if err != nil {
		res = FetchResult{Reason: err.Error()}
	}
	if res.Resources == nil {
		res.Resources = []Resource{}
	}
	return tools.JSONResult(res)
}

// Placeholder satisfies Searcher and Fetcher without a backing index: search
// finds nothing and fetch returns empty stubs for the requested ids.
type Placeholder struct{}

func (Placeholder) Search(ctx context.Context, query string, topK int) (SearchResult, error) {
	return SearchResult{Items: []Item{}, Total: 0}, nil
}

func (Placeholder) Fetch(ctx context.Context, ids []string) (FetchResult, error) {
	resources := make([]Resource, 0, len(ids))
	for _, id := range ids {
		resources = append(resources, Resource{ID: id, URI: "placeholder://" + id})
	}
	return FetchResult{Resources: resources}, nil
}
