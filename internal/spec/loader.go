package spec

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/tjfontaine/openapi-gateway/internal/domain"
)

// RestAPIResourceType is the CloudFormation type whose Body embeds an API document.
const RestAPIResourceType = "AWS::ApiGateway::RestApi"

// Loader reads API documents from the filesystem.
type Loader struct {
	logger *slog.Logger
}

// NewLoader creates a loader. A nil logger uses slog.Default().
func NewLoader(logger *slog.Logger) *Loader {
	if logger == nil {
		logger = slog.Default()
	}
	return &Loader{logger: logger}
}

// Result is the outcome of loading one input path.
type Result struct {
	Path      string
	Documents []*Document
	Err       error
}

// Load reads path and returns the API documents it contains.
//
// An OpenAPI/Swagger document yields itself. A CloudFormation template yields
// the Body of every AWS::ApiGateway::RestApi resource, possibly none. Anything
// else is an invalid_spec error naming path.
func (l *Loader) Load(path string) ([]*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, domain.ErrInvalidSpec(path, "read document").WithCause(err)
	}
	return l.Parse(path, data)
}

// Parse is Load for in-memory content; source labels the documents.
func (l *Loader) Parse(source string, data []byte) ([]*Document, error) {
	raw, err := decode(data)
	if err != nil {
		return nil, domain.ErrInvalidSpec(source, "parse document").WithCause(err)
	}
	tree, ok := raw.(map[string]any)
	if !ok {
		return nil, domain.ErrInvalidSpec(source, "document root is not an object")
	}

	switch {
	case isOpenAPI(tree):
		doc, err := parseDocument(tree, source)
		if err != nil {
			return nil, domain.ErrInvalidSpec(source, "invalid API document").WithCause(err)
		}
		return []*Document{doc}, nil
	case tree["Resources"] != nil:
		return l.parseTemplate(source, tree)
	default:
		return nil, domain.ErrInvalidSpec(source, "invalid swagger YAML document: neither an OpenAPI document nor a resource template")
	}
}

func isOpenAPI(tree map[string]any) bool {
	return tree["swagger"] != nil || tree["openapi"] != nil
}

func (l *Loader) parseTemplate(source string, tree map[string]any) ([]*Document, error) {
	resources, ok := tree["Resources"].(map[string]any)
	if !ok {
		return nil, domain.ErrInvalidSpec(source, "template Resources is not an object")
	}

	ids := make([]string, 0, len(resources))
	for id := range resources {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	var docs []*Document
	for _, id := range ids {
		resource, ok := resources[id].(map[string]any)
		if !ok || resource["Type"] != RestAPIResourceType {
			continue
		}
		label := source + "#" + id

		props, _ := resource["Properties"].(map[string]any)
		body, ok := props["Body"].(map[string]any)
		if !ok {
			l.logger.Warn("skipping REST API resource without an inline Body",
				slog.String("source", label))
			continue
		}
		if !isOpenAPI(body) {
			l.logger.Warn("skipping REST API resource whose Body is not an OpenAPI document",
				slog.String("source", label))
			continue
		}

		doc, err := parseDocument(body, label)
		if err != nil {
			l.logger.Warn("skipping invalid REST API resource",
				slog.String("source", label),
				slog.String("error", err.Error()))
			continue
		}
		docs = append(docs, doc)
	}

	return docs, nil
}

// LoadAll loads every path concurrently. The results keep the order of
// paths and a failure in one path never prevents loading the others.
func (l *Loader) LoadAll(ctx context.Context, paths []string) []Result {
	results := make([]Result, len(paths))

	g, ctx := errgroup.WithContext(ctx)
	for i, path := range paths {
		g.Go(func() error {
			results[i].Path = path
			if err := ctx.Err(); err != nil {
				results[i].Err = fmt.Errorf("load %s: %w", path, err)
				return nil
			}
			results[i].Documents, results[i].Err = l.Load(path)
			return nil
		})
	}
	// Workers never fail the group
	_ = g.Wait()

	return results
}
