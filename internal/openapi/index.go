// Package openapi loads and indexes the backend's OpenAPI documents so the
// fixed REST contract each screen speaks can be checked at startup.
package openapi

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/getkin/kin-openapi/openapi3"
)

// SpecSource describes an OpenAPI spec file to load.
type SpecSource struct {
	ServiceID string
	SpecPath  string
}

// IndexedOperation holds a resolved OpenAPI operation with its context.
type IndexedOperation struct {
	ServiceID    string
	OperationID  string
	Method       string
	PathTemplate string
	Parameters   []*openapi3.Parameter
	RequestBody  *openapi3.RequestBody
}

// Index is an in-memory index of OpenAPI operations keyed by
// (serviceID, method, path). Path parameter names are ignored, so
// "/update/{id}" and "/update/{accessoryId}" address the same operation.
type Index struct {
	operations map[string]IndexedOperation
	byService  map[string][]string
}

// NewIndex creates an empty OpenAPI index.
func NewIndex() *Index {
	return &Index{
		operations: make(map[string]IndexedOperation),
		byService:  make(map[string][]string),
	}
}

var pathParam = regexp.MustCompile(`\{[^/}]*\}`)

// NormalizePath strips parameter names from a path template and drops a
// trailing slash.
func NormalizePath(path string) string {
	p := pathParam.ReplaceAllString(path, "{}")
	if len(p) > 1 {
		p = strings.TrimRight(p, "/")
	}
	return p
}

func operationKey(serviceID, method, path string) string {
	return serviceID + " " + strings.ToUpper(method) + " " + NormalizePath(path)
}

// Load parses OpenAPI specs from the given sources and indexes all operations.
func (idx *Index) Load(specs []SpecSource) error {
	loader := openapi3.NewLoader()
	loader.IsExternalRefsAllowed = false

	for _, src := range specs {
		doc, err := loader.LoadFromFile(src.SpecPath)
		if err != nil {
			return fmt.Errorf("openapi: loading %s (%s): %w", src.ServiceID, src.SpecPath, err)
		}

		if err := doc.Validate(context.Background()); err != nil {
			return fmt.Errorf("openapi: validating %s: %w", src.ServiceID, err)
		}

		for path, pathItem := range doc.Paths.Map() {
			for method, op := range pathItem.Operations() {
				params := make([]*openapi3.Parameter, 0)
				for _, ref := range pathItem.Parameters {
					if ref.Value != nil {
						params = append(params, ref.Value)
					}
				}
				for _, ref := range op.Parameters {
					if ref.Value != nil {
						params = append(params, ref.Value)
					}
				}

				var reqBody *openapi3.RequestBody
				if op.RequestBody != nil && op.RequestBody.Value != nil {
					reqBody = op.RequestBody.Value
				}

				key := operationKey(src.ServiceID, method, path)
				if _, dup := idx.operations[key]; !dup {
					idx.byService[src.ServiceID] = append(idx.byService[src.ServiceID], key)
				}
				idx.operations[key] = IndexedOperation{
					ServiceID:    src.ServiceID,
					OperationID:  op.OperationID,
					Method:       strings.ToUpper(method),
					PathTemplate: path,
					Parameters:   params,
					RequestBody:  reqBody,
				}
			}
		}
	}

	return nil
}

// Operation returns the indexed operation for the given service, method,
// and path.
func (idx *Index) Operation(serviceID, method, path string) (IndexedOperation, bool) {
	op, ok := idx.operations[operationKey(serviceID, method, path)]
	return op, ok
}

// HasOperation reports whether the service documents the given method and path.
func (idx *Index) HasOperation(serviceID, method, path string) bool {
	_, ok := idx.Operation(serviceID, method, path)
	return ok
}

// HasService reports whether any spec was loaded for the service.
func (idx *Index) HasService(serviceID string) bool {
	return len(idx.byService[serviceID]) > 0
}

// Operations returns all indexed operations for the service, sorted by path
// then method.
func (idx *Index) Operations(serviceID string) []IndexedOperation {
	ops := make([]IndexedOperation, 0, len(idx.byService[serviceID]))
	for _, key := range idx.byService[serviceID] {
		ops = append(ops, idx.operations[key])
	}
	sort.Slice(ops, func(i, j int) bool {
		if ops[i].PathTemplate != ops[j].PathTemplate {
			return ops[i].PathTemplate < ops[j].PathTemplate
		}
		return ops[i].Method < ops[j].Method
	})
	return ops
}

// Len returns the number of operations indexed for the service.
func (idx *Index) Len(serviceID string) int {
	return len(idx.byService[serviceID])
}

// RequiredFields returns the required top-level properties of the
// operation's JSON request body, sorted. It returns nil when the operation
// is unknown or declares no JSON body schema.
func (idx *Index) RequiredFields(serviceID, method, path string) []string {
	op, ok := idx.Operation(serviceID, method, path)
	if !ok || op.RequestBody == nil {
		return nil
	}

	ct := op.RequestBody.Content.Get("application/json")
	if ct == nil || ct.Schema == nil || ct.Schema.Value == nil {
		return nil
	}

	required := append([]string(nil), ct.Schema.Value.Required...)
	sort.Strings(required)
	return required
}
