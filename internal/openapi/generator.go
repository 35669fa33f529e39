// Package openapi generates the gateway's OpenAPI document from the same
// declarative route table the endpoint policy enforces, so the published
// surface can never drift from the enforced one.
package openapi

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/getkin/kin-openapi/openapi3"

	"github.com/addongate/addongate/internal/gate"
)

// GenerateSpec builds an OpenAPI 3.1 spec covering the proxy surface defined
// by the route table plus the gateway's own utility endpoints.
func GenerateSpec(version string, routes []gate.Route) *openapi3.T {
	doc := &openapi3.T{
		OpenAPI: "3.1.0",
		Info: &openapi3.Info{
			Title:       "addongate API",
			Description: "Security gateway in front of the addon control API. Only the operations listed here are forwardable; everything else is denied.",
			Version:     version,
		},
	}

	components := openapi3.NewComponents()
	components.SecuritySchemes = openapi3.SecuritySchemes{
		"bearerAuth": &openapi3.SecuritySchemeRef{
			Value: &openapi3.SecurityScheme{
				Type:   "http",
				Scheme: "bearer",
			},
		},
		"gatewayKey": &openapi3.SecuritySchemeRef{
			Value: &openapi3.SecurityScheme{
				Type: "apiKey",
				In:   "header",
				Name: "X-Gateway-Key",
			},
		},
	}
	components.Schemas = openapi3.Schemas{
		"ErrorResponse": &openapi3.SchemaRef{
			Value: &openapi3.Schema{
				Type: &openapi3.Types{"object"},
				Properties: openapi3.Schemas{
					"error":   &openapi3.SchemaRef{Value: &openapi3.Schema{Type: &openapi3.Types{"string"}}},
					"message": &openapi3.SchemaRef{Value: &openapi3.Schema{Type: &openapi3.Types{"string"}}},
				},
			},
		},
	}
	doc.Components = &components

	doc.Security = openapi3.SecurityRequirements{
		{"bearerAuth": {}},
	}

	doc.Paths = openapi3.NewPaths()
	for _, r := range routes {
		addRoutePath(doc, r)
	}
	addUtilityPaths(doc)

	return doc
}

// MarshalSpec generates the spec and serializes it to JSON. Generation is
// deterministic for a fixed route table, so callers cache the result.
func MarshalSpec(version string, routes []gate.Route) []byte {
	data, err := json.Marshal(GenerateSpec(version, routes))
	if err != nil {
		// The document is built from static tables; marshal cannot fail on
		// well-formed input.
		return []byte(`{}`)
	}
	return data
}

func addRoutePath(doc *openapi3.T, r gate.Route) {
	op := &openapi3.Operation{
		OperationID: r.Name,
		Summary:     summaryFor(r),
		Responses:   defaultResponses(),
	}
	for _, param := range patternParams(r.Pattern) {
		op.Parameters = append(op.Parameters, &openapi3.ParameterRef{
			Value: &openapi3.Parameter{
				Name:     param,
				In:       "path",
				Required: true,
				Schema:   &openapi3.SchemaRef{Value: &openapi3.Schema{Type: &openapi3.Types{"string"}}},
			},
		})
	}

	item := doc.Paths.Value(r.Pattern)
	if item == nil {
		item = &openapi3.PathItem{}
		doc.Paths.Set(r.Pattern, item)
	}
	item.SetOperation(r.Method, op)
}

func addUtilityPaths(doc *openapi3.T) {
	okResp := openapi3.NewResponses()
	okResp.Set("200", &openapi3.ResponseRef{
		Value: &openapi3.Response{Description: strPtr("OK")},
	})

	doc.Paths.Set("/health", &openapi3.PathItem{
		Get: &openapi3.Operation{
			OperationID: "health",
			Summary:     "Liveness probe, no authentication required",
			Security:    &openapi3.SecurityRequirements{},
			Responses:   okResp,
		},
	})
	doc.Paths.Set("/my-ip", &openapi3.PathItem{
		Get: &openapi3.Operation{
			OperationID: "my-ip",
			Summary:     "Echo the resolved client IP for allow-list setup",
			Responses:   defaultResponses(),
		},
	})
}

func defaultResponses() *openapi3.Responses {
	errRef := &openapi3.ResponseRef{
		Value: &openapi3.Response{
			Description: strPtr("Error"),
			Content: openapi3.Content{
				"application/json": &openapi3.MediaType{
					Schema: &openapi3.SchemaRef{Ref: "#/components/schemas/ErrorResponse"},
				},
			},
		},
	}

	responses := openapi3.NewResponses()
	responses.Set("200", &openapi3.ResponseRef{
		Value: &openapi3.Response{Description: strPtr("Upstream response relayed verbatim")},
	})
	responses.Set("401", errRef)
	responses.Set("403", errRef)
	responses.Set("429", errRef)
	responses.Set("503", errRef)
	return responses
}

func summaryFor(r gate.Route) string {
	return fmt.Sprintf("%s (forwards to %s)", r.Name, r.UpstreamPath)
}

func patternParams(pattern string) []string {
	var params []string
	for _, seg := range strings.Split(pattern, "/") {
		if strings.HasPrefix(seg, "{") && strings.HasSuffix(seg, "}") {
			params = append(params, seg[1:len(seg)-1])
		}
	}
	return params
}

func strPtr(s string) *string {
	return &s
}
