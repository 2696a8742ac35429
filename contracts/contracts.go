// Package contracts embeds the OpenAPI documents served and enforced by the API.
package contracts

import (
	_ "embed"
	"fmt"

	"github.com/getkin/kin-openapi/openapi3"
)

//go:embed admin.yaml
var adminYAML []byte

// Admin parses and validates the administrative API contract.
func Admin() (*openapi3.T, error) {
	loader := openapi3.NewLoader()
	doc, err := loader.LoadFromData(adminYAML)
	if err != nil {
		return nil, fmt.Errorf("load admin contract: %w", err)
	}
	if err := doc.Validate(loader.Context); err != nil {
		return nil, fmt.Errorf("validate admin contract: %w", err)
	}
	return doc, nil
}
