// Package api carries the xiaoban OpenAPI document, served at /openapi.yaml.
package api

import _ "embed"

// OpenAPISpec is the OpenAPI 3.1 description of the /v1 status, push and
// proactive routes.
//
//go:embed openapi.yaml
var OpenAPISpec []byte
