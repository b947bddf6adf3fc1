// Package validator rejects requests that do not match the OpenAPI document
// before they reach a handler.
package validator

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	apperrors "ai-chat-app/backend/pkg/errors"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/getkin/kin-openapi/openapi3filter"
	"github.com/getkin/kin-openapi/routers"
	"github.com/getkin/kin-openapi/routers/gorillamux"
	"github.com/gin-gonic/gin"
)

// OpenAPIValidator matches requests to documented operations
type OpenAPIValidator struct {
	doc    *openapi3.T
	router routers.Router
	raw    []byte
}

// New parses and validates an OpenAPI document
func New(raw []byte) (*OpenAPIValidator, error) {
	loader := openapi3.NewLoader()
	doc, err := loader.LoadFromData(raw)
	if err != nil {
		return nil, fmt.Errorf("parse openapi document: %w", err)
	}
	if err := doc.Validate(context.Background()); err != nil {
		return nil, fmt.Errorf("invalid openapi document: %w", err)
	}
	// match on path only, whatever host the server is reached on
	doc.Servers = nil

	router, err := gorillamux.NewRouter(doc)
	if err != nil {
		return nil, fmt.Errorf("openapi router: %w", err)
	}
	return &OpenAPIValidator{doc: doc, router: router, raw: raw}, nil
}

// NewOpenAPIValidator loads the document at path
func NewOpenAPIValidator(path string) (*OpenAPIValidator, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read openapi document: %w", err)
	}
	return New(raw)
}

// Document returns the source the validator was built from
func (v *OpenAPIValidator) Document() []byte { return v.raw }

// Title is the document's info.title
func (v *OpenAPIValidator) Title() string {
	if v.doc.Info == nil {
		return ""
	}
	return v.doc.Info.Title
}

// Middleware rejects requests that do not match the documented operation.
// Routes absent from the document pass through untouched.
func (v *OpenAPIValidator) Middleware() gin.HandlerFunc {
	opts := &openapi3filter.Options{AuthenticationFunc: openapi3filter.NoopAuthenticationFunc}

	return func(c *gin.Context) {
		route, params, err := v.router.FindRoute(c.Request)
		if err != nil {
			c.Next()
			return
		}

		err = openapi3filter.ValidateRequest(c.Request.Context(), &openapi3filter.RequestValidationInput{
			Request:    c.Request,
			PathParams: params,
			Route:      route,
			Options:    opts,
		})
		if err != nil {
			c.Error(apperrors.BadRequestWithDetails(apperrors.CodeValidation, describe(err), err.Error()))
			c.Abort()
			return
		}
		c.Next()
	}
}

func describe(err error) string {
	var reqErr *openapi3filter.RequestError
	if errors.As(err, &reqErr) {
		switch {
		case reqErr.Parameter != nil:
			return fmt.Sprintf("Invalid parameter %q", reqErr.Parameter.Name)
		case reqErr.RequestBody != nil:
			return "Invalid request body"
		}
	}
	first, _, _ := strings.Cut(err.Error(), "\n")
	return first
}
