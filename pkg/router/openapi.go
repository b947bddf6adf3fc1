package router

import (
	"net/http"

	"ai-chat-app/backend/api"
	"ai-chat-app/backend/pkg/validator"

	"github.com/gin-gonic/gin"
)

// AddOpenAPIValidation validates requests against the OpenAPI document and
// serves it at /api/docs/openapi.yaml. An empty schemaPath uses the built-in
// document. Call before SetupRoutes.
func (r *Router) AddOpenAPIValidation(schemaPath string) error {
	var (
		v   *validator.OpenAPIValidator
		err error
	)
	if schemaPath == "" {
		v, err = validator.New(api.OpenAPI)
	} else {
		v, err = validator.NewOpenAPIValidator(schemaPath)
	}
	if err != nil {
		return err
	}

	r.Engine.Use(v.Middleware())
	r.Engine.GET("/api/docs/openapi.yaml", func(c *gin.Context) {
		c.Data(http.StatusOK, "application/yaml", v.Document())
	})
	r.Logger.Info("OpenAPI validation enabled", "document", v.Title(), "path", schemaPath)
	return nil
}
