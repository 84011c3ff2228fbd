package httpapi

import (
	"github.com/go-chi/chi/v5"
	httpSwagger "github.com/swaggo/http-swagger"
)

// SwaggerDocPath is where the generated OpenAPI document is served.
const SwaggerDocPath = "/swagger/doc.json"

// MountSwagger serves the Swagger UI under /swagger/. The document itself is
// registered by the docs package; binaries that do not import it get a UI
// that reports the missing document.
func MountSwagger(r chi.Router) {
	r.Get("/swagger/*", httpSwagger.Handler(httpSwagger.URL(SwaggerDocPath)))
}
