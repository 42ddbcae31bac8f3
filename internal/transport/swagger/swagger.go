package swagger

import (
	"net/http"

	httpSwagger "github.com/swaggo/http-swagger"
)

// DocPath is where the router serves api/openapi.yml.
const DocPath = "/openapi.yml"

func Handler() http.Handler {
	return httpSwagger.Handler(
		httpSwagger.URL(DocPath),
		httpSwagger.DocExpansion("list"),
	)
}

// DocHandler serves the OpenAPI document from disk.
func DocHandler(path string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/yaml")
		http.ServeFile(w, r, path)
	}
}
