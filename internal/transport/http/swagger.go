package transporthttp

import (
	"html/template"
	"log/slog"
	"net/http"

	"athenascraper/docs"
)

const openAPIPath = "/swagger/openapi.yaml"

var swaggerTemplate = template.Must(template.New("swagger").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
  <meta charset="utf-8" />
  <title>{{.Title}} {{.Version}} · API docs</title>
  <link rel="stylesheet" href="https://unpkg.com/swagger-ui-dist@5/swagger-ui.css" />
</head>
<body style="margin:0">
  <div id="swagger-ui"></div>
  <script src="https://unpkg.com/swagger-ui-dist@5/swagger-ui-bundle.js"></script>
  <script>
    window.onload = function() {
      SwaggerUIBundle({ url: {{.DocumentURL}}, dom_id: '#swagger-ui', tryItOutEnabled: true });
    };
  </script>
</body>
</html>`))

type swaggerPage struct {
	Title       string
	Version     string
	DocumentURL string
}

func (s *Server) swaggerUI(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodGet) {
		return
	}
	if len(docs.OpenAPISpec) == 0 {
		s.writeError(w, http.StatusNotFound, "api docs not bundled")
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	page := swaggerPage{Title: serviceName, Version: serviceVersion, DocumentURL: openAPIPath}
	if err := swaggerTemplate.Execute(w, page); err != nil {
		s.logger.Debug("render swagger ui", slog.String("error", err.Error()))
	}
}

func (s *Server) openAPIDocument(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodGet) {
		return
	}
	if len(docs.OpenAPISpec) == 0 {
		s.writeError(w, http.StatusNotFound, "api docs not bundled")
		return
	}

	w.Header().Set("Content-Type", "application/yaml")
	if _, err := w.Write(docs.OpenAPISpec); err != nil {
		s.logger.Debug("write openapi document", slog.String("error", err.Error()))
	}
}
