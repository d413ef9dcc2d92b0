package apidocs

import (
	"bytes"
	"embed"
	"encoding/json"
	"fmt"
	"html/template"
	"net/http"

	"github.com/OliverSchlueter/goutils/problems"
	"github.com/go-chi/chi/v5"
)

//go:embed send.json fetch.json
var documents embed.FS

var swaggerPage = template.Must(template.New("docs").Parse(`<!doctype html>
<html>
  <head>
    <meta charset="utf-8" />
    <title>{{.}} Docs</title>
    <link rel="stylesheet" href="https://unpkg.com/swagger-ui-dist@5/swagger-ui.css" />
  </head>
  <body>
    <div id="swagger-ui"></div>
    <script src="https://unpkg.com/swagger-ui-dist@5/swagger-ui-bundle.js"></script>
    <script>
      window.ui = SwaggerUIBundle({
        url: '/howto',
        dom_id: '#swagger-ui'
      });
    </script>
  </body>
</html>
`))

// Handler serves the OpenAPI document of one service on /howto and a
// Swagger UI for it on /docs.
type Handler struct {
	document []byte
	page     []byte
}

func New(service string) (*Handler, error) {
	document, err := documents.ReadFile(service + ".json")
	if err != nil {
		return nil, fmt.Errorf("no api document for service %q: %w", service, err)
	}

	var info struct {
		Info struct {
			Title string `json:"title"`
		} `json:"info"`
	}
	if err := json.Unmarshal(document, &info); err != nil {
		return nil, fmt.Errorf("invalid api document for service %q: %w", service, err)
	}

	var page bytes.Buffer
	if err := swaggerPage.Execute(&page, info.Info.Title); err != nil {
		return nil, err
	}

	return &Handler{
		document: document,
		page:     page.Bytes(),
	}, nil
}

func (h *Handler) Register(r chi.Router) {
	r.HandleFunc("/howto", h.handleHowto)
	r.HandleFunc("/docs", h.handleDocs)
}

func (h *Handler) handleHowto(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		problems.MethodNotAllowed(r.Method, []string{http.MethodGet}).WriteToHTTP(w)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write(h.document)
}

func (h *Handler) handleDocs(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		problems.MethodNotAllowed(r.Method, []string{http.MethodGet}).WriteToHTTP(w)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write(h.page)
}
