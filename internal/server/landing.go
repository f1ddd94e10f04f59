package server

import (
	"fmt"
	"html/template"
	"net/http"
)

// landingTemplate renders the minimal static page served at "/" (SPEC_FULL.md
// Supplemented Features #2). It never touches an upstream; it only lists the
// configured preset route IDs, grounded on the auth-proxy's pattern of
// answering certain paths with small, locally-rendered responses.
var landingTemplate = template.Must(template.New("landing").Parse(`<!DOCTYPE html>
<html>
<head><title>llmgateway</title></head>
<body>
<h1>llmgateway</h1>
<p>Reverse proxy for LLM upstreams. Configured presets:</p>
<ul>
{{range .}}<li>{{.}}</li>
{{end}}
</ul>
</body>
</html>
`))

func (s *Server) serveLanding(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := landingTemplate.Execute(w, s.routes.IDs()); err != nil {
		fmt.Fprintf(w, "llmgateway")
	}
}
