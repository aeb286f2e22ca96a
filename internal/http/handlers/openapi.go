package handlers

import (
	"bytes"
	"crypto/sha256"
	_ "embed"
	"encoding/hex"
	"encoding/json"
	"html/template"
	"net/http"
)

//go:embed openapi.json
var openAPIDocument []byte

const openAPIPath = "/v1/openapi.json"

// openAPIETag lets pollers of the document revalidate instead of refetching.
var openAPIETag = func() string {
	sum := sha256.Sum256(openAPIDocument)
	return `"` + hex.EncodeToString(sum[:8]) + `"`
}()

var docsTemplate = template.Must(template.New("docs").Parse(`<!DOCTYPE html>
<html lang="en">
  <head>
    <meta charset="utf-8" />
    <title>{{.Title}} {{.Version}}</title>
    <meta name="viewport" content="width=device-width, initial-scale=1" />
    <meta name="description" content="{{.Description}}" />
    <style>
      body { margin: 0; }
      redoc { display: block; height: 100vh; }
    </style>
  </head>
  <body>
    <noscript>{{.Description}} Raw document: <a href="{{.SpecURL}}">{{.SpecURL}}</a></noscript>
    <redoc spec-url="{{.SpecURL}}" hide-download-button required-props-first></redoc>
    <script src="https://cdn.jsdelivr.net/npm/redoc@2.2.0/bundles/redoc.standalone.js"></script>
  </body>
</html>`))

// docsPage is rendered once from the embedded document's info block.
var docsPage = func() []byte {
	var doc struct {
		Info struct {
			Title       string `json:"title"`
			Version     string `json:"version"`
			Description string `json:"description"`
		} `json:"info"`
	}
	if err := json.Unmarshal(openAPIDocument, &doc); err != nil {
		panic("handlers: embedded openapi.json is invalid: " + err.Error())
	}
	var buf bytes.Buffer
	err := docsTemplate.Execute(&buf, map[string]string{
		"Title":       doc.Info.Title,
		"Version":     doc.Info.Version,
		"Description": doc.Info.Description,
		"SpecURL":     openAPIPath,
	})
	if err != nil {
		panic("handlers: render docs page: " + err.Error())
	}
	return buf.Bytes()
}()

func (a *App) OpenAPIJSON(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("ETag", openAPIETag)
	if r.Header.Get("If-None-Match") == openAPIETag {
		w.WriteHeader(http.StatusNotModified)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(openAPIDocument)
}

func (a *App) OpenAPIDocs(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(docsPage)
}
