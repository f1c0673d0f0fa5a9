// Utilities for rendering cURL commands against the forge API.
package shared

import (
	"fmt"
	"strings"
)

// CurlRequest describes a forge API call to render as a runnable cURL command.
type CurlRequest struct {
	Method  string
	BaseURL string
	Path    string
	Token   string
	Body    string
}

// BuildCurlCommand renders the request as a multi-line cURL invocation.
// Unless includeToken is set, the Authorization header references the
// TASKDIFF_TOKEN environment variable so the output is safe to paste into
// shell history.
func BuildCurlCommand(req CurlRequest, includeToken bool) string {
	method := strings.ToUpper(req.Method)
	if method == "" {
		method = "GET"
	}

	url := strings.TrimRight(req.BaseURL, "/") + req.Path

	token := "$" + EnvToken
	if includeToken && req.Token != "" {
		token = req.Token
	}

	var b strings.Builder
	fmt.Fprintf(&b, "curl -X %s \\\n", method)
	fmt.Fprintf(&b, "  -H \"Authorization: Bearer %s\" \\\n", token)
	if req.Body != "" {
		b.WriteString("  -H \"Content-Type: application/json\" \\\n")
		fmt.Fprintf(&b, "  -d '%s' \\\n", req.Body)
	}
	fmt.Fprintf(&b, "  \"%s\"", url)
	return b.String()
}
