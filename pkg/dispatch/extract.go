package dispatch

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/morezero/cluster-gateway/pkg/handlers"
	"github.com/morezero/cluster-gateway/pkg/routing"
)

const extractLogPrefix = "dispatch:extract"

// extractParams builds the single parameter mapping for one request: path
// segments first, then either the JSON body (mutating verbs) or the query
// string, with the later source overriding on key collision.
//
// A body that is present but not a JSON object is swallowed: extraction
// still succeeds with the path-derived parameters alone. Only a failure to
// read the body stream is an error.
func extractParams(r *http.Request, match *routing.MatchResult) (map[string]interface{}, error) {
	params := make(map[string]interface{}, len(match.Params))
	for key, value := range match.Params {
		params[key] = value
	}

	if r.Method != http.MethodPut && r.Method != http.MethodPost {
		for key, value := range handlers.ParseQueryString(r.URL.RawQuery) {
			params[key] = value
		}
		return params, nil
	}

	// Read exactly Content-Length bytes; a missing or zero length means
	// the body is never touched.
	length := r.ContentLength
	if length <= 0 {
		return params, nil
	}
	body := make([]byte, length)
	if _, err := io.ReadFull(r.Body, body); err != nil {
		return nil, fmt.Errorf("%s - read request body: %w", extractLogPrefix, err)
	}

	var bodyParams map[string]interface{}
	if err := json.Unmarshal(body, &bodyParams); err != nil {
		slog.Debug(fmt.Sprintf("%s - unable to parse request body: %v", extractLogPrefix, err))
		return params, nil
	}
	for key, value := range bodyParams {
		params[key] = value
	}
	return params, nil
}
