package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/manorfm/mcpauth/internal/domain"
)

const maxBodyBytes = 1 << 20

// requestParams reads a JSON object or a urlencoded form into flat string
// values. Non-string JSON scalars are formatted, nested values ignored.
func requestParams(w http.ResponseWriter, r *http.Request) (map[string]string, error) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	params := make(map[string]string)

	if isJSON(r) {
		var raw map[string]any
		if err := json.NewDecoder(r.Body).Decode(&raw); err != nil {
			return nil, domain.ErrInvalidRequest.WithMessage("Invalid request body")
		}
		for key, value := range raw {
			switch v := value.(type) {
			case string:
				params[key] = v
			case float64:
				params[key] = strconv.FormatFloat(v, 'f', -1, 64)
			case bool:
				params[key] = strconv.FormatBool(v)
			}
		}
		return params, nil
	}

	if err := r.ParseForm(); err != nil {
		return nil, domain.ErrInvalidRequest.WithMessage("Invalid form body")
	}
	for key := range r.PostForm {
		params[key] = r.PostForm.Get(key)
	}
	return params, nil
}

func isJSON(r *http.Request) bool {
	return strings.HasPrefix(strings.ToLower(r.Header.Get("Content-Type")), "application/json")
}
