package check

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"github.com/tidwall/gjson"

	"github.com/wesleyorama2/stampede/internal/http"
)

// ExtractJSON extracts a value from a JSON document using a JSONPath
// expression such as $.users[0].name. null is returned as "null".
func ExtractJSON(body []byte, path string) (string, bool) {
	if len(body) == 0 || path == "" {
		return "", false
	}

	result := gjson.GetBytes(body, toGjsonPath(path))
	if !result.Exists() {
		return "", false
	}
	if result.Type == gjson.Null {
		return "null", true
	}
	return result.String(), true
}

// toGjsonPath converts a JSONPath expression to a gjson path.
//
//	$.users[0].name  -> users.0.name
//	$['name']        -> name
//	$[0]             -> 0
//
// Filters and recursive descent are not supported.
func toGjsonPath(path string) string {
	path = strings.TrimPrefix(path, "$")
	path = strings.TrimPrefix(path, ".")
	if path == "" {
		return "@this"
	}

	path = strings.NewReplacer(`['`, ".", `']`, "", `["`, ".", `"]`, "").Replace(path)
	path = strings.NewReplacer("[", ".", "]", "").Replace(path)
	return strings.TrimPrefix(path, ".")
}

func jsonPathPredicate(path, cond, value string) (func(*http.Result) bool, error) {
	if path == "" {
		return nil, errors.New("jsonpath check requires a path")
	}

	switch cond {
	case "", "exists":
		return func(r *http.Result) bool {
			_, ok := ExtractJSON(r.Body, path)
			return ok
		}, nil
	case "not_exists":
		return func(r *http.Result) bool {
			_, ok := ExtractJSON(r.Body, path)
			return r.Err == nil && !ok
		}, nil
	case "eq":
		return func(r *http.Result) bool {
			v, ok := ExtractJSON(r.Body, path)
			return ok && v == value
		}, nil
	case "ne":
		return func(r *http.Result) bool {
			v, ok := ExtractJSON(r.Body, path)
			return ok && v != value
		}, nil
	case "contains":
		return func(r *http.Result) bool {
			v, ok := ExtractJSON(r.Body, path)
			return ok && strings.Contains(v, value)
		}, nil
	case "matches":
		re, err := regexp.Compile(value)
		if err != nil {
			return nil, fmt.Errorf("invalid regex pattern %q: %w", value, err)
		}
		return func(r *http.Result) bool {
			v, ok := ExtractJSON(r.Body, path)
			return ok && re.MatchString(v)
		}, nil
	default:
		return nil, fmt.Errorf("%w %q for jsonpath", ErrUnknownCondition, cond)
	}
}

// CompileSchema compiles a JSON schema document.
func CompileSchema(schema string) (*jsonschema.Schema, error) {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("schema.json", strings.NewReader(schema)); err != nil {
		return nil, fmt.Errorf("invalid schema: %w", err)
	}
	compiled, err := compiler.Compile("schema.json")
	if err != nil {
		return nil, fmt.Errorf("invalid schema: %w", err)
	}
	return compiled, nil
}

func jsonSchemaPredicate(schema string) (func(*http.Result) bool, error) {
	if strings.TrimSpace(schema) == "" {
		return nil, errors.New("jsonschema check requires a schema")
	}
	compiled, err := CompileSchema(schema)
	if err != nil {
		return nil, err
	}

	return func(r *http.Result) bool {
		var doc interface{}
		if err := json.Unmarshal(r.Body, &doc); err != nil {
			return false
		}
		return compiled.Validate(doc) == nil
	}, nil
}
