package deploy

import (
	"encoding/json"
	"path"
	"regexp"
	"strings"
)

var leftoverPattern = regexp.MustCompile(`\{\{[^}]*\}\}`)

// Renderer turns a resolved template text into the final serialized config:
// leftover-marker scan, JSON parse, log directory injection on the parsed
// tree, structural re-validation and deterministic serialization.
type Renderer struct {
	validator *PlacementValidator
}

func NewRenderer(validator *PlacementValidator) *Renderer {
	return &Renderer{validator: validator}
}

// Finalize takes template text whose placeholders have already been resolved.
// Repeated runs over unchanged input produce byte-identical output: object
// keys are serialized in sorted order.
func (r *Renderer) Finalize(host *Host, logDir string, app *ApplicationInstance, binding TemplateBinding, resolved string) ([]byte, error) {
	scope := app.Scope(binding.Name)

	if strings.Contains(resolved, "{{") || strings.Contains(resolved, "}}") {
		leftover := leftoverPattern.FindAllString(resolved, -1)
		if len(leftover) == 0 {
			leftover = []string{"stray '{{' or '}}' marker"}
		}
		return nil, NewErrorf(RenderError, scope, "", strings.Join(leftover, ", "),
			"unresolved template markers remain in rendered config")
	}

	var doc interface{}
	if err := json.Unmarshal([]byte(resolved), &doc); err != nil {
		return nil, NewErrorf(RenderError, scope, "", jsonFragment(resolved, err),
			"rendered config is not valid JSON: %s", err)
	}
	obj, ok := doc.(map[string]interface{})
	if !ok {
		return nil, NewErrorf(RenderError, scope, "", nil,
			"rendered config must be a JSON object")
	}

	if logDir != "" {
		logging, ok := obj["logging"].(map[string]interface{})
		if !ok {
			return nil, NewErrorf(RenderError, scope, "logging", nil,
				"host log_dir is set but 'logging' is missing or not an object")
		}
		logging["log_dir"] = path.Join(logDir, app.Name)
	}

	if err := r.validator.ValidateStructure(host, app, binding, obj); err != nil {
		return nil, err
	}

	out, err := json.MarshalIndent(obj, "", "    ")
	if err != nil {
		return nil, NewErrorf(RenderError, scope, "", nil,
			"cannot serialize rendered config: %s", err)
	}
	return append(out, '\n'), nil
}

// jsonFragment extracts the text around a JSON syntax error so the operator
// sees the offending fragment instead of just a byte offset.
func jsonFragment(text string, err error) string {
	syntaxErr, ok := err.(*json.SyntaxError)
	if !ok {
		if len(text) > 80 {
			return text[:80] + "..."
		}
		return text
	}
	offset := int(syntaxErr.Offset)
	if offset > len(text) {
		offset = len(text)
	}
	start := offset - 40
	if start < 0 {
		start = 0
	}
	end := offset + 40
	if end > len(text) {
		end = len(text)
	}
	return text[start:end]
}
