package deploy

import (
	"errors"
	"fmt"
	"strings"
)

type ErrorKind string

const (
	ParseError      ErrorKind = "parse"
	ReferenceError  ErrorKind = "reference"
	PlacementError  ErrorKind = "placement"
	RenderError     ErrorKind = "render"
	StructuralError ErrorKind = "structural"
	IOError         ErrorKind = "io"
)

var ErrBinaryNotFound = errors.New("binary not defined in required_binaries.yaml")
var ErrVersionNotRequired = errors.New("version not listed in required_versions")

// Scope locates an error inside the deployment repository. Empty fields are
// omitted from the rendered message.
type Scope struct {
	Datacenter string
	Host       string
	App        string
	Template   string
}

type Error struct {
	Kind    ErrorKind
	Scope   Scope
	Field   string
	Value   interface{}
	Message string
}

func NewErrorf(kind ErrorKind, scope Scope, field string, value interface{}, msg string, args ...interface{}) *Error {
	return &Error{
		Kind:    kind,
		Scope:   scope,
		Field:   field,
		Value:   value,
		Message: fmt.Sprintf(msg, args...),
	}
}

func (e *Error) Error() string {
	parts := []string{}
	if e.Scope.Datacenter != "" {
		parts = append(parts, "dc="+e.Scope.Datacenter)
	}
	if e.Scope.Host != "" {
		parts = append(parts, "host="+e.Scope.Host)
	}
	if e.Scope.App != "" {
		parts = append(parts, "app="+e.Scope.App)
	}
	if e.Scope.Template != "" {
		parts = append(parts, "template="+e.Scope.Template)
	}
	if e.Field != "" {
		parts = append(parts, "field="+e.Field)
	}
	if e.Value != nil {
		parts = append(parts, fmt.Sprintf("value=%v", e.Value))
	}
	if len(parts) == 0 {
		return fmt.Sprintf("%s: %s", e.Kind, e.Message)
	}
	return fmt.Sprintf("%s: %s (%s)", e.Kind, e.Message, strings.Join(parts, " "))
}

// ErrorList collects every error discovered by one stage so that a single
// run reports them all before aborting.
type ErrorList []error

func (l ErrorList) Error() string {
	if len(l) == 1 {
		return l[0].Error()
	}
	lines := make([]string, 0, len(l)+1)
	lines = append(lines, fmt.Sprintf("%d errors:", len(l)))
	for _, err := range l {
		lines = append(lines, "  - "+err.Error())
	}
	return strings.Join(lines, "\n")
}

func (l ErrorList) ErrOrNil() error {
	if len(l) == 0 {
		return nil
	}
	return l
}
