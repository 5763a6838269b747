package deploy

import (
	"fmt"
	"regexp"
	"strings"
)

var placeholderPattern = regexp.MustCompile(`\{\{\s*([A-Za-z0-9_]+)(?:\.([A-Za-z0-9_]+))?\s*\}\}`)

// Resolver substitutes {{key}} and {{AppName.key}} placeholders. Bare keys
// read the binding's own cfg_envs, dotted keys go through the global
// reference index. Resolution chains: a resolved value may itself contain
// placeholders, so every chain carries a visited set of (application, key)
// pairs to catch cycles.
type Resolver struct {
	index    *ReferenceIndex
	topology *Topology
}

func NewResolver(index *ReferenceIndex, topology *Topology) *Resolver {
	return &Resolver{index: index, topology: topology}
}

type chainKey struct {
	app string
	key string
}

// ResolveText substitutes every placeholder in a template text for the given
// application binding. All placeholder errors in the text are reported, not
// just the first.
func (r *Resolver) ResolveText(app *ApplicationInstance, env CfgEnvs, template, text string) (string, error) {
	scope := app.Scope(template)
	self := indexEntry{App: app, Env: env}

	matches := placeholderPattern.FindAllStringSubmatchIndex(text, -1)
	if len(matches) == 0 {
		return text, nil
	}

	errs := ErrorList{}
	out := strings.Builder{}
	last := 0
	for _, m := range matches {
		out.WriteString(text[last:m[0]])
		last = m[1]

		first := text[m[2]:m[3]]
		dottedKey := ""
		if m[4] >= 0 {
			dottedKey = text[m[4]:m[5]]
		}

		visited := map[chainKey]bool{}
		var value string
		var err error
		if dottedKey == "" {
			value, err = r.resolveValue(scope, self, first, visited)
		} else {
			value, err = r.resolveReference(scope, self, first, dottedKey, visited)
		}
		if err != nil {
			errs = append(errs, err)
			continue
		}
		out.WriteString(value)
	}
	out.WriteString(text[last:])

	if err := errs.ErrOrNil(); err != nil {
		return "", err
	}
	return out.String(), nil
}

// resolveReference handles one {{AppName.key}} hop: index lookup, then the
// same-host gate for shared-memory keys, applied before the referenced value
// is resolved any further.
func (r *Resolver) resolveReference(scope Scope, referrer indexEntry, refApp, refKey string, visited map[chainKey]bool) (string, error) {
	target, ok := r.index.lookup(refApp)
	if !ok {
		return "", NewErrorf(ReferenceError, scope, refApp+"."+refKey, nil,
			"referenced application '%s' not found in any deployment plan", refApp)
	}
	if strings.Contains(strings.ToLower(refKey), "shm") {
		if referrer.App.Datacenter != target.App.Datacenter || referrer.App.Host != target.App.Host {
			return "", NewErrorf(ReferenceError, scope, refApp+"."+refKey, nil,
				"shared-memory key '%s.%s' must be used on the same host (referrer dc=%s host=%s, owner dc=%s host=%s)",
				refApp, refKey, referrer.App.Datacenter, referrer.App.Host, target.App.Datacenter, target.App.Host)
		}
	}
	return r.resolveValue(scope, target, refKey, visited)
}

func (r *Resolver) resolveValue(scope Scope, owner indexEntry, key string, visited map[chainKey]bool) (string, error) {
	ck := chainKey{app: owner.App.Name, key: key}
	if visited[ck] {
		return "", NewErrorf(ReferenceError, scope, key, nil,
			"reference cycle detected at '%s.%s'", owner.App.Name, key)
	}
	// marked only while this frame resolves: a value may reference the same
	// key from two sibling placeholders, only a back-edge is a cycle
	visited[ck] = true
	defer delete(visited, ck)

	raw, ok := owner.Env[key]
	if !ok {
		return "", NewErrorf(ReferenceError, scope, key, nil,
			"key '%s' not found in cfg_envs of application '%s'", key, owner.App.Name)
	}

	// listen_nic carries a nic name but renders as the ip of that nic on the
	// owning application's host, not the referrer's.
	if key == "listen_nic" {
		return r.nicIp(scope, owner, raw)
	}

	value := stringify(raw)
	inner := placeholderPattern.FindAllStringSubmatchIndex(value, -1)
	if len(inner) == 0 {
		return value, nil
	}

	out := strings.Builder{}
	last := 0
	for _, m := range inner {
		out.WriteString(value[last:m[0]])
		last = m[1]

		first := value[m[2]:m[3]]
		dottedKey := ""
		if m[4] >= 0 {
			dottedKey = value[m[4]:m[5]]
		}

		var resolved string
		var err error
		if dottedKey == "" {
			resolved, err = r.resolveValue(scope, owner, first, visited)
		} else {
			resolved, err = r.resolveReference(scope, owner, first, dottedKey, visited)
		}
		if err != nil {
			return "", err
		}
		out.WriteString(resolved)
	}
	out.WriteString(value[last:])
	return out.String(), nil
}

func (r *Resolver) nicIp(scope Scope, owner indexEntry, raw interface{}) (string, error) {
	if raw == nil {
		return "", NewErrorf(ReferenceError, scope, "listen_nic", nil,
			"listen_nic is not specified in cfg_envs of application '%s'", owner.App.Name)
	}
	nicName := stringify(raw)
	host, ok := r.topology.Host(owner.App.Datacenter, owner.App.Host)
	if !ok {
		return "", NewErrorf(ReferenceError, scope, "listen_nic", nicName,
			"host '%s' of application '%s' not found in topology", owner.App.Host, owner.App.Name)
	}
	ip, ok := host.NicIp(nicName)
	if !ok {
		return "", NewErrorf(ReferenceError, scope, "listen_nic", nicName,
			"ip for nic '%s' not found on host '%s'", nicName, owner.App.Host)
	}
	return ip, nil
}

func stringify(v interface{}) string {
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprintf("%v", v)
}
