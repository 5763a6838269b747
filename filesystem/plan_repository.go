package filesystem

import (
	"fmt"
	"io/ioutil"
	"os"
	"path/filepath"
	"sort"

	"github.com/min-tian-thomas/deployment/deploy"
	"github.com/min-tian-thomas/deployment/util"

	"github.com/rs/zerolog"
	yaml "gopkg.in/yaml.v2"
)

// host-level plan keys that are metadata rather than applications
const planLogDirKey = "log_dir"
const planSharedCpusKey = "shared_cpus"

// PlanRepository loads <root>/deployments/<dc>/deployments.yaml for every
// datacenter. The cfg_envs list-vs-mapping quirk is normalized here, once:
// a list form keeps only its first element.
type PlanRepository struct {
	root   string
	logger zerolog.Logger
}

func NewPlanRepository(root string, logger zerolog.Logger) *PlanRepository {
	return &PlanRepository{root: root, logger: logger}
}

func (repo *PlanRepository) Load() ([]*deploy.DatacenterPlan, error) {
	datacenters, err := listDatacenters(repo.root)
	if err != nil {
		return nil, err
	}

	plans := []*deploy.DatacenterPlan{}
	errs := deploy.ErrorList{}
	for _, dc := range datacenters {
		filename := filepath.Join(repo.root, "deployments", dc, "deployments.yaml")
		content, err := ioutil.ReadFile(filename)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, util.NewError(err, "cannot read plan file %s", filename)
		}

		raw := map[string]map[string]interface{}{}
		if err := yaml.Unmarshal(content, &raw); err != nil {
			errs = append(errs, deploy.NewErrorf(deploy.ParseError, deploy.Scope{Datacenter: dc}, "", nil,
				"cannot parse deployments.yaml: %s", err))
			continue
		}

		plan := &deploy.DatacenterPlan{Id: dc}
		hostNames := make([]string, 0, len(raw))
		for name := range raw {
			hostNames = append(hostNames, name)
		}
		sort.Strings(hostNames)

		for _, hostName := range hostNames {
			hostPlan, err := repo.buildHostPlan(dc, hostName, raw[hostName])
			if err != nil {
				errs = appendAll(errs, err)
				continue
			}
			plan.Hosts = append(plan.Hosts, hostPlan)
		}
		plans = append(plans, plan)
		repo.logger.Debug().Str("dc", dc).Int("hosts", len(plan.Hosts)).Msg("plan file loaded")
	}
	if err := errs.ErrOrNil(); err != nil {
		return nil, err
	}
	return plans, nil
}

func (repo *PlanRepository) buildHostPlan(dc, hostName string, entries map[string]interface{}) (*deploy.HostPlan, error) {
	hostPlan := &deploy.HostPlan{Datacenter: dc, Host: hostName}
	errs := deploy.ErrorList{}

	appNames := make([]string, 0, len(entries))
	for key := range entries {
		appNames = append(appNames, key)
	}
	sort.Strings(appNames)

	for _, key := range appNames {
		value := entries[key]
		switch key {
		case planLogDirKey:
			if value != nil {
				hostPlan.LogDir = fmt.Sprintf("%v", value)
			}
		case planSharedCpusKey:
			// legacy host-level key, cpu sets are owned by hosts.yaml now
		default:
			app, err := repo.buildApp(dc, hostName, key, value)
			if err != nil {
				errs = appendAll(errs, err)
				continue
			}
			hostPlan.Apps = append(hostPlan.Apps, app)
		}
	}
	if err := errs.ErrOrNil(); err != nil {
		return nil, err
	}
	return hostPlan, nil
}

func (repo *PlanRepository) buildApp(dc, hostName, appName string, value interface{}) (*deploy.ApplicationInstance, error) {
	scope := deploy.Scope{Datacenter: dc, Host: hostName, App: appName}

	def, ok := asStringMap(value)
	if !ok {
		return nil, deploy.NewErrorf(deploy.ParseError, scope, "", nil,
			"application definition must be a mapping")
	}

	app := &deploy.ApplicationInstance{Name: appName, Datacenter: dc, Host: hostName}
	if binary, ok := def["binary"]; ok && binary != nil {
		app.Binary = fmt.Sprintf("%v", binary)
	}
	if app.Binary == "" {
		return nil, deploy.NewErrorf(deploy.ParseError, scope, "binary", nil,
			"binary not defined for application '%s'", appName)
	}

	switch {
	case def["tag"] != nil:
		app.TagOrVersion = fmt.Sprintf("%v", def["tag"])
	case def["version"] != nil:
		app.TagOrVersion = fmt.Sprintf("%v", def["version"])
	default:
		app.TagOrVersion = "prod"
	}

	templates, ok := def["templates"].([]interface{})
	if !ok || len(templates) == 0 {
		return nil, deploy.NewErrorf(deploy.ParseError, scope, "templates", nil,
			"templates not defined for application '%s'", appName)
	}
	for _, entry := range templates {
		doc, ok := asStringMap(entry)
		if !ok {
			continue
		}
		name := ""
		if raw, ok := doc["name"]; ok && raw != nil {
			name = fmt.Sprintf("%v", raw)
		}
		if name == "" {
			return nil, deploy.NewErrorf(deploy.ParseError, scope, "name", nil,
				"template 'name' is required for application '%s'", appName)
		}
		cfgEnvs, err := normalizeCfgEnvs(deploy.Scope{Datacenter: dc, Host: hostName, App: appName, Template: name}, doc["cfg_envs"])
		if err != nil {
			return nil, err
		}
		app.Templates = append(app.Templates, deploy.TemplateBinding{Name: name, CfgEnvs: cfgEnvs})
	}
	return app, nil
}

// normalizeCfgEnvs accepts both the mapping form and the single-element list
// form; only the first list element is ever consumed.
func normalizeCfgEnvs(scope deploy.Scope, raw interface{}) (deploy.CfgEnvs, error) {
	if list, ok := raw.([]interface{}); ok {
		if len(list) == 0 {
			return nil, deploy.NewErrorf(deploy.ParseError, scope, "cfg_envs", nil,
				"cfg_envs list is empty")
		}
		raw = list[0]
	}
	env, ok := asStringMap(raw)
	if !ok {
		return nil, deploy.NewErrorf(deploy.ParseError, scope, "cfg_envs", nil,
			"cfg_envs must be a mapping or a list of mappings")
	}
	return deploy.CfgEnvs(env), nil
}

// asStringMap converts the map shapes yaml.v2 produces into a string-keyed
// map.
func asStringMap(value interface{}) (map[string]interface{}, bool) {
	switch m := value.(type) {
	case map[string]interface{}:
		return m, true
	case map[interface{}]interface{}:
		out := make(map[string]interface{}, len(m))
		for k, v := range m {
			out[fmt.Sprintf("%v", k)] = v
		}
		return out, true
	default:
		return nil, false
	}
}
