package filesystem

import (
	"fmt"
	"io/ioutil"
	"os"
	"path/filepath"
	"strings"

	"github.com/min-tian-thomas/deployment/deploy"
	"github.com/min-tian-thomas/deployment/util"

	"github.com/rs/zerolog"
	yaml "gopkg.in/yaml.v2"
)

// PlanAnnotator rewrites deployment plan files with operator comments derived
// from the topology: the resolved ip next to listen_nic values and the numa
// node next to cpu assignments. Existing comments are discarded. Document
// order is preserved via yaml.MapSlice.
type PlanAnnotator struct {
	root   string
	logger zerolog.Logger
}

func NewPlanAnnotator(root string, logger zerolog.Logger) *PlanAnnotator {
	return &PlanAnnotator{root: root, logger: logger}
}

func (a *PlanAnnotator) RefreshAll(topology *deploy.Topology) error {
	datacenters, err := listDatacenters(a.root)
	if err != nil {
		return err
	}
	for _, dc := range datacenters {
		if err := a.Refresh(dc, topology); err != nil {
			return err
		}
	}
	return nil
}

func (a *PlanAnnotator) Refresh(dc string, topology *deploy.Topology) error {
	filename := filepath.Join(a.root, "deployments", dc, "deployments.yaml")
	content, err := ioutil.ReadFile(filename)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return util.NewError(err, "cannot read plan file %s", filename)
	}

	doc := yaml.MapSlice{}
	if err := yaml.Unmarshal(content, &doc); err != nil {
		return deploy.NewErrorf(deploy.ParseError, deploy.Scope{Datacenter: dc}, "", nil,
			"cannot parse deployments.yaml: %s", err)
	}

	lines := []string{}
	for _, hostItem := range doc {
		hostName := fmt.Sprintf("%v", hostItem.Key)
		apps, ok := hostItem.Value.(yaml.MapSlice)
		if !ok {
			continue
		}
		lines = append(lines, hostName+":")

		host, _ := topology.Host(dc, hostName)
		for _, item := range apps {
			key := fmt.Sprintf("%v", item.Key)
			if key == planLogDirKey || key == planSharedCpusKey {
				lines = append(lines, fmt.Sprintf("  %s: %v", key, item.Value))
				continue
			}
			appDef, ok := item.Value.(yaml.MapSlice)
			if !ok {
				continue
			}
			lines = append(lines, "  "+key+":")
			lines = append(lines, a.appLines(host, appDef)...)
		}
	}

	out := strings.Join(lines, "\n") + "\n"
	if err := ioutil.WriteFile(filename, []byte(out), 0644); err != nil {
		return util.NewError(err, "cannot rewrite plan file %s", filename)
	}
	a.logger.Info().Str("dc", dc).Msg("plan comments refreshed")
	return nil
}

func (a *PlanAnnotator) appLines(host *deploy.Host, appDef yaml.MapSlice) []string {
	lines := []string{}
	for _, field := range appDef {
		name := fmt.Sprintf("%v", field.Key)
		if name != "templates" {
			lines = append(lines, fmt.Sprintf("    %s: %v", name, field.Value))
			continue
		}
		templates, ok := field.Value.([]interface{})
		if !ok {
			continue
		}
		lines = append(lines, "    templates:")
		for _, entry := range templates {
			binding, ok := entry.(yaml.MapSlice)
			if !ok {
				continue
			}
			lines = append(lines, a.bindingLines(host, binding)...)
		}
	}
	return lines
}

func (a *PlanAnnotator) bindingLines(host *deploy.Host, binding yaml.MapSlice) []string {
	lines := []string{}
	first := true
	for _, field := range binding {
		name := fmt.Sprintf("%v", field.Key)
		prefix := "        "
		if first {
			prefix = "      - "
			first = false
		}
		if name != "cfg_envs" {
			lines = append(lines, fmt.Sprintf("%s%s: %v", prefix, name, field.Value))
			continue
		}
		env, ok := field.Value.(yaml.MapSlice)
		if !ok {
			continue
		}
		lines = append(lines, prefix+"cfg_envs:")
		for _, pair := range env {
			key := fmt.Sprintf("%v", pair.Key)
			lines = append(lines, fmt.Sprintf("          %s: %v%s", key, pair.Value, a.comment(host, key, pair.Value)))
		}
	}
	return lines
}

func (a *PlanAnnotator) comment(host *deploy.Host, key string, value interface{}) string {
	if host == nil {
		return ""
	}
	if key == "listen_nic" {
		if ip, ok := host.NicIp(fmt.Sprintf("%v", value)); ok {
			return "  # " + ip
		}
		return ""
	}
	for _, role := range deploy.CpuRoles {
		if key != role.Key {
			continue
		}
		cpu, ok := value.(int)
		if !ok {
			return ""
		}
		if node, ok := host.NumaNodeOf(cpu); ok {
			return fmt.Sprintf("  # numa %d", node)
		}
		return ""
	}
	return ""
}
