package deploy

import (
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

type fakeTopologyRepo struct {
	topology *Topology
	err      error
}

func (r *fakeTopologyRepo) Load() (*Topology, error) { return r.topology, r.err }

type fakePlanRepo struct {
	plans []*DatacenterPlan
	err   error
}

func (r *fakePlanRepo) Load() ([]*DatacenterPlan, error) { return r.plans, r.err }

type fakeTemplateRepo struct {
	templates map[string]string
}

func (r *fakeTemplateRepo) Get(datacenter, name string) (string, error) {
	text, ok := r.templates[datacenter+"/"+name]
	if !ok {
		return "", NewErrorf(ParseError, Scope{Datacenter: datacenter, Template: name}, "", nil,
			"template '%s' not found", name)
	}
	return text, nil
}

type fakeRegistry struct {
	targets map[string]BinaryTarget
}

func (r *fakeRegistry) Resolve(binary, tagOrVersion string) (BinaryTarget, error) {
	target, ok := r.targets[binary]
	if !ok {
		return BinaryTarget{}, ErrBinaryNotFound
	}
	return target, nil
}

const publisherTemplate = `{
    "endpoint": "{{listen_nic}}:{{listen_port}}",
    "event_loops": [
        {"name": "main_loop", "cpu_id": {{main_loop_cpu}}, "busy_spin": true},
        {"name": "admin_loop", "cpu_id": {{admin_loop_cpu}}, "busy_spin": false}
    ],
    "logging": {"level": "info"}
}`

const consumerTemplate = `{
    "upstream": "{{dce_md_publisher.endpoint}}",
    "event_loops": [
        {"name": "main_loop", "cpu_id": {{main_loop_cpu}}, "busy_spin": true},
        {"name": "admin_loop", "cpu_id": {{admin_loop_cpu}}, "busy_spin": false}
    ],
    "logging": {"level": "info"}
}`

func engineWorld(t *testing.T) (*Engine, []*DatacenterPlan) {
	t.Helper()

	publisher := &ApplicationInstance{
		Name: "dce_md_publisher", Datacenter: "idc_shanghai", Host: "host01",
		Binary: "md_publisher", TagOrVersion: "prod",
		Templates: []TemplateBinding{{
			Name: "publisher.json",
			CfgEnvs: CfgEnvs{
				"listen_nic":     "eth0",
				"listen_port":    8080,
				"endpoint":       "{{listen_nic}}:{{listen_port}}",
				"log_cpu":        0,
				"main_loop_cpu":  2,
				"admin_loop_cpu": 1,
			},
		}},
	}
	consumer := &ApplicationInstance{
		Name: "dce_md_consumer", Datacenter: "idc_shanghai", Host: "host01",
		Binary: "md_consumer", TagOrVersion: "prod",
		Templates: []TemplateBinding{{
			Name: "consumer.json",
			CfgEnvs: CfgEnvs{
				"log_cpu":        0,
				"main_loop_cpu":  3,
				"admin_loop_cpu": 1,
			},
		}},
	}
	plans := []*DatacenterPlan{{
		Id: "idc_shanghai",
		Hosts: []*HostPlan{{
			Datacenter: "idc_shanghai",
			Host:       "host01",
			LogDir:     "/var/log/dce",
			Apps:       []*ApplicationInstance{publisher, consumer},
		}},
	}}

	engine := NewEngine(
		&fakeTopologyRepo{topology: NewTopology([]*Host{testHost(t)})},
		&fakePlanRepo{plans: plans},
		&fakeTemplateRepo{templates: map[string]string{
			"idc_shanghai/publisher.json": publisherTemplate,
			"idc_shanghai/consumer.json":  consumerTemplate,
		}},
		&fakeRegistry{targets: map[string]BinaryTarget{
			"md_publisher": {Binary: "md_publisher", Version: "1.2.0", Path: "md_publisher/1.2.0/md_publisher"},
			"md_consumer":  {Binary: "md_consumer", Version: "2.0.1", Path: "md_consumer/2.0.1/md_consumer"},
		}},
		zerolog.Nop(),
	)
	return engine, plans
}

func TestEngineRun(t *testing.T) {
	engine, _ := engineWorld(t)

	result, err := engine.Run(Filter{})
	if err != nil {
		t.Fatalf("run failed: %s", err)
	}
	if len(result.Files) != 2 {
		t.Fatalf("expected 2 rendered files, got %d", len(result.Files))
	}
	if len(result.Links) != 2 {
		t.Fatalf("expected 2 binary links, got %d", len(result.Links))
	}

	var consumerText string
	for _, file := range result.Files {
		if file.App == "dce_md_consumer" {
			consumerText = string(file.Content)
		}
	}
	if !strings.Contains(consumerText, `"upstream": "192.168.1.100:8080"`) {
		t.Errorf("cross-application reference not resolved:\n%s", consumerText)
	}
	if !strings.Contains(consumerText, `"log_dir": "/var/log/dce/dce_md_consumer"`) {
		t.Errorf("log_dir not injected:\n%s", consumerText)
	}
}

func TestEngineRunFilter(t *testing.T) {
	engine, _ := engineWorld(t)

	result, err := engine.Run(Filter{App: "dce_md_consumer"})
	if err != nil {
		t.Fatalf("filtered run failed: %s", err)
	}
	if len(result.Files) != 1 || result.Files[0].App != "dce_md_consumer" {
		t.Fatalf("filter must limit output to the requested application, got %+v", result.Files)
	}
	if len(result.Links) != 1 || result.Links[0].App != "dce_md_consumer" {
		t.Fatalf("filter must limit links too, got %+v", result.Links)
	}
}

func TestEngineRunFilteredAppStillValidated(t *testing.T) {
	engine, plans := engineWorld(t)
	// break the app that the filter excludes from output
	plans[0].Hosts[0].Apps[0].Templates[0].CfgEnvs["main_loop_cpu"] = 0

	_, err := engine.Run(Filter{App: "dce_md_consumer"})
	if err == nil {
		t.Fatal("filter must not skip validation of other applications")
	}
	if !strings.Contains(err.Error(), "dce_md_publisher") {
		t.Errorf("unexpected error: %s", err)
	}
}

func TestEngineRunUnknownHost(t *testing.T) {
	engine, plans := engineWorld(t)
	plans[0].Hosts[0].Host = "host99"
	for _, app := range plans[0].Hosts[0].Apps {
		app.Host = "host99"
	}

	_, err := engine.Run(Filter{})
	if err == nil {
		t.Fatal("plan for a host missing from the topology must fail")
	}
	if !strings.Contains(err.Error(), "host99") || !strings.Contains(err.Error(), "no topology entry") {
		t.Errorf("unexpected error: %s", err)
	}
}

func TestEngineRunUnknownBinary(t *testing.T) {
	engine, plans := engineWorld(t)
	plans[0].Hosts[0].Apps[1].Binary = "md_ghost"

	_, err := engine.Run(Filter{})
	if err == nil {
		t.Fatal("unresolvable binary must fail the run")
	}
	if !strings.Contains(err.Error(), "md_ghost") {
		t.Errorf("unexpected error: %s", err)
	}
}

func TestEngineRunBadReference(t *testing.T) {
	engine, plans := engineWorld(t)
	plans[0].Hosts[0].Apps[1].Templates[0].CfgEnvs["extra"] = "{{dce_md_ghost.endpoint}}"
	engine.templates.(*fakeTemplateRepo).templates["idc_shanghai/consumer.json"] = strings.Replace(
		consumerTemplate, `"logging"`, `"extra": "{{extra}}", "logging"`, 1)

	_, err := engine.Run(Filter{})
	if err == nil {
		t.Fatal("reference to an unknown application must fail the run")
	}
	if !strings.Contains(err.Error(), "dce_md_ghost") {
		t.Errorf("unexpected error: %s", err)
	}
}

func TestEngineRunCollectsAllErrors(t *testing.T) {
	engine, plans := engineWorld(t)
	plans[0].Hosts[0].Apps[0].Templates[0].CfgEnvs["main_loop_cpu"] = 0
	plans[0].Hosts[0].Apps[1].Templates[0].CfgEnvs["main_loop_cpu"] = 1

	_, err := engine.Run(Filter{})
	if err == nil {
		t.Fatal("expected error")
	}
	msg := err.Error()
	if !strings.Contains(msg, "dce_md_publisher") || !strings.Contains(msg, "dce_md_consumer") {
		t.Errorf("one run must report every placement error: %s", msg)
	}
}

func TestEngineRunMissingTemplate(t *testing.T) {
	engine, _ := engineWorld(t)
	delete(engine.templates.(*fakeTemplateRepo).templates, "idc_shanghai/consumer.json")

	_, err := engine.Run(Filter{})
	if err == nil {
		t.Fatal("missing template file must fail the run")
	}
	if !strings.Contains(err.Error(), "consumer.json") {
		t.Errorf("unexpected error: %s", err)
	}
}
