package deploy

import (
	"github.com/rs/zerolog"
)

type TopologyRepository interface {
	Load() (*Topology, error)
}

type PlanRepository interface {
	Load() ([]*DatacenterPlan, error)
}

type TemplateRepository interface {
	Get(datacenter, name string) (string, error)
}

type RenderedFile struct {
	Datacenter string
	Host       string
	App        string
	Template   string
	Content    []byte
}

type BinaryLink struct {
	Datacenter string
	Host       string
	App        string
	Target     BinaryTarget
}

// RunResult is the complete in-memory output of one run. Nothing touches
// disk until every triple in the run has passed every stage.
type RunResult struct {
	Files []RenderedFile
	Links []BinaryLink
}

// Filter limits which (datacenter, host, application) triples are rendered
// and written. The zero value matches everything. Validation and index
// building always stay global: a filtered triple may still be referenced by
// another host's template.
type Filter struct {
	Datacenter string
	Host       string
	App        string
}

func (f Filter) Match(app *ApplicationInstance) bool {
	if f.Datacenter != "" && f.Datacenter != app.Datacenter {
		return false
	}
	if f.Host != "" && f.Host != app.Host {
		return false
	}
	if f.App != "" && f.App != app.Name {
		return false
	}
	return true
}

// Engine drives the staged run: load topology, load plans, build the
// reference index, resolve references, validate placement, render, validate
// structure. Each stage collects every error it finds, then aborts the run
// if any occurred, so a single run reports everything that is wrong.
type Engine struct {
	topology  TopologyRepository
	plans     PlanRepository
	templates TemplateRepository
	registry  BinaryRegistry
	logger    zerolog.Logger
}

func NewEngine(topology TopologyRepository, plans PlanRepository, templates TemplateRepository, registry BinaryRegistry, logger zerolog.Logger) *Engine {
	return &Engine{
		topology:  topology,
		plans:     plans,
		templates: templates,
		registry:  registry,
		logger:    logger,
	}
}

type plannedBinding struct {
	host     *Host
	logDir   string
	app      *ApplicationInstance
	binding  TemplateBinding
	resolved string
}

func (e *Engine) Run(filter Filter) (*RunResult, error) {
	topology, err := e.topology.Load()
	if err != nil {
		return nil, err
	}
	errs := ErrorList{}
	for _, host := range topology.Hosts() {
		if err := host.Validate(); err != nil {
			errs = appendAll(errs, err)
		}
	}
	if err := errs.ErrOrNil(); err != nil {
		return nil, err
	}
	e.logger.Debug().Int("hosts", len(topology.Hosts())).Msg("topology loaded")

	plans, err := e.plans.Load()
	if err != nil {
		return nil, err
	}
	planned, links, err := e.checkPlans(topology, plans, filter)
	if err != nil {
		return nil, err
	}

	index, err := BuildReferenceIndex(plans)
	if err != nil {
		return nil, err
	}
	e.logger.Debug().Int("applications", index.Len()).Msg("reference index built")

	resolver := NewResolver(index, topology)
	errs = ErrorList{}
	for _, pb := range planned {
		text, err := e.templates.Get(pb.app.Datacenter, pb.binding.Name)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		resolved, err := resolver.ResolveText(pb.app, pb.binding.CfgEnvs, pb.binding.Name, text)
		if err != nil {
			errs = appendAll(errs, err)
			continue
		}
		pb.resolved = resolved
	}
	if err := errs.ErrOrNil(); err != nil {
		return nil, err
	}

	validator := NewPlacementValidator(topology, e.logger)
	errs = ErrorList{}
	for _, pb := range planned {
		if err := validator.ValidateBinding(pb.host, pb.app, pb.binding); err != nil {
			errs = appendAll(errs, err)
		}
	}
	if err := errs.ErrOrNil(); err != nil {
		return nil, err
	}

	renderer := NewRenderer(validator)
	result := &RunResult{}
	errs = ErrorList{}
	for _, pb := range planned {
		content, err := renderer.Finalize(pb.host, pb.logDir, pb.app, pb.binding, pb.resolved)
		if err != nil {
			errs = appendAll(errs, err)
			continue
		}
		if !filter.Match(pb.app) {
			continue
		}
		result.Files = append(result.Files, RenderedFile{
			Datacenter: pb.app.Datacenter,
			Host:       pb.app.Host,
			App:        pb.app.Name,
			Template:   pb.binding.Name,
			Content:    content,
		})
	}
	if err := errs.ErrOrNil(); err != nil {
		return nil, err
	}

	result.Links = links
	e.logger.Info().
		Int("configs", len(result.Files)).
		Int("binaries", len(result.Links)).
		Msg("run passed all stages")
	return result, nil
}

// checkPlans flattens every plan into bindings, verifies that each planned
// host exists in the topology and resolves every application's binary. The
// returned links honor the filter, the checks do not.
func (e *Engine) checkPlans(topology *Topology, plans []*DatacenterPlan, filter Filter) ([]*plannedBinding, []BinaryLink, error) {
	planned := []*plannedBinding{}
	links := []BinaryLink{}
	errs := ErrorList{}
	for _, plan := range plans {
		for _, hostPlan := range plan.Hosts {
			host, ok := topology.Host(hostPlan.Datacenter, hostPlan.Host)
			if !ok {
				errs = append(errs, NewErrorf(ParseError, Scope{Datacenter: hostPlan.Datacenter, Host: hostPlan.Host}, "", nil,
					"host '%s' has deployments but no topology entry in hosts.yaml", hostPlan.Host))
				continue
			}
			for _, app := range hostPlan.Apps {
				target, err := e.registry.Resolve(app.Binary, app.TagOrVersion)
				if err != nil {
					errs = append(errs, NewErrorf(ReferenceError, app.Scope(""), "binary", app.Binary,
						"cannot resolve binary '%s' (tag/version '%s'): %s", app.Binary, app.TagOrVersion, err))
				} else if filter.Match(app) {
					links = append(links, BinaryLink{
						Datacenter: app.Datacenter,
						Host:       app.Host,
						App:        app.Name,
						Target:     target,
					})
				}
				for _, binding := range app.Templates {
					planned = append(planned, &plannedBinding{
						host:    host,
						logDir:  hostPlan.LogDir,
						app:     app,
						binding: binding,
					})
				}
			}
		}
	}
	if err := errs.ErrOrNil(); err != nil {
		return nil, nil, err
	}
	return planned, links, nil
}

func appendAll(errs ErrorList, err error) ErrorList {
	if list, ok := err.(ErrorList); ok {
		return append(errs, list...)
	}
	return append(errs, err)
}
