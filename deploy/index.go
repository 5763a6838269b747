package deploy

type indexEntry struct {
	App *ApplicationInstance
	Env CfgEnvs
}

// ReferenceIndex maps every application name to its instance and referable
// cfg_envs. It is built once after all plans load and never mutated, so
// resolution can read it without coordination.
type ReferenceIndex struct {
	entries map[string]indexEntry
}

// BuildReferenceIndex enforces global application name uniqueness across the
// whole repository. The referable cfg_envs of an application are those of
// its first template binding.
func BuildReferenceIndex(plans []*DatacenterPlan) (*ReferenceIndex, error) {
	index := &ReferenceIndex{entries: map[string]indexEntry{}}
	errs := ErrorList{}
	for _, plan := range plans {
		for _, hostPlan := range plan.Hosts {
			for _, app := range hostPlan.Apps {
				if prev, ok := index.entries[app.Name]; ok {
					errs = append(errs, NewErrorf(ParseError, app.Scope(""), "", nil,
						"application '%s' defined multiple times: (dc=%s, host=%s) and (dc=%s, host=%s); application names must be globally unique",
						app.Name, prev.App.Datacenter, prev.App.Host, app.Datacenter, app.Host))
					continue
				}
				env := CfgEnvs{}
				if len(app.Templates) > 0 {
					env = app.Templates[0].CfgEnvs
				}
				index.entries[app.Name] = indexEntry{App: app, Env: env}
			}
		}
	}
	if err := errs.ErrOrNil(); err != nil {
		return nil, err
	}
	return index, nil
}

func (ix *ReferenceIndex) lookup(name string) (indexEntry, bool) {
	entry, ok := ix.entries[name]
	return entry, ok
}

func (ix *ReferenceIndex) Len() int {
	return len(ix.entries)
}
