package deploy

// CfgEnvs is the named set of configuration values supplied to one template
// binding. Values are literals or placeholder-bearing strings.
type CfgEnvs map[string]interface{}

type TemplateBinding struct {
	Name    string
	CfgEnvs CfgEnvs
}

// ApplicationInstance is one named application placed on one host. Names are
// globally unique across every datacenter, which is what makes
// cross-application references resolvable.
type ApplicationInstance struct {
	Name         string
	Datacenter   string
	Host         string
	Binary       string
	TagOrVersion string
	Templates    []TemplateBinding
}

func (a *ApplicationInstance) Scope(template string) Scope {
	return Scope{
		Datacenter: a.Datacenter,
		Host:       a.Host,
		App:        a.Name,
		Template:   template,
	}
}

// HostPlan groups the applications bound to one host, plus host-level plan
// metadata like the log directory.
type HostPlan struct {
	Datacenter string
	Host       string
	LogDir     string
	Apps       []*ApplicationInstance
}

type DatacenterPlan struct {
	Id    string
	Hosts []*HostPlan
}
