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

// rangeList tolerates a bare integer where a range-list string is expected,
// since YAML parses "isolated_cpus: 1" as an int scalar.
type rangeList string

func (r *rangeList) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var raw interface{}
	if err := unmarshal(&raw); err != nil {
		return err
	}
	if raw == nil {
		*r = ""
		return nil
	}
	*r = rangeList(fmt.Sprintf("%v", raw))
	return nil
}

type topologyNumaDoc struct {
	Id   int       `yaml:"id"`
	Cpus rangeList `yaml:"cpus"`
}

type topologyNicDoc struct {
	Name string `yaml:"name"`
	Ip   string `yaml:"ip"`
	Type string `yaml:"type"`
}

type topologyHostDoc struct {
	Cpus         int               `yaml:"cpus"`
	NumaNodes    []topologyNumaDoc `yaml:"numa_nodes"`
	IsolatedCpus rangeList         `yaml:"isolated_cpus"`
	SharedCpus   rangeList         `yaml:"shared_cpus"`
	Nics         []topologyNicDoc  `yaml:"nics"`
}

// TopologyRepository loads <root>/deployments/<dc>/hosts.yaml for every
// datacenter directory. Datacenters without a hosts.yaml are skipped.
type TopologyRepository struct {
	root   string
	logger zerolog.Logger
}

func NewTopologyRepository(root string, logger zerolog.Logger) *TopologyRepository {
	return &TopologyRepository{root: root, logger: logger}
}

func (repo *TopologyRepository) Load() (*deploy.Topology, error) {
	datacenters, err := listDatacenters(repo.root)
	if err != nil {
		return nil, err
	}

	hosts := []*deploy.Host{}
	errs := deploy.ErrorList{}
	for _, dc := range datacenters {
		filename := filepath.Join(repo.root, "deployments", dc, "hosts.yaml")
		content, err := ioutil.ReadFile(filename)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, util.NewError(err, "cannot read topology file %s", filename)
		}

		docs := map[string]topologyHostDoc{}
		if err := yaml.Unmarshal(content, &docs); err != nil {
			errs = append(errs, deploy.NewErrorf(deploy.ParseError, deploy.Scope{Datacenter: dc}, "", nil,
				"cannot parse hosts.yaml: %s", err))
			continue
		}

		names := make([]string, 0, len(docs))
		for name := range docs {
			names = append(names, name)
		}
		sort.Strings(names)

		for _, name := range names {
			host, err := repo.buildHost(dc, name, docs[name])
			if err != nil {
				errs = appendAll(errs, err)
				continue
			}
			hosts = append(hosts, host)
		}
		repo.logger.Debug().Str("dc", dc).Int("hosts", len(names)).Msg("topology file loaded")
	}
	if err := errs.ErrOrNil(); err != nil {
		return nil, err
	}
	return deploy.NewTopology(hosts), nil
}

func (repo *TopologyRepository) buildHost(dc, name string, doc topologyHostDoc) (*deploy.Host, error) {
	scope := deploy.Scope{Datacenter: dc, Host: name}
	errs := deploy.ErrorList{}

	isolated, err := deploy.ParseCpuSet(string(doc.IsolatedCpus))
	if err != nil {
		errs = append(errs, deploy.NewErrorf(deploy.ParseError, scope, "isolated_cpus", string(doc.IsolatedCpus), "%s", err))
	}
	shared, err := deploy.ParseCpuSet(string(doc.SharedCpus))
	if err != nil {
		errs = append(errs, deploy.NewErrorf(deploy.ParseError, scope, "shared_cpus", string(doc.SharedCpus), "%s", err))
	}

	numaNodes := make([]deploy.NumaNode, 0, len(doc.NumaNodes))
	for _, node := range doc.NumaNodes {
		cpus, err := deploy.ParseCpuSet(string(node.Cpus))
		if err != nil {
			errs = append(errs, deploy.NewErrorf(deploy.ParseError, scope, "numa_nodes", string(node.Cpus), "%s", err))
			continue
		}
		numaNodes = append(numaNodes, deploy.NumaNode{Id: node.Id, Cpus: cpus})
	}

	nics := make([]deploy.Nic, 0, len(doc.Nics))
	for _, nic := range doc.Nics {
		nics = append(nics, deploy.Nic{Name: nic.Name, Ip: nic.Ip, Type: nic.Type})
	}

	if err := errs.ErrOrNil(); err != nil {
		return nil, err
	}
	return &deploy.Host{
		Name:         name,
		Datacenter:   dc,
		Cpus:         doc.Cpus,
		NumaNodes:    numaNodes,
		IsolatedCpus: isolated,
		SharedCpus:   shared,
		Nics:         nics,
	}, nil
}

func listDatacenters(root string) ([]string, error) {
	deployRoot := filepath.Join(root, "deployments")
	entries, err := ioutil.ReadDir(deployRoot)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, util.NewError(err, "cannot list deployments directory %s", deployRoot)
	}
	datacenters := []string{}
	for _, entry := range entries {
		if entry.IsDir() {
			datacenters = append(datacenters, entry.Name())
		}
	}
	sort.Strings(datacenters)
	return datacenters, nil
}

func appendAll(errs deploy.ErrorList, err error) deploy.ErrorList {
	if list, ok := err.(deploy.ErrorList); ok {
		return append(errs, list...)
	}
	return append(errs, err)
}
