package deploy

import "sort"

type Nic struct {
	Name string
	Ip   string
	Type string
}

type NumaNode struct {
	Id   int
	Cpus CpuSet
}

// Host is one machine from a datacenter's topology file. Cpu ids referenced
// anywhere for this host must be inside [0, Cpus), and the isolated and
// shared sets must not overlap.
type Host struct {
	Name         string
	Datacenter   string
	Cpus         int
	NumaNodes    []NumaNode
	IsolatedCpus CpuSet
	SharedCpus   CpuSet
	Nics         []Nic
}

func (h *Host) scope() Scope {
	return Scope{Datacenter: h.Datacenter, Host: h.Name}
}

func (h *Host) Validate() error {
	errs := ErrorList{}
	for _, cpu := range h.IsolatedCpus.Union(h.SharedCpus).Sorted() {
		if cpu < 0 || cpu >= h.Cpus {
			errs = append(errs, NewErrorf(ParseError, h.scope(), "", cpu,
				"cpu id %d out of range [0, %d)", cpu, h.Cpus))
		}
	}
	for _, node := range h.NumaNodes {
		for _, cpu := range node.Cpus.Sorted() {
			if cpu < 0 || cpu >= h.Cpus {
				errs = append(errs, NewErrorf(ParseError, h.scope(), "numa_nodes", cpu,
					"cpu id %d in numa node %d out of range [0, %d)", cpu, node.Id, h.Cpus))
			}
		}
	}
	if overlap := h.IsolatedCpus.Intersect(h.SharedCpus); len(overlap) > 0 {
		errs = append(errs, NewErrorf(ParseError, h.scope(), "isolated_cpus", overlap.String(),
			"isolated_cpus and shared_cpus overlap"))
	}
	return errs.ErrOrNil()
}

// NumaNodeOf returns the numa node owning the given cpu id.
func (h *Host) NumaNodeOf(cpu int) (int, bool) {
	for _, node := range h.NumaNodes {
		if node.Cpus.Contains(cpu) {
			return node.Id, true
		}
	}
	return 0, false
}

func (h *Host) NicIp(name string) (string, bool) {
	for _, nic := range h.Nics {
		if nic.Name == name {
			return nic.Ip, true
		}
	}
	return "", false
}

// Topology is the read-only snapshot of every host in every datacenter,
// frozen before any reference is resolved.
type Topology struct {
	hosts map[string]map[string]*Host
}

func NewTopology(hosts []*Host) *Topology {
	topology := &Topology{hosts: map[string]map[string]*Host{}}
	for _, host := range hosts {
		if topology.hosts[host.Datacenter] == nil {
			topology.hosts[host.Datacenter] = map[string]*Host{}
		}
		topology.hosts[host.Datacenter][host.Name] = host
	}
	return topology
}

func (t *Topology) Host(datacenter, name string) (*Host, bool) {
	host, ok := t.hosts[datacenter][name]
	return host, ok
}

func (t *Topology) Hosts() []*Host {
	all := []*Host{}
	for _, hosts := range t.hosts {
		for _, host := range hosts {
			all = append(all, host)
		}
	}
	sort.Slice(all, func(i, j int) bool {
		if all[i].Datacenter != all[j].Datacenter {
			return all[i].Datacenter < all[j].Datacenter
		}
		return all[i].Name < all[j].Name
	})
	return all
}
