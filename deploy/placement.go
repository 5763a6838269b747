package deploy

import (
	"fmt"
	"strconv"

	"github.com/rs/zerolog"
)

// CpuRole is one cfg_envs key carrying a cpu assignment. Busy-spin roles
// must land on isolated cpus, everything else on shared cpus.
type CpuRole struct {
	Key      string
	BusySpin bool
}

var CpuRoles = []CpuRole{
	{Key: "log_cpu"},
	{Key: "main_loop_cpu", BusySpin: true},
	{Key: "admin_loop_cpu"},
}

// PlacementValidator enforces the cpu assignment rules of every binding and
// re-validates the rendered document structurally. Busy-spin cpu usage is
// tracked per host across applications, since two busy-polling loops on one
// core defeat the isolation entirely.
type PlacementValidator struct {
	topology *Topology
	logger   zerolog.Logger
	busy     map[string]map[int]string
}

func NewPlacementValidator(topology *Topology, logger zerolog.Logger) *PlacementValidator {
	return &PlacementValidator{
		topology: topology,
		logger:   logger,
		busy:     map[string]map[int]string{},
	}
}

// ValidateBinding checks the raw cfg_envs cpu roles of one binding against
// its host before anything is rendered.
func (v *PlacementValidator) ValidateBinding(host *Host, app *ApplicationInstance, binding TemplateBinding) error {
	scope := app.Scope(binding.Name)
	errs := ErrorList{}

	assigned := map[string]int{}
	for _, role := range CpuRoles {
		raw, ok := binding.CfgEnvs[role.Key]
		if !ok {
			errs = append(errs, NewErrorf(PlacementError, scope, role.Key, nil,
				"missing cpu field '%s' in cfg_envs", role.Key))
			continue
		}
		cpu, err := cpuValue(raw)
		if err != nil {
			errs = append(errs, NewErrorf(PlacementError, scope, role.Key, raw,
				"invalid cpu id"))
			continue
		}
		assigned[role.Key] = cpu

		if cpu < 0 || cpu >= host.Cpus {
			errs = append(errs, NewErrorf(PlacementError, scope, role.Key, cpu,
				"cpu id %d out of range [0, %d) for host %s", cpu, host.Cpus, host.Name))
			continue
		}
		if role.BusySpin {
			if !host.IsolatedCpus.Contains(cpu) {
				errs = append(errs, NewErrorf(PlacementError, scope, role.Key, cpu,
					"%s %d not in isolated_cpus [%s]", role.Key, cpu, host.IsolatedCpus.String()))
				continue
			}
			if err := v.registerBusy(scope, host, app.Name, role.Key, cpu); err != nil {
				errs = append(errs, err)
			}
		} else if !host.SharedCpus.Contains(cpu) {
			errs = append(errs, NewErrorf(PlacementError, scope, role.Key, cpu,
				"%s %d not in shared_cpus [%s]", role.Key, cpu, host.SharedCpus.String()))
		}
	}

	// within one binding every role gets its own cpu
	seen := map[int]string{}
	for _, role := range CpuRoles {
		cpu, ok := assigned[role.Key]
		if !ok {
			continue
		}
		if other, dup := seen[cpu]; dup {
			errs = append(errs, NewErrorf(PlacementError, scope, role.Key, cpu,
				"cpu id %d assigned to both '%s' and '%s'", cpu, other, role.Key))
			continue
		}
		seen[cpu] = role.Key
	}

	// informational only: operators review numa locality by hand
	for _, cpu := range NewCpuSet(values(assigned)...).Sorted() {
		node, ok := host.NumaNodeOf(cpu)
		event := v.logger.Info().
			Str("dc", app.Datacenter).
			Str("host", host.Name).
			Str("app", app.Name).
			Int("cpu", cpu)
		if ok {
			event.Int("numa_node", node).Msg("cpu numa assignment")
		} else {
			event.Msg("cpu has no numa node in topology")
		}
	}

	return errs.ErrOrNil()
}

// ValidateStructure re-checks the parsed rendered document independent of how
// the template text was written: template authors produce free-form JSON and
// can express a semantically dangerous config in syntactically valid text.
func (v *PlacementValidator) ValidateStructure(host *Host, app *ApplicationInstance, binding TemplateBinding, doc map[string]interface{}) error {
	scope := app.Scope(binding.Name)
	errs := ErrorList{}

	loops, ok := doc["event_loops"].([]interface{})
	if !ok {
		return ErrorList{NewErrorf(StructuralError, scope, "event_loops", nil,
			"'event_loops' is missing or not a list")}
	}

	adminLoopCpu, adminKnown := -1, false
	if raw, ok := binding.CfgEnvs["admin_loop_cpu"]; ok {
		if cpu, err := cpuValue(raw); err == nil {
			adminLoopCpu, adminKnown = cpu, true
		}
	}

	adminLoops := 0
	for _, entry := range loops {
		loop, ok := entry.(map[string]interface{})
		if !ok {
			continue
		}
		name, _ := loop["name"].(string)
		busySpin, busyIsBool := loop["busy_spin"].(bool)

		cpu, err := cpuValue(loop["cpu_id"])
		if err != nil {
			errs = append(errs, NewErrorf(StructuralError, scope, "cpu_id", loop["cpu_id"],
				"invalid cpu_id in event loop '%s'", name))
			continue
		}
		if cpu < 0 || cpu >= host.Cpus {
			errs = append(errs, NewErrorf(StructuralError, scope, "cpu_id", cpu,
				"cpu id %d out of range [0, %d) in event loop '%s'", cpu, host.Cpus, name))
			continue
		}

		if name == "admin_loop" {
			adminLoops++
			if !busyIsBool || busySpin {
				errs = append(errs, NewErrorf(StructuralError, scope, "busy_spin", loop["busy_spin"],
					"admin_loop must have busy_spin=false"))
			}
			if adminKnown && cpu != adminLoopCpu {
				errs = append(errs, NewErrorf(StructuralError, scope, "cpu_id", cpu,
					"admin_loop cpu_id %d does not match cfg_envs.admin_loop_cpu %d", cpu, adminLoopCpu))
			}
		}

		if busyIsBool && busySpin {
			if !host.IsolatedCpus.Contains(cpu) {
				errs = append(errs, NewErrorf(StructuralError, scope, "cpu_id", cpu,
					"busy_spin loop '%s' cpu_id %d not in isolated_cpus [%s]", name, cpu, host.IsolatedCpus.String()))
				continue
			}
			if err := v.registerBusy(scope, host, app.Name, "cpu_id", cpu); err != nil {
				errs = append(errs, err)
			}
		}
	}

	if adminLoops == 0 {
		errs = append(errs, NewErrorf(StructuralError, scope, "event_loops", nil,
			"admin_loop not found in event_loops"))
	} else if adminLoops > 1 {
		errs = append(errs, NewErrorf(StructuralError, scope, "event_loops", adminLoops,
			"exactly one admin_loop expected, found %d", adminLoops))
	}

	return errs.ErrOrNil()
}

func (v *PlacementValidator) registerBusy(scope Scope, host *Host, appName, field string, cpu int) error {
	hostKey := host.Datacenter + "/" + host.Name
	usage := v.busy[hostKey]
	if usage == nil {
		usage = map[int]string{}
		v.busy[hostKey] = usage
	}
	if other, ok := usage[cpu]; ok && other != appName {
		return NewErrorf(PlacementError, scope, field, cpu,
			"busy-spin cpu %d already used by application '%s' on host '%s' (applications '%s' and '%s' collide)",
			cpu, other, host.Name, other, appName)
	}
	usage[cpu] = appName
	return nil
}

func cpuValue(raw interface{}) (int, error) {
	switch value := raw.(type) {
	case int:
		return value, nil
	case int64:
		return int(value), nil
	case float64:
		if value != float64(int(value)) {
			return 0, fmt.Errorf("cpu id must be an integer, got %v", value)
		}
		return int(value), nil
	case string:
		return strconv.Atoi(value)
	default:
		return 0, fmt.Errorf("cpu id must be an integer, got %T", raw)
	}
}

func values(m map[string]int) []int {
	out := make([]int, 0, len(m))
	for _, v := range m {
		out = append(out, v)
	}
	return out
}
