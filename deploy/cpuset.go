package deploy

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// CpuSet is a set of cpu ids parsed from a range-list expression
// like "2-15", "0,1" or "8-15,2".
type CpuSet map[int]bool

func NewCpuSet(ids ...int) CpuSet {
	set := CpuSet{}
	for _, id := range ids {
		set[id] = true
	}
	return set
}

func ParseCpuSet(expr string) (CpuSet, error) {
	set := CpuSet{}
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return set, nil
	}
	for _, part := range strings.Split(expr, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if strings.Contains(part, "-") {
			bounds := strings.SplitN(part, "-", 2)
			start, err := strconv.Atoi(strings.TrimSpace(bounds[0]))
			if err != nil {
				return nil, fmt.Errorf("invalid cpu range '%s'", part)
			}
			end, err := strconv.Atoi(strings.TrimSpace(bounds[1]))
			if err != nil {
				return nil, fmt.Errorf("invalid cpu range '%s'", part)
			}
			if start > end {
				return nil, fmt.Errorf("invalid cpu range '%s'", part)
			}
			for id := start; id <= end; id++ {
				set[id] = true
			}
			continue
		}
		id, err := strconv.Atoi(part)
		if err != nil {
			return nil, fmt.Errorf("invalid cpu id '%s'", part)
		}
		set[id] = true
	}
	return set, nil
}

func (s CpuSet) Contains(cpu int) bool {
	return s[cpu]
}

func (s CpuSet) Union(other CpuSet) CpuSet {
	union := CpuSet{}
	for cpu := range s {
		union[cpu] = true
	}
	for cpu := range other {
		union[cpu] = true
	}
	return union
}

func (s CpuSet) Intersect(other CpuSet) CpuSet {
	intersection := CpuSet{}
	for cpu := range s {
		if other[cpu] {
			intersection[cpu] = true
		}
	}
	return intersection
}

func (s CpuSet) Sorted() []int {
	ids := make([]int, 0, len(s))
	for cpu := range s {
		ids = append(ids, cpu)
	}
	sort.Ints(ids)
	return ids
}

func (s CpuSet) String() string {
	parts := make([]string, 0, len(s))
	for _, cpu := range s.Sorted() {
		parts = append(parts, strconv.Itoa(cpu))
	}
	return strings.Join(parts, ",")
}
