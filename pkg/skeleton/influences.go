package skeleton

import (
	"sort"

	"github.com/Faultbox/skelconv/pkg/formats"
	"github.com/Faultbox/skelconv/pkg/geometry"
)

// Influences emits one record per vertex group entry whose group is named
// after a bone, in bone order. It also returns the sorted names of groups
// that match no bone.
func Influences(bones []formats.Bone, groups map[string][]geometry.Influence) ([]formats.Influence, []string) {
	var out []formats.Influence
	matched := make(map[string]bool, len(bones))
	for i, b := range bones {
		entries, ok := groups[b.Name]
		if !ok {
			continue
		}
		matched[b.Name] = true
		for _, e := range entries {
			out = append(out, formats.Influence{
				Weight:     e.Weight,
				PointIndex: int32(e.Point),
				BoneIndex:  int32(i),
			})
		}
	}

	var unmatched []string
	for name := range groups {
		if !matched[name] {
			unmatched = append(unmatched, name)
		}
	}
	sort.Strings(unmatched)
	return out, unmatched
}
