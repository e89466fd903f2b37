package registry

import (
	"sort"

	"gonum.org/v1/gonum/spatial/vptree"

	"github.com/kilianp07/autoaid/core/model"
)

// site is one distinct position in the proximity index together with the
// mechanics standing on it. Distance is the great-circle distance in meters,
// which is a metric on the sphere.
type site struct {
	pos     model.Position
	members []member
}

type member struct {
	id     string
	rating float64
}

func (s *site) Distance(c vptree.Comparable) float64 {
	return s.pos.DistanceMeters(c.(*site).pos)
}

// sites groups members by position. The tree is built over distinct
// positions only: vptree does not partition coincident points reliably.
type sites struct {
	byPos map[model.Position]*site
	order []vptree.Comparable
}

func newSites(n int) *sites {
	return &sites{byPos: make(map[model.Position]*site, n), order: make([]vptree.Comparable, 0, n)}
}

func (s *sites) add(pos model.Position, m member) {
	st, ok := s.byPos[pos]
	if !ok {
		st = &site{pos: pos}
		s.byPos[pos] = st
		s.order = append(s.order, st)
	}
	st.members = append(st.members, m)
}

// nearest returns the members within radius of origin ordered by distance,
// higher rating and lower id. Each member appears at most once.
func (s *sites) nearest(origin model.Position, radius float64) ([]model.Candidate, error) {
	if len(s.order) == 0 {
		return nil, nil
	}
	tree, err := vptree.New(s.order, 0, nil)
	if err != nil {
		return nil, err
	}
	keep := vptree.NewDistKeeper(radius)
	tree.NearestSet(keep, &site{pos: origin})

	var out []model.Candidate
	seen := make(map[*site]struct{}, len(keep.Heap))
	for _, cd := range keep.Heap {
		// the keeper seeds its heap with a nil sentinel at the radius
		if cd.Comparable == nil || cd.Dist > radius {
			continue
		}
		st := cd.Comparable.(*site)
		if _, dup := seen[st]; dup {
			continue
		}
		seen[st] = struct{}{}
		for _, m := range st.members {
			out = append(out, model.Candidate{MechanicID: m.id, DistanceMeters: cd.Dist, Rating: m.rating})
		}
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.DistanceMeters != b.DistanceMeters {
			return a.DistanceMeters < b.DistanceMeters
		}
		if a.Rating != b.Rating {
			return a.Rating > b.Rating
		}
		return a.MechanicID < b.MechanicID
	})
	return out, nil
}
