package reservation

import "sort"

// Selection is a set of room ids; order carries no meaning.
type Selection struct {
	ids map[int64]struct{}
}

func NewSelection(ids ...int64) Selection {
	s := Selection{ids: make(map[int64]struct{}, len(ids))}
	for _, id := range ids {
		s.Add(id)
	}
	return s
}

func (s *Selection) Add(id int64) {
	if s.ids == nil {
		s.ids = make(map[int64]struct{})
	}
	s.ids[id] = struct{}{}
}

func (s *Selection) Remove(id int64) {
	delete(s.ids, id)
}

func (s Selection) Has(id int64) bool {
	_, ok := s.ids[id]
	return ok
}

func (s Selection) Len() int {
	return len(s.ids)
}

// IDs returns the members in ascending order.
func (s Selection) IDs() []int64 {
	out := make([]int64, 0, len(s.ids))
	for id := range s.ids {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func (s *Selection) Clear() {
	s.ids = make(map[int64]struct{})
}

// Retain drops every id keep rejects and returns the dropped ids, sorted.
func (s *Selection) Retain(keep func(int64) bool) []int64 {
	var removed []int64
	for id := range s.ids {
		if !keep(id) {
			removed = append(removed, id)
			delete(s.ids, id)
		}
	}
	sort.Slice(removed, func(i, j int) bool { return removed[i] < removed[j] })
	return removed
}
