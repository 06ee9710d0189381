package speed

import "sort"

// EventSet is the set of events currently considered in effect.
type EventSet map[EventID]struct{}

func (s EventSet) Add(id EventID) {
	s[id] = struct{}{}
}

func (s EventSet) Remove(id EventID) {
	delete(s, id)
}

func (s EventSet) Contains(id EventID) bool {
	_, ok := s[id]
	return ok
}

// Sorted returns the members in ascending order.
func (s EventSet) Sorted() []EventID {
	ids := make([]EventID, 0, len(s))
	for id := range s {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
