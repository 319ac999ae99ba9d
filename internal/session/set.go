package session

// subscriberSet is an insertion-ordered set of controller ids.
// Sets stay small (a handful of consoles per agent) so linear scans win
// over a map plus an order slice.
type subscriberSet struct {
	ids []string
}

func (s *subscriberSet) add(id string) bool {
	if s.contains(id) {
		return false
	}
	s.ids = append(s.ids, id)
	return true
}

func (s *subscriberSet) remove(id string) bool {
	for i, existing := range s.ids {
		if existing == id {
			s.ids = append(s.ids[:i], s.ids[i+1:]...)
			return true
		}
	}
	return false
}

func (s *subscriberSet) contains(id string) bool {
	for _, existing := range s.ids {
		if existing == id {
			return true
		}
	}
	return false
}

func (s *subscriberSet) snapshot() []string {
	out := make([]string, len(s.ids))
	copy(out, s.ids)
	return out
}

func (s *subscriberSet) len() int {
	return len(s.ids)
}
