package board

import "fmt"

// Tabs partitions board rows into one bucket per status and tracks which
// bucket is on screen.
type Tabs struct {
	selected Status
	buckets  map[Status][]ViewOrder
}

// NewTabs buckets orders by status. The preparing tab is selected.
func NewTabs(orders []ViewOrder) *Tabs {
	t := &Tabs{
		selected: StatusPreparing,
		buckets:  make(map[Status][]ViewOrder, len(Statuses)),
	}
	for _, s := range Statuses {
		t.buckets[s] = []ViewOrder{}
	}
	for _, o := range orders {
		if _, ok := t.buckets[o.Status]; ok {
			t.buckets[o.Status] = append(t.buckets[o.Status], o)
		}
	}
	return t
}

// Select switches the visible bucket.
func (t *Tabs) Select(s Status) error {
	if !s.Valid() {
		return fmt.Errorf("unknown tab %q", s)
	}
	t.selected = s
	return nil
}

// Selected returns the visible bucket's status.
func (t *Tabs) Selected() Status {
	return t.selected
}

// Counts returns the size of every bucket.
func (t *Tabs) Counts() map[Status]int {
	counts := make(map[Status]int, len(t.buckets))
	for s, orders := range t.buckets {
		counts[s] = len(orders)
	}
	return counts
}

// Visible returns the members of the selected bucket.
func (t *Tabs) Visible() []ViewOrder {
	return t.buckets[t.selected]
}
