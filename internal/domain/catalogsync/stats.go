package catalogsync

import (
	"sort"
)

// EntityKind names an entity kind the statistics are kept for
type EntityKind string

const (
	KindProduct       EntityKind = "product"
	KindCategory      EntityKind = "category"
	KindBusiness      EntityKind = "business"
	KindAccount       EntityKind = "account"
	KindWarehouse     EntityKind = "warehouse"
	KindImage         EntityKind = "image"
	KindInventory     EntityKind = "inventory"
	KindAttribute     EntityKind = "attribute"
	KindUnit          EntityKind = "unit"
	KindPriceBook     EntityKind = "price_book"
	KindFormula       EntityKind = "formula"
	KindSerial        EntityKind = "serial"
	KindBatchLot      EntityKind = "batch_lot"
	KindWarranty      EntityKind = "warranty"
	KindShelf         EntityKind = "shelf"
	KindVariant       EntityKind = "variant"
	KindOrderTemplate EntityKind = "order_template"
	KindMasterUnit    EntityKind = "master_unit"
)

// Counters is the counter set kept per entity kind
type Counters struct {
	Adds      int `json:"adds"`
	Updates   int `json:"updates"`
	Skips     int `json:"skips"`
	Conflicts int `json:"conflicts"`
	Deletes   int `json:"deletes"`
	Errors    int `json:"errors"`
}

// Plus returns the sum of two counter sets
func (c Counters) Plus(o Counters) Counters {
	return Counters{
		Adds:      c.Adds + o.Adds,
		Updates:   c.Updates + o.Updates,
		Skips:     c.Skips + o.Skips,
		Conflicts: c.Conflicts + o.Conflicts,
		Deletes:   c.Deletes + o.Deletes,
		Errors:    c.Errors + o.Errors,
	}
}

// IsZero reports whether every counter is zero
func (c Counters) IsZero() bool {
	return c == Counters{}
}

// CountersFor returns a counter set with one count for the classification
func CountersFor(c Classification) Counters {
	switch c {
	case ClassificationAdd:
		return Counters{Adds: 1}
	case ClassificationUpdate:
		return Counters{Updates: 1}
	case ClassificationSkip:
		return Counters{Skips: 1}
	case ClassificationConflict:
		return Counters{Conflicts: 1}
	case ClassificationDelete:
		return Counters{Deletes: 1}
	}
	return Counters{}
}

// Stats holds counters per entity kind. A Stats value is never mutated
// after it is handed out; Merge and With return new values.
type Stats map[EntityKind]Counters

// NewStats returns empty statistics
func NewStats() Stats {
	return Stats{}
}

// StatsDelta builds a single-kind statistics value
func StatsDelta(kind EntityKind, c Counters) Stats {
	if c.IsZero() {
		return Stats{}
	}
	return Stats{kind: c}
}

// Get returns the counters for kind
func (s Stats) Get(kind EntityKind) Counters {
	return s[kind]
}

// Product returns the product counters
func (s Stats) Product() Counters {
	return s[KindProduct]
}

// Merge returns the sum of s and o
func (s Stats) Merge(o Stats) Stats {
	out := make(Stats, len(s)+len(o))
	for k, v := range s {
		out[k] = v
	}
	for k, v := range o {
		out[k] = out[k].Plus(v)
	}
	return out
}

// With returns a copy of s with c added to kind
func (s Stats) With(kind EntityKind, c Counters) Stats {
	return s.Merge(StatsDelta(kind, c))
}

// Total sums every kind
func (s Stats) Total() Counters {
	var t Counters
	for _, v := range s {
		t = t.Plus(v)
	}
	return t
}

// TotalErrors counts errors across every kind
func (s Stats) TotalErrors() int {
	return s.Total().Errors
}

// Kinds lists the kinds present, sorted
func (s Stats) Kinds() []EntityKind {
	kinds := make([]EntityKind, 0, len(s))
	for k := range s {
		kinds = append(kinds, k)
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })
	return kinds
}
