package catalogsync

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/erp/catalogsync/internal/domain/catalog"
	"github.com/erp/catalogsync/internal/domain/catalogsync"
	"github.com/google/uuid"
)

// LocalIndex is the run's view of the local catalog, keyed the two ways a
// canonical product can match. It is loaded once per run and kept current
// with Put as products are written.
type LocalIndex struct {
	byID     map[uuid.UUID]*catalog.Product
	byRemote map[int64]*catalog.Product
	byCode   map[string]*catalog.Product
}

// NewLocalIndex indexes products. When two products share a code the first one wins.
func NewLocalIndex(products []catalog.Product) *LocalIndex {
	ix := &LocalIndex{
		byID:     make(map[uuid.UUID]*catalog.Product, len(products)),
		byRemote: make(map[int64]*catalog.Product, len(products)),
		byCode:   make(map[string]*catalog.Product, len(products)),
	}
	for i := range products {
		ix.Put(&products[i])
	}
	return ix
}

func codeKey(code string) string {
	return strings.ToLower(strings.TrimSpace(code))
}

// Put adds p or replaces the indexed version of it
func (ix *LocalIndex) Put(p *catalog.Product) {
	if old, ok := ix.byID[p.ID]; ok {
		if old.RemoteID != nil && ix.byRemote[*old.RemoteID] == old {
			delete(ix.byRemote, *old.RemoteID)
		}
		if k := codeKey(old.Code); ix.byCode[k] == old {
			delete(ix.byCode, k)
		}
	}
	ix.byID[p.ID] = p
	if p.RemoteID != nil {
		ix.byRemote[*p.RemoteID] = p
	}
	if k := codeKey(p.Code); k != "" {
		if _, taken := ix.byCode[k]; !taken {
			ix.byCode[k] = p
		}
	}
}

// Len returns the number of indexed products
func (ix *LocalIndex) Len() int {
	return len(ix.byID)
}

// Match finds the local product for c: by remote id first, then by code
func (ix *LocalIndex) Match(c *catalogsync.CanonicalProduct) (*catalog.Product, catalogsync.MatchKind) {
	if p, ok := ix.byRemote[c.RemoteID]; ok {
		return p, catalogsync.MatchRemoteID
	}
	if k := codeKey(c.Code); k != "" {
		if p, ok := ix.byCode[k]; ok {
			return p, catalogsync.MatchCode
		}
	}
	return nil, catalogsync.MatchNone
}

// products returns the indexed products ordered by remote id, unbound ones last
func (ix *LocalIndex) products() []*catalog.Product {
	out := make([]*catalog.Product, 0, len(ix.byID))
	for _, p := range ix.byID {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i].RemoteID, out[j].RemoteID
		switch {
		case a != nil && b != nil:
			return *a < *b
		case a != nil:
			return true
		case b != nil:
			return false
		}
		return out[i].Code < out[j].Code
	})
	return out
}

// Classify decides what applying c means for the local catalog.
// A critical gap on a matched record is a Conflict whatever else differs.
func Classify(c *catalogsync.CanonicalProduct, ix *LocalIndex, deps catalogsync.DependencyMaps) catalogsync.Decision {
	local, by := ix.Match(c)
	if local == nil {
		return catalogsync.Decision{Classification: catalogsync.ClassificationAdd, RemoteID: c.RemoteID}
	}

	decision := catalogsync.Decision{RemoteID: c.RemoteID, Local: local, MatchedBy: by}

	if field, gap := c.HasCriticalGap(); gap {
		decision.Classification = catalogsync.ClassificationConflict
		decision.Reason = fmt.Sprintf("remote %d: %s is empty", c.RemoteID, field)
		return decision
	}
	if by == catalogsync.MatchCode && local.RemoteID != nil && *local.RemoteID != c.RemoteID {
		decision.Classification = catalogsync.ClassificationConflict
		decision.Reason = fmt.Sprintf("remote %d: code %q is bound to remote %d", c.RemoteID, c.Code, *local.RemoteID)
		return decision
	}

	changes := compareProduct(local, c, deps)
	if local.RemoteID == nil {
		changes = append([]catalogsync.FieldChange{{
			Field:  "remote_id",
			Before: nullValue,
			After:  strconv.FormatInt(c.RemoteID, 10),
		}}, changes...)
	}
	if len(changes) == 0 {
		decision.Classification = catalogsync.ClassificationSkip
		return decision
	}
	decision.Classification = catalogsync.ClassificationUpdate
	decision.Changes = changes
	return decision
}

// ClassifyDeletions sweeps the index for products to soft delete: remote
// origin, still active, tombstoned and absent from this run's catalog.
func ClassifyDeletions(ix *LocalIndex, tombstones catalogsync.TombstoneSet, canonical map[int64]struct{}) []catalogsync.Decision {
	var out []catalogsync.Decision
	for _, p := range ix.products() {
		if !p.IsRemote() || p.RemoteID == nil || !p.IsActive() {
			continue
		}
		id := *p.RemoteID
		if !tombstones.Has(id) {
			continue
		}
		if _, present := canonical[id]; present {
			continue
		}
		out = append(out, catalogsync.Decision{
			Classification: catalogsync.ClassificationDelete,
			RemoteID:       id,
			Local:          p,
			MatchedBy:      catalogsync.MatchRemoteID,
			Reason:         fmt.Sprintf("remote %d removed upstream", id),
		})
	}
	return out
}
