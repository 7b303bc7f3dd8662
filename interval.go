package methdiff

import (
	"sort"
)

type span struct {
	start int
	end   int
	label string
}

type intervalTreeNode struct {
	span   span
	maxend int
}

type intervalTree []intervalTreeNode

// featureIndex answers "which features overlap [start,end] on this
// chromosome" against a frozen set of labeled intervals (balanced
// implicit interval trees, one per chromosome).
type featureIndex struct {
	spans  map[string][]span
	itrees map[string]intervalTree
	frozen bool
}

func (idx *featureIndex) Add(chrom string, start, end int, label string) {
	if idx.spans == nil {
		idx.spans = map[string][]span{}
	}
	idx.spans[chrom] = append(idx.spans[chrom], span{start, end, label})
}

func (idx *featureIndex) Freeze() {
	idx.itrees = map[string]intervalTree{}
	for chrom, spans := range idx.spans {
		idx.itrees[chrom] = freeze(spans)
	}
	idx.frozen = true
}

// Overlapping returns the labels of all intervals overlapping
// [start,end], sorted by start position.
func (idx *featureIndex) Overlapping(chrom string, start, end int) []string {
	if !idx.frozen {
		panic("bug: (*featureIndex)Overlapping() called before Freeze()")
	}
	var hits []span
	idx.itrees[chrom].collect(0, span{start: start, end: end}, &hits)
	sort.Slice(hits, func(i, j int) bool { return hits[i].start < hits[j].start })
	labels := make([]string, len(hits))
	for i, h := range hits {
		labels[i] = h.label
	}
	return labels
}

func freeze(in []span) intervalTree {
	if len(in) == 0 {
		return nil
	}
	sort.Slice(in, func(i, j int) bool {
		return in[i].start < in[j].start
	})
	itreesize := 1
	for itreesize < len(in) {
		itreesize = itreesize * 2
	}
	itree := make(intervalTree, itreesize)
	itree.importSlice(0, in)
	for i := len(in); i < itreesize; i++ {
		itree[i].maxend = -1
	}
	return itree
}

func (itree intervalTree) collect(root int, q span, hits *[]span) {
	if root >= len(itree) || itree[root].maxend < q.start {
		return
	}
	if itree[root].span.start <= q.end && itree[root].span.end >= q.start {
		*hits = append(*hits, itree[root].span)
	}
	itree.collect(root*2+1, q, hits)
	itree.collect(root*2+2, q, hits)
}

func (itree intervalTree) importSlice(root int, in []span) int {
	mid := len(in) / 2
	node := intervalTreeNode{span: in[mid], maxend: in[mid].end}
	if mid > 0 {
		end := itree.importSlice(root*2+1, in[0:mid])
		if end > node.maxend {
			node.maxend = end
		}
	}
	if mid+1 < len(in) {
		end := itree.importSlice(root*2+2, in[mid+1:])
		if end > node.maxend {
			node.maxend = end
		}
	}
	itree[root] = node
	return node.maxend
}
