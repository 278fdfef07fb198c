package backfill

import "sort"

// staticDataset is a Dataset with a fixed topology.
type staticDataset struct {
	name     string
	children []Dataset
}

// NewLeaf creates a leaf dataset.
func NewLeaf(name string) Dataset {
	return &staticDataset{name: name}
}

// NewComposite creates a dataset aggregating the given children. Children
// may themselves be composites; Leaves flattens them.
func NewComposite(name string, children ...Dataset) Dataset {
	return &staticDataset{name: name, children: children}
}

func (d *staticDataset) Name() string { return d.name }

// Leaves returns the leaf datasets ordered by name, without duplicates.
// A dataset without children is its own leaf.
func (d *staticDataset) Leaves() []Dataset {
	if len(d.children) == 0 {
		return []Dataset{d}
	}

	seen := make(map[string]bool)
	var leaves []Dataset
	for _, child := range d.children {
		for _, leaf := range child.Leaves() {
			if seen[leaf.Name()] {
				continue
			}
			seen[leaf.Name()] = true
			leaves = append(leaves, leaf)
		}
	}

	sort.Slice(leaves, func(i, j int) bool {
		return leaves[i].Name() < leaves[j].Name()
	})
	return leaves
}
