package catalog

import "github.com/xenking/ruxstar-pod/internal/domain/product"

// Merge flattens feeds in order. When an ID appears more than once the
// last occurrence wins but keeps the position of the first.
func Merge(feeds ...[]product.Product) []product.Product {
	index := make(map[string]int)
	var out []product.Product
	for _, feed := range feeds {
		for _, p := range feed {
			if i, ok := index[p.ID]; ok {
				out[i] = p
				continue
			}
			index[p.ID] = len(out)
			out = append(out, p)
		}
	}
	return out
}
