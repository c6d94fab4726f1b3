package inventory

import "context"

const (
	defaultPageSize = 100
	maxPages        = 1000
)

// pageFunc fetches one page and reports the total item count advertised by the server.
// A negative total means the server did not advertise one.
type pageFunc[T any] func(ctx context.Context, page, perPage int) (items []T, total int, err error)

// paginate walks pages starting at 1 until the advertised total is reached or a
// short page is returned. Items are de-duplicated by name, first occurrence wins.
func paginate[T any](ctx context.Context, perPage int, fetch pageFunc[T], nameFn func(T) string) ([]T, error) {
	if perPage <= 0 {
		perPage = defaultPageSize
	}

	results := make([]T, 0)
	seen := make(map[string]struct{})

	for page := 1; page <= maxPages; page++ {
		items, total, err := fetch(ctx, page, perPage)
		if err != nil {
			return nil, err
		}
		results = appendUnique(results, items, seen, nameFn)

		if len(items) < perPage {
			break
		}
		if total >= 0 && page*perPage >= total {
			break
		}
	}

	return results, nil
}

func appendUnique[T any](dst []T, items []T, seen map[string]struct{}, nameFn func(T) string) []T {
	for _, item := range items {
		name := nameFn(item)
		if name == "" {
			continue
		}
		if _, ok := seen[name]; ok {
			continue
		}
		seen[name] = struct{}{}
		dst = append(dst, item)
	}
	return dst
}
