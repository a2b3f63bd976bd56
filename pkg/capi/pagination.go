package capi

import (
	"context"
	"fmt"
	"net/url"
	"strconv"

	"github.com/fivetwenty-io/capi-deployer/internal/constants"
)

// PageLoader fetches the raw body of one page. uri is either the initial
// relative path or a next-page locator taken from the previous page.
type PageLoader func(ctx context.Context, uri string) ([]byte, error)

// PaginationOptions configures pagination behavior.
type PaginationOptions struct {
	// PageSize is set on the initial URI by ApplyPageSize. Zero leaves the
	// server default.
	PageSize int
	// MaxPages stops fetching after this many pages. Zero means unlimited.
	MaxPages int
}

// DefaultPaginationOptions returns default pagination options.
func DefaultPaginationOptions() *PaginationOptions {
	return &PaginationOptions{
		PageSize: constants.StandardPageSize,
		MaxPages: 0,
	}
}

// ApplyPageSize sets the page-size parameter of the decoder's dialect on
// query: per_page for v3, results-per-page for v2 capped at the v2 maximum.
func (o *PaginationOptions) ApplyPageSize(query url.Values, decoder ResourceDecoder) {
	if o == nil || o.PageSize <= 0 {
		return
	}

	if decoder.Dialect() == DialectV2 {
		query.Set("results-per-page", strconv.Itoa(min(o.PageSize, constants.MaxV2PageSize)))

		return
	}

	query.Set("per_page", strconv.Itoa(o.PageSize))
}

// FetchAll follows next-page locators from initialURI until the last page and
// returns the union of all resources and included side-tables. A locator that
// was already followed ends the walk, so a server that loops cannot hang the
// caller. Any page failure aborts the walk and is returned unchanged.
func FetchAll(ctx context.Context, initialURI string, loader PageLoader, decoder ResourceDecoder) (*AccumulatedResult[RawResource], error) {
	return FetchAllWithOptions(ctx, initialURI, loader, decoder, nil)
}

// FetchAllWithOptions is FetchAll with an optional page ceiling.
func FetchAllWithOptions(
	ctx context.Context,
	initialURI string,
	loader PageLoader,
	decoder ResourceDecoder,
	options *PaginationOptions,
) (*AccumulatedResult[RawResource], error) {
	if options == nil {
		options = &PaginationOptions{}
	}

	result := &AccumulatedResult[RawResource]{
		Resources: make([]RawResource, 0),
	}

	visited := make(map[string]struct{})
	uri := initialURI
	pages := 0

	for uri != "" {
		if _, seen := visited[uri]; seen {
			break
		}

		visited[uri] = struct{}{}

		err := ctx.Err()
		if err != nil {
			return nil, fmt.Errorf("fetching page %d: %w", pages+1, err)
		}

		body, err := loader(ctx, uri)
		if err != nil {
			return nil, err
		}

		page, err := decoder.DecodePage(body)
		if err != nil {
			return nil, fmt.Errorf("decoding page %s: %w", uri, err)
		}

		result.Resources = append(result.Resources, page.Resources...)

		for key, included := range page.Included {
			if result.Included == nil {
				result.Included = make(map[string][]RawResource)
			}

			result.Included[key] = append(result.Included[key], included...)
		}

		pages++
		if options.MaxPages > 0 && pages >= options.MaxPages {
			break
		}

		uri = page.Next
	}

	return result, nil
}

// MapAllWith converts every accumulated resource with the mapper's function for T.
func MapAllWith[T any](raw *AccumulatedResult[RawResource], mapper *ResourceMapper) (*AccumulatedResult[T], error) {
	return MapAll(raw, func(resource RawResource) (T, error) {
		return MapResource[T](mapper, resource)
	})
}

// MapAll converts every accumulated resource with mapFn, keeping the side-tables.
func MapAll[T any](raw *AccumulatedResult[RawResource], mapFn func(RawResource) (T, error)) (*AccumulatedResult[T], error) {
	mapped := &AccumulatedResult[T]{
		Resources: make([]T, 0, len(raw.Resources)),
		Included:  raw.Included,
	}

	for _, resource := range raw.Resources {
		item, err := mapFn(resource)
		if err != nil {
			return nil, err
		}

		mapped.Resources = append(mapped.Resources, item)
	}

	return mapped, nil
}
