package dataverse

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

// QueryOptions holds OData system query options for list and get requests.
// Zero values are omitted from the request.
type QueryOptions struct {
	// Select limits the attributes returned ($select).
	Select []string
	// Filter is an OData filter expression ($filter).
	Filter string
	// OrderBy sorts results, e.g. "createdon desc" ($orderby).
	OrderBy []string
	// Expand includes related records ($expand).
	Expand []string
	// Top limits the total number of records returned ($top).
	Top int
	// Count requests a total record count in the response ($count).
	Count bool
	// MaxPageSize sets the server page size via Prefer: odata.maxpagesize.
	// Dataverse caps this at 5000.
	MaxPageSize int
}

// maxPageSizeLimit is the largest page size Dataverse will honour.
const maxPageSizeLimit = 5000

// encode serialises the query options as a URL query string.
// Returns an empty string when no options are set.
func (q *QueryOptions) encode() string {
	if q == nil {
		return ""
	}

	values := url.Values{}
	if len(q.Select) > 0 {
		values.Set("$select", strings.Join(q.Select, ","))
	}
	if q.Filter != "" {
		values.Set("$filter", q.Filter)
	}
	if len(q.OrderBy) > 0 {
		values.Set("$orderby", strings.Join(q.OrderBy, ","))
	}
	if len(q.Expand) > 0 {
		values.Set("$expand", strings.Join(q.Expand, ","))
	}
	if q.Top > 0 {
		values.Set("$top", strconv.Itoa(q.Top))
	}
	if q.Count {
		values.Set("$count", "true")
	}

	return values.Encode()
}

// preferHeader returns the Prefer header value for the options,
// or an empty string when none applies.
func (q *QueryOptions) preferHeader() string {
	if q == nil || q.MaxPageSize <= 0 {
		return ""
	}

	size := q.MaxPageSize
	if size > maxPageSizeLimit {
		size = maxPageSizeLimit
	}
	return fmt.Sprintf("odata.maxpagesize=%d", size)
}
