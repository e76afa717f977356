package supabase

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
)

// Query builds and executes PostgREST requests against one table.
type Query struct {
	client     *Client
	table      string
	columns    string
	filters    []filter
	orders     []string
	limit      int
	single     bool
	onConflict string
	targetID   string // id used in not-found errors, when known
}

type filter struct {
	column string
	value  string
}

// Select specifies the columns (and foreign-key expansions) to return.
func (q *Query) Select(columns string) *Query {
	q.columns = columns
	return q
}

// Eq adds an equality filter.
func (q *Query) Eq(column string, value any) *Query {
	q.filters = append(q.filters, filter{column, fmt.Sprintf("eq.%v", value)})
	if column == "id" {
		q.targetID = fmt.Sprintf("%v", value)
	}
	return q
}

// Gte adds a greater-than-or-equal filter.
func (q *Query) Gte(column string, value any) *Query {
	q.filters = append(q.filters, filter{column, fmt.Sprintf("gte.%v", value)})
	return q
}

// Lte adds a less-than-or-equal filter.
func (q *Query) Lte(column string, value any) *Query {
	q.filters = append(q.filters, filter{column, fmt.Sprintf("lte.%v", value)})
	return q
}

// Ilike adds a case-insensitive substring filter. The pattern uses * as the
// wildcard, per PostgREST.
func (q *Query) Ilike(column, pattern string) *Query {
	q.filters = append(q.filters, filter{column, "ilike." + pattern})
	return q
}

// Or adds a disjunction of conditions, each written as
// "column.operator.value".
func (q *Query) Or(conditions ...string) *Query {
	q.filters = append(q.filters, filter{"or", "(" + strings.Join(conditions, ",") + ")"})
	return q
}

// Overlaps adds an array-overlap filter: rows match when the column shares
// at least one element with values.
func (q *Query) Overlaps(column string, values []string) *Query {
	q.filters = append(q.filters, filter{column, "ov.{" + strings.Join(values, ",") + "}"})
	return q
}

// Order adds an ORDER BY clause.
func (q *Query) Order(column string, ascending bool) *Query {
	dir := "asc"
	if !ascending {
		dir = "desc"
	}
	q.orders = append(q.orders, column+"."+dir)
	return q
}

// Limit sets the maximum number of rows returned.
func (q *Query) Limit(n int) *Query {
	q.limit = n
	return q
}

// Single requests exactly one object; zero matching rows become a
// NotFoundError.
func (q *Query) Single() *Query {
	q.single = true
	return q
}

// OnConflict marks the next Insert as an upsert keyed on the given column.
func (q *Query) OnConflict(column string) *Query {
	q.onConflict = column
	return q
}

func (q *Query) params() url.Values {
	params := url.Values{}
	if q.columns != "" {
		params.Set("select", q.columns)
	}
	for _, f := range q.filters {
		params.Add(f.column, f.value)
	}
	if len(q.orders) > 0 {
		params.Set("order", strings.Join(q.orders, ","))
	}
	if q.limit > 0 {
		params.Set("limit", strconv.Itoa(q.limit))
	}
	if q.onConflict != "" {
		params.Set("on_conflict", q.onConflict)
	}
	return params
}

func (q *Query) url() string {
	u := q.client.baseURL + "/rest/v1/" + q.table
	if params := q.params(); len(params) > 0 {
		u += "?" + params.Encode()
	}
	return u
}

// Get executes a SELECT and decodes the result into dest. With Single, dest
// receives one object; otherwise a slice.
func (q *Query) Get(ctx context.Context, dest any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, q.url(), nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	q.client.setHeaders(req)
	if q.single {
		req.Header.Set("Accept", "application/vnd.pgrst.object+json")
	}

	resp, err := q.client.do(req)
	if err != nil {
		return err
	}
	if err := checkError(resp, q.table, q.targetID, q.single); err != nil {
		return err
	}
	return decodeInto(resp.body, dest)
}

// Insert executes an INSERT (or, after OnConflict, an upsert) and decodes
// the created row into dest when non-nil.
func (q *Query) Insert(ctx context.Context, record, dest any) error {
	body, err := marshalBody(record)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, q.url(), body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	q.client.setHeaders(req)
	req.Header.Set("Content-Type", "application/json")

	prefer := "return=representation"
	if q.onConflict != "" {
		prefer = "resolution=merge-duplicates," + prefer
	}
	req.Header.Set("Prefer", prefer)
	if q.single {
		req.Header.Set("Accept", "application/vnd.pgrst.object+json")
	}

	resp, err := q.client.do(req)
	if err != nil {
		return err
	}
	if err := checkError(resp, q.table, "", false); err != nil {
		return err
	}
	return decodeInto(resp.body, dest)
}

// Update executes a PATCH against the rows selected by the filters and
// decodes the result into dest when non-nil. With Single, zero matching
// rows become a NotFoundError.
func (q *Query) Update(ctx context.Context, patch, dest any) error {
	body, err := marshalBody(patch)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPatch, q.url(), body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	q.client.setHeaders(req)
	req.Header.Set("Content-Type", "application/json")
	if dest != nil {
		req.Header.Set("Prefer", "return=representation")
	} else {
		req.Header.Set("Prefer", "return=minimal")
	}
	if q.single {
		req.Header.Set("Accept", "application/vnd.pgrst.object+json")
	}

	resp, err := q.client.do(req)
	if err != nil {
		return err
	}
	if err := checkError(resp, q.table, q.targetID, q.single); err != nil {
		return err
	}
	return decodeInto(resp.body, dest)
}

// Count returns the exact number of rows matching the filters without
// fetching them. The count travels in the Content-Range header.
func (q *Query) Count(ctx context.Context) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, q.url(), nil)
	if err != nil {
		return 0, fmt.Errorf("create request: %w", err)
	}
	q.client.setHeaders(req)
	req.Header.Set("Prefer", "count=exact")

	resp, err := q.client.do(req)
	if err != nil {
		return 0, err
	}
	if err := checkError(resp, q.table, "", false); err != nil {
		return 0, err
	}

	// Content-Range looks like "0-24/57" or "*/0".
	cr := resp.headers.Get("Content-Range")
	idx := strings.LastIndex(cr, "/")
	if idx < 0 || idx == len(cr)-1 {
		return 0, fmt.Errorf("missing count in Content-Range %q", cr)
	}
	total := cr[idx+1:]
	if total == "*" {
		return 0, fmt.Errorf("backend returned no exact count in Content-Range %q", cr)
	}
	n, err := strconv.Atoi(total)
	if err != nil {
		return 0, fmt.Errorf("parse Content-Range %q: %w", cr, err)
	}
	return n, nil
}
