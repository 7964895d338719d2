package tablestore

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/google/go-querystring/query"
)

// params are the reserved query parameters of a request.
type params struct {
	Select     string `url:"select,omitempty"`
	Order      string `url:"order,omitempty"`
	OnConflict string `url:"on_conflict,omitempty"`
}

type filter struct {
	column string
	op     string
	value  string
}

// Query is a request against one relation under construction.
type Query struct {
	c       *Client
	table   string
	params  params
	filters []filter
	single  bool
}

// Select limits the returned columns. The default is every column.
func (q *Query) Select(columns ...string) *Query {
	q.params.Select = strings.Join(columns, ",")
	return q
}

// Eq adds column = value.
func (q *Query) Eq(column string, value any) *Query {
	return q.where(column, "eq", value)
}

// Gte adds column >= value.
func (q *Query) Gte(column string, value any) *Query {
	return q.where(column, "gte", value)
}

// Lte adds column <= value.
func (q *Query) Lte(column string, value any) *Query {
	return q.where(column, "lte", value)
}

// In adds column IN (values).
func (q *Query) In(column string, values ...string) *Query {
	return q.where(column, "in", "("+strings.Join(values, ",")+")")
}

func (q *Query) where(column, op string, value any) *Query {
	q.filters = append(q.filters, filter{column: column, op: op, value: fmt.Sprint(value)})
	return q
}

// Order appends an ordering term.
func (q *Query) Order(column string, ascending bool) *Query {
	dir := "desc"
	if ascending {
		dir = "asc"
	}
	term := column + "." + dir
	if q.params.Order == "" {
		q.params.Order = term
	} else {
		q.params.Order += "," + term
	}
	return q
}

// Single expects exactly one row. Zero rows yields ErrNoRows.
func (q *Query) Single() *Query {
	q.single = true
	return q
}

// OnConflict names the unique columns an Upsert merges on.
func (q *Query) OnConflict(columns ...string) *Query {
	q.params.OnConflict = strings.Join(columns, ",")
	return q
}

// URL renders the request URL.
func (q *Query) URL() (string, error) {
	v, err := query.Values(q.params)
	if err != nil {
		return "", fmt.Errorf("failed to encode query: %w", err)
	}
	for _, f := range q.filters {
		v.Add(f.column, f.op+"."+f.value)
	}
	u := q.c.baseURL + "/" + url.PathEscape(q.table)
	if enc := v.Encode(); enc != "" {
		u += "?" + enc
	}
	return u, nil
}

func (q *Query) header(prefer ...string) http.Header {
	h := http.Header{}
	if q.single {
		h.Set("Accept", "application/vnd.pgrst.object+json")
	}
	if len(prefer) > 0 {
		h.Set("Prefer", strings.Join(prefer, ","))
	}
	return h
}

// Get reads rows into dst (a slice, or a struct pointer for Single).
func (q *Query) Get(ctx context.Context, dst any) error {
	u, err := q.URL()
	if err != nil {
		return err
	}
	return q.c.do(ctx, http.MethodGet, u, nil, q.header(), dst)
}

// Insert writes rows and decodes the stored representation into dst when non-nil.
func (q *Query) Insert(ctx context.Context, rows any, dst any) error {
	u, err := q.URL()
	if err != nil {
		return err
	}
	return q.c.do(ctx, http.MethodPost, u, rows, q.header(returnPref(dst)), dst)
}

// Update sets values on the filtered rows and decodes the result into dst when non-nil.
func (q *Query) Update(ctx context.Context, values any, dst any) error {
	u, err := q.URL()
	if err != nil {
		return err
	}
	return q.c.do(ctx, http.MethodPatch, u, values, q.header(returnPref(dst)), dst)
}

// Upsert inserts rows, merging on the OnConflict columns.
func (q *Query) Upsert(ctx context.Context, rows any) error {
	u, err := q.URL()
	if err != nil {
		return err
	}
	return q.c.do(ctx, http.MethodPost, u, rows, q.header("resolution=merge-duplicates", "return=minimal"), nil)
}

// Delete removes the filtered rows.
func (q *Query) Delete(ctx context.Context) error {
	u, err := q.URL()
	if err != nil {
		return err
	}
	return q.c.do(ctx, http.MethodDelete, u, nil, q.header("return=minimal"), nil)
}

func returnPref(dst any) string {
	if dst == nil {
		return "return=minimal"
	}
	return "return=representation"
}
