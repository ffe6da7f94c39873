package gateway

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-resty/resty/v2"
	clierrors "github.com/zfogg/daredrop/pkg/errors"
	"github.com/zfogg/daredrop/pkg/logger"
)

const restPath = "/rest/v1/"

// Query builds one row request against a table. Filter methods return the query for chaining.
type Query struct {
	c          *Client
	table      string
	columns    string
	filters    url.Values
	order      []string
	limit      int
	single     bool
	onConflict string
}

// From starts a query on table
func (c *Client) From(table string) *Query {
	return &Query{c: c, table: table, filters: url.Values{}}
}

// Table returns the queried table name
func (q *Query) Table() string {
	return q.table
}

// Select sets the column list, including embeds such as "*,users(username)"
func (q *Query) Select(columns string) *Query {
	q.columns = columns
	return q
}

// Eq adds col = value
func (q *Query) Eq(col string, value interface{}) *Query {
	q.filters.Add(col, "eq."+formatValue(value))
	return q
}

// Neq adds col <> value
func (q *Query) Neq(col string, value interface{}) *Query {
	q.filters.Add(col, "neq."+formatValue(value))
	return q
}

// Is adds col IS value, for null and boolean checks
func (q *Query) Is(col string, value interface{}) *Query {
	q.filters.Add(col, "is."+formatValue(value))
	return q
}

// In adds col IN (values)
func (q *Query) In(col string, values []string) *Query {
	q.filters.Add(col, "in."+formatList(values))
	return q
}

// NotIn adds col NOT IN (values)
func (q *Query) NotIn(col string, values []string) *Query {
	q.filters.Add(col, "not.in."+formatList(values))
	return q
}

// ILike adds a case-insensitive contains match on col
func (q *Query) ILike(col, term string) *Query {
	q.filters.Add(col, "ilike."+ContainsPattern(term))
	return q
}

// Or adds a disjunction of raw filter expressions such as "title.ilike.*q*"
func (q *Query) Or(expressions ...string) *Query {
	q.filters.Add("or", "("+strings.Join(expressions, ",")+")")
	return q
}

// Order appends an ordering column
func (q *Query) Order(col string, ascending bool) *Query {
	dir := "desc"
	if ascending {
		dir = "asc"
	}
	q.order = append(q.order, col+"."+dir)
	return q
}

// Limit caps the number of returned rows
func (q *Query) Limit(n int) *Query {
	q.limit = n
	return q
}

// Single expects exactly one row, decoded as an object instead of an array
func (q *Query) Single() *Query {
	q.single = true
	return q
}

// OnConflict sets the conflict target columns for Upsert
func (q *Query) OnConflict(columns string) *Query {
	q.onConflict = columns
	return q
}

// Filtered reports whether any filter predicate was added
func (q *Query) Filtered() bool {
	return len(q.filters) > 0
}

// Params returns the encoded query parameters
func (q *Query) Params() url.Values {
	params := url.Values{}
	for k, vs := range q.filters {
		for _, v := range vs {
			params.Add(k, v)
		}
	}
	if q.columns != "" {
		params.Set("select", q.columns)
	}
	if len(q.order) > 0 {
		params.Set("order", strings.Join(q.order, ","))
	}
	if q.limit > 0 {
		params.Set("limit", strconv.Itoa(q.limit))
	}
	if q.onConflict != "" {
		params.Set("on_conflict", q.onConflict)
	}
	return params
}

func (q *Query) request(ctx context.Context) *resty.Request {
	req := q.c.http.R().SetContext(ctx).SetQueryParamsFromValues(q.Params())
	if q.single {
		req.SetHeader("Accept", "application/vnd.pgrst.object+json")
	}
	return req
}

func (q *Query) path() string {
	return restPath + q.table
}

// Fetch runs a select and decodes the rows (or the single row) into dest
func (q *Query) Fetch(ctx context.Context, dest interface{}) error {
	logger.Debug("Selecting rows", "table", q.table, "filters", q.filters.Encode())

	resp, err := q.request(ctx).Get(q.path())
	if err := CheckResponse(resp, err); err != nil {
		return fmt.Errorf("failed to select from %s: %w", q.table, err)
	}
	if err := json.Unmarshal(resp.Body(), dest); err != nil {
		return fmt.Errorf("failed to decode %s rows: %w", q.table, err)
	}
	return nil
}

// Count returns the exact number of rows matching the filters
func (q *Query) Count(ctx context.Context) (int, error) {
	logger.Debug("Counting rows", "table", q.table)

	resp, err := q.request(ctx).
		SetHeader("Prefer", "count=exact").
		Head(q.path())
	if err := CheckResponse(resp, err); err != nil {
		return 0, fmt.Errorf("failed to count %s: %w", q.table, err)
	}
	return ParseContentRange(resp.Header().Get("Content-Range"))
}

// Insert posts body (a struct or slice) and decodes the created rows into dest when non-nil
func (q *Query) Insert(ctx context.Context, body interface{}, dest interface{}) error {
	return q.write(ctx, http.MethodPost, "", body, dest)
}

// Upsert inserts or merges on the OnConflict columns
func (q *Query) Upsert(ctx context.Context, body interface{}, dest interface{}) error {
	return q.write(ctx, http.MethodPost, "resolution=merge-duplicates", body, dest)
}

// Update patches every row matching the filters. An unfiltered update is rejected.
func (q *Query) Update(ctx context.Context, patch interface{}, dest interface{}) error {
	if !q.Filtered() {
		return clierrors.ValidationError("filter", "update on "+q.table+" requires at least one filter")
	}
	return q.write(ctx, http.MethodPatch, "", patch, dest)
}

// Delete removes every row matching the filters. An unfiltered delete is rejected.
func (q *Query) Delete(ctx context.Context) error {
	if !q.Filtered() {
		return clierrors.ValidationError("filter", "delete on "+q.table+" requires at least one filter")
	}
	return q.write(ctx, http.MethodDelete, "", nil, nil)
}

func (q *Query) write(ctx context.Context, method, resolution string, body interface{}, dest interface{}) error {
	logger.Debug("Writing rows", "method", method, "table", q.table)

	prefer := "return=minimal"
	if dest != nil {
		prefer = "return=representation"
	}
	if resolution != "" {
		prefer = resolution + "," + prefer
	}

	req := q.request(ctx).SetHeader("Prefer", prefer)
	if body != nil {
		req.SetHeader("Content-Type", "application/json").SetBody(body)
	}

	resp, err := req.Execute(method, q.path())
	if err := CheckResponse(resp, err); err != nil {
		return fmt.Errorf("failed to %s %s: %w", strings.ToLower(method), q.table, err)
	}
	if dest != nil && len(resp.Body()) > 0 {
		if err := json.Unmarshal(resp.Body(), dest); err != nil {
			return fmt.Errorf("failed to decode %s rows: %w", q.table, err)
		}
	}
	return nil
}

// ParseContentRange extracts the total from "0-24/312" or "*/0"
func ParseContentRange(header string) (int, error) {
	idx := strings.LastIndex(header, "/")
	if idx < 0 || idx == len(header)-1 {
		return 0, fmt.Errorf("missing count in Content-Range %q", header)
	}
	total := header[idx+1:]
	if total == "*" {
		return 0, fmt.Errorf("count not provided in Content-Range %q", header)
	}
	n, err := strconv.Atoi(total)
	if err != nil {
		return 0, fmt.Errorf("invalid count in Content-Range %q: %w", header, err)
	}
	return n, nil
}

// ContainsPattern wraps term in the ilike wildcard, stripping characters
// that would break out of a filter expression
func ContainsPattern(term string) string {
	return "*" + SanitizeTerm(term) + "*"
}

// SanitizeTerm removes filter syntax characters from user input
func SanitizeTerm(term string) string {
	return strings.TrimSpace(strings.Map(func(r rune) rune {
		switch r {
		case ',', '(', ')', '*', '"', '\\':
			return -1
		}
		return r
	}, term))
}

func formatValue(v interface{}) string {
	switch t := v.(type) {
	case string:
		return t
	case bool:
		return strconv.FormatBool(t)
	case nil:
		return "null"
	default:
		return fmt.Sprint(t)
	}
}

func formatList(values []string) string {
	quoted := make([]string, len(values))
	for i, v := range values {
		if strings.ContainsAny(v, ",()\" ") {
			v = `"` + strings.ReplaceAll(v, `"`, `\"`) + `"`
		}
		quoted[i] = v
	}
	return "(" + strings.Join(quoted, ",") + ")"
}
