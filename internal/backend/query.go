package backend

import (
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"
)

type Op string

const (
	OpEq Op = "eq"
	OpIn Op = "in"
)

type Filter struct {
	Column string
	Op     Op
	Values []string
}

type Order struct {
	Column string
	Desc   bool
}

// Query selects rows of one table. The zero Limit means no limit.
type Query struct {
	Table   string
	Columns []string
	Filters []Filter
	Orders  []Order
	Limit   int
}

var ErrBadQuery = errors.New("malformed query")

func From(table string) Query {
	return Query{Table: table}
}

func (q Query) Select(columns ...string) Query {
	q.Columns = append([]string(nil), columns...)
	return q
}

func (q Query) Eq(column string, value any) Query {
	q.Filters = append(append([]Filter(nil), q.Filters...), Filter{
		Column: column,
		Op:     OpEq,
		Values: []string{FormatValue(value)},
	})
	return q
}

func (q Query) In(column string, values ...string) Query {
	q.Filters = append(append([]Filter(nil), q.Filters...), Filter{
		Column: column,
		Op:     OpIn,
		Values: append([]string(nil), values...),
	})
	return q
}

func (q Query) Order(column string, desc bool) Query {
	q.Orders = append(append([]Order(nil), q.Orders...), Order{Column: column, Desc: desc})
	return q
}

func (q Query) WithLimit(n int) Query {
	q.Limit = n
	return q
}

// FormatValue renders a filter operand the way it appears on the wire.
func FormatValue(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case bool:
		return strconv.FormatBool(val)
	case time.Time:
		return val.UTC().Format(time.RFC3339Nano)
	case fmt.Stringer:
		return val.String()
	default:
		return fmt.Sprint(val)
	}
}

// Values encodes q in PostgREST URL syntax. The table is not part of the
// encoding; it belongs in the path.
func (q Query) Values() url.Values {
	v := url.Values{}
	if len(q.Columns) > 0 {
		v.Set("select", strings.Join(q.Columns, ","))
	}
	for _, f := range q.Filters {
		switch f.Op {
		case OpIn:
			quoted := make([]string, len(f.Values))
			for i, s := range f.Values {
				quoted[i] = quoteListItem(s)
			}
			v.Add(f.Column, "in.("+strings.Join(quoted, ",")+")")
		default:
			var operand string
			if len(f.Values) > 0 {
				operand = f.Values[0]
			}
			v.Add(f.Column, string(f.Op)+"."+operand)
		}
	}
	if len(q.Orders) > 0 {
		parts := make([]string, len(q.Orders))
		for i, o := range q.Orders {
			dir := "asc"
			if o.Desc {
				dir = "desc"
			}
			parts[i] = o.Column + "." + dir
		}
		v.Set("order", strings.Join(parts, ","))
	}
	if q.Limit > 0 {
		v.Set("limit", strconv.Itoa(q.Limit))
	}
	return v
}

// ParseQuery decodes PostgREST URL syntax for table.
func ParseQuery(table string, v url.Values) (Query, error) {
	q := Query{Table: table}

	for key, values := range v {
		switch key {
		case "select":
			sel := strings.TrimSpace(v.Get("select"))
			if sel == "" || sel == "*" {
				continue
			}
			for _, col := range strings.Split(sel, ",") {
				col = strings.TrimSpace(col)
				if col == "" {
					return Query{}, fmt.Errorf("%w: empty column in select", ErrBadQuery)
				}
				q.Columns = append(q.Columns, col)
			}
		case "order":
			for _, part := range strings.Split(v.Get("order"), ",") {
				col, dir, _ := strings.Cut(strings.TrimSpace(part), ".")
				if col == "" {
					return Query{}, fmt.Errorf("%w: empty order column", ErrBadQuery)
				}
				switch dir {
				case "", "asc":
					q.Orders = append(q.Orders, Order{Column: col})
				case "desc":
					q.Orders = append(q.Orders, Order{Column: col, Desc: true})
				default:
					return Query{}, fmt.Errorf("%w: unknown order direction %q", ErrBadQuery, dir)
				}
			}
		case "limit":
			n, err := strconv.Atoi(v.Get("limit"))
			if err != nil || n < 0 {
				return Query{}, fmt.Errorf("%w: invalid limit %q", ErrBadQuery, v.Get("limit"))
			}
			q.Limit = n
		default:
			for _, raw := range values {
				f, err := parseFilter(key, raw)
				if err != nil {
					return Query{}, err
				}
				q.Filters = append(q.Filters, f)
			}
		}
	}

	return q, nil
}

func parseFilter(column, raw string) (Filter, error) {
	op, operand, ok := strings.Cut(raw, ".")
	if !ok {
		return Filter{}, fmt.Errorf("%w: filter on %q has no operator", ErrBadQuery, column)
	}

	switch Op(op) {
	case OpEq:
		return Filter{Column: column, Op: OpEq, Values: []string{operand}}, nil
	case OpIn:
		if !strings.HasPrefix(operand, "(") || !strings.HasSuffix(operand, ")") {
			return Filter{}, fmt.Errorf("%w: in list for %q must be parenthesised", ErrBadQuery, column)
		}
		items, err := splitList(operand[1 : len(operand)-1])
		if err != nil {
			return Filter{}, fmt.Errorf("%w: %v", ErrBadQuery, err)
		}
		return Filter{Column: column, Op: OpIn, Values: items}, nil
	default:
		return Filter{}, fmt.Errorf("%w: unsupported operator %q", ErrBadQuery, op)
	}
}

func quoteListItem(s string) string {
	if s != "" && !strings.ContainsAny(s, `,()"\ `) {
		return s
	}
	r := strings.NewReplacer(`\`, `\\`, `"`, `\"`)
	return `"` + r.Replace(s) + `"`
}

// splitList parses the inside of an in.(...) operand.
func splitList(s string) ([]string, error) {
	if s == "" {
		return []string{}, nil
	}

	var items []string
	var cur strings.Builder
	inQuotes, quoted := false, false

	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case inQuotes && c == '\\':
			if i+1 >= len(s) {
				return nil, errors.New("dangling escape in list")
			}
			i++
			cur.WriteByte(s[i])
		case c == '"':
			if !inQuotes && cur.Len() > 0 {
				return nil, errors.New("unexpected quote in list item")
			}
			inQuotes = !inQuotes
			quoted = true
		case c == ',' && !inQuotes:
			items = append(items, cur.String())
			cur.Reset()
			quoted = false
		default:
			if quoted && !inQuotes {
				return nil, errors.New("text after closing quote in list item")
			}
			cur.WriteByte(c)
		}
	}
	if inQuotes {
		return nil, errors.New("unterminated quote in list")
	}
	items = append(items, cur.String())
	return items, nil
}
