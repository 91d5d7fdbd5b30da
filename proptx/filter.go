package proptx

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"strings"

	"github.com/yourorg/listings-gateway/internal/canon"
)

// Every query carries this regardless of input; sold/expired records
// are never served through the gateway.
const activeStatusClause = "StandardStatus eq 'Active'"

// subTypeRemap corrects known discrepancies between the UI labels and
// the exact strings stored upstream. The trailing space on
// Semi-Detached is real; do not trim it.
var subTypeRemap = map[string]string{
	"Semi-Detached":     "Semi-Detached ",
	"Att/Row/Townhouse": "Att/Row/Twnhouse",
	"Condo Apt":         "Condo Apartment",
}

// FilterEcho is the set of resolved filter values echoed back in the
// response for client-side consistency checks.
type FilterEcho struct {
	City         string `json:"city"`
	MinPrice     string `json:"minPrice"`
	MaxPrice     string `json:"maxPrice"`
	PropertyType string `json:"propertyType"`
	SortBy       string `json:"sortBy"`
	PostalCode   string `json:"postalCode"`
}

// clause is one independently-built boolean predicate. Building a
// clause can fail on malformed input; the failure is isolated to that
// clause and never aborts the query.
type clause interface {
	expr() (string, error)
}

type rawClause string

func (c rawClause) expr() (string, error) { return string(c), nil }

// priceBound is a numeric comparison against ListPrice (ge/le).
type priceBound struct {
	field string
	op    string
	raw   string
}

func (c priceBound) expr() (string, error) {
	n, err := strconv.ParseFloat(strings.TrimSpace(c.raw), 64)
	if err != nil {
		return "", fmt.Errorf("%s: non-numeric value %q", c.field, c.raw)
	}
	return fmt.Sprintf("%s %s %s", c.field, c.op, strconv.FormatFloat(n, 'f', -1, 64)), nil
}

// threshold handles bedroom/bathroom counts where a trailing '+'
// switches the comparison from exact to at-least.
type threshold struct {
	field string
	raw   string
}

func (c threshold) expr() (string, error) {
	raw := strings.TrimSpace(c.raw)
	op := "eq"
	if strings.HasSuffix(raw, "+") {
		op = "ge"
		raw = strings.TrimSuffix(raw, "+")
	}
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return "", fmt.Errorf("%s: non-numeric value %q", c.field, c.raw)
	}
	return fmt.Sprintf("%s %s %d", c.field, op, n), nil
}

// exactMatch is a single quoted equality predicate.
type exactMatch struct {
	field string
	value string
}

func (c exactMatch) expr() (string, error) {
	return fmt.Sprintf("%s eq '%s'", c.field, escapeValue(c.value)), nil
}

// anyOf ORs equality predicates over a value set. wrapSingle controls
// whether a one-element set still gets parentheses; basement features
// historically go bare when single while property types are wrapped.
type anyOf struct {
	field      string
	values     []string
	wrapSingle bool
}

func (c anyOf) expr() (string, error) {
	if len(c.values) == 0 {
		return "", nil
	}
	parts := make([]string, 0, len(c.values))
	for _, v := range c.values {
		parts = append(parts, fmt.Sprintf("%s eq '%s'", c.field, escapeValue(v)))
	}
	joined := strings.Join(parts, " or ")
	if len(parts) > 1 || c.wrapSingle {
		return "(" + joined + ")", nil
	}
	return joined, nil
}

// textContains is a substring predicate.
type textContains struct {
	field string
	value string
}

func (c textContains) expr() (string, error) {
	return fmt.Sprintf("contains(%s, '%s')", c.field, escapeValue(c.value)), nil
}

type startsWith struct {
	field string
	value string
}

func (c startsWith) expr() (string, error) {
	return fmt.Sprintf("startswith(%s, '%s')", c.field, escapeValue(c.value)), nil
}

// escapeValue doubles single quotes per OData string literal rules.
func escapeValue(s string) string {
	return strings.ReplaceAll(s, "'", "''")
}

// HasBounds reports whether all four bounding-box coordinates are
// present. In bbox mode geographic filtering happens client-side
// (the upstream API has no native bbox predicate), so the translator
// must not emit a postal-code clause.
func HasBounds(params url.Values) bool {
	for _, k := range []string{"north", "south", "east", "west"} {
		if strings.TrimSpace(params.Get(k)) == "" {
			return false
		}
	}
	return true
}

// TranslateFilters converts inbound query parameters into the ordered
// list of OData predicate clauses plus the echo of values actually
// applied. Malformed individual filters are dropped with a warning;
// they never fail the request.
func TranslateFilters(params url.Values) ([]string, FilterEcho) {
	var clauses []string
	var echo FilterEcho

	add := func(c clause) bool {
		s, err := c.expr()
		if err != nil {
			slog.Warn("dropping listing filter", "error", err)
			return false
		}
		if s != "" {
			clauses = append(clauses, s)
		}
		return true
	}

	add(rawClause(activeStatusClause))

	if v := params.Get("minPrice"); v != "" {
		if add(priceBound{field: "ListPrice", op: "ge", raw: v}) {
			echo.MinPrice = v
		}
	}
	if v := params.Get("maxPrice"); v != "" {
		if add(priceBound{field: "ListPrice", op: "le", raw: v}) {
			echo.MaxPrice = v
		}
	}
	if v := params.Get("BedroomsTotal"); v != "" {
		add(threshold{field: "BedroomsTotal", raw: v})
	}
	if v := params.Get("BathroomsTotalInteger"); v != "" {
		add(threshold{field: "BathroomsTotalInteger", raw: v})
	}

	// Absent or unrecognized transaction types default to For Sale.
	// Absence is a defaulted filter, not "no filter".
	tt := params.Get("TransactionType")
	if tt != "For Lease" && tt != "For Sale" {
		tt = "For Sale"
	}
	add(exactMatch{field: "TransactionType", value: tt})

	// Postal prefix applies only outside bounding-box mode; a bbox
	// search suppresses postal filtering even when both are supplied.
	if !HasBounds(params) {
		postal := params.Get("postalCode")
		if postal == "" {
			postal = params.Get("PostalCode")
		}
		if postal != "" {
			if prefix := canon.PostalPrefix(postal); prefix != "" {
				add(startsWith{field: "PostalCode", value: prefix})
				echo.PostalCode = prefix
			}
		}
	}

	if types, raw := propertyTypeValues(params); len(types) > 0 {
		if add(anyOf{field: "PropertyType", values: types, wrapSingle: true}) {
			echo.PropertyType = raw
		}
	}

	if subTypes := propertySubTypeValues(params); len(subTypes) > 0 {
		add(anyOf{field: "PropertySubType", values: subTypes, wrapSingle: true})
	}

	if v := params.Get("city"); strings.TrimSpace(v) != "" {
		city := canon.TitleCase(v)
		if add(textContains{field: "City", value: city}) {
			echo.City = city
		}
	}
	if v := params.Get("address"); strings.TrimSpace(v) != "" {
		add(textContains{field: "UnparsedAddress", value: v})
	}
	if v := params.Get("mls"); strings.TrimSpace(v) != "" {
		add(exactMatch{field: "ListingKey", value: strings.TrimSpace(v)})
	}

	if v := params.Get("basementFeatures"); v != "" {
		features, err := parseJSONList(v)
		if err != nil {
			slog.Warn("dropping listing filter", "error", fmt.Errorf("basementFeatures: %w", err))
		} else {
			// Single basement value stays bare; only multi-valued
			// sets get parenthesized. Long-standing asymmetry with
			// the property-type handling, kept deliberately.
			add(anyOf{field: "Basement", values: features, wrapSingle: false})
		}
	}

	return clauses, echo
}

// JoinFilter combines translated clauses into one $filter expression.
// An empty clause list yields "" and the caller must then omit the
// $filter parameter entirely.
func JoinFilter(clauses []string) string {
	return strings.Join(clauses, " and ")
}

// propertyTypeValues resolves the three accepted shapes: a JSON array
// in PropertyTypes, a comma-separated PropertyType, or a bare value.
// The second return is the raw parameter echoed to the client.
func propertyTypeValues(params url.Values) ([]string, string) {
	if v := params.Get("PropertyTypes"); v != "" {
		types, err := parseJSONList(v)
		if err != nil {
			slog.Warn("dropping listing filter", "error", fmt.Errorf("PropertyTypes: %w", err))
			return nil, ""
		}
		return types, v
	}
	v := params.Get("PropertyType")
	if strings.TrimSpace(v) == "" {
		return nil, ""
	}
	if strings.Contains(v, ",") {
		parts := strings.Split(v, ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				out = append(out, p)
			}
		}
		return out, v
	}
	return []string{strings.TrimSpace(v)}, v
}

// propertySubTypeValues accepts a JSON-array-encoded string or a bare
// string. Each candidate is URL-decoded and passed through the remap
// table before filter construction.
func propertySubTypeValues(params url.Values) []string {
	v := params.Get("PropertySubType")
	if strings.TrimSpace(v) == "" {
		return nil
	}
	var candidates []string
	if strings.HasPrefix(strings.TrimSpace(v), "[") {
		list, err := parseJSONList(v)
		if err != nil {
			slog.Warn("dropping listing filter", "error", fmt.Errorf("PropertySubType: %w", err))
			return nil
		}
		candidates = list
	} else {
		candidates = []string{v}
	}
	out := make([]string, 0, len(candidates))
	for _, c := range candidates {
		if dec, err := url.QueryUnescape(c); err == nil {
			c = dec
		}
		if mapped, ok := subTypeRemap[c]; ok {
			c = mapped
		}
		if c != "" {
			out = append(out, c)
		}
	}
	return out
}

func parseJSONList(raw string) ([]string, error) {
	var list []string
	if err := json.Unmarshal([]byte(raw), &list); err != nil {
		return nil, err
	}
	out := make([]string, 0, len(list))
	for _, v := range list {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out, nil
}
