// Package prefix keeps a table of namespace prefixes and injects them into SPARQL queries.
// Prefixes declared by the query itself always take precedence, table entries are added
// only for short names the query does not declare.
package prefix

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
)

// Keyword is the prefix declaration keyword rendered in front of every injected line.
const Keyword = "PREFIX"

// declRe matches a prefix declaration line, i.e. "PREFIX schema: <http://schema.org/>".
// The short name is everything up to the first colon, the value is the rest of the line.
var declRe = regexp.MustCompile(`(?im)^[ \t]*PREFIX[ \t]*([^:\s]*)[ \t]*:[ \t]*(.*?)[ \t\r]*$`)

// Table is an ordered set of short name -> namespace pairs.
// Zero value is ready to use. Not safe for concurrent use.
type Table struct {
	names  []string
	values map[string]string
}

// New makes a table with the given entries, see Add for the ordering rules.
func New(prefixes map[string]string) *Table {
	res := &Table{}
	res.Add(prefixes)
	return res
}

// Set adds a single entry. If name already exists its value is replaced and the position is kept.
func (t *Table) Set(name, value string) {
	if t.values == nil {
		t.values = make(map[string]string)
	}
	if _, ok := t.values[name]; !ok {
		t.names = append(t.names, name)
	}
	t.values[name] = value
}

// Add merges prefixes into the table, new values overwrite existing ones.
// Map keys new to the table are appended in sorted order to keep rendering stable.
func (t *Table) Add(prefixes map[string]string) {
	keys := make([]string, 0, len(prefixes))
	for k := range prefixes {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		t.Set(k, prefixes[k])
	}
}

// Remove deletes the given short names, absent names are ignored.
func (t *Table) Remove(names ...string) {
	for _, name := range names {
		if _, ok := t.values[name]; !ok {
			continue
		}
		delete(t.values, name)
		for i, n := range t.names {
			if n == name {
				t.names = append(t.names[:i], t.names[i+1:]...)
				break
			}
		}
	}
}

// Get returns the namespace for the short name.
func (t *Table) Get(name string) (string, bool) {
	v, ok := t.values[name]
	return v, ok
}

// Len returns the number of entries.
func (t *Table) Len() int { return len(t.names) }

// Names returns short names in table order.
func (t *Table) Names() []string {
	res := make([]string, len(t.names))
	copy(res, t.names)
	return res
}

// Map returns a copy of the table as a map.
func (t *Table) Map() map[string]string {
	res := make(map[string]string, len(t.values))
	for k, v := range t.values {
		res[k] = v
	}
	return res
}

// Clone returns an independent copy preserving the order.
func (t *Table) Clone() *Table {
	res := &Table{names: t.Names(), values: t.Map()}
	return res
}

// Format returns the query with all table prefixes not declared in the query prepended,
// one declaration line per prefix, in table order. If nothing has to be injected
// the query is returned as is.
func (t *Table) Format(query string) string {
	declared := Declared(query)
	var sb strings.Builder
	for _, name := range t.names {
		if _, ok := declared[name]; ok {
			continue
		}
		sb.WriteString(Line(name, t.values[name]))
	}
	if sb.Len() == 0 {
		return query
	}
	sb.WriteString(query)
	return sb.String()
}

// Declared returns prefixes declared in the query. For repeated declarations of the same
// short name the last one wins.
func Declared(query string) map[string]string {
	res := make(map[string]string)
	for _, m := range declRe.FindAllStringSubmatch(query, -1) {
		res[m[1]] = m[2]
	}
	return res
}

// Line renders a single newline-terminated declaration.
func Line(name, value string) string {
	return fmt.Sprintf("%s %s: %s\n", Keyword, name, value)
}
