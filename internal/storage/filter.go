package storage

import "strings"

// predicate is one WHERE term. Column and operator come from the fixed
// tables below; the value is always a bound parameter, never spliced
// into the query text.
type predicate struct {
	column string
	op     string
	value  any
}

// ExpenseFilter narrows ListExpenses. All bounds are inclusive and
// independently optional; zero values mean "no bound".
type ExpenseFilter struct {
	DateFrom  string
	DateTo    string
	AmountMin *float64
	AmountMax *float64
}

func (f ExpenseFilter) predicates() []predicate {
	var ps []predicate
	if f.DateFrom != "" {
		ps = append(ps, predicate{"date", ">=", f.DateFrom})
	}
	if f.DateTo != "" {
		ps = append(ps, predicate{"date", "<=", f.DateTo})
	}
	if f.AmountMin != nil {
		ps = append(ps, predicate{"amount", ">=", *f.AmountMin})
	}
	if f.AmountMax != nil {
		ps = append(ps, predicate{"amount", "<=", *f.AmountMax})
	}
	return ps
}

// whereClause renders the owner scope plus the filter predicates as a
// parameterized WHERE body. The owner term is always present; filters
// can restrict the visible set but never widen it past the owner's rows.
func whereClause(ownerID int64, f ExpenseFilter) (string, []any) {
	ps := append([]predicate{{"owner_id", "=", ownerID}}, f.predicates()...)

	terms := make([]string, len(ps))
	args := make([]any, len(ps))
	for i, p := range ps {
		terms[i] = p.column + " " + p.op + " ?"
		args[i] = p.value
	}
	return strings.Join(terms, " AND "), args
}
