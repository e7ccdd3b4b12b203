package store

import (
	"fmt"
	"strings"
)

const defaultPerPage = 10

// SubscriberFilter selects subscriber rows for listing and counting.
type SubscriberFilter struct {
	Search   string   // substring match on email, first or last name
	Statuses []string // empty means all statuses
	Page     int
	PerPage  int
	OrderBy  string
	Order    string
}

// sortColumns whitelists ORDER BY targets; anything else falls back to id.
var sortColumns = map[string]bool{
	"id":         true,
	"email":      true,
	"first_name": true,
	"last_name":  true,
	"status":     true,
	"created":    true,
	"modified":   true,
}

func (f SubscriberFilter) whereClause() (string, []any) {
	var conds []string
	var args []any
	next := 1

	if f.Search != "" {
		like := "%" + f.Search + "%"
		conds = append(conds, fmt.Sprintf("(email ILIKE $%d OR first_name ILIKE $%d OR last_name ILIKE $%d)", next, next+1, next+2))
		args = append(args, like, like, like)
		next += 3
	}
	if len(f.Statuses) > 0 {
		conds = append(conds, fmt.Sprintf("status = ANY($%d)", next))
		args = append(args, f.Statuses)
	}

	if len(conds) == 0 {
		return "", nil
	}
	return "WHERE " + strings.Join(conds, " AND "), args
}

func (f SubscriberFilter) orderClause() string {
	column := f.OrderBy
	if !sortColumns[column] {
		column = "id"
	}
	direction := "DESC"
	if strings.EqualFold(f.Order, "asc") {
		direction = "ASC"
	}
	return fmt.Sprintf("ORDER BY %s %s", column, direction)
}

func (f SubscriberFilter) limits() (limit, offset int) {
	perPage := f.PerPage
	if perPage <= 0 {
		perPage = defaultPerPage
	}
	page := f.Page
	if page <= 0 {
		page = 1
	}
	return perPage, (page - 1) * perPage
}
