package crm

import (
	"net/url"
	"strconv"
)

// ListParams are the pagination controls shared by the collection endpoints.
type ListParams struct {
	Page   int
	Limit  int
	Search string
}

func (p ListParams) values() url.Values {
	v := url.Values{}
	if p.Page > 0 {
		v.Set("page", strconv.Itoa(p.Page))
	}
	if p.Limit > 0 {
		v.Set("limit", strconv.Itoa(p.Limit))
	}
	if p.Search != "" {
		v.Set("search", p.Search)
	}
	return v
}
