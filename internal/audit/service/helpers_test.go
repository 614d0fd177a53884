package service

import "github.com/smallbiznis/procura/pkg/db/pagination"

func pagePagination(size int, token ...string) pagination.Pagination {
	p := pagination.Pagination{PageSize: size}
	if len(token) > 0 {
		p.PageToken = token[0]
	}
	return p
}
