package handler

import (
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/segregate/internal/apperr"
	"github.com/iliyamo/segregate/internal/model"
)

const (
	defaultPageLimit = 10
	maxPageLimit     = 100
)

// pathID parses the :id route parameter.
func pathID(c echo.Context) (uint64, error) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		return 0, apperr.Validation("", apperr.FieldError{Field: "id", Message: "id must be a positive integer"})
	}
	return id, nil
}

// pageFrom reads ?page and ?limit. Missing or unparsable values fall back
// to the defaults; limit is clamped to 1..100.
func pageFrom(c echo.Context) model.Page {
	page, err := strconv.Atoi(c.QueryParam("page"))
	if err != nil || page < 1 {
		page = 1
	}
	limit, err := strconv.Atoi(c.QueryParam("limit"))
	if err != nil || limit < 1 {
		limit = defaultPageLimit
	}
	if limit > maxPageLimit {
		limit = maxPageLimit
	}
	return model.Page{Page: page, Limit: limit}
}

// listing is the data of every paginated response.
type listing[T any] struct {
	Items      []T              `json:"items"`
	Pagination model.Pagination `json:"pagination"`
}

func newListing[T any](items []T, page model.Page, total int) listing[T] {
	if items == nil {
		items = []T{}
	}
	return listing[T]{Items: items, Pagination: model.NewPagination(page, total)}
}
