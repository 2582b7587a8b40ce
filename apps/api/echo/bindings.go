package echoapi

import (
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/trezcool/academia/core"
	"github.com/trezcool/academia/core/fieldkey"
)

var orderingParam = "ordering"

type Ordering struct {
	Orderings []core.DBOrdering
}

func (ord *Ordering) Bind(ctx echo.Context) {
	data := ctx.QueryParams()
	if len(data) == 0 {
		return
	}
	val, ok := data[orderingParam]
	if !ok || len(val) == 0 || val[0] == "" {
		return
	}

	for _, field := range strings.Split(val[0], ",") {
		field = strings.TrimSpace(field)
		descending := strings.HasPrefix(field, "-")
		if descending {
			field = field[1:] // drop "-"
		}
		if field == "" {
			continue
		}
		ord.Orderings = append(ord.Orderings, core.DBOrdering{Field: field, Ascending: !descending})
	}
}

type (
	SuccessResponse struct {
		Success string `json:"success"`
	}

	IDResponse struct {
		ID string `json:"id"`
	}

	CountResponse struct {
		Count int `json:"count"`
	}

	// FieldsResponse answers catalog reads. NoData tells clients to show an onboarding hint.
	FieldsResponse struct {
		fieldkey.Listing
		NoData bool   `json:"noData,omitempty"`
		Hint   string `json:"hint,omitempty"`
	}

	UpdateFieldRequest struct {
		fieldkey.FieldSelector
		fieldkey.FieldPatch
	}

	HealthResponse struct {
		Status string `json:"status"`
		Build  string `json:"build"`
	}
)
