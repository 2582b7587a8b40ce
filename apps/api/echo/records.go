package echoapi

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/academia/core"
	"github.com/trezcool/academia/core/record"
)

type recordsApi struct {
	svc *record.Service
}

func registerRecordsAPI(g *echo.Group, svc *record.Service) {
	api := recordsApi{svc: svc}

	rg := g.Group("/records/:kind")
	rg.GET("", api.query)
	rg.POST("", api.create, adminMiddleware())
	rg.GET("/:id", api.retrieve)
	rg.PATCH("/:id", api.update, adminMiddleware())
	rg.DELETE("/:id", api.destroy, adminMiddleware())
}

// bindDocument decodes the request body only; echo's Bind would also copy path params into a map.
func bindDocument(ctx echo.Context) (core.Document, error) {
	var data map[string]interface{}
	if err := json.NewDecoder(ctx.Request().Body).Decode(&data); err != nil {
		return nil, echo.NewHTTPError(http.StatusBadRequest, "request body must be a JSON object").SetInternal(err)
	}
	return core.Document(data), nil
}

// Handlers

func (api *recordsApi) query(ctx echo.Context) error {
	tenant, err := contextTenant(ctx)
	if err != nil {
		return err
	}
	opts := record.ListOptions{}
	if limit := ctx.QueryParam("limit"); limit != "" {
		if opts.Limit, err = strconv.Atoi(limit); err != nil {
			return core.NewValidationError(nil, core.FieldError{Field: "limit", Error: "must be a number"})
		}
	}
	var ord Ordering
	ord.Bind(ctx)
	opts.Sort = ord.Orderings

	docs, err := api.svc.List(ctx.Request().Context(), tenant, ctx.Param("kind"), opts)
	if err != nil {
		return errors.Wrap(err, "listing records")
	}
	return ctx.JSON(http.StatusOK, docs)
}

func (api *recordsApi) create(ctx echo.Context) error {
	tenant, err := contextTenant(ctx)
	if err != nil {
		return err
	}
	data, err := bindDocument(ctx)
	if err != nil {
		return err
	}
	doc, err := api.svc.Create(ctx.Request().Context(), tenant, ctx.Param("kind"), data)
	if err != nil {
		return errors.Wrap(err, "creating record")
	}
	return ctx.JSON(http.StatusCreated, doc)
}

func (api *recordsApi) retrieve(ctx echo.Context) error {
	tenant, err := contextTenant(ctx)
	if err != nil {
		return err
	}
	doc, err := api.svc.Get(ctx.Request().Context(), tenant, ctx.Param("kind"), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "retrieving record")
	}
	return ctx.JSON(http.StatusOK, doc)
}

func (api *recordsApi) update(ctx echo.Context) error {
	tenant, err := contextTenant(ctx)
	if err != nil {
		return err
	}
	data, err := bindDocument(ctx)
	if err != nil {
		return err
	}
	doc, err := api.svc.Update(ctx.Request().Context(), tenant, ctx.Param("kind"), ctx.Param("id"), data)
	if err != nil {
		return errors.Wrap(err, "updating record")
	}
	return ctx.JSON(http.StatusOK, doc)
}

func (api *recordsApi) destroy(ctx echo.Context) error {
	tenant, err := contextTenant(ctx)
	if err != nil {
		return err
	}
	if err = api.svc.Delete(ctx.Request().Context(), tenant, ctx.Param("kind"), ctx.Param("id")); err != nil {
		return errors.Wrap(err, "deleting record")
	}
	return ctx.NoContent(http.StatusNoContent)
}
