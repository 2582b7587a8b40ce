package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/academia/core/fieldkey"
	"github.com/trezcool/academia/services/metrics"
)

const noDataHint = "No students, marks or subjects yet. Add some records, then refresh the field keys."

type fieldsApi struct {
	svc     *fieldkey.Service
	metrics *metrics.Metrics
}

func registerFieldsAPI(g *echo.Group, svc *fieldkey.Service, m *metrics.Metrics) {
	api := fieldsApi{svc: svc, metrics: m}

	fg := g.Group("/data-field-keys")
	fg.GET("", api.list)
	fg.POST("/refresh", api.refresh, adminMiddleware())
	fg.PATCH("", api.update, adminMiddleware())
	fg.POST("/key-sets", api.createKeySet, adminMiddleware())
	fg.PUT("/key-sets/:id", api.updateKeySet, adminMiddleware())
	fg.DELETE("/key-sets/:id", api.deleteKeySet, adminMiddleware())
	fg.POST("/custom-keys", api.saveCustomKeys, adminMiddleware())
}

func noDataResponse() FieldsResponse {
	return FieldsResponse{Listing: fieldkey.Listing{Fields: []fieldkey.Field{}}, NoData: true, Hint: noDataHint}
}

func (api *fieldsApi) recordDiscovery(n int, err error) {
	switch {
	case err == nil:
		api.metrics.RecordDiscovery("ok", n)
	case errors.Cause(err) == fieldkey.ErrNoData:
		api.metrics.RecordDiscovery("no_data", 0)
	default:
		api.metrics.RecordDiscovery("error", 0)
	}
}

// Handlers

func (api *fieldsApi) list(ctx echo.Context) error {
	tenant, err := contextTenant(ctx)
	if err != nil {
		return err
	}
	var opts fieldkey.ListOptions
	if err = ctx.Bind(&opts); err != nil {
		return errors.Wrap(err, "binding to ListOptions")
	}

	listing, err := api.svc.ListFields(ctx.Request().Context(), tenant, opts)
	if opts.Refresh {
		api.recordDiscovery(len(listing.Fields), err)
	}
	if err != nil {
		if errors.Cause(err) == fieldkey.ErrNoData {
			return ctx.JSON(http.StatusOK, noDataResponse())
		}
		return errors.Wrap(err, "listing fields")
	}
	return ctx.JSON(http.StatusOK, FieldsResponse{Listing: listing})
}

func (api *fieldsApi) refresh(ctx echo.Context) error {
	tenant, err := contextTenant(ctx)
	if err != nil {
		return err
	}
	var opts fieldkey.UpsertOptions
	if err = ctx.Bind(&opts); err != nil {
		return errors.Wrap(err, "binding to UpsertOptions")
	}

	n, err := api.svc.UpsertFromDiscovery(ctx.Request().Context(), tenant, opts)
	api.recordDiscovery(n, err)
	if err != nil {
		if errors.Cause(err) == fieldkey.ErrNoData {
			return ctx.JSON(http.StatusOK, noDataResponse())
		}
		return errors.Wrap(err, "refreshing fields")
	}
	return ctx.JSON(http.StatusOK, CountResponse{Count: n})
}

func (api *fieldsApi) update(ctx echo.Context) error {
	tenant, err := contextTenant(ctx)
	if err != nil {
		return err
	}
	var data UpdateFieldRequest
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateFieldRequest")
	}
	if err = api.svc.UpdateField(ctx.Request().Context(), tenant, data.FieldSelector, data.FieldPatch); err != nil {
		return errors.Wrap(err, "updating field")
	}
	return ctx.JSON(http.StatusOK, SuccessResponse{Success: "Field updated."})
}

func (api *fieldsApi) createKeySet(ctx echo.Context) error {
	return api.saveKeySet(ctx, fieldkey.SaveOptions{}, http.StatusCreated)
}

func (api *fieldsApi) updateKeySet(ctx echo.Context) error {
	return api.saveKeySet(ctx, fieldkey.SaveOptions{IsEdit: true, KeySetID: ctx.Param("id")}, http.StatusOK)
}

func (api *fieldsApi) saveKeySet(ctx echo.Context, opts fieldkey.SaveOptions, code int) error {
	tenant, err := contextTenant(ctx)
	if err != nil {
		return err
	}
	var data fieldkey.KeySetDef
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to KeySetDef")
	}
	id, err := api.svc.SaveCustomKeySet(ctx.Request().Context(), tenant, data, opts)
	if err != nil {
		return errors.Wrap(err, "saving key set")
	}
	return ctx.JSON(code, IDResponse{ID: id})
}

func (api *fieldsApi) deleteKeySet(ctx echo.Context) error {
	tenant, err := contextTenant(ctx)
	if err != nil {
		return err
	}
	if err = api.svc.DeleteKeySet(ctx.Request().Context(), tenant, ctx.Param("id")); err != nil {
		return errors.Wrap(err, "deleting key set")
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *fieldsApi) saveCustomKeys(ctx echo.Context) error {
	tenant, err := contextTenant(ctx)
	if err != nil {
		return err
	}
	var data fieldkey.LegacyKeys
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to LegacyKeys")
	}
	n, err := api.svc.SaveLegacyCustomKeys(ctx.Request().Context(), tenant, data.KeyName, data.Keys)
	if err != nil {
		return errors.Wrap(err, "saving custom keys")
	}
	return ctx.JSON(http.StatusOK, CountResponse{Count: n})
}
