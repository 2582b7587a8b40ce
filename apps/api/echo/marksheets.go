package echoapi

import (
	"bytes"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/academia/core/marksheet"
	"github.com/trezcool/academia/services/metrics"
)

const mimeXLSX = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

type marksheetsApi struct {
	svc     *marksheet.Service
	metrics *metrics.Metrics
}

func registerMarksheetsAPI(g *echo.Group, svc *marksheet.Service, m *metrics.Metrics) {
	api := marksheetsApi{svc: svc, metrics: m}

	tg := g.Group("/marksheet-templates")
	tg.GET("", api.queryTemplates)
	tg.POST("", api.createTemplate, adminMiddleware())
	tg.GET("/:id", api.retrieveTemplate)
	tg.PUT("/:id", api.updateTemplate, adminMiddleware())
	tg.DELETE("/:id", api.destroyTemplate, adminMiddleware())

	mg := g.Group("/marksheets")
	mg.GET("", api.query)
	mg.POST("", api.generate)
	mg.POST("/preview", api.preview)
	mg.GET("/:id", api.retrieve)
	mg.GET("/:id/export", api.export)
}

// Templates

func (api *marksheetsApi) queryTemplates(ctx echo.Context) error {
	tenant, err := contextTenant(ctx)
	if err != nil {
		return err
	}
	templates, err := api.svc.ListTemplates(ctx.Request().Context(), tenant)
	if err != nil {
		return errors.Wrap(err, "listing templates")
	}
	return ctx.JSON(http.StatusOK, templates)
}

func (api *marksheetsApi) createTemplate(ctx echo.Context) error {
	tenant, err := contextTenant(ctx)
	if err != nil {
		return err
	}
	var data marksheet.TemplateDef
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to TemplateDef")
	}
	tmpl, err := api.svc.CreateTemplate(ctx.Request().Context(), tenant, data)
	if err != nil {
		return errors.Wrap(err, "creating template")
	}
	return ctx.JSON(http.StatusCreated, tmpl)
}

func (api *marksheetsApi) retrieveTemplate(ctx echo.Context) error {
	tenant, err := contextTenant(ctx)
	if err != nil {
		return err
	}
	tmpl, err := api.svc.GetTemplate(ctx.Request().Context(), tenant, ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "retrieving template")
	}
	return ctx.JSON(http.StatusOK, tmpl)
}

func (api *marksheetsApi) updateTemplate(ctx echo.Context) error {
	tenant, err := contextTenant(ctx)
	if err != nil {
		return err
	}
	var data marksheet.TemplateDef
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to TemplateDef")
	}
	tmpl, err := api.svc.UpdateTemplate(ctx.Request().Context(), tenant, ctx.Param("id"), data)
	if err != nil {
		return errors.Wrap(err, "updating template")
	}
	return ctx.JSON(http.StatusOK, tmpl)
}

func (api *marksheetsApi) destroyTemplate(ctx echo.Context) error {
	tenant, err := contextTenant(ctx)
	if err != nil {
		return err
	}
	if err = api.svc.DeleteTemplate(ctx.Request().Context(), tenant, ctx.Param("id")); err != nil {
		return errors.Wrap(err, "deleting template")
	}
	return ctx.NoContent(http.StatusNoContent)
}

// Marksheets

func (api *marksheetsApi) query(ctx echo.Context) error {
	tenant, err := contextTenant(ctx)
	if err != nil {
		return err
	}
	var opts marksheet.ListOptions
	if err = ctx.Bind(&opts); err != nil {
		return errors.Wrap(err, "binding to ListOptions")
	}
	sheets, err := api.svc.List(ctx.Request().Context(), tenant, opts)
	if err != nil {
		return errors.Wrap(err, "listing marksheets")
	}
	return ctx.JSON(http.StatusOK, sheets)
}

func (api *marksheetsApi) preview(ctx echo.Context) error {
	tenant, err := contextTenant(ctx)
	if err != nil {
		return err
	}
	var data marksheet.Request
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to Request")
	}
	preview, err := api.svc.Preview(ctx.Request().Context(), tenant, data)
	if err != nil {
		return errors.Wrap(err, "previewing marksheet")
	}
	for _, rs := range preview.Slots {
		api.metrics.RecordSlot(rs.Strategy)
	}
	return ctx.JSON(http.StatusOK, preview)
}

func (api *marksheetsApi) generate(ctx echo.Context) error {
	tenant, err := contextTenant(ctx)
	if err != nil {
		return err
	}
	var data marksheet.GenerateRequest
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to GenerateRequest")
	}
	ms, err := api.svc.Generate(ctx.Request().Context(), tenant, data)
	api.metrics.RecordMarksheet(err)
	if err != nil {
		return errors.Wrap(err, "generating marksheet")
	}
	return ctx.JSON(http.StatusCreated, ms)
}

func (api *marksheetsApi) retrieve(ctx echo.Context) error {
	tenant, err := contextTenant(ctx)
	if err != nil {
		return err
	}
	ms, err := api.svc.Get(ctx.Request().Context(), tenant, ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "retrieving marksheet")
	}
	return ctx.JSON(http.StatusOK, ms)
}

func (api *marksheetsApi) export(ctx echo.Context) error {
	tenant, err := contextTenant(ctx)
	if err != nil {
		return err
	}
	ms, err := api.svc.Get(ctx.Request().Context(), tenant, ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "retrieving marksheet")
	}
	var buf bytes.Buffer
	if err = marksheet.ExportXLSX(ms, &buf); err != nil {
		return errors.Wrap(err, "exporting marksheet")
	}
	ctx.Response().Header().Set(echo.HeaderContentDisposition, `attachment; filename="marksheet-`+ms.ID+`.xlsx"`)
	return ctx.Blob(http.StatusOK, mimeXLSX, buf.Bytes())
}
