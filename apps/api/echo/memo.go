package echoapi

import (
	"fmt"
	"mime/multipart"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/donhautea/SSS-CMS/core"
	"github.com/donhautea/SSS-CMS/core/memo"
	"github.com/donhautea/SSS-CMS/core/user"
)

var errMemoNotFoundInCtx = errors.New("memo object not found in echo.Context")

// defaultAuditLimit caps the audit trail listing unless ?limit= is given.
const defaultAuditLimit = 200

type memoApi struct {
	svc  memo.Service
	conf *core.Config
}

func registerMemoAPI(g *echo.Group, jwt echo.MiddlewareFunc, svc memo.Service, conf *core.Config) {
	api := memoApi{
		svc:  svc,
		conf: conf,
	}

	logRoles := roleMiddleware(user.RoleAdmin, user.RoleSuper, user.RoleUser)
	superRoles := roleMiddleware(user.RoleAdmin, user.RoleSuper)

	mg := g.Group("/memos", jwt)
	mg.POST("", api.create, logRoles)
	mg.GET("", api.query)
	mg.DELETE("", api.destroyMultiple, adminMiddleware())
	mg.GET("/next-control-no", api.nextControlNo, logRoles)
	mg.GET("/dashboard", api.dashboard)
	mg.GET("/dashboard/export", api.exportDashboard)
	mg.GET("/export", api.exportCSV)
	mg.GET("/audit", api.auditTrail, adminMiddleware())

	// spreadsheet import
	ig := mg.Group("/import", superRoles)
	ig.GET("/template", api.importTemplate)
	ig.POST("/validate", api.validateImport)
	ig.POST("", api.runImport)

	// detail endpoints
	dg := mg.Group("/:id", ctxMemoMiddleware(api.svc))
	dg.GET("", api.retrieve)
	dg.PUT("", api.update)
	dg.DELETE("", api.destroy, adminMiddleware())
	dg.POST("/wipe", api.wipe, adminMiddleware())
	dg.GET("/attachments", api.attachments)
	dg.POST("/attachments", api.addAttachment)
	dg.GET("/attachments/zip", api.zipAttachments, superRoles)
	dg.GET("/attachments/:attID", api.downloadAttachment)
	dg.DELETE("/attachments/:attID", api.deleteAttachment)

	// taxonomy
	cg := g.Group("/categories", jwt)
	cg.GET("", api.queryCategories)
	cg.POST("", api.createCategory, superRoles)
	cg.PUT("/:id", api.setCategoryActive, adminMiddleware())
	cg.DELETE("/:id", api.destroyCategory, adminMiddleware())

	sg := g.Group("/statuses", jwt)
	sg.GET("", api.queryStatuses)
	sg.POST("", api.createStatus, superRoles)
	sg.PUT("/:id", api.setStatusActive, adminMiddleware())
	sg.PUT("/:id/rename", api.renameStatus, adminMiddleware())
	sg.DELETE("/:id", api.destroyStatus, adminMiddleware())

	// app settings & control-number prefixes
	stg := g.Group("/settings", jwt, adminMiddleware())
	stg.GET("", api.querySettings)
	stg.PUT("/:key", api.setSetting)

	pg := g.Group("/control-prefixes", jwt, adminMiddleware())
	pg.GET("", api.queryUnitPrefixes)
	pg.PUT("", api.setUnitPrefix)
}

// Handlers

func (api *memoApi) create(ctx echo.Context) error {
	var data memo.NewMemo
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewMemo")
	}
	if err := data.Validate(); err != nil {
		return err
	}

	claims, err := getContextClaims(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context claims")
	}
	// non-admins may only log memos for their own units
	if !claims.IsAdmin {
		u := user.User{Units: claims.Units}
		for _, unit := range data.ForUnits {
			if !u.HasUnit(unit) {
				return core.NewValidationError(nil, core.FieldError{
					Field: "for_units",
					Error: fmt.Sprintf("you are not a member of unit %q", unit),
				})
			}
		}
	}

	m, err := api.svc.Create(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "creating memo")
	}
	api.svc.LogAction(ctx.Request().Context(), claims.userID(), "create_memo", m.ID, m.ControlNo)

	return ctx.JSON(http.StatusCreated, m)
}

func (api *memoApi) nextControlNo(ctx echo.Context) error {
	controlNo, err := api.svc.NextControlNo(ctx.Request().Context(), ctx.QueryParam("unit"))
	if err != nil {
		return errors.Wrap(err, "previewing control number")
	}
	return ctx.JSON(http.StatusOK, echo.Map{"control_no": controlNo})
}

func (api *memoApi) query(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context claims")
	}

	filter := new(memo.QueryFilter)
	if err = ctx.Bind(filter); err != nil {
		return ctx.JSON(http.StatusOK, []memo.Memo{})
	}
	ordering := new(Ordering)
	ordering.Bind(ctx)

	memos, err := api.svc.Filter(ctx.Request().Context(), claims.Scope(), *filter, ordering.Orderings...)
	if err != nil {
		return errors.Wrap(err, "querying memos")
	}
	if memos == nil {
		memos = []memo.Memo{}
	}
	return ctx.JSON(http.StatusOK, memos)
}

func (api *memoApi) retrieve(ctx echo.Context) error {
	m, ok := ctx.Get("object").(memo.Memo)
	if !ok {
		return errors.Wrap(errMemoNotFoundInCtx, "retrieving object from context")
	}
	return ctx.JSON(http.StatusOK, m)
}

func (api *memoApi) update(ctx echo.Context) error {
	m, ok := ctx.Get("object").(memo.Memo)
	if !ok {
		return errors.Wrap(errMemoNotFoundInCtx, "retrieving object from context")
	}

	claims, err := getContextClaims(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context claims")
	}
	if !m.CanEdit(claims.Role, claims.Units) {
		return errHttpForbidden
	}

	var data memo.UpdateMemo
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateMemo")
	}
	// retargeting a memo to other units is a super/admin call
	if data.ForUnits != nil && !contextHasAnyRole(ctx, []string{user.RoleAdmin, user.RoleSuper}) {
		return errHttpForbidden
	}
	if err = data.Validate(); err != nil {
		return err
	}

	updated, err := api.svc.Update(ctx.Request().Context(), claims.Scope(), m.ID, data)
	if err != nil {
		return errors.Wrap(err, "updating memo")
	}
	api.svc.LogAction(ctx.Request().Context(), claims.userID(), "update_memo", m.ID, m.ControlNo)

	return ctx.JSON(http.StatusOK, updated)
}

func (api *memoApi) destroy(ctx echo.Context) error {
	m, ok := ctx.Get("object").(memo.Memo)
	if !ok {
		return errors.Wrap(errMemoNotFoundInCtx, "retrieving object from context")
	}

	if err := api.svc.Delete(ctx.Request().Context(), m.ID); err != nil {
		return errors.Wrap(err, "deleting memo")
	}
	if claims, err := getContextClaims(ctx); err == nil {
		api.svc.LogAction(ctx.Request().Context(), claims.userID(), "delete_memo", 0, m.ControlNo)
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *memoApi) destroyMultiple(ctx echo.Context) error {
	var query DestroyMultipleRequest
	if err := ctx.Bind(&query); err != nil {
		return errors.Wrap(err, "binding to DestroyMultipleRequest")
	}
	if query.IDs == nil {
		return ctx.NoContent(http.StatusNoContent)
	}

	if err := api.svc.Delete(ctx.Request().Context(), query.IDs...); err != nil {
		return errors.Wrap(err, "deleting memos")
	}
	if claims, err := getContextClaims(ctx); err == nil {
		api.svc.LogAction(ctx.Request().Context(), claims.userID(), "delete_memos", 0, fmt.Sprintf("%d records", len(query.IDs)))
	}
	return ctx.NoContent(http.StatusNoContent)
}

// wipe clears a record's contents but keeps the row and its control number.
func (api *memoApi) wipe(ctx echo.Context) error {
	m, ok := ctx.Get("object").(memo.Memo)
	if !ok {
		return errors.Wrap(errMemoNotFoundInCtx, "retrieving object from context")
	}

	if err := api.svc.Wipe(ctx.Request().Context(), m.ID); err != nil {
		return errors.Wrap(err, "wiping memo")
	}
	if claims, err := getContextClaims(ctx); err == nil {
		api.svc.LogAction(ctx.Request().Context(), claims.userID(), "wipe_memo", m.ID, m.ControlNo)
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *memoApi) dashboard(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context claims")
	}

	filter := new(memo.QueryFilter)
	_ = ctx.Bind(filter)

	stats, err := api.svc.Dashboard(ctx.Request().Context(), claims.Scope(), *filter)
	if err != nil {
		return errors.Wrap(err, "computing dashboard")
	}
	return ctx.JSON(http.StatusOK, stats)
}

func (api *memoApi) exportCSV(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context claims")
	}

	filter := new(memo.QueryFilter)
	_ = ctx.Bind(filter)

	res := ctx.Response()
	res.Header().Set(echo.HeaderContentType, "text/csv")
	res.Header().Set(echo.HeaderContentDisposition, `attachment; filename="memos.csv"`)
	res.WriteHeader(http.StatusOK)

	return errors.Wrap(api.svc.ExportCSV(ctx.Request().Context(), claims.Scope(), *filter, res), "exporting csv")
}

func (api *memoApi) exportDashboard(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context claims")
	}

	filter := new(memo.QueryFilter)
	_ = ctx.Bind(filter)

	res := ctx.Response()
	res.Header().Set(echo.HeaderContentType, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	res.Header().Set(echo.HeaderContentDisposition, `attachment; filename="dashboard.xlsx"`)
	res.WriteHeader(http.StatusOK)

	return errors.Wrap(api.svc.ExportDashboard(ctx.Request().Context(), claims.Scope(), *filter, res), "exporting dashboard")
}

func (api *memoApi) auditTrail(ctx echo.Context) error {
	limit, err := strconv.Atoi(ctx.QueryParam("limit"))
	if err != nil || limit <= 0 {
		limit = defaultAuditLimit
	}

	entries, err := api.svc.AuditTrail(ctx.Request().Context(), limit)
	if err != nil {
		return errors.Wrap(err, "querying audit trail")
	}
	if entries == nil {
		entries = []memo.AuditEntry{}
	}
	return ctx.JSON(http.StatusOK, entries)
}

// Import / export

func (api *memoApi) importTemplate(ctx echo.Context) error {
	res := ctx.Response()
	res.Header().Set(echo.HeaderContentType, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	res.Header().Set(echo.HeaderContentDisposition, `attachment; filename="memo_import_template.xlsx"`)
	res.WriteHeader(http.StatusOK)

	return errors.Wrap(api.svc.BuildImportTemplate(res), "building import template")
}

func (api *memoApi) validateImport(ctx echo.Context) error {
	file, opts, err := api.bindImport(ctx)
	if err != nil {
		return err
	}
	defer file.Close()

	issues, err := api.svc.ValidateImport(ctx.Request().Context(), file, opts)
	if err != nil {
		return errors.Wrap(err, "validating import")
	}
	if issues == nil {
		issues = []memo.ImportIssue{}
	}
	return ctx.JSON(http.StatusOK, issues)
}

func (api *memoApi) runImport(ctx echo.Context) error {
	file, opts, err := api.bindImport(ctx)
	if err != nil {
		return err
	}
	defer file.Close()

	res, err := api.svc.Import(ctx.Request().Context(), file, opts)
	if err != nil {
		return errors.Wrap(err, "importing memos")
	}
	if claims, err := getContextClaims(ctx); err == nil {
		api.svc.LogAction(ctx.Request().Context(), claims.userID(), "import_memos", 0,
			fmt.Sprintf("%d inserted, %d skipped, %d failed", res.Inserted, res.Skipped, res.Failed))
	}
	return ctx.JSON(http.StatusOK, res)
}

func (api *memoApi) bindImport(ctx echo.Context) (multipart.File, memo.ImportOptions, error) {
	var opts memo.ImportOptions
	opts.AutoCreateCategories, _ = strconv.ParseBool(ctx.FormValue("auto_create_categories"))
	opts.AutoGenControlNos, _ = strconv.ParseBool(ctx.FormValue("auto_gen_control_nos"))

	fh, err := ctx.FormFile("file")
	if err != nil {
		return nil, opts, core.NewValidationError(nil, core.FieldError{Field: "file", Error: "this field is required"})
	}
	file, err := fh.Open()
	if err != nil {
		return nil, opts, errors.Wrap(err, "opening uploaded file")
	}
	return file, opts, nil
}

// Attachments

func (api *memoApi) attachments(ctx echo.Context) error {
	m, ok := ctx.Get("object").(memo.Memo)
	if !ok {
		return errors.Wrap(errMemoNotFoundInCtx, "retrieving object from context")
	}

	atts, err := api.svc.Attachments(ctx.Request().Context(), m.ID)
	if err != nil {
		return errors.Wrap(err, "querying attachments")
	}
	if atts == nil {
		atts = []memo.Attachment{}
	}
	return ctx.JSON(http.StatusOK, atts)
}

func (api *memoApi) addAttachment(ctx echo.Context) error {
	m, ok := ctx.Get("object").(memo.Memo)
	if !ok {
		return errors.Wrap(errMemoNotFoundInCtx, "retrieving object from context")
	}

	claims, err := getContextClaims(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context claims")
	}
	if !m.CanEdit(claims.Role, claims.Units) {
		return errHttpForbidden
	}

	fh, err := ctx.FormFile("file")
	if err != nil {
		return core.NewValidationError(nil, core.FieldError{Field: "file", Error: "this field is required"})
	}
	file, err := fh.Open()
	if err != nil {
		return errors.Wrap(err, "opening uploaded file")
	}
	defer file.Close()

	att, err := api.svc.AddAttachment(ctx.Request().Context(), claims.Scope(), m.ID, fh.Filename, file)
	if err != nil {
		return errors.Wrap(err, "saving attachment")
	}
	api.svc.LogAction(ctx.Request().Context(), claims.userID(), "add_attachment", m.ID, fh.Filename)

	return ctx.JSON(http.StatusCreated, att)
}

func (api *memoApi) downloadAttachment(ctx echo.Context) error {
	m, ok := ctx.Get("object").(memo.Memo)
	if !ok {
		return errors.Wrap(errMemoNotFoundInCtx, "retrieving object from context")
	}

	id, err := strconv.Atoi(ctx.Param("attID"))
	if err != nil {
		return errHttpNotFound
	}

	att, rc, err := api.svc.OpenAttachment(ctx.Request().Context(), id)
	if err != nil {
		if errors.Cause(err) == memo.ErrNotFound {
			return errHttpNotFound
		}
		return errors.Wrap(err, "opening attachment")
	}
	defer rc.Close()

	if att.MemoID != m.ID {
		return errHttpNotFound
	}

	ctx.Response().Header().Set(echo.HeaderContentDisposition, fmt.Sprintf("attachment; filename=%q", att.Filename))
	return ctx.Stream(http.StatusOK, echo.MIMEOctetStream, rc)
}

func (api *memoApi) deleteAttachment(ctx echo.Context) error {
	m, ok := ctx.Get("object").(memo.Memo)
	if !ok {
		return errors.Wrap(errMemoNotFoundInCtx, "retrieving object from context")
	}

	claims, err := getContextClaims(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context claims")
	}
	if !m.CanEdit(claims.Role, claims.Units) {
		return errHttpForbidden
	}

	id, err := strconv.Atoi(ctx.Param("attID"))
	if err != nil {
		return errHttpNotFound
	}
	att, err := api.svc.Attachments(ctx.Request().Context(), m.ID)
	if err != nil {
		return errors.Wrap(err, "querying attachments")
	}
	var found bool
	var filename string
	for _, a := range att {
		if a.ID == id {
			found = true
			filename = a.Filename
			break
		}
	}
	if !found {
		return errHttpNotFound
	}

	if err = api.svc.DeleteAttachment(ctx.Request().Context(), id); err != nil {
		return errors.Wrap(err, "deleting attachment")
	}
	api.svc.LogAction(ctx.Request().Context(), claims.userID(), "delete_attachment", m.ID, filename)

	return ctx.NoContent(http.StatusNoContent)
}

func (api *memoApi) zipAttachments(ctx echo.Context) error {
	m, ok := ctx.Get("object").(memo.Memo)
	if !ok {
		return errors.Wrap(errMemoNotFoundInCtx, "retrieving object from context")
	}

	res := ctx.Response()
	res.Header().Set(echo.HeaderContentType, "application/zip")
	res.Header().Set(echo.HeaderContentDisposition, fmt.Sprintf(`attachment; filename="memo_%d_files.zip"`, m.ID))

	if err := api.svc.ZipAttachments(ctx.Request().Context(), m.ID, res); err != nil {
		if errors.Cause(err) == memo.ErrNoAttachments {
			return errHttpNotFound
		}
		return errors.Wrap(err, "zipping attachments")
	}
	return nil
}

// Taxonomy

func (api *memoApi) queryCategories(ctx echo.Context) error {
	activeOnly, _ := strconv.ParseBool(ctx.QueryParam("active_only"))
	cats, err := api.svc.Categories(ctx.Request().Context(), activeOnly)
	if err != nil {
		return errors.Wrap(err, "querying categories")
	}
	if cats == nil {
		cats = []memo.Category{}
	}
	return ctx.JSON(http.StatusOK, cats)
}

func (api *memoApi) createCategory(ctx echo.Context) error {
	var data NameRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NameRequest")
	}
	if err := data.Validate(); err != nil {
		return err
	}

	cat, err := api.svc.AddCategory(ctx.Request().Context(), data.Name)
	if err != nil {
		return errors.Wrap(err, "creating category")
	}
	return ctx.JSON(http.StatusCreated, cat)
}

func (api *memoApi) setCategoryActive(ctx echo.Context) error {
	id, err := strconv.Atoi(ctx.Param("id"))
	if err != nil {
		return errHttpNotFound
	}

	var data ActiveRequest
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to ActiveRequest")
	}
	if err = data.Validate(); err != nil {
		return err
	}

	if err = api.svc.SetCategoryActive(ctx.Request().Context(), id, *data.IsActive); err != nil {
		return errors.Wrap(err, "toggling category")
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *memoApi) destroyCategory(ctx echo.Context) error {
	id, err := strconv.Atoi(ctx.Param("id"))
	if err != nil {
		return errHttpNotFound
	}
	if err = api.svc.DeleteCategory(ctx.Request().Context(), id); err != nil {
		return errors.Wrap(err, "deleting category")
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *memoApi) queryStatuses(ctx echo.Context) error {
	activeOnly, _ := strconv.ParseBool(ctx.QueryParam("active_only"))
	stats, err := api.svc.Statuses(ctx.Request().Context(), activeOnly)
	if err != nil {
		return errors.Wrap(err, "querying statuses")
	}
	if stats == nil {
		stats = []memo.Status{}
	}
	return ctx.JSON(http.StatusOK, stats)
}

func (api *memoApi) createStatus(ctx echo.Context) error {
	var data NameRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NameRequest")
	}
	if err := data.Validate(); err != nil {
		return err
	}

	stat, err := api.svc.AddStatus(ctx.Request().Context(), data.Name)
	if err != nil {
		return errors.Wrap(err, "creating status")
	}
	return ctx.JSON(http.StatusCreated, stat)
}

func (api *memoApi) setStatusActive(ctx echo.Context) error {
	id, err := strconv.Atoi(ctx.Param("id"))
	if err != nil {
		return errHttpNotFound
	}

	var data ActiveRequest
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to ActiveRequest")
	}
	if err = data.Validate(); err != nil {
		return err
	}

	if err = api.svc.SetStatusActive(ctx.Request().Context(), id, *data.IsActive); err != nil {
		return errors.Wrap(err, "toggling status")
	}
	return ctx.NoContent(http.StatusNoContent)
}

// renameStatus propagates the new name to referencing memos.
func (api *memoApi) renameStatus(ctx echo.Context) error {
	id, err := strconv.Atoi(ctx.Param("id"))
	if err != nil {
		return errHttpNotFound
	}

	var data NameRequest
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NameRequest")
	}
	if err = data.Validate(); err != nil {
		return err
	}

	if err = api.svc.RenameStatus(ctx.Request().Context(), id, data.Name); err != nil {
		if errors.Cause(err) == memo.ErrStatusNotFound {
			return errHttpNotFound
		}
		return errors.Wrap(err, "renaming status")
	}
	if claims, err := getContextClaims(ctx); err == nil {
		api.svc.LogAction(ctx.Request().Context(), claims.userID(), "rename_status", 0, data.Name)
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *memoApi) destroyStatus(ctx echo.Context) error {
	id, err := strconv.Atoi(ctx.Param("id"))
	if err != nil {
		return errHttpNotFound
	}
	if err = api.svc.DeleteStatus(ctx.Request().Context(), id); err != nil {
		return errors.Wrap(err, "deleting status")
	}
	return ctx.NoContent(http.StatusNoContent)
}

// Settings & prefixes

func (api *memoApi) querySettings(ctx echo.Context) error {
	settings, err := api.svc.Settings(ctx.Request().Context())
	if err != nil {
		return errors.Wrap(err, "querying settings")
	}
	if settings == nil {
		settings = []memo.Setting{}
	}
	return ctx.JSON(http.StatusOK, settings)
}

func (api *memoApi) setSetting(ctx echo.Context) error {
	var data SettingRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to SettingRequest")
	}

	key := ctx.Param("key")
	if err := api.svc.SetSetting(ctx.Request().Context(), key, data.Value); err != nil {
		return errors.Wrap(err, "saving setting")
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *memoApi) queryUnitPrefixes(ctx echo.Context) error {
	prefixes, err := api.svc.UnitPrefixes(ctx.Request().Context())
	if err != nil {
		return errors.Wrap(err, "querying unit prefixes")
	}
	if prefixes == nil {
		prefixes = []memo.ControlPrefix{}
	}
	return ctx.JSON(http.StatusOK, prefixes)
}

func (api *memoApi) setUnitPrefix(ctx echo.Context) error {
	var data UnitPrefixRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UnitPrefixRequest")
	}
	if err := data.Validate(); err != nil {
		return err
	}

	if err := api.svc.SetUnitPrefix(ctx.Request().Context(), data.UnitName, data.Prefix); err != nil {
		return errors.Wrap(err, "saving unit prefix")
	}
	return ctx.NoContent(http.StatusNoContent)
}

// ctxMemoMiddleware loads the memo within the caller's visibility scope
// and stashes it in the context; out-of-scope records read as not found.
func ctxMemoMiddleware(svc memo.Service) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			claims, err := getContextClaims(ctx)
			if err != nil {
				return errors.Wrap(err, "getting context claims")
			}

			id, err := strconv.Atoi(ctx.Param("id"))
			if err != nil {
				return errHttpNotFound
			}

			m, err := svc.GetByID(ctx.Request().Context(), claims.Scope(), id)
			if err != nil {
				if errors.Cause(err) == memo.ErrNotFound {
					return errHttpNotFound
				}
				return errors.Wrap(err, "finding memo by ID")
			}
			ctx.Set("object", m)
			return next(ctx)
		}
	}
}
