package echoapi

import (
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/donhautea/SSS-CMS/core"
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
		ord.Orderings = append(ord.Orderings, core.DBOrdering{Field: field, Ascending: !descending})
	}
}

// NameRequest is the body for taxonomy creation and renaming.
type NameRequest struct {
	Name string `json:"name" validate:"required"`
}

func (r *NameRequest) Validate() error {
	r.Name = core.CleanString(r.Name)
	return core.Validate.Struct(r)
}

// ActiveRequest toggles a unit, category or status.
type ActiveRequest struct {
	IsActive *bool `json:"is_active" validate:"required"`
}

func (r *ActiveRequest) Validate() error {
	return core.Validate.Struct(r)
}

type SettingRequest struct {
	Value string `json:"value"`
}

type UnitPrefixRequest struct {
	UnitName string `json:"unit_name" validate:"required"`
	Prefix   string `json:"prefix" validate:"required"`
}

func (r *UnitPrefixRequest) Validate() error {
	r.UnitName = core.CleanString(r.UnitName)
	r.Prefix = core.CleanString(r.Prefix)
	return core.Validate.Struct(r)
}

type UnitNamesRequest struct {
	Names []string `json:"names" validate:"required,min=1"`
}

func (r *UnitNamesRequest) Validate() error {
	return core.Validate.Struct(r)
}
