package definition

import (
	"fmt"
	"slices"
	"strings"

	"github.com/tshop/admin/internal/openapi"
	"github.com/tshop/admin/model"
)

// VError describes a single validation error in a definition.
type VError struct {
	Path    string `json:"path"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e VError) Error() string {
	return fmt.Sprintf("%s: %s", e.Path, e.Message)
}

// Validator validates definitions structurally and against OpenAPI specs.
type Validator struct{}

// NewValidator creates a new Validator.
func NewValidator() *Validator {
	return &Validator{}
}

// Validate checks all definitions. The index may be nil to skip OpenAPI
// checks; services with no loaded spec are skipped as well.
func (v *Validator) Validate(defs []model.DomainDefinition, index *openapi.Index) []VError {
	var errs []VError
	seen := make(map[string]string)
	for i, def := range defs {
		prefix := fmt.Sprintf("definitions[%d]", i)
		errs = append(errs, v.validateDomain(prefix, def, index)...)

		for j, sc := range def.Screens {
			if sc.ID == "" {
				continue
			}
			sp := fmt.Sprintf("%s.screens[%d].id", prefix, j)
			if first, dup := seen[sc.ID]; dup {
				errs = append(errs, VError{Path: sp, Code: "DUPLICATE", Message: fmt.Sprintf("screen %q already defined at %s", sc.ID, first)})
				continue
			}
			seen[sc.ID] = sp
		}
	}
	return errs
}

func (v *Validator) validateDomain(prefix string, def model.DomainDefinition, index *openapi.Index) []VError {
	var errs []VError

	if def.Domain == "" {
		errs = append(errs, VError{Path: prefix + ".domain", Code: "REQUIRED", Message: "domain is required"})
	}
	if def.Version == "" {
		errs = append(errs, VError{Path: prefix + ".version", Code: "REQUIRED", Message: "version is required"})
	}
	if def.Navigation.Label == "" {
		errs = append(errs, VError{Path: prefix + ".navigation.label", Code: "REQUIRED", Message: "navigation.label is required"})
	}
	if len(def.Screens) == 0 {
		errs = append(errs, VError{Path: prefix + ".screens", Code: "REQUIRED", Message: "at least one screen is required"})
	}

	for i, sc := range def.Screens {
		sp := fmt.Sprintf("%s.screens[%d]", prefix, i)
		errs = append(errs, v.validateScreen(sp, sc)...)
		if index != nil {
			errs = append(errs, v.validateContract(sp, sc, index)...)
		}
	}

	return errs
}

var validModes = map[string]bool{
	"": true, model.ScreenModeManage: true, model.ScreenModeCreateOnly: true,
}

var validFieldTypes = map[string]bool{
	"": true, model.FieldTypeText: true, model.FieldTypeNumber: true,
	model.FieldTypeDate: true, model.FieldTypeHidden: true,
}

func (v *Validator) validateScreen(prefix string, s model.ScreenDefinition) []VError {
	var errs []VError

	if s.ID == "" {
		errs = append(errs, VError{Path: prefix + ".id", Code: "REQUIRED", Message: "id is required"})
	}
	if s.Title == "" {
		errs = append(errs, VError{Path: prefix + ".title", Code: "REQUIRED", Message: "title is required"})
	}
	if s.Route == "" {
		errs = append(errs, VError{Path: prefix + ".route", Code: "REQUIRED", Message: "route is required"})
	}
	if !validModes[s.Mode] {
		errs = append(errs, VError{Path: prefix + ".mode", Code: "INVALID_ENUM", Message: fmt.Sprintf("invalid mode %q", s.Mode)})
	}
	if s.ServiceID == "" {
		errs = append(errs, VError{Path: prefix + ".service_id", Code: "REQUIRED", Message: "service_id is required"})
	}
	if !strings.HasPrefix(s.BasePath, "/") {
		errs = append(errs, VError{Path: prefix + ".base_path", Code: "INVALID", Message: "base_path must start with /"})
	}

	fieldNames := make(map[string]bool, len(s.Fields))
	if len(s.Fields) == 0 {
		errs = append(errs, VError{Path: prefix + ".fields", Code: "REQUIRED", Message: "at least one field is required"})
	}
	for i, f := range s.Fields {
		fp := fmt.Sprintf("%s.fields[%d]", prefix, i)
		if f.Field == "" {
			errs = append(errs, VError{Path: fp + ".field", Code: "REQUIRED", Message: "field is required"})
		} else if fieldNames[f.Field] {
			errs = append(errs, VError{Path: fp + ".field", Code: "DUPLICATE", Message: fmt.Sprintf("field %q defined twice", f.Field)})
		}
		fieldNames[f.Field] = true

		if !validFieldTypes[f.Type] {
			errs = append(errs, VError{Path: fp + ".type", Code: "INVALID_ENUM", Message: fmt.Sprintf("invalid field type %q", f.Type)})
		}
		if (f.DefaultToday || f.MaxToday) && f.Type != model.FieldTypeDate {
			errs = append(errs, VError{Path: fp + ".type", Code: "INVALID", Message: "default_today and max_today require a date field"})
		}
		if f.Numeric && f.Type != model.FieldTypeNumber {
			errs = append(errs, VError{Path: fp + ".numeric", Code: "INVALID", Message: "numeric fields must be typed number"})
		}
	}

	if s.HasTable() {
		errs = append(errs, v.validateIdentity(prefix+".identity", s.Identity, fieldNames)...)

		for i, size := range s.PageSizes {
			if size < 1 || size > 200 {
				errs = append(errs, VError{Path: fmt.Sprintf("%s.page_sizes[%d]", prefix, i), Code: "RANGE", Message: "page size must be 1-200"})
			}
		}
		if s.DefaultPageSize < 0 || s.DefaultPageSize > 200 {
			errs = append(errs, VError{Path: prefix + ".default_page_size", Code: "RANGE", Message: "default_page_size must be 0-200"})
		} else if s.DefaultPageSize > 0 && !slices.Contains(s.PageSizeOptions(), s.DefaultPageSize) {
			errs = append(errs, VError{Path: prefix + ".default_page_size", Code: "INVALID", Message: "default_page_size must be one of page_sizes"})
		}
		if c := s.DeleteConfirmation; c != nil && c.Message == "" {
			errs = append(errs, VError{Path: prefix + ".delete_confirmation.message", Code: "REQUIRED", Message: "delete_confirmation.message is required"})
		}
	} else {
		if len(s.Columns) > 0 {
			errs = append(errs, VError{Path: prefix + ".columns", Code: "INVALID", Message: "create_only screens have no table"})
		}
		if s.DeleteConfirmation != nil {
			errs = append(errs, VError{Path: prefix + ".delete_confirmation", Code: "INVALID", Message: "create_only screens have no row actions"})
		}
	}

	return errs
}

func (v *Validator) validateIdentity(prefix string, id model.IdentityDefinition, fieldNames map[string]bool) []VError {
	var errs []VError

	switch id.Strategy {
	case model.IdentitySynthetic:
		if id.Field == "" {
			errs = append(errs, VError{Path: prefix + ".field", Code: "REQUIRED", Message: "field is required for id identity"})
		} else if !fieldNames[id.Field] {
			errs = append(errs, VError{Path: prefix + ".field", Code: "REF_NOT_FOUND", Message: fmt.Sprintf("identity field %q is not a form field", id.Field)})
		}
	case model.IdentityNaturalKey:
		if len(id.NaturalKey) == 0 {
			errs = append(errs, VError{Path: prefix + ".natural_key", Code: "REQUIRED", Message: "natural_key needs at least one field"})
		}
		for i, k := range id.NaturalKey {
			if !fieldNames[k] {
				errs = append(errs, VError{
					Path:    fmt.Sprintf("%s.natural_key[%d]", prefix, i),
					Code:    "REF_NOT_FOUND",
					Message: fmt.Sprintf("natural key field %q is not a form field", k),
				})
			}
		}
	case "":
		errs = append(errs, VError{Path: prefix + ".strategy", Code: "REQUIRED", Message: "identity.strategy is required"})
	default:
		errs = append(errs, VError{Path: prefix + ".strategy", Code: "INVALID_ENUM", Message: fmt.Sprintf("invalid identity strategy %q", id.Strategy)})
	}

	return errs
}

// validateContract checks that the backend documents every operation the
// screen calls and that the form covers each required body property.
func (v *Validator) validateContract(prefix string, s model.ScreenDefinition, index *openapi.Index) []VError {
	if !index.HasService(s.ServiceID) {
		return nil
	}

	var errs []VError
	for _, ep := range s.Endpoints() {
		if !index.HasOperation(s.ServiceID, ep.Method, ep.Path) {
			errs = append(errs, VError{
				Path:    prefix + ".base_path",
				Code:    "OPERATION_NOT_FOUND",
				Message: fmt.Sprintf("%s %s not found in service %q", ep.Method, ep.Path, s.ServiceID),
			})
			continue
		}
		for _, req := range index.RequiredFields(s.ServiceID, ep.Method, ep.Path) {
			if _, ok := s.Field(req); !ok {
				errs = append(errs, VError{
					Path:    prefix + ".fields",
					Code:    "MISSING_FIELD",
					Message: fmt.Sprintf("%s %s requires %q but the form has no such field", ep.Method, ep.Path, req),
				})
			}
		}
	}
	return errs
}
