package config

import (
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"slices"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/syssam/velograph"
)

var (
	validate = newValidator()

	identRe = regexp.MustCompile(`^[_A-Za-z][_0-9A-Za-z]*$`)
)

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("yaml"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// Validate checks c and returns every violation found, collected into a
// velograph.AggregateError of ConfigErrors. It returns nil for a valid config.
func (c *Config) Validate() error {
	if c == nil {
		return velograph.NewConfigError("", fmt.Errorf("%w: nil config", velograph.ErrConfigInvalid))
	}
	var errs []error
	if err := validate.Struct(c); err != nil {
		var ves validator.ValidationErrors
		if !errors.As(err, &ves) {
			return velograph.NewConfigError("", err)
		}
		for _, fe := range ves {
			errs = append(errs, velograph.NewConfigError(
				strings.TrimPrefix(fe.Namespace(), "Config."),
				fmt.Errorf("%w: failed %q rule", velograph.ErrConfigInvalid, fe.Tag()),
			))
		}
	}
	if c.Version > LatestVersion {
		errs = append(errs, velograph.NewConfigError("version",
			fmt.Errorf("%w: %d is newer than %d", velograph.ErrConfigVersionMismatched, c.Version, LatestVersion)))
	}
	errs = append(errs, c.checkTypes()...)
	errs = append(errs, c.checkEndpoints()...)
	return velograph.NewAggregateError(errs...)
}

func (c *Config) checkTypes() []error {
	var errs []error
	seen := make(map[string]bool, len(c.Model))
	for _, t := range c.Model {
		if t == nil {
			continue
		}
		if seen[t.Name] {
			errs = append(errs, duplicated(t.Name))
		}
		seen[t.Name] = true
		errs = append(errs, checkType(t, "type")...)
		rels := make(map[string]bool, len(t.Rels))
		for _, r := range t.Rels {
			if r == nil {
				continue
			}
			item := t.Name + "." + r.Name
			if !identRe.MatchString(r.Name) {
				errs = append(errs, invalid(item, "not an identifier"))
			}
			if rels[r.Name] || t.Prop(r.Name) != nil {
				errs = append(errs, duplicated(item))
			}
			rels[r.Name] = true
			for _, dst := range r.Nodes {
				if c.Type(dst) == nil {
					errs = append(errs, invalid(item, "unknown destination type %q", dst))
				}
			}
			errs = append(errs, checkProps(item, r.Props, "id", "label", "src", "dst")...)
		}
	}
	return errs
}

// checkType applies the rules shared by model types and inline endpoint types.
func checkType(t *Type, what string) []error {
	var errs []error
	if !identRe.MatchString(t.Name) {
		errs = append(errs, invalid(t.Name, "%s name is not an identifier", what))
	}
	if IsScalar(t.Name) {
		errs = append(errs, reserved(t.Name))
	}
	return append(errs, checkProps(t.Name, t.Props, "id", "label")...)
}

func checkProps(owner string, props []*Property, reservedNames ...string) []error {
	var errs []error
	seen := make(map[string]bool, len(props))
	for _, p := range props {
		if p == nil {
			continue
		}
		item := owner + "." + p.Name
		if !identRe.MatchString(p.Name) {
			errs = append(errs, invalid(item, "not an identifier"))
		}
		for _, r := range reservedNames {
			if strings.EqualFold(p.Name, r) {
				errs = append(errs, reserved(item))
			}
		}
		if seen[p.Name] {
			errs = append(errs, duplicated(item))
		}
		seen[p.Name] = true
		if p.Uses != nil {
			for _, op := range p.Uses.Operators {
				if !isOperator(op) {
					errs = append(errs, invalid(item, "unknown operator %q", op))
				}
			}
		}
	}
	return errs
}

func (c *Config) checkEndpoints() []error {
	var errs []error
	seen := make(map[string]bool, len(c.Endpoints))
	for _, e := range c.Endpoints {
		if e == nil {
			continue
		}
		if seen[e.Name] {
			errs = append(errs, duplicated(e.Name))
		}
		seen[e.Name] = true
		if !identRe.MatchString(e.Name) {
			errs = append(errs, invalid(e.Name, "endpoint name is not an identifier"))
		}
		if c.Type(e.Name) != nil {
			errs = append(errs, duplicated(e.Name))
		}
		for _, et := range []*EndpointType{e.Input, e.Output} {
			if et == nil {
				continue
			}
			switch et.Type.Kind {
			case TypeDefCustom:
				if et.Type.Custom == nil {
					errs = append(errs, invalid(e.Name, "custom type is empty"))
					continue
				}
				errs = append(errs, checkType(et.Type.Custom, "custom type")...)
				if c.Type(et.Type.Custom.Name) != nil {
					errs = append(errs, duplicated(et.Type.Custom.Name))
				}
			case TypeDefExisting:
				if c.Type(et.Type.Name) == nil {
					errs = append(errs, invalid(e.Name, "unknown type %q", et.Type.Name))
				}
			}
		}
	}
	return errs
}

func isOperator(op Operator) bool {
	return slices.Contains(Operators, op)
}

func duplicated(item string) error {
	return velograph.NewConfigError(item, velograph.ErrConfigItemDuplicated)
}

func reserved(item string) error {
	return velograph.NewConfigError(item, velograph.ErrConfigItemReserved)
}

func invalid(item, format string, args ...any) error {
	return velograph.NewConfigError(item, fmt.Errorf("%w: "+format, append([]any{velograph.ErrConfigInvalid}, args...)...))
}
