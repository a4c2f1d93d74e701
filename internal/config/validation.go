package config

import (
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
)

var routerNamePattern = regexp.MustCompile(`^[a-z0-9][a-z0-9_-]*$`)

// ValidationError is one invalid field
type ValidationError struct {
	ItemName  string // router name, when the field belongs to a router
	FieldPath string
	Message   string
}

// ValidationErrors is a collection of validation errors
type ValidationErrors []ValidationError

func (ve ValidationErrors) Error() string {
	if len(ve) == 0 {
		return "no validation errors"
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("validation failed with %d error(s):\n", len(ve)))
	for i, err := range ve {
		if err.ItemName != "" {
			sb.WriteString(fmt.Sprintf("  %d. [%s] %s: %s\n", i+1, err.ItemName, err.FieldPath, err.Message))
		} else {
			sb.WriteString(fmt.Sprintf("  %d. %s: %s\n", i+1, err.FieldPath, err.Message))
		}
	}
	return sb.String()
}

var validate *validator.Validate

func init() {
	validate = validator.New()

	if err := validate.RegisterValidation("router_name", validateRouterName); err != nil {
		panic(err)
	}

	// Report fields by their YAML key
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("mapstructure"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
}

// router names end up in MQTT topics and URLs
func validateRouterName(fl validator.FieldLevel) bool {
	return routerNamePattern.MatchString(fl.Field().String())
}

func getValidationMessage(e validator.FieldError) string {
	switch e.Tag() {
	case "required":
		return "field is required"
	case "min":
		return fmt.Sprintf("must be >= %s", e.Param())
	case "max":
		return fmt.Sprintf("must be <= %s", e.Param())
	case "oneof":
		return fmt.Sprintf("must be one of: %s", e.Param())
	case "url":
		return "must be a valid URL"
	case "hostname_rfc1123|ip":
		return "must be a hostname or an IP address"
	case "router_name":
		return "must consist only of lowercase letters, numbers, dashes and underscores"
	default:
		return fmt.Sprintf("validation failed: %s", e.Tag())
	}
}

// Validate checks the whole configuration, including duplicate router names.
func (c *Config) Validate() error {
	var validationErrors ValidationErrors

	if err := validate.Struct(c); err != nil {
		validationErrors = append(validationErrors, convertValidatorErrors(err, "")...)
	}

	if c.MQTT.Enabled && c.MQTT.Broker == "" {
		validationErrors = append(validationErrors, ValidationError{
			FieldPath: "mqtt.broker",
			Message:   "field is required when mqtt is enabled",
		})
	}

	seen := map[string]bool{}
	for _, r := range c.Routers {
		if r.Name != "" && seen[r.Name] {
			validationErrors = append(validationErrors, ValidationError{
				ItemName:  r.Name,
				FieldPath: "name",
				Message:   "duplicate router name",
			})
		}
		seen[r.Name] = true
	}

	if len(validationErrors) > 0 {
		return validationErrors
	}
	return nil
}

// ValidateRouter checks a single router entry.
func ValidateRouter(r RouterConfig) error {
	if err := validate.Struct(r); err != nil {
		return convertValidatorErrors(err, r.Name)
	}
	return nil
}

func convertValidatorErrors(err error, itemName string) ValidationErrors {
	var validationErrors ValidationErrors

	var validatorErrs validator.ValidationErrors
	if errors.As(err, &validatorErrs) {
		for _, e := range validatorErrs {
			// drop the root struct name from the namespace
			fieldPath := e.Namespace()
			if idx := strings.Index(fieldPath, "."); idx >= 0 {
				fieldPath = fieldPath[idx+1:]
			}

			validationErrors = append(validationErrors, ValidationError{
				ItemName:  itemName,
				FieldPath: fieldPath,
				Message:   getValidationMessage(e),
			})
		}
	}

	return validationErrors
}
