package validation

import (
	"fmt"
	"net"
	"reflect"
	"regexp"
	"strconv"
	"strings"
)

// Validator validates structs using validate tags
type Validator struct{}

// NewValidator creates a new validator
func NewValidator() *Validator {
	return &Validator{}
}

var (
	emailRegex = regexp.MustCompile(`^[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}$`)
	macRegex   = regexp.MustCompile(`^([0-9a-fA-F]{2}[:\-]){5}[0-9a-fA-F]{2}$`)
)

// ValidationError represents a validation error
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationErrors is a collection of validation errors
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	msgs := make([]string, len(e))
	for i, err := range e {
		msgs[i] = err.Error()
	}
	return strings.Join(msgs, "; ")
}

// Validate validates a struct based on validate tags
func (v *Validator) Validate(s interface{}) error {
	val := reflect.ValueOf(s)
	if val.Kind() == reflect.Ptr {
		val = val.Elem()
	}
	if val.Kind() != reflect.Struct {
		return fmt.Errorf("expected struct, got %s", val.Kind())
	}

	var errs ValidationErrors

	typ := val.Type()
	for i := 0; i < val.NumField(); i++ {
		field := typ.Field(i)
		tag := field.Tag.Get("validate")
		if tag == "" || tag == "-" {
			continue
		}

		name := field.Name
		if jsonTag := field.Tag.Get("json"); jsonTag != "" {
			name = strings.Split(jsonTag, ",")[0]
		}

		for _, rule := range strings.Split(tag, ",") {
			if err := v.applyRule(val.Field(i), name, rule); err != nil {
				errs = append(errs, *err)
			}
		}
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}

func (v *Validator) applyRule(field reflect.Value, name, rule string) *ValidationError {
	parts := strings.SplitN(rule, "=", 2)
	ruleName := parts[0]
	var ruleValue string
	if len(parts) == 2 {
		ruleValue = parts[1]
	}

	switch ruleName {
	case "required":
		if isZero(field) {
			return &ValidationError{Field: name, Message: "is required"}
		}
	case "email":
		s := field.String()
		if s != "" && !emailRegex.MatchString(s) {
			return &ValidationError{Field: name, Message: "must be a valid email address"}
		}
	case "mac":
		s := field.String()
		if s != "" && !macRegex.MatchString(s) {
			return &ValidationError{Field: name, Message: "must be a valid MAC address"}
		}
	case "ip":
		s := field.String()
		if s != "" && net.ParseIP(s) == nil {
			return &ValidationError{Field: name, Message: "must be a valid IP address"}
		}
	case "min":
		n, _ := strconv.Atoi(ruleValue)
		switch field.Kind() {
		case reflect.String:
			if field.String() != "" && len(field.String()) < n {
				return &ValidationError{Field: name, Message: fmt.Sprintf("must be at least %d characters", n)}
			}
		case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
			if field.Int() < int64(n) {
				return &ValidationError{Field: name, Message: fmt.Sprintf("must be at least %d", n)}
			}
		}
	case "max":
		n, _ := strconv.Atoi(ruleValue)
		switch field.Kind() {
		case reflect.String:
			if len(field.String()) > n {
				return &ValidationError{Field: name, Message: fmt.Sprintf("must be at most %d characters", n)}
			}
		case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
			if field.Int() > int64(n) {
				return &ValidationError{Field: name, Message: fmt.Sprintf("must be at most %d", n)}
			}
		}
	}

	return nil
}

func isZero(field reflect.Value) bool {
	switch field.Kind() {
	case reflect.String:
		return strings.TrimSpace(field.String()) == ""
	case reflect.Slice, reflect.Map:
		return field.Len() == 0
	case reflect.Ptr, reflect.Interface:
		return field.IsNil()
	default:
		return field.IsZero()
	}
}
