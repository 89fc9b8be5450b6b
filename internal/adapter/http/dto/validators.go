package dto

import (
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strings"

	"metacoin-ledger/internal/core/domain"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
)

// MaxIdempotencyKeyLen bounds the Idempotency-Key header.
const MaxIdempotencyKeyLen = 128

var safeStringRe = regexp.MustCompile(`^[a-zA-Z0-9_\-\.]+$`)

func init() {
	if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
		registerValidations(v)
	}
}

func registerValidations(v *validator.Validate) {
	v.RegisterTagNameFunc(fieldName)
	_ = v.RegisterValidation("account", validateAccount)
	_ = v.RegisterValidation("safe_id", validateSafeID)
}

// fieldName reports fields by their json or form name.
func fieldName(fld reflect.StructField) string {
	for _, tag := range []string{"json", "form"} {
		name := strings.SplitN(fld.Tag.Get(tag), ",", 2)[0]
		if name == "-" {
			return ""
		}
		if name != "" {
			return name
		}
	}
	return fld.Name
}

// validateAccount accepts a base58 address or a 0x script hash.
func validateAccount(fl validator.FieldLevel) bool {
	_, err := domain.ParseAccountID(fl.Field().String())
	return err == nil
}

// validateSafeID allows alphanumeric, underscore, dash, and dot.
func validateSafeID(fl validator.FieldLevel) bool {
	return safeStringRe.MatchString(fl.Field().String())
}

// ValidateIdempotencyKey checks an optional Idempotency-Key header value.
func ValidateIdempotencyKey(key string) error {
	if key == "" {
		return nil
	}
	v, ok := binding.Validator.Engine().(*validator.Validate)
	if !ok {
		return fmt.Errorf("validator engine unavailable")
	}
	if err := v.Var(key, fmt.Sprintf("max=%d,safe_id", MaxIdempotencyKeyLen)); err != nil {
		return fmt.Errorf("invalid Idempotency-Key: must be at most %d characters of [A-Za-z0-9_.-]", MaxIdempotencyKeyLen)
	}
	return nil
}

// ValidationMessage flattens binding errors into one client-facing message.
func ValidationMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return err.Error()
	}
	fe := verrs[0]
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", fe.Field())
	case "account":
		return fmt.Sprintf("%s is not a valid account", fe.Field())
	default:
		return fmt.Sprintf("%s failed %s validation", fe.Field(), fe.Tag())
	}
}
