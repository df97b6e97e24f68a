package handlers

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"

	"github.com/yungbote/sciencelab-batchserver/internal/platform/countries"
)

var registerOnce sync.Once

// registerValidators installs the iso3166 tag and reports fields by their
// query/json name on gin's shared validator.
func registerValidators() {
	registerOnce.Do(func() {
		v, ok := binding.Validator.Engine().(*validator.Validate)
		if !ok {
			return
		}
		v.RegisterTagNameFunc(func(f reflect.StructField) string {
			for _, tag := range []string{"form", "json"} {
				name, _, _ := strings.Cut(f.Tag.Get(tag), ",")
				if name != "" && name != "-" {
					return name
				}
			}
			return f.Name
		})
		_ = v.RegisterValidation("iso3166", func(fl validator.FieldLevel) bool {
			return countries.IsValid(fl.Field().String())
		})
	})
}

// bindingMessage turns a gin binding error into the caller-facing message.
func bindingMessage(err error) error {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		switch {
		case fe.Field() == "batchSize":
			return fmt.Errorf("Invalid batch size %v", fe.Value())
		case fe.Tag() == "required":
			return fmt.Errorf("Parameter %s is required", fe.Field())
		default:
			return fmt.Errorf("Parameter %s is invalid", fe.Field())
		}
	}
	return fmt.Errorf("invalid request: %v", err)
}
