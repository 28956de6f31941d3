package api

import (
	"regexp"
	"strings"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"

	"trackflow-backend/configs"
	"trackflow-backend/internal/core"
)

var couponCodePattern = regexp.MustCompile(`^[A-Za-z0-9_-]{3,32}$`)

// RegisterValidators adds the tracker_key and coupon_code tags to gin's validator.
func RegisterValidators(catalog *configs.Catalog) error {
	v, ok := binding.Validator.Engine().(*validator.Validate)
	if !ok {
		return nil
	}
	if err := v.RegisterValidation("tracker_key", trackerKeyValidator(catalog)); err != nil {
		return err
	}
	return v.RegisterValidation("coupon_code", validateCouponCode)
}

// trackerKeyValidator accepts catalog keys and custom tracker IDs.
func trackerKeyValidator(catalog *configs.Catalog) validator.Func {
	return func(fl validator.FieldLevel) bool {
		key := fl.Field().String()
		if strings.HasPrefix(key, core.CustomTrackerPrefix) {
			return len(key) > len(core.CustomTrackerPrefix)
		}
		_, ok := catalog.Tracker(key)
		return ok
	}
}

func validateCouponCode(fl validator.FieldLevel) bool {
	return couponCodePattern.MatchString(strings.TrimSpace(fl.Field().String()))
}
