package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"

	v1 "github.com/kynsofficial/siberiancms-integration-sub001/api/v1"
	"github.com/kynsofficial/siberiancms-integration-sub001/pkg/jwt"
	"github.com/kynsofficial/siberiancms-integration-sub001/pkg/log"

	"github.com/gin-gonic/gin"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// StrictAuth rejects requests without a valid bearer token.
func StrictAuth(j *jwt.JWT, logger *log.Logger) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		tokenString := ctx.Request.Header.Get("Authorization")
		if tokenString == "" {
			logger.WithContext(ctx).Warn("No token", zap.Any("data", map[string]interface{}{
				"url":    ctx.Request.URL,
				"params": ctx.Params,
			}))
			v1.HandleError(ctx, http.StatusUnauthorized, v1.ErrUnauthorized, nil)
			ctx.Abort()
			return
		}

		claims, err := j.ParseToken(strings.TrimPrefix(tokenString, "Bearer "))
		if err != nil {
			logger.WithContext(ctx).Error("token error", zap.Any("data", map[string]interface{}{
				"url":    ctx.Request.URL,
				"params": ctx.Params,
			}), zap.Error(err))
			v1.HandleError(ctx, http.StatusUnauthorized, v1.ErrUnauthorized, nil)
			ctx.Abort()
			return
		}

		ctx.Set("claims", claims)
		recoveryLoggerFunc(ctx, logger)
		ctx.Next()
	}
}

// ApiKeyAuth guards the external cron trigger with the shared key from
// configuration. The key arrives as a query parameter so plain cron
// clients (curl, wget) can call the endpoint.
func ApiKeyAuth(conf *viper.Viper, logger *log.Logger) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		want := conf.GetString("security.api_key")
		got := ctx.Query("key")
		if want == "" || subtle.ConstantTimeCompare([]byte(want), []byte(got)) != 1 {
			logger.WithContext(ctx).Warn("bad api key", zap.String("url", ctx.Request.URL.Path))
			v1.HandleError(ctx, http.StatusUnauthorized, v1.ErrUnauthorized, nil)
			ctx.Abort()
			return
		}
		ctx.Next()
	}
}

func recoveryLoggerFunc(ctx *gin.Context, logger *log.Logger) {
	if claims, ok := ctx.MustGet("claims").(*jwt.MyCustomClaims); ok {
		logger.WithValue(ctx, zap.String("UserId", claims.UserId))
	}
}
