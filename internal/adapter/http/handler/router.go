package handler

import (
	"metacoin-ledger/internal/adapter/http/middleware"
	redisStore "metacoin-ledger/internal/adapter/storage/redis"
	"metacoin-ledger/internal/core/ports"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

const defaultMaxBodyBytes = 1 << 20

// RouterDeps holds all dependencies needed to set up routes.
type RouterDeps struct {
	ContractSvc    ports.ContractService
	HistorySvc     ports.HistoryService
	TokenSvc       ports.TokenService
	RateLimitStore *redisStore.RateLimitStore // nil = rate limiting disabled
	RateLimitRules map[string]middleware.RateLimitRule
	HealthCheckers []ports.HealthChecker
	MaxBodyBytes   int64 // 0 = 1 MB
	Mode           string
	Logger         zerolog.Logger
}

// SetupRouter initialises the Gin engine with all routes and middleware.
func SetupRouter(deps RouterDeps) *gin.Engine {
	if deps.Mode != "" {
		gin.SetMode(deps.Mode)
	}
	r := gin.New()

	maxBody := deps.MaxBodyBytes
	if maxBody <= 0 {
		maxBody = defaultMaxBodyBytes
	}

	// Global middleware
	r.Use(middleware.RequestID())
	r.Use(middleware.Recovery(deps.Logger))
	r.Use(middleware.RequestLogger(deps.Logger))
	r.Use(middleware.MaxBodySize(maxBody))

	// Health check (deep, pings every configured dependency)
	r.GET("/health", HealthCheck(deps.HealthCheckers...))

	swagger := r.Group("/swagger")
	{
		swagger.GET("", SwaggerUI)
		swagger.GET("/spec", SwaggerSpec)
	}

	// Return rate limiter middleware if the store is available, else noop.
	rl := func(group string) gin.HandlerFunc {
		if deps.RateLimitStore == nil {
			return func(c *gin.Context) { c.Next() }
		}
		rule, ok := deps.RateLimitRules[group]
		if !ok || rule.Limit <= 0 {
			return func(c *gin.Context) { c.Next() }
		}
		return middleware.RateLimiter(deps.RateLimitStore, group, rule, deps.Logger)
	}

	v1 := r.Group("/api/v1")

	// --- Public reads ---
	contractHandler := NewContractHandler(deps.ContractSvc)
	v1.GET("/contract", rl(middleware.GroupRead), contractHandler.Info)
	v1.GET("/total-supply", rl(middleware.GroupRead), contractHandler.TotalSupply)

	accounts := v1.Group("/accounts/:account", rl(middleware.GroupRead))
	{
		accounts.GET("/balance", contractHandler.GetBalance)
		accounts.GET("/balance/eth", contractHandler.GetBalanceInEth)
		if deps.HistorySvc != nil {
			historyHandler := NewHistoryHandler(deps.HistorySvc)
			accounts.GET("/transfers", historyHandler.ListTransfers)
		}
	}

	// --- Caller-authenticated calls ---
	callerAuth := middleware.CallerAuth(deps.TokenSvc, deps.Logger)
	v1.POST("/send-coin", callerAuth, rl(middleware.GroupSendCoin), contractHandler.SendCoin)

	return r
}
