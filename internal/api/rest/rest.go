package rest

import (
	"github.com/gin-gonic/gin"

	"github.com/chainsave/circle-engine/internal/api/middleware"
)

// SetupRoutes configures all REST API routes
func SetupRoutes(router *gin.Engine, handler Handler, authCfg middleware.AuthConfig) {
	// Health check endpoint (no auth, no version prefix)
	router.GET("/health", handler.HealthCheck)

	router.NoRoute(func(c *gin.Context) {
		respondNotFound(c, "Route not found")
	})

	// API v1 routes
	v1 := router.Group("/api/v1")
	{
		// Read endpoints (public access)
		v1.GET("/circles", handler.ListCircles)
		v1.GET("/circles/:id", handler.GetCircle)
		v1.GET("/circles/:id/members", handler.GetMembers)
		v1.GET("/circles/:id/cycle", handler.GetCurrentCycle)
		v1.GET("/circles/:id/deposits", handler.ListDeposits)
		v1.GET("/circles/:id/members/:address/deposits", handler.ListMemberDeposits)
		v1.GET("/circles/:id/members/:address/balance", handler.GetMemberBalance)
		v1.GET("/circles/:id/members/:address/stats", handler.GetMemberStats)
		v1.GET("/circles/:id/payouts", handler.ListPayouts)
		v1.GET("/circles/:id/penalties", handler.ListPenalties)
		v1.GET("/circles/:id/refunds", handler.ListRefunds)
		v1.GET("/circles/:id/events", handler.ListEvents)
		v1.GET("/circles/:id/stats", handler.GetCircleStats)

		// Mutating endpoints (gateway authentication required)
		auth := v1.Group("", middleware.Auth(authCfg))
		{
			auth.POST("/circles", handler.CreateCircle)
			auth.PATCH("/circles/:id", handler.UpdateCircle)
			auth.POST("/circles/:id/join", handler.JoinCircle)
			auth.POST("/circles/:id/invite", handler.InviteMember)
			// Accepting an invitation is a join; the pending entry is
			// consumed by the join itself
			auth.POST("/circles/:id/invite/accept", handler.JoinCircle)
			auth.POST("/circles/:id/exit", handler.ExitCircle)
			auth.POST("/circles/:id/start", handler.StartCircle)
			auth.POST("/circles/:id/pause", handler.PauseCircle)
			auth.POST("/circles/:id/unpause", handler.UnpauseCircle)
			auth.POST("/circles/:id/emergency-stop", handler.EmergencyStop)
			auth.POST("/circles/:id/cancel", handler.CancelCircle)
			auth.POST("/circles/:id/lock", handler.LockJoinDeposit)
			auth.POST("/circles/:id/deposits", handler.DepositContribution)
			auth.POST("/circles/:id/payout", handler.ProcessPayout)
			auth.POST("/circles/:id/block", handler.BlockMember)
			auth.POST("/circles/:id/distribute-blocked", handler.DistributeBlockedFunds)
			auth.POST("/circles/:id/private-members", handler.AddPrivateMember)
			auth.PUT("/circles/:id/pseudonym", handler.UpdatePseudonym)
		}
	}
}
