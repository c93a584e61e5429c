package gin

import (
	"github.com/gin-gonic/gin"
	"github.com/leobar37/gymspace-sub006/internal/port/inbound"
	"github.com/leobar37/gymspace-sub006/internal/utils/middleware"
)

// Handlers groups the HTTP ports served under /api/v1.
type Handlers struct {
	Plans         inbound.PlanHttpPort
	Subscriptions inbound.SubscriptionHttpPort
	Requests      inbound.RequestHttpPort
	Analytics     inbound.AnalyticsHttpPort
	Payments      inbound.PaymentHttpPort
	Admin         inbound.AdminHttpPort
}

// RegisterRoutes registers the engine routes on r. Every route requires a bearer
// token; idempotency guards change-request submission when non-nil.
func RegisterRoutes(r gin.IRouter, h Handlers, validator middleware.ActorValidator, idempotency gin.HandlerFunc) {
	v1 := r.Group("/api/v1")
	v1.Use(middleware.Auth(validator))

	can := middleware.RequireCapability

	plans := v1.Group("/plans")
	{
		plans.GET("", can(middleware.CapabilityPlansRead, middleware.CapabilityPlansManage), h.Plans.ListPlans)
		plans.GET("/:id", can(middleware.CapabilityPlansRead, middleware.CapabilityPlansManage), h.Plans.GetPlan)
		plans.POST("", can(middleware.CapabilityPlansManage), h.Plans.CreatePlan)
		plans.PATCH("/:id", can(middleware.CapabilityPlansManage), h.Plans.UpdatePlan)
		plans.DELETE("/:id", can(middleware.CapabilityPlansManage), h.Plans.RetirePlan)
	}

	orgs := v1.Group("/organizations/:orgId")
	{
		orgs.GET("/subscription", can(middleware.CapabilitySubscriptionsRead, middleware.CapabilitySubscriptionsManage), h.Subscriptions.GetStatus)
		orgs.POST("/subscription/activate", can(middleware.CapabilitySubscriptionsManage), h.Subscriptions.Activate)
		orgs.GET("/entitlements/:resource", can(middleware.CapabilitySubscriptionsRead, middleware.CapabilitySubscriptionsManage), h.Subscriptions.CheckEntitlement)
		orgs.GET("/operations", can(middleware.CapabilitySubscriptionsRead, middleware.CapabilitySubscriptionsManage), h.Subscriptions.ListOperations)
		orgs.GET("/requests", can(middleware.CapabilitySubscriptionsRead, middleware.CapabilityRequestsCreate), h.Requests.ListRequests)

		submit := []gin.HandlerFunc{can(middleware.CapabilityRequestsCreate)}
		if idempotency != nil {
			submit = append(submit, idempotency)
		}
		submit = append(submit, h.Requests.SubmitRequest)
		orgs.POST("/requests", submit...)
	}

	requests := v1.Group("/requests")
	{
		requests.POST("/:id/process", can(middleware.CapabilityRequestsApprove), h.Requests.ProcessRequest)
		requests.POST("/:id/cancel", can(middleware.CapabilityRequestsCreate), h.Requests.CancelRequest)
	}

	v1.GET("/analytics", can(middleware.CapabilityAnalyticsRead), h.Analytics.GetAnalytics)
	v1.POST("/payments/outcomes", can(middleware.CapabilityPaymentsNotify), h.Payments.ReceiveOutcome)
	v1.POST("/admin/sweep", can(middleware.CapabilitySubscriptionsManage), h.Admin.RunSweep)
}
