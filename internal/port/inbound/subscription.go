package inbound

import "github.com/gin-gonic/gin"

// PlanHttpPort defines HTTP handlers for the plan catalog.
type PlanHttpPort interface {
	ListPlans(c *gin.Context)
	GetPlan(c *gin.Context)
	CreatePlan(c *gin.Context)
	UpdatePlan(c *gin.Context)
	RetirePlan(c *gin.Context)
}

// SubscriptionHttpPort defines HTTP handlers for an organization's subscription.
type SubscriptionHttpPort interface {
	GetStatus(c *gin.Context)
	Activate(c *gin.Context)
	CheckEntitlement(c *gin.Context)
	ListOperations(c *gin.Context)
}

// RequestHttpPort defines HTTP handlers for change requests.
type RequestHttpPort interface {
	SubmitRequest(c *gin.Context)
	ListRequests(c *gin.Context)
	ProcessRequest(c *gin.Context)
	CancelRequest(c *gin.Context)
}

// AnalyticsHttpPort defines HTTP handlers for billing analytics.
type AnalyticsHttpPort interface {
	GetAnalytics(c *gin.Context)
}

// PaymentHttpPort defines HTTP handlers for payment gateway notifications.
type PaymentHttpPort interface {
	ReceiveOutcome(c *gin.Context)
}

// AdminHttpPort defines HTTP handlers for operational tasks.
type AdminHttpPort interface {
	RunSweep(c *gin.Context)
}
