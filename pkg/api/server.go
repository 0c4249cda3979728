// Package api exposes the HTTP surface: login, the monitoring read model,
// the room-2 decision widget, user administration, and health. Every error
// is returned as {"detail": "<text>"}.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/carlosapgomes/triage-automation-sub001/pkg/auth"
	"github.com/carlosapgomes/triage-automation-sub001/pkg/lifecycle"
	"github.com/carlosapgomes/triage-automation-sub001/pkg/models"
	"github.com/carlosapgomes/triage-automation-sub001/pkg/monitoring"
	"github.com/carlosapgomes/triage-automation-sub001/pkg/pipeline"
	"github.com/carlosapgomes/triage-automation-sub001/pkg/queue"
	"github.com/carlosapgomes/triage-automation-sub001/pkg/summary"
	"github.com/carlosapgomes/triage-automation-sub001/pkg/template"
)

// Pinger checks database reachability for the health endpoint.
type Pinger interface {
	Ping(ctx context.Context) error
}

// PoolHealthSource reports worker pool health. Nil when this process runs
// without workers.
type PoolHealthSource interface {
	Health(ctx context.Context) *queue.PoolHealth
}

// DecisionCases is the case store subset the widget endpoints read.
type DecisionCases interface {
	Get(ctx context.Context, caseID string) (*models.Case, error)
}

// Server wires the services behind the HTTP surface.
type Server struct {
	auth       *auth.Service
	monitoring *monitoring.Service
	summary    *summary.Service
	decisions  *pipeline.DecisionService
	cases      DecisionCases
	db         Pinger
	pool       PoolHealthSource
}

// NewServer creates the API server. pool may be nil.
func NewServer(authSvc *auth.Service, monitoringSvc *monitoring.Service, summarySvc *summary.Service, decisions *pipeline.DecisionService, cases DecisionCases, db Pinger, pool PoolHealthSource) *Server {
	return &Server{
		auth:       authSvc,
		monitoring: monitoringSvc,
		summary:    summarySvc,
		decisions:  decisions,
		cases:      cases,
		db:         db,
		pool:       pool,
	}
}

// Routes builds the gin engine with all endpoints registered.
func (s *Server) Routes() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), securityHeaders())

	router.GET("/healthz", s.handleHealth)
	router.POST("/auth/login", s.handleLogin)

	audit := router.Group("/", s.requireAuth(auth.RequireAuditRead))
	{
		audit.GET("/monitoring/cases", s.handleListCases)
		audit.GET("/monitoring/cases/:case_id", s.handleCaseDetail)
		audit.GET("/monitoring/summary", s.handleSummary)
	}

	admin := router.Group("/", s.requireAuth(auth.RequireAdmin))
	{
		admin.POST("/widget/room2/bootstrap", s.handleWidgetBootstrap)
		admin.POST("/widget/room2/submit", s.handleWidgetSubmit)
		admin.POST("/users/:user_id/block", s.handleBlockUser)
		admin.POST("/users/:user_id/remove", s.handleRemoveUser)
	}

	return router
}

func (s *Server) handleHealth(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	body := gin.H{"status": "healthy"}
	status := http.StatusOK

	if err := s.db.Ping(ctx); err != nil {
		body["status"] = "unhealthy"
		body["database"] = err.Error()
		status = http.StatusServiceUnavailable
	}
	if s.pool != nil {
		body["workers"] = s.pool.Health(ctx)
	}

	c.JSON(status, body)
}

type loginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

func (s *Server) handleLogin(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		detail(c, http.StatusUnprocessableEntity, err.Error())
		return
	}

	token, user, err := s.auth.Login(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		mapServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"token":   token,
		"user_id": user.ID,
		"role":    user.Role,
	})
}

func (s *Server) handleListCases(c *gin.Context) {
	q := monitoring.ListQuery{
		Page:     intQuery(c, "page"),
		PageSize: intQuery(c, "page_size"),
		Status:   c.Query("status"),
		FromDate: c.Query("from_date"),
		ToDate:   c.Query("to_date"),
	}

	list, err := s.monitoring.ListCases(c.Request.Context(), q)
	if err != nil {
		mapServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, renderCaseList(list))
}

func (s *Server) handleCaseDetail(c *gin.Context) {
	det, err := s.monitoring.CaseDetail(c.Request.Context(), c.Param("case_id"))
	if err != nil {
		mapServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, renderCaseDetail(det))
}

func (s *Server) handleSummary(c *gin.Context) {
	fromDate := c.Query("from_date")
	toDate := c.Query("to_date")

	var sum *models.DailySummary
	var err error
	if fromDate != "" && toDate != "" {
		sum, err = s.summary.Range(c.Request.Context(), fromDate, toDate)
	} else {
		sum, err = s.summary.Daily(c.Request.Context(), c.Query("date"))
	}
	if err != nil {
		mapServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, renderSummary(sum))
}

type widgetCaseRequest struct {
	CaseID string `json:"case_id" binding:"required,uuid"`
}

func (s *Server) handleWidgetBootstrap(c *gin.Context) {
	var req widgetCaseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		detail(c, http.StatusUnprocessableEntity, err.Error())
		return
	}

	kase, err := s.cases.Get(c.Request.Context(), req.CaseID)
	if err != nil {
		mapServiceError(c, err)
		return
	}
	if kase.Status != lifecycle.StatusWaitDoctor {
		detail(c, http.StatusConflict, "case is not awaiting a doctor decision")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"case_id":         kase.ID,
		"status":          kase.Status,
		"doctor_decision": kase.DoctorDecision,
		"doctor_reason":   kase.DoctorReason,
	})
}

type widgetSubmitRequest struct {
	CaseID      string `json:"case_id" binding:"required,uuid"`
	Decision    string `json:"decision" binding:"required"`
	SupportFlag string `json:"support_flag" binding:"required"`
	Reason      string `json:"reason"`
}

// handleWidgetSubmit records a doctor decision submitted through the
// dashboard widget. The body is rendered into the chat template grammar and
// re-parsed, so both entry paths obey the exact same contract.
func (s *Server) handleWidgetSubmit(c *gin.Context) {
	var req widgetSubmitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		detail(c, http.StatusUnprocessableEntity, err.Error())
		return
	}

	if _, err := s.cases.Get(c.Request.Context(), req.CaseID); err != nil {
		mapServiceError(c, err)
		return
	}

	body := "decision: " + req.Decision + "\n" +
		"support_flag: " + req.SupportFlag + "\n" +
		"reason: " + req.Reason + "\n" +
		"case_id: " + req.CaseID
	reply, perr := template.ParseDoctorReply(body, req.CaseID)
	if perr != nil {
		detail(c, http.StatusUnprocessableEntity, perr.Error())
		return
	}

	actor := currentUser(c).ID
	if err := s.decisions.Apply(c.Request.Context(), req.CaseID, reply, &actor, nil, nil); err != nil {
		mapServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"case_id":  req.CaseID,
		"decision": reply.Decision,
	})
}

func (s *Server) handleBlockUser(c *gin.Context) {
	err := s.auth.BlockUser(c.Request.Context(), currentUser(c).ID, c.Param("user_id"))
	if err != nil {
		mapServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"user_id": c.Param("user_id"), "account_status": models.AccountBlocked})
}

func (s *Server) handleRemoveUser(c *gin.Context) {
	err := s.auth.RemoveUser(c.Request.Context(), currentUser(c).ID, c.Param("user_id"))
	if err != nil {
		mapServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"user_id": c.Param("user_id"), "account_status": models.AccountRemoved})
}
