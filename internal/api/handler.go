package api

import (
	"context"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	validatorv10 "github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"meetsync/internal/availability"
	"meetsync/internal/logging"
	"meetsync/internal/queue"
	"meetsync/internal/validation"
)

const healthCheckTimeout = 2 * time.Second

type Handler struct {
	users      Users
	aggregator Aggregator
	enqueuer   Enqueuer
	health     map[string]Pinger
	validate   *validatorv10.Validate
	logger     *zap.Logger
	service    string
}

type Options struct {
	// Health names the dependencies pinged by /healthz.
	Health  map[string]Pinger
	Logger  *zap.Logger
	Service string
}

func NewHandler(users Users, aggregator Aggregator, enqueuer Enqueuer, opts Options) *Handler {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	service := opts.Service
	if service == "" {
		service = DefaultServiceName
	}
	return &Handler{
		users:      users,
		aggregator: aggregator,
		enqueuer:   enqueuer,
		health:     opts.Health,
		validate:   validation.New(),
		logger:     logger,
		service:    service,
	}
}

func NewRouter(users Users, aggregator Aggregator, enqueuer Enqueuer, opts Options) *gin.Engine {
	h := NewHandler(users, aggregator, enqueuer, opts)
	r := gin.New()
	r.Use(gin.Recovery(), CaseID(h.logger))

	r.POST("/users", h.PostUser)
	r.GET("/users/:email", h.GetUser)
	r.PUT("/users/:email", h.PutUser)
	r.DELETE("/users/:email", h.DeleteUser)
	r.GET("/user-avail/cache-aside", h.GetCacheAside)
	r.GET("/availabilities/common", h.GetCommon)
	r.GET("/suggestions", h.GetSuggestion)
	r.POST("/tasks", h.PostTask)
	r.GET("/healthz", h.Healthz)
	return r
}

func (h *Handler) PostUser(c *gin.Context) {
	var req validation.UserRequest
	if err := validation.BindAndValidate(c, &req, h.validate); err != nil {
		return
	}
	rec, err := availability.NewRecord(req.Email, req.Availabilities, req.Preferences)
	if err != nil {
		h.fail(c, "USER_CREATE", err)
		return
	}
	created, err := h.users.Create(c.Request.Context(), rec)
	if err != nil {
		h.fail(c, "USER_CREATE", err)
		return
	}
	h.log(c).Info("USER_CREATE", zap.String("email", created.Email))
	c.JSON(http.StatusCreated, created)
}

func (h *Handler) GetUser(c *gin.Context) {
	rec, err := h.users.Get(c.Request.Context(), c.Param("email"))
	if err != nil {
		h.fail(c, "USER_GET", err)
		return
	}
	c.JSON(http.StatusOK, rec)
}

func (h *Handler) PutUser(c *gin.Context) {
	var req validation.UpdateUserRequest
	if err := validation.BindAndValidate(c, &req, h.validate); err != nil {
		return
	}
	email := c.Param("email")
	rec, err := availability.NewRecord(email, req.Availabilities, req.Preferences)
	if err != nil {
		h.fail(c, "USER_UPDATE", err)
		return
	}
	updated, err := h.users.Update(c.Request.Context(), email, rec)
	if err != nil {
		h.fail(c, "USER_UPDATE", err)
		return
	}
	h.log(c).Info("USER_UPDATE", zap.String("email", updated.Email))
	c.JSON(http.StatusOK, updated)
}

func (h *Handler) DeleteUser(c *gin.Context) {
	if err := h.users.Delete(c.Request.Context(), c.Param("email")); err != nil {
		h.fail(c, "USER_DELETE", err)
		return
	}
	h.log(c).Info("USER_DELETE", zap.String("email", availability.NormalizeID(c.Param("email"))))
	c.Status(http.StatusNoContent)
}

func (h *Handler) GetCacheAside(c *gin.Context) {
	user := strings.TrimSpace(c.Query("user1"))
	if user == "" {
		h.badQuery(c, "user1")
		return
	}
	rec, err := h.users.Get(c.Request.Context(), user)
	if err != nil {
		h.fail(c, "CACHE_ASIDE", err)
		return
	}
	c.JSON(http.StatusOK, rec)
}

func (h *Handler) GetCommon(c *gin.Context) {
	id1, id2, ok := h.pair(c)
	if !ok {
		return
	}
	common, err := h.aggregator.Common(c.Request.Context(), id1, id2)
	if err != nil {
		h.fail(c, "COMMON", err)
		return
	}
	c.JSON(http.StatusOK, CommonResponse{
		UserID1: availability.NormalizeID(id1),
		UserID2: availability.NormalizeID(id2),
		Common:  common,
	})
}

func (h *Handler) GetSuggestion(c *gin.Context) {
	id1, id2, ok := h.pair(c)
	if !ok {
		return
	}
	s, err := h.aggregator.Suggest(c.Request.Context(), id1, id2, c.Query("preference"))
	if err != nil {
		h.fail(c, "SUGGEST", err)
		return
	}
	h.log(c).Info("SUGGEST", zap.Bool("found", s.Found), zap.String("preference", string(s.Preference)))
	c.JSON(http.StatusOK, s)
}

func (h *Handler) PostTask(c *gin.Context) {
	var req validation.TaskRequest
	if err := validation.BindAndValidate(c, &req, h.validate); err != nil {
		return
	}
	caseID := logging.CaseIDFromContext(c.Request.Context())
	job, err := h.enqueuer.Enqueue(c.Request.Context(), queue.Request{
		CaseID:     caseID,
		UserID1:    availability.NormalizeID(req.UserID1),
		UserID2:    availability.NormalizeID(req.UserID2),
		Preference: req.Preference,
	})
	if err != nil {
		h.fail(c, "ENQUEUE", err)
		return
	}
	c.JSON(http.StatusAccepted, TaskResponse{
		CaseID: job.CaseID,
		Status: StatusEnqueued,
		JobID:  job.JobID,
		Queue:  h.enqueuer.Queue(),
	})
}

// Healthz pings every configured dependency; any failure turns the whole
// service unhealthy with a 503.
func (h *Handler) Healthz(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), healthCheckTimeout)
	defer cancel()

	names := make([]string, 0, len(h.health))
	for name := range h.health {
		names = append(names, name)
	}
	sort.Strings(names)

	resp := HealthResponse{Service: h.service, Status: StatusHealthy, Dependencies: map[string]DependencyHealth{}}
	log := h.log(c)
	for _, name := range names {
		start := time.Now()
		err := h.health[name].Ping(ctx)
		dep := DependencyHealth{Status: StatusHealthy, ResponseTimeMS: float64(time.Since(start).Microseconds()) / 1000}
		if err != nil {
			dep.Status = StatusUnhealthy
			resp.Status = StatusUnhealthy
			log.Error("health check failed", zap.String("dependency", name), zap.Error(err))
		}
		resp.Dependencies[name] = dep
	}

	if resp.Status != StatusHealthy {
		c.JSON(http.StatusServiceUnavailable, resp)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (h *Handler) pair(c *gin.Context) (string, string, bool) {
	id1 := strings.TrimSpace(c.Query("userId1"))
	if id1 == "" {
		h.badQuery(c, "userId1")
		return "", "", false
	}
	id2 := strings.TrimSpace(c.Query("userId2"))
	if id2 == "" {
		h.badQuery(c, "userId2")
		return "", "", false
	}
	return id1, id2, true
}

func (h *Handler) badQuery(c *gin.Context, param string) {
	c.JSON(http.StatusBadRequest, ErrorResponse{
		Error:  ErrInvalidQuery,
		CaseID: logging.CaseIDFromContext(c.Request.Context()),
		Fields: map[string]string{param: param + " is required"},
	})
}

func (h *Handler) log(c *gin.Context) *zap.Logger {
	return logging.FromContext(c.Request.Context(), h.logger)
}
