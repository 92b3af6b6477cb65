package httpapi

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/petrijr/rewind/orderflow"
	"github.com/petrijr/rewind/pkg/api"
)

// Server is the HTTP front door for the order-fulfillment workflow: it
// accepts new orders, answers status queries, and terminates instances.
type Server struct {
	engine api.Engine
	log    zerolog.Logger
}

// New creates a Server around the given engine.
func New(engine api.Engine, log zerolog.Logger) *Server {
	return &Server{engine: engine, log: log}
}

// Router builds the gin handler.
func (s *Server) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), s.requestLogger())

	r.POST("/orders", s.createOrder)
	r.GET("/orders/:instanceId/status", s.getStatus)
	r.POST("/orders/:instanceId/terminate", s.terminate)

	return r
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.log.Info().
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", c.Writer.Status()).
			Dur("duration", time.Since(start)).
			Msg("http request")
	}
}

type orderRequest struct {
	ID           int     `json:"id" binding:"required"`
	CustomerName string  `json:"customerName" binding:"required"`
	Amount       float64 `json:"amount" binding:"required"`
	OrderDate    string  `json:"orderDate"`
	DeliveryDate string  `json:"deliveryDate"`
	Email        string  `json:"email" binding:"required,email"`
}

type createResponse struct {
	InstanceID     string `json:"instanceId"`
	StatusQueryURL string `json:"statusQueryUrl"`
}

func (s *Server) createOrder(c *gin.Context) {
	var req orderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	orderDate, err := parseDate(req.OrderDate)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("orderDate: %v", err)})
		return
	}
	deliveryDate, err := parseDate(req.DeliveryDate)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("deliveryDate: %v", err)})
		return
	}

	order := orderflow.Order{
		ID:           req.ID,
		CustomerName: req.CustomerName,
		Amount:       req.Amount,
		OrderDate:    orderDate,
		DeliveryDate: deliveryDate,
		Email:        req.Email,
	}

	// One instance per order id: submitting the same order twice is a
	// conflict, while distinct ids always get fully independent instances.
	instanceID := "order-" + strconv.Itoa(order.ID)
	inst, err := s.engine.CreateInstance(c.Request.Context(), instanceID, orderflow.WorkflowName, order)
	if err != nil {
		if errors.Is(err, api.ErrInstanceExists) {
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
			return
		}
		s.log.Error().Err(err).Int("order_id", order.ID).Msg("create instance")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not start orchestration"})
		return
	}

	c.JSON(http.StatusAccepted, createResponse{
		InstanceID:     inst.ID,
		StatusQueryURL: "/orders/" + inst.ID + "/status",
	})
}

func (s *Server) getStatus(c *gin.Context) {
	id := c.Param("instanceId")

	report, err := s.engine.GetStatus(c.Request.Context(), id)
	if err != nil {
		if isNotFound(err) {
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
			return
		}
		s.log.Error().Err(err).Str("instance_id", id).Msg("status query")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "status query failed"})
		return
	}

	c.JSON(http.StatusOK, report)
}

func (s *Server) terminate(c *gin.Context) {
	id := c.Param("instanceId")
	reason := c.Query("reason")
	if reason == "" {
		reason = "terminated via API"
	}

	inst, err := s.engine.Terminate(c.Request.Context(), id, reason)
	if err != nil {
		if isNotFound(err) {
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
			return
		}
		s.log.Error().Err(err).Str("instance_id", id).Msg("terminate")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "terminate failed"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"instanceId": inst.ID, "status": inst.Status})
}

func isNotFound(err error) bool {
	return errors.Is(err, api.ErrInstanceNotFound)
}

// parseDate accepts RFC 3339 timestamps and plain dates; empty input is the
// zero time.
func parseDate(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	if t, err := time.Parse("2006-01-02", s); err == nil {
		return t, nil
	}
	return time.Time{}, errors.New("expected RFC 3339 timestamp or YYYY-MM-DD")
}
