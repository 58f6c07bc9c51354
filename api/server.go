package api

import (
	"context"
	"net/http"
	"time"

	"agmarknet-api/internal/types"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// exampleRequest is returned to callers that omit a query parameter
const exampleRequest = "/request?commodity=Tomato&state=Maharashtra&market=Mumbai"

var requiredParams = []string{"commodity", "state", "market"}

// PriceService is the scraping backend behind the API
type PriceService interface {
	FetchPrices(ctx context.Context, query types.PriceQuery) ([]types.PriceRecord, error)
	ListOptions(ctx context.Context) (*types.SearchOptions, error)
}

// PricesResponse is the success body of GET /request
type PricesResponse struct {
	Success bool                `json:"success"`
	Data    []types.PriceRecord `json:"data"`
	Count   int                 `json:"count"`
}

// ErrorResponse is the body of a failed request
type ErrorResponse struct {
	Error   string `json:"error"`
	Success bool   `json:"success"`
	Code    string `json:"code,omitempty"`
}

// MissingParamsResponse is the 400 body of GET /request
type MissingParamsResponse struct {
	Error    string   `json:"error"`
	Required []string `json:"required"`
	Example  string   `json:"example"`
}

// OptionsResponse is the success body of GET /options
type OptionsResponse struct {
	Success bool `json:"success"`
	*types.SearchOptions
}

// HealthResponse is the body of GET /health
type HealthResponse struct {
	Status    string  `json:"status"`
	Timestamp float64 `json:"timestamp"`
}

// Server holds the API server configuration
type Server struct {
	logger  *logrus.Logger
	config  *types.Config
	service PriceService
}

// NewServer creates a new API server
func NewServer(config *types.Config, logger *logrus.Logger, service PriceService) *Server {
	return &Server{
		logger:  logger,
		config:  config,
		service: service,
	}
}

// Router builds the gin engine with all routes and middleware
func (s *Server) Router() *gin.Engine {
	gin.SetMode(s.config.GinMode)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(requestLogger(s.logger))
	r.Use(cors())

	r.GET("/", s.handleHome)
	r.GET("/health", s.handleHealth)
	r.GET("/request", s.handleRequest)
	r.GET("/options", s.handleOptions)

	return r
}

// handleHome describes the service and its endpoints
func (s *Server) handleHome(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"Page":       "AgMarkNet API Home Page",
		"Time Stamp": unixSeconds(time.Now()),
		"Status":     "Running",
		"Endpoints": gin.H{
			"GET /":        "This page - API status",
			"GET /health":  "Health check",
			"GET /request": "Get commodity data (requires commodity, state, market parameters)",
			"GET /options": "List commodities and states accepted by /request",
		},
	})
}

// handleHealth handles the health check endpoint
func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, HealthResponse{
		Status:    "healthy",
		Timestamp: unixSeconds(time.Now()),
	})
}

// handleRequest runs a price search for the query parameters
func (s *Server) handleRequest(c *gin.Context) {
	query := types.PriceQuery{
		Commodity: c.Query("commodity"),
		State:     c.Query("state"),
		Market:    c.Query("market"),
	}

	if len(query.Missing()) > 0 {
		c.JSON(http.StatusBadRequest, MissingParamsResponse{
			Error:    "Missing query parameters",
			Required: requiredParams,
			Example:  exampleRequest,
		})
		return
	}

	s.logger.Infof("API request received for commodity=%q state=%q market=%q", query.Commodity, query.State, query.Market)

	records, err := s.service.FetchPrices(c.Request.Context(), query)
	if err != nil {
		s.sendError(c, err)
		return
	}
	if records == nil {
		records = []types.PriceRecord{}
	}

	c.JSON(http.StatusOK, PricesResponse{
		Success: true,
		Data:    records,
		Count:   len(records),
	})
}

// handleOptions lists the dropdown values of the search form
func (s *Server) handleOptions(c *gin.Context) {
	options, err := s.service.ListOptions(c.Request.Context())
	if err != nil {
		s.sendError(c, err)
		return
	}

	c.JSON(http.StatusOK, OptionsResponse{Success: true, SearchOptions: options})
}

// sendError sends an error response
func (s *Server) sendError(c *gin.Context, err error) {
	s.logger.Errorf("Request %s failed: %v", c.Request.URL.Path, err)

	c.JSON(http.StatusInternalServerError, ErrorResponse{
		Error:   err.Error(),
		Success: false,
		Code:    types.ErrorCode(err),
	})
}

// Start starts the API server
func (s *Server) Start() error {
	addr := "0.0.0.0:" + s.config.Port

	s.logger.Infof("Starting API server on %s", addr)
	s.logger.Info("Available endpoints:")
	s.logger.Info("  GET /        - API status")
	s.logger.Info("  GET /health  - Health check")
	s.logger.Info("  GET /request - Commodity prices (commodity, state, market)")
	s.logger.Info("  GET /options - Commodities and states")

	return s.Router().Run(addr)
}

func unixSeconds(t time.Time) float64 {
	return float64(t.UnixNano()) / float64(time.Second)
}
