// Package httpapi serves the payroll API over HTTP/JSON with gin. Every route
// under /api/v1 needs a bearer token; the token's role is checked against the
// casbin policy before the handler runs.
package httpapi

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/dmitrijs2005/paykeeper/internal/logging"
	"github.com/dmitrijs2005/paykeeper/internal/server/authz"
	"github.com/gin-gonic/gin"
)

// Services groups what the handlers call. The concrete services in
// internal/server/services satisfy these interfaces.
type Services struct {
	PayPeriods PayPeriods
	TaxSync    TaxSync
	PayStubs   PayStubs
	TaxYears   TaxYears
	Ytd        Ytd
}

type Server struct {
	address   string
	svc       Services
	authz     *authz.Authorizer
	jwtSecret []byte
	logger    logging.Logger
}

func NewServer(address string, l logging.Logger, svc Services, az *authz.Authorizer, secretKey string) *Server {
	return &Server{
		address:   address,
		svc:       svc,
		authz:     az,
		jwtSecret: []byte(secretKey),
		logger:    l.With("module", "http_server"),
	}
}

// Run serves until ctx is cancelled, then drains open requests.
func (s *Server) Run(ctx context.Context) error {
	listen, err := net.Listen("tcp", s.address)
	if err != nil {
		return err
	}

	srv := &http.Server{
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		s.logger.Info(ctx, "Stopping HTTP server...")
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			s.logger.Error(ctx, "HTTP server shutdown", "error", err)
		}
	}()

	s.logger.Info(ctx, "Starting HTTP server", "address", listen.Addr().String())

	if err := srv.Serve(listen); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), s.requestLogger)

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := r.Group("/api/v1", s.authenticate)
	{
		periods := api.Group("/pay-periods")
		periods.POST("", s.require(authz.PayPeriod, authz.Write), s.createPeriod)
		periods.GET("/:id", s.require(authz.PayPeriod, authz.Read), s.getPeriod)
		periods.DELETE("/:id", s.require(authz.PayPeriod, authz.Write), s.deletePeriod)
		periods.POST("/:id/items", s.require(authz.PayPeriod, authz.Write), s.addItem)
		periods.PATCH("/:id/items/:itemID", s.require(authz.PayPeriod, authz.Write), s.updateItem)
		periods.DELETE("/:id/items/:itemID", s.require(authz.PayPeriod, authz.Write), s.removeItem)
		periods.GET("/:id/items/:itemID/stub", s.require(authz.PayPeriod, authz.Read), s.payStub)
		periods.POST("/:id/calculate", s.require(authz.PayPeriod, authz.Write), s.calculate)
		periods.POST("/:id/approve", s.require(authz.PayPeriod, authz.Approve), s.approve)
		periods.POST("/:id/commit", s.require(authz.PayPeriod, authz.Commit), s.commit)
		periods.POST("/:id/tax-sync", s.require(authz.PayPeriod, authz.Sync), s.retrySync)

		years := api.Group("/tax-years")
		years.GET("/:year", s.require(authz.TaxYear, authz.Read), s.getTaxYear)
		years.PATCH("/:year", s.require(authz.TaxYear, authz.Write), s.updateRates)
		years.POST("/:year/copy", s.require(authz.TaxYear, authz.Write), s.copyYear)
		years.POST("/:year/activate", s.require(authz.TaxYear, authz.Write), s.activateYear)
		years.POST("/:year/deactivate", s.require(authz.TaxYear, authz.Write), s.deactivateYear)
		years.GET("/:year/changes", s.require(authz.TaxYear, authz.Read), s.taxChanges)

		api.GET("/ytd/:scope/:entityID/:year", s.require(authz.Ytd, authz.Read), s.getYtd)
	}
	return r
}
