package httpapi

import (
	"context"
	"net/http"
	"strconv"

	"github.com/dmitrijs2005/paykeeper/internal/server/actor"
	"github.com/dmitrijs2005/paykeeper/internal/server/models"
	"github.com/dmitrijs2005/paykeeper/internal/server/services"
	"github.com/gin-gonic/gin"
)

type PayPeriods interface {
	Create(ctx context.Context, act actor.Actor, in services.CreatePeriodInput) (*services.PeriodDetail, error)
	Get(ctx context.Context, act actor.Actor, id string) (*services.PeriodDetail, error)
	Delete(ctx context.Context, act actor.Actor, id string) error
	AddItem(ctx context.Context, act actor.Actor, periodID string, in services.ItemInput) (*models.PayrollItem, error)
	UpdateItem(ctx context.Context, act actor.Actor, periodID, itemID string, patch services.ItemPatch) (*models.PayrollItem, error)
	RemoveItem(ctx context.Context, act actor.Actor, periodID, itemID string) error
	Calculate(ctx context.Context, act actor.Actor, periodID string) (*services.PeriodDetail, error)
	Approve(ctx context.Context, act actor.Actor, periodID string) (*models.PayPeriod, error)
	Commit(ctx context.Context, act actor.Actor, periodID string) (*models.PayPeriod, error)
}

type TaxSync interface {
	Retry(ctx context.Context, act actor.Actor, periodID string) error
}

type PayStubs interface {
	Render(ctx context.Context, act actor.Actor, periodID, itemID string) ([]byte, string, error)
}

type TaxYears interface {
	Get(ctx context.Context, year int) (*models.AnnualTaxConfig, error)
	UpdateRates(ctx context.Context, act actor.Actor, year int, patch services.RatePatch) (*models.AnnualTaxConfig, error)
	CopyYear(ctx context.Context, act actor.Actor, from, to int) (*models.AnnualTaxConfig, error)
	Activate(ctx context.Context, act actor.Actor, year int) error
	Deactivate(ctx context.Context, act actor.Actor, year int) error
	Changes(ctx context.Context, year int) ([]*models.TaxConfigChange, error)
}

type Ytd interface {
	Get(ctx context.Context, act actor.Actor, scope models.YtdScope, entityID string, year int) (*models.YtdTotal, error)
}

// -------- pay periods --------

func (s *Server) createPeriod(c *gin.Context) {
	var req CreatePeriodRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.abort(c, badRequest(err.Error()))
		return
	}
	detail, err := s.svc.PayPeriods.Create(c.Request.Context(), currentActor(c), req.input())
	if err != nil {
		s.abort(c, err)
		return
	}
	c.JSON(http.StatusCreated, periodResponse(detail.Period, detail.Items))
}

func (s *Server) getPeriod(c *gin.Context) {
	detail, err := s.svc.PayPeriods.Get(c.Request.Context(), currentActor(c), c.Param("id"))
	if err != nil {
		s.abort(c, err)
		return
	}
	c.JSON(http.StatusOK, periodResponse(detail.Period, detail.Items))
}

func (s *Server) deletePeriod(c *gin.Context) {
	if err := s.svc.PayPeriods.Delete(c.Request.Context(), currentActor(c), c.Param("id")); err != nil {
		s.abort(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) addItem(c *gin.Context) {
	var req AddItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.abort(c, badRequest(err.Error()))
		return
	}
	item, err := s.svc.PayPeriods.AddItem(c.Request.Context(), currentActor(c), c.Param("id"), req.input())
	if err != nil {
		s.abort(c, err)
		return
	}
	c.JSON(http.StatusCreated, itemResponse(item))
}

func (s *Server) updateItem(c *gin.Context) {
	var req UpdateItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.abort(c, badRequest(err.Error()))
		return
	}
	item, err := s.svc.PayPeriods.UpdateItem(c.Request.Context(), currentActor(c), c.Param("id"), c.Param("itemID"), req.patch())
	if err != nil {
		s.abort(c, err)
		return
	}
	c.JSON(http.StatusOK, itemResponse(item))
}

func (s *Server) removeItem(c *gin.Context) {
	if err := s.svc.PayPeriods.RemoveItem(c.Request.Context(), currentActor(c), c.Param("id"), c.Param("itemID")); err != nil {
		s.abort(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) calculate(c *gin.Context) {
	detail, err := s.svc.PayPeriods.Calculate(c.Request.Context(), currentActor(c), c.Param("id"))
	if err != nil {
		s.abort(c, err)
		return
	}
	c.JSON(http.StatusOK, periodResponse(detail.Period, detail.Items))
}

func (s *Server) approve(c *gin.Context) {
	p, err := s.svc.PayPeriods.Approve(c.Request.Context(), currentActor(c), c.Param("id"))
	if err != nil {
		s.abort(c, err)
		return
	}
	c.JSON(http.StatusOK, periodResponse(p, nil))
}

func (s *Server) commit(c *gin.Context) {
	p, err := s.svc.PayPeriods.Commit(c.Request.Context(), currentActor(c), c.Param("id"))
	if err != nil {
		s.abort(c, err)
		return
	}
	c.JSON(http.StatusOK, periodResponse(p, nil))
}

func (s *Server) retrySync(c *gin.Context) {
	if err := s.svc.TaxSync.Retry(c.Request.Context(), currentActor(c), c.Param("id")); err != nil {
		s.abort(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"status": "queued"})
}

func (s *Server) payStub(c *gin.Context) {
	b, contentType, err := s.svc.PayStubs.Render(c.Request.Context(), currentActor(c), c.Param("id"), c.Param("itemID"))
	if err != nil {
		s.abort(c, err)
		return
	}
	c.Data(http.StatusOK, contentType, b)
}

// -------- tax years --------

func yearParam(c *gin.Context, name string) (int, error) {
	year, err := strconv.Atoi(c.Param(name))
	if err != nil || year <= 0 {
		return 0, badRequest("invalid year " + strconv.Quote(c.Param(name)))
	}
	return year, nil
}

func (s *Server) getTaxYear(c *gin.Context) {
	year, err := yearParam(c, "year")
	if err != nil {
		s.abort(c, err)
		return
	}
	cfg, err := s.svc.TaxYears.Get(c.Request.Context(), year)
	if err != nil {
		s.abort(c, err)
		return
	}
	c.JSON(http.StatusOK, taxYearResponse(cfg))
}

func (s *Server) updateRates(c *gin.Context) {
	year, err := yearParam(c, "year")
	if err != nil {
		s.abort(c, err)
		return
	}
	var patch services.RatePatch
	if err := c.ShouldBindJSON(&patch); err != nil {
		s.abort(c, badRequest(err.Error()))
		return
	}
	cfg, err := s.svc.TaxYears.UpdateRates(c.Request.Context(), currentActor(c), year, patch)
	if err != nil {
		s.abort(c, err)
		return
	}
	c.JSON(http.StatusOK, taxYearResponse(cfg))
}

func (s *Server) copyYear(c *gin.Context) {
	year, err := yearParam(c, "year")
	if err != nil {
		s.abort(c, err)
		return
	}
	var req CopyYearRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.abort(c, badRequest(err.Error()))
		return
	}
	cfg, err := s.svc.TaxYears.CopyYear(c.Request.Context(), currentActor(c), year, req.ToYear)
	if err != nil {
		s.abort(c, err)
		return
	}
	c.JSON(http.StatusCreated, taxYearResponse(cfg))
}

func (s *Server) activateYear(c *gin.Context) {
	s.setActive(c, s.svc.TaxYears.Activate)
}

func (s *Server) deactivateYear(c *gin.Context) {
	s.setActive(c, s.svc.TaxYears.Deactivate)
}

func (s *Server) setActive(c *gin.Context, f func(context.Context, actor.Actor, int) error) {
	year, err := yearParam(c, "year")
	if err != nil {
		s.abort(c, err)
		return
	}
	if err := f(c.Request.Context(), currentActor(c), year); err != nil {
		s.abort(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) taxChanges(c *gin.Context) {
	year, err := yearParam(c, "year")
	if err != nil {
		s.abort(c, err)
		return
	}
	changes, err := s.svc.TaxYears.Changes(c.Request.Context(), year)
	if err != nil {
		s.abort(c, err)
		return
	}
	out := make([]ChangeResponse, 0, len(changes))
	for _, ch := range changes {
		out = append(out, ChangeResponse{
			Action:    ch.Action,
			Field:     ch.Field,
			OldValue:  ch.OldValue,
			NewValue:  ch.NewValue,
			ActorID:   ch.ActorID,
			CreatedAt: ch.CreatedAt,
		})
	}
	c.JSON(http.StatusOK, out)
}

// -------- ytd --------

func (s *Server) getYtd(c *gin.Context) {
	year, err := yearParam(c, "year")
	if err != nil {
		s.abort(c, err)
		return
	}
	t, err := s.svc.Ytd.Get(c.Request.Context(), currentActor(c), models.YtdScope(c.Param("scope")), c.Param("entityID"), year)
	if err != nil {
		s.abort(c, err)
		return
	}
	c.JSON(http.StatusOK, YtdResponse{
		Scope:          t.Scope,
		EntityID:       t.EntityID,
		Year:           t.Year,
		GrossPay:       t.GrossPay,
		NetPay:         t.NetPay,
		Withholding:    t.Withholding,
		SocialSecurity: t.SocialSecurity,
		Medicare:       t.Medicare,
		Retirement:     t.Retirement,
		Roth:           t.Roth,
		Tips:           t.Tips,
		Bonus:          t.Bonus,
		OvertimePay:    t.OvertimePay,
	})
}
