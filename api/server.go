// Package api exposes certificate lifecycle, public resolution and daily
// statistics over HTTP.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"xdao.co/certanchor/cert"
	"xdao.co/certanchor/chain"
	"xdao.co/certanchor/lifecycle"
	"xdao.co/certanchor/resolver"
	"xdao.co/certanchor/stats"
)

// Lifecycle is implemented by *lifecycle.Orchestrator.
type Lifecycle interface {
	Transition(ctx context.Context, id string, req lifecycle.Request) (*cert.Certificate, error)
	Actions(ctx context.Context, id string, actor cert.Actor) (*cert.Certificate, []cert.Action, error)
	Create(ctx context.Context, actor cert.Actor, drafts []cert.Draft) ([]cert.Certificate, error)
}

// Resolver is implemented by *resolver.Resolver.
type Resolver interface {
	Resolve(ctx context.Context, code string) (*resolver.Resolution, error)
}

// Aggregator is implemented by *stats.Aggregator.
type Aggregator interface {
	Aggregate(ctx context.Context, r stats.Range, f stats.Filters) ([]stats.DailyRow, error)
}

type Config struct {
	Lifecycle Lifecycle
	Resolver  Resolver
	Stats     Aggregator
	// Wallet signs anchoring transactions; sign requests fail without it.
	Wallet chain.Provider
	Auth   Auth
	Logger *zap.Logger
}

type Server struct {
	lifecycle Lifecycle
	resolver  Resolver
	stats     Aggregator
	wallet    chain.Provider
	auth      Auth
	log       *zap.Logger
	inflight  *inflight
	// signing admits one wallet write at a time across all certificates.
	signing sync.Mutex
	engine  *gin.Engine
}

func New(cfg Config) *Server {
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}
	s := &Server{
		lifecycle: cfg.Lifecycle,
		resolver:  cfg.Resolver,
		stats:     cfg.Stats,
		wallet:    cfg.Wallet,
		auth:      cfg.Auth,
		log:       log.With(zap.String("component", "api")),
		inflight:  newInflight(),
	}
	s.engine = s.routes()
	return s
}

func (s *Server) Handler() http.Handler { return s.engine }

func (s *Server) routes() *gin.Engine {
	r := gin.New()
	r.Use(RequestLogger(s.log), Recover(s.log))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	pub := r.Group("/api/public")
	pub.GET("/certificates/:code", s.resolve)

	authed := r.Group("/api", s.auth.RequireAuth())
	authed.POST("/certificates", s.create)
	authed.GET("/certificates/:id/actions", s.actions)
	authed.POST("/certificates/:id/sign", s.transition(cert.ActionSign))
	authed.POST("/certificates/:id/approve", s.transition(cert.ActionApprove))
	authed.POST("/certificates/:id/revoke", s.transition(cert.ActionRevoke))
	authed.GET("/stats/daily", s.daily)
	return r
}

func (s *Server) resolve(c *gin.Context) {
	res, err := s.resolver.Resolve(c.Request.Context(), c.Param("code"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": res})
}

func (s *Server) actions(c *gin.Context) {
	crt, actions, err := s.lifecycle.Actions(c.Request.Context(), c.Param("id"), actorFrom(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": gin.H{"certificate": crt, "actions": actions}})
}

// create accepts a single draft object or an array of drafts.
func (s *Server) create(c *gin.Context) {
	raw, err := c.GetRawData()
	if err != nil {
		badRequest(c, "could not read request body")
		return
	}
	raw = bytes.TrimSpace(raw)
	var drafts []cert.Draft
	if len(raw) > 0 && raw[0] == '[' {
		err = json.Unmarshal(raw, &drafts)
	} else {
		var d cert.Draft
		err = json.Unmarshal(raw, &d)
		drafts = []cert.Draft{d}
	}
	if err != nil {
		badRequest(c, "request body must be a certificate or an array of certificates")
		return
	}

	out, err := s.lifecycle.Create(c.Request.Context(), actorFrom(c), drafts)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"data": out})
}

func (s *Server) transition(action cert.Action) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.Param("id")
		var body struct {
			Reason string `json:"reason"`
		}
		if action == cert.ActionRevoke && c.Request.ContentLength != 0 {
			if err := c.ShouldBindJSON(&body); err != nil {
				badRequest(c, "invalid request body")
				return
			}
		}

		if action == cert.ActionSign {
			if !s.signing.TryLock() {
				abortError(c, http.StatusConflict, cert.NewError(cert.KindGeneric, "the wallet is busy with another signature"))
				return
			}
			defer s.signing.Unlock()
		}
		if !s.inflight.acquire(id) {
			abortError(c, http.StatusConflict, cert.NewError(cert.KindGeneric, "another transition is in progress for this certificate"))
			return
		}
		defer s.inflight.release(id)

		req := lifecycle.Request{Action: action, Actor: actorFrom(c), Reason: body.Reason}
		if action == cert.ActionSign {
			req.Wallet = s.wallet
		}
		out, err := s.lifecycle.Transition(c.Request.Context(), id, req)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"data": out})
	}
}

func (s *Server) daily(c *gin.Context) {
	r := stats.Range{Start: c.Query("start"), End: c.Query("end")}
	switch err := r.Validate(); {
	case errors.Is(err, stats.ErrRangeTooLong):
		badRequest(c, fmt.Sprintf("the range may cover at most %d days", stats.MaxDays))
		return
	case err != nil:
		badRequest(c, "start and end must be YYYY-MM-DD dates with start <= end")
		return
	}
	f := stats.Filters{OrganizationID: c.Query("organizationId"), IssuerID: c.Query("issuerId")}
	actor := actorFrom(c)
	if f.OrganizationID == "" {
		f.OrganizationID = actor.OrganizationID
	}
	if f.OrganizationID != actor.OrganizationID {
		abortError(c, http.StatusForbidden, cert.NewError(cert.KindGeneric, "statistics are limited to your organization"))
		return
	}

	rows, err := s.stats.Aggregate(c.Request.Context(), r, f)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": gin.H{"rows": rows, "totals": stats.Totals(rows)}})
}
