package httpgin

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	redisrepo "github.com/kirinyoku/openmic/internal/repository/redis"
	"github.com/kirinyoku/openmic/internal/service"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

// Idempotency stores direct-claim results under a client supplied key.
type Idempotency interface {
	GetResult(ctx context.Context, key string) (string, bool, error)
	AcquireLock(ctx context.Context, key string, lockTTL time.Duration) (bool, error)
	SaveResult(ctx context.Context, key string, jsonPayload string) error
	Release(ctx context.Context, key string) error
}

func NewRouter(
	svcs *service.Services,
	verifier Verifier,
	idem Idempotency,
	broker *Broker,
	logger *slog.Logger,
	middlewares ...gin.HandlerFunc,
) *gin.Engine {
	r := gin.New()

	r.Use(gin.Recovery(), RequestIDMiddleware(), LoggingMiddleware(logger), CORS())
	for _, m := range middlewares {
		if m != nil {
			r.Use(m)
		}
	}

	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	// Public reads
	r.GET("/events/:id/timeslots", handleBoard(svcs))
	r.GET("/events/:id/lineup", handleGetLineup(svcs))
	r.GET("/events/:id/lineup/stream", handleLineupStream(svcs, broker))

	api := r.Group("/", IdentityMiddleware(verifier))
	{
		api.POST("/timeslots/:id/claims", handleClaim(svcs, idem))
		api.POST("/timeslots/:id/waitlist", handleJoinWaitlist(svcs))

		api.GET("/claims/:id", handleGetClaim(svcs))
		api.POST("/claims/:id/accept", handleAcceptOffer(svcs))
		api.POST("/claims/:id/cancel", handleCancel(svcs))
		api.DELETE("/claims/:id", handleDeleteClaim(svcs))
	}

	// Host, co-host and site admin actions. Who may act on which event is
	// decided by the access policy inside the services.
	admin := r.Group("/admin", IdentityMiddleware(verifier))
	{
		admin.POST("/events/:id/timeslots/regenerate", handleRegenerate(svcs))
		admin.PUT("/events/:id/lineup", handleSetLineup(svcs))
		admin.POST("/timeslots/:id/promote", handlePromote(svcs))
		admin.POST("/claims/:id/no-show", handleMarkNoShow(svcs))
		admin.POST("/claims/:id/performed", handleMarkPerformed(svcs))
	}

	return r
}

// @Summary  Slot board
// @Param    id  path  int  true  "Event ID"
// @Success  200  {array}   domain.SlotView
// @Failure  404  {object}  ErrorResponse
// @Router   /events/{id}/timeslots [get]
func handleBoard(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		eventID, ok := parseInt64Param(c, "id")
		if !ok {
			return
		}
		board, err := svcs.Slots.Board(c.Request.Context(), eventID)
		if err != nil {
			respondErr(c, err)
			return
		}
		writeJSONWithCache(c, http.StatusOK, board, "public, max-age=5")
	}
}

// @Summary  Now playing
// @Param    id  path  int  true  "Event ID"
// @Success  200  {object}  domain.LineupState
// @Failure  404  {object}  ErrorResponse
// @Router   /events/{id}/lineup [get]
func handleGetLineup(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		eventID, ok := parseInt64Param(c, "id")
		if !ok {
			return
		}
		st, err := svcs.Lineup.Get(c.Request.Context(), eventID)
		if err != nil {
			respondErr(c, err)
			return
		}
		writeJSONWithCache(c, http.StatusOK, st, "public, max-age=2")
	}
}

// @Summary  Claim a free timeslot (idempotent)
// @Param    id  path  string  true  "Timeslot ID (uuid)"
// @Param    Idempotency-Key header string false "client retry key"
// @Security BearerAuth
// @Success  201 {object} ClaimResponse
// @Failure  401 {object} ErrorResponse
// @Failure  409 {object} ErrorResponse "slot unavailable / already claimed / idem in progress"
// @Failure  429 {object} ErrorResponse "rate limited"
// @Router   /timeslots/{id}/claims [post]
func handleClaim(svcs *service.Services, idem Idempotency) gin.HandlerFunc {
	return func(c *gin.Context) {
		caller, ok := occupant(c)
		if !ok {
			return
		}
		timeslotID, ok := parseUUIDParam(c, "id")
		if !ok {
			return
		}
		ctx := c.Request.Context()

		idemKey := strings.TrimSpace(c.GetHeader("Idempotency-Key"))
		var storageKey string
		if idem != nil && idemKey != "" {
			storageKey = redisrepo.KeyIdemClaim(timeslotID, caller.Key(), idemKey)

			if payload, ok, _ := idem.GetResult(ctx, storageKey); ok {
				replay(c, idemKey, payload)
				return
			}

			locked, err := idem.AcquireLock(ctx, storageKey, 60*time.Second)
			if err != nil {
				respondErr(c, err)
				return
			}
			if !locked {
				if payload, ok, _ := idem.GetResult(ctx, storageKey); ok {
					replay(c, idemKey, payload)
					return
				}
				c.Header("Retry-After", "1")
				c.JSON(http.StatusConflict, ErrorResponse{Error: "idempotency key in progress"})
				return
			}
		}

		claim, err := svcs.Claims.Claim(ctx, caller, timeslotID)
		if err != nil {
			if storageKey != "" {
				_ = idem.Release(ctx, storageKey)
			}
			respondErr(c, err)
			return
		}

		resp := toClaimResponse(claim)
		if storageKey != "" {
			b, _ := json.Marshal(resp)
			_ = idem.SaveResult(ctx, storageKey, string(b))
			c.Header("Idempotency-Key", idemKey)
		}

		c.JSON(http.StatusCreated, resp)
	}
}

func replay(c *gin.Context, idemKey, payload string) {
	c.Header("Idempotency-Key", idemKey)
	c.Header("Idempotent-Replayed", "true")
	c.Data(http.StatusCreated, "application/json; charset=utf-8", []byte(payload))
}

// @Summary  Join the waitlist of an occupied timeslot
// @Param    id  path  string  true  "Timeslot ID (uuid)"
// @Security BearerAuth
// @Success  201 {object} ClaimResponse
// @Failure  400 {object} ErrorResponse "slot is free"
// @Failure  409 {object} ErrorResponse
// @Router   /timeslots/{id}/waitlist [post]
func handleJoinWaitlist(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		caller, ok := occupant(c)
		if !ok {
			return
		}
		timeslotID, ok := parseUUIDParam(c, "id")
		if !ok {
			return
		}
		claim, err := svcs.Claims.JoinWaitlist(c.Request.Context(), caller, timeslotID)
		if err != nil {
			respondErr(c, err)
			return
		}
		c.JSON(http.StatusCreated, toClaimResponse(claim))
	}
}

// @Summary  Get claim (occupant or event administrator)
// @Param    id  path  string  true  "Claim ID (uuid)"
// @Security BearerAuth
// @Success  200 {object} ClaimResponse
// @Failure  401 {object} ErrorResponse
// @Failure  403 {object} ErrorResponse
// @Failure  404 {object} ErrorResponse
// @Router   /claims/{id} [get]
func handleGetClaim(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		caller, ok := occupant(c)
		if !ok {
			return
		}
		claimID, ok := parseUUIDParam(c, "id")
		if !ok {
			return
		}
		claim, err := svcs.Claims.View(c.Request.Context(), caller, claimID)
		if err != nil {
			respondErr(c, err)
			return
		}
		c.JSON(http.StatusOK, toClaimResponse(claim))
	}
}

// @Summary  Accept an offer
// @Param    id  path  string  true  "Claim ID (uuid)"
// @Security BearerAuth
// @Success  200 {object} ClaimResponse
// @Failure  403 {object} ErrorResponse
// @Failure  422 {object} ErrorResponse "not offered / offer expired"
// @Router   /claims/{id}/accept [post]
func handleAcceptOffer(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		caller, ok := occupant(c)
		if !ok {
			return
		}
		claimID, ok := parseUUIDParam(c, "id")
		if !ok {
			return
		}
		claim, err := svcs.Claims.AcceptOffer(c.Request.Context(), caller, claimID)
		if err != nil {
			respondErr(c, err)
			return
		}
		c.JSON(http.StatusOK, toClaimResponse(claim))
	}
}

// @Summary  Cancel a claim (also declines an offer)
// @Param    id  path  string  true  "Claim ID (uuid)"
// @Security BearerAuth
// @Success  200 {object} TransitionResponse
// @Failure  403 {object} ErrorResponse
// @Failure  422 {object} ErrorResponse
// @Router   /claims/{id}/cancel [post]
func handleCancel(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		caller, ok := occupant(c)
		if !ok {
			return
		}
		claimID, ok := parseUUIDParam(c, "id")
		if !ok {
			return
		}
		claim, promo, err := svcs.Claims.Cancel(c.Request.Context(), caller, claimID)
		if err != nil {
			respondErr(c, err)
			return
		}
		c.JSON(http.StatusOK, TransitionResponse{Claim: toClaimResponse(claim), Promotion: promo})
	}
}

// @Summary  Delete own waitlisted claim
// @Param    id  path  string  true  "Claim ID (uuid)"
// @Security BearerAuth
// @Success  204
// @Failure  403 {object} ErrorResponse
// @Failure  422 {object} ErrorResponse "not waitlisted"
// @Router   /claims/{id} [delete]
func handleDeleteClaim(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		caller, ok := occupant(c)
		if !ok {
			return
		}
		claimID, ok := parseUUIDParam(c, "id")
		if !ok {
			return
		}
		if err := svcs.Claims.Delete(c.Request.Context(), caller, claimID); err != nil {
			respondErr(c, err)
			return
		}
		c.Status(http.StatusNoContent)
	}
}

// @Summary  Regenerate timeslots (destroys every claim of the event)
// @Param    id  path  int  true  "Event ID"
// @Security BearerAuth
// @Success  201 {object} RegenerateResponse
// @Failure  403 {object} ErrorResponse
// @Router   /admin/events/{id}/timeslots/regenerate [post]
func handleRegenerate(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		caller, ok := occupant(c)
		if !ok {
			return
		}
		eventID, ok := parseInt64Param(c, "id")
		if !ok {
			return
		}
		slots, err := svcs.Slots.Regenerate(c.Request.Context(), caller, eventID)
		if err != nil {
			respondErr(c, err)
			return
		}
		c.JSON(http.StatusCreated, RegenerateResponse{Timeslots: slots})
	}
}

// @Summary  Set now playing
// @Param    id  path  int  true  "Event ID"
// @Param    req body  SetLineupRequest true "payload"
// @Security BearerAuth
// @Success  200 {object} domain.LineupState
// @Failure  400 {object} ErrorResponse
// @Failure  403 {object} ErrorResponse
// @Router   /admin/events/{id}/lineup [put]
func handleSetLineup(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		caller, ok := occupant(c)
		if !ok {
			return
		}
		eventID, ok := parseInt64Param(c, "id")
		if !ok {
			return
		}
		var req SetLineupRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}
		var timeslotID *uuid.UUID
		if req.TimeslotID != nil {
			id, err := uuid.Parse(*req.TimeslotID)
			if err != nil {
				badRequest(c, "invalid timeslot_id")
				return
			}
			timeslotID = &id
		}
		st, err := svcs.Lineup.SetNowPlaying(c.Request.Context(), caller, eventID, timeslotID)
		if err != nil {
			respondErr(c, err)
			return
		}
		c.JSON(http.StatusOK, st)
	}
}

// @Summary  Promote the head of the waitlist
// @Param    id  path  string  true  "Timeslot ID (uuid)"
// @Security BearerAuth
// @Success  200 {object} PromoteResponse "promotion is null when there is no candidate"
// @Failure  403 {object} ErrorResponse
// @Router   /admin/timeslots/{id}/promote [post]
func handlePromote(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		caller, ok := occupant(c)
		if !ok {
			return
		}
		timeslotID, ok := parseUUIDParam(c, "id")
		if !ok {
			return
		}
		p, err := svcs.Waitlist.PromoteNext(c.Request.Context(), caller, timeslotID)
		if err != nil {
			respondErr(c, err)
			return
		}
		c.JSON(http.StatusOK, PromoteResponse{Promotion: p})
	}
}

// @Summary  Mark no-show
// @Param    id  path  string  true  "Claim ID (uuid)"
// @Security BearerAuth
// @Success  200 {object} TransitionResponse
// @Failure  403 {object} ErrorResponse
// @Failure  422 {object} ErrorResponse
// @Router   /admin/claims/{id}/no-show [post]
func handleMarkNoShow(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		caller, ok := occupant(c)
		if !ok {
			return
		}
		claimID, ok := parseUUIDParam(c, "id")
		if !ok {
			return
		}
		claim, promo, err := svcs.Claims.MarkNoShow(c.Request.Context(), caller, claimID)
		if err != nil {
			respondErr(c, err)
			return
		}
		c.JSON(http.StatusOK, TransitionResponse{Claim: toClaimResponse(claim), Promotion: promo})
	}
}

// @Summary  Mark performed
// @Param    id  path  string  true  "Claim ID (uuid)"
// @Security BearerAuth
// @Success  200 {object} ClaimResponse
// @Failure  403 {object} ErrorResponse
// @Failure  422 {object} ErrorResponse
// @Router   /admin/claims/{id}/performed [post]
func handleMarkPerformed(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		caller, ok := occupant(c)
		if !ok {
			return
		}
		claimID, ok := parseUUIDParam(c, "id")
		if !ok {
			return
		}
		claim, err := svcs.Claims.MarkPerformed(c.Request.Context(), caller, claimID)
		if err != nil {
			respondErr(c, err)
			return
		}
		c.JSON(http.StatusOK, toClaimResponse(claim))
	}
}

// --- Helpers ---

func parseInt64Param(c *gin.Context, name string) (int64, bool) {
	v, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || v <= 0 {
		badRequest(c, "invalid "+name)
		return 0, false
	}
	return v, true
}

func parseUUIDParam(c *gin.Context, name string) (uuid.UUID, bool) {
	v, err := uuid.Parse(c.Param(name))
	if err != nil {
		badRequest(c, "invalid "+name)
		return uuid.Nil, false
	}
	return v, true
}
