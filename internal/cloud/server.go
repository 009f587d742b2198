package cloud

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"

	"github.com/roach88/tally/internal/ledger"
	"github.com/roach88/tally/internal/remote"
)

// ownerKey is the gin context key AuthMiddleware stores the owner id under.
const ownerKey = "owner_id"

// Server serves the hosted store API.
//
// Routes:
//
//	POST  /register           {username, password} -> 201 {id, username}
//	POST  /login              {username, password} -> 200 {token, user_id}
//	GET   /transactions       -> 200 {transactions, total}
//	POST  /transactions       remote.Record -> 201 remote.Record
//	PUT   /transactions/:id   remote.Record -> 200 remote.Record
//	PATCH /transactions/:id   remote.Patch  -> 204
//
// Errors are returned as {"error": message}.
type Server struct {
	rows     remote.Adapter
	accounts Accounts
	secret   []byte
	tokenTTL time.Duration
	clock    ledger.Clock
	ids      ledger.IDGenerator
	logger   *slog.Logger
}

// Option configures a Server.
type Option func(*Server)

// WithClock sets the clock used for token issue and expiry checks.
func WithClock(c ledger.Clock) Option {
	return func(s *Server) {
		s.clock = c
	}
}

// WithAccountIDs sets the generator for new account ids.
func WithAccountIDs(g ledger.IDGenerator) Option {
	return func(s *Server) {
		s.ids = g
	}
}

// WithTokenTTL sets the lifetime of issued tokens. Default: DefaultTokenTTL.
func WithTokenTTL(d time.Duration) Option {
	return func(s *Server) {
		s.tokenTTL = d
	}
}

// WithLogger sets the request logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) {
		s.logger = l
	}
}

// NewServer creates a server over the given row and account stores.
// secret signs bearer tokens and must not be empty.
func NewServer(rows remote.Adapter, accounts Accounts, secret string, opts ...Option) (*Server, error) {
	if secret == "" {
		return nil, errors.New("jwt secret is required")
	}
	if err := registerBindings(); err != nil {
		return nil, err
	}
	s := &Server{
		rows:     rows,
		accounts: accounts,
		secret:   []byte(secret),
		tokenTTL: DefaultTokenTTL,
		clock:    ledger.SystemClock{},
		ids:      ledger.UUIDGenerator{},
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Handler builds the gin engine with all routes registered.
func (s *Server) Handler() http.Handler {
	r := gin.New()
	r.Use(gin.Recovery(), s.requestLogger())

	r.POST("/register", s.Register)
	r.POST("/login", s.Login)

	protected := r.Group("/", s.AuthMiddleware())
	protected.GET("/transactions", s.GetTransactions)
	protected.POST("/transactions", s.CreateTransaction)
	protected.PUT("/transactions/:id", s.UpsertTransaction)
	protected.PATCH("/transactions/:id", s.PatchTransaction)

	return r
}

type credentialsRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// Register creates an account.
func (s *Server) Register(c *gin.Context) {
	var req credentialsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "username and password are required"})
		return
	}

	a, err := newAccount(s.ids, s.clock.Now(), strings.TrimSpace(req.Username), req.Password)
	if err != nil {
		s.respondError(c, err)
		return
	}
	if err := s.accounts.Create(c.Request.Context(), a); err != nil {
		s.respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"id": a.ID, "username": a.Username})
}

// Login checks a username and password and issues a bearer token.
func (s *Server) Login(c *gin.Context) {
	var req credentialsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "username and password are required"})
		return
	}

	a, ok, err := s.accounts.ByUsername(c.Request.Context(), strings.TrimSpace(req.Username))
	if err != nil {
		s.respondError(c, err)
		return
	}
	if !ok {
		s.respondError(c, ErrInvalidCredentials)
		return
	}
	if err := CheckPassword(a.PasswordHash, req.Password); err != nil {
		s.respondError(c, err)
		return
	}

	token, err := s.issueToken(a)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, remote.Credentials{OwnerID: a.ID, Token: token})
}

// AuthMiddleware rejects requests without a valid bearer token and stores
// the token's owner id on the context.
func (s *Server) AuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		raw, ok := strings.CutPrefix(c.GetHeader("Authorization"), "Bearer ")
		if !ok || raw == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "authorization header required"})
			return
		}
		owner, err := s.parseToken(raw)
		if err != nil {
			s.logger.Debug("token rejected", "error", err)
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}
		c.Set(ownerKey, owner)
		c.Next()
	}
}

// GetTransactions lists the caller's rows.
func (s *Server) GetTransactions(c *gin.Context) {
	rows, err := s.rows.Select(c.Request.Context(), c.GetString(ownerKey))
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"transactions": rows, "total": len(rows)})
}

// CreateTransaction inserts a new row for the caller.
func (s *Server) CreateTransaction(c *gin.Context) {
	rec, ok := s.bindRecord(c)
	if !ok {
		return
	}
	owner := c.GetString(ownerKey)
	id, err := s.rows.Insert(c.Request.Context(), owner, rec)
	if err != nil {
		s.respondError(c, err)
		return
	}
	rec.ID = id
	rec.OwnerID = owner
	c.JSON(http.StatusCreated, rec)
}

// UpsertTransaction creates or replaces the caller's row with the path id.
func (s *Server) UpsertTransaction(c *gin.Context) {
	rec, ok := s.bindRecord(c)
	if !ok {
		return
	}
	owner := c.GetString(ownerKey)
	rec.ID = c.Param("id")
	id, err := s.rows.Upsert(c.Request.Context(), owner, rec)
	if err != nil {
		s.respondError(c, err)
		return
	}
	rec.ID = id
	rec.OwnerID = owner
	c.JSON(http.StatusOK, rec)
}

// PatchTransaction applies a partial update to one of the caller's rows.
func (s *Server) PatchTransaction(c *gin.Context) {
	var p remote.Patch
	if err := c.ShouldBindJSON(&p); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if p.Type != nil && !ledger.Type(*p.Type).Valid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "type must be received or sent"})
		return
	}
	if p.Amount != nil && !p.Amount.IsPositive() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "amount must be positive"})
		return
	}
	err := s.rows.UpdateByRemoteID(c.Request.Context(), c.GetString(ownerKey), c.Param("id"), p)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

var (
	bindingsOnce sync.Once
	bindingsErr  error
)

// registerBindings adds the ledger amount checks to gin's validator.
func registerBindings() error {
	bindingsOnce.Do(func() {
		v, ok := binding.Validator.Engine().(*validator.Validate)
		if !ok {
			bindingsErr = errors.New("gin validator is not go-playground/validator")
			return
		}
		bindingsErr = ledger.RegisterValidations(v)
	})
	return bindingsErr
}

// bindRecord decodes and validates a row body against its binding tags.
// It writes the 400 response itself and reports false on failure.
func (s *Server) bindRecord(c *gin.Context) (remote.Record, bool) {
	var rec remote.Record
	if err := c.ShouldBindJSON(&rec); err != nil {
		s.respondError(c, ledger.ValidationErrorFrom(err))
		return remote.Record{}, false
	}
	return rec, true
}

// respondError maps domain errors onto HTTP statuses.
func (s *Server) respondError(c *gin.Context, err error) {
	var ve *ledger.ValidationError
	switch {
	case errors.As(err, &ve):
		c.JSON(http.StatusBadRequest, gin.H{"error": validationMessage(ve)})
	case errors.Is(err, ErrUsernameTaken):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, ErrInvalidCredentials):
		c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
	case errors.Is(err, remote.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "transaction not found"})
	case errors.Is(err, remote.ErrUnauthenticated):
		c.JSON(http.StatusForbidden, gin.H{"error": "forbidden"})
	default:
		s.logger.Error("request failed", "path", c.FullPath(), "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}

// validationMessage prefixes the field name unless the message already
// names the subject.
func validationMessage(ve *ledger.ValidationError) string {
	if ve.Field == "" || strings.HasPrefix(ve.Message, ve.Field) {
		return ve.Message
	}
	return ve.Field + " " + ve.Message
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.logger.Info("request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"duration", time.Since(start),
		)
	}
}
