// Package authtest provides an in-process fake of the membership Auth API.
//
// It issues real HS256 JWTs, honours expiry against an injectable clock and
// can be scripted to fail upcoming refreshes. It also plays the part of
// Google's authorization and token endpoints so the PKCE sign-in flow can
// run end to end without network access.
package authtest

import (
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/s155cp/memberctl/pkg/auth/types"
	"github.com/s155cp/memberctl/pkg/logger"
	"golang.org/x/oauth2"
)

// Defaults for the seeded member.
const (
	DefaultEmail    = "rider@example.com"
	DefaultPassword = "twisties"
	DefaultTTL      = 15 * time.Minute

	// Secret signs every token the fake issues.
	Secret = "authtest-signing-secret"

	memberKey = "member"
)

var errRevoked = errors.New("token revoked")

// Member is a registered account.
type Member struct {
	Password string
	User     types.User
}

type authCode struct {
	challenge   string
	redirectURI string
}

// Server is the fake Auth API.
type Server struct {
	engine *gin.Engine
	log    logger.Logger

	mu             sync.Mutex
	now            func() time.Time
	ttl            time.Duration
	members        map[string]*Member
	failures       []int
	refreshes      int
	revoked        map[string]bool
	googleClientID string
	googleToken    string
	googleEmail    string
	codes          map[string]authCode
	designations   map[string]string
}

// Option configures a Server.
type Option func(*Server)

// WithTTL sets the lifetime of issued tokens.
func WithTTL(ttl time.Duration) Option {
	return func(s *Server) { s.ttl = ttl }
}

// WithNow sets the clock used to issue and verify tokens.
func WithNow(now func() time.Time) Option {
	return func(s *Server) { s.now = now }
}

// WithLogger logs each request.
func WithLogger(l logger.Logger) Option {
	return func(s *Server) { s.log = l }
}

// WithMember registers an additional account.
func WithMember(email, password string, user types.User) Option {
	return func(s *Server) {
		user.Email = email
		if user.ID == "" {
			user.ID = uuid.NewString()
		}
		s.members[email] = &Member{Password: password, User: user}
	}
}

// WithGoogle sets the Google client id and the member Google sign-in maps to.
func WithGoogle(clientID, email string) Option {
	return func(s *Server) {
		s.googleClientID = clientID
		s.googleEmail = email
	}
}

// New creates a fake API with one seeded member.
func New(opts ...Option) *Server {
	designation := "Road Captain"
	s := &Server{
		log:            logger.Nop(),
		now:            time.Now,
		ttl:            DefaultTTL,
		members:        make(map[string]*Member),
		revoked:        make(map[string]bool),
		codes:          make(map[string]authCode),
		googleClientID: "authtest.apps.googleusercontent.com",
		googleEmail:    DefaultEmail,
		googleToken:    "ya29." + uuid.NewString(),
		designations: map[string]string{
			"member":       "Member",
			"road_captain": "Road Captain",
			"secretary":    "Secretary",
			"president":    "President",
		},
	}
	s.members[DefaultEmail] = &Member{
		Password: DefaultPassword,
		User: types.User{
			ID:          uuid.NewString(),
			FirstName:   "Casey",
			LastName:    "Stoner",
			Email:       DefaultEmail,
			Designation: &designation,
		},
	}
	for _, opt := range opts {
		opt(s)
	}

	if gin.Mode() == gin.DebugMode {
		gin.SetMode(gin.TestMode)
	}
	s.engine = gin.New()
	s.engine.Use(gin.Recovery(), s.requestLogger())
	s.routes()

	return s
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.engine
}

func (s *Server) routes() {
	v1 := s.engine.Group("/v1/auth")
	{
		v1.GET("/refresh", s.scriptedFailure(), s.requireAuth(), s.refresh)
		v1.POST("/login", s.login)
		v1.POST("/oauth/google", s.googleLogin)
		v1.GET("/logout", s.requireAuth(), s.logout)
		v1.GET("/config", s.config)
		v1.GET("/designations", s.requireAuth(), s.listDesignations)
	}

	google := s.engine.Group("/google")
	{
		google.GET("/auth", s.googleAuthorize)
		google.POST("/token", s.googleExchange)
	}
}

// GoogleEndpoint returns OAuth2 endpoints served by the fake at baseURL.
func GoogleEndpoint(baseURL string) oauth2.Endpoint {
	base := strings.TrimRight(baseURL, "/")
	return oauth2.Endpoint{
		AuthURL:   base + "/google/auth",
		TokenURL:  base + "/google/token",
		AuthStyle: oauth2.AuthStyleInParams,
	}
}

// MintToken issues a signed token for subject expiring at exp.
func (s *Server) MintToken(subject string, exp time.Time) string {
	return MintToken(subject, exp, s.now())
}

// MintToken issues a token signed with Secret.
func MintToken(subject string, exp, issuedAt time.Time) string {
	claims := jwt.RegisteredClaims{
		Subject:   subject,
		Issuer:    "authtest",
		ID:        uuid.NewString(),
		IssuedAt:  jwt.NewNumericDate(issuedAt),
		ExpiresAt: jwt.NewNumericDate(exp),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(Secret))
	if err != nil {
		panic(err)
	}
	return signed
}

// Grant issues a session for the member registered under email.
func (s *Server) Grant(email string) (*types.Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.members[email]
	if !ok {
		return nil, false
	}
	return s.grantLocked(m), true
}

// FailNext makes the next refreshes answer with the given statuses.
func (s *Server) FailNext(statuses ...int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures = append(s.failures, statuses...)
}

// RefreshCount returns how many refresh requests were received.
func (s *Server) RefreshCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.refreshes
}

// Revoke makes token unusable.
func (s *Server) Revoke(token string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.revoked[token] = true
}

// GoogleAccessToken returns the Google token the fake accepts.
func (s *Server) GoogleAccessToken() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.googleToken
}

func (s *Server) grantLocked(m *Member) *types.Session {
	now := s.now()
	exp := now.Add(s.ttl)
	user := m.User
	return &types.Session{
		Access: &types.AccessToken{
			Type:   "Bearer",
			Token:  MintToken(user.ID, exp, now),
			Expiry: exp.UnixMilli(),
		},
		User: &user,
	}
}

func (s *Server) memberByID(id string) *Member {
	for _, m := range s.members {
		if m.User.ID == id {
			return m
		}
	}
	return nil
}

func (s *Server) verify(token string) (*Member, error) {
	claims := &jwt.RegisteredClaims{}
	_, err := jwt.ParseWithClaims(token, claims,
		func(*jwt.Token) (any, error) { return []byte(Secret), nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.revoked[token] {
		return nil, errRevoked
	}
	m := s.memberByID(claims.Subject)
	if m == nil {
		return nil, errors.New("unknown member")
	}
	return m, nil
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader("X-Request-ID")
		if requestID == "" {
			requestID = uuid.NewString()
		}
		c.Header("X-Request-ID", requestID)

		start := time.Now()
		c.Next()

		s.log.Info("request",
			logger.String("method", c.Request.Method),
			logger.String("path", c.Request.URL.Path),
			logger.Status(c.Writer.Status()),
			logger.RequestID(requestID),
			logger.Duration("latency", time.Since(start)),
		)
	}
}

func (s *Server) scriptedFailure() gin.HandlerFunc {
	return func(c *gin.Context) {
		s.mu.Lock()
		s.refreshes++
		status := 0
		if len(s.failures) > 0 {
			status, s.failures = s.failures[0], s.failures[1:]
		}
		s.mu.Unlock()

		if status != 0 {
			c.AbortWithStatusJSON(status, gin.H{"message": http.StatusText(status)})
			return
		}
		c.Next()
	}
}

func (s *Server) requireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		parts := strings.SplitN(c.GetHeader("Authorization"), " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"message": "missing bearer token"})
			return
		}

		m, err := s.verify(parts[1])
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"message": "invalid or expired token"})
			return
		}

		c.Set(memberKey, m)
		c.Next()
	}
}

func (s *Server) refresh(c *gin.Context) {
	m := c.MustGet(memberKey).(*Member)

	s.mu.Lock()
	session := s.grantLocked(m)
	s.mu.Unlock()

	c.JSON(http.StatusOK, session)
}

func (s *Server) login(c *gin.Context) {
	var req struct {
		Email    string `json:"email" binding:"required"`
		Password string `json:"password" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": err.Error()})
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.members[req.Email]
	if !ok || m.Password != req.Password {
		c.JSON(http.StatusUnauthorized, gin.H{"message": "invalid email or password"})
		return
	}

	c.JSON(http.StatusOK, s.grantLocked(m))
}

func (s *Server) googleLogin(c *gin.Context) {
	var req struct {
		AccessToken string `json:"access_token" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": err.Error()})
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.members[s.googleEmail]
	if req.AccessToken != s.googleToken || !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"message": "google sign-in rejected"})
		return
	}

	c.JSON(http.StatusOK, s.grantLocked(m))
}

func (s *Server) logout(c *gin.Context) {
	token := strings.TrimSpace(strings.TrimPrefix(c.GetHeader("Authorization"), "Bearer"))
	s.Revoke(token)
	c.JSON(http.StatusOK, gin.H{"message": "logged out"})
}

func (s *Server) config(c *gin.Context) {
	s.mu.Lock()
	clientID := s.googleClientID
	s.mu.Unlock()

	c.JSON(http.StatusOK, gin.H{
		"google": gin.H{"clientId": clientID},
	})
}

func (s *Server) listDesignations(c *gin.Context) {
	s.mu.Lock()
	designations := make(map[string]string, len(s.designations))
	for k, v := range s.designations {
		designations[k] = v
	}
	s.mu.Unlock()

	c.JSON(http.StatusOK, gin.H{"designations": designations})
}

// googleAuthorize approves every request and redirects back with a code.
func (s *Server) googleAuthorize(c *gin.Context) {
	redirectURI := c.Query("redirect_uri")
	target, err := url.Parse(redirectURI)
	if err != nil || redirectURI == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	if c.Query("code_challenge_method") != "S256" || c.Query("code_challenge") == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "error_description": "PKCE required"})
		return
	}

	s.mu.Lock()
	if c.Query("client_id") != s.googleClientID {
		s.mu.Unlock()
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_client"})
		return
	}
	code := uuid.NewString()
	s.codes[code] = authCode{challenge: c.Query("code_challenge"), redirectURI: redirectURI}
	s.mu.Unlock()

	q := target.Query()
	q.Set("code", code)
	q.Set("state", c.Query("state"))
	target.RawQuery = q.Encode()

	c.Redirect(http.StatusFound, target.String())
}

func (s *Server) googleExchange(c *gin.Context) {
	code := c.PostForm("code")
	verifier := c.PostForm("code_verifier")

	s.mu.Lock()
	issued, ok := s.codes[code]
	delete(s.codes, code)
	token := s.googleToken
	s.mu.Unlock()

	if !ok || issued.redirectURI != c.PostForm("redirect_uri") {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_grant"})
		return
	}

	sum := sha256.Sum256([]byte(verifier))
	if base64.RawURLEncoding.EncodeToString(sum[:]) != issued.challenge {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_grant", "error_description": "code verifier mismatch"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"access_token": token,
		"token_type":   "Bearer",
		"expires_in":   3600,
	})
}
