package session

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/example/deepfake-detector/internal/logging"
	"github.com/example/deepfake-detector/internal/theme"
)

// CookieName is the cookie carrying the signed session token.
const CookieName = "deepfake_session"

type contextKey string

const sessionKey contextKey = "session"

// Session is the per-visitor state carried in the cookie.
type Session struct {
	ID    string
	Theme theme.Theme
}

// New starts a fresh session: new id, Light theme.
func New() Session {
	return Session{ID: uuid.NewString(), Theme: theme.Light}
}

type claims struct {
	Theme string `json:"theme"`
	jwt.RegisteredClaims
}

// Manager signs and verifies session cookies.
type Manager struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewManager constructs a Manager. secret must not be empty.
func NewManager(secret string, ttl time.Duration) (*Manager, error) {
	secret = strings.TrimSpace(secret)
	if secret == "" {
		return nil, errors.New("missing session secret")
	}
	return &Manager{secret: []byte(secret), ttl: ttl, now: time.Now}, nil
}

// TTL is how long an idle session lives.
func (m *Manager) TTL() time.Duration {
	return m.ttl
}

// Sign encodes s as an HS256 token.
func (m *Manager) Sign(s Session) (string, error) {
	now := m.now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims{
		Theme: s.Theme.String(),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   s.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.ttl)),
		},
	})
	return token.SignedString(m.secret)
}

// Parse verifies a token and returns the session it carries.
func (m *Manager) Parse(tokenString string) (Session, error) {
	c := &claims{}
	token, err := jwt.ParseWithClaims(tokenString, c, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return m.secret, nil
	}, jwt.WithTimeFunc(m.now))
	if err != nil || !token.Valid {
		return Session{}, errors.New("invalid session token")
	}
	if c.Subject == "" {
		return Session{}, errors.New("missing subject")
	}

	t, err := theme.Parse(c.Theme)
	if err != nil {
		t = theme.Light
	}
	return Session{ID: c.Subject, Theme: t}, nil
}

// Save writes s to the response cookie.
func (m *Manager) Save(c *gin.Context, s Session) error {
	token, err := m.Sign(s)
	if err != nil {
		return err
	}
	writeCookie(c, token, int(m.ttl.Seconds()))
	set(c, s)
	return nil
}

// End removes the session cookie.
func (m *Manager) End(c *gin.Context) {
	writeCookie(c, "", -1)
}

// writeCookie sets the session cookie, replacing one already queued on the
// response so a handler's Save or End overrides the middleware refresh.
func writeCookie(c *gin.Context, value string, maxAge int) {
	header := c.Writer.Header()
	prefix := CookieName + "="
	var kept []string
	for _, line := range header.Values("Set-Cookie") {
		if !strings.HasPrefix(line, prefix) {
			kept = append(kept, line)
		}
	}
	header.Del("Set-Cookie")
	for _, line := range kept {
		header.Add("Set-Cookie", line)
	}

	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(CookieName, value, maxAge, "/", "", c.Request.TLS != nil, true)
}

// Middleware loads the session from the cookie, starting a new one when the
// cookie is missing, tampered with or expired, and refreshes the cookie.
func (m *Manager) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		s := New()
		if raw, err := c.Cookie(CookieName); err == nil && raw != "" {
			if parsed, err := m.Parse(raw); err == nil {
				s = parsed
			}
		}

		if err := m.Save(c, s); err != nil {
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "failed to issue session"})
			return
		}
		c.Next()
	}
}

func set(c *gin.Context, s Session) {
	ctx := context.WithValue(c.Request.Context(), sessionKey, s)
	c.Request = c.Request.WithContext(ctx)
	c.Set(logging.SessionIDKey, s.ID)
}

// FromContext returns the session stored by the middleware.
func FromContext(ctx context.Context) (Session, bool) {
	if ctx == nil {
		return Session{}, false
	}
	s, ok := ctx.Value(sessionKey).(Session)
	return s, ok && s.ID != ""
}

// Current is FromContext for gin handlers.
func Current(c *gin.Context) (Session, bool) {
	return FromContext(c.Request.Context())
}
