package auth

import (
	"database/sql"
	"net/http"
	"sync"
	"time"

	"github.com/alexedwards/scs/sqlite3store"
	"github.com/alexedwards/scs/v2"
	"github.com/gin-gonic/gin"

	"github.com/mrlokans/storynest/internal/config"
	"github.com/mrlokans/storynest/internal/entities"
)

const (
	sessionCookieName = "storynest_session"
	sessionUserKey    = "user_id"
	sessionEmailKey   = "email"
)

const sessionsSchema = `CREATE TABLE IF NOT EXISTS sessions (
	token TEXT PRIMARY KEY,
	data BLOB NOT NULL,
	expiry REAL NOT NULL
);
CREATE INDEX IF NOT EXISTS sessions_expiry_idx ON sessions(expiry);`

// SessionManager keeps browser sessions in the sessions table of the
// application database. A session remembers the user id and the email it
// was opened with.
type SessionManager struct {
	scs *scs.SessionManager
}

func NewSessionManager(sqlDB *sql.DB, cfg config.Auth) (*SessionManager, error) {
	if _, err := sqlDB.Exec(sessionsSchema); err != nil {
		return nil, err
	}

	sm := scs.New()
	sm.Store = sqlite3store.New(sqlDB)
	sm.Lifetime = cfg.SessionLifetime
	sm.IdleTimeout = cfg.SessionLifetime / 2
	sm.Cookie = scs.SessionCookie{
		Name:     sessionCookieName,
		Path:     "/",
		HttpOnly: true,
		Persist:  true,
		Secure:   cfg.SecureCookies,
		SameSite: http.SameSiteStrictMode,
	}
	return &SessionManager{scs: sm}, nil
}

// CreateSession signs user into the request's session under a fresh token.
func (sm *SessionManager) CreateSession(r *http.Request, user *entities.User) error {
	ctx := r.Context()
	if err := sm.scs.RenewToken(ctx); err != nil {
		return err
	}
	sm.scs.Put(ctx, sessionUserKey, int(user.ID))
	sm.scs.Put(ctx, sessionEmailKey, user.Email)
	return nil
}

func (sm *SessionManager) DestroySession(r *http.Request) error {
	return sm.scs.Destroy(r.Context())
}

// GetUserID returns the signed-in user id, or 0.
func (sm *SessionManager) GetUserID(r *http.Request) uint {
	return uint(sm.scs.GetInt(r.Context(), sessionUserKey))
}

// Matches reports whether the session was opened for user as it is now. A
// session outlives neither an email change nor a recreated account.
func (sm *SessionManager) Matches(r *http.Request, user *entities.User) bool {
	return sm.GetUserID(r) == user.ID && sm.scs.GetString(r.Context(), sessionEmailKey) == user.Email
}

// SessionLoadSave loads the session named by the request cookie and writes
// it back just before the response headers are sent. Every other session
// operation must run after it.
func (sm *SessionManager) SessionLoadSave() gin.HandlerFunc {
	return func(c *gin.Context) {
		var token string
		if cookie, err := c.Request.Cookie(sm.scs.Cookie.Name); err == nil {
			token = cookie.Value
		}

		ctx, err := sm.scs.Load(c.Request.Context(), token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "failed to load session"})
			return
		}
		c.Request = c.Request.WithContext(ctx)

		w := &sessionWriter{ResponseWriter: c.Writer, sm: sm, req: c.Request}
		c.Writer = w
		c.Next()
		w.commit()
	}
}

// sessionWriter commits the session on the first header write, the last
// moment a cookie can still be set.
type sessionWriter struct {
	gin.ResponseWriter
	sm   *SessionManager
	req  *http.Request
	once sync.Once
}

func (w *sessionWriter) commit() {
	w.once.Do(func() {
		ctx := w.req.Context()
		switch w.sm.scs.Status(ctx) {
		case scs.Modified:
			token, expiry, err := w.sm.scs.Commit(ctx)
			if err != nil {
				return
			}
			w.sm.scs.WriteSessionCookie(ctx, w.ResponseWriter, token, expiry)
		case scs.Destroyed:
			w.sm.scs.WriteSessionCookie(ctx, w.ResponseWriter, "", time.Time{})
		}
	})
}

func (w *sessionWriter) WriteHeader(code int) {
	w.commit()
	w.ResponseWriter.WriteHeader(code)
}

func (w *sessionWriter) WriteHeaderNow() {
	w.commit()
	w.ResponseWriter.WriteHeaderNow()
}

func (w *sessionWriter) Write(b []byte) (int, error) {
	w.commit()
	return w.ResponseWriter.Write(b)
}

func (w *sessionWriter) WriteString(s string) (int, error) {
	w.commit()
	return w.ResponseWriter.WriteString(s)
}
