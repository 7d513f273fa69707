package auth

import (
	"crypto/sha256"
	"net/http"

	"github.com/gorilla/sessions"
)

// Store is the global session store for the operator console.
// It carries the logged-in operator's identity between requests for
// browser clients that do not attach a bearer token.
var Store *sessions.CookieStore

// SessionName is the name of the operator session cookie.
const SessionName = "intake-session"

// Session value keys.
const (
	SessionKeyUserID      = "user_id"
	SessionKeyEmail       = "email"
	SessionKeyRole        = "role"
	SessionKeyDisplayName = "display_name"
)

// InitSessionStore initializes the cookie-based session store for the
// operator console.
//
// The secret parameter is used to sign session cookies. It can be any
// passphrase - it will be SHA-256 hashed to derive a 32-byte key.
// The secret must be consistent across server restarts and multiple
// servers in a load-balanced deployment.
//
// maxAgeSeconds should match the operator token TTL so both credentials
// expire together.
//
// Security settings:
// - HttpOnly: true (inaccessible to JavaScript)
// - Secure: true (HTTPS only in production)
// - SameSite: Strict (prevents CSRF)
func InitSessionStore(secret string, maxAgeSeconds int) {
	// Hash the secret to get a consistent 32-byte key
	key := sha256.Sum256([]byte(secret))

	Store = sessions.NewCookieStore(key[:])
	Store.Options = &sessions.Options{
		Path:     "/",
		MaxAge:   maxAgeSeconds,
		HttpOnly: true,
		Secure:   true, // HTTPS only
		SameSite: http.SameSiteStrictMode,
	}
}

// GetSession retrieves the operator session from the request.
// Creates a new session if one doesn't exist.
func GetSession(r *http.Request) (*sessions.Session, error) {
	return Store.Get(r, SessionName)
}

// SaveSession saves the session to the response.
func SaveSession(r *http.Request, w http.ResponseWriter, session *sessions.Session) error {
	return session.Save(r, w)
}

// SetOperator writes the logged-in operator's identity into the session.
func SetOperator(session *sessions.Session, userID, email, role, displayName string) {
	session.Values[SessionKeyUserID] = userID
	session.Values[SessionKeyEmail] = email
	session.Values[SessionKeyRole] = role
	session.Values[SessionKeyDisplayName] = displayName
}

// ClearOperator removes the operator's identity from the session.
// Called on logout.
func ClearOperator(session *sessions.Session) {
	delete(session.Values, SessionKeyUserID)
	delete(session.Values, SessionKeyEmail)
	delete(session.Values, SessionKeyRole)
	delete(session.Values, SessionKeyDisplayName)
}

// OperatorFromSession reconstructs claims from a session written at login.
// Returns nil when the session carries no operator.
func OperatorFromSession(session *sessions.Session) *Claims {
	userID, ok := session.Values[SessionKeyUserID].(string)
	if !ok || userID == "" {
		return nil
	}

	claims := &Claims{}
	claims.Subject = userID
	claims.Issuer = LocalIssuer
	claims.Email, _ = session.Values[SessionKeyEmail].(string)
	claims.Role, _ = session.Values[SessionKeyRole].(string)
	claims.DisplayName, _ = session.Values[SessionKeyDisplayName].(string)
	return claims
}
