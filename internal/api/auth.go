package api

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/nerrad567/gray-logic-tcpconnected/internal/audit"
	"github.com/nerrad567/gray-logic-tcpconnected/internal/auth"
)

// ticketTTL is how long a WebSocket ticket stays redeemable.
const ticketTTL = 60 * time.Second

// ticketBytes is the number of random bytes in a WebSocket ticket.
const ticketBytes = 32

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type loginResponse struct {
	AccessToken string    `json:"access_token"`
	TokenType   string    `json:"token_type"`
	ExpiresIn   int       `json:"expires_in"`
	Role        auth.Role `json:"role"`
}

// handleLogin exchanges configured credentials for an access token.
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if req.Username == "" || req.Password == "" {
		writeBadRequest(w, "username and password are required")
		return
	}

	user, err := s.users.Authenticate(req.Username, req.Password)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidCredentials) {
			s.logger.Warn("login failed", "username", req.Username)
			s.recordAudit(r.Context(), audit.Entry{
				Action:   audit.ActionLoginFailed,
				Username: req.Username,
				Details:  map[string]any{"remote_addr": r.RemoteAddr},
			})
			writeUnauthorized(w, "invalid credentials")
			return
		}
		writeInternalError(w, "authentication failed")
		return
	}

	ttl := time.Duration(s.secCfg.JWT.AccessTokenTTL) * time.Minute
	token, expires, err := auth.GenerateAccessToken(user, s.secCfg.JWT.Secret, ttl)
	if err != nil {
		s.logger.Error("failed to sign access token", "error", err)
		writeInternalError(w, "failed to generate token")
		return
	}

	s.logger.Info("login", "username", user.Username, "role", user.Role)
	s.recordAudit(r.Context(), audit.Entry{
		Action:   audit.ActionLogin,
		Username: user.Username,
		Details:  map[string]any{"role": string(user.Role)},
	})
	writeJSON(w, http.StatusOK, loginResponse{
		AccessToken: token,
		TokenType:   "Bearer",
		ExpiresIn:   int(time.Until(expires).Round(time.Second).Seconds()),
		Role:        user.Role,
	})
}

// handleWSTicket issues a single-use ticket for opening a WebSocket, so
// the access token never appears in a URL.
func (s *Server) handleWSTicket(w http.ResponseWriter, r *http.Request) {
	claims := claimsFromContext(r.Context())
	if claims == nil {
		writeUnauthorized(w, "authentication required")
		return
	}

	ticket, err := s.tickets.issue(claims.Subject, claims.Role)
	if err != nil {
		writeInternalError(w, "failed to generate ticket")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"ticket":     ticket,
		"expires_in": int(ticketTTL.Seconds()),
	})
}

// ticketStore holds pending WebSocket tickets. Tickets are single-use and
// expire after ticketTTL.
type ticketStore struct {
	tickets map[string]ticketEntry
	mu      sync.Mutex
	now     func() time.Time
}

type ticketEntry struct {
	username  string
	role      auth.Role
	expiresAt time.Time
}

func newTicketStore() *ticketStore {
	return &ticketStore{
		tickets: make(map[string]ticketEntry),
		now:     time.Now,
	}
}

func (t *ticketStore) issue(username string, role auth.Role) (string, error) {
	b := make([]byte, ticketBytes)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	ticket := hex.EncodeToString(b)

	t.mu.Lock()
	t.tickets[ticket] = ticketEntry{
		username:  username,
		role:      role,
		expiresAt: t.now().Add(ticketTTL),
	}
	t.mu.Unlock()
	return ticket, nil
}

// redeem consumes ticket. The ticket is removed even when expired.
func (t *ticketStore) redeem(ticket string) (ticketEntry, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	entry, ok := t.tickets[ticket]
	if !ok {
		return ticketEntry{}, false
	}
	delete(t.tickets, ticket)
	return entry, t.now().Before(entry.expiresAt)
}

func (t *ticketStore) cleanExpired() {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	for ticket, entry := range t.tickets {
		if now.After(entry.expiresAt) {
			delete(t.tickets, ticket)
		}
	}
}

func (t *ticketStore) count() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.tickets)
}

// cleanLoop drops expired tickets every ticketTTL until ctx is done.
func (t *ticketStore) cleanLoop(ctx context.Context) {
	ticker := time.NewTicker(ticketTTL)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			t.cleanExpired()
		}
	}
}
