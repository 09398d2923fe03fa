package httpapi

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/BearBump/CargoLedger/internal/models"
	"github.com/golang-jwt/jwt/v5"
	"github.com/pkg/errors"
)

// Claims is the bearer token payload. Session handling lives elsewhere;
// the API only reads the principal out of a signed token.
type Claims struct {
	Role            string   `json:"role"`
	Branch          string   `json:"branch,omitempty"`
	AllowedBranches []string `json:"allowed_branches,omitempty"`
	AllowedReports  []string `json:"allowed_reports,omitempty"`
	jwt.RegisteredClaims
}

type userCtxKey struct{}

func withUser(ctx context.Context, u *models.User) context.Context {
	return context.WithValue(ctx, userCtxKey{}, u)
}

// UserFrom returns the authenticated principal, or nil.
func UserFrom(ctx context.Context) *models.User {
	u, _ := ctx.Value(userCtxKey{}).(*models.User)
	return u
}

// MintToken signs an HS256 token for u.
func MintToken(secret []byte, u *models.User, ttl time.Duration) (string, error) {
	if len(secret) == 0 {
		return "", errors.New("jwt secret is empty")
	}
	now := time.Now().UTC()
	c := Claims{
		Role:   string(u.Role),
		Branch: string(u.HomeBranch),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:  u.ID,
			IssuedAt: jwt.NewNumericDate(now),
		},
	}
	if ttl > 0 {
		c.ExpiresAt = jwt.NewNumericDate(now.Add(ttl))
	}
	for _, b := range u.AllowedBranches {
		c.AllowedBranches = append(c.AllowedBranches, string(b))
	}
	for _, r := range u.AllowedReports {
		c.AllowedReports = append(c.AllowedReports, string(r))
	}
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString(secret)
	return s, errors.Wrap(err, "sign token")
}

func parseToken(secret []byte, raw string) (*models.User, error) {
	var c Claims
	_, err := jwt.ParseWithClaims(raw, &c, func(t *jwt.Token) (any, error) {
		return secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, errors.Wrap(models.ErrUnauthenticated, err.Error())
	}
	if c.Subject == "" {
		return nil, errors.Wrap(models.ErrUnauthenticated, "token has no subject")
	}

	// claims use the same spelling the handlers normalize paths and queries to
	u := &models.User{ID: c.Subject, HomeBranch: branchCode(c.Branch)}
	switch models.Role(strings.ToUpper(c.Role)) {
	case models.RoleSuperAdmin:
		u.Role = models.RoleSuperAdmin
	case models.RoleBranch:
		u.Role = models.RoleBranch
	default:
		return nil, errors.Wrapf(models.ErrUnauthenticated, "unknown role %q", c.Role)
	}
	for _, b := range c.AllowedBranches {
		if id := branchCode(b); id != "" {
			u.AllowedBranches = append(u.AllowedBranches, id)
		}
	}
	for _, r := range c.AllowedReports {
		if rt := strings.ToLower(strings.TrimSpace(r)); rt != "" {
			u.AllowedReports = append(u.AllowedReports, models.ReportType(rt))
		}
	}
	return u, nil
}

func branchCode(raw string) models.BranchID {
	return models.BranchID(strings.ToUpper(strings.TrimSpace(raw)))
}

// Authenticate rejects requests without a valid bearer token with 401.
func Authenticate(secret []byte) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := r.Header.Get("Authorization")
			raw, ok := strings.CutPrefix(h, "Bearer ")
			if !ok || strings.TrimSpace(raw) == "" {
				writeError(w, r, errors.Wrap(models.ErrUnauthenticated, "missing bearer token"))
				return
			}
			u, err := parseToken(secret, strings.TrimSpace(raw))
			if err != nil {
				writeError(w, r, err)
				return
			}
			next.ServeHTTP(w, r.WithContext(withUser(r.Context(), u)))
		})
	}
}
