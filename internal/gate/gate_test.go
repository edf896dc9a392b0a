package gate

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/onsi/ginkgo/v2"
	"github.com/onsi/gomega"

	"github.com/frahmantamala/dashboard-management/internal"
	"github.com/frahmantamala/dashboard-management/internal/audit"
	"github.com/frahmantamala/dashboard-management/internal/token"
)

func TestGate(t *testing.T) {
	gomega.RegisterFailHandler(ginkgo.Fail)
	ginkgo.RunSpecs(t, "Gate Module Suite")
}

type stubValidator struct {
	claims  *token.Claims
	failure error
}

func (s *stubValidator) ValidateAccess(_ string) (*token.Claims, error) {
	if s.failure != nil {
		return nil, s.failure
	}
	return s.claims, nil
}

type stubResolver struct {
	allowed map[string]bool
	perms   []string
}

func (s *stubResolver) HasPermission(_ context.Context, _ int64, permissionName string) (bool, error) {
	return s.allowed[permissionName], nil
}

func (s *stubResolver) PermissionsForUser(_ context.Context, _ int64) ([]string, error) {
	return s.perms, nil
}

type captureRecorder struct {
	entries []*audit.Entry
	failure error
}

func (c *captureRecorder) Record(_ context.Context, entry *audit.Entry) error {
	if c.failure != nil {
		return c.failure
	}
	c.entries = append(c.entries, entry)
	return nil
}

var _ = ginkgo.Describe("Gate", func() {
	var (
		g         *Gate
		validator *stubValidator
		resolver  *stubResolver
		recorder  *captureRecorder
		ctx       context.Context
	)

	ginkgo.BeforeEach(func() {
		ctx = context.Background()
		validator = &stubValidator{
			claims: &token.Claims{
				Username:  "alice",
				IsAdmin:   false,
				TokenType: token.TokenTypeAccess,
				RegisteredClaims: jwt.RegisteredClaims{
					Subject:   "1",
					ExpiresAt: jwt.NewNumericDate(time.Now().Add(30 * time.Minute)),
				},
			},
		}
		resolver = &stubResolver{
			allowed: map[string]bool{"Dashboard.Read": true},
			perms:   []string{"Dashboard.Read"},
		}
		recorder = &captureRecorder{}
		logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
		g = NewGate(validator, resolver, recorder, logger)
	})

	ginkgo.Context("with a valid token and no required permission", func() {
		ginkgo.It("should return the resolved identity", func() {
			identity, err := g.Authorize(ctx, "token", "", "10.0.0.1")

			gomega.Expect(err).ToNot(gomega.HaveOccurred())
			gomega.Expect(identity.UserID).To(gomega.Equal(int64(1)))
			gomega.Expect(identity.Username).To(gomega.Equal("alice"))
			gomega.Expect(identity.Permissions).To(gomega.ConsistOf("Dashboard.Read"))
		})
	})

	ginkgo.Context("with a held permission", func() {
		ginkgo.It("should authorize and record nothing", func() {
			_, err := g.Authorize(ctx, "token", "Dashboard.Read", "10.0.0.1")

			gomega.Expect(err).ToNot(gomega.HaveOccurred())
			gomega.Expect(recorder.entries).To(gomega.BeEmpty())
		})
	})

	ginkgo.Context("with a missing permission", func() {
		ginkgo.It("should deny and audit the denial", func() {
			_, err := g.Authorize(ctx, "token", "Dashboard.Delete", "10.0.0.1")

			gomega.Expect(errors.Is(err, internal.ErrInsufficientPermission)).To(gomega.BeTrue())
			gomega.Expect(recorder.entries).To(gomega.HaveLen(1))
			gomega.Expect(recorder.entries[0].Operation).To(gomega.Equal(audit.OpAccessDenied))
			gomega.Expect(recorder.entries[0].Actor).To(gomega.Equal("alice"))
		})

		ginkgo.It("should surface an audit failure instead of the denial", func() {
			recorder.failure = internal.ErrAuditWriteFailed

			_, err := g.Authorize(ctx, "token", "Dashboard.Delete", "10.0.0.1")

			gomega.Expect(errors.Is(err, internal.ErrAuditWriteFailed)).To(gomega.BeTrue())
		})
	})

	ginkgo.Context("with an invalid token", func() {
		ginkgo.It("should pass the validation error through", func() {
			validator.failure = internal.ErrTokenExpired

			_, err := g.Authorize(ctx, "token", "Dashboard.Read", "10.0.0.1")

			gomega.Expect(errors.Is(err, internal.ErrTokenExpired)).To(gomega.BeTrue())
		})
	})

	ginkgo.Context("with a token whose subject is not numeric", func() {
		ginkgo.It("should treat the token as malformed", func() {
			validator.claims.Subject = "not-a-number"

			_, err := g.Authorize(ctx, "token", "", "10.0.0.1")

			gomega.Expect(errors.Is(err, internal.ErrTokenMalformed)).To(gomega.BeTrue())
		})
	})
})
