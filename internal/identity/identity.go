// Package identity turns bearer tokens minted by the upstream identity
// provider into occupants. Members carry their id in sub; verified guests
// carry kind=guest, their display name and the verification record id.
package identity

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/kirinyoku/openmic/internal/domain"
)

const kindGuest = "guest"

var ErrUnauthenticated = errors.New("unauthenticated")

type Claims struct {
	Kind           string `json:"kind,omitempty"`
	Name           string `json:"name,omitempty"`
	VerificationID string `json:"vid,omitempty"`
	jwt.RegisteredClaims
}

type Verifier struct {
	secret []byte
	parser *jwt.Parser
	now    func() time.Time
}

func NewVerifier(secret string) *Verifier {
	return &Verifier{
		secret: []byte(secret),
		parser: jwt.NewParser(
			jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
			jwt.WithExpirationRequired(),
		),
		now: time.Now,
	}
}

// Verify checks the signature and expiry of raw and returns the occupant it
// names. Every failure wraps ErrUnauthenticated.
func (v *Verifier) Verify(raw string) (domain.Occupant, error) {
	const op = "identity.Verifier.Verify"

	var claims Claims
	_, err := v.parser.ParseWithClaims(raw, &claims, func(*jwt.Token) (any, error) {
		return v.secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("%s:%w: %v", op, ErrUnauthenticated, err)
	}

	if claims.Kind == kindGuest {
		vid, err := uuid.Parse(claims.VerificationID)
		if err != nil || claims.Name == "" {
			return nil, fmt.Errorf("%s:%w: malformed guest token", op, ErrUnauthenticated)
		}
		return domain.Guest{Name: claims.Name, VerificationID: vid}, nil
	}

	id, err := strconv.ParseInt(claims.Subject, 10, 64)
	if err != nil || id <= 0 {
		return nil, fmt.Errorf("%s:%w: bad subject", op, ErrUnauthenticated)
	}

	return domain.Member{ID: id}, nil
}

// IssueMember signs a member token. The provider normally does this; it is
// kept here for local runs and tests.
func (v *Verifier) IssueMember(memberID int64, ttl time.Duration) (string, error) {
	return v.sign(Claims{
		RegisteredClaims: v.registered(strconv.FormatInt(memberID, 10), ttl),
	})
}

func (v *Verifier) IssueGuest(name string, verificationID uuid.UUID, ttl time.Duration) (string, error) {
	return v.sign(Claims{
		Kind:             kindGuest,
		Name:             name,
		VerificationID:   verificationID.String(),
		RegisteredClaims: v.registered("guest:"+verificationID.String(), ttl),
	})
}

func (v *Verifier) registered(sub string, ttl time.Duration) jwt.RegisteredClaims {
	now := v.now().UTC()
	return jwt.RegisteredClaims{
		Subject:   sub,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
}

func (v *Verifier) sign(c Claims) (string, error) {
	return jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString(v.secret)
}
