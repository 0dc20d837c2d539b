package jwttoken

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	id "electa/pkg/domain"
	dErrors "electa/pkg/domain-errors"
)

// MemberClaims identifies the member a bearer token was issued to. Tokens are
// minted by the surrounding identity service; this package only needs to
// verify them, plus issue them for local development and tests.
type MemberClaims struct {
	MemberID string `json:"member_id"`
	jwt.RegisteredClaims
}

// JWTService verifies HMAC-signed member tokens.
type JWTService struct {
	signingKey []byte
	issuer     string
	audience   string
}

func NewJWTService(signingKey string, issuer string, audience string) *JWTService {
	return &JWTService{
		signingKey: []byte(signingKey),
		issuer:     issuer,
		audience:   audience,
	}
}

// IssueMemberToken signs a token for memberID.
func (s *JWTService) IssueMemberToken(memberID id.MemberID, expiresIn time.Duration) (string, error) {
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, MemberClaims{
		MemberID: memberID.String(),
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(expiresIn)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    s.issuer,
			Audience:  []string{s.audience},
			Subject:   memberID.String(),
			ID:        uuid.NewString(),
		},
	})
	return token.SignedString(s.signingKey)
}

func (s *JWTService) ValidateToken(tokenString string) (*MemberClaims, error) {
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if s.issuer != "" {
		opts = append(opts, jwt.WithIssuer(s.issuer))
	}
	if s.audience != "" {
		opts = append(opts, jwt.WithAudience(s.audience))
	}

	parsed, err := jwt.ParseWithClaims(tokenString, &MemberClaims{}, func(token *jwt.Token) (interface{}, error) {
		return s.signingKey, nil
	}, opts...)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, dErrors.New(dErrors.CodeUnauthorized, "token has expired")
		}
		return nil, dErrors.New(dErrors.CodeUnauthorized, "invalid token")
	}

	claims, ok := parsed.Claims.(*MemberClaims)
	if !ok || !parsed.Valid {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "invalid token claims")
	}
	return claims, nil
}

// ValidateMemberToken satisfies the member auth middleware.
func (s *JWTService) ValidateMemberToken(tokenString string) (id.MemberID, error) {
	claims, err := s.ValidateToken(tokenString)
	if err != nil {
		return id.MemberID{}, err
	}
	memberID, err := id.ParseMemberID(claims.MemberID)
	if err != nil {
		return id.MemberID{}, dErrors.New(dErrors.CodeUnauthorized, "invalid token claims")
	}
	return memberID, nil
}
