package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// JWTClaims represents parsed JWT claims
type JWTClaims struct {
	Subject   string
	Email     string
	Issuer    string
	ExpiresAt time.Time
	IssuedAt  time.Time
}

// ParseJWT parses JWT WITHOUT validation (for claim inspection only).
// The API verifies signatures; the client only needs to know when a token
// stops being useful.
func ParseJWT(tokenString string) (*JWTClaims, error) {
	parser := jwt.NewParser(jwt.WithoutClaimsValidation())
	token, _, err := parser.ParseUnverified(tokenString, jwt.MapClaims{})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTokenMalformed, err)
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, fmt.Errorf("%w: unexpected claims type", ErrTokenMalformed)
	}

	jwtClaims := &JWTClaims{}

	if sub, ok := claims["sub"].(string); ok {
		jwtClaims.Subject = sub
	}
	if email, ok := claims["email"].(string); ok {
		jwtClaims.Email = email
	}
	if iss, ok := claims["iss"].(string); ok {
		jwtClaims.Issuer = iss
	}

	exp, err := claims.GetExpirationTime()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTokenMalformed, err)
	}
	if exp != nil {
		jwtClaims.ExpiresAt = exp.Time
	}

	if iat, err := claims.GetIssuedAt(); err == nil && iat != nil {
		jwtClaims.IssuedAt = iat.Time
	}

	return jwtClaims, nil
}

// DecodeExpiry returns the exp claim of a token. A token without exp is
// malformed: the lifecycle manager cannot schedule around it.
func DecodeExpiry(tokenString string) (time.Time, error) {
	if tokenString == "" {
		return time.Time{}, fmt.Errorf("%w: empty token", ErrTokenMalformed)
	}

	claims, err := ParseJWT(tokenString)
	if err != nil {
		return time.Time{}, err
	}
	if claims.ExpiresAt.IsZero() {
		return time.Time{}, fmt.Errorf("%w: missing exp claim", ErrTokenMalformed)
	}

	return claims.ExpiresAt, nil
}

// IsExpired reports whether the token is expired at now. Undecodable
// tokens count as expired.
func IsExpired(tokenString string, now time.Time) bool {
	exp, err := DecodeExpiry(tokenString)
	if err != nil {
		return true
	}
	return !exp.After(now)
}
