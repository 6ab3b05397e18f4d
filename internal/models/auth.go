package models

import "github.com/golang-jwt/jwt/v5"

// AccessClaims are the claims embedded in a signed access token. Access
// tokens are stateless: verification is signature + expiry, no store lookup.
type AccessClaims struct {
	UserID string `json:"uid"`
	Role   string `json:"role"`
	jwt.RegisteredClaims
}
