package auth

import "github.com/golang-jwt/jwt/v5"

// Claims represents the token payload issued by the identity service.
// The subject carries the stable account id.
type Claims struct {
	jwt.RegisteredClaims
	Username string `json:"username"`
	Role     string `json:"role"`
}
