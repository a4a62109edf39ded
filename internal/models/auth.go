package models

import "github.com/golang-jwt/jwt/v5"

// TokenClaims are the JWT claims carried by operator API tokens
type TokenClaims struct {
	SubjectID string `json:"subject_id"`
	Role      string `json:"role"`
	jwt.RegisteredClaims
}

const RoleAdmin = "admin"
