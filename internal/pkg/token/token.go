package token

import (
	"errors"
	"fmt"
	"time"

	"github.com/dgrijalva/jwt-go"
)

var ErrInvalid = errors.New("token verification failed")

// Claims 访问令牌与刷新令牌共用的载荷
type Claims struct {
	jwt.StandardClaims
	UserName string `json:"name,omitempty"`
	Role     string `json:"role,omitempty"`
	Refresh  bool   `json:"refresh,omitempty"`
}

// Issuer 负责签发与校验 HS256 令牌
type Issuer struct {
	Secret []byte
	Issuer string
	Now    func() time.Time
}

func NewIssuer(secret, issuer string) *Issuer {
	return &Issuer{Secret: []byte(secret), Issuer: issuer, Now: time.Now}
}

// Sign 以 ttl 为有效期签发 claims
func (i *Issuer) Sign(claims Claims, ttl time.Duration) (string, error) {
	now := i.Now()
	claims.IssuedAt = now.Unix()
	claims.ExpiresAt = now.Add(ttl).Unix()
	if claims.Issuer == "" {
		claims.Issuer = i.Issuer
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, &claims).SignedString(i.Secret)
}

// Parse 校验签名与有效期并返回 claims
func (i *Issuer) Parse(tokenString string) (*Claims, error) {
	claims := &Claims{}
	tok, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return i.Secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	if !tok.Valid {
		return nil, ErrInvalid
	}
	if i.Issuer != "" && !claims.VerifyIssuer(i.Issuer, true) {
		return nil, fmt.Errorf("%w: issuer mismatch", ErrInvalid)
	}
	return claims, nil
}
