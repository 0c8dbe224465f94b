package rpc

import (
	"errors"
	"net/http"
	"strings"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
)

const jwtClockSkew = 2 * time.Minute

// authenticator checks HMAC-signed bearer tokens on write methods. With no
// secret configured every request passes.
type authenticator struct {
	secret []byte
	issuer string
}

func newAuthenticator(secret, issuer string) *authenticator {
	return &authenticator{secret: []byte(strings.TrimSpace(secret)), issuer: strings.TrimSpace(issuer)}
}

func (a *authenticator) enabled() bool { return a != nil && len(a.secret) > 0 }

func (a *authenticator) check(r *http.Request) *RPCError {
	if !a.enabled() {
		return nil
	}
	raw := extractBearer(r.Header.Get("Authorization"))
	if raw == "" {
		return &RPCError{Code: codeUnauthorized, Message: "missing bearer token"}
	}
	opts := []jwt.ParserOption{
		jwt.WithLeeway(jwtClockSkew),
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg(), jwt.SigningMethodHS384.Alg(), jwt.SigningMethodHS512.Alg()}),
	}
	if a.issuer != "" {
		opts = append(opts, jwt.WithIssuer(a.issuer))
	}
	token, err := jwt.Parse(raw, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return a.secret, nil
	}, opts...)
	if err != nil || !token.Valid {
		return &RPCError{Code: codeUnauthorized, Message: "invalid bearer token"}
	}
	return nil
}

func extractBearer(header string) string {
	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}
