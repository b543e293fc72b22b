// Stream signature verification

package main

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const STREAM_SIGN_SUBJECT = "stream_sign"

// Creates a signature token allowing a client to
// publish or play the given stream path
// path - The stream path
// secret - The shared secret
// duration - Validity period
// Returns the token (base 64)
func MakeStreamSign(path string, secret string, duration time.Duration) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":  STREAM_SIGN_SUBJECT,
		"path": path,
		"exp":  time.Now().Add(duration).Unix(),
	})

	return token.SignedString([]byte(secret))
}

// Verifies the signature provided by a client via
// the 'sign' query arg of the stream name
// sign - The provided signature
// path - The stream path being accessed
// secret - The shared secret
// Returns true only if the signature is valid for the path
func verifyStreamSign(sign string, path string, secret string) bool {
	if sign == "" || secret == "" {
		return false
	}

	token, err := jwt.Parse(sign, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return []byte(secret), nil
	})

	if err != nil || !token.Valid {
		return false
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return false
	}

	signedPath, ok := claims["path"].(string)
	if !ok {
		return false
	}

	return signedPath == path
}
