// auth/auth.go
package auth

import (
	"errors"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// 账号认证本身属于外部系统，这里只做接入层的身份提取：
// 优先解析 Bearer token 里的 account 声明，允许游客时回退为查询参数或随机游客号。

var (
	ErrNoCredentials = errors.New("no credentials supplied")
	ErrInvalidToken  = errors.New("invalid token")
)

type Authenticator struct {
	secret     []byte
	allowGuest bool
}

func NewAuthenticator(jwtSecret string, allowGuest bool) *Authenticator {
	return &Authenticator{secret: []byte(jwtSecret), allowGuest: allowGuest}
}

// Authenticate 从升级请求中提取调用方账号
func (a *Authenticator) Authenticate(r *http.Request) (string, error) {
	if token := bearerToken(r); token != "" {
		return a.parseAccount(token)
	}

	if !a.allowGuest {
		return "", ErrNoCredentials
	}

	if account := r.URL.Query().Get("account"); account != "" {
		return "guest:" + account, nil
	}
	return "guest:" + uuid.New().String(), nil
}

func (a *Authenticator) parseAccount(tokenString string) (string, error) {
	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return a.secret, nil
	})
	if err != nil || !token.Valid {
		return "", ErrInvalidToken
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return "", ErrInvalidToken
	}

	if account, ok := claims["account"].(string); ok && account != "" {
		return account, nil
	}
	if sub, err := claims.GetSubject(); err == nil && sub != "" {
		return sub, nil
	}
	return "", ErrInvalidToken
}

func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if strings.HasPrefix(header, "Bearer ") {
		return strings.TrimPrefix(header, "Bearer ")
	}
	// websocket 握手不便携带自定义头，兼容查询参数
	return r.URL.Query().Get("token")
}
