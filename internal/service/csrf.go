package service

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"
	"time"
)

// CSRF mints and checks per-user tokens of the form
// "<unix seconds>.<hex hmac-sha256(secret, "user_id:unix seconds")>".
type CSRF struct {
	secret []byte
	maxAge time.Duration
	now    func() time.Time
}

func NewCSRF(secret []byte, maxAge time.Duration, now func() time.Time) *CSRF {
	return &CSRF{secret: secret, maxAge: maxAge, now: now}
}

func (c *CSRF) Generate(userID uint64) string {
	ts := strconv.FormatInt(c.now().Unix(), 10)
	return ts + "." + c.sign(userID, ts)
}

// Validate reports whether token was minted for userID within maxAge.
func (c *CSRF) Validate(token string, userID uint64) bool {
	ts, sig, ok := strings.Cut(token, ".")
	if !ok {
		return false
	}
	issued, err := strconv.ParseInt(ts, 10, 64)
	if err != nil {
		return false
	}
	if age := c.now().Unix() - issued; age < 0 || age > int64(c.maxAge/time.Second) {
		return false
	}
	return hmac.Equal([]byte(sig), []byte(c.sign(userID, ts)))
}

func (c *CSRF) sign(userID uint64, ts string) string {
	mac := hmac.New(sha256.New, c.secret)
	mac.Write([]byte(strconv.FormatUint(userID, 10) + ":" + ts))
	return hex.EncodeToString(mac.Sum(nil))
}

// MaxAge is how long a minted token stays valid.
func (c *CSRF) MaxAge() time.Duration { return c.maxAge }
