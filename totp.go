package stateauth

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/sha512"
	"crypto/subtle"
	"encoding/base32"
	"encoding/binary"
	"errors"
	"fmt"
	"hash"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const totpSecretBytes = 20

var totpEncoding = base32.StdEncoding.WithPadding(base32.NoPadding)

var errEmptySecret = errors.New("empty totp secret")

// TwoFactorVerifier generates TOTP secrets and verifies codes against a
// window of time steps around the current one (RFC 6238).
//
//	Docs: docs/two_factor.md
type TwoFactorVerifier struct {
	issuer    string
	digits    int
	period    int
	algorithm string
	clock     Clock
}

// NewTwoFactorVerifier builds a verifier from cfg. A nil clock uses the
// system time.
func NewTwoFactorVerifier(cfg TwoFactorConfig, clock Clock) *TwoFactorVerifier {
	if clock == nil {
		clock = systemClock{}
	}
	v := &TwoFactorVerifier{
		issuer:    cfg.Issuer,
		digits:    cfg.Digits,
		period:    cfg.Period,
		algorithm: strings.ToUpper(cfg.Algorithm),
		clock:     clock,
	}
	if v.digits == 0 {
		v.digits = 6
	}
	if v.period == 0 {
		v.period = 30
	}
	if v.algorithm == "" {
		v.algorithm = "SHA1"
	}
	return v
}

// GenerateSecret returns 20 random bytes encoded as unpadded base32, ready
// for display or a provisioning URI.
func (v *TwoFactorVerifier) GenerateSecret() (string, error) {
	raw := make([]byte, totpSecretBytes)
	if _, err := rand.Read(raw); err != nil {
		return "", err
	}
	return totpEncoding.EncodeToString(raw), nil
}

// ProvisionURI returns the otpauth:// URI authenticator apps scan.
func (v *TwoFactorVerifier) ProvisionURI(secret, account string) string {
	label := url.PathEscape(v.issuer + ":" + account)

	q := url.Values{}
	q.Set("secret", secret)
	q.Set("issuer", v.issuer)
	q.Set("period", strconv.Itoa(v.period))
	q.Set("digits", strconv.Itoa(v.digits))
	q.Set("algorithm", v.algorithm)

	return "otpauth://totp/" + label + "?" + q.Encode()
}

// Verify reports whether code matches the current step or any step within
// window on either side.
func (v *TwoFactorVerifier) Verify(secret, code string, window int) (bool, error) {
	ok, _, err := v.VerifyStep(secret, code, window)
	return ok, err
}

// VerifyStep is [TwoFactorVerifier.Verify] that also returns the matched
// time-step counter.
func (v *TwoFactorVerifier) VerifyStep(secret, code string, window int) (bool, int64, error) {
	key, err := decodeSecret(secret)
	if err != nil {
		return false, 0, err
	}

	trimmed := strings.TrimSpace(code)
	if len(trimmed) != v.digits || !isNumericString(trimmed) {
		return false, 0, nil
	}
	if window < 0 {
		window = 0
	}

	base := v.counterAt(v.clock.Now())
	for step := -window; step <= window; step++ {
		counter := base + int64(step)
		if counter < 0 {
			continue
		}
		generated, err := hotpCode(key, counter, v.digits, v.algorithm)
		if err != nil {
			return false, 0, err
		}
		if subtle.ConstantTimeCompare([]byte(generated), []byte(trimmed)) == 1 {
			return true, counter, nil
		}
	}
	return false, 0, nil
}

// CodeAt returns the code valid at t.
func (v *TwoFactorVerifier) CodeAt(secret string, t time.Time) (string, error) {
	key, err := decodeSecret(secret)
	if err != nil {
		return "", err
	}
	return hotpCode(key, v.counterAt(t), v.digits, v.algorithm)
}

// Period returns the step length.
func (v *TwoFactorVerifier) Period() time.Duration {
	return time.Duration(v.period) * time.Second
}

func (v *TwoFactorVerifier) counterAt(t time.Time) int64 {
	return t.Unix() / int64(v.period)
}

func decodeSecret(secret string) ([]byte, error) {
	normalized := strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(secret), " ", ""))
	normalized = strings.TrimRight(normalized, "=")
	if normalized == "" {
		return nil, errEmptySecret
	}
	key, err := totpEncoding.DecodeString(normalized)
	if err != nil {
		return nil, fmt.Errorf("invalid totp secret encoding: %w", err)
	}
	return key, nil
}

func hotpCode(secret []byte, counter int64, digits int, algorithm string) (string, error) {
	var msg [8]byte
	binary.BigEndian.PutUint64(msg[:], uint64(counter))

	hf, err := hmacFunc(algorithm)
	if err != nil {
		return "", err
	}
	mac := hmac.New(hf, secret)
	_, _ = mac.Write(msg[:])
	sum := mac.Sum(nil)

	offset := sum[len(sum)-1] & 0x0f
	bin := (int(sum[offset])&0x7f)<<24 |
		(int(sum[offset+1])&0xff)<<16 |
		(int(sum[offset+2])&0xff)<<8 |
		(int(sum[offset+3]) & 0xff)

	mod := 1
	for i := 0; i < digits; i++ {
		mod *= 10
	}
	return fmt.Sprintf("%0*d", digits, bin%mod), nil
}

func hmacFunc(algorithm string) (func() hash.Hash, error) {
	switch strings.ToUpper(algorithm) {
	case "", "SHA1":
		return sha1.New, nil
	case "SHA256":
		return sha256.New, nil
	case "SHA512":
		return sha512.New, nil
	default:
		return nil, errors.New("unsupported totp algorithm")
	}
}

func isNumericString(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return s != ""
}
