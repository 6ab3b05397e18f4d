package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
	qrcode "github.com/skip2/go-qrcode"
)

// TOTPEngine handles time-based one-time password generation and validation
type TOTPEngine struct {
	issuer string // Issuer name shown in authenticator apps
}

// SetupMaterial is everything a client needs to enroll an authenticator app
type SetupMaterial struct {
	Secret    string `json:"secret"`  // base32, shown once during setup
	URL       string `json:"otpauth"` // otpauth:// provisioning URL
	QRDataURL string `json:"qr_code"` // PNG data URL of the provisioning QR
}

// NewTOTPEngine creates a new TOTP engine
func NewTOTPEngine(issuer string) *TOTPEngine {
	return &TOTPEngine{issuer: issuer}
}

// GenerateSecret creates a fresh TOTP secret for the given account along with
// its provisioning URL and QR code
func (e *TOTPEngine) GenerateSecret(accountEmail string) (*SetupMaterial, error) {
	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      e.issuer,
		AccountName: accountEmail,
		SecretSize:  32,
		Period:      30,
		Algorithm:   otp.AlgorithmSHA1,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to generate TOTP key: %w", err)
	}

	qr, err := qrcode.New(key.URL(), qrcode.Medium)
	if err != nil {
		return nil, fmt.Errorf("failed to create QR code: %w", err)
	}

	qrImage, err := qr.PNG(200)
	if err != nil {
		return nil, fmt.Errorf("failed to encode QR code: %w", err)
	}

	return &SetupMaterial{
		Secret:    key.Secret(),
		URL:       key.URL(),
		QRDataURL: "data:image/png;base64," + base64.StdEncoding.EncodeToString(qrImage),
	}, nil
}

// ValidateCode checks a 6-digit code against the stored base32 secret.
// Allows ±1 time step for clock drift between the server and the device.
func (e *TOTPEngine) ValidateCode(secret, code string) bool {
	valid, err := totp.ValidateCustom(code, secret, time.Now(), totp.ValidateOpts{
		Period:    30,
		Skew:      1,
		Digits:    otp.DigitsSix,
		Algorithm: otp.AlgorithmSHA1,
	})
	if err != nil {
		return false
	}
	return valid
}

// GenerateBackupCodes generates N random single-use recovery codes.
// Format: 8 characters from a charset without ambiguous glyphs (0/O, 1/I/L).
func (e *TOTPEngine) GenerateBackupCodes(count int) ([]string, error) {
	const charset = "23456789ABCDEFGHJKMNPQRSTUVWXYZ"

	codes := make([]string, count)
	buf := make([]byte, 8)
	for i := 0; i < count; i++ {
		if _, err := rand.Read(buf); err != nil {
			return nil, fmt.Errorf("failed to generate backup code: %w", err)
		}
		code := make([]byte, 8)
		for j, b := range buf {
			code[j] = charset[int(b)%len(charset)]
		}
		codes[i] = string(code)
	}

	return codes, nil
}

// HashBackupCode returns the hex SHA-256 digest of a backup code. Only
// digests are stored; the plaintext codes are shown once at enablement.
func HashBackupCode(code string) string {
	sum := sha256.Sum256([]byte(code))
	return fmt.Sprintf("%x", sum)
}

// MatchBackupCode compares a candidate code against a stored digest in
// constant time
func MatchBackupCode(code, storedHash string) bool {
	candidate := HashBackupCode(code)
	return subtle.ConstantTimeCompare([]byte(candidate), []byte(storedHash)) == 1
}
