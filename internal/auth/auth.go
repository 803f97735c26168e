// Package auth checks login credentials against a fixed identity table.
//
// Passwords are kept only as bcrypt hashes.  Plaintext entries supplied
// at construction (the built-in defaults, or a users file written by
// hand) are hashed once up front; entries that already carry a bcrypt
// prefix are stored as given, so a users file can be produced with
// --hash-password.
package auth

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

// DefaultCost is the bcrypt cost used for plaintext entries.
const DefaultCost = bcrypt.DefaultCost

// Validator answers credential checks.  It is immutable after
// construction and safe for concurrent use.
type Validator struct {
	hashes map[string][]byte // lowercased username → bcrypt hash
}

// DefaultUsers returns the built-in identity table.
func DefaultUsers() map[string]string {
	return map[string]string{
		"admin": "admin123",
		"user":  "password123",
		"test":  "test123",
	}
}

// NewValidator builds a Validator from username → password (or bcrypt
// hash) pairs, hashing plaintext entries with the given cost.  A cost
// of 0 selects DefaultCost.
func NewValidator(users map[string]string, cost int) (*Validator, error) {
	if cost == 0 {
		cost = DefaultCost
	}
	v := &Validator{hashes: make(map[string][]byte, len(users))}
	for name, secret := range users {
		key := strings.ToLower(strings.TrimSpace(name))
		if key == "" {
			continue
		}
		if IsHash(secret) {
			v.hashes[key] = []byte(secret)
			continue
		}
		h, err := bcrypt.GenerateFromPassword([]byte(secret), cost)
		if err != nil {
			return nil, fmt.Errorf("hash password for %q: %w", name, err)
		}
		v.hashes[key] = h
	}
	return v, nil
}

// Validate reports whether password is correct for username.  Blank
// inputs and unknown users fail without touching bcrypt.
func (v *Validator) Validate(username, password string) bool {
	if strings.TrimSpace(username) == "" || strings.TrimSpace(password) == "" {
		return false
	}
	h, ok := v.hashes[strings.ToLower(username)]
	if !ok {
		return false
	}
	return bcrypt.CompareHashAndPassword(h, []byte(password)) == nil
}

// UserExists reports whether username is in the table.
func (v *Validator) UserExists(username string) bool {
	if strings.TrimSpace(username) == "" {
		return false
	}
	_, ok := v.hashes[strings.ToLower(username)]
	return ok
}

// Len returns the number of known users.
func (v *Validator) Len() int { return len(v.hashes) }

// IsHash reports whether s looks like a bcrypt hash.
func IsHash(s string) bool {
	for _, p := range []string{"$2a$", "$2b$", "$2y$"} {
		if strings.HasPrefix(s, p) {
			return true
		}
	}
	return false
}

// HashPassword returns the bcrypt hash of password.
func HashPassword(password string, cost int) (string, error) {
	if password == "" {
		return "", fmt.Errorf("empty password")
	}
	if cost == 0 {
		cost = DefaultCost
	}
	h, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	if err != nil {
		return "", err
	}
	return string(h), nil
}

// LoadUsersFile reads "user:password" lines.  The password may be a
// bcrypt hash.  Blank lines and lines starting with # are skipped.
func LoadUsersFile(path string) (map[string]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open users file: %w", err)
	}
	defer f.Close()

	users := make(map[string]string)
	sc := bufio.NewScanner(f)
	lineNo := 0
	for sc.Scan() {
		lineNo++
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		name, secret, ok := strings.Cut(line, ":")
		name = strings.TrimSpace(name)
		if !ok || name == "" || secret == "" {
			return nil, fmt.Errorf("%s:%d: want user:password", path, lineNo)
		}
		users[name] = secret
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read users file: %w", err)
	}
	if len(users) == 0 {
		return nil, fmt.Errorf("%s: no users defined", path)
	}
	return users, nil
}
