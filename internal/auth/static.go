package auth

import (
	"context"
	"fmt"

	"github.com/BurntSushi/toml"
	"golang.org/x/crypto/bcrypt"
)

// StaticVerifier resolves tokens against a local table of bcrypt hashes.
// Development and test use; production points at an HTTPVerifier.
type StaticVerifier struct {
	users []StaticUser
}

// StaticUser is one entry of the token file.
type StaticUser struct {
	Sub       string `toml:"sub"`
	Name      string `toml:"name"`
	Picture   string `toml:"picture"`
	TokenHash string `toml:"token_hash"`
}

type staticTokenFile struct {
	Users []StaticUser `toml:"users"`
}

// NewStaticVerifier builds a verifier over the given users.
func NewStaticVerifier(users []StaticUser) *StaticVerifier {
	return &StaticVerifier{users: users}
}

// LoadStaticVerifier reads a TOML token file.
func LoadStaticVerifier(path string) (*StaticVerifier, error) {
	var file staticTokenFile
	if _, err := toml.DecodeFile(path, &file); err != nil {
		return nil, fmt.Errorf("load token file %s: %w", path, err)
	}
	return NewStaticVerifier(file.Users), nil
}

func (v *StaticVerifier) Verify(ctx context.Context, token string) (*UserInfo, error) {
	for _, u := range v.users {
		if err := bcrypt.CompareHashAndPassword([]byte(u.TokenHash), []byte(token)); err == nil {
			return &UserInfo{Sub: u.Sub, Name: u.Name, Picture: u.Picture}, nil
		}
	}
	return nil, ErrInvalidToken
}

// HashToken produces a bcrypt hash suitable for a token file entry.
func HashToken(token string) (string, error) {
	raw, err := bcrypt.GenerateFromPassword([]byte(token), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hash token: %w", err)
	}
	return string(raw), nil
}
