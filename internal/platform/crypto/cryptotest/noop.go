// Package cryptotest holds crypto.Service doubles for tests and local development.
package cryptotest

// PlainService stores values unencrypted. Never used when SETTINGS_ENCRYPTION_KEY is set.
type PlainService struct{}

func (PlainService) Seal(_, plaintext string) (string, error)  { return plaintext, nil }
func (PlainService) Open(_, ciphertext string) (string, error) { return ciphertext, nil }
