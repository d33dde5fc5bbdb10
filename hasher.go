package auth

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"crypto/sha512"
	"crypto/subtle"
	"encoding/base64"
	"strings"

	"github.com/goliatone/go-errors"
	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/crypto/pbkdf2"
)

// Algorithm selects the slow hash. The set is closed; the cost-mapping
// tables below are exhaustive over it.
type Algorithm string

const (
	AlgorithmArgon2id Algorithm = "argon2id"
	AlgorithmBcrypt   Algorithm = "bcrypt"
	AlgorithmPBKDF2   Algorithm = "pbkdf2-sha512"
)

// Level is the operator facing cost tier. Each algorithm maps a level to
// its own cost parameter so deployments pick a latency budget without
// changing call sites.
type Level string

const (
	LevelLow  Level = "LOW"
	LevelMid  Level = "MID"
	LevelHigh Level = "HIGH"
	LevelMax  Level = "MAX"
)

// ParseAlgorithm maps a configured string to an Algorithm, defaulting to
// pbkdf2-sha512 for anything unrecognized.
func ParseAlgorithm(s string) Algorithm {
	switch Algorithm(strings.ToLower(strings.TrimSpace(s))) {
	case AlgorithmArgon2id, Algorithm("argon2"):
		return AlgorithmArgon2id
	case AlgorithmBcrypt:
		return AlgorithmBcrypt
	default:
		return AlgorithmPBKDF2
	}
}

// ParseLevel maps a configured string to a Level, defaulting to MID.
func ParseLevel(s string) Level {
	switch Level(strings.ToUpper(strings.TrimSpace(s))) {
	case LevelLow:
		return LevelLow
	case LevelHigh:
		return LevelHigh
	case LevelMax:
		return LevelMax
	default:
		return LevelMid
	}
}

func bcryptCost(l Level) int {
	switch l {
	case LevelLow:
		return 8
	case LevelHigh:
		return 12
	case LevelMax:
		return 16
	default:
		return 10
	}
}

func pbkdf2Iterations(l Level) int {
	switch l {
	case LevelLow:
		return 10_000
	case LevelHigh:
		return 200_000
	case LevelMax:
		return 400_000
	default:
		return 80_000
	}
}

// argon2Memory is the memory cost in KiB.
func argon2Memory(l Level) uint32 {
	switch l {
	case LevelLow:
		return 768
	case LevelHigh:
		return 23_552
	case LevelMax:
		return 47_104
	default:
		return 12_288
	}
}

// argon2Time derives the pass count from the memory tier: more memory,
// fewer passes.
func argon2Time(memory uint32) uint32 {
	switch {
	case memory >= argon2Memory(LevelMax):
		return 1
	case memory >= argon2Memory(LevelHigh):
		return 2
	case memory >= argon2Memory(LevelMid):
		return 3
	default:
		return 7
	}
}

const (
	hasherSaltLength  = 16
	pbkdf2KeyBits     = 512
	argon2HashLength  = 32
	argon2Parallelism = 1
)

// Hasher turns a plaintext password into a storable credential and
// verifies a plaintext against one. The serialized slow hash is
// symmetrically encrypted ("peppered") with AES-CBC under a key derived
// from the installation secret, so the stored blob is useless without it.
// See https://dropbox.tech/security/how-dropbox-securely-stores-your-passwords
type Hasher struct {
	algorithm Algorithm
	level     Level
	aesKey    []byte
}

// NewHasher builds a Hasher from the configured default algorithm and
// level. The pepper key is SHA-256 of the installation secret (or the
// installation UUID when no secret is configured).
func NewHasher(cfg Config) *Hasher {
	secret, _ := installationSecret(cfg)
	return newHasher(secret, ParseAlgorithm(cfg.GetPasswordAlgorithm()), ParseLevel(cfg.GetPasswordLevel()))
}

func newHasher(secret []byte, algorithm Algorithm, level Level) *Hasher {
	key := sha256.Sum256(secret)
	return &Hasher{
		algorithm: algorithm,
		level:     level,
		aesKey:    key[:],
	}
}

// Hash produces the stored credential for password. It fails only on
// programmer error (unsupported algorithm) or an exhausted entropy pool.
func (h *Hasher) Hash(password string) (string, error) {
	serialized, err := h.slowHash(password)
	if err != nil {
		return "", err
	}
	sealed, err := h.encrypt([]byte(serialized))
	if err != nil {
		return "", errors.Wrap(err, errors.CategoryInternal, "failed to pepper credential")
	}
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// Verify reports whether password matches the stored credential. It
// returns false, never an error, on structurally invalid input,
// decryption failure, or mismatch.
func (h *Hasher) Verify(password, storedCredential string) bool {
	sealed, err := base64.StdEncoding.DecodeString(storedCredential)
	if err != nil {
		return false
	}
	plain, ok := h.decrypt(sealed)
	if !ok {
		return false
	}
	serialized := string(plain)

	// bcrypt emits its own self-describing format; everything else is PHC.
	if strings.HasPrefix(serialized, "$2") {
		digest := prehash(password, nil)
		return bcrypt.CompareHashAndPassword(plain, digest[:]) == nil
	}

	parsed, err := parsePHC(serialized)
	if err != nil {
		return false
	}

	switch parsed.ID {
	case "pbkdf2-sha512":
		iterations, ok := parsed.Param("c")
		if !ok || iterations <= 0 {
			return false
		}
		keyLen := len(parsed.Hash)
		if bits, ok := parsed.Param("dklen"); ok && bits%8 == 0 && bits > 0 {
			keyLen = bits / 8
		}
		digest := prehash(password, parsed.Salt)
		computed := pbkdf2.Key(digest[:], parsed.Salt, iterations, keyLen, sha512.New)
		return subtle.ConstantTimeCompare(computed, parsed.Hash) == 1
	case "argon2id":
		memory, okM := parsed.Param("m")
		time, okT := parsed.Param("t")
		threads, okP := parsed.Param("p")
		if !okM || !okT || !okP || memory <= 0 || time <= 0 || threads <= 0 {
			return false
		}
		digest := prehash(password, parsed.Salt)
		computed := argon2.IDKey(digest[:], parsed.Salt, uint32(time), uint32(memory), uint8(threads), uint32(len(parsed.Hash)))
		return subtle.ConstantTimeCompare(computed, parsed.Hash) == 1
	default:
		return false
	}
}

func (h *Hasher) slowHash(password string) (string, error) {
	switch h.algorithm {
	case AlgorithmBcrypt:
		digest := prehash(password, nil)
		hashed, err := bcrypt.GenerateFromPassword(digest[:], bcryptCost(h.level))
		if err != nil {
			return "", errors.Wrap(err, errors.CategoryInternal, "bcrypt hash failed")
		}
		return string(hashed), nil
	case AlgorithmPBKDF2:
		salt, err := randomBytes(hasherSaltLength)
		if err != nil {
			return "", err
		}
		iterations := pbkdf2Iterations(h.level)
		digest := prehash(password, salt)
		key := pbkdf2.Key(digest[:], salt, iterations, pbkdf2KeyBits/8, sha512.New)
		return phcHash{
			ID:      "pbkdf2-sha512",
			Version: 0,
			Params: []phcParam{
				{Name: "c", Value: iterations},
				{Name: "dklen", Value: pbkdf2KeyBits},
			},
			Salt: salt,
			Hash: key,
		}.String(), nil
	case AlgorithmArgon2id:
		salt, err := randomBytes(hasherSaltLength)
		if err != nil {
			return "", err
		}
		memory := argon2Memory(h.level)
		time := argon2Time(memory)
		digest := prehash(password, salt)
		key := argon2.IDKey(digest[:], salt, time, memory, argon2Parallelism, argon2HashLength)
		return phcHash{
			ID:      "argon2id",
			Version: 19,
			Params: []phcParam{
				{Name: "m", Value: int(memory)},
				{Name: "t", Value: int(time)},
				{Name: "p", Value: argon2Parallelism},
			},
			Salt: salt,
			Hash: key,
		}.String(), nil
	default:
		return "", errors.New("unsupported password algorithm", errors.CategoryBadInput)
	}
}

// prehash normalizes input length before the cost function so attacker
// controlled long strings never reach the slow algorithm directly.
func prehash(password string, salt []byte) [sha512.Size]byte {
	if len(salt) == 0 {
		return sha512.Sum512([]byte(password))
	}
	buf := make([]byte, 0, len(password)+len(salt))
	buf = append(buf, password...)
	buf = append(buf, salt...)
	return sha512.Sum512(buf)
}

func (h *Hasher) encrypt(plain []byte) ([]byte, error) {
	block, err := aes.NewCipher(h.aesKey)
	if err != nil {
		return nil, err
	}
	padded := pkcs7Pad(plain, aes.BlockSize)
	iv, err := randomBytes(aes.BlockSize)
	if err != nil {
		return nil, err
	}
	out := make([]byte, len(iv)+len(padded))
	copy(out, iv)
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(out[len(iv):], padded)
	return out, nil
}

func (h *Hasher) decrypt(sealed []byte) ([]byte, bool) {
	if len(sealed) < aes.BlockSize*2 || (len(sealed)-aes.BlockSize)%aes.BlockSize != 0 {
		return nil, false
	}
	block, err := aes.NewCipher(h.aesKey)
	if err != nil {
		return nil, false
	}
	iv, ciphertext := sealed[:aes.BlockSize], sealed[aes.BlockSize:]
	plain := make([]byte, len(ciphertext))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(plain, ciphertext)
	return pkcs7Unpad(plain, aes.BlockSize)
}

func pkcs7Pad(data []byte, blockSize int) []byte {
	pad := blockSize - len(data)%blockSize
	out := make([]byte, len(data)+pad)
	copy(out, data)
	for i := len(data); i < len(out); i++ {
		out[i] = byte(pad)
	}
	return out
}

func pkcs7Unpad(data []byte, blockSize int) ([]byte, bool) {
	if len(data) == 0 || len(data)%blockSize != 0 {
		return nil, false
	}
	pad := int(data[len(data)-1])
	if pad == 0 || pad > blockSize || pad > len(data) {
		return nil, false
	}
	for _, b := range data[len(data)-pad:] {
		if int(b) != pad {
			return nil, false
		}
	}
	return data[:len(data)-pad], true
}

func randomBytes(n int) ([]byte, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return nil, errors.Wrap(err, errors.CategoryInternal, "failed to read entropy")
	}
	return buf, nil
}
