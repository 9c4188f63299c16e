package password

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/crypto/argon2"
)

// encodedPrefix is the modular-crypt prefix every Keyline hash starts
// with. Only argon2id v19 strings are accepted; there is no legacy
// format to migrate from.
const encodedPrefix = "$argon2id$v=19$"

// Hash derives an argon2id digest of the password and returns it in
// modular-crypt form:
//
//	$argon2id$v=19$m=<mem>,t=<iter>,p=<par>$<salt_b64>$<key_b64>
//
// The policy check runs first, so callers get the same sentinel errors
// from Hash as from Validate.
func (c Config) Hash(password string) (string, error) {
	if err := c.Validate(password); err != nil {
		return "", err
	}

	salt := make([]byte, c.Params.SaltLength)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("password: salt: %w", err)
	}

	key := argon2.IDKey(
		[]byte(password),
		salt,
		c.Params.Iterations,
		c.Params.MemoryKiB,
		c.Params.Parallelism,
		c.Params.KeyLength,
	)

	var b strings.Builder
	b.WriteString(encodedPrefix)
	fmt.Fprintf(&b, "m=%d,t=%d,p=%d$", c.Params.MemoryKiB, c.Params.Iterations, c.Params.Parallelism)
	b.WriteString(base64.RawStdEncoding.EncodeToString(salt))
	b.WriteByte('$')
	b.WriteString(base64.RawStdEncoding.EncodeToString(key))

	return b.String(), nil
}

// Verify reports whether password matches encodedHash.
// (true, nil) on a match, (false, nil) on a mismatch, and
// (false, ErrInvalidHash) when the stored string is malformed or its
// parameters fall outside the verifiable envelope.
func (c Config) Verify(encodedHash, password string) (bool, error) {
	params, salt, want, err := parseEncoded(encodedHash)
	if err != nil {
		return false, err
	}

	// Stored params drive the KDF cost, so a tampered hash string could
	// otherwise make verification arbitrarily expensive.
	if !c.Params.canVerify(params) {
		return false, ErrInvalidHash
	}

	got := argon2.IDKey(
		[]byte(password),
		salt,
		params.Iterations,
		params.MemoryKiB,
		params.Parallelism,
		uint32(len(want)), // #nosec G115 -- length bounded by canVerify.
	)

	return subtle.ConstantTimeCompare(got, want) == 1, nil
}

// canVerify bounds the cost parameters a stored hash may demand.
// Hashes from older, cheaper settings stay verifiable; anything far
// above the configured ceiling is refused.
func (limits Argon2idParams) canVerify(got Argon2idParams) bool {
	switch {
	case got.MemoryKiB > limits.MemoryKiB*2:
		return false
	case got.Iterations > limits.Iterations*2:
		return false
	case got.Parallelism > limits.Parallelism*2:
		return false
	case got.SaltLength < 8 || got.SaltLength > 64:
		return false
	case got.KeyLength < 16 || got.KeyLength > 128:
		return false
	}
	return true
}

// parseEncoded splits a stored hash into its cost params, salt, and key.
// Every malformation maps to ErrInvalidHash; the parser never reveals
// which field was wrong.
func parseEncoded(encoded string) (Argon2idParams, []byte, []byte, error) {
	rest, ok := strings.CutPrefix(encoded, encodedPrefix)
	if !ok {
		return Argon2idParams{}, nil, nil, ErrInvalidHash
	}

	fields := strings.Split(rest, "$")
	if len(fields) != 3 {
		return Argon2idParams{}, nil, nil, ErrInvalidHash
	}

	mem, it, par, ok := parseCosts(fields[0])
	if !ok {
		return Argon2idParams{}, nil, nil, ErrInvalidHash
	}

	salt, err := base64.RawStdEncoding.DecodeString(fields[1])
	if err != nil {
		return Argon2idParams{}, nil, nil, ErrInvalidHash
	}
	key, err := base64.RawStdEncoding.DecodeString(fields[2])
	if err != nil {
		return Argon2idParams{}, nil, nil, ErrInvalidHash
	}

	params := Argon2idParams{
		MemoryKiB:   mem,
		Iterations:  it,
		Parallelism: uint8(par),
		SaltLength:  uint32(len(salt)), // #nosec G115 -- bounded by canVerify.
		KeyLength:   uint32(len(key)),  // #nosec G115 -- bounded by canVerify.
	}
	return params, salt, key, nil
}

// parseCosts reads the "m=<mem>,t=<iter>,p=<par>" segment, in that
// fixed order.
func parseCosts(s string) (mem, it, par uint32, ok bool) {
	parts := strings.Split(s, ",")
	if len(parts) != 3 {
		return 0, 0, 0, false
	}
	for i, want := range []string{"m", "t", "p"} {
		kv := strings.SplitN(parts[i], "=", 2)
		if len(kv) != 2 || kv[0] != want {
			return 0, 0, 0, false
		}
		n, err := strconv.ParseUint(kv[1], 10, 32)
		if err != nil {
			return 0, 0, 0, false
		}
		switch i {
		case 0:
			mem = uint32(n)
		case 1:
			it = uint32(n)
		case 2:
			par = uint32(n)
		}
	}
	if mem == 0 || it == 0 || par == 0 || par > 255 {
		return 0, 0, 0, false
	}
	return mem, it, par, true
}
