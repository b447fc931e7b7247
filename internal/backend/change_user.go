package backend

import (
	"crypto/sha1"

	"github.com/relaydb/proxy/internal/protocol/mysql/packet/encoding"
)

// scramblePassword computes the mysql_native_password response:
// SHA1(password) XOR SHA1(scramble || SHA1(SHA1(password))).
func scramblePassword(scramble [20]byte, password string) []byte {
	if password == "" {
		return nil
	}
	pwHash := sha1.Sum([]byte(password))
	pwHashHash := sha1.Sum(pwHash[:])

	h := sha1.New()
	h.Write(scramble[:])
	h.Write(pwHashHash[:])
	scrambleHash := h.Sum(nil)

	token := make([]byte, len(pwHash))
	for i := range pwHash {
		token[i] = pwHash[i] ^ scrambleHash[i]
	}
	return token
}

// BuildChangeUser constructs a COM_CHANGE_USER packet:
// 0x11 | username\0 | token_len u8 | token | db\0 | charset u16 | plugin\0
func BuildChangeUser(scramble [20]byte, username, password, db string, charset uint16) []byte {
	token := scramblePassword(scramble, password)

	p := make([]byte, 0, 32+len(username)+len(db)+len(token))
	p = append(p, 0x11)
	p = append(p, encoding.NullTerminatedString(username)...)
	p = append(p, byte(len(token)))
	p = append(p, token...)
	p = append(p, encoding.NullTerminatedString(db)...)
	p = append(p, byte(charset), byte(charset>>8))
	p = append(p, encoding.NullTerminatedString("mysql_native_password")...)
	return p
}

// ScrambleForAuthSwitch rebuilds the 20-byte native-password response
// after the backend rejects the initial scramble with an
// AuthSwitchRequest carrying a fresh one.
func ScrambleForAuthSwitch(newScramble [20]byte, password string) []byte {
	return scramblePassword(newScramble, password)
}
