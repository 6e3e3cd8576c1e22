// Package scram implements the server role of SASL SCRAM-SHA-256 (RFC 5802,
// RFC 7677) as used by PostgreSQL's "scram-sha-256" authentication method.
// The client-role exchange this mirrors is documented in RFC 5802 §3 and
// implemented client-side all over the Postgres driver ecosystem; this
// package plays the opposite part of that same handshake.
package scram

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"strings"

	"golang.org/x/crypto/pbkdf2"

	"github.com/pgmock/pgmock/internal/wireerr"
	"github.com/pgmock/pgmock/internal/wirecodes"
)

// Mechanism is the SASL mechanism name advertised by AuthenticationSASL.
const Mechanism = "SCRAM-SHA-256"

// DefaultIterations mirrors Postgres' scram_iterations default.
const DefaultIterations = 4096

// State is the server-side exchange state, advancing Initial -> FirstSent ->
// Ended on success, or -> Errored on any validation failure.
type State int

const (
	StateInitial State = iota
	StateFirstSent
	StateEnded
	StateErrored
)

// Credentials holds the salted-password material derived once at user
// creation/config-load time and replayed for every authentication attempt.
// The plaintext password is never retained.
type Credentials struct {
	Salt       []byte
	Iterations int
	StoredKey  []byte
	ServerKey  []byte
}

// NewCredentials derives SCRAM credentials for password using a freshly
// generated random salt.
func NewCredentials(password string, iterations int) (Credentials, error) {
	if iterations <= 0 {
		iterations = DefaultIterations
	}

	salt := make([]byte, 16)
	if _, err := rand.Read(salt); err != nil {
		return Credentials{}, fmt.Errorf("generating salt: %w", err)
	}

	return deriveCredentials(password, salt, iterations), nil
}

func deriveCredentials(password string, salt []byte, iterations int) Credentials {
	saltedPassword := pbkdf2.Key([]byte(password), salt, iterations, sha256.Size, sha256.New)

	clientKey := hmacSHA256(saltedPassword, []byte("Client Key"))
	storedKey := sha256Sum(clientKey)
	serverKey := hmacSHA256(saltedPassword, []byte("Server Key"))

	return Credentials{
		Salt:       salt,
		Iterations: iterations,
		StoredKey:  storedKey,
		ServerKey:  serverKey,
	}
}

// Server drives one SCRAM-SHA-256 exchange for a single connection attempt.
// It is not safe for concurrent use and is discarded after Finish returns.
type Server struct {
	state State
	creds Credentials

	gs2Header       string
	clientFirstBare string
	serverNonce     string
	serverFirst     string
}

// NewServer constructs a Server bound to the credentials on file for the
// authenticating role.
func NewServer(creds Credentials) *Server {
	return &Server{state: StateInitial, creds: creds}
}

// Start consumes the client-first-message carried by the SASLInitialResponse
// and returns the server-first-message to send back in
// AuthenticationSASLContinue.
func (s *Server) Start(clientFirstMessage string) (string, error) {
	if s.state != StateInitial {
		s.state = StateErrored
		return "", protocolErr("SCRAM exchange already started")
	}

	gs2Header, bare, err := splitGS2Header(clientFirstMessage)
	if err != nil {
		s.state = StateErrored
		return "", err
	}

	fields, err := parseFields(bare)
	if err != nil {
		s.state = StateErrored
		return "", err
	}

	clientNonce, ok := fields["r"]
	if !ok || clientNonce == "" {
		s.state = StateErrored
		return "", protocolErr("client-first-message is missing the client nonce")
	}

	serverNonceSuffix := make([]byte, 18)
	if _, err := rand.Read(serverNonceSuffix); err != nil {
		s.state = StateErrored
		return "", fmt.Errorf("generating server nonce: %w", err)
	}

	s.gs2Header = gs2Header
	s.clientFirstBare = bare
	s.serverNonce = clientNonce + base64.StdEncoding.EncodeToString(serverNonceSuffix)

	s.serverFirst = fmt.Sprintf("r=%s,s=%s,i=%d",
		s.serverNonce,
		base64.StdEncoding.EncodeToString(s.creds.Salt),
		s.creds.Iterations,
	)

	s.state = StateFirstSent
	return s.serverFirst, nil
}

// Finish consumes the client-final-message carried by the SASLResponse,
// verifies the client proof against the credentials on file, and returns
// the server-final-message (server signature) to send in
// AuthenticationSASLFinal. A failed proof verification returns an error
// carrying wirecodes.InvalidPassword; the caller must not authenticate the
// connection in that case.
func (s *Server) Finish(clientFinalMessage string) (string, error) {
	if s.state != StateFirstSent {
		s.state = StateErrored
		return "", protocolErr("client-final-message received out of order")
	}

	idx := strings.LastIndex(clientFinalMessage, ",p=")
	if idx == -1 {
		s.state = StateErrored
		return "", protocolErr("client-final-message is missing the proof field")
	}

	withoutProof := clientFinalMessage[:idx]
	proofB64 := clientFinalMessage[idx+len(",p="):]

	proof, err := base64.StdEncoding.DecodeString(proofB64)
	if err != nil {
		s.state = StateErrored
		return "", protocolErr("client proof is not valid base64")
	}

	fields, err := parseFields(withoutProof)
	if err != nil {
		s.state = StateErrored
		return "", err
	}

	channelBinding, ok := fields["c"]
	if !ok || channelBinding != base64.StdEncoding.EncodeToString([]byte(s.gs2Header)) {
		s.state = StateErrored
		return "", protocolErr("channel binding does not match the initial GS2 header")
	}

	nonce, ok := fields["r"]
	if !ok || nonce != s.serverNonce {
		s.state = StateErrored
		return "", protocolErr("nonce mismatch in client-final-message")
	}

	authMessage := s.clientFirstBare + "," + s.serverFirst + "," + withoutProof

	clientSignature := hmacSHA256(s.creds.StoredKey, []byte(authMessage))
	clientKey := xorBytes(proof, clientSignature)
	if len(clientKey) != len(clientSignature) {
		s.state = StateErrored
		return "", invalidPasswordErr()
	}

	if !hmac.Equal(sha256Sum(clientKey), s.creds.StoredKey) {
		s.state = StateErrored
		return "", invalidPasswordErr()
	}

	serverSignature := hmacSHA256(s.creds.ServerKey, []byte(authMessage))
	s.state = StateEnded

	return "v=" + base64.StdEncoding.EncodeToString(serverSignature), nil
}

// State reports the exchange's current state.
func (s *Server) State() State {
	return s.state
}

// gs2HeaderNoBinding is the only GS2 header this server accepts. This
// server implements plain SCRAM-SHA-256, not the channel-binding variant
// (SCRAM-SHA-256-PLUS), so "y,," (client believes the server supports
// binding) and "n,a=<authzid>," (authzid use) are both rejected rather
// than silently accepted: allowing either would let a man-in-the-middle
// strip channel binding from a client that requested it. See RFC 5802
// §6.1 and RFC 7677.
const gs2HeaderNoBinding = "n,,"

func splitGS2Header(clientFirstMessage string) (header, bare string, err error) {
	if !strings.HasPrefix(clientFirstMessage, gs2HeaderNoBinding) {
		return "", "", protocolErr("unsupported GS2 channel-binding flag")
	}

	header = gs2HeaderNoBinding
	bare = clientFirstMessage[len(gs2HeaderNoBinding):]
	return header, bare, nil
}

func parseFields(msg string) (map[string]string, error) {
	fields := make(map[string]string)
	for _, part := range strings.Split(msg, ",") {
		eq := strings.IndexByte(part, '=')
		if eq == -1 {
			return nil, protocolErr(fmt.Sprintf("malformed SCRAM attribute %q", part))
		}
		fields[part[:eq]] = part[eq+1:]
	}
	return fields, nil
}

func hmacSHA256(key, data []byte) []byte {
	h := hmac.New(sha256.New, key)
	h.Write(data)
	return h.Sum(nil)
}

func sha256Sum(data []byte) []byte {
	h := sha256.Sum256(data)
	return h[:]
}

func xorBytes(a, b []byte) []byte {
	if len(a) != len(b) {
		return nil
	}

	out := make([]byte, len(a))
	for i := range a {
		out[i] = a[i] ^ b[i]
	}
	return out
}

func protocolErr(message string) error {
	return wireerr.WithSeverity(wireerr.WithCode(fmt.Errorf("%s", message), wirecodes.ProtocolViolation), wireerr.LevelFatal)
}

func invalidPasswordErr() error {
	return wireerr.WithSeverity(wireerr.WithCode(fmt.Errorf("password authentication failed"), wirecodes.InvalidPassword), wireerr.LevelFatal)
}
