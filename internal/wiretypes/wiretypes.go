// Package wiretypes defines the byte-level constants of the PostgreSQL v3.0
// frontend/backend wire protocol: message type tags, startup version codes,
// authentication subtypes, transaction status bytes, and column format codes.
package wiretypes

// ClientMessage represents a frontend (client -> server) message type byte.
type ClientMessage byte

// ServerMessage represents a backend (server -> client) message type byte.
type ServerMessage byte

// DescribeTarget represents the sub-type byte of a Describe/Close message.
type DescribeTarget byte

// http://www.postgresql.org/docs/current/static/protocol-message-formats.html
const (
	ClientBind        ClientMessage = 'B'
	ClientClose       ClientMessage = 'C'
	ClientCopyData    ClientMessage = 'd'
	ClientCopyDone    ClientMessage = 'c'
	ClientCopyFail    ClientMessage = 'f'
	ClientDescribe    ClientMessage = 'D'
	ClientExecute     ClientMessage = 'E'
	ClientFlush       ClientMessage = 'H'
	ClientFunctionCall ClientMessage = 'F'
	ClientParse       ClientMessage = 'P'
	ClientPassword    ClientMessage = 'p'
	ClientSimpleQuery ClientMessage = 'Q'
	ClientSync        ClientMessage = 'S'
	ClientTerminate   ClientMessage = 'X'

	ServerAuth                 ServerMessage = 'R'
	ServerBackendKeyData       ServerMessage = 'K'
	ServerBindComplete         ServerMessage = '2'
	ServerCloseComplete        ServerMessage = '3'
	ServerCommandComplete      ServerMessage = 'C'
	ServerCopyInResponse       ServerMessage = 'G'
	ServerDataRow              ServerMessage = 'D'
	ServerEmptyQuery           ServerMessage = 'I'
	ServerErrorResponse        ServerMessage = 'E'
	ServerNoData               ServerMessage = 'n'
	ServerNoticeResponse       ServerMessage = 'N'
	ServerParameterDescription ServerMessage = 't'
	ServerParameterStatus      ServerMessage = 'S'
	ServerParseComplete        ServerMessage = '1'
	ServerPortalSuspended      ServerMessage = 's'
	ServerReady                ServerMessage = 'Z'
	ServerRowDescription       ServerMessage = 'T'

	DescribeStatement DescribeTarget = 'S'
	DescribePortal    DescribeTarget = 'P'
)

func (m ClientMessage) String() string {
	switch m {
	case ClientBind:
		return "Bind"
	case ClientClose:
		return "Close"
	case ClientCopyData:
		return "CopyData"
	case ClientCopyDone:
		return "CopyDone"
	case ClientCopyFail:
		return "CopyFail"
	case ClientDescribe:
		return "Describe"
	case ClientExecute:
		return "Execute"
	case ClientFlush:
		return "Flush"
	case ClientFunctionCall:
		return "FunctionCall"
	case ClientParse:
		return "Parse"
	case ClientPassword:
		return "Password"
	case ClientSimpleQuery:
		return "SimpleQuery"
	case ClientSync:
		return "Sync"
	case ClientTerminate:
		return "Terminate"
	default:
		return "Unknown"
	}
}

func (m ServerMessage) String() string {
	switch m {
	case ServerAuth:
		return "Authentication"
	case ServerBackendKeyData:
		return "BackendKeyData"
	case ServerBindComplete:
		return "BindComplete"
	case ServerCloseComplete:
		return "CloseComplete"
	case ServerCommandComplete:
		return "CommandComplete"
	case ServerCopyInResponse:
		return "CopyInResponse"
	case ServerDataRow:
		return "DataRow"
	case ServerEmptyQuery:
		return "EmptyQueryResponse"
	case ServerErrorResponse:
		return "ErrorResponse"
	case ServerNoData:
		return "NoData"
	case ServerNoticeResponse:
		return "NoticeResponse"
	case ServerParameterDescription:
		return "ParameterDescription"
	case ServerParameterStatus:
		return "ParameterStatus"
	case ServerParseComplete:
		return "ParseComplete"
	case ServerPortalSuspended:
		return "PortalSuspended"
	case ServerReady:
		return "ReadyForQuery"
	case ServerRowDescription:
		return "RowDescription"
	default:
		return "Unknown"
	}
}

// Version represents the protocol version / special request code carried by
// the untyped startup frame.
type Version uint32

// See https://www.postgresql.org/docs/current/protocol-message-formats.html
const (
	Version30         Version = 196608   // (3 << 16) + 0
	VersionCancel     Version = 80877102 // (1234 << 16) + 5678
	VersionSSLRequest Version = 80877103 // (1234 << 16) + 5679
	VersionGSSENC     Version = 80877104 // (1234 << 16) + 5680
)

// AuthType represents the subtype carried by an Authentication ('R') message.
type AuthType int32

const (
	AuthOK                AuthType = 0
	AuthCleartextPassword AuthType = 3
	AuthSASL              AuthType = 10
	AuthSASLContinue      AuthType = 11
	AuthSASLFinal         AuthType = 12
)

// TransactionStatus is the single byte carried by ReadyForQuery describing
// the connection's current transaction state.
type TransactionStatus byte

const (
	TxIdle   TransactionStatus = 'I'
	TxActive TransactionStatus = 'T'
	TxFailed TransactionStatus = 'E'
)

// FormatCode represents the wire encoding format of a column/parameter value.
type FormatCode int16

const (
	TextFormat   FormatCode = 0
	BinaryFormat FormatCode = 1
)

// MaxMessageLength is the hard cap on a frame's declared length (1 GiB),
// matching spec.md §4.1.
const MaxMessageLength = 1 << 30
