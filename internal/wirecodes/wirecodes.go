// Package wirecodes enumerates the PostgreSQL SQLSTATE error codes used by
// the error field serializer. See
// http://www.postgresql.org/docs/9.5/static/errcodes-appendix.html.
package wirecodes

// Code represents a five-character SQLSTATE error code.
type Code string

const (
	// Class 00 - Successful Completion
	SuccessfulCompletion Code = "00000"

	// Class 08 - Connection Exception
	ConnectionException     Code = "08000"
	ConnectionDoesNotExist  Code = "08003"
	ConnectionFailure       Code = "08006"
	ProtocolViolation       Code = "08P01"

	// Class 0A - Feature Not Supported
	FeatureNotSupported Code = "0A000"

	// Class 22 - Data Exception
	DataException          Code = "22000"
	InvalidParameterValue  Code = "22023"
	InvalidTextRepresentation Code = "22P02"
	NullValueNotAllowed    Code = "22004"
	NumericValueOutOfRange Code = "22003"

	// Class 23 - Integrity Constraint Violation
	IntegrityConstraintViolation Code = "23000"
	NotNullViolation             Code = "23502"
	ForeignKeyViolation          Code = "23503"
	UniqueViolation              Code = "23505"
	CheckViolation               Code = "23514"

	// Class 25 - Invalid Transaction State
	InvalidTransactionState Code = "25000"
	ActiveSQLTransaction    Code = "25001"
	NoActiveSQLTransaction  Code = "25P01"
	InFailedSQLTransaction  Code = "25P02"

	// Class 26 - Invalid SQL Statement Name
	InvalidSQLStatementName Code = "26000"

	// Class 28 - Invalid Authorization Specification
	InvalidAuthorizationSpecification Code = "28000"
	InvalidPassword                   Code = "28P01"

	// Class 34 - Invalid Cursor Name
	InvalidCursorName Code = "34000"

	// Class 3B - Savepoint Exception
	SavepointException            Code = "3B000"
	InvalidSavepointSpecification Code = "3B001"

	// Class 40 - Transaction Rollback
	TransactionRollback   Code = "40000"
	SerializationFailure  Code = "40001"
	DeadlockDetected      Code = "40P01"

	// Class 42 - Syntax Error or Access Rule Violation
	SyntaxErrorOrAccessRuleViolation Code = "42000"
	Syntax                           Code = "42601"
	InsufficientPrivilege            Code = "42501"
	UndefinedColumn                  Code = "42703"
	UndefinedFunction                Code = "42883"
	UndefinedTable                   Code = "42P01"
	UndefinedParameter               Code = "42P02"
	DuplicatePreparedStatement       Code = "42P05"

	// Class 53 - Insufficient Resources
	InsufficientResources Code = "53000"
	TooManyConnections    Code = "53300"

	// Class 54 - Program Limit Exceeded
	ProgramLimitExceeded Code = "54000"

	// Class 57 - Operator Intervention
	OperatorIntervention Code = "57000"
	AdminShutdown        Code = "57P01"

	// Class XX - Internal Error
	Internal      Code = "XX000"
	DataCorrupted Code = "XX001"

	// Uncategorized is used for errors that carry no explicit code yet.
	Uncategorized Code = "XXUUU"
)
