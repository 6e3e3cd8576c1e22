package wireerr

import (
	"errors"
	"testing"

	"github.com/pgmock/pgmock/internal/wirecodes"
)

func TestWithCode(t *testing.T) {
	cause := errors.New("relation \"foo\" does not exist")
	err := WithCode(cause, wirecodes.UndefinedTable)

	if GetCode(err) != wirecodes.UndefinedTable {
		t.Errorf("unexpected code %s, expected %s", GetCode(err), wirecodes.UndefinedTable)
	}

	if err.Error() != cause.Error() {
		t.Errorf("unexpected message %q, expected %q", err.Error(), cause.Error())
	}
}

func TestGetCodeUncategorized(t *testing.T) {
	if code := GetCode(errors.New("plain")); code != wirecodes.Uncategorized {
		t.Errorf("unexpected code %s, expected %s", code, wirecodes.Uncategorized)
	}
}

func TestDecoratorChain(t *testing.T) {
	err := errors.New("duplicate key value violates unique constraint")
	err = WithCode(err, wirecodes.UniqueViolation)
	err = WithSeverity(err, LevelError)
	err = WithDetail(err, "Key (id)=(1) already exists.")
	err = WithHint(err, "Consider using an UPSERT instead.")
	err = WithConstraintName(err, "users_pkey")

	if GetCode(err) != wirecodes.UniqueViolation {
		t.Errorf("unexpected code %s", GetCode(err))
	}

	if GetSeverity(err) != LevelError {
		t.Errorf("unexpected severity %s", GetSeverity(err))
	}

	if GetDetail(err) != "Key (id)=(1) already exists." {
		t.Errorf("unexpected detail %q", GetDetail(err))
	}

	if GetHint(err) != "Consider using an UPSERT instead." {
		t.Errorf("unexpected hint %q", GetHint(err))
	}

	if GetConstraintName(err) != "users_pkey" {
		t.Errorf("unexpected constraint name %q", GetConstraintName(err))
	}
}

func TestFlatten(t *testing.T) {
	err := WithSeverity(WithCode(errors.New("boom"), wirecodes.Internal), LevelFatal)
	fields := Flatten(err, false)

	if fields.Code != wirecodes.Internal {
		t.Errorf("unexpected code %s", fields.Code)
	}

	if fields.Severity != LevelFatal {
		t.Errorf("unexpected severity %s", fields.Severity)
	}

	if fields.Where != "" {
		t.Errorf("expected where to be stripped outside dev mode, got %q", fields.Where)
	}
}

func TestFlattenNil(t *testing.T) {
	fields := Flatten(nil, false)
	if fields.Severity != LevelFatal {
		t.Errorf("unexpected severity %s for nil error", fields.Severity)
	}
}
