package repository

import (
	"errors"
	"strings"
	"testing"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
)

func TestWriteErrorRejectsRecordContent(t *testing.T) {
	cases := []struct {
		name     string
		code     string
		rejected bool
	}{
		{"not null", pgerrcode.NotNullViolation, true},
		{"foreign key", pgerrcode.ForeignKeyViolation, true},
		{"bad encoding", pgerrcode.CharacterNotInRepertoire, true},
		{"value too long", pgerrcode.StringDataRightTruncationDataException, true},
		{"connection", pgerrcode.AdminShutdown, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := writeError("upsert account", &pgconn.PgError{Code: tc.code, Message: "boom"})
			if got := errors.Is(err, ErrRejected); got != tc.rejected {
				t.Fatalf("errors.Is(ErrRejected) = %v for %s", got, tc.code)
			}
			if !strings.Contains(err.Error(), "upsert account") {
				t.Fatalf("expected operation in error, got %v", err)
			}
		})
	}

	err := writeError("insert into professional_records", errors.New("conn closed"))
	if errors.Is(err, ErrRejected) {
		t.Fatalf("plain errors must not be rejections")
	}
}
