package services

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/platevoice/plate_api/shared"
	"gorm.io/gorm"
)

func TestTranslateDBError(t *testing.T) {
	cases := []struct {
		name string
		err  error
		kind string
	}{
		{"record not found", gorm.ErrRecordNotFound, shared.KindNotFound},
		{"duplicated key", gorm.ErrDuplicatedKey, shared.KindConflict},
		{"sqlite unique violation", errors.New("UNIQUE constraint failed: reports.message_id"), shared.KindConflict},
		{"deadline exceeded", context.DeadlineExceeded, shared.KindDependencyTimeout},
		{"wrapped deadline", fmt.Errorf("ping: %w", context.DeadlineExceeded), shared.KindDependencyTimeout},
		{"unknown", errors.New("boom"), shared.KindInternal},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			mustAppError(t, TranslateDBError(tc.err), tc.kind)
		})
	}

	if TranslateDBError(nil) != nil {
		t.Fatal("nil must pass through untranslated")
	}
}
