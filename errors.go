package saga

import (
	stderrors "errors"
	"fmt"
	"maps"
	"strings"

	apperrors "github.com/goliatone/go-errors"
)

const (
	ErrCodeInvalidStep        = "SAGA_INVALID_STEP"
	ErrCodeDefinitionFrozen   = "SAGA_DEFINITION_FROZEN"
	ErrCodeStepNotFound       = "SAGA_STEP_NOT_FOUND"
	ErrCodeIndexOutOfRange    = "SAGA_INDEX_OUT_OF_RANGE"
	ErrCodeInvalidRunMode     = "SAGA_INVALID_RUN_MODE"
	ErrCodeInvalidTransaction = "SAGA_INVALID_TRANSACTION"
	ErrCodeMoveForwardFailed  = "SAGA_MOVE_FORWARD_FAILED"
	ErrCodeMoveBackFailed     = "SAGA_MOVE_BACK_FAILED"
	ErrCodeStepFailed         = "SAGA_STEP_FAILED"
	ErrCodeUndoFailed         = "SAGA_UNDO_FAILED"
	ErrCodePostFailed         = "SAGA_POST_FAILED"
	ErrCodePersistenceFailed  = "SAGA_PERSISTENCE_FAILED"
	ErrCodeBodyPanic          = "SAGA_BODY_PANIC"
)

var (
	ErrInvalidStep = apperrors.New("invalid step definition", apperrors.CategoryValidation).
			WithTextCode(ErrCodeInvalidStep)
	ErrDefinitionFrozen = apperrors.New("definition cannot be modified after the transaction started", apperrors.CategoryConflict).
				WithTextCode(ErrCodeDefinitionFrozen)
	ErrStepNotFound = apperrors.New("step not found", apperrors.CategoryBadInput).
			WithTextCode(ErrCodeStepNotFound)
	ErrIndexOutOfRange = apperrors.New("index out of range", apperrors.CategoryBadInput).
				WithTextCode(ErrCodeIndexOutOfRange)
	ErrInvalidRunMode = apperrors.New("invalid run mode", apperrors.CategoryBadInput).
				WithTextCode(ErrCodeInvalidRunMode)
	ErrInvalidTransaction = apperrors.New("invalid transaction", apperrors.CategoryBadInput).
				WithTextCode(ErrCodeInvalidTransaction)
	ErrMoveForwardFailed = apperrors.New("could not move forward", apperrors.CategoryHandler).
				WithTextCode(ErrCodeMoveForwardFailed)
	ErrMoveBackFailed = apperrors.New("could not move back", apperrors.CategoryHandler).
				WithTextCode(ErrCodeMoveBackFailed)
	ErrStepFailed = apperrors.New("step failed", apperrors.CategoryHandler).
			WithTextCode(ErrCodeStepFailed)
	ErrUndoFailed = apperrors.New("undo failed", apperrors.CategoryHandler).
			WithTextCode(ErrCodeUndoFailed)
	ErrPostFailed = apperrors.New("post action failed", apperrors.CategoryHandler).
			WithTextCode(ErrCodePostFailed)
	ErrPersistenceFailed = apperrors.New("persistence failed", apperrors.CategoryExternal).
				WithTextCode(ErrCodePersistenceFailed)
	ErrBodyPanic = apperrors.New("recovered from panic", apperrors.CategoryHandler).
			WithTextCode(ErrCodeBodyPanic)
)

// derive copies base, replacing its message and attaching source and meta.
func derive(base *apperrors.Error, message string, source error, meta map[string]any) *apperrors.Error {
	out := base.Clone()
	if message = strings.TrimSpace(message); message != "" {
		out.Message = message
	}
	if source != nil {
		out.Source = source
	}
	if len(meta) == 0 {
		return out
	}
	return out.WithMetadata(meta)
}

// ErrorCode returns the text code of a saga error, or an empty string.
func ErrorCode(err error) string {
	var coded *apperrors.Error
	if !stderrors.As(err, &coded) {
		return ""
	}
	return coded.TextCode
}

// HasCode reports whether err carries the given text code.
func HasCode(err error, code string) bool {
	return code != "" && ErrorCode(err) == code
}

func frozenError(transaction string) error {
	return derive(
		ErrDefinitionFrozen,
		fmt.Sprintf("transaction %q already started, definition cannot be modified", transaction),
		nil,
		map[string]any{"transaction": transaction},
	)
}

func stepNotFoundError[TID any](transaction string, id TID) error {
	return derive(
		ErrStepNotFound,
		fmt.Sprintf("step %v not found in transaction %q", id, transaction),
		nil,
		map[string]any{"transaction": transaction, "step_id": fmt.Sprint(id)},
	)
}

func persistenceError(op string, source error, fields map[string]any) error {
	meta := copyFields(fields)
	meta["operation"] = op
	return derive(ErrPersistenceFailed, fmt.Sprintf("persistence %s failed", op), source, meta)
}

func copyFields(in map[string]any) map[string]any {
	out := make(map[string]any, len(in)+1)
	maps.Copy(out, in)
	return out
}
