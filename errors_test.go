package velograph_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/syssam/velograph"
)

func TestNotFoundError(t *testing.T) {
	t.Run("Error", func(t *testing.T) {
		err := velograph.NewNotFoundError("type", "Project")
		assert.Equal(t, `velograph: type "Project" not found`, err.Error())
		assert.Equal(t, "type", err.Kind())
		assert.Equal(t, "Project", err.Name())
	})

	t.Run("IsNotFound", func(t *testing.T) {
		err := velograph.NewNotFoundError("property", "status")
		assert.True(t, errors.Is(err, velograph.ErrNotFound))
		assert.True(t, velograph.IsNotFound(fmt.Errorf("wrapper: %w", err)))
		assert.True(t, velograph.IsNotFound(velograph.ErrNotFound))
		assert.False(t, velograph.IsNotFound(errors.New("other error")))
		assert.False(t, velograph.IsNotFound(nil))
	})
}

func TestConfigError(t *testing.T) {
	err := velograph.NewConfigError("Project", velograph.ErrConfigItemDuplicated)
	assert.Equal(t, "velograph: config: Project: duplicated item", err.Error())
	assert.True(t, errors.Is(err, velograph.ErrConfigItemDuplicated))
	assert.False(t, errors.Is(err, velograph.ErrConfigItemReserved))
	assert.True(t, velograph.IsConfigError(fmt.Errorf("build: %w", err)))
	assert.False(t, velograph.IsConfigError(nil))

	noItem := velograph.NewConfigError("", velograph.ErrConfigVersionMismatched)
	assert.Equal(t, "velograph: config: version mismatched", noItem.Error())
}

func TestRegistryErrors(t *testing.T) {
	t.Run("ResolverNotFound", func(t *testing.T) {
		err := &velograph.ResolverNotFoundError{Name: "points"}
		assert.Equal(t, `velograph: resolver "points" not found`, err.Error())
		assert.True(t, velograph.IsResolverNotFound(fmt.Errorf("compile: %w", err)))
		assert.False(t, velograph.IsValidatorNotFound(err))
	})

	t.Run("ValidatorNotFound", func(t *testing.T) {
		err := &velograph.ValidatorNotFoundError{Name: "NameValidator"}
		assert.Equal(t, `velograph: validator "NameValidator" not found`, err.Error())
		assert.True(t, velograph.IsValidatorNotFound(err))
		assert.False(t, velograph.IsResolverNotFound(err))
	})
}

func TestValidationError(t *testing.T) {
	underlying := errors.New("must not be empty")
	err := velograph.NewValidationError("name", underlying)

	assert.Equal(t, `velograph: validation failed for "name": must not be empty`, err.Error())
	assert.True(t, errors.Is(err, underlying))
	assert.True(t, velograph.IsValidationError(fmt.Errorf("wrapped: %w", err)))
	assert.False(t, velograph.IsValidationError(errors.New("other")))

	failed := velograph.ValidationFailed("NameValidator", "name is reserved")
	assert.Equal(t, "name is reserved", failed.Err.Error())
}

func TestInputError(t *testing.T) {
	err := velograph.NewInputError("Project.MATCH", "expected map, got %s", "String")
	assert.Equal(t, "velograph: invalid input at Project.MATCH: expected map, got String", err.Error())
	assert.True(t, velograph.IsInputError(err))
}

func TestTypeConversionError(t *testing.T) {
	err := velograph.NewTypeConversionError("String", "Int64")
	assert.Equal(t, "velograph: cannot convert String to Int64", err.Error())
	assert.True(t, velograph.IsTypeConversionError(err))
	assert.False(t, velograph.IsTypeConversionError(nil))
}

func TestBackendError(t *testing.T) {
	t.Run("Nil", func(t *testing.T) {
		assert.NoError(t, velograph.NewBackendError("cypher", "commit", nil))
	})

	t.Run("Wrap", func(t *testing.T) {
		cause := errors.New("connection reset")
		err := velograph.NewBackendError("cypher", "commit", cause)
		require.Error(t, err)
		assert.Equal(t, "velograph: cypher commit: connection reset", err.Error())
		assert.True(t, errors.Is(err, cause))
		assert.True(t, velograph.IsBackendError(err))
	})

	t.Run("Unavailable", func(t *testing.T) {
		err := velograph.NewBackendError("pool", "acquire", velograph.ErrBackendUnavailable)
		assert.True(t, errors.Is(err, velograph.ErrBackendUnavailable))
	})

	t.Run("Unsupported", func(t *testing.T) {
		err := velograph.NewUnsupportedOperationError("sql", "composite traversal")
		assert.Equal(t, "velograph: sql backend does not support composite traversal", err.Error())
		assert.True(t, velograph.IsUnsupportedOperation(err))
		assert.False(t, velograph.IsBackendError(err))
	})
}

func TestMissingIdentifierError(t *testing.T) {
	err := &velograph.MissingIdentifierError{Type: "Project"}
	assert.Equal(t, "velograph: Project has no identifier", err.Error())
	assert.True(t, velograph.IsMissingIdentifier(fmt.Errorf("shape: %w", err)))
}

func TestServerErrors(t *testing.T) {
	cause := errors.New("address in use")

	startup := &velograph.ServerStartupError{Err: cause}
	assert.Contains(t, startup.Error(), "startup failed")
	assert.True(t, errors.Is(startup, cause))

	shutdown := &velograph.ServerShutdownError{Err: cause}
	assert.Contains(t, shutdown.Error(), "shutdown failed")
	assert.True(t, errors.Is(shutdown, cause))

	assert.NotEqual(t, velograph.ErrServerAlreadyRunning, velograph.ErrServerNotRunning)
}

func TestEnvError(t *testing.T) {
	err := &velograph.EnvError{Name: "WG_CYPHER_HOST", Err: velograph.ErrEnvNotFound}
	assert.Equal(t, "velograph: WG_CYPHER_HOST: environment variable not found", err.Error())
	assert.True(t, errors.Is(err, velograph.ErrEnvNotFound))
	assert.False(t, errors.Is(err, velograph.ErrEnvNotParsed))
}

func TestRollbackError(t *testing.T) {
	underlying := errors.New("connection lost")
	err := &velograph.RollbackError{Err: underlying}
	assert.Equal(t, "velograph: rollback failed: connection lost", err.Error())
	assert.True(t, errors.Is(err, underlying))
}

func TestPrivacyError(t *testing.T) {
	err := velograph.NewPrivacyError("Project", "CreateNode", nil)
	assert.Equal(t, "velograph: privacy denied CreateNode on Project", err.Error())
	assert.True(t, velograph.IsPrivacyError(err))

	cause := errors.New("viewer required")
	withCause := velograph.NewPrivacyError("Project", "ReadNode", cause)
	assert.Contains(t, withCause.Error(), "viewer required")
	assert.True(t, errors.Is(withCause, cause))
}

func TestAggregateError(t *testing.T) {
	t.Run("NoErrors", func(t *testing.T) {
		assert.Nil(t, velograph.NewAggregateError())
		assert.Nil(t, velograph.NewAggregateError(nil, nil))
	})

	t.Run("SingleError", func(t *testing.T) {
		single := errors.New("single error")
		assert.Equal(t, single, velograph.NewAggregateError(nil, single))
	})

	t.Run("MultipleErrors", func(t *testing.T) {
		dup := velograph.NewConfigError("Project", velograph.ErrConfigItemDuplicated)
		reserved := velograph.NewConfigError("ID", velograph.ErrConfigItemReserved)
		err := velograph.NewAggregateError(dup, reserved)

		require.NotNil(t, err)
		assert.Contains(t, err.Error(), "multiple errors")
		assert.True(t, errors.Is(err, velograph.ErrConfigItemDuplicated))
		assert.True(t, errors.Is(err, velograph.ErrConfigItemReserved))
		assert.True(t, velograph.IsConfigError(err))
	})
}

func BenchmarkErrors(b *testing.B) {
	b.Run("NewNotFoundError", func(b *testing.B) {
		for i := 0; i < b.N; i++ {
			_ = velograph.NewNotFoundError("type", "User")
		}
	})

	b.Run("IsNotFound", func(b *testing.B) {
		err := velograph.NewNotFoundError("type", "User")
		for i := 0; i < b.N; i++ {
			_ = velograph.IsNotFound(err)
		}
	})

	b.Run("NewAggregateError_multiple", func(b *testing.B) {
		err1 := errors.New("err1")
		err2 := errors.New("err2")
		for i := 0; i < b.N; i++ {
			_ = velograph.NewAggregateError(err1, err2)
		}
	})
}
