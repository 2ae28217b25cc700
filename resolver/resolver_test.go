package resolver

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/syssam/velograph"
	"github.com/syssam/velograph/value"
)

func TestRegistry(t *testing.T) {
	t.Run("RegisterAndLookup", func(t *testing.T) {
		r := NewRegistry()
		require.NoError(t, r.RegisterResolver("ProjectPoints", Static(value.Int64(138))))
		require.NoError(t, r.RegisterValidator("NameValidator", Tag("name", "required")))

		assert.True(t, r.HasResolver("ProjectPoints"))
		assert.False(t, r.HasResolver("Other"))
		assert.True(t, r.HasValidator("NameValidator"))

		res, err := r.Resolver("ProjectPoints")
		require.NoError(t, err)
		out, err := res.Resolve(context.Background(), &Facade{})
		require.NoError(t, err)
		assert.Equal(t, value.Int64(138), out)
	})

	t.Run("NotFound", func(t *testing.T) {
		r := NewRegistry()
		_, err := r.Resolver("Missing")
		assert.True(t, velograph.IsResolverNotFound(err))
		assert.Contains(t, err.Error(), "Missing")
		_, err = r.Validator("Missing")
		assert.True(t, velograph.IsValidatorNotFound(err))
	})

	t.Run("Duplicate", func(t *testing.T) {
		r := NewRegistry()
		require.NoError(t, r.RegisterResolver("A", Static(value.Null())))
		err := r.RegisterResolver("A", Static(value.Null()))
		assert.ErrorIs(t, err, velograph.ErrConfigItemDuplicated)

		require.NoError(t, r.RegisterValidator("V", Tag("x", "required")))
		err = r.RegisterValidator("V", Tag("x", "required"))
		assert.ErrorIs(t, err, velograph.ErrConfigItemDuplicated)
	})

	t.Run("Nil", func(t *testing.T) {
		r := NewRegistry()
		assert.Error(t, r.RegisterResolver("A", nil))
		assert.Error(t, r.RegisterValidator("V", nil))
	})

	t.Run("Frozen", func(t *testing.T) {
		r := NewRegistry()
		r.MustRegisterResolver("A", Static(value.Null()))
		r.Freeze()
		assert.True(t, r.Frozen())
		assert.ErrorIs(t, r.RegisterResolver("B", Static(value.Null())), ErrFrozen)
		assert.ErrorIs(t, r.RegisterValidator("V", Tag("x", "required")), ErrFrozen)
		assert.True(t, r.HasResolver("A"))
	})

	t.Run("MustPanics", func(t *testing.T) {
		r := NewRegistry()
		r.MustRegisterResolver("A", Static(value.Null()))
		assert.Panics(t, func() { r.MustRegisterResolver("A", Static(value.Null())) })
	})

	t.Run("Names", func(t *testing.T) {
		r := NewRegistry()
		r.MustRegisterResolver("b", Static(value.Null())).MustRegisterResolver("a", Static(value.Null()))
		r.MustRegisterValidator("z", Tag("x", "required")).MustRegisterValidator("y", Tag("x", "required"))
		assert.Equal(t, []string{"a", "b"}, r.ResolverNames())
		assert.Equal(t, []string{"y", "z"}, r.ValidatorNames())
	})

	t.Run("ConcurrentLookups", func(t *testing.T) {
		r := NewRegistry()
		r.MustRegisterResolver("A", Static(value.Null()))
		r.Freeze()
		var wg sync.WaitGroup
		for i := 0; i < 16; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := r.Resolver("A")
				assert.NoError(t, err)
			}()
		}
		wg.Wait()
	})
}

func TestCheck(t *testing.T) {
	input := value.Map(map[string]value.Value{"name": value.String("KILL_ME")})

	t.Run("Passes", func(t *testing.T) {
		v := ValidatorFunc(func(value.Value) error { return nil })
		assert.NoError(t, Check("NameValidator", v, input))
	})

	t.Run("WrapsPlainErrors", func(t *testing.T) {
		v := ValidatorFunc(func(in value.Value) error {
			name, _ := in.Get("name")
			if s, _ := name.AsString(); s == "KILL_ME" {
				return errors.New("forbidden name")
			}
			return nil
		})
		err := Check("NameValidator", v, input)
		require.Error(t, err)
		assert.True(t, velograph.IsValidationError(err))
		var ve *velograph.ValidationError
		require.ErrorAs(t, err, &ve)
		assert.Contains(t, ve.Error(), "NameValidator")
	})

	t.Run("KeepsValidationErrors", func(t *testing.T) {
		want := velograph.ValidationFailed("name", "too short")
		v := ValidatorFunc(func(value.Value) error { return want })
		assert.Same(t, want, Check("NameValidator", v, input))
	})
}

func TestTag(t *testing.T) {
	email := Tag("email", "required,email")

	tests := []struct {
		name    string
		input   value.Value
		wantErr bool
	}{
		{"Valid", value.Map(map[string]value.Value{"email": value.String("a@b.io")}), false},
		{"Invalid", value.Map(map[string]value.Value{"email": value.String("nope")}), true},
		{"Missing", value.Map(map[string]value.Value{}), true},
		{"Null", value.Map(map[string]value.Value{"email": value.Null()}), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := email.Validate(tt.input)
			if tt.wantErr {
				assert.True(t, velograph.IsValidationError(err))
				return
			}
			assert.NoError(t, err)
		})
	}

	t.Run("Length", func(t *testing.T) {
		v := Tag("name", "min=3")
		assert.Error(t, v.Validate(value.Map(map[string]value.Value{"name": value.String("ab")})))
		assert.NoError(t, v.Validate(value.Map(map[string]value.Value{"name": value.String("abc")})))
	})
}
