package domain

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPipelineError_KindMatching(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		sentinel error
	}{
		{"dependency resolution", NewDependencyResolutionError("missing artifact", nil), ErrDependencyResolution},
		{"compilation", NewCompilationError("javac failed", nil), ErrCompilation},
		{"packaging", NewPackagingError("no descriptor", nil), ErrPackaging},
		{"authentication", NewAuthenticationError("no token", nil), ErrAuthentication},
		{"network", NewNetworkError("timeout", nil), ErrNetwork},
		{"configuration", NewConfigurationError("bad yaml", nil), ErrConfiguration},
	}

	all := []error{ErrDependencyResolution, ErrCompilation, ErrPackaging, ErrAuthentication, ErrNetwork, ErrConfiguration}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for _, sentinel := range all {
				assert.Equal(t, sentinel == tt.sentinel, errors.Is(tt.err, sentinel), "errors.Is(%v, %v)", tt.err, sentinel)
			}

			wrapped := fmt.Errorf("running target: %w", tt.err)
			assert.ErrorIs(t, wrapped, tt.sentinel)
		})
	}
}

func TestPipelineError_Message(t *testing.T) {
	cause := errors.New("exit status 1")
	err := NewCompilationError("javac reported 2 errors", cause)

	assert.Equal(t, "CompilationError: javac reported 2 errors: exit status 1", err.Error())
	assert.ErrorIs(t, err, cause)

	staged := WithStage(err, StageCompile)
	assert.Equal(t, "compile: CompilationError: javac reported 2 errors: exit status 1", staged.Error())
	assert.Empty(t, err.Stage, "WithStage must not mutate the original error")

	stage, ok := StageOf(staged)
	assert.True(t, ok)
	assert.Equal(t, StageCompile, stage)
}

func TestWithStage(t *testing.T) {
	t.Run("keeps first stage", func(t *testing.T) {
		err := WithStage(WithStage(NewPackagingError("x", nil), StageAssemble), StagePublish)
		stage, _ := StageOf(err)
		assert.Equal(t, StageAssemble, stage)
	})

	t.Run("ignores foreign errors", func(t *testing.T) {
		plain := errors.New("boom")
		assert.Same(t, plain, WithStage(plain, StageResolve))

		_, ok := KindOf(plain)
		assert.False(t, ok)
	})

	t.Run("kind survives staging", func(t *testing.T) {
		kind, ok := KindOf(WithStage(NewNetworkError("reset", nil), StagePublish))
		assert.True(t, ok)
		assert.Equal(t, KindNetwork, kind)
	})
}
