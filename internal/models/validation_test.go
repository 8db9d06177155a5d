package models

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSettingsValidateReportsEachField(t *testing.T) {
	err := Settings{Device: "tpu", BatchSize: "8", Verbosity: "TRACE"}.Validate()
	require.ErrorIs(t, err, ErrInvalidSetting)

	var list *ValidationErrors
	require.ErrorAs(t, err, &list)
	require.Len(t, list.Errors, 2)
	require.Equal(t, "device", list.Errors[0].Field)
	require.Equal(t, "verbosity", list.Errors[1].Field)
	require.Contains(t, err.Error(), `device: invalid setting: "tpu"`)
}

func TestNestedSettingsErrorsGetPrefix(t *testing.T) {
	outer := &ValidationErrors{}
	outer.Add("run", Settings{Device: "cpu", BatchSize: "3", Verbosity: "INFO"}.Validate())
	outer.AddMessage("server.url", "is required")

	require.Len(t, outer.Errors, 2)
	require.Equal(t, "run.batch_size", outer.Errors[0].Field)
	require.Equal(t, "server.url", outer.Errors[1].Field)
	require.True(t, errors.Is(outer.Err(), ErrInvalidSetting))
}

func TestValidSettingsHaveNoError(t *testing.T) {
	require.NoError(t, DefaultSettings().Validate())

	var empty ValidationErrors
	require.NoError(t, empty.Err())
}

func TestOneOfIsCaseSensitive(t *testing.T) {
	require.NoError(t, OneOf("cuda", DeviceOptions...))
	require.ErrorIs(t, OneOf("CUDA", DeviceOptions...), ErrInvalidSetting)
}
