package qlog

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJSONLoggerEmitsFieldsAndMessage(t *testing.T) {
	var buf bytes.Buffer
	l := NewJSON(&buf, false)

	l.Info().WithField("path", "a/b").WithMessage("cache hit").Write()

	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	assert.Equal(t, "cache hit", decoded["message"])
	assert.Equal(t, "a/b", decoded["path"])
}

func TestErrorEntryCarriesError(t *testing.T) {
	var buf bytes.Buffer
	l := NewJSON(&buf, false)

	l.Error(errors.New("boom")).WithMessage("fetch failed").Write()

	assert.True(t, strings.Contains(buf.String(), "boom"))
	assert.True(t, strings.Contains(buf.String(), "fetch failed"))
}

func TestDebugSuppressedWhenDisabled(t *testing.T) {
	var buf bytes.Buffer
	l := NewJSON(&buf, false)

	l.Debug().WithMessage("should not appear").Write()

	assert.Empty(t, buf.String())
}

func TestDebugEmittedWhenEnabled(t *testing.T) {
	var buf bytes.Buffer
	l := NewJSON(&buf, true)

	l.Debug().WithMessage("visible").Write()

	assert.Contains(t, buf.String(), "visible")
}

func TestWithFieldsAttachesMultiple(t *testing.T) {
	var buf bytes.Buffer
	l := NewJSON(&buf, false)

	l.Info().WithFields(map[string]interface{}{"a": 1, "b": "two"}).WithMessage("multi").Write()

	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	assert.EqualValues(t, 1, decoded["a"])
	assert.Equal(t, "two", decoded["b"])
}
