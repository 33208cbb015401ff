package flowgraph

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestDefaultSettingsIsASingleton(t *testing.T) {
	assert.Same(t, DefaultSettings(), DefaultSettings())
}

func TestSettingsRedefineDefaultSwapsPool(t *testing.T) {
	s := newDefaultSettings()
	original := s.workPool()
	t.Cleanup(original.shutdown)
	s.RedefineDefault(Work, func() *executorPool { return newExecutorPool(1) })
	assert.NotSame(t, original, s.workPool())
	t.Cleanup(s.ShutdownNow)
}

func TestSettingsDebugLoggerNilUnlessEnabled(t *testing.T) {
	s := newDefaultSettings()
	t.Cleanup(s.ShutdownNow)
	assert.Nil(t, s.debugLogger())
	s.SetDebugMode(true)
	assert.NotNil(t, s.debugLogger())
}

func TestSettingsSetLoggerRejectsNil(t *testing.T) {
	s := newDefaultSettings()
	t.Cleanup(s.ShutdownNow)
	s.SetLogger(nil)
	s.SetDebugMode(true)
	require.NotNil(t, s.debugLogger())
}

func TestSettingsShutdownNowStopsPoolsAndDestroysModels(t *testing.T) {
	s := newDefaultSettings()
	destroyed := false
	s.Registry().Load(RegistryEntry{
		Tag: "m",
		Factory: func(*Registry) any {
			return &fakeModel{onDestroy: func() { destroyed = true }}
		},
		Kind: PlainModel,
	})
	s.Registry().Get("m")
	s.ShutdownNow()
	assert.True(t, destroyed)

	err := s.workPool().submit(func() {})
	assert.ErrorIs(t, err, ErrShutdownInProgress)
}

func TestDebugLogCallsZapWhenEnabled(t *testing.T) {
	// debugLog reads through DefaultSettings (the global singleton), not an
	// arbitrary Settings instance, so it must be exercised against it
	// directly rather than against a fresh newDefaultSettings().
	core, logs := observer.New(zapcore.DebugLevel)
	DefaultSettings().SetLogger(zap.New(core))
	DefaultSettings().SetDebugMode(true)
	t.Cleanup(func() {
		DefaultSettings().SetDebugMode(false)
		DefaultSettings().SetLogger(nil)
	})

	debugLog("node-x", "test.event", zap.Int("n", 1))

	entries := logs.All()
	require.Len(t, entries, 1)
	assert.Equal(t, "test.event", entries[0].Message)
}

func TestDebugLogIsNoopWhenDisabled(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	DefaultSettings().SetLogger(zap.New(core))
	DefaultSettings().SetDebugMode(false)
	t.Cleanup(func() { DefaultSettings().SetLogger(nil) })

	debugLog("node-x", "test.event")
	assert.Equal(t, 0, logs.Len())
}

type fakeModel struct {
	onDestroy func()
}

func (m *fakeModel) OnDestroy() {
	if m.onDestroy != nil {
		m.onDestroy()
	}
}
