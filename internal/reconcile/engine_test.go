// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package reconcile_test

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/samber/oops"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/holomush/modgate/internal/module"
	"github.com/holomush/modgate/internal/reconcile"
	"github.com/holomush/modgate/internal/reconcile/reconciletest"
	"github.com/holomush/modgate/internal/store"
	"github.com/holomush/modgate/pkg/errutil"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// MockPersister is a mock for exercising persistence failures.
type MockPersister struct {
	mock.Mock
}

func (m *MockPersister) Load(ctx context.Context) (*module.Store, error) {
	args := m.Called(ctx)
	st, _ := args.Get(0).(*module.Store)
	return st, args.Error(1)
}

func (m *MockPersister) Save(ctx context.Context, st *module.Store) error {
	args := m.Called(ctx, st)
	return args.Error(0)
}

func writeState(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o750))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
}

func readState(t *testing.T, path string) []map[string]any {
	t.Helper()
	data, err := os.ReadFile(path) //nolint:gosec // test path under TempDir
	require.NoError(t, err)
	var raw []map[string]any
	require.NoError(t, json.Unmarshal(data, &raw))
	return raw
}

// run drives both phases against host the way a host startup would.
func run(t *testing.T, host *reconciletest.Host, fs *store.FileStore, opts ...reconcile.EngineOption) (*reconcile.Engine, *reconcile.Disabled) {
	t.Helper()
	ctx := context.Background()
	e := reconcile.NewEngine(host, fs, opts...)
	require.NoError(t, e.PreLoad(ctx))
	host.Load()
	d, err := e.PostLoad(ctx)
	require.NoError(t, err)
	return e, d
}

func x264() *reconciletest.Module {
	return &reconciletest.Module{
		File: "enc-x264.so", DisplayName: "x264", ModuleID: "obs-x264", Ver: "1.0.0",
		Types: map[module.Kind][]string{module.KindEncoder: {"obs_x264"}},
	}
}

func TestEngine_DisabledModuleTypesAreBlocked(t *testing.T) {
	path := filepath.Join(t.TempDir(), "modules.json")
	writeState(t, path, `[{"display_name": "x264", "module_name": "enc-x264", "id": "", "version": "",
		"enabled": false, "sources": [], "outputs": [], "encoders": ["obs_x264"], "services": []}]`)

	host := reconciletest.NewHost(x264())
	_, d := run(t, host, store.NewFileStore(path))

	assert.True(t, host.Blacklisted("enc-x264"))
	assert.True(t, d.IsDisabled(module.KindEncoder, "obs_x264"))
	assert.True(t, d.EncoderDisabled("obs_x264"))
	assert.False(t, d.IsDisabled(module.KindSource, "obs_x264"), "sets are per kind")

	raw := readState(t, path)
	require.Len(t, raw, 1)
	assert.Equal(t, []any{"obs_x264"}, raw[0]["encoders"], "disabled module keeps its last known types")
	assert.Equal(t, false, raw[0]["enabled"])
}

func TestEngine_FreshInstallEnablesEverything(t *testing.T) {
	path := filepath.Join(t.TempDir(), "plugin_manager", "modules.json")
	host := reconciletest.NewHost(
		&reconciletest.Module{File: "image-source.so", DisplayName: "Image Source",
			Types: map[module.Kind][]string{module.KindSource: {"image_source", "slideshow"}}},
		&reconciletest.Module{File: "obs-outputs.so",
			Types: map[module.Kind][]string{module.KindOutput: {"rtmp_output"}}},
		&reconciletest.Module{File: "rtmp-services.so",
			Types: map[module.Kind][]string{module.KindService: {"rtmp_common", "rtmp_custom"}}},
	)

	e, d := run(t, host, store.NewFileStore(path))

	require.Equal(t, 3, e.Store().Len())
	e.Store().Each(func(r *module.Record) {
		assert.True(t, r.Enabled, r.ModuleName)
		assert.True(t, r.EnabledAtLaunch, r.ModuleName)
		assert.False(t, r.Missing, r.ModuleName)
	})
	for _, k := range module.Kinds {
		assert.Empty(t, d.IDs(k))
	}

	raw := readState(t, path)
	require.Len(t, raw, 3)
	assert.Equal(t, "image-source", raw[0]["module_name"])
	assert.Equal(t, []any{"image_source", "slideshow"}, raw[0]["sources"])
	assert.Equal(t, []any{"rtmp_common", "rtmp_custom"}, raw[2]["services"])
}

func TestEngine_EnabledModuleTypesFollowThisRun(t *testing.T) {
	path := filepath.Join(t.TempDir(), "modules.json")
	writeState(t, path, `[{"module_name": "obs-ffmpeg", "enabled": true,
		"sources": ["stale_source"], "outputs": ["ffmpeg_muxer"], "encoders": ["old_enc"], "services": []}]`)

	host := reconciletest.NewHost(&reconciletest.Module{
		File: "obs-ffmpeg.so",
		Types: map[module.Kind][]string{
			module.KindSource:  {"ffmpeg_source"},
			module.KindOutput:  {"ffmpeg_muxer", "ffmpeg_output"},
			module.KindEncoder: {"ffmpeg_aac", "ffmpeg_opus"},
		},
	})

	e, d := run(t, host, store.NewFileStore(path))

	rec, ok := e.Store().Get("obs-ffmpeg")
	require.True(t, ok)
	assert.Equal(t, []string{"ffmpeg_source"}, rec.Sources)
	assert.Equal(t, []string{"ffmpeg_muxer", "ffmpeg_output"}, rec.Outputs)
	assert.Equal(t, []string{"ffmpeg_aac", "ffmpeg_opus"}, rec.Encoders)
	assert.Empty(t, rec.Services)
	for _, k := range module.Kinds {
		assert.Empty(t, rec.Loaded(k), "per-run types are discarded after reconciliation")
	}

	assert.False(t, d.SourceDisabled("stale_source"))
	assert.False(t, d.OutputDisabled("ffmpeg_muxer"))
}

func TestEngine_MandatoryModulesAreNeverTracked(t *testing.T) {
	path := filepath.Join(t.TempDir(), "modules.json")
	host := reconciletest.NewHost(
		&reconciletest.Module{File: "obs-core.so", Mandatory: true,
			Types: map[module.Kind][]string{module.KindSource: {"scene"}}},
		x264(),
	)

	e, d := run(t, host, store.NewFileStore(path))

	_, ok := e.Store().Get("obs-core")
	assert.False(t, ok)
	assert.Equal(t, 1, e.Store().Len())
	assert.False(t, d.SourceDisabled("scene"))
	for _, r := range readState(t, path) {
		assert.NotEqual(t, "obs-core", r["module_name"])
	}
}

func TestEngine_UnattributedTypesAreIgnored(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := reconcile.NewMetrics(reg)

	host := reconciletest.NewHost(x264())
	host.AddCoreType(module.KindSource, "scene")
	host.AddCoreType(module.KindService, "core_service")

	e, d := run(t, host, store.NewFileStore(filepath.Join(t.TempDir(), "modules.json")),
		reconcile.WithMetrics(metrics))

	rec, _ := e.Store().Get("enc-x264")
	assert.Empty(t, rec.Sources)
	assert.False(t, d.SourceDisabled("scene"))
	assert.False(t, d.IsDisabled(module.KindEncoder, "unknown_encoder"))
	assert.InDelta(t, 1, testutil.ToFloat64(metrics.UnattributedTypes.WithLabelValues("source")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(metrics.UnattributedTypes.WithLabelValues("service")), 0)
}

func TestEngine_RepeatedRunsKeepNamesUnique(t *testing.T) {
	path := filepath.Join(t.TempDir(), "modules.json")
	fs := store.NewFileStore(path)

	for i, ver := range []string{"1.0.0", "1.1.0", "1.1.0"} {
		m := x264()
		m.Ver = ver
		m.DisplayName = "x264 run " + ver
		e, _ := run(t, reconciletest.NewHost(m), fs)

		require.Equal(t, 1, e.Store().Len(), "run %d", i)
		rec, _ := e.Store().Get("enc-x264")
		assert.Equal(t, ver, rec.Version)
		assert.Equal(t, "x264 run "+ver, rec.DisplayName)
	}
	assert.Len(t, readState(t, path), 1)
}

func TestEngine_RefreshKeepsEnabledFlags(t *testing.T) {
	path := filepath.Join(t.TempDir(), "modules.json")
	writeState(t, path, `[{"module_name": "enc-x264", "display_name": "old", "enabled": false, "encoders": ["obs_x264"]}]`)

	// A host that ignores the blacklist still reports the module as loaded.
	host := reconciletest.NewHost(x264())
	host.IgnoreBlacklist = true
	ctx := context.Background()
	e := reconcile.NewEngine(host, store.NewFileStore(path))
	require.NoError(t, e.PreLoad(ctx))
	host.Load()
	d, err := e.PostLoad(ctx)
	require.NoError(t, err)

	rec, _ := e.Store().Get("enc-x264")
	assert.Equal(t, "x264", rec.DisplayName)
	assert.False(t, rec.Enabled)
	assert.False(t, rec.EnabledAtLaunch)
	assert.True(t, d.EncoderDisabled("obs_x264"))
}

func TestEngine_MissingEnabledModuleIsFlagged(t *testing.T) {
	path := filepath.Join(t.TempDir(), "modules.json")
	writeState(t, path, `[
		{"module_name": "gone", "enabled": true, "sources": ["gone_source"]},
		{"module_name": "off", "enabled": false, "sources": ["off_source"]}
	]`)

	e, d := run(t, reconciletest.NewHost(), store.NewFileStore(path))

	gone, _ := e.Store().Get("gone")
	assert.True(t, gone.Missing)
	assert.Empty(t, gone.Sources)
	off, _ := e.Store().Get("off")
	assert.False(t, off.Missing, "disabled modules are not expected to load")
	assert.True(t, d.SourceDisabled("off_source"))
}

func TestEngine_CorruptStateFallsBackToEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "modules.json")
	writeState(t, path, `[{"module_name": "enc-x264", "enabled": fal`)

	e, d := run(t, reconciletest.NewHost(x264()), store.NewFileStore(path))

	rec, ok := e.Store().Get("enc-x264")
	require.True(t, ok)
	assert.True(t, rec.Enabled)
	assert.False(t, d.EncoderDisabled("obs_x264"))
	assert.Len(t, readState(t, path), 1, "corrupt file is replaced on save")
}

func TestEngine_PreLoadPropagatesReadErrors(t *testing.T) {
	p := new(MockPersister)
	p.On("Load", mock.Anything).Return(nil, oops.Code("CONFIG_READ").Errorf("permission denied"))

	e := reconcile.NewEngine(reconciletest.NewHost(), p)
	err := e.PreLoad(context.Background())
	require.Error(t, err)
	errutil.AssertErrorCode(t, err, "CONFIG_READ")
	p.AssertExpectations(t)
}

func TestEngine_SaveFailureStillReturnsDisabled(t *testing.T) {
	st := module.NewStore()
	_, err := st.Put(module.Record{ModuleName: "enc-x264", Encoders: []string{"obs_x264"}})
	require.NoError(t, err)

	p := new(MockPersister)
	p.On("Load", mock.Anything).Return(st, nil)
	p.On("Save", mock.Anything, st).Return(oops.Code("CONFIG_WRITE").With("path", "/ro/modules.json").Errorf("read-only file system"))

	host := reconciletest.NewHost(x264())
	e := reconcile.NewEngine(host, p)
	require.NoError(t, e.PreLoad(context.Background()))
	host.Load()
	d, err := e.PostLoad(context.Background())

	require.Error(t, err)
	errutil.AssertErrorCode(t, err, "CONFIG_WRITE")
	require.NotNil(t, d)
	assert.True(t, d.EncoderDisabled("obs_x264"))
	assert.Same(t, d, e.Disabled())
	p.AssertExpectations(t)
}

func TestEngine_PhaseOrder(t *testing.T) {
	ctx := context.Background()
	fs := store.NewFileStore(filepath.Join(t.TempDir(), "modules.json"))
	e := reconcile.NewEngine(reconciletest.NewHost(), fs)

	_, err := e.PostLoad(ctx)
	errutil.AssertErrorCode(t, err, "PHASE_ORDER")
	assert.Nil(t, e.Disabled())

	require.NoError(t, e.PreLoad(ctx))
	errutil.AssertErrorCode(t, e.PreLoad(ctx), "PHASE_ORDER")

	_, err = e.PostLoad(ctx)
	require.NoError(t, err)
	_, err = e.PostLoad(ctx)
	errutil.AssertErrorCode(t, err, "PHASE_ORDER")
}

func TestEngine_SkipsModulesWithoutFileName(t *testing.T) {
	host := reconciletest.NewHost(&reconciletest.Module{File: ".so", DisplayName: "ghost"})
	e, _ := run(t, host, store.NewFileStore(filepath.Join(t.TempDir(), "modules.json")))

	assert.Equal(t, 0, e.Store().Len())
}

func TestEngine_Metrics(t *testing.T) {
	path := filepath.Join(t.TempDir(), "modules.json")
	writeState(t, path, `[{"module_name": "enc-x264", "enabled": false, "encoders": ["obs_x264", "obs_x264_hq"]}]`)

	reg := prometheus.NewRegistry()
	metrics := reconcile.NewMetrics(reg)
	host := reconciletest.NewHost(x264(), &reconciletest.Module{File: "obs-filters.so"})

	run(t, host, store.NewFileStore(path), reconcile.WithMetrics(metrics))

	assert.InDelta(t, 2, testutil.ToFloat64(metrics.ModulesTracked), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(metrics.ModulesDisabled), 0)
	assert.InDelta(t, 2, testutil.ToFloat64(metrics.DisabledTypes.WithLabelValues("encoder")), 0)
	assert.InDelta(t, 0, testutil.ToFloat64(metrics.DisabledTypes.WithLabelValues("source")), 0)
}

func TestEngine_RunIDsAreUnique(t *testing.T) {
	fs := store.NewFileStore(filepath.Join(t.TempDir(), "modules.json"))
	a := reconcile.NewEngine(reconciletest.NewHost(), fs)
	b := reconcile.NewEngine(reconciletest.NewHost(), fs)

	assert.NotEqual(t, a.RunID(), b.RunID())
}
