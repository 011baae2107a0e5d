// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

//go:build integration

package modstate_test

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2" //nolint:revive // ginkgo convention
	. "github.com/onsi/gomega"    //nolint:revive // gomega convention
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/holomush/modgate/internal/module"
	"github.com/holomush/modgate/internal/plugin"
	"github.com/holomush/modgate/internal/reconcile"
	"github.com/holomush/modgate/internal/session"
	"github.com/holomush/modgate/internal/store"
)

// launch is one host run: reconcile, load, reconcile.
type launch struct {
	engine   *reconcile.Engine
	manager  *plugin.Manager
	disabled *reconcile.Disabled
	metrics  *reconcile.Metrics
}

var _ = Describe("Module state across launches", func() {
	var (
		ctx        context.Context
		logger     *slog.Logger
		modulesDir string
		stateFile  string
	)

	install := func(file, manifest string) {
		dir := filepath.Join(modulesDir, file)
		Expect(os.MkdirAll(dir, 0o750)).To(Succeed())
		Expect(os.WriteFile(filepath.Join(dir, plugin.ManifestFile), []byte(manifest), 0o600)).To(Succeed())
		Expect(os.WriteFile(filepath.Join(dir, file), []byte("bin"), 0o600)).To(Succeed())
	}

	uninstall := func(file string) {
		Expect(os.RemoveAll(filepath.Join(modulesDir, file))).To(Succeed())
	}

	run := func() *launch {
		l := &launch{
			manager: plugin.NewManager(modulesDir,
				plugin.WithLogger(logger),
				plugin.WithCoreTypes(module.KindSource, "scene", "group")),
			metrics: reconcile.NewMetrics(prometheus.NewRegistry()),
		}
		l.engine = reconcile.NewEngine(l.manager, store.NewFileStore(stateFile, store.WithLogger(logger)),
			reconcile.WithLogger(logger), reconcile.WithMetrics(l.metrics))

		Expect(l.engine.PreLoad(ctx)).To(Succeed())
		Expect(l.manager.LoadAll(ctx)).To(Succeed())
		d, err := l.engine.PostLoad(ctx)
		Expect(err).NotTo(HaveOccurred())
		l.disabled = d
		return l
	}

	edit := func(l *launch, enabled bool, patterns ...string) session.Result {
		s := session.New(l.engine.Store(), store.NewFileStore(stateFile), session.WithLogger(logger))
		mods := s.Modules()
		_, err := session.SetEnabled(mods, patterns, enabled)
		Expect(err).NotTo(HaveOccurred())
		res, err := s.Accept(ctx, mods)
		Expect(err).NotTo(HaveOccurred())
		return res
	}

	BeforeEach(func() {
		ctx = context.Background()
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
		modulesDir = GinkgoT().TempDir()
		stateFile = filepath.Join(GinkgoT().TempDir(), "plugin_manager", "modules.json")

		install("obs-x264.so", "name: x264\nversion: 1.0.0\nfile: obs-x264.so\nencoders: [obs_x264]\n")
		install("obs-ffmpeg.so", "name: FFmpeg\nfile: obs-ffmpeg.so\nsources: [ffmpeg_source, vlc_source]\nencoders: [ffmpeg_aac]\n")
		install("frontend-tools.so", "name: Tools\nfile: frontend-tools.so\nallow-disable: false\nservices: [scripting]\n")
	})

	It("tracks every disableable module on the first launch", func() {
		l := run()

		Expect(l.engine.Store().Len()).To(Equal(2))
		for _, kind := range module.Kinds {
			Expect(l.disabled.Len(kind)).To(BeZero())
		}
		Expect(stateFile).To(BeAnExistingFile())

		rec, ok := l.engine.Store().Get("obs-ffmpeg")
		Expect(ok).To(BeTrue())
		Expect(rec.Sources).To(Equal([]string{"ffmpeg_source", "vlc_source"}))
		Expect(rec.Encoders).To(Equal([]string{"ffmpeg_aac"}))
	})

	It("blocks a disabled module's types on the next launch", func() {
		first := run()
		res := edit(first, false, "obs-ffmpeg")
		Expect(res.RestartRequired).To(BeTrue())
		Expect(first.disabled.SourceDisabled("ffmpeg_source")).To(BeFalse(), "toggling never affects the running launch")

		second := run()
		Expect(second.manager.ListModules()).To(ConsistOf("frontend-tools", "obs-x264"))
		Expect(second.disabled.SourceDisabled("ffmpeg_source")).To(BeTrue())
		Expect(second.disabled.SourceDisabled("vlc_source")).To(BeTrue())
		Expect(second.disabled.EncoderDisabled("ffmpeg_aac")).To(BeTrue())
		Expect(second.disabled.EncoderDisabled("obs_x264")).To(BeFalse())
		Expect(second.disabled.SourceDisabled("scene")).To(BeFalse())
		Expect(testutil.ToFloat64(second.metrics.ModulesDisabled)).To(Equal(1.0))

		third := run()
		Expect(third.disabled.IDs(module.KindSource)).To(Equal([]string{"ffmpeg_source", "vlc_source"}),
			"persisted lists survive launches while disabled")
	})

	It("re-enables a module and refreshes its types", func() {
		edit(run(), false, "obs-ffmpeg")
		run()

		install("obs-ffmpeg.so", "name: FFmpeg\nversion: 2.0.0\nfile: obs-ffmpeg.so\nsources: [ffmpeg_source]\n")
		l := run()
		edit(l, true, "obs-*")

		after := run()
		Expect(after.disabled.Len(module.KindSource)).To(BeZero())
		rec, ok := after.engine.Store().Get("obs-ffmpeg")
		Expect(ok).To(BeTrue())
		Expect(rec.Version).To(Equal("2.0.0"))
		Expect(rec.Sources).To(Equal([]string{"ffmpeg_source"}))
		Expect(rec.Encoders).To(BeEmpty())
	})

	It("keeps records for uninstalled modules", func() {
		run()
		uninstall("obs-x264.so")

		l := run()
		rec, ok := l.engine.Store().Get("obs-x264")
		Expect(ok).To(BeTrue())
		Expect(rec.Enabled).To(BeTrue())
		Expect(rec.Missing).To(BeTrue())
		Expect(rec.Encoders).To(BeEmpty())
	})

	It("starts over from an empty store when the state file is corrupt", func() {
		run()
		Expect(os.WriteFile(stateFile, []byte("{oops"), 0o600)).To(Succeed())

		l := run()
		Expect(l.engine.Store().Len()).To(Equal(2))
		data, err := os.ReadFile(stateFile)
		Expect(err).NotTo(HaveOccurred())
		Expect(store.ValidateDocument(data)).To(Succeed())
	})
})
