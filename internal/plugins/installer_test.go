// ABOUTME: Tests for simulated plugin installation from archives and repository URLs.
// ABOUTME: Covers identity derivation, template selection, state transitions, and audit records.

package plugins

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/2389/altair-gateway/internal/store"
)

type eventRecorder struct {
	mu     sync.Mutex
	events []*store.InstallEvent
}

func (r *eventRecorder) RecordInstall(_ context.Context, e *store.InstallEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return nil
}

type transitionLog struct {
	mu    sync.Mutex
	steps []InstallState
}

func (l *transitionLog) observe(_ string, _, to InstallState) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.steps = append(l.steps, to)
}

func newTestInstaller(t *testing.T, builtinIDs ...string) (*Registry, *Installer, *eventRecorder, *transitionLog) {
	t.Helper()
	reg := NewRegistry(testLogger())
	for _, id := range builtinIDs {
		require.NoError(t, reg.RegisterBuiltin(newTestPlugin(id, "cap_"+id, nil)))
	}
	rec := &eventRecorder{}
	steps := &transitionLog{}
	inst := NewInstaller(InstallerConfig{
		Registry:        reg,
		Recorder:        rec,
		OnTransition:    steps.observe,
		ArchiveDelay:    -1,
		RepositoryDelay: -1,
		RepositoryHost:  DefaultRepositoryHost,
		Logger:          testLogger(),
	})
	return reg, inst, rec, steps
}

func TestInstallFromArchive(t *testing.T) {
	ctx := context.Background()

	t.Run("known demo archive", func(t *testing.T) {
		reg, inst, _, _ := newTestInstaller(t, "timer", "todo", "clock")

		p, err := inst.InstallFromPackage(ctx, ArchivePackage("calculator.zip", []byte("PK")))
		require.NoError(t, err)
		assert.Equal(t, "calculator", p.ID)
		assert.Equal(t, "Calculator", p.Name)

		got, ok := reg.Lookup("calculator")
		require.True(t, ok)
		assert.Same(t, p, got)
	})

	t.Run("notes archive has its own version", func(t *testing.T) {
		_, inst, _, _ := newTestInstaller(t, "timer")
		p, err := inst.InstallFromPackage(ctx, ArchivePackage("notes.zip", nil))
		require.NoError(t, err)
		assert.Equal(t, "notes", p.ID)
		assert.Equal(t, "1.1.0", p.Version)
	})

	t.Run("unknown archive uses file stem", func(t *testing.T) {
		_, inst, _, _ := newTestInstaller(t, "timer")
		p, err := inst.InstallFromPackage(ctx, ArchivePackage("foo.zip", nil))
		require.NoError(t, err)
		assert.Equal(t, "foo", p.ID)
		assert.Equal(t, "Foo Plugin", p.Name)
		assert.Equal(t, "Foo Plugin (installed from archive)", p.Description)
		assert.Equal(t, "1.0.0", p.Version)
	})

	t.Run("directory components are ignored", func(t *testing.T) {
		_, inst, _, _ := newTestInstaller(t, "timer")
		p, err := inst.InstallFromPackage(ctx, ArchivePackage(`C:\Downloads\weather.zip`, nil))
		require.NoError(t, err)
		assert.Equal(t, "weather", p.ID)
	})

	t.Run("empty stem is a parse error", func(t *testing.T) {
		_, inst, _, _ := newTestInstaller(t, "timer")
		_, err := inst.InstallFromPackage(ctx, ArchivePackage(".zip", nil))
		assert.ErrorIs(t, err, ErrParse)
	})
}

func TestInstallFromModule(t *testing.T) {
	ctx := context.Background()

	for _, name := range []string{"dice.js", "dice.ts", "dice.tsx", `src\dice.JSX`} {
		t.Run(name, func(t *testing.T) {
			_, inst, rec, _ := newTestInstaller(t, "timer")
			p, err := inst.InstallFromPackage(ctx, ArchivePackage(name, []byte("export default {}")))
			require.NoError(t, err)
			assert.Equal(t, "dice", p.ID)
			assert.Equal(t, "Dice Plugin", p.Name)
			assert.Equal(t, "Plugin from "+uploadBase(name), p.Description)
			assert.Equal(t, "User", p.Author)
			assert.Equal(t, "cap_timer", p.Declaration.Name)

			require.Len(t, rec.events, 1)
			assert.Equal(t, string(KindModule), rec.events[0].Kind)
			assert.NotEmpty(t, rec.events[0].Digest)
		})
	}
}

func TestInstallRejectsUnsupportedFiles(t *testing.T) {
	ctx := context.Background()

	for _, name := range []string{"plugin.tar.gz", "readme.md", "noextension", "calculator.zip.exe"} {
		t.Run(name, func(t *testing.T) {
			reg, inst, rec, _ := newTestInstaller(t, "timer")
			before := reg.Len()

			_, err := inst.InstallFromPackage(ctx, ArchivePackage(name, nil))
			assert.ErrorIs(t, err, ErrParse)
			var perr *ParseError
			require.ErrorAs(t, err, &perr)
			assert.Contains(t, perr.Reason, "unsupported file type")
			assert.Equal(t, before, reg.Len())
			require.Len(t, rec.events, 1)
			assert.Equal(t, string(StateFailed), rec.events[0].State)
		})
	}
}

func TestInstallFromRepository(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		url    string
		id     string
		name   string
		author string
	}{
		{"https://github.com/acme/weather-widget", "weatherwidget", "Weather Widget Plugin", "acme"},
		{"https://github.com/acme/pomodoro_timer/tree/main", "pomodorotimer", "Pomodoro Timer Plugin", "acme"},
		{"https://github.com/someone/Dice.Roller.git", "diceroller", "Dice.Roller Plugin", "someone"},
	}
	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			_, inst, _, _ := newTestInstaller(t, "timer")
			p, err := inst.InstallFromPackage(ctx, RepositoryPackage(tt.url))
			require.NoError(t, err)
			assert.Equal(t, tt.id, p.ID)
			assert.Equal(t, tt.name, p.Name)
			assert.Equal(t, tt.author, p.Author)
			assert.Equal(t, "1.0.0", p.Version)
		})
	}
}

func TestInstallParseErrors(t *testing.T) {
	ctx := context.Background()
	urls := []string{
		"",
		"not a url",
		"http://github.com/acme/repo",
		"https://github.com/acme",
		"https://gitlab.com/acme/repo",
		"https://github.com/acme/---",
	}
	for _, u := range urls {
		t.Run(u, func(t *testing.T) {
			reg, inst, rec, steps := newTestInstaller(t, "timer")
			_, err := inst.InstallFromPackage(ctx, RepositoryPackage(u))
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrParse)

			var perr *ParseError
			require.True(t, errors.As(err, &perr))
			assert.Equal(t, 1, reg.Len())

			require.NotEmpty(t, steps.steps)
			assert.Equal(t, StateFailed, steps.steps[len(steps.steps)-1])
			require.Len(t, rec.events, 1)
			assert.Equal(t, string(StateFailed), rec.events[0].State)
			assert.NotEmpty(t, rec.events[0].Error)
		})
	}
}

func TestInstallAnyHostWhenUnrestricted(t *testing.T) {
	reg := NewRegistry(testLogger())
	require.NoError(t, reg.RegisterBuiltin(newTestPlugin("timer", "start_timer", nil)))
	inst := NewInstaller(InstallerConfig{Registry: reg, RepositoryDelay: -1, Logger: testLogger()})

	p, err := inst.InstallFromPackage(context.Background(), RepositoryPackage("https://gitlab.com/acme/notes-app"))
	require.NoError(t, err)
	assert.Equal(t, "notesapp", p.ID)
}

func TestInstallNoTemplate(t *testing.T) {
	_, inst, _, steps := newTestInstaller(t)

	_, err := inst.InstallFromPackage(context.Background(), ArchivePackage("foo.zip", nil))
	assert.ErrorIs(t, err, ErrNoTemplate)
	assert.Equal(t, []InstallState{StateClassified, StateIdentityDerived, StateFailed}, steps.steps)
}

func TestInstallTemplateSelection(t *testing.T) {
	ctx := context.Background()
	tests := []struct {
		name     string
		catalog  []string
		template string
	}{
		{"clock preferred", []string{"timer", "todo", "clock"}, "clock"},
		{"timer next", []string{"todo", "timer"}, "timer"},
		{"todo next", []string{"openWebsite", "todo"}, "todo"},
		{"first entry fallback", []string{"openWebsite", "stopwatch"}, "openWebsite"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reg, inst, _, _ := newTestInstaller(t, tt.catalog...)
			tmpl, _ := reg.Lookup(tt.template)

			p, err := inst.InstallFromPackage(ctx, ArchivePackage("foo.zip", nil))
			require.NoError(t, err)
			assert.Equal(t, tmpl.Declaration, p.Declaration)
			assert.Same(t, tmpl.Handler, p.Handler)
			assert.Equal(t, tmpl.Presentation, p.Presentation)
		})
	}
}

func TestInstallTransitionsAndAudit(t *testing.T) {
	_, inst, rec, steps := newTestInstaller(t, "timer")

	p, err := inst.InstallFromPackage(context.Background(), ArchivePackage("foo.zip", []byte("archive bytes")))
	require.NoError(t, err)

	assert.Equal(t, []InstallState{
		StateClassified,
		StateIdentityDerived,
		StateTemplateSelected,
		StateRegistered,
	}, steps.steps)

	require.Len(t, rec.events, 1)
	e := rec.events[0]
	assert.Equal(t, string(KindArchive), e.Kind)
	assert.Equal(t, "foo.zip", e.Source)
	assert.Equal(t, p.ID, e.PluginID)
	assert.Equal(t, string(StateRegistered), e.State)
	assert.Len(t, e.Digest, 64)
	assert.Empty(t, e.Error)
}

func TestInstallHonoursCancellation(t *testing.T) {
	reg := NewRegistry(testLogger())
	require.NoError(t, reg.RegisterBuiltin(newTestPlugin("timer", "start_timer", nil)))
	inst := NewInstaller(InstallerConfig{Registry: reg, ArchiveDelay: time.Minute, Logger: testLogger()})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := inst.InstallFromPackage(ctx, ArchivePackage("foo.zip", nil))
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, reg.Len())
}

func TestInstallerUninstall(t *testing.T) {
	reg, inst, _, _ := newTestInstaller(t, "timer")
	_, err := inst.InstallFromPackage(context.Background(), ArchivePackage("foo.zip", nil))
	require.NoError(t, err)
	assert.Equal(t, []string{"foo"}, inst.InstalledIDs())

	assert.ErrorIs(t, inst.Uninstall("timer"), ErrProtected)
	require.NoError(t, inst.Uninstall("foo"))
	assert.Empty(t, inst.InstalledIDs())
	assert.Equal(t, 1, reg.Len())
}

func TestCreatePluginStructure(t *testing.T) {
	reg, inst, _, _ := newTestInstaller(t, "todo", "timer")

	p, err := inst.CreatePluginStructure("weather", Metadata{})
	require.NoError(t, err)
	assert.Equal(t, "weather", p.ID)
	assert.Equal(t, "Weather Plugin", p.Name)
	assert.Equal(t, "New weather plugin", p.Description)
	assert.Equal(t, "1.0.0", p.Version)
	assert.Equal(t, "User Created", p.Author)
	assert.Equal(t, "cap_timer", p.Declaration.Name)

	_, registered := reg.Lookup("weather")
	assert.False(t, registered)

	_, err = inst.CreatePluginStructure("", Metadata{})
	assert.ErrorIs(t, err, ErrValidation)
}

func TestArchiveIdentityProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		stem := rapid.StringMatching(`[a-z][a-z0-9_-]{0,15}`).Draw(t, "stem")
		filename := stem + ".zip"
		if _, known := knownArchives[filename]; known {
			return
		}
		meta, err := archiveIdentity(filename)
		if err != nil {
			t.Fatalf("archiveIdentity(%q): %v", filename, err)
		}
		if meta.ID != stem {
			t.Fatalf("expected id %q, got %q", stem, meta.ID)
		}
	})
}
