// ABOUTME: Simulated plugin installation from an uploaded archive or a repository URL.
// ABOUTME: Installed plugins clone a template's behavior; no foreign code ever runs.

package plugins

import (
	"context"
	"encoding/hex"
	"log/slog"
	"path"
	"regexp"
	"strings"
	"sync"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/google/uuid"
	"golang.org/x/crypto/blake2b"

	"github.com/2389/altair-gateway/internal/store"
)

// InstallState is a step of an installation attempt.
type InstallState string

// Installation attempt states. Registered and Failed are terminal.
const (
	StateReceived         InstallState = "received"
	StateClassified       InstallState = "classified"
	StateIdentityDerived  InstallState = "identity_derived"
	StateTemplateSelected InstallState = "template_selected"
	StateRegistered       InstallState = "registered"
	StateFailed           InstallState = "failed"
)

// PackageKind classifies a package descriptor.
type PackageKind string

// Package kinds.
const (
	KindArchive    PackageKind = "archive"
	KindModule     PackageKind = "module"
	KindRepository PackageKind = "repository"
)

// moduleExtensions are the script files accepted as single-module uploads.
var moduleExtensions = map[string]bool{".js": true, ".ts": true, ".jsx": true, ".tsx": true}

// Default simulated processing delays.
const (
	DefaultArchiveDelay    = 1000 * time.Millisecond
	DefaultRepositoryDelay = 1500 * time.Millisecond
	DefaultRepositoryHost  = "github.com"
	defaultVersion         = "1.0.0"
	defaultAuthor          = "Altair"
)

// templatePriority lists the ids preferred as cloning templates.
var templatePriority = []string{"clock", "timer", "todo"}

// repositoryPattern matches https://<host>/<owner>/<repo>(/...)?
var repositoryPattern = regexp.MustCompile(`^https://([^/]+)/([^/]+)/([^/]+)(/.*)?$`)

var nonAlphanumeric = regexp.MustCompile(`[^a-z0-9]`)

// PackageDescriptor is an install input: either an archive (Filename set)
// or a repository reference (URL set).
type PackageDescriptor struct {
	Filename string
	Data     []byte
	URL      string
}

// ArchivePackage describes an uploaded file: a .zip archive or a single
// .js/.ts module.
func ArchivePackage(filename string, data []byte) PackageDescriptor {
	return PackageDescriptor{Filename: filename, Data: data}
}

// RepositoryPackage describes a remote repository reference.
func RepositoryPackage(url string) PackageDescriptor {
	return PackageDescriptor{URL: url}
}

// source returns the human-readable origin of the descriptor.
func (d PackageDescriptor) source() string {
	if d.Filename != "" {
		return d.Filename
	}
	return d.URL
}

// Metadata is the identity part of a plugin record.
type Metadata struct {
	ID          string
	Name        string
	Description string
	Version     string
	Author      string
}

// knownArchives maps demo archive filenames to their richer metadata.
var knownArchives = map[string]Metadata{
	"stopwatch.zip": {
		ID:          "zipStopwatch",
		Name:        "Stopwatch (from archive)",
		Description: "Stopwatch with lap counting and multiple instances",
		Version:     "1.0.0",
		Author:      defaultAuthor,
	},
	"calculator.zip": {
		ID:          "calculator",
		Name:        "Calculator",
		Description: "Simple calculator for basic arithmetic",
		Version:     "1.0.0",
		Author:      defaultAuthor,
	},
	"notes.zip": {
		ID:          "notes",
		Name:        "Notes",
		Description: "Simple note taking",
		Version:     "1.1.0",
		Author:      defaultAuthor,
	},
}

// InstallRecorder keeps an audit trail of installation attempts.
type InstallRecorder interface {
	RecordInstall(ctx context.Context, event *store.InstallEvent) error
}

// TransitionFunc observes installation state changes.
type TransitionFunc func(attemptID string, from, to InstallState)

// InstallerConfig contains configuration options for the Installer.
type InstallerConfig struct {
	Registry        *Registry
	Scheduler       *Scheduler
	Recorder        InstallRecorder // optional
	OnTransition    TransitionFunc  // optional
	ArchiveDelay    time.Duration
	RepositoryDelay time.Duration
	RepositoryHost  string // empty accepts any host
	Logger          *slog.Logger
}

// Installer fabricates plugin records from package descriptors.
type Installer struct {
	registry        *Registry
	scheduler       *Scheduler
	recorder        InstallRecorder
	onTransition    TransitionFunc
	archiveDelay    time.Duration
	repositoryDelay time.Duration
	repositoryHost  string
	logger          *slog.Logger

	mu        sync.Mutex
	installed map[string]struct{}
}

// NewInstaller creates an Installer with the given configuration.
// Negative delays disable the simulated processing time.
func NewInstaller(cfg InstallerConfig) *Installer {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	scheduler := cfg.Scheduler
	if scheduler == nil {
		scheduler = NewScheduler(logger)
	}
	archiveDelay := cfg.ArchiveDelay
	if archiveDelay == 0 {
		archiveDelay = DefaultArchiveDelay
	}
	repositoryDelay := cfg.RepositoryDelay
	if repositoryDelay == 0 {
		repositoryDelay = DefaultRepositoryDelay
	}
	return &Installer{
		registry:        cfg.Registry,
		scheduler:       scheduler,
		recorder:        cfg.Recorder,
		onTransition:    cfg.OnTransition,
		archiveDelay:    archiveDelay,
		repositoryDelay: repositoryDelay,
		repositoryHost:  cfg.RepositoryHost,
		logger:          logger.With("component", "installer"),
		installed:       make(map[string]struct{}),
	}
}

// attempt tracks one run through the installation state machine.
type attempt struct {
	id     string
	state  InstallState
	kind   PackageKind
	source string
	digest string
}

func (i *Installer) transition(a *attempt, to InstallState) {
	from := a.state
	a.state = to
	i.logger.Debug("install state changed",
		"attempt_id", a.id,
		"from", from,
		"to", to,
	)
	if i.onTransition != nil {
		i.onTransition(a.id, from, to)
	}
}

// InstallFromPackage classifies desc, derives the plugin identity, clones a
// template plugin's behavior under that identity, and registers the result.
func (i *Installer) InstallFromPackage(ctx context.Context, desc PackageDescriptor) (*Plugin, error) {
	a := &attempt{
		id:     uuid.New().String(),
		state:  StateReceived,
		source: desc.source(),
	}
	i.logger.Info("installing plugin package", "attempt_id", a.id, "source", a.source)

	p, err := i.install(ctx, a, desc)
	if err != nil {
		i.transition(a, StateFailed)
		i.logger.Warn("plugin installation failed", "attempt_id", a.id, "source", a.source, "error", err)
		i.record(ctx, a, "", err)
		return nil, err
	}

	i.logger.Info("plugin installed",
		"attempt_id", a.id,
		"plugin_id", p.ID,
		"kind", a.kind,
		"source", a.source,
	)
	i.record(ctx, a, p.ID, nil)
	return p, nil
}

func (i *Installer) install(ctx context.Context, a *attempt, desc PackageDescriptor) (*Plugin, error) {
	kind, match, err := i.classify(desc)
	if err != nil {
		return nil, err
	}
	a.kind = kind
	if kind != KindRepository && len(desc.Data) > 0 {
		sum := blake2b.Sum256(desc.Data)
		a.digest = hex.EncodeToString(sum[:])
	}
	i.transition(a, StateClassified)

	delay := i.archiveDelay
	if kind == KindRepository {
		delay = i.repositoryDelay
	}
	if err := i.scheduler.Sleep(ctx, delay); err != nil {
		return nil, err
	}

	var meta Metadata
	switch kind {
	case KindArchive:
		meta, err = archiveIdentity(desc.Filename)
	case KindModule:
		meta, err = moduleIdentity(desc.Filename)
	default:
		meta, err = repositoryIdentity(desc.URL, match)
	}
	if err != nil {
		return nil, err
	}
	i.transition(a, StateIdentityDerived)

	template, err := i.selectTemplate(templatePriority)
	if err != nil {
		return nil, err
	}
	i.transition(a, StateTemplateSelected)
	i.logger.Debug("template selected", "attempt_id", a.id, "template_id", template.ID, "plugin_id", meta.ID)

	p := cloneWithIdentity(template, meta)
	if err := i.registry.Register(p); err != nil {
		return nil, err
	}
	i.transition(a, StateRegistered)

	i.mu.Lock()
	i.installed[p.ID] = struct{}{}
	i.mu.Unlock()

	return p, nil
}

// classify decides what kind of package desc is.
func (i *Installer) classify(desc PackageDescriptor) (PackageKind, []string, error) {
	if desc.Filename != "" {
		ext := strings.ToLower(path.Ext(uploadBase(desc.Filename)))
		switch {
		case ext == ".zip":
			return KindArchive, nil, nil
		case moduleExtensions[ext]:
			return KindModule, nil, nil
		default:
			return "", nil, &ParseError{Input: desc.Filename, Reason: "unsupported file type, expected .zip or a .js/.ts module"}
		}
	}
	if desc.URL == "" {
		return "", nil, &ParseError{Input: "", Reason: "neither archive nor repository URL given"}
	}

	match := repositoryPattern.FindStringSubmatch(strings.TrimSpace(desc.URL))
	if match == nil {
		return "", nil, &ParseError{Input: desc.URL, Reason: "expected https://<host>/<owner>/<repo>"}
	}
	if i.repositoryHost != "" && !strings.EqualFold(match[1], i.repositoryHost) {
		return "", nil, &ParseError{Input: desc.URL, Reason: "unsupported host " + match[1]}
	}
	return KindRepository, match, nil
}

// uploadBase strips any client-side directory from an uploaded filename.
func uploadBase(filename string) string {
	return path.Base(strings.ReplaceAll(filename, `\`, "/"))
}

// archiveIdentity derives plugin metadata from an archive filename.
func archiveIdentity(filename string) (Metadata, error) {
	base := uploadBase(filename)
	if meta, ok := knownArchives[base]; ok {
		return meta, nil
	}

	stem := strings.TrimSuffix(base, path.Ext(base))
	if stem == "" || stem == "." || stem == "/" {
		return Metadata{}, &ParseError{Input: filename, Reason: "archive name is empty"}
	}

	title := capitalize(stem)
	return Metadata{
		ID:          stem,
		Name:        title + " Plugin",
		Description: title + " Plugin (installed from archive)",
		Version:     defaultVersion,
		Author:      defaultAuthor,
	}, nil
}

// moduleIdentity derives plugin metadata from a single uploaded module file.
func moduleIdentity(filename string) (Metadata, error) {
	base := uploadBase(filename)
	stem := strings.TrimSuffix(base, path.Ext(base))
	if stem == "" {
		return Metadata{}, &ParseError{Input: filename, Reason: "module name is empty"}
	}
	return Metadata{
		ID:          stem,
		Name:        capitalize(stem) + " Plugin",
		Description: "Plugin from " + base,
		Version:     defaultVersion,
		Author:      "User",
	}, nil
}

// repositoryIdentity derives plugin metadata from a matched repository URL.
func repositoryIdentity(url string, match []string) (Metadata, error) {
	owner := match[2]
	repo := strings.TrimSuffix(match[3], ".git")

	id := nonAlphanumeric.ReplaceAllString(strings.ToLower(repo), "")
	if id == "" {
		return Metadata{}, &ParseError{Input: url, Reason: "repository name has no alphanumeric characters"}
	}

	words := strings.FieldsFunc(repo, func(r rune) bool { return r == '-' || r == '_' })
	for n, w := range words {
		words[n] = capitalize(w)
	}

	return Metadata{
		ID:          id,
		Name:        strings.Join(words, " ") + " Plugin",
		Description: "Plugin from " + owner + "/" + repo,
		Version:     defaultVersion,
		Author:      owner,
	}, nil
}

// selectTemplate returns the first existing plugin from priority, falling
// back to the first catalog entry.
func (i *Installer) selectTemplate(priority []string) (*Plugin, error) {
	for _, id := range priority {
		if p, ok := i.registry.Lookup(id); ok {
			return p, nil
		}
	}
	all := i.registry.List()
	if len(all) == 0 {
		return nil, &NoTemplateError{}
	}
	return all[0], nil
}

// cloneWithIdentity copies template behavior under a new identity.
func cloneWithIdentity(template *Plugin, meta Metadata) *Plugin {
	return &Plugin{
		ID:           meta.ID,
		Name:         meta.Name,
		Description:  meta.Description,
		Version:      meta.Version,
		Author:       meta.Author,
		Declaration:  template.Declaration,
		Handler:      template.Handler,
		Presentation: template.Presentation,
	}
}

// CreatePluginStructure builds, without registering, a new plugin cloned
// from a template with defaulted metadata.
func (i *Installer) CreatePluginStructure(id string, meta Metadata) (*Plugin, error) {
	if id == "" {
		return nil, &ValidationError{Field: "id"}
	}
	template, err := i.selectTemplate([]string{"clock", "timer"})
	if err != nil {
		return nil, err
	}

	meta.ID = id
	if meta.Name == "" {
		meta.Name = capitalize(id) + " Plugin"
	}
	if meta.Description == "" {
		meta.Description = "New " + id + " plugin"
	}
	if meta.Version == "" {
		meta.Version = defaultVersion
	}
	if meta.Author == "" {
		meta.Author = "User Created"
	}

	i.logger.Info("created plugin structure", "plugin_id", id, "template_id", template.ID)
	return cloneWithIdentity(template, meta), nil
}

// Uninstall removes a dynamically installed plugin from the catalog.
func (i *Installer) Uninstall(id string) error {
	if err := i.registry.Unregister(id); err != nil {
		return err
	}
	i.mu.Lock()
	delete(i.installed, id)
	i.mu.Unlock()
	return nil
}

// InstalledIDs returns the ids of plugins this installer registered and that
// are still present in the catalog, in catalog order.
func (i *Installer) InstalledIDs() []string {
	i.mu.Lock()
	defer i.mu.Unlock()

	var out []string
	for _, id := range i.registry.IDs() {
		if _, ok := i.installed[id]; ok {
			out = append(out, id)
		}
	}
	return out
}

// record writes the attempt to the install audit trail, if configured.
func (i *Installer) record(ctx context.Context, a *attempt, pluginID string, installErr error) {
	if i.recorder == nil {
		return
	}
	event := &store.InstallEvent{
		ID:       a.id,
		Kind:     string(a.kind),
		Source:   a.source,
		PluginID: pluginID,
		State:    string(a.state),
		Digest:   a.digest,
	}
	if installErr != nil {
		event.Error = installErr.Error()
	}
	// the attempt's own ctx may be the cancelled one
	if ctx.Err() != nil {
		ctx = context.WithoutCancel(ctx)
	}
	if err := i.recorder.RecordInstall(ctx, event); err != nil {
		i.logger.Warn("recording install event", "attempt_id", a.id, "error", err)
	}
}

// capitalize upper-cases the first rune of s.
func capitalize(s string) string {
	r, size := utf8.DecodeRuneInString(s)
	if r == utf8.RuneError {
		return s
	}
	return string(unicode.ToUpper(r)) + s[size:]
}
