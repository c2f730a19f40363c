// Package installer orchestrates the full install pipeline: dependency
// resolution, bounded-parallel download/extract/link, database
// recording, and the maintenance operations (upgrade, uninstall, gc,
// cleanup, orphan removal) built on top of it.
package installer

import (
	"fmt"
	"regexp"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/zb-pm/zb/internal/api"
	"github.com/zb-pm/zb/internal/blobcache"
	"github.com/zb-pm/zb/internal/cellar"
	"github.com/zb-pm/zb/internal/config"
	"github.com/zb-pm/zb/internal/db"
	zberrors "github.com/zb-pm/zb/internal/errors"
	"github.com/zb-pm/zb/internal/formula"
	"github.com/zb-pm/zb/internal/linker"
	"github.com/zb-pm/zb/internal/logger"
	"github.com/zb-pm/zb/internal/resolver"
	"github.com/zb-pm/zb/internal/store"
	"github.com/zb-pm/zb/internal/tap"
)

// DefaultDownloadConcurrency is the bound on simultaneous blob downloads,
// per §5's "download_concurrency (default 48)".
const DefaultDownloadConcurrency = 48

// MaxCorruptionRetries bounds how many times a single bottle is
// re-downloaded after the store reports extraction corruption.
const MaxCorruptionRetries = 3

// staleTempFileAge is how old a blobcache .part file must be before
// Cleanup treats it as abandoned rather than a concurrent download.
const staleTempFileAge = 24 * time.Hour

// cutoffTime is a pruneDays-derived age boundary used by Cleanup to
// decide whether a blob or API cache entry is old enough to remove.
type cutoffTime struct {
	t time.Time
}

func newCutoff(days int) *cutoffTime {
	return &cutoffTime{t: time.Now().AddDate(0, 0, -days)}
}

func (c *cutoffTime) before(t time.Time) bool {
	return t.Before(c.t)
}

// Installer ties together the API client, blob cache, store, cellar,
// linker, database, and tap manager into the operations described in
// the component design: plan, execute, uninstall, upgrade_one, gc,
// cleanup, find_orphans, autoremove.
type Installer struct {
	cfg         *config.Config
	api         *api.Client
	blobs       *blobcache.Cache
	store       *store.Store
	cellar      *cellar.Cellar
	linker      *linker.Linker
	db          *db.DB
	taps        *tap.Manager
	concurrency int
}

// Option configures an Installer at construction time.
type Option func(*Installer)

// WithConcurrency overrides the default download concurrency bound.
func WithConcurrency(n int) Option {
	return func(i *Installer) {
		if n > 0 {
			i.concurrency = n
		}
	}
}

// New builds an Installer wiring every collaborator to the paths in cfg.
func New(cfg *config.Config, apiClient *api.Client, tapManager *tap.Manager, database *db.DB, opts ...Option) *Installer {
	i := &Installer{
		cfg:         cfg,
		api:         apiClient,
		store:       store.New(cfg.StoreDir(), cfg.LocksDir()),
		cellar:      cellar.New(cfg.HomebrewCellar),
		linker:      linker.New(cfg.HomebrewPrefix),
		db:          database,
		taps:        tapManager,
		concurrency: DefaultDownloadConcurrency,
	}
	i.blobs = blobcache.New(cfg.BlobsDir(), apiClient)
	for _, opt := range opts {
		opt(i)
	}
	return i
}

var tapQualifiedRe = regexp.MustCompile(`^([^/]+)/([^/]+)/([^/]+)$`)

// fetchFormula resolves a formula by name, honoring tap-qualified names
// (user/repo/formula) and falling back to installed taps, in insertion
// order, when the default API client reports MissingFormula.
func (i *Installer) fetchFormula(name string) (*formula.Formula, error) {
	if m := tapQualifiedRe.FindStringSubmatch(name); m != nil {
		tapName := m[1] + "/" + m[2]
		formulaName := m[3]
		t, err := i.taps.GetTap(tapName)
		if err != nil {
			return nil, zberrors.NewMissingFormula(name)
		}
		f, err := t.GetFormula(formulaName)
		if err != nil {
			return nil, zberrors.NewMissingFormula(name)
		}
		return f, nil
	}

	f, err := i.api.GetFormula(name)
	if err == nil {
		return f, nil
	}
	if !zberrors.Is(err, zberrors.MissingFormula) {
		return nil, err
	}

	tapNames, tapErr := i.db.ListTapNamesInOrder()
	if tapErr != nil {
		return nil, err
	}
	for _, tapName := range tapNames {
		t, gErr := i.taps.GetTap(tapName)
		if gErr != nil {
			continue
		}
		if f, fErr := t.GetFormula(name); fErr == nil {
			return f, nil
		}
	}
	return nil, zberrors.NewMissingFormula(name)
}

// Plan is the resolved, ordered set of formulas and bottles an Execute
// call will install. Order lists every name to install, dependencies
// before dependents, lexicographic tie-break.
type Plan struct {
	RootName string
	Formulas map[string]*formula.Formula
	Bottles  map[string]*formula.SelectedBottle
	Order    []string
}

type fetchResult struct {
	name string
	f    *formula.Formula
	err  error
}

// Plan fetches name's full dependency closure in parallel BFS batches,
// topologically orders it, and selects a bottle for each name.
func (i *Installer) Plan(name string) (*Plan, error) {
	platform := i.api.PlatformTag()

	formulas := make(map[string]*formula.Formula)
	visited := make(map[string]bool)
	frontier := []string{name}
	visited[name] = true

	for len(frontier) > 0 {
		results := make([]fetchResult, len(frontier))
		var wg sync.WaitGroup
		for idx, n := range frontier {
			wg.Add(1)
			go func(idx int, n string) {
				defer wg.Done()
				f, err := i.fetchFormula(n)
				results[idx] = fetchResult{name: n, f: f, err: err}
			}(idx, n)
		}
		wg.Wait()

		var next []string
		for _, r := range results {
			if r.err != nil {
				if r.name == name {
					return nil, r.err
				}
				logger.Warn("dependency %s not found, skipping: %v", r.name, r.err)
				continue
			}
			formulas[r.name] = r.f
			for _, dep := range r.f.EffectiveDependencies() {
				if !visited[dep] {
					visited[dep] = true
					next = append(next, dep)
				}
			}
		}
		frontier = next
	}

	order, err := resolver.ResolveClosure(name, formulas)
	if err != nil {
		return nil, err
	}

	bottles := make(map[string]*formula.SelectedBottle)
	var finalOrder []string
	for _, n := range order {
		f := formulas[n]
		b, err := formula.SelectBottle(f, platform)
		if err != nil {
			if n == name {
				return nil, err
			}
			logger.Warn("no bottle for %s on %s, skipping: %v", n, platform, err)
			continue
		}
		bottles[n] = b
		finalOrder = append(finalOrder, n)
	}

	return &Plan{RootName: name, Formulas: formulas, Bottles: bottles, Order: finalOrder}, nil
}

// ExecuteResult summarizes a completed Execute call.
type ExecuteResult struct {
	InstalledCount int
}

// downloadResult is one completed (or failed) download, tagged with its
// position in Plan.Order so installs can be recorded in plan order once
// every download has drained, per §4.8/§5.
type downloadResult struct {
	index    int
	name     string
	blobPath string
	err      error
}

// packageOutcome holds the per-package artifacts produced while draining
// the download channel: the materialized keg and any links created.
type packageOutcome struct {
	version string
	keg     string
	links   []linker.LinkedFile
	err     error
}

// Execute runs the full pipeline for plan: bounded-parallel downloads,
// arrival-order extraction/materialization/linking, then plan-order
// database recording. explicit marks plan.RootName as user-requested;
// every other package in the plan is recorded as a dependency unless it
// is already marked explicit in the database. progress may be nil.
func (i *Installer) Execute(plan *Plan, link bool, explicit bool, progress chan<- ProgressEvent) (*ExecuteResult, error) {
	n := len(plan.Order)
	if n == 0 {
		return &ExecuteResult{}, nil
	}

	results := make(chan downloadResult, n)

	var eg errgroup.Group
	eg.SetLimit(i.concurrency)
	for idx, name := range plan.Order {
		idx, name := idx, name
		bottle := plan.Bottles[name]
		eg.Go(func() error {
			blobPath, err := i.downloadWithCorruptionRetry(name, bottle, progress)
			results <- downloadResult{index: idx, name: name, blobPath: blobPath, err: err}
			return nil
		})
	}

	go func() {
		_ = eg.Wait()
		close(results)
	}()

	outcomes := make([]packageOutcome, n)
	var firstErr error
	for r := range results {
		if r.err != nil {
			if firstErr == nil {
				firstErr = r.err
			}
			outcomes[r.index] = packageOutcome{err: r.err}
			continue
		}

		bottle := plan.Bottles[r.name]
		keg, links, err := i.extractMaterializeLink(r.name, r.blobPath, bottle, link, progress)
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			outcomes[r.index] = packageOutcome{err: err}
			continue
		}
		outcomes[r.index] = packageOutcome{version: bottle.Version, keg: keg, links: links}
	}

	if firstErr != nil {
		return nil, firstErr
	}

	installed := 0
	for idx, name := range plan.Order {
		o := outcomes[idx]
		isExplicit := explicit && name == plan.RootName
		if !isExplicit {
			if wasExplicit, err := i.db.IsExplicit(name); err == nil && wasExplicit {
				isExplicit = true
			}
		}

		dbLinks := make([]db.LinkedFile, 0, len(o.links))
		for _, l := range o.links {
			dbLinks = append(dbLinks, db.LinkedFile{LinkPath: l.LinkPath, TargetPath: l.TargetPath})
		}

		if err := i.db.RecordInstallWithLinks(name, o.version, plan.Bottles[name].SHA256, isExplicit, dbLinks); err != nil {
			return nil, err
		}
		installed++
	}

	return &ExecuteResult{InstalledCount: installed}, nil
}

// downloadWithCorruptionRetry fetches and verifies bottle's blob through
// the blob cache in a single attempt, forwarding download progress. The
// corruption retry loop lives in extractMaterializeLink, which removes
// the corrupt blob and calls this again so the blob itself is
// re-downloaded (not just re-extracted) on each retry per §4.8.
func (i *Installer) downloadWithCorruptionRetry(name string, bottle *formula.SelectedBottle, progress chan<- ProgressEvent) (string, error) {
	events := make(chan blobcache.Event, 16)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for e := range events {
			sendEvent(progress, toProgressEvent(name, e))
		}
	}()

	blobPath, err := i.blobs.Ensure(name, bottle.URL, bottle.SHA256, events)
	close(events)
	<-done
	if err != nil {
		return "", err
	}
	return blobPath, nil
}

func toProgressEvent(name string, e blobcache.Event) ProgressEvent {
	kind := DownloadStarted
	switch e.Kind {
	case blobcache.DownloadStarted:
		kind = DownloadStarted
	case blobcache.DownloadProgress:
		kind = DownloadProgress
	case blobcache.DownloadCompleted:
		kind = DownloadCompleted
	}
	return ProgressEvent{Kind: kind, Name: name, Downloaded: e.Downloaded, TotalBytes: e.TotalBytes, HasTotal: e.HasTotal}
}

// extractMaterializeLink drives one package's store-extract ->
// cellar-materialize -> optional-link sequence, retrying the whole
// download+extract step up to MaxCorruptionRetries times when the store
// reports corruption.
func (i *Installer) extractMaterializeLink(name, blobPath string, bottle *formula.SelectedBottle, link bool, progress chan<- ProgressEvent) (string, []linker.LinkedFile, error) {
	sendEvent(progress, ProgressEvent{Kind: UnpackStarted, Name: name})

	var storeEntry string
	var err error

	for attempt := 1; ; attempt++ {
		storeEntry, err = i.store.EnsureEntry(bottle.SHA256, blobPath)
		if err == nil {
			break
		}
		if !zberrors.Is(err, zberrors.StoreCorruption) || attempt >= MaxCorruptionRetries {
			if zberrors.Is(err, zberrors.StoreCorruption) {
				return "", nil, zberrors.NewStoreCorruption(
					fmt.Sprintf("%s failed after %d attempts — the download may be corrupted at the source", name, attempt), err)
			}
			return "", nil, err
		}

		logger.Warn("store corruption extracting %s (attempt %d/%d), re-downloading: %v", name, attempt, MaxCorruptionRetries, err)
		if rmErr := i.blobs.RemoveBlob(bottle.SHA256); rmErr != nil {
			logger.Warn("failed to remove corrupt blob for %s: %v", name, rmErr)
		}
		blobPath, err = i.downloadWithCorruptionRetry(name, bottle, progress)
		if err != nil {
			return "", nil, err
		}
	}

	sendEvent(progress, ProgressEvent{Kind: UnpackCompleted, Name: name})

	keg, err := i.cellar.Materialize(name, bottle.Version, storeEntry)
	if err != nil {
		return "", nil, err
	}

	var links []linker.LinkedFile
	if link {
		sendEvent(progress, ProgressEvent{Kind: LinkStarted, Name: name})
		links, err = i.linker.LinkKeg(keg, false)
		if err != nil {
			return keg, nil, err
		}
		sendEvent(progress, ProgressEvent{Kind: LinkCompleted, Name: name})
	}

	return keg, links, nil
}

// Uninstall removes name: unlinks its keg, deletes the installed row and
// linked_files rows (decrementing the store refcount) in one
// transaction, then removes the keg directory.
func (i *Installer) Uninstall(name string) error {
	row, ok, err := i.db.GetInstalled(name)
	if err != nil {
		return err
	}
	if !ok {
		return zberrors.NewNotInstalled(name)
	}

	keg := i.cellar.KegPath(name, row.Version)
	if _, err := i.linker.UnlinkKeg(keg); err != nil {
		return err
	}

	if err := i.db.RecordUninstall(name); err != nil {
		return err
	}

	return i.cellar.RemoveKeg(name, row.Version)
}

// UpgradeResult reports the old and new versions of an upgraded package.
type UpgradeResult struct {
	OldVersion string
	NewVersion string
}

// UpgradeOne upgrades name if the upstream's effective_version is
// strictly newer than the installed row; otherwise it returns
// (nil, nil) and performs no filesystem mutation.
func (i *Installer) UpgradeOne(name string, link bool, progress chan<- ProgressEvent) (*UpgradeResult, error) {
	row, ok, err := i.db.GetInstalled(name)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, zberrors.NewNotInstalled(name)
	}

	f, err := i.fetchFormula(name)
	if err != nil {
		return nil, err
	}

	latest := f.EffectiveVersion()
	if !formula.IsNewer(latest, row.Version) {
		return nil, nil
	}

	plan, err := i.Plan(name)
	if err != nil {
		return nil, err
	}

	oldKeg := i.cellar.KegPath(name, row.Version)
	wasLinked, err := i.linker.IsLinked(oldKeg)
	if err != nil {
		return nil, err
	}
	if wasLinked {
		if _, err := i.linker.UnlinkKeg(oldKeg); err != nil {
			return nil, err
		}
	}

	if _, err := i.Execute(plan, link || wasLinked, row.Explicit, progress); err != nil {
		return nil, err
	}

	if err := i.cellar.RemoveKeg(name, row.Version); err != nil {
		return nil, err
	}

	return &UpgradeResult{OldVersion: row.Version, NewVersion: latest}, nil
}

// OutdatedEntry is one installed package with a newer upstream version.
type OutdatedEntry struct {
	Name           string `json:"name"`
	CurrentVersion string `json:"current_version"`
	LatestVersion  string `json:"latest_version"`
	Pinned         bool   `json:"pinned"`
}

// Outdated reports installed packages with a strictly newer upstream
// version. When includePinned is false, pinned packages are omitted.
func (i *Installer) Outdated(includePinned bool) ([]OutdatedEntry, error) {
	rows, err := i.db.ListInstalled()
	if err != nil {
		return nil, err
	}

	var out []OutdatedEntry
	for _, row := range rows {
		if row.Pinned && !includePinned {
			continue
		}
		f, err := i.fetchFormula(row.Name)
		if err != nil {
			logger.Warn("outdated: failed to fetch %s: %v", row.Name, err)
			continue
		}
		latest := f.EffectiveVersion()
		if formula.IsNewer(latest, row.Version) {
			out = append(out, OutdatedEntry{Name: row.Name, CurrentVersion: row.Version, LatestVersion: latest, Pinned: row.Pinned})
		}
	}
	return out, nil
}

// GC removes every store entry with a zero refcount, returning the
// removed SHA-256 digests.
func (i *Installer) GC() ([]string, error) {
	keys, err := i.db.GetUnreferencedStoreKeys()
	if err != nil {
		return nil, err
	}
	var removed []string
	for _, key := range keys {
		if err := i.store.RemoveEntry(key); err != nil {
			return removed, err
		}
		removed = append(removed, key)
	}
	return removed, nil
}

// CleanupResult reports what a Cleanup call removed.
type CleanupResult struct {
	StoreEntriesRemoved []string
	BlobsRemoved        int
	BytesFreed          int64
}

// Cleanup runs GC, then removes cached blobs no installed keg references
// (subject to pruneDays, if nonzero: only blobs older than that many
// days), removes leftover store temp dirs and stale locks, and prunes
// API cache entries older than pruneDays when set.
func (i *Installer) Cleanup(pruneDays int) (*CleanupResult, error) {
	removed, err := i.GC()
	if err != nil {
		return nil, err
	}
	result := &CleanupResult{StoreEntriesRemoved: removed}

	rows, err := i.db.ListInstalled()
	if err != nil {
		return result, err
	}
	inUse := make(map[string]bool, len(rows))
	for _, row := range rows {
		inUse[row.StoreKey] = true
	}

	blobs, err := i.blobs.ListBlobs()
	if err != nil {
		return result, err
	}

	var cutoff *cutoffTime
	if pruneDays > 0 {
		cutoff = newCutoff(pruneDays)
	}

	for _, b := range blobs {
		if inUse[b.SHA256] {
			continue
		}
		if cutoff != nil && !cutoff.before(b.MTime) {
			continue
		}
		if err := i.blobs.RemoveBlob(b.SHA256); err != nil {
			return result, err
		}
		result.BlobsRemoved++
		result.BytesFreed += b.Size
	}

	if err := i.store.CleanupTempDirs(); err != nil {
		return result, err
	}
	if err := i.store.CleanupStaleLocks(); err != nil {
		return result, err
	}
	if err := i.blobs.CleanupTempFiles(staleTempFileAge); err != nil {
		return result, err
	}

	if pruneDays > 0 {
		if _, err := i.api.PruneCache(pruneDays); err != nil {
			return result, err
		}
	}

	return result, nil
}

// FindOrphans computes the required-set (the closure, over
// effective_dependencies, of every explicit keg's formula) and returns
// every non-explicit installed keg whose name is not in that set.
func (i *Installer) FindOrphans() ([]string, error) {
	rows, err := i.db.ListInstalled()
	if err != nil {
		return nil, err
	}

	required := make(map[string]bool)
	var walk func(name string)
	seen := make(map[string]bool)
	walk = func(name string) {
		if seen[name] {
			return
		}
		seen[name] = true
		required[name] = true
		f, err := i.fetchFormula(name)
		if err != nil {
			return
		}
		for _, dep := range f.EffectiveDependencies() {
			walk(dep)
		}
	}

	for _, row := range rows {
		if row.Explicit {
			walk(row.Name)
		}
	}

	var orphans []string
	for _, row := range rows {
		if !row.Explicit && !required[row.Name] {
			orphans = append(orphans, row.Name)
		}
	}
	return orphans, nil
}

// Link symlinks an already-installed keg's files into the prefix,
// recording the resulting linked_files rows. It is a no-op re-link: any
// previous rows for name are cleared and replaced.
func (i *Installer) Link(name string, overwrite bool) ([]string, error) {
	row, ok, err := i.db.GetInstalled(name)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, zberrors.NewNotInstalled(name)
	}

	keg := i.cellar.KegPath(name, row.Version)
	links, err := i.linker.LinkKeg(keg, overwrite)
	if err != nil {
		return nil, err
	}

	if err := i.db.ClearLinkedFiles(name); err != nil {
		return nil, err
	}
	paths := make([]string, 0, len(links))
	for _, l := range links {
		if err := i.db.RecordLinkedFile(name, row.Version, l.LinkPath, l.TargetPath); err != nil {
			return nil, err
		}
		paths = append(paths, l.LinkPath)
	}
	return paths, nil
}

// Unlink removes name's symlinks from the prefix without touching its
// keg or store reference.
func (i *Installer) Unlink(name string) ([]string, error) {
	row, ok, err := i.db.GetInstalled(name)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, zberrors.NewNotInstalled(name)
	}

	keg := i.cellar.KegPath(name, row.Version)
	links, err := i.linker.UnlinkKeg(keg)
	if err != nil {
		return nil, err
	}
	if err := i.db.ClearLinkedFiles(name); err != nil {
		return nil, err
	}
	paths := make([]string, 0, len(links))
	for _, l := range links {
		paths = append(paths, l.LinkPath)
	}
	return paths, nil
}

// Dependencies returns name's effective_dependencies, fetching its
// formula from the API (or an installed tap) as needed.
func (i *Installer) Dependencies(name string) ([]string, error) {
	f, err := i.fetchFormula(name)
	if err != nil {
		return nil, err
	}
	return f.EffectiveDependencies(), nil
}

// Dependents returns the names of installed packages whose formula lists
// name among its effective_dependencies, used by uninstall to refuse
// removing a package something else still needs.
func (i *Installer) Dependents(name string) ([]string, error) {
	rows, err := i.db.ListInstalled()
	if err != nil {
		return nil, err
	}

	var dependents []string
	for _, row := range rows {
		if row.Name == name {
			continue
		}
		f, err := i.fetchFormula(row.Name)
		if err != nil {
			logger.Warn("dependents: failed to fetch %s: %v", row.Name, err)
			continue
		}
		for _, dep := range f.EffectiveDependencies() {
			if dep == name {
				dependents = append(dependents, row.Name)
				break
			}
		}
	}
	return dependents, nil
}

// Autoremove uninstalls every orphan, continuing past individual
// failures, and returns the names it successfully removed.
func (i *Installer) Autoremove() ([]string, error) {
	orphans, err := i.FindOrphans()
	if err != nil {
		return nil, err
	}

	var removed []string
	for _, name := range orphans {
		if err := i.Uninstall(name); err != nil {
			logger.Warn("autoremove: failed to uninstall %s: %v", name, err)
			continue
		}
		removed = append(removed, name)
	}
	return removed, nil
}

// InstallByName is a convenience wrapper used by the bundle operation and
// the CLI install command: plan name, execute it, link it, and mark it
// explicit.
func (i *Installer) InstallByName(name string, link bool, progress chan<- ProgressEvent) (*ExecuteResult, error) {
	plan, err := i.Plan(name)
	if err != nil {
		return nil, err
	}
	return i.Execute(plan, link, true, progress)
}

// AddTap clones name (or updates it in place if already tapped with
// --force semantics left to opts) and records it in the taps table so
// fetchFormula's installed-taps fallback can find it. remote, if empty,
// defaults the same way tap.Manager.AddTap does.
func (i *Installer) AddTap(name, remote string, opts *tap.TapOptions) error {
	if err := i.taps.AddTap(name, remote, opts); err != nil {
		return err
	}
	if remote == "" {
		remote = i.taps.DefaultRemote(name)
	}
	return i.db.AddTap(name, remote)
}

// RemoveTap untaps name and removes it from the taps table.
func (i *Installer) RemoveTap(name string, opts *tap.TapOptions) error {
	if err := i.taps.RemoveTap(name, opts); err != nil {
		return err
	}
	return i.db.RemoveTap(name)
}
