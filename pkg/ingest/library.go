package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/flanksource/commons/logger"
	"github.com/samber/lo"

	"github.com/webcomponents/catalog/pkg/datastore"
	"github.com/webcomponents/catalog/pkg/licenses"
	"github.com/webcomponents/catalog/pkg/registry"
	"github.com/webcomponents/catalog/pkg/task"
	"github.com/webcomponents/catalog/pkg/versiontag"
)

// libraryTask carries the state of one library handler run. Entity mutations
// and child tasks accumulate in memory and land in a single transaction at
// commit time, so a child task can never outrun the entity write it depends
// on.
type libraryTask struct {
	svc *Service

	scope string
	pkg   string
	owner string
	repo  string

	library *datastore.Library
	dirty   bool
	deleted bool
	isNew   bool

	versions []*datastore.Version
	contents []*datastore.Content
	tasks    []queuedTask
}

func (s *Service) newLibraryTask(scope, pkg string) *libraryTask {
	return &libraryTask{svc: s, scope: strings.ToLower(scope), pkg: strings.ToLower(pkg)}
}

// init loads or creates the library entity. Suppressed libraries abort every
// handler.
func (t *libraryTask) init(ctx context.Context, create bool) error {
	err := t.svc.Store.RunInTransaction(ctx, func(tx *datastore.Tx) error {
		var err error
		if create {
			t.library, err = tx.GetOrInsertLibrary(t.scope, t.pkg)
		} else {
			t.library, err = tx.GetLibrary(datastore.LibraryID(t.scope, t.pkg))
		}
		return err
	})
	if err != nil {
		return err
	}
	if t.library == nil {
		return nil
	}
	t.isNew = t.library.Metadata == "" && t.library.Error == ""
	if t.library.Status == datastore.StatusSuppressed {
		return t.abort("library is suppressed")
	}
	return nil
}

// abort stops the handler without recording an error on the entity.
func (t *libraryTask) abort(format string, args ...interface{}) error {
	return &task.PermanentError{Message: fmt.Sprintf(format, args...)}
}

// fail stops the handler and records the permanent error on the library.
func (t *libraryTask) fail(code task.ErrorCode, format string, args ...interface{}) error {
	err := task.Permanent(code, format, args...)
	t.library.Status = datastore.StatusError
	t.library.Error = err.JSON()
	t.dirty = true
	return err
}

// commit flushes everything the handler accumulated in one transaction.
func (t *libraryTask) commit(ctx context.Context) error {
	if t.deleted {
		return nil
	}
	return t.svc.Store.RunInTransaction(ctx, func(tx *datastore.Tx) error {
		if t.dirty {
			if err := tx.PutLibrary(t.library); err != nil {
				return err
			}
		}
		for _, version := range t.versions {
			if err := tx.PutVersion(version); err != nil {
				return err
			}
		}
		for _, content := range t.contents {
			if err := tx.PutContent(content); err != nil {
				return err
			}
		}
		for _, queued := range t.tasks {
			if err := tx.EnqueueTask(queued.queue, queued.url); err != nil {
				return err
			}
		}
		return nil
	})
}

// runLibrary is the shell for library handlers: load, run, commit. Controlled
// aborts still commit, so permanent errors stick to the entity.
func (s *Service) runLibrary(ctx context.Context, scope, pkg string, create bool, fn func(*libraryTask) error) error {
	t := s.newLibraryTask(scope, pkg)
	if err := t.init(ctx, create); err != nil {
		return err
	}
	if t.library == nil {
		logger.Warnf("library not found: %s", datastore.LibraryID(scope, pkg))
		return nil
	}

	err := fn(t)
	if !shouldCommit(err) {
		return err
	}
	return commitErr(t.commit(ctx), err)
}

// updateRegistryInfo refreshes registry metadata and resolves the backing
// GitHub repository. The registry revision gates rewrites so an unchanged
// document costs nothing.
func (t *libraryTask) updateRegistryInfo(ctx context.Context) error {
	response, err := t.svc.Registry.GetPackage(ctx, t.scope, t.pkg, "")
	if err != nil {
		return err
	}

	switch {
	case response.OK():
		metadata, err := registry.ParsePackage(response.Body)
		if err != nil {
			return t.fail(task.CodeLibraryParseRegistry, "could not parse registry metadata")
		}

		owner, repo := datastore.GithubFromURL(metadata.Repository.URL)
		if owner == "" || repo == "" {
			return t.fail(task.CodeLibraryNoGithub, "no github URL associated with package")
		}
		t.owner = strings.ToLower(owner)
		t.repo = strings.ToLower(repo)

		if t.library.RegistryMetadata == "" || t.registryRev() != metadata.Rev {
			t.library.RegistryMetadata = string(response.Body)
			t.library.RegistryMetadataUpdated = t.svc.Store.Now()
			t.dirty = true
		}
		return nil
	case response.NotFound():
		return t.fail(task.CodeLibraryNoPackage, "package not found in registry")
	default:
		return task.Retry("could not update registry info (%d)", response.StatusCode)
	}
}

func (t *libraryTask) registryRev() string {
	if t.library.RegistryMetadata == "" {
		return ""
	}
	metadata, err := registry.ParsePackage([]byte(t.library.RegistryMetadata))
	if err != nil {
		return ""
	}
	return metadata.Rev
}

// updateMetadata refreshes repository metadata, contributors and commit
// stats, all conditionally. Renames and deletions upstream tear the library
// down.
func (t *libraryTask) updateMetadata(ctx context.Context) error {
	if t.library.IsNpm() {
		if err := t.updateRegistryInfo(ctx); err != nil {
			return err
		}
	} else {
		t.owner = t.scope
		t.repo = t.pkg
	}

	response, err := t.svc.GitHub.Repo(ctx, t.owner, t.repo, t.library.MetadataEtag)
	if err != nil {
		return err
	}
	switch {
	case response.OK():
		var metadata githubRepo
		if err := json.Unmarshal(response.Body, &metadata); err != nil {
			return t.fail(task.CodeLibraryParseMetadata, "could not parse metadata")
		}
		owner := strings.ToLower(metadata.Owner.Login)
		repo := strings.ToLower(metadata.Name)

		// The canonical name moved out from under a GitHub-sourced entity:
		// drop this one and re-ingest under the new id.
		if !t.library.IsNpm() && owner != "" && repo != "" && (owner != t.scope || repo != t.pkg) {
			newID := datastore.LibraryID(owner, repo)
			logger.Infof("deleting renamed repo %s", t.library.ID)
			if err := t.svc.deleteLibraryTree(ctx, t.library.ID); err != nil {
				return err
			}
			t.deleted = true
			if err := t.svc.enqueue(ctx, task.QueueDefault, ensureLibraryURL(owner, repo)); err != nil {
				return err
			}
			return t.abort("repo has been renamed to %s", newID)
		}

		if owner != "" {
			t.owner = owner
		}
		if repo != "" {
			t.repo = repo
		}

		// A registry package supersedes any GitHub-sourced entity for the
		// same repository.
		if t.library.IsNpm() {
			t.tasks = append(t.tasks, queuedTask{task.QueueDefault, migrateLibraryURL(t.owner, t.repo, t.scope, t.pkg)})
		}

		t.library.GithubOwner = t.owner
		t.library.GithubRepo = t.repo
		t.library.Metadata = string(response.Body)
		t.library.MetadataEtag = response.Etag
		t.library.MetadataUpdated = t.svc.Store.Now()
		t.dirty = true
	case response.NotFound():
		logger.Infof("deleting non-existing repo %s", t.library.ID)
		if err := t.svc.deleteLibraryTree(ctx, t.library.ID); err != nil {
			return err
		}
		t.deleted = true
		return t.abort("repo no longer exists")
	case !response.NotModified():
		return task.Retry("could not update repo metadata (%d)", response.StatusCode)
	}

	response, err = t.svc.GitHub.Contributors(ctx, t.owner, t.repo, t.library.ContributorsEtag)
	if err != nil {
		return err
	}
	switch {
	case response.OK():
		if !json.Valid(response.Body) {
			return t.fail(task.CodeLibraryParseContributors, "could not parse contributors")
		}
		t.library.Contributors = string(response.Body)
		t.library.ContributorsEtag = response.Etag
		t.library.ContributorsUpdated = t.svc.Store.Now()
		t.dirty = true
	case !response.NotModified():
		return task.Retry("could not update contributors (%d)", response.StatusCode)
	}

	response, err = t.svc.GitHub.Participation(ctx, t.owner, t.repo, t.library.ParticipationEtag)
	if err != nil {
		return err
	}
	switch {
	case response.OK():
		if !json.Valid(response.Body) {
			return t.fail(task.CodeLibraryParseStats, "could not parse stats/participation")
		}
		t.library.Participation = string(response.Body)
		t.library.ParticipationEtag = response.Etag
		t.library.ParticipationUpdated = t.svc.Store.Now()
		t.dirty = true
	case response.StatusCode == 202:
		// GitHub is still computing the stats. Next update cycle picks them
		// up.
	case !response.NotModified():
		return task.Retry("could not update stats/participation (%d)", response.StatusCode)
	}
	return nil
}

// updateLicenseAndKind classifies the library and resolves its license, in
// priority order GitHub metadata, master bower.json, registry metadata. An
// unlicensed library never becomes ready.
func (t *libraryTask) updateLicenseAndKind(ctx context.Context) error {
	var metadata githubRepo
	if err := json.Unmarshal([]byte(t.library.Metadata), &metadata); err != nil {
		return t.fail(task.CodeLibraryParseMetadata, "could not parse metadata")
	}

	kind := datastore.KindElement
	var master *bowerManifest

	if !t.library.IsNpm() {
		branch := metadata.DefaultBranch
		if branch == "" {
			branch = "master"
		}
		response, err := t.svc.GitHub.RawContent(ctx, t.owner, t.repo, branch, "bower.json")
		if err != nil {
			return err
		}
		switch {
		case response.OK():
			master = &bowerManifest{}
			if err := json.Unmarshal(response.Body, master); err != nil {
				return t.fail(task.CodeLibraryParseBower, "could not parse %s/bower.json", branch)
			}
		case response.NotFound():
			master = nil
		default:
			return task.Retry("error fetching %s/bower.json (%d)", branch, response.StatusCode)
		}

		if master.isCollection() {
			kind = datastore.KindCollection
		}
	}

	if t.library.Kind != kind {
		t.library.Kind = kind
		t.dirty = true
	}

	spdx := licenses.Validate(string(metadata.License))
	if spdx == "" && master != nil {
		spdx = licenses.Validate(string(master.License))
	}
	if spdx == "" && t.library.IsNpm() {
		if registryMetadata, err := registry.ParsePackage([]byte(t.library.RegistryMetadata)); err == nil {
			spdx = licenses.Validate(string(registryMetadata.License))
		}
	}

	if t.library.SpdxIdentifier != spdx {
		t.library.SpdxIdentifier = spdx
		t.dirty = true
	}
	if spdx == "" {
		if t.library.IsNpm() {
			return t.fail(task.CodeLibraryLicense, "could not detect an OSI approved license on GitHub or in package info")
		}
		return t.fail(task.CodeLibraryLicense, "could not detect an OSI approved license on GitHub or in bower.json")
	}
	return nil
}

// updateCollectionTags versions a collection off its master branch: each new
// master sha mints the next v0.0.N pseudo-tag.
func (t *libraryTask) updateCollectionTags(ctx context.Context) (map[string]string, error) {
	if len(t.library.TagMap) == 0 {
		t.library.TagsEtag = ""
	}

	response, err := t.svc.GitHub.MasterRef(ctx, t.owner, t.repo, t.library.TagsEtag)
	if err != nil {
		return nil, err
	}
	if response.NotModified() {
		return t.library.TagMap, nil
	}
	if !response.OK() {
		return nil, task.Retry("could not update git/refs/heads/master (%d)", response.StatusCode)
	}

	var ref githubRef
	if err := json.Unmarshal(response.Body, &ref); err != nil {
		return nil, t.fail(task.CodeLibraryCollectionParseTags, "could not parse git/refs/heads/master")
	}
	if ref.Ref != "refs/heads/master" {
		return nil, t.fail(task.CodeLibraryCollectionMaster, "could not find master branch")
	}
	masterSha := ref.Object.Sha

	// An answer does not mean the branch moved.
	for _, sha := range t.library.TagMap {
		if sha == masterSha {
			return t.library.TagMap, nil
		}
	}

	t.library.CollectionSequenceNumber++
	version := fmt.Sprintf("v0.0.%d", t.library.CollectionSequenceNumber)
	tagMap := map[string]string{version: masterSha}

	t.library.Tags = []string{version}
	t.library.TagMap = tagMap
	t.library.TagsEtag = response.Etag
	t.library.TagsUpdated = t.svc.Store.Now()
	t.dirty = true
	return tagMap, nil
}

// updateElementTags refreshes the tag list of a GitHub-sourced element.
func (t *libraryTask) updateElementTags(ctx context.Context) (map[string]string, error) {
	if len(t.library.TagMap) == 0 {
		t.library.TagsEtag = ""
	}

	response, err := t.svc.GitHub.Tags(ctx, t.owner, t.repo, t.library.TagsEtag)
	if err != nil {
		return nil, err
	}
	if response.NotModified() {
		return t.library.TagMap, nil
	}
	if !response.OK() {
		return nil, task.Retry("could not update tags (%d)", response.StatusCode)
	}

	var listed []githubTag
	if err := json.Unmarshal(response.Body, &listed); err != nil {
		return nil, t.fail(task.CodeLibraryElementParseTags, "could not parse tags")
	}

	tagMap := map[string]string{}
	for _, tag := range listed {
		if versiontag.IsValid(tag.Name) {
			tagMap[tag.Name] = tag.Commit.Sha
		}
	}
	tags := lo.Keys(tagMap)
	versiontag.Sort(tags)

	t.library.Tags = tags
	t.library.TagMap = tagMap
	t.library.TagsEtag = response.Etag
	t.library.TagsUpdated = t.svc.Store.Now()
	t.dirty = true
	return tagMap, nil
}

// updatePackageTags derives tags from registry version metadata.
func (t *libraryTask) updatePackageTags() (map[string]string, error) {
	metadata, err := registry.ParsePackage([]byte(t.library.RegistryMetadata))
	if err != nil {
		return nil, t.fail(task.CodeLibraryParseRegistry, "could not parse registry metadata")
	}

	tagMap := map[string]string{}
	for tag, info := range metadata.Versions {
		if versiontag.IsValid(tag) {
			tagMap[tag] = info.GitHead
		}
	}
	tags := lo.Keys(tagMap)
	versiontag.Sort(tags)

	if !equalTags(t.library.Tags, tags) {
		t.library.Tags = tags
		t.library.TagMap = tagMap
		t.library.TagsUpdated = t.svc.Store.Now()
		t.dirty = true
	}
	return tagMap, nil
}

func equalTags(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// updateVersions reconciles stored Versions against the upstream tag set.
// Only one ingestion or one deletion is spawned per run: ingestion enqueues
// multiple child tasks transactionally, so a run that found fifty new tags
// converges over fifty cheap updates instead of one giant fan-out.
func (t *libraryTask) updateVersions(ctx context.Context) error {
	if t.library.ShallowIngestion {
		return nil
	}

	var tagMap map[string]string
	var err error
	switch {
	case t.library.Kind == datastore.KindCollection:
		tagMap, err = t.updateCollectionTags(ctx)
	case t.library.IsNpm():
		tagMap, err = t.updatePackageTags()
	default:
		tagMap, err = t.updateElementTags(ctx)
	}
	if err != nil {
		return err
	}

	newTags := lo.Keys(tagMap)

	var ingested []string
	err = t.svc.Store.RunInTransaction(ctx, func(tx *datastore.Tx) error {
		ingested, err = tx.VersionsForLibrary(t.library.ID)
		return err
	})
	if err != nil {
		return err
	}
	logger.Infof("%s: %d of %d tags ingested", t.library.ID, len(ingested), len(newTags))

	tagsToAdd := lo.Without(newTags, ingested...)
	versiontag.Sort(tagsToAdd)

	if len(ingested) == 0 && len(tagsToAdd) > 0 {
		// First ingestion takes only the default version; the rest trickle
		// in on later updates.
		tagsToAdd = []string{versiontag.DefaultVersion(tagsToAdd)}
	} else {
		currentDefault := versiontag.DefaultVersion(ingested)
		tagsToAdd = lo.Filter(tagsToAdd, func(tag string, _ int) bool {
			return versiontag.Compare(tag, currentDefault) > 0
		})
	}

	tagsToDelete := lo.Without(ingested, newTags...)
	logger.Infof("%s: %d adds and %d deletes pending", t.library.ID, len(tagsToAdd), len(tagsToDelete))

	if len(tagsToAdd) > 0 {
		// Newest first.
		tag := tagsToAdd[len(tagsToAdd)-1]
		triggered, err := t.triggerVersionIngestion(ctx, tag, tagMap[tag], "", false)
		if err != nil {
			return err
		}
		if triggered {
			if t.library.Kind == datastore.KindCollection {
				logger.Infof("%s: ingesting new collection version (%s)", t.library.ID, tag)
			} else {
				logger.Infof("%s: ingesting new %s version (%s)", t.library.ID, versiontag.Categorize(tag, ingested), tag)
			}
		}
	} else if len(tagsToDelete) > 0 {
		t.triggerVersionDeletion(tagsToDelete[0])
	}

	if len(newTags) == 0 {
		return t.fail(task.CodeLibraryNoVersion, "couldn't find any tagged versions")
	}
	return nil
}

// triggerVersionIngestion stages a pending Version plus its ingestion and
// analysis tasks. A tag that is already ready or pending is left alone.
func (t *libraryTask) triggerVersionIngestion(ctx context.Context, tag, sha, url string, preview bool) (bool, error) {
	var existing *datastore.Version
	err := t.svc.Store.RunInTransaction(ctx, func(tx *datastore.Tx) error {
		var err error
		existing, err = tx.GetVersion(t.library.ID, tag)
		return err
	})
	if err != nil {
		return false, err
	}
	if existing != nil && (existing.Status == datastore.StatusReady || existing.Status == datastore.StatusPending) {
		return false, nil
	}

	t.versions = append(t.versions, &datastore.Version{
		LibraryID: t.library.ID,
		Tag:       tag,
		Sha:       sha,
		URL:       url,
		Preview:   preview,
		Status:    datastore.StatusPending,
	})
	t.tasks = append(t.tasks, queuedTask{task.QueueDefault, ingestVersionURL(t.scope, t.pkg, tag)})
	if err := t.triggerAnalysis(ctx, tag, sha); err != nil {
		return false, err
	}
	return true, nil
}

func (t *libraryTask) triggerVersionDeletion(tag string) {
	t.tasks = append(t.tasks, queuedTask{task.QueueDefault, deleteVersionURL(t.scope, t.pkg, tag)})
}

// triggerAnalysis stages the analysis content placeholder and the bridge
// task. Collections pass their sha so the analyzer checks out the right
// commit; elements are analyzed by tag.
func (t *libraryTask) triggerAnalysis(ctx context.Context, tag, sha string) error {
	analysisSha := ""
	if t.library.Kind == datastore.KindCollection {
		analysisSha = sha
	}

	var content *datastore.Content
	err := t.svc.Store.RunInTransaction(ctx, func(tx *datastore.Tx) error {
		var err error
		content, err = tx.GetContent(t.library.ID, tag, datastore.RoleAnalysis)
		return err
	})
	if err != nil {
		return err
	}
	if content == nil || content.Status == datastore.StatusError {
		t.contents = append(t.contents, datastore.NewContent(t.library.ID, tag, datastore.RoleAnalysis))
	}

	t.tasks = append(t.tasks, queuedTask{task.QueueAnalysis, analysisURL(t.scope, t.pkg, tag, analysisSha)})
	return nil
}

func (t *libraryTask) triggerAuthorIngestion() {
	if t.library.ShallowIngestion {
		return
	}
	t.tasks = append(t.tasks, queuedTask{task.QueueDefault, ensureAuthorURL(t.owner)})
}

func (t *libraryTask) setReady() {
	if t.library.Status != datastore.StatusReady {
		t.library.Error = ""
		t.library.Status = datastore.StatusReady
		t.dirty = true
	}
}

// IngestLibrary performs a full first ingestion of scope/package.
func (s *Service) IngestLibrary(ctx context.Context, scope, pkg string) error {
	return s.runLibrary(ctx, scope, pkg, true, func(t *libraryTask) error {
		if t.library.ShallowIngestion {
			t.library.ShallowIngestion = false
			t.dirty = true
		}
		if err := t.updateMetadata(ctx); err != nil {
			return err
		}
		if err := t.updateLicenseAndKind(ctx); err != nil {
			return err
		}
		t.triggerAuthorIngestion()
		if err := t.updateVersions(ctx); err != nil {
			return err
		}
		t.setReady()
		return nil
	})
}

// UpdateLibrary refreshes an existing library. Libraries that never passed
// license validation are skipped.
func (s *Service) UpdateLibrary(ctx context.Context, scope, pkg string) error {
	return s.runLibrary(ctx, scope, pkg, false, func(t *libraryTask) error {
		if t.library.SpdxIdentifier == "" {
			return nil
		}
		if err := t.updateMetadata(ctx); err != nil {
			return err
		}
		if err := t.updateLicenseAndKind(ctx); err != nil {
			return err
		}
		if err := t.updateVersions(ctx); err != nil {
			return err
		}
		t.setReady()
		return nil
	})
}

// IngestPreview shallow-ingests a library if needed and stages ingestion of a
// single preview commit.
func (s *Service) IngestPreview(ctx context.Context, owner, repo, commit, url string) error {
	return s.runLibrary(ctx, owner, repo, true, func(t *libraryTask) error {
		if t.isNew {
			t.library.ShallowIngestion = true
			t.dirty = true
		}
		if t.isNew || t.library.Status != datastore.StatusReady {
			if err := t.updateMetadata(ctx); err != nil {
				return err
			}
			if err := t.updateLicenseAndKind(ctx); err != nil {
				return err
			}
			t.setReady()
		}

		if t.library.Kind == datastore.KindElement {
			if _, err := t.triggerVersionIngestion(ctx, commit, commit, url, true); err != nil {
				return err
			}
		}
		return nil
	})
}

// IngestWebhook shallow-ingests a library if needed and stores the user's
// access token for webhook management.
func (s *Service) IngestWebhook(ctx context.Context, owner, repo, accessToken string) error {
	return s.runLibrary(ctx, owner, repo, true, func(t *libraryTask) error {
		if t.isNew {
			t.library.ShallowIngestion = true
			t.dirty = true
			if err := t.updateMetadata(ctx); err != nil {
				return err
			}
			if err := t.updateLicenseAndKind(ctx); err != nil {
				return err
			}
			t.setReady()
		}

		t.library.GithubAccessToken = accessToken
		t.dirty = true
		return nil
	})
}

// AnalyzeLibrary re-requests analysis for a library's ready versions, or just
// its default version.
func (s *Service) AnalyzeLibrary(ctx context.Context, scope, pkg string, latest bool) error {
	return s.runLibrary(ctx, scope, pkg, false, func(t *libraryTask) error {
		if latest {
			var tag string
			err := s.Store.RunInTransaction(ctx, func(tx *datastore.Tx) error {
				var err error
				tag, err = tx.DefaultVersionForLibrary(t.library.ID)
				return err
			})
			if err != nil {
				return err
			}
			if tag == "" {
				return nil
			}
			var version *datastore.Version
			err = s.Store.RunInTransaction(ctx, func(tx *datastore.Tx) error {
				version, err = tx.GetVersion(t.library.ID, tag)
				return err
			})
			if err != nil || version == nil {
				return err
			}
			return t.triggerAnalysis(ctx, tag, version.Sha)
		}

		var versions []*datastore.Version
		err := s.Store.RunInTransaction(ctx, func(tx *datastore.Tx) error {
			var err error
			versions, err = tx.VersionsByStatus(t.library.ID, datastore.StatusReady)
			return err
		})
		if err != nil {
			return err
		}
		for _, version := range versions {
			if err := t.triggerAnalysis(ctx, version.Tag, version.Sha); err != nil {
				return err
			}
		}
		return nil
	})
}

// AddLibrary enqueues a first ingestion.
func (s *Service) AddLibrary(ctx context.Context, owner, repo string) error {
	return s.enqueue(ctx, task.QueueDefault, ingestLibraryURL(owner, repo))
}

// EnsureLibrary enqueues an ingestion when the library is absent or only
// shallowly ingested.
func (s *Service) EnsureLibrary(ctx context.Context, owner, repo string) error {
	var library *datastore.Library
	err := s.Store.RunInTransaction(ctx, func(tx *datastore.Tx) error {
		var err error
		library, err = tx.GetLibrary(datastore.LibraryID(owner, repo))
		return err
	})
	if err != nil {
		return err
	}
	if library == nil || library.ShallowIngestion {
		return s.enqueue(ctx, task.QueueDefault, ingestLibraryURL(owner, repo))
	}
	return nil
}

// MigrateLibrary marks a GitHub-sourced library as superseded by its registry
// package and removes it from search.
func (s *Service) MigrateLibrary(ctx context.Context, owner, repo, scope, pkg string) error {
	bowerID := datastore.LibraryID(owner, repo)
	npmID := datastore.LibraryID(scope, pkg)

	found := false
	err := s.Store.RunInTransaction(ctx, func(tx *datastore.Tx) error {
		library, err := tx.GetLibrary(bowerID)
		if err != nil || library == nil {
			return err
		}
		found = true
		library.NpmPackage = npmID
		if err := tx.PutLibrary(library); err != nil {
			return err
		}

		npmLibrary, err := tx.GetLibrary(npmID)
		if err != nil || npmLibrary == nil {
			return err
		}
		npmLibrary.MigratedFromBower = true
		return tx.PutLibrary(npmLibrary)
	})
	if err != nil || !found {
		return err
	}
	return s.Index.Delete(ctx, bowerID)
}

// deleteLibraryTree removes a library, its subtree, and its search document.
func (s *Service) deleteLibraryTree(ctx context.Context, id string) error {
	err := s.Store.RunInTransaction(ctx, func(tx *datastore.Tx) error {
		return tx.DeleteLibraryTree(id)
	})
	if err != nil {
		return err
	}
	return s.Index.Delete(ctx, id)
}
