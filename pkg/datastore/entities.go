package datastore

import (
	"regexp"
	"strings"
	"time"
)

// Entity statuses. A library or version is visible to readers only when ready.
const (
	StatusPending    = "pending"
	StatusReady      = "ready"
	StatusError      = "error"
	StatusSuppressed = "suppressed"
)

// Library kinds.
const (
	KindElement    = "element"
	KindCollection = "collection"
)

// NpmScope is the reserved scope for unscoped registry packages.
const NpmScope = "@@npm"

// Library is the root entity for one catalogued package. The identifier is
// scope/package; scope starts with "@" for registry packages and is the
// GitHub owner otherwise.
type Library struct {
	ID      string
	Scope   string
	Package string

	Kind   string
	Status string
	Error  string

	ShallowIngestion bool

	GithubOwner       string
	GithubRepo        string
	GithubAccessToken string

	SpdxIdentifier string

	Metadata        string
	MetadataEtag    string
	MetadataUpdated time.Time

	Contributors        string
	ContributorsEtag    string
	ContributorsUpdated time.Time

	Participation        string
	ParticipationEtag    string
	ParticipationUpdated time.Time

	RegistryMetadata        string
	RegistryMetadataUpdated time.Time

	Tags        []string
	TagMap      map[string]string
	TagsEtag    string
	TagsUpdated time.Time

	CollectionSequenceNumber int

	NpmPackage        string
	MigratedFromBower bool

	Updated time.Time
}

// IsNpm reports whether the library is sourced from the package registry.
func (l *Library) IsNpm() bool {
	return strings.HasPrefix(l.Scope, "@")
}

// LibraryID composes the canonical library identifier.
func LibraryID(scope, pkg string) string {
	return strings.ToLower(scope) + "/" + strings.ToLower(pkg)
}

// SplitLibraryID splits an identifier back into (scope, package).
func SplitLibraryID(id string) (string, string) {
	scope, pkg, _ := strings.Cut(id, "/")
	return scope, pkg
}

var githubURLStrip = []*regexp.Regexp{
	regexp.MustCompile(`^git://github\.com/`),
	regexp.MustCompile(`^(git\+)?https?://github\.com/`),
	regexp.MustCompile(`\.git$`),
}

// GithubFromURL extracts (owner, repo) from a repository URL or a bare
// "owner/repo" string. Both results are empty when the value does not name a
// GitHub repository.
func GithubFromURL(path string) (string, string) {
	for _, expr := range githubURLStrip {
		path = expr.ReplaceAllString(path, "")
	}
	parts := strings.Split(path, "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", ""
	}
	return parts[0], parts[1]
}

// Version is a child of Library keyed by tag.
type Version struct {
	LibraryID string
	Tag       string

	Sha     string
	URL     string
	Preview bool

	Status  string
	Error   string
	Updated time.Time
}

// Content roles stored under a version.
const (
	RoleReadme     = "readme"
	RoleReadmeHTML = "readme.html"
	RoleBower      = "bower"
	RoleAnalysis   = "analysis"
)

// PageRole names the content entity for a documentation page.
func PageRole(path string) string {
	return "page-" + path
}

// Author is a root entity for a GitHub user or organization.
type Author struct {
	Name string

	Metadata        string
	MetadataEtag    string
	MetadataUpdated time.Time

	Status  string
	Error   string
	Updated time.Time
}

// CollectionReference is the inverse edge "this library appears in collection
// version X with range Y". It is stored under the member library; the
// reference id is collectionID/collectionTag.
type CollectionReference struct {
	LibraryID string
	RefID     string
	Semver    string
}

// Collection returns the collection library id and tag the reference points
// at.
func (r *CollectionReference) Collection() (string, string) {
	idx := strings.LastIndex(r.RefID, "/")
	if idx < 0 {
		return r.RefID, ""
	}
	return r.RefID[:idx], r.RefID[idx+1:]
}

// Dependency is one parsed manifest dependency.
type Dependency struct {
	Owner   string
	Repo    string
	Version string
}

var dependencyURLStrip = regexp.MustCompile(`^https://github\.com/`)
var dependencyGitSuffix = regexp.MustCompile(`\.git\b`)

// ParseDependency parses a bower-style dependency value such as
// "PolymerElements/iron-ajax#^1.0.0". A missing range means "*". Returns nil
// when the value does not name an owner/repo pair.
func ParseDependency(value string) *Dependency {
	value = dependencyURLStrip.ReplaceAllString(value, "")
	value = dependencyGitSuffix.ReplaceAllString(value, "")

	repoPart, rangePart, found := strings.Cut(value, "#")
	if !found {
		rangePart = "*"
	}
	owner, repo, ok := strings.Cut(repoPart, "/")
	if !ok || owner == "" || repo == "" {
		return nil
	}
	return &Dependency{Owner: owner, Repo: repo, Version: rangePart}
}

// Sitemap kinds.
const (
	SitemapElements    = "elements"
	SitemapCollections = "collections"
	SitemapAuthors     = "authors"
)
