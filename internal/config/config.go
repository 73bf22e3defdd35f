package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// ErrFolderNotFound is returned when a named folder template is not configured
var ErrFolderNotFound = errors.New("folder template not found")

// ClientKind selects the git backend used to drive the working copy
type ClientKind string

const (
	ClientGoGit ClientKind = "go-git"
	ClientShell ClientKind = "shell"
)

// DefaultFolder is the folder template used when none is requested
const DefaultFolder = "default"

// DefaultFolderFormat is written into freshly created configuration files
const DefaultFolderFormat = "files/{date}/{XXXXXXXX}"

// Config represents the complete fileflyer configuration
type Config struct {
	GitHub  GitHubConfig            `yaml:"github"`
	Commit  CommitConfig            `yaml:"commit"`
	Folders map[string]FolderConfig `yaml:"folders"`
}

// GitHubConfig describes the hosting repository and its local working copy
type GitHubConfig struct {
	URL       string     `yaml:"url"`
	Remote    string     `yaml:"remote"`
	Path      string     `yaml:"path"`
	Branch    string     `yaml:"branch"`
	Token     string     `yaml:"token"`
	TokenFile string     `yaml:"token_file,omitempty"`
	Client    ClientKind `yaml:"client,omitempty"`
}

// CommitConfig overrides the commit author. Empty values fall back to the
// user's git configuration.
type CommitConfig struct {
	AuthorName  string `yaml:"author_name,omitempty"`
	AuthorEmail string `yaml:"author_email,omitempty"`
}

// FolderConfig is a named destination folder template
type FolderConfig struct {
	Format string `yaml:"format"`
}

// DefaultPath returns the location of the configuration file under the
// user's configuration directory.
func DefaultPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user config directory: %w", err)
	}
	return filepath.Join(dir, "fileflyer", "config.yaml"), nil
}

// Default returns the document written on first run
func Default() *Config {
	return &Config{
		GitHub: GitHubConfig{
			URL:    "",
			Remote: "origin",
			Path:   "",
			Branch: "",
			Token:  "",
			Client: ClientGoGit,
		},
		Folders: map[string]FolderConfig{
			DefaultFolder: {Format: DefaultFolderFormat},
		},
	}
}

// Load reads and parses the configuration file
func Load(path string) (*Config, error) {
	path = os.ExpandEnv(path)

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.expandEnv()
	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// LoadOrInit loads the configuration at path, writing the default document
// first when the file does not exist yet. The returned flag reports whether
// the file was created.
func LoadOrInit(path string) (*Config, bool, error) {
	if _, err := os.Stat(os.ExpandEnv(path)); err != nil {
		if !os.IsNotExist(err) {
			return nil, false, fmt.Errorf("failed to stat config file: %w", err)
		}
		if err := Default().Save(path); err != nil {
			return nil, false, err
		}
		cfg, err := Load(path)
		return cfg, true, err
	}

	cfg, err := Load(path)
	return cfg, false, err
}

// Save writes the configuration to path, creating parent directories
func (c *Config) Save(path string) error {
	path = os.ExpandEnv(path)

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}

	// The file may hold an access token
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// expandEnv expands environment variables in all string fields
func (c *Config) expandEnv() {
	c.GitHub.URL = os.ExpandEnv(c.GitHub.URL)
	c.GitHub.Remote = os.ExpandEnv(c.GitHub.Remote)
	c.GitHub.Path = os.ExpandEnv(c.GitHub.Path)
	c.GitHub.Branch = os.ExpandEnv(c.GitHub.Branch)
	c.GitHub.Token = os.ExpandEnv(c.GitHub.Token)
	c.GitHub.TokenFile = os.ExpandEnv(c.GitHub.TokenFile)
	c.Commit.AuthorName = os.ExpandEnv(c.Commit.AuthorName)
	c.Commit.AuthorEmail = os.ExpandEnv(c.Commit.AuthorEmail)
}

// applyDefaults fills in zero-value fields with sensible defaults.
func (c *Config) applyDefaults() {
	if c.GitHub.Client == "" {
		c.GitHub.Client = ClientGoGit
	}
	if c.Folders == nil {
		c.Folders = make(map[string]FolderConfig)
	}
}

// Validate checks the configuration for errors. Repository URL, path and
// remote may still be placeholders; they are reported by the repository
// state check instead.
func (c *Config) Validate() error {
	switch c.GitHub.Client {
	case ClientGoGit, ClientShell:
		// valid
	default:
		return fmt.Errorf("invalid github.client: %s (must be go-git or shell)", c.GitHub.Client)
	}

	if c.GitHub.Token != "" && c.GitHub.TokenFile != "" {
		return fmt.Errorf("github: only one of token or token_file may be set")
	}

	if (c.Commit.AuthorName == "") != (c.Commit.AuthorEmail == "") {
		return fmt.Errorf("commit: author_name and author_email must be set together")
	}

	for _, name := range c.FolderNames() {
		if strings.TrimSpace(c.Folders[name].Format) == "" {
			return fmt.Errorf("folders.%s.format is required", name)
		}
	}

	return nil
}

// RepoURL returns the web URL of the hosting repository without a trailing slash
func (c *Config) RepoURL() string {
	return strings.TrimRight(c.GitHub.URL, "/")
}

// RemoteName returns the git remote that uploads are pushed to
func (c *Config) RemoteName() string {
	return c.GitHub.Remote
}

// Branch returns the configured target branch, empty when any branch is accepted
func (c *Config) Branch() string {
	return c.GitHub.Branch
}

// RepoPath returns the absolute, symlink-resolved path of the working copy
func (c *Config) RepoPath() (string, error) {
	p := c.GitHub.Path
	if p == "" {
		return "", fmt.Errorf("github.path is not configured")
	}

	if p == "~" || strings.HasPrefix(p, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to get user home directory: %w", err)
		}
		p = filepath.Join(home, strings.TrimPrefix(p, "~"))
	}

	abs, err := filepath.Abs(p)
	if err != nil {
		return "", fmt.Errorf("failed to resolve github.path: %w", err)
	}

	resolved, err := filepath.EvalSymlinks(abs)
	if err != nil {
		return "", fmt.Errorf("failed to resolve github.path: %w", err)
	}
	return resolved, nil
}

// Token returns the access token used for pushing, reading token_file if set
func (c *Config) Token() (string, error) {
	if c.GitHub.TokenFile == "" {
		return c.GitHub.Token, nil
	}

	data, err := os.ReadFile(c.GitHub.TokenFile)
	if err != nil {
		return "", fmt.Errorf("failed to read token file: %w", err)
	}
	return strings.TrimSpace(string(data)), nil
}

// FolderFormat returns the template registered under name
func (c *Config) FolderFormat(name string) (string, error) {
	folder, ok := c.Folders[name]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrFolderNotFound, name)
	}
	return folder.Format, nil
}

// FolderNames returns the configured folder template names in sorted order
func (c *Config) FolderNames() []string {
	names := make([]string, 0, len(c.Folders))
	for name := range c.Folders {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Redacted returns a copy of the configuration that is safe to print
func (c *Config) Redacted() *Config {
	out := *c
	if out.GitHub.Token != "" {
		out.GitHub.Token = "********"
	}
	out.Folders = make(map[string]FolderConfig, len(c.Folders))
	for name, folder := range c.Folders {
		out.Folders[name] = folder
	}
	return &out
}
