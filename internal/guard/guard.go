// Package guard screens every tool call before execution: forbidden shell
// patterns, protected paths, self-modification rate and size limits, path
// traversal, and the package allow-list. A blocked call returns a fixed
// result string and the tool is never invoked.
package guard

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"automa/internal/logging"
	"automa/internal/store"
)

const (
	// MaxModificationsPerHour bounds how often the automaton may rewrite
	// its own files.
	MaxModificationsPerHour = 20

	// MaxSelfWriteBytes bounds the size of any single self-write.
	MaxSelfWriteBytes = 100_000
)

// Policy declares which guard checks apply to a tool. The registry attaches
// one to every tool.
type Policy struct {
	Exec    bool // scan the command string for forbidden patterns
	SelfMod bool // rate and size limits on self-modification
	Package bool // package specifier allow-list
}

// Verdict is the guard's decision for one call. Result carries the fixed
// blocked string shown to the model in place of tool output.
type Verdict struct {
	Allowed  bool
	Result   string
	Category string
}

func allow() Verdict { return Verdict{Allowed: true} }

func blockPattern(category string) Verdict {
	return Verdict{Result: "Blocked by forbidden pattern: " + category, Category: category}
}

func block(result, category string) Verdict {
	return Verdict{Result: result, Category: category}
}

// Shell fragments that name files the automaton must never damage or leak.
const protectedFragment = `(\.automa\b|wallet\.json|config\.json|identity\.json|state\.db|genesis\.md|constitution\.md|heartbeats\.yaml|\.ssh/|\.gnupg/|\.aws/|/etc/passwd|/etc/shadow)`

type forbiddenPattern struct {
	category string
	re       *regexp.Regexp
}

// Evaluated in order; the first match wins. Substring matching against the
// raw command is deliberate: a protected path inside a quoted literal still
// blocks.
var forbiddenPatterns = []forbiddenPattern{
	{"protected path deletion", regexp.MustCompile(`(?i)\b(rm|unlink|shred)\b[^|;&]*` + protectedFragment)},
	{"protected path deletion", regexp.MustCompile(`(?i)\bsed\s+-i\b[^|;&]*` + protectedFragment)},
	{"protected path deletion", regexp.MustCompile(`(?i)\bfind\b[^|;&]*` + protectedFragment + `[^|;&]*-delete`)},
	{"protected path deletion", regexp.MustCompile(`(?i)\btruncate\b[^|;&]*` + protectedFragment)},
	{"protected path deletion", regexp.MustCompile(`>\s*[^\s|;&]*` + protectedFragment)},
	{"command substitution", regexp.MustCompile("\\$\\(|`")},
	{"pipe to shell", regexp.MustCompile(`\|\s*(ba|da|z)?sh\b`)},
	{"credential file read", regexp.MustCompile(`(?i)\b(cat|less|more|head|tail|strings|base64|xxd|od|cp|scp)\b[^|;&]*(id_rsa|id_ed25519|id_ecdsa|\.ssh/|\.aws/credentials|\.gnupg/|wallet\.json|\.netrc|\.npmrc|/etc/shadow|private[_-]?key)`)},
}

// Basenames no path-taking tool may touch, wherever they live.
var protectedBasenames = map[string]bool{
	"wallet.json":     true,
	"config.json":     true,
	"identity.json":   true,
	"state.db":        true,
	"state.db-wal":    true,
	"state.db-shm":    true,
	"genesis.md":      true,
	"constitution.md": true,
	"heartbeats.yaml": true,
	"KILL":            true,
	"automa.log":      true,
}

// Directory prefixes that are off limits. A leading ~ matches both the
// literal and the expanded home.
var protectedPrefixes = []string{
	"~/.ssh/", "~/.gnupg/", "~/.gpg/", "~/.aws/", "~/.azure/", "~/.gcloud/",
	"~/.kube/", "~/.docker/", "/etc/systemd/", "/etc/passwd", "/etc/shadow",
	"/proc/", "/sys/",
}

// Package names the installer accepts. Versions pin with name@version.
var allowedPackages = map[string]bool{
	"curl": true, "wget": true, "jq": true, "git": true, "make": true,
	"python3": true, "pip": true, "node": true, "npm": true, "go": true,
	"ripgrep": true, "sqlite3": true, "ffmpeg": true, "imagemagick": true,
	"pandoc": true, "zip": true, "unzip": true, "tar": true, "gzip": true,
	"htop": true, "tmux": true, "vim": true, "nano": true, "tree": true,
	"ca-certificates": true, "build-essential": true, "openssl": true,
}

var packageSpec = regexp.MustCompile(`^[a-z0-9][a-z0-9._+-]*(@[A-Za-z0-9._-]+)?$`)

// Argument keys treated as filesystem paths.
var pathKeys = []string{"path", "file", "filepath", "file_path", "target", "source", "dest", "directory", "dir"}

// Guard holds the per-process state the checks need: the store for the
// modification rate limit and the home directory for tilde expansion.
type Guard struct {
	st   *store.Store
	home string
}

// New builds a guard. home is the automaton directory, used to expand ~ in
// protected-path checks.
func New(st *store.Store, home string) *Guard {
	return &Guard{st: st, home: home}
}

// Check runs the full pipeline for one tool call. Exactly one of
// {allowed, blocked} comes back; the guard never errors.
func (g *Guard) Check(toolName string, policy Policy, args map[string]any) Verdict {
	if policy.Exec {
		if cmd := stringArg(args, "command"); cmd != "" {
			for _, p := range forbiddenPatterns {
				if p.re.MatchString(cmd) {
					logging.Guard("Blocked %s: forbidden pattern %q in command", toolName, p.category)
					return blockPattern(p.category)
				}
			}
		}
	}

	paths := pathArgs(args)
	for _, path := range paths {
		if g.isProtected(path) {
			logging.Guard("Blocked %s: protected path %q", toolName, path)
			return block("Blocked: protected path", "protected path")
		}
	}

	if policy.SelfMod {
		n, err := g.st.CountModificationsSince(time.Now().Add(-time.Hour))
		if err != nil {
			logging.GuardWarn("Modification count unavailable: %v", err)
		} else if n >= MaxModificationsPerHour {
			logging.Guard("Blocked %s: %d self-modifications in the last hour", toolName, n)
			return block("Blocked: self-modification rate limit exceeded", "self-mod rate")
		}

		if content := stringArg(args, "content"); len(content) > MaxSelfWriteBytes {
			logging.Guard("Blocked %s: write of %d bytes", toolName, len(content))
			return block("Blocked: write exceeds size limit", "self-write size")
		}
	}

	for _, path := range paths {
		if strings.Contains(path, "..") {
			logging.Guard("Blocked %s: traversal in %q", toolName, path)
			return block("Blocked: path traversal", "path traversal")
		}
	}

	if policy.Package {
		if v := g.checkPackage(stringArg(args, "package")); !v.Allowed {
			logging.Guard("Blocked %s: package %q", toolName, stringArg(args, "package"))
			return v
		}
	}

	return allow()
}

// IsProtected reports whether a path names something the automaton must not
// touch. Matching is by basename, prefix, and substring.
func (g *Guard) IsProtected(path string) bool {
	return g.isProtected(path)
}

func (g *Guard) isProtected(path string) bool {
	clean := strings.TrimSpace(path)
	if clean == "" {
		return false
	}
	if protectedBasenames[filepath.Base(clean)] {
		return true
	}

	expanded := clean
	if g.home != "" && strings.HasPrefix(clean, "~/") {
		expanded = filepath.Join(g.home, clean[2:])
	}
	for _, prefix := range protectedPrefixes {
		if strings.HasPrefix(clean, prefix) || strings.HasPrefix(expanded, prefix) {
			return true
		}
		if g.home != "" && strings.HasPrefix(prefix, "~/") {
			if strings.HasPrefix(expanded, filepath.Join(g.home, prefix[2:])+"/") {
				return true
			}
		}
	}
	return false
}

func (g *Guard) checkPackage(spec string) Verdict {
	if spec == "" {
		return block("Blocked: package not in allow-list", "package allow-list")
	}
	if strings.ContainsAny(spec, "&;|` \t\n") || strings.Contains(spec, "$(") {
		return block("Blocked: package not in allow-list", "package allow-list")
	}
	if !packageSpec.MatchString(spec) {
		return block("Blocked: package not in allow-list", "package allow-list")
	}
	name := spec
	if i := strings.IndexByte(spec, '@'); i >= 0 {
		name = spec[:i]
	}
	if !allowedPackages[name] {
		return block("Blocked: package not in allow-list", "package allow-list")
	}
	return allow()
}

func stringArg(args map[string]any, key string) string {
	if v, ok := args[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

func pathArgs(args map[string]any) []string {
	var paths []string
	for _, key := range pathKeys {
		if s := stringArg(args, key); s != "" {
			paths = append(paths, s)
		}
	}
	return paths
}

// Describe renders the verdict for logs and audits.
func (v Verdict) Describe() string {
	if v.Allowed {
		return "allowed"
	}
	return fmt.Sprintf("blocked (%s)", v.Category)
}
