// Package baseline manages the rule-document driven baseline workflow:
// generating baseline manifests from rule files and applying the matching
// hardening scripts under rollback protection.
package baseline

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/cluster2600/ALBATOR/internal/core/rollback"
	"github.com/cluster2600/ALBATOR/internal/core/script"
	"github.com/cluster2600/ALBATOR/internal/shared/types"
	"github.com/cluster2600/ALBATOR/internal/shared/utils"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// Manifest is the generated baseline document written to build/baselines.
type Manifest struct {
	Name        string   `yaml:"name"`
	Keyword     string   `yaml:"keyword"`
	GeneratedAt string   `yaml:"generated_at"`
	Tailored    bool     `yaml:"tailored,omitempty"`
	Rules       []string `yaml:"rules"`
}

// ruleDoc is the shallow shape read from rule files. Only the tag list is
// consumed; rule bodies stay opaque.
type ruleDoc struct {
	ID   string   `yaml:"id"`
	Tags []string `yaml:"tags"`
}

// Engine drives baseline operations rooted at one project directory.
type Engine struct {
	rootDir  string
	scripts  *script.Runner
	rollback *rollback.Manager
	logger   *zap.Logger

	now func() time.Time
}

// NewEngine creates an Engine.
func NewEngine(rootDir string, scripts *script.Runner, rb *rollback.Manager, logger *zap.Logger) *Engine {
	return &Engine{
		rootDir:  rootDir,
		scripts:  scripts,
		rollback: rb,
		logger:   logger,
		now:      time.Now,
	}
}

// RuleDirs returns the rule source directories in precedence order; files in
// custom/rules shadow same-named files in rules.
func (e *Engine) RuleDirs() []string {
	return []string{
		filepath.Join(e.rootDir, "rules"),
		filepath.Join(e.rootDir, "custom", "rules"),
	}
}

// HasRuleDocuments reports whether any rule YAML file exists.
func (e *Engine) HasRuleDocuments() bool {
	for _, dir := range e.RuleDirs() {
		if utils.ContainsFileWithExt(dir, ".yaml") {
			return true
		}
	}
	return false
}

// ruleFiles lists every rule YAML file. Later directories override earlier
// ones by base name.
func (e *Engine) ruleFiles() []string {
	byName := map[string]string{}
	for _, dir := range e.RuleDirs() {
		filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return nil
			}
			if !d.IsDir() && strings.HasSuffix(d.Name(), ".yaml") {
				byName[d.Name()] = path
			}
			return nil
		})
	}

	files := make([]string, 0, len(byName))
	for _, path := range byName {
		files = append(files, path)
	}
	sort.Strings(files)
	return files
}

// MatchRules returns the rule files whose base name contains the keyword.
// The keyword "all" matches everything.
func (e *Engine) MatchRules(keyword string) []string {
	files := e.ruleFiles()
	if keyword == "all" {
		return files
	}
	var matched []string
	for _, path := range files {
		if strings.Contains(filepath.Base(path), keyword) {
			matched = append(matched, path)
		}
	}
	return matched
}

// ListTags aggregates the tag lists of all rule documents, unique and
// sorted. Unparseable files are skipped with a warning.
func (e *Engine) ListTags() ([]string, error) {
	if !e.HasRuleDocuments() {
		return nil, fmt.Errorf("%w: no rule files under %s", types.ErrRuleSourceNotFound, strings.Join(e.RuleDirs(), ", "))
	}

	seen := map[string]bool{}
	for _, path := range e.ruleFiles() {
		data, err := os.ReadFile(path)
		if err != nil {
			e.logger.Warn("skipping unreadable rule file", zap.String("path", path), zap.Error(err))
			continue
		}
		var doc ruleDoc
		if err := yaml.Unmarshal(data, &doc); err != nil {
			e.logger.Warn("skipping unparseable rule file", zap.String("path", path), zap.Error(err))
			continue
		}
		for _, tag := range doc.Tags {
			seen[tag] = true
		}
	}

	tags := make([]string, 0, len(seen))
	for tag := range seen {
		tags = append(tags, tag)
	}
	sort.Strings(tags)
	return tags, nil
}

// Generate writes a baseline manifest for the keyword and returns its path.
func (e *Engine) Generate(keyword string) (string, error) {
	return e.generate(keyword, false)
}

// Tailor writes a tailored copy of the keyword's baseline manifest meant for
// local editing before apply.
func (e *Engine) Tailor(keyword string) (string, error) {
	return e.generate(keyword, true)
}

func (e *Engine) generate(keyword string, tailored bool) (string, error) {
	matched := e.MatchRules(keyword)
	if len(matched) == 0 {
		return "", fmt.Errorf("%w: keyword %q", types.ErrRuleSourceNotFound, keyword)
	}

	rules := make([]string, 0, len(matched))
	for _, path := range matched {
		rules = append(rules, strings.TrimSuffix(filepath.Base(path), ".yaml"))
	}

	name := keyword
	if tailored {
		name = keyword + "_tailored"
	}
	manifest := Manifest{
		Name:        name,
		Keyword:     keyword,
		GeneratedAt: e.now().Format(time.RFC3339),
		Tailored:    tailored,
		Rules:       rules,
	}
	data, err := yaml.Marshal(&manifest)
	if err != nil {
		return "", fmt.Errorf("failed to encode baseline manifest: %w", err)
	}

	outDir := filepath.Join(e.rootDir, "build", "baselines")
	if err := utils.EnsureDir(outDir); err != nil {
		return "", fmt.Errorf("failed to create baseline output dir: %w", err)
	}
	outPath := filepath.Join(outDir, name+".yaml")
	if err := utils.AtomicWriteFile(outPath, data, 0o644); err != nil {
		return "", fmt.Errorf("failed to write baseline manifest: %w", err)
	}

	e.logger.Info("generated baseline manifest",
		zap.String("keyword", keyword),
		zap.Int("rules", len(rules)),
		zap.String("path", outPath))
	return outPath, nil
}

// Apply runs the hardening script matching the keyword with a rollback point
// opened around it. It returns the rollback point id (empty when rollback is
// disabled).
func (e *Engine) Apply(ctx context.Context, keyword string, dryRun bool) (string, error) {
	if len(e.MatchRules(keyword)) == 0 {
		return "", fmt.Errorf("%w: keyword %q", types.ErrRuleSourceNotFound, keyword)
	}
	// Resolve the script before creating the rollback point; a bad keyword
	// must not leave an empty point behind.
	if _, err := e.scripts.Path(keyword); err != nil {
		return "", err
	}

	rollbackID, err := e.rollback.CreateRollbackPoint(ctx, "baseline_"+keyword,
		fmt.Sprintf("before baseline apply (%s)", keyword))
	if err != nil {
		return "", err
	}

	var args []string
	if dryRun {
		args = append(args, "--dry-run")
	}
	if err := e.scripts.Run(ctx, keyword, args...); err != nil {
		return rollbackID, err
	}

	e.logger.Info("baseline applied",
		zap.String("keyword", keyword),
		zap.Bool("dry_run", dryRun),
		zap.String("rollback_id", rollbackID))
	return rollbackID, nil
}
