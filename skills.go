package claudeagent

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
)

// Skill is a filesystem-based capability extension: a directory holding a
// SKILL.md file whose YAML frontmatter names and describes the skill, with
// Markdown instructions below it.
//
// Skills are discovered from ~/.claude/skills (user scope) and
// .claude/skills under the working directory (project scope). A project
// skill with the same name as a user skill wins.
type Skill struct {
	// Name identifies the skill, from the frontmatter.
	Name string

	// Description explains what the skill does and when the agent should
	// reach for it.
	Description string

	// AllowedTools restricts tool use while the skill is active. Empty
	// means unrestricted.
	AllowedTools []string

	// Instructions is the Markdown body below the frontmatter.
	Instructions string

	// Path is where the SKILL.md file lives.
	Path string

	// Scope is "user" or "project".
	Scope string

	// SupportFiles lists sibling files in the skill directory, such as
	// reference material or scripts the instructions mention.
	SupportFiles []string
}

type skillFrontmatter struct {
	Name         string   `yaml:"name"`
	Description  string   `yaml:"description"`
	AllowedTools []string `yaml:"allowed-tools,omitempty"`
}

// SkillLoader discovers skills on disk.
type SkillLoader struct {
	userDir    string
	projectDir string
	logger     zerolog.Logger
}

// NewSkillLoader creates a loader over the given directories. Empty
// arguments default to ~/.claude/skills and ./.claude/skills.
func NewSkillLoader(userDir, projectDir string) *SkillLoader {
	if userDir == "" {
		if home, err := os.UserHomeDir(); err == nil {
			userDir = filepath.Join(home, ".claude", "skills")
		}
	}
	if projectDir == "" {
		if cwd, err := os.Getwd(); err == nil {
			projectDir = filepath.Join(cwd, ".claude", "skills")
		}
	}

	return &SkillLoader{
		userDir:    userDir,
		projectDir: projectDir,
		logger:     zerolog.Nop(),
	}
}

// SetLogger routes discovery warnings (unreadable directories, malformed
// skills) to the given logger.
func (l *SkillLoader) SetLogger(logger zerolog.Logger) {
	l.logger = logger
}

// Load discovers all skills. User scope loads first, then project scope;
// when both define a skill of the same name the project one replaces it.
// Malformed skill directories are logged and skipped.
func (l *SkillLoader) Load() ([]Skill, error) {
	byName := make(map[string]int)
	var skills []Skill

	scopes := []struct {
		dir   string
		scope string
	}{
		{l.userDir, "user"},
		{l.projectDir, "project"},
	}

	for _, s := range scopes {
		if s.dir == "" {
			continue
		}
		found, err := l.loadDir(s.dir, s.scope)
		if err != nil {
			if !os.IsNotExist(err) {
				l.logger.Warn().Err(err).Str("dir", s.dir).
					Msg("skill directory scan failed")
			}
			continue
		}
		for _, skill := range found {
			if i, ok := byName[skill.Name]; ok {
				skills[i] = skill
				continue
			}
			byName[skill.Name] = len(skills)
			skills = append(skills, skill)
		}
	}

	return skills, nil
}

func (l *SkillLoader) loadDir(dir, scope string) ([]Skill, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	var skills []Skill
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		skill, err := l.LoadFromPath(filepath.Join(dir, entry.Name()), scope)
		if err != nil {
			l.logger.Warn().Err(err).Str("skill", entry.Name()).
				Msg("skipping malformed skill")
			continue
		}
		skills = append(skills, *skill)
	}

	return skills, nil
}

// LoadFromPath loads one skill from a directory containing SKILL.md.
func (l *SkillLoader) LoadFromPath(path, scope string) (*Skill, error) {
	skillPath := filepath.Join(path, "SKILL.md")
	content, err := os.ReadFile(skillPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", skillPath, err)
	}

	meta, body, err := parseSkillFile(content)
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", skillPath, err)
	}
	if strings.TrimSpace(meta.Name) == "" {
		return nil, &ErrInvalidConfiguration{Field: "name", Reason: "skill name is required"}
	}
	if strings.TrimSpace(meta.Description) == "" {
		return nil, &ErrInvalidConfiguration{Field: "description", Reason: "skill description is required"}
	}

	support, err := supportFiles(path)
	if err != nil {
		support = nil
	}

	return &Skill{
		Name:         meta.Name,
		Description:  meta.Description,
		AllowedTools: meta.AllowedTools,
		Instructions: body,
		Path:         skillPath,
		Scope:        scope,
		SupportFiles: support,
	}, nil
}

// parseSkillFile splits SKILL.md into YAML frontmatter and the Markdown
// body. The frontmatter sits between the first two "---" lines.
func parseSkillFile(content []byte) (skillFrontmatter, string, error) {
	parts := bytes.SplitN(content, []byte("---"), 3)
	if len(parts) < 3 {
		return skillFrontmatter{}, "", &ErrInvalidConfiguration{
			Field:  "frontmatter",
			Reason: "missing --- delimiters",
		}
	}

	var meta skillFrontmatter
	if err := yaml.Unmarshal(parts[1], &meta); err != nil {
		return skillFrontmatter{}, "", fmt.Errorf("invalid frontmatter: %w", err)
	}

	return meta, string(bytes.TrimSpace(parts[2])), nil
}

func supportFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	var files []string
	for _, entry := range entries {
		name := entry.Name()
		if name == "SKILL.md" || strings.HasPrefix(name, ".") {
			continue
		}
		files = append(files, name)
	}
	return files, nil
}

// WithSkills attaches skills to a session. Each skill's instructions are
// appended to the system prompt, its directory is exposed to the CLI via
// --add-dir so support files stay readable, and its tool restrictions
// union into AllowedTools.
func WithSkills(skills ...Skill) Option {
	return func(o *Options) {
		for _, skill := range skills {
			section := fmt.Sprintf("\n\n## Skill: %s\n%s\n\n%s",
				skill.Name, skill.Description, skill.Instructions)
			o.AppendSystemPrompt += section

			if skill.Path != "" {
				o.AddDirs = append(o.AddDirs, filepath.Dir(skill.Path))
			}
			o.AllowedTools = append(o.AllowedTools, skill.AllowedTools...)
		}
	}
}
