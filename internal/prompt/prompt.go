package prompt

import (
	"fmt"
	"os"
	"strings"

	"mentora/internal/models"

	"gopkg.in/yaml.v3"
)

// DefaultRole is the profile used when a user's role has no template of its
// own.
const DefaultRole = "default"

// Library is the template set loaded from prompts.yaml. It is immutable after
// load and safe for concurrent reads.
type Library struct {
	DefaultInstructions string            `yaml:"default_instructions"`
	Roles               map[string]string `yaml:"roles"`
	Tasks               Tasks             `yaml:"tasks"`
}

type Tasks struct {
	Chat                   ChatTask `yaml:"chat"`
	SummarizeConversation  string   `yaml:"summarize_conversation"`
	GenerateIntroAndTopics string   `yaml:"generate_intro_and_topics"`
	GenerateTopicPrompts   string   `yaml:"generate_topic_prompts"`
}

type ChatTask struct {
	SystemPrompt      string `yaml:"system_prompt"`
	UserPromptWrapper string `yaml:"user_prompt_wrapper"`
}

// Context carries the per-request values substituted into templates.
type Context struct {
	Role         string
	LearningGoal string
	Skills       []string
	Difficulty   string
	Summary      string
}

// Assembler builds full prompts from the role template set.
type Assembler struct {
	lib Library
}

// Load reads the template set once at startup. A missing file or a template
// set without a default role profile is fatal.
func Load(path string) (*Assembler, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read prompts: %w", err)
	}
	var lib Library
	if err := yaml.Unmarshal(data, &lib); err != nil {
		return nil, fmt.Errorf("parse prompts: %w", err)
	}
	if len(lib.Roles) == 0 {
		return nil, fmt.Errorf("prompts: no role profiles defined")
	}
	if _, ok := lib.Roles[DefaultRole]; !ok {
		return nil, fmt.Errorf("prompts: role %q must be defined", DefaultRole)
	}
	if strings.TrimSpace(lib.Tasks.Chat.SystemPrompt) == "" {
		return nil, fmt.Errorf("prompts: tasks.chat.system_prompt must be defined")
	}
	return &Assembler{lib: lib}, nil
}

// RoleInstruction returns the template for role, falling back to the default
// profile when the role is unknown.
func (a *Assembler) RoleInstruction(role string) string {
	if tpl, ok := a.lib.Roles[role]; ok {
		return tpl
	}
	return a.lib.Roles[DefaultRole]
}

// HasRole reports whether role has a profile of its own.
func (a *Assembler) HasRole(role string) bool {
	_, ok := a.lib.Roles[role]
	return ok
}

// Build assembles the full chat prompt: role instruction, mentoring context,
// the rendered history transcript, and the verbatim current message. User
// content is inserted as-is.
func (a *Assembler) Build(role string, hist []models.ChatTurn, message string) string {
	return a.BuildChat(Context{Role: role}, hist, message)
}

// BuildChat is Build with the full mentoring context available.
func (a *Assembler) BuildChat(cc Context, hist []models.ChatTurn, message string) string {
	prompt := fill(a.lib.Tasks.Chat.SystemPrompt, map[string]string{
		"context_summary":     a.contextSummary(cc),
		"role_instruction":    a.RoleInstruction(cc.Role),
		"default_instruction": a.lib.DefaultInstructions,
		"history":             Transcript(hist),
		"message":             message,
	})
	if cc.Summary != "" && a.lib.Tasks.Chat.UserPromptWrapper != "" {
		wrapper := fill(a.lib.Tasks.Chat.UserPromptWrapper, map[string]string{
			"summary": cc.Summary,
		})
		prompt = wrapper + "\n\n" + prompt
	}
	return prompt
}

// IntroPrompt builds the prompt that generates a session's opening message
// and topic list.
func (a *Assembler) IntroPrompt(cc Context, extraInstructions string) string {
	return fill(a.lib.Tasks.GenerateIntroAndTopics, map[string]string{
		"extra_instructions":  extraInstructions,
		"default_behavior":    a.lib.DefaultInstructions,
		"role_prompt":         a.RoleInstruction(cc.Role),
		"context_description": a.contextSummary(cc),
	})
}

// TopicPrompt builds the prompt that suggests user questions for a topic.
func (a *Assembler) TopicPrompt(topic string, cc Context) string {
	return fill(a.lib.Tasks.GenerateTopicPrompts, map[string]string{
		"topic":               topic,
		"role_prompt":         a.RoleInstruction(cc.Role),
		"context_description": a.contextSummary(cc),
	})
}

// SummaryPrompt returns the instruction used to condense older turns.
func (a *Assembler) SummaryPrompt() string {
	return a.lib.Tasks.SummarizeConversation
}

// Transcript renders turns as a flat oldest-first transcript.
func Transcript(hist []models.ChatTurn) string {
	if len(hist) == 0 {
		return "(no prior conversation)"
	}
	var b strings.Builder
	for i, t := range hist {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(string(t.Role))
		b.WriteString(": ")
		b.WriteString(t.Content)
	}
	return b.String()
}

func (a *Assembler) contextSummary(cc Context) string {
	lines := []string{"Role: " + orDefault(cc.Role, DefaultRole)}
	if cc.LearningGoal != "" {
		lines = append(lines, "Learning Goal: "+cc.LearningGoal)
	}
	if len(cc.Skills) > 0 {
		lines = append(lines, "Skills: "+strings.Join(cc.Skills, ", "))
	}
	if cc.Difficulty != "" {
		lines = append(lines, "Difficulty: "+cc.Difficulty)
	}
	return strings.Join(lines, "\n")
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

// fill substitutes {name} slots. Substitution is verbatim; no escaping is
// applied to user content.
func fill(tpl string, slots map[string]string) string {
	pairs := make([]string, 0, len(slots)*2)
	for name, value := range slots {
		pairs = append(pairs, "{"+name+"}", value)
	}
	return strings.NewReplacer(pairs...).Replace(tpl)
}
