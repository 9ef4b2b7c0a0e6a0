package policy

// DMPolicy controls who may trigger automated replies in direct chats.
type DMPolicy string

const (
	DMOpen      DMPolicy = "open"
	DMPairing   DMPolicy = "pairing"
	DMAllowlist DMPolicy = "allowlist"
	DMDisabled  DMPolicy = "disabled"
)

// GroupPolicy controls which groups may trigger automated replies.
type GroupPolicy string

const (
	GroupOpen      GroupPolicy = "open"
	GroupAllowlist GroupPolicy = "allowlist"
	GroupDisabled  GroupPolicy = "disabled"
)

// GroupConfig is one group's configuration entry.
type GroupConfig struct {
	ChatID string `mapstructure:"chat_id"`

	Enabled bool `mapstructure:"enabled"`

	// ReplyWithoutMention is three-state: explicitly true means no
	// mention is ever required, explicitly false means a mention is
	// always required, unset falls back to "mention required".
	ReplyWithoutMention *bool `mapstructure:"reply_without_mention"`

	// AllowList restricts which group members may trigger replies.
	// Empty means every member of an enabled group may.
	AllowList []string `mapstructure:"allow_list"`

	SystemPrompt string   `mapstructure:"system_prompt"`
	Skills       []string `mapstructure:"skills"`
}

// ChannelConfig is the per-channel policy input. Reloaded between
// messages, which is why decisions are computed per event, never cached.
type ChannelConfig struct {
	Channel string `mapstructure:"channel"`

	DMEnabled bool     `mapstructure:"dm_enabled"`
	DMPolicy  DMPolicy `mapstructure:"dm_policy"`

	// AllowList is the statically configured portion; the pairing store
	// contributes the dynamically approved portion.
	AllowList []string `mapstructure:"allow_list"`

	GroupPolicy GroupPolicy   `mapstructure:"group_policy"`
	Groups      []GroupConfig `mapstructure:"groups"`

	MentionPatterns []string `mapstructure:"mention_patterns"`

	// AccessGroupsRequired gates command authorization on allow-list
	// membership. When false, a control command from any sender is
	// treated as authorized.
	AccessGroupsRequired bool `mapstructure:"access_groups_required"`
}
