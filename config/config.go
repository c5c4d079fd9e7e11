// Package config resolves the meetscribe configuration from three cascading
// layers: built-in defaults, the project defaults file (config.default.json),
// and the user override file (settings.json). Layers are deep-merged key by
// key with later layers winning per leaf; arrays and scalars are replaced
// wholesale. Call-type YAML packs extend the call_types section after the
// user layer.
package config

// Config is the fully-merged settings object. Every field has a defined
// value after Resolve.
type Config struct {
	Recording       Recording           `json:"recording" mapstructure:"recording"`
	Transcription   Transcription       `json:"transcription" mapstructure:"transcription"`
	LLM             LLM                 `json:"llm" mapstructure:"llm"`
	CallTypes       map[string]CallType `json:"call_types" mapstructure:"call_types"`
	ContextBasePath string              `json:"context_base_path" mapstructure:"context_base_path"`
	GDrive          GDrive              `json:"gdrive" mapstructure:"gdrive"`
	Notifications   Notifications       `json:"notifications" mapstructure:"notifications"`
}

// Recording configures the capture backend.
type Recording struct {
	OutputDir     string `json:"output_dir" mapstructure:"output_dir"`
	OBSWSPort     string `json:"obs_ws_port" mapstructure:"obs_ws_port"`
	OBSWSPassword string `json:"obs_ws_password" mapstructure:"obs_ws_password"`
	// Controller selects the capture implementation: "obsws" (native
	// websocket client) or "obs-cmd" (external binary).
	Controller string `json:"controller" mapstructure:"controller"`
}

// Transcription configures the WhisperX invocation.
type Transcription struct {
	Diarize     bool   `json:"diarize" mapstructure:"diarize"`
	Language    string `json:"language" mapstructure:"language"`
	Device      string `json:"device" mapstructure:"device"`
	ComputeType string `json:"compute_type" mapstructure:"compute_type"`
	Path        string `json:"path" mapstructure:"path"`
	HFToken     string `json:"hf_token" mapstructure:"hf_token"`
}

// LLM configures the analysis provider. Provider is one of "openai",
// "databricks", or "anthropic". OpenAI and Anthropic authenticate with
// APIKey; Databricks resolves credentials from the ~/.databrickscfg profile
// named by Profile.
type LLM struct {
	Provider string `json:"provider" mapstructure:"provider"`
	Enabled  bool   `json:"enabled" mapstructure:"enabled"`
	APIKey   string `json:"api_key" mapstructure:"api_key"`
	Model    string `json:"model" mapstructure:"model"`
	Profile  string `json:"profile" mapstructure:"profile"`
}

// CallType is a named analysis profile. Exactly one of Prompt or
// PromptTemplate is expected; PromptTemplate carries a {person_name}
// placeholder and pairs with RequiresPersonName.
type CallType struct {
	Name               string   `json:"name" mapstructure:"name"`
	Icon               string   `json:"icon" mapstructure:"icon"`
	Prompt             string   `json:"prompt" mapstructure:"prompt"`
	PromptTemplate     string   `json:"prompt_template" mapstructure:"prompt_template"`
	RequiresPersonName bool     `json:"requires_person_name" mapstructure:"requires_person_name"`
	ContextFiles       []string `json:"context_files" mapstructure:"context_files"`
}

// GDrive configures the optional Google Drive upload of session artifacts.
type GDrive struct {
	Enabled         bool   `json:"enabled" mapstructure:"enabled"`
	FolderID        string `json:"folder_id" mapstructure:"folder_id"`
	CredentialsFile string `json:"credentials_file" mapstructure:"credentials_file"`
	OAuthClientFile string `json:"oauth_client_file" mapstructure:"oauth_client_file"`
	TokenFile       string `json:"token_file" mapstructure:"token_file"`
}

// Notifications configures desktop notifications.
type Notifications struct {
	Enabled bool `json:"enabled" mapstructure:"enabled"`
}

// GenericCallTypeID is the implicit default call type. It always exists:
// the built-in defaults define it, and user layers may override its prompt.
const GenericCallTypeID = "generic"
