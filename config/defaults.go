package config

// defaultLayer returns the built-in defaults as the first merge layer.
// Kept as a plain map so it merges through the same path as the file layers.
func defaultLayer() map[string]any {
	return map[string]any{
		"recording": map[string]any{
			"output_dir":      "~/OBSRecordings",
			"obs_ws_port":     "4455",
			"obs_ws_password": "",
			"controller":      "obsws",
		},
		"transcription": map[string]any{
			"diarize":      true,
			"language":     "en",
			"device":       "cpu",
			"compute_type": "float32",
			"path":         "~/anaconda3/bin/whisperx",
			"hf_token":     "",
		},
		"llm": map[string]any{
			"provider": "openai",
			"enabled":  false,
			"api_key":  "",
			"model":    "",
			"profile":  "",
		},
		"call_types": map[string]any{
			GenericCallTypeID: map[string]any{
				"name":   "Generic",
				"icon":   "🎙️",
				"prompt": "Please summarize this transcript.",
			},
		},
		"context_base_path": "",
		"gdrive": map[string]any{
			"enabled":           false,
			"folder_id":         "",
			"credentials_file":  "",
			"oauth_client_file": "",
			"token_file":        "",
		},
		"notifications": map[string]any{
			"enabled": true,
		},
	}
}
