package config

// migrateLegacy converts pre-nested user settings layers to the current
// schema. Two legacy shapes are recognized:
//
//   - a flat top-level "diarize" boolean with no "transcription" section,
//     which becomes transcription.diarize
//   - an "openai" section with no "llm" section, which becomes the llm
//     section (databricks_profile renamed to profile, databricks_model to
//     model when the provider is databricks)
//
// Returns the migrated layer and whether anything changed. The input map is
// not modified.
func migrateLegacy(layer map[string]any) (map[string]any, bool) {
	changed := false
	out := make(map[string]any, len(layer))
	for k, v := range layer {
		out[k] = v
	}

	if diarize, ok := out["diarize"]; ok {
		if _, hasSection := out["transcription"]; !hasSection {
			out["transcription"] = map[string]any{"diarize": diarize}
			delete(out, "diarize")
			changed = true
		}
	}

	if legacy, ok := out["openai"].(map[string]any); ok {
		if _, hasLLM := out["llm"]; !hasLLM {
			llm := make(map[string]any, len(legacy))
			for k, v := range legacy {
				llm[k] = v
			}
			if profile, ok := llm["databricks_profile"]; ok {
				llm["profile"] = profile
				delete(llm, "databricks_profile")
			}
			if model, ok := llm["databricks_model"]; ok {
				if provider, _ := llm["provider"].(string); provider == "databricks" {
					llm["model"] = model
				}
				delete(llm, "databricks_model")
			}
			out["llm"] = llm
			delete(out, "openai")
			changed = true
		}
	}

	return out, changed
}
