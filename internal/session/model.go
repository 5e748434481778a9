// ABOUTME: Model configuration handed to the client when a session opens.
// ABOUTME: Combines model settings with enabled declarations and the guidance briefing.

package session

import "github.com/2389/altair-gateway/internal/plugins"

// Model defaults.
const (
	DefaultModel    = "models/gemini-2.0-flash-exp"
	DefaultVoice    = "Aoede"
	DefaultModality = "audio"
)

// ModelSettings are the operator-configured parts of the model config.
type ModelSettings struct {
	Model        string
	Voice        string
	Modality     string
	GoogleSearch bool
}

func (s ModelSettings) withDefaults() ModelSettings {
	if s.Model == "" {
		s.Model = DefaultModel
	}
	if s.Voice == "" {
		s.Voice = DefaultVoice
	}
	if s.Modality == "" {
		s.Modality = DefaultModality
	}
	return s
}

// ModelConfig is the live-model setup payload.
type ModelConfig struct {
	Model             string            `json:"model"`
	GenerationConfig  GenerationConfig  `json:"generationConfig"`
	SystemInstruction SystemInstruction `json:"systemInstruction"`
	Tools             []Tool            `json:"tools"`
}

// GenerationConfig selects the response modality and voice.
type GenerationConfig struct {
	ResponseModalities string       `json:"responseModalities"`
	SpeechConfig       SpeechConfig `json:"speechConfig"`
}

// SpeechConfig wraps the voice selection.
type SpeechConfig struct {
	VoiceConfig VoiceConfig `json:"voiceConfig"`
}

// VoiceConfig wraps the prebuilt voice selection.
type VoiceConfig struct {
	PrebuiltVoiceConfig PrebuiltVoiceConfig `json:"prebuiltVoiceConfig"`
}

// PrebuiltVoiceConfig names a prebuilt voice.
type PrebuiltVoiceConfig struct {
	VoiceName string `json:"voiceName"`
}

// SystemInstruction is the briefing given to the model.
type SystemInstruction struct {
	Parts []Part `json:"parts"`
}

// Part is a text fragment of a system instruction.
type Part struct {
	Text string `json:"text"`
}

// Tool is one entry of the tools list: either the search tool or a set of
// function declarations.
type Tool struct {
	GoogleSearch         *struct{}             `json:"googleSearch,omitempty"`
	FunctionDeclarations []plugins.Declaration `json:"functionDeclarations,omitempty"`
}

// BuildModelConfig assembles the model config for the given plugin state.
// Disabled plugins contribute no declaration.
func BuildModelConfig(settings ModelSettings, agg *plugins.Aggregator, state plugins.PluginState) *ModelConfig {
	settings = settings.withDefaults()

	decls := agg.DeclarationsFor(state)
	if decls == nil {
		decls = []plugins.Declaration{}
	}

	var tools []Tool
	if settings.GoogleSearch {
		tools = append(tools, Tool{GoogleSearch: &struct{}{}})
	}
	tools = append(tools, Tool{FunctionDeclarations: decls})

	return &ModelConfig{
		Model: settings.Model,
		GenerationConfig: GenerationConfig{
			ResponseModalities: settings.Modality,
			SpeechConfig: SpeechConfig{
				VoiceConfig: VoiceConfig{
					PrebuiltVoiceConfig: PrebuiltVoiceConfig{VoiceName: settings.Voice},
				},
			},
		},
		SystemInstruction: SystemInstruction{
			Parts: []Part{{Text: agg.BuildGuidance(state)}},
		},
		Tools: tools,
	}
}

// Declarations returns the function declarations carried by the config.
func (c *ModelConfig) Declarations() []plugins.Declaration {
	var out []plugins.Declaration
	for _, t := range c.Tools {
		out = append(out, t.FunctionDeclarations...)
	}
	return out
}
