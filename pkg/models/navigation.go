package models

type Module string

const (
	ModuleDigitalHuman  Module = "DIGITAL_HUMAN"
	ModuleAIVoice       Module = "AI_VOICE"
	ModulePromptLibrary Module = "PROMPT_LIBRARY"
)

type Page string

const (
	PageNone Page = ""

	PageHome         Page = "HOME"
	PagePreset       Page = "PRESET"
	PageCustom       Page = "CUSTOM"
	PageASR          Page = "ASR"
	PageTTS          Page = "TTS"
	PageVoiceCloning Page = "VOICE_CLONING"
	PageVoiceprint   Page = "VOICEPRINT"

	PagePromptDiscover  Page = "PROMPT_DISCOVER"
	PagePromptFavorites Page = "PROMPT_FAVORITES"
	PagePromptMine      Page = "PROMPT_MINE"
	PagePromptCreate    Page = "PROMPT_CREATE"
)

var modulePages = map[Module][]Page{
	ModuleDigitalHuman:  nil,
	ModuleAIVoice:       {PageHome, PagePreset, PageCustom, PageASR, PageTTS, PageVoiceCloning, PageVoiceprint},
	ModulePromptLibrary: {PagePromptDiscover, PagePromptFavorites, PagePromptMine, PagePromptCreate},
}

// Valid 模块是否存在
func (m Module) Valid() bool {
	_, ok := modulePages[m]
	return ok
}

// DefaultPage 模块的落地页，数字人模块没有子页面
func (m Module) DefaultPage() Page {
	pages := modulePages[m]
	if len(pages) == 0 {
		return PageNone
	}
	return pages[0]
}

// HasPage 页面是否属于该模块
func (m Module) HasPage(p Page) bool {
	for _, candidate := range modulePages[m] {
		if candidate == p {
			return true
		}
	}
	return false
}
