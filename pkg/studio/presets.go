package studio

import (
	"github.com/z-wentao/voicestudio/pkg/inference"
	"github.com/z-wentao/voicestudio/pkg/models"
)

func avatar(seed string) string {
	return "https://api.dicebear.com/7.x/avataaars/svg?seed=" + seed
}

// PresetVoices 内置声音，第一个是默认选中的声音
func PresetVoices(previewURL string) []models.Voice {
	if previewURL == "" {
		previewURL = inference.DemoAudioURL
	}
	voices := []models.Voice{
		{ID: "preset_xiaoxiao", Name: "晓晓", Gender: models.GenderFemale, Language: models.LanguageChinese,
			Tags: []string{"温柔", "知性"}, Category: models.CategoryNarrator, AvatarURL: avatar("xiaoxiao"), Source: models.SourcePreset},
		{ID: "preset_yunxi", Name: "云希", Gender: models.GenderMale, Language: models.LanguageChinese,
			Tags: []string{"阳光", "少年"}, Category: models.CategoryCharacter, AvatarURL: avatar("yunxi"), Source: models.SourcePreset},
		{ID: "preset_yunjian", Name: "云健", Gender: models.GenderMale, Language: models.LanguageChinese,
			Tags: []string{"沉稳", "播报"}, Category: models.CategoryNews, AvatarURL: avatar("yunjian"), Source: models.SourcePreset},
		{ID: "preset_xiaoyi", Name: "晓伊", Gender: models.GenderFemale, Language: models.LanguageChinese,
			Tags: []string{"活泼", "短视频"}, Category: models.CategorySocialMedia, AvatarURL: avatar("xiaoyi"), Source: models.SourcePreset},
		{ID: "preset_aria", Name: "Aria", Gender: models.GenderFemale, Language: models.LanguageEnglish,
			Tags: []string{"Warm", "Podcast"}, Category: models.CategoryNarrator, AvatarURL: avatar("aria"), Source: models.SourcePreset},
		{ID: "preset_guy", Name: "Guy", Gender: models.GenderMale, Language: models.LanguageEnglish,
			Tags: []string{"Deep", "News"}, Category: models.CategoryNews, AvatarURL: avatar("guy"), Source: models.SourcePreset},
		{ID: "community_storyteller", Name: "故事大王", Gender: models.GenderMale, Language: models.LanguageChinese,
			Tags: []string{"童话", "有声书"}, Category: models.CategoryCharacter, AvatarURL: avatar("storyteller"), Source: models.SourceCommunity, IsPublic: true},
		{ID: "community_vlogger", Name: "小鹿 Vlog", Gender: models.GenderFemale, Language: models.LanguageChinese,
			Tags: []string{"元气", "Vlog"}, Category: models.CategorySocialMedia, AvatarURL: avatar("vlogger"), Source: models.SourceCommunity, IsPublic: true},
	}
	for i := range voices {
		voices[i].PreviewURL = previewURL
	}
	return voices
}
