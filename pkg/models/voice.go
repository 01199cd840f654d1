package models

import "strings"

type Gender string

const (
	GenderMale   Gender = "Male"
	GenderFemale Gender = "Female"
)

type Language string

const (
	LanguageChinese Language = "Chinese"
	LanguageEnglish Language = "English"
)

type Category string

const (
	CategorySocialMedia Category = "Social Media"
	CategoryCharacter   Category = "Character"
	CategoryNarrator    Category = "Narrator"
	CategoryNews        Category = "News"
)

// VoiceSource 声音来源
type VoiceSource string

const (
	SourcePreset    VoiceSource = "preset"
	SourceCommunity VoiceSource = "community"
	SourceCustom    VoiceSource = "custom"
)

// Voice 可合成的声音
type Voice struct {
	ID         string      `json:"id"`
	Name       string      `json:"name"`
	Gender     Gender      `json:"gender"`
	Language   Language    `json:"language"`
	Tags       []string    `json:"tags"`
	Category   Category    `json:"category"`
	AvatarURL  string      `json:"avatar_url"`
	PreviewURL string      `json:"preview_url,omitempty"`
	Notes      string      `json:"notes,omitempty"`
	Source     VoiceSource `json:"source"`
	IsCustom   bool        `json:"is_custom"`
	IsPublic   bool        `json:"is_public"`
	IsFavorite bool        `json:"is_favorite"`
}

func (v Voice) EntityID() string { return v.ID }

// Clone 深拷贝（Tags 切片不共享）
func (v Voice) Clone() Voice {
	c := v
	if v.Tags != nil {
		c.Tags = append([]string(nil), v.Tags...)
	}
	return c
}

// Normalize 保证 source == custom 时 isCustom 为 true
func (v *Voice) Normalize() {
	if v.Source == SourceCustom {
		v.IsCustom = true
	}
	if v.Tags == nil {
		v.Tags = []string{}
	}
}

// IsPreset 预置声音不可删除
func (v Voice) IsPreset() bool {
	return v.Source == SourcePreset
}

// VoicePatch 声音的部分更新，nil 字段表示不修改
type VoicePatch struct {
	Name       *string   `json:"name,omitempty"`
	Tags       *[]string `json:"tags,omitempty"`
	Notes      *string   `json:"notes,omitempty"`
	Category   *Category `json:"category,omitempty"`
	AvatarURL  *string   `json:"avatar_url,omitempty"`
	PreviewURL *string   `json:"preview_url,omitempty"`
	IsPublic   *bool     `json:"is_public,omitempty"`
	IsFavorite *bool     `json:"is_favorite,omitempty"`
}

// Apply 把补丁合并到 v 上（浅合并，Tags 整体替换）
func (p VoicePatch) Apply(v *Voice) {
	if p.Name != nil {
		v.Name = *p.Name
	}
	if p.Tags != nil {
		v.Tags = append([]string{}, (*p.Tags)...)
	}
	if p.Notes != nil {
		v.Notes = *p.Notes
	}
	if p.Category != nil {
		v.Category = *p.Category
	}
	if p.AvatarURL != nil {
		v.AvatarURL = *p.AvatarURL
	}
	if p.PreviewURL != nil {
		v.PreviewURL = *p.PreviewURL
	}
	if p.IsPublic != nil {
		v.IsPublic = *p.IsPublic
	}
	if p.IsFavorite != nil {
		v.IsFavorite = *p.IsFavorite
	}
}

// Validate 检查补丁本身是否合法
func (p VoicePatch) Validate() error {
	if p.Name != nil && strings.TrimSpace(*p.Name) == "" {
		return Invalidf("声音名称不能为空")
	}
	return nil
}

// SplitTags 按中英文逗号和空格切分标签
func SplitTags(s string) []string {
	fields := strings.FieldsFunc(s, func(r rune) bool {
		return r == ',' || r == '，' || r == ' '
	})
	tags := make([]string, 0, len(fields))
	for _, f := range fields {
		if f = strings.TrimSpace(f); f != "" {
			tags = append(tags, f)
		}
	}
	return tags
}
