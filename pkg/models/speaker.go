package models

type SpeakerSource string

const (
	SpeakerCloned   SpeakerSource = "cloned"
	SpeakerDetected SpeakerSource = "detected"
)

// SpeakerIdentity 声纹身份（已确认或临时）
type SpeakerIdentity struct {
	ID         string        `json:"id"`
	Name       string        `json:"name"`
	Color      string        `json:"color"`
	IsKnown    bool          `json:"is_known"`
	AvatarSeed string        `json:"avatar_seed"`
	Source     SpeakerSource `json:"source"`
}

func (s SpeakerIdentity) EntityID() string { return s.ID }

func (s SpeakerIdentity) Clone() SpeakerIdentity { return s }

// SpeakerPatch 身份的部分更新
type SpeakerPatch struct {
	Name       *string `json:"name,omitempty"`
	Color      *string `json:"color,omitempty"`
	IsKnown    *bool   `json:"is_known,omitempty"`
	AvatarSeed *string `json:"avatar_seed,omitempty"`
}

func (p SpeakerPatch) Apply(s *SpeakerIdentity) {
	if p.Name != nil {
		s.Name = *p.Name
	}
	if p.Color != nil {
		s.Color = *p.Color
	}
	if p.IsKnown != nil {
		s.IsKnown = *p.IsKnown
	}
	if p.AvatarSeed != nil {
		s.AvatarSeed = *p.AvatarSeed
	}
}

// SpeakerSegment 一段归属到说话人的话语，创建后不可修改
type SpeakerSegment struct {
	ID         string  `json:"id"`
	SpeakerID  string  `json:"speaker_id"`
	Text       string  `json:"text"`
	StartTime  float64 `json:"start_time"`
	EndTime    float64 `json:"end_time"`
	Confidence float64 `json:"confidence"`
}
