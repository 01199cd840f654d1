package screens

import (
	"context"
	"fmt"
	"math/rand"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/z-wentao/voicestudio/pkg/inference"
	"github.com/z-wentao/voicestudio/pkg/models"
	"github.com/z-wentao/voicestudio/pkg/registry"
	"github.com/z-wentao/voicestudio/pkg/task"
)

// CloneSuccessMessage 克隆成功的提示
const CloneSuccessMessage = "声音克隆成功！已添加到您的自定义声音库。"

// recordedSampleRate 在线录音的采样率
const recordedSampleRate = 44100

// ReadingTexts 在线录音时随机给出的朗读文本
var ReadingTexts = []string{
	"春天的风轻轻吹过湖面，柳枝在水中投下细长的影子，远处传来孩子们的笑声。",
	"科技的进步让声音可以被记录、复制和重塑，而真正打动人心的，始终是声音里的情感。",
	"今天的天气非常适合出门散步，阳光温暖，空气里有淡淡的桂花香。",
	"请用平稳自然的语速朗读这段文字，保持与麦克风十五厘米左右的距离。",
	"每一个声音都是独一无二的，它记录着我们的经历、习惯和说话时的小小停顿。",
}

// NoticeStatus 提示类型
type NoticeStatus string

const (
	NoticeSuccess NoticeStatus = "success"
	NoticeError   NoticeStatus = "error"
)

// Notice 页面内可关闭的提示
type Notice struct {
	Status  NoticeStatus `json:"status"`
	Message string       `json:"message"`
}

// CloneRequest 克隆表单
type CloneRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// CloningState 声音克隆页面快照
type CloningState struct {
	Recording   bool                   `json:"recording"`
	RecordTime  float64                `json:"record_time"`
	ReadingText string                 `json:"reading_text"`
	Sample      *inference.CloneSample `json:"sample"`
	Cloning     bool                   `json:"cloning"`
	Notice      *Notice                `json:"notice"`
	Task        models.Task            `json:"task"`
	Voices      []models.Voice         `json:"voices"`
}

// VoiceCloning 声音克隆
// 成功后同时写入声音注册表和声纹注册表
type VoiceCloning struct {
	runner   *task.Runner
	svc      inference.Cloner
	voices   *registry.VoiceRegistry
	speakers *registry.SpeakerRegistry
	now      func() time.Time
	intn     func(n int) int
	// 新声音的试听地址为空时使用
	fallbackPreview string

	opMu sync.Mutex

	mu          sync.Mutex
	recording   bool
	recordTime  float64
	readingText string
	sample      *inference.CloneSample
	notice      *Notice
	session     uint64
}

// NewVoiceCloning 创建页面
func NewVoiceCloning(runner *task.Runner, svc inference.Cloner, voices *registry.VoiceRegistry, speakers *registry.SpeakerRegistry, fallbackPreview string) *VoiceCloning {
	return &VoiceCloning{
		runner:          runner,
		svc:             svc,
		voices:          voices,
		speakers:        speakers,
		now:             time.Now,
		intn:            rand.Intn,
		fallbackPreview: fallbackPreview,
		readingText:     ReadingTexts[0],
	}
}

// StartRecording 开始录音，换一段朗读文本
func (c *VoiceCloning) StartRecording() CloningState {
	c.mu.Lock()
	c.recording = true
	c.readingText = ReadingTexts[c.intn(len(ReadingTexts))]
	c.mu.Unlock()
	return c.State()
}

// StopRecording 停止录音，生成录音样本
func (c *VoiceCloning) StopRecording(duration float64) (CloningState, error) {
	c.mu.Lock()
	if !c.recording {
		c.mu.Unlock()
		return c.State(), fmt.Errorf("%w: 当前没有在录音", models.ErrInvalidTransition)
	}
	if duration < 0 {
		duration = 0
	}
	c.recording = false
	c.recordTime = duration
	c.sample = &inference.CloneSample{
		Filename:   fmt.Sprintf("recorded_sample_%d.wav", c.now().UnixMilli()),
		SampleRate: recordedSampleRate,
		Duration:   duration,
		Size:       int64(len("audio content")),
	}
	c.mu.Unlock()
	return c.State(), nil
}

// SetSample 使用上传的文件作为样本
func (c *VoiceCloning) SetSample(sample inference.CloneSample) (CloningState, error) {
	if strings.TrimSpace(sample.Filename) == "" {
		return c.State(), models.Invalidf("样本文件名不能为空")
	}
	c.mu.Lock()
	c.sample = &sample
	c.recording = false
	c.mu.Unlock()
	return c.State(), nil
}

// ClearSample 移除样本
func (c *VoiceCloning) ClearSample() CloningState {
	c.mu.Lock()
	c.sample = nil
	c.recordTime = 0
	c.mu.Unlock()
	return c.State()
}

// Create 提交克隆训练
// 失败（例如采样率过低）时任务为 failed 并给出提示，可以立即重试
func (c *VoiceCloning) Create(req CloneRequest) (models.Task, error) {
	c.opMu.Lock()
	defer c.opMu.Unlock()

	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		return c.runner.Get(models.KindClone), models.Invalidf("声音名称不能为空")
	}

	c.mu.Lock()
	if c.sample == nil {
		c.mu.Unlock()
		return c.runner.Get(models.KindClone), models.Invalidf("请先上传或录制声音样本")
	}
	sample := *c.sample
	c.mu.Unlock()

	if err := prepare(c.runner, models.KindClone); err != nil {
		return c.runner.Get(models.KindClone), err
	}

	c.mu.Lock()
	c.session++
	session := c.session
	c.notice = nil
	c.mu.Unlock()

	return c.runner.Start(models.KindClone, task.Reject,
		func(ctx context.Context, _ func(any)) (any, error) {
			preview, err := c.svc.Clone(ctx, sample)
			if err != nil {
				return nil, err
			}
			return models.CloneResult{Voice: c.buildVoice(req, preview)}, nil
		},
		task.Hooks{OnDone: func(t models.Task) {
			c.mu.Lock()
			stale := c.session != session
			c.mu.Unlock()
			if stale {
				return
			}

			res, ok := t.Result.(models.CloneResult)
			if t.Status != models.TaskSucceeded || !ok {
				c.setNotice(NoticeError, t.ErrorMessage)
				return
			}
			if err := c.register(res.Voice); err != nil {
				c.setNotice(NoticeError, err.Error())
				return
			}

			c.mu.Lock()
			c.sample = nil
			c.recordTime = 0
			c.notice = &Notice{Status: NoticeSuccess, Message: CloneSuccessMessage}
			c.mu.Unlock()
		}},
	)
}

func (c *VoiceCloning) buildVoice(req CloneRequest, preview models.AudioRef) models.Voice {
	tags := models.SplitTags(req.Description)
	if len(tags) == 0 {
		tags = []string{"Custom"}
	}
	previewURL := preview.URL
	if previewURL == "" {
		previewURL = c.fallbackPreview
	}
	return models.Voice{
		ID:         "custom_" + uuid.New().String(),
		Name:       req.Name,
		Gender:     models.GenderMale,
		Language:   models.LanguageChinese,
		Tags:       tags,
		Category:   models.CategoryCharacter,
		AvatarURL:  "https://api.dicebear.com/7.x/pixel-art/svg?seed=" + url.QueryEscape(req.Name),
		PreviewURL: previewURL,
		Source:     models.SourceCustom,
		IsCustom:   true,
		IsPublic:   true,
	}
}

// register 声音和声纹身份一起登记
func (c *VoiceCloning) register(v models.Voice) error {
	added, err := c.voices.Add(v)
	if err != nil {
		return fmt.Errorf("添加声音失败: %w", err)
	}
	_, _, err = c.speakers.EnsureRegistered(models.SpeakerIdentity{
		ID:         added.ID,
		Name:       added.Name,
		Color:      "bg-emerald-600",
		IsKnown:    true,
		AvatarSeed: added.Name,
		Source:     models.SpeakerCloned,
	})
	if err != nil {
		return fmt.Errorf("登记声纹身份失败: %w", err)
	}
	logrus.WithField("voice_id", added.ID).Infof("🎉 声音克隆完成: %s", added.Name)
	return nil
}

func (c *VoiceCloning) setNotice(status NoticeStatus, msg string) {
	if msg == "" {
		msg = inference.CloneFailureMessage
	}
	c.mu.Lock()
	c.notice = &Notice{Status: status, Message: msg}
	c.mu.Unlock()
}

// DismissNotice 关闭提示
func (c *VoiceCloning) DismissNotice() CloningState {
	c.mu.Lock()
	c.notice = nil
	c.mu.Unlock()
	return c.State()
}

// State 页面快照，Voices 为自定义声音
func (c *VoiceCloning) State() CloningState {
	t := c.runner.Get(models.KindClone)

	c.mu.Lock()
	st := CloningState{
		Recording:   c.recording,
		RecordTime:  c.recordTime,
		ReadingText: c.readingText,
		Cloning:     t.Status == models.TaskRunning,
		Task:        t,
	}
	if c.sample != nil {
		s := *c.sample
		st.Sample = &s
	}
	if c.notice != nil {
		n := *c.notice
		st.Notice = &n
	}
	c.mu.Unlock()

	custom, err := c.voices.Filter(registry.VoiceFilter{Tab: registry.TabCustom})
	if err != nil {
		logrus.Warnf("⚠️ 读取自定义声音失败: %v", err)
		custom = []models.Voice{}
	}
	st.Voices = custom
	return st
}

// Close 页面销毁
func (c *VoiceCloning) Close() {
	c.runner.Close()
}
